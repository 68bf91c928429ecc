package bytecode

import (
	"math/big"
	"testing"
)

// ============================================================================
// 镜像序列化测试
// ============================================================================

func imageTestModule(t *testing.T) *Module {
	t.Helper()
	b := NewFuncBuilder("greet", "who")
	s := b.PushTemp()
	b.Const(s, NewString("hello "))
	r := b.PushTemp()
	b.Binop(OpConcat, r, s, b.Local("who"))
	b.Ret(r)
	fn := b.MustBuild()

	big1 := new(big.Int).Add(big.NewInt(FixnumMax), big.NewInt(1))
	m := NewFuncBuilder("consts")
	c := m.PushTemp()
	m.Const(c, NewBignum(big1))
	m.Const(c, NewFloat(2.5))
	m.Const(c, TrueValue)
	m.Const(c, NilValue)
	m.Const(c, NewInt(-7))
	m.Ret(c)
	mainFn := m.MustBuild()

	mod := NewModule()
	mod.AddFunction(fn)
	mod.Main = mod.AddFunction(mainFn)
	return mod
}

func TestImageRoundTrip(t *testing.T) {
	mod := imageTestModule(t)
	data, err := SerializeModule(mod)
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}

	got, err := DeserializeModule(data)
	if err != nil {
		t.Fatalf("Deserialize failed: %v", err)
	}
	if len(got.Functions) != len(mod.Functions) {
		t.Fatalf("Expected %d functions, got %d", len(mod.Functions), len(got.Functions))
	}
	if got.Main != mod.Main {
		t.Errorf("Expected main %d, got %d", mod.Main, got.Main)
	}
	for i, want := range mod.Functions {
		fn := got.Functions[i]
		if fn.Name != want.Name || fn.Arity != want.Arity || fn.NumRegs != want.NumRegs {
			t.Errorf("function %d header mismatch: %+v vs %+v", i, fn, want)
		}
		if len(fn.Code) != len(want.Code) {
			t.Fatalf("function %d: expected %d instrs, got %d", i, len(want.Code), len(fn.Code))
		}
		for pc := range want.Code {
			if fn.Code[pc] != want.Code[pc] {
				t.Errorf("function %d :%05d mismatch: %s vs %s", i, pc, fn.Code[pc], want.Code[pc])
			}
		}
		for li := range want.Literals {
			if !fn.Literals[li].Equals(want.Literals[li]) {
				t.Errorf("function %d literal %d mismatch: %s vs %s",
					i, li, fn.Literals[li], want.Literals[li])
			}
		}
	}
}

func TestImageBadMagic(t *testing.T) {
	data, err := SerializeModule(imageTestModule(t))
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}
	data[0] = 'X'
	if _, err := DeserializeModule(data); err == nil {
		t.Fatal("Expected error for bad magic")
	}
}

func TestImageTruncated(t *testing.T) {
	data, err := SerializeModule(imageTestModule(t))
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}
	if _, err := DeserializeModule(data[:len(data)/2]); err == nil {
		t.Fatal("Expected error for truncated image")
	}
}

func TestImageRejectsObjectLiteral(t *testing.T) {
	fn := &Function{
		Name:     "bad",
		NumRegs:  1,
		Code:     []Instr{{Op: OpRet}},
		Literals: []Value{NewObject(NewInstance(NewClass("T")))},
	}
	mod := NewModule()
	mod.AddFunction(fn)
	if _, err := SerializeModule(mod); err == nil {
		t.Fatal("Expected error for object literal")
	}
}
