package bytecode

import (
	"testing"
)

// ============================================================================
// 装配器测试
// ============================================================================

func TestBuilderSlots(t *testing.T) {
	b := NewFuncBuilder("f", "x", "y")
	if b.Local("x") != 0 || b.Local("y") != 1 {
		t.Fatal("params must occupy the lowest slots")
	}
	z := b.DeclareLocal("z")
	if z != 2 {
		t.Errorf("Expected slot 2 for z, got %d", z)
	}

	t1 := b.PushTemp()
	t2 := b.PushTemp()
	if t1 != 3 || t2 != 4 {
		t.Errorf("Expected temps above locals, got %d %d", t1, t2)
	}
	b.PopTemp()
	b.PopTemp()

	b.Binop(OpAdd, z, b.Local("x"), b.Local("y"))
	b.Ret(z)
	fn := b.MustBuild()
	if fn.NumRegs != 5 {
		t.Errorf("Expected 5 registers, got %d", fn.NumRegs)
	}
	if fn.Arity != 2 {
		t.Errorf("Expected arity 2, got %d", fn.Arity)
	}
}

func TestBuilderLabels(t *testing.T) {
	b := NewFuncBuilder("loop", "n")
	end := b.NewLabel()
	top := b.NewLabel()
	b.Bind(top)
	cond := b.PushTemp()
	b.BinopImm(OpCmpLeImm, cond, b.Local("n"), 0)
	b.CondBr(cond, end)
	b.PopTemp()
	b.BinopImm(OpSubImm, b.Local("n"), b.Local("n"), 1)
	b.Br(top)
	b.Bind(end)
	b.Ret(b.Local("n"))

	fn, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if err := (&Module{Functions: []*Function{fn}, Main: 0}).Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	// 回边必须指向循环头
	var loopBr *Instr
	for i := range fn.Code {
		if fn.Code[i].Op == OpBr {
			loopBr = &fn.Code[i]
		}
	}
	if loopBr == nil || loopBr.Imm != 0 {
		t.Errorf("Expected backedge to :00000, got %v", loopBr)
	}
}

func TestBuilderUnboundLabel(t *testing.T) {
	b := NewFuncBuilder("bad")
	l := b.NewLabel()
	b.Br(l)
	if _, err := b.Build(); err == nil {
		t.Fatal("Expected error for unbound label")
	}
}

func TestBuilderImplicitReturn(t *testing.T) {
	b := NewFuncBuilder("noret")
	b.Integer(b.PushTemp(), 1)
	fn := b.MustBuild()
	last := fn.Code[len(fn.Code)-1]
	if last.Op != OpRet {
		t.Errorf("Expected trailing RET, got %s", last.Op)
	}
}

func TestLiteralDedup(t *testing.T) {
	b := NewFuncBuilder("lits")
	i1 := b.Literal(NewString("hello"))
	i2 := b.Literal(NewString("hello"))
	if i1 != i2 {
		t.Errorf("Expected deduplicated literal, got %d and %d", i1, i2)
	}
	i3 := b.Literal(NewInt(42))
	if i3 == i1 {
		t.Error("distinct literals must not collide")
	}
}
