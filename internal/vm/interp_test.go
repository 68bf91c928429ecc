package vm

import (
	"math/big"
	"testing"

	"github.com/rivalang/riva/internal/bytecode"
)

// newTestEnv 测试环境：独立的上下文与全局状态
func newTestEnv(threshold int64) (*Context, *Globals) {
	store := NewFnStore(threshold)
	g := NewGlobals(store, nil)
	ctx := NewContext(0, 0)
	return ctx, g
}

// buildFib 经典递归 fib：fib(n) = n < 2 ? n : fib(n-1) + fib(n-2)
func buildFib() *bytecode.Function {
	b := bytecode.NewFuncBuilder("fib", "n")
	cond := b.PushTemp()
	b.BinopImm(bytecode.OpCmpLtImm, cond, 0, 2)
	rec := b.NewLabel()
	b.CondNotBr(cond, rec)
	b.Ret(0)
	b.Bind(rec)
	t1 := b.PushTemp()
	b.BinopImm(bytecode.OpSubImm, t1, 0, 1)
	b.Call(t1, 0, t1, 1)
	t2 := b.PushTemp()
	b.BinopImm(bytecode.OpSubImm, t2, 0, 2)
	b.Call(t2, 0, t2, 1)
	b.Binop(bytecode.OpAdd, t1, t1, t2)
	b.Ret(t1)
	return b.MustBuild()
}

func registerFib(t *testing.T, g *Globals) bytecode.FuncId {
	t.Helper()
	m := bytecode.NewModule()
	m.Main = m.AddFunction(buildFib())
	ids, err := g.Funcs.RegisterModule(m)
	if err != nil {
		t.Fatalf("RegisterModule failed: %v", err)
	}
	return ids[0]
}

func TestFibInterpreted(t *testing.T) {
	ctx, g := newTestEnv(1 << 30)
	id := registerFib(t, g)

	tests := []struct {
		n    int64
		want int64
	}{
		{0, 0},
		{1, 1},
		{2, 1},
		{10, 55},
		{15, 610},
	}
	for _, tt := range tests {
		v, err := Call(ctx, g, id, []bytecode.Value{bytecode.NewInt(tt.n)}, DummyPC)
		if err != nil {
			t.Fatalf("fib(%d) failed: %v", tt.n, err)
		}
		if v.Type != bytecode.ValInt || v.AsInt() != tt.want {
			t.Errorf("fib(%d) = %v, want %d", tt.n, v, tt.want)
		}
		if ctx.Depth() != 0 {
			t.Fatalf("fib(%d) left %d frames on the context", tt.n, ctx.Depth())
		}
	}
}

// stubCompiler 晋升测试桩：编译产物即"从头解释"，只验证层级机制本身
type stubCompiler struct {
	compiled []string
	gap      bool
}

func (c *stubCompiler) Compile(g *Globals, fi *FuncInfo) (EntryFn, bool, error) {
	if c.gap {
		return nil, false, nil
	}
	c.compiled = append(c.compiled, fi.Name)
	return func(ctx *Context, g *Globals) (bytecode.Value, error) {
		return Resume(ctx, g, 0)
	}, true, nil
}

func TestTierPromotionTransparent(t *testing.T) {
	ctx, g := newTestEnv(5)
	comp := &stubCompiler{}
	g.Compiler = comp
	id := registerFib(t, g)

	// 一次 fib(12) 的递归就跨过阈值；晋升对结果不可见
	v, err := Call(ctx, g, id, []bytecode.Value{bytecode.NewInt(12)}, DummyPC)
	if err != nil {
		t.Fatalf("fib(12) failed: %v", err)
	}
	if v.AsInt() != 144 {
		t.Errorf("fib(12) = %v, want 144", v)
	}

	fi, _ := g.Funcs.Lookup(id)
	if fi.Tier() != TierCompiled {
		t.Errorf("tier after threshold = %s, want compiled", fi.Tier())
	}
	if len(comp.compiled) != 1 || comp.compiled[0] != "fib" {
		t.Errorf("compiled funcs = %v, want [fib]", comp.compiled)
	}

	// 晋升后再调一次，仍经统一入口得到同样的值
	v, err = Call(ctx, g, id, []bytecode.Value{bytecode.NewInt(12)}, DummyPC)
	if err != nil {
		t.Fatalf("fib(12) after promotion failed: %v", err)
	}
	if v.AsInt() != 144 {
		t.Errorf("fib(12) after promotion = %v, want 144", v)
	}
}

func TestCompilerGapStaysInterpreted(t *testing.T) {
	ctx, g := newTestEnv(3)
	g.Compiler = &stubCompiler{gap: true}
	id := registerFib(t, g)

	v, err := Call(ctx, g, id, []bytecode.Value{bytecode.NewInt(10)}, DummyPC)
	if err != nil {
		t.Fatalf("fib(10) failed: %v", err)
	}
	if v.AsInt() != 55 {
		t.Errorf("fib(10) = %v, want 55", v)
	}
	fi, _ := g.Funcs.Lookup(id)
	if fi.Tier() != TierInterpreted {
		t.Errorf("tier with compiler gap = %s, want interpreted", fi.Tier())
	}
	if !fi.noPromote {
		t.Error("compiler gap did not disable further promotion attempts")
	}
}

func TestOverflowPromotesInPlace(t *testing.T) {
	ctx, g := newTestEnv(1 << 30)

	b := bytecode.NewFuncBuilder("inc", "n")
	dst := b.PushTemp()
	b.BinopImm(bytecode.OpAddImm, dst, 0, 1)
	b.Ret(dst)
	id := g.Funcs.RegisterFunction(b.MustBuild())

	v, err := Call(ctx, g, id, []bytecode.Value{bytecode.NewInt(bytecode.FixnumMax)}, DummyPC)
	if err != nil {
		t.Fatalf("inc(FixnumMax) failed: %v", err)
	}
	if v.Type != bytecode.ValBignum {
		t.Fatalf("inc(FixnumMax) type = %s, want bignum", v.Type)
	}
	want := new(big.Int).Add(big.NewInt(bytecode.FixnumMax), big.NewInt(1))
	if v.AsBignum().Cmp(want) != 0 {
		t.Errorf("inc(FixnumMax) = %v, want %v", v, want)
	}
	if g.Alloc.(*CountingAllocator).Allocs() == 0 {
		t.Error("bignum promotion was not accounted to the allocator")
	}
}

func TestConcatAndLiteralIsolation(t *testing.T) {
	ctx, g := newTestEnv(1 << 30)

	b := bytecode.NewFuncBuilder("greet")
	t1 := b.PushTemp()
	t2 := b.PushTemp()
	b.Const(t1, bytecode.NewString("ab"))
	b.Const(t2, bytecode.NewString("cd"))
	b.Binop(bytecode.OpConcat, t1, t1, t2)
	b.Ret(t1)
	fn := b.MustBuild()
	id := g.Funcs.RegisterFunction(fn)

	for i := 0; i < 2; i++ {
		v, err := Call(ctx, g, id, nil, DummyPC)
		if err != nil {
			t.Fatalf("greet() failed: %v", err)
		}
		if v.Type != bytecode.ValString || v.AsString().String() != "abcd" {
			t.Errorf("greet() = %v, want abcd", v)
		}
	}
	// 字面量池不受运行期字符串操作影响
	if got := fn.Literals[0].AsString().String(); got != "ab" {
		t.Errorf("literal pool mutated: %q, want ab", got)
	}
}

func TestDivideByZero(t *testing.T) {
	ctx, g := newTestEnv(1 << 30)

	b := bytecode.NewFuncBuilder("div", "a", "b")
	dst := b.PushTemp()
	b.Binop(bytecode.OpDiv, dst, 0, 1)
	b.Ret(dst)
	id := g.Funcs.RegisterFunction(b.MustBuild())

	args := []bytecode.Value{bytecode.NewInt(1), bytecode.NewInt(0)}
	_, ue, err := ProtectedCall(ctx, g, id, args)
	if err != nil {
		t.Fatalf("protected div(1, 0) faulted: %v", err)
	}
	if ue == nil || ue.Kind != ErrKindZeroDiv {
		t.Errorf("div(1, 0) error = %v, want %s", ue, ErrKindZeroDiv)
	}
	if ctx.Depth() != 0 {
		t.Errorf("unwind left %d frames on the context", ctx.Depth())
	}
}

func TestArityMismatch(t *testing.T) {
	ctx, g := newTestEnv(1 << 30)
	id := registerFib(t, g)

	args := []bytecode.Value{bytecode.NewInt(1), bytecode.NewInt(2)}
	_, err := Call(ctx, g, id, args, DummyPC)
	ue, ok := AsUserError(err)
	if !ok || ue.Kind != ErrKindArity {
		t.Errorf("fib(1, 2) error = %v, want %s", err, ErrKindArity)
	}
}

func TestStackOverflow(t *testing.T) {
	g := NewGlobals(NewFnStore(1<<30), nil)
	ctx := NewContext(0, 64)

	b := bytecode.NewFuncBuilder("loop")
	dst := b.PushTemp()
	b.Call(dst, 0, dst, 0)
	b.Ret(dst)
	m := bytecode.NewModule()
	m.Main = m.AddFunction(b.MustBuild())
	ids, err := g.Funcs.RegisterModule(m)
	if err != nil {
		t.Fatalf("RegisterModule failed: %v", err)
	}

	_, ue, err := ProtectedCall(ctx, g, ids[0], nil)
	if err != nil {
		t.Fatalf("protected loop() faulted: %v", err)
	}
	if ue == nil || ue.Kind != ErrKindStack {
		t.Errorf("loop() error = %v, want %s", ue, ErrKindStack)
	}
	if ctx.Depth() != 0 || ctx.BP() != 0 {
		t.Errorf("unwind left depth=%d bp=%d, want 0/0", ctx.Depth(), ctx.BP())
	}
}

func TestRaiseCarriesPayload(t *testing.T) {
	ctx, g := newTestEnv(1 << 30)

	b := bytecode.NewFuncBuilder("angry")
	dst := b.PushTemp()
	b.Const(dst, bytecode.NewString("boom"))
	b.Raise(dst)
	b.Ret(dst)
	id := g.Funcs.RegisterFunction(b.MustBuild())

	_, ue, err := ProtectedCall(ctx, g, id, nil)
	if err != nil {
		t.Fatalf("protected angry() faulted: %v", err)
	}
	if ue == nil || ue.Kind != ErrKindRuntime {
		t.Fatalf("angry() error = %v, want %s", ue, ErrKindRuntime)
	}
	if ue.Payload.Type != bytecode.ValString || ue.Payload.AsString().String() != "boom" {
		t.Errorf("raise payload = %v, want boom", ue.Payload)
	}
}

func TestTypeFeedback(t *testing.T) {
	ctx, g := newTestEnv(1 << 30)

	b := bytecode.NewFuncBuilder("add", "a", "b")
	dst := b.PushTemp()
	b.Binop(bytecode.OpAdd, dst, 0, 1)
	b.Ret(dst)
	id := g.Funcs.RegisterFunction(b.MustBuild())
	fi, _ := g.Funcs.Lookup(id)

	ints := []bytecode.Value{bytecode.NewInt(1), bytecode.NewInt(2)}
	if _, err := Call(ctx, g, id, ints, DummyPC); err != nil {
		t.Fatalf("add(1, 2) failed: %v", err)
	}
	lhs, rhs, mono := fi.Feedback().Observed(0)
	if !mono || lhs != bytecode.ValInt || rhs != bytecode.ValInt {
		t.Errorf("feedback after int call = (%s, %s, %v), want (int, int, true)", lhs, rhs, mono)
	}

	mixed := []bytecode.Value{bytecode.NewInt(1), bytecode.NewFloat(2.5)}
	if _, err := Call(ctx, g, id, mixed, DummyPC); err != nil {
		t.Fatalf("add(1, 2.5) failed: %v", err)
	}
	if _, _, mono := fi.Feedback().Observed(0); mono {
		t.Error("feedback stayed monomorphic after mixed operand types")
	}
}
