package vm

import (
	"testing"

	"github.com/rivalang/riva/internal/bytecode"
)

func TestFramePushPop(t *testing.T) {
	ctx := NewContext(128, 8)

	args := []bytecode.Value{bytecode.NewInt(7), bytecode.NewInt(8)}
	if err := ctx.WriteArgs(args); err != nil {
		t.Fatalf("WriteArgs failed: %v", err)
	}
	base, err := ctx.PushFrame(MakeMeta(TierInterpreted, 3), 5, DummyPC)
	if err != nil {
		t.Fatalf("PushFrame failed: %v", err)
	}
	if base != 0 || ctx.BP() != 0 {
		t.Errorf("first frame base = %d bp = %d, want 0/0", base, ctx.BP())
	}
	fr := ctx.CurrentFrame()
	if fr.Meta.Tier() != TierInterpreted || fr.Meta.FuncID() != 3 {
		t.Errorf("frame meta = %v, want {interpreted func[3]}", fr.Meta)
	}
	if fr.Top != 5 {
		t.Errorf("frame top = %d, want 5", fr.Top)
	}
	if got := ctx.Slot(1); got.AsInt() != 8 {
		t.Errorf("arg slot %%1 = %v, want 8", got)
	}

	// 嵌套帧落在上一帧槽区之上，弹出后恢复调用者基址
	if err := ctx.WriteArgs(args[:1]); err != nil {
		t.Fatalf("WriteArgs failed: %v", err)
	}
	inner, err := ctx.PushFrame(MakeMeta(TierCompiled, 4), 2, DummyPC)
	if err != nil {
		t.Fatalf("nested PushFrame failed: %v", err)
	}
	if inner != 5 || ctx.BP() != 5 {
		t.Errorf("nested frame base = %d bp = %d, want 5/5", inner, ctx.BP())
	}
	chain := ctx.FrameChain()
	if len(chain) != 2 || chain[1].Meta.FuncID() != 4 {
		t.Errorf("frame chain = %v, want two frames ending at func[4]", chain)
	}
	popped := ctx.PopFrame()
	if popped.SavedBP != 0 || ctx.BP() != 0 {
		t.Errorf("PopFrame restored bp = %d (saved %d), want 0", ctx.BP(), popped.SavedBP)
	}
	if ctx.Depth() != 1 {
		t.Errorf("depth after pop = %d, want 1", ctx.Depth())
	}
}

func TestNativeFrameABI(t *testing.T) {
	ctx, g := newTestEnv(1 << 30)

	probeID := g.Funcs.RegisterNative("probe", 1, false,
		func(g *Globals, args []bytecode.Value) (bytecode.Value, error) {
			return bytecode.NilValue, nil
		})

	// 换上观察入口：层级分派只看元数据记录，测试可借此窥探帧头
	var gotDepth int
	var gotMeta Meta
	var gotSavedPC int
	fi, _ := g.Funcs.Lookup(probeID)
	fi.entry = func(ctx *Context, g *Globals) (bytecode.Value, error) {
		fr := ctx.CurrentFrame()
		gotDepth = ctx.Depth()
		gotMeta = fr.Meta
		gotSavedPC = fr.SavedPC
		return ctx.Slot(0), nil
	}

	b := bytecode.NewFuncBuilder("caller", "x")
	dst := b.PushTemp()
	b.Mov(dst, 0)
	b.CallDyn(dst, "probe", dst, 1)
	b.Ret(dst)
	callerFn := b.MustBuild()
	callerID := g.Funcs.RegisterFunction(callerFn)

	v, err := Call(ctx, g, callerID, []bytecode.Value{bytecode.NewInt(42)}, DummyPC)
	if err != nil {
		t.Fatalf("caller(42) failed: %v", err)
	}
	if v.AsInt() != 42 {
		t.Errorf("caller(42) = %v, want 42", v)
	}
	if gotDepth != 2 {
		t.Errorf("callee depth = %d, want 2", gotDepth)
	}
	if gotMeta.Tier() != TierNative || gotMeta.FuncID() != probeID {
		t.Errorf("callee meta = %v, want {native func[%d]}", gotMeta, probeID)
	}

	// SavedPC 指向调用指令本身
	wantPC := -1
	for pc, ins := range callerFn.Code {
		if ins.Op == bytecode.OpCallDyn {
			wantPC = pc
		}
	}
	if gotSavedPC != wantPC {
		t.Errorf("callee SavedPC = %d, want %d", gotSavedPC, wantPC)
	}
}

func TestVariadicNative(t *testing.T) {
	ctx, g := newTestEnv(1 << 30)

	id := g.Funcs.RegisterNative("sum", 0, true,
		func(g *Globals, args []bytecode.Value) (bytecode.Value, error) {
			var total int64
			for _, a := range args {
				total += a.AsInt()
			}
			return bytecode.NewInt(total), nil
		})

	tests := []struct {
		args []int64
		want int64
	}{
		{nil, 0},
		{[]int64{5}, 5},
		{[]int64{1, 2, 3, 4}, 10},
	}
	for _, tt := range tests {
		args := make([]bytecode.Value, len(tt.args))
		for i, n := range tt.args {
			args[i] = bytecode.NewInt(n)
		}
		v, err := Call(ctx, g, id, args, DummyPC)
		if err != nil {
			t.Fatalf("sum(%v) failed: %v", tt.args, err)
		}
		if v.AsInt() != tt.want {
			t.Errorf("sum(%v) = %v, want %d", tt.args, v, tt.want)
		}
	}
}

func TestCallName(t *testing.T) {
	ctx, g := newTestEnv(1 << 30)
	registerFib(t, g)

	v, err := CallName(ctx, g, "fib", []bytecode.Value{bytecode.NewInt(10)})
	if err != nil {
		t.Fatalf("CallName(fib, 10) failed: %v", err)
	}
	if v.AsInt() != 55 {
		t.Errorf("CallName(fib, 10) = %v, want 55", v)
	}

	_, err = CallName(ctx, g, "nope", nil)
	ue, ok := AsUserError(err)
	if !ok || ue.Kind != ErrKindNoFunc {
		t.Errorf("CallName(nope) error = %v, want %s", err, ErrKindNoFunc)
	}
}

func TestVisitRoots(t *testing.T) {
	ctx, g := newTestEnv(1 << 30)

	str, _ := g.Alloc.AllocString([]byte("live"))
	obj, _ := g.Alloc.AllocObject(bytecode.NewClass("Box", "v"))

	id := g.Funcs.RegisterNative("pause", 2, false,
		func(g *Globals, args []bytecode.Value) (bytecode.Value, error) {
			return bytecode.NilValue, nil
		})
	fi, _ := g.Funcs.Lookup(id)

	// 在被调帧内枚举根：两帧的全部活跃槽都要出现
	var seenStr, seenObj bool
	var roots int
	fi.entry = func(ctx *Context, g *Globals) (bytecode.Value, error) {
		ctx.VisitRoots(func(v *bytecode.Value) {
			roots++
			if v.Type == bytecode.ValString && v.Data == str.Data {
				seenStr = true
			}
			if v.Type == bytecode.ValObject && v.Data == obj.Data {
				seenObj = true
			}
		})
		return bytecode.NilValue, nil
	}

	if _, err := Call(ctx, g, id, []bytecode.Value{str, obj}, DummyPC); err != nil {
		t.Fatalf("pause(str, obj) failed: %v", err)
	}
	if !seenStr || !seenObj {
		t.Errorf("root scan missed heap values: str=%v obj=%v", seenStr, seenObj)
	}
	if roots != 2 {
		t.Errorf("root scan visited %d slots, want 2", roots)
	}
}
