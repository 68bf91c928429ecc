package vm

import "github.com/rivalang/riva/internal/bytecode"

// ============================================================================
// 统一调用路径
//
// 两个层级共用的分派桩。一次调用的固定步骤：
//
//	1. 按 FuncId 查元数据记录（元数、层级、入口出自同一条记录）
//	2. 元数检查
//	3. 调用者义务：参数写进新帧槽窗口，然后压帧写 Meta 字
//	4. 调用计数；恰好跨过阈值时同步触发晋升编译
//	5. 经记录里的入口转移控制——调用方不感知被调方层级
//
// 晋升检查发生在控制转移之前，所以跨过阈值的那一次调用
// 已经执行编译产物。
// ============================================================================

// Call 以值切片为参数调用 funcs[id]，savedPC 为调用者的解释器游标
// （编译调用方传 DummyPC）。返回被调方的返回值。
func Call(ctx *Context, g *Globals, id bytecode.FuncId, args []bytecode.Value, savedPC int) (bytecode.Value, error) {
	fi, err := g.Funcs.Lookup(id)
	if err != nil {
		return bytecode.NilValue, err
	}
	if err := checkArity(fi, len(args)); err != nil {
		return bytecode.NilValue, err
	}

	if g.Funcs.RecordInvocation(fi) &&
		fi.tier == TierInterpreted && !fi.noPromote && g.Compiler != nil {
		if err := promote(g, fi); err != nil {
			return bytecode.NilValue, err
		}
	}

	if err := ctx.WriteArgs(args); err != nil {
		return bytecode.NilValue, err
	}
	numSlots := len(args)
	if fi.Fn != nil {
		numSlots = fi.Fn.NumRegs
		if len(args) > numSlots {
			numSlots = len(args)
		}
	}
	base, err := ctx.PushFrame(MakeMeta(fi.tier, fi.ID), numSlots, savedPC)
	if err != nil {
		return bytecode.NilValue, err
	}
	// 参数之上的局部与临时槽清为 nil，根扫描只会看到合法值
	ctx.clearSlots(base+len(args), base+numSlots)
	defer ctx.PopFrame()

	return fi.entry(ctx, g)
}

// CallName 按名调用（宿主入口用；解释器的按名调用走调用点缓存）
func CallName(ctx *Context, g *Globals, name string, args []bytecode.Value) (bytecode.Value, error) {
	fi, ok := g.Funcs.LookupName(name)
	if !ok {
		return bytecode.NilValue, NewUserError(ErrKindNoFunc, "undefined function %q", name)
	}
	return Call(ctx, g, fi.ID, args, DummyPC)
}

// ProtectedCall 保护调用：用户级错误退栈到此为止，作为结果返回
//
// 引擎故障不被拦截，原样上抛。语言层的错误捕获结构基于这个原语。
func ProtectedCall(ctx *Context, g *Globals, id bytecode.FuncId, args []bytecode.Value) (bytecode.Value, *UserError, error) {
	v, err := Call(ctx, g, id, args, DummyPC)
	if err != nil {
		if ue, ok := AsUserError(err); ok {
			return bytecode.NilValue, ue, nil
		}
		return bytecode.NilValue, nil, err
	}
	return v, nil, nil
}

// checkArity 元数检查；变参函数接受不少于固定元数的实参
func checkArity(fi *FuncInfo, argc int) error {
	if fi.Variadic {
		if argc < fi.Arity {
			return NewUserError(ErrKindArity,
				"wrong number of arguments for %s (given %d, expected %d+)", fi.Name, argc, fi.Arity)
		}
		return nil
	}
	if argc != fi.Arity {
		return NewUserError(ErrKindArity,
			"wrong number of arguments for %s (given %d, expected %d)", fi.Name, argc, fi.Arity)
	}
	return nil
}

// promote 同步晋升：编译成功则切换层级，编译缺口则固定在解释层
func promote(g *Globals, fi *FuncInfo) error {
	entry, ok, err := g.Compiler.Compile(g, fi)
	if err != nil || !ok {
		// 编译器内部错误与能力缺口同样处理：该函数不再尝试晋升
		g.Funcs.DisablePromotion(fi)
		return nil
	}
	return g.Funcs.Promote(fi.ID, entry)
}
