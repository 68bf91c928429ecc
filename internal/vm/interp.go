package vm

import "github.com/rivalang/riva/internal/bytecode"

// ============================================================================
// 字节码解释器（解释层）
//
// 指令分派表方案：每个操作码一个处理函数，主循环只做取指、前移游标、
// 查表分派。处理函数可以改写游标（跳转）或宣告帧结束（返回）。
//
// 游标预先前移：处理函数看到的 in.pc 已指向下一条指令，
// 当前指令下标为 in.pc-1（反馈记录与调用点缓存都用它作键）。
// ============================================================================

// interp 单帧解释状态
type interp struct {
	ctx  *Context
	g    *Globals
	fi   *FuncInfo
	fn   *bytecode.Function
	base int
	pc   int

	done bool
	ret  bytecode.Value
}

// get 读本帧槽
func (in *interp) get(reg uint16) bytecode.Value {
	return in.ctx.slots[in.base+int(reg)]
}

// set 写本帧槽
func (in *interp) set(reg uint16, v bytecode.Value) {
	in.ctx.slots[in.base+int(reg)] = v
}

// opHandler 指令处理函数
type opHandler func(in *interp, ins bytecode.Instr) error

// dispatchTable 操作码分派表；未注册的槽位即非法操作码
var dispatchTable [256]opHandler

func init() {
	dispatchTable[bytecode.OpNop] = opNop
	dispatchTable[bytecode.OpInteger] = opInteger
	dispatchTable[bytecode.OpConst] = opConst
	dispatchTable[bytecode.OpNil] = opNil
	dispatchTable[bytecode.OpMov] = opMov
	dispatchTable[bytecode.OpNeg] = opNeg
	dispatchTable[bytecode.OpAdd] = opBinary
	dispatchTable[bytecode.OpSub] = opBinary
	dispatchTable[bytecode.OpMul] = opBinary
	dispatchTable[bytecode.OpDiv] = opBinary
	dispatchTable[bytecode.OpAddImm] = opBinaryImm
	dispatchTable[bytecode.OpSubImm] = opBinaryImm
	for op := bytecode.OpCmpEq; op <= bytecode.OpCmpGe; op++ {
		dispatchTable[op] = opBinary
	}
	for op := bytecode.OpCmpEqImm; op <= bytecode.OpCmpGeImm; op++ {
		dispatchTable[op] = opBinaryImm
	}
	dispatchTable[bytecode.OpNot] = opNot
	dispatchTable[bytecode.OpConcat] = opBinary
	dispatchTable[bytecode.OpBr] = opBr
	dispatchTable[bytecode.OpCondBr] = opCondBr
	dispatchTable[bytecode.OpCondNotBr] = opCondNotBr
	dispatchTable[bytecode.OpCall] = opCall
	dispatchTable[bytecode.OpCallDyn] = opCallDyn
	dispatchTable[bytecode.OpCallMethod] = opCallMethod
	dispatchTable[bytecode.OpRet] = opRet
	dispatchTable[bytecode.OpNewObject] = opNewObject
	dispatchTable[bytecode.OpGetField] = opGetField
	dispatchTable[bytecode.OpSetField] = opSetField
	dispatchTable[bytecode.OpRaise] = opRaise
}

// interpEntry 解释层的统一入口：从帧头的 FuncId 自举，程序点 0 起步
func interpEntry(ctx *Context, g *Globals) (bytecode.Value, error) {
	return Resume(ctx, g, 0)
}

// Resume 在当前帧上从给定程序点开始（或继续）解释执行
//
// 既是解释层入口（pc=0），也是去优化的恢复操作：编译代码的守卫
// 失败后，以失败指令的程序点调用 Resume，帧槽里已是解释器期望的
// 装箱值布局，执行无缝接续。
func Resume(ctx *Context, g *Globals, pc int) (bytecode.Value, error) {
	fr := ctx.CurrentFrame()
	fi, err := g.Funcs.Lookup(fr.Meta.FuncID())
	if err != nil {
		return bytecode.NilValue, err
	}
	if fi.Fn == nil {
		return bytecode.NilValue, Faultf("interpret of non-bytecode func[%d] %s", fi.ID, fi.Name)
	}
	in := interp{ctx: ctx, g: g, fi: fi, fn: fi.Fn, base: fr.Base, pc: pc}
	for !in.done {
		if in.pc < 0 || in.pc >= len(in.fn.Code) {
			return bytecode.NilValue, Faultf("program counter %d out of range in %s", in.pc, in.fn.Name)
		}
		ins := in.fn.Code[in.pc]
		in.pc++
		h := dispatchTable[ins.Op]
		if h == nil {
			return bytecode.NilValue, Faultf("invalid opcode %d at :%05d in %s", ins.Op, in.pc-1, in.fn.Name)
		}
		if err := h(&in, ins); err != nil {
			return bytecode.NilValue, err
		}
	}
	return in.ret, nil
}

// ----------------------------------------------------------------------------
// 常量与搬移
// ----------------------------------------------------------------------------

func opNop(in *interp, ins bytecode.Instr) error {
	return nil
}

func opInteger(in *interp, ins bytecode.Instr) error {
	in.set(ins.A, bytecode.NewInt(int64(ins.Imm)))
	return nil
}

func opConst(in *interp, ins bytecode.Instr) error {
	v, err := LoadLiteral(in.g, in.fn, ins.Imm)
	if err != nil {
		return err
	}
	in.set(ins.A, v)
	return nil
}

func opNil(in *interp, ins bytecode.Instr) error {
	in.set(ins.A, bytecode.NilValue)
	return nil
}

func opMov(in *interp, ins bytecode.Instr) error {
	in.set(ins.A, in.get(ins.B))
	return nil
}

// ----------------------------------------------------------------------------
// 算术、比较、逻辑
// ----------------------------------------------------------------------------

func opNeg(in *interp, ins bytecode.Instr) error {
	operand := in.get(ins.B)
	in.fi.feedback.Record(in.pc-1, operand.Type, operand.Type)
	v, err := Negate(in.g, operand)
	if err != nil {
		return err
	}
	in.set(ins.A, v)
	return nil
}

func opBinary(in *interp, ins bytecode.Instr) error {
	lhs, rhs := in.get(ins.B), in.get(ins.C)
	in.fi.feedback.Record(in.pc-1, lhs.Type, rhs.Type)
	v, err := BinaryOp(in.g, ins.Op, lhs, rhs)
	if err != nil {
		return err
	}
	in.set(ins.A, v)
	return nil
}

func opBinaryImm(in *interp, ins bytecode.Instr) error {
	lhs := in.get(ins.B)
	in.fi.feedback.Record(in.pc-1, lhs.Type, bytecode.ValInt)
	v, err := BinaryOp(in.g, ins.Op, lhs, bytecode.NewInt(int64(ins.Imm)))
	if err != nil {
		return err
	}
	in.set(ins.A, v)
	return nil
}

func opNot(in *interp, ins bytecode.Instr) error {
	in.set(ins.A, bytecode.NewBool(!in.get(ins.B).IsTruthy()))
	return nil
}

// ----------------------------------------------------------------------------
// 跳转
// ----------------------------------------------------------------------------

func opBr(in *interp, ins bytecode.Instr) error {
	in.pc = int(ins.Imm)
	return nil
}

func opCondBr(in *interp, ins bytecode.Instr) error {
	if in.get(ins.A).IsTruthy() {
		in.pc = int(ins.Imm)
	}
	return nil
}

func opCondNotBr(in *interp, ins bytecode.Instr) error {
	if !in.get(ins.A).IsTruthy() {
		in.pc = int(ins.Imm)
	}
	return nil
}

// ----------------------------------------------------------------------------
// 调用与返回
// ----------------------------------------------------------------------------

// doCall 解释器侧的调用收尾：参数窗口取自本帧，经统一调用路径转移控制
func (in *interp) doCall(ins bytecode.Instr, id bytecode.FuncId) error {
	lo := in.base + int(ins.B)
	args := in.ctx.slots[lo : lo+int(ins.C)]
	v, err := Call(in.ctx, in.g, id, args, in.pc-1)
	if err != nil {
		return err
	}
	in.set(ins.A, v)
	return nil
}

func opCall(in *interp, ins bytecode.Instr) error {
	return in.doCall(ins, bytecode.FuncId(ins.Imm))
}

func opCallDyn(in *interp, ins bytecode.Instr) error {
	name := in.fn.LiteralName(ins.Imm)
	id, err := ResolveGlobal(in.g, in.fi.Site(in.pc-1), name)
	if err != nil {
		return err
	}
	return in.doCall(ins, id)
}

func opCallMethod(in *interp, ins bytecode.Instr) error {
	recv := in.get(ins.B)
	name := in.fn.LiteralName(ins.Imm)
	id, err := ResolveMethod(in.g, in.fi.Site(in.pc-1), recv, name)
	if err != nil {
		return err
	}
	// 接收者占参数窗口的第一个槽
	return in.doCall(ins, id)
}

func opRet(in *interp, ins bytecode.Instr) error {
	in.ret = in.get(ins.A)
	in.done = true
	return nil
}

// ----------------------------------------------------------------------------
// 对象操作
// ----------------------------------------------------------------------------

func opNewObject(in *interp, ins bytecode.Instr) error {
	name := in.fn.LiteralName(ins.Imm)
	class, ok := in.g.Class(name)
	if !ok {
		return NewUserError(ErrKindRuntime, "unknown class %q", name)
	}
	v, err := in.g.Alloc.AllocObject(class)
	if err != nil {
		return err
	}
	in.set(ins.A, v)
	return nil
}

func opGetField(in *interp, ins bytecode.Instr) error {
	recv := in.get(ins.B)
	off, err := ResolveField(in.fi.Site(in.pc-1), recv, in.fn.LiteralName(ins.Imm))
	if err != nil {
		return err
	}
	in.set(ins.A, recv.AsObject().GetSlot(off))
	return nil
}

func opSetField(in *interp, ins bytecode.Instr) error {
	recv := in.get(ins.A)
	off, err := ResolveField(in.fi.Site(in.pc-1), recv, in.fn.LiteralName(ins.Imm))
	if err != nil {
		return err
	}
	recv.AsObject().SetSlot(off, in.get(ins.B))
	return nil
}

// ----------------------------------------------------------------------------
// 错误
// ----------------------------------------------------------------------------

func opRaise(in *interp, ins bytecode.Instr) error {
	v := in.get(ins.A)
	return &UserError{Kind: ErrKindRuntime, Message: v.String(), Payload: v}
}
