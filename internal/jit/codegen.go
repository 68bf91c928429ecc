package jit

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/rivalang/riva/internal/bytecode"
	"github.com/rivalang/riva/internal/vm"
)

// ============================================================================
// 代码生成
//
// 每条字节码指令编译为一个 step 闭包，操作数下标、字面量、调用目标
// 都在编译期绑定。主循环与解释器同构（取步、前移游标、执行），
// 游标同样预先前移：跳转改写 st.pc，守卫失败把 st.pc-1 交给解释器。
// ============================================================================

// state 编译代码的帧内执行状态
type state struct {
	ctx  *vm.Context
	g    *vm.Globals
	base int
	pc   int

	done  bool
	deopt bool
	ret   bytecode.Value
}

// step 单指令步进函数
type step func(st *state) error

// codegen 翻译整个函数，返回统一入口与推测点数量
func (c *Compiler) codegen(g *vm.Globals, fi *vm.FuncInfo) (vm.EntryFn, int, error) {
	fn := fi.Fn
	steps := make([]step, len(fn.Code))
	specSites := 0
	for pc, ins := range fn.Code {
		s, speculative, err := c.compileInstr(fi, pc, ins)
		if err != nil {
			return nil, 0, err
		}
		steps[pc] = s
		if speculative {
			specSites++
		}
	}

	entry := func(ctx *vm.Context, g *vm.Globals) (bytecode.Value, error) {
		st := state{ctx: ctx, g: g, base: ctx.BP()}
		for !st.done {
			if st.pc < 0 || st.pc >= len(steps) {
				return bytecode.NilValue, vm.Faultf("program counter %d out of range in compiled %s", st.pc, fn.Name)
			}
			s := steps[st.pc]
			st.pc++
			if err := s(&st); err != nil {
				return bytecode.NilValue, err
			}
			if st.deopt {
				c.stats.Deopts++
				c.log.Debug("guard failure, deoptimizing",
					zap.String("func", fn.Name),
					zap.Int("pc", st.pc-1))
				return vm.Resume(ctx, g, st.pc-1)
			}
		}
		return st.ret, nil
	}
	return entry, specSites, nil
}

// compileInstr 翻译单条指令
func (c *Compiler) compileInstr(fi *vm.FuncInfo, pc int, ins bytecode.Instr) (step, bool, error) {
	fn := fi.Fn
	dst, lhs := ins.A, ins.B

	switch ins.Op {
	case bytecode.OpNop:
		return func(st *state) error { return nil }, false, nil

	case bytecode.OpInteger:
		v := bytecode.NewInt(int64(ins.Imm))
		return func(st *state) error {
			st.ctx.SetSlotAt(st.base, dst, v)
			return nil
		}, false, nil

	case bytecode.OpConst:
		idx := ins.Imm
		return func(st *state) error {
			v, err := vm.LoadLiteral(st.g, fn, idx)
			if err != nil {
				return err
			}
			st.ctx.SetSlotAt(st.base, dst, v)
			return nil
		}, false, nil

	case bytecode.OpNil:
		return func(st *state) error {
			st.ctx.SetSlotAt(st.base, dst, bytecode.NilValue)
			return nil
		}, false, nil

	case bytecode.OpMov:
		return func(st *state) error {
			st.ctx.SetSlotAt(st.base, dst, st.ctx.SlotAt(st.base, lhs))
			return nil
		}, false, nil

	case bytecode.OpNeg:
		return func(st *state) error {
			v, err := vm.Negate(st.g, st.ctx.SlotAt(st.base, lhs))
			if err != nil {
				return err
			}
			st.ctx.SetSlotAt(st.base, dst, v)
			return nil
		}, false, nil

	case bytecode.OpAdd, bytecode.OpSub, bytecode.OpMul, bytecode.OpDiv,
		bytecode.OpConcat,
		bytecode.OpCmpEq, bytecode.OpCmpNe, bytecode.OpCmpLt,
		bytecode.OpCmpLe, bytecode.OpCmpGt, bytecode.OpCmpGe:
		return c.compileBinary(fi, pc, ins, false)

	case bytecode.OpAddImm, bytecode.OpSubImm,
		bytecode.OpCmpEqImm, bytecode.OpCmpNeImm, bytecode.OpCmpLtImm,
		bytecode.OpCmpLeImm, bytecode.OpCmpGtImm, bytecode.OpCmpGeImm:
		return c.compileBinary(fi, pc, ins, true)

	case bytecode.OpNot:
		return func(st *state) error {
			v := bytecode.NewBool(!st.ctx.SlotAt(st.base, lhs).IsTruthy())
			st.ctx.SetSlotAt(st.base, dst, v)
			return nil
		}, false, nil

	case bytecode.OpBr:
		target := int(ins.Imm)
		return func(st *state) error {
			st.pc = target
			return nil
		}, false, nil

	case bytecode.OpCondBr:
		target := int(ins.Imm)
		return func(st *state) error {
			if st.ctx.SlotAt(st.base, dst).IsTruthy() {
				st.pc = target
			}
			return nil
		}, false, nil

	case bytecode.OpCondNotBr:
		target := int(ins.Imm)
		return func(st *state) error {
			if !st.ctx.SlotAt(st.base, dst).IsTruthy() {
				st.pc = target
			}
			return nil
		}, false, nil

	case bytecode.OpCall:
		id := bytecode.FuncId(ins.Imm)
		argc := int(ins.C)
		return func(st *state) error {
			v, err := vm.Call(st.ctx, st.g, id, st.ctx.ArgSlots(lhs, argc), vm.DummyPC)
			if err != nil {
				return err
			}
			st.ctx.SetSlotAt(st.base, dst, v)
			return nil
		}, false, nil

	case bytecode.OpCallDyn:
		name := fn.LiteralName(ins.Imm)
		site := fi.Site(pc)
		argc := int(ins.C)
		return func(st *state) error {
			id, err := vm.ResolveGlobal(st.g, site, name)
			if err != nil {
				return err
			}
			v, err := vm.Call(st.ctx, st.g, id, st.ctx.ArgSlots(lhs, argc), vm.DummyPC)
			if err != nil {
				return err
			}
			st.ctx.SetSlotAt(st.base, dst, v)
			return nil
		}, false, nil

	case bytecode.OpCallMethod:
		name := fn.LiteralName(ins.Imm)
		site := fi.Site(pc)
		argc := int(ins.C)
		return func(st *state) error {
			recv := st.ctx.SlotAt(st.base, lhs)
			id, err := vm.ResolveMethod(st.g, site, recv, name)
			if err != nil {
				return err
			}
			v, err := vm.Call(st.ctx, st.g, id, st.ctx.ArgSlots(lhs, argc), vm.DummyPC)
			if err != nil {
				return err
			}
			st.ctx.SetSlotAt(st.base, dst, v)
			return nil
		}, false, nil

	case bytecode.OpRet:
		return func(st *state) error {
			st.ret = st.ctx.SlotAt(st.base, dst)
			st.done = true
			return nil
		}, false, nil

	case bytecode.OpGetField:
		name := fn.LiteralName(ins.Imm)
		site := fi.Site(pc)
		return func(st *state) error {
			recv := st.ctx.SlotAt(st.base, lhs)
			off, err := vm.ResolveField(site, recv, name)
			if err != nil {
				return err
			}
			st.ctx.SetSlotAt(st.base, dst, recv.AsObject().GetSlot(off))
			return nil
		}, false, nil

	case bytecode.OpSetField:
		name := fn.LiteralName(ins.Imm)
		site := fi.Site(pc)
		return func(st *state) error {
			recv := st.ctx.SlotAt(st.base, dst)
			off, err := vm.ResolveField(site, recv, name)
			if err != nil {
				return err
			}
			recv.AsObject().SetSlot(off, st.ctx.SlotAt(st.base, lhs))
			return nil
		}, false, nil

	case bytecode.OpRaise:
		return func(st *state) error {
			v := st.ctx.SlotAt(st.base, dst)
			return &vm.UserError{Kind: vm.ErrKindRuntime, Message: v.String(), Payload: v}
		}, false, nil

	default:
		return nil, false, fmt.Errorf("jit: unsupported opcode %s at :%05d in %s", ins.Op, pc, fn.Name)
	}
}

// compileBinary 二元运算；单态整数点生成带守卫的快路径
func (c *Compiler) compileBinary(fi *vm.FuncInfo, pc int, ins bytecode.Instr, imm bool) (step, bool, error) {
	op := ins.Op
	dst, lhs, rhs := ins.A, ins.B, ins.C
	immVal := bytecode.NewInt(int64(ins.Imm))

	loadRHS := func(st *state) bytecode.Value {
		if imm {
			return immVal
		}
		return st.ctx.SlotAt(st.base, rhs)
	}
	generic := func(st *state) error {
		v, err := vm.BinaryOp(st.g, op, st.ctx.SlotAt(st.base, lhs), loadRHS(st))
		if err != nil {
			return err
		}
		st.ctx.SetSlotAt(st.base, dst, v)
		return nil
	}

	if !c.cfg.Speculate {
		return generic, false, nil
	}
	lt, rt, mono := fi.Feedback().Observed(pc)
	if !mono || lt != bytecode.ValInt || rt != bytecode.ValInt {
		return generic, false, nil
	}

	// 整数快路径：fast 为 nil 的运算（除法、拼接）不做推测
	var fast func(a, b int64) bytecode.Value
	switch op {
	case bytecode.OpAdd, bytecode.OpAddImm:
		fast = bytecode.AddIntInt
	case bytecode.OpSub, bytecode.OpSubImm:
		fast = bytecode.SubIntInt
	case bytecode.OpMul:
		fast = bytecode.MulIntInt
	default:
		if op.IsCmp() || op.IsCmpImm() {
			kind := bytecode.CmpKindOf(op)
			fast = func(a, b int64) bytecode.Value { return intCompare(kind, a, b) }
		}
	}
	if fast == nil {
		return generic, false, nil
	}

	return func(st *state) error {
		a := st.ctx.SlotAt(st.base, lhs)
		b := loadRHS(st)
		if a.Type != bytecode.ValInt || b.Type != bytecode.ValInt {
			st.deopt = true
			return nil
		}
		v := fast(a.AsInt(), b.AsInt())
		if v.Type == bytecode.ValBignum {
			st.g.Alloc.NoteBignum()
		}
		st.ctx.SetSlotAt(st.base, dst, v)
		return nil
	}, true, nil
}

// intCompare 定宽整数比较
func intCompare(kind bytecode.CmpKind, a, b int64) bytecode.Value {
	var r bool
	switch kind {
	case bytecode.CmpEq:
		r = a == b
	case bytecode.CmpNe:
		r = a != b
	case bytecode.CmpLt:
		r = a < b
	case bytecode.CmpLe:
		r = a <= b
	case bytecode.CmpGt:
		r = a > b
	case bytecode.CmpGe:
		r = a >= b
	}
	return bytecode.NewBool(r)
}
