package vm

import "github.com/rivalang/riva/internal/bytecode"

// ============================================================================
// 运行时辅助：两个执行层共用的通用值运算
//
// 解释器的指令处理器和编译代码的慢速路径都落到这里，
// 保证同一运算在任一层级产生完全相同的可观察结果。
// ============================================================================

// opSymbol 运算符显示名（错误消息用）
func opSymbol(op bytecode.OpCode) string {
	switch op {
	case bytecode.OpAdd, bytecode.OpAddImm:
		return "+"
	case bytecode.OpSub, bytecode.OpSubImm:
		return "-"
	case bytecode.OpMul:
		return "*"
	case bytecode.OpDiv:
		return "/"
	case bytecode.OpConcat:
		return ".."
	default:
		return op.String()
	}
}

// BinaryOp 执行一条通用二元运算
//
// 溢出提升产生的 Bignum 向分配器记账；字符串拼接经由分配器分配。
func BinaryOp(g *Globals, op bytecode.OpCode, lhs, rhs bytecode.Value) (bytecode.Value, error) {
	var (
		v   bytecode.Value
		err error
	)
	switch op {
	case bytecode.OpAdd, bytecode.OpAddImm:
		v, err = bytecode.AddValues(lhs, rhs)
	case bytecode.OpSub, bytecode.OpSubImm:
		v, err = bytecode.SubValues(lhs, rhs)
	case bytecode.OpMul:
		v, err = bytecode.MulValues(lhs, rhs)
	case bytecode.OpDiv:
		v, err = bytecode.DivValues(lhs, rhs)
	case bytecode.OpConcat:
		return ConcatStrings(g, lhs, rhs)
	default:
		if op.IsCmp() || op.IsCmpImm() {
			v, err = bytecode.CmpValues(bytecode.CmpKindOf(op), lhs, rhs)
		} else {
			return bytecode.NilValue, Faultf("BinaryOp on non-binary opcode %s", op)
		}
	}
	if err != nil {
		return bytecode.NilValue, wrapArithError(err, opSymbol(op), lhs, rhs)
	}
	if v.Type == bytecode.ValBignum {
		g.Alloc.NoteBignum()
	}
	return v, nil
}

// ConcatStrings 字符串拼接，经由外部分配器
func ConcatStrings(g *Globals, lhs, rhs bytecode.Value) (bytecode.Value, error) {
	if lhs.Type != bytecode.ValString || rhs.Type != bytecode.ValString {
		return bytecode.NilValue, NewUserError(ErrKindType,
			"unsupported operand types for ..: %s and %s", lhs.Type, rhs.Type)
	}
	a, b := lhs.AsString(), rhs.AsString()
	buf := make([]byte, 0, len(a.B)+len(b.B))
	buf = append(buf, a.B...)
	buf = append(buf, b.B...)
	return g.Alloc.AllocString(buf)
}

// Negate 一元取负
func Negate(g *Globals, v bytecode.Value) (bytecode.Value, error) {
	out, err := bytecode.NegValue(v)
	if err != nil {
		return bytecode.NilValue, wrapArithError(err, "-", v, v)
	}
	if out.Type == bytecode.ValBignum {
		g.Alloc.NoteBignum()
	}
	return out, nil
}

// LoadLiteral 取字面量；字符串字面量克隆一份可变副本，池本身保持只读
func LoadLiteral(g *Globals, fn *bytecode.Function, idx int32) (bytecode.Value, error) {
	lit := fn.Literal(idx)
	if lit.Type == bytecode.ValString {
		src := lit.AsString().B
		buf := make([]byte, len(src))
		copy(buf, src)
		return g.Alloc.AllocString(buf)
	}
	return lit, nil
}
