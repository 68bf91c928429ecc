package bytecode

import (
	"errors"
	"math/big"
)

// ============================================================================
// 通用值运算
//
// 解释器和 JIT 编译代码共用的慢速路径。快速路径（双方均为立即整数）
// 由各执行层自行内联，溢出或类型不匹配时落到这里。
// ============================================================================

// 运算错误
var (
	ErrTypeMismatch  = errors.New("type mismatch")
	ErrDivideByZero  = errors.New("divide by zero")
	ErrNotComparable = errors.New("values are not comparable")
)

// AddIntInt 立即整数加法，溢出时提升为 Bignum
func AddIntInt(a, b int64) Value {
	r := a + b
	if FitsFixnum(r) {
		return Value{Type: ValInt, Data: r}
	}
	return NewBignum(new(big.Int).Add(big.NewInt(a), big.NewInt(b)))
}

// SubIntInt 立即整数减法，溢出时提升为 Bignum
func SubIntInt(a, b int64) Value {
	r := a - b
	if FitsFixnum(r) {
		return Value{Type: ValInt, Data: r}
	}
	return NewBignum(new(big.Int).Sub(big.NewInt(a), big.NewInt(b)))
}

// MulIntInt 立即整数乘法，溢出时提升为 Bignum
func MulIntInt(a, b int64) Value {
	if a == 0 || b == 0 {
		return Value{Type: ValInt, Data: int64(0)}
	}
	r := a * b
	// 操作数都在 62 位内，int64 溢出只能发生在乘法；用除法回验。
	if r/a == b && FitsFixnum(r) {
		return Value{Type: ValInt, Data: r}
	}
	return NewBignum(new(big.Int).Mul(big.NewInt(a), big.NewInt(b)))
}

// AddValues 加法
func AddValues(lhs, rhs Value) (Value, error) {
	switch {
	case lhs.Type == ValInt && rhs.Type == ValInt:
		return AddIntInt(lhs.AsInt(), rhs.AsInt()), nil
	case lhs.IsNumeric() && rhs.IsNumeric():
		if lhs.Type == ValFloat || rhs.Type == ValFloat {
			return NewFloat(lhs.asFloat() + rhs.asFloat()), nil
		}
		return NewBignum(new(big.Int).Add(lhs.asBig(), rhs.asBig())), nil
	}
	return NilValue, ErrTypeMismatch
}

// SubValues 减法
func SubValues(lhs, rhs Value) (Value, error) {
	switch {
	case lhs.Type == ValInt && rhs.Type == ValInt:
		return SubIntInt(lhs.AsInt(), rhs.AsInt()), nil
	case lhs.IsNumeric() && rhs.IsNumeric():
		if lhs.Type == ValFloat || rhs.Type == ValFloat {
			return NewFloat(lhs.asFloat() - rhs.asFloat()), nil
		}
		return NewBignum(new(big.Int).Sub(lhs.asBig(), rhs.asBig())), nil
	}
	return NilValue, ErrTypeMismatch
}

// MulValues 乘法
func MulValues(lhs, rhs Value) (Value, error) {
	switch {
	case lhs.Type == ValInt && rhs.Type == ValInt:
		return MulIntInt(lhs.AsInt(), rhs.AsInt()), nil
	case lhs.IsNumeric() && rhs.IsNumeric():
		if lhs.Type == ValFloat || rhs.Type == ValFloat {
			return NewFloat(lhs.asFloat() * rhs.asFloat()), nil
		}
		return NewBignum(new(big.Int).Mul(lhs.asBig(), rhs.asBig())), nil
	}
	return NilValue, ErrTypeMismatch
}

// DivValues 除法（整数为截断除法）
func DivValues(lhs, rhs Value) (Value, error) {
	switch {
	case lhs.Type == ValInt && rhs.Type == ValInt:
		b := rhs.AsInt()
		if b == 0 {
			return NilValue, ErrDivideByZero
		}
		// 立即范围内的商不会溢出
		return Value{Type: ValInt, Data: lhs.AsInt() / b}, nil
	case lhs.IsNumeric() && rhs.IsNumeric():
		if lhs.Type == ValFloat || rhs.Type == ValFloat {
			d := rhs.asFloat()
			if d == 0 {
				return NilValue, ErrDivideByZero
			}
			return NewFloat(lhs.asFloat() / d), nil
		}
		d := rhs.asBig()
		if d.Sign() == 0 {
			return NilValue, ErrDivideByZero
		}
		return NewBignum(new(big.Int).Quo(lhs.asBig(), d)), nil
	}
	return NilValue, ErrTypeMismatch
}

// NegValue 取负
func NegValue(v Value) (Value, error) {
	switch v.Type {
	case ValInt:
		// FixnumMin 的相反数越界，交给 Bignum 路径
		n := v.AsInt()
		if FitsFixnum(-n) {
			return Value{Type: ValInt, Data: -n}, nil
		}
		return NewBignum(new(big.Int).Neg(big.NewInt(n))), nil
	case ValBignum:
		return NewBignum(new(big.Int).Neg(v.AsBignum())), nil
	case ValFloat:
		return NewFloat(-v.AsFloat()), nil
	}
	return NilValue, ErrTypeMismatch
}

// CmpKind 比较运算种类
type CmpKind byte

const (
	CmpEq CmpKind = iota
	CmpNe
	CmpLt
	CmpLe
	CmpGt
	CmpGe
)

// String 返回比较运算符
func (k CmpKind) String() string {
	switch k {
	case CmpEq:
		return "=="
	case CmpNe:
		return "!="
	case CmpLt:
		return "<"
	case CmpLe:
		return "<="
	case CmpGt:
		return ">"
	default:
		return ">="
	}
}

// CmpValues 比较运算，结果为布尔值
func CmpValues(kind CmpKind, lhs, rhs Value) (Value, error) {
	switch kind {
	case CmpEq:
		return NewBool(lhs.Equals(rhs)), nil
	case CmpNe:
		return NewBool(!lhs.Equals(rhs)), nil
	}
	c, ok := lhs.Compare(rhs)
	if !ok {
		return NilValue, ErrNotComparable
	}
	switch kind {
	case CmpLt:
		return NewBool(c < 0), nil
	case CmpLe:
		return NewBool(c <= 0), nil
	case CmpGt:
		return NewBool(c > 0), nil
	default:
		return NewBool(c >= 0), nil
	}
}

// ConcatValues 字符串拼接，分配新字符串
func ConcatValues(lhs, rhs Value) (Value, error) {
	if lhs.Type != ValString || rhs.Type != ValString {
		return NilValue, ErrTypeMismatch
	}
	a, b := lhs.AsString(), rhs.AsString()
	buf := make([]byte, 0, len(a.B)+len(b.B))
	buf = append(buf, a.B...)
	buf = append(buf, b.B...)
	return Value{Type: ValString, Data: &StrObject{B: buf}}, nil
}
