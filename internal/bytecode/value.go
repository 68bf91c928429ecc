package bytecode

import (
	"fmt"
	"math/big"
)

// ============================================================================
// 运行时值表示
// ============================================================================

// ValueType 值类型标签
//
// 标签本身足以判定变体，无需解引用堆内存；唯一的例外是 ValObject，
// 其具体类型要从对象头（Class 指针）读取。
type ValueType byte

const (
	ValNil ValueType = iota
	ValBool
	ValInt    // 立即整数（62 位有符号）
	ValBignum // 大整数（堆分配，*big.Int）
	ValFloat
	ValString // 可变字符串（堆分配）
	ValObject // 通用堆对象
)

// String 返回类型名
func (t ValueType) String() string {
	switch t {
	case ValNil:
		return "nil"
	case ValBool:
		return "bool"
	case ValInt:
		return "int"
	case ValBignum:
		return "bignum"
	case ValFloat:
		return "float"
	case ValString:
		return "string"
	case ValObject:
		return "object"
	default:
		return "unknown"
	}
}

// 立即整数范围（62 位有符号）。
// 超出该范围的整数运算结果自动提升为 Bignum。
const (
	FixnumMax = int64(1)<<61 - 1
	FixnumMin = -(int64(1) << 61)
)

// FitsFixnum 判断 n 是否在立即整数范围内
func FitsFixnum(n int64) bool {
	return n >= FixnumMin && n <= FixnumMax
}

// StrObject 可变字符串对象
type StrObject struct {
	B []byte
}

// String 返回字符串内容
func (s *StrObject) String() string {
	return string(s.B)
}

// Append 原地追加
func (s *StrObject) Append(other *StrObject) {
	s.B = append(s.B, other.B...)
}

// Value 运行时值
type Value struct {
	Type ValueType
	Data interface{}
}

// 预定义常量值
var (
	NilValue   = Value{Type: ValNil}
	TrueValue  = Value{Type: ValBool, Data: true}
	FalseValue = Value{Type: ValBool, Data: false}
)

// NewNil 创建 nil 值
func NewNil() Value {
	return NilValue
}

// NewBool 创建布尔值
func NewBool(b bool) Value {
	if b {
		return TrueValue
	}
	return FalseValue
}

// NewInt 创建整数值
//
// 超出立即范围时自动装箱为 Bignum，调用方观察不到差别。
func NewInt(n int64) Value {
	if !FitsFixnum(n) {
		return Value{Type: ValBignum, Data: big.NewInt(n)}
	}
	return Value{Type: ValInt, Data: n}
}

// NewBignum 创建大整数值
//
// 若 b 落在立即范围内则归一化为 ValInt，保证同一数学值只有一种表示
// 参与快速路径判定。
func NewBignum(b *big.Int) Value {
	if b.IsInt64() {
		if n := b.Int64(); FitsFixnum(n) {
			return Value{Type: ValInt, Data: n}
		}
	}
	return Value{Type: ValBignum, Data: b}
}

// NewFloat 创建浮点数值
func NewFloat(f float64) Value {
	return Value{Type: ValFloat, Data: f}
}

// NewString 创建字符串值
func NewString(s string) Value {
	return Value{Type: ValString, Data: &StrObject{B: []byte(s)}}
}

// NewObject 创建对象值
func NewObject(obj *Object) Value {
	return Value{Type: ValObject, Data: obj}
}

// ============================================================================
// 判定与转换
// ============================================================================

// IsNil 检查是否为 nil
func (v Value) IsNil() bool {
	return v.Type == ValNil
}

// IsInt 检查是否为立即整数
func (v Value) IsInt() bool {
	return v.Type == ValInt
}

// IsNumeric 检查是否为数值（int/bignum/float）
func (v Value) IsNumeric() bool {
	return v.Type == ValInt || v.Type == ValBignum || v.Type == ValFloat
}

// IsTruthy 真值判定：nil 与 false 为假，其余为真
func (v Value) IsTruthy() bool {
	switch v.Type {
	case ValNil:
		return false
	case ValBool:
		return v.Data.(bool)
	default:
		return true
	}
}

// AsInt 获取立即整数
func (v Value) AsInt() int64 {
	return v.Data.(int64)
}

// AsBignum 获取大整数
func (v Value) AsBignum() *big.Int {
	return v.Data.(*big.Int)
}

// AsFloat 获取浮点数
func (v Value) AsFloat() float64 {
	return v.Data.(float64)
}

// AsBool 获取布尔值
func (v Value) AsBool() bool {
	return v.Data.(bool)
}

// AsString 获取字符串对象
func (v Value) AsString() *StrObject {
	return v.Data.(*StrObject)
}

// AsObject 获取对象
func (v Value) AsObject() *Object {
	return v.Data.(*Object)
}

// asBig 将数值统一为 *big.Int（仅 int/bignum）
func (v Value) asBig() *big.Int {
	if v.Type == ValInt {
		return big.NewInt(v.Data.(int64))
	}
	return v.Data.(*big.Int)
}

// asFloat 将数值统一为 float64
func (v Value) asFloat() float64 {
	switch v.Type {
	case ValInt:
		return float64(v.Data.(int64))
	case ValBignum:
		f, _ := new(big.Float).SetInt(v.Data.(*big.Int)).Float64()
		return f
	default:
		return v.Data.(float64)
	}
}

// ============================================================================
// 相等与排序
// ============================================================================

// Equals 值相等比较
//
// 数值变体按数学值比较（int/bignum/float 互相可比），
// 字符串按内容比较，对象按引用比较。
func (v Value) Equals(other Value) bool {
	if v.IsNumeric() && other.IsNumeric() {
		if v.Type == ValFloat || other.Type == ValFloat {
			return v.asFloat() == other.asFloat()
		}
		if v.Type == ValInt && other.Type == ValInt {
			return v.Data.(int64) == other.Data.(int64)
		}
		return v.asBig().Cmp(other.asBig()) == 0
	}
	if v.Type != other.Type {
		return false
	}
	switch v.Type {
	case ValNil:
		return true
	case ValBool:
		return v.Data.(bool) == other.Data.(bool)
	case ValString:
		return string(v.AsString().B) == string(other.AsString().B)
	case ValObject:
		return v.Data == other.Data
	default:
		return false
	}
}

// Compare 排序比较，返回 -1/0/1
//
// 仅定义在数值之间与字符串之间；其余组合返回 ok=false。
func (v Value) Compare(other Value) (int, bool) {
	if v.IsNumeric() && other.IsNumeric() {
		if v.Type == ValFloat || other.Type == ValFloat {
			a, b := v.asFloat(), other.asFloat()
			switch {
			case a < b:
				return -1, true
			case a > b:
				return 1, true
			default:
				return 0, true
			}
		}
		if v.Type == ValInt && other.Type == ValInt {
			a, b := v.Data.(int64), other.Data.(int64)
			switch {
			case a < b:
				return -1, true
			case a > b:
				return 1, true
			default:
				return 0, true
			}
		}
		return v.asBig().Cmp(other.asBig()), true
	}
	if v.Type == ValString && other.Type == ValString {
		a, b := string(v.AsString().B), string(other.AsString().B)
		switch {
		case a < b:
			return -1, true
		case a > b:
			return 1, true
		default:
			return 0, true
		}
	}
	return 0, false
}

// String 返回值的字符串表示
func (v Value) String() string {
	switch v.Type {
	case ValNil:
		return "nil"
	case ValBool:
		if v.Data.(bool) {
			return "true"
		}
		return "false"
	case ValInt:
		return fmt.Sprintf("%d", v.Data.(int64))
	case ValBignum:
		return v.Data.(*big.Int).String()
	case ValFloat:
		return fmt.Sprintf("%g", v.Data.(float64))
	case ValString:
		return v.AsString().String()
	case ValObject:
		obj := v.AsObject()
		return fmt.Sprintf("<%s instance>", obj.Class.Name)
	default:
		return "<unknown>"
	}
}
