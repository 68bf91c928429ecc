package vm

import (
	"errors"
	"fmt"

	"github.com/rivalang/riva/internal/bytecode"
)

// ============================================================================
// 错误分层
//
// 用户级错误：带标签的提前返回，沿帧链向上退栈，直到保护帧或上下文顶部；
// 语言自身的错误处理结构（不在本核心内）基于这个退栈原语实现。
// 引擎故障：帧损坏、非法操作码、分配耗尽等，对上下文致命，不可捕获。
// ============================================================================

// 用户级错误类别
const (
	ErrKindArity    = "ArityError"
	ErrKindType     = "TypeError"
	ErrKindNoMethod = "NoMethodError"
	ErrKindZeroDiv  = "ZeroDivisionError"
	ErrKindStack    = "StackOverflow"
	ErrKindRuntime  = "RuntimeError"
	ErrKindNoFunc   = "UndefinedFunction"
)

// UserError 用户级错误
type UserError struct {
	Kind    string
	Message string
	Payload bytecode.Value // raise 携带的值，默认 nil
}

// Error 实现 error
func (e *UserError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewUserError 创建用户级错误
func NewUserError(kind, format string, args ...interface{}) *UserError {
	return &UserError{Kind: kind, Message: fmt.Sprintf(format, args...), Payload: bytecode.NilValue}
}

// EngineFault 引擎内部故障
type EngineFault struct {
	Reason string
}

// Error 实现 error
func (e *EngineFault) Error() string {
	return "engine fault: " + e.Reason
}

// Faultf 创建引擎故障
func Faultf(format string, args ...interface{}) *EngineFault {
	return &EngineFault{Reason: fmt.Sprintf(format, args...)}
}

// AsUserError 判别用户级错误
func AsUserError(err error) (*UserError, bool) {
	var ue *UserError
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}

// IsFault 判别引擎故障
func IsFault(err error) bool {
	var ef *EngineFault
	return errors.As(err, &ef)
}

// wrapArithError 将值运算错误映射为用户级错误
func wrapArithError(err error, op string, lhs, rhs bytecode.Value) error {
	switch err {
	case bytecode.ErrDivideByZero:
		return NewUserError(ErrKindZeroDiv, "divided by 0")
	case bytecode.ErrTypeMismatch:
		return NewUserError(ErrKindType, "unsupported operand types for %s: %s and %s",
			op, lhs.Type, rhs.Type)
	case bytecode.ErrNotComparable:
		return NewUserError(ErrKindType, "comparison of %s with %s failed", lhs.Type, rhs.Type)
	default:
		return err
	}
}
