package vm

import "github.com/rivalang/riva/internal/bytecode"

// ============================================================================
// 运算点类型反馈
//
// 解释器在每个运算指令处记录见过的操作数类型，编译器据此做类型推测：
// 单态点生成守卫快路径，多态点直接落到通用辅助例程。
// ============================================================================

// 反馈点状态
const (
	fbEmpty byte = iota
	fbMono
	fbPoly
)

type feedbackCell struct {
	lhs, rhs bytecode.ValueType
	state    byte
}

// TypeFeedback 按指令下标的操作数类型档案
type TypeFeedback struct {
	cells []feedbackCell
}

// newTypeFeedback 创建档案
func newTypeFeedback(numInstrs int) *TypeFeedback {
	return &TypeFeedback{cells: make([]feedbackCell, numInstrs)}
}

// Record 记录一次观测
func (tf *TypeFeedback) Record(pc int, lhs, rhs bytecode.ValueType) {
	c := &tf.cells[pc]
	switch c.state {
	case fbEmpty:
		c.lhs, c.rhs, c.state = lhs, rhs, fbMono
	case fbMono:
		if c.lhs != lhs || c.rhs != rhs {
			c.state = fbPoly
		}
	}
}

// Observed 取观测结果；mono 为假表示该点尚无观测或已多态
func (tf *TypeFeedback) Observed(pc int) (lhs, rhs bytecode.ValueType, mono bool) {
	c := &tf.cells[pc]
	return c.lhs, c.rhs, c.state == fbMono
}
