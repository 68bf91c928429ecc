package vm

import (
	"math/big"

	"github.com/rivalang/riva/internal/bytecode"
)

// ============================================================================
// 分配器/收集器挂钩
//
// 回收策略在引擎之外；核心只做两件事：
//  1. 所有堆变体的显式分配走 Allocator；
//  2. 收集器暂停时通过 Context.VisitRoots 枚举全部活跃槽。
// 分配失败对执行上下文致命（引擎故障），不可局部恢复。
// ============================================================================

// Allocator 外部分配器接口
type Allocator interface {
	AllocString(s []byte) (bytecode.Value, error)
	AllocBignum(b *big.Int) (bytecode.Value, error)
	AllocObject(c *bytecode.Class) (bytecode.Value, error)

	// NoteBignum 记账：算术溢出提升在值运算层内部装箱，这里只计数
	NoteBignum()
}

// CountingAllocator 缺省分配器：委托宿主堆，计数并支持上限
//
// limit 为 0 表示不设限；超限时返回引擎故障，模拟分配耗尽。
type CountingAllocator struct {
	strings int64
	bignums int64
	objects int64
	limit   int64
}

// NewCountingAllocator 创建缺省分配器
func NewCountingAllocator(limit int64) *CountingAllocator {
	return &CountingAllocator{limit: limit}
}

// Allocs 已分配总数
func (a *CountingAllocator) Allocs() int64 {
	return a.strings + a.bignums + a.objects
}

// checkLimit 上限检查
func (a *CountingAllocator) checkLimit() error {
	if a.limit > 0 && a.Allocs() >= a.limit {
		return Faultf("allocator exhausted after %d allocations", a.Allocs())
	}
	return nil
}

// AllocString 分配可变字符串
func (a *CountingAllocator) AllocString(s []byte) (bytecode.Value, error) {
	if err := a.checkLimit(); err != nil {
		return bytecode.NilValue, err
	}
	a.strings++
	return bytecode.Value{Type: bytecode.ValString, Data: &bytecode.StrObject{B: s}}, nil
}

// AllocBignum 分配大整数
func (a *CountingAllocator) AllocBignum(b *big.Int) (bytecode.Value, error) {
	if err := a.checkLimit(); err != nil {
		return bytecode.NilValue, err
	}
	a.bignums++
	return bytecode.NewBignum(b), nil
}

// AllocObject 分配对象实例
func (a *CountingAllocator) AllocObject(c *bytecode.Class) (bytecode.Value, error) {
	if err := a.checkLimit(); err != nil {
		return bytecode.NilValue, err
	}
	a.objects++
	return bytecode.NewObject(bytecode.NewInstance(c)), nil
}

// NoteBignum 提升记账
func (a *CountingAllocator) NoteBignum() {
	a.bignums++
}
