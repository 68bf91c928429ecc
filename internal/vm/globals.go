package vm

import "github.com/rivalang/riva/internal/bytecode"

// ============================================================================
// 全局状态
//
// 规范钉定的三个长生命周期指针之一（另两个：执行上下文与解释器游标）。
// 持有常量无关的进程级状态：函数元数据表、类表、分配器、编译器挂钩。
// ============================================================================

// PromoteCompiler 晋升编译器挂钩（接口避免与 jit 包循环导入）
//
// Compile 在阈值跨越时被同步调用。ok 为假表示编译缺口：
// 该函数保持解释执行，不算错误。
type PromoteCompiler interface {
	Compile(g *Globals, fi *FuncInfo) (entry EntryFn, ok bool, err error)
}

// Globals 全局状态
type Globals struct {
	Funcs   *FnStore
	Classes map[string]*bytecode.Class
	Alloc   Allocator

	// 晋升编译器；nil 表示纯解释执行
	Compiler PromoteCompiler
}

// NewGlobals 创建全局状态
func NewGlobals(store *FnStore, alloc Allocator) *Globals {
	if alloc == nil {
		alloc = NewCountingAllocator(0)
	}
	return &Globals{
		Funcs:   store,
		Classes: make(map[string]*bytecode.Class),
		Alloc:   alloc,
	}
}

// DefineClass 登记类
func (g *Globals) DefineClass(c *bytecode.Class) {
	g.Classes[c.Name] = c
}

// Class 按名取类
func (g *Globals) Class(name string) (*bytecode.Class, bool) {
	c, ok := g.Classes[name]
	return c, ok
}
