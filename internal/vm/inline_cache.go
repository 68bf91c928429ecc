package vm

import "github.com/rivalang/riva/internal/bytecode"

// ============================================================================
// 单态内联缓存
//
// 每个动态分派点（按名调用、方法调用、字段访问）挂一条缓存，
// 记住上一次解析的结果和守卫值。命中：一次守卫比较，O(1)，不查表。
// 未命中：走完整解析，然后原地覆盖。接收者形状反复变化的调用点
// 退化为"每次未命中重解析"，这是设计接受的成本。
// 缓存绝不跨调用点共享；解释器与编译代码指向同一调用点时共用同一条。
// ============================================================================

// ICEntry 调用点缓存
type ICEntry struct {
	// 守卫：对象接收者比较类指针；其余接收者比较类型标签；
	// 按名调用比较全局表代数。
	Class *bytecode.Class
	Tag   bytecode.ValueType
	Gen   uint32

	// 解析结果
	Target bytecode.FuncId
	Offset int

	valid bool

	// 统计
	hits, misses int64
}

// Hits 命中次数
func (ic *ICEntry) Hits() int64 { return ic.hits }

// Misses 未命中次数
func (ic *ICEntry) Misses() int64 { return ic.misses }

// ResolveGlobal 按名调用的解析：守卫为全局表代数
func ResolveGlobal(g *Globals, ic *ICEntry, name string) (bytecode.FuncId, error) {
	if ic.valid && ic.Gen == g.Funcs.Generation() {
		ic.hits++
		return ic.Target, nil
	}
	ic.misses++
	fi, ok := g.Funcs.LookupName(name)
	if !ok {
		return bytecode.NoFuncId, NewUserError(ErrKindNoFunc, "undefined function %q", name)
	}
	ic.Gen = g.Funcs.Generation()
	ic.Target = fi.ID
	ic.valid = true
	return fi.ID, nil
}

// ResolveMethod 方法调用的解析：守卫为接收者形状
func ResolveMethod(g *Globals, ic *ICEntry, recv bytecode.Value, name string) (bytecode.FuncId, error) {
	if recv.Type != bytecode.ValObject {
		return bytecode.NoFuncId, NewUserError(ErrKindNoMethod,
			"undefined method %q for %s", name, recv.Type)
	}
	class := recv.AsObject().Class
	if ic.valid && ic.Class == class {
		ic.hits++
		return ic.Target, nil
	}
	ic.misses++
	id, ok := class.ResolveMethod(name)
	if !ok {
		return bytecode.NoFuncId, NewUserError(ErrKindNoMethod,
			"undefined method %q for %s", name, class.Name)
	}
	ic.Class = class
	ic.Tag = recv.Type
	ic.Target = id
	ic.valid = true
	return id, nil
}

// ResolveField 字段访问的解析：守卫为类指针，结果为槽偏移
func ResolveField(ic *ICEntry, recv bytecode.Value, name string) (int, error) {
	if recv.Type != bytecode.ValObject {
		return 0, NewUserError(ErrKindType, "field access %q on %s", name, recv.Type)
	}
	class := recv.AsObject().Class
	if ic.valid && ic.Class == class {
		ic.hits++
		return ic.Offset, nil
	}
	ic.misses++
	off, ok := class.FieldOffset(name)
	if !ok {
		return 0, NewUserError(ErrKindRuntime, "unknown field %q for %s", name, class.Name)
	}
	ic.Class = class
	ic.Tag = recv.Type
	ic.Offset = off
	ic.valid = true
	return off, nil
}
