package vm

import (
	"fmt"

	"github.com/rivalang/riva/internal/bytecode"
)

// ============================================================================
// 函数元数据表
//
// 每个已定义函数一条记录：字节码、元数（arity）、当前层级、调用计数，
// 以及晋升后的入口。层级变迁单向且一次性：Interpreted -> Compiled，
// 绝不回退；Native 是注册即终态的辅助例程层级。
// 上下文单线程，记录的读写无需加锁。
// ============================================================================

// EntryFn 统一入口签名：引擎状态作为前置参数，帧已由调用者备好
type EntryFn func(ctx *Context, g *Globals) (bytecode.Value, error)

// NativeFn 原生辅助例程
type NativeFn func(g *Globals, args []bytecode.Value) (bytecode.Value, error)

// FuncInfo 单函数元数据记录
type FuncInfo struct {
	ID       bytecode.FuncId
	Name     string
	Arity    int
	Variadic bool

	// 字节码（解释与编译层）；原生层为 nil
	Fn *bytecode.Function

	tier  Tier
	entry EntryFn
	calls int64

	// 编译缺口：保持解释执行，不再重试
	noPromote bool

	// 每调用点内联缓存（按指令下标），含动态分派点的函数才分配
	sites []ICEntry

	// 运算点类型反馈，喂给编译器做类型推测
	feedback *TypeFeedback
}

// Tier 当前层级
func (f *FuncInfo) Tier() Tier {
	return f.tier
}

// Entry 当前入口（与层级出自同一条记录，调用方读取即得一致视图）
func (f *FuncInfo) Entry() EntryFn {
	return f.entry
}

// Calls 调用计数
func (f *FuncInfo) Calls() int64 {
	return f.calls
}

// Feedback 类型反馈
func (f *FuncInfo) Feedback() *TypeFeedback {
	return f.feedback
}

// Site 取调用点缓存
func (f *FuncInfo) Site(pc int) *ICEntry {
	return &f.sites[pc]
}

// FnStore 函数元数据表
type FnStore struct {
	infos  []*FuncInfo
	byName map[string]bytecode.FuncId

	// 晋升阈值（调用次数）
	threshold int64

	// 按名解析的代数：重定义使既有调用点缓存失效
	generation uint32
}

// NewFnStore 创建元数据表
func NewFnStore(threshold int64) *FnStore {
	return &FnStore{
		byName:    make(map[string]bytecode.FuncId),
		threshold: threshold,
	}
}

// Threshold 晋升阈值
func (s *FnStore) Threshold() int64 {
	return s.threshold
}

// Generation 当前按名解析代数
func (s *FnStore) Generation() uint32 {
	return s.generation
}

// NumFuncs 记录数
func (s *FnStore) NumFuncs() int {
	return len(s.infos)
}

// Lookup 按标识取记录
//
// 合法标识只在注册时铸出，查不到即帧或字节码已损坏，属引擎故障。
func (s *FnStore) Lookup(id bytecode.FuncId) (*FuncInfo, error) {
	if int(id) >= len(s.infos) {
		return nil, Faultf("lookup of unminted FuncId %d", id)
	}
	return s.infos[id], nil
}

// LookupName 按名取记录
func (s *FnStore) LookupName(name string) (*FuncInfo, bool) {
	id, ok := s.byName[name]
	if !ok {
		return nil, false
	}
	return s.infos[id], true
}

// register 铸出新标识并登记记录
func (s *FnStore) register(fi *FuncInfo) bytecode.FuncId {
	id := bytecode.FuncId(len(s.infos))
	fi.ID = id
	s.infos = append(s.infos, fi)
	if fi.Name != "" {
		if _, redefined := s.byName[fi.Name]; redefined {
			s.generation++
		}
		s.byName[fi.Name] = id
	}
	return id
}

// RegisterFunction 登记单个字节码函数
func (s *FnStore) RegisterFunction(fn *bytecode.Function) bytecode.FuncId {
	fi := &FuncInfo{
		Name:     fn.Name,
		Arity:    fn.Arity,
		Variadic: fn.Variadic,
		Fn:       fn,
		tier:     TierInterpreted,
		entry:    interpEntry,
		feedback: newTypeFeedback(len(fn.Code)),
	}
	if hasDynamicSites(fn) {
		fi.sites = make([]ICEntry, len(fn.Code))
	}
	return s.register(fi)
}

// RegisterModule 登记模块内全部函数，返回按模块下标对应的标识
//
// 模块内的 OpCall 以模块局部下标指称被调方，这里重写为全局标识。
func (s *FnStore) RegisterModule(m *bytecode.Module) ([]bytecode.FuncId, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	ids := make([]bytecode.FuncId, len(m.Functions))
	for i, fn := range m.Functions {
		ids[i] = s.RegisterFunction(fn)
	}
	for _, fn := range m.Functions {
		for pc := range fn.Code {
			ins := &fn.Code[pc]
			if ins.Op == bytecode.OpCall {
				local := int(ins.Imm)
				if local < 0 || local >= len(ids) {
					return nil, fmt.Errorf("vm: call target %d out of module range in %s", local, fn.Name)
				}
				ins.Imm = int32(ids[local])
			}
		}
	}
	return ids, nil
}

// RegisterNative 登记原生辅助例程（终态层级 Native）
func (s *FnStore) RegisterNative(name string, arity int, variadic bool, fn NativeFn) bytecode.FuncId {
	fi := &FuncInfo{
		Name:     name,
		Arity:    arity,
		Variadic: variadic,
		tier:     TierNative,
	}
	fi.entry = makeNativeEntry(fi, fn)
	return s.register(fi)
}

// RecordInvocation 递增调用计数，返回是否恰好跨过晋升阈值
func (s *FnStore) RecordInvocation(fi *FuncInfo) bool {
	fi.calls++
	return fi.calls == s.threshold
}

// Promote 唯一的层级变迁点：Interpreted -> Compiled
//
// 之后的每次 Lookup（同一上下文内即下一次调用分派之前）都观察到
// 新层级与新入口。违反单向不变量属引擎故障。
func (s *FnStore) Promote(id bytecode.FuncId, entry EntryFn) error {
	fi, err := s.Lookup(id)
	if err != nil {
		return err
	}
	if fi.tier != TierInterpreted {
		return Faultf("promote of %s func[%d] violates one-way tier transition", fi.tier, id)
	}
	if entry == nil {
		return Faultf("promote of func[%d] with nil entry", id)
	}
	fi.tier = TierCompiled
	fi.entry = entry
	return nil
}

// DisablePromotion 标记编译缺口：保持解释执行，不再重试
func (s *FnStore) DisablePromotion(fi *FuncInfo) {
	fi.noPromote = true
}

// hasDynamicSites 是否含有需要内联缓存的动态分派点
func hasDynamicSites(fn *bytecode.Function) bool {
	for _, ins := range fn.Code {
		switch ins.Op {
		case bytecode.OpCallDyn, bytecode.OpCallMethod, bytecode.OpGetField, bytecode.OpSetField:
			return true
		}
	}
	return false
}

// makeNativeEntry 将原生例程包装为统一入口：从当前帧读参数
func makeNativeEntry(fi *FuncInfo, fn NativeFn) EntryFn {
	return func(ctx *Context, g *Globals) (bytecode.Value, error) {
		fr := ctx.CurrentFrame()
		args := ctx.slots[fr.Base:fr.Top]
		return fn(g, args)
	}
}
