package vm

import (
	"fmt"

	"github.com/rivalang/riva/internal/bytecode"
)

// ============================================================================
// 执行上下文与调用帧 ABI
//
// 两个层级（解释、编译）以及原生辅助例程共用同一套帧布局：
//
//	Frame 头:  SavedBP  调用者帧基址（被调方入口时保存）
//	           SavedPC  调用者解释器游标；编译帧写 DummyPC
//	           Meta     {层级标签, FuncId} 打包字
//	槽区:      slots[Base .. Top)  参数在最低编号，之后是局部与临时
//
// 约定：Meta 字与参数槽由调用者在转移控制前写好；被调方只负责
// 保存上一帧基址。长生命周期的引擎状态（Context、Globals、pc）
// 作为每个入口函数的前置参数传递——这是规范要求的"固定位置"
// 在不可钉寄存器的宿主语言里的形态。
// ============================================================================

// DummyPC 编译帧在 SavedPC 槽位携带的占位值
const DummyPC = -1

// 缺省容量
const (
	DefaultStackSlots = 64 * 1024
	DefaultMaxFrames  = 4096
)

// Tier 执行层级
type Tier int32

const (
	TierInterpreted Tier = iota // 解释执行
	TierCompiled                // 已编译
	TierNative                  // 原生辅助例程（保留的第三层级标签）
)

// String 返回层级名
func (t Tier) String() string {
	switch t {
	case TierInterpreted:
		return "interpreted"
	case TierCompiled:
		return "compiled"
	case TierNative:
		return "native"
	default:
		return "unknown"
	}
}

// Meta 帧元数据打包字：{层级 << 48 | FuncId}，bit32..47 保留
type Meta uint64

// MakeMeta 打包
func MakeMeta(t Tier, id bytecode.FuncId) Meta {
	return Meta(uint64(t)<<48 | uint64(id))
}

// Tier 取层级标签
func (m Meta) Tier() Tier {
	return Tier(m >> 48)
}

// FuncID 取函数标识
func (m Meta) FuncID() bytecode.FuncId {
	return bytecode.FuncId(m & 0xFFFFFFFF)
}

// String 调试表示
func (m Meta) String() string {
	return fmt.Sprintf("{%s func[%d]}", m.Tier(), m.FuncID())
}

// Frame 调用帧头
type Frame struct {
	SavedBP int
	SavedPC int
	Meta    Meta
	Base    int // 本帧槽基址
	Top     int // 槽区上界（Base + 槽数）
}

// Context 执行上下文（单线程协作式，每上下文一份）
type Context struct {
	slots  []bytecode.Value
	frames []Frame
	bp     int // 当前帧槽基址

	maxFrames int
}

// NewContext 创建上下文
func NewContext(stackSlots, maxFrames int) *Context {
	if stackSlots <= 0 {
		stackSlots = DefaultStackSlots
	}
	if maxFrames <= 0 {
		maxFrames = DefaultMaxFrames
	}
	return &Context{
		slots:     make([]bytecode.Value, stackSlots),
		frames:    make([]Frame, 0, maxFrames),
		maxFrames: maxFrames,
	}
}

// Depth 当前动态调用深度
func (ctx *Context) Depth() int {
	return len(ctx.frames)
}

// BP 当前帧槽基址
func (ctx *Context) BP() int {
	return ctx.bp
}

// CurrentFrame 当前帧头
func (ctx *Context) CurrentFrame() *Frame {
	return &ctx.frames[len(ctx.frames)-1]
}

// Slot 读当前帧槽
func (ctx *Context) Slot(reg uint16) bytecode.Value {
	return ctx.slots[ctx.bp+int(reg)]
}

// SetSlot 写当前帧槽
func (ctx *Context) SetSlot(reg uint16, v bytecode.Value) {
	ctx.slots[ctx.bp+int(reg)] = v
}

// SlotAt 以显式基址读槽（编译代码使用）
func (ctx *Context) SlotAt(base int, reg uint16) bytecode.Value {
	return ctx.slots[base+int(reg)]
}

// SetSlotAt 以显式基址写槽（编译代码使用）
func (ctx *Context) SetSlotAt(base int, reg uint16, v bytecode.Value) {
	ctx.slots[base+int(reg)] = v
}

// ArgSlots 当前帧从 base 起的 n 个槽（调用者的参数窗口）
func (ctx *Context) ArgSlots(argBase uint16, argc int) []bytecode.Value {
	lo := ctx.bp + int(argBase)
	return ctx.slots[lo : lo+argc]
}

// nextBase 新帧的槽基址：当前帧槽区之上
func (ctx *Context) nextBase() int {
	if len(ctx.frames) == 0 {
		return 0
	}
	return ctx.CurrentFrame().Top
}

// PushFrame 压入新帧
//
// 调用者义务：参数已写入 slots[base:base+arity]；这里补写 Meta 字，
// 并代被调方记录上一帧基址（被调方入口约定）。
// 深度或槽区耗尽以用户级错误上报，可被保护帧捕获。
func (ctx *Context) PushFrame(meta Meta, numSlots, savedPC int) (int, error) {
	if len(ctx.frames) >= ctx.maxFrames {
		return 0, NewUserError(ErrKindStack, "call depth exceeds %d frames", ctx.maxFrames)
	}
	base := ctx.nextBase()
	if base+numSlots > len(ctx.slots) {
		return 0, NewUserError(ErrKindStack, "value stack exhausted (%d slots)", len(ctx.slots))
	}
	ctx.frames = append(ctx.frames, Frame{
		SavedBP: ctx.bp,
		SavedPC: savedPC,
		Meta:    meta,
		Base:    base,
		Top:     base + numSlots,
	})
	ctx.bp = base
	return base, nil
}

// WriteArgs 将参数复制进即将成为新帧的槽窗口
//
// 必须在 PushFrame 之前调用（调用者先写参数，再转移控制）。
func (ctx *Context) WriteArgs(args []bytecode.Value) error {
	base := ctx.nextBase()
	if base+len(args) > len(ctx.slots) {
		return NewUserError(ErrKindStack, "value stack exhausted (%d slots)", len(ctx.slots))
	}
	copy(ctx.slots[base:], args)
	return nil
}

// clearSlots 清空 [from, to) 槽区
func (ctx *Context) clearSlots(from, to int) {
	for i := from; i < to; i++ {
		ctx.slots[i] = bytecode.NilValue
	}
}

// PopFrame 弹出当前帧，恢复调用者的帧基址
func (ctx *Context) PopFrame() Frame {
	fr := ctx.frames[len(ctx.frames)-1]
	ctx.frames = ctx.frames[:len(ctx.frames)-1]
	ctx.bp = fr.SavedBP
	return fr
}

// FrameChain 帧链快照（自底向上），用于诊断与测试
func (ctx *Context) FrameChain() []Frame {
	out := make([]Frame, len(ctx.frames))
	copy(out, ctx.frames)
	return out
}

// VisitRoots 枚举所有活跃的 Value 槽
//
// 收集器暂停时调用；活跃槽即所有在栈帧槽区内的位置，这是帧布局的
// 结构不变量，不依赖运行期检查。
func (ctx *Context) VisitRoots(visit func(*bytecode.Value)) {
	for i := range ctx.frames {
		fr := &ctx.frames[i]
		for s := fr.Base; s < fr.Top; s++ {
			visit(&ctx.slots[s])
		}
	}
}

// Reset 复位上下文（复用）
func (ctx *Context) Reset() {
	ctx.frames = ctx.frames[:0]
	ctx.bp = 0
}
