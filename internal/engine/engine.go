package engine

import (
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/rivalang/riva/internal/bytecode"
	"github.com/rivalang/riva/internal/jit"
	"github.com/rivalang/riva/internal/vm"
)

// ============================================================================
// 引擎装配
//
// Engine 把执行核心的各部分接成一台可用的机器：执行上下文、全局状态、
// 晋升编译器、原生辅助例程与宿主出入口。宿主程序（cmd/riva、测试）
// 只与这一层打交道。
// ============================================================================

// Engine 执行引擎
type Engine struct {
	cfg  *Config
	log  *zap.Logger
	ctx  *vm.Context
	g    *vm.Globals
	comp *jit.Compiler // JIT 关闭时为 nil

	stdout io.Writer
}

// New 创建引擎
func New(cfg *Config, log *zap.Logger) *Engine {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if log == nil {
		log = zap.NewNop()
	}

	store := vm.NewFnStore(cfg.JIT.HotThreshold)
	g := vm.NewGlobals(store, vm.NewCountingAllocator(cfg.Engine.AllocLimit))
	e := &Engine{
		cfg:    cfg,
		log:    log,
		ctx:    vm.NewContext(cfg.Engine.StackSlots, cfg.Engine.MaxFrames),
		g:      g,
		stdout: os.Stdout,
	}
	if cfg.JIT.Enabled {
		e.comp = jit.New(jit.Config{
			Speculate:   cfg.JIT.Speculate,
			LogCompiles: cfg.JIT.LogCompiles,
		}, log.Named("jit"))
		g.Compiler = e.comp
	}
	e.registerBuiltins()
	return e
}

// SetStdout 重定向 print 输出（测试用）
func (e *Engine) SetStdout(w io.Writer) {
	e.stdout = w
}

// Globals 全局状态
func (e *Engine) Globals() *vm.Globals {
	return e.g
}

// Context 执行上下文
func (e *Engine) Context() *vm.Context {
	return e.ctx
}

// Compiler 晋升编译器；JIT 关闭时为 nil
func (e *Engine) Compiler() *jit.Compiler {
	return e.comp
}

// LoadModule 装入模块，登记其全部函数
func (e *Engine) LoadModule(m *bytecode.Module) ([]bytecode.FuncId, error) {
	ids, err := e.g.Funcs.RegisterModule(m)
	if err != nil {
		return nil, err
	}
	e.log.Debug("module loaded",
		zap.Int("functions", len(m.Functions)),
		zap.Int("main", m.Main))
	return ids, nil
}

// LoadImage 装入序列化镜像
func (e *Engine) LoadImage(data []byte) ([]bytecode.FuncId, error) {
	m, err := bytecode.DeserializeModule(data)
	if err != nil {
		return nil, err
	}
	return e.LoadModule(m)
}

// RunMain 执行模块入口函数
func (e *Engine) RunMain(m *bytecode.Module) (bytecode.Value, error) {
	ids, err := e.LoadModule(m)
	if err != nil {
		return bytecode.NilValue, err
	}
	if m.Main < 0 {
		return bytecode.NilValue, fmt.Errorf("engine: module has no entry function")
	}
	return vm.Call(e.ctx, e.g, ids[m.Main], nil, vm.DummyPC)
}

// Invoke 按名调用已登记的函数
func (e *Engine) Invoke(name string, args ...bytecode.Value) (bytecode.Value, error) {
	return vm.CallName(e.ctx, e.g, name, args)
}

// InvokeProtected 保护调用：用户级错误作为结果返回而非上抛
func (e *Engine) InvokeProtected(name string, args ...bytecode.Value) (bytecode.Value, *vm.UserError, error) {
	fi, ok := e.g.Funcs.LookupName(name)
	if !ok {
		return bytecode.NilValue, vm.NewUserError(vm.ErrKindNoFunc, "undefined function %q", name), nil
	}
	return vm.ProtectedCall(e.ctx, e.g, fi.ID, args)
}

// RegisterClass 登记类
func (e *Engine) RegisterClass(c *bytecode.Class) {
	e.g.DefineClass(c)
}

// RegisterNative 登记原生辅助例程
func (e *Engine) RegisterNative(name string, arity int, variadic bool, fn vm.NativeFn) bytecode.FuncId {
	return e.g.Funcs.RegisterNative(name, arity, variadic, fn)
}

// VisitRoots 枚举所有活跃值槽（收集器暂停点）
func (e *Engine) VisitRoots(visit func(*bytecode.Value)) {
	e.ctx.VisitRoots(visit)
}

// ----------------------------------------------------------------------------
// 内建原生例程
// ----------------------------------------------------------------------------

func (e *Engine) registerBuiltins() {
	e.RegisterNative("print", 0, true, e.nativePrint)
	e.RegisterNative("clock_ms", 0, false, nativeClockMS)
	e.RegisterNative("str_concat", 0, true, nativeStrConcat)
}

// nativePrint 空格分隔打印全部参数，末尾换行
func (e *Engine) nativePrint(g *vm.Globals, args []bytecode.Value) (bytecode.Value, error) {
	for i, a := range args {
		if i > 0 {
			fmt.Fprint(e.stdout, " ")
		}
		fmt.Fprint(e.stdout, a.String())
	}
	fmt.Fprintln(e.stdout)
	return bytecode.NilValue, nil
}

// nativeClockMS 毫秒时钟
func nativeClockMS(g *vm.Globals, args []bytecode.Value) (bytecode.Value, error) {
	return bytecode.NewInt(time.Now().UnixMilli()), nil
}

// nativeStrConcat 拼接任意多个字符串
func nativeStrConcat(g *vm.Globals, args []bytecode.Value) (bytecode.Value, error) {
	var total int
	for _, a := range args {
		if a.Type != bytecode.ValString {
			return bytecode.NilValue, vm.NewUserError(vm.ErrKindType,
				"str_concat expects strings, got %s", a.Type)
		}
		total += len(a.AsString().B)
	}
	buf := make([]byte, 0, total)
	for _, a := range args {
		buf = append(buf, a.AsString().B...)
	}
	return g.Alloc.AllocString(buf)
}
