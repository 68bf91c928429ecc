package jit

import (
	"time"

	"go.uber.org/zap"

	"github.com/rivalang/riva/internal/bytecode"
	"github.com/rivalang/riva/internal/vm"
)

// ============================================================================
// 晋升编译器
//
// 把热函数的字节码翻译成宿主闭包序列：每条指令一个预先特化的步进函数，
// 编译期完成操作数解码、常量折叠与类型推测，运行期只剩守卫和执行。
// 翻译产物实现统一入口签名，经 vm.FnStore.Promote 挂进元数据记录，
// 调用路径对层级切换不感知。
//
// 类型推测基于解释阶段采集的运算点反馈：单态整数点生成带守卫的
// 快路径，守卫失败即去优化——以失败指令的程序点交还解释器，
// 帧槽布局两层一致，交接无需重建状态。
// ============================================================================

// Config 编译器配置
type Config struct {
	// Speculate 依据类型反馈生成带守卫的整数快路径
	Speculate bool

	// LogCompiles 每次编译输出一条日志
	LogCompiles bool
}

// DefaultConfig 缺省配置
func DefaultConfig() Config {
	return Config{Speculate: true}
}

// Compiler 晋升编译器，实现 vm.PromoteCompiler
//
// 与执行上下文同线程被同步调用，无需加锁。
type Compiler struct {
	cfg   Config
	log   *zap.Logger
	stats Stats
}

// New 创建编译器
func New(cfg Config, log *zap.Logger) *Compiler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Compiler{cfg: cfg, log: log}
}

// Compile 编译一个函数；ok 为假表示能力缺口，该函数保持解释执行
func (c *Compiler) Compile(g *vm.Globals, fi *vm.FuncInfo) (vm.EntryFn, bool, error) {
	start := time.Now()

	if reason, ok := supportable(fi); !ok {
		c.stats.Gaps++
		c.log.Info("compile gap, function stays interpreted",
			zap.String("func", fi.Name),
			zap.String("reason", reason))
		return nil, false, nil
	}

	entry, specSites, err := c.codegen(g, fi)
	if err != nil {
		return nil, false, err
	}

	elapsed := time.Since(start)
	c.stats.Compiled++
	c.stats.Instrs += int64(len(fi.Fn.Code))
	c.stats.SpeculativeSites += int64(specSites)
	c.stats.CompileNanos += elapsed.Nanoseconds()
	c.stats.Functions = append(c.stats.Functions, FuncRecord{
		Name:             fi.Name,
		Instrs:           len(fi.Fn.Code),
		SpeculativeSites: specSites,
	})
	if c.cfg.LogCompiles {
		c.log.Info("function compiled",
			zap.String("func", fi.Name),
			zap.Int("instrs", len(fi.Fn.Code)),
			zap.Int("speculative_sites", specSites),
			zap.Duration("elapsed", elapsed))
	}
	return entry, true, nil
}

// supportable 能力检查；不支持的形态作为缺口上报而非错误
func supportable(fi *vm.FuncInfo) (string, bool) {
	if fi.Fn == nil {
		return "no bytecode", false
	}
	if fi.Variadic {
		return "variadic parameters", false
	}
	for _, ins := range fi.Fn.Code {
		if ins.Op == bytecode.OpNewObject {
			return "object allocation", false
		}
	}
	return "", true
}
