// Package engine 组装执行引擎：上下文、全局状态、晋升编译器与宿主接口
package engine

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// 常量定义
const (
	ConfigFileName = "riva.toml" // 配置文件名

	DefaultHotThreshold = 50 // 缺省晋升阈值（调用次数）
)

// Config 引擎配置
type Config struct {
	Engine EngineConfig `toml:"engine"`
	JIT    JITConfig    `toml:"jit"`
}

// EngineConfig 执行上下文配置
type EngineConfig struct {
	// StackSlots 值栈槽数，0 取内置缺省
	StackSlots int `toml:"stack_slots"`

	// MaxFrames 最大调用深度，0 取内置缺省
	MaxFrames int `toml:"max_frames"`

	// AllocLimit 分配上限（0 不设限）
	AllocLimit int64 `toml:"alloc_limit"`
}

// JITConfig 晋升编译器配置
type JITConfig struct {
	// Enabled 关闭后纯解释执行
	Enabled bool `toml:"enabled"`

	// HotThreshold 晋升阈值（调用次数）
	HotThreshold int64 `toml:"hot_threshold"`

	// Speculate 依据类型反馈生成带守卫的快路径
	Speculate bool `toml:"speculate"`

	// LogCompiles 每次编译输出一条日志
	LogCompiles bool `toml:"log_compiles"`
}

// DefaultConfig 缺省配置
func DefaultConfig() *Config {
	return &Config{
		JIT: JITConfig{
			Enabled:      true,
			HotThreshold: DefaultHotThreshold,
			Speculate:    true,
		},
	}
}

// LoadConfig 从文件加载配置
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate 配置自检
func (c *Config) Validate() error {
	if c.Engine.StackSlots < 0 {
		return fmt.Errorf("engine.stack_slots must not be negative, got %d", c.Engine.StackSlots)
	}
	if c.Engine.MaxFrames < 0 {
		return fmt.Errorf("engine.max_frames must not be negative, got %d", c.Engine.MaxFrames)
	}
	if c.Engine.AllocLimit < 0 {
		return fmt.Errorf("engine.alloc_limit must not be negative, got %d", c.Engine.AllocLimit)
	}
	if c.JIT.HotThreshold <= 0 {
		return fmt.Errorf("jit.hot_threshold must be positive, got %d", c.JIT.HotThreshold)
	}
	return nil
}

// FindConfigFile 从指定路径向上查找配置文件
// 返回配置文件的完整路径，如果找不到则返回空字符串
func FindConfigFile(startPath string) string {
	info, err := os.Stat(startPath)
	if err != nil {
		return ""
	}

	var dir string
	if info.IsDir() {
		dir = startPath
	} else {
		dir = filepath.Dir(startPath)
	}
	dir, err = filepath.Abs(dir)
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(dir, ConfigFileName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
