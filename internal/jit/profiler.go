package jit

import "github.com/segmentio/encoding/json"

// ============================================================================
// 编译统计
//
// 编译器与执行上下文同线程，计数无需加锁；快照按值返回。
// ============================================================================

// Stats 编译器统计
type Stats struct {
	Compiled         int64 `json:"compiled"`          // 成功编译的函数数
	Gaps             int64 `json:"gaps"`              // 能力缺口数
	Deopts           int64 `json:"deopts"`            // 去优化次数
	Instrs           int64 `json:"instrs"`            // 翻译的指令总数
	SpeculativeSites int64 `json:"speculative_sites"` // 带守卫的推测点总数
	CompileNanos     int64 `json:"compile_nanos"`     // 编译耗时合计

	Functions []FuncRecord `json:"functions,omitempty"`
}

// FuncRecord 单函数编译记录
type FuncRecord struct {
	Name             string `json:"name"`
	Instrs           int    `json:"instrs"`
	SpeculativeSites int    `json:"speculative_sites"`
}

// Snapshot 统计快照
func (c *Compiler) Snapshot() Stats {
	s := c.stats
	s.Functions = append([]FuncRecord(nil), c.stats.Functions...)
	return s
}

// DumpJSON 导出统计（供 -profile 输出）
func (c *Compiler) DumpJSON() ([]byte, error) {
	return json.MarshalIndent(c.Snapshot(), "", "  ")
}
