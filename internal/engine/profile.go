package engine

import (
	"github.com/segmentio/encoding/json"

	"github.com/rivalang/riva/internal/bytecode"
	"github.com/rivalang/riva/internal/jit"
)

// ============================================================================
// 运行档案导出
//
// 汇总函数元数据表的调用计数、层级、调用点缓存命中率，
// 连同编译器统计一起导出 JSON（cmd/riva -profile）。
// ============================================================================

// FuncProfile 单函数运行档案
type FuncProfile struct {
	Name        string `json:"name"`
	Tier        string `json:"tier"`
	Calls       int64  `json:"calls"`
	CacheHits   int64  `json:"cache_hits,omitempty"`
	CacheMisses int64  `json:"cache_misses,omitempty"`
}

// Profile 引擎运行档案
type Profile struct {
	Functions []FuncProfile `json:"functions"`
	JIT       *jit.Stats    `json:"jit,omitempty"`
}

// Profile 汇总当前档案
func (e *Engine) Profile() *Profile {
	p := &Profile{}
	for id := 0; id < e.g.Funcs.NumFuncs(); id++ {
		fi, err := e.g.Funcs.Lookup(bytecode.FuncId(id))
		if err != nil {
			continue
		}
		fp := FuncProfile{
			Name:  fi.Name,
			Tier:  fi.Tier().String(),
			Calls: fi.Calls(),
		}
		if fi.Fn != nil {
			for pc, ins := range fi.Fn.Code {
				switch ins.Op {
				case bytecode.OpCallDyn, bytecode.OpCallMethod,
					bytecode.OpGetField, bytecode.OpSetField:
					site := fi.Site(pc)
					fp.CacheHits += site.Hits()
					fp.CacheMisses += site.Misses()
				}
			}
		}
		p.Functions = append(p.Functions, fp)
	}
	if e.comp != nil {
		st := e.comp.Snapshot()
		p.JIT = &st
	}
	return p
}

// ProfileJSON 导出档案
func (e *Engine) ProfileJSON() ([]byte, error) {
	return json.MarshalIndent(e.Profile(), "", "  ")
}
