package bytecode

import (
	"fmt"
	"strings"
)

// ============================================================================
// 反汇编
// ============================================================================

// Disassemble 反汇编单个函数
func Disassemble(fn *Function) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "------------------------------------\n")
	variadic := ""
	if fn.Variadic {
		variadic = "+"
	}
	fmt.Fprintf(&sb, "func %s arity:%d%s regs:%d\n", fn.Name, fn.Arity, variadic, fn.NumRegs)
	for pc, ins := range fn.Code {
		fmt.Fprintf(&sb, ":%05d %s\n", pc, ins)
	}
	if len(fn.Literals) > 0 {
		fmt.Fprintf(&sb, "literals:\n")
		for i, lit := range fn.Literals {
			fmt.Fprintf(&sb, "  [%d] %s: %s\n", i, lit.String(), lit.Type)
		}
	}
	return sb.String()
}

// DisassembleModule 反汇编整个模块
func DisassembleModule(m *Module) string {
	var sb strings.Builder
	for i, fn := range m.Functions {
		if i == m.Main {
			sb.WriteString("(main)\n")
		}
		sb.WriteString(Disassemble(fn))
	}
	return sb.String()
}
