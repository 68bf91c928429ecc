package bytecode

import "fmt"

// ============================================================================
// 函数与模块
//
// Function 是纯数据：加载器（或 FuncBuilder）产出，执行层不回写。
// 层级（解释/编译/原生）与调用计数属于元数据表，见 vm.FnStore。
// ============================================================================

// FuncId 函数标识
type FuncId uint32

// NoFuncId 无效函数标识
const NoFuncId = FuncId(0xFFFFFFFF)

// Function 函数字节码
type Function struct {
	Name     string
	Arity    int  // 固定参数个数
	Variadic bool // 是否接受多余参数
	NumRegs  int  // 帧槽总数（参数 + 局部 + 临时）
	Code     []Instr
	Literals []Value
}

// Literal 取常量
func (f *Function) Literal(idx int32) Value {
	return f.Literals[idx]
}

// LiteralName 取字符串常量（方法名、字段名）
func (f *Function) LiteralName(idx int32) string {
	return f.Literals[idx].AsString().String()
}

// Module 加载单元：一组函数加一个入口
type Module struct {
	Functions []*Function
	Main      int // Functions 中入口函数的下标，-1 表示无入口
}

// NewModule 创建空模块
func NewModule() *Module {
	return &Module{Main: -1}
}

// AddFunction 追加函数，返回其模块内下标
func (m *Module) AddFunction(fn *Function) int {
	m.Functions = append(m.Functions, fn)
	return len(m.Functions) - 1
}

// Lookup 按名查找函数
func (m *Module) Lookup(name string) (*Function, bool) {
	for _, fn := range m.Functions {
		if fn.Name == name {
			return fn, true
		}
	}
	return nil, false
}

// Validate 模块自检
//
// 加载器保证输入良构；这里只做廉价的结构检查，越界槽位等
// 细粒度错误在执行时作为引擎故障暴露。
func (m *Module) Validate() error {
	if m.Main >= len(m.Functions) {
		return fmt.Errorf("module main index %d out of range", m.Main)
	}
	for _, fn := range m.Functions {
		if fn.Arity > fn.NumRegs {
			return fmt.Errorf("function %s: arity %d exceeds register count %d",
				fn.Name, fn.Arity, fn.NumRegs)
		}
		if len(fn.Code) == 0 {
			return fmt.Errorf("function %s: empty bytecode", fn.Name)
		}
		for pc, ins := range fn.Code {
			switch ins.Op {
			case OpBr, OpCondBr, OpCondNotBr:
				if ins.Imm < 0 || int(ins.Imm) >= len(fn.Code) {
					return fmt.Errorf("function %s: branch target %d out of range at :%05d",
						fn.Name, ins.Imm, pc)
				}
			case OpConst, OpCallDyn, OpCallMethod, OpNewObject, OpGetField, OpSetField:
				if ins.Imm < 0 || int(ins.Imm) >= len(fn.Literals) {
					return fmt.Errorf("function %s: literal index %d out of range at :%05d",
						fn.Name, ins.Imm, pc)
				}
			}
		}
	}
	return nil
}
