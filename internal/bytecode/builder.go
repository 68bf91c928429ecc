package bytecode

import "fmt"

// ============================================================================
// 字节码装配器
//
// 供加载器（以及测试）程序化产出函数字节码。
// 槽位分配：参数与局部变量占据最低编号，临时寄存器在其上方
// 以栈的方式 push/pop。
// ============================================================================

// Label 跳转标签
type Label int

// FuncBuilder 单函数装配器
type FuncBuilder struct {
	name     string
	arity    int
	variadic bool

	code     []Instr
	literals []Value

	locals   map[string]uint16
	temp     uint16 // 当前临时寄存器水位
	maxTemp  uint16 // 临时寄存器峰值
	labels   []int  // 标签 -> 指令下标（-1 未绑定）
	patches  []patch
}

type patch struct {
	pc    int
	label Label
}

// NewFuncBuilder 创建装配器，参数名即前 arity 个局部槽
func NewFuncBuilder(name string, params ...string) *FuncBuilder {
	b := &FuncBuilder{
		name:   name,
		arity:  len(params),
		locals: make(map[string]uint16),
	}
	for _, p := range params {
		b.DeclareLocal(p)
	}
	return b
}

// SetVariadic 标记为可变参数函数
func (b *FuncBuilder) SetVariadic() *FuncBuilder {
	b.variadic = true
	return b
}

// DeclareLocal 声明局部变量，返回其槽号
func (b *FuncBuilder) DeclareLocal(name string) uint16 {
	if slot, ok := b.locals[name]; ok {
		return slot
	}
	slot := uint16(len(b.locals))
	b.locals[name] = slot
	return slot
}

// Local 查局部变量槽号
func (b *FuncBuilder) Local(name string) uint16 {
	slot, ok := b.locals[name]
	if !ok {
		panic(fmt.Sprintf("bytecode: undefined local %q in %s", name, b.name))
	}
	return slot
}

// PushTemp 取一个临时寄存器
func (b *FuncBuilder) PushTemp() uint16 {
	reg := uint16(len(b.locals)) + b.temp
	b.temp++
	if b.temp > b.maxTemp {
		b.maxTemp = b.temp
	}
	return reg
}

// PopTemp 释放最近的临时寄存器
func (b *FuncBuilder) PopTemp() uint16 {
	b.temp--
	return uint16(len(b.locals)) + b.temp
}

// Literal 登记常量，返回下标
func (b *FuncBuilder) Literal(v Value) int32 {
	for i, lit := range b.literals {
		if lit.Type == v.Type && lit.Equals(v) {
			return int32(i)
		}
	}
	b.literals = append(b.literals, v)
	return int32(len(b.literals) - 1)
}

// NewLabel 申请未绑定标签
func (b *FuncBuilder) NewLabel() Label {
	b.labels = append(b.labels, -1)
	return Label(len(b.labels) - 1)
}

// Bind 将标签绑定到下一条指令
func (b *FuncBuilder) Bind(l Label) {
	b.labels[l] = len(b.code)
}

// Emit 追加一条指令，返回其下标
func (b *FuncBuilder) Emit(ins Instr) int {
	b.code = append(b.code, ins)
	return len(b.code) - 1
}

// ----------------------------------------------------------------------------
// 常用指令的便捷形式
// ----------------------------------------------------------------------------

// Integer %dst = n
func (b *FuncBuilder) Integer(dst uint16, n int32) {
	b.Emit(Instr{Op: OpInteger, A: dst, Imm: n})
}

// Const %dst = literals[...]
func (b *FuncBuilder) Const(dst uint16, v Value) {
	b.Emit(Instr{Op: OpConst, A: dst, Imm: b.Literal(v)})
}

// Nil %dst = nil
func (b *FuncBuilder) Nil(dst uint16) {
	b.Emit(Instr{Op: OpNil, A: dst})
}

// Mov %dst = %src
func (b *FuncBuilder) Mov(dst, src uint16) {
	b.Emit(Instr{Op: OpMov, A: dst, B: src})
}

// Binop 寄存器二元运算
func (b *FuncBuilder) Binop(op OpCode, dst, lhs, rhs uint16) {
	b.Emit(Instr{Op: op, A: dst, B: lhs, C: rhs})
}

// BinopImm 立即数二元运算
func (b *FuncBuilder) BinopImm(op OpCode, dst, lhs uint16, imm int32) {
	b.Emit(Instr{Op: op, A: dst, B: lhs, Imm: imm})
}

// Br 无条件跳转
func (b *FuncBuilder) Br(l Label) {
	b.patches = append(b.patches, patch{pc: b.Emit(Instr{Op: OpBr}), label: l})
}

// CondBr 条件为真跳转
func (b *FuncBuilder) CondBr(cond uint16, l Label) {
	b.patches = append(b.patches, patch{pc: b.Emit(Instr{Op: OpCondBr, A: cond}), label: l})
}

// CondNotBr 条件为假跳转
func (b *FuncBuilder) CondNotBr(cond uint16, l Label) {
	b.patches = append(b.patches, patch{pc: b.Emit(Instr{Op: OpCondNotBr, A: cond}), label: l})
}

// Call 静态调用：%ret = funcs[id](%argBase.. 共 argc 个)
func (b *FuncBuilder) Call(ret uint16, id FuncId, argBase uint16, argc int) {
	b.Emit(Instr{Op: OpCall, A: ret, B: argBase, C: uint16(argc), Imm: int32(id)})
}

// CallDyn 按名调用
func (b *FuncBuilder) CallDyn(ret uint16, name string, argBase uint16, argc int) {
	b.Emit(Instr{Op: OpCallDyn, A: ret, B: argBase, C: uint16(argc), Imm: b.Literal(NewString(name))})
}

// CallMethod 方法调用，%argBase 为接收者
func (b *FuncBuilder) CallMethod(ret uint16, name string, argBase uint16, argc int) {
	b.Emit(Instr{Op: OpCallMethod, A: ret, B: argBase, C: uint16(argc), Imm: b.Literal(NewString(name))})
}

// Ret return %src
func (b *FuncBuilder) Ret(src uint16) {
	b.Emit(Instr{Op: OpRet, A: src})
}

// NewObjectOf %dst = new className
func (b *FuncBuilder) NewObjectOf(dst uint16, className string) {
	b.Emit(Instr{Op: OpNewObject, A: dst, Imm: b.Literal(NewString(className))})
}

// GetField %dst = %recv.field
func (b *FuncBuilder) GetField(dst, recv uint16, field string) {
	b.Emit(Instr{Op: OpGetField, A: dst, B: recv, Imm: b.Literal(NewString(field))})
}

// SetField %recv.field = %src
func (b *FuncBuilder) SetField(recv uint16, field string, src uint16) {
	b.Emit(Instr{Op: OpSetField, A: recv, B: src, Imm: b.Literal(NewString(field))})
}

// Raise raise %src
func (b *FuncBuilder) Raise(src uint16) {
	b.Emit(Instr{Op: OpRaise, A: src})
}

// Build 回填标签并产出函数
func (b *FuncBuilder) Build() (*Function, error) {
	for _, p := range b.patches {
		target := b.labels[p.label]
		if target < 0 {
			return nil, fmt.Errorf("bytecode: unbound label %d in %s", p.label, b.name)
		}
		b.code[p.pc].Imm = int32(target)
	}
	fn := &Function{
		Name:     b.name,
		Arity:    b.arity,
		Variadic: b.variadic,
		NumRegs:  len(b.locals) + int(b.maxTemp),
		Code:     b.code,
		Literals: b.literals,
	}
	if len(fn.Code) == 0 || fn.Code[len(fn.Code)-1].Op != OpRet {
		// 隐式 return nil
		nilReg := uint16(fn.NumRegs)
		fn.NumRegs++
		fn.Code = append(fn.Code, Instr{Op: OpNil, A: nilReg}, Instr{Op: OpRet, A: nilReg})
	}
	return fn, nil
}

// MustBuild Build 的 panic 版本，供测试与内部装配使用
func (b *FuncBuilder) MustBuild() *Function {
	fn, err := b.Build()
	if err != nil {
		panic(err)
	}
	return fn
}
