package bytecode

import "fmt"

// ============================================================================
// 寄存器字节码指令集
//
// 寄存器即帧槽：%0..%(n-1)，参数占据最低编号的槽位。
// 指令为定宽四元组 {Op, A, B, C, Imm}，字段含义随操作码而定。
// ============================================================================

// OpCode 操作码类型
type OpCode byte

const (
	OpNop OpCode = iota

	// 常量加载
	OpInteger // %A = Imm (32 位立即数)
	OpConst   // %A = literals[Imm]
	OpNil     // %A = nil
	OpMov     // %A = %B

	// 算术运算
	OpNeg    // %A = -%B
	OpAdd    // %A = %B + %C
	OpAddImm // %A = %B + Imm
	OpSub    // %A = %B - %C
	OpSubImm // %A = %B - Imm
	OpMul    // %A = %B * %C
	OpDiv    // %A = %B / %C

	// 比较运算
	OpCmpEq    // %A = %B == %C
	OpCmpNe    // %A = %B != %C
	OpCmpLt    // %A = %B < %C
	OpCmpLe    // %A = %B <= %C
	OpCmpGt    // %A = %B > %C
	OpCmpGe    // %A = %B >= %C
	OpCmpEqImm // %A = %B == Imm
	OpCmpNeImm // %A = %B != Imm
	OpCmpLtImm // %A = %B < Imm
	OpCmpLeImm // %A = %B <= Imm
	OpCmpGtImm // %A = %B > Imm
	OpCmpGeImm // %A = %B >= Imm

	// 逻辑与字符串
	OpNot    // %A = !%B (真值取反)
	OpConcat // %A = %B .. %C (字符串拼接)

	// 跳转 (Imm 为目标指令下标)
	OpBr        // 无条件跳转
	OpCondBr    // %A 为真时跳转
	OpCondNotBr // %A 为假时跳转

	// 调用与返回
	OpCall       // %A = call funcs[Imm](%B.. 共 C 个参数)
	OpCallDyn    // %A = call <literals[Imm] 按名解析>(%B.. 共 C 个参数)
	OpCallMethod // %A = call %B.<literals[Imm]>(%B.. 共 C 个槽，%B 为接收者)
	OpRet        // return %A

	// 对象操作
	OpNewObject // %A = new literals[Imm] (类名字符串)
	OpGetField  // %A = %B.<literals[Imm]>
	OpSetField  // %A.<literals[Imm]> = %B

	// 错误处理
	OpRaise // raise %A (用户级错误，向上退栈)
)

var opNames = map[OpCode]string{
	OpNop:        "NOP",
	OpInteger:    "INTEGER",
	OpConst:      "CONST",
	OpNil:        "NIL",
	OpMov:        "MOV",
	OpNeg:        "NEG",
	OpAdd:        "ADD",
	OpAddImm:     "ADD_IMM",
	OpSub:        "SUB",
	OpSubImm:     "SUB_IMM",
	OpMul:        "MUL",
	OpDiv:        "DIV",
	OpCmpEq:      "CMP_EQ",
	OpCmpNe:      "CMP_NE",
	OpCmpLt:      "CMP_LT",
	OpCmpLe:      "CMP_LE",
	OpCmpGt:      "CMP_GT",
	OpCmpGe:      "CMP_GE",
	OpCmpEqImm:   "CMP_EQ_IMM",
	OpCmpNeImm:   "CMP_NE_IMM",
	OpCmpLtImm:   "CMP_LT_IMM",
	OpCmpLeImm:   "CMP_LE_IMM",
	OpCmpGtImm:   "CMP_GT_IMM",
	OpCmpGeImm:   "CMP_GE_IMM",
	OpNot:        "NOT",
	OpConcat:     "CONCAT",
	OpBr:         "BR",
	OpCondBr:     "COND_BR",
	OpCondNotBr:  "COND_NOT_BR",
	OpCall:       "CALL",
	OpCallDyn:    "CALL_DYN",
	OpCallMethod: "CALL_METHOD",
	OpRet:        "RET",
	OpNewObject:  "NEW_OBJECT",
	OpGetField:   "GET_FIELD",
	OpSetField:   "SET_FIELD",
	OpRaise:      "RAISE",
}

// String 返回操作码名
func (op OpCode) String() string {
	if name, ok := opNames[op]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", byte(op))
}

// IsCmp 是否为寄存器比较指令
func (op OpCode) IsCmp() bool {
	return op >= OpCmpEq && op <= OpCmpGe
}

// IsCmpImm 是否为立即数比较指令
func (op OpCode) IsCmpImm() bool {
	return op >= OpCmpEqImm && op <= OpCmpGeImm
}

// CmpKindOf 取比较指令对应的比较种类
func CmpKindOf(op OpCode) CmpKind {
	if op.IsCmp() {
		return CmpKind(op - OpCmpEq)
	}
	return CmpKind(op - OpCmpEqImm)
}

// Instr 定宽指令
type Instr struct {
	Op  OpCode
	A   uint16 // 目标槽 / 条件槽
	B   uint16 // 源槽 / 参数基址
	C   uint16 // 第二源槽 / 参数个数
	Imm int32  // 立即数 / 常量下标 / 跳转目标 / FuncId
}

// String 返回指令的汇编形式
func (i Instr) String() string {
	switch i.Op {
	case OpNop:
		return "nop"
	case OpInteger:
		return fmt.Sprintf("%%%d = %d: i32", i.A, i.Imm)
	case OpConst:
		return fmt.Sprintf("%%%d = literals[%d]", i.A, i.Imm)
	case OpNil:
		return fmt.Sprintf("%%%d = nil", i.A)
	case OpMov:
		return fmt.Sprintf("%%%d = %%%d", i.A, i.B)
	case OpNeg:
		return fmt.Sprintf("%%%d = neg %%%d", i.A, i.B)
	case OpAdd:
		return fmt.Sprintf("%%%d = %%%d + %%%d", i.A, i.B, i.C)
	case OpAddImm:
		return fmt.Sprintf("%%%d = %%%d + %d: i32", i.A, i.B, i.Imm)
	case OpSub:
		return fmt.Sprintf("%%%d = %%%d - %%%d", i.A, i.B, i.C)
	case OpSubImm:
		return fmt.Sprintf("%%%d = %%%d - %d: i32", i.A, i.B, i.Imm)
	case OpMul:
		return fmt.Sprintf("%%%d = %%%d * %%%d", i.A, i.B, i.C)
	case OpDiv:
		return fmt.Sprintf("%%%d = %%%d / %%%d", i.A, i.B, i.C)
	case OpNot:
		return fmt.Sprintf("%%%d = not %%%d", i.A, i.B)
	case OpConcat:
		return fmt.Sprintf("%%%d = concat %%%d %%%d", i.A, i.B, i.C)
	case OpBr:
		return fmt.Sprintf("br =>:%05d", i.Imm)
	case OpCondBr:
		return fmt.Sprintf("condbr %%%d =>:%05d", i.A, i.Imm)
	case OpCondNotBr:
		return fmt.Sprintf("condnbr %%%d =>:%05d", i.A, i.Imm)
	case OpCall:
		return fmt.Sprintf("%%%d = call func[%d](%%%d; %d)", i.A, i.Imm, i.B, i.C)
	case OpCallDyn:
		return fmt.Sprintf("%%%d = calldyn lit[%d](%%%d; %d)", i.A, i.Imm, i.B, i.C)
	case OpCallMethod:
		return fmt.Sprintf("%%%d = callm %%%d.lit[%d](; %d)", i.A, i.B, i.Imm, i.C)
	case OpRet:
		return fmt.Sprintf("ret %%%d", i.A)
	case OpNewObject:
		return fmt.Sprintf("%%%d = new lit[%d]", i.A, i.Imm)
	case OpGetField:
		return fmt.Sprintf("%%%d = %%%d.lit[%d]", i.A, i.B, i.Imm)
	case OpSetField:
		return fmt.Sprintf("%%%d.lit[%d] = %%%d", i.A, i.Imm, i.B)
	case OpRaise:
		return fmt.Sprintf("raise %%%d", i.A)
	default:
		if i.Op.IsCmp() {
			return fmt.Sprintf("%%%d = %%%d %s %%%d", i.A, i.B, CmpKindOf(i.Op), i.C)
		}
		if i.Op.IsCmpImm() {
			return fmt.Sprintf("%%%d = %%%d %s %d: i32", i.A, i.B, CmpKindOf(i.Op), i.Imm)
		}
		return fmt.Sprintf("%s A=%d B=%d C=%d Imm=%d", i.Op, i.A, i.B, i.C, i.Imm)
	}
}
