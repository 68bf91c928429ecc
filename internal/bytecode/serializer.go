package bytecode

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/big"
)

// ============================================================================
// 模块镜像序列化 (.rvc)
//
// 布局：头部 + 字符串池 + 函数区。多字节字段一律大端。
// 镜像是加载器的产物；引擎本身不持有任何磁盘状态。
// ============================================================================

// 镜像格式常量
const (
	MagicNumber  uint32 = 0x52564243 // "RVBC"
	MajorVersion byte   = 1
	MinorVersion byte   = 0
)

// 字面量标签
const (
	litNil byte = iota
	litFalse
	litTrue
	litInt
	litBignum
	litFloat
	litString
)

// Serializer 模块序列化器
type Serializer struct {
	buf         *bytes.Buffer
	stringPool  []string
	stringIndex map[string]uint32
}

// NewSerializer 创建序列化器
func NewSerializer() *Serializer {
	return &Serializer{
		buf:         new(bytes.Buffer),
		stringIndex: make(map[string]uint32),
	}
}

// Serialize 序列化模块
func (s *Serializer) Serialize(m *Module) ([]byte, error) {
	// 第一遍：收集字符串池
	for _, fn := range m.Functions {
		s.internString(fn.Name)
		for _, lit := range fn.Literals {
			switch lit.Type {
			case ValString:
				s.internString(lit.AsString().String())
			case ValBignum:
				s.internString(lit.AsBignum().String())
			case ValObject:
				return nil, fmt.Errorf("bytecode: object literal in %s is not serializable", fn.Name)
			}
		}
	}

	// 头部
	binary.Write(s.buf, binary.BigEndian, MagicNumber)
	s.buf.WriteByte(MajorVersion)
	s.buf.WriteByte(MinorVersion)
	binary.Write(s.buf, binary.BigEndian, uint16(0)) // Flags (保留)
	binary.Write(s.buf, binary.BigEndian, uint32(len(m.Functions)))
	binary.Write(s.buf, binary.BigEndian, int32(m.Main))

	// 字符串池
	binary.Write(s.buf, binary.BigEndian, uint32(len(s.stringPool)))
	for _, str := range s.stringPool {
		binary.Write(s.buf, binary.BigEndian, uint32(len(str)))
		s.buf.WriteString(str)
	}

	// 函数区
	for _, fn := range m.Functions {
		if err := s.serializeFunction(fn); err != nil {
			return nil, err
		}
	}
	return s.buf.Bytes(), nil
}

// internString 字符串入池
func (s *Serializer) internString(str string) uint32 {
	if idx, ok := s.stringIndex[str]; ok {
		return idx
	}
	idx := uint32(len(s.stringPool))
	s.stringPool = append(s.stringPool, str)
	s.stringIndex[str] = idx
	return idx
}

// serializeFunction 序列化单个函数
func (s *Serializer) serializeFunction(fn *Function) error {
	binary.Write(s.buf, binary.BigEndian, s.stringIndex[fn.Name])
	binary.Write(s.buf, binary.BigEndian, uint32(fn.Arity))
	if fn.Variadic {
		s.buf.WriteByte(1)
	} else {
		s.buf.WriteByte(0)
	}
	binary.Write(s.buf, binary.BigEndian, uint32(fn.NumRegs))

	// 字面量
	binary.Write(s.buf, binary.BigEndian, uint32(len(fn.Literals)))
	for _, lit := range fn.Literals {
		switch lit.Type {
		case ValNil:
			s.buf.WriteByte(litNil)
		case ValBool:
			if lit.AsBool() {
				s.buf.WriteByte(litTrue)
			} else {
				s.buf.WriteByte(litFalse)
			}
		case ValInt:
			s.buf.WriteByte(litInt)
			binary.Write(s.buf, binary.BigEndian, lit.AsInt())
		case ValBignum:
			s.buf.WriteByte(litBignum)
			binary.Write(s.buf, binary.BigEndian, s.stringIndex[lit.AsBignum().String()])
		case ValFloat:
			s.buf.WriteByte(litFloat)
			binary.Write(s.buf, binary.BigEndian, lit.AsFloat())
		case ValString:
			s.buf.WriteByte(litString)
			binary.Write(s.buf, binary.BigEndian, s.stringIndex[lit.AsString().String()])
		default:
			return fmt.Errorf("bytecode: literal type %s in %s is not serializable", lit.Type, fn.Name)
		}
	}

	// 指令
	binary.Write(s.buf, binary.BigEndian, uint32(len(fn.Code)))
	for _, ins := range fn.Code {
		s.buf.WriteByte(byte(ins.Op))
		binary.Write(s.buf, binary.BigEndian, ins.A)
		binary.Write(s.buf, binary.BigEndian, ins.B)
		binary.Write(s.buf, binary.BigEndian, ins.C)
		binary.Write(s.buf, binary.BigEndian, ins.Imm)
	}
	return nil
}

// SerializeModule 一步序列化
func SerializeModule(m *Module) ([]byte, error) {
	return NewSerializer().Serialize(m)
}

// bignumFromText 从十进制文本恢复大整数字面量
func bignumFromText(text string) (Value, error) {
	b, ok := new(big.Int).SetString(text, 10)
	if !ok {
		return NilValue, fmt.Errorf("bytecode: malformed bignum literal %q", text)
	}
	return NewBignum(b), nil
}
