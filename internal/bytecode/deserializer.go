package bytecode

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// ============================================================================
// 模块镜像反序列化
// ============================================================================

// Deserializer 模块反序列化器
type Deserializer struct {
	r          *bytes.Reader
	stringPool []string
}

// NewDeserializer 创建反序列化器
func NewDeserializer(data []byte) *Deserializer {
	return &Deserializer{r: bytes.NewReader(data)}
}

// Deserialize 解析模块镜像
func (d *Deserializer) Deserialize() (*Module, error) {
	var magic uint32
	if err := binary.Read(d.r, binary.BigEndian, &magic); err != nil {
		return nil, fmt.Errorf("bytecode: short image header: %w", err)
	}
	if magic != MagicNumber {
		return nil, fmt.Errorf("bytecode: bad magic 0x%08X", magic)
	}
	major, err := d.r.ReadByte()
	if err != nil {
		return nil, err
	}
	if _, err := d.r.ReadByte(); err != nil { // minor：向后兼容，忽略
		return nil, err
	}
	if major != MajorVersion {
		return nil, fmt.Errorf("bytecode: unsupported image version %d", major)
	}
	var flags uint16
	if err := binary.Read(d.r, binary.BigEndian, &flags); err != nil {
		return nil, err
	}

	var funcCount uint32
	if err := binary.Read(d.r, binary.BigEndian, &funcCount); err != nil {
		return nil, err
	}
	var main int32
	if err := binary.Read(d.r, binary.BigEndian, &main); err != nil {
		return nil, err
	}

	if err := d.readStringPool(); err != nil {
		return nil, err
	}

	m := NewModule()
	m.Main = int(main)
	for i := uint32(0); i < funcCount; i++ {
		fn, err := d.readFunction()
		if err != nil {
			return nil, fmt.Errorf("bytecode: function %d: %w", i, err)
		}
		m.AddFunction(fn)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// readStringPool 读字符串池
func (d *Deserializer) readStringPool() error {
	var count uint32
	if err := binary.Read(d.r, binary.BigEndian, &count); err != nil {
		return err
	}
	d.stringPool = make([]string, count)
	for i := uint32(0); i < count; i++ {
		var length uint32
		if err := binary.Read(d.r, binary.BigEndian, &length); err != nil {
			return err
		}
		buf := make([]byte, length)
		if _, err := io.ReadFull(d.r, buf); err != nil {
			return err
		}
		d.stringPool[i] = string(buf)
	}
	return nil
}

// poolString 按下标取池内字符串
func (d *Deserializer) poolString(idx uint32) (string, error) {
	if int(idx) >= len(d.stringPool) {
		return "", fmt.Errorf("string pool index %d out of range", idx)
	}
	return d.stringPool[idx], nil
}

// readFunction 读单个函数
func (d *Deserializer) readFunction() (*Function, error) {
	var nameIdx, arity, numRegs uint32
	if err := binary.Read(d.r, binary.BigEndian, &nameIdx); err != nil {
		return nil, err
	}
	if err := binary.Read(d.r, binary.BigEndian, &arity); err != nil {
		return nil, err
	}
	variadic, err := d.r.ReadByte()
	if err != nil {
		return nil, err
	}
	if err := binary.Read(d.r, binary.BigEndian, &numRegs); err != nil {
		return nil, err
	}
	name, err := d.poolString(nameIdx)
	if err != nil {
		return nil, err
	}

	fn := &Function{
		Name:     name,
		Arity:    int(arity),
		Variadic: variadic != 0,
		NumRegs:  int(numRegs),
	}

	// 字面量
	var litCount uint32
	if err := binary.Read(d.r, binary.BigEndian, &litCount); err != nil {
		return nil, err
	}
	fn.Literals = make([]Value, 0, litCount)
	for i := uint32(0); i < litCount; i++ {
		lit, err := d.readLiteral()
		if err != nil {
			return nil, err
		}
		fn.Literals = append(fn.Literals, lit)
	}

	// 指令
	var codeCount uint32
	if err := binary.Read(d.r, binary.BigEndian, &codeCount); err != nil {
		return nil, err
	}
	fn.Code = make([]Instr, codeCount)
	for i := range fn.Code {
		op, err := d.r.ReadByte()
		if err != nil {
			return nil, err
		}
		ins := Instr{Op: OpCode(op)}
		if err := binary.Read(d.r, binary.BigEndian, &ins.A); err != nil {
			return nil, err
		}
		if err := binary.Read(d.r, binary.BigEndian, &ins.B); err != nil {
			return nil, err
		}
		if err := binary.Read(d.r, binary.BigEndian, &ins.C); err != nil {
			return nil, err
		}
		if err := binary.Read(d.r, binary.BigEndian, &ins.Imm); err != nil {
			return nil, err
		}
		fn.Code[i] = ins
	}
	return fn, nil
}

// readLiteral 读单个字面量
func (d *Deserializer) readLiteral() (Value, error) {
	tag, err := d.r.ReadByte()
	if err != nil {
		return NilValue, err
	}
	switch tag {
	case litNil:
		return NilValue, nil
	case litFalse:
		return FalseValue, nil
	case litTrue:
		return TrueValue, nil
	case litInt:
		var n int64
		if err := binary.Read(d.r, binary.BigEndian, &n); err != nil {
			return NilValue, err
		}
		return NewInt(n), nil
	case litBignum:
		var idx uint32
		if err := binary.Read(d.r, binary.BigEndian, &idx); err != nil {
			return NilValue, err
		}
		text, err := d.poolString(idx)
		if err != nil {
			return NilValue, err
		}
		return bignumFromText(text)
	case litFloat:
		var f float64
		if err := binary.Read(d.r, binary.BigEndian, &f); err != nil {
			return NilValue, err
		}
		return NewFloat(f), nil
	case litString:
		var idx uint32
		if err := binary.Read(d.r, binary.BigEndian, &idx); err != nil {
			return NilValue, err
		}
		str, err := d.poolString(idx)
		if err != nil {
			return NilValue, err
		}
		return NewString(str), nil
	default:
		return NilValue, fmt.Errorf("unknown literal tag %d", tag)
	}
}

// DeserializeModule 一步反序列化
func DeserializeModule(data []byte) (*Module, error) {
	return NewDeserializer(data).Deserialize()
}
