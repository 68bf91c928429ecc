package bytecode

// ============================================================================
// 类与对象布局
//
// 字段按固定偏移存放在槽数组里，偏移由类（形状）决定，
// 这是字段内联缓存的前提：命中时一次指针比较加一次下标访问。
// ============================================================================

// Class 类定义（对象形状）
type Class struct {
	Name string

	// 字段名 -> 槽偏移
	fieldOffset map[string]int
	fieldNames  []string

	// 方法名 -> 函数标识（方法解析语义在引擎之外，这里只按名分派）
	Methods map[string]FuncId
}

// NewClass 创建类
func NewClass(name string, fields ...string) *Class {
	c := &Class{
		Name:        name,
		fieldOffset: make(map[string]int, len(fields)),
		Methods:     make(map[string]FuncId),
	}
	for _, f := range fields {
		c.AddField(f)
	}
	return c
}

// AddField 追加字段，返回其槽偏移
func (c *Class) AddField(name string) int {
	if off, ok := c.fieldOffset[name]; ok {
		return off
	}
	off := len(c.fieldNames)
	c.fieldOffset[name] = off
	c.fieldNames = append(c.fieldNames, name)
	return off
}

// FieldOffset 查字段偏移
func (c *Class) FieldOffset(name string) (int, bool) {
	off, ok := c.fieldOffset[name]
	return off, ok
}

// NumFields 字段数
func (c *Class) NumFields() int {
	return len(c.fieldNames)
}

// DefineMethod 注册方法
func (c *Class) DefineMethod(name string, id FuncId) {
	c.Methods[name] = id
}

// ResolveMethod 按名解析方法
func (c *Class) ResolveMethod(name string) (FuncId, bool) {
	id, ok := c.Methods[name]
	return id, ok
}

// Object 对象实例：对象头（类指针）+ 字段槽
type Object struct {
	Class *Class
	Slots []Value
}

// NewInstance 创建实例，字段槽填 nil
func NewInstance(class *Class) *Object {
	slots := make([]Value, class.NumFields())
	for i := range slots {
		slots[i] = NilValue
	}
	return &Object{Class: class, Slots: slots}
}

// GetSlot 按偏移取字段
func (o *Object) GetSlot(offset int) Value {
	return o.Slots[offset]
}

// SetSlot 按偏移存字段
func (o *Object) SetSlot(offset int, v Value) {
	o.Slots[offset] = v
}
