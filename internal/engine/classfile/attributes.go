package classfile

// InnerClassEntry is one row of an InnerClasses attribute. Zero indices mean absent.
type InnerClassEntry struct {
	Inner  uint16
	Outer  uint16
	Name   uint16
	Access uint16
}

// InnerClasses decodes the InnerClasses attribute of the class.
func (cf *ClassFile) InnerClasses() ([]InnerClassEntry, error) {
	a := cf.Attribute(cf.Attributes, AttrInnerClasses)
	if a == nil {
		return nil, nil
	}
	r := newReader(a.Data)
	n := int(r.u2())
	entries := make([]InnerClassEntry, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		entries = append(entries, InnerClassEntry{Inner: r.u2(), Outer: r.u2(), Name: r.u2(), Access: r.u2()})
	}
	return entries, r.err
}

// SetInnerClasses replaces the InnerClasses attribute of the class.
func (cf *ClassFile) SetInnerClasses(entries []InnerClassEntry) {
	w := &writer{}
	w.u2(uint16(len(entries))) //nolint:gosec // bounded by the class file format
	for _, e := range entries {
		w.u2(e.Inner)
		w.u2(e.Outer)
		w.u2(e.Name)
		w.u2(e.Access)
	}
	cf.SetAttribute(&cf.Attributes, AttrInnerClasses, w.buf)
}

// SetAttribute replaces the data of the attribute called name in attrs,
// appending it when absent.
func (cf *ClassFile) SetAttribute(attrs *[]*Attribute, name string, data []byte) {
	if a := cf.Attribute(*attrs, name); a != nil {
		a.Data = data
		return
	}
	*attrs = append(*attrs, &Attribute{Name: cf.Pool.AddUtf8(name), Data: data})
}

// u2Attribute decodes an attribute holding a single constant pool index.
func u2Attribute(a *Attribute) uint16 {
	if a == nil {
		return 0
	}
	r := newReader(a.Data)
	v := r.u2()
	if r.err != nil {
		return 0
	}
	return v
}

func u2Data(v uint16) []byte {
	return []byte{byte(v >> 8), byte(v)}
}

// Signature returns the generic signature stored in attrs, or "".
func (cf *ClassFile) Signature(attrs []*Attribute) string {
	return cf.Pool.Utf8(u2Attribute(cf.Attribute(attrs, AttrSignature)))
}

// Exceptions returns the class indices of a method's Exceptions attribute.
func (cf *ClassFile) Exceptions(m *Member) []uint16 {
	a := cf.Attribute(m.Attributes, AttrExceptions)
	if a == nil {
		return nil
	}
	r := newReader(a.Data)
	n := int(r.u2())
	out := make([]uint16, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		out = append(out, r.u2())
	}
	return out
}

// EnclosingMethod returns the class index and NameAndType index of the
// EnclosingMethod attribute. ok is false when the class has none.
func (cf *ClassFile) EnclosingMethod() (class, method uint16, ok bool) {
	a := cf.Attribute(cf.Attributes, AttrEnclosingMethod)
	if a == nil {
		return 0, 0, false
	}
	r := newReader(a.Data)
	class, method = r.u2(), r.u2()
	return class, method, r.err == nil
}

// BootstrapMethod is one entry of the BootstrapMethods attribute.
type BootstrapMethod struct {
	Ref  uint16
	Args []uint16
}

// BootstrapMethods decodes the BootstrapMethods attribute.
func (cf *ClassFile) BootstrapMethods() ([]BootstrapMethod, error) {
	a := cf.Attribute(cf.Attributes, AttrBootstrapMethods)
	if a == nil {
		return nil, nil
	}
	r := newReader(a.Data)
	n := int(r.u2())
	out := make([]BootstrapMethod, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		bm := BootstrapMethod{Ref: r.u2()}
		argc := int(r.u2())
		for j := 0; j < argc && r.err == nil; j++ {
			bm.Args = append(bm.Args, r.u2())
		}
		out = append(out, bm)
	}
	return out, r.err
}
