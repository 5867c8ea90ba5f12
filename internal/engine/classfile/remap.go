package classfile

import (
	"path"
	"strings"

	"go.trai.ch/codev/internal/core/domain"
	"go.trai.ch/zerr"
)

const lambdaMetafactory = "java/lang/invoke/LambdaMetafactory"

// Mapper names classes and members in the target namespace. Identity
// mappings return their input unchanged. desc is empty when only the name
// of a member is known, as for annotation elements.
type Mapper interface {
	Class(name string) string
	Field(owner, name, desc string) string
	Method(owner, name, desc string) string
}

// Remap rewrites every class and member reference of cf through m.
//
// Existing constants are never modified in place, since one Utf8 or
// NameAndType may be shared by unrelated uses. Changed values are appended
// to the pool and referrers are repointed, so bytecode offsets stay valid.
func Remap(cf *ClassFile, m Mapper) error {
	p := cf.Pool
	owner := cf.Name()

	// Everything that reads original names happens before any Class
	// constant is repointed.
	updates, err := cf.remapConstants(m)
	if err != nil {
		return err
	}

	for _, f := range cf.Fields {
		if err := cf.remapMember(owner, f, m, true); err != nil {
			return err
		}
	}
	for _, mm := range cf.Methods {
		if err := cf.remapMember(owner, mm, m, false); err != nil {
			return err
		}
	}
	if err := cf.remapClassAttributes(owner, m); err != nil {
		return err
	}

	for i, c := range updates {
		p.entries[i] = c
	}
	return nil
}

func (cf *ClassFile) remapConstants(m Mapper) (map[int]Constant, error) {
	p := cf.Pool
	n := len(p.entries)
	updates := make(map[int]Constant)

	bootstraps, err := cf.BootstrapMethods()
	if err != nil {
		return nil, err
	}

	for i := 1; i < n; i++ {
		c := p.entries[i]
		switch c.Tag {
		case TagClass:
			name := p.Utf8(c.A)
			if mapped := MapClassName(name, m.Class); mapped != name {
				updates[i] = Constant{Tag: TagClass, A: p.AddUtf8(mapped)}
			}

		case TagFieldref, TagMethodref, TagInterfaceMethodref:
			owner, name, desc := p.MemberRef(uint16(i)) //nolint:gosec // bounded by pool length
			mappedName := name
			switch {
			case strings.HasPrefix(owner, "["):
			case c.Tag == TagFieldref:
				mappedName = m.Field(owner, name, desc)
			default:
				mappedName = m.Method(owner, name, desc)
			}
			mappedDesc := MapDescriptor(desc, m.Class)
			if mappedName != name || mappedDesc != desc {
				updates[i] = Constant{Tag: c.Tag, A: c.A, B: p.AddNameAndType(mappedName, mappedDesc)}
			}

		case TagMethodType:
			desc := p.Utf8(c.A)
			if mapped := MapDescriptor(desc, m.Class); mapped != desc {
				updates[i] = Constant{Tag: TagMethodType, A: p.AddUtf8(mapped)}
			}

		case TagInvokeDynamic, TagDynamic:
			name, desc := p.NameAndType(c.B)
			mappedName := name
			if c.Tag == TagInvokeDynamic && int(c.A) < len(bootstraps) {
				if iface, samDesc, ok := cf.lambdaTarget(bootstraps[c.A], desc); ok {
					mappedName = m.Method(iface, name, samDesc)
				}
			}
			mappedDesc := MapDescriptor(desc, m.Class)
			if mappedName != name || mappedDesc != desc {
				updates[i] = Constant{Tag: c.Tag, A: c.A, B: p.AddNameAndType(mappedName, mappedDesc)}
			}
		}
	}
	return updates, nil
}

// lambdaTarget reports the functional interface and its method descriptor
// when bm bootstraps a lambda through LambdaMetafactory.
func (cf *ClassFile) lambdaTarget(bm BootstrapMethod, indyDesc string) (string, string, bool) {
	handle := cf.Pool.Get(bm.Ref)
	if handle.Tag != TagMethodHandle {
		return "", "", false
	}
	owner, name, _ := cf.Pool.MemberRef(handle.B)
	if owner != lambdaMetafactory || (name != "metafactory" && name != "altMetafactory") {
		return "", "", false
	}
	if len(bm.Args) == 0 {
		return "", "", false
	}
	samType := cf.Pool.Get(bm.Args[0])
	if samType.Tag != TagMethodType {
		return "", "", false
	}
	iface := descriptorClass(ReturnType(indyDesc))
	if iface == "" {
		return "", "", false
	}
	return iface, cf.Pool.Utf8(samType.A), true
}

func (cf *ClassFile) remapMember(owner string, mem *Member, m Mapper, field bool) error {
	p := cf.Pool
	name, desc := cf.MemberName(mem)

	mappedName := name
	switch {
	case field:
		mappedName = m.Field(owner, name, desc)
	case name != "<init>" && name != "<clinit>":
		mappedName = m.Method(owner, name, desc)
	}
	if mappedName != name {
		mem.Name = p.AddUtf8(mappedName)
	}
	if mapped := MapDescriptor(desc, m.Class); mapped != desc {
		mem.Desc = p.AddUtf8(mapped)
	}

	for _, a := range mem.Attributes {
		attrName := p.Utf8(a.Name)
		switch {
		case attrName == AttrSignature:
			a.Data = cf.remapSignatureData(a.Data, m)
		case attrName == AttrCode:
			data, err := cf.remapCode(a.Data, m)
			if err != nil {
				return zerr.With(err, "member", name)
			}
			a.Data = data
		case isAnnotationAttribute(attrName):
			data, err := cf.remapAnnotationAttribute(attrName, a.Data, m)
			if err != nil {
				return zerr.With(err, "member", name)
			}
			a.Data = data
		}
	}
	return nil
}

func (cf *ClassFile) remapSignatureData(data []byte, m Mapper) []byte {
	sig := cf.Pool.Utf8(u2Attribute(&Attribute{Data: data}))
	if mapped := MapSignature(sig, m.Class); mapped != sig {
		return u2Data(cf.Pool.AddUtf8(mapped))
	}
	return data
}

// remapCode rewrites the local variable tables and type annotations nested
// in a Code attribute. The bytecode itself only holds pool indices.
func (cf *ClassFile) remapCode(data []byte, m Mapper) ([]byte, error) {
	p := cf.Pool
	r := newReader(data)
	w := &writer{}

	w.u2(r.u2())
	w.u2(r.u2())
	codeLen := r.u4()
	w.u4(codeLen)
	w.raw(r.bytes(int(codeLen)))
	handlers := r.u2()
	w.u2(handlers)
	w.raw(r.bytes(int(handlers) * 8))

	attrs := parseAttributes(r)
	if r.err != nil {
		return nil, r.err
	}

	for _, a := range attrs {
		switch name := p.Utf8(a.Name); name {
		case AttrLocalVariableTable, AttrLocalVariableTypeTable:
			a.Data = cf.remapLocals(a.Data, m, name == AttrLocalVariableTypeTable)
		case AttrVisibleTypeAnnotations, AttrInvisibleTypeAnnots:
			out, err := cf.remapAnnotationAttribute(name, a.Data, m)
			if err != nil {
				return nil, err
			}
			a.Data = out
		}
	}
	if err := encodeAttributes(w, attrs); err != nil {
		return nil, err
	}
	return w.buf, nil
}

func (cf *ClassFile) remapLocals(data []byte, m Mapper, signatures bool) []byte {
	p := cf.Pool
	r := newReader(data)
	w := &writer{}
	n := r.u2()
	w.u2(n)
	for i := 0; i < int(n) && r.err == nil; i++ {
		w.u2(r.u2())
		w.u2(r.u2())
		w.u2(r.u2())
		desc := p.Utf8(r.u2())
		if signatures {
			desc = MapSignature(desc, m.Class)
		} else {
			desc = MapDescriptor(desc, m.Class)
		}
		w.u2(p.AddUtf8(desc))
		w.u2(r.u2())
	}
	if r.err != nil {
		return data
	}
	return w.buf
}

func (cf *ClassFile) remapClassAttributes(owner string, m Mapper) error {
	p := cf.Pool
	mappedOwner := m.Class(owner)

	for _, a := range cf.Attributes {
		name := p.Utf8(a.Name)
		switch {
		case name == AttrSignature:
			a.Data = cf.remapSignatureData(a.Data, m)

		case name == AttrEnclosingMethod:
			class, method, ok := cf.EnclosingMethod()
			if !ok || method == 0 {
				continue
			}
			outer := p.ClassName(class)
			mName, mDesc := p.NameAndType(method)
			nat := p.AddNameAndType(m.Method(outer, mName, mDesc), MapDescriptor(mDesc, m.Class))
			a.Data = append(u2Data(class), u2Data(nat)...)

		case name == AttrSourceFile && mappedOwner != owner:
			source := p.Utf8(u2Attribute(a))
			a.Data = u2Data(p.AddUtf8(sourceFileName(mappedOwner, source)))

		case name == AttrRecord:
			data, err := cf.remapRecord(owner, a.Data, m)
			if err != nil {
				return err
			}
			a.Data = data

		case isAnnotationAttribute(name):
			data, err := cf.remapAnnotationAttribute(name, a.Data, m)
			if err != nil {
				return err
			}
			a.Data = data
		}
	}

	entries, err := cf.InnerClasses()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	for i, e := range entries {
		if e.Name == 0 {
			continue
		}
		inner := p.ClassName(e.Inner)
		mappedInner := m.Class(inner)
		if mappedInner == inner {
			continue
		}
		mappedOuter := ""
		if e.Outer != 0 {
			mappedOuter = m.Class(p.ClassName(e.Outer))
		}
		entries[i].Name = p.AddUtf8(InnerSimpleName(mappedInner, mappedOuter))
	}
	cf.SetInnerClasses(entries)
	return nil
}

// sourceFileName derives a source file name from the outermost class,
// keeping the extension of the original name.
func sourceFileName(class, original string) string {
	top, _, _ := strings.Cut(class, "$")
	ext := path.Ext(original)
	if ext == "" {
		ext = ".java"
	}
	return path.Base(top) + ext
}

func (cf *ClassFile) remapRecord(owner string, data []byte, m Mapper) ([]byte, error) {
	p := cf.Pool
	r := newReader(data)
	w := &writer{}

	n := r.u2()
	w.u2(n)
	for i := 0; i < int(n) && r.err == nil; i++ {
		name := p.Utf8(r.u2())
		desc := p.Utf8(r.u2())
		w.u2(p.AddUtf8(m.Field(owner, name, desc)))
		w.u2(p.AddUtf8(MapDescriptor(desc, m.Class)))

		attrs := parseAttributes(r)
		for _, a := range attrs {
			attrName := p.Utf8(a.Name)
			switch {
			case attrName == AttrSignature:
				a.Data = cf.remapSignatureData(a.Data, m)
			case isAnnotationAttribute(attrName):
				out, err := cf.remapAnnotationAttribute(attrName, a.Data, m)
				if err != nil {
					return nil, err
				}
				a.Data = out
			}
		}
		if err := encodeAttributes(w, attrs); err != nil {
			return nil, err
		}
	}
	if r.err != nil {
		return nil, zerr.With(r.err, "attribute", AttrRecord)
	}
	if !r.done() {
		return nil, zerr.With(domain.ErrInvalidClassFile, "attribute", AttrRecord)
	}
	return w.buf, nil
}
