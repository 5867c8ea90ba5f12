// Package classfile parses, rewrites and encodes JVM class files at the
// constant pool level.
package classfile

import (
	"math"

	"go.trai.ch/codev/internal/core/domain"
	"go.trai.ch/zerr"
)

const magic = 0xCAFEBABE

// Access flags.
const (
	AccPublic       uint16 = 0x0001
	AccPrivate      uint16 = 0x0002
	AccProtected    uint16 = 0x0004
	AccStatic       uint16 = 0x0008
	AccFinal        uint16 = 0x0010
	AccSuper        uint16 = 0x0020
	AccSynchronized uint16 = 0x0020
	AccVolatile     uint16 = 0x0040
	AccBridge       uint16 = 0x0040
	AccTransient    uint16 = 0x0080
	AccVarargs      uint16 = 0x0080
	AccNative       uint16 = 0x0100
	AccInterface    uint16 = 0x0200
	AccAbstract     uint16 = 0x0400
	AccSynthetic    uint16 = 0x1000
	AccAnnotation   uint16 = 0x2000
	AccEnum         uint16 = 0x4000

	// VisibilityMask selects the public, private and protected bits.
	VisibilityMask = AccPublic | AccPrivate | AccProtected
)

// Attribute names.
const (
	AttrCode                   = "Code"
	AttrSignature              = "Signature"
	AttrExceptions             = "Exceptions"
	AttrInnerClasses           = "InnerClasses"
	AttrEnclosingMethod        = "EnclosingMethod"
	AttrSourceFile             = "SourceFile"
	AttrBootstrapMethods       = "BootstrapMethods"
	AttrLocalVariableTable     = "LocalVariableTable"
	AttrLocalVariableTypeTable = "LocalVariableTypeTable"
	AttrRecord                 = "Record"
	AttrAnnotationDefault      = "AnnotationDefault"
	AttrVisibleAnnotations     = "RuntimeVisibleAnnotations"
	AttrInvisibleAnnotations   = "RuntimeInvisibleAnnotations"
	AttrVisibleParameters      = "RuntimeVisibleParameterAnnotations"
	AttrInvisibleParameters    = "RuntimeInvisibleParameterAnnotations"
	AttrVisibleTypeAnnotations = "RuntimeVisibleTypeAnnotations"
	AttrInvisibleTypeAnnots    = "RuntimeInvisibleTypeAnnotations"
	AttrConstantValue          = "ConstantValue"
	AttrStackMapTable          = "StackMapTable"
	AttrLineNumberTable        = "LineNumberTable"
	AttrMethodParameters       = "MethodParameters"
	AttrNestHost               = "NestHost"
	AttrNestMembers            = "NestMembers"
	AttrPermittedSubclasses    = "PermittedSubclasses"
	AttrSynthetic              = "Synthetic"
	AttrDeprecated             = "Deprecated"
	AttrSourceDebugExtension   = "SourceDebugExtension"
)

// Version is a class file version.
type Version struct {
	Major uint16
	Minor uint16
}

// Less reports whether v is older than o.
func (v Version) Less(o Version) bool {
	if v.Major != o.Major {
		return v.Major < o.Major
	}
	return v.Minor < o.Minor
}

// Attribute is an undecoded attribute. Name indexes a Utf8 constant.
type Attribute struct {
	Name uint16
	Data []byte
}

// Member is a field or method declaration.
type Member struct {
	Access     uint16
	Name       uint16
	Desc       uint16
	Attributes []*Attribute
}

// ClassFile is a parsed class file. Indices refer to Pool.
type ClassFile struct {
	Version    Version
	Pool       *Pool
	Access     uint16
	This       uint16
	Super      uint16
	Interfaces []uint16
	Fields     []*Member
	Methods    []*Member
	Attributes []*Attribute
}

// Parse decodes a class file.
func Parse(data []byte) (*ClassFile, error) {
	r := newReader(data)
	if r.u4() != magic {
		return nil, zerr.With(domain.ErrInvalidClassFile, "reason", "bad magic")
	}

	cf := &ClassFile{}
	cf.Version.Minor = r.u2()
	cf.Version.Major = r.u2()
	cf.Pool = parsePool(r)
	cf.Access = r.u2()
	cf.This = r.u2()
	cf.Super = r.u2()

	n := int(r.u2())
	for i := 0; i < n && r.err == nil; i++ {
		cf.Interfaces = append(cf.Interfaces, r.u2())
	}
	cf.Fields = parseMembers(r)
	cf.Methods = parseMembers(r)
	cf.Attributes = parseAttributes(r)

	if r.err != nil {
		return nil, r.err
	}
	if !r.done() {
		return nil, zerr.With(domain.ErrInvalidClassFile, "reason", "trailing bytes")
	}
	return cf, nil
}

func parseMembers(r *reader) []*Member {
	n := int(r.u2())
	members := make([]*Member, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		m := &Member{Access: r.u2(), Name: r.u2(), Desc: r.u2()}
		m.Attributes = parseAttributes(r)
		members = append(members, m)
	}
	return members
}

func parseAttributes(r *reader) []*Attribute {
	n := int(r.u2())
	attrs := make([]*Attribute, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		name := r.u2()
		data := r.bytes(int(r.u4()))
		attrs = append(attrs, &Attribute{Name: name, Data: data})
	}
	return attrs
}

// Bytes encodes the class file.
func (cf *ClassFile) Bytes() ([]byte, error) {
	w := &writer{}
	w.u4(magic)
	w.u2(cf.Version.Minor)
	w.u2(cf.Version.Major)
	if err := cf.Pool.encode(w); err != nil {
		return nil, err
	}
	w.u2(cf.Access)
	w.u2(cf.This)
	w.u2(cf.Super)
	w.u2(uint16(len(cf.Interfaces))) //nolint:gosec // bounded by the class file format
	for _, i := range cf.Interfaces {
		w.u2(i)
	}
	if err := encodeMembers(w, cf.Fields); err != nil {
		return nil, err
	}
	if err := encodeMembers(w, cf.Methods); err != nil {
		return nil, err
	}
	if err := encodeAttributes(w, cf.Attributes); err != nil {
		return nil, err
	}
	return w.buf, nil
}

func encodeMembers(w *writer, members []*Member) error {
	if len(members) > math.MaxUint16 {
		return zerr.With(domain.ErrClassEncodeFailed, "members", len(members))
	}
	w.u2(uint16(len(members)))
	for _, m := range members {
		w.u2(m.Access)
		w.u2(m.Name)
		w.u2(m.Desc)
		if err := encodeAttributes(w, m.Attributes); err != nil {
			return err
		}
	}
	return nil
}

func encodeAttributes(w *writer, attrs []*Attribute) error {
	if len(attrs) > math.MaxUint16 {
		return zerr.With(domain.ErrClassEncodeFailed, "attributes", len(attrs))
	}
	w.u2(uint16(len(attrs)))
	for _, a := range attrs {
		if uint64(len(a.Data)) > math.MaxUint32 {
			return zerr.With(domain.ErrClassEncodeFailed, "attribute_length", len(a.Data))
		}
		w.u2(a.Name)
		w.u4(uint32(len(a.Data)))
		w.raw(a.Data)
	}
	return nil
}

// Name returns the internal name of the class.
func (cf *ClassFile) Name() string {
	return cf.Pool.ClassName(cf.This)
}

// SuperName returns the internal name of the super class, or "" for java/lang/Object.
func (cf *ClassFile) SuperName() string {
	if cf.Super == 0 {
		return ""
	}
	return cf.Pool.ClassName(cf.Super)
}

// InterfaceNames returns the internal names of the direct interfaces.
func (cf *ClassFile) InterfaceNames() []string {
	names := make([]string, 0, len(cf.Interfaces))
	for _, i := range cf.Interfaces {
		names = append(names, cf.Pool.ClassName(i))
	}
	return names
}

// Attribute returns the first attribute called name in attrs.
func (cf *ClassFile) Attribute(attrs []*Attribute, name string) *Attribute {
	for _, a := range attrs {
		if cf.Pool.Utf8(a.Name) == name {
			return a
		}
	}
	return nil
}

// MemberName returns the name and descriptor of m.
func (cf *ClassFile) MemberName(m *Member) (string, string) {
	return cf.Pool.Utf8(m.Name), cf.Pool.Utf8(m.Desc)
}
