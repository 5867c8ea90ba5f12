package classfile

import (
	"bytes"
	"encoding/binary"
	"math"
	"strconv"
	"strings"

	"go.trai.ch/codev/internal/core/domain"
	"go.trai.ch/zerr"
)

// Part is a field or method together with the class file declaring it.
type Part struct {
	From   *ClassFile
	Member *Member
}

// Layout describes a class assembled from members of several class files.
// Version, access flags, names and class attributes come from Base.
type Layout struct {
	Base       *ClassFile
	Interfaces []string
	Fields     []Part
	Methods    []Part
}

// Assemble builds the class described by l in a fresh constant pool.
//
// Constants loaded by ldc are added first so that they stay addressable by
// its one byte operand. Attributes that are not understood are dropped,
// since they may hold indices into a pool that is not carried over.
func Assemble(l Layout) (*ClassFile, error) {
	a := &assembler{
		cf:         &ClassFile{Version: l.Base.Version, Pool: newPool(), Access: l.Base.Access},
		interned:   make(map[Constant]uint16),
		sources:    make(map[*ClassFile]*importer),
		bootstraps: make(map[string]uint16),
	}

	for _, p := range l.Methods {
		if err := a.source(p.From).reserveLdc(p.Member); err != nil {
			return nil, err
		}
	}

	base := a.source(l.Base)
	var err error
	if a.cf.This, err = base.constant(l.Base.This); err != nil {
		return nil, err
	}
	if a.cf.Super, err = base.constant(l.Base.Super); err != nil {
		return nil, err
	}
	for _, name := range l.Interfaces {
		a.cf.Interfaces = append(a.cf.Interfaces, a.class(name))
	}

	for _, p := range l.Fields {
		m, err := a.source(p.From).member(p.Member)
		if err != nil {
			return nil, err
		}
		a.cf.Fields = append(a.cf.Fields, m)
	}
	for _, p := range l.Methods {
		m, err := a.source(p.From).member(p.Member)
		if err != nil {
			return nil, err
		}
		a.cf.Methods = append(a.cf.Methods, m)
	}

	if a.cf.Attributes, err = base.attributes(l.Base.Attributes); err != nil {
		return nil, err
	}
	if len(a.methods) > 0 {
		w := &writer{}
		w.u2(uint16(len(a.methods))) //nolint:gosec // bounded by the u2 index space
		for _, bm := range a.methods {
			w.u2(bm.Ref)
			w.u2(uint16(len(bm.Args))) //nolint:gosec // copied from a u2 count
			for _, arg := range bm.Args {
				w.u2(arg)
			}
		}
		a.cf.Attributes = append(a.cf.Attributes, &Attribute{Name: a.cf.Pool.AddUtf8(AttrBootstrapMethods), Data: w.buf})
	}
	return a.cf, nil
}

type assembler struct {
	cf         *ClassFile
	interned   map[Constant]uint16
	sources    map[*ClassFile]*importer
	methods    []BootstrapMethod
	bootstraps map[string]uint16
}

func (a *assembler) source(cf *ClassFile) *importer {
	im, ok := a.sources[cf]
	if !ok {
		im = &importer{a: a, src: cf, memo: make(map[uint16]uint16), bootstrapMemo: make(map[uint16]uint16)}
		a.sources[cf] = im
	}
	return im
}

func (a *assembler) intern(c Constant) uint16 {
	if i, ok := a.interned[c]; ok {
		return i
	}
	i := a.cf.Pool.add(c)
	a.interned[c] = i
	return i
}

func (a *assembler) class(name string) uint16 {
	return a.intern(Constant{Tag: TagClass, A: a.cf.Pool.AddUtf8(name)})
}

func (a *assembler) bootstrap(bm BootstrapMethod) uint16 {
	var key strings.Builder
	key.WriteString(strconv.Itoa(int(bm.Ref)))
	for _, arg := range bm.Args {
		key.WriteByte(',')
		key.WriteString(strconv.Itoa(int(arg)))
	}
	if i, ok := a.bootstraps[key.String()]; ok {
		return i
	}
	i := uint16(len(a.methods)) //nolint:gosec // bounded by the u2 index space
	a.methods = append(a.methods, bm)
	a.bootstraps[key.String()] = i
	return i
}

// importer copies constants and attributes of one class file into the
// assembled class.
type importer struct {
	a             *assembler
	src           *ClassFile
	memo          map[uint16]uint16
	bootstrapMemo map[uint16]uint16
	srcMethods    []BootstrapMethod
	srcLoaded     bool
}

func (im *importer) constant(i uint16) (uint16, error) {
	if i == 0 {
		return 0, nil
	}
	if v, ok := im.memo[i]; ok {
		return v, nil
	}

	c := im.src.Pool.Get(i)
	var out uint16
	switch c.Tag {
	case TagUtf8:
		out = im.a.cf.Pool.AddUtf8(c.Utf8)
	case TagInteger, TagFloat, TagLong, TagDouble:
		out = im.a.intern(Constant{Tag: c.Tag, Bits: c.Bits})
	case TagClass, TagString, TagMethodType, TagModule, TagPackage:
		a, err := im.constant(c.A)
		if err != nil {
			return 0, err
		}
		out = im.a.intern(Constant{Tag: c.Tag, A: a})
	case TagFieldref, TagMethodref, TagInterfaceMethodref, TagNameAndType:
		a, err := im.constant(c.A)
		if err != nil {
			return 0, err
		}
		b, err := im.constant(c.B)
		if err != nil {
			return 0, err
		}
		out = im.a.intern(Constant{Tag: c.Tag, A: a, B: b})
	case TagMethodHandle:
		b, err := im.constant(c.B)
		if err != nil {
			return 0, err
		}
		out = im.a.intern(Constant{Tag: c.Tag, A: c.A, B: b})
	case TagDynamic, TagInvokeDynamic:
		bsm, err := im.bootstrap(c.A)
		if err != nil {
			return 0, err
		}
		b, err := im.constant(c.B)
		if err != nil {
			return 0, err
		}
		out = im.a.intern(Constant{Tag: c.Tag, A: bsm, B: b})
	default:
		return 0, zerr.With(zerr.With(domain.ErrInvalidClassFile, "tag", c.Tag), "index", i)
	}
	im.memo[i] = out
	return out, nil
}

func (im *importer) bootstrap(i uint16) (uint16, error) {
	if v, ok := im.bootstrapMemo[i]; ok {
		return v, nil
	}
	if !im.srcLoaded {
		methods, err := im.src.BootstrapMethods()
		if err != nil {
			return 0, err
		}
		im.srcMethods, im.srcLoaded = methods, true
	}
	if int(i) >= len(im.srcMethods) {
		return 0, zerr.With(zerr.With(domain.ErrInvalidClassFile, "reason", "bootstrap method out of range"), "index", i)
	}

	src := im.srcMethods[i]
	ref, err := im.constant(src.Ref)
	if err != nil {
		return 0, err
	}
	bm := BootstrapMethod{Ref: ref, Args: make([]uint16, len(src.Args))}
	for j, arg := range src.Args {
		if bm.Args[j], err = im.constant(arg); err != nil {
			return 0, err
		}
	}
	out := im.a.bootstrap(bm)
	im.bootstrapMemo[i] = out
	return out, nil
}

// reserveLdc imports the constants m loads with ldc.
func (im *importer) reserveLdc(m *Member) error {
	attr := im.src.Attribute(m.Attributes, AttrCode)
	if attr == nil {
		return nil
	}
	code, err := ParseCode(attr.Data)
	if err != nil {
		return err
	}
	instructions, err := Instructions(code.Bytecode)
	if err != nil {
		return err
	}
	for _, ins := range instructions {
		if ins.Op != opLdc {
			continue
		}
		if _, err := im.constant(ins.Const); err != nil {
			return err
		}
	}
	return nil
}

func (im *importer) member(m *Member) (*Member, error) {
	name, err := im.constant(m.Name)
	if err != nil {
		return nil, err
	}
	desc, err := im.constant(m.Desc)
	if err != nil {
		return nil, err
	}
	attrs, err := im.attributes(m.Attributes)
	if err != nil {
		return nil, zerr.With(err, "member", im.src.Pool.Utf8(m.Name)+im.src.Pool.Utf8(m.Desc))
	}
	return &Member{Access: m.Access, Name: name, Desc: desc, Attributes: attrs}, nil
}

func (im *importer) attributes(attrs []*Attribute) ([]*Attribute, error) {
	out := make([]*Attribute, 0, len(attrs))
	for _, attr := range attrs {
		name := im.src.Pool.Utf8(attr.Name)
		data, keep, err := im.attribute(name, attr.Data)
		if err != nil {
			return nil, zerr.With(err, "attribute", name)
		}
		if keep {
			out = append(out, &Attribute{Name: im.a.cf.Pool.AddUtf8(name), Data: data})
		}
	}
	return out, nil
}

func (im *importer) attribute(name string, data []byte) ([]byte, bool, error) {
	switch name {
	case AttrLineNumberTable, AttrSynthetic, AttrDeprecated, AttrSourceDebugExtension:
		return data, true, nil
	case AttrCode:
		out, err := im.code(data)
		return out, err == nil, err
	}

	c := &copier{im: im, r: newReader(data), w: &writer{}}
	switch name {
	case AttrConstantValue, AttrSignature, AttrSourceFile, AttrNestHost:
		c.ref()
	case AttrExceptions, AttrNestMembers, AttrPermittedSubclasses:
		c.refs()
	case AttrEnclosingMethod:
		c.ref()
		c.ref()
	case AttrInnerClasses:
		n := c.u2()
		for i := 0; i < int(n) && c.r.err == nil; i++ {
			c.ref()
			c.ref()
			c.ref()
			c.u2()
		}
	case AttrLocalVariableTable, AttrLocalVariableTypeTable:
		n := c.u2()
		for i := 0; i < int(n) && c.r.err == nil; i++ {
			c.u2()
			c.u2()
			c.ref()
			c.ref()
			c.u2()
		}
	case AttrMethodParameters:
		n := c.u1()
		for i := 0; i < int(n) && c.r.err == nil; i++ {
			c.ref()
			c.u2()
		}
	case AttrStackMapTable:
		c.stackMap()
	case AttrRecord:
		n := c.u2()
		for i := 0; i < int(n) && c.r.err == nil; i++ {
			c.ref()
			c.ref()
			attrs, err := im.attributes(parseAttributes(c.r))
			if err != nil {
				return nil, false, err
			}
			if err := encodeAttributes(c.w, attrs); err != nil {
				return nil, false, err
			}
		}
	default:
		if !c.annotationAttribute(name) {
			return nil, false, nil
		}
	}
	if err := c.finish(); err != nil {
		return nil, false, err
	}
	return c.w.buf, true, nil
}

func (im *importer) code(data []byte) ([]byte, error) {
	code, err := ParseCode(data)
	if err != nil {
		return nil, err
	}
	instructions, err := Instructions(code.Bytecode)
	if err != nil {
		return nil, err
	}

	code.Bytecode = bytes.Clone(code.Bytecode)
	for _, ins := range instructions {
		width := constOperand(ins.Op)
		if width == 0 {
			continue
		}
		v, err := im.constant(ins.Const)
		if err != nil {
			return nil, err
		}
		if width == 1 {
			if v > math.MaxUint8 {
				return nil, zerr.With(zerr.With(domain.ErrConstantPoolOverflow, "reason", "ldc operand"), "index", v)
			}
			code.Bytecode[ins.Offset+1] = byte(v)
			continue
		}
		binary.BigEndian.PutUint16(code.Bytecode[ins.Offset+1:], v)
	}

	for i, h := range code.Handlers {
		if code.Handlers[i].CatchType, err = im.constant(h.CatchType); err != nil {
			return nil, err
		}
	}
	if code.Attributes, err = im.attributes(code.Attributes); err != nil {
		return nil, err
	}
	return code.encode()
}

// copier copies an attribute body, translating each constant pool index it
// meets through im. A nil im copies indices unchanged.
type copier struct {
	im    *importer
	r     *reader
	w     *writer
	types []uint16
}

func (c *copier) finish() error {
	if c.r.err != nil {
		return c.r.err
	}
	if !c.r.done() {
		return zerr.With(domain.ErrInvalidClassFile, "reason", "trailing bytes in attribute")
	}
	return nil
}

func (c *copier) u1() uint8 {
	v := c.r.u1()
	c.w.u1(v)
	return v
}

func (c *copier) u2() uint16 {
	v := c.r.u2()
	c.w.u2(v)
	return v
}

// ref copies one constant pool index and returns its value in the source.
func (c *copier) ref() uint16 {
	i := c.r.u2()
	if c.r.err != nil {
		return 0
	}
	if c.im == nil {
		c.w.u2(i)
		return i
	}
	v, err := c.im.constant(i)
	if err != nil {
		c.r.err = err
		return i
	}
	c.w.u2(v)
	return i
}

func (c *copier) refs() {
	n := c.u2()
	for i := 0; i < int(n) && c.r.err == nil; i++ {
		c.ref()
	}
}

func (c *copier) annotationAttribute(name string) bool {
	switch name {
	case AttrVisibleAnnotations, AttrInvisibleAnnotations:
		c.annotations()
	case AttrVisibleParameters, AttrInvisibleParameters:
		n := c.u1()
		for i := 0; i < int(n) && c.r.err == nil; i++ {
			c.annotations()
		}
	case AttrVisibleTypeAnnotations, AttrInvisibleTypeAnnots:
		n := c.u2()
		for i := 0; i < int(n) && c.r.err == nil; i++ {
			c.typeAnnotation()
		}
	case AttrAnnotationDefault:
		c.elementValue()
	default:
		return false
	}
	return true
}

func (c *copier) annotations() {
	n := c.u2()
	for i := 0; i < int(n) && c.r.err == nil; i++ {
		c.types = append(c.types, c.annotation())
	}
}

func (c *copier) annotation() uint16 {
	typ := c.ref()
	pairs := c.u2()
	for i := 0; i < int(pairs) && c.r.err == nil; i++ {
		c.ref()
		c.elementValue()
	}
	return typ
}

func (c *copier) elementValue() {
	switch tag := c.u1(); tag {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z', 's', 'c':
		c.ref()
	case 'e':
		c.ref()
		c.ref()
	case '@':
		c.annotation()
	case '[':
		n := c.u2()
		for i := 0; i < int(n) && c.r.err == nil; i++ {
			c.elementValue()
		}
	default:
		if c.r.err == nil {
			c.r.err = zerr.With(domain.ErrInvalidClassFile, "element_tag", tag)
		}
	}
}

func (c *copier) typeAnnotation() {
	target := c.u1()
	switch {
	case target == 0x00 || target == 0x01 || target == 0x16:
		c.u1()
	case target == 0x10 || target == 0x17 || target == 0x42 || (target >= 0x43 && target <= 0x46):
		c.u2()
	case target == 0x11 || target == 0x12:
		c.u1()
		c.u1()
	case target >= 0x13 && target <= 0x15:
	case target == 0x40 || target == 0x41:
		n := c.u2()
		c.w.raw(c.r.bytes(int(n) * 6))
	case target >= 0x47 && target <= 0x4B:
		c.u2()
		c.u1()
	default:
		if c.r.err == nil {
			c.r.err = zerr.With(domain.ErrInvalidClassFile, "target_type", target)
		}
		return
	}
	path := c.u1()
	c.w.raw(c.r.bytes(int(path) * 2))
	c.annotation()
}

// Verification type tags with an operand.
const (
	verificationObject        = 7
	verificationUninitialized = 8
)

func (c *copier) stackMap() {
	n := c.u2()
	for i := 0; i < int(n) && c.r.err == nil; i++ {
		frame := c.u1()
		switch {
		case frame <= 63:
		case frame <= 127:
			c.verificationType()
		case frame == 247:
			c.u2()
			c.verificationType()
		case frame >= 248 && frame <= 251:
			c.u2()
		case frame >= 252 && frame <= 254:
			c.u2()
			for j := 0; j < int(frame)-251; j++ {
				c.verificationType()
			}
		case frame == 255:
			c.u2()
			locals := c.u2()
			for j := 0; j < int(locals) && c.r.err == nil; j++ {
				c.verificationType()
			}
			stack := c.u2()
			for j := 0; j < int(stack) && c.r.err == nil; j++ {
				c.verificationType()
			}
		default:
			if c.r.err == nil {
				c.r.err = zerr.With(domain.ErrInvalidClassFile, "frame_type", frame)
			}
		}
	}
}

func (c *copier) verificationType() {
	switch tag := c.u1(); {
	case tag == verificationObject:
		c.types = append(c.types, c.ref())
	case tag == verificationUninitialized:
		c.u2()
	case tag > verificationUninitialized && c.r.err == nil:
		c.r.err = zerr.With(domain.ErrInvalidClassFile, "verification_type", tag)
	}
}
