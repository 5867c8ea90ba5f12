package classfile

import (
	"math"

	"go.trai.ch/codev/internal/core/domain"
	"go.trai.ch/zerr"
)

// Constant pool tags.
const (
	TagUtf8               uint8 = 1
	TagInteger            uint8 = 3
	TagFloat              uint8 = 4
	TagLong               uint8 = 5
	TagDouble             uint8 = 6
	TagClass              uint8 = 7
	TagString             uint8 = 8
	TagFieldref           uint8 = 9
	TagMethodref          uint8 = 10
	TagInterfaceMethodref uint8 = 11
	TagNameAndType        uint8 = 12
	TagMethodHandle       uint8 = 15
	TagMethodType         uint8 = 16
	TagDynamic            uint8 = 17
	TagInvokeDynamic      uint8 = 18
	TagModule             uint8 = 19
	TagPackage            uint8 = 20
)

// Constant is one constant pool slot. The meaning of A and B depends on Tag:
//
//	Class, String, MethodType, Module, Package: A is a Utf8 index
//	Fieldref, Methodref, InterfaceMethodref:    A is a Class, B a NameAndType
//	NameAndType:                                A is the name, B the descriptor
//	MethodHandle:                               A is the reference kind, B the reference
//	Dynamic, InvokeDynamic:                     A is a bootstrap method index, B a NameAndType
//
// Numeric constants keep their raw bits. The slot after a Long or Double has Tag 0.
type Constant struct {
	Tag  uint8
	Utf8 string
	A, B uint16
	Bits uint64
}

// Pool is a constant pool. Index 0 is unused, as in the class file.
type Pool struct {
	entries []Constant
	utf8    map[string]uint16
}

func newPool() *Pool {
	return &Pool{entries: make([]Constant, 1), utf8: make(map[string]uint16)}
}

// Len returns the constant_pool_count of the pool.
func (p *Pool) Len() int {
	return len(p.entries)
}

// Get returns the constant at i, or a zero Constant when i is out of range.
func (p *Pool) Get(i uint16) Constant {
	if int(i) >= len(p.entries) {
		return Constant{}
	}
	return p.entries[i]
}

// Utf8 returns the string at i, or "" when i is not a Utf8 constant.
func (p *Pool) Utf8(i uint16) string {
	c := p.Get(i)
	if c.Tag != TagUtf8 {
		return ""
	}
	return c.Utf8
}

// ClassName returns the internal name of the Class constant at i.
func (p *Pool) ClassName(i uint16) string {
	c := p.Get(i)
	if c.Tag != TagClass {
		return ""
	}
	return p.Utf8(c.A)
}

// NameAndType returns the name and descriptor of the NameAndType constant at i.
func (p *Pool) NameAndType(i uint16) (string, string) {
	c := p.Get(i)
	if c.Tag != TagNameAndType {
		return "", ""
	}
	return p.Utf8(c.A), p.Utf8(c.B)
}

// MemberRef returns the owner, name and descriptor of a field or method reference.
func (p *Pool) MemberRef(i uint16) (string, string, string) {
	c := p.Get(i)
	switch c.Tag {
	case TagFieldref, TagMethodref, TagInterfaceMethodref:
		name, desc := p.NameAndType(c.B)
		return p.ClassName(c.A), name, desc
	default:
		return "", "", ""
	}
}

func (p *Pool) add(c Constant) uint16 {
	i := uint16(len(p.entries)) //nolint:gosec // checked on encode
	p.entries = append(p.entries, c)
	if c.Tag == TagLong || c.Tag == TagDouble {
		p.entries = append(p.entries, Constant{})
	}
	return i
}

// Append adds c without looking for an equal constant and returns its index.
func (p *Pool) Append(c Constant) uint16 {
	i := p.add(c)
	if c.Tag == TagUtf8 {
		if _, seen := p.utf8[c.Utf8]; !seen {
			p.utf8[c.Utf8] = i
		}
	}
	return i
}

// AddUtf8 returns the index of a Utf8 constant holding s, appending one when needed.
func (p *Pool) AddUtf8(s string) uint16 {
	if i, ok := p.utf8[s]; ok {
		return i
	}
	i := p.add(Constant{Tag: TagUtf8, Utf8: s})
	p.utf8[s] = i
	return i
}

// AddClass returns the index of a Class constant for name.
func (p *Pool) AddClass(name string) uint16 {
	nameIdx := p.AddUtf8(name)
	if i, ok := p.find(Constant{Tag: TagClass, A: nameIdx}); ok {
		return i
	}
	return p.add(Constant{Tag: TagClass, A: nameIdx})
}

// AddNameAndType returns the index of a NameAndType constant.
func (p *Pool) AddNameAndType(name, desc string) uint16 {
	c := Constant{Tag: TagNameAndType, A: p.AddUtf8(name), B: p.AddUtf8(desc)}
	if i, ok := p.find(c); ok {
		return i
	}
	return p.add(c)
}

func (p *Pool) find(c Constant) (uint16, bool) {
	for i := 1; i < len(p.entries); i++ {
		e := p.entries[i]
		if e.Tag == c.Tag && e.A == c.A && e.B == c.B {
			return uint16(i), true //nolint:gosec // bounded by pool length
		}
	}
	return 0, false
}

func parsePool(r *reader) *Pool {
	count := int(r.u2())
	p := &Pool{entries: make([]Constant, 1, count), utf8: make(map[string]uint16)}

	for len(p.entries) < count && r.err == nil {
		tag := r.u1()
		c := Constant{Tag: tag}
		switch tag {
		case TagUtf8:
			c.Utf8 = decodeModifiedUTF8(r.bytes(int(r.u2())))
		case TagInteger, TagFloat:
			c.Bits = uint64(r.u4())
		case TagLong, TagDouble:
			c.Bits = uint64(r.u4())<<32 | uint64(r.u4())
		case TagClass, TagString, TagMethodType, TagModule, TagPackage:
			c.A = r.u2()
		case TagFieldref, TagMethodref, TagInterfaceMethodref, TagNameAndType,
			TagDynamic, TagInvokeDynamic:
			c.A = r.u2()
			c.B = r.u2()
		case TagMethodHandle:
			c.A = uint16(r.u1())
			c.B = r.u2()
		default:
			r.err = zerr.With(zerr.With(domain.ErrInvalidClassFile, "tag", tag), "index", len(p.entries))
			return p
		}
		i := p.add(c)
		if tag == TagUtf8 {
			if _, seen := p.utf8[c.Utf8]; !seen {
				p.utf8[c.Utf8] = i
			}
		}
	}
	return p
}

func (p *Pool) encode(w *writer) error {
	if len(p.entries) > math.MaxUint16 {
		return zerr.With(domain.ErrConstantPoolOverflow, "count", len(p.entries))
	}
	w.u2(uint16(len(p.entries))) //nolint:gosec // checked above

	for i := 1; i < len(p.entries); i++ {
		c := p.entries[i]
		w.u1(c.Tag)
		switch c.Tag {
		case TagUtf8:
			b := encodeModifiedUTF8(c.Utf8)
			if len(b) > math.MaxUint16 {
				return zerr.With(domain.ErrClassEncodeFailed, "utf8_length", len(b))
			}
			w.u2(uint16(len(b)))
			w.raw(b)
		case TagInteger, TagFloat:
			w.u4(uint32(c.Bits)) //nolint:gosec // 32-bit constant
		case TagLong, TagDouble:
			w.u4(uint32(c.Bits >> 32))
			w.u4(uint32(c.Bits)) //nolint:gosec // low word
			i++
		case TagClass, TagString, TagMethodType, TagModule, TagPackage:
			w.u2(c.A)
		case TagMethodHandle:
			w.u1(uint8(c.A)) //nolint:gosec // reference kind is a byte
			w.u2(c.B)
		default:
			w.u2(c.A)
			w.u2(c.B)
		}
	}
	return nil
}
