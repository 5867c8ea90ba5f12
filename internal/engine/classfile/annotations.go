package classfile

import "go.trai.ch/codev/internal/core/domain"

// annotationRemapper rewrites annotation structures, re-indexing every
// Utf8 it touches into the pool.
type annotationRemapper struct {
	pool *Pool
	m    Mapper
	r    *reader
	w    *writer
}

func (cf *ClassFile) remapAnnotationAttribute(name string, data []byte, m Mapper) ([]byte, error) {
	ar := &annotationRemapper{pool: cf.Pool, m: m, r: newReader(data), w: &writer{}}

	switch name {
	case AttrVisibleAnnotations, AttrInvisibleAnnotations:
		ar.annotations()
	case AttrVisibleParameters, AttrInvisibleParameters:
		params := ar.r.u1()
		ar.w.u1(params)
		for i := 0; i < int(params) && ar.r.err == nil; i++ {
			ar.annotations()
		}
	case AttrVisibleTypeAnnotations, AttrInvisibleTypeAnnots:
		n := ar.copyU2()
		for i := 0; i < int(n) && ar.r.err == nil; i++ {
			ar.typeAnnotation()
		}
	case AttrAnnotationDefault:
		ar.elementValue()
	default:
		return data, nil
	}

	if ar.r.err != nil {
		return nil, ar.r.err
	}
	if !ar.r.done() {
		return nil, domain.ErrInvalidClassFile
	}
	return ar.w.buf, nil
}

func isAnnotationAttribute(name string) bool {
	switch name {
	case AttrVisibleAnnotations, AttrInvisibleAnnotations,
		AttrVisibleParameters, AttrInvisibleParameters,
		AttrVisibleTypeAnnotations, AttrInvisibleTypeAnnots,
		AttrAnnotationDefault:
		return true
	}
	return false
}

func (ar *annotationRemapper) copyU1() uint8 {
	v := ar.r.u1()
	ar.w.u1(v)
	return v
}

func (ar *annotationRemapper) copyU2() uint16 {
	v := ar.r.u2()
	ar.w.u2(v)
	return v
}

func (ar *annotationRemapper) descriptor() string {
	desc := ar.pool.Utf8(ar.r.u2())
	mapped := MapDescriptor(desc, ar.m.Class)
	ar.w.u2(ar.pool.AddUtf8(mapped))
	return desc
}

func (ar *annotationRemapper) annotations() {
	n := ar.copyU2()
	for i := 0; i < int(n) && ar.r.err == nil; i++ {
		ar.annotation()
	}
}

func (ar *annotationRemapper) annotation() {
	desc := ar.descriptor()
	owner := descriptorClass(desc)

	pairs := ar.copyU2()
	for i := 0; i < int(pairs) && ar.r.err == nil; i++ {
		name := ar.pool.Utf8(ar.r.u2())
		if owner != "" {
			name = ar.m.Method(owner, name, "")
		}
		ar.w.u2(ar.pool.AddUtf8(name))
		ar.elementValue()
	}
}

func (ar *annotationRemapper) elementValue() {
	tag := ar.copyU1()
	switch tag {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z', 's':
		ar.copyU2()
	case 'e':
		desc := ar.descriptor()
		name := ar.pool.Utf8(ar.r.u2())
		if owner := descriptorClass(desc); owner != "" {
			name = ar.m.Field(owner, name, desc)
		}
		ar.w.u2(ar.pool.AddUtf8(name))
	case 'c':
		ar.descriptor()
	case '@':
		ar.annotation()
	case '[':
		n := ar.copyU2()
		for i := 0; i < int(n) && ar.r.err == nil; i++ {
			ar.elementValue()
		}
	default:
		ar.r.err = domain.ErrInvalidClassFile
	}
}

func (ar *annotationRemapper) typeAnnotation() {
	target := ar.copyU1()
	switch {
	case target == 0x00 || target == 0x01 || target == 0x16:
		ar.copyU1()
	case target == 0x10 || target == 0x17 || target == 0x42 || (target >= 0x43 && target <= 0x46):
		ar.copyU2()
	case target == 0x11 || target == 0x12:
		ar.copyU1()
		ar.copyU1()
	case target >= 0x13 && target <= 0x15:
	case target == 0x40 || target == 0x41:
		n := ar.copyU2()
		ar.w.raw(ar.r.bytes(int(n) * 6))
	case target >= 0x47 && target <= 0x4B:
		ar.copyU2()
		ar.copyU1()
	default:
		ar.r.err = domain.ErrInvalidClassFile
		return
	}
	pathLen := ar.copyU1()
	ar.w.raw(ar.r.bytes(int(pathLen) * 2))
	ar.annotation()
}

// descriptorClass returns the internal name of an object type descriptor.
func descriptorClass(desc string) string {
	if len(desc) > 2 && desc[0] == 'L' && desc[len(desc)-1] == ';' {
		return desc[1 : len(desc)-1]
	}
	return ""
}
