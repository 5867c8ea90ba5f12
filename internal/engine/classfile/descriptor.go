package classfile

import "strings"

// MapClassName maps an internal name. Array classes are stored as
// descriptors in Class constants and are mapped element-wise.
func MapClassName(name string, fn func(string) string) string {
	if strings.HasPrefix(name, "[") {
		return MapDescriptor(name, fn)
	}
	return fn(name)
}

// MapDescriptor maps every class name in a field or method descriptor.
func MapDescriptor(desc string, fn func(string) string) string {
	if !strings.Contains(desc, "L") {
		return desc
	}
	var sb strings.Builder
	sb.Grow(len(desc))
	for i := 0; i < len(desc); i++ {
		c := desc[i]
		sb.WriteByte(c)
		if c != 'L' {
			continue
		}
		end := strings.IndexByte(desc[i:], ';')
		if end < 0 {
			return desc
		}
		sb.WriteString(fn(desc[i+1 : i+end]))
		sb.WriteByte(';')
		i += end
	}
	return sb.String()
}

// ReturnType returns the return type descriptor of a method descriptor.
func ReturnType(desc string) string {
	if i := strings.LastIndexByte(desc, ')'); i >= 0 {
		return desc[i+1:]
	}
	return ""
}

// InnerSimpleName returns the simple name of a mapped inner class. When the
// mapped name still nests inside the mapped outer class, the remainder is
// used; otherwise the part after the last '$' or '/' is.
func InnerSimpleName(mappedInner, mappedOuter string) string {
	if mappedOuter != "" && strings.HasPrefix(mappedInner, mappedOuter+"$") {
		return mappedInner[len(mappedOuter)+1:]
	}
	if i := strings.LastIndexAny(mappedInner, "$/"); i >= 0 {
		return mappedInner[i+1:]
	}
	return mappedInner
}

// MapSignature maps every class name in a generic class, method or field
// signature. Signatures that cannot be parsed are returned unchanged.
func MapSignature(sig string, fn func(string) string) string {
	if sig == "" {
		return sig
	}
	p := &sigParser{s: sig, fn: fn}
	p.out.Grow(len(sig))

	if p.peek() == '<' {
		p.typeParams()
	}
	if p.peek() == '(' {
		p.emit()
		for !p.failed && p.peek() != ')' {
			p.javaType()
		}
		p.expect(')')
		p.javaType()
		for !p.failed && p.peek() == '^' {
			p.emit()
			p.javaType()
		}
	} else {
		for !p.failed && p.pos < len(p.s) {
			p.javaType()
		}
	}

	if p.failed || p.pos != len(p.s) {
		return sig
	}
	return p.out.String()
}

type sigParser struct {
	s      string
	pos    int
	out    strings.Builder
	fn     func(string) string
	failed bool
}

func (p *sigParser) peek() byte {
	if p.pos >= len(p.s) {
		return 0
	}
	return p.s[p.pos]
}

func (p *sigParser) emit() {
	p.out.WriteByte(p.s[p.pos])
	p.pos++
}

func (p *sigParser) expect(c byte) {
	if p.peek() != c {
		p.failed = true
		return
	}
	p.emit()
}

func (p *sigParser) ident(stops string) string {
	start := p.pos
	for p.pos < len(p.s) && !strings.ContainsRune(stops, rune(p.s[p.pos])) {
		p.pos++
	}
	if p.pos >= len(p.s) {
		p.failed = true
	}
	return p.s[start:p.pos]
}

func (p *sigParser) typeParams() {
	p.emit()
	for !p.failed && p.peek() != '>' {
		p.out.WriteString(p.ident(":"))
		for !p.failed && p.peek() == ':' {
			p.emit()
			switch p.peek() {
			case 'L', 'T', '[':
				p.javaType()
			}
		}
	}
	p.expect('>')
}

func (p *sigParser) javaType() {
	if p.failed {
		return
	}
	switch p.peek() {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z', 'V':
		p.emit()
	case '[':
		p.emit()
		p.javaType()
	case 'T':
		p.out.WriteString(p.ident(";"))
		p.expect(';')
	case 'L':
		p.classType()
	default:
		p.failed = true
	}
}

func (p *sigParser) classType() {
	p.emit()
	name := p.ident("<.;")
	mapped := p.fn(name)
	p.out.WriteString(mapped)

	for !p.failed {
		switch p.peek() {
		case '<':
			p.typeArgs()
		case '.':
			p.emit()
			simple := p.ident("<.;")
			name += "$" + simple
			mappedInner := p.fn(name)
			p.out.WriteString(InnerSimpleName(mappedInner, mapped))
			mapped = mappedInner
		case ';':
			p.emit()
			return
		default:
			p.failed = true
		}
	}
}

func (p *sigParser) typeArgs() {
	p.emit()
	for !p.failed && p.peek() != '>' {
		switch p.peek() {
		case '*':
			p.emit()
		case '+', '-':
			p.emit()
			p.javaType()
		default:
			p.javaType()
		}
	}
	p.expect('>')
}
