package classfile

// DescriptorClasses returns the classes named by the object types of a field
// or method descriptor. Array types are skipped.
func DescriptorClasses(desc string) []string {
	var out []string
	for i := 0; i < len(desc); i++ {
		switch desc[i] {
		case 'L':
			end := i + 1
			for end < len(desc) && desc[end] != ';' {
				end++
			}
			out = append(out, desc[i+1:end])
			i = end
		case '[':
			for i < len(desc) && desc[i] == '[' {
				i++
			}
			if i < len(desc) && desc[i] == 'L' {
				for i < len(desc) && desc[i] != ';' {
					i++
				}
			}
		}
	}
	return out
}

// elementClass returns the class of an array descriptor's element type, or
// name itself when it is not an array.
func elementClass(name string) string {
	if name == "" || name[0] != '[' {
		return name
	}
	i := 0
	for i < len(name) && name[i] == '[' {
		i++
	}
	if i < len(name)-1 && name[i] == 'L' && name[len(name)-1] == ';' {
		return name[i+1 : len(name)-1]
	}
	return ""
}

// References returns the classes the method m refers to through its
// descriptor, the instructions of its code and its stack map frames, in
// order of first use. Array types count only where an instruction names
// their element type.
func (cf *ClassFile) References(m *Member) ([]string, error) {
	refs := &references{seen: make(map[string]bool)}
	refs.descriptor(cf.Pool.Utf8(m.Desc))

	attr := cf.Attribute(m.Attributes, AttrCode)
	if attr == nil {
		return refs.out, nil
	}
	code, err := ParseCode(attr.Data)
	if err != nil {
		return nil, err
	}
	instructions, err := Instructions(code.Bytecode)
	if err != nil {
		return nil, err
	}

	p := cf.Pool
	var bootstraps []BootstrapMethod
	for _, ins := range instructions {
		switch ins.Op {
		case opGetstatic, opPutstatic, opGetfield, opPutfield,
			opInvokevirtual, opInvokespecial, opInvokestatic, opInvokeinterface:
			owner, _, desc := p.MemberRef(ins.Const)
			refs.descriptor(desc)
			refs.object(owner)
		case opNew, opAnewarray, opCheckcast, opInstanceof:
			refs.object(p.ClassName(ins.Const))
		case opMultianewarray:
			refs.add(elementClass(p.ClassName(ins.Const)))
		case opLdc, opLdcW:
			if c := p.Get(ins.Const); c.Tag == TagClass {
				refs.add(elementClass(p.Utf8(c.A)))
			}
		case opInvokedynamic:
			if bootstraps == nil {
				if bootstraps, err = cf.BootstrapMethods(); err != nil {
					return nil, err
				}
			}
			c := p.Get(ins.Const)
			_, desc := p.NameAndType(c.B)
			refs.descriptor(desc)
			if int(c.A) >= len(bootstraps) {
				continue
			}
			bm := bootstraps[c.A]
			refs.handle(p, bm.Ref)
			for _, arg := range bm.Args {
				switch p.Get(arg).Tag {
				case TagClass:
					refs.object(p.ClassName(arg))
				case TagMethodHandle:
					refs.handle(p, arg)
				}
			}
		}
	}

	if frames := cf.Attribute(code.Attributes, AttrStackMapTable); frames != nil {
		c := &copier{r: newReader(frames.Data), w: &writer{}}
		c.stackMap()
		if err := c.finish(); err != nil {
			return nil, err
		}
		for _, t := range c.types {
			refs.object(p.ClassName(t))
		}
	}
	return refs.out, nil
}

type references struct {
	seen map[string]bool
	out  []string
}

func (r *references) add(name string) {
	if name == "" || r.seen[name] {
		return
	}
	r.seen[name] = true
	r.out = append(r.out, name)
}

// object adds an internal name unless it denotes an array.
func (r *references) object(name string) {
	if name != "" && name[0] != '[' {
		r.add(name)
	}
}

func (r *references) descriptor(desc string) {
	for _, name := range DescriptorClasses(desc) {
		r.add(name)
	}
}

func (r *references) handle(p *Pool, i uint16) {
	c := p.Get(i)
	if c.Tag != TagMethodHandle {
		return
	}
	owner, _, desc := p.MemberRef(c.B)
	r.descriptor(desc)
	r.object(owner)
}
