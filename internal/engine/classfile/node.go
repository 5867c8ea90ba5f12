package classfile

// InnerClass is a resolved InnerClasses row.
type InnerClass struct {
	Name      string
	OuterName string
	InnerName string
	Access    uint16
}

// OuterMethod is a resolved EnclosingMethod attribute. Name and Desc are
// empty when the class is not enclosed by a method.
type OuterMethod struct {
	Owner string
	Name  string
	Desc  string
}

// MemberNode is a resolved field or method declaration.
type MemberNode struct {
	Access     uint16
	Name       string
	Desc       string
	Signature  string
	Exceptions []string
}

// Node is a name-resolved view of a class: the parts that describe its ABI.
type Node struct {
	Version      Version
	Access       uint16
	Name         string
	SuperName    string
	Signature    string
	Interfaces   []string
	InnerClasses []InnerClass
	OuterClass   *OuterMethod
	Fields       []MemberNode
	Methods      []MemberNode
}

// ReadNode parses data into a Node.
func ReadNode(data []byte) (*Node, error) {
	cf, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return cf.Node()
}

// Node resolves the class into a Node.
func (cf *ClassFile) Node() (*Node, error) {
	n := &Node{
		Version:    cf.Version,
		Access:     cf.Access,
		Name:       cf.Name(),
		SuperName:  cf.SuperName(),
		Signature:  cf.Signature(cf.Attributes),
		Interfaces: cf.InterfaceNames(),
	}

	inner, err := cf.InnerClasses()
	if err != nil {
		return nil, err
	}
	for _, e := range inner {
		n.InnerClasses = append(n.InnerClasses, InnerClass{
			Name:      cf.Pool.ClassName(e.Inner),
			OuterName: cf.Pool.ClassName(e.Outer),
			InnerName: cf.Pool.Utf8(e.Name),
			Access:    e.Access,
		})
	}

	if class, method, ok := cf.EnclosingMethod(); ok {
		outer := &OuterMethod{Owner: cf.Pool.ClassName(class)}
		if method != 0 {
			outer.Name, outer.Desc = cf.Pool.NameAndType(method)
		}
		n.OuterClass = outer
	}

	for _, f := range cf.Fields {
		n.Fields = append(n.Fields, cf.memberNode(f))
	}
	for _, m := range cf.Methods {
		mn := cf.memberNode(m)
		for _, e := range cf.Exceptions(m) {
			mn.Exceptions = append(mn.Exceptions, cf.Pool.ClassName(e))
		}
		n.Methods = append(n.Methods, mn)
	}
	return n, nil
}

func (cf *ClassFile) memberNode(m *Member) MemberNode {
	name, desc := cf.MemberName(m)
	return MemberNode{
		Access:    m.Access,
		Name:      name,
		Desc:      desc,
		Signature: cf.Signature(m.Attributes),
	}
}

// Encode writes n as a stub class file: members carry no code and the class
// keeps only its Signature, InnerClasses and EnclosingMethod attributes.
func (n *Node) Encode() ([]byte, error) {
	cf := &ClassFile{
		Version: n.Version,
		Pool:    newPool(),
		Access:  n.Access,
	}
	p := cf.Pool
	cf.This = p.AddClass(n.Name)
	if n.SuperName != "" {
		cf.Super = p.AddClass(n.SuperName)
	}
	for _, i := range n.Interfaces {
		cf.Interfaces = append(cf.Interfaces, p.AddClass(i))
	}

	if n.Signature != "" {
		cf.Attributes = append(cf.Attributes, signatureAttribute(p, n.Signature))
	}

	if len(n.InnerClasses) > 0 {
		entries := make([]InnerClassEntry, 0, len(n.InnerClasses))
		for _, ic := range n.InnerClasses {
			e := InnerClassEntry{Inner: p.AddClass(ic.Name), Access: ic.Access}
			if ic.OuterName != "" {
				e.Outer = p.AddClass(ic.OuterName)
			}
			if ic.InnerName != "" {
				e.Name = p.AddUtf8(ic.InnerName)
			}
			entries = append(entries, e)
		}
		cf.SetInnerClasses(entries)
	}

	if n.OuterClass != nil {
		w := &writer{}
		w.u2(p.AddClass(n.OuterClass.Owner))
		if n.OuterClass.Name != "" {
			w.u2(p.AddNameAndType(n.OuterClass.Name, n.OuterClass.Desc))
		} else {
			w.u2(0)
		}
		cf.Attributes = append(cf.Attributes, &Attribute{Name: p.AddUtf8(AttrEnclosingMethod), Data: w.buf})
	}

	for _, f := range n.Fields {
		cf.Fields = append(cf.Fields, stubMember(p, f))
	}
	for _, m := range n.Methods {
		member := stubMember(p, m)
		if len(m.Exceptions) > 0 {
			w := &writer{}
			w.u2(uint16(len(m.Exceptions))) //nolint:gosec // bounded by the class file format
			for _, e := range m.Exceptions {
				w.u2(p.AddClass(e))
			}
			member.Attributes = append(member.Attributes, &Attribute{Name: p.AddUtf8(AttrExceptions), Data: w.buf})
		}
		cf.Methods = append(cf.Methods, member)
	}

	return cf.Bytes()
}

func stubMember(p *Pool, m MemberNode) *Member {
	member := &Member{Access: m.Access, Name: p.AddUtf8(m.Name), Desc: p.AddUtf8(m.Desc)}
	if m.Signature != "" {
		member.Attributes = append(member.Attributes, signatureAttribute(p, m.Signature))
	}
	return member
}

func signatureAttribute(p *Pool, sig string) *Attribute {
	return &Attribute{Name: p.AddUtf8(AttrSignature), Data: u2Data(p.AddUtf8(sig))}
}
