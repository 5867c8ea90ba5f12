// Package mappings holds multi-namespace symbol tables and their file formats.
package mappings

import (
	"slices"

	"go.trai.ch/codev/internal/core/domain"
	"go.trai.ch/codev/internal/engine/classfile"
	"go.trai.ch/zerr"
)

const (
	// SourceNamespaceID identifies the source namespace of a tree.
	SourceNamespaceID = -1
	// NullNamespaceID identifies a namespace the tree does not know.
	// Names requested in it are returned unchanged.
	NullNamespaceID = -2
)

// Property is a tree-level key/value pair carried by tiny v2 headers.
type Property struct {
	Key   string
	Value string
}

// names holds one name per destination namespace. An empty name is missing
// and falls back to the source name.
type names struct {
	Src string
	Dst []string
}

func (n *names) name(ns int) string {
	if ns >= 0 && ns < len(n.Dst) && n.Dst[ns] != "" {
		return n.Dst[ns]
	}
	return n.Src
}

func (n *names) dstName(ns int) string {
	switch {
	case ns == SourceNamespaceID:
		return n.Src
	case ns >= 0 && ns < len(n.Dst):
		return n.Dst[ns]
	default:
		return ""
	}
}

func (n *names) setName(ns int, name string) {
	if ns < 0 {
		return
	}
	for len(n.Dst) <= ns {
		n.Dst = append(n.Dst, "")
	}
	n.Dst[ns] = name
}

// Tree maps classes and members from a source namespace to an ordered list
// of destination namespaces.
type Tree struct {
	src        string
	dst        []string
	properties []Property

	classes []*Class
	bySrc   map[string]*Class
	byName  map[int]map[string]*Class
}

// NewTree creates an empty tree.
func NewTree(src string, dst ...string) *Tree {
	return &Tree{
		src:   src,
		dst:   slices.Clone(dst),
		bySrc: make(map[string]*Class),
	}
}

// Source returns the source namespace.
func (t *Tree) Source() string { return t.src }

// Destinations returns the destination namespaces in order.
func (t *Tree) Destinations() []string { return slices.Clone(t.dst) }

// Namespaces returns the source namespace followed by the destinations.
func (t *Tree) Namespaces() []string {
	return append([]string{t.src}, t.dst...)
}

// NamespaceID resolves a namespace name. The source namespace yields
// SourceNamespaceID and unknown names yield NullNamespaceID.
func (t *Tree) NamespaceID(name string) int {
	if name == t.src {
		return SourceNamespaceID
	}
	if i := slices.Index(t.dst, name); i >= 0 {
		return i
	}
	return NullNamespaceID
}

// AddNamespace appends a destination namespace if it is not known yet and
// returns its id.
func (t *Tree) AddNamespace(name string) int {
	if id := t.NamespaceID(name); id != NullNamespaceID {
		return id
	}
	t.dst = append(t.dst, name)
	return len(t.dst) - 1
}

// Properties returns the tree properties in order.
func (t *Tree) Properties() []Property { return slices.Clone(t.properties) }

// Property returns the value of a property.
func (t *Tree) Property(key string) (string, bool) {
	for _, p := range t.properties {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// SetProperty sets a property, keeping the position of an existing key.
func (t *Tree) SetProperty(key, value string) {
	for i := range t.properties {
		if t.properties[i].Key == key {
			t.properties[i].Value = value
			return
		}
	}
	t.properties = append(t.properties, Property{Key: key, Value: value})
}

// Classes returns the classes in insertion order.
func (t *Tree) Classes() []*Class { return slices.Clone(t.classes) }

// Class returns the class with the given source name, or nil.
func (t *Tree) Class(src string) *Class { return t.bySrc[src] }

// ClassByName returns the class named name in namespace ns, or nil.
func (t *Tree) ClassByName(name string, ns int) *Class {
	switch {
	case ns == SourceNamespaceID:
		return t.bySrc[name]
	case ns < 0:
		return nil
	}
	if t.byName == nil {
		t.byName = make(map[int]map[string]*Class)
	}
	idx, ok := t.byName[ns]
	if !ok {
		idx = make(map[string]*Class, len(t.classes))
		for _, c := range t.classes {
			if n := c.DstName(ns); n != "" {
				idx[n] = c
			}
		}
		t.byName[ns] = idx
	}
	return idx[name]
}

// AddClass returns the class with source name src, creating it when missing.
func (t *Tree) AddClass(src string) *Class {
	if c, ok := t.bySrc[src]; ok {
		return c
	}
	c := &Class{
		tree:        t,
		names:       names{Src: src},
		fieldIndex:  make(map[string]*Field),
		methodIndex: make(map[string]*Method),
	}
	t.classes = append(t.classes, c)
	t.bySrc[src] = c
	t.byName = nil
	return c
}

// MapClassName maps an internal class name, array descriptors included,
// between two namespaces. Unknown classes keep their name. Inner classes
// without their own entry keep their simple name under the mapped outer class.
func (t *Tree) MapClassName(name string, from, to int) string {
	return classfile.MapClassName(name, func(n string) string { return t.mapClass(n, from, to) })
}

func (t *Tree) mapClass(name string, from, to int) string {
	if from == to || from == NullNamespaceID || to == NullNamespaceID {
		return name
	}
	if c := t.ClassByName(name, from); c != nil {
		return c.Name(to)
	}
	if i := lastDollar(name); i > 0 {
		return t.mapClass(name[:i], from, to) + name[i:]
	}
	return name
}

func lastDollar(name string) int {
	for i := len(name) - 1; i > 0; i-- {
		switch name[i] {
		case '$':
			return i
		case '/':
			return -1
		}
	}
	return -1
}

// MapDesc maps the class names of a field or method descriptor.
func (t *Tree) MapDesc(desc string, from, to int) string {
	if from == to || from == NullNamespaceID || to == NullNamespaceID {
		return desc
	}
	return classfile.MapDescriptor(desc, func(n string) string { return t.mapClass(n, from, to) })
}

// Class is a class entry of a tree.
type Class struct {
	tree *Tree
	names
	Comment string

	fields      []*Field
	methods     []*Method
	fieldIndex  map[string]*Field
	methodIndex map[string]*Method
}

// SrcName returns the name in the source namespace.
func (c *Class) SrcName() string { return c.Src }

// Name returns the name in namespace ns, falling back to the source name.
func (c *Class) Name(ns int) string { return c.name(ns) }

// DstName returns the name in namespace ns, or "" when missing.
func (c *Class) DstName(ns int) string { return c.dstName(ns) }

// SetName sets the name in destination namespace ns.
func (c *Class) SetName(ns int, name string) {
	c.setName(ns, name)
	c.tree.byName = nil
}

// Fields returns the fields in insertion order.
func (c *Class) Fields() []*Field { return slices.Clone(c.fields) }

// Methods returns the methods in insertion order.
func (c *Class) Methods() []*Method { return slices.Clone(c.methods) }

// Field returns a field by source name and descriptor. An empty descriptor
// matches the first field with that name.
func (c *Class) Field(name, desc string) *Field {
	if desc != "" {
		if f, ok := c.fieldIndex[name+":"+desc]; ok {
			return f
		}
	}
	for _, f := range c.fields {
		if f.Src == name && (desc == "" || f.Desc == "") {
			return f
		}
	}
	return nil
}

// AddField returns the field with the given source name and descriptor,
// creating it when missing.
func (c *Class) AddField(name, desc string) *Field {
	if f := c.Field(name, desc); f != nil {
		if f.Desc == "" && desc != "" {
			delete(c.fieldIndex, name+":")
			f.Desc = desc
			c.fieldIndex[name+":"+desc] = f
		}
		return f
	}
	f := &Field{names: names{Src: name}, Desc: desc}
	c.fields = append(c.fields, f)
	c.fieldIndex[name+":"+desc] = f
	return f
}

// Method returns a method by source name and descriptor.
func (c *Class) Method(name, desc string) *Method {
	if desc != "" {
		return c.methodIndex[name+desc]
	}
	for _, m := range c.methods {
		if m.Src == name {
			return m
		}
	}
	return nil
}

// AddMethod returns the method with the given source name and descriptor,
// creating it when missing.
func (c *Class) AddMethod(name, desc string) *Method {
	if m, ok := c.methodIndex[name+desc]; ok {
		return m
	}
	m := &Method{names: names{Src: name}, Desc: desc}
	c.methods = append(c.methods, m)
	c.methodIndex[name+desc] = m
	return m
}

// Field is a field entry. Desc is in the source namespace and may be empty
// for formats that do not record field types.
type Field struct {
	names
	Desc    string
	Comment string
}

// SrcName returns the name in the source namespace.
func (f *Field) SrcName() string { return f.Src }

// Name returns the name in namespace ns, falling back to the source name.
func (f *Field) Name(ns int) string { return f.name(ns) }

// DstName returns the name in namespace ns, or "" when missing.
func (f *Field) DstName(ns int) string { return f.dstName(ns) }

// SetName sets the name in destination namespace ns.
func (f *Field) SetName(ns int, name string) { f.setName(ns, name) }

// Method is a method entry with its parameters and locals.
type Method struct {
	names
	Desc    string
	Comment string
	Args    []*Arg
	Vars    []*Var
}

// SrcName returns the name in the source namespace.
func (m *Method) SrcName() string { return m.Src }

// Name returns the name in namespace ns, falling back to the source name.
func (m *Method) Name(ns int) string { return m.name(ns) }

// DstName returns the name in namespace ns, or "" when missing.
func (m *Method) DstName(ns int) string { return m.dstName(ns) }

// SetName sets the name in destination namespace ns.
func (m *Method) SetName(ns int, name string) { m.setName(ns, name) }

// AddArg returns the parameter at local variable index lv, creating it when missing.
func (m *Method) AddArg(lv int) *Arg {
	for _, a := range m.Args {
		if a.LVIndex == lv {
			return a
		}
	}
	a := &Arg{LVIndex: lv}
	m.Args = append(m.Args, a)
	return a
}

// AddVar returns the local at (lv, startOp), creating it when missing.
func (m *Method) AddVar(lv, startOp, lvtRow int) *Var {
	for _, v := range m.Vars {
		if v.LVIndex == lv && v.StartOp == startOp {
			return v
		}
	}
	v := &Var{LVIndex: lv, StartOp: startOp, LVTRow: lvtRow}
	m.Vars = append(m.Vars, v)
	return v
}

// Arg is a method parameter.
type Arg struct {
	names
	LVIndex int
	Comment string
}

// Name returns the name in namespace ns, falling back to the source name.
func (a *Arg) Name(ns int) string { return a.name(ns) }

// SetName sets the name in namespace ns; SourceNamespaceID sets the source name.
func (a *Arg) SetName(ns int, name string) {
	if ns == SourceNamespaceID {
		a.Src = name
		return
	}
	a.setName(ns, name)
}

// Var is a method local variable.
type Var struct {
	names
	LVIndex int
	StartOp int
	LVTRow  int
	Comment string
}

// Name returns the name in namespace ns, falling back to the source name.
func (v *Var) Name(ns int) string { return v.name(ns) }

// SetName sets the name in namespace ns; SourceNamespaceID sets the source name.
func (v *Var) SetName(ns int, name string) {
	if ns == SourceNamespaceID {
		v.Src = name
		return
	}
	v.setName(ns, name)
}

// SwitchSource returns a copy of t whose source namespace is ns. The old
// source becomes the first destination; the other destinations keep their
// order. Entries without a name in ns keep their old source name.
func (t *Tree) SwitchSource(ns string) (*Tree, error) {
	if ns == t.src {
		return t.Clone(), nil
	}
	newSrc := t.NamespaceID(ns)
	if newSrc == NullNamespaceID {
		err := zerr.With(domain.ErrNoSharedNamespace, "namespace", ns)
		return nil, zerr.With(err, "namespaces", t.Namespaces())
	}

	// order[i] is the old id of new destination i.
	order := []int{SourceNamespaceID}
	dst := []string{t.src}
	for i, n := range t.dst {
		if i != newSrc {
			order = append(order, i)
			dst = append(dst, n)
		}
	}

	out := NewTree(ns, dst...)
	out.properties = slices.Clone(t.properties)

	remix := func(n names) names {
		r := names{Src: n.name(newSrc), Dst: make([]string, len(order))}
		for i, old := range order {
			r.Dst[i] = n.dstName(old)
		}
		return r
	}

	for _, c := range t.classes {
		nc := out.AddClass(c.Name(newSrc))
		nc.names = remix(c.names)
		nc.Comment = c.Comment
		for _, f := range c.fields {
			nf := nc.AddField(f.Name(newSrc), t.MapDesc(f.Desc, SourceNamespaceID, newSrc))
			nf.names = remix(f.names)
			nf.Comment = f.Comment
		}
		for _, m := range c.methods {
			nm := nc.AddMethod(m.Name(newSrc), t.MapDesc(m.Desc, SourceNamespaceID, newSrc))
			nm.names = remix(m.names)
			nm.Comment = m.Comment
			for _, a := range m.Args {
				na := nm.AddArg(a.LVIndex)
				na.names = remix(a.names)
				na.Comment = a.Comment
			}
			for _, v := range m.Vars {
				nv := nm.AddVar(v.LVIndex, v.StartOp, v.LVTRow)
				nv.names = remix(v.names)
				nv.Comment = v.Comment
			}
		}
	}
	out.byName = nil
	return out, nil
}

// Clone returns a deep copy of t.
func (t *Tree) Clone() *Tree {
	out := NewTree(t.src, t.dst...)
	out.properties = slices.Clone(t.properties)
	for _, c := range t.classes {
		nc := out.AddClass(c.Src)
		nc.Dst = slices.Clone(c.Dst)
		nc.Comment = c.Comment
		for _, f := range c.fields {
			nf := nc.AddField(f.Src, f.Desc)
			nf.Dst = slices.Clone(f.Dst)
			nf.Comment = f.Comment
		}
		for _, m := range c.methods {
			nm := nc.AddMethod(m.Src, m.Desc)
			nm.Dst = slices.Clone(m.Dst)
			nm.Comment = m.Comment
			for _, a := range m.Args {
				na := nm.AddArg(a.LVIndex)
				na.names = names{Src: a.Src, Dst: slices.Clone(a.Dst)}
				na.Comment = a.Comment
			}
			for _, v := range m.Vars {
				nv := nm.AddVar(v.LVIndex, v.StartOp, v.LVTRow)
				nv.names = names{Src: v.Src, Dst: slices.Clone(v.Dst)}
				nv.Comment = v.Comment
			}
		}
	}
	return out
}

// Merge adds the entries of other to t. The trees are joined on a shared
// namespace: other is switched to t's source when it knows it, otherwise t
// is temporarily switched to the first namespace both trees share.
// Namespaces unknown to t are appended as destinations; names from other
// replace existing ones.
func (t *Tree) Merge(other *Tree) error {
	if len(t.classes) == 0 && len(t.dst) == 0 && (t.src == "" || t.src == other.src) {
		t.adopt(other.Clone())
		return nil
	}

	if other.NamespaceID(t.src) != NullNamespaceID {
		incoming, err := other.SwitchSource(t.src)
		if err != nil {
			return err
		}
		t.mergeSameSource(incoming)
		return nil
	}

	for _, ns := range other.Namespaces() {
		if t.NamespaceID(ns) == NullNamespaceID {
			continue
		}
		original := t.src
		switched, err := t.SwitchSource(ns)
		if err != nil {
			return err
		}
		incoming, err := other.SwitchSource(ns)
		if err != nil {
			return err
		}
		switched.mergeSameSource(incoming)
		back, err := switched.SwitchSource(original)
		if err != nil {
			return err
		}
		t.adopt(back)
		return nil
	}

	err := zerr.With(domain.ErrNoSharedNamespace, "left", t.Namespaces())
	return zerr.With(err, "right", other.Namespaces())
}

// adopt replaces the content of t with that of other.
func (t *Tree) adopt(other *Tree) {
	*t = *other
	for _, c := range t.classes {
		c.tree = t
	}
	t.byName = nil
}

func (t *Tree) mergeSameSource(other *Tree) {
	ids := make([]int, len(other.dst))
	for i, ns := range other.dst {
		ids[i] = t.AddNamespace(ns)
	}

	mergeNames := func(into *names, from names) {
		for i, n := range from.Dst {
			if n != "" && ids[i] >= 0 {
				into.setName(ids[i], n)
			}
		}
	}
	mergeComment := func(into *string, from string) {
		if from != "" {
			*into = from
		}
	}

	for _, p := range other.properties {
		if _, ok := t.Property(p.Key); !ok {
			t.properties = append(t.properties, p)
		}
	}

	for _, oc := range other.classes {
		c := t.AddClass(oc.Src)
		mergeNames(&c.names, oc.names)
		mergeComment(&c.Comment, oc.Comment)
		for _, of := range oc.fields {
			f := c.AddField(of.Src, of.Desc)
			mergeNames(&f.names, of.names)
			mergeComment(&f.Comment, of.Comment)
		}
		for _, om := range oc.methods {
			m := c.AddMethod(om.Src, om.Desc)
			mergeNames(&m.names, om.names)
			mergeComment(&m.Comment, om.Comment)
			for _, oa := range om.Args {
				a := m.AddArg(oa.LVIndex)
				if oa.Src != "" {
					a.Src = oa.Src
				}
				mergeNames(&a.names, oa.names)
				mergeComment(&a.Comment, oa.Comment)
			}
			for _, ov := range om.Vars {
				v := m.AddVar(ov.LVIndex, ov.StartOp, ov.LVTRow)
				if ov.Src != "" {
					v.Src = ov.Src
				}
				mergeNames(&v.names, ov.names)
				mergeComment(&v.Comment, ov.Comment)
			}
		}
	}
	t.byName = nil
}

// Complete adds namespace target if missing and fills every missing name in
// it with the name from namespace from.
func (t *Tree) Complete(target, from string) {
	fromID := t.NamespaceID(from)
	if fromID == NullNamespaceID {
		return
	}
	id := t.AddNamespace(target)
	if id < 0 {
		return
	}
	fill := func(n *names) {
		if n.dstName(id) == "" {
			n.setName(id, n.name(fromID))
		}
	}
	for _, c := range t.classes {
		fill(&c.names)
		for _, f := range c.fields {
			fill(&f.names)
		}
		for _, m := range c.methods {
			fill(&m.names)
		}
	}
	t.byName = nil
}
