// Package access merges access wideners and access transformers into one
// set of access modifiers and applies them to class archives.
package access

import (
	"encoding/json"
	"io"

	"go.trai.ch/codev/internal/core/domain"
	"go.trai.ch/codev/internal/engine/classfile"
	"go.trai.ch/zerr"
)

// Visibility is a requested visibility. Requests never narrow access.
type Visibility int

const (
	// VisibilityNone leaves visibility untouched.
	VisibilityNone Visibility = iota
	// VisibilityPackage requests at least package-private access.
	VisibilityPackage
	// VisibilityProtected requests at least protected access.
	VisibilityProtected
	// VisibilityPublic requests public access.
	VisibilityPublic
)

var visibilityNames = []string{"none", "package", "protected", "public"}

func (v Visibility) String() string {
	if v < 0 || int(v) >= len(visibilityNames) {
		return "unknown"
	}
	return visibilityNames[v]
}

// MarshalText implements encoding.TextMarshaler.
func (v Visibility) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Visibility) UnmarshalText(b []byte) error {
	for i, n := range visibilityNames {
		if n == string(b) {
			*v = Visibility(i)
			return nil
		}
	}
	return zerr.With(domain.ErrInvalidAccessWidener, "visibility", string(b))
}

// FinalChange is a requested change of the final flag.
type FinalChange int

const (
	// FinalNone leaves the final flag untouched.
	FinalNone FinalChange = iota
	// FinalRemove clears the final flag.
	FinalRemove
)

// MarshalText implements encoding.TextMarshaler.
func (f FinalChange) MarshalText() ([]byte, error) {
	if f == FinalRemove {
		return []byte("remove"), nil
	}
	return []byte("none"), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *FinalChange) UnmarshalText(b []byte) error {
	switch string(b) {
	case "none", "":
		*f = FinalNone
	case "remove":
		*f = FinalRemove
	default:
		return zerr.With(domain.ErrInvalidAccessWidener, "final", string(b))
	}
	return nil
}

// Transform is a visibility change plus a final change.
type Transform struct {
	Visibility Visibility  `json:"visibility"`
	Final      FinalChange `json:"final"`
}

// Empty reports whether t changes nothing.
func (t Transform) Empty() bool {
	return t.Visibility == VisibilityNone && t.Final == FinalNone
}

// Merge combines two transforms: the more permissive visibility wins and a
// final removal is kept.
func (t Transform) Merge(o Transform) Transform {
	out := t
	if o.Visibility > out.Visibility {
		out.Visibility = o.Visibility
	}
	if o.Final == FinalRemove {
		out.Final = FinalRemove
	}
	return out
}

// VisibilityOf returns the visibility encoded in access flags. Private maps
// to VisibilityNone.
func VisibilityOf(access uint16) Visibility {
	switch {
	case access&classfile.AccPublic != 0:
		return VisibilityPublic
	case access&classfile.AccProtected != 0:
		return VisibilityProtected
	case access&classfile.AccPrivate != 0:
		return VisibilityNone
	default:
		return VisibilityPackage
	}
}

func flags(v Visibility) uint16 {
	switch v {
	case VisibilityPublic:
		return classfile.AccPublic
	case VisibilityProtected:
		return classfile.AccProtected
	default:
		return 0
	}
}

// Apply widens access. Visibility is only ever raised and final is only
// ever cleared.
func (t Transform) Apply(access uint16) uint16 {
	if t.Visibility != VisibilityNone && t.Visibility > VisibilityOf(access) {
		access = access&^classfile.VisibilityMask | flags(t.Visibility)
	}
	if t.Final == FinalRemove {
		access &^= classfile.AccFinal
	}
	return access
}

// Modifiers is the merged set of access changes for a namespace.
type Modifiers struct {
	Namespace string                 `json:"namespace,omitempty"`
	Classes   map[string]*ClassModel `json:"classes"`
}

// ClassModel holds the changes requested for one class.
type ClassModel struct {
	Access  Transform                `json:"access"`
	Methods map[string][]MethodModel `json:"methods,omitempty"`
	Fields  map[string]FieldModel    `json:"fields,omitempty"`
}

// MethodModel is a change requested for one method overload. An empty
// descriptor matches every overload.
type MethodModel struct {
	Descriptor string    `json:"descriptor,omitempty"`
	Access     Transform `json:"access"`
}

// FieldModel is a change requested for a field. The descriptor is unknown
// for access transformers.
type FieldModel struct {
	Descriptor string    `json:"descriptor,omitempty"`
	Access     Transform `json:"access"`
}

// Wildcard matches every field or every method of a class.
const Wildcard = "*"

// NewModifiers creates an empty set for namespace.
func NewModifiers(namespace string) *Modifiers {
	return &Modifiers{Namespace: namespace, Classes: make(map[string]*ClassModel)}
}

// VisitHeader records the namespace of a source. Mixing namespaces is an error.
func (m *Modifiers) VisitHeader(namespace string) error {
	if namespace == "" {
		return nil
	}
	namespace = domain.CanonicalNamespace(namespace)
	if m.Namespace != "" && m.Namespace != namespace {
		err := zerr.With(domain.ErrNamespaceMismatch, "expected", m.Namespace)
		return zerr.With(err, "actual", namespace)
	}
	m.Namespace = namespace
	return nil
}

func (m *Modifiers) class(name string) *ClassModel {
	if m.Classes == nil {
		m.Classes = make(map[string]*ClassModel)
	}
	c, ok := m.Classes[name]
	if !ok {
		c = &ClassModel{}
		m.Classes[name] = c
	}
	return c
}

// VisitClass merges t into the class model. Outer classes of nested
// classes get a model too, so their InnerClasses entries are rewritten.
func (m *Modifiers) VisitClass(name string, t Transform) {
	for i := range len(name) {
		if name[i] == '$' {
			m.class(name[:i])
		}
	}
	c := m.class(name)
	c.Access = c.Access.Merge(t)
}

// VisitMethod merges t into the method model.
func (m *Modifiers) VisitMethod(owner, name, desc string, t Transform) {
	c := m.class(owner)
	if c.Methods == nil {
		c.Methods = make(map[string][]MethodModel)
	}
	group := c.Methods[name]
	for i := range group {
		if group[i].Descriptor == desc {
			group[i].Access = group[i].Access.Merge(t)
			return
		}
	}
	c.Methods[name] = append(group, MethodModel{Descriptor: desc, Access: t})
}

// VisitField merges t into the field model. A field requested with two
// different descriptors is an error.
func (m *Modifiers) VisitField(owner, name, desc string, t Transform) error {
	c := m.class(owner)
	if c.Fields == nil {
		c.Fields = make(map[string]FieldModel)
	}
	existing, ok := c.Fields[name]
	if ok && existing.Descriptor != "" && desc != "" && existing.Descriptor != desc {
		err := zerr.With(domain.ErrFieldDescriptorConflict, "field", owner+"."+name)
		err = zerr.With(err, "previous", existing.Descriptor)
		return zerr.With(err, "requested", desc)
	}
	if desc == "" {
		desc = existing.Descriptor
	}
	c.Fields[name] = FieldModel{Descriptor: desc, Access: existing.Access.Merge(t)}
	return nil
}

// Merge adds every change of other to m.
func (m *Modifiers) Merge(other *Modifiers) error {
	if err := m.VisitHeader(other.Namespace); err != nil {
		return err
	}
	for name, c := range other.Classes {
		m.VisitClass(name, c.Access)
		for method, group := range c.Methods {
			for _, mm := range group {
				m.VisitMethod(name, method, mm.Descriptor, mm.Access)
			}
		}
		for field, fm := range c.Fields {
			if err := m.VisitField(name, field, fm.Descriptor, fm.Access); err != nil {
				return err
			}
		}
	}
	return nil
}

// Has reports whether class name has a model.
func (m *Modifiers) Has(name string) bool {
	_, ok := m.Classes[name]
	return ok
}

// ClassAccess returns the widened access of class name.
func (m *Modifiers) ClassAccess(access uint16, name string) uint16 {
	if c, ok := m.Classes[name]; ok {
		return c.Access.Apply(access)
	}
	return access
}

// MethodAccess returns the widened access of a method.
func (m *Modifiers) MethodAccess(access uint16, owner, name, desc string) uint16 {
	c, ok := m.Classes[owner]
	if !ok {
		return access
	}
	for _, key := range []string{name, Wildcard} {
		for _, mm := range c.Methods[key] {
			if mm.Descriptor == "" || mm.Descriptor == desc {
				access = mm.Access.Apply(access)
			}
		}
	}
	return access
}

// FieldAccess returns the widened access of a field. A model declared with
// another descriptor does not apply.
func (m *Modifiers) FieldAccess(access uint16, owner, name, desc string) uint16 {
	c, ok := m.Classes[owner]
	if !ok {
		return access
	}
	for _, key := range []string{name, Wildcard} {
		if fm, ok := c.Fields[key]; ok && (fm.Descriptor == "" || fm.Descriptor == desc) {
			access = fm.Access.Apply(access)
		}
	}
	return access
}

// Encode writes m as JSON.
func (m *Modifiers) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(m)
}

// Decode reads modifiers written by Encode.
func Decode(r io.Reader) (*Modifiers, error) {
	var m Modifiers
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, zerr.Wrap(err, domain.ErrInvalidAccessWidener.Error())
	}
	if m.Classes == nil {
		m.Classes = make(map[string]*ClassModel)
	}
	return &m, nil
}
