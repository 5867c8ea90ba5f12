// Package intersection computes the structural intersection of classes and
// of whole archives across game versions.
package intersection

import (
	"slices"

	"go.trai.ch/codev/internal/core/domain"
	"go.trai.ch/codev/internal/engine/classfile"
	"go.trai.ch/zerr"
)

// Strategy selects how members of two classes are matched.
type Strategy int

const (
	// Strict keeps members matching by name and descriptor. Exceptions are
	// taken from the first class unchanged.
	Strict Strategy = iota
	// CrossVersion keeps members matching by name alone, with the first
	// class's descriptor. Exceptions are intersected by name.
	CrossVersion
)

// String returns the configuration name of s.
func (s Strategy) String() string {
	if s == CrossVersion {
		return "cross-version"
	}
	return "strict"
}

// ParseStrategy parses a strategy name. The empty string selects Strict.
func ParseStrategy(name string) (Strategy, error) {
	switch name {
	case "", "strict":
		return Strict, nil
	case "cross-version":
		return CrossVersion, nil
	default:
		return Strict, zerr.With(domain.ErrUnknownStrategy, "strategy", name)
	}
}

// Lookup resolves a class by internal name on one side of an intersection.
// It returns nil without an error when the class is not available.
type Lookup func(name string) (*classfile.Node, error)

// maxHierarchyDepth bounds the super class walk on malformed, cyclic input.
const maxHierarchyDepth = 1 << 12

// Classes intersects two classes with the same binary name.
func Classes(a, b *classfile.Node, strategy Strategy, lookupA, lookupB Lookup) (*classfile.Node, error) {
	if a.Name != b.Name {
		return nil, zerr.With(zerr.With(domain.ErrClassNameMismatch, "a", a.Name), "b", b.Name)
	}

	superName, err := commonSuper(a.SuperName, b.SuperName, lookupA, lookupB)
	if err != nil {
		return nil, zerr.With(err, "class", a.Name)
	}

	out := &classfile.Node{
		Version:    a.Version,
		Access:     a.Access,
		Name:       a.Name,
		SuperName:  superName,
		Signature:  a.Signature,
		OuterClass: a.OuterClass,
	}
	if b.Version.Less(a.Version) {
		out.Version = b.Version
	}

	for _, i := range a.Interfaces {
		if slices.Contains(b.Interfaces, i) {
			out.Interfaces = append(out.Interfaces, i)
		}
	}
	for _, ic := range a.InnerClasses {
		if slices.ContainsFunc(b.InnerClasses, func(o classfile.InnerClass) bool { return o.Name == ic.Name }) {
			out.InnerClasses = append(out.InnerClasses, ic)
		}
	}

	out.Fields = intersectMembers(a.Fields, b.Fields, strategy)
	out.Methods = intersectMembers(a.Methods, b.Methods, strategy)
	return out, nil
}

// commonSuper walks both super class chains one level at a time until a
// name has been seen on both sides. When neither side can resolve a further
// class, A's current super name is used.
func commonSuper(superA, superB string, lookupA, lookupB Lookup) (string, error) {
	visitedA := []string{superA}
	visitedB := map[string]struct{}{superB: {}}

	for range maxHierarchyDepth {
		for _, name := range visitedA {
			if _, ok := visitedB[name]; ok {
				return name, nil
			}
		}

		nodeA, err := lookup(lookupA, superA)
		if err != nil {
			return "", err
		}
		nodeB, err := lookup(lookupB, superB)
		if err != nil {
			return "", err
		}
		if nodeA == nil && nodeB == nil {
			return superA, nil
		}

		if nodeA != nil {
			superA = nodeA.SuperName
			if _, ok := visitedB[superA]; ok {
				return superA, nil
			}
		}
		if nodeB != nil {
			superB = nodeB.SuperName
		}
		visitedA = append(visitedA, superA)
		visitedB[superB] = struct{}{}
	}
	return superA, nil
}

func lookup(fn Lookup, name string) (*classfile.Node, error) {
	if fn == nil || name == "" {
		return nil, nil
	}
	return fn(name)
}

func intersectMembers(a, b []classfile.MemberNode, strategy Strategy) []classfile.MemberNode {
	var out []classfile.MemberNode
	for _, m := range a {
		idx := slices.IndexFunc(b, func(o classfile.MemberNode) bool {
			if strategy == CrossVersion {
				return o.Name == m.Name
			}
			return o.Name == m.Name && o.Desc == m.Desc
		})
		if idx < 0 {
			continue
		}
		other := b[idx]

		kept := m
		kept.Access = Access(m.Access, other.Access)
		kept.Exceptions = slices.Clone(m.Exceptions)
		if strategy == CrossVersion {
			kept.Exceptions = nil
			for _, e := range m.Exceptions {
				if slices.Contains(other.Exceptions, e) {
					kept.Exceptions = append(kept.Exceptions, e)
				}
			}
		}
		out = append(out, kept)
	}
	return out
}

// VisibilityRank orders visibilities: private 0, package 1, protected 2, public 3.
func VisibilityRank(access uint16) int {
	switch access & classfile.VisibilityMask {
	case classfile.AccPrivate:
		return 0
	case classfile.AccProtected:
		return 2
	case classfile.AccPublic:
		return 3
	default:
		return 1
	}
}

// Access keeps the lower visibility of a and b and every other bit of a.
func Access(a, b uint16) uint16 {
	visibility := a & classfile.VisibilityMask
	if VisibilityRank(b) < VisibilityRank(a) {
		visibility = b & classfile.VisibilityMask
	}
	return a&^classfile.VisibilityMask | visibility
}
