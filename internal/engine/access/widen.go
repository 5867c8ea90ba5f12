package access

import (
	"context"
	"strings"

	"go.trai.ch/codev/internal/adapters/zipfs"
	"go.trai.ch/codev/internal/core/domain"
	"go.trai.ch/codev/internal/engine/classfile"
	"go.trai.ch/zerr"
)

// Widen writes a copy of the archive at in to out with m applied. Only
// classes that m has a model for are rewritten; every other entry is copied
// unchanged.
func Widen(ctx context.Context, m *Modifiers, in, out string) error {
	return zipfs.Use(ctx, func(g *zipfs.Group) error {
		src, err := g.Open(in)
		if err != nil {
			return err
		}
		dst, err := g.Create(out)
		if err != nil {
			return err
		}

		for _, p := range src.Paths() {
			if err := ctx.Err(); err != nil {
				return err
			}
			name, isClass := strings.CutSuffix(p, ".class")
			if !isClass || !m.Has(name) {
				if err := dst.CopyFrom(src, p, p); err != nil {
					return err
				}
				continue
			}

			data, err := src.ReadFile(p)
			if err != nil {
				return err
			}
			widened, err := WidenClass(m, data)
			if err != nil {
				return zerr.With(err, "entry", p)
			}
			if err := dst.WriteFile(p, widened); err != nil {
				return err
			}
		}
		return nil
	})
}

// WidenClass applies m to the access flags of one class file: the class
// itself, its fields, its methods and its InnerClasses entries.
func WidenClass(m *Modifiers, data []byte) ([]byte, error) {
	cf, err := classfile.Parse(data)
	if err != nil {
		return nil, err
	}
	name := cf.Name()

	access := m.ClassAccess(cf.Access, name)
	// Top-level classes cannot be protected.
	if access&classfile.AccProtected != 0 {
		access = access&^classfile.AccProtected | classfile.AccPublic
	}
	cf.Access = access

	for _, f := range cf.Fields {
		fieldName, desc := cf.MemberName(f)
		f.Access = m.FieldAccess(f.Access, name, fieldName, desc)
	}
	for _, mm := range cf.Methods {
		methodName, desc := cf.MemberName(mm)
		mm.Access = m.MethodAccess(mm.Access, name, methodName, desc)
	}

	inner, err := cf.InnerClasses()
	if err != nil {
		return nil, zerr.Wrap(err, domain.ErrInvalidClassFile.Error())
	}
	if len(inner) > 0 {
		for i := range inner {
			inner[i].Access = m.ClassAccess(inner[i].Access, cf.Pool.ClassName(inner[i].Inner))
		}
		cf.SetInnerClasses(inner)
	}

	return cf.Bytes()
}
