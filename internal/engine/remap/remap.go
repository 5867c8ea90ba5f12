package remap

import (
	"bytes"
	"context"
	"runtime"
	"strings"

	"go.trai.ch/codev/internal/adapters/zipfs"
	"go.trai.ch/codev/internal/core/domain"
	"go.trai.ch/codev/internal/engine/access"
	"go.trai.ch/codev/internal/engine/classfile"
	"go.trai.ch/codev/internal/engine/manifest"
	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"
)

// ExtraFile rewrites a non-class file of a remapped archive. It runs on the
// output after every class has been remapped.
type ExtraFile interface {
	Remap(a *zipfs.Archive, r *Remapper) error
}

// DefaultExtraFiles returns the built-in extra file remappers.
func DefaultExtraFiles() []ExtraFile {
	return []ExtraFile{ModWidener{}}
}

type remapped struct {
	path string
	data []byte
}

// Remap writes the archive at in to out with every class rewritten from
// r.From() to r.To(). The classes of in and of every classpath archive make
// up the hierarchy inherited members are looked up in. Signing files are
// dropped, manifest digests are stripped and the manifest records the
// target namespace.
func (r *Remapper) Remap(ctx context.Context, in, out string, classpath []string, extras ...ExtraFile) error {
	return zipfs.Use(ctx, func(g *zipfs.Group) error {
		src, err := g.Open(in)
		if err != nil {
			return err
		}
		dst, err := g.Create(out)
		if err != nil {
			return err
		}

		if !r.identity {
			supers, err := readHierarchy(ctx, src)
			if err != nil {
				return err
			}
			r.addHierarchy(supers)
			if err := r.AddHierarchy(ctx, classpath...); err != nil {
				return err
			}
		}

		var classes []string
		for _, p := range src.Paths() {
			switch {
			case p == domain.ManifestPath || manifest.IsSigningFile(p):
			case strings.HasSuffix(p, ".class") && !r.identity:
				classes = append(classes, p)
			default:
				if err := dst.CopyFrom(src, p, p); err != nil {
					return err
				}
			}
		}

		results, err := r.remapClasses(ctx, src, classes)
		if err != nil {
			return err
		}
		for _, res := range results {
			if err := dst.WriteFile(res.path, res.data); err != nil {
				return err
			}
		}

		m, err := manifest.Read(src)
		if err != nil {
			return err
		}
		m.StripDigests()
		m.Main.Set(domain.MappingNamespaceAttribute, r.to)
		if err := manifest.Write(dst, m); err != nil {
			return err
		}

		for _, extra := range extras {
			if err := extra.Remap(dst, r); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *Remapper) remapClasses(ctx context.Context, src *zipfs.Archive, paths []string) ([]remapped, error) {
	results := make([]remapped, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, p := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := src.ReadFile(p)
			if err != nil {
				return err
			}
			path, out, err := r.RemapClass(p, data)
			if err != nil {
				return zerr.With(err, "entry", p)
			}
			results[i] = remapped{path: path, data: out}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// RemapClass rewrites one class found at path p and returns it together
// with its path in the target namespace. Any directory prefix that is not
// part of the class name, such as a multi-release version directory, is kept.
func (r *Remapper) RemapClass(p string, data []byte) (string, []byte, error) {
	cf, err := classfile.Parse(data)
	if err != nil {
		return "", nil, err
	}
	name := cf.Name()
	prefix, _ := strings.CutSuffix(p, name+".class")
	if prefix == p {
		prefix = ""
	}

	if err := classfile.Remap(cf, r); err != nil {
		return "", nil, zerr.Wrap(err, domain.ErrRemapFailed.Error())
	}
	out, err := cf.Bytes()
	if err != nil {
		return "", nil, err
	}
	return prefix + cf.Name() + ".class", out, nil
}

// ModWidener remaps the access widener that fabric.mod.json points at. The
// rewritten widener declares the target namespace, with the obfuscated
// namespace written as "official".
type ModWidener struct{}

// Remap implements ExtraFile.
func (ModWidener) Remap(a *zipfs.Archive, r *Remapper) error {
	name, err := access.ModWidenerPath(a)
	if err != nil || name == "" {
		return err
	}
	data, err := a.ReadFile(name)
	if err != nil {
		return err
	}
	w, err := access.ParseWidener(bytes.NewReader(data))
	if err != nil {
		return zerr.With(err, "path", name)
	}

	mapper := r
	if ns := domain.CanonicalNamespace(w.Namespace); ns != r.from {
		mapper = New(r.tree, ns, r.to)
	}
	RemapWidener(w, mapper)

	var buf bytes.Buffer
	if _, err := w.WriteTo(&buf); err != nil {
		return zerr.Wrap(err, domain.ErrArchiveWriteFailed.Error())
	}
	return a.WriteFile(name, buf.Bytes())
}

// RemapWidener rewrites the directives of w through r and sets its
// namespace to r.To().
func RemapWidener(w *access.Widener, r *Remapper) {
	w.Namespace = r.to
	if w.Namespace == domain.NamespaceObf {
		w.Namespace = domain.NamespaceOfficial
	}
	for i := range w.Directives {
		d := &w.Directives[i]
		switch d.Target {
		case access.TargetMethod:
			d.Name = r.Method(d.Owner, d.Name, d.Desc)
			d.Desc = classfile.MapDescriptor(d.Desc, r.Class)
		case access.TargetField:
			d.Name = r.Field(d.Owner, d.Name, d.Desc)
			d.Desc = classfile.MapDescriptor(d.Desc, r.Class)
		}
		d.Owner = r.Class(d.Owner)
	}
}
