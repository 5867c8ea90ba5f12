package intersection

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.trai.ch/codev/internal/adapters/zipfs"
	"go.trai.ch/codev/internal/core/domain"
	"go.trai.ch/codev/internal/engine/classfile"
	"go.trai.ch/codev/internal/engine/manifest"
	"go.trai.ch/zerr"
)

// arena caches parsed classes of one archive for a single fold step.
type arena struct {
	archive *zipfs.Archive
	nodes   map[string]*classfile.Node
}

func newArena(a *zipfs.Archive) *arena {
	return &arena{archive: a, nodes: make(map[string]*classfile.Node)}
}

func (a *arena) node(path string) (*classfile.Node, error) {
	if n, ok := a.nodes[path]; ok {
		return n, nil
	}
	data, err := a.archive.ReadFile(path)
	if err != nil {
		return nil, err
	}
	n, err := classfile.ReadNode(data)
	if err != nil {
		return nil, zerr.With(zerr.With(err, "entry", path), "archive", a.archive.Path())
	}
	a.nodes[path] = n
	return n, nil
}

func (a *arena) lookup(name string) (*classfile.Node, error) {
	path := name + ".class"
	if !a.archive.Has(path) {
		return nil, nil
	}
	return a.node(path)
}

// Archives intersects the archives at paths with a left fold and writes the
// result to output. Only entries present in every archive survive: classes
// are intersected, manifests keep their common attributes, and every other
// entry is dropped. A single input is copied unchanged.
func Archives(ctx context.Context, paths []string, output string, strategy Strategy) error {
	if len(paths) == 0 {
		return domain.ErrNoIntersectionInputs
	}
	if err := os.MkdirAll(filepath.Dir(output), domain.DirPerm); err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrArchiveCreateFailed.Error()), "path", output)
	}
	if len(paths) == 1 {
		return copyFile(paths[0], output)
	}

	tmpDir, err := os.MkdirTemp(filepath.Dir(output), ".intersection-*")
	if err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrArchiveCreateFailed.Error()), "path", output)
	}
	defer os.RemoveAll(tmpDir) //nolint:errcheck // best effort cleanup of fold steps

	acc := paths[0]
	for i, next := range paths[1:] {
		step := filepath.Join(tmpDir, fmt.Sprintf("step-%d.jar", i))
		if err := Pair(ctx, acc, next, step, strategy); err != nil {
			return err
		}
		acc = step
	}

	if err := os.Rename(acc, output); err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrArchiveWriteFailed.Error()), "path", output)
	}
	return nil
}

// Pair intersects two archives into output.
func Pair(ctx context.Context, pathA, pathB, output string, strategy Strategy) error {
	return zipfs.Use(ctx, func(g *zipfs.Group) error {
		a, err := g.Open(pathA)
		if err != nil {
			return err
		}
		b, err := g.Open(pathB)
		if err != nil {
			return err
		}
		out, err := g.Create(output)
		if err != nil {
			return err
		}

		arenaA, arenaB := newArena(a), newArena(b)

		for _, path := range a.Paths() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if !b.Has(path) {
				continue
			}

			switch {
			case strings.HasSuffix(path, ".class"):
				data, err := intersectClass(path, arenaA, arenaB, strategy)
				if err != nil {
					return err
				}
				if err := out.WriteFile(path, data); err != nil {
					return err
				}
			case strings.HasSuffix(strings.ToUpper(path), ".MF"):
				data, err := intersectManifest(a, b, path)
				if err != nil {
					return err
				}
				if err := out.WriteFile(path, data); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func intersectClass(path string, a, b *arena, strategy Strategy) ([]byte, error) {
	nodeA, err := a.node(path)
	if err != nil {
		return nil, err
	}
	nodeB, err := b.node(path)
	if err != nil {
		return nil, err
	}
	node, err := Classes(nodeA, nodeB, strategy, a.lookup, b.lookup)
	if err != nil {
		return nil, zerr.With(err, "entry", path)
	}
	data, err := node.Encode()
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrClassEncodeFailed.Error()), "entry", path)
	}
	return data, nil
}

func intersectManifest(a, b *zipfs.Archive, path string) ([]byte, error) {
	parse := func(archive *zipfs.Archive) (*manifest.Manifest, error) {
		data, err := archive.ReadFile(path)
		if err != nil {
			return nil, err
		}
		m, err := manifest.Parse(data)
		if err != nil {
			return nil, zerr.With(zerr.With(err, "entry", path), "archive", archive.Path())
		}
		return m, nil
	}

	ma, err := parse(a)
	if err != nil {
		return nil, err
	}
	mb, err := parse(b)
	if err != nil {
		return nil, err
	}
	return manifest.Intersect(ma, mb).Bytes(), nil
}

func copyFile(src, dest string) (err error) {
	in, err := os.Open(src) //nolint:gosec // Path is provided by the caller
	if err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrFileOpenFailed.Error()), "path", src)
	}
	defer in.Close() //nolint:errcheck // read-only handle

	out, err := os.Create(dest) //nolint:gosec // Path is provided by the caller
	if err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrArchiveCreateFailed.Error()), "path", dest)
	}
	defer func() {
		if closeErr := out.Close(); closeErr != nil && err == nil {
			err = zerr.With(zerr.Wrap(closeErr, domain.ErrArchiveWriteFailed.Error()), "path", dest)
		}
	}()

	if _, err := io.Copy(out, in); err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrArchiveWriteFailed.Error()), "path", dest)
	}
	return nil
}
