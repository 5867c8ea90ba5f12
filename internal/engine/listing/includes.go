package listing

import (
	"context"
	"crypto/sha1" //nolint:gosec // sha1 identifies jars, it is not used for security
	"encoding/hex"
	"encoding/json"
	"io"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"go.trai.ch/codev/internal/adapters/fs"
	"go.trai.ch/codev/internal/adapters/zipfs"
	"go.trai.ch/codev/internal/core/domain"
	"go.trai.ch/codev/internal/core/ports"
	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"
)

const (
	fabricModJSON   = "fabric.mod.json"
	jarJarMetadata  = "META-INF/jarjar/metadata.json"
	fabricJarsKey   = "jars"
	fabricMixinsKey = "mixins"
)

// FabricJarInJar lists the jars named by the "jars" array of fabric.mod.json.
type FabricJarInJar struct{}

// Load implements Rule.
func (FabricJarInJar) Load(a *zipfs.Archive) (Handler, error) {
	if !a.Has(fabricModJSON) {
		return nil, nil
	}
	o, err := readObject(a, fabricModJSON)
	if err != nil {
		return nil, err
	}
	raw, ok := o.get(fabricJarsKey)
	if !ok {
		return nil, nil
	}
	var jars []struct {
		File string `json:"file"`
	}
	if err := json.Unmarshal(raw, &jars); err != nil {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrInvalidDescriptor.Error()), "path", fabricModJSON)
	}

	files := make([]string, 0, len(jars))
	for _, j := range jars {
		files = append(files, j.File)
	}
	return &objectKeyHandler{name: fabricModJSON, key: fabricJarsKey, files: files}, nil
}

// ForgeJarJar lists the jars named by META-INF/jarjar/metadata.json.
type ForgeJarJar struct{}

// Load implements Rule.
func (ForgeJarJar) Load(a *zipfs.Archive) (Handler, error) {
	if !a.Has(jarJarMetadata) {
		return nil, nil
	}
	data, err := a.ReadFile(jarJarMetadata)
	if err != nil {
		return nil, err
	}
	var metadata struct {
		Jars []struct {
			Path string `json:"path"`
		} `json:"jars"`
	}
	if err := json.Unmarshal(data, &metadata); err != nil {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrInvalidDescriptor.Error()), "path", jarJarMetadata)
	}
	if metadata.Jars == nil {
		return nil, nil
	}

	files := make([]string, 0, len(metadata.Jars))
	for _, j := range metadata.Jars {
		files = append(files, j.Path)
	}
	return &fileHandler{name: jarJarMetadata, files: files}, nil
}

// objectKeyHandler lists files named under one key of a JSON descriptor.
// Removing it rewrites the descriptor without that key.
type objectKeyHandler struct {
	name  string
	key   string
	files []string
}

func (h *objectKeyHandler) List(*zipfs.Archive) []string { return h.files }

func (h *objectKeyHandler) Remove(a *zipfs.Archive) error {
	o, err := readObject(a, h.name)
	if err != nil {
		return err
	}
	o.delete(h.key)
	data, err := o.bytes()
	if err != nil {
		return zerr.With(err, "path", h.name)
	}
	return a.WriteFile(h.name, data)
}

// fileHandler lists files named by a descriptor that exists only to list
// them. Removing it deletes the descriptor.
type fileHandler struct {
	name  string
	files []string
}

func (h *fileHandler) List(*zipfs.Archive) []string { return h.files }

func (h *fileHandler) Remove(a *zipfs.Archive) error { return a.Remove(h.name) }

func readObject(a *zipfs.Archive, name string) (*object, error) {
	data, err := a.ReadFile(name)
	if err != nil {
		return nil, err
	}
	o, err := parseObject(data)
	if err != nil {
		return nil, zerr.With(err, "path", name)
	}
	return o, nil
}

// Includes is the registry ExtractIncludes consults.
var Includes = NewRegistry(DefaultIncludeRules()...)

// ExtractIncludes copies the jars nested in in to outDir, skipping those
// whose sha1 is in classpathHashes, and writes a copy of in to outDir
// without the nested jars or their listing. It returns the written files,
// nested jars first. Nested jars are named after their entry; a name that
// is already taken gets a short hash of the entry path. An archive no rule
// recognises is returned unchanged.
func ExtractIncludes(ctx context.Context, logger ports.Logger, in, outDir string, classpathHashes map[string]bool) ([]string, error) {
	return Includes.ExtractIncludes(ctx, logger, in, outDir, classpathHashes)
}

// ExtractIncludes is ExtractIncludes with the rules of r.
func (r *Registry) ExtractIncludes(ctx context.Context, logger ports.Logger, in, outDir string, classpathHashes map[string]bool) ([]string, error) {
	var outputs []string
	err := zipfs.Use(ctx, func(g *zipfs.Group) error {
		src, err := g.Open(in)
		if err != nil {
			return err
		}
		h, err := r.Load(src)
		if err != nil || h == nil {
			return err
		}

		taken := map[string]bool{filepath.Base(in): true}
		seen := make(map[string]bool)
		for _, jar := range h.List(src) {
			if seen[jar] {
				continue
			}
			seen[jar] = true
			data, err := src.ReadFile(jar)
			if err != nil {
				return zerr.With(err, "archive", in)
			}
			hash := sha1Hex(data)
			if classpathHashes[hash] {
				logger.Debug("skipping " + jar + " from " + in + " because hash " + hash + " is in dependencies")
				continue
			}
			logger.Debug("extracting " + jar + " from " + in)
			out := filepath.Join(outDir, nestedName(jar, taken))
			if err := fs.WriteFileAtomic(ctx, out, data); err != nil {
				return err
			}
			outputs = append(outputs, out)
		}

		parent := filepath.Join(outDir, filepath.Base(in))
		dst, err := g.Create(parent)
		if err != nil {
			return err
		}
		if err := copyAll(src, dst); err != nil {
			return err
		}
		if err := removeListed(dst, h); err != nil {
			return err
		}
		outputs = append(outputs, parent)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if outputs == nil {
		return []string{in}, nil
	}
	return outputs, nil
}

// nestedName returns a file name for the nested jar at entry that no earlier
// output uses, and reserves it.
func nestedName(entry string, taken map[string]bool) string {
	name := path.Base(entry)
	if taken[name] {
		ext := path.Ext(name)
		name = strings.TrimSuffix(name, ext) + "-" + sha1Hex([]byte(entry))[:8] + ext
	}
	taken[name] = true
	return name
}

// HashFiles returns the hex sha1 of every file in paths, hashed concurrently.
func HashFiles(ctx context.Context, paths []string) (map[string]bool, error) {
	var mu sync.Mutex
	hashes := make(map[string]bool, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for _, p := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			hash, err := hashFile(p)
			if err != nil {
				return err
			}
			mu.Lock()
			hashes[hash] = true
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return hashes, nil
}

func hashFile(p string) (string, error) {
	f, err := os.Open(p) //nolint:gosec // Path is provided by the caller
	if err != nil {
		return "", zerr.With(zerr.Wrap(err, domain.ErrFileOpenFailed.Error()), "path", p)
	}
	defer f.Close() //nolint:errcheck // read-only handle

	h := sha1.New() //nolint:gosec // see import
	if _, err := io.Copy(h, f); err != nil {
		return "", zerr.With(zerr.Wrap(err, domain.ErrFileHashFailed.Error()), "path", p)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func sha1Hex(data []byte) string {
	sum := sha1.Sum(data) //nolint:gosec // see import
	return hex.EncodeToString(sum[:])
}

func copyAll(src, dst *zipfs.Archive) error {
	for _, p := range src.Paths() {
		if err := dst.CopyFrom(src, p, p); err != nil {
			return err
		}
	}
	return nil
}
