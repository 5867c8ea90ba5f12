// Package cas implements the content-addressed cache of derived artifacts.
package cas

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	codevfs "go.trai.ch/codev/internal/adapters/fs"
	"go.trai.ch/codev/internal/core/domain"
	"go.trai.ch/codev/internal/core/ports"
	"go.trai.ch/codev/internal/flight"
	"go.trai.ch/zerr"
)

var _ ports.Cache = (*Store)(nil)

// Store implements ports.Cache on a directory tree:
//
//	<root>/cached-operations/index.json
//	<root>/cached-operations/<op>/<digest>/<output>
//	<root>/cached-operations/<op>/<digest>/<extra>...
//
// Writers of one key are serialised in-process with a flight group and across
// processes with an flock on <op>/<digest>.lock. A run outlives the caller
// that started it as long as another caller still waits for it.
type Store struct {
	root   string
	hasher ports.Hasher
	walker *codevfs.Walker
	flight flight.Group[domain.CacheResult]
	now    func() time.Time
}

// NewStore creates a cache rooted at root.
func NewStore(root string, hasher ports.Hasher) *Store {
	return &Store{
		root:   filepath.Clean(root),
		hasher: hasher,
		walker: codevfs.NewWalker(),
		now:    time.Now,
	}
}

// Root returns the cache root directory.
func (s *Store) Root() string {
	return s.root
}

func (s *Store) operationsDir() string {
	return domain.OperationsPath(s.root)
}

func (s *Store) indexPath() string {
	return filepath.Join(s.operationsDir(), domain.IndexFileName)
}

func indexKey(op domain.Operation, digest string) string {
	return op.Key + "@" + strconv.Itoa(op.Version) + "/" + digest
}

// Cached implements ports.Cache.
func (s *Store) Cached(
	ctx context.Context,
	op domain.Operation,
	inputs []string,
	produce ports.Producer,
) (domain.CacheResult, error) {
	fingerprints := make([]string, 0, len(inputs))
	for _, input := range inputs {
		fp, err := s.hasher.Fingerprint(input)
		if err != nil {
			return domain.CacheResult{}, zerr.With(err, "operation", op.Key)
		}
		fingerprints = append(fingerprints, fp)
	}

	parts := append([]string{op.Key, strconv.Itoa(op.Version)}, op.Params...)
	parts = append(parts, fingerprints...)
	digest := s.hasher.Digest(parts...)
	key := indexKey(op, digest)

	if res, ok := s.lookup(key); ok {
		return res, nil
	}

	return s.flight.Do(ctx, key, func(ctx context.Context) (domain.CacheResult, error) {
		return s.produce(ctx, op, digest, fingerprints, produce)
	})
}

// lookup returns the published result of key when the index entry and every
// file it references exist.
func (s *Store) lookup(key string) (domain.CacheResult, bool) {
	index, err := s.readIndex()
	if err != nil {
		return domain.CacheResult{}, false
	}
	entry, ok := index[key]
	if !ok {
		return domain.CacheResult{}, false
	}

	res := domain.CacheResult{Path: s.entryPath(entry.Output), Hit: true}
	if _, err := os.Stat(res.Path); err != nil {
		return domain.CacheResult{}, false
	}
	for _, extra := range entry.Extras {
		path := s.entryPath(extra)
		if _, err := os.Stat(path); err != nil {
			return domain.CacheResult{}, false
		}
		res.Extras = append(res.Extras, path)
	}
	return res, true
}

func (s *Store) entryPath(rel string) string {
	return filepath.Join(s.operationsDir(), filepath.FromSlash(rel))
}

func (s *Store) produce(
	ctx context.Context,
	op domain.Operation,
	digest string,
	fingerprints []string,
	produce ports.Producer,
) (domain.CacheResult, error) {
	opDir := filepath.Join(s.operationsDir(), op.Key)
	if err := os.MkdirAll(opDir, domain.DirPerm); err != nil {
		return domain.CacheResult{}, zerr.With(zerr.Wrap(err, domain.ErrCacheCreateFailed.Error()), "path", opDir)
	}

	lock, err := acquireLock(ctx, filepath.Join(opDir, digest+domain.LockFileSuffix))
	if err != nil {
		return domain.CacheResult{}, err
	}
	defer lock.release()

	// Another process may have published while we waited for the lock.
	key := indexKey(op, digest)
	if res, ok := s.lookup(key); ok {
		return res, nil
	}

	tmpDir, err := os.MkdirTemp(opDir, "."+digest+"-*")
	if err != nil {
		return domain.CacheResult{}, zerr.With(zerr.Wrap(err, domain.ErrCacheCreateFailed.Error()), "path", opDir)
	}
	defer os.RemoveAll(tmpDir) //nolint:errcheck // best effort cleanup of the private directory

	tmpOutput := filepath.Join(tmpDir, op.Output)
	if err := produce(ctx, tmpOutput); err != nil {
		return domain.CacheResult{}, zerr.With(zerr.Wrap(err, domain.ErrCacheProduceFailed.Error()), "operation", op.Key)
	}
	if err := ctx.Err(); err != nil {
		return domain.CacheResult{}, err
	}
	if _, err := os.Stat(tmpOutput); err != nil {
		return domain.CacheResult{}, zerr.With(zerr.With(domain.ErrCacheNoOutput, "operation", op.Key), "output", op.Output)
	}

	extras, err := s.extras(tmpDir, op.Output)
	if err != nil {
		return domain.CacheResult{}, err
	}

	finalDir := filepath.Join(opDir, digest)
	// A directory without an index entry is left over from an interrupted publish.
	if err := os.RemoveAll(finalDir); err != nil {
		return domain.CacheResult{}, zerr.With(zerr.Wrap(err, domain.ErrCachePublishFailed.Error()), "path", finalDir)
	}
	if err := os.Rename(tmpDir, finalDir); err != nil {
		return domain.CacheResult{}, zerr.With(zerr.Wrap(err, domain.ErrCachePublishFailed.Error()), "path", finalDir)
	}

	prefix := op.Key + "/" + digest + "/"
	entry := domain.CacheEntry{
		Operation:    op.Key,
		Version:      op.Version,
		Fingerprints: fingerprints,
		Output:       prefix + op.Output,
		CreatedAt:    s.now().UTC(),
	}
	res := domain.CacheResult{Path: filepath.Join(finalDir, op.Output)}
	for _, extra := range extras {
		entry.Extras = append(entry.Extras, prefix+extra)
		res.Extras = append(res.Extras, filepath.Join(finalDir, filepath.FromSlash(extra)))
	}
	if err := s.publish(ctx, key, entry); err != nil {
		return domain.CacheResult{}, err
	}
	return res, nil
}

// extras lists the files below dir other than output, as slash separated
// paths relative to dir.
func (s *Store) extras(dir, output string) ([]string, error) {
	var extras []string
	for path := range s.walker.WalkFiles(dir, nil) {
		info, err := os.Lstat(path)
		if err != nil {
			return nil, zerr.With(zerr.Wrap(err, domain.ErrPathStatFailed.Error()), "path", path)
		}
		if !info.Mode().IsRegular() {
			continue
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return nil, zerr.With(zerr.Wrap(err, domain.ErrCachePublishFailed.Error()), "path", path)
		}
		if rel == output {
			continue
		}
		extras = append(extras, filepath.ToSlash(rel))
	}
	return extras, nil
}

// publish records entry under key and prunes entries of the same operation
// with another version.
func (s *Store) publish(ctx context.Context, key string, entry domain.CacheEntry) error {
	lock, err := acquireLock(ctx, s.indexPath()+domain.LockFileSuffix)
	if err != nil {
		return err
	}
	defer lock.release()

	index, err := s.readIndex()
	if err != nil {
		return err
	}

	var stale []string
	for k, e := range index {
		if e.Operation == entry.Operation && e.Version != entry.Version {
			stale = append(stale, filepath.Dir(filepath.FromSlash(e.Output)))
			delete(index, k)
		}
	}
	index[key] = entry

	if err := s.writeIndex(index); err != nil {
		return err
	}

	for _, dir := range stale {
		_ = os.RemoveAll(filepath.Join(s.operationsDir(), dir))
	}
	return nil
}

func (s *Store) readIndex() (map[string]domain.CacheEntry, error) {
	index := make(map[string]domain.CacheEntry)

	data, err := os.ReadFile(s.indexPath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return index, nil
		}
		return nil, zerr.Wrap(err, domain.ErrCacheIndexReadFailed.Error())
	}
	if len(data) == 0 {
		return index, nil
	}
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, zerr.Wrap(err, domain.ErrCacheIndexReadFailed.Error())
	}
	return index, nil
}

func (s *Store) writeIndex(index map[string]domain.CacheEntry) error {
	data, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return zerr.Wrap(err, domain.ErrCacheIndexWriteFailed.Error())
	}
	if err := atomicWriteFile(s.indexPath(), data, domain.FilePerm); err != nil {
		return zerr.Wrap(err, domain.ErrCacheIndexWriteFailed.Error())
	}
	return nil
}

// atomicWriteFile writes data to a temporary file in the target directory and
// renames it into place.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, domain.DirPerm); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		if _, statErr := os.Stat(tmpName); statErr == nil {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Materialize implements ports.Cache. It hard links cached to dest and
// falls back to copying when linking is not possible.
func (s *Store) Materialize(cached, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), domain.DirPerm); err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrMaterializeFailed.Error()), "path", dest)
	}
	if err := os.Remove(dest); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return zerr.With(zerr.Wrap(err, domain.ErrMaterializeFailed.Error()), "path", dest)
	}
	if err := os.Link(cached, dest); err == nil {
		return nil
	}
	if err := copyFile(cached, dest); err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrMaterializeFailed.Error()), "path", dest)
	}
	return nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src) //nolint:gosec // Path comes from the cache index
	if err != nil {
		return err
	}
	defer in.Close() //nolint:errcheck // read-only handle

	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := io.Copy(tmp, in); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, domain.FilePerm); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, dest)
}

// Clean implements ports.Cache. The cache holds no authoritative state, so
// the whole root is removed.
func (s *Store) Clean() error {
	if err := os.RemoveAll(s.root); err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrCacheCleanFailed.Error()), "path", s.root)
	}
	return nil
}

// Entries returns the index entries, keyed by "<op>@<version>/<digest>".
func (s *Store) Entries() (map[string]domain.CacheEntry, error) {
	return s.readIndex()
}
