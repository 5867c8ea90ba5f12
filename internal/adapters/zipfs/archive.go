// Package zipfs provides archive-backed filesystems with scoped cleanup.
package zipfs

import (
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/klauspost/compress/zip"
	"go.trai.ch/codev/internal/core/domain"
	"go.trai.ch/zerr"
)

// EntryTime is the modification time stamped on every written entry so
// that identical content yields identical archives.
var EntryTime = time.Date(1980, time.February, 1, 0, 0, 0, 0, time.UTC)

type mode int

const (
	modeRead mode = iota
	modeCreate
	modeEdit
)

// entry is a pending write: either raw bytes or an entry of another open archive.
type entry struct {
	data []byte
	file *zip.File
}

// Archive is a zip file viewed as a flat filesystem of slash-separated paths.
//
// Archives opened with Open are read-only. Archives from Create and Edit
// collect writes in memory and publish them on Close by writing a temporary
// file next to the target and renaming it into place.
type Archive struct {
	path string
	mode mode

	mu      sync.Mutex
	reader  *zip.ReadCloser
	files   map[string]*zip.File
	pending map[string]entry
	removed map[string]struct{}
	discard bool
	closed  bool
}

// Open opens an existing archive for reading.
func Open(path string) (*Archive, error) {
	return open(path, modeRead)
}

// Edit opens an existing archive for modification.
func Edit(path string) (*Archive, error) {
	return open(path, modeEdit)
}

// Create creates a new empty archive at path, replacing any existing file on Close.
func Create(path string) (*Archive, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, domain.DirPerm); err != nil {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrArchiveCreateFailed.Error()), "path", path)
	}
	return &Archive{
		path:    filepath.Clean(path),
		mode:    modeCreate,
		files:   make(map[string]*zip.File),
		pending: make(map[string]entry),
		removed: make(map[string]struct{}),
	}, nil
}

func open(path string, m mode) (*Archive, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrArchiveOpenFailed.Error()), "path", path)
	}

	files := make(map[string]*zip.File, len(rc.File))
	for _, f := range rc.File {
		name := normalize(f.Name)
		if name == "" || strings.HasSuffix(f.Name, "/") {
			continue
		}
		files[name] = f
	}

	return &Archive{
		path:    filepath.Clean(path),
		mode:    m,
		reader:  rc,
		files:   files,
		pending: make(map[string]entry),
		removed: make(map[string]struct{}),
	}, nil
}

func normalize(name string) string {
	return strings.TrimPrefix(filepath.ToSlash(name), "/")
}

// Path returns the location of the archive on disk.
func (a *Archive) Path() string {
	return a.path
}

// Paths returns every file entry, sorted, with the manifest first.
func (a *Archive) Paths() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pathsLocked()
}

func (a *Archive) pathsLocked() []string {
	paths := make([]string, 0, len(a.files)+len(a.pending))
	for name := range a.files {
		if _, gone := a.removed[name]; gone {
			continue
		}
		if _, over := a.pending[name]; over {
			continue
		}
		paths = append(paths, name)
	}
	for name := range a.pending {
		paths = append(paths, name)
	}
	slices.SortFunc(paths, comparePaths)
	return paths
}

func comparePaths(x, y string) int {
	switch {
	case x == y:
		return 0
	case x == domain.ManifestPath:
		return -1
	case y == domain.ManifestPath:
		return 1
	default:
		return strings.Compare(x, y)
	}
}

// Has reports whether the archive contains a file entry at p.
func (a *Archive) Has(p string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.hasLocked(normalize(p))
}

func (a *Archive) hasLocked(p string) bool {
	if _, ok := a.pending[p]; ok {
		return true
	}
	if _, gone := a.removed[p]; gone {
		return false
	}
	_, ok := a.files[p]
	return ok
}

// Glob returns the entries matching a doublestar pattern.
func (a *Archive) Glob(pattern string) []string {
	var out []string
	for _, p := range a.Paths() {
		if ok, _ := doublestar.Match(pattern, p); ok {
			out = append(out, p)
		}
	}
	return out
}

// Walk returns the entries below the directory prefix.
func (a *Archive) Walk(prefix string) []string {
	prefix = normalize(prefix)
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	var out []string
	for _, p := range a.Paths() {
		if strings.HasPrefix(p, prefix) {
			out = append(out, p)
		}
	}
	return out
}

// ReadFile returns the content of the entry at p.
func (a *Archive) ReadFile(p string) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil, zerr.With(domain.ErrArchiveClosed, "path", a.path)
	}

	p = normalize(p)
	if e, ok := a.pending[p]; ok {
		if e.file != nil {
			return readZipFile(e.file, p)
		}
		return slices.Clone(e.data), nil
	}
	if _, gone := a.removed[p]; gone {
		return nil, a.notFound(p)
	}
	f, ok := a.files[p]
	if !ok {
		return nil, a.notFound(p)
	}
	return readZipFile(f, p)
}

func (a *Archive) notFound(p string) error {
	err := zerr.With(domain.ErrEntryNotFound, "entry", p)
	return zerr.With(err, "archive", a.path)
}

func readZipFile(f *zip.File, p string) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrEntryReadFailed.Error()), "entry", p)
	}
	defer rc.Close() //nolint:errcheck // read-only handle

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrEntryReadFailed.Error()), "entry", p)
	}
	return data, nil
}

// WriteFile stores data at p, replacing any existing entry.
func (a *Archive) WriteFile(p string, data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.writableLocked(); err != nil {
		return err
	}
	p = normalize(p)
	a.pending[p] = entry{data: slices.Clone(data)}
	delete(a.removed, p)
	return nil
}

// CopyFrom copies the entry src from another archive to dst without
// recompressing it. The source archive must stay open until a is closed.
func (a *Archive) CopyFrom(from *Archive, src, dst string) error {
	from.mu.Lock()
	src = normalize(src)
	var e entry
	switch pe, ok := from.pending[src]; {
	case ok:
		e = pe
	case from.hasLocked(src):
		e = entry{file: from.files[src]}
	default:
		from.mu.Unlock()
		return from.notFound(src)
	}
	from.mu.Unlock()

	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.writableLocked(); err != nil {
		return err
	}
	dst = normalize(dst)
	a.pending[dst] = e
	delete(a.removed, dst)
	return nil
}

// Remove deletes the entry at p. Removing a missing entry is not an error.
func (a *Archive) Remove(p string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.writableLocked(); err != nil {
		return err
	}
	p = normalize(p)
	delete(a.pending, p)
	if _, ok := a.files[p]; ok {
		a.removed[p] = struct{}{}
	}
	return nil
}

func (a *Archive) writableLocked() error {
	if a.closed {
		return zerr.With(domain.ErrArchiveClosed, "path", a.path)
	}
	if a.mode == modeRead {
		return zerr.With(domain.ErrArchiveReadOnly, "path", a.path)
	}
	return nil
}

// Discard drops all pending writes; Close will leave the file on disk untouched.
func (a *Archive) Discard() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.discard = true
}

// Close releases the archive and, for writable archives, publishes the result.
func (a *Archive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}

	var err error
	if a.mode != modeRead && !a.discard {
		err = a.flushLocked()
	}

	a.closed = true
	if a.reader != nil {
		if closeErr := a.reader.Close(); closeErr != nil && err == nil {
			err = zerr.With(zerr.Wrap(closeErr, domain.ErrArchiveWriteFailed.Error()), "path", a.path)
		}
		a.reader = nil
	}
	return err
}

func (a *Archive) flushLocked() error {
	dir := filepath.Dir(a.path)
	tmp, err := os.CreateTemp(dir, ".zipfs-*.tmp")
	if err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrArchiveWriteFailed.Error()), "path", a.path)
	}
	tmpName := tmp.Name()
	defer func() {
		if _, statErr := os.Stat(tmpName); statErr == nil {
			_ = os.Remove(tmpName)
		}
	}()

	if err := a.writeTo(tmp); err != nil {
		_ = tmp.Close()
		return zerr.With(zerr.Wrap(err, domain.ErrArchiveWriteFailed.Error()), "path", a.path)
	}
	if err := tmp.Close(); err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrArchiveWriteFailed.Error()), "path", a.path)
	}
	if err := os.Chmod(tmpName, domain.FilePerm); err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrArchiveWriteFailed.Error()), "path", a.path)
	}
	if a.reader != nil {
		_ = a.reader.Close()
		a.reader = nil
	}
	if err := os.Rename(tmpName, a.path); err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrArchiveWriteFailed.Error()), "path", a.path)
	}
	return nil
}

func (a *Archive) writeTo(w io.Writer) error {
	zw := zip.NewWriter(w)

	for _, p := range a.pathsLocked() {
		e, ok := a.pending[p]
		if !ok {
			e = entry{file: a.files[p]}
		}

		if e.file != nil {
			if err := copyRaw(zw, e.file, p); err != nil {
				return err
			}
			continue
		}

		fw, err := zw.CreateHeader(&zip.FileHeader{
			Name:     p,
			Method:   zip.Deflate,
			Modified: EntryTime,
		})
		if err != nil {
			return err
		}
		if _, err := fw.Write(e.data); err != nil {
			return err
		}
	}

	return zw.Close()
}

func copyRaw(zw *zip.Writer, f *zip.File, name string) error {
	hdr := f.FileHeader
	hdr.Name = name

	raw, err := f.OpenRaw()
	if err != nil {
		return err
	}
	fw, err := zw.CreateRaw(&hdr)
	if err != nil {
		return err
	}
	_, err = io.Copy(fw, raw)
	return err
}
