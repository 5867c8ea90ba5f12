package fs

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
	"go.trai.ch/codev/internal/core/domain"
	"go.trai.ch/codev/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.Hasher = (*Hasher)(nil)

// FingerprintMode selects how file fingerprints are computed.
type FingerprintMode string

const (
	// ModeContent hashes file content.
	ModeContent FingerprintMode = "content"
	// ModeStat uses modification time and size only.
	ModeStat FingerprintMode = "stat"
)

// Hasher computes input fingerprints and cache key digests.
type Hasher struct {
	walker *Walker
	mode   FingerprintMode
}

// NewHasher creates a new content Hasher.
func NewHasher(walker *Walker) *Hasher {
	return &Hasher{walker: walker, mode: ModeContent}
}

// WithMode returns a copy of h using the given fingerprint mode.
func (h *Hasher) WithMode(mode FingerprintMode) *Hasher {
	if mode == "" {
		mode = ModeContent
	}
	return &Hasher{walker: h.walker, mode: mode}
}

// ComputeFileHash computes the XXHash of a file's content.
func (h *Hasher) ComputeFileHash(path string) (uint64, error) {
	f, err := os.Open(path) //nolint:gosec // Path is controlled by caller
	if err != nil {
		return 0, zerr.With(zerr.Wrap(err, domain.ErrFileOpenFailed.Error()), "path", path)
	}
	defer f.Close() //nolint:errcheck // Best effort close in defer

	hasher := xxhash.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return 0, zerr.With(zerr.Wrap(err, domain.ErrFileHashFailed.Error()), "path", path)
	}

	return hasher.Sum64(), nil
}

// Fingerprint returns the fingerprint of a file, or of every file below a directory.
func (h *Hasher) Fingerprint(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", zerr.With(zerr.Wrap(err, domain.ErrPathStatFailed.Error()), "path", path)
	}

	hasher := xxhash.New()

	if !info.IsDir() {
		if err := h.hashFile(path, info, hasher); err != nil {
			return "", err
		}
		return fmt.Sprintf("%016x", hasher.Sum64()), nil
	}

	for file := range h.walker.WalkFiles(path, nil) {
		rel, err := filepath.Rel(path, file)
		if err != nil {
			return "", zerr.With(zerr.Wrap(err, domain.ErrPathStatFailed.Error()), "path", file)
		}
		_, _ = hasher.WriteString(filepath.ToSlash(rel))
		_, _ = hasher.Write([]byte{0})

		fileInfo, err := os.Stat(file)
		if err != nil {
			return "", zerr.With(zerr.Wrap(err, domain.ErrPathStatFailed.Error()), "path", file)
		}
		if err := h.hashFile(file, fileInfo, hasher); err != nil {
			return "", err
		}
	}

	return fmt.Sprintf("%016x", hasher.Sum64()), nil
}

func (h *Hasher) hashFile(path string, info os.FileInfo, w io.Writer) error {
	if h.mode == ModeStat {
		if err := binary.Write(w, binary.LittleEndian, info.ModTime().UnixNano()); err != nil {
			return zerr.Wrap(err, domain.ErrWriteHashFailed.Error())
		}
		if err := binary.Write(w, binary.LittleEndian, info.Size()); err != nil {
			return zerr.Wrap(err, domain.ErrWriteHashFailed.Error())
		}
		return nil
	}

	hash, err := h.ComputeFileHash(path)
	if err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, hash); err != nil {
		return zerr.Wrap(err, domain.ErrWriteHashFailed.Error())
	}
	return nil
}

// Digest combines parts into a single key. Parts are separated so that
// ("ab", "c") and ("a", "bc") differ.
func (h *Hasher) Digest(parts ...string) string {
	hasher := xxhash.New()
	for _, part := range parts {
		_, _ = hasher.WriteString(part)
		_, _ = hasher.Write([]byte{0})
	}
	return fmt.Sprintf("%016x", hasher.Sum64())
}
