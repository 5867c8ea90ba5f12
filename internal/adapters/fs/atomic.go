package fs

import (
	"context"
	"os"
	"path/filepath"

	"go.trai.ch/codev/internal/core/domain"
	"go.trai.ch/zerr"
)

// WriteFileAtomic writes data to a temporary file next to out and renames
// it into place. Nothing is published when ctx is cancelled first.
func WriteFileAtomic(ctx context.Context, out string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(out), domain.DirPerm); err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrArchiveCreateFailed.Error()), "path", out)
	}
	tmp, err := os.CreateTemp(filepath.Dir(out), ".codev-*.tmp")
	if err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrArchiveCreateFailed.Error()), "path", out)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // gone after a successful rename

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return zerr.With(zerr.Wrap(err, domain.ErrArchiveWriteFailed.Error()), "path", out)
	}
	if err := tmp.Close(); err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrArchiveWriteFailed.Error()), "path", out)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, domain.FilePerm); err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrArchiveWriteFailed.Error()), "path", out)
	}
	if err := os.Rename(tmpName, out); err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrArchiveWriteFailed.Error()), "path", out)
	}
	return nil
}
