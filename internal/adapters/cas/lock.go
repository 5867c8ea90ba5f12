package cas

import (
	"context"
	"errors"
	"os"
	"time"

	"go.trai.ch/codev/internal/core/domain"
	"go.trai.ch/zerr"
	"golang.org/x/sys/unix"
)

const lockPollInterval = 50 * time.Millisecond

// fileLock is an advisory, cross-process lock held on an open file.
type fileLock struct {
	f *os.File
}

// acquireLock blocks until an exclusive flock on path is held or ctx is done.
func acquireLock(ctx context.Context, path string) (*fileLock, error) {
	//nolint:gosec // Path is constructed from the cache root and a digest
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, domain.PrivateFilePerm)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrCacheLockFailed.Error()), "path", path)
	}

	ticker := time.NewTicker(lockPollInterval)
	defer ticker.Stop()

	for {
		err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB) //nolint:gosec // fd fits in int
		if err == nil {
			return &fileLock{f: f}, nil
		}
		if !errors.Is(err, unix.EWOULDBLOCK) && !errors.Is(err, unix.EINTR) {
			_ = f.Close()
			return nil, zerr.With(zerr.Wrap(err, domain.ErrCacheLockFailed.Error()), "path", path)
		}

		select {
		case <-ctx.Done():
			_ = f.Close()
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (l *fileLock) release() {
	_ = unix.Flock(int(l.f.Fd()), unix.LOCK_UN) //nolint:gosec // fd fits in int
	_ = l.f.Close()
}
