package metadata

import (
	"context"
	"crypto/sha1" //nolint:gosec // the manifest publishes sha1 digests
	"encoding/hex"
	"io"
	"os"
	"path/filepath"

	"go.trai.ch/codev/internal/core/domain"
	"go.trai.ch/zerr"
)

// Download implements ports.MetadataClient. An existing dest is kept when it
// matches sha1, or when no sha1 is known and the client is offline.
// Concurrent downloads to the same dest share one transfer.
func (c *Client) Download(ctx context.Context, url, sum, dest string) error {
	_, err, _ := c.flight.Do("download/"+dest, func() (any, error) {
		return nil, c.download(ctx, url, sum, dest)
	})
	return err
}

func (c *Client) download(ctx context.Context, url, sum, dest string) error {
	found, err := exists(dest)
	if err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrPathStatFailed.Error()), "path", dest)
	}

	if found {
		if sum == "" {
			if c.offline {
				return nil
			}
		} else {
			got, err := fileSHA1(dest)
			if err != nil {
				return zerr.With(zerr.Wrap(err, domain.ErrFileHashFailed.Error()), "path", dest)
			}
			if got == sum {
				return nil
			}
			if c.offline {
				err := zerr.With(domain.ErrDownloadHashMismatch, "path", dest)
				err = zerr.With(err, "expected", sum)
				return zerr.With(err, "actual", got)
			}
			c.logger.Warn("hash mismatch for " + dest + ", downloading again")
		}
	} else if c.offline {
		return zerr.With(domain.ErrOffline, "url", url)
	}

	c.logger.Info("downloading " + url)
	return c.fetchFile(ctx, url, sum, dest)
}

// fetchFile streams url into a temporary file beside dest, checking sum on
// the way, and renames it into place.
func (c *Client) fetchFile(ctx context.Context, url, sum, dest string) error {
	resp, err := c.request(ctx, url)
	if err != nil {
		return zerr.Wrap(err, domain.ErrDownloadFailed.Error())
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, domain.DirPerm); err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrDownloadFailed.Error()), "path", dest)
	}
	tmp, err := os.CreateTemp(dir, ".codev-download-*.tmp")
	if err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrDownloadFailed.Error()), "path", dest)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // gone after a successful rename

	h := sha1.New() //nolint:gosec // the manifest publishes sha1 digests
	if _, err := io.Copy(io.MultiWriter(tmp, h), resp.Body); err != nil {
		_ = tmp.Close()
		return zerr.With(zerr.Wrap(err, domain.ErrDownloadFailed.Error()), "url", url)
	}
	if err := tmp.Close(); err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrDownloadFailed.Error()), "path", dest)
	}

	if got := hex.EncodeToString(h.Sum(nil)); sum != "" && got != sum {
		err := zerr.With(domain.ErrDownloadHashMismatch, "url", url)
		err = zerr.With(err, "expected", sum)
		return zerr.With(err, "actual", got)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, domain.FilePerm); err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrDownloadFailed.Error()), "path", dest)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrDownloadFailed.Error()), "path", dest)
	}
	return nil
}
