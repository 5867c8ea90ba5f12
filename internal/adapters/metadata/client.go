// Package metadata implements the MetadataClient port on top of the game's
// version manifest, caching every document it fetches.
package metadata

import (
	"context"
	"crypto/sha1" //nolint:gosec // the manifest publishes sha1 digests
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	fsadapter "go.trai.ch/codev/internal/adapters/fs"
	"go.trai.ch/codev/internal/core/domain"
	"go.trai.ch/codev/internal/core/ports"
	"go.trai.ch/codev/internal/flight"
	"go.trai.ch/zerr"
)

const (
	// DefaultManifestURL is the published version manifest.
	DefaultManifestURL = "https://piston-meta.mojang.com/mc/game/version_manifest_v2.json"

	httpClientTimeout = 30 * time.Second
)

// Options configure a Client.
type Options struct {
	// CacheDir is the cache root. Documents are kept under its metadata
	// directory.
	CacheDir string
	// ManifestURL overrides DefaultManifestURL.
	ManifestURL string
	// Offline forbids network access. Only cached documents and files
	// already on disk are used.
	Offline bool
}

// Client implements ports.MetadataClient with a local document cache.
type Client struct {
	cacheDir    string
	manifestURL string
	offline     bool
	httpClient  *http.Client
	logger      ports.Logger

	manifestFlight flight.Group[*domain.VersionManifest]
	versionFlight  flight.Group[*domain.VersionMetadata]

	mu       sync.Mutex
	manifest *domain.VersionManifest
	versions map[string]*domain.VersionMetadata
}

var _ ports.MetadataClient = (*Client)(nil)

// NewClient creates a Client for opts.
func NewClient(logger ports.Logger, opts Options) (*Client, error) {
	return newClientWithHTTP(logger, opts, &http.Client{
		Timeout: httpClientTimeout,
	})
}

// newClientWithHTTP creates a Client with a custom http client (used for testing).
func newClientWithHTTP(logger ports.Logger, opts Options, client *http.Client) (*Client, error) {
	cacheDir := domain.MetadataPath(filepath.Clean(opts.CacheDir))
	if err := os.MkdirAll(cacheDir, domain.DirPerm); err != nil {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrMetadataCacheFailed.Error()), "path", cacheDir)
	}

	manifestURL := opts.ManifestURL
	if manifestURL == "" {
		manifestURL = DefaultManifestURL
	}

	return &Client{
		cacheDir:    cacheDir,
		manifestURL: manifestURL,
		offline:     opts.Offline,
		httpClient:  client,
		logger:      logger,
		versions:    make(map[string]*domain.VersionMetadata),
	}, nil
}

// Manifest implements ports.MetadataClient. The manifest is fetched once per
// Client; the cached copy is used when offline or when the fetch fails.
func (c *Client) Manifest(ctx context.Context) (*domain.VersionManifest, error) {
	c.mu.Lock()
	m := c.manifest
	c.mu.Unlock()
	if m != nil {
		return m, nil
	}

	return c.manifestFlight.Do(ctx, "manifest", func(ctx context.Context) (*domain.VersionManifest, error) {
		data, err := c.document(ctx, c.manifestURL, "")
		if err != nil {
			return nil, err
		}
		var manifest domain.VersionManifest
		if err := json.Unmarshal(data, &manifest); err != nil {
			return nil, zerr.With(zerr.Wrap(err, domain.ErrMetadataParseFailed.Error()), "url", c.manifestURL)
		}

		c.mu.Lock()
		c.manifest = &manifest
		c.mu.Unlock()
		return &manifest, nil
	})
}

// Version implements ports.MetadataClient.
func (c *Client) Version(ctx context.Context, id string) (*domain.VersionMetadata, error) {
	c.mu.Lock()
	meta, ok := c.versions[id]
	c.mu.Unlock()
	if ok {
		return meta, nil
	}

	return c.versionFlight.Do(ctx, id, func(ctx context.Context) (*domain.VersionMetadata, error) {
		manifest, err := c.Manifest(ctx)
		if err != nil {
			return nil, err
		}
		info, ok := manifest.Find(id)
		if !ok {
			return nil, zerr.With(domain.ErrGameVersionNotFound, "version", id)
		}

		data, err := c.document(ctx, info.URL, info.SHA1)
		if err != nil {
			return nil, zerr.With(err, "version", id)
		}
		var meta domain.VersionMetadata
		if err := json.Unmarshal(data, &meta); err != nil {
			return nil, zerr.With(zerr.Wrap(err, domain.ErrMetadataParseFailed.Error()), "version", id)
		}

		c.mu.Lock()
		c.versions[id] = &meta
		c.mu.Unlock()
		return &meta, nil
	})
}

// document returns the body of url. With a sha1 the cached copy is used
// whenever it matches; without one the network wins and the cache is the
// fallback.
func (c *Client) document(ctx context.Context, url, sum string) ([]byte, error) {
	path := c.cachePath(url, sum)
	cached, cacheErr := os.ReadFile(path) //nolint:gosec // Path is constructed from the cache directory and a hashed name

	if sum != "" && cacheErr == nil && sha1Hex(cached) == sum {
		return cached, nil
	}
	if c.offline {
		if sum == "" && cacheErr == nil {
			return cached, nil
		}
		return nil, zerr.With(domain.ErrOffline, "url", url)
	}

	data, err := c.get(ctx, url)
	if err != nil {
		if sum == "" && cacheErr == nil {
			c.logger.Warn("using cached " + url + ": " + err.Error())
			return cached, nil
		}
		return nil, err
	}
	if sum != "" {
		if got := sha1Hex(data); got != sum {
			err := zerr.With(domain.ErrDownloadHashMismatch, "url", url)
			err = zerr.With(err, "expected", sum)
			return nil, zerr.With(err, "actual", got)
		}
	}

	if err := fsadapter.WriteFileAtomic(ctx, path, data); err != nil {
		// The document is still usable without its cached copy.
		c.logger.Warn(zerr.Wrap(err, domain.ErrMetadataCacheFailed.Error()).Error())
	}
	return data, nil
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	resp, err := c.request(ctx, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrMetadataRequestFailed.Error()), "url", url)
	}
	return body, nil
}

// request sends a GET for url and fails on any status but 200.
func (c *Client) request(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrMetadataRequestFailed.Error()), "url", url)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrMetadataRequestFailed.Error()), "url", url)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		statusErr := zerr.With(domain.ErrMetadataRequestFailed, "status_code", resp.StatusCode)
		return nil, zerr.With(statusErr, "url", url)
	}
	return resp, nil
}

// cachePath returns the file path for the cache entry of url at sum.
func (c *Client) cachePath(url, sum string) string {
	hash := sha256.Sum256([]byte(url + sum))
	return filepath.Join(c.cacheDir, hex.EncodeToString(hash[:])+".json")
}

func sha1Hex(data []byte) string {
	sum := sha1.Sum(data) //nolint:gosec // the manifest publishes sha1 digests
	return hex.EncodeToString(sum[:])
}

func fileSHA1(path string) (string, error) {
	f, err := os.Open(path) //nolint:gosec // Path is provided by the caller
	if err != nil {
		return "", err
	}
	defer f.Close() //nolint:errcheck // read-only handle

	h := sha1.New() //nolint:gosec // the manifest publishes sha1 digests
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}
