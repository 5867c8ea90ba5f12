package metadata_test

import (
	"bytes"
	"context"
	"crypto/sha1" //nolint:gosec // test fixtures use the manifest's digests
	"encoding/hex"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/codev/internal/adapters/metadata"
	"go.trai.ch/codev/internal/core/domain"
	"go.trai.ch/codev/internal/core/ports/mocks"
	"go.uber.org/mock/gomock"
)

const (
	manifestURL = "https://meta.example/manifest.json"
	versionURL  = "https://meta.example/1.20.1.json"
	clientURL   = "https://meta.example/client.jar"
)

// MockRoundTripper is a helper to mock http.Client behavior.
type MockRoundTripper struct {
	RoundTripFunc func(req *http.Request) *http.Response
}

func (m *MockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return m.RoundTripFunc(req), nil
}

func newMockClient(handler func(req *http.Request) *http.Response) *http.Client {
	return &http.Client{
		Transport: &MockRoundTripper{RoundTripFunc: handler},
	}
}

func sha1Hex(data string) string {
	sum := sha1.Sum([]byte(data)) //nolint:gosec // test fixtures use the manifest's digests
	return hex.EncodeToString(sum[:])
}

func ok(body string) *http.Response {
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
		Header:     make(http.Header),
	}
}

func notFound() *http.Response {
	return &http.Response{
		StatusCode: http.StatusNotFound,
		Body:       io.NopCloser(bytes.NewBufferString("")),
		Header:     make(http.Header),
	}
}

// server serves a manifest with one version and counts the requests per URL.
type server struct {
	jar      string
	version  string
	manifest string
	hits     map[string]*atomic.Int32
	down     atomic.Bool
}

func newServer() *server {
	jar := "client jar bytes"
	version := `{"id":"1.20.1","type":"release","downloads":{"client":{"sha1":"` + sha1Hex(jar) +
		`","size":16,"url":"` + clientURL + `"}}}`
	manifest := `{"latest":{"release":"1.20.1"},"versions":[{"id":"1.20.1","type":"release","url":"` +
		versionURL + `","sha1":"` + sha1Hex(version) + `"}]}`
	return &server{
		jar:      jar,
		version:  version,
		manifest: manifest,
		hits: map[string]*atomic.Int32{
			manifestURL: {},
			versionURL:  {},
			clientURL:   {},
		},
	}
}

func (s *server) handle(req *http.Request) *http.Response {
	url := req.URL.String()
	if counter, found := s.hits[url]; found {
		counter.Add(1)
	}
	if s.down.Load() {
		return &http.Response{
			StatusCode: http.StatusServiceUnavailable,
			Body:       io.NopCloser(bytes.NewBufferString("")),
			Header:     make(http.Header),
		}
	}
	switch url {
	case manifestURL:
		return ok(s.manifest)
	case versionURL:
		return ok(s.version)
	case clientURL:
		return ok(s.jar)
	default:
		return notFound()
	}
}

func (s *server) count(url string) int {
	return int(s.hits[url].Load())
}

func newClient(t *testing.T, srv *server, cacheDir string, offline bool) *metadata.Client {
	t.Helper()

	ctrl := gomock.NewController(t)
	mockLogger := mocks.NewMockLogger(ctrl)
	mockLogger.EXPECT().Info(gomock.Any()).AnyTimes()
	mockLogger.EXPECT().Warn(gomock.Any()).AnyTimes()

	c, err := metadata.NewClientForTest(mockLogger, metadata.Options{
		CacheDir:    cacheDir,
		ManifestURL: manifestURL,
		Offline:     offline,
	}, newMockClient(srv.handle))
	require.NoError(t, err)
	return c
}

func TestClient_Version(t *testing.T) {
	t.Parallel()

	srv := newServer()
	c := newClient(t, srv, t.TempDir(), false)

	meta, err := c.Version(context.Background(), "1.20.1")
	require.NoError(t, err)
	assert.Equal(t, "1.20.1", meta.ID)

	dl, found := meta.SideDownload(domain.SideClient)
	require.True(t, found)
	assert.Equal(t, clientURL, dl.URL)

	_, err = c.Version(context.Background(), "1.20.1")
	require.NoError(t, err)
	assert.Equal(t, 1, srv.count(manifestURL))
	assert.Equal(t, 1, srv.count(versionURL))
}

func TestClient_Version_NotFound(t *testing.T) {
	t.Parallel()

	c := newClient(t, newServer(), t.TempDir(), false)

	_, err := c.Version(context.Background(), "0.0.1")
	require.ErrorContains(t, err, domain.ErrGameVersionNotFound.Error())
}

func TestClient_Version_UsesCacheAcrossClients(t *testing.T) {
	t.Parallel()

	srv := newServer()
	cacheDir := t.TempDir()

	_, err := newClient(t, srv, cacheDir, false).Version(context.Background(), "1.20.1")
	require.NoError(t, err)

	// The version document is verified by sha1 and read from the cache.
	_, err = newClient(t, srv, cacheDir, false).Version(context.Background(), "1.20.1")
	require.NoError(t, err)
	assert.Equal(t, 2, srv.count(manifestURL))
	assert.Equal(t, 1, srv.count(versionURL))

	entries, err := os.ReadDir(filepath.Join(cacheDir, domain.MetadataDirName))
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestClient_Manifest_FallsBackToCache(t *testing.T) {
	t.Parallel()

	srv := newServer()
	cacheDir := t.TempDir()

	_, err := newClient(t, srv, cacheDir, false).Manifest(context.Background())
	require.NoError(t, err)

	srv.down.Store(true)
	manifest, err := newClient(t, srv, cacheDir, false).Manifest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1.20.1", manifest.Latest["release"])
}

func TestClient_Manifest_RequestFailed(t *testing.T) {
	t.Parallel()

	srv := newServer()
	srv.down.Store(true)

	_, err := newClient(t, srv, t.TempDir(), false).Manifest(context.Background())
	require.ErrorContains(t, err, domain.ErrMetadataRequestFailed.Error())
}

func TestClient_Version_HashMismatch(t *testing.T) {
	t.Parallel()

	srv := newServer()
	srv.version = `{"id":"tampered"}`

	_, err := newClient(t, srv, t.TempDir(), false).Version(context.Background(), "1.20.1")
	require.ErrorContains(t, err, domain.ErrDownloadHashMismatch.Error())
}

func TestClient_Offline(t *testing.T) {
	t.Parallel()

	srv := newServer()
	cacheDir := t.TempDir()

	_, err := newClient(t, srv, cacheDir, true).Manifest(context.Background())
	require.ErrorContains(t, err, domain.ErrOffline.Error())
	assert.Equal(t, 0, srv.count(manifestURL))

	_, err = newClient(t, srv, cacheDir, false).Version(context.Background(), "1.20.1")
	require.NoError(t, err)

	meta, err := newClient(t, srv, cacheDir, true).Version(context.Background(), "1.20.1")
	require.NoError(t, err)
	assert.Equal(t, "1.20.1", meta.ID)
	assert.Equal(t, 1, srv.count(manifestURL))
}

func TestClient_Download(t *testing.T) {
	t.Parallel()

	srv := newServer()
	dest := filepath.Join(t.TempDir(), "net", "minecraft", "client.jar")

	tests := []struct {
		name    string
		prepare func(t *testing.T)
		offline bool
		sum     string
		wantErr error
		hits    int
	}{
		{name: "fresh", sum: sha1Hex(srv.jar), hits: 1},
		{name: "matching file is kept", sum: sha1Hex(srv.jar), hits: 1},
		{
			name: "mismatching file is replaced",
			prepare: func(t *testing.T) {
				t.Helper()
				require.NoError(t, os.WriteFile(dest, []byte("stale"), 0o600))
			},
			sum:  sha1Hex(srv.jar),
			hits: 2,
		},
		{
			name: "mismatch offline",
			prepare: func(t *testing.T) {
				t.Helper()
				require.NoError(t, os.WriteFile(dest, []byte("stale"), 0o600))
			},
			offline: true,
			sum:     sha1Hex(srv.jar),
			wantErr: domain.ErrDownloadHashMismatch,
			hits:    2,
		},
		{name: "unknown hash offline", offline: true, hits: 2},
		{name: "unknown hash online", hits: 3},
		{name: "wrong hash", sum: sha1Hex("other"), wantErr: domain.ErrDownloadHashMismatch, hits: 4},
	}

	// Cases share dest and run in order.
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.prepare != nil {
				tt.prepare(t)
			}
			c := newClient(t, srv, t.TempDir(), tt.offline)

			err := c.Download(context.Background(), clientURL, tt.sum, dest)
			if tt.wantErr != nil {
				require.ErrorContains(t, err, tt.wantErr.Error())
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.hits, srv.count(clientURL))
		})
	}
}

func TestClient_Download_OfflineMissing(t *testing.T) {
	t.Parallel()

	srv := newServer()
	c := newClient(t, srv, t.TempDir(), true)

	err := c.Download(context.Background(), clientURL, sha1Hex(srv.jar), filepath.Join(t.TempDir(), "client.jar"))
	require.ErrorContains(t, err, domain.ErrOffline.Error())
	assert.Equal(t, 0, srv.count(clientURL))
}

func TestClient_Download_NotFound(t *testing.T) {
	t.Parallel()

	dest := filepath.Join(t.TempDir(), "missing.jar")
	c := newClient(t, newServer(), t.TempDir(), false)

	err := c.Download(context.Background(), "https://meta.example/missing.jar", "", dest)
	require.ErrorContains(t, err, domain.ErrDownloadFailed.Error())
	assert.NoFileExists(t, dest)
}
