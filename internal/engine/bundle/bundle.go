// Package bundle splits the game's distributed jars: it extracts the real
// server jar from a bundler jar and reduces the client jar to the entries the
// server lacks.
package bundle

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha1" //nolint:gosec // bundle indexes are keyed by sha1
	"encoding/hex"
	"os"
	"path"
	"strings"

	"go.trai.ch/codev/internal/adapters/fs"
	"go.trai.ch/codev/internal/adapters/zipfs"
	"go.trai.ch/codev/internal/core/domain"
	"go.trai.ch/codev/internal/engine/manifest"
	"go.trai.ch/zerr"
)

const (
	// VersionsList is the bundle index of embedded server jars.
	VersionsList = "META-INF/versions.list"
	// LibrariesList is the bundle index of server libraries.
	LibrariesList = "META-INF/libraries.list"

	versionsDir = "META-INF/versions/"
)

// IndexEntry is one row of a bundle list: "sha1 \t id \t path".
type IndexEntry struct {
	Hash string
	ID   string
	Path string
}

// ExtractOptions controls ExtractServer.
type ExtractOptions struct {
	// AllowLegacy copies jars without a bundle index through unchanged.
	AllowLegacy bool
}

// ReadIndex parses the bundle list at name. Blank lines are skipped.
func ReadIndex(a *zipfs.Archive, name string) ([]IndexEntry, error) {
	data, err := a.ReadFile(name)
	if err != nil {
		return nil, err
	}

	var entries []IndexEntry
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for line := 1; scanner.Scan(); line++ {
		row := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(row) == "" {
			continue
		}
		cols := strings.Split(row, "\t")
		if len(cols) != 3 || cols[1] == "" || cols[2] == "" {
			err := zerr.With(domain.ErrBundleIndexInvalid, "index", name)
			return nil, zerr.With(err, "line", line)
		}
		entries = append(entries, IndexEntry{Hash: cols[0], ID: cols[1], Path: cols[2]})
	}
	if err := scanner.Err(); err != nil {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrEntryReadFailed.Error()), "entry", name)
	}
	return entries, nil
}

// IsBundle reports whether the archive carries a bundle index.
func IsBundle(a *zipfs.Archive) bool {
	return a.Has(VersionsList)
}

// ExtractServer writes the server jar embedded in the bundle for versionID
// to out, byte for byte. It reports whether the input was a bundle; legacy
// jars are copied through when opts.AllowLegacy is set.
func ExtractServer(
	ctx context.Context,
	bundlePath, versionID, out string,
	opts ExtractOptions,
) (bundled bool, err error) {
	bundle, err := zipfs.Open(bundlePath)
	if err != nil {
		return false, err
	}
	defer bundle.Close() //nolint:errcheck // read-only handle

	if !IsBundle(bundle) {
		if !opts.AllowLegacy {
			return false, zerr.With(domain.ErrBundleIndexMissing, "archive", bundlePath)
		}
		data, err := os.ReadFile(bundlePath) //nolint:gosec // Path is provided by the caller
		if err != nil {
			return false, zerr.With(zerr.Wrap(err, domain.ErrFileOpenFailed.Error()), "path", bundlePath)
		}
		return false, fs.WriteFileAtomic(ctx, out, data)
	}

	entries, err := ReadIndex(bundle, VersionsList)
	if err != nil {
		return true, err
	}

	for _, e := range entries {
		if e.ID != versionID {
			continue
		}
		data, err := bundle.ReadFile(versionsDir + e.Path)
		if err != nil {
			return true, err
		}
		if e.Hash != "" {
			sum := sha1.Sum(data) //nolint:gosec // integrity check against the bundle index
			if got := hex.EncodeToString(sum[:]); !strings.EqualFold(got, e.Hash) {
				err := zerr.With(domain.ErrBundleHashMismatch, "version", versionID)
				err = zerr.With(err, "expected", e.Hash)
				return true, zerr.With(err, "actual", got)
			}
		}
		return true, fs.WriteFileAtomic(ctx, out, data)
	}

	err = zerr.With(domain.ErrVersionNotInBundle, "version", versionID)
	return true, zerr.With(err, "archive", bundlePath)
}

// Libraries returns the maven coordinates listed in the bundle's library index.
// A jar without a library index has no bundled libraries.
func Libraries(bundlePath string) ([]domain.ModuleCoordinate, error) {
	bundle, err := zipfs.Open(bundlePath)
	if err != nil {
		return nil, err
	}
	defer bundle.Close() //nolint:errcheck // read-only handle

	if !bundle.Has(LibrariesList) {
		return nil, nil
	}
	entries, err := ReadIndex(bundle, LibrariesList)
	if err != nil {
		return nil, err
	}

	coords := make([]domain.ModuleCoordinate, 0, len(entries))
	for _, e := range entries {
		c, err := domain.ParseCoordinate(e.ID)
		if err != nil {
			return nil, zerr.With(err, "index", LibrariesList)
		}
		coords = append(coords, c)
	}
	return coords, nil
}

// SplitClient writes the part of the client jar that the server jar does not
// contain. Classes are kept only when the server lacks them. Other files are
// kept when the server lacks them, when their path mentions "lang", or when
// they are dotfiles directly under assets/. Signing files are dropped.
func SplitClient(ctx context.Context, clientPath, serverPath, out string) error {
	return zipfs.Use(ctx, func(g *zipfs.Group) error {
		client, err := g.Open(clientPath)
		if err != nil {
			return err
		}
		server, err := g.Open(serverPath)
		if err != nil {
			return err
		}
		dst, err := g.Create(out)
		if err != nil {
			return err
		}

		for _, p := range client.Paths() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if p == domain.ManifestPath || !keepClientEntry(p, server.Has(p)) {
				continue
			}
			if err := dst.CopyFrom(client, p, p); err != nil {
				return err
			}
		}

		m, err := manifest.Read(client)
		if err != nil {
			return err
		}
		m.StripDigests()
		m.Main.Set(domain.MappingNamespaceAttribute, domain.NamespaceObf)
		return manifest.Write(dst, m)
	})
}

func keepClientEntry(p string, onServer bool) bool {
	if strings.HasSuffix(p, ".class") {
		return !onServer
	}
	if manifest.IsSigningFile(p) {
		return false
	}
	if !onServer || strings.Contains(p, "lang") {
		return true
	}
	return path.Dir(p) == "assets" && strings.HasPrefix(path.Base(p), ".")
}

// PrepareServer copies the extracted server jar to out without its signing
// files and tags it with the obfuscated namespace.
func PrepareServer(ctx context.Context, serverPath, out string) error {
	return zipfs.Use(ctx, func(g *zipfs.Group) error {
		server, err := g.Open(serverPath)
		if err != nil {
			return err
		}
		dst, err := g.Create(out)
		if err != nil {
			return err
		}

		for _, p := range server.Paths() {
			if p == domain.ManifestPath || manifest.IsSigningFile(p) {
				continue
			}
			if err := dst.CopyFrom(server, p, p); err != nil {
				return err
			}
		}

		m, err := manifest.Read(server)
		if err != nil {
			return err
		}
		m.StripDigests()
		m.Main.Set(domain.MappingNamespaceAttribute, domain.NamespaceObf)
		return manifest.Write(dst, m)
	})
}
