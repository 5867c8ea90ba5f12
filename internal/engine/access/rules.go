package access

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/tidwall/jsonc"
	"go.trai.ch/codev/internal/adapters/zipfs"
	"go.trai.ch/codev/internal/core/domain"
	"go.trai.ch/codev/internal/engine/manifest"
	"go.trai.ch/zerr"
)

const (
	// FabricModJSON is the fabric mod descriptor.
	FabricModJSON = "fabric.mod.json"
	// UserdevConfig is the Forge userdev configuration.
	UserdevConfig = "config.json"
	// DefaultTransformerName is used when the manifest has no FMLAT attribute.
	DefaultTransformerName = "accesstransformer.cfg"
	fmlatAttribute         = "FMLAT"
)

// Data collects the modifiers read by rules together with a digest of every
// byte they read.
type Data struct {
	Modifiers *Modifiers
	Namespace string
	digest    *xxhash.Digest
}

// NewData creates an empty collection for namespace.
func NewData(namespace string) *Data {
	return &Data{
		Modifiers: NewModifiers(domain.CanonicalNamespace(namespace)),
		Namespace: namespace,
		digest:    xxhash.New(),
	}
}

func (d *Data) record(b []byte) []byte {
	_, _ = d.digest.Write(b)
	return b
}

// Digest identifies the content loaded so far.
func (d *Data) Digest() string {
	return fmt.Sprintf("%016x", d.digest.Sum64())
}

// Rule loads access changes from a file. ok is false when the rule does not
// handle the file.
type Rule interface {
	Load(path string, data *Data) (ok bool, err error)
}

// ZipRule loads access changes from an opened archive.
type ZipRule interface {
	Load(path string, archive *zipfs.Archive, isJar bool, data *Data) (ok bool, err error)
}

func extension(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}

func readFile(path string, data *Data) ([]byte, error) {
	b, err := os.ReadFile(path) //nolint:gosec // Path is provided by the caller
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrFileOpenFailed.Error()), "path", path)
	}
	return data.record(b), nil
}

// WidenerRule reads .accesswidener files.
type WidenerRule struct{}

// Load implements Rule.
func (WidenerRule) Load(path string, data *Data) (bool, error) {
	if extension(path) != "accesswidener" {
		return false, nil
	}
	b, err := readFile(path, data)
	if err != nil {
		return true, err
	}
	w, err := ParseWidener(bytes.NewReader(b))
	if err != nil {
		return true, zerr.With(err, "path", path)
	}
	return true, data.Modifiers.AddWidener(w, false)
}

// JSONRule reads modifiers previously written by Modifiers.Encode.
type JSONRule struct{}

// Load implements Rule.
func (JSONRule) Load(path string, data *Data) (bool, error) {
	if extension(path) != "json" {
		return false, nil
	}
	b, err := readFile(path, data)
	if err != nil {
		return true, err
	}
	m, err := Decode(bytes.NewReader(b))
	if err != nil {
		return true, zerr.With(err, "path", path)
	}
	return true, data.Modifiers.Merge(m)
}

// TransformerRule reads loose access transformer .cfg files.
type TransformerRule struct{}

// Load implements Rule.
func (TransformerRule) Load(path string, data *Data) (bool, error) {
	if extension(path) != "cfg" {
		return false, nil
	}
	b, err := readFile(path, data)
	if err != nil {
		return true, err
	}
	entries, err := ParseTransformer(bytes.NewReader(b))
	if err != nil {
		return true, zerr.With(err, "path", path)
	}
	return true, data.Modifiers.AddTransformer(entries, data.Namespace)
}

// ZipHandler opens jar and zip files and tries its rules on them in order.
type ZipHandler struct {
	Rules []ZipRule
}

// Load implements Rule.
func (h ZipHandler) Load(path string, data *Data) (bool, error) {
	ext := extension(path)
	isJar := ext == "jar"
	if !isJar && ext != "zip" {
		return false, nil
	}

	a, err := zipfs.Open(path)
	if err != nil {
		return true, err
	}
	defer a.Close() //nolint:errcheck // read-only handle

	for _, rule := range h.Rules {
		ok, err := rule.Load(path, a, isJar, data)
		if err != nil {
			return true, zerr.With(err, "archive", path)
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func readEntry(a *zipfs.Archive, p string, data *Data) ([]byte, error) {
	b, err := a.ReadFile(p)
	if err != nil {
		return nil, err
	}
	return data.record(b), nil
}

// ModWidenerRule reads the access widener named by fabric.mod.json. Only
// transitive directives apply to consumers of the mod.
type ModWidenerRule struct{}

// Load implements ZipRule.
func (ModWidenerRule) Load(_ string, a *zipfs.Archive, _ bool, data *Data) (bool, error) {
	name, err := ModWidenerPath(a)
	if err != nil || name == "" {
		return false, err
	}
	b, err := readEntry(a, name, data)
	if err != nil {
		return true, err
	}
	w, err := ParseWidener(bytes.NewReader(b))
	if err != nil {
		return true, zerr.With(err, "path", name)
	}
	return true, data.Modifiers.AddWidener(w, true)
}

// ModWidenerPath returns the access widener path declared in the archive's
// fabric.mod.json, or "" when there is none.
func ModWidenerPath(a *zipfs.Archive) (string, error) {
	if !a.Has(FabricModJSON) {
		return "", nil
	}
	b, err := a.ReadFile(FabricModJSON)
	if err != nil {
		return "", err
	}
	var mod struct {
		AccessWidener string `json:"accessWidener"`
	}
	if err := json.Unmarshal(jsonc.ToJSON(b), &mod); err != nil {
		return "", zerr.With(zerr.Wrap(err, domain.ErrInvalidDescriptor.Error()), "path", FabricModJSON)
	}
	if mod.AccessWidener == "" || !a.Has(mod.AccessWidener) {
		return "", nil
	}
	return mod.AccessWidener, nil
}

// ForgeTransformerRule reads the access transformers of Forge mods and
// userdev archives: the one named by the manifest FMLAT attribute (or
// META-INF/accesstransformer.cfg) and every file or directory listed under
// "ats" in config.json.
type ForgeTransformerRule struct{}

// Load implements ZipRule.
func (ForgeTransformerRule) Load(_ string, a *zipfs.Archive, _ bool, data *Data) (bool, error) {
	paths, err := FindTransformers(a)
	if err != nil || len(paths) == 0 {
		return false, err
	}
	for _, p := range paths {
		b, err := readEntry(a, p, data)
		if err != nil {
			return true, err
		}
		entries, err := ParseTransformer(bytes.NewReader(b))
		if err != nil {
			return true, zerr.With(err, "path", p)
		}
		if err := data.Modifiers.AddTransformer(entries, data.Namespace); err != nil {
			return true, err
		}
	}
	return true, nil
}

// FindTransformers lists the access transformer files of a Forge archive.
func FindTransformers(a *zipfs.Archive) ([]string, error) {
	var paths []string

	name := DefaultTransformerName
	if a.Has(domain.ManifestPath) {
		m, err := manifest.Read(a)
		if err != nil {
			return nil, err
		}
		if v, ok := m.Main.Get(fmlatAttribute); ok && v != "" {
			name = v
		}
	}
	if p := "META-INF/" + name; a.Has(p) {
		paths = append(paths, p)
	}

	if !a.Has(UserdevConfig) {
		return paths, nil
	}
	b, err := a.ReadFile(UserdevConfig)
	if err != nil {
		return nil, err
	}
	var config struct {
		ATs json.RawMessage `json:"ats"`
	}
	if err := json.Unmarshal(jsonc.ToJSON(b), &config); err != nil {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrInvalidDescriptor.Error()), "path", UserdevConfig)
	}
	ats, err := stringOrList(config.ATs)
	if err != nil {
		return nil, zerr.With(err, "path", UserdevConfig)
	}
	for _, at := range ats {
		at = strings.TrimPrefix(at, "/")
		if a.Has(at) {
			paths = append(paths, at)
			continue
		}
		paths = append(paths, a.Walk(at)...)
	}
	return paths, nil
}

func stringOrList(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var one string
	if err := json.Unmarshal(raw, &one); err == nil {
		return []string{one}, nil
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err != nil {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrInvalidDescriptor.Error()), "key", "ats")
	}
	return many, nil
}

// DefaultZipRules returns the built-in archive rules in lookup order.
func DefaultZipRules() []ZipRule {
	return []ZipRule{ModWidenerRule{}, ForgeTransformerRule{}}
}

// DefaultRules returns the built-in rules in lookup order.
func DefaultRules() []Rule {
	return []Rule{WidenerRule{}, JSONRule{}, TransformerRule{}, ZipHandler{Rules: DefaultZipRules()}}
}

// Load merges the access changes of every path that a rule handles. The
// first rule to handle a path wins. Paths no rule handles are ignored.
func Load(namespace string, rules []Rule, paths ...string) (*Data, error) {
	data := NewData(namespace)
	for _, path := range paths {
		for _, rule := range rules {
			ok, err := rule.Load(path, data)
			if err != nil {
				return nil, err
			}
			if ok {
				break
			}
		}
	}
	return data, nil
}
