package mappings

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"go.trai.ch/codev/internal/adapters/zipfs"
	"go.trai.ch/codev/internal/core/domain"
	"go.trai.ch/codev/internal/core/ports"
	"go.trai.ch/zerr"
)

// ZipTinyPath is where mapping jars keep their tiny file.
const ZipTinyPath = "mappings/mappings.tiny"

// Rule reads the mapping files it recognises. ok is false when the file is
// not in the rule's format.
type Rule interface {
	Read(path string) (tree *Tree, ok bool, err error)
}

// TinyRule reads .tiny files.
type TinyRule struct{}

// Read implements Rule.
func (TinyRule) Read(path string) (*Tree, bool, error) {
	if filepath.Ext(path) != ".tiny" {
		return nil, false, nil
	}
	f, err := os.Open(path) //nolint:gosec // Path is provided by the caller
	if err != nil {
		return nil, true, zerr.With(zerr.Wrap(err, domain.ErrFileOpenFailed.Error()), "path", path)
	}
	defer f.Close() //nolint:errcheck // read-only handle

	t, err := ReadTiny(f)
	if err != nil {
		return nil, true, zerr.With(err, "path", path)
	}
	return t, true, nil
}

// ProguardRule reads .txt and .map proguard files and switches them to the
// obfuscated source namespace.
type ProguardRule struct{}

// Read implements Rule.
func (ProguardRule) Read(path string) (*Tree, bool, error) {
	switch filepath.Ext(path) {
	case ".txt", ".map":
	default:
		return nil, false, nil
	}
	f, err := os.Open(path) //nolint:gosec // Path is provided by the caller
	if err != nil {
		return nil, true, zerr.With(zerr.Wrap(err, domain.ErrFileOpenFailed.Error()), "path", path)
	}
	defer f.Close() //nolint:errcheck // read-only handle

	t, err := ReadProguard(f)
	if err != nil {
		return nil, true, zerr.With(err, "path", path)
	}
	switched, err := t.SwitchSource(domain.NamespaceObf)
	if err != nil {
		return nil, true, err
	}
	return switched, true, nil
}

// ZipTinyRule reads zip and jar files holding mappings/mappings.tiny.
type ZipTinyRule struct{}

// Read implements Rule.
func (ZipTinyRule) Read(path string) (*Tree, bool, error) {
	switch filepath.Ext(path) {
	case ".zip", ".jar":
	default:
		return nil, false, nil
	}
	a, err := zipfs.Open(path)
	if err != nil {
		return nil, true, err
	}
	defer a.Close() //nolint:errcheck // read-only handle

	if !a.Has(ZipTinyPath) {
		return nil, false, nil
	}
	data, err := a.ReadFile(ZipTinyPath)
	if err != nil {
		return nil, true, err
	}
	t, err := ReadTiny(bytes.NewReader(data))
	if err != nil {
		return nil, true, zerr.With(err, "path", path)
	}
	return t, true, nil
}

// DefaultRules returns the built-in mapping readers in lookup order.
func DefaultRules() []Rule {
	return []Rule{TinyRule{}, ZipTinyRule{}, ProguardRule{}}
}

// Loader reads and merges mapping files.
type Loader struct {
	rules  []Rule
	logger ports.Logger
}

// NewLoader creates a loader trying rules in order.
func NewLoader(logger ports.Logger, rules ...Rule) *Loader {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Loader{rules: rules, logger: logger}
}

// Load merges every recognised file into one tree, in order. Files no rule
// recognises are skipped. When the result has intermediary names but no
// named namespace, named is completed from intermediary.
func (l *Loader) Load(paths ...string) (*Tree, error) {
	tree := NewTree("")

	for _, path := range paths {
		t, err := l.read(path)
		if err != nil {
			return nil, err
		}
		if t == nil {
			l.logger.Debug(fmt.Sprintf("skipping non-mapping file %s", path))
			continue
		}
		if err := tree.Merge(t); err != nil {
			return nil, zerr.With(err, "path", path)
		}
	}

	if tree.NamespaceID(domain.NamespaceNamed) == NullNamespaceID &&
		tree.NamespaceID(domain.NamespaceIntermediary) != NullNamespaceID {
		tree.Complete(domain.NamespaceNamed, domain.NamespaceIntermediary)
	}
	return tree, nil
}

func (l *Loader) read(path string) (*Tree, error) {
	for _, rule := range l.rules {
		t, ok, err := rule.Read(path)
		if err != nil {
			return nil, err
		}
		if ok {
			return t, nil
		}
	}
	return nil, nil
}
