// Package manifest reads and writes jar manifests.
package manifest

import (
	"bufio"
	"bytes"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"go.trai.ch/codev/internal/adapters/zipfs"
	"go.trai.ch/codev/internal/core/domain"
	"go.trai.ch/zerr"
)

const (
	// VersionAttribute is written first in the main section.
	VersionAttribute = "Manifest-Version"

	nameAttribute = "Name"
	maxLineLength = 72
)

// signingPatterns match the signature files of a signed jar.
var signingPatterns = []string{
	"META-INF/*.SF",
	"META-INF/*.DSA",
	"META-INF/*.RSA",
	"META-INF/*.EC",
	"META-INF/SIG-*",
}

// IsSigningFile reports whether p is a jar signature file.
func IsSigningFile(p string) bool {
	upper := strings.ToUpper(p)
	for _, pattern := range signingPatterns {
		if ok, _ := doublestar.Match(pattern, upper); ok {
			return true
		}
	}
	return false
}

// Attribute is one "Name: value" pair.
type Attribute struct {
	Name  string
	Value string
}

// Attributes is an ordered section of a manifest. Names compare case-insensitively.
type Attributes struct {
	list []Attribute
}

func (a *Attributes) index(name string) int {
	return slices.IndexFunc(a.list, func(attr Attribute) bool {
		return strings.EqualFold(attr.Name, name)
	})
}

// Get returns the value of name.
func (a *Attributes) Get(name string) (string, bool) {
	if i := a.index(name); i >= 0 {
		return a.list[i].Value, true
	}
	return "", false
}

// Set replaces the value of name, appending it when absent.
func (a *Attributes) Set(name, value string) {
	if i := a.index(name); i >= 0 {
		a.list[i].Value = value
		return
	}
	a.list = append(a.list, Attribute{Name: name, Value: value})
}

// Delete removes name and reports whether it was present.
func (a *Attributes) Delete(name string) bool {
	i := a.index(name)
	if i < 0 {
		return false
	}
	a.list = slices.Delete(a.list, i, i+1)
	return true
}

// All returns the attributes in order.
func (a *Attributes) All() []Attribute {
	return slices.Clone(a.list)
}

// Len returns the number of attributes.
func (a *Attributes) Len() int {
	return len(a.list)
}

// Manifest is a parsed MANIFEST.MF: a main section followed by named
// per-entry sections.
type Manifest struct {
	Main    Attributes
	names   []string
	entries map[string]*Attributes
}

// New returns an empty manifest with a Manifest-Version of 1.0.
func New() *Manifest {
	m := &Manifest{entries: make(map[string]*Attributes)}
	m.Main.Set(VersionAttribute, "1.0")
	return m
}

// Entry returns the section for name, or nil.
func (m *Manifest) Entry(name string) *Attributes {
	return m.entries[name]
}

// EntryNames returns the names of the per-entry sections in order.
func (m *Manifest) EntryNames() []string {
	return slices.Clone(m.names)
}

// SetEntry replaces or appends the section for name.
func (m *Manifest) SetEntry(name string, attrs *Attributes) {
	if m.entries == nil {
		m.entries = make(map[string]*Attributes)
	}
	if _, ok := m.entries[name]; !ok {
		m.names = append(m.names, name)
	}
	m.entries[name] = attrs
}

// RemoveEntry deletes the section for name.
func (m *Manifest) RemoveEntry(name string) {
	if _, ok := m.entries[name]; !ok {
		return
	}
	delete(m.entries, name)
	m.names = slices.DeleteFunc(m.names, func(n string) bool { return n == name })
}

// Parse parses manifest bytes. Continuation lines start with a single space.
func Parse(data []byte) (*Manifest, error) {
	m := &Manifest{entries: make(map[string]*Attributes)}

	var (
		section []Attribute
		main    = true
		lineNo  int
	)

	flush := func() error {
		if main {
			m.Main.list = section
			main = false
			section = nil
			return nil
		}
		if len(section) == 0 {
			return nil
		}
		if !strings.EqualFold(section[0].Name, nameAttribute) {
			return zerr.With(domain.ErrInvalidManifest, "line", lineNo)
		}
		m.SetEntry(section[0].Value, &Attributes{list: section[1:]})
		section = nil
		return nil
	}

	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSuffix(scanner.Text(), "\r")

		switch {
		case line == "":
			if err := flush(); err != nil {
				return nil, err
			}
		case line[0] == ' ':
			if len(section) == 0 {
				return nil, zerr.With(domain.ErrInvalidManifest, "line", lineNo)
			}
			section[len(section)-1].Value += line[1:]
		default:
			name, value, ok := strings.Cut(line, ":")
			if !ok || name == "" {
				return nil, zerr.With(domain.ErrInvalidManifest, "line", lineNo)
			}
			section = append(section, Attribute{Name: name, Value: strings.TrimPrefix(value, " ")})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, zerr.Wrap(err, domain.ErrInvalidManifest.Error())
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return m, nil
}

// Bytes encodes the manifest with CRLF line endings, wrapping lines at 72 bytes.
func (m *Manifest) Bytes() []byte {
	var buf bytes.Buffer

	main := m.Main.All()
	if i := slices.IndexFunc(main, func(a Attribute) bool {
		return strings.EqualFold(a.Name, VersionAttribute)
	}); i > 0 {
		version := main[i]
		main = slices.Delete(main, i, i+1)
		main = slices.Insert(main, 0, version)
	}
	for _, attr := range main {
		writeLine(&buf, attr.Name+": "+attr.Value)
	}
	buf.WriteString("\r\n")

	for _, name := range m.names {
		writeLine(&buf, nameAttribute+": "+name)
		for _, attr := range m.entries[name].list {
			writeLine(&buf, attr.Name+": "+attr.Value)
		}
		buf.WriteString("\r\n")
	}
	return buf.Bytes()
}

func writeLine(buf *bytes.Buffer, line string) {
	limit := maxLineLength
	for len(line) > limit {
		cut := limit
		// Never split a multi-byte rune.
		for cut > 0 && !isRuneStart(line[cut]) {
			cut--
		}
		buf.WriteString(line[:cut])
		buf.WriteString("\r\n ")
		line = line[cut:]
		limit = maxLineLength - 1
	}
	buf.WriteString(line)
	buf.WriteString("\r\n")
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

// Intersect keeps the attributes present with identical values in both
// manifests, for the main section and for every section named in both.
func Intersect(a, b *Manifest) *Manifest {
	out := &Manifest{entries: make(map[string]*Attributes)}
	out.Main = intersectAttributes(&a.Main, &b.Main)
	for _, name := range a.names {
		other, ok := b.entries[name]
		if !ok {
			continue
		}
		attrs := intersectAttributes(a.entries[name], other)
		out.SetEntry(name, &attrs)
	}
	return out
}

func intersectAttributes(a, b *Attributes) Attributes {
	var out Attributes
	for _, attr := range a.list {
		if v, ok := b.Get(attr.Name); ok && v == attr.Value {
			out.list = append(out.list, attr)
		}
	}
	return out
}

// StripDigests removes the signature digests a signed jar records per entry,
// dropping sections that become empty.
func (m *Manifest) StripDigests() {
	for _, name := range m.EntryNames() {
		attrs := m.entries[name]
		attrs.list = slices.DeleteFunc(attrs.list, func(a Attribute) bool {
			return isDigestAttribute(a.Name)
		})
		if attrs.Len() == 0 {
			m.RemoveEntry(name)
		}
	}
}

func isDigestAttribute(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), "-digest")
}

// Read parses the manifest of an archive. An archive without a manifest
// yields an empty manifest.
func Read(a *zipfs.Archive) (*Manifest, error) {
	if !a.Has(domain.ManifestPath) {
		return New(), nil
	}
	data, err := a.ReadFile(domain.ManifestPath)
	if err != nil {
		return nil, err
	}
	m, err := Parse(data)
	if err != nil {
		return nil, zerr.With(err, "archive", a.Path())
	}
	return m, nil
}

// Write stores m as the manifest of a.
func Write(a *zipfs.Archive, m *Manifest) error {
	return a.WriteFile(domain.ManifestPath, m.Bytes())
}

// SetNamespace records the mapping namespace of the classes in a.
func SetNamespace(a *zipfs.Archive, namespace string) error {
	m, err := Read(a)
	if err != nil {
		return err
	}
	m.Main.Set(domain.MappingNamespaceAttribute, namespace)
	return Write(a, m)
}
