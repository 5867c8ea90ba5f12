package listing

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"go.trai.ch/codev/internal/adapters/zipfs"
	"go.trai.ch/codev/internal/core/domain"
	"go.trai.ch/codev/internal/engine/manifest"
	"go.trai.ch/zerr"
)

const (
	mixinConfigsAttribute = "MixinConfigs"
	neoforgeModsTOML      = "META-INF/neoforge.mods.toml"
	neoforgeMixinsKey     = "mixins"
)

// FabricMixins lists the mixin configs named by the "mixins" entry of
// fabric.mod.json, either a single path or an array of paths and
// {"config": path} objects.
type FabricMixins struct{}

// Load implements Rule.
func (FabricMixins) Load(a *zipfs.Archive) (Handler, error) {
	if !a.Has(fabricModJSON) {
		return nil, nil
	}
	o, err := readObject(a, fabricModJSON)
	if err != nil {
		return nil, err
	}
	raw, ok := o.get(fabricMixinsKey)
	if !ok {
		return nil, nil
	}
	files, err := fabricMixinPaths(raw)
	if err != nil {
		return nil, zerr.With(err, "path", fabricModJSON)
	}
	return &objectKeyHandler{name: fabricModJSON, key: fabricMixinsKey, files: files}, nil
}

func fabricMixinPaths(raw json.RawMessage) ([]string, error) {
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return []string{single}, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, zerr.Wrap(err, domain.ErrInvalidDescriptor.Error())
	}
	paths := make([]string, 0, len(items))
	for _, item := range items {
		var entry struct {
			Config string `json:"config"`
		}
		if err := json.Unmarshal(item, &single); err == nil {
			paths = append(paths, single)
			continue
		}
		if err := json.Unmarshal(item, &entry); err != nil {
			return nil, zerr.Wrap(err, domain.ErrInvalidDescriptor.Error())
		}
		paths = append(paths, entry.Config)
	}
	return paths, nil
}

// ForgeMixins lists the mixin configs of the MixinConfigs manifest
// attribute. Archives without it fall back to the [[mixins]] tables of
// META-INF/neoforge.mods.toml.
type ForgeMixins struct{}

// Load implements Rule.
func (ForgeMixins) Load(a *zipfs.Archive) (Handler, error) {
	if a.Has(domain.ManifestPath) {
		m, err := manifest.Read(a)
		if err != nil {
			return nil, err
		}
		if value, ok := m.Main.Get(mixinConfigsAttribute); ok {
			var files []string
			for _, name := range strings.Split(value, ",") {
				files = append(files, strings.TrimSpace(name))
			}
			return &manifestHandler{files: files}, nil
		}
	}
	return loadNeoforgeMixins(a)
}

type manifestHandler struct {
	files []string
}

func (h *manifestHandler) List(*zipfs.Archive) []string { return h.files }

func (h *manifestHandler) Remove(a *zipfs.Archive) error {
	m, err := manifest.Read(a)
	if err != nil {
		return err
	}
	m.Main.Delete(mixinConfigsAttribute)
	return manifest.Write(a, m)
}

func loadNeoforgeMixins(a *zipfs.Archive) (Handler, error) {
	if !a.Has(neoforgeModsTOML) {
		return nil, nil
	}
	doc, err := readTOML(a)
	if err != nil {
		return nil, err
	}
	tables, _ := doc[neoforgeMixinsKey].([]any)

	var files []string
	for _, t := range tables {
		table, ok := t.(map[string]any)
		if !ok {
			continue
		}
		if config, ok := table["config"].(string); ok {
			files = append(files, config)
		}
	}
	if len(files) == 0 {
		return nil, nil
	}
	return &tomlHandler{files: files}, nil
}

// tomlHandler removes the [[mixins]] tables, and with them their config
// keys, from neoforge.mods.toml.
type tomlHandler struct {
	files []string
}

func (h *tomlHandler) List(*zipfs.Archive) []string { return h.files }

// Remove cuts the [[mixins]] tables out of the file text, leaving every
// other line as written. Listings it cannot cut, such as an inline mixins
// array, are removed by rewriting the whole document.
func (h *tomlHandler) Remove(a *zipfs.Archive) error {
	data, err := a.ReadFile(neoforgeModsTOML)
	if err != nil {
		return err
	}

	cut := cutArrayTables(string(data), neoforgeMixinsKey)
	var doc map[string]any
	if err := toml.Unmarshal([]byte(cut), &doc); err == nil {
		if _, listed := doc[neoforgeMixinsKey]; !listed {
			return a.WriteFile(neoforgeModsTOML, []byte(cut))
		}
	}

	doc, err = readTOML(a)
	if err != nil {
		return err
	}
	delete(doc, neoforgeMixinsKey)
	out, err := toml.Marshal(doc)
	if err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrInvalidDescriptor.Error()), "path", neoforgeModsTOML)
	}
	return a.WriteFile(neoforgeModsTOML, out)
}

var tomlHeader = regexp.MustCompile(`^\s*\[\[?\s*("?)([A-Za-z0-9_.\-]+)("?)\s*\]\]?\s*(#.*)?$`)

// cutArrayTables removes every [[key]] table from a TOML document. Comments
// directly above a removed header go with it; comments and blank lines
// closing a removed table stay with the header that follows.
func cutArrayTables(doc, key string) string {
	lines := strings.SplitAfter(doc, "\n")
	var out []string
	var pending []string
	cutting, multiline := false, ""

	for _, line := range lines {
		if multiline == "" {
			if m := tomlHeader.FindStringSubmatch(strings.TrimRight(line, "\r\n")); m != nil {
				removed := strings.HasPrefix(strings.TrimSpace(line), "[[") && m[1] == m[3] && m[2] == key
				if removed {
					out = trimComments(out)
				} else {
					if len(out) > 0 && strings.TrimSpace(out[len(out)-1]) == "" {
						for len(pending) > 0 && strings.TrimSpace(pending[0]) == "" {
							pending = pending[1:]
						}
					}
					out = append(out, pending...)
				}
				pending = nil
				cutting = removed
			}
		}
		multiline = multilineState(line, multiline)

		if !cutting {
			out = append(out, line)
			continue
		}
		trimmed := strings.TrimSpace(line)
		if multiline == "" && (trimmed == "" || strings.HasPrefix(trimmed, "#")) {
			pending = append(pending, line)
		} else {
			pending = nil
		}
	}

	text := strings.Join(out, "")
	if strings.HasSuffix(doc, "\n") {
		text = strings.TrimRight(text, "\r\n") + "\n"
	}
	return text
}

// trimComments drops the comment lines at the end of lines.
func trimComments(lines []string) []string {
	for len(lines) > 0 && strings.HasPrefix(strings.TrimSpace(lines[len(lines)-1]), "#") {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// multilineState returns the multi-line string delimiter open after line,
// given the one open before it.
func multilineState(line, open string) string {
	for {
		if open != "" {
			i := strings.Index(line, open)
			if i < 0 {
				return open
			}
			line, open = line[i+3:], ""
			continue
		}
		i := strings.IndexAny(line, "\"'#")
		if i < 0 || line[i] == '#' {
			return ""
		}
		delim := line[i : i+1]
		if strings.HasPrefix(line[i:], strings.Repeat(delim, 3)) {
			line, open = line[i+3:], strings.Repeat(delim, 3)
			continue
		}
		end := closingQuote(line[i+1:], line[i])
		if end < 0 {
			return ""
		}
		line = line[i+1+end+1:]
	}
}

// closingQuote returns the index of the quote q ending a single-line string
// in s, or -1. Basic strings may escape it.
func closingQuote(s string, q byte) int {
	for j := 0; j < len(s); j++ {
		switch {
		case q == '"' && s[j] == '\\':
			j++
		case s[j] == q:
			return j
		}
	}
	return -1
}

func readTOML(a *zipfs.Archive) (map[string]any, error) {
	data, err := a.ReadFile(neoforgeModsTOML)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrInvalidDescriptor.Error()), "path", neoforgeModsTOML)
	}
	return doc, nil
}

// Mixins is the registry StripMixins and RemoveMixins consult.
var Mixins = NewRegistry(DefaultMixinRules()...)

// StripMixins writes in to out without its mixin configs or their listing.
// An archive no rule recognises is copied unchanged.
func StripMixins(ctx context.Context, in, out string) error {
	return Mixins.StripMixins(ctx, in, out)
}

// RemoveMixins is StripMixins, but fails with ErrNoMixinRule when no rule
// recognises the archive.
func RemoveMixins(ctx context.Context, in, out string) error {
	return Mixins.RemoveMixins(ctx, in, out)
}

// StripMixins is StripMixins with the rules of r.
func (r *Registry) StripMixins(ctx context.Context, in, out string) error {
	return r.strip(ctx, in, out, false)
}

// RemoveMixins is RemoveMixins with the rules of r.
func (r *Registry) RemoveMixins(ctx context.Context, in, out string) error {
	return r.strip(ctx, in, out, true)
}

func (r *Registry) strip(ctx context.Context, in, out string, required bool) error {
	return zipfs.Use(ctx, func(g *zipfs.Group) error {
		src, err := g.Open(in)
		if err != nil {
			return err
		}
		h, err := r.Load(src)
		if err != nil {
			return err
		}
		if h == nil && required {
			return zerr.With(domain.ErrNoMixinRule, "archive", in)
		}

		dst, err := g.Create(out)
		if err != nil {
			return err
		}
		if err := copyAll(src, dst); err != nil {
			return err
		}
		if h == nil {
			return nil
		}
		return removeListed(dst, h)
	})
}
