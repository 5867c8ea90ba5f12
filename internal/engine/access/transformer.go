package access

import (
	"bufio"
	"io"
	"strings"

	"go.trai.ch/codev/internal/core/domain"
	"go.trai.ch/zerr"
)

// TransformerEntry is one line of a Forge access transformer.
type TransformerEntry struct {
	Access Transform
	Class  string
	// Member is empty for class entries, "*" for every field, "*()" for
	// every method, a field name, or a method name followed by its descriptor.
	Member string
}

var transformerVisibility = map[string]Visibility{
	"public":    VisibilityPublic,
	"protected": VisibilityProtected,
	"default":   VisibilityPackage,
	"private":   VisibilityNone,
}

// ParseTransformer reads a Forge access transformer. Class names may be
// dotted; they are returned as internal names. Requests to add final are
// accepted and ignored since access is never narrowed.
func ParseTransformer(r io.Reader) ([]TransformerEntry, error) {
	var entries []TransformerEntry
	scanner := bufio.NewScanner(r)

	for line := 1; scanner.Scan(); line++ {
		text := scanner.Text()
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = text[:i]
		}
		fields := strings.Fields(text)
		if len(fields) == 0 {
			continue
		}
		if len(fields) > 3 {
			return nil, zerr.With(zerr.With(domain.ErrInvalidAccessTransformer, "line", line), "text", scanner.Text())
		}

		t, err := parseTransformerModifier(fields[0])
		if err != nil {
			return nil, zerr.With(err, "line", line)
		}
		if len(fields) < 2 {
			return nil, zerr.With(zerr.With(domain.ErrInvalidAccessTransformer, "line", line), "reason", "missing class")
		}
		e := TransformerEntry{Access: t, Class: strings.ReplaceAll(fields[1], ".", "/")}
		if len(fields) == 3 {
			e.Member = fields[2]
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, zerr.Wrap(err, domain.ErrInvalidAccessTransformer.Error())
	}
	return entries, nil
}

func parseTransformerModifier(s string) (Transform, error) {
	var t Transform
	name := s
	switch {
	case strings.HasSuffix(s, "-f"):
		t.Final = FinalRemove
		name = strings.TrimSuffix(s, "-f")
	case strings.HasSuffix(s, "+f"):
		name = strings.TrimSuffix(s, "+f")
	}
	v, ok := transformerVisibility[name]
	if !ok {
		return t, zerr.With(domain.ErrInvalidAccessTransformer, "modifier", s)
	}
	t.Visibility = v
	return t, nil
}

// AddTransformer merges access transformer entries. Transformers carry no
// namespace of their own; namespace is the one they are known to be in.
func (m *Modifiers) AddTransformer(entries []TransformerEntry, namespace string) error {
	if err := m.VisitHeader(namespace); err != nil {
		return err
	}
	for _, e := range entries {
		switch {
		case e.Member == "":
			m.VisitClass(e.Class, e.Access)
		case e.Member == Wildcard+"()":
			m.VisitMethod(e.Class, Wildcard, "", e.Access)
		case strings.IndexByte(e.Member, '(') > 0:
			i := strings.IndexByte(e.Member, '(')
			m.VisitMethod(e.Class, e.Member[:i], e.Member[i:], e.Access)
		default:
			if err := m.VisitField(e.Class, e.Member, "", e.Access); err != nil {
				return err
			}
		}
	}
	return nil
}
