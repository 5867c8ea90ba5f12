package access

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"go.trai.ch/codev/internal/core/domain"
	"go.trai.ch/zerr"
)

// AccessType is the kind of an access widener directive.
type AccessType string

// Access widener directive kinds.
const (
	Accessible AccessType = "accessible"
	Extendable AccessType = "extendable"
	Mutable    AccessType = "mutable"
)

// TargetKind is what an access widener directive applies to.
type TargetKind string

// Access widener targets.
const (
	TargetClass  TargetKind = "class"
	TargetMethod TargetKind = "method"
	TargetField  TargetKind = "field"
)

const transitivePrefix = "transitive-"

// Directive is one line of an access widener.
type Directive struct {
	Access     AccessType
	Transitive bool
	Target     TargetKind
	Owner      string
	Name       string
	Desc       string
}

// Widener is a parsed fabric access widener file.
type Widener struct {
	Version    int
	Namespace  string
	Directives []Directive
}

// ParseWidener reads an access widener. Comments start with '#'.
func ParseWidener(r io.Reader) (*Widener, error) {
	scanner := bufio.NewScanner(r)
	var w *Widener

	for line := 1; scanner.Scan(); line++ {
		text := scanner.Text()
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = text[:i]
		}
		fields := strings.Fields(text)
		if len(fields) == 0 {
			continue
		}

		if w == nil {
			parsed, err := parseWidenerHeader(fields)
			if err != nil {
				return nil, zerr.With(err, "line", line)
			}
			w = parsed
			continue
		}

		d, err := parseDirective(fields, w.Version)
		if err != nil {
			return nil, zerr.With(zerr.With(err, "line", line), "text", scanner.Text())
		}
		w.Directives = append(w.Directives, d)
	}
	if err := scanner.Err(); err != nil {
		return nil, zerr.Wrap(err, domain.ErrInvalidAccessWidener.Error())
	}
	if w == nil {
		return nil, zerr.With(domain.ErrInvalidAccessWidener, "reason", "missing header")
	}
	return w, nil
}

func parseWidenerHeader(fields []string) (*Widener, error) {
	if len(fields) != 3 || fields[0] != "accessWidener" {
		return nil, zerr.With(domain.ErrInvalidAccessWidener, "header", strings.Join(fields, " "))
	}
	var version int
	switch fields[1] {
	case "v1":
		version = 1
	case "v2":
		version = 2
	default:
		return nil, zerr.With(domain.ErrInvalidAccessWidener, "version", fields[1])
	}
	return &Widener{Version: version, Namespace: fields[2]}, nil
}

func parseDirective(fields []string, version int) (Directive, error) {
	var d Directive

	access := fields[0]
	if strings.HasPrefix(access, transitivePrefix) {
		if version < 2 {
			return d, zerr.With(domain.ErrInvalidAccessWidener, "reason", "transitive directives need v2")
		}
		d.Transitive = true
		access = strings.TrimPrefix(access, transitivePrefix)
	}
	d.Access = AccessType(access)
	switch d.Access {
	case Accessible, Extendable, Mutable:
	default:
		return d, zerr.With(domain.ErrInvalidAccessWidener, "access", fields[0])
	}

	if len(fields) < 3 {
		return d, zerr.With(domain.ErrInvalidAccessWidener, "reason", "missing target")
	}
	d.Target = TargetKind(fields[1])
	d.Owner = fields[2]

	switch d.Target {
	case TargetClass:
		if len(fields) != 3 || d.Access == Mutable {
			return d, zerr.With(domain.ErrInvalidAccessWidener, "reason", "invalid class directive")
		}
	case TargetMethod, TargetField:
		if len(fields) != 5 {
			return d, zerr.With(domain.ErrInvalidAccessWidener, "reason", "invalid member directive")
		}
		if (d.Target == TargetMethod && d.Access == Mutable) ||
			(d.Target == TargetField && d.Access == Extendable) {
			return d, zerr.With(domain.ErrInvalidAccessWidener, "reason", fmt.Sprintf("%s %s is not allowed", d.Access, d.Target))
		}
		d.Name, d.Desc = fields[3], fields[4]
	default:
		return d, zerr.With(domain.ErrInvalidAccessWidener, "target", fields[1])
	}
	return d, nil
}

// Transform returns the access change requested by d.
func (d Directive) Transform() Transform {
	switch {
	case d.Access == Accessible:
		return Transform{Visibility: VisibilityPublic}
	case d.Access == Extendable:
		return Transform{Visibility: VisibilityProtected, Final: FinalRemove}
	case d.Access == Mutable && d.Target == TargetField:
		return Transform{Final: FinalRemove}
	default:
		return Transform{}
	}
}

// WriteTo writes w in access widener format.
func (w *Widener) WriteTo(out io.Writer) (int64, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "accessWidener\tv%d\t%s\n", w.Version, w.Namespace)
	for _, d := range w.Directives {
		access := string(d.Access)
		if d.Transitive {
			access = transitivePrefix + access
		}
		if d.Target == TargetClass {
			fmt.Fprintf(&sb, "%s\t%s\t%s\n", access, d.Target, d.Owner)
			continue
		}
		fmt.Fprintf(&sb, "%s\t%s\t%s\t%s\t%s\n", access, d.Target, d.Owner, d.Name, d.Desc)
	}
	n, err := io.WriteString(out, sb.String())
	return int64(n), err
}

// AddWidener merges the directives of w. With transitiveOnly, only
// transitive directives are taken, as for wideners of dependencies.
func (m *Modifiers) AddWidener(w *Widener, transitiveOnly bool) error {
	if err := m.VisitHeader(w.Namespace); err != nil {
		return err
	}
	for _, d := range w.Directives {
		if transitiveOnly && !d.Transitive {
			continue
		}
		t := d.Transform()
		if t.Empty() {
			continue
		}
		switch d.Target {
		case TargetClass:
			m.VisitClass(d.Owner, t)
		case TargetMethod:
			m.VisitMethod(d.Owner, d.Name, d.Desc, t)
		case TargetField:
			if err := m.VisitField(d.Owner, d.Name, d.Desc, t); err != nil {
				return err
			}
		}
	}
	return nil
}
