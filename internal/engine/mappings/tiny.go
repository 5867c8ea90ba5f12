package mappings

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"go.trai.ch/codev/internal/core/domain"
	"go.trai.ch/zerr"
)

// EscapedNamesProperty marks tiny v2 files whose names are escaped.
const EscapedNamesProperty = "escaped-names"

const maxLineSize = 16 << 20

// ReadTiny parses a tiny v1 or v2 file. The "official" namespace is renamed
// to the obfuscated namespace.
func ReadTiny(r io.Reader) (*Tree, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64<<10), maxLineSize)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, zerr.Wrap(err, domain.ErrInvalidMappings.Error())
		}
		return nil, zerr.With(domain.ErrInvalidMappings, "reason", "empty tiny file")
	}
	header := strings.Split(strings.TrimRight(scanner.Text(), "\r"), "\t")

	switch {
	case header[0] == "v1" && len(header) >= 2:
		return readTinyV1(scanner, canonical(header[1:]))
	case header[0] == "tiny" && len(header) >= 4 && header[1] == "2":
		return readTinyV2(scanner, canonical(header[3:]))
	default:
		return nil, zerr.With(domain.ErrInvalidMappings, "header", strings.Join(header, " "))
	}
}

func canonical(namespaces []string) []string {
	out := make([]string, len(namespaces))
	for i, ns := range namespaces {
		out[i] = domain.CanonicalNamespace(ns)
	}
	return out
}

func invalidLine(line int, text string) error {
	err := zerr.With(domain.ErrInvalidMappings, "line", line)
	return zerr.With(err, "text", text)
}

func readTinyV1(scanner *bufio.Scanner, namespaces []string) (*Tree, error) {
	t := NewTree(namespaces[0], namespaces[1:]...)
	count := len(namespaces)

	for line := 2; scanner.Scan(); line++ {
		text := strings.TrimRight(scanner.Text(), "\r")
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		cols := strings.Split(text, "\t")

		switch cols[0] {
		case "CLASS":
			if len(cols) < 2 {
				return nil, invalidLine(line, text)
			}
			c := t.AddClass(cols[1])
			setNames(&c.names, cols[2:], count-1)
		case "FIELD", "METHOD":
			if len(cols) < 4 {
				return nil, invalidLine(line, text)
			}
			c := t.AddClass(cols[1])
			if cols[0] == "FIELD" {
				f := c.AddField(cols[3], cols[2])
				setNames(&f.names, cols[4:], count-1)
			} else {
				m := c.AddMethod(cols[3], cols[2])
				setNames(&m.names, cols[4:], count-1)
			}
		default:
			return nil, invalidLine(line, text)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, zerr.Wrap(err, domain.ErrInvalidMappings.Error())
	}
	t.byName = nil
	return t, nil
}

func setNames(n *names, dst []string, count int) {
	for i := 0; i < count && i < len(dst); i++ {
		if dst[i] != "" {
			n.setName(i, dst[i])
		}
	}
}

func readTinyV2(scanner *bufio.Scanner, namespaces []string) (*Tree, error) {
	t := NewTree(namespaces[0], namespaces[1:]...)
	count := len(namespaces)
	escaped := false

	unescapeNames := func(cols []string) []string {
		if !escaped {
			return cols
		}
		out := make([]string, len(cols))
		for i, c := range cols {
			out[i] = unescape(c)
		}
		return out
	}

	var (
		class  *Class
		field  *Field
		method *Method
		// comments[d-1] receives a comment row at depth d.
		comments [3]*string
	)

	for line := 2; scanner.Scan(); line++ {
		raw := strings.TrimRight(scanner.Text(), "\r")
		if raw == "" {
			continue
		}
		depth := 0
		for depth < len(raw) && raw[depth] == '\t' {
			depth++
		}
		cols := strings.Split(raw[depth:], "\t")
		kind := cols[0]

		switch {
		case depth == 1 && class == nil:
			p := Property{Key: kind}
			if len(cols) > 1 {
				p.Value = unescape(cols[1])
			}
			t.properties = append(t.properties, p)
			if p.Key == EscapedNamesProperty {
				escaped = true
			}

		case depth == 0 && kind == "c":
			if len(cols) < 2 {
				return nil, invalidLine(line, raw)
			}
			names := unescapeNames(cols[1:])
			class = t.AddClass(names[0])
			setNames(&class.names, names[1:], count-1)
			field, method = nil, nil
			comments = [3]*string{&class.Comment}

		case depth == 1 && class != nil && (kind == "f" || kind == "m"):
			if len(cols) < 3 {
				return nil, invalidLine(line, raw)
			}
			desc := cols[1]
			names := unescapeNames(cols[2:])
			if kind == "f" {
				field, method = class.AddField(names[0], desc), nil
				setNames(&field.names, names[1:], count-1)
				comments[1], comments[2] = &field.Comment, nil
			} else {
				field, method = nil, class.AddMethod(names[0], desc)
				setNames(&method.names, names[1:], count-1)
				comments[1], comments[2] = &method.Comment, nil
			}

		case depth == 2 && method != nil && kind == "p":
			if len(cols) < 2 {
				return nil, invalidLine(line, raw)
			}
			lv, err := strconv.Atoi(cols[1])
			if err != nil {
				return nil, invalidLine(line, raw)
			}
			a := method.AddArg(lv)
			names := unescapeNames(cols[2:])
			if len(names) > 0 {
				a.Src = names[0]
				setNames(&a.names, names[1:], count-1)
			}
			comments[2] = &a.Comment

		case depth == 2 && method != nil && kind == "v":
			if len(cols) < 4 {
				return nil, invalidLine(line, raw)
			}
			nums := make([]int, 3)
			for i := range nums {
				n, err := strconv.Atoi(cols[1+i])
				if err != nil {
					return nil, invalidLine(line, raw)
				}
				nums[i] = n
			}
			v := method.AddVar(nums[0], nums[1], nums[2])
			names := unescapeNames(cols[4:])
			if len(names) > 0 {
				v.Src = names[0]
				setNames(&v.names, names[1:], count-1)
			}
			comments[2] = &v.Comment

		case kind == "c" && depth >= 1 && depth <= 3 && comments[depth-1] != nil:
			if len(cols) < 2 {
				return nil, invalidLine(line, raw)
			}
			*comments[depth-1] = unescape(cols[1])

		default:
			return nil, invalidLine(line, raw)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, zerr.Wrap(err, domain.ErrInvalidMappings.Error())
	}
	t.byName = nil
	return t, nil
}

var (
	escaper   = strings.NewReplacer(`\`, `\\`, "\n", `\n`, "\r", `\r`, "\t", `\t`, "\x00", `\0`)
	unescaper = strings.NewReplacer(`\\`, `\`, `\n`, "\n", `\r`, "\r", `\t`, "\t", `\0`, "\x00")
)

func escape(s string) string   { return escaper.Replace(s) }
func unescape(s string) string { return unescaper.Replace(s) }

// WriteTiny writes t in tiny v2 format. Namespace, class and member order,
// properties, comments, parameters and locals are preserved.
func WriteTiny(w io.Writer, t *Tree) error {
	bw := bufio.NewWriter(w)
	_, escaped := t.Property(EscapedNamesProperty)

	name := func(s string) string {
		if escaped {
			return escape(s)
		}
		return s
	}
	row := func(depth int, cols ...string) {
		for range depth {
			_ = bw.WriteByte('\t')
		}
		_, _ = bw.WriteString(strings.Join(cols, "\t"))
		_ = bw.WriteByte('\n')
	}
	namesCols := func(n names) []string {
		cols := make([]string, 0, len(t.dst)+1)
		cols = append(cols, name(n.Src))
		for i := range t.dst {
			cols = append(cols, name(n.dstName(i)))
		}
		return cols
	}
	commentRow := func(depth int, c string) {
		if c != "" {
			row(depth, "c", escape(c))
		}
	}

	row(0, append([]string{"tiny", "2", "0"}, t.Namespaces()...)...)
	for _, p := range t.properties {
		if p.Value == "" {
			row(1, p.Key)
		} else {
			row(1, p.Key, escape(p.Value))
		}
	}

	for _, c := range t.classes {
		row(0, append([]string{"c"}, namesCols(c.names)...)...)
		commentRow(1, c.Comment)
		for _, f := range c.fields {
			row(1, append([]string{"f", f.Desc}, namesCols(f.names)...)...)
			commentRow(2, f.Comment)
		}
		for _, m := range c.methods {
			row(1, append([]string{"m", m.Desc}, namesCols(m.names)...)...)
			commentRow(2, m.Comment)
			for _, a := range m.Args {
				row(2, append([]string{"p", strconv.Itoa(a.LVIndex)}, namesCols(a.names)...)...)
				commentRow(3, a.Comment)
			}
			for _, v := range m.Vars {
				row(2, append([]string{
					"v", strconv.Itoa(v.LVIndex), strconv.Itoa(v.StartOp), strconv.Itoa(v.LVTRow),
				}, namesCols(v.names)...)...)
				commentRow(3, v.Comment)
			}
		}
	}

	return bw.Flush()
}
