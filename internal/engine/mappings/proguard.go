package mappings

import (
	"bufio"
	"io"
	"strings"

	"go.trai.ch/codev/internal/core/domain"
	"go.trai.ch/zerr"
)

var primitiveDescriptors = map[string]string{
	"boolean": "Z",
	"byte":    "B",
	"char":    "C",
	"short":   "S",
	"int":     "I",
	"long":    "J",
	"float":   "F",
	"double":  "D",
	"void":    "V",
}

// ReadProguard parses a proguard mapping file. Proguard maps readable names
// to obfuscated ones, so the tree's source is the named namespace and its
// only destination is the obfuscated namespace.
func ReadProguard(r io.Reader) (*Tree, error) {
	t := NewTree(domain.NamespaceNamed, domain.NamespaceObf)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64<<10), maxLineSize)

	var class *Class
	for line := 1; scanner.Scan(); line++ {
		raw := strings.TrimRight(scanner.Text(), "\r")
		text := strings.TrimSpace(raw)
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		from, to, ok := strings.Cut(text, " -> ")
		if !ok {
			return nil, invalidLine(line, raw)
		}

		if raw[0] != ' ' && raw[0] != '\t' {
			if !strings.HasSuffix(to, ":") {
				return nil, invalidLine(line, raw)
			}
			class = t.AddClass(internalName(from))
			class.SetName(0, internalName(strings.TrimSuffix(to, ":")))
			continue
		}
		if class == nil {
			return nil, invalidLine(line, raw)
		}

		typ, rest, ok := strings.Cut(stripLineNumbers(from), " ")
		if !ok {
			return nil, invalidLine(line, raw)
		}

		open := strings.IndexByte(rest, '(')
		if open < 0 {
			f := class.AddField(rest, typeDescriptor(typ))
			f.SetName(0, to)
			continue
		}

		closing := strings.IndexByte(rest, ')')
		if closing < open {
			return nil, invalidLine(line, raw)
		}
		var desc strings.Builder
		desc.WriteByte('(')
		if params := rest[open+1 : closing]; params != "" {
			for _, p := range strings.Split(params, ",") {
				desc.WriteString(typeDescriptor(strings.TrimSpace(p)))
			}
		}
		desc.WriteByte(')')
		desc.WriteString(typeDescriptor(typ))

		m := class.AddMethod(rest[:open], desc.String())
		m.SetName(0, to)
	}
	if err := scanner.Err(); err != nil {
		return nil, zerr.Wrap(err, domain.ErrInvalidMappings.Error())
	}
	return t, nil
}

// stripLineNumbers removes the "12:34:" prefix and ":56:78" suffix proguard
// attaches to inlined methods.
func stripLineNumbers(s string) string {
	for {
		i := strings.IndexByte(s, ':')
		if i < 0 || !isDigits(s[:i]) {
			break
		}
		s = s[i+1:]
	}
	if closing := strings.LastIndexByte(s, ')'); closing >= 0 {
		s = s[:closing+1]
	}
	return s
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := range len(s) {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func internalName(name string) string {
	return strings.ReplaceAll(name, ".", "/")
}

func typeDescriptor(typ string) string {
	dims := 0
	for strings.HasSuffix(typ, "[]") {
		typ = strings.TrimSuffix(typ, "[]")
		dims++
	}
	desc, ok := primitiveDescriptors[typ]
	if !ok {
		desc = "L" + internalName(typ) + ";"
	}
	return strings.Repeat("[", dims) + desc
}
