package listing

import (
	"bytes"
	"encoding/json"

	"github.com/tidwall/jsonc"
	"go.trai.ch/codev/internal/core/domain"
	"go.trai.ch/zerr"
)

// object is a top-level JSON object that remembers its key order, so that a
// descriptor can be written back with only the edited keys changed.
type object struct {
	keys   []string
	values map[string]json.RawMessage
}

func parseObject(data []byte) (*object, error) {
	dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
	tok, err := dec.Token()
	if err != nil {
		return nil, zerr.Wrap(err, domain.ErrInvalidDescriptor.Error())
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, zerr.With(domain.ErrInvalidDescriptor, "reason", "not a JSON object")
	}

	o := &object{values: make(map[string]json.RawMessage)}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, zerr.Wrap(err, domain.ErrInvalidDescriptor.Error())
		}
		key, _ := tok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, zerr.With(zerr.Wrap(err, domain.ErrInvalidDescriptor.Error()), "key", key)
		}
		if _, ok := o.values[key]; !ok {
			o.keys = append(o.keys, key)
		}
		o.values[key] = raw
	}
	return o, nil
}

func (o *object) get(key string) (json.RawMessage, bool) {
	v, ok := o.values[key]
	return v, ok
}

func (o *object) delete(key string) {
	if _, ok := o.values[key]; !ok {
		return
	}
	delete(o.values, key)
	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
}

// bytes renders the object pretty-printed with two-space indentation.
func (o *object) bytes() ([]byte, error) {
	if len(o.keys) == 0 {
		return []byte("{}\n"), nil
	}

	var buf bytes.Buffer
	buf.WriteString("{\n")
	for i, key := range o.keys {
		name, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.WriteString("  ")
		buf.Write(name)
		buf.WriteString(": ")
		if err := json.Indent(&buf, o.values[key], "  ", "  "); err != nil {
			return nil, zerr.With(zerr.Wrap(err, domain.ErrInvalidDescriptor.Error()), "key", key)
		}
		if i < len(o.keys)-1 {
			buf.WriteByte(',')
		}
		buf.WriteByte('\n')
	}
	buf.WriteString("}\n")
	return buf.Bytes(), nil
}
