package naming

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"

	"gopkg.in/yaml.v3"
)

// Entry holds the spoken forms configured for one raw device name.
// Forms[0] is the preferred spoken form.
type Entry struct {
	Raw   string
	Forms []string
}

// Preferred returns the preferred spoken form, or "" when the entry has none.
func (e Entry) Preferred() string {
	for _, f := range e.Forms {
		if f != "" {
			return f
		}
	}
	return ""
}

// Table is an ordered synonym table.
//
// In YAML and JSON it is an object keyed by raw name whose values are either
// a single string or a list of strings:
//
//	device_names:
//	  JBL-X: speaker
//	  WH-1000XM4: [kopfhörer, sony]
//
// Order is preserved because resolution is first match wins.
type Table []Entry

// Conflict describes a spoken form claimed by more than one raw name.
type Conflict struct {
	Spoken string
	Raws   []string
}

// Conflicts reports spoken forms that do not round-trip to exactly one raw
// name. Only the first raw name of each conflict is used during resolution.
func (t Table) Conflicts() []Conflict {
	owners := make(map[string][]string)
	var order []string
	for _, e := range t {
		for _, f := range e.Forms {
			if f == "" {
				continue
			}
			prev := owners[f]
			if len(prev) == 0 {
				order = append(order, f)
			}
			if !slices.Contains(prev, e.Raw) {
				owners[f] = append(prev, e.Raw)
			}
		}
	}

	var out []Conflict
	for _, f := range order {
		if len(owners[f]) > 1 {
			out = append(out, Conflict{Spoken: f, Raws: owners[f]})
		}
	}
	return out
}

// UnmarshalYAML decodes a mapping node, keeping key order.
func (t *Table) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		*t = nil
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("%w: expected a mapping at line %d", ErrInvalidTable, node.Line)
	}

	out := make(Table, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]

		var forms []string
		switch val.Kind {
		case yaml.ScalarNode:
			forms = []string{val.Value}
		case yaml.SequenceNode:
			if err := val.Decode(&forms); err != nil {
				return fmt.Errorf("%w: %q: %v", ErrInvalidTable, key.Value, err)
			}
		default:
			return fmt.Errorf("%w: value for %q must be a string or a list", ErrInvalidTable, key.Value)
		}
		out = append(out, Entry{Raw: key.Value, Forms: forms})
	}

	*t = out
	return nil
}

// UnmarshalJSON decodes a JSON object, keeping key order.
func (t *Table) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTable, err)
	}
	if tok == nil {
		*t = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("%w: expected an object", ErrInvalidTable)
	}

	out := Table{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidTable, err)
		}
		key, _ := keyTok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("%w: %q: %v", ErrInvalidTable, key, err)
		}
		forms, err := decodeForms(raw)
		if err != nil {
			return fmt.Errorf("%w: %q: %v", ErrInvalidTable, key, err)
		}
		out = append(out, Entry{Raw: key, Forms: forms})
	}

	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTable, err)
	}

	*t = out
	return nil
}

// MarshalJSON encodes the table as an object in table order. Entries with a
// single form are written as a plain string.
func (t Table) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range t {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.Raw)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')

		var val []byte
		if len(e.Forms) == 1 {
			val, err = json.Marshal(e.Forms[0])
		} else {
			forms := e.Forms
			if forms == nil {
				forms = []string{}
			}
			val, err = json.Marshal(forms)
		}
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func decodeForms(raw json.RawMessage) ([]string, error) {
	var one string
	if err := json.Unmarshal(raw, &one); err == nil {
		return []string{one}, nil
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err != nil {
		return nil, fmt.Errorf("value must be a string or a list of strings")
	}
	return many, nil
}
