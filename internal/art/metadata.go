package art

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ironsheep/artgrid/internal/iiif"
)

// Standard metadata keys.
const (
	KeyCreator  = "creator"
	KeyTitle    = "title"
	KeyDetails  = "details"
	KeyDate     = "date"
	KeyLocation = "location"
)

// Field is one metadata entry.
//
// Value is always the display text. Raw holds the compact JSON of a value
// that was not a string (a number, array or object) and is written back
// unchanged; it is nil for string values.
type Field struct {
	Key   string          `json:"key"`
	Value string          `json:"value"`
	Raw   json.RawMessage `json:"-" bson:"raw,omitempty"`
}

// Metadata is an insertion-ordered set of descriptive fields.
//
// It encodes to JSON as an object whose keys keep their insertion order.
// Non-string JSON values read by UnmarshalJSON keep their JSON type.
type Metadata []Field

// Get returns the value stored under key.
func (m Metadata) Get(key string) (string, bool) {
	for _, f := range m {
		if f.Key == key {
			return f.Value, true
		}
	}
	return "", false
}

// Set replaces the value of an existing key in place, or appends it. The
// value is stored as a string.
func (m *Metadata) Set(key, value string) {
	m.set(Field{Key: key, Value: value})
}

func (m *Metadata) set(f Field) {
	for i := range *m {
		if (*m)[i].Key == f.Key {
			(*m)[i] = f
			return
		}
	}
	*m = append(*m, f)
}

// Title returns the title field, or "".
func (m Metadata) Title() string {
	v, _ := m.Get(KeyTitle)
	return v
}

// Creator returns the creator field, or "".
func (m Metadata) Creator() string {
	v, _ := m.Get(KeyCreator)
	return v
}

// Clone returns an independent copy.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	copy(out, m)
	for i := range out {
		out[i].Raw = bytes.Clone(out[i].Raw)
	}
	return out
}

// MarshalJSON writes the fields as one JSON object in insertion order.
func (m Metadata) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range m {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		v := []byte(f.Raw)
		if len(v) == 0 {
			if v, err = json.Marshal(f.Value); err != nil {
				return nil, err
			}
		} else if !json.Valid(v) {
			return nil, fmt.Errorf("metadata %q: invalid raw JSON value", f.Key)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object, keeping its key order.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*m = nil
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("metadata must be a JSON object")
	}

	out := Metadata{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key := tok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("metadata %q: %w", key, err)
		}
		if bytes.HasPrefix(bytes.TrimSpace(raw), []byte{'"'}) {
			var s string
			if err := json.Unmarshal(raw, &s); err != nil {
				return fmt.Errorf("metadata %q: %w", key, err)
			}
			out.Set(key, s)
			continue
		}
		var compact bytes.Buffer
		if err := json.Compact(&compact, raw); err != nil {
			return fmt.Errorf("metadata %q: %w", key, err)
		}
		out.set(Field{Key: key, Value: compact.String(), Raw: compact.Bytes()})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*m = out
	return nil
}

// ToIIIF maps each field to a label/value pair with a capitalized label.
func (m Metadata) ToIIIF() []iiif.MetadataEntry {
	if len(m) == 0 {
		return nil
	}
	out := make([]iiif.MetadataEntry, 0, len(m))
	for _, f := range m {
		out = append(out, iiif.MetadataEntry{
			Label: iiif.Text(capitalize(f.Key)),
			Value: iiif.Text(f.Value),
		})
	}
	return out
}

// MetadataFromIIIF is the inverse of ToIIIF: labels are decapitalized back
// into keys.
func MetadataFromIIIF(entries []iiif.MetadataEntry) Metadata {
	if len(entries) == 0 {
		return nil
	}
	out := Metadata{}
	for _, e := range entries {
		key := decapitalize(e.Label.String())
		if key == "" {
			continue
		}
		out.Set(key, e.Value.String())
	}
	return out
}

func capitalize(s string) string {
	r, n := utf8.DecodeRuneInString(s)
	if n == 0 {
		return s
	}
	return string(unicode.ToUpper(r)) + s[n:]
}

func decapitalize(s string) string {
	s = strings.TrimSpace(s)
	r, n := utf8.DecodeRuneInString(s)
	if n == 0 {
		return s
	}
	return string(unicode.ToLower(r)) + s[n:]
}
