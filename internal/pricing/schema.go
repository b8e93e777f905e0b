package pricing

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
)

// DefaultSchema is the canonical column order of the bundled models.
var DefaultSchema = ExpectedSchema{
	FieldSqft, FieldBed, FieldBath, FieldNCiti, FieldCiti, FieldStreet, FieldMainroad, FieldBasement,
}

// ExpectedSchema is the ordered list of input columns a model was trained on.
type ExpectedSchema []string

// Validate rejects empty schemas, blank names and duplicates.
func (s ExpectedSchema) Validate() error {
	if len(s) == 0 {
		return fmt.Errorf("%w: schema has no columns", ErrSchemaUnavailable)
	}
	seen := make(map[string]bool, len(s))
	for i, name := range s {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("%w: column %d has an empty name", ErrSchemaUnavailable, i)
		}
		if seen[name] {
			return fmt.Errorf("%w: duplicate column %q", ErrSchemaUnavailable, name)
		}
		seen[name] = true
	}
	return nil
}

// LoadSchema reads a column manifest: either a JSON array of names or an
// object with a "columns" array.
func LoadSchema(path string) (ExpectedSchema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: schema file %s", ErrArtifactMissing, path)
		}
		return nil, fmt.Errorf("%w: read %s: %v", ErrSchemaUnavailable, path, err)
	}

	var cols []string
	if err := json.Unmarshal(data, &cols); err != nil {
		var wrapped struct {
			Columns []string `json:"columns"`
		}
		if err2 := json.Unmarshal(data, &wrapped); err2 != nil {
			return nil, fmt.Errorf("%w: decode %s: %v", ErrSchemaUnavailable, path, err)
		}
		cols = wrapped.Columns
	}

	schema := ExpectedSchema(cols)
	if err := schema.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return schema, nil
}

// AlignedRecord holds exactly the columns of an ExpectedSchema, in schema order.
type AlignedRecord struct {
	Columns []string
	Values  []Value
}

// Get returns the value of a column.
func (a AlignedRecord) Get(name string) (Value, bool) {
	for i, c := range a.Columns {
		if c == name {
			return a.Values[i], true
		}
	}
	return Value{}, false
}

// Record converts back to a FeatureRecord.
func (a AlignedRecord) Record() FeatureRecord {
	rec := make(FeatureRecord, len(a.Columns))
	for i, c := range a.Columns {
		rec[c] = a.Values[i]
	}
	return rec
}

// Len is the number of columns.
func (a AlignedRecord) Len() int { return len(a.Columns) }

// MarshalJSON writes the record as an object with keys in schema order.
func (a AlignedRecord) MarshalJSON() ([]byte, error) {
	var b strings.Builder
	b.WriteByte('{')
	for i, c := range a.Columns {
		if i > 0 {
			b.WriteByte(',')
		}
		key, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		val, err := a.Values[i].MarshalJSON()
		if err != nil {
			return nil, err
		}
		b.Write(key)
		b.WriteByte(':')
		b.Write(val)
	}
	b.WriteByte('}')
	return []byte(b.String()), nil
}

// Align reshapes r to the columns of s: every schema column appears once in
// schema order, values present in r are carried over, missing columns get
// numeric zero and fields outside the schema are dropped.
// An empty schema yields ErrSchemaUnavailable.
func Align(r FeatureRecord, s ExpectedSchema) (AlignedRecord, error) {
	if err := s.Validate(); err != nil {
		return AlignedRecord{}, err
	}

	out := AlignedRecord{
		Columns: make([]string, len(s)),
		Values:  make([]Value, len(s)),
	}
	copy(out.Columns, s)
	for i, name := range s {
		if v, ok := r[name]; ok {
			out.Values[i] = v
		} else {
			out.Values[i] = Number(0)
		}
	}
	return out, nil
}

// Missing lists schema columns absent from r.
func Missing(r FeatureRecord, s ExpectedSchema) []string {
	var out []string
	for _, name := range s {
		if _, ok := r[name]; !ok {
			out = append(out, name)
		}
	}
	return out
}

// Dropped lists fields of r that are not schema columns.
func Dropped(r FeatureRecord, s ExpectedSchema) []string {
	in := make(map[string]bool, len(s))
	for _, name := range s {
		in[name] = true
	}
	var out []string
	for name := range r {
		if !in[name] {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
