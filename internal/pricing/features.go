package pricing

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Feature names as they appear in form variables and model schemas.
const (
	FieldNCiti    = "n_citi"
	FieldBed      = "bed"
	FieldBath     = "bath"
	FieldSqft     = "sqft"
	FieldCiti     = "citi"
	FieldStreet   = "street"
	FieldParking  = "parking"
	FieldMainroad = "mainroad"
	FieldBasement = "basement"
)

// Toggle is a yes/no form answer. It decodes from "Yes"/"No" in any case
// and from JSON booleans.
type Toggle bool

// ParseToggle maps "Yes"/"No" (case-insensitive, surrounding space ignored)
// and true/false to a Toggle.
func ParseToggle(v interface{}) (Toggle, error) {
	switch t := v.(type) {
	case bool:
		return Toggle(t), nil
	case Toggle:
		return t, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "yes":
			return true, nil
		case "no":
			return false, nil
		}
		return false, fmt.Errorf("%w: toggle value %q is not Yes or No", ErrInvalidFeatures, t)
	default:
		return false, fmt.Errorf("%w: toggle value of type %T is not supported", ErrInvalidFeatures, v)
	}
}

// Int returns 1 for yes and 0 for no.
func (t Toggle) Int() int {
	if t {
		return 1
	}
	return 0
}

func (t *Toggle) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseToggle(raw)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t Toggle) MarshalJSON() ([]byte, error) {
	if t {
		return []byte(`"Yes"`), nil
	}
	return []byte(`"No"`), nil
}

// HouseFeatures is one submission of the valuation form. A nil field was not supplied.
type HouseFeatures struct {
	NCiti    *int     `json:"n_citi,omitempty"`
	Bed      *int     `json:"bed,omitempty"`
	Bath     *int     `json:"bath,omitempty"`
	Sqft     *float64 `json:"sqft,omitempty"`
	Citi     *string  `json:"citi,omitempty"`
	Street   *string  `json:"street,omitempty"`
	Parking  *int     `json:"parking,omitempty"`
	Mainroad *Toggle  `json:"mainroad,omitempty"`
	Basement *Toggle  `json:"basement,omitempty"`
}

// Kind tells whether a Value is numeric or text.
type Kind int

const (
	KindNumber Kind = iota
	KindText
)

// Value is a single cell of a feature record.
type Value struct {
	Kind Kind
	Num  float64
	Str  string
}

func Number(f float64) Value { return Value{Kind: KindNumber, Num: f} }

func Text(s string) Value { return Value{Kind: KindText, Str: s} }

func (v Value) IsNumber() bool { return v.Kind == KindNumber }

// String renders the value the way categorical encoders compare it.
func (v Value) String() string {
	if v.Kind == KindText {
		return v.Str
	}
	return strconv.FormatFloat(v.Num, 'f', -1, 64)
}

// Interface returns the value as float64 or string.
func (v Value) Interface() interface{} {
	if v.Kind == KindText {
		return v.Str
	}
	return v.Num
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch t := raw.(type) {
	case float64:
		*v = Number(t)
	case string:
		*v = Text(t)
	case bool:
		*v = Number(float64(Toggle(t).Int()))
	default:
		return fmt.Errorf("unsupported feature value %s", string(data))
	}
	return nil
}

// FeatureRecord maps feature names to values. Built once per request and not modified afterwards.
type FeatureRecord map[string]Value

// Names returns the record's field names in no particular order.
func (r FeatureRecord) Names() []string {
	out := make([]string, 0, len(r))
	for k := range r {
		out = append(out, k)
	}
	return out
}

// Map converts the record to plain JSON-friendly values.
func (r FeatureRecord) Map() map[string]interface{} {
	out := make(map[string]interface{}, len(r))
	for k, v := range r {
		out[k] = v.Interface()
	}
	return out
}

// normalizeText composes the text to NFC and trims it. Encoder categories
// are compared byte for byte, so a decomposed accent would miss its column.
func normalizeText(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}

// BuildRecord turns the supplied form fields into a FeatureRecord.
// Unset fields are left out; toggles become 1 or 0.
func BuildRecord(f HouseFeatures) FeatureRecord {
	rec := make(FeatureRecord, 9)

	putInt := func(name string, v *int) {
		if v != nil {
			rec[name] = Number(float64(*v))
		}
	}
	putToggle := func(name string, v *Toggle) {
		if v != nil {
			rec[name] = Number(float64(v.Int()))
		}
	}

	putInt(FieldNCiti, f.NCiti)
	putInt(FieldBed, f.Bed)
	putInt(FieldBath, f.Bath)
	if f.Sqft != nil {
		rec[FieldSqft] = Number(*f.Sqft)
	}
	if f.Citi != nil {
		rec[FieldCiti] = Text(normalizeText(*f.Citi))
	}
	if f.Street != nil {
		rec[FieldStreet] = Text(normalizeText(*f.Street))
	}
	putInt(FieldParking, f.Parking)
	putToggle(FieldMainroad, f.Mainroad)
	putToggle(FieldBasement, f.Basement)

	return rec
}
