package model

import (
	"encoding/json"
	"fmt"
)

// MetaValue is one metadata value: either a string or a list of strings.
// Keeping the value kinds closed makes serialization and SQL-side
// extraction (json_extract on the metadata column) well-defined.
type MetaValue struct {
	Str  string
	List []string
}

// String wraps a plain string value.
func String(s string) MetaValue { return MetaValue{Str: s} }

// Strings wraps a string-list value.
func Strings(ss []string) MetaValue { return MetaValue{List: ss} }

// MarshalJSON encodes the value as a bare string or a string array.
func (v MetaValue) MarshalJSON() ([]byte, error) {
	if v.List != nil {
		return json.Marshal(v.List)
	}
	return json.Marshal(v.Str)
}

// UnmarshalJSON accepts a string or a string array.
func (v *MetaValue) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*v = MetaValue{Str: s}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*v = MetaValue{List: list}
		return nil
	}
	return fmt.Errorf("metadata value must be a string or string list: %s", data)
}

// Metadata is the open key/value map attached to an archival memory.
type Metadata map[string]MetaValue

// Encode serializes metadata to its JSON column form. Nil maps encode
// to the empty string so the column stays NULL-equivalent.
func (m Metadata) Encode() (string, error) {
	if len(m) == 0 {
		return "", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	return string(b), nil
}

// DecodeMetadata parses the JSON column form back into a Metadata map.
func DecodeMetadata(s string) (Metadata, error) {
	if s == "" {
		return nil, nil
	}
	var m Metadata
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return m, nil
}
