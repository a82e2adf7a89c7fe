package dbtypes

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSON stores a free-form JSON object in a text column. It is portable across
// SQLite and Postgres because Value always produces a string.
type JSON map[string]any

// Value implements driver.Valuer.
func (j JSON) Value() (driver.Value, error) {
	if j == nil {
		return "{}", nil
	}
	b, err := json.Marshal(map[string]any(j))
	if err != nil {
		return nil, fmt.Errorf("JSON: marshal: %w", err)
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (j *JSON) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*j = JSON{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("JSON: unsupported Scan type %T", src)
	}
	if len(raw) == 0 {
		*j = JSON{}
		return nil
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("JSON: unmarshal: %w", err)
	}
	*j = out
	return nil
}
