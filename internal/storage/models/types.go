// Package models holds the Bun ORM row shapes for the orchestration core's
// persistence schema (spec.md §6.1) and the mappers converting them to/from
// internal/domain's pure value types. Grounded on the teacher's
// internal/infrastructure/storage/models package (BaseModel embeds, bun
// tags, BeforeInsert/BeforeUpdate timestamp hooks, JSONBMap column type).
package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// JSONBMap is a custom type for JSONB columns, grounded verbatim on the
// teacher's models.JSONBMap.
type JSONBMap map[string]interface{}

// Value implements driver.Valuer.
func (j JSONBMap) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	b, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (j *JSONBMap) Scan(value interface{}) error {
	if value == nil {
		*j = make(JSONBMap)
		return nil
	}
	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return errors.New("failed to scan JSONBMap: unsupported type")
	}
	if len(b) == 0 {
		*j = make(JSONBMap)
		return nil
	}
	return json.Unmarshal(b, j)
}

// RawJSON is a custom type for JSONB columns that store an opaque document
// (trigger_payload, final_output, extra_config, ...) that the core only
// round-trips and never queries field-by-field.
type RawJSON json.RawMessage

// Value implements driver.Valuer.
func (j RawJSON) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return string(j), nil
}

// Scan implements sql.Scanner.
func (j *RawJSON) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		*j = append(RawJSON(nil), v...)
	case string:
		*j = RawJSON(v)
	default:
		return errors.New("failed to scan RawJSON: unsupported type")
	}
	return nil
}
