package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Model is a row of the models table. Fields and DocumentKeys hold JSON arrays.
type Model struct {
	ID           string    `db:"id"`
	Name         string    `db:"name"`
	Description  string    `db:"description"`
	Status       string    `db:"status"`
	Fields       string    `db:"fields"`
	DocumentKeys string    `db:"document_keys"`
	ErrorMessage string    `db:"error_message"`
	Attempts     int       `db:"attempts"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// FieldList decodes Fields.
func (m *Model) FieldList() ([]string, error) {
	return decodeList(m.Fields)
}

// DocumentKeyList decodes DocumentKeys.
func (m *Model) DocumentKeyList() ([]string, error) {
	return decodeList(m.DocumentKeys)
}

// EncodeList renders a string slice for the JSON text columns.
func EncodeList(values []string) string {
	if values == nil {
		values = []string{}
	}
	data, _ := json.Marshal(values)
	return string(data)
}

func decodeList(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("failed to decode list column: %w", err)
	}
	return out, nil
}
