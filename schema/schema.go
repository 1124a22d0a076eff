// Package schema defines the table descriptor: a key column plus a mapping
// from column name to dtype and nullability. The descriptor is written once
// at table creation as table.json and never mutated.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// DType is a column data type.
type DType string

const (
	// Float32 is a 32-bit little-endian floating point column.
	Float32 DType = "float32"
	// Utf8 is a variable-length UTF-8 string column.
	Utf8 DType = "utf8"
)

// Valid reports whether the dtype is one this engine understands.
func (d DType) Valid() bool {
	switch d {
	case Float32, Utf8:
		return true
	}
	return false
}

var (
	// ErrInvalid is returned when a table schema fails validation.
	ErrInvalid = errors.New("schema: invalid table schema")
)

// Column describes one column of a table.
type Column struct {
	Name     string
	DType    DType
	Nullable bool
}

// Table is a table schema: the key column name and the full column set.
// Columns are held sorted by name so that segment layout and batch assembly
// are deterministic across processes.
type Table struct {
	Key     string
	Columns []Column
}

// New builds a validated table schema from a key column name and columns.
func New(key string, columns []Column) (*Table, error) {
	t := &Table{Key: key, Columns: append([]Column(nil), columns...)}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate checks the schema invariants and normalizes column order.
// The key column must exist, be utf8, and be non-nullable.
func (t *Table) Validate() error {
	if t.Key == "" {
		return fmt.Errorf("%w: empty key column name", ErrInvalid)
	}
	if len(t.Columns) == 0 {
		return fmt.Errorf("%w: no columns", ErrInvalid)
	}

	seen := make(map[string]struct{}, len(t.Columns))
	for _, c := range t.Columns {
		if c.Name == "" {
			return fmt.Errorf("%w: empty column name", ErrInvalid)
		}
		if _, dup := seen[c.Name]; dup {
			return fmt.Errorf("%w: duplicate column %q", ErrInvalid, c.Name)
		}
		seen[c.Name] = struct{}{}
		if !c.DType.Valid() {
			return fmt.Errorf("%w: column %q has unknown dtype %q", ErrInvalid, c.Name, c.DType)
		}
	}

	key, ok := t.lookup(t.Key)
	if !ok {
		return fmt.Errorf("%w: key column %q not in columns", ErrInvalid, t.Key)
	}
	if key.DType != Utf8 {
		return fmt.Errorf("%w: key column %q must be utf8, got %q", ErrInvalid, t.Key, key.DType)
	}
	if key.Nullable {
		return fmt.Errorf("%w: key column %q must be non-nullable", ErrInvalid, t.Key)
	}

	sort.Slice(t.Columns, func(i, j int) bool { return t.Columns[i].Name < t.Columns[j].Name })
	return nil
}

// Column returns the column with the given name.
func (t *Table) Column(name string) (Column, bool) {
	return t.lookup(name)
}

func (t *Table) lookup(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Equal reports whether two schemas declare the same key and columns.
func (t *Table) Equal(o *Table) bool {
	if t.Key != o.Key || len(t.Columns) != len(o.Columns) {
		return false
	}
	for i := range t.Columns {
		if t.Columns[i] != o.Columns[i] {
			return false
		}
	}
	return true
}

type columnJSON struct {
	DType    DType `json:"dtype"`
	Nullable *bool `json:"nullable,omitempty"`
}

type tableJSON struct {
	Key     string                `json:"key"`
	Columns map[string]columnJSON `json:"columns"`
}

// MarshalJSON renders the compact human-readable descriptor stored as table.json.
func (t *Table) MarshalJSON() ([]byte, error) {
	cols := make(map[string]columnJSON, len(t.Columns))
	for _, c := range t.Columns {
		nullable := c.Nullable
		cols[c.Name] = columnJSON{DType: c.DType, Nullable: &nullable}
	}
	return json.Marshal(tableJSON{Key: t.Key, Columns: cols})
}

// UnmarshalJSON parses a descriptor and validates it. A column without a
// nullable field defaults to nullable.
func (t *Table) UnmarshalJSON(data []byte) error {
	var raw tableJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	t.Key = raw.Key
	t.Columns = t.Columns[:0]
	for name, c := range raw.Columns {
		nullable := true
		if c.Nullable != nil {
			nullable = *c.Nullable
		}
		t.Columns = append(t.Columns, Column{Name: name, DType: c.DType, Nullable: nullable})
	}
	return t.Validate()
}
