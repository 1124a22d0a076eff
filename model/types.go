// Package model defines the in-memory data currency of the cache: typed
// arrays with validity bitmaps, fields, and record batches. The layouts are
// Arrow-compatible (values buffer + validity bitmap; offsets + payload for
// strings) so collaborators can hand them to Arrow-based surfaces without
// another copy.
package model

import (
	"errors"
	"fmt"

	"github.com/murrdb/murr/schema"
)

var (
	// ErrLengthMismatch is returned when batch columns disagree on row count.
	ErrLengthMismatch = errors.New("model: column lengths differ")
)

// Field describes one column of a record batch.
type Field struct {
	Name     string
	DType    schema.DType
	Nullable bool
}

// Array is a typed column of values with per-value validity.
type Array interface {
	// DType returns the array's logical type.
	DType() schema.DType
	// Len returns the number of values.
	Len() int
	// Null reports whether value i is null.
	Null(i int) bool
	// Validity exposes the validity bitmap; nil means all valid.
	Validity() Bitmap
}

// Float32Array is a dense float32 column. Null slots hold zero values.
type Float32Array struct {
	Values []float32
	Bits   Bitmap
}

// NewFloat32Array wraps values and an optional validity bitmap.
func NewFloat32Array(values []float32, bits Bitmap) *Float32Array {
	return &Float32Array{Values: values, Bits: bits}
}

// Float32s builds an all-valid float32 array.
func Float32s(values ...float32) *Float32Array {
	return &Float32Array{Values: values}
}

// NullableFloat32s builds a float32 array where nil entries are null.
func NullableFloat32s(values ...*float32) *Float32Array {
	out := make([]float32, len(values))
	bits := NewBitmapBuilder(len(values))
	for i, v := range values {
		if v == nil {
			bits.Append(false)
			continue
		}
		out[i] = *v
		bits.Append(true)
	}
	return &Float32Array{Values: out, Bits: bits.Finish()}
}

func (a *Float32Array) DType() schema.DType { return schema.Float32 }
func (a *Float32Array) Len() int            { return len(a.Values) }
func (a *Float32Array) Null(i int) bool     { return !a.Bits.Valid(i) }
func (a *Float32Array) Validity() Bitmap    { return a.Bits }

// Value returns value i; zero for null slots.
func (a *Float32Array) Value(i int) float32 { return a.Values[i] }

// StringArray is a dense UTF-8 column: len(Offsets) == Len()+1 and
// Offsets[Len()] is the total payload byte length. Null slots are
// zero-length.
type StringArray struct {
	Offsets []int32
	Payload []byte
	Bits    Bitmap
}

// NewStringArray wraps offsets, payload, and an optional validity bitmap.
func NewStringArray(offsets []int32, payload []byte, bits Bitmap) *StringArray {
	return &StringArray{Offsets: offsets, Payload: payload, Bits: bits}
}

// Strings builds an all-valid string array.
func Strings(values ...string) *StringArray {
	offsets := make([]int32, len(values)+1)
	var payload []byte
	for i, v := range values {
		offsets[i] = int32(len(payload))
		payload = append(payload, v...)
	}
	offsets[len(values)] = int32(len(payload))
	return &StringArray{Offsets: offsets, Payload: payload}
}

// NullableStrings builds a string array where nil entries are null.
func NullableStrings(values ...*string) *StringArray {
	offsets := make([]int32, len(values)+1)
	var payload []byte
	bits := NewBitmapBuilder(len(values))
	for i, v := range values {
		offsets[i] = int32(len(payload))
		if v == nil {
			bits.Append(false)
			continue
		}
		payload = append(payload, *v...)
		bits.Append(true)
	}
	offsets[len(values)] = int32(len(payload))
	return &StringArray{Offsets: offsets, Payload: payload, Bits: bits.Finish()}
}

func (a *StringArray) DType() schema.DType { return schema.Utf8 }
func (a *StringArray) Len() int            { return len(a.Offsets) - 1 }
func (a *StringArray) Null(i int) bool     { return !a.Bits.Valid(i) }
func (a *StringArray) Validity() Bitmap    { return a.Bits }

// Value returns string i; empty for null slots.
func (a *StringArray) Value(i int) string {
	return string(a.Payload[a.Offsets[i]:a.Offsets[i+1]])
}

// RecordBatch is an ordered set of equal-length named columns.
type RecordBatch struct {
	fields  []Field
	columns []Array
	rows    int
}

// NewRecordBatch assembles fields and columns into a batch. All columns
// must have the same length and match their field's dtype.
func NewRecordBatch(fields []Field, columns []Array) (*RecordBatch, error) {
	if len(fields) != len(columns) {
		return nil, fmt.Errorf("model: %d fields but %d columns", len(fields), len(columns))
	}
	rows := 0
	for i, col := range columns {
		if col.DType() != fields[i].DType {
			return nil, fmt.Errorf("model: column %q is %s, field declares %s",
				fields[i].Name, col.DType(), fields[i].DType)
		}
		if i == 0 {
			rows = col.Len()
		} else if col.Len() != rows {
			return nil, fmt.Errorf("%w: column %q has %d rows, expected %d",
				ErrLengthMismatch, fields[i].Name, col.Len(), rows)
		}
	}
	return &RecordBatch{fields: fields, columns: columns, rows: rows}, nil
}

// NumRows returns the row count.
func (b *RecordBatch) NumRows() int { return b.rows }

// NumColumns returns the column count.
func (b *RecordBatch) NumColumns() int { return len(b.columns) }

// Fields returns the batch's field list in column order.
func (b *RecordBatch) Fields() []Field { return b.fields }

// Column returns column i.
func (b *RecordBatch) Column(i int) Array { return b.columns[i] }

// ColumnByName returns the named column.
func (b *RecordBatch) ColumnByName(name string) (Array, bool) {
	for i, f := range b.fields {
		if f.Name == name {
			return b.columns[i], true
		}
	}
	return nil, false
}
