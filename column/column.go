// Package column implements the per-dtype column codecs and the
// multi-segment columns built on top of them.
//
// Each dtype defines a self-contained column-within-segment layout with its
// own trailing footer, so writing is single-pass and reading locates
// sub-sections footer-first, mirroring the segment container format.
package column

import (
	"errors"
	"fmt"

	"github.com/murrdb/murr/model"
	"github.com/murrdb/murr/schema"
)

// ErrCorrupt is returned when column bytes fail validation: short slice,
// bad footer, out-of-bounds section, or misaligned offset.
var ErrCorrupt = errors.New("column: corrupt column")

// KeyLocation addresses a row as (segment index within snapshot, row offset
// within segment). A negative segment index is the missing-key tombstone.
type KeyLocation struct {
	Segment int32
	Row     uint32
}

// Missing is the tombstone for a key not present in any segment.
var Missing = KeyLocation{Segment: -1}

// IsMissing reports whether the location is the missing-key tombstone.
func (l KeyLocation) IsMissing() bool { return l.Segment < 0 }

// Column aggregates one schema column's payload across all segments of a
// snapshot and serves scatter-gather reads against it.
type Column interface {
	// Field returns the column's result field, cached at construction.
	// Result arrays are always nullable: missing keys gather as nulls.
	Field() model.Field

	// GetAt gathers the values at the given locations, in input order.
	// Tombstones produce nulls. Output length equals input length.
	GetAt(locs []KeyLocation) (model.Array, error)

	// GetAll concatenates all segments in segment order.
	GetAll() (model.Array, error)

	// NumRows returns the total row count across segments.
	NumRows() int

	// SegmentRows returns the row count of each segment, in segment order.
	SegmentRows() []int
}

// New constructs the multi-segment column for a schema column from one
// payload slice per segment, in segment order.
func New(col schema.Column, payloads [][]byte) (Column, error) {
	switch col.DType {
	case schema.Float32:
		return newFloat32Column(col, payloads)
	case schema.Utf8:
		return newUtf8Column(col, payloads)
	}
	return nil, fmt.Errorf("column: unsupported dtype %q", col.DType)
}

// Encode serializes one array as a single-segment column payload.
// Non-nullable columns reject arrays containing nulls.
func Encode(col schema.Column, arr model.Array) ([]byte, error) {
	switch col.DType {
	case schema.Float32:
		f, ok := arr.(*model.Float32Array)
		if !ok {
			return nil, fmt.Errorf("column: %q expects a float32 array, got %s", col.Name, arr.DType())
		}
		return encodeFloat32(col, f)
	case schema.Utf8:
		s, ok := arr.(*model.StringArray)
		if !ok {
			return nil, fmt.Errorf("column: %q expects a utf8 array, got %s", col.Name, arr.DType())
		}
		return encodeUtf8(col, s)
	}
	return nil, fmt.Errorf("column: unsupported dtype %q", col.DType)
}

func checkDense(col schema.Column, arr model.Array) error {
	if col.Nullable {
		return nil
	}
	bits := arr.Validity()
	if bits == nil {
		return nil
	}
	for i := 0; i < arr.Len(); i++ {
		if !bits.Valid(i) {
			return fmt.Errorf("column: null at row %d of non-nullable column %q", i, col.Name)
		}
	}
	return nil
}
