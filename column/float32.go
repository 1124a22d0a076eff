package column

import (
	"fmt"

	"github.com/murrdb/murr/internal/conv"
	"github.com/murrdb/murr/model"
	"github.com/murrdb/murr/schema"
)

// float32Segment is a zero-copy view over one segment's float32 payload.
//
// Layout within the segment's column slice:
//
//	[num_values × f32, 8-byte aligned]
//	[null bitmap u64 words, 8-byte aligned, omitted when dense]
//	[footer: num_values, payload_offset, null_bitmap_offset, null_bitmap_size]
//	[footer_size u32]
type float32Segment struct {
	values []float32
	nulls  model.Bitmap
}

func parseFloat32Segment(col schema.Column, data []byte) (float32Segment, error) {
	fields, err := readFooter(data, 4)
	if err != nil {
		return float32Segment{}, err
	}
	numValues, payloadOffset, bitmapOffset, bitmapSize := fields[0], fields[1], fields[2], fields[3]
	if uint64(numValues)*4 > uint64(len(data)) {
		return float32Segment{}, fmt.Errorf("%w: %d float32 values exceed %d bytes", ErrCorrupt, numValues, len(data))
	}

	payload, err := section(data, payloadOffset, numValues*4, "float32 payload")
	if err != nil {
		return float32Segment{}, err
	}

	seg := float32Segment{values: castFloat32(payload)}
	if col.Nullable && bitmapSize > 0 {
		if bitmapSize%8 != 0 || int(bitmapSize/8) != model.BitmapWords(int(numValues)) {
			return float32Segment{}, fmt.Errorf("%w: float32 bitmap size %d for %d values", ErrCorrupt, bitmapSize, numValues)
		}
		bitmap, err := section(data, bitmapOffset, bitmapSize, "float32 null bitmap")
		if err != nil {
			return float32Segment{}, err
		}
		seg.nulls = castBitmap(bitmap)
	}
	return seg, nil
}

func encodeFloat32(col schema.Column, arr *model.Float32Array) ([]byte, error) {
	if err := checkDense(col, arr); err != nil {
		return nil, err
	}
	numValues, err := conv.IntToUint32(arr.Len())
	if err != nil {
		return nil, err
	}

	var bitmap []byte
	if col.Nullable {
		bitmap = bitmapBytes(arr.Bits)
	}

	payloadOffset := uint32(0)
	buf := make([]byte, 0, 4*arr.Len()+len(bitmap)+32)
	buf = append(buf, float32Bytes(arr.Values)...)
	buf = pad(buf)
	bitmapOffset := uint32(len(buf))
	buf = append(buf, bitmap...)
	buf = pad(buf)
	return appendFooter(buf, numValues, payloadOffset, bitmapOffset, uint32(len(bitmap))), nil
}

// Float32Column aggregates one float32 column across all segments of a
// snapshot.
type Float32Column struct {
	segs  []float32Segment
	field model.Field
	// anyNulls is true when at least one segment carries a bitmap; when
	// false the gather never inspects a segment bitmap, and it skips the
	// validity pass entirely unless some location is missing.
	anyNulls bool
	rows     int
}

func newFloat32Column(col schema.Column, payloads [][]byte) (*Float32Column, error) {
	c := &Float32Column{
		segs:  make([]float32Segment, 0, len(payloads)),
		field: model.Field{Name: col.Name, DType: schema.Float32, Nullable: col.Nullable},
	}
	for i, data := range payloads {
		seg, err := parseFloat32Segment(col, data)
		if err != nil {
			return nil, fmt.Errorf("column %q segment %d: %w", col.Name, i, err)
		}
		c.segs = append(c.segs, seg)
		c.anyNulls = c.anyNulls || seg.nulls != nil
		c.rows += len(seg.values)
	}
	return c, nil
}

func (c *Float32Column) Field() model.Field { return c.field }

func (c *Float32Column) NumRows() int { return c.rows }

func (c *Float32Column) SegmentRows() []int {
	rows := make([]int, len(c.segs))
	for i := range c.segs {
		rows[i] = len(c.segs[i].values)
	}
	return rows
}

// GetAt gathers in two passes. The first fills a preallocated value buffer
// with straight indexed stores. The second builds the validity bitmap and
// runs only when nulls are possible; fusing the passes would force an
// append-style value loop and lose the exact-size fill.
func (c *Float32Column) GetAt(locs []KeyLocation) (model.Array, error) {
	values := make([]float32, len(locs))
	hasMissing := false
	for i, loc := range locs {
		if loc.IsMissing() {
			hasMissing = true
			continue
		}
		seg, err := c.segAt(loc)
		if err != nil {
			return nil, err
		}
		values[i] = seg.values[loc.Row]
	}

	if !hasMissing && !c.anyNulls {
		return model.NewFloat32Array(values, nil), nil
	}

	bits := make(model.Bitmap, model.BitmapWords(len(locs)))
	if !c.anyNulls {
		for i, loc := range locs {
			if !loc.IsMissing() {
				bits.Set(i)
			}
		}
	} else {
		for i, loc := range locs {
			if loc.IsMissing() {
				continue
			}
			if nb := c.segs[loc.Segment].nulls; nb == nil || nb.Valid(int(loc.Row)) {
				bits.Set(i)
			}
		}
	}
	return model.NewFloat32Array(values, bits), nil
}

// GetAll concatenates all segments in segment order.
func (c *Float32Column) GetAll() (model.Array, error) {
	values := make([]float32, 0, c.rows)
	for _, seg := range c.segs {
		values = append(values, seg.values...)
	}
	if !c.anyNulls {
		return model.NewFloat32Array(values, nil), nil
	}

	bits := make(model.Bitmap, model.BitmapWords(c.rows))
	base := 0
	for _, seg := range c.segs {
		if seg.nulls == nil {
			for i := range seg.values {
				bits.Set(base + i)
			}
		} else {
			for i := range seg.values {
				if seg.nulls.Valid(i) {
					bits.Set(base + i)
				}
			}
		}
		base += len(seg.values)
	}
	return model.NewFloat32Array(values, bits), nil
}

func (c *Float32Column) segAt(loc KeyLocation) (*float32Segment, error) {
	if int(loc.Segment) >= len(c.segs) {
		return nil, fmt.Errorf("%w: segment index %d out of range (have %d)", ErrCorrupt, loc.Segment, len(c.segs))
	}
	seg := &c.segs[loc.Segment]
	if int(loc.Row) >= len(seg.values) {
		return nil, fmt.Errorf("%w: row %d out of range (segment has %d)", ErrCorrupt, loc.Row, len(seg.values))
	}
	return seg, nil
}
