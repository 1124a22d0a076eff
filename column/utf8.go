package column

import (
	"fmt"

	"github.com/murrdb/murr/internal/conv"
	"github.com/murrdb/murr/model"
	"github.com/murrdb/murr/schema"
)

// utf8Segment is a zero-copy view over one segment's string payload.
//
// Layout within the segment's column slice:
//
//	[(num_values + 1) × i32 value offsets, 8-byte aligned]
//	[concatenated string payload, 8-byte aligned]
//	[null bitmap u64 words, 8-byte aligned, omitted when dense]
//	[footer: num_values, offsets_offset, payload_offset, payload_size,
//	         null_bitmap_offset, null_bitmap_size]
//	[footer_size u32]
//
// offsets[i] is the starting byte of string i; offsets[num_values] is the
// total payload length, so every string's range is offsets[i]..offsets[i+1].
type utf8Segment struct {
	offsets []int32
	payload []byte
	nulls   model.Bitmap
}

func (s *utf8Segment) numValues() int { return len(s.offsets) - 1 }

func (s *utf8Segment) strBytes(row uint32) []byte {
	return s.payload[s.offsets[row]:s.offsets[row+1]]
}

func parseUtf8Segment(col schema.Column, data []byte) (utf8Segment, error) {
	fields, err := readFooter(data, 6)
	if err != nil {
		return utf8Segment{}, err
	}
	numValues := fields[0]
	offsetsOffset, payloadOffset, payloadSize := fields[1], fields[2], fields[3]
	bitmapOffset, bitmapSize := fields[4], fields[5]

	if (uint64(numValues)+1)*4 > uint64(len(data)) {
		return utf8Segment{}, fmt.Errorf("%w: %d utf8 offsets exceed %d bytes", ErrCorrupt, numValues, len(data))
	}
	offsetsRaw, err := section(data, offsetsOffset, (numValues+1)*4, "utf8 offsets")
	if err != nil {
		return utf8Segment{}, err
	}
	offsets := castInt32(offsetsRaw)

	payload, err := section(data, payloadOffset, payloadSize, "utf8 payload")
	if err != nil {
		return utf8Segment{}, err
	}

	// Offsets must climb monotonically and end exactly at the payload
	// length, otherwise string ranges could escape the payload slice.
	prev := int32(0)
	for i, off := range offsets {
		if off < prev || int(off) > len(payload) {
			return utf8Segment{}, fmt.Errorf("%w: utf8 offset %d at index %d out of order", ErrCorrupt, off, i)
		}
		prev = off
	}
	if int(offsets[numValues]) != len(payload) {
		return utf8Segment{}, fmt.Errorf("%w: final utf8 offset %d, payload %d bytes", ErrCorrupt, offsets[numValues], len(payload))
	}

	seg := utf8Segment{offsets: offsets, payload: payload}
	if col.Nullable && bitmapSize > 0 {
		if bitmapSize%8 != 0 || int(bitmapSize/8) != model.BitmapWords(int(numValues)) {
			return utf8Segment{}, fmt.Errorf("%w: utf8 bitmap size %d for %d values", ErrCorrupt, bitmapSize, numValues)
		}
		bitmap, err := section(data, bitmapOffset, bitmapSize, "utf8 null bitmap")
		if err != nil {
			return utf8Segment{}, err
		}
		seg.nulls = castBitmap(bitmap)
	}
	return seg, nil
}

func encodeUtf8(col schema.Column, arr *model.StringArray) ([]byte, error) {
	if err := checkDense(col, arr); err != nil {
		return nil, err
	}
	numValues, err := conv.IntToUint32(arr.Len())
	if err != nil {
		return nil, err
	}
	if len(arr.Offsets) != arr.Len()+1 || int(arr.Offsets[arr.Len()]) != len(arr.Payload) {
		return nil, fmt.Errorf("column: malformed string array for %q", col.Name)
	}
	payloadSize, err := conv.IntToUint32(len(arr.Payload))
	if err != nil {
		return nil, err
	}

	var bitmap []byte
	if col.Nullable {
		bitmap = bitmapBytes(arr.Bits)
	}

	offsetsOffset := uint32(0)
	buf := make([]byte, 0, 4*len(arr.Offsets)+len(arr.Payload)+len(bitmap)+48)
	buf = append(buf, int32Bytes(arr.Offsets)...)
	buf = pad(buf)
	payloadOffset := uint32(len(buf))
	buf = append(buf, arr.Payload...)
	buf = pad(buf)
	bitmapOffset := uint32(len(buf))
	buf = append(buf, bitmap...)
	buf = pad(buf)
	return appendFooter(buf, numValues, offsetsOffset, payloadOffset, payloadSize,
		bitmapOffset, uint32(len(bitmap))), nil
}

// Utf8Column aggregates one string column across all segments of a snapshot.
type Utf8Column struct {
	segs     []utf8Segment
	field    model.Field
	anyNulls bool
	rows     int
}

func newUtf8Column(col schema.Column, payloads [][]byte) (*Utf8Column, error) {
	c := &Utf8Column{
		segs:  make([]utf8Segment, 0, len(payloads)),
		field: model.Field{Name: col.Name, DType: schema.Utf8, Nullable: col.Nullable},
	}
	for i, data := range payloads {
		seg, err := parseUtf8Segment(col, data)
		if err != nil {
			return nil, fmt.Errorf("column %q segment %d: %w", col.Name, i, err)
		}
		c.segs = append(c.segs, seg)
		c.anyNulls = c.anyNulls || seg.nulls != nil
		c.rows += seg.numValues()
	}
	return c, nil
}

func (c *Utf8Column) Field() model.Field { return c.field }

func (c *Utf8Column) NumRows() int { return c.rows }

func (c *Utf8Column) SegmentRows() []int {
	rows := make([]int, len(c.segs))
	for i := range c.segs {
		rows[i] = c.segs[i].numValues()
	}
	return rows
}

// GetAt gathers in two passes: the first computes every selected string's
// length and prefix-sums them into output offsets, sizing the payload
// buffer exactly; the second copies string bodies into place. The validity
// pass follows the same skip-when-dense discipline as float32.
func (c *Utf8Column) GetAt(locs []KeyLocation) (model.Array, error) {
	offsets := make([]int32, len(locs)+1)
	total := int32(0)
	hasMissing := false
	for i, loc := range locs {
		offsets[i] = total
		if loc.IsMissing() {
			hasMissing = true
			continue
		}
		seg, err := c.segAt(loc)
		if err != nil {
			return nil, err
		}
		total += seg.offsets[loc.Row+1] - seg.offsets[loc.Row]
	}
	offsets[len(locs)] = total

	payload := make([]byte, total)
	for i, loc := range locs {
		if loc.IsMissing() {
			continue
		}
		seg := &c.segs[loc.Segment]
		copy(payload[offsets[i]:offsets[i+1]], seg.strBytes(loc.Row))
	}

	if !hasMissing && !c.anyNulls {
		return model.NewStringArray(offsets, payload, nil), nil
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
	return model.NewStringArray(offsets, payload, bits), nil
}

// GetAll concatenates all segments in segment order.
func (c *Utf8Column) GetAll() (model.Array, error) {
	offsets := make([]int32, 0, c.rows+1)
	totalPayload := 0
	for _, seg := range c.segs {
		totalPayload += len(seg.payload)
	}
	payload := make([]byte, 0, totalPayload)
	base := int32(0)
	for _, seg := range c.segs {
		for _, off := range seg.offsets[:seg.numValues()] {
			offsets = append(offsets, base+off)
		}
		payload = append(payload, seg.payload...)
		base += int32(len(seg.payload))
	}
	offsets = append(offsets, base)

	if !c.anyNulls {
		return model.NewStringArray(offsets, payload, nil), nil
	}

	bits := make(model.Bitmap, model.BitmapWords(c.rows))
	pos := 0
	for _, seg := range c.segs {
		n := seg.numValues()
		if seg.nulls == nil {
			for i := 0; i < n; i++ {
				bits.Set(pos + i)
			}
		} else {
			for i := 0; i < n; i++ {
				if seg.nulls.Valid(i) {
					bits.Set(pos + i)
				}
			}
		}
		pos += n
	}
	return model.NewStringArray(offsets, payload, bits), nil
}

func (c *Utf8Column) segAt(loc KeyLocation) (*utf8Segment, error) {
	if int(loc.Segment) >= len(c.segs) {
		return nil, fmt.Errorf("%w: segment index %d out of range (have %d)", ErrCorrupt, loc.Segment, len(c.segs))
	}
	seg := &c.segs[loc.Segment]
	if int(loc.Row) >= seg.numValues() {
		return nil, fmt.Errorf("%w: row %d out of range (segment has %d)", ErrCorrupt, loc.Row, seg.numValues())
	}
	return seg, nil
}
