package column

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/murrdb/murr/model"
	"github.com/murrdb/murr/schema"
)

func floatCol(nullable bool) schema.Column {
	return schema.Column{Name: "v", DType: schema.Float32, Nullable: nullable}
}

func ptr[T any](v T) *T { return &v }

func TestFloat32_RoundTripDense(t *testing.T) {
	col := floatCol(false)
	buf, err := encodeFloat32(col, model.Float32s(1.0, 2.5, 0.0))
	require.NoError(t, err)

	seg, err := parseFloat32Segment(col, buf)
	require.NoError(t, err)
	assert.Equal(t, []float32{1.0, 2.5, 0.0}, seg.values)
	assert.Nil(t, seg.nulls)
}

func TestFloat32_NonNullableEmitsNoBitmap(t *testing.T) {
	buf, err := encodeFloat32(floatCol(false), model.Float32s(1, 2, 3))
	require.NoError(t, err)

	fields, err := readFooter(buf, 4)
	require.NoError(t, err)
	assert.Zero(t, fields[3], "null_bitmap_size must be zero")
}

func TestFloat32_NullableDenseEmitsNoBitmap(t *testing.T) {
	buf, err := encodeFloat32(floatCol(true), model.Float32s(1, 2))
	require.NoError(t, err)

	fields, err := readFooter(buf, 4)
	require.NoError(t, err)
	assert.Zero(t, fields[3])

	seg, err := parseFloat32Segment(floatCol(true), buf)
	require.NoError(t, err)
	assert.Nil(t, seg.nulls)
}

func TestFloat32_RoundTripWithNulls(t *testing.T) {
	col := floatCol(true)
	arr := model.NullableFloat32s(ptr(float32(1.5)), nil, ptr(float32(3.25)), nil)
	buf, err := encodeFloat32(col, arr)
	require.NoError(t, err)

	seg, err := parseFloat32Segment(col, buf)
	require.NoError(t, err)
	require.NotNil(t, seg.nulls)
	assert.True(t, seg.nulls.Valid(0))
	assert.False(t, seg.nulls.Valid(1))
	assert.True(t, seg.nulls.Valid(2))
	assert.False(t, seg.nulls.Valid(3))
	assert.Equal(t, float32(1.5), seg.values[0])
	assert.Equal(t, float32(3.25), seg.values[2])
}

func TestFloat32_EncodeRejectsNullInDenseColumn(t *testing.T) {
	_, err := encodeFloat32(floatCol(false), model.NullableFloat32s(ptr(float32(1)), nil))
	require.Error(t, err)
}

func TestFloat32_EmptySegment(t *testing.T) {
	col := floatCol(false)
	buf, err := encodeFloat32(col, model.Float32s())
	require.NoError(t, err)

	seg, err := parseFloat32Segment(col, buf)
	require.NoError(t, err)
	assert.Empty(t, seg.values)
}

func TestFloat32_ParseTruncated(t *testing.T) {
	col := floatCol(false)
	buf, err := encodeFloat32(col, model.Float32s(1, 2, 3))
	require.NoError(t, err)

	_, err = parseFloat32Segment(col, buf[len(buf)-8:])
	require.ErrorIs(t, err, ErrCorrupt)

	_, err = parseFloat32Segment(col, []byte{1, 2})
	require.ErrorIs(t, err, ErrCorrupt)
}

func newFloatColumn(t *testing.T, col schema.Column, arrays ...*model.Float32Array) *Float32Column {
	t.Helper()
	payloads := make([][]byte, len(arrays))
	for i, arr := range arrays {
		buf, err := encodeFloat32(col, arr)
		require.NoError(t, err)
		payloads[i] = buf
	}
	c, err := newFloat32Column(col, payloads)
	require.NoError(t, err)
	return c
}

func TestFloat32Column_GetAt(t *testing.T) {
	c := newFloatColumn(t, floatCol(false), model.Float32s(10, 20, 30, 40))

	arr, err := c.GetAt([]KeyLocation{
		{Segment: 0, Row: 2},
		{Segment: 0, Row: 0},
		{Segment: 0, Row: 3},
	})
	require.NoError(t, err)

	out := arr.(*model.Float32Array)
	require.Equal(t, 3, out.Len())
	assert.Equal(t, float32(30), out.Value(0))
	assert.Equal(t, float32(10), out.Value(1))
	assert.Equal(t, float32(40), out.Value(2))
	// Dense column, no tombstones: the validity pass is skipped entirely.
	assert.Nil(t, out.Validity())
}

func TestFloat32Column_GetAtMissing(t *testing.T) {
	c := newFloatColumn(t, floatCol(false), model.Float32s(10, 20, 30))

	arr, err := c.GetAt([]KeyLocation{
		{Segment: 0, Row: 0},
		Missing,
		{Segment: 0, Row: 2},
		Missing,
	})
	require.NoError(t, err)

	out := arr.(*model.Float32Array)
	require.Equal(t, 4, out.Len())
	assert.False(t, out.Null(0))
	assert.True(t, out.Null(1))
	assert.False(t, out.Null(2))
	assert.True(t, out.Null(3))
	assert.Equal(t, float32(10), out.Value(0))
	assert.Equal(t, float32(30), out.Value(2))
}

func TestFloat32Column_GetAtWithNulls(t *testing.T) {
	c := newFloatColumn(t, floatCol(true),
		model.NullableFloat32s(ptr(float32(1)), nil, ptr(float32(3))))

	arr, err := c.GetAt([]KeyLocation{
		{Segment: 0, Row: 1},
		{Segment: 0, Row: 0},
		{Segment: 0, Row: 2},
	})
	require.NoError(t, err)

	out := arr.(*model.Float32Array)
	assert.True(t, out.Null(0))
	assert.Equal(t, float32(1), out.Value(1))
	assert.Equal(t, float32(3), out.Value(2))
}

func TestFloat32Column_MultipleSegments(t *testing.T) {
	c := newFloatColumn(t, floatCol(false),
		model.Float32s(1, 2), model.Float32s(3, 4, 5))
	assert.Equal(t, 5, c.NumRows())
	assert.Equal(t, []int{2, 3}, c.SegmentRows())

	all, err := c.GetAll()
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3, 4, 5}, all.(*model.Float32Array).Values)

	arr, err := c.GetAt([]KeyLocation{
		{Segment: 1, Row: 2},
		{Segment: 0, Row: 0},
	})
	require.NoError(t, err)
	out := arr.(*model.Float32Array)
	assert.Equal(t, float32(5), out.Value(0))
	assert.Equal(t, float32(1), out.Value(1))
}

func TestFloat32Column_GetAllWithNulls(t *testing.T) {
	c := newFloatColumn(t, floatCol(true),
		model.Float32s(1, 2),
		model.NullableFloat32s(nil, ptr(float32(4))))

	all, err := c.GetAll()
	require.NoError(t, err)
	out := all.(*model.Float32Array)
	require.Equal(t, 4, out.Len())
	assert.False(t, out.Null(0))
	assert.False(t, out.Null(1))
	assert.True(t, out.Null(2))
	assert.False(t, out.Null(3))
	assert.Equal(t, float32(4), out.Value(3))
}

func TestFloat32Column_OutOfRange(t *testing.T) {
	c := newFloatColumn(t, floatCol(false), model.Float32s(1))

	_, err := c.GetAt([]KeyLocation{{Segment: 5, Row: 0}})
	require.ErrorIs(t, err, ErrCorrupt)

	_, err = c.GetAt([]KeyLocation{{Segment: 0, Row: 9}})
	require.ErrorIs(t, err, ErrCorrupt)
}
