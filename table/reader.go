package table

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/murrdb/murr/column"
	"github.com/murrdb/murr/model"
	"github.com/murrdb/murr/schema"
	"github.com/murrdb/murr/segment"
)

// Reader executes fetches against one view: per-column multi-segment
// decoders plus the key→location index. Immutable after construction.
type Reader struct {
	keyName string
	columns map[string]column.Column
	index   map[string]column.KeyLocation
	stats   Stats
}

// Stats describes a snapshot: how many rows each segment contributes and
// how many of them are still reachable through the key index.
type Stats struct {
	Segments  int
	TotalRows int
	Keys      int
	// LiveRows[i] counts segment i's rows not shadowed by later segments.
	LiveRows []uint64
}

// NewReader builds the per-column decoders and the key index from a view.
// When the same key appears in multiple segments the index points at its
// occurrence in the latest one.
func NewReader(v *View, sch *schema.Table) (*Reader, error) {
	segs := v.Segments()

	r := &Reader{
		keyName: sch.Key,
		columns: make(map[string]column.Column, len(sch.Columns)),
	}

	for _, col := range sch.Columns {
		payloads := make([][]byte, len(segs))
		for i, s := range segs {
			p, ok := s.Column(col.Name)
			if !ok {
				return nil, fmt.Errorf("%w: segment %d has no column %q", segment.ErrCorrupt, i, col.Name)
			}
			payloads[i] = p
		}
		c, err := column.New(col, payloads)
		if err != nil {
			return nil, err
		}
		r.columns[col.Name] = c
	}

	if err := r.buildIndex(); err != nil {
		return nil, err
	}
	return r, nil
}

// buildIndex materializes the key column across all segments and inserts
// every key in segment-then-row order, so later segments shadow earlier
// ones. Shadowed rows are dropped from the per-segment live bitmaps.
func (r *Reader) buildIndex() error {
	keyCol := r.columns[r.keyName]
	arr, err := keyCol.GetAll()
	if err != nil {
		return err
	}
	keys, ok := arr.(*model.StringArray)
	if !ok {
		return fmt.Errorf("%w: key column %q is not utf8", column.ErrCorrupt, r.keyName)
	}

	segRows := keyCol.SegmentRows()
	live := make([]*roaring.Bitmap, len(segRows))
	for i := range live {
		live[i] = roaring.New()
	}

	r.index = make(map[string]column.KeyLocation, keys.Len())
	pos := 0
	for segIdx, rows := range segRows {
		for row := 0; row < rows; row++ {
			k := keys.Value(pos)
			if prev, shadowed := r.index[k]; shadowed {
				live[prev.Segment].Remove(prev.Row)
			}
			r.index[k] = column.KeyLocation{Segment: int32(segIdx), Row: uint32(row)}
			live[segIdx].Add(uint32(row))
			pos++
		}
	}

	r.stats = Stats{
		Segments:  len(segRows),
		TotalRows: keyCol.NumRows(),
		Keys:      len(r.index),
		LiveRows:  make([]uint64, len(segRows)),
	}
	for i, b := range live {
		r.stats.LiveRows[i] = b.GetCardinality()
	}
	return nil
}

// Stats returns the snapshot statistics computed at construction.
func (r *Reader) Stats() Stats {
	return r.stats
}

// Get resolves keys to locations and gathers every requested column, in
// request order. Unknown columns are rejected before any gather runs;
// missing keys come back as nulls.
func (r *Reader) Get(keys []string, columns []string) (*model.RecordBatch, error) {
	cols := make([]column.Column, len(columns))
	for i, name := range columns {
		c, ok := r.columns[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownColumn, name)
		}
		cols[i] = c
	}

	locs := make([]column.KeyLocation, len(keys))
	for i, k := range keys {
		if loc, ok := r.index[k]; ok {
			locs[i] = loc
		} else {
			locs[i] = column.Missing
		}
	}

	fields := make([]model.Field, len(cols))
	arrays := make([]model.Array, len(cols))
	for i, c := range cols {
		arr, err := c.GetAt(locs)
		if err != nil {
			return nil, err
		}
		fields[i] = c.Field()
		arrays[i] = arr
	}
	return model.NewRecordBatch(fields, arrays)
}

// EmptyBatch serves a fetch against a table that has no segments yet:
// every requested column, validated against the schema, comes back
// all-null with one row per key.
func EmptyBatch(sch *schema.Table, keys []string, columns []string) (*model.RecordBatch, error) {
	fields := make([]model.Field, len(columns))
	arrays := make([]model.Array, len(columns))
	for i, name := range columns {
		col, ok := sch.Column(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownColumn, name)
		}
		fields[i] = model.Field{Name: col.Name, DType: col.DType, Nullable: col.Nullable}

		bits := make(model.Bitmap, model.BitmapWords(len(keys)))
		switch col.DType {
		case schema.Float32:
			arrays[i] = model.NewFloat32Array(make([]float32, len(keys)), bits)
		case schema.Utf8:
			arrays[i] = model.NewStringArray(make([]int32, len(keys)+1), nil, bits)
		default:
			return nil, fmt.Errorf("table: unsupported dtype %q", col.DType)
		}
	}
	return model.NewRecordBatch(fields, arrays)
}
