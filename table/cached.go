package table

import (
	"context"
	"sync/atomic"

	"github.com/murrdb/murr/directory"
	"github.com/murrdb/murr/model"
	"github.com/murrdb/murr/schema"
)

// Cached owns a view and the reader borrowing its mapped memory as one
// shareable unit. The reader is valid only while the view's mappings are
// alive, so both share a single reference count: each query handler holds
// one reference, and the mappings are released when the last reference
// goes.
type Cached struct {
	view   *View
	reader *Reader
	refs   atomic.Int64
}

// Open maps and indexes the given segments into a fresh snapshot.
// The caller holds the initial reference.
func Open(ctx context.Context, dir directory.Directory, sch *schema.Table, infos []directory.SegmentInfo) (*Cached, error) {
	view, err := OpenView(ctx, dir, infos)
	if err != nil {
		return nil, err
	}
	reader, err := NewReader(view, sch)
	if err != nil {
		view.Close()
		return nil, err
	}

	c := &Cached{view: view, reader: reader}
	c.refs.Store(1)
	return c, nil
}

// Retain adds a reference and returns the snapshot for chaining.
func (c *Cached) Retain() *Cached {
	c.refs.Add(1)
	return c
}

// Release drops a reference; the last release unmaps the view.
func (c *Cached) Release() {
	if c.refs.Add(-1) == 0 {
		_ = c.view.Close()
	}
}

// Get executes a fetch against this snapshot. Purely CPU-bound: mapped
// memory and the precomputed index only, no filesystem access.
func (c *Cached) Get(keys []string, columns []string) (*model.RecordBatch, error) {
	return c.reader.Get(keys, columns)
}

// Stats returns the snapshot statistics.
func (c *Cached) Stats() Stats {
	return c.reader.Stats()
}

// NumSegments returns the number of segments in this snapshot.
func (c *Cached) NumSegments() int {
	return len(c.view.Segments())
}
