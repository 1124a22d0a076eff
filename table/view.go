// Package table assembles segments into queryable snapshots: the view maps
// segment files, the reader builds per-column decoders and the key index,
// and the cached table ties both to a single shareable lifetime.
package table

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/murrdb/murr/directory"
	"github.com/murrdb/murr/segment"
)

var (
	// ErrUnknownColumn is returned when a fetch names a column the schema
	// does not declare.
	ErrUnknownColumn = errors.New("table: unknown column")

	// ErrSchemaMismatch is returned when a write batch disagrees with the
	// declared schema.
	ErrSchemaMismatch = errors.New("table: batch does not match schema")
)

// View is the ordered list of opened segments of one table. Segments are
// opened and validated once at construction and never remapped; every
// decoder built from the view borrows its memory.
type View struct {
	segs  []*segment.Segment
	blobs []directory.Blob
}

// OpenView opens and validates every listed segment. Segments are opened
// concurrently; the listing order is preserved in the result.
func OpenView(ctx context.Context, dir directory.Directory, infos []directory.SegmentInfo) (*View, error) {
	v := &View{
		segs:  make([]*segment.Segment, len(infos)),
		blobs: make([]directory.Blob, len(infos)),
	}

	g, ctx := errgroup.WithContext(ctx)
	for i, info := range infos {
		g.Go(func() error {
			blob, err := dir.Open(ctx, info.Name)
			if err != nil {
				return fmt.Errorf("opening segment %s: %w", info.Name, err)
			}
			seg, err := segment.Open(blob.Bytes())
			if err != nil {
				blob.Close()
				return fmt.Errorf("segment %s: %w", info.Name, err)
			}
			v.blobs[i] = blob
			v.segs[i] = seg
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		v.Close()
		return nil, err
	}
	return v, nil
}

// Segments returns the opened segments in listing order.
func (v *View) Segments() []*segment.Segment {
	return v.segs
}

// Close releases every mapping. No decoder built from the view may be
// used afterwards.
func (v *View) Close() error {
	var first error
	for _, blob := range v.blobs {
		if blob == nil {
			continue
		}
		if err := blob.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
