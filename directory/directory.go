// Package directory abstracts the namespace a table lives in: a schema
// descriptor plus an ordered set of immutable segment files.
//
// Implementations must be safe for concurrent use. Atomicity is required
// only at single-file granularity; the snapshot rebuild protocol provides
// multi-operation consistency on top.
package directory

import (
	"context"
	"fmt"
	"os"

	"github.com/murrdb/murr/schema"
)

// SchemaFile is the name of the schema descriptor within a directory.
const SchemaFile = "table.json"

// segmentSuffix is the extension shared by all segment files.
const segmentSuffix = ".seg"

// ErrNotFound is returned when a named file does not exist.
// Implementations return an error satisfying errors.Is(err, ErrNotFound).
var ErrNotFound = os.ErrNotExist

// Directory is the storage contract for one table.
type Directory interface {
	// Index returns the current listing in one bulk call: the schema
	// descriptor (nil when the directory holds none) and the segment
	// files ordered by name. Lexical order equals chronological order.
	Index(ctx context.Context) (*Index, error)

	// Write atomically publishes a file with the given name and contents.
	Write(ctx context.Context, name string, data []byte) error

	// Open opens a published file for reading.
	Open(ctx context.Context, name string) (Blob, error)
}

// Blob is a read-only handle to a published file. Local implementations
// back Bytes with a memory mapping; remote ones fetch the object whole.
type Blob interface {
	// Bytes returns the blob contents. The slice is valid until Close.
	Bytes() []byte
	// Size returns the blob length in bytes.
	Size() int64
	// Close releases the blob (unmaps or frees the buffer).
	Close() error
}

// SegmentInfo identifies one segment file within a directory listing.
type SegmentInfo struct {
	ID   uint32
	Name string
	Size int64
}

// Index is a point-in-time directory listing.
type Index struct {
	Schema   *schema.Table
	Segments []SegmentInfo
}

// NextID returns the id for the next segment write: highest existing id
// plus one, starting at zero. Segments are ordered, so the last one wins.
func (ix *Index) NextID() uint32 {
	if len(ix.Segments) == 0 {
		return 0
	}
	return ix.Segments[len(ix.Segments)-1].ID + 1
}

// SegmentName formats a segment id as its zero-padded file name, preserving
// lexicographic order.
func SegmentName(id uint32) string {
	return fmt.Sprintf("%08d%s", id, segmentSuffix)
}

// ParseSegmentName extracts the id from a segment file name.
func ParseSegmentName(name string) (uint32, bool) {
	if len(name) != 8+len(segmentSuffix) || name[8:] != segmentSuffix {
		return 0, false
	}
	var id uint32
	for _, c := range name[:8] {
		if c < '0' || c > '9' {
			return 0, false
		}
		id = id*10 + uint32(c-'0')
	}
	return id, true
}

// IsSegmentName reports whether name is a well-formed segment file name.
func IsSegmentName(name string) bool {
	_, ok := ParseSegmentName(name)
	return ok
}

// memoryBlob serves fully-buffered blob contents, used by the in-memory
// store and by remote backends that fetch objects whole.
type memoryBlob struct {
	data []byte
}

func (b *memoryBlob) Bytes() []byte { return b.data }
func (b *memoryBlob) Size() int64   { return int64(len(b.data)) }
func (b *memoryBlob) Close() error  { return nil }

// NewMemoryBlob wraps a byte slice as a Blob. The slice is not copied.
func NewMemoryBlob(data []byte) Blob {
	return &memoryBlob{data: data}
}

// DecodeSchema parses a table.json payload.
func DecodeSchema(data []byte) (*schema.Table, error) {
	var t schema.Table
	if err := t.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return &t, nil
}
