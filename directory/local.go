package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/murrdb/murr/internal/mmap"
	"github.com/murrdb/murr/schema"
)

// Local is a Directory backed by a local filesystem directory. Segment
// blobs are memory-mapped for zero-copy reads; publishes go through a
// temp-file-plus-rename so a crashed write never leaves a partial segment
// visible.
type Local struct {
	root string
}

// NewLocal returns a Local rooted at dir. The directory is created if
// missing.
func NewLocal(dir string) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Local{root: dir}, nil
}

// Root returns the backing directory path.
func (l *Local) Root() string { return l.root }

// Index reads table.json and scans segment files in one pass over the
// directory listing.
func (l *Local) Index(_ context.Context) (*Index, error) {
	var tableSchema *schema.Table
	data, err := os.ReadFile(filepath.Join(l.root, SchemaFile))
	switch {
	case err == nil:
		var t schema.Table
		if err := json.Unmarshal(data, &t); err != nil {
			return nil, fmt.Errorf("directory: parsing %s: %w", SchemaFile, err)
		}
		tableSchema = &t
	case errors.Is(err, os.ErrNotExist):
		// Empty directory: schema stays nil.
	default:
		return nil, err
	}

	entries, err := os.ReadDir(l.root)
	if err != nil {
		return nil, err
	}

	segments := make([]SegmentInfo, 0, len(entries))
	for _, e := range entries {
		id, ok := ParseSegmentName(e.Name())
		if !ok {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			return nil, err
		}
		segments = append(segments, SegmentInfo{ID: id, Name: e.Name(), Size: fi.Size()})
	}
	sort.Slice(segments, func(i, j int) bool { return segments[i].Name < segments[j].Name })

	return &Index{Schema: tableSchema, Segments: segments}, nil
}

// Write publishes a file atomically: write to a temp name in the same
// directory, fsync, then rename into place.
func (l *Local) Write(_ context.Context, name string, data []byte) error {
	f, err := os.CreateTemp(l.root, "."+name+".tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, filepath.Join(l.root, name)); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// Open memory-maps the named file.
func (l *Local) Open(_ context.Context, name string) (Blob, error) {
	m, err := mmap.Open(filepath.Join(l.root, name))
	if err != nil {
		return nil, err
	}
	return &localBlob{m: m}, nil
}

type localBlob struct {
	m *mmap.Mapping
}

func (b *localBlob) Bytes() []byte { return b.m.Bytes() }
func (b *localBlob) Size() int64   { return b.m.Size() }
func (b *localBlob) Close() error  { return b.m.Close() }
