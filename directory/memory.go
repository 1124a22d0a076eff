package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/murrdb/murr/schema"
)

// Memory is an in-memory Directory for tests and ephemeral tables.
// Thread-safe.
type Memory struct {
	mu    sync.RWMutex
	files map[string][]byte
}

// NewMemory returns an empty in-memory directory.
func NewMemory() *Memory {
	return &Memory{files: make(map[string][]byte)}
}

// Index lists the stored schema and segment files.
func (m *Memory) Index(_ context.Context) (*Index, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var tableSchema *schema.Table
	if data, ok := m.files[SchemaFile]; ok {
		var t schema.Table
		if err := json.Unmarshal(data, &t); err != nil {
			return nil, fmt.Errorf("directory: parsing %s: %w", SchemaFile, err)
		}
		tableSchema = &t
	}

	segments := make([]SegmentInfo, 0, len(m.files))
	for name, data := range m.files {
		id, ok := ParseSegmentName(name)
		if !ok {
			continue
		}
		segments = append(segments, SegmentInfo{ID: id, Name: name, Size: int64(len(data))})
	}
	sort.Slice(segments, func(i, j int) bool { return segments[i].Name < segments[j].Name })

	return &Index{Schema: tableSchema, Segments: segments}, nil
}

// Write stores a copy of data under name.
func (m *Memory) Write(_ context.Context, name string, data []byte) error {
	copied := make([]byte, len(data))
	copy(copied, data)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[name] = copied
	return nil
}

// Open returns the stored bytes. The returned blob shares the stored slice;
// stored files are never mutated, only replaced.
func (m *Memory) Open(_ context.Context, name string) (Blob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.files[name]
	if !ok {
		return nil, fmt.Errorf("directory: %s: %w", name, ErrNotFound)
	}
	return NewMemoryBlob(data), nil
}
