package segment

import (
	"encoding/binary"
	"fmt"
)

// Segment is a zero-copy read handle over one segment's bytes, typically a
// borrowed slice into a memory mapping. Column lookups return subslices of
// the same backing memory; they are valid for the mapping's lifetime.
type Segment struct {
	data    []byte
	columns map[string]span
	order   []string
}

type span struct {
	offset uint32
	size   uint32
}

// Open validates the header, decodes the trailing footer, and indexes the
// column payloads. The data slice is borrowed, never copied.
func Open(data []byte) (*Segment, error) {
	if len(data) < headerSize+footerLenSize {
		return nil, fmt.Errorf("%w: %d bytes, minimum %d", ErrCorrupt, len(data), headerSize+footerLenSize)
	}
	if string(data[:4]) != Magic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrCorrupt, data[:4])
	}
	version := binary.LittleEndian.Uint32(data[4:8])
	if version != Version {
		return nil, fmt.Errorf("%w: unsupported version %d, expected %d", ErrCorrupt, version, Version)
	}

	footerSize := int(binary.LittleEndian.Uint32(data[len(data)-footerLenSize:]))
	footerStart := len(data) - footerLenSize - footerSize
	if footerStart < headerSize {
		return nil, fmt.Errorf("%w: footer size %d exceeds file", ErrCorrupt, footerSize)
	}
	entries, err := decodeFooter(data[footerStart : len(data)-footerLenSize])
	if err != nil {
		return nil, err
	}

	columns := make(map[string]span, len(entries))
	order := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.offset%alignment != 0 {
			return nil, fmt.Errorf("%w: column %q payload offset %d unaligned", ErrCorrupt, e.name, e.offset)
		}
		end := uint64(e.offset) + uint64(e.size)
		if uint64(e.offset) < headerSize || end > uint64(footerStart) {
			return nil, fmt.Errorf("%w: column %q payload range %d..%d out of bounds", ErrCorrupt, e.name, e.offset, end)
		}
		if _, dup := columns[e.name]; dup {
			return nil, fmt.Errorf("%w: duplicate column %q", ErrCorrupt, e.name)
		}
		columns[e.name] = span{offset: e.offset, size: e.size}
		order = append(order, e.name)
	}

	return &Segment{data: data, columns: columns, order: order}, nil
}

// Column returns the named column's payload as a borrowed slice.
func (s *Segment) Column(name string) ([]byte, bool) {
	sp, ok := s.columns[name]
	if !ok {
		return nil, false
	}
	return s.data[sp.offset : sp.offset+sp.size], true
}

// Columns lists the column names in file order.
func (s *Segment) Columns() []string {
	return s.order
}

// Size returns the total segment size in bytes.
func (s *Segment) Size() int {
	return len(s.data)
}
