// Package segment reads and writes the immutable segment file format.
//
// A segment holds one appended batch, one named payload per schema column:
//
//	[magic "MURR"][version u32][payloads, each padded to 8-byte alignment]
//	[footer: column entries][footer_size u32]
//
// The footer sits at the tail so a reader locates all metadata with a single
// seek: read the trailing u32, then decode the footer right before it.
// All integers are little-endian.
package segment

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const (
	// Magic identifies segment files ("MURR").
	Magic = "MURR"
	// Version is the current segment format version.
	Version uint32 = 2

	headerSize    = 8 // magic (4) + version (4)
	footerLenSize = 4 // trailing u32 footer length
	alignment     = 8
)

// ErrCorrupt is returned when segment bytes fail validation: bad magic,
// unknown version, short file, or a footer that decodes out of bounds.
var ErrCorrupt = errors.New("segment: corrupt segment")

// entry locates one column payload within the file.
type entry struct {
	name   string
	offset uint32
	size   uint32
}

// padding returns the bytes needed to align n up to the payload alignment.
func padding(n int) int {
	return (alignment - n%alignment) % alignment
}

var zeroPad [alignment - 1]byte

// encodeFooter appends the footer encoding of entries to buf.
//
// Layout: u32 entry count, then per entry u16 name length, name bytes,
// u32 offset, u32 size.
func encodeFooter(buf []byte, entries []entry) ([]byte, error) {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(entries)))
	for _, e := range entries {
		if len(e.name) > math.MaxUint16 {
			return nil, fmt.Errorf("segment: column name %d bytes long", len(e.name))
		}
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(e.name)))
		buf = append(buf, e.name...)
		buf = binary.LittleEndian.AppendUint32(buf, e.offset)
		buf = binary.LittleEndian.AppendUint32(buf, e.size)
	}
	return buf, nil
}

// decodeFooter parses a footer produced by encodeFooter.
func decodeFooter(data []byte) ([]entry, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("%w: footer shorter than entry count", ErrCorrupt)
	}
	count := binary.LittleEndian.Uint32(data)
	pos := 4
	entries := make([]entry, 0, count)
	for i := uint32(0); i < count; i++ {
		if pos+2 > len(data) {
			return nil, fmt.Errorf("%w: footer truncated at entry %d", ErrCorrupt, i)
		}
		nameLen := int(binary.LittleEndian.Uint16(data[pos:]))
		pos += 2
		if pos+nameLen+8 > len(data) {
			return nil, fmt.Errorf("%w: footer truncated at entry %d", ErrCorrupt, i)
		}
		name := string(data[pos : pos+nameLen])
		pos += nameLen
		offset := binary.LittleEndian.Uint32(data[pos:])
		size := binary.LittleEndian.Uint32(data[pos+4:])
		pos += 8
		entries = append(entries, entry{name: name, offset: offset, size: size})
	}
	if pos != len(data) {
		return nil, fmt.Errorf("%w: %d trailing footer bytes", ErrCorrupt, len(data)-pos)
	}
	return entries, nil
}
