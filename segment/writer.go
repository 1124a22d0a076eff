package segment

import (
	"encoding/binary"

	"github.com/murrdb/murr/internal/conv"
)

// Writer accumulates named column payloads and serializes them into the
// segment format in a single pass: header, padded payloads in insertion
// order, footer, footer size. No seeks, no rewrites.
type Writer struct {
	names    []string
	payloads [][]byte
}

// NewWriter returns an empty segment writer.
func NewWriter() *Writer {
	return &Writer{}
}

// AddColumn appends a named column payload. Encoding the payload is the
// column codec's job; the segment treats it as opaque bytes.
func (w *Writer) AddColumn(name string, data []byte) {
	w.names = append(w.names, name)
	w.payloads = append(w.payloads, data)
}

// Bytes serializes the segment.
func (w *Writer) Bytes() ([]byte, error) {
	size := headerSize
	for _, p := range w.payloads {
		size += len(p) + padding(len(p))
	}

	buf := make([]byte, 0, size+footerLenSize+16*len(w.names))
	buf = append(buf, Magic...)
	buf = binary.LittleEndian.AppendUint32(buf, Version)

	entries := make([]entry, 0, len(w.names))
	for i, p := range w.payloads {
		offset, err := conv.IntToUint32(len(buf))
		if err != nil {
			return nil, err
		}
		psize, err := conv.IntToUint32(len(p))
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry{name: w.names[i], offset: offset, size: psize})
		buf = append(buf, p...)
		buf = append(buf, zeroPad[:padding(len(p))]...)
	}

	footerStart := len(buf)
	buf, err := encodeFooter(buf, entries)
	if err != nil {
		return nil, err
	}
	footerSize, err := conv.IntToUint32(len(buf) - footerStart)
	if err != nil {
		return nil, err
	}
	buf = binary.LittleEndian.AppendUint32(buf, footerSize)
	return buf, nil
}
