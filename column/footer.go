package column

import (
	"encoding/binary"
	"fmt"
	"unsafe"

	"github.com/murrdb/murr/model"
)

const (
	footerLenSize = 4
	alignment     = 8
)

var zeroPad [alignment - 1]byte

func pad(buf []byte) []byte {
	return append(buf, zeroPad[:(alignment-len(buf)%alignment)%alignment]...)
}

// appendFooter appends the fixed u32 footer fields followed by the trailing
// footer size. Offsets are only known after the data sections are dumped;
// writing the footer last removes any need for backpatching.
func appendFooter(buf []byte, fields ...uint32) []byte {
	for _, f := range fields {
		buf = binary.LittleEndian.AppendUint32(buf, f)
	}
	return binary.LittleEndian.AppendUint32(buf, uint32(4*len(fields)))
}

// readFooter decodes n u32 footer fields from the tail of data.
func readFooter(data []byte, n int) ([]uint32, error) {
	if len(data) < footerLenSize {
		return nil, fmt.Errorf("%w: %d bytes, no footer size", ErrCorrupt, len(data))
	}
	footerSize := int(binary.LittleEndian.Uint32(data[len(data)-footerLenSize:]))
	if footerSize != 4*n {
		return nil, fmt.Errorf("%w: footer size %d, expected %d", ErrCorrupt, footerSize, 4*n)
	}
	start := len(data) - footerLenSize - footerSize
	if start < 0 {
		return nil, fmt.Errorf("%w: footer exceeds slice", ErrCorrupt)
	}
	fields := make([]uint32, n)
	for i := range fields {
		fields[i] = binary.LittleEndian.Uint32(data[start+4*i:])
	}
	return fields, nil
}

// section validates that [offset, offset+size) lies within data and starts
// 8-byte aligned, and returns the subslice.
func section(data []byte, offset, size uint32, what string) ([]byte, error) {
	if offset%alignment != 0 {
		return nil, fmt.Errorf("%w: %s offset %d unaligned", ErrCorrupt, what, offset)
	}
	end := uint64(offset) + uint64(size)
	if end > uint64(len(data)) {
		return nil, fmt.Errorf("%w: %s range %d..%d exceeds %d bytes", ErrCorrupt, what, offset, end, len(data))
	}
	return data[offset : offset+size], nil
}

// The casts below reinterpret borrowed mmap bytes as typed slices without
// copying. Sections are 8-byte aligned in the file and mappings are
// page-aligned, so the pointer alignment requirement always holds.

func castFloat32(b []byte) []float32 {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&b[0])), len(b)/4)
}

func castInt32(b []byte) []int32 {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Slice((*int32)(unsafe.Pointer(&b[0])), len(b)/4)
}

func castBitmap(b []byte) model.Bitmap {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Slice((*uint64)(unsafe.Pointer(&b[0])), len(b)/8)
}

func bitmapBytes(bits model.Bitmap) []byte {
	if len(bits) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&bits[0])), 8*len(bits))
}

func float32Bytes(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&v[0])), 4*len(v))
}

func int32Bytes(v []int32) []byte {
	if len(v) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&v[0])), 4*len(v))
}
