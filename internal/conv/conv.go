// Package conv provides bounds-checked integer conversions for the
// format boundary, where in-memory lengths become u32 file offsets.
package conv

import (
	"fmt"
	"math"
)

// IntToUint32 converts an int to uint32, failing on negative or oversized values.
func IntToUint32(v int) (uint32, error) {
	if v < 0 {
		return 0, fmt.Errorf("conv: %d is negative", v)
	}
	if uint64(v) > math.MaxUint32 {
		return 0, fmt.Errorf("conv: %d exceeds uint32 range", v)
	}
	return uint32(v), nil
}

// IntToInt32 converts an int to int32, failing on out-of-range values.
func IntToInt32(v int) (int32, error) {
	if v < math.MinInt32 || v > math.MaxInt32 {
		return 0, fmt.Errorf("conv: %d exceeds int32 range", v)
	}
	return int32(v), nil
}

// Uint32ToInt converts a uint32 to int, failing if it does not fit.
func Uint32ToInt(v uint32) (int, error) {
	if uint64(v) > uint64(math.MaxInt) {
		return 0, fmt.Errorf("conv: %d exceeds int range", v)
	}
	return int(v), nil
}
