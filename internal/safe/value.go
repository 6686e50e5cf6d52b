package safe

import (
	"math"
)

// IntToUint32 converts an int to uint32, clamping to 0 or math.MaxUint32.
// Returns the converted value and a boolean indicating whether clamping occurred.
func IntToUint32(val int) (uint32, bool) {
	if val < 0 {
		return 0, true
	}
	if uint64(val) > math.MaxUint32 {
		return math.MaxUint32, true
	}
	return uint32(val), false
}
