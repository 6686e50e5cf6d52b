package safe

import (
	"math"
	"testing"
)

func TestIntToUint32(t *testing.T) {
	tests := []struct {
		name            string
		input           int
		expectedValue   uint32
		expectedClamped bool
	}{
		{
			name:            "zero value",
			input:           0,
			expectedValue:   0,
			expectedClamped: false,
		},
		{
			name:            "small positive value",
			input:           12345,
			expectedValue:   12345,
			expectedClamped: false,
		},
		{
			name:            "max uint32 value",
			input:           math.MaxUint32,
			expectedValue:   math.MaxUint32,
			expectedClamped: false,
		},
		{
			name:            "max uint32 plus one (overflow)",
			input:           math.MaxUint32 + 1,
			expectedValue:   math.MaxUint32,
			expectedClamped: true,
		},
		{
			name:            "negative value",
			input:           -1,
			expectedValue:   0,
			expectedClamped: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			value, clamped := IntToUint32(tt.input)
			if value != tt.expectedValue {
				t.Errorf("IntToUint32(%d) value = %d, expected %d", tt.input, value, tt.expectedValue)
			}
			if clamped != tt.expectedClamped {
				t.Errorf("IntToUint32(%d) clamped = %v, expected %v", tt.input, clamped, tt.expectedClamped)
			}
		})
	}
}
