package duckdb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInterpolateQuery(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 30, 0, 500, time.UTC)

	tests := []struct {
		name     string
		query    string
		args     []any
		expected string
	}{
		{
			name:     "no args",
			query:    "SELECT * FROM capture_cycles",
			expected: "SELECT * FROM capture_cycles",
		},
		{
			name:     "quoted string",
			query:    "SELECT * FROM capture_cycles WHERE source_url = ?",
			args:     []any{"https://example.com/?q='x'"},
			expected: "SELECT * FROM capture_cycles WHERE source_url = 'https://example.com/?q=''x'''",
		},
		{
			name:     "numbers and booleans",
			query:    "SELECT ? , ?, ?, ?",
			args:     []any{42, uint32(7), 1.5, true},
			expected: "SELECT 42 , 7, 1.5, true",
		},
		{
			name:     "null and time",
			query:    "SELECT ?, ?",
			args:     []any{nil, ts},
			expected: "SELECT NULL, '2024-03-01T12:30:00.0000005Z'",
		},
		{
			name:     "whitespace collapsed",
			query:    "SELECT *\n\t\tFROM capture_cycles\n\t\tLIMIT ?",
			args:     []any{10},
			expected: "SELECT * FROM capture_cycles LIMIT 10",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, InterpolateQuery(tt.query, tt.args))
		})
	}
}

func TestInterpolateQuery_StripsMonotonicClock(t *testing.T) {
	now := time.Now()
	got := InterpolateQuery("SELECT ?", []any{now})
	assert.NotContains(t, got, "m=")
}
