package symbols

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSymFile = `MODULE Linux x86_64 ABC123 libnss3.so
INFO CODE_ID 23C1B0AB
FILE 0 /builds/nss/lib/nss/nssinit.c
FUNC 2000 40 0 NSS_Init
2000 10 120 0
PUBLIC 1000 0 _init
PUBLIC m 2000 0 NSS_Init_public
FUNC m 3000 8 0 NSS_Shutdown
STACK CFI INIT 2000 40 .cfa: $rsp 8 +
PUBLIC 2800 0 nss_helper with spaces
`

func TestParseBreakpad(t *testing.T) {
	table, err := ParseBreakpad(strings.NewReader(testSymFile), "ABC123")
	require.NoError(t, err)

	assert.Equal(t, []uint32{0x1000, 0x2000, 0x2800, 0x3000}, table.Addresses)
	require.Len(t, table.Indices, len(table.Addresses)+1)
	assert.Equal(t, uint32(0), table.Indices[0])
	assert.Equal(t, uint32(len(table.Buffer)), table.Indices[len(table.Indices)-1])

	assert.Equal(t, "_init", table.Name(0))
	assert.Equal(t, "NSS_Init", table.Name(1), "FUNC wins over PUBLIC at the same address")
	assert.Equal(t, "nss_helper with spaces", table.Name(2))
	assert.Equal(t, "NSS_Shutdown", table.Name(3))
}

func TestParseBreakpad_IDComparison(t *testing.T) {
	_, err := ParseBreakpad(strings.NewReader(testSymFile), "abc123")
	assert.NoError(t, err, "ids compare case-insensitively")

	_, err = ParseBreakpad(strings.NewReader(testSymFile), "DEF456")
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = ParseBreakpad(strings.NewReader(testSymFile), "")
	assert.NoError(t, err, "empty id skips the check")
}

func TestParseBreakpad_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "empty", input: ""},
		{name: "no header", input: "FUNC 1000 10 0 main\n"},
		{name: "short header", input: "MODULE Linux x86_64\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseBreakpad(strings.NewReader(tt.input), "")
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestParseBreakpad_SkipsBadRecords(t *testing.T) {
	input := "MODULE Linux x86_64 ABC123 libfoo.so\r\n" +
		"FUNC zzzz 10 0 bad_address\r\n" +
		"FUNC 1000 10 0\r\n" +
		"PUBLIC 1100 0 good\r\n"

	table, err := ParseBreakpad(strings.NewReader(input), "ABC123")
	require.NoError(t, err)
	require.Equal(t, 1, table.Len())
	assert.Equal(t, "good", table.Name(0))
}

func TestTable_Lookup(t *testing.T) {
	table, err := ParseBreakpad(strings.NewReader(testSymFile), "ABC123")
	require.NoError(t, err)

	_, ok := table.Lookup(0x0fff)
	assert.False(t, ok)

	name, ok := table.Lookup(0x2010)
	require.True(t, ok)
	assert.Equal(t, "NSS_Init", name)

	name, ok = table.Lookup(0xffff)
	require.True(t, ok)
	assert.Equal(t, "NSS_Shutdown", name)
}

func TestTable_JSON(t *testing.T) {
	table, err := ParseBreakpad(strings.NewReader(testSymFile), "ABC123")
	require.NoError(t, err)

	data, err := json.Marshal(table)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "[[4096,8192,10240,12288],[0,"))

	var decoded Table
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, table, &decoded)

	assert.Error(t, json.Unmarshal([]byte(`[[1],[0],""]`), &decoded), "indices must have one more entry")
	assert.Error(t, json.Unmarshal([]byte(`[[1],[0,1]]`), &decoded))
}

func TestParseBreakpad_EmptyModule(t *testing.T) {
	table, err := ParseBreakpad(strings.NewReader("MODULE Linux x86_64 ABC123 libempty.so\n"), "ABC123")
	require.NoError(t, err)
	assert.Equal(t, 0, table.Len())

	data, err := json.Marshal(table)
	require.NoError(t, err)
	assert.JSONEq(t, `[[],[0],""]`, string(data))
}
