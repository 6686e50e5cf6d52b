package symbols

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/digitarald/Gecko-Profiler-Addon/internal/safe"
)

// ErrMalformed is returned for symbol files that cannot be parsed.
var ErrMalformed = errors.New("malformed symbol file")

const maxSymbolLine = 16 * 1024 * 1024

// Table is a resolved symbol table for one module. Addresses are sorted
// module-relative addresses; the name of Addresses[i] is
// Buffer[Indices[i]:Indices[i+1]]. Tables are immutable once built.
type Table struct {
	Addresses []uint32
	Indices   []uint32
	Buffer    []byte
}

// Len returns the number of symbols.
func (t *Table) Len() int {
	return len(t.Addresses)
}

// Name returns the name of the i-th symbol.
func (t *Table) Name(i int) string {
	return string(t.Buffer[t.Indices[i]:t.Indices[i+1]])
}

// Lookup returns the symbol covering addr: the one with the greatest
// address not above it.
func (t *Table) Lookup(addr uint32) (string, bool) {
	i := sort.Search(len(t.Addresses), func(i int) bool { return t.Addresses[i] > addr })
	if i == 0 {
		return "", false
	}
	return t.Name(i - 1), true
}

// MarshalJSON encodes the table as [addresses, indices, buffer].
func (t *Table) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{t.Addresses, t.Indices, t.Buffer})
}

// UnmarshalJSON decodes the [addresses, indices, buffer] form.
func (t *Table) UnmarshalJSON(data []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return err
	}
	if len(parts) != 3 {
		return fmt.Errorf("symbol table must have 3 parts, got %d", len(parts))
	}
	if err := json.Unmarshal(parts[0], &t.Addresses); err != nil {
		return fmt.Errorf("addresses: %w", err)
	}
	if err := json.Unmarshal(parts[1], &t.Indices); err != nil {
		return fmt.Errorf("indices: %w", err)
	}
	if err := json.Unmarshal(parts[2], &t.Buffer); err != nil {
		return fmt.Errorf("buffer: %w", err)
	}
	if len(t.Indices) != len(t.Addresses)+1 {
		return fmt.Errorf("indices length %d does not match %d addresses", len(t.Indices), len(t.Addresses))
	}
	return nil
}

type symbolEntry struct {
	name     string
	fromFunc bool
}

// ParseBreakpad builds a Table from a Breakpad .sym file. FUNC and PUBLIC
// records provide the symbols; a FUNC wins over a PUBLIC at the same
// address. When breakpadID is set, the MODULE header must carry it.
func ParseBreakpad(r io.Reader, breakpadID string) (*Table, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxSymbolLine)

	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
		}
		return nil, fmt.Errorf("%w: empty file", ErrMalformed)
	}
	header := strings.Fields(sc.Text())
	if len(header) < 4 || header[0] != "MODULE" {
		return nil, fmt.Errorf("%w: missing MODULE header", ErrMalformed)
	}
	if breakpadID != "" && !strings.EqualFold(header[3], breakpadID) {
		return nil, fmt.Errorf("%w: module id %s does not match %s", ErrMalformed, header[3], breakpadID)
	}

	entries := make(map[uint32]symbolEntry)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")

		var (
			addr uint32
			name string
			ok   bool
			fn   bool
		)
		switch {
		case strings.HasPrefix(line, "FUNC "):
			addr, name, ok = parseRecord(line[len("FUNC "):], 3)
			fn = true
		case strings.HasPrefix(line, "PUBLIC "):
			addr, name, ok = parseRecord(line[len("PUBLIC "):], 2)
		default:
			continue
		}
		if !ok {
			continue
		}

		if prev, exists := entries[addr]; exists && (prev.fromFunc || !fn) {
			continue
		}
		entries[addr] = symbolEntry{name: name, fromFunc: fn}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	return buildTable(entries), nil
}

// parseRecord splits "[m] addr f1 .. fN-1 name" where fields precede name.
func parseRecord(rest string, fields int) (uint32, string, bool) {
	rest = strings.TrimPrefix(rest, "m ")
	parts := strings.SplitN(rest, " ", fields+1)
	if len(parts) != fields+1 || parts[fields] == "" {
		return 0, "", false
	}
	addr, err := strconv.ParseUint(parts[0], 16, 32)
	if err != nil {
		return 0, "", false
	}
	return uint32(addr), parts[fields], true
}

func buildTable(entries map[uint32]symbolEntry) *Table {
	addrs := make([]uint32, 0, len(entries))
	size := 0
	for addr, e := range entries {
		addrs = append(addrs, addr)
		size += len(e.name)
	}
	slices.Sort(addrs)

	t := &Table{
		Addresses: addrs,
		Indices:   make([]uint32, 1, len(addrs)+1),
		Buffer:    make([]byte, 0, size),
	}
	for _, addr := range addrs {
		t.Buffer = append(t.Buffer, entries[addr].name...)
		offset, _ := safe.IntToUint32(len(t.Buffer))
		t.Indices = append(t.Indices, offset)
	}
	return t
}
