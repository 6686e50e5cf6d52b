package engine

import (
	"bytes"
	"context"
	"debug/elf"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v4/process"
)

const (
	ntGNUBuildID = 3

	// textHashSize is how much of .text is folded into a fallback identifier.
	textHashSize = 4096
)

// LoadedLibraries lists the ELF files mapped into process pid. Mappings that
// are anonymous, deleted, or not ELF are skipped.
func LoadedLibraries(ctx context.Context, pid int32) ([]SharedLibrary, error) {
	proc, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return nil, fmt.Errorf("failed to open process %d: %w", pid, err)
	}

	maps, err := proc.MemoryMapsWithContext(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("failed to read memory maps of %d: %w", pid, err)
	}
	if maps == nil {
		return nil, nil
	}

	seen := make(map[string]struct{})
	var libs []SharedLibrary
	for _, m := range *maps {
		path := m.Path
		if !filepath.IsAbs(path) || strings.HasSuffix(path, "(deleted)") {
			continue
		}
		if _, ok := seen[path]; ok {
			continue
		}
		seen[path] = struct{}{}

		id, err := BreakpadID(path)
		if err != nil {
			continue
		}

		name := filepath.Base(path)
		libs = append(libs, SharedLibrary{
			Name:       name,
			PdbName:    name,
			BreakpadID: id,
			Path:       path,
		})
	}

	return libs, nil
}

// BreakpadID returns the Breakpad module identifier of an ELF file: the GNU
// build-id rendered as a GUID plus a zero age. Files without a build-id note
// fall back to the first page of .text XOR-folded into 16 bytes, the same
// identifier dump_syms derives, so symbol servers index the file under it.
func BreakpadID(path string) (string, error) {
	f, err := elf.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open ELF file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if id := gnuBuildID(f); len(id) > 0 {
		return breakpadIDFromBytes(id), nil
	}

	text := f.Section(".text")
	if text == nil {
		return "", fmt.Errorf("%s has neither a build-id nor a .text section", path)
	}
	data := make([]byte, min(text.Size, textHashSize))
	if _, err := io.ReadFull(text.Open(), data); err != nil {
		return "", fmt.Errorf("failed to read .text: %w", err)
	}
	return breakpadIDFromBytes(foldText(data)), nil
}

// gnuBuildID returns the NT_GNU_BUILD_ID descriptor, or nil.
func gnuBuildID(f *elf.File) []byte {
	for _, section := range f.Sections {
		if section.Type != elf.SHT_NOTE {
			continue
		}
		data, err := section.Data()
		if err != nil {
			continue
		}
		if id := findBuildIDNote(data, f.ByteOrder); id != nil {
			return id
		}
	}
	return nil
}

// findBuildIDNote walks an ELF note section:
// namesz(4) descsz(4) type(4) name(namesz, 4-aligned) desc(descsz, 4-aligned).
func findBuildIDNote(data []byte, order binary.ByteOrder) []byte {
	for len(data) >= 12 {
		namesz := int(order.Uint32(data[0:4]))
		descsz := int(order.Uint32(data[4:8]))
		typ := order.Uint32(data[8:12])
		data = data[12:]

		nameEnd := align4(namesz)
		descEnd := nameEnd + align4(descsz)
		if namesz < 0 || descsz < 0 || descEnd > len(data) || nameEnd+descsz > len(data) {
			return nil
		}

		name := data[:namesz]
		if typ == ntGNUBuildID && bytes.Equal(bytes.TrimRight(name, "\x00"), []byte("GNU")) {
			return bytes.Clone(data[nameEnd : nameEnd+descsz])
		}
		data = data[descEnd:]
	}
	return nil
}

func align4(n int) int {
	return (n + 3) &^ 3
}

// foldText XORs data into a 16-byte identifier.
func foldText(data []byte) []byte {
	id := make([]byte, 16)
	for i, b := range data {
		id[i%16] ^= b
	}
	return id
}

// breakpadIDFromBytes renders the first 16 bytes of id as a GUID with its
// first three fields byte-swapped, uppercased, with age 0 appended.
func breakpadIDFromBytes(id []byte) string {
	guid := make([]byte, 16)
	copy(guid, id)

	swap := func(b []byte) {
		for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
			b[i], b[j] = b[j], b[i]
		}
	}
	swap(guid[0:4])
	swap(guid[4:6])
	swap(guid[6:8])

	return strings.ToUpper(hex.EncodeToString(guid)) + "0"
}
