package symbols

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskSource_PutFetch(t *testing.T) {
	disk, err := NewDiskSource(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	req := Request{PdbName: "libnss3.so", BreakpadID: "abc123"}
	require.NoError(t, disk.Put(req, []byte(testSymFile)))

	assert.FileExists(t, disk.Path(req))
	assert.Equal(t, filepath.Join("libnss3.so", "ABC123", "libnss3.so.sym.zst"),
		disk.Path(req)[len(disk.dir)+1:])

	data, err := disk.Fetch(context.Background(), Request{PdbName: "libnss3.so", BreakpadID: "ABC123"})
	require.NoError(t, err)
	assert.Equal(t, testSymFile, string(data))
}

func TestDiskSource_Missing(t *testing.T) {
	disk, err := NewDiskSource(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	_, err = disk.Fetch(context.Background(), Request{PdbName: "libnss3.so", BreakpadID: "ABC123"})
	assert.ErrorIs(t, err, ErrSymbolNotFound)
}

func TestDiskSource_PlainFile(t *testing.T) {
	dir := t.TempDir()
	disk, err := NewDiskSource(dir, zerolog.Nop())
	require.NoError(t, err)

	entry := filepath.Join(dir, "xul.pdb", "ABC123")
	require.NoError(t, os.MkdirAll(entry, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(entry, "xul.sym"), []byte(testSymFile), 0o600))

	data, err := disk.Fetch(context.Background(), Request{PdbName: "xul.pdb", BreakpadID: "ABC123"})
	require.NoError(t, err)
	assert.Equal(t, testSymFile, string(data))
}

func TestDiskSource_CorruptEntry(t *testing.T) {
	disk, err := NewDiskSource(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	req := Request{PdbName: "libnss3.so", BreakpadID: "ABC123"}
	require.NoError(t, os.MkdirAll(filepath.Dir(disk.Path(req)), 0o700))
	require.NoError(t, os.WriteFile(disk.Path(req), []byte("not zstd"), 0o600))

	_, err = disk.Fetch(context.Background(), req)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrSymbolNotFound)
}

func TestDecompress_Limit(t *testing.T) {
	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	plain := bytes.Repeat([]byte("PUBLIC 1000 0 NSS_Init\n"), 4096)
	compressed := enc.EncodeAll(plain, nil)
	require.NoError(t, enc.Close())
	require.Less(t, len(compressed), 4096)

	_, err = decompress(compressed, 4096)
	assert.Error(t, err)

	data, err := decompress(compressed, uint64(len(plain)))
	require.NoError(t, err)
	assert.Equal(t, plain, data)
}

func TestDiskSource_RejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	disk, err := NewDiskSource(filepath.Join(dir, "cache"), zerolog.Nop())
	require.NoError(t, err)

	for _, req := range []Request{
		{PdbName: "..", BreakpadID: "ABC123"},
		{PdbName: "../../etc", BreakpadID: "ABC123"},
		{PdbName: "libnss3.so", BreakpadID: "a/b"},
		{PdbName: "", BreakpadID: "ABC123"},
	} {
		assert.ErrorIs(t, disk.Put(req, []byte(testSymFile)), ErrSymbolNotFound, "%+v", req)
		_, err := disk.Fetch(context.Background(), req)
		assert.ErrorIs(t, err, ErrSymbolNotFound, "%+v", req)
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestNewDiskSource_RequiresDir(t *testing.T) {
	_, err := NewDiskSource("", zerolog.Nop())
	assert.Error(t, err)
}
