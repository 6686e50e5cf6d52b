package symbols

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"

	"github.com/digitarald/Gecko-Profiler-Addon/internal/safe"
)

const compressedExt = ".zst"

// DiskSource is a local symbol cache. Files live at
// {dir}/{pdbName}/{breakpadId}/{symFile}.zst; an uncompressed {symFile}
// placed there by hand is read as well.
type DiskSource struct {
	dir    string
	logger zerolog.Logger
}

// NewDiskSource creates the cache directory if needed.
func NewDiskSource(dir string, logger zerolog.Logger) (*DiskSource, error) {
	if dir == "" {
		return nil, errors.New("symbol cache directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create symbol cache directory: %w", err)
	}
	return &DiskSource{
		dir:    dir,
		logger: logger.With().Str("source", "disk").Logger(),
	}, nil
}

func (d *DiskSource) Name() string {
	return "disk"
}

// Path returns the compressed cache file for req.
func (d *DiskSource) Path(req Request) string {
	key := req.Key()
	return filepath.Join(d.dir, key.PdbName, key.BreakpadID, SymFileName(key.PdbName)+compressedExt)
}

// Fetch reads the cached file. A missing file is ErrSymbolNotFound.
func (d *DiskSource) Fetch(_ context.Context, req Request) ([]byte, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	path := d.Path(req)
	opts := &safe.ReadOptions{MaxSize: maxSymbolFileSize}

	compressed, err := safe.ReadFile(path, opts)
	if err == nil {
		return decompress(compressed, maxSymbolFileSize)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	plain, err := safe.ReadFile(path[:len(path)-len(compressedExt)], opts)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrSymbolNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read symbol file: %w", err)
	}
	return plain, nil
}

// Put stores data compressed. Concurrent writers of the same key are safe;
// the last rename wins.
func (d *DiskSource) Put(req Request, data []byte) error {
	if err := req.Validate(); err != nil {
		return err
	}
	path := d.Path(req)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create cache entry directory: %w", err)
	}

	err := safe.WriteFileAtomic(path, 0o600, func(w io.Writer) error {
		enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
		if err != nil {
			return err
		}
		if _, err := io.Copy(enc, bytes.NewReader(data)); err != nil {
			_ = enc.Close()
			return err
		}
		return enc.Close()
	})
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	d.logger.Debug().
		Str("pdb_name", req.PdbName).
		Str("breakpad_id", req.BreakpadID).
		Int("bytes", len(data)).
		Msg("Cached symbol file")
	return nil
}

// decompress expands a cache entry, refusing output larger than limit.
func decompress(compressed []byte, limit uint64) ([]byte, error) {
	dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(limit))
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	data, err := dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("corrupt symbol cache entry: %w", err)
	}
	return data, nil
}
