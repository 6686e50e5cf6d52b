// Package symbols resolves native modules, keyed by (pdbName, breakpadId),
// into symbol tables.
//
// A Store consults an in-memory LRU first and then each configured Source
// in order: normally a DiskSource holding zstd-compressed .sym files and an
// HTTPSource speaking the Breakpad symbol-server layout. Whatever a later
// source returns is written through to earlier sources that accept writes.
package symbols

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSymbolNotFound is returned when no source knows the module.
	ErrSymbolNotFound = errors.New("symbols not found")

	// ErrSourceUnreachable is returned when a source cannot be contacted.
	ErrSourceUnreachable = errors.New("symbol source unreachable")
)

// Request identifies a module. PdbName and BreakpadID form the key; the
// remaining fields are metadata some sources use.
type Request struct {
	PdbName    string `json:"pdbName"`
	BreakpadID string `json:"breakpadId"`
	Name       string `json:"name,omitempty"`
	Platform   string `json:"platform,omitempty"`
	Arch       string `json:"arch,omitempty"`
}

// Key is the cache key of a Request.
type Key struct {
	PdbName    string
	BreakpadID string
}

func (k Key) String() string {
	return k.PdbName + "/" + k.BreakpadID
}

// Key returns the cache key. Breakpad IDs compare case-insensitively.
func (r Request) Key() Key {
	return Key{PdbName: r.PdbName, BreakpadID: strings.ToUpper(r.BreakpadID)}
}

// Validate rejects requests that cannot name a module. Both key parts end up
// in URLs and file paths, so separators and dot segments are refused.
func (r Request) Validate() error {
	fields := [...]struct{ name, value string }{
		{"pdbName", r.PdbName},
		{"breakpadId", r.BreakpadID},
	}
	for _, f := range fields {
		field, v := f.name, f.value
		if v == "" {
			return fmt.Errorf("%w: %s is required", ErrSymbolNotFound, field)
		}
		if v == "." || v == ".." || strings.ContainsAny(v, `/\`) || strings.ContainsRune(v, 0) {
			return fmt.Errorf("%w: invalid %s %q", ErrSymbolNotFound, field, v)
		}
	}
	return nil
}

// SymFileName returns the .sym file name for a pdb name: "xul.pdb" becomes
// "xul.sym", "libxul.so" becomes "libxul.so.sym".
func SymFileName(pdbName string) string {
	if base, ok := strings.CutSuffix(pdbName, ".pdb"); ok {
		return base + ".sym"
	}
	return pdbName + ".sym"
}

// Source fetches raw Breakpad .sym text for a module.
type Source interface {
	Name() string
	Fetch(ctx context.Context, req Request) ([]byte, error)
}

// Writer is implemented by sources that can store fetched symbol files.
type Writer interface {
	Put(req Request, data []byte) error
}

// LookupError reports a failed resolution. It unwraps to Kind, which is
// ErrSymbolNotFound or ErrSourceUnreachable.
type LookupError struct {
	Key  Key
	Kind error
	Err  error
}

func (e *LookupError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Key, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Key, e.Err)
}

func (e *LookupError) Unwrap() error {
	return e.Kind
}
