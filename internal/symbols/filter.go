package symbols

import (
	"strings"

	"github.com/digitarald/Gecko-Profiler-Addon/internal/engine"
)

// MatchPrefix returns the libraries whose pdb name starts with prefix,
// ignoring case. An empty prefix matches everything.
func MatchPrefix(libs []engine.SharedLibrary, prefix string) []engine.SharedLibrary {
	prefix = strings.ToLower(prefix)
	var out []engine.SharedLibrary
	for _, lib := range libs {
		if strings.HasPrefix(strings.ToLower(lib.PdbName), prefix) {
			out = append(out, lib)
		}
	}
	return out
}

// RequestFor builds the lookup request for a loaded library.
func RequestFor(lib engine.SharedLibrary, platform engine.Platform) Request {
	return Request{
		PdbName:    lib.PdbName,
		BreakpadID: lib.BreakpadID,
		Name:       lib.Name,
		Platform:   platform.Platform,
		Arch:       platform.Arch,
	}
}
