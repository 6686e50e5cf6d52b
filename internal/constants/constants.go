// Package constants defines shared configuration constants.
package constants

const (
	ConfigFile = "config.yaml"

	DefaultDir = ".gecko-profiler"

	// DefaultSymbolCacheDir is relative to the user's home directory.
	DefaultSymbolCacheDir = DefaultDir + "/" + "symbols"

	DefaultHistoryDatabasePath = DefaultDir + "/" + "history.duckdb"

	// EnvPrefix prefixes every environment variable the config layer reads.
	EnvPrefix = "GECKO_PROFILER_"

	// EnvConfigDir overrides the base directory holding config.yaml.
	EnvConfigDir = EnvPrefix + "CONFIG"
)
