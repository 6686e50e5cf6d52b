package config

import (
	"os"
	"path/filepath"
	"slices"

	"github.com/digitarald/Gecko-Profiler-Addon/internal/constants"
)

// DefaultConfig returns the configuration used when no file or environment
// overrides exist.
func DefaultConfig() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}

	return &Config{
		Profiler: ProfilerSettings{
			BufferEntries:      constants.DefaultBufferEntries,
			SamplingIntervalMs: constants.DefaultSamplingIntervalMs,
			Features:           slices.Clone(constants.DefaultProfilerFeatures),
			Threads:            []string{constants.DefaultProfilerThread},
		},
		Session: SessionConfig{
			AutoCapture:         true,
			AutoCaptureDelay:    constants.DefaultAutoCaptureDelay,
			RestartDelay:        constants.DefaultRestartDelay,
			RestartAfterCollect: true,
			StartOnLaunch:       true,
		},
		Viewer: ViewerConfig{
			ReportURL:  constants.DefaultReportURL,
			ListenAddr: constants.DefaultListenAddr,
		},
		Symbols: SymbolsConfig{
			ServerURL:        constants.DefaultSymbolServerURL,
			CacheDir:         filepath.Join(home, constants.DefaultSymbolCacheDir),
			CacheEntries:     constants.DefaultSymbolCacheEntries,
			PrimeConcurrency: constants.DefaultPrimeConcurrency,
			FetchRetries:     constants.DefaultSymbolFetchRetries,
			FetchBackoff:     constants.DefaultSymbolFetchBackoff,
		},
		History: HistoryConfig{
			Enabled:      true,
			DatabasePath: filepath.Join(home, constants.DefaultHistoryDatabasePath),
		},
		Hotkeys: HotkeyConfig{
			StartStop:   constants.DefaultHotkeyStartStop,
			Collect:     constants.DefaultHotkeyCollect,
			AutoCapture: constants.DefaultHotkeyAutoCapture,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Pretty: true,
		},
	}
}
