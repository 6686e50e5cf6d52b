// Package config provides configuration loading and management for the
// profiler daemon and its CLI.
package config

import "time"

// Config is the complete daemon configuration.
type Config struct {
	Profiler ProfilerSettings `yaml:"profiler"`
	Session  SessionConfig    `yaml:"session"`
	Viewer   ViewerConfig     `yaml:"viewer"`
	Symbols  SymbolsConfig    `yaml:"symbols"`
	History  HistoryConfig    `yaml:"history"`
	Hotkeys  HotkeyConfig     `yaml:"hotkeys"`
	Logging  LoggingConfig    `yaml:"logging"`
}

// ProfilerSettings is the fixed sampling configuration handed to the engine.
type ProfilerSettings struct {
	// BufferEntries is the size of the engine's sample buffer.
	BufferEntries int `yaml:"buffer_entries" env:"GECKO_PROFILER_BUFFER_ENTRIES"`

	// SamplingIntervalMs is the time between samples in milliseconds.
	SamplingIntervalMs float64 `yaml:"sampling_interval_ms" env:"GECKO_PROFILER_SAMPLING_INTERVAL_MS"`

	// Features are engine feature flags (stackwalk, threads, leaf).
	Features []string `yaml:"features" env:"GECKO_PROFILER_FEATURES"`

	// Threads restricts sampling to the named threads.
	Threads []string `yaml:"threads" env:"GECKO_PROFILER_THREADS"`
}

// IntervalSeconds converts the sampling interval to the engine's unit.
func (s ProfilerSettings) IntervalSeconds() float64 {
	return s.SamplingIntervalMs / 1000
}

// SessionConfig controls the session orchestrator.
type SessionConfig struct {
	// AutoCapture is the initial state of capture-on-page-load.
	AutoCapture bool `yaml:"auto_capture" env:"GECKO_PROFILER_AUTO_CAPTURE"`

	// AutoCaptureDelay debounces page loads before collecting.
	AutoCaptureDelay time.Duration `yaml:"auto_capture_delay" env:"GECKO_PROFILER_AUTO_CAPTURE_DELAY"`

	// RestartDelay is the pause between stopping and restarting the engine.
	RestartDelay time.Duration `yaml:"restart_delay" env:"GECKO_PROFILER_RESTART_DELAY"`

	// RestartAfterCollect re-arms the engine once a collection is delivered.
	RestartAfterCollect bool `yaml:"restart_after_collect" env:"GECKO_PROFILER_RESTART_AFTER_COLLECT"`

	// StartOnLaunch starts the engine when the daemon starts.
	StartOnLaunch bool `yaml:"start_on_launch" env:"GECKO_PROFILER_START_ON_LAUNCH"`
}

// ViewerConfig controls the report viewer and the local endpoint it
// connects back to.
type ViewerConfig struct {
	// ReportURL is the viewer's base URL. Navigations under it never
	// trigger an automatic capture.
	ReportURL string `yaml:"report_url" env:"GECKO_PROFILER_REPORT_URL"`

	// ListenAddr is the control API and WebSocket listen address.
	ListenAddr string `yaml:"listen_addr" env:"GECKO_PROFILER_LISTEN_ADDR"`

	// BrowserCommand opens a URL in a browser. Empty selects the platform
	// default (xdg-open, open, rundll32).
	BrowserCommand string `yaml:"browser_command" env:"GECKO_PROFILER_BROWSER_COMMAND"`

	// OpenTimeout bounds the wait for a viewer to connect. Zero waits forever.
	OpenTimeout time.Duration `yaml:"open_timeout" env:"GECKO_PROFILER_OPEN_TIMEOUT"`
}

// SymbolsConfig controls the symbol store.
type SymbolsConfig struct {
	ServerURL        string        `yaml:"server_url" env:"GECKO_PROFILER_SYMBOL_SERVER"`
	CacheDir         string        `yaml:"cache_dir" env:"GECKO_PROFILER_SYMBOL_CACHE_DIR"`
	CacheEntries     uint32        `yaml:"cache_entries" env:"GECKO_PROFILER_SYMBOL_CACHE_ENTRIES"`
	PrimeConcurrency int           `yaml:"prime_concurrency" env:"GECKO_PROFILER_PRIME_CONCURRENCY"`
	FetchRetries     int           `yaml:"fetch_retries" env:"GECKO_PROFILER_SYMBOL_FETCH_RETRIES"`
	FetchBackoff     time.Duration `yaml:"fetch_backoff" env:"GECKO_PROFILER_SYMBOL_FETCH_BACKOFF"`
}

// HistoryConfig controls the collection history database.
type HistoryConfig struct {
	Enabled      bool   `yaml:"enabled" env:"GECKO_PROFILER_HISTORY_ENABLED"`
	DatabasePath string `yaml:"database_path" env:"GECKO_PROFILER_HISTORY_DB"`
}

// HotkeyConfig lists the key combos bound to daemon actions.
type HotkeyConfig struct {
	StartStop   string `yaml:"start_stop"`
	Collect     string `yaml:"collect"`
	AutoCapture string `yaml:"auto_capture"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"GECKO_PROFILER_LOG_LEVEL"`
	Pretty bool   `yaml:"pretty" env:"GECKO_PROFILER_LOG_PRETTY"`
}
