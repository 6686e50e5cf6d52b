package constants

import "time"

// Profiler settings, matching the add-on's fixed sampling configuration.
const (
	DefaultBufferEntries = 10000000

	DefaultSamplingIntervalMs = 0.1

	DefaultProfilerThread = "GeckoMain"
)

// DefaultProfilerFeatures are the engine features enabled at start.
var DefaultProfilerFeatures = []string{"stackwalk", "threads", "leaf"}

// Session timing.
const (
	// DefaultAutoCaptureDelay debounces page loads before a collection.
	DefaultAutoCaptureDelay = 1 * time.Second

	// DefaultRestartDelay lets the engine quiesce between stop and start.
	DefaultRestartDelay = 1 * time.Millisecond
)

// Viewer and control API.
const (
	DefaultReportURL = "https://perf-html.io/from-addon/"

	DefaultListenAddr = "127.0.0.1:8710"

	// DefaultClientTimeout bounds CLI calls to the daemon, except collect.
	DefaultClientTimeout = 10 * time.Second
)

// Symbol store.
const (
	DefaultSymbolServerURL = "https://symbols.mozilla.org/"

	// DefaultSymbolCacheEntries is large enough to hold every library of a
	// single browser session.
	DefaultSymbolCacheEntries = 1 << 16

	DefaultPrimeConcurrency = 4

	DefaultSymbolFetchRetries = 3

	DefaultSymbolFetchBackoff = 200 * time.Millisecond
)

// Hotkey combos. Registration happens outside the daemon; these are the
// bindings advertised to it.
const (
	DefaultHotkeyStartStop   = "control-shift-5"
	DefaultHotkeyCollect     = "control-shift-6"
	DefaultHotkeyAutoCapture = "control-shift-7"
)
