package testutil

import (
	"os"
	"testing"

	"github.com/rs/zerolog"
)

// EnvTestLogs enables component logs in tests when set to any value.
const EnvTestLogs = "GECKO_PROFILER_TEST_LOGS"

// NewTestLogger returns a silent logger, or one that writes through t.Log
// when EnvTestLogs is set, which helps when a timer-driven test flakes.
func NewTestLogger(t *testing.T) zerolog.Logger {
	t.Helper()
	if os.Getenv(EnvTestLogs) == "" {
		return zerolog.Nop()
	}
	return zerolog.New(zerolog.NewTestWriter(t)).
		Level(zerolog.DebugLevel).
		With().Timestamp().Str("test", t.Name()).Logger()
}
