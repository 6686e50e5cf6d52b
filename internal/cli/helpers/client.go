package helpers

import (
	"net/http"
	"os"

	"github.com/digitarald/Gecko-Profiler-Addon/internal/config"
	"github.com/digitarald/Gecko-Profiler-Addon/internal/constants"
	"github.com/digitarald/Gecko-Profiler-Addon/internal/httpapi"
)

// EnvDaemonAddr overrides the daemon address for CLI commands.
const EnvDaemonAddr = constants.EnvPrefix + "ADDR"

// DaemonAddr resolves the control API address.
// Priority: --addr flag > GECKO_PROFILER_ADDR > config viewer.listen_addr > default.
func DaemonAddr(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if addr := os.Getenv(EnvDaemonAddr); addr != "" {
		return addr
	}

	loader := config.NewLayeredLoader()
	if cfg, err := loader.Load(config.DefaultConfigPath()); err == nil && cfg.Viewer.ListenAddr != "" {
		return cfg.Viewer.ListenAddr
	}
	return constants.DefaultListenAddr
}

// NewDaemonClient returns a control API client with the default request
// timeout.
func NewDaemonClient(flagValue string) *httpapi.Client {
	return httpapi.NewClient(DaemonAddr(flagValue), &http.Client{Timeout: constants.DefaultClientTimeout})
}

// NewLongDaemonClient returns a client without a request timeout, for calls
// that wait on a browser (collect --wait).
func NewLongDaemonClient(flagValue string) *httpapi.Client {
	return httpapi.NewClient(DaemonAddr(flagValue), &http.Client{})
}
