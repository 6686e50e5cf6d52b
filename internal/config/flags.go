package config

import (
	"github.com/spf13/pflag"
)

// Flag names understood by the flag layer.
const (
	FlagListen        = "listen"
	FlagReportURL     = "report-url"
	FlagSymbolServer  = "symbol-server"
	FlagLogLevel      = "log-level"
	FlagNoAutoCapture = "no-auto-capture"
	FlagNoHistory     = "no-history"
)

// RegisterFlags adds the overridable settings to fs. Defaults are left empty
// so that only flags the user actually sets take effect.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String(FlagListen, "", "control API and viewer listen address")
	fs.String(FlagReportURL, "", "report viewer base URL")
	fs.String(FlagSymbolServer, "", "remote symbol server URL")
	fs.String(FlagLogLevel, "", "log level (trace, debug, info, warn, error)")
	fs.Bool(FlagNoAutoCapture, false, "start with capture-on-page-load disabled")
	fs.Bool(FlagNoHistory, false, "do not record collections in the history database")
}

func applyFlags(cfg *Config, fs *pflag.FlagSet) error {
	strs := map[string]*string{
		FlagListen:       &cfg.Viewer.ListenAddr,
		FlagReportURL:    &cfg.Viewer.ReportURL,
		FlagSymbolServer: &cfg.Symbols.ServerURL,
		FlagLogLevel:     &cfg.Logging.Level,
	}
	for name, dst := range strs {
		if fs.Lookup(name) == nil || !fs.Changed(name) {
			continue
		}
		v, err := fs.GetString(name)
		if err != nil {
			return err
		}
		*dst = v
	}

	bools := map[string]*bool{
		FlagNoAutoCapture: &cfg.Session.AutoCapture,
		FlagNoHistory:     &cfg.History.Enabled,
	}
	for name, dst := range bools {
		if fs.Lookup(name) == nil || !fs.Changed(name) {
			continue
		}
		v, err := fs.GetBool(name)
		if err != nil {
			return err
		}
		*dst = !v
	}

	return nil
}
