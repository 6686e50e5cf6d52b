package session

import "github.com/rs/zerolog"

// Notification titles.
const (
	NotifyStarted             = "Profiler started!"
	NotifyStopped             = "Stopped Profiler"
	NotifyAutoCaptureEnabled  = "Enabled auto profiling page load"
	NotifyAutoCaptureDisabled = "Disabled auto profiling page load"
)

// Notifier surfaces user-visible notifications.
type Notifier interface {
	Notify(title string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(title string)

func (f NotifierFunc) Notify(title string) { f(title) }

// LogNotifier writes notifications to the log.
type LogNotifier struct {
	Logger zerolog.Logger
}

func (n LogNotifier) Notify(title string) {
	n.Logger.Info().Str("notification", title).Msg(title)
}
