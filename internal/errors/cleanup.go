// Package errors provides cleanup helpers that log instead of dropping errors.
package errors

import (
	"io"

	"github.com/rs/zerolog"
)

// DeferClose closes closer and logs a failure with msg.
// Use this in defer statements to avoid suppressing close errors.
func DeferClose(logger zerolog.Logger, closer io.Closer, msg string) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		logger.Warn().Err(err).Msg(msg)
	}
}
