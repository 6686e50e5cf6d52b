// Package viewer delivers captured profiles to viewer contexts and answers
// their symbol-table requests.
//
// A viewer context is a separate consumer, normally a browser tab attached
// to the Hub over a WebSocket, that receives one Init message and then asks
// for symbol tables as it needs them. Deliver ships the Init and returns a
// Subscription that serves those requests until the context closes.
package viewer

import (
	"context"
	"errors"
)

var (
	// ErrViewerOpenFailed is returned when a viewer context cannot be opened.
	ErrViewerOpenFailed = errors.New("viewer open failed")

	// ErrChannelSendFailed is returned when the Init message cannot be sent.
	ErrChannelSendFailed = errors.New("channel send failed")

	// ErrContextClosed is returned by Send and Receive after Close.
	ErrContextClosed = errors.New("viewer context closed")
)

// Context is an open viewer context.
type Context interface {
	// ID identifies the context for logs and status.
	ID() string

	// URL is the report URL the context was opened at.
	URL() string

	Send(ctx context.Context, msg Message) error

	// Receive blocks for the next message. It returns ErrContextClosed once
	// the context is closed from either side.
	Receive(ctx context.Context) (Message, error)

	Close() error

	// Done is closed when the context closes.
	Done() <-chan struct{}
}

// Opener opens viewer contexts at a report URL. Open returns once the
// context is ready to receive messages.
type Opener interface {
	Open(ctx context.Context, reportURL string) (Context, error)
}
