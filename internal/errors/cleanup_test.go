package errors

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type mockCloser struct {
	closeErr error
	closed   bool
}

func (m *mockCloser) Close() error {
	m.closed = true
	return m.closeErr
}

func TestDeferClose(t *testing.T) {
	tests := []struct {
		name       string
		closer     *mockCloser
		wantLogged bool
	}{
		{name: "successful close", closer: &mockCloser{}},
		{name: "close with error", closer: &mockCloser{closeErr: errors.New("close failed")}, wantLogged: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			DeferClose(zerolog.New(&buf), tt.closer, "failed to close viewer context")

			assert.True(t, tt.closer.closed)
			assert.Equal(t, tt.wantLogged, buf.Len() > 0)
			if tt.wantLogged {
				assert.Contains(t, buf.String(), "failed to close viewer context")
			}
		})
	}
}

func TestDeferClose_NilCloser(t *testing.T) {
	var buf bytes.Buffer
	var closer io.Closer

	DeferClose(zerolog.New(&buf), closer, "unused")

	assert.Zero(t, buf.Len())
}
