package symbols

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"

	"github.com/digitarald/Gecko-Profiler-Addon/internal/retry"
	"github.com/digitarald/Gecko-Profiler-Addon/pkg/version"
)

// maxSymbolFileSize bounds a single downloaded .sym file.
const maxSymbolFileSize = 512 << 20

// HTTPSource fetches .sym files from a Breakpad symbol server laid out as
// {server}/{pdbName}/{breakpadId}/{symFile}.
type HTTPSource struct {
	base   *url.URL
	client *http.Client
	retry  retry.Config
	logger zerolog.Logger
}

// NewHTTPSource creates a source for serverURL. A nil client uses a client
// without timeout; symbol files for large modules take a while.
func NewHTTPSource(serverURL string, client *http.Client, retryCfg retry.Config, logger zerolog.Logger) (*HTTPSource, error) {
	base, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid symbol server URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid symbol server URL %q: scheme must be http or https", serverURL)
	}
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPSource{
		base:   base,
		client: client,
		retry:  retryCfg,
		logger: logger.With().Str("source", "http").Str("server", base.Host).Logger(),
	}, nil
}

func (s *HTTPSource) Name() string {
	return "http:" + s.base.Host
}

// URL returns the download URL for req.
func (s *HTTPSource) URL(req Request) string {
	u := s.base.JoinPath(req.PdbName, req.BreakpadID, SymFileName(req.PdbName))
	if req.Name != "" && req.Name != req.PdbName {
		q := u.Query()
		q.Set("code_file", req.Name)
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// Fetch downloads the .sym file. Network failures, 429 and 5xx responses
// are retried; 404 is final.
func (s *HTTPSource) Fetch(ctx context.Context, req Request) ([]byte, error) {
	target := s.URL(req)

	var data []byte
	err := retry.Do(ctx, s.retry, func() error {
		var err error
		data, err = s.fetchOnce(ctx, target)
		if err != nil && errors.Is(err, ErrSourceUnreachable) {
			s.logger.Debug().
				Err(err).
				Str("pdb_name", req.PdbName).
				Str("breakpad_id", req.BreakpadID).
				Msg("Symbol fetch attempt failed")
		}
		return err
	}, func(err error) bool {
		return errors.Is(err, ErrSourceUnreachable)
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *HTTPSource) fetchOnce(ctx context.Context, target string) ([]byte, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, "GET", target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create symbol request: %w", err)
	}
	req.Header.Set("User-Agent", version.UserAgent())
	req.Header.Set("Accept-Encoding", "zstd, gzip")

	resp, err := s.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %w", ErrSourceUnreachable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrSymbolNotFound
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: server returned status %d", ErrSourceUnreachable, resp.StatusCode)
	default:
		return nil, fmt.Errorf("%w: server returned status %d", ErrSymbolNotFound, resp.StatusCode)
	}

	var reader io.Reader = resp.Body
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to create gzip reader: %w", ErrSourceUnreachable, err)
		}
		defer func() { _ = gz.Close() }()
		reader = gz
	case "zstd":
		dec, err := zstd.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to create zstd reader: %w", ErrSourceUnreachable, err)
		}
		defer dec.Close()
		reader = dec
	}

	data, err := io.ReadAll(io.LimitReader(reader, maxSymbolFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read symbol file: %w", ErrSourceUnreachable, err)
	}
	if len(data) > maxSymbolFileSize {
		return nil, fmt.Errorf("symbol file exceeds maximum allowed size of %d bytes", maxSymbolFileSize)
	}

	s.logger.Debug().
		Str("url", target).
		Int("bytes", len(data)).
		Dur("duration", time.Since(start)).
		Msg("Downloaded symbol file")

	return data, nil
}
