// Package history keeps a DuckDB log of collection cycles: when each ran,
// what it captured, how many libraries were primed, and whether the
// profile reached a viewer.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/digitarald/Gecko-Profiler-Addon/internal/duckdb"
)

// Cycle statuses.
const (
	StatusDelivered = "delivered"
	StatusFailed    = "failed"
)

const tableName = "capture_cycles"

// Cycle is one finished collection cycle.
type Cycle struct {
	ID           string    `json:"id"`
	ViewerID     string    `json:"viewerId,omitempty"`
	StartedAt    time.Time `json:"startedAt"`
	FinishedAt   time.Time `json:"finishedAt"`
	SourceURL    string    `json:"sourceUrl,omitempty"`
	ProfileBytes int       `json:"profileBytes"`
	SampleCount  int       `json:"sampleCount"`
	Libraries    []string  `json:"libraries,omitempty"`
	Primed       int       `json:"primed"`
	Status       string    `json:"status"`
	Error        string    `json:"error,omitempty"`
}

// Duration returns how long the cycle took.
func (c Cycle) Duration() time.Duration {
	return c.FinishedAt.Sub(c.StartedAt)
}

// cycleRow is the stored form of a Cycle. Library names are a JSON array.
type cycleRow struct {
	ID           string    `duckdb:"id,pk"`
	ViewerID     string    `duckdb:"viewer_id"`
	StartedAt    time.Time `duckdb:"started_at"`
	FinishedAt   time.Time `duckdb:"finished_at"`
	SourceURL    string    `duckdb:"source_url"`
	ProfileBytes int64     `duckdb:"profile_bytes"`
	SampleCount  int64     `duckdb:"sample_count"`
	Libraries    string    `duckdb:"libraries"`
	Primed       int64     `duckdb:"primed"`
	Status       string    `duckdb:"status"`
	Error        string    `duckdb:"error"`
}

// Filter narrows ListCycles. Zero values match everything.
type Filter struct {
	Status string
	Since  time.Time
	Limit  int
}

// Store records cycles in DuckDB.
type Store struct {
	db     *sql.DB
	table  *duckdb.Table[cycleRow]
	logger zerolog.Logger
}

// Open opens or creates the history database at path. duckdb.Memory keeps
// history in memory.
func Open(path string, logger zerolog.Logger) (*Store, error) {
	db, err := duckdb.OpenDB(path)
	if err != nil {
		return nil, err
	}
	s, err := New(db, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New creates a store on an open database, creating the schema.
func New(db *sql.DB, logger zerolog.Logger) (*Store, error) {
	s := &Store{
		db:     db,
		table:  duckdb.NewTable[cycleRow](db, tableName),
		logger: logger.With().Str("component", "history").Logger(),
	}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS capture_cycles (
			id            TEXT      PRIMARY KEY,
			viewer_id     TEXT      NOT NULL,
			started_at    TIMESTAMP NOT NULL,
			finished_at   TIMESTAMP NOT NULL,
			source_url    TEXT      NOT NULL,
			profile_bytes BIGINT    NOT NULL,
			sample_count  BIGINT    NOT NULL,
			libraries     TEXT      NOT NULL,
			primed        BIGINT    NOT NULL,
			status        TEXT      NOT NULL,
			error         TEXT      NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_capture_cycles_started_at
			ON capture_cycles (started_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// RecordCycle stores c. ID must be unique.
func (s *Store) RecordCycle(ctx context.Context, c Cycle) error {
	libs := c.Libraries
	if libs == nil {
		libs = []string{}
	}
	encoded, err := json.Marshal(libs)
	if err != nil {
		return fmt.Errorf("failed to encode libraries: %w", err)
	}

	row := &cycleRow{
		ID:           c.ID,
		ViewerID:     c.ViewerID,
		StartedAt:    c.StartedAt.UTC(),
		FinishedAt:   c.FinishedAt.UTC(),
		SourceURL:    c.SourceURL,
		ProfileBytes: int64(c.ProfileBytes),
		SampleCount:  int64(c.SampleCount),
		Libraries:    string(encoded),
		Primed:       int64(c.Primed),
		Status:       c.Status,
		Error:        c.Error,
	}
	if err := s.table.Insert(ctx, row); err != nil {
		return fmt.Errorf("failed to record cycle %s: %w", c.ID, err)
	}

	s.logger.Debug().
		Str("cycle_id", c.ID).
		Str("status", c.Status).
		Dur("duration", c.Duration()).
		Msg("Recorded collection cycle")
	return nil
}

// ListCycles returns cycles newest first.
func (s *Store) ListCycles(ctx context.Context, f Filter) ([]Cycle, error) {
	b := s.table.Query().
		TimeColumn("started_at").
		TimeRange(f.Since, time.Time{}).
		Eq("status", f.Status).
		OrderBy("-started_at").
		Limit(f.Limit)

	if s.logger.GetLevel() <= zerolog.TraceLevel {
		if query, args, err := b.Build(); err == nil {
			s.logger.Trace().Str("query", duckdb.InterpolateQuery(query, args)).Msg("Listing cycles")
		}
	}

	rows, err := s.table.List(ctx, b)
	if err != nil {
		return nil, err
	}

	cycles := make([]Cycle, 0, len(rows))
	for _, r := range rows {
		var libs []string
		if err := json.Unmarshal([]byte(r.Libraries), &libs); err != nil {
			return nil, fmt.Errorf("corrupt libraries for cycle %s: %w", r.ID, err)
		}
		cycles = append(cycles, Cycle{
			ID:           r.ID,
			ViewerID:     r.ViewerID,
			StartedAt:    r.StartedAt,
			FinishedAt:   r.FinishedAt,
			SourceURL:    r.SourceURL,
			ProfileBytes: int(r.ProfileBytes),
			SampleCount:  int(r.SampleCount),
			Libraries:    libs,
			Primed:       int(r.Primed),
			Status:       r.Status,
			Error:        r.Error,
		})
	}
	return cycles, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
