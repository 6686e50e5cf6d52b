package duckdb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"os"
	"path/filepath"

	duckdbDriver "github.com/marcboeker/go-duckdb"
)

// Memory is the path that opens a private in-memory database.
const Memory = ":memory:"

// bootQueries run on every pooled connection.
var bootQueries = []string{
	"SET TimeZone = 'UTC'",
}

// OpenDB opens the database at path, creating its directory. An empty path
// or Memory opens an in-memory database.
func OpenDB(path string) (*sql.DB, error) {
	dsn := path
	if path == Memory {
		dsn = ""
	}
	if dsn != "" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	connector, err := duckdbDriver.NewConnector(dsn, func(execer driver.ExecerContext) error {
		ctx := context.Background()
		for _, query := range bootQueries {
			// Non-fatal: TimeZone needs the ICU extension.
			_, _ = execer.ExecContext(ctx, query, nil)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb %q: %w", path, err)
	}

	return sql.OpenDB(connector), nil
}
