package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/digitarald/Gecko-Profiler-Addon/internal/retry"
)

// Execer is an interface that matches both *sql.DB and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Table maps struct type T onto a table through `duckdb` field tags.
type Table[T any] struct {
	db        Execer
	tableName string
	columns   []string
	fieldMap  map[string]int // column name to field index
}

// NewTable creates a new Table[T] instance.
// T must be a struct with `duckdb` tags.
func NewTable[T any](db Execer, tableName string) *Table[T] {
	var zero T
	t := reflect.TypeOf(zero)
	if t.Kind() != reflect.Struct {
		panic("Table generic type T must be a struct")
	}

	var columns []string
	fieldMap := make(map[string]int)
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("duckdb")
		if tag == "" || tag == "-" {
			continue
		}
		colName := strings.TrimSpace(strings.Split(tag, ",")[0])
		columns = append(columns, colName)
		fieldMap[colName] = i
	}

	return &Table[T]{
		db:        db,
		tableName: tableName,
		columns:   columns,
		fieldMap:  fieldMap,
	}
}

// Name returns the table name.
func (t *Table[T]) Name() string {
	return t.tableName
}

// Columns returns the mapped column names in field order.
func (t *Table[T]) Columns() []string {
	return append([]string(nil), t.columns...)
}

// Insert inserts item, retrying on transaction conflicts.
func (t *Table[T]) Insert(ctx context.Context, item *T) error {
	placeholders := make([]string, len(t.columns))
	values := make([]any, len(t.columns))

	val := reflect.ValueOf(item).Elem()
	for i, col := range t.columns {
		placeholders[i] = "?"
		values[i] = val.Field(t.fieldMap[col]).Interface()
	}

	// #nosec G201 - table and column names are not user input, they come from struct tags
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		t.tableName,
		strings.Join(t.columns, ", "),
		strings.Join(placeholders, ", "),
	)

	cfg := retry.Config{
		MaxRetries:     10,
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     500 * time.Millisecond,
		Jitter:         0.1,
	}

	return retry.Do(ctx, cfg, func() error {
		_, err := t.db.ExecContext(ctx, query, values...)
		return err
	}, isTransactionConflict)
}

// Query returns the builder pre-selecting this table's columns.
func (t *Table[T]) Query() *Builder {
	return NewQueryBuilder(t.tableName).Select(t.columns...)
}

// List runs a query built by Query and scans every row.
func (t *Table[T]) List(ctx context.Context, b *Builder) ([]*T, error) {
	query, args, err := b.Build()
	if err != nil {
		return nil, err
	}

	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", t.tableName, err)
	}
	defer func() { _ = rows.Close() }()

	var items []*T
	for rows.Next() {
		item, err := t.scanRows(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", t.tableName, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s: %w", t.tableName, err)
	}
	return items, nil
}

// scanRows scans the current row from rows into T.
func (t *Table[T]) scanRows(rows *sql.Rows) (*T, error) {
	var item T
	val := reflect.ValueOf(&item).Elem()
	dest := make([]any, len(t.columns))

	for i, col := range t.columns {
		dest[i] = val.Field(t.fieldMap[col]).Addr().Interface()
	}

	if err := rows.Scan(dest...); err != nil {
		return nil, err
	}
	return &item, nil
}

func isTransactionConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "Conflict on update") ||
		strings.Contains(msg, "TransactionContext Error") ||
		strings.Contains(msg, "serialization")
}
