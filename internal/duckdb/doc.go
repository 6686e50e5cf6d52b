// Package duckdb provides the DuckDB helpers behind the capture history: a
// connector, a small generic table mapper, and a SELECT builder.
//
// # Table
//
// Table maps a struct with `duckdb` tags onto a table:
//
//	type Row struct {
//	    ID   string `duckdb:"id,pk"`
//	    Name string `duckdb:"name"`
//	}
//
//	rows := duckdb.NewTable[Row](db, "rows")
//	err := rows.Insert(ctx, &Row{...})
//
// # Query Builder
//
//	query, args, err := duckdb.NewQueryBuilder("capture_cycles").
//	    Select("viewer_id", "status").
//	    Eq("status", "delivered").
//	    OrderBy("-started_at").
//	    Limit(20).
//	    Build()
//
// The builder only generates SQL. Empty string filters are skipped so
// callers can pass optional filters straight through.
package duckdb
