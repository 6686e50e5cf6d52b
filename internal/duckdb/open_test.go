package duckdb

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenDB_Memory(t *testing.T) {
	for _, path := range []string{"", Memory} {
		db, err := OpenDB(path)
		require.NoError(t, err)

		var one int
		require.NoError(t, db.QueryRow("SELECT 1").Scan(&one))
		assert.Equal(t, 1, one)
		require.NoError(t, db.Close())
	}
}

func TestOpenDB_FileSurvivesReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "history.duckdb")

	db, err := OpenDB(dbPath)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE t (id INTEGER)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO t VALUES (1), (2)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = OpenDB(dbPath)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	var count int
	require.NoError(t, db.QueryRow("SELECT count(*) FROM t").Scan(&count))
	assert.Equal(t, 2, count)
}
