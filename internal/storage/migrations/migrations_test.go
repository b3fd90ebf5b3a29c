package migrations

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitStatements(t *testing.T) {
	in := `
-- header comment
CREATE TABLE a (x Int64) ENGINE = MergeTree() ORDER BY x;

  -- indented comment
CREATE TABLE b (y String)
ENGINE = MergeTree() ORDER BY y;
`
	stmts := splitStatements(in)
	require.Len(t, stmts, 2)
	assert.Equal(t, "CREATE TABLE a (x Int64) ENGINE = MergeTree() ORDER BY x", stmts[0])
	assert.Contains(t, stmts[1], "CREATE TABLE b")
}

func TestDatabaseFromDSN(t *testing.T) {
	db, err := databaseFromDSN("clickhouse://user:pw@localhost:9000/analytics")
	require.NoError(t, err)
	assert.Equal(t, "analytics", db)

	_, err = databaseFromDSN("clickhouse://localhost:9000")
	assert.Error(t, err)
}

func TestDatabaseFromDSN_RejectsQuoting(t *testing.T) {
	_, err := databaseFromDSN("clickhouse://localhost:9000/bad`name")
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	pg, err := load(dialectPostgres)
	require.NoError(t, err)
	require.Len(t, pg, 2)
	assert.Equal(t, "001_candidates.sql", pg[0].Name)
	assert.Equal(t, "002_positions.sql", pg[1].Name)
	assert.Contains(t, pg[0].SQL, "CREATE TABLE")

	ch, err := load(dialectClickhouse)
	require.NoError(t, err)
	require.Len(t, ch, 1)
	assert.Equal(t, "001_history.sql", ch[0].Name)
	assert.Len(t, splitStatements(ch[0].SQL), 2)

	_, err = load("mysql")
	assert.Error(t, err)
}
