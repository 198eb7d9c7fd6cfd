package migrations

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Embedded(t *testing.T) {
	pg, err := load(PostgresFS, "postgres")
	require.NoError(t, err)
	require.NotEmpty(t, pg)
	assert.Equal(t, "001_ledger.sql", pg[0].Version)
	assert.Contains(t, pg[0].SQL, "CREATE TABLE IF NOT EXISTS reward_centers")

	ch, err := load(ClickhouseFS, "clickhouse")
	require.NoError(t, err)
	require.NotEmpty(t, ch)
	assert.Contains(t, ch[0].SQL, "settlement_receipts")
}

func TestLoad_OrderAndSkips(t *testing.T) {
	fsys := fstest.MapFS{
		"m/002_b.sql": {Data: []byte("SELECT 2;")},
		"m/001_a.sql": {Data: []byte("SELECT 1;")},
		"m/003_c.sql": {Data: []byte("  \n")},
		"m/README.md": {Data: []byte("not sql")},
		"m/sub/x.sql": {Data: []byte("SELECT 0;")},
	}
	got, err := load(fsys, "m")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "001_a.sql", got[0].Version)
	assert.Equal(t, "002_b.sql", got[1].Version)
}

func TestStatements(t *testing.T) {
	sql := `-- header; with a semicolon in a comment line
CREATE TABLE a (x String) ENGINE = Memory;

-- second
INSERT INTO a VALUES ('it''s');
`
	got, err := statements(sql)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"CREATE TABLE a (x String) ENGINE = Memory",
		"INSERT INTO a VALUES ('it''s')",
	}, got)

	_, err = statements("INSERT INTO a VALUES ('a;b');")
	assert.ErrorIs(t, err, ErrSemicolonInLiteral)
}

func TestDatabaseFromDSN(t *testing.T) {
	db, err := databaseFromDSN("clickhouse://localhost:9000/rewards?dial_timeout=1s")
	require.NoError(t, err)
	assert.Equal(t, "rewards", db)

	_, err = databaseFromDSN("clickhouse://localhost:9000")
	assert.Error(t, err)
}
