package migration

import (
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// openTestDB はテスト用の一時ファイルSQLiteを開く。
func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := sqlx.Open("sqlite", filepath.Join(t.TempDir(), "migration.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// testFS はテスト用のマイグレーションファイル群。
func testFS() fstest.MapFS {
	return fstest.MapFS{
		"migrations/000002_add_index.up.sql": {Data: []byte(`
-- 名前での検索用
CREATE INDEX idx_items_name ON items(name);
`)},
		"migrations/000001_create_items.up.sql": {Data: []byte(`
CREATE TABLE items (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL
);
CREATE TABLE tags (id TEXT PRIMARY KEY);
`)},
		"migrations/000001_create_items.down.sql": {Data: []byte(`DROP TABLE items;`)},
		"migrations/README.md":                    {Data: []byte(`ignored`)},
		"migrations/notaversion_x.up.sql":         {Data: []byte(`ignored`)},
	}
}

// TestCollect はマイグレーションファイルの収集を検証する。
func TestCollect(t *testing.T) {
	t.Parallel()

	migrations, err := Collect(testFS(), "migrations")
	require.NoError(t, err)

	require.Len(t, migrations, 2)
	assert.Equal(t, 1, migrations[0].Version)
	assert.Equal(t, "create_items", migrations[0].Name)
	assert.Equal(t, "migrations/000001_create_items.up.sql", migrations[0].Path)
	assert.Equal(t, 2, migrations[1].Version)
}

// TestRun はマイグレーションの適用を検証する。
func TestRun(t *testing.T) {
	t.Parallel()

	t.Run("未適用のマイグレーションが順に適用されること", func(t *testing.T) {
		t.Parallel()

		db := openTestDB(t)
		n, err := Run(t.Context(), db, testFS(), "migrations", zap.NewNop())
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		_, err = db.Exec("INSERT INTO items (id, name) VALUES ('1', 'a')")
		require.NoError(t, err)
		_, err = db.Exec("INSERT INTO tags (id) VALUES ('t')")
		require.NoError(t, err)
	})

	t.Run("2回目の実行では何も適用されないこと", func(t *testing.T) {
		t.Parallel()

		db := openTestDB(t)
		_, err := Run(t.Context(), db, testFS(), "migrations", zap.NewNop())
		require.NoError(t, err)

		n, err := Run(t.Context(), db, testFS(), "migrations", zap.NewNop())
		require.NoError(t, err)
		assert.Equal(t, 0, n)

		var versions []int
		require.NoError(t, db.Select(&versions, "SELECT version FROM schema_migrations ORDER BY version"))
		assert.Equal(t, []int{1, 2}, versions)
	})

	t.Run("SQLエラーの場合はそのマイグレーションが記録されないこと", func(t *testing.T) {
		t.Parallel()

		db := openTestDB(t)
		fsys := fstest.MapFS{
			"m/000001_ok.up.sql":     {Data: []byte(`CREATE TABLE ok (id TEXT);`)},
			"m/000002_broken.up.sql": {Data: []byte(`CREATE TABLE ok (id TEXT);`)},
		}

		n, err := Run(t.Context(), db, fsys, "m", zap.NewNop())
		require.Error(t, err)
		assert.Equal(t, 1, n)

		var versions []int
		require.NoError(t, db.Select(&versions, "SELECT version FROM schema_migrations"))
		assert.Equal(t, []int{1}, versions)
	})
}

// TestSplitStatements はSQL文の分割を検証する。
func TestSplitStatements(t *testing.T) {
	t.Parallel()

	got := splitStatements("-- comment\nCREATE TABLE a (id TEXT);\n\nCREATE INDEX i ON a(id);\n")
	assert.Equal(t, []string{"CREATE TABLE a (id TEXT)", "CREATE INDEX i ON a(id)"}, got)
}
