package migrate

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func openSQLite(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return sqlDB
}

func TestMigrationsApplyAndRollBackOnSQLite(t *testing.T) {
	sqlDB := openSQLite(t)
	ctx := context.Background()

	require.NoError(t, Run(ctx, sqlDB, "sqlite3", "migrations", "up"))

	_, err := sqlDB.Exec(`INSERT INTO deployments (id, session_id, account, title, created_at, updated_at)
		VALUES ('d1', 's1', '0xabc', 'Album', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`)
	require.NoError(t, err)

	_, err = sqlDB.Exec(`INSERT INTO deployments (id, session_id, account, title, created_at, updated_at)
		VALUES ('d2', 's1', '0xabc', 'Album', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`)
	require.Error(t, err, "session_id must be unique")

	require.NoError(t, Run(ctx, sqlDB, "sqlite3", "migrations", "reset"))
	_, err = sqlDB.Exec(`SELECT 1 FROM deployments`)
	require.Error(t, err)
}

func TestRunRequiresDB(t *testing.T) {
	require.Error(t, Run(context.Background(), nil, "sqlite3", "migrations", "up"))
}

func TestDeploymentsMigrationContainsConstraints(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_deployments_table.sql"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	content := string(data)

	for _, sub := range []string{
		"CREATE TABLE IF NOT EXISTS deployments",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_deployments_session_id",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_deployments_resumed_from",
		"CHECK (status IN ('in_progress', 'complete', 'failed'))",
		"DROP TABLE IF EXISTS deployments",
	} {
		assert.True(t, strings.Contains(content, sub), "missing %q", sub)
	}
}

func TestValidateDirAndCreate(t *testing.T) {
	require.NoError(t, ValidateDir("migrations"))

	dir := t.TempDir()
	path, err := CreateSQLMigration(dir, "Add Track Index!")
	require.NoError(t, err)
	assert.Contains(t, filepath.Base(path), "_add_track_index.sql")
	require.NoError(t, ValidateDir(dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.sql"), []byte("-- nothing"), 0o644))
	require.Error(t, ValidateDir(dir))
}
