package database

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

type recordingExecer struct {
	statements []string
	failOn     int
}

func (r *recordingExecer) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	r.statements = append(r.statements, sql)
	if r.failOn > 0 && len(r.statements) == r.failOn {
		return pgconn.CommandTag{}, errors.New("syntax error")
	}
	return pgconn.CommandTag{}, nil
}

func TestMigrateFS_RunsInOrder(t *testing.T) {
	fsys := fstest.MapFS{
		"m/002_more.sql":   {Data: []byte("two")},
		"m/001_schema.sql": {Data: []byte("one")},
		"m/README.md":      {Data: []byte("skip")},
	}
	db := &recordingExecer{}
	require.NoError(t, migrateFS(context.Background(), db, fsys, "m"))
	require.Equal(t, []string{"one", "two"}, db.statements)
}

func TestMigrateFS_StopsOnError(t *testing.T) {
	fsys := fstest.MapFS{
		"m/001_a.sql": {Data: []byte("a")},
		"m/002_b.sql": {Data: []byte("b")},
		"m/003_c.sql": {Data: []byte("c")},
	}
	db := &recordingExecer{failOn: 2}
	err := migrateFS(context.Background(), db, fsys, "m")
	require.Error(t, err)
	require.Contains(t, err.Error(), "002_b.sql")
	require.Len(t, db.statements, 2)
}

func TestMigrate_EmbeddedSchema(t *testing.T) {
	db := &recordingExecer{}
	require.NoError(t, Migrate(context.Background(), db))
	require.NotEmpty(t, db.statements)
	require.Contains(t, db.statements[0], "CREATE TABLE IF NOT EXISTS recordings")
	require.Contains(t, db.statements[0], "REFERENCES recordings (id) ON DELETE CASCADE")
}
