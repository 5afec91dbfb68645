package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/quarry/internal/querysql"
	"github.com/roach88/quarry/internal/schema"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path, WithLogger(discardLogger()))
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err, "database file was not created")
	assert.Equal(t, querysql.SQLite, s.Dialect())
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path, WithLogger(discardLogger()))
		require.NoError(t, err, "Open() iteration %d", i)
		require.NoError(t, s.Close())
	}

	s, err := Open(path, WithLogger(discardLogger()))
	require.NoError(t, err)
	defer s.Close()

	var name string
	err = s.db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
		"quarry_models",
	).Scan(&name)
	assert.NoError(t, err, "metadata table missing after idempotent opens")
}

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)

	tests := []struct {
		pragma   string
		expected string
	}{
		{"journal_mode", "wal"},
		{"synchronous", "1"}, // NORMAL
		{"busy_timeout", "5000"},
		{"foreign_keys", "1"},
		{"user_version", "1"},
	}

	for _, tt := range tests {
		t.Run(tt.pragma, func(t *testing.T) {
			assert.NoError(t, s.verifyPragma(tt.pragma, tt.expected))
		})
	}
}

func TestOpen_InMemory(t *testing.T) {
	s, err := Open(":memory:", WithLogger(discardLogger()))
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	d := schema.MustNew("notes", []schema.Field{{Name: "id", Type: schema.Integer}})
	require.NoError(t, s.Register(ctx, d))

	// The single pooled connection keeps the in-memory database alive.
	_, err = s.Insert(ctx, d, nil)
	require.NoError(t, err)
	_, err = s.Insert(ctx, d, nil)
	require.NoError(t, err)

	var count int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM "notes"`).Scan(&count))
	assert.Equal(t, 2, count)
}

func TestOpenConfig_Invalid(t *testing.T) {
	_, err := OpenConfig(Config{})
	assert.ErrorContains(t, err, "invalid store config")

	_, err = OpenConfig(Config{DSN: ":memory:", MaxOpenConns: -1})
	assert.ErrorContains(t, err, "invalid store config")
}

func TestUUIDv7Generator(t *testing.T) {
	g := UUIDv7Generator{}
	a, b := g.Generate(), g.Generate()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
	assert.Equal(t, byte('7'), a[14], "version nibble")
}
