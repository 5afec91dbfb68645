package store

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/quarry/internal/schema"
	"github.com/roach88/quarry/internal/testutil"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// createTestStore creates a new temp-dir SQLite store for testing.
func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, append([]Option{WithLogger(discardLogger())}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// createPostgresStore opens QUARRY_POSTGRES_DSN or skips the test.
func createPostgresStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("QUARRY_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("QUARRY_POSTGRES_DSN not set")
	}
	s, err := Open(dsn, WithLogger(discardLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// seedProducts registers the product model and inserts the fixture rows.
func seedProducts(t *testing.T, s *Store) *schema.Descriptor {
	t.Helper()
	ctx := context.Background()
	d := testutil.ProductDescriptor()
	require.NoError(t, s.Register(ctx, d))
	for _, row := range testutil.ProductRows() {
		_, err := s.Insert(ctx, d, row)
		require.NoError(t, err)
	}
	return d
}
