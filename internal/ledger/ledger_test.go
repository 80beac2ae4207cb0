package ledger

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAndLookupRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.db")

	l, err := Open(path)
	require.NoError(t, err)
	defer l.Close()

	ctx := context.Background()

	known, _, err := l.Known(ctx, "user@example.com", "All Photos", "AAA111", "original")
	require.NoError(t, err)
	assert.False(t, known)

	require.NoError(t, l.Record(ctx, "user@example.com", "All Photos", "AAA111", "original", "/tmp/IMG_1.JPG", 12345, 1700000000))

	known, size, err := l.Known(ctx, "user@example.com", "All Photos", "AAA111", "original")
	require.NoError(t, err)
	assert.True(t, known)
	assert.Equal(t, int64(12345), size)
}

func TestRecordUpdatesOnConflict(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.db")

	l, err := Open(path)
	require.NoError(t, err)
	defer l.Close()

	ctx := context.Background()

	require.NoError(t, l.Record(ctx, "acct", "album", "id1", "original", "/a", 1, 100))
	require.NoError(t, l.Record(ctx, "acct", "album", "id1", "original", "/b", 2, 200))

	_, size, err := l.Known(ctx, "acct", "album", "id1", "original")
	require.NoError(t, err)
	assert.Equal(t, int64(2), size)
}
