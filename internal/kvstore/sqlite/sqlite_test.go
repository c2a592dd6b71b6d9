package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s, err := Open(ctx, filepath.Join(t.TempDir(), "kv.db"), "p:")
	require.NoError(t, err)
	defer s.Close()

	_, ok, err := s.Get(ctx, "startTime")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "startTime", "1700000000000"))
	require.NoError(t, s.Set(ctx, "startTime", "1700000000001"))
	v, ok, err := s.Get(ctx, "startTime")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1700000000001", v)

	var stored string
	require.NoError(t, s.db.QueryRowContext(ctx, "SELECT k FROM "+tableName).Scan(&stored))
	assert.Equal(t, "p:startTime", stored)

	require.NoError(t, s.Delete(ctx, "startTime"))
	_, ok, err = s.Get(ctx, "startTime")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOpenEmptyDSN(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), "", "")
	assert.Error(t, err)
}
