package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/ams-api/pkg/errors"
)

func TestCacheRepositoryWithoutRedis(t *testing.T) {
	repo := NewCacheRepository(nil, nil)
	ctx := context.Background()

	assert.False(t, repo.Enabled())

	var dest map[string]int
	assert.ErrorIs(t, repo.Get(ctx, "analytics:x", &dest), appErrors.ErrCacheMiss)
	require.NoError(t, repo.Set(ctx, "analytics:x", map[string]int{"a": 1}, time.Minute))

	n, err := repo.DeleteByPattern(ctx, "analytics:*")
	require.NoError(t, err)
	assert.Zero(t, n)
	require.NoError(t, repo.Delete(ctx, "account:status:u1"))

	require.NoError(t, repo.PushCapped(ctx, "ams:scanlog:u1", "entry", 50))
	entries, err := repo.Range(ctx, "ams:scanlog:u1", 50)
	require.NoError(t, err)
	assert.Empty(t, entries)

	ok, err := repo.Acquire(ctx, "presence:u1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, repo.Close())
}
