package repository

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/gradebook-api/pkg/errors"
)

func TestCacheRepositoryWithoutClient(t *testing.T) {
	repo := NewCacheRepository(nil, nil)
	ctx := context.Background()

	var out map[string]string
	assert.ErrorIs(t, repo.Get(ctx, "rollups:c1:cs1", &out), appErrors.ErrCacheMiss)
	assert.NoError(t, repo.Set(ctx, "rollups:c1:cs1", map[string]string{"a": "b"}, time.Minute))
	assert.NoError(t, repo.DeleteByPattern(ctx, "rollups:*"))
	assert.NoError(t, repo.Ping(ctx))
	assert.NoError(t, repo.Close())
}

func TestCacheRepositorySurfacesBackendErrors(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	repo := NewCacheRepository(client, nil)
	defer repo.Close() //nolint:errcheck
	ctx := context.Background()

	var out string
	err := repo.Get(ctx, "rollups:c1:cs1", &out)
	require.Error(t, err)
	assert.NotErrorIs(t, err, appErrors.ErrCacheMiss)
	assert.Error(t, repo.Set(ctx, "k", "v", time.Minute))
	assert.Error(t, repo.Ping(ctx))
}

func TestCacheKeyIsNamespaced(t *testing.T) {
	assert.Equal(t, "gradebook:rollups:c1:*", cacheKey("rollups:c1:*"))
}
