package storage

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestPostgresBackend_RoundTrip(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()

	b, err := OpenPostgres(ctx, dsn, nil)
	require.NoError(t, err)

	_, err = b.Pool.Exec(ctx, `TRUNCATE emission_history`)
	require.NoError(t, err)
	require.NoError(t, b.Close())

	roundTrip(t, func(t *testing.T) Backend {
		b, err := OpenPostgres(ctx, dsn, nil)
		require.NoError(t, err)

		return b
	})
}

func TestRedisBackend_RoundTrip(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}

	prefix := "goalbot-test-" + uuid.NewString()

	roundTrip(t, func(t *testing.T) Backend {
		b, err := OpenRedis(context.Background(), url, prefix)
		require.NoError(t, err)

		return b
	})

	cleanup, err := OpenRedis(context.Background(), url, prefix)
	require.NoError(t, err)
	require.NoError(t, cleanup.client.Del(context.Background(), cleanup.key).Err())
	require.NoError(t, cleanup.Close())
}
