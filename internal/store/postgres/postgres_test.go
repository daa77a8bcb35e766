package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plebchat/internal/runner"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg := fromLookup(func(string) string { return "" })

	assert.False(t, cfg.Enabled())
	assert.Equal(t, int32(4), cfg.MaxConns)
	assert.Equal(t, time.Minute, cfg.MaxConnIdleTime)
	assert.Equal(t, time.Hour, cfg.MaxConnLifetime)
	assert.Equal(t, 30*time.Second, cfg.HealthCheckPeriod)
	assert.Equal(t, 10*time.Second, cfg.ConnectTimeout)
}

func TestFromEnvOverrides(t *testing.T) {
	env := map[string]string{
		"DATABASE_URL":         "postgres://localhost/plebchat",
		"PG_MAX_CONNS":         "12",
		"PG_MAX_CONN_IDLE":     "5m",
		"PG_MAX_CONN_LIFETIME": "nonsense",
	}
	cfg := fromLookup(func(k string) string { return env[k] })

	assert.True(t, cfg.Enabled())
	assert.Equal(t, int32(12), cfg.MaxConns)
	assert.Equal(t, 5*time.Minute, cfg.MaxConnIdleTime)
	assert.Equal(t, time.Hour, cfg.MaxConnLifetime)
}

func TestNewPoolRequiresURL(t *testing.T) {
	_, err := NewPool(context.Background(), Config{})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

// TestRunStoreRoundTrip runs against a real server when
// PLEBCHAT_TEST_DATABASE_URL is set.
func TestRunStoreRoundTrip(t *testing.T) {
	url := os.Getenv("PLEBCHAT_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("PLEBCHAT_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	cfg := fromLookup(func(string) string { return "" })
	cfg.URL = url

	pool, err := NewPool(ctx, cfg)
	require.NoError(t, err)
	defer pool.Close()

	store := NewRunStore(pool)
	require.NoError(t, store.Migrate(ctx))

	now := time.Now().UTC().Truncate(time.Millisecond)
	rec := runner.Record{
		ID:         uuid.New(),
		AgentID:    "echobot",
		Status:     runner.StatusOK,
		Reply:      "hi",
		StartedAt:  now.Add(time.Hour),
		FinishedAt: now.Add(time.Hour + time.Second),
	}
	require.NoError(t, store.Record(ctx, rec))

	recent, err := store.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, rec.ID, recent[0].ID)
	assert.Equal(t, "hi", recent[0].Reply)
	assert.True(t, rec.StartedAt.Equal(recent[0].StartedAt))
}
