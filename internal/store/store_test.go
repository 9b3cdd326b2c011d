package store

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kanna-karuppasamy/smart-grid-usage-forecaster/internal/models"
)

func report(id string) *models.ForecastReport {
	return &models.ForecastReport{
		RequestID: id,
		CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Request:   models.ForecastRequest{RequestID: id, Horizon: 24},
		Forecasted: []models.ForecastHour{
			{DateTime: "2024-01-01 01:00:00", KVAh: 5, Lower: 4, Upper: 6},
		},
	}
}

func TestMemoryStoreSaveGet(t *testing.T) {
	s := NewMemoryStore(time.Hour, 10)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, report("a")))
	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "a", got.RequestID)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreMaxEntries(t *testing.T) {
	s := NewMemoryStore(0, 3)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Save(ctx, report(fmt.Sprintf("r%d", i))))
	}
	assert.Equal(t, 3, s.Len())

	_, err := s.Get(ctx, "r0")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get(ctx, "r1")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get(ctx, "r4")
	assert.NoError(t, err)
}

func TestMemoryStoreReplaceDoesNotEvict(t *testing.T) {
	s := NewMemoryStore(0, 2)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, report("a")))
	require.NoError(t, s.Save(ctx, report("b")))
	require.NoError(t, s.Save(ctx, report("a")))

	assert.Equal(t, 2, s.Len())
	_, err := s.Get(ctx, "b")
	assert.NoError(t, err)
}

func TestMemoryStoreTTL(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemoryStore(time.Minute, 0)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, report("old")))
	now = now.Add(30 * time.Second)
	require.NoError(t, s.Save(ctx, report("new")))

	now = now.Add(45 * time.Second)
	_, err := s.Get(ctx, "old")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get(ctx, "new")
	assert.NoError(t, err)

	now = now.Add(time.Minute)
	require.NoError(t, s.Save(ctx, report("latest")))
	assert.Equal(t, 1, s.Len())
}

func TestRedisKey(t *testing.T) {
	assert.Equal(t, "kvah-forecast:abc", key("abc"))
}

func TestNewRedisStoreBadURL(t *testing.T) {
	_, err := NewRedisStore(context.Background(), "http://not-redis", time.Minute)
	assert.Error(t, err)
}

// TestRedisStore runs against a real server when REDIS_TEST_URL is set.
func TestRedisStore(t *testing.T) {
	url := os.Getenv("REDIS_TEST_URL")
	if url == "" {
		t.Skip("REDIS_TEST_URL not set")
	}
	ctx := context.Background()

	s, err := NewRedisStore(ctx, url, time.Minute)
	require.NoError(t, err)
	defer s.Close()

	id := uuid.NewString()
	require.NoError(t, s.Save(ctx, report(id)))

	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, report(id).Forecasted, got.Forecasted)

	_, err = s.Get(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)
}
