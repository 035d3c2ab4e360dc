package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/factlens/factlens/internal/models"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewStoreWithClient(client, time.Hour, zaptest.NewLogger(t))
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestStorePutGetRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	entry := Entry{
		Text:       "# Report\ncontent",
		ModelID:    "gemini-2.5-pro",
		ReportKind: "full",
		GroundingSources: []models.GroundingSource{
			{Title: "NOAA", URI: "https://noaa.gov"},
		},
	}
	key := DeriveKey(models.ReportRequest{Text: "q", Provider: "gemini"})
	require.NoError(t, store.Put(ctx, key, entry))

	got, ok := store.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, entry.Text, got.Text)
	assert.Equal(t, entry.ModelID, got.ModelID)
	assert.Equal(t, entry.GroundingSources, got.GroundingSources)
	assert.False(t, got.CachedAt.IsZero(), "Put must stamp CachedAt")
}

func TestStoreMiss(t *testing.T) {
	store, _ := newTestStore(t)
	got, ok := store.Get(context.Background(), "nope")
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestStoreCorruptEntryDeletedOnRead(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, mr.Set("report:bad", "{not json"))

	got, ok := store.Get(ctx, "bad")
	assert.False(t, ok)
	assert.Nil(t, got)

	// The corrupt value is gone; a second read is a plain miss.
	assert.False(t, mr.Exists("report:bad"))
	_, ok = store.Get(ctx, "bad")
	assert.False(t, ok)
}

func TestStoreTTLApplied(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	key := "ttl-check"
	require.NoError(t, store.Put(ctx, key, Entry{Text: "x"}))
	mr.FastForward(2 * time.Hour)

	_, ok := store.Get(ctx, key)
	assert.False(t, ok, "entry must expire with the store TTL")
}

func TestStoreDelete(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "k", Entry{Text: "x"}))
	require.NoError(t, store.Delete(ctx, "k"))
	_, ok := store.Get(ctx, "k")
	assert.False(t, ok)
}
