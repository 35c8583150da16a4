package storage

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PatGB5/codeforces-submission-bot/internal/models"
)

func newTestRedisStore(t *testing.T) (*RedisSessionStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisSessionStoreWithClient(client, "test:session:")
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestRedisSessionStoreRoundTrip(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	session := models.TrackingSession{
		ID:        "id-1",
		Owner:     "chat:42",
		ChatID:    42,
		Handle:    "alice",
		SheetID:   "sheet-1",
		Cursor:    123456,
		State:     models.SessionReady,
		CreatedAt: created,
		UpdatedAt: created,
	}
	require.NoError(t, store.Save(ctx, session))

	got, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, session, got[0])

	session.Cursor = 123460
	require.NoError(t, store.Save(ctx, session))
	got, err = store.List(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(123460), got[0].Cursor)

	require.NoError(t, store.Delete(ctx, "chat:42"))
	got, err = store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRedisSessionStoreList(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	for _, owner := range []string{"chat:1", "chat:2", "chat:3"} {
		require.NoError(t, store.Save(ctx, models.TrackingSession{Owner: owner, State: models.SessionReady}))
	}
	require.NoError(t, mr.Set("test:session:broken", "{not json"))
	require.NoError(t, mr.Set("other:key", "ignored"))

	sessions, err := store.List(ctx)
	require.NoError(t, err)

	owners := make([]string, 0, len(sessions))
	for _, s := range sessions {
		owners = append(owners, s.Owner)
	}
	sort.Strings(owners)
	assert.Equal(t, []string{"chat:1", "chat:2", "chat:3"}, owners)
}

func TestRedisSessionStoreUnavailable(t *testing.T) {
	store, mr := newTestRedisStore(t)
	mr.Close()

	err := store.Save(context.Background(), models.TrackingSession{Owner: "chat:1"})
	require.Error(t, err)
}
