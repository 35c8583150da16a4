package tracker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReaperNotifiesExpiredSessions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.manager.Begin(ctx, "chat:5", 5)
	require.NoError(t, err)
	_, err = env.manager.Begin(ctx, "chat:6", 6)
	require.NoError(t, err)
	_, err = env.manager.SubmitHandle(ctx, "chat:6", "bob")
	require.NoError(t, err)

	env.clock.Advance(15 * time.Minute)

	reaper := NewReaper(env.manager, env.notifier, time.Minute, 2*time.Minute, 10*time.Minute)
	reaper.reap(ctx)

	msgs := env.notifier.messages()
	require.Len(t, msgs, 2)

	byChat := map[int64]string{}
	for _, m := range msgs {
		byChat[m.chatID] = m.text
	}
	assert.Equal(t, "No handle provided within 2m0s. Send /start to try again.", byChat[5])
	assert.Equal(t, "No sheet id provided within 10m0s. Send /start to try again.", byChat[6])
	assert.Empty(t, env.manager.List())
}

func TestReaperIgnoresFreshSessions(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.manager.Begin(context.Background(), "chat:5", 5)
	require.NoError(t, err)

	NewReaper(env.manager, env.notifier, 0, 2*time.Minute, 10*time.Minute).reap(context.Background())

	assert.Empty(t, env.notifier.messages())
	assert.Len(t, env.manager.List(), 1)
}
