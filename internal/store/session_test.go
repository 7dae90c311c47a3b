package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockedby/groupindex/internal/logger"
)

func TestSessionStore_SetGetUpdate(t *testing.T) {
	db := newTestDB(t)
	sessions, err := NewSessionStore(db, logger.Nop())
	require.NoError(t, err)

	_, ok := sessions.Get(42)
	assert.False(t, ok)

	sessions.Set(42, 1000)
	got, ok := sessions.Get(42)
	require.True(t, ok)
	assert.Equal(t, int64(1000), got)

	sessions.Update(42, 1001)
	got, ok = sessions.Get(42)
	require.True(t, ok)
	assert.Equal(t, int64(1001), got)
}

func TestSessionStore_HydratesFromMirror(t *testing.T) {
	db := newTestDB(t)

	first, err := NewSessionStore(db, logger.Nop())
	require.NoError(t, err)
	first.Set(42, 1000)

	// a "restarted" store sees the persisted sessions
	second, err := NewSessionStore(db, logger.Nop())
	require.NoError(t, err)

	got, ok := second.Get(42)
	require.True(t, ok)
	assert.Equal(t, int64(1000), got)
}

func TestSessionStore_ExpireAll(t *testing.T) {
	db := newTestDB(t)
	sessions, err := NewSessionStore(db, logger.Nop())
	require.NoError(t, err)

	sessions.Set(1, 100)
	sessions.Set(2, 200)

	var notified []int64
	err = sessions.ExpireAll(func(chatID, messageID int64) {
		notified = append(notified, chatID)
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{1, 2}, notified)

	_, ok := sessions.Get(1)
	assert.False(t, ok)
	_, ok = sessions.Get(2)
	assert.False(t, ok)

	// the persisted mirror is cleared too
	fresh, err := NewSessionStore(db, logger.Nop())
	require.NoError(t, err)
	_, ok = fresh.Get(1)
	assert.False(t, ok)
}

func TestSessionStore_ExpireAll_NotifyPanicsAreCallersProblem(t *testing.T) {
	// notify is best-effort by contract: the callback is expected to
	// swallow its own delivery failures, ExpireAll just iterates.
	db := newTestDB(t)
	sessions, err := NewSessionStore(db, logger.Nop())
	require.NoError(t, err)

	sessions.Set(1, 100)

	calls := 0
	err = sessions.ExpireAll(func(chatID, messageID int64) {
		calls++
		// a failing send would be logged and dropped inside here
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}
