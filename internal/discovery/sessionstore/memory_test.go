package sessionstore

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"manifold/internal/discovery"
)

func ownerPtr(v int64) *int64 { return &v }

func TestMemoryStoreGetOrCreateDuplicatePrevention(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	sess1, created, err := store.GetOrCreate(ctx, nil, ownerPtr(1), "UAE", "Tax Services")
	require.NoError(t, err)
	require.True(t, created)

	sess2, created, err := store.GetOrCreate(ctx, nil, ownerPtr(1), "UAE", "Tax Services")
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, sess1.SessionID, sess2.SessionID)

	sess3, created, err := store.GetOrCreate(ctx, nil, ownerPtr(1), "UAE", "Legal Services")
	require.NoError(t, err)
	require.True(t, created)
	require.NotEqual(t, sess1.SessionID, sess3.SessionID)
}

func TestMemoryStoreGetOrCreateBySessionID(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	sess, _, err := store.GetOrCreate(ctx, nil, ownerPtr(1), "UAE", "Tax Services")
	require.NoError(t, err)

	again, created, err := store.GetOrCreate(ctx, &sess.SessionID, nil, "ignored", "ignored")
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, sess.SessionID, again.SessionID)

	_, _, err = store.GetOrCreate(ctx, &sess.SessionID, ownerPtr(2), "ignored", "ignored")
	require.ErrorIs(t, err, discovery.ErrForbidden)
}

func TestMemoryStoreAppendMessageSeqAndHistory(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	sess, _, err := store.GetOrCreate(ctx, nil, nil, "UAE", "Tax Services")
	require.NoError(t, err)

	m1, err := store.AppendMessage(ctx, sess.SessionID, discovery.RoleUser, "hello")
	require.NoError(t, err)
	require.Equal(t, int64(0), m1.Seq)

	m2, err := store.AppendMessage(ctx, sess.SessionID, discovery.RoleAssistant, "hi")
	require.NoError(t, err)
	require.Equal(t, int64(1), m2.Seq)

	hist, err := store.History(ctx, sess.SessionID, 0)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	require.Equal(t, hist[len(hist)-1].Content, m2.Content)

	turns, err := store.HistoryAsTurns(ctx, sess.SessionID, 0)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	require.Equal(t, "hello", turns[0].User.Content)
	require.Equal(t, "hi", turns[0].Assistant.Content)
}

func TestMemoryStoreAppendMessageRejectsMissingOrClosed(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	_, err := store.AppendMessage(ctx, uuid.Nil, discovery.RoleUser, "x")
	require.ErrorIs(t, err, discovery.ErrNotFound)

	sess, _, err := store.GetOrCreate(ctx, nil, nil, "UAE", "Tax Services")
	require.NoError(t, err)
	store.mu.Lock()
	s := store.sessions[sess.SessionID]
	s.Active = false
	store.sessions[sess.SessionID] = s
	store.mu.Unlock()

	_, err = store.AppendMessage(ctx, sess.SessionID, discovery.RoleUser, "x")
	require.ErrorIs(t, err, discovery.ErrClosed)
}

func TestMemoryStoreDeactivateOlderThan(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	sess, _, err := store.GetOrCreate(ctx, nil, nil, "UAE", "Tax Services")
	require.NoError(t, err)

	store.mu.Lock()
	s := store.sessions[sess.SessionID]
	s.LastActivity = time.Now().Add(-8 * 24 * time.Hour)
	store.sessions[sess.SessionID] = s
	store.mu.Unlock()

	n, err := store.DeactivateOlderThan(ctx, 7*24*time.Hour)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	n, err = store.DeactivateOlderThan(ctx, 7*24*time.Hour)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}
