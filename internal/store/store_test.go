package store_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "voicemail-bridge/internal/model/call"
	"voicemail-bridge/internal/model/inbox"
	"voicemail-bridge/internal/store"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func msg(externalID, channelID int64, text string) inbox.Message {
	return inbox.Message{
		ExternalID: externalID,
		ChannelID:  channelID,
		Sender:     "alice",
		Timestamp:  time.Unix(1700000000+externalID, 0).UTC(),
		Text:       text,
	}
}

func TestUpsertMessageDeduplicates(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	inserted, err := s.UpsertMessage(ctx, msg(10, 555, "hello"))
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = s.UpsertMessage(ctx, msg(10, 555, "hello again"))
	require.NoError(t, err)
	assert.False(t, inserted, "second upsert of the same external id must report not inserted")

	unread, err := s.ListUnread(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, "hello", unread[0].Text, "duplicate upsert must not overwrite the stored row")
}

func TestCursorMonotonic(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	cursor, err := s.Cursor(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), cursor)

	require.NoError(t, s.AdvanceCursor(ctx, 42))
	cursor, err = s.Cursor(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(42), cursor)

	// A stale advance never rolls the cursor back.
	require.NoError(t, s.AdvanceCursor(ctx, 7))
	cursor, err = s.Cursor(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(42), cursor)
}

func TestListUnreadFilterAndOrder(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	for _, m := range []inbox.Message{msg(1, 555, "first"), msg(2, 777, "other channel"), msg(3, 555, "second")} {
		_, err := s.UpsertMessage(ctx, m)
		require.NoError(t, err)
	}

	unread, err := s.ListUnread(ctx, 10, 555)
	require.NoError(t, err)
	require.Len(t, unread, 2)
	assert.Equal(t, "second", unread[0].Text, "newest first")
	assert.Equal(t, "first", unread[1].Text)

	unread, err = s.ListUnread(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, int64(3), unread[0].ExternalID)
}

func TestMarkRead(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	_, err := s.UpsertMessage(ctx, msg(1, 555, "a"))
	require.NoError(t, err)
	_, err = s.UpsertMessage(ctx, msg(2, 555, "b"))
	require.NoError(t, err)

	unread, err := s.ListUnread(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, unread, 2)

	require.NoError(t, s.MarkRead(ctx, []int64{unread[0].ID}))

	unread, err = s.ListUnread(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, unread, 1)

	count, err := s.UnreadCount(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCreateSessionIdempotentAndAtomic(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	_, err := s.UpsertMessage(ctx, msg(1, 555, "a"))
	require.NoError(t, err)
	unread, err := s.ListUnread(ctx, 10, 0)
	require.NoError(t, err)

	require.NoError(t, s.CreateSession(ctx, "CA1", "first summary", unread))

	// Snapshot messages were marked read in the same transaction.
	count, err := s.UnreadCount(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	// Replayed creation is a silent no-op preserving the original summary.
	require.NoError(t, s.CreateSession(ctx, "CA1", "second summary", nil))

	session, ok, err := s.GetSession(ctx, "CA1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "first summary", session.Summary)
	require.Len(t, session.Messages, 1)
	assert.Equal(t, "a", session.Messages[0].Text)
	assert.Empty(t, session.Conversation)
	assert.False(t, session.CreatedAt.IsZero())
}

func TestGetSessionAbsent(t *testing.T) {
	s := openStore(t)

	_, ok, err := s.GetSession(context.Background(), "CA-missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAppendTurn(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateSession(ctx, "CA1", "summary", nil))

	turns, err := s.AppendTurn(ctx, "CA1", model.RoleCaller, "what about message 1?")
	require.NoError(t, err)
	require.Len(t, turns, 1)

	turns, err = s.AppendTurn(ctx, "CA1", model.RoleAssistant, "it says hello")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, model.RoleCaller, turns[0].Role)
	assert.Equal(t, model.RoleAssistant, turns[1].Role)

	session, ok, err := s.GetSession(ctx, "CA1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, turns, session.Conversation)
}

func TestAppendTurnAbsentSession(t *testing.T) {
	s := openStore(t)

	turns, err := s.AppendTurn(context.Background(), "CA-missing", model.RoleCaller, "anyone there?")
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestSweepExpired(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateSession(ctx, "CA1", "summary", nil))

	removed, err := s.SweepExpired(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(0), removed, "a fresh session survives the sweep")

	_, ok, err := s.GetSession(ctx, "CA1")
	require.NoError(t, err)
	assert.True(t, ok)

	time.Sleep(30 * time.Millisecond)

	removed, err = s.SweepExpired(ctx, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, ok, err = s.GetSession(ctx, "CA1")
	require.NoError(t, err)
	assert.False(t, ok)
}
