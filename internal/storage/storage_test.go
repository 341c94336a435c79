package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tgreddit/internal/model"
)

func newTestHandle(t *testing.T) *Handle {
	t.Helper()

	h, err := Open(context.Background(), DriverSQLite, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })

	require.NoError(t, h.Migrate())

	return h
}

func TestMigrateIsIdempotent(t *testing.T) {
	h := newTestHandle(t)

	assert.NoError(t, h.Migrate())
	assert.NoError(t, h.Ping(context.Background()))
}

func TestSeenStorage(t *testing.T) {
	ctx := context.Background()
	seen := NewSeenStorage(newTestHandle(t))
	post := model.Post{ID: "abc", Subreddit: "aww", Title: "A cat"}

	t.Run("unknown post is not seen", func(t *testing.T) {
		ok, err := seen.IsSeen(ctx, 42, "abc")
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = seen.seenAt(ctx, 42, "abc")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("pending record is not seen", func(t *testing.T) {
		require.NoError(t, seen.Reserve(ctx, 42, post))

		ok, err := seen.IsSeen(ctx, 42, "abc")
		require.NoError(t, err)
		assert.False(t, ok)

		at, err := seen.seenAt(ctx, 42, "abc")
		require.NoError(t, err)
		assert.True(t, at.IsZero())

		history, err := seen.HasHistory(ctx, 42, "AWW")
		require.NoError(t, err)
		assert.True(t, history)
	})

	t.Run("mark seen stamps once", func(t *testing.T) {
		first := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		require.NoError(t, seen.MarkSeen(ctx, 42, post, first))
		require.NoError(t, seen.MarkSeen(ctx, 42, post, first.Add(time.Hour)))

		ok, err := seen.IsSeen(ctx, 42, "abc")
		require.NoError(t, err)
		assert.True(t, ok)

		at, err := seen.seenAt(ctx, 42, "abc")
		require.NoError(t, err)
		assert.True(t, first.Equal(at), "got %s", at)
	})

	t.Run("records are per chat", func(t *testing.T) {
		ok, err := seen.IsSeen(ctx, 43, "abc")
		require.NoError(t, err)
		assert.False(t, ok)

		history, err := seen.HasHistory(ctx, 43, "aww")
		require.NoError(t, err)
		assert.False(t, history)
	})

	t.Run("title", func(t *testing.T) {
		title, err := seen.Title(ctx, 42, "abc")
		require.NoError(t, err)
		assert.Equal(t, "A cat", title)

		_, err = seen.Title(ctx, 43, "abc")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestSubscriptionStorage(t *testing.T) {
	ctx := context.Background()
	h := newTestHandle(t)
	subs := NewSubscriptionStorage(h)
	seen := NewSeenStorage(h)

	week := model.PeriodWeek
	video := model.KindVideo

	require.NoError(t, subs.Subscribe(ctx, model.Subscription{ChatID: 1, Subreddit: "foo"}))
	require.NoError(t, subs.Subscribe(ctx, model.Subscription{ChatID: 1, Subreddit: "bar", Limit: lo.ToPtr(1), Time: &week}))
	require.NoError(t, subs.Subscribe(ctx, model.Subscription{ChatID: 2, Subreddit: "baz", Filter: &video}))

	t.Run("for chat", func(t *testing.T) {
		list, err := subs.ForChat(ctx, 1)
		require.NoError(t, err)
		require.Len(t, list, 2)

		byName := lo.KeyBy(list, func(s model.Subscription) string { return s.Subreddit })
		assert.Nil(t, byName["foo"].Limit)
		require.NotNil(t, byName["bar"].Limit)
		assert.Equal(t, 1, *byName["bar"].Limit)
		require.NotNil(t, byName["bar"].Time)
		assert.Equal(t, model.PeriodWeek, *byName["bar"].Time)
		assert.False(t, byName["bar"].CreatedAt.IsZero())
	})

	t.Run("all", func(t *testing.T) {
		list, err := subs.All(ctx)
		require.NoError(t, err)
		require.Len(t, list, 3)

		baz, ok := lo.Find(list, func(s model.Subscription) bool { return s.Subreddit == "baz" })
		require.True(t, ok)
		require.NotNil(t, baz.Filter)
		assert.Equal(t, model.KindVideo, *baz.Filter)
	})

	t.Run("resubscribe replaces overrides", func(t *testing.T) {
		require.NoError(t, subs.Subscribe(ctx, model.Subscription{ChatID: 1, Subreddit: "bar", Limit: lo.ToPtr(5)}))

		list, err := subs.ForChat(ctx, 1)
		require.NoError(t, err)
		require.Len(t, list, 2)

		bar, _ := lo.Find(list, func(s model.Subscription) bool { return s.Subreddit == "bar" })
		require.NotNil(t, bar.Limit)
		assert.Equal(t, 5, *bar.Limit)
		assert.Nil(t, bar.Time)
	})

	t.Run("unsubscribe keeps history", func(t *testing.T) {
		require.NoError(t, seen.MarkSeen(ctx, 1, model.Post{ID: "p1", Subreddit: "foo"}, time.Now()))

		name, err := subs.Unsubscribe(ctx, 1, "FOO")
		require.NoError(t, err)
		assert.Equal(t, "foo", name)

		_, err = subs.Unsubscribe(ctx, 1, "foo")
		assert.ErrorIs(t, err, ErrNotFound)

		ok, err := seen.IsSeen(ctx, 1, "p1")
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestChatStorage(t *testing.T) {
	ctx := context.Background()
	chats := NewChatStorage(newTestHandle(t))

	_, err := chats.Chat(ctx, 7)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, chats.SetRepostChannel(ctx, 7, -100123))
	chat, err := chats.Chat(ctx, 7)
	require.NoError(t, err)
	require.NotNil(t, chat.RepostChannelID)
	assert.Equal(t, int64(-100123), *chat.RepostChannelID)

	require.NoError(t, chats.SetRepostChannel(ctx, 7, -100456))
	chat, err = chats.Chat(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(-100456), *chat.RepostChannelID)
}

func TestMediaStorage(t *testing.T) {
	ctx := context.Background()
	h := newTestHandle(t)
	media := NewMediaStorage(h)
	post := model.Post{ID: "gal", Subreddit: "pics", Title: "Gallery"}

	require.NoError(t, NewSeenStorage(h).Reserve(ctx, 42, post))

	files := []model.MediaFile{
		{FileID: "f3", FileUniqueID: "u3"},
		{FileID: "f1", FileUniqueID: "u1"},
		{FileID: "f2", FileUniqueID: "u2"},
	}
	require.NoError(t, media.Store(ctx, 42, "gal", files))
	require.NoError(t, media.Store(ctx, 42, "gal", files[:1]))

	got, err := media.Files(ctx, 42, "gal")
	require.NoError(t, err)
	assert.Equal(t, files, got)

	_, err = media.Files(ctx, 43, "gal")
	assert.ErrorIs(t, err, ErrNotFound)
}
