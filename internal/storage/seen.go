package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"tgreddit/internal/model"
)

// SeenStorage is the ledger of which posts have been delivered to which
// chat. Rows are never deleted.
type SeenStorage struct {
	h *Handle
}

type dbPost struct {
	PostID    string       `db:"post_id"`
	ChatID    int64        `db:"chat_id"`
	Subreddit string       `db:"subreddit"`
	PostTitle string       `db:"post_title"`
	SeenAt    sql.NullTime `db:"seen_at"`
}

func NewSeenStorage(h *Handle) *SeenStorage {
	return &SeenStorage{h: h}
}

// Reserve inserts a pending record with a null timestamp. Existing records
// are left untouched.
func (s *SeenStorage) Reserve(ctx context.Context, chatID int64, rec model.Recordable) error {
	s.h.mu.Lock()
	defer s.h.mu.Unlock()

	return s.insert(ctx, chatID, rec, sql.NullTime{})
}

// MarkSeen stamps the record with at. A record that already has a
// timestamp keeps the first one, so a second call is a no-op write.
func (s *SeenStorage) MarkSeen(ctx context.Context, chatID int64, rec model.Recordable, at time.Time) error {
	s.h.mu.Lock()
	defer s.h.mu.Unlock()

	seenAt := sql.NullTime{Time: at.UTC(), Valid: true}
	if err := s.insert(ctx, chatID, rec, seenAt); err != nil {
		return err
	}

	if _, err := s.h.db.ExecContext(
		ctx,
		s.h.rebind(`UPDATE post SET seen_at = ? WHERE post_id = ? AND chat_id = ? AND seen_at IS NULL`),
		seenAt,
		rec.RecordID(),
		chatID,
	); err != nil {
		return fmt.Errorf("error marking post %s seen: %w", rec.RecordID(), err)
	}

	return nil
}

func (s *SeenStorage) insert(ctx context.Context, chatID int64, rec model.Recordable, seenAt sql.NullTime) error {
	if _, err := s.h.db.ExecContext(
		ctx,
		s.h.rebind(`INSERT INTO post (post_id, chat_id, subreddit, post_title, seen_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT DO NOTHING`),
		rec.RecordID(),
		chatID,
		rec.RecordSubreddit(),
		rec.RecordTitle(),
		seenAt,
	); err != nil {
		return fmt.Errorf("error recording post %s: %w", rec.RecordID(), err)
	}

	return nil
}

// IsSeen reports whether delivery of the post to the chat was attempted.
// Pending records do not count.
func (s *SeenStorage) IsSeen(ctx context.Context, chatID int64, postID string) (bool, error) {
	s.h.mu.Lock()
	defer s.h.mu.Unlock()

	var count int
	if err := s.h.db.GetContext(
		ctx,
		&count,
		s.h.rebind(`SELECT COUNT(*) FROM post WHERE post_id = ? AND chat_id = ? AND seen_at IS NOT NULL`),
		postID,
		chatID,
	); err != nil {
		return false, fmt.Errorf("error checking post %s: %w", postID, err)
	}

	return count > 0, nil
}

// HasHistory reports whether anything was ever recorded for the
// subreddit in the chat. It drives the initial backfill policy.
func (s *SeenStorage) HasHistory(ctx context.Context, chatID int64, subreddit string) (bool, error) {
	s.h.mu.Lock()
	defer s.h.mu.Unlock()

	var count int
	if err := s.h.db.GetContext(
		ctx,
		&count,
		s.h.rebind(`SELECT COUNT(*) FROM post WHERE chat_id = ? AND LOWER(subreddit) = LOWER(?)`),
		chatID,
		subreddit,
	); err != nil {
		return false, fmt.Errorf("error checking history of r/%s: %w", subreddit, err)
	}

	return count > 0, nil
}

// Title returns the stored title of a post delivered to the chat.
func (s *SeenStorage) Title(ctx context.Context, chatID int64, postID string) (string, error) {
	s.h.mu.Lock()
	defer s.h.mu.Unlock()

	var post dbPost
	err := s.h.db.GetContext(
		ctx,
		&post,
		s.h.rebind(`SELECT post_id, chat_id, subreddit, post_title, seen_at FROM post WHERE post_id = ? AND chat_id = ?`),
		postID,
		chatID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("error fetching post %s: %w", postID, err)
	}

	return post.PostTitle, nil
}

// seenAt returns the timestamp of the record, the zero time for pending
// records and ErrNotFound when nothing was recorded.
func (s *SeenStorage) seenAt(ctx context.Context, chatID int64, postID string) (time.Time, error) {
	s.h.mu.Lock()
	defer s.h.mu.Unlock()

	var seenAt sql.NullTime
	err := s.h.db.GetContext(
		ctx,
		&seenAt,
		s.h.rebind(`SELECT seen_at FROM post WHERE post_id = ? AND chat_id = ?`),
		postID,
		chatID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("error fetching post %s: %w", postID, err)
	}

	return seenAt.Time, nil
}
