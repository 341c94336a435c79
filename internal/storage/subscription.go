package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/samber/lo"

	"tgreddit/internal/model"
)

// SubscriptionStorage is the registry the scheduler polls.
type SubscriptionStorage struct {
	h *Handle
}

type dbSubscription struct {
	ChatID     int64          `db:"chat_id"`
	Subreddit  string         `db:"subreddit"`
	PostLimit  sql.NullInt64  `db:"post_limit"`
	TimePeriod sql.NullString `db:"time_period"`
	PostFilter sql.NullString `db:"post_filter"`
	CreatedAt  time.Time      `db:"created_at"`
}

var subscriptionColumns = []string{"chat_id", "subreddit", "post_limit", "time_period", "post_filter", "created_at"}

func NewSubscriptionStorage(h *Handle) *SubscriptionStorage {
	return &SubscriptionStorage{h: h}
}

// Subscribe stores the subscription, replacing the overrides of an
// existing one. The chat is created on first use.
func (s *SubscriptionStorage) Subscribe(ctx context.Context, sub model.Subscription) error {
	s.h.mu.Lock()
	defer s.h.mu.Unlock()

	if err := ensureChat(ctx, s.h, sub.ChatID); err != nil {
		return err
	}

	row := toDBSubscription(sub)
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}

	query, args, err := s.h.builder.
		Insert("subscription").
		Columns(subscriptionColumns...).
		Values(row.ChatID, row.Subreddit, row.PostLimit, row.TimePeriod, row.PostFilter, row.CreatedAt).
		Suffix(`ON CONFLICT (subreddit, chat_id) DO UPDATE SET
			post_limit = excluded.post_limit,
			time_period = excluded.time_period,
			post_filter = excluded.post_filter`).
		ToSql()
	if err != nil {
		return fmt.Errorf("error constructing sql: %w", err)
	}

	if _, err := s.h.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("error subscribing %d to r/%s: %w", sub.ChatID, sub.Subreddit, err)
	}

	return nil
}

// Unsubscribe deletes the subscription matching subreddit case
// insensitively and returns the stored name. Seen history is kept.
func (s *SubscriptionStorage) Unsubscribe(ctx context.Context, chatID int64, subreddit string) (string, error) {
	s.h.mu.Lock()
	defer s.h.mu.Unlock()

	var deleted []string
	if err := s.h.db.SelectContext(
		ctx,
		&deleted,
		s.h.rebind(`DELETE FROM subscription WHERE chat_id = ? AND LOWER(subreddit) = LOWER(?) RETURNING subreddit`),
		chatID,
		subreddit,
	); err != nil {
		return "", fmt.Errorf("error unsubscribing %d from r/%s: %w", chatID, subreddit, err)
	}

	if len(deleted) == 0 {
		return "", ErrNotFound
	}

	return deleted[0], nil
}

// All returns every subscription in registry order.
func (s *SubscriptionStorage) All(ctx context.Context) ([]model.Subscription, error) {
	return s.list(ctx, nil)
}

func (s *SubscriptionStorage) ForChat(ctx context.Context, chatID int64) ([]model.Subscription, error) {
	return s.list(ctx, sq.Eq{"chat_id": chatID})
}

func (s *SubscriptionStorage) list(ctx context.Context, where sq.Sqlizer) ([]model.Subscription, error) {
	s.h.mu.Lock()
	defer s.h.mu.Unlock()

	q := s.h.builder.Select(subscriptionColumns...).From("subscription").OrderBy("created_at", "subreddit")
	if where != nil {
		q = q.Where(where)
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("error constructing sql: %w", err)
	}

	var rows []dbSubscription
	if err := s.h.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("error selecting subscriptions: %w", err)
	}

	subs := make([]model.Subscription, 0, len(rows))
	for _, row := range rows {
		sub, err := row.toModel()
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}

	return subs, nil
}

func toDBSubscription(sub model.Subscription) dbSubscription {
	row := dbSubscription{
		ChatID:    sub.ChatID,
		Subreddit: sub.Subreddit,
		CreatedAt: sub.CreatedAt,
	}
	if sub.Limit != nil {
		row.PostLimit = sql.NullInt64{Int64: int64(*sub.Limit), Valid: true}
	}
	if sub.Time != nil {
		row.TimePeriod = sql.NullString{String: sub.Time.String(), Valid: true}
	}
	if sub.Filter != nil {
		row.PostFilter = sql.NullString{String: sub.Filter.String(), Valid: true}
	}

	return row
}

func (row dbSubscription) toModel() (model.Subscription, error) {
	sub := model.Subscription{
		ChatID:    row.ChatID,
		Subreddit: row.Subreddit,
		CreatedAt: row.CreatedAt,
	}
	if row.PostLimit.Valid {
		sub.Limit = lo.ToPtr(int(row.PostLimit.Int64))
	}
	if row.TimePeriod.Valid {
		period, err := model.ParseTimePeriod(row.TimePeriod.String)
		if err != nil {
			return model.Subscription{}, fmt.Errorf("subscription r/%s of %d: %w", row.Subreddit, row.ChatID, err)
		}
		sub.Time = &period
	}
	if row.PostFilter.Valid {
		kind, err := model.ParseMediaKind(row.PostFilter.String)
		if err != nil {
			return model.Subscription{}, fmt.Errorf("subscription r/%s of %d: %w", row.Subreddit, row.ChatID, err)
		}
		sub.Filter = &kind
	}

	return sub, nil
}
