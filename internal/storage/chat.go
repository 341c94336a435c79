package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"tgreddit/internal/model"
)

type ChatStorage struct {
	h *Handle
}

type dbChat struct {
	ChatID          int64         `db:"chat_id"`
	RepostChannelID sql.NullInt64 `db:"repost_channel_id"`
}

func NewChatStorage(h *Handle) *ChatStorage {
	return &ChatStorage{h: h}
}

// SetRepostChannel registers the secondary endpoint of a chat.
func (s *ChatStorage) SetRepostChannel(ctx context.Context, chatID, channelID int64) error {
	s.h.mu.Lock()
	defer s.h.mu.Unlock()

	query, args, err := s.h.builder.
		Insert("chat").
		Columns("chat_id", "repost_channel_id").
		Values(chatID, channelID).
		Suffix("ON CONFLICT (chat_id) DO UPDATE SET repost_channel_id = excluded.repost_channel_id").
		ToSql()
	if err != nil {
		return fmt.Errorf("error constructing sql: %w", err)
	}

	if _, err := s.h.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("error setting repost channel of %d: %w", chatID, err)
	}

	return nil
}

func (s *ChatStorage) Chat(ctx context.Context, chatID int64) (model.Chat, error) {
	s.h.mu.Lock()
	defer s.h.mu.Unlock()

	var chat dbChat
	err := s.h.db.GetContext(
		ctx,
		&chat,
		s.h.rebind(`SELECT chat_id, repost_channel_id FROM chat WHERE chat_id = ?`),
		chatID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Chat{}, ErrNotFound
	}
	if err != nil {
		return model.Chat{}, fmt.Errorf("error fetching chat %d: %w", chatID, err)
	}

	result := model.Chat{ID: chat.ChatID}
	if chat.RepostChannelID.Valid {
		result.RepostChannelID = &chat.RepostChannelID.Int64
	}

	return result, nil
}

// ensureChat must be called with h.mu held.
func ensureChat(ctx context.Context, h *Handle, chatID int64) error {
	if _, err := h.db.ExecContext(
		ctx,
		h.rebind(`INSERT INTO chat (chat_id) VALUES (?) ON CONFLICT DO NOTHING`),
		chatID,
	); err != nil {
		return fmt.Errorf("error creating chat %d: %w", chatID, err)
	}

	return nil
}
