package storage

import (
	"context"
	"fmt"

	"github.com/samber/lo"

	"tgreddit/internal/model"
)

// MediaStorage keeps the provider handles of delivered gallery files so
// they can be sent again without downloading.
type MediaStorage struct {
	h *Handle
}

type dbTelegramFile struct {
	ID           int64  `db:"id"`
	PostID       string `db:"post_id"`
	ChatID       int64  `db:"chat_id"`
	FileID       string `db:"telegram_file_id"`
	FileUniqueID string `db:"telegram_file_unique_id"`
}

func NewMediaStorage(h *Handle) *MediaStorage {
	return &MediaStorage{h: h}
}

// Store saves files in order. The post record must exist.
func (s *MediaStorage) Store(ctx context.Context, chatID int64, postID string, files []model.MediaFile) error {
	if len(files) == 0 {
		return nil
	}

	s.h.mu.Lock()
	defer s.h.mu.Unlock()

	tx, err := s.h.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	query := s.h.rebind(`INSERT INTO telegram_file (post_id, chat_id, telegram_file_id, telegram_file_unique_id)
		VALUES (?, ?, ?, ?)
		ON CONFLICT DO NOTHING`)
	for _, f := range files {
		if _, err := tx.ExecContext(ctx, query, postID, chatID, f.FileID, f.FileUniqueID); err != nil {
			return fmt.Errorf("error storing file of post %s: %w", postID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing files of post %s: %w", postID, err)
	}

	return nil
}

// Files returns the stored handles in delivery order.
func (s *MediaStorage) Files(ctx context.Context, chatID int64, postID string) ([]model.MediaFile, error) {
	s.h.mu.Lock()
	defer s.h.mu.Unlock()

	var files []dbTelegramFile
	if err := s.h.db.SelectContext(
		ctx,
		&files,
		s.h.rebind(`SELECT id, post_id, chat_id, telegram_file_id, telegram_file_unique_id
			FROM telegram_file WHERE post_id = ? AND chat_id = ? ORDER BY id`),
		postID,
		chatID,
	); err != nil {
		return nil, fmt.Errorf("error fetching files of post %s: %w", postID, err)
	}

	if len(files) == 0 {
		return nil, ErrNotFound
	}

	return lo.Map(files, func(f dbTelegramFile, _ int) model.MediaFile {
		return model.MediaFile{FileID: f.FileID, FileUniqueID: f.FileUniqueID}
	}), nil
}
