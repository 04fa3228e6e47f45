package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/dukerupert/pointledger/internal/model"
)

// AchievementStore records where uploaded achievement images live.
type AchievementStore struct {
	db *sqlx.DB
}

func NewAchievementStore(db *sqlx.DB) *AchievementStore {
	return &AchievementStore{db: db}
}

const achievementCols = `id, account_id, image_url, uploaded_at`

func (s *AchievementStore) Create(ctx context.Context, accountID int64, url string) (*model.AchievementImage, error) {
	var id int64
	err := s.db.GetContext(ctx, &id, s.db.Rebind(
		`INSERT INTO achievement_images (account_id, image_url) VALUES (?, ?) RETURNING id`),
		accountID, url,
	)
	if err != nil {
		return nil, fmt.Errorf("insert achievement image: %w", err)
	}

	var img model.AchievementImage
	err = s.db.GetContext(ctx, &img, s.db.Rebind(`SELECT `+achievementCols+` FROM achievement_images WHERE id = ?`), id)
	if err != nil {
		return nil, fmt.Errorf("get achievement image: %w", err)
	}
	return &img, nil
}

func (s *AchievementStore) ListByAccount(ctx context.Context, accountID int64) ([]model.AchievementImage, error) {
	imgs := []model.AchievementImage{}
	err := s.db.SelectContext(ctx, &imgs, s.db.Rebind(
		`SELECT `+achievementCols+` FROM achievement_images WHERE account_id = ? ORDER BY uploaded_at DESC, id DESC`),
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("list achievement images: %w", err)
	}
	return imgs, nil
}
