package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mosaicbots/postcardbot/internal/models"
)

type GenerationRepository struct {
	db *sql.DB
}

func NewGenerationRepository(db *sql.DB) *GenerationRepository {
	return &GenerationRepository{db: db}
}

func (r *GenerationRepository) Log(ctx context.Context, entry *models.GenerationLog) error {
	const query = `
INSERT INTO generation_logs (user_id, occasion, style, font, text_mode, image_url)
VALUES (?, ?, ?, ?, ?, ?)`
	var imageURL sql.NullString
	if entry.ImageURL != "" {
		imageURL = sql.NullString{String: entry.ImageURL, Valid: true}
	}
	if _, err := r.db.ExecContext(ctx, query, entry.UserID, entry.Occasion, entry.Style, entry.Font, entry.TextMode, imageURL); err != nil {
		return fmt.Errorf("insert generation log: %w", err)
	}
	return nil
}

func (r *GenerationRepository) Count(ctx context.Context) (int64, error) {
	const query = `SELECT COUNT(*) FROM generation_logs`
	row := r.db.QueryRowContext(ctx, query)
	var count int64
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count generations: %w", err)
	}
	return count, nil
}
