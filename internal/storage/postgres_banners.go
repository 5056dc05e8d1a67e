package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/radiusdt/banner-analytics/internal/models"
)

// PostgresBannerRepo reads Banner rows owned by the surrounding CMS. It is
// strictly read-only from this subsystem's perspective.
type PostgresBannerRepo struct {
	pool *pgxpool.Pool
}

// NewPostgresBannerRepo creates a PostgreSQL-backed banner repo.
func NewPostgresBannerRepo(pool *pgxpool.Pool) *PostgresBannerRepo {
	return &PostgresBannerRepo{pool: pool}
}

var _ BannerRepo = (*PostgresBannerRepo)(nil)

// GetBanner returns nil, nil when the banner does not exist.
func (r *PostgresBannerRepo) GetBanner(ctx context.Context, id int64) (*models.Banner, error) {
	var b models.Banner
	err := r.pool.QueryRow(ctx, `
		SELECT id, title, created_at FROM banners WHERE id = $1
	`, id).Scan(&b.ID, &b.Title, &b.CreatedAt)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get banner: %w", err)
	}
	return &b, nil
}

func (r *PostgresBannerRepo) ListBannerIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM banners ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list banners: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
