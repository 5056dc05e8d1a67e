package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/radiusdt/banner-analytics/internal/models"
)

// PostgresSessionStore implements SessionStore on PostgreSQL. The
// first-view check rides a uniqueness constraint on banner_session_views:
// INSERT ... ON CONFLICT DO NOTHING with the affected-row count is a single
// serializable operation, so two concurrent "first" views can never both
// win.
type PostgresSessionStore struct {
	pool *pgxpool.Pool
}

// NewPostgresSessionStore creates a PostgreSQL-backed session store.
func NewPostgresSessionStore(pool *pgxpool.Pool) *PostgresSessionStore {
	return &PostgresSessionStore{pool: pool}
}

var _ SessionStore = (*PostgresSessionStore)(nil)

func (s *PostgresSessionStore) UpsertActivity(ctx context.Context, sessionID, visitorID, countryCode string, pageView bool, at time.Time) error {
	pageInc := 0
	interactionInc := 0
	if pageView {
		pageInc = 1
	} else {
		interactionInc = 1
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO user_sessions (
			session_id, visitor_id, country_code, page_views,
			banner_interactions, first_seen_at, last_seen_at
		) VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (session_id) DO UPDATE SET
			visitor_id = COALESCE(NULLIF(EXCLUDED.visitor_id, ''), user_sessions.visitor_id),
			country_code = COALESCE(NULLIF(EXCLUDED.country_code, ''), user_sessions.country_code),
			page_views = user_sessions.page_views + $4,
			banner_interactions = user_sessions.banner_interactions + $5,
			last_seen_at = EXCLUDED.last_seen_at
	`, sessionID, visitorID, countryCode, pageInc, interactionInc, at.UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert session: %w", err)
	}
	return nil
}

func (s *PostgresSessionStore) FirstView(ctx context.Context, sessionID string, bannerID int64) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO banner_session_views (banner_id, session_id, seen_at)
		VALUES ($1, $2, now())
		ON CONFLICT (banner_id, session_id) DO NOTHING
	`, bannerID, sessionID)
	if err != nil {
		return false, fmt.Errorf("failed to record first view: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresSessionStore) GetSession(ctx context.Context, sessionID string) (*models.UserSession, error) {
	var sess models.UserSession
	err := s.pool.QueryRow(ctx, `
		SELECT session_id, visitor_id, country_code, page_views,
		       banner_interactions, first_seen_at, last_seen_at
		FROM user_sessions WHERE session_id = $1
	`, sessionID).Scan(
		&sess.SessionID, &sess.VisitorID, &sess.CountryCode, &sess.PageViews,
		&sess.BannerInteractions, &sess.FirstSeenAt, &sess.LastSeenAt,
	)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &sess, nil
}
