package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oatsaysai/collect-in-telegram/internal/models"
)

// Stats is the PostgreSQL implementation of StatsStore
type Stats struct {
	pool *pgxpool.Pool
}

// NewStats creates a stats store backed by the given connection pool
func NewStats(pool *pgxpool.Pool) *Stats {
	return &Stats{pool: pool}
}

// UsageStats collects the dashboard counters in one round trip
func (s *Stats) UsageStats(ctx context.Context) (*UsageStats, error) {
	var st UsageStats
	err := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM users WHERE last_seen_at >= NOW() - INTERVAL '24 hours'),
			(SELECT COUNT(*) FROM pools),
			(SELECT COUNT(*) FROM pools WHERE is_closed = FALSE),
			(SELECT COUNT(*) FROM pools WHERE is_closed = TRUE),
			(SELECT COUNT(*) FROM pools WHERE created_at >= NOW() - INTERVAL '24 hours'),
			(SELECT COUNT(*) FROM pool_participants),
			(SELECT COUNT(*) FROM pool_participants WHERE status = 'confirmed'),
			(SELECT COUNT(*) FROM pool_participants WHERE status = 'confirmed'
				AND confirmed_at >= NOW() - INTERVAL '24 hours')
	`).Scan(
		&st.UsersTotal, &st.UsersActive24h,
		&st.PoolsTotal, &st.PoolsOpen, &st.PoolsClosed, &st.PoolsNew24h,
		&st.ParticipantsTotal, &st.ConfirmedTotal, &st.Confirmed24h,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to collect usage stats: %w", err)
	}
	st.LastUpdated = time.Now().UTC()
	return &st, nil
}

// RecentPools returns the newest pools for the dashboard
func (s *Stats) RecentPools(ctx context.Context, limit int) ([]*PoolSummary, error) {
	if limit <= 0 {
		limit = 8
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, title, owner_id, is_closed, created_at
		FROM pools
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent pools: %w", err)
	}
	defer rows.Close()

	var out []*PoolSummary
	for rows.Next() {
		var p PoolSummary
		if err := rows.Scan(&p.ID, &p.Title, &p.OwnerID, &p.IsClosed, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan recent pool: %w", err)
		}
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate recent pools: %w", err)
	}
	return out, nil
}

// RecentUsers returns the most recently seen users for the dashboard
func (s *Stats) RecentUsers(ctx context.Context, limit int) ([]*models.User, error) {
	if limit <= 0 {
		limit = 8
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+userColumns+`
		FROM users
		ORDER BY last_seen_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent users: %w", err)
	}
	defer rows.Close()

	var out []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan recent user: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate recent users: %w", err)
	}
	return out, nil
}
