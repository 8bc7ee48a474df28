package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oatsaysai/collect-in-telegram/internal/models"
)

// Pools is the PostgreSQL implementation of PoolStore
type Pools struct {
	pool *pgxpool.Pool
}

// NewPools creates a pool store backed by the given connection pool
func NewPools(pool *pgxpool.Pool) *Pools {
	return &Pools{pool: pool}
}

const poolColumns = `id, owner_id, title, amount_type, total_amount, per_person_amount,
	share_amount, expected_participants_count, payment_details, join_code, currency,
	is_closed, created_at, updated_at`

const participantColumns = `p.id, p.pool_id, p.user_id, p.display_name, p.status,
	p.paid_amount, p.expected_amount, p.pay_method, p.note,
	p.joined_at, p.marked_at, p.confirmed_at, p.created_at`

func scanPool(row pgx.Row) (*models.Pool, error) {
	var p models.Pool
	err := row.Scan(
		&p.ID, &p.OwnerID, &p.Title, &p.AmountType, &p.TotalAmount, &p.PerPersonAmount,
		&p.ShareAmount, &p.ExpectedParticipantsCount, &p.PaymentDetails, &p.JoinCode,
		&p.Currency, &p.IsClosed, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func scanParticipant(row pgx.Row) (*models.Participant, error) {
	var p models.Participant
	var userID *string
	err := row.Scan(
		&p.ID, &p.PoolID, &userID, &p.DisplayName, &p.Status,
		&p.PaidAmount, &p.ExpectedAmount, &p.PayMethod, &p.Note,
		&p.JoinedAt, &p.MarkedAt, &p.ConfirmedAt, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	if userID != nil {
		p.UserID = *userID
	}
	return &p, nil
}

// CreateWithParticipants writes the pool and seeded participants atomically
func (s *Pools) CreateWithParticipants(ctx context.Context, pool *models.Pool, participants []*models.Participant) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin pool creation: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO pools (id, owner_id, title, amount_type, total_amount, per_person_amount,
			share_amount, expected_participants_count, payment_details, join_code, currency, is_closed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, FALSE)`,
		pool.ID, pool.OwnerID, pool.Title, pool.AmountType, pool.TotalAmount, pool.PerPersonAmount,
		pool.ShareAmount, pool.ExpectedParticipantsCount, pool.PaymentDetails, pool.JoinCode, pool.Currency,
	)
	if err != nil {
		return fmt.Errorf("failed to insert pool: %w", err)
	}

	for _, p := range participants {
		_, err = tx.Exec(ctx, `
			INSERT INTO pool_participants (id, pool_id, user_id, display_name, status, expected_amount, pay_method)
			VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7)`,
			p.ID, p.PoolID, p.UserID, p.DisplayName, p.Status, p.ExpectedAmount, p.PayMethod,
		)
		if err != nil {
			return fmt.Errorf("failed to insert seeded participant: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit pool creation: %w", err)
	}
	return nil
}

func (s *Pools) loadParticipants(ctx context.Context, poolID string) ([]*models.Participant, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+participantColumns+`,
			u.id, u.telegram_id, u.username, u.first_name, u.last_name, u.language_code, u.last_seen_at, u.created_at
		FROM pool_participants p
		LEFT JOIN users u ON u.id = p.user_id
		WHERE p.pool_id = $1
		ORDER BY p.created_at, p.id`, poolID)
	if err != nil {
		return nil, fmt.Errorf("failed to query participants of pool %s: %w", poolID, err)
	}
	defer rows.Close()

	var out []*models.Participant
	for rows.Next() {
		var p models.Participant
		var userID *string
		var uID, uUsername, uFirst, uLast, uLang *string
		var uTelegramID *int64
		var uLastSeen, uCreated *time.Time
		err := rows.Scan(
			&p.ID, &p.PoolID, &userID, &p.DisplayName, &p.Status,
			&p.PaidAmount, &p.ExpectedAmount, &p.PayMethod, &p.Note,
			&p.JoinedAt, &p.MarkedAt, &p.ConfirmedAt, &p.CreatedAt,
			&uID, &uTelegramID, &uUsername, &uFirst, &uLast, &uLang, &uLastSeen, &uCreated,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan participant row: %w", err)
		}
		if userID != nil {
			p.UserID = *userID
		}
		if uID != nil {
			p.User = &models.User{
				ID:           *uID,
				TelegramID:   *uTelegramID,
				Username:     *uUsername,
				FirstName:    *uFirst,
				LastName:     *uLast,
				LanguageCode: *uLang,
				LastSeenAt:   *uLastSeen,
				CreatedAt:    *uCreated,
			}
		}
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate participant rows: %w", err)
	}
	return out, nil
}

func (s *Pools) hydrate(ctx context.Context, pool *models.Pool) (*models.Pool, error) {
	owner, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, pool.OwnerID))
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("failed to load pool owner: %w", err)
	}
	pool.Owner = owner

	participants, err := s.loadParticipants(ctx, pool.ID)
	if err != nil {
		return nil, err
	}
	pool.Participants = participants
	return pool, nil
}

// GetByID returns the fully hydrated pool aggregate
func (s *Pools) GetByID(ctx context.Context, id string) (*models.Pool, error) {
	p, err := scanPool(s.pool.QueryRow(ctx, `SELECT `+poolColumns+` FROM pools WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get pool %s: %w", id, err)
	}
	return s.hydrate(ctx, p)
}

// GetByIDForOwner returns the hydrated pool only when owned by ownerID
func (s *Pools) GetByIDForOwner(ctx context.Context, id, ownerID string) (*models.Pool, error) {
	p, err := scanPool(s.pool.QueryRow(ctx,
		`SELECT `+poolColumns+` FROM pools WHERE id = $1 AND owner_id = $2`, id, ownerID))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get pool %s for owner: %w", id, err)
	}
	return s.hydrate(ctx, p)
}

// GetByJoinCode resolves a join code against open pools only
func (s *Pools) GetByJoinCode(ctx context.Context, code string) (*models.Pool, error) {
	p, err := scanPool(s.pool.QueryRow(ctx,
		`SELECT `+poolColumns+` FROM pools WHERE join_code = $1 AND is_closed = FALSE`, code))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to resolve join code: %w", err)
	}
	return s.hydrate(ctx, p)
}

// ListByOwner returns one page of the owner's pools, newest first, plus the total count
func (s *Pools) ListByOwner(ctx context.Context, ownerID string, page, limit int) ([]*models.Pool, int, error) {
	var total int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM pools WHERE owner_id = $1`, ownerID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count pools of owner %s: %w", ownerID, err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+poolColumns+` FROM pools
		WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, ownerID, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list pools of owner %s: %w", ownerID, err)
	}
	defer rows.Close()

	var pools []*models.Pool
	for rows.Next() {
		p, err := scanPool(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan pool row: %w", err)
		}
		pools = append(pools, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate pool rows: %w", err)
	}

	for _, p := range pools {
		if _, err := s.hydrate(ctx, p); err != nil {
			return nil, 0, err
		}
	}
	return pools, total, nil
}

// SetClosed toggles the closed flag
func (s *Pools) SetClosed(ctx context.Context, id string, closed bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE pools SET is_closed = $2, updated_at = CURRENT_TIMESTAMP WHERE id = $1`, id, closed)
	if err != nil {
		return fmt.Errorf("failed to set closed flag on pool %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// Delete removes the pool; participants go with it via ON DELETE CASCADE
func (s *Pools) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM pools WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete pool %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// Admit upserts the (pool, user) participant row. Concurrent admissions are
// collapsed by the unique index. Only invited rows get promoted to joined; an
// existing joined, marked_paid, confirmed or declined row keeps its status and
// at most gets joined_at backfilled.
func (s *Pools) Admit(ctx context.Context, p *models.Participant) (*models.Participant, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO pool_participants AS p
			(id, pool_id, user_id, display_name, status, expected_amount, pay_method, joined_at)
		VALUES ($1, $2, $3, $4, 'joined', $5, 'unknown', CURRENT_TIMESTAMP)
		ON CONFLICT (pool_id, user_id) WHERE user_id IS NOT NULL DO UPDATE SET
			status = CASE
				WHEN p.status = 'invited' THEN 'joined'
				ELSE p.status
			END,
			joined_at = COALESCE(p.joined_at, CURRENT_TIMESTAMP)
		RETURNING `+participantColumns,
		p.ID, p.PoolID, p.UserID, p.DisplayName, p.ExpectedAmount,
	)
	stored, err := scanParticipant(row)
	if err != nil {
		return nil, fmt.Errorf("failed to admit participant into pool %s: %w", p.PoolID, err)
	}
	return stored, nil
}

// InsertParticipant writes a new participant row as-is
func (s *Pools) InsertParticipant(ctx context.Context, p *models.Participant) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pool_participants
			(id, pool_id, user_id, display_name, status, paid_amount, expected_amount,
			 pay_method, note, joined_at, marked_at, confirmed_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		p.ID, p.PoolID, p.UserID, p.DisplayName, p.Status, p.PaidAmount, p.ExpectedAmount,
		p.PayMethod, p.Note, p.JoinedAt, p.MarkedAt, p.ConfirmedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return err
		}
		return fmt.Errorf("failed to insert participant: %w", err)
	}
	return nil
}

// UpdateParticipant overwrites the mutable fields of the participant row
func (s *Pools) UpdateParticipant(ctx context.Context, p *models.Participant) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE pool_participants SET
			status = $2, paid_amount = $3, expected_amount = $4, pay_method = $5,
			note = $6, joined_at = $7, marked_at = $8, confirmed_at = $9
		WHERE id = $1`,
		p.ID, p.Status, p.PaidAmount, p.ExpectedAmount, p.PayMethod,
		p.Note, p.JoinedAt, p.MarkedAt, p.ConfirmedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update participant %s: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// KnownParticipants returns the owner's past contributors, deduplicated by user
func (s *Pools) KnownParticipants(ctx context.Context, ownerID string) ([]*models.User, error) {
	// DISTINCT ON forces its own ordering, so the recency sort needs an
	// outer query.
	rows, err := s.pool.Query(ctx, `
		SELECT id, telegram_id, username, first_name, last_name, language_code, last_seen_at, created_at
		FROM (
			SELECT DISTINCT ON (u.id) u.id, u.telegram_id, u.username, u.first_name,
				u.last_name, u.language_code, u.last_seen_at, u.created_at
			FROM users u
			JOIN pool_participants p ON p.user_id = u.id
			JOIN pools pl ON pl.id = p.pool_id
			WHERE pl.owner_id = $1 AND u.id <> $1
			ORDER BY u.id
		) known
		ORDER BY last_seen_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query known participants of owner %s: %w", ownerID, err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan known participant: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate known participants: %w", err)
	}
	return users, nil
}
