// Package store persists users, pools and participants in PostgreSQL.
package store

import (
	"context"
	"time"

	"github.com/oatsaysai/collect-in-telegram/internal/models"
)

// UserStore persists durable identities.
type UserStore interface {
	// Upsert creates the user on first contact or refreshes the mutable
	// fields (names, username, language, last-seen) keyed by telegram id.
	// The returned user carries the stored internal id.
	Upsert(ctx context.Context, user *models.User) (*models.User, error)

	// GetByID returns the user with the given internal id.
	// Returns models.ErrNotFound when absent.
	GetByID(ctx context.Context, id string) (*models.User, error)

	// GetByTelegramID returns the user with the given telegram id.
	// Returns models.ErrNotFound when absent.
	GetByTelegramID(ctx context.Context, telegramID int64) (*models.User, error)
}

// PoolStore persists pools and their participant ledgers.
type PoolStore interface {
	// CreateWithParticipants writes the pool row and all seeded participant
	// rows in a single transaction. Either everything becomes visible or
	// nothing does.
	CreateWithParticipants(ctx context.Context, pool *models.Pool, participants []*models.Participant) error

	// GetByID returns the fully hydrated pool aggregate (owner, participants
	// with linked users). Returns models.ErrNotFound when absent.
	GetByID(ctx context.Context, id string) (*models.Pool, error)

	// GetByIDForOwner is GetByID restricted to pools owned by ownerID.
	// Returns models.ErrNotFound when absent or owned by someone else.
	GetByIDForOwner(ctx context.Context, id, ownerID string) (*models.Pool, error)

	// GetByJoinCode resolves a join code to its pool aggregate. Only open
	// pools match; a valid code for a closed pool returns models.ErrNotFound.
	GetByJoinCode(ctx context.Context, code string) (*models.Pool, error)

	// ListByOwner returns one page of the owner's pools, newest first,
	// together with the total pool count.
	ListByOwner(ctx context.Context, ownerID string, page, limit int) ([]*models.Pool, int, error)

	// SetClosed toggles the closed flag. Returns models.ErrNotFound when the
	// pool does not exist.
	SetClosed(ctx context.Context, id string, closed bool) error

	// Delete removes the pool and cascades to its participants.
	Delete(ctx context.Context, id string) error

	// Admit inserts the participant or, when a row for (pool, user) already
	// exists, backfills its joined_at. Only invited rows are promoted to
	// joined; every other status (joined, marked_paid, confirmed, declined)
	// is kept as-is. The operation is atomic: concurrent calls for the same
	// (pool, user) yield exactly one row. Returns the stored row.
	Admit(ctx context.Context, p *models.Participant) (*models.Participant, error)

	// InsertParticipant writes a new participant row as-is. A uniqueness
	// violation on (pool, user) is reported via IsUniqueViolation.
	InsertParticipant(ctx context.Context, p *models.Participant) error

	// UpdateParticipant overwrites the mutable fields of the participant row.
	// Returns models.ErrNotFound when the row does not exist.
	UpdateParticipant(ctx context.Context, p *models.Participant) error

	// KnownParticipants returns the deduplicated users that have ever been
	// linked as participants in pools owned by ownerID, excluding the owner,
	// most recently seen first.
	KnownParticipants(ctx context.Context, ownerID string) ([]*models.User, error)
}

// UsageStats is the aggregate snapshot served by the admin dashboard.
type UsageStats struct {
	UsersTotal        int       `json:"users_total"`
	UsersActive24h    int       `json:"users_active_24h"`
	PoolsTotal        int       `json:"pools_total"`
	PoolsOpen         int       `json:"pools_open"`
	PoolsClosed       int       `json:"pools_closed"`
	PoolsNew24h       int       `json:"pools_new_24h"`
	ParticipantsTotal int       `json:"participants_total"`
	ConfirmedTotal    int       `json:"confirmed_total"`
	Confirmed24h      int       `json:"confirmed_24h"`
	LastUpdated       time.Time `json:"last_updated"`
}

// PoolSummary is a trimmed pool row for dashboard listings.
type PoolSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	OwnerID   string    `json:"owner_id"`
	IsClosed  bool      `json:"is_closed"`
	CreatedAt time.Time `json:"created_at"`
}

// StatsStore serves read-only aggregates for the admin dashboard.
type StatsStore interface {
	UsageStats(ctx context.Context) (*UsageStats, error)
	RecentPools(ctx context.Context, limit int) ([]*PoolSummary, error)
	RecentUsers(ctx context.Context, limit int) ([]*models.User, error)
}
