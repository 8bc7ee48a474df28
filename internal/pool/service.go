// Package pool implements the pool lifecycle engine: creation, admission,
// payment self-reports, owner confirmation and closing/deletion.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/oatsaysai/collect-in-telegram/internal/models"
	"github.com/oatsaysai/collect-in-telegram/internal/store"
)

// joinCodeRetries bounds regeneration attempts on a join-code collision
const joinCodeRetries = 3

// Service orchestrates pool and participant state over the store
type Service struct {
	pools    store.PoolStore
	currency string
}

// NewService creates the lifecycle engine
func NewService(pools store.PoolStore, currency string) *Service {
	if currency == "" {
		currency = "RUB"
	}
	return &Service{pools: pools, currency: currency}
}

// CreatePoolInput carries everything needed to open a new collection
type CreatePoolInput struct {
	OwnerID        string
	Title          string
	AmountType     models.AmountType
	Amount         int64
	PaymentDetails string
	// Participants are pre-selected users seeded with status invited
	Participants []*models.User
	// ExpectedCount is the even-split divisor when no participants are pre-selected
	ExpectedCount int
}

func (in *CreatePoolInput) validate() error {
	if in.OwnerID == "" {
		return models.NewValidationError("owner", "must be set")
	}
	if in.Title == "" {
		return models.NewValidationError("title", "must not be empty")
	}
	if !in.AmountType.Valid() {
		return models.NewValidationError("amount_type", "must be total or per_person")
	}
	if in.Amount <= 0 {
		return models.NewValidationError("amount", "must be positive")
	}
	if len(in.Participants) == 0 && in.ExpectedCount < 1 {
		return models.NewValidationError("expected_count", "must be at least 1")
	}
	// A duplicate user would trip the (pool, user) unique index mid-create
	// and masquerade as a join-code collision.
	seen := make(map[string]bool, len(in.Participants))
	for _, u := range in.Participants {
		if u == nil || u.ID == "" {
			return models.NewValidationError("participants", "must be known users")
		}
		if seen[u.ID] {
			return models.NewValidationError("participants", "must not repeat a user")
		}
		seen[u.ID] = true
	}
	return nil
}

// CreatePool validates the input, computes the share amount and atomically
// persists the pool together with its seeded participants
func (s *Service) CreatePool(ctx context.Context, in CreatePoolInput) (*models.Pool, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	participantCount := len(in.Participants)
	if participantCount == 0 {
		participantCount = in.ExpectedCount
	}

	var totalAmount, perPersonAmount int64
	if in.AmountType == models.AmountTypeTotal {
		totalAmount = in.Amount
	} else {
		perPersonAmount = in.Amount
	}
	shareAmount := CalculateShareAmount(in.AmountType, totalAmount, perPersonAmount, participantCount)

	p := &models.Pool{
		ID:                        uuid.NewString(),
		OwnerID:                   in.OwnerID,
		Title:                     in.Title,
		AmountType:                in.AmountType,
		TotalAmount:               totalAmount,
		PerPersonAmount:           perPersonAmount,
		ShareAmount:               shareAmount,
		ExpectedParticipantsCount: participantCount,
		PaymentDetails:            in.PaymentDetails,
		Currency:                  s.currency,
	}

	seeded := make([]*models.Participant, 0, len(in.Participants))
	for _, u := range in.Participants {
		seeded = append(seeded, &models.Participant{
			ID:             uuid.NewString(),
			PoolID:         p.ID,
			UserID:         u.ID,
			DisplayName:    u.DisplayName(),
			Status:         models.StatusInvited,
			ExpectedAmount: shareAmount,
			PayMethod:      models.PayMethodUnknown,
		})
	}

	// Join codes are unique across all pools; regenerate on the rare collision.
	var lastErr error
	for attempt := 0; attempt < joinCodeRetries; attempt++ {
		code, err := GenerateJoinCode()
		if err != nil {
			return nil, err
		}
		p.JoinCode = code

		err = s.pools.CreateWithParticipants(ctx, p, seeded)
		if err == nil {
			return s.pools.GetByID(ctx, p.ID)
		}
		if !store.IsUniqueViolation(err) {
			return nil, fmt.Errorf("error creating pool: %w", err)
		}
		lastErr = err
		log.Printf("Join code collision on pool create, retrying (attempt %d)", attempt+1)
	}
	return nil, fmt.Errorf("error creating pool after %d join code attempts: %w", joinCodeRetries, lastErr)
}

// ResolveJoinCode maps a join code to its pool. Codes of closed pools do not
// resolve; behaviorally that is the same refusal as an unknown code.
func (s *Service) ResolveJoinCode(ctx context.Context, code string) (*models.Pool, error) {
	if code == "" {
		return nil, models.ErrNotFound
	}
	return s.pools.GetByJoinCode(ctx, code)
}

// GetPool returns the hydrated pool aggregate
func (s *Service) GetPool(ctx context.Context, poolID string) (*models.Pool, error) {
	return s.pools.GetByID(ctx, poolID)
}

// GetPoolForOwner returns the pool only when ownerID owns it
func (s *Service) GetPoolForOwner(ctx context.Context, poolID, ownerID string) (*models.Pool, error) {
	return s.pools.GetByIDForOwner(ctx, poolID, ownerID)
}

// AdmitParticipant records that the user entered the pool via its join code.
// Admission is idempotent: only an invited participant is promoted to joined,
// any other existing status (including a pending marked_paid) stays untouched
// and only a missing joined-at gets backfilled. The participant's expected
// amount snapshots the pool's current share amount and is never rewritten
// later.
func (s *Service) AdmitParticipant(ctx context.Context, poolID string, u *models.User) (*models.Pool, error) {
	p, err := s.pools.GetByID(ctx, poolID)
	if err != nil {
		return nil, err
	}
	if p.IsClosed {
		return nil, models.ErrPoolClosed
	}

	_, err = s.pools.Admit(ctx, &models.Participant{
		ID:             uuid.NewString(),
		PoolID:         p.ID,
		UserID:         u.ID,
		DisplayName:    u.DisplayName(),
		ExpectedAmount: p.ShareAmount,
	})
	if err != nil {
		return nil, fmt.Errorf("error admitting participant: %w", err)
	}
	return s.pools.GetByID(ctx, poolID)
}

// SelfReportPayment marks the caller's own participant row as paid in full.
// A self-report always records the complete expected share; custom amounts
// are an owner-only action on the confirm side.
func (s *Service) SelfReportPayment(ctx context.Context, poolID, userID string, method models.PayMethod, note string) (*models.Pool, error) {
	if method == "" {
		method = models.PayMethodTransfer
	}
	if !method.Valid() {
		return nil, models.NewValidationError("pay_method", "must be transfer or cash")
	}

	p, err := s.pools.GetByID(ctx, poolID)
	if err != nil {
		return nil, err
	}
	if p.IsClosed {
		return nil, models.ErrPoolClosed
	}

	participant := p.ParticipantByUser(userID)
	if participant == nil {
		return nil, models.ErrNotFound
	}
	if participant.Status.Terminal() {
		// Confirmed stays confirmed, declined stays declined.
		return p, nil
	}

	now := time.Now()
	participant.Status = models.StatusMarkedPaid
	participant.PaidAmount = participant.ExpectedAmount
	participant.PayMethod = method
	if note != "" {
		participant.Note = note
	}
	participant.MarkedAt = &now
	if participant.JoinedAt == nil {
		participant.JoinedAt = &now
	}

	if err := s.pools.UpdateParticipant(ctx, participant); err != nil {
		return nil, fmt.Errorf("error marking participant paid: %w", err)
	}
	return s.pools.GetByID(ctx, poolID)
}

// ConfirmPayment is the owner attesting that a participant's money arrived.
// Works from any non-declined status; joined-at and marked-at are backfilled
// when the participant skipped those steps so the audit trail stays monotonic.
// Re-confirming is idempotent: without an explicit amount the recorded paid
// amount is preserved, with one it is overwritten. Status never leaves
// confirmed.
func (s *Service) ConfirmPayment(ctx context.Context, poolID, participantID, ownerID string, amount *int64) (*models.Pool, error) {
	if amount != nil && *amount <= 0 {
		return nil, models.NewValidationError("amount", "must be positive")
	}

	p, err := s.pools.GetByID(ctx, poolID)
	if err != nil {
		return nil, err
	}
	if p.OwnerID != ownerID {
		return nil, models.ErrForbidden
	}
	if p.IsClosed {
		return nil, models.ErrPoolClosed
	}

	participant := p.ParticipantByID(participantID)
	if participant == nil {
		return nil, models.ErrNotFound
	}
	if participant.Status == models.StatusDeclined {
		return p, nil
	}

	s.applyConfirmation(participant, amount)
	if err := s.pools.UpdateParticipant(ctx, participant); err != nil {
		return nil, fmt.Errorf("error confirming payment: %w", err)
	}
	return s.pools.GetByID(ctx, poolID)
}

func (s *Service) applyConfirmation(participant *models.Participant, amount *int64) {
	now := time.Now()
	participant.Status = models.StatusConfirmed
	switch {
	case amount != nil:
		participant.PaidAmount = *amount
	case participant.PaidAmount > 0:
		// keep what was recorded earlier
	default:
		participant.PaidAmount = participant.ExpectedAmount
	}
	if participant.JoinedAt == nil {
		participant.JoinedAt = &now
	}
	if participant.MarkedAt == nil {
		participant.MarkedAt = &now
	}
	participant.ConfirmedAt = &now
	if participant.PayMethod == "" {
		participant.PayMethod = models.PayMethodUnknown
	}
}

// OwnerSelfPayment confirms the owner's own contribution, creating their
// participant row on demand when the organizer is also a contributor
func (s *Service) OwnerSelfPayment(ctx context.Context, poolID string, owner *models.User, amount *int64) (*models.Pool, error) {
	if amount != nil && *amount <= 0 {
		return nil, models.NewValidationError("amount", "must be positive")
	}

	p, err := s.pools.GetByID(ctx, poolID)
	if err != nil {
		return nil, err
	}
	if p.OwnerID != owner.ID {
		return nil, models.ErrForbidden
	}
	if p.IsClosed {
		return nil, models.ErrPoolClosed
	}

	participant := p.ParticipantByUser(owner.ID)
	if participant == nil {
		now := time.Now()
		paid := p.ShareAmount
		if amount != nil {
			paid = *amount
		}
		fresh := &models.Participant{
			ID:             uuid.NewString(),
			PoolID:         p.ID,
			UserID:         owner.ID,
			DisplayName:    owner.DisplayName(),
			Status:         models.StatusConfirmed,
			ExpectedAmount: p.ShareAmount,
			PaidAmount:     paid,
			PayMethod:      models.PayMethodUnknown,
			JoinedAt:       &now,
			MarkedAt:       &now,
			ConfirmedAt:    &now,
		}
		err = s.pools.InsertParticipant(ctx, fresh)
		if err == nil {
			return s.pools.GetByID(ctx, poolID)
		}
		if !store.IsUniqueViolation(err) {
			return nil, fmt.Errorf("error recording owner self payment: %w", err)
		}
		// Lost the race against a concurrent admit; reload and confirm that row.
		p, err = s.pools.GetByID(ctx, poolID)
		if err != nil {
			return nil, err
		}
		participant = p.ParticipantByUser(owner.ID)
		if participant == nil {
			return nil, models.ErrNotFound
		}
	}

	if participant.Status == models.StatusDeclined {
		return p, nil
	}
	s.applyConfirmation(participant, amount)
	if err := s.pools.UpdateParticipant(ctx, participant); err != nil {
		return nil, fmt.Errorf("error recording owner self payment: %w", err)
	}
	return s.pools.GetByID(ctx, poolID)
}

// DeclineInvitation is the participant refusing to take part. Deliberately
// non-reversible: the row is kept as a record but leaves the active roster.
func (s *Service) DeclineInvitation(ctx context.Context, poolID, userID string) (*models.Pool, error) {
	p, err := s.pools.GetByID(ctx, poolID)
	if err != nil {
		return nil, err
	}
	if p.IsClosed {
		return nil, models.ErrPoolClosed
	}

	participant := p.ParticipantByUser(userID)
	if participant == nil {
		return nil, models.ErrNotFound
	}
	if participant.Status.Terminal() {
		return p, nil
	}

	participant.Status = models.StatusDeclined
	if err := s.pools.UpdateParticipant(ctx, participant); err != nil {
		return nil, fmt.Errorf("error declining invitation: %w", err)
	}
	return s.pools.GetByID(ctx, poolID)
}

// SetPoolClosed toggles the closed flag. Closing blocks joins and payment
// mutations without touching any participant state; both directions are
// idempotent.
func (s *Service) SetPoolClosed(ctx context.Context, poolID, ownerID string, closed bool) (*models.Pool, error) {
	p, err := s.pools.GetByID(ctx, poolID)
	if err != nil {
		return nil, err
	}
	if p.OwnerID != ownerID {
		return nil, models.ErrForbidden
	}
	if p.IsClosed == closed {
		return p, nil
	}
	if err := s.pools.SetClosed(ctx, poolID, closed); err != nil {
		return nil, fmt.Errorf("error toggling pool closed flag: %w", err)
	}
	return s.pools.GetByID(ctx, poolID)
}

// DeletePool removes a closed pool and its whole participant ledger.
// An open pool can never be deleted.
func (s *Service) DeletePool(ctx context.Context, poolID, ownerID string) (*models.Pool, error) {
	p, err := s.pools.GetByID(ctx, poolID)
	if err != nil {
		return nil, err
	}
	if p.OwnerID != ownerID {
		return nil, models.ErrForbidden
	}
	if !p.IsClosed {
		return nil, models.ErrPoolOpen
	}
	if err := s.pools.Delete(ctx, poolID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// Raced with another delete; the end state is the same.
			return p, nil
		}
		return nil, fmt.Errorf("error deleting pool: %w", err)
	}
	return p, nil
}

// ListPoolsByOwner returns one page of the owner's pools plus the total count
func (s *Service) ListPoolsByOwner(ctx context.Context, ownerID string, page, limit int) ([]*models.Pool, int, error) {
	if limit < 1 {
		limit = 10
	}
	if limit > 50 {
		limit = 50
	}
	if page < 1 {
		page = 1
	}
	return s.pools.ListByOwner(ctx, ownerID, page, limit)
}

// KnownParticipants lists users who ever took part in this owner's pools,
// deduplicated by identity and excluding the owner
func (s *Service) KnownParticipants(ctx context.Context, ownerID string) ([]*models.User, error) {
	return s.pools.KnownParticipants(ctx, ownerID)
}
