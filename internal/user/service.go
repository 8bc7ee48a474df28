// Package user implements upsert-on-contact identity handling.
package user

import (
	"context"
	"fmt"

	"github.com/oatsaysai/collect-in-telegram/internal/models"
	"github.com/oatsaysai/collect-in-telegram/internal/store"
)

// Identity is the external chat identity as supplied by the transport layer
type Identity struct {
	TelegramID   int64
	Username     string
	FirstName    string
	LastName     string
	LanguageCode string
}

// Service maps external chat identities to durable user records
type Service struct {
	users store.UserStore
}

// NewService creates the identity service
func NewService(users store.UserStore) *Service {
	return &Service{users: users}
}

// UpsertIdentity creates the user on first contact and refreshes the
// display-name fields and last-seen timestamp on every subsequent one
func (s *Service) UpsertIdentity(ctx context.Context, id Identity) (*models.User, error) {
	if id.TelegramID == 0 {
		return nil, models.NewValidationError("telegram_id", "must be set")
	}
	u, err := s.users.Upsert(ctx, &models.User{
		TelegramID:   id.TelegramID,
		Username:     id.Username,
		FirstName:    id.FirstName,
		LastName:     id.LastName,
		LanguageCode: id.LanguageCode,
	})
	if err != nil {
		return nil, fmt.Errorf("error upserting identity: %w", err)
	}
	return u, nil
}

// GetByTelegramID looks up the durable record for a telegram account
func (s *Service) GetByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	return s.users.GetByTelegramID(ctx, telegramID)
}

// GetByID looks up the durable record by internal id
func (s *Service) GetByID(ctx context.Context, id string) (*models.User, error) {
	return s.users.GetByID(ctx, id)
}
