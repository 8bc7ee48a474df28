package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUserDisplayName(t *testing.T) {
	tests := []struct {
		name string
		user *User
		want string
	}{
		{"full name", &User{FirstName: "Анна", LastName: "Иванова"}, "Анна Иванова"},
		{"first name only", &User{FirstName: "Анна"}, "Анна"},
		{"last name only", &User{LastName: "Иванова"}, "Иванова"},
		{"username fallback", &User{Username: "anna"}, "@anna"},
		{"empty identity", &User{}, "Участник"},
		{"nil user", nil, "Неизвестный"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.user.DisplayName())
		})
	}
}

func TestParticipantStatusTerminal(t *testing.T) {
	assert.False(t, StatusInvited.Terminal())
	assert.False(t, StatusJoined.Terminal())
	assert.False(t, StatusMarkedPaid.Terminal())
	assert.True(t, StatusConfirmed.Terminal())
	assert.True(t, StatusDeclined.Terminal())
}

func TestPoolAggregates(t *testing.T) {
	p := &Pool{
		AmountType:  AmountTypeTotal,
		TotalAmount: 1000,
		Participants: []*Participant{
			{ID: "a", UserID: "u1", Status: StatusConfirmed, PaidAmount: 340},
			{ID: "b", UserID: "u2", Status: StatusMarkedPaid, PaidAmount: 340},
			{ID: "c", UserID: "u3", Status: StatusDeclined},
			{ID: "d", Status: StatusInvited},
		},
	}

	// Only confirmed money counts as collected.
	assert.Equal(t, int64(340), p.CollectedAmount())
	assert.Equal(t, int64(1000), p.TargetAmount())
	assert.Len(t, p.ActiveParticipants(), 3)

	assert.Equal(t, "b", p.ParticipantByUser("u2").ID)
	assert.Nil(t, p.ParticipantByUser("u9"))
	assert.Nil(t, p.ParticipantByUser(""), "roster rows without a user never match")
	assert.Equal(t, "d", p.ParticipantByID("d").ID)
}

func TestPerPersonTargetAmount(t *testing.T) {
	p := &Pool{
		AmountType:      AmountTypePerPerson,
		PerPersonAmount: 250,
		Participants: []*Participant{
			{ID: "a", UserID: "u1", Status: StatusJoined},
			{ID: "b", UserID: "u2", Status: StatusDeclined},
		},
		ExpectedParticipantsCount: 4,
	}
	// Declined rows do not raise the target.
	assert.Equal(t, int64(250), p.TargetAmount())

	// With no roster at all the expected count stands in.
	p.Participants = nil
	assert.Equal(t, int64(1000), p.TargetAmount())
}

func TestValidationError(t *testing.T) {
	err := NewValidationError("amount", "must be positive")
	assert.True(t, IsValidationError(err))
	assert.Contains(t, err.Error(), "amount")

	var vErr *ValidationError
	assert.True(t, errors.As(err, &vErr))
	assert.Equal(t, "amount", vErr.Field)

	assert.False(t, IsValidationError(ErrNotFound))
	assert.False(t, IsValidationError(nil))
}
