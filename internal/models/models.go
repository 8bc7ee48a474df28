package models

import (
	"strings"
	"time"
)

// AmountType defines how a pool's target amount is interpreted
type AmountType string

const (
	// AmountTypeTotal is a fixed aggregate amount split evenly between participants
	AmountTypeTotal AmountType = "total"
	// AmountTypePerPerson is a fixed individual share, independent of participant count
	AmountTypePerPerson AmountType = "per_person"
)

// Valid reports whether t is a known amount type
func (t AmountType) Valid() bool {
	return t == AmountTypeTotal || t == AmountTypePerPerson
}

// ParticipantStatus is the participant payment state machine
type ParticipantStatus string

const (
	// StatusInvited means the owner seeded this participant, who never interacted yet
	StatusInvited ParticipantStatus = "invited"
	// StatusJoined means the participant opened the join link but did not report payment
	StatusJoined ParticipantStatus = "joined"
	// StatusMarkedPaid means the participant self-reported payment, awaiting confirmation
	StatusMarkedPaid ParticipantStatus = "marked_paid"
	// StatusConfirmed means the owner verified the payment; terminal
	StatusConfirmed ParticipantStatus = "confirmed"
	// StatusDeclined means the participant refused the invitation; terminal
	StatusDeclined ParticipantStatus = "declined"
)

// Valid reports whether s is a known participant status
func (s ParticipantStatus) Valid() bool {
	switch s {
	case StatusInvited, StatusJoined, StatusMarkedPaid, StatusConfirmed, StatusDeclined:
		return true
	}
	return false
}

// Terminal reports whether no further status transitions are allowed from s
func (s ParticipantStatus) Terminal() bool {
	return s == StatusConfirmed || s == StatusDeclined
}

// PayMethod describes how a participant says they paid
type PayMethod string

const (
	PayMethodTransfer PayMethod = "transfer"
	PayMethodCash     PayMethod = "cash"
	PayMethodUnknown  PayMethod = "unknown"
)

// Valid reports whether m is a known payment method
func (m PayMethod) Valid() bool {
	return m == PayMethodTransfer || m == PayMethodCash || m == PayMethodUnknown
}

// User is a durable identity mapped from a Telegram account
type User struct {
	ID           string    `json:"id"`
	TelegramID   int64     `json:"telegram_id"`
	Username     string    `json:"username,omitempty"`
	FirstName    string    `json:"first_name,omitempty"`
	LastName     string    `json:"last_name,omitempty"`
	LanguageCode string    `json:"language_code,omitempty"`
	LastSeenAt   time.Time `json:"last_seen_at"`
	CreatedAt    time.Time `json:"created_at"`
}

// DisplayName builds a human-readable name for the user
func (u *User) DisplayName() string {
	if u == nil {
		return "Неизвестный"
	}
	parts := make([]string, 0, 2)
	if u.FirstName != "" {
		parts = append(parts, u.FirstName)
	}
	if u.LastName != "" {
		parts = append(parts, u.LastName)
	}
	if len(parts) > 0 {
		return strings.Join(parts, " ")
	}
	if u.Username != "" {
		return "@" + u.Username
	}
	return "Участник"
}

// Participant tracks one person's invitation and payment state within a pool
type Participant struct {
	ID     string `json:"id"`
	PoolID string `json:"pool_id"`
	// UserID is empty for roster-only participants that never interacted themselves
	UserID         string            `json:"user_id,omitempty"`
	DisplayName    string            `json:"display_name"`
	Status         ParticipantStatus `json:"status"`
	PaidAmount     int64             `json:"paid_amount"`
	ExpectedAmount int64             `json:"expected_amount"`
	PayMethod      PayMethod         `json:"pay_method"`
	Note           string            `json:"note,omitempty"`
	JoinedAt       *time.Time        `json:"joined_at,omitempty"`
	MarkedAt       *time.Time        `json:"marked_at,omitempty"`
	ConfirmedAt    *time.Time        `json:"confirmed_at,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`

	// User is the linked identity, hydrated on aggregate loads
	User *User `json:"user,omitempty"`
}

// Pool is a single money collection owned by one user
type Pool struct {
	ID         string     `json:"id"`
	OwnerID    string     `json:"owner_id"`
	Title      string     `json:"title"`
	AmountType AmountType `json:"amount_type"`
	// TotalAmount is set iff AmountType is total
	TotalAmount int64 `json:"total_amount,omitempty"`
	// PerPersonAmount is set iff AmountType is per_person
	PerPersonAmount int64 `json:"per_person_amount,omitempty"`
	// ShareAmount is the current per-participant share, seeded into new admissions
	ShareAmount               int64     `json:"share_amount"`
	ExpectedParticipantsCount int       `json:"expected_participants_count"`
	PaymentDetails            string    `json:"payment_details"`
	JoinCode                  string    `json:"join_code"`
	Currency                  string    `json:"currency"`
	IsClosed                  bool      `json:"is_closed"`
	CreatedAt                 time.Time `json:"created_at"`
	UpdatedAt                 time.Time `json:"updated_at"`

	// Owner and Participants are hydrated on aggregate loads
	Owner        *User          `json:"owner,omitempty"`
	Participants []*Participant `json:"participants,omitempty"`
}

// ParticipantByUser returns the participant linked to userID, or nil
func (p *Pool) ParticipantByUser(userID string) *Participant {
	for _, pt := range p.Participants {
		if pt.UserID != "" && pt.UserID == userID {
			return pt
		}
	}
	return nil
}

// ParticipantByID returns the participant with the given id, or nil
func (p *Pool) ParticipantByID(id string) *Participant {
	for _, pt := range p.Participants {
		if pt.ID == id {
			return pt
		}
	}
	return nil
}

// ActiveParticipants returns participants that have not declined
func (p *Pool) ActiveParticipants() []*Participant {
	out := make([]*Participant, 0, len(p.Participants))
	for _, pt := range p.Participants {
		if pt.Status != StatusDeclined {
			out = append(out, pt)
		}
	}
	return out
}

// CollectedAmount sums confirmed payments
func (p *Pool) CollectedAmount() int64 {
	var sum int64
	for _, pt := range p.Participants {
		if pt.Status == StatusConfirmed {
			sum += pt.PaidAmount
		}
	}
	return sum
}

// TargetAmount is the aggregate the pool tries to collect
func (p *Pool) TargetAmount() int64 {
	if p.AmountType == AmountTypePerPerson {
		n := len(p.ActiveParticipants())
		if n == 0 {
			n = p.ExpectedParticipantsCount
		}
		return p.PerPersonAmount * int64(n)
	}
	return p.TotalAmount
}
