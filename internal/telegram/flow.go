package telegram

import (
	"sync"

	"github.com/oatsaysai/collect-in-telegram/internal/models"
)

// flowStep tracks where a chat is inside a multi-message dialog
type flowStep int

const (
	stepNone flowStep = iota
	stepCreateTitle
	stepCreateAmountType
	stepCreateAmount
	stepCreateParticipants
	stepCreateExpectedCount
	stepCreateDetails
	stepConfirmAmount
)

// createDraft accumulates answers of the pool creation dialog
type createDraft struct {
	Title         string
	AmountType    models.AmountType
	Amount        int64
	ExpectedCount int
	Details       string
	// Known contacts offered for pre-selection and which of them are picked
	Suggested []*models.User
	Picked    map[int]bool
}

// flowState is one chat's dialog position
type flowState struct {
	Step  flowStep
	Draft *createDraft
	// PoolID/ParticipantID target of a pending custom-amount confirmation
	PoolID        string
	ParticipantID string
}

// flows keeps per-chat dialog state in memory. State is intentionally
// ephemeral: a restart simply drops unfinished dialogs.
type flows struct {
	mu sync.Mutex
	m  map[int64]*flowState
}

func newFlows() *flows {
	return &flows{m: make(map[int64]*flowState)}
}

func (f *flows) get(chatID int64) *flowState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.m[chatID]
}

func (f *flows) set(chatID int64, st *flowState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.m[chatID] = st
}

func (f *flows) clear(chatID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.m, chatID)
}
