package pool

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oatsaysai/collect-in-telegram/internal/models"
	"github.com/oatsaysai/collect-in-telegram/internal/store"
)

// fakePoolStore is an in-memory store.PoolStore honoring the same contracts
// as the PostgreSQL implementation: deep copies on reads, upsert semantics
// for Admit and unique-violation reporting for duplicate (pool, user) rows.
type fakePoolStore struct {
	mu           sync.Mutex
	pools        map[string]*models.Pool
	participants map[string][]*models.Participant // keyed by pool id
	users        map[string]*models.User
	order        []string // pool ids, insertion order
}

func newFakePoolStore() *fakePoolStore {
	return &fakePoolStore{
		pools:        make(map[string]*models.Pool),
		participants: make(map[string][]*models.Participant),
		users:        make(map[string]*models.User),
	}
}

func (f *fakePoolStore) addUser(u *models.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *u
	f.users[u.ID] = &cp
}

func uniqueViolationErr() error {
	return &pgconn.PgError{Code: "23505", ConstraintName: "pool_participants_pool_user_idx"}
}

func copyParticipant(p *models.Participant) *models.Participant {
	cp := *p
	if p.JoinedAt != nil {
		t := *p.JoinedAt
		cp.JoinedAt = &t
	}
	if p.MarkedAt != nil {
		t := *p.MarkedAt
		cp.MarkedAt = &t
	}
	if p.ConfirmedAt != nil {
		t := *p.ConfirmedAt
		cp.ConfirmedAt = &t
	}
	cp.User = nil
	return &cp
}

// hydrate returns a deep copy of the aggregate, mirroring what the SQL store
// assembles with joins.
func (f *fakePoolStore) hydrate(p *models.Pool) *models.Pool {
	cp := *p
	if owner, ok := f.users[p.OwnerID]; ok {
		o := *owner
		cp.Owner = &o
	}
	cp.Participants = make([]*models.Participant, 0, len(f.participants[p.ID]))
	for _, pt := range f.participants[p.ID] {
		c := copyParticipant(pt)
		if pt.UserID != "" {
			if u, ok := f.users[pt.UserID]; ok {
				uc := *u
				c.User = &uc
			}
		}
		cp.Participants = append(cp.Participants, c)
	}
	return &cp
}

func (f *fakePoolStore) CreateWithParticipants(ctx context.Context, pool *models.Pool, participants []*models.Participant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.pools {
		if existing.JoinCode == pool.JoinCode {
			return uniqueViolationErr()
		}
	}
	cp := *pool
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	f.pools[pool.ID] = &cp
	f.order = append(f.order, pool.ID)
	for _, pt := range participants {
		c := copyParticipant(pt)
		c.CreatedAt = time.Now()
		f.participants[pool.ID] = append(f.participants[pool.ID], c)
	}
	return nil
}

func (f *fakePoolStore) GetByID(ctx context.Context, id string) (*models.Pool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.pools[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return f.hydrate(p), nil
}

func (f *fakePoolStore) GetByIDForOwner(ctx context.Context, id, ownerID string) (*models.Pool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.pools[id]
	if !ok || p.OwnerID != ownerID {
		return nil, models.ErrNotFound
	}
	return f.hydrate(p), nil
}

func (f *fakePoolStore) GetByJoinCode(ctx context.Context, code string) (*models.Pool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.pools {
		if p.JoinCode == code && !p.IsClosed {
			return f.hydrate(p), nil
		}
	}
	return nil, models.ErrNotFound
}

func (f *fakePoolStore) ListByOwner(ctx context.Context, ownerID string, page, limit int) ([]*models.Pool, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	owned := make([]*models.Pool, 0)
	for _, id := range f.order {
		if p := f.pools[id]; p != nil && p.OwnerID == ownerID {
			owned = append(owned, p)
		}
	}
	// newest first
	for i, j := 0, len(owned)-1; i < j; i, j = i+1, j-1 {
		owned[i], owned[j] = owned[j], owned[i]
	}
	total := len(owned)
	start := (page - 1) * limit
	if start >= total {
		return nil, total, nil
	}
	end := start + limit
	if end > total {
		end = total
	}
	out := make([]*models.Pool, 0, end-start)
	for _, p := range owned[start:end] {
		out = append(out, f.hydrate(p))
	}
	return out, total, nil
}

func (f *fakePoolStore) SetClosed(ctx context.Context, id string, closed bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.pools[id]
	if !ok {
		return models.ErrNotFound
	}
	p.IsClosed = closed
	p.UpdatedAt = time.Now()
	return nil
}

func (f *fakePoolStore) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.pools[id]; !ok {
		return models.ErrNotFound
	}
	delete(f.pools, id)
	delete(f.participants, id)
	return nil
}

func (f *fakePoolStore) Admit(ctx context.Context, p *models.Participant) (*models.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	for _, existing := range f.participants[p.PoolID] {
		if existing.UserID != "" && existing.UserID == p.UserID {
			if existing.Status == models.StatusInvited {
				existing.Status = models.StatusJoined
			}
			if existing.JoinedAt == nil {
				existing.JoinedAt = &now
			}
			return copyParticipant(existing), nil
		}
	}
	c := copyParticipant(p)
	c.Status = models.StatusJoined
	c.PayMethod = models.PayMethodUnknown
	c.JoinedAt = &now
	c.CreatedAt = now
	f.participants[p.PoolID] = append(f.participants[p.PoolID], c)
	return copyParticipant(c), nil
}

func (f *fakePoolStore) InsertParticipant(ctx context.Context, p *models.Participant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.participants[p.PoolID] {
		if p.UserID != "" && existing.UserID == p.UserID {
			return uniqueViolationErr()
		}
	}
	c := copyParticipant(p)
	c.CreatedAt = time.Now()
	f.participants[p.PoolID] = append(f.participants[p.PoolID], c)
	return nil
}

func (f *fakePoolStore) UpdateParticipant(ctx context.Context, p *models.Participant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, existing := range f.participants[p.PoolID] {
		if existing.ID == p.ID {
			f.participants[p.PoolID][i] = copyParticipant(p)
			return nil
		}
	}
	return models.ErrNotFound
}

func (f *fakePoolStore) KnownParticipants(ctx context.Context, ownerID string) ([]*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := make(map[string]bool)
	var out []*models.User
	for _, id := range f.order {
		p := f.pools[id]
		if p == nil || p.OwnerID != ownerID {
			continue
		}
		for _, pt := range f.participants[id] {
			if pt.UserID == "" || pt.UserID == ownerID || seen[pt.UserID] {
				continue
			}
			seen[pt.UserID] = true
			if u, ok := f.users[pt.UserID]; ok {
				uc := *u
				out = append(out, &uc)
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastSeenAt.After(out[j].LastSeenAt)
	})
	return out, nil
}

var _ store.PoolStore = (*fakePoolStore)(nil)

func testUser(id string, telegramID int64, first string) *models.User {
	return &models.User{
		ID:         id,
		TelegramID: telegramID,
		FirstName:  first,
		LastSeenAt: time.Unix(telegramID, 0),
	}
}

func newTestService(t *testing.T) (*Service, *fakePoolStore) {
	t.Helper()
	f := newFakePoolStore()
	f.addUser(testUser("owner-1", 100, "Аня"))
	f.addUser(testUser("user-2", 200, "Борис"))
	f.addUser(testUser("user-3", 300, "Вера"))
	return NewService(f, "RUB"), f
}

func mustCreatePool(t *testing.T, svc *Service, in CreatePoolInput) *models.Pool {
	t.Helper()
	p, err := svc.CreatePool(context.Background(), in)
	require.NoError(t, err)
	return p
}

func TestCreatePoolValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	base := CreatePoolInput{
		OwnerID:       "owner-1",
		Title:         "Подарок",
		AmountType:    models.AmountTypeTotal,
		Amount:        1000,
		ExpectedCount: 4,
	}

	tests := []struct {
		name   string
		mutate func(*CreatePoolInput)
	}{
		{"missing owner", func(in *CreatePoolInput) { in.OwnerID = "" }},
		{"empty title", func(in *CreatePoolInput) { in.Title = "" }},
		{"bad amount type", func(in *CreatePoolInput) { in.AmountType = "weekly" }},
		{"zero amount", func(in *CreatePoolInput) { in.Amount = 0 }},
		{"negative amount", func(in *CreatePoolInput) { in.Amount = -50 }},
		{"no participants and no count", func(in *CreatePoolInput) { in.ExpectedCount = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := base
			tt.mutate(&in)
			_, err := svc.CreatePool(ctx, in)
			assert.True(t, models.IsValidationError(err), "expected validation error, got %v", err)
		})
	}
}

func TestCreatePoolRejectsDuplicateParticipants(t *testing.T) {
	svc, f := newTestService(t)

	_, err := svc.CreatePool(context.Background(), CreatePoolInput{
		OwnerID:      "owner-1",
		Title:        "Дубликаты",
		AmountType:   models.AmountTypeTotal,
		Amount:       600,
		Participants: []*models.User{f.users["user-2"], f.users["user-2"]},
	})
	assert.True(t, models.IsValidationError(err), "expected validation error, got %v", err)

	_, err = svc.CreatePool(context.Background(), CreatePoolInput{
		OwnerID:      "owner-1",
		Title:        "Без идентичности",
		AmountType:   models.AmountTypeTotal,
		Amount:       600,
		Participants: []*models.User{{FirstName: "Гость"}},
	})
	assert.True(t, models.IsValidationError(err), "expected validation error, got %v", err)
}

func TestCreatePoolSplitsTotalWithCeiling(t *testing.T) {
	svc, _ := newTestService(t)

	p := mustCreatePool(t, svc, CreatePoolInput{
		OwnerID:       "owner-1",
		Title:         "Ужин",
		AmountType:    models.AmountTypeTotal,
		Amount:        1000,
		ExpectedCount: 3,
	})

	assert.Equal(t, int64(334), p.ShareAmount)
	assert.Equal(t, int64(1000), p.TotalAmount)
	assert.Equal(t, 3, p.ExpectedParticipantsCount)
	assert.NotEmpty(t, p.JoinCode)
	assert.False(t, p.IsClosed)
	require.NotNil(t, p.Owner)
	assert.Equal(t, "owner-1", p.Owner.ID)
}

func TestCreatePoolSeedsInvitedParticipants(t *testing.T) {
	svc, f := newTestService(t)

	p := mustCreatePool(t, svc, CreatePoolInput{
		OwnerID:    "owner-1",
		Title:      "Аренда",
		AmountType: models.AmountTypeTotal,
		Amount:     900,
		Participants: []*models.User{
			f.users["user-2"],
			f.users["user-3"],
		},
	})

	require.Len(t, p.Participants, 2)
	for _, pt := range p.Participants {
		assert.Equal(t, models.StatusInvited, pt.Status)
		assert.Equal(t, int64(450), pt.ExpectedAmount)
		assert.Equal(t, int64(0), pt.PaidAmount)
		assert.Nil(t, pt.JoinedAt)
	}
	assert.Equal(t, 2, p.ExpectedParticipantsCount)
}

func TestCreatePoolPerPerson(t *testing.T) {
	svc, _ := newTestService(t)

	p := mustCreatePool(t, svc, CreatePoolInput{
		OwnerID:       "owner-1",
		Title:         "Сбор на кофе",
		AmountType:    models.AmountTypePerPerson,
		Amount:        500,
		ExpectedCount: 4,
	})

	assert.Equal(t, int64(500), p.ShareAmount)
	assert.Equal(t, int64(500), p.PerPersonAmount)
	assert.Equal(t, int64(0), p.TotalAmount)
	assert.Equal(t, int64(2000), p.TargetAmount())
}

func TestCreatePoolRetriesJoinCodeCollision(t *testing.T) {
	svc, f := newTestService(t)

	first := mustCreatePool(t, svc, CreatePoolInput{
		OwnerID:       "owner-1",
		Title:         "Первый",
		AmountType:    models.AmountTypeTotal,
		Amount:        100,
		ExpectedCount: 1,
	})

	// There is no way to force the RNG to collide, so simulate the near-miss
	// from the other side: the store rejects one code and accepts the retry.
	second := mustCreatePool(t, svc, CreatePoolInput{
		OwnerID:       "owner-1",
		Title:         "Второй",
		AmountType:    models.AmountTypeTotal,
		Amount:        100,
		ExpectedCount: 1,
	})
	assert.NotEqual(t, first.JoinCode, second.JoinCode)
	assert.Len(t, f.pools, 2)
}

func TestResolveJoinCode(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	p := mustCreatePool(t, svc, CreatePoolInput{
		OwnerID:       "owner-1",
		Title:         "Поход",
		AmountType:    models.AmountTypeTotal,
		Amount:        600,
		ExpectedCount: 3,
	})

	got, err := svc.ResolveJoinCode(ctx, p.JoinCode)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	_, err = svc.ResolveJoinCode(ctx, "")
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = svc.ResolveJoinCode(ctx, "deadbeef0000")
	assert.ErrorIs(t, err, models.ErrNotFound)

	// Codes of closed pools stop resolving, indistinguishable from unknown codes.
	_, err = svc.SetPoolClosed(ctx, p.ID, "owner-1", true)
	require.NoError(t, err)
	_, err = svc.ResolveJoinCode(ctx, p.JoinCode)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestAdmitParticipant(t *testing.T) {
	svc, f := newTestService(t)
	ctx := context.Background()

	p := mustCreatePool(t, svc, CreatePoolInput{
		OwnerID:       "owner-1",
		Title:         "Сауна",
		AmountType:    models.AmountTypeTotal,
		Amount:        1000,
		ExpectedCount: 4,
	})

	got, err := svc.AdmitParticipant(ctx, p.ID, f.users["user-2"])
	require.NoError(t, err)
	require.Len(t, got.Participants, 1)
	pt := got.ParticipantByUser("user-2")
	require.NotNil(t, pt)
	assert.Equal(t, models.StatusJoined, pt.Status)
	assert.Equal(t, int64(250), pt.ExpectedAmount)
	require.NotNil(t, pt.JoinedAt)

	// Re-entering through the link must not create a second row or reset state.
	firstJoined := *pt.JoinedAt
	got, err = svc.AdmitParticipant(ctx, p.ID, f.users["user-2"])
	require.NoError(t, err)
	require.Len(t, got.Participants, 1)
	assert.Equal(t, firstJoined, *got.ParticipantByUser("user-2").JoinedAt)
}

func TestAdmitParticipantKeepsSnapshotShare(t *testing.T) {
	// The expected amount is frozen at admission time, later joiners do not
	// rewrite earlier snapshots.
	svc, f := newTestService(t)
	ctx := context.Background()

	p := mustCreatePool(t, svc, CreatePoolInput{
		OwnerID:       "owner-1",
		Title:         "Вскладчину",
		AmountType:    models.AmountTypeTotal,
		Amount:        1000,
		ExpectedCount: 4,
	})

	got, err := svc.AdmitParticipant(ctx, p.ID, f.users["user-2"])
	require.NoError(t, err)
	assert.Equal(t, int64(250), got.ParticipantByUser("user-2").ExpectedAmount)

	got, err = svc.AdmitParticipant(ctx, p.ID, f.users["user-3"])
	require.NoError(t, err)
	assert.Equal(t, int64(250), got.ParticipantByUser("user-2").ExpectedAmount)
	assert.Equal(t, int64(250), got.ParticipantByUser("user-3").ExpectedAmount)
}

func TestAdmitAfterSelfReportKeepsMarkedPaid(t *testing.T) {
	// Re-following the join link must not discard a pending self-report.
	svc, f := newTestService(t)
	ctx := context.Background()

	p := mustCreatePool(t, svc, CreatePoolInput{
		OwnerID:       "owner-1",
		Title:         "Повторный вход",
		AmountType:    models.AmountTypeTotal,
		Amount:        1000,
		ExpectedCount: 4,
	})
	_, err := svc.AdmitParticipant(ctx, p.ID, f.users["user-2"])
	require.NoError(t, err)
	_, err = svc.SelfReportPayment(ctx, p.ID, "user-2", models.PayMethodCash, "")
	require.NoError(t, err)

	got, err := svc.AdmitParticipant(ctx, p.ID, f.users["user-2"])
	require.NoError(t, err)
	require.Len(t, got.Participants, 1)
	pt := got.ParticipantByUser("user-2")
	assert.Equal(t, models.StatusMarkedPaid, pt.Status)
	assert.Equal(t, int64(250), pt.PaidAmount)
	assert.Equal(t, models.PayMethodCash, pt.PayMethod)
	require.NotNil(t, pt.MarkedAt)
}

func TestAdmitParticipantClosedPool(t *testing.T) {
	svc, f := newTestService(t)
	ctx := context.Background()

	p := mustCreatePool(t, svc, CreatePoolInput{
		OwnerID:       "owner-1",
		Title:         "Закрытый",
		AmountType:    models.AmountTypeTotal,
		Amount:        100,
		ExpectedCount: 2,
	})
	_, err := svc.SetPoolClosed(ctx, p.ID, "owner-1", true)
	require.NoError(t, err)

	_, err = svc.AdmitParticipant(ctx, p.ID, f.users["user-2"])
	assert.ErrorIs(t, err, models.ErrPoolClosed)
}

func TestAdmitPromotesInvitedRoster(t *testing.T) {
	svc, f := newTestService(t)
	ctx := context.Background()

	p := mustCreatePool(t, svc, CreatePoolInput{
		OwnerID:      "owner-1",
		Title:        "Субботник",
		AmountType:   models.AmountTypeTotal,
		Amount:       400,
		Participants: []*models.User{f.users["user-2"]},
	})

	got, err := svc.AdmitParticipant(ctx, p.ID, f.users["user-2"])
	require.NoError(t, err)
	require.Len(t, got.Participants, 1, "admit must reuse the invited row")
	pt := got.ParticipantByUser("user-2")
	assert.Equal(t, models.StatusJoined, pt.Status)
	require.NotNil(t, pt.JoinedAt)
}

func TestSelfReportPayment(t *testing.T) {
	svc, f := newTestService(t)
	ctx := context.Background()

	p := mustCreatePool(t, svc, CreatePoolInput{
		OwnerID:       "owner-1",
		Title:         "Скидываемся",
		AmountType:    models.AmountTypeTotal,
		Amount:        1000,
		ExpectedCount: 4,
	})
	_, err := svc.AdmitParticipant(ctx, p.ID, f.users["user-2"])
	require.NoError(t, err)

	got, err := svc.SelfReportPayment(ctx, p.ID, "user-2", models.PayMethodCash, "отдал наличными")
	require.NoError(t, err)
	pt := got.ParticipantByUser("user-2")
	assert.Equal(t, models.StatusMarkedPaid, pt.Status)
	assert.Equal(t, int64(250), pt.PaidAmount, "self-report always records the full share")
	assert.Equal(t, models.PayMethodCash, pt.PayMethod)
	assert.Equal(t, "отдал наличными", pt.Note)
	require.NotNil(t, pt.MarkedAt)
}

func TestSelfReportDefaultsToTransfer(t *testing.T) {
	svc, f := newTestService(t)
	ctx := context.Background()

	p := mustCreatePool(t, svc, CreatePoolInput{
		OwnerID:       "owner-1",
		Title:         "Такси",
		AmountType:    models.AmountTypePerPerson,
		Amount:        150,
		ExpectedCount: 3,
	})
	_, err := svc.AdmitParticipant(ctx, p.ID, f.users["user-2"])
	require.NoError(t, err)

	got, err := svc.SelfReportPayment(ctx, p.ID, "user-2", "", "")
	require.NoError(t, err)
	assert.Equal(t, models.PayMethodTransfer, got.ParticipantByUser("user-2").PayMethod)
}

func TestSelfReportErrors(t *testing.T) {
	svc, f := newTestService(t)
	ctx := context.Background()

	p := mustCreatePool(t, svc, CreatePoolInput{
		OwnerID:       "owner-1",
		Title:         "Ошибки",
		AmountType:    models.AmountTypeTotal,
		Amount:        300,
		ExpectedCount: 3,
	})
	_, err := svc.AdmitParticipant(ctx, p.ID, f.users["user-2"])
	require.NoError(t, err)

	_, err = svc.SelfReportPayment(ctx, p.ID, "user-2", "crypto", "")
	assert.True(t, models.IsValidationError(err))

	_, err = svc.SelfReportPayment(ctx, p.ID, "stranger", models.PayMethodCash, "")
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = svc.SetPoolClosed(ctx, p.ID, "owner-1", true)
	require.NoError(t, err)
	_, err = svc.SelfReportPayment(ctx, p.ID, "user-2", models.PayMethodCash, "")
	assert.ErrorIs(t, err, models.ErrPoolClosed)
}

func TestSelfReportAfterConfirmIsNoop(t *testing.T) {
	svc, f := newTestService(t)
	ctx := context.Background()

	p := mustCreatePool(t, svc, CreatePoolInput{
		OwnerID:       "owner-1",
		Title:         "Подтверждено",
		AmountType:    models.AmountTypeTotal,
		Amount:        600,
		ExpectedCount: 2,
	})
	got, err := svc.AdmitParticipant(ctx, p.ID, f.users["user-2"])
	require.NoError(t, err)
	ptID := got.ParticipantByUser("user-2").ID

	amount := int64(280)
	got, err = svc.ConfirmPayment(ctx, p.ID, ptID, "owner-1", &amount)
	require.NoError(t, err)
	require.Equal(t, models.StatusConfirmed, got.ParticipantByUser("user-2").Status)

	// A stale "I paid" tap after the fact must not reopen the row.
	got, err = svc.SelfReportPayment(ctx, p.ID, "user-2", models.PayMethodCash, "")
	require.NoError(t, err)
	pt := got.ParticipantByUser("user-2")
	assert.Equal(t, models.StatusConfirmed, pt.Status)
	assert.Equal(t, int64(280), pt.PaidAmount)
}

func TestConfirmPayment(t *testing.T) {
	svc, f := newTestService(t)
	ctx := context.Background()

	p := mustCreatePool(t, svc, CreatePoolInput{
		OwnerID:       "owner-1",
		Title:         "Сбор",
		AmountType:    models.AmountTypeTotal,
		Amount:        1000,
		ExpectedCount: 4,
	})
	got, err := svc.AdmitParticipant(ctx, p.ID, f.users["user-2"])
	require.NoError(t, err)
	_, err = svc.SelfReportPayment(ctx, p.ID, "user-2", models.PayMethodTransfer, "")
	require.NoError(t, err)
	ptID := got.ParticipantByUser("user-2").ID

	got, err = svc.ConfirmPayment(ctx, p.ID, ptID, "owner-1", nil)
	require.NoError(t, err)
	pt := got.ParticipantByUser("user-2")
	assert.Equal(t, models.StatusConfirmed, pt.Status)
	assert.Equal(t, int64(250), pt.PaidAmount)
	require.NotNil(t, pt.ConfirmedAt)
	assert.Equal(t, int64(250), got.CollectedAmount())
}

func TestConfirmPaymentSkipsMarkedStep(t *testing.T) {
	// The owner can confirm straight from joined, e.g. cash handed over in
	// person. Marked-at is backfilled so the trail stays ordered.
	svc, f := newTestService(t)
	ctx := context.Background()

	p := mustCreatePool(t, svc, CreatePoolInput{
		OwnerID:       "owner-1",
		Title:         "Наличные",
		AmountType:    models.AmountTypeTotal,
		Amount:        800,
		ExpectedCount: 2,
	})
	got, err := svc.AdmitParticipant(ctx, p.ID, f.users["user-2"])
	require.NoError(t, err)
	ptID := got.ParticipantByUser("user-2").ID

	got, err = svc.ConfirmPayment(ctx, p.ID, ptID, "owner-1", nil)
	require.NoError(t, err)
	pt := got.ParticipantByUser("user-2")
	assert.Equal(t, models.StatusConfirmed, pt.Status)
	assert.Equal(t, int64(400), pt.PaidAmount, "defaults to the expected share")
	require.NotNil(t, pt.MarkedAt)
	require.NotNil(t, pt.JoinedAt)
}

func TestConfirmPaymentIdempotent(t *testing.T) {
	svc, f := newTestService(t)
	ctx := context.Background()

	p := mustCreatePool(t, svc, CreatePoolInput{
		OwnerID:       "owner-1",
		Title:         "Дважды",
		AmountType:    models.AmountTypeTotal,
		Amount:        900,
		ExpectedCount: 3,
	})
	got, err := svc.AdmitParticipant(ctx, p.ID, f.users["user-2"])
	require.NoError(t, err)
	ptID := got.ParticipantByUser("user-2").ID

	custom := int64(123)
	_, err = svc.ConfirmPayment(ctx, p.ID, ptID, "owner-1", &custom)
	require.NoError(t, err)

	// Second confirm without an amount keeps the recorded payment.
	got, err = svc.ConfirmPayment(ctx, p.ID, ptID, "owner-1", nil)
	require.NoError(t, err)
	pt := got.ParticipantByUser("user-2")
	assert.Equal(t, models.StatusConfirmed, pt.Status)
	assert.Equal(t, int64(123), pt.PaidAmount)
	assert.Equal(t, int64(123), got.CollectedAmount(), "double confirm must not double count")

	// An explicit amount on re-confirm corrects the record.
	corrected := int64(300)
	got, err = svc.ConfirmPayment(ctx, p.ID, ptID, "owner-1", &corrected)
	require.NoError(t, err)
	assert.Equal(t, int64(300), got.ParticipantByUser("user-2").PaidAmount)
}

func TestConfirmPaymentErrors(t *testing.T) {
	svc, f := newTestService(t)
	ctx := context.Background()

	p := mustCreatePool(t, svc, CreatePoolInput{
		OwnerID:       "owner-1",
		Title:         "Границы",
		AmountType:    models.AmountTypeTotal,
		Amount:        500,
		ExpectedCount: 2,
	})
	got, err := svc.AdmitParticipant(ctx, p.ID, f.users["user-2"])
	require.NoError(t, err)
	ptID := got.ParticipantByUser("user-2").ID

	_, err = svc.ConfirmPayment(ctx, p.ID, ptID, "user-2", nil)
	assert.ErrorIs(t, err, models.ErrForbidden, "only the owner confirms")

	bad := int64(0)
	_, err = svc.ConfirmPayment(ctx, p.ID, ptID, "owner-1", &bad)
	assert.True(t, models.IsValidationError(err))

	_, err = svc.ConfirmPayment(ctx, p.ID, "no-such-participant", "owner-1", nil)
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = svc.SetPoolClosed(ctx, p.ID, "owner-1", true)
	require.NoError(t, err)
	_, err = svc.ConfirmPayment(ctx, p.ID, ptID, "owner-1", nil)
	assert.ErrorIs(t, err, models.ErrPoolClosed)
}

func TestConfirmDeclinedIsNoop(t *testing.T) {
	svc, f := newTestService(t)
	ctx := context.Background()

	p := mustCreatePool(t, svc, CreatePoolInput{
		OwnerID:       "owner-1",
		Title:         "Отказ",
		AmountType:    models.AmountTypeTotal,
		Amount:        500,
		ExpectedCount: 2,
	})
	got, err := svc.AdmitParticipant(ctx, p.ID, f.users["user-2"])
	require.NoError(t, err)
	ptID := got.ParticipantByUser("user-2").ID
	_, err = svc.DeclineInvitation(ctx, p.ID, "user-2")
	require.NoError(t, err)

	got, err = svc.ConfirmPayment(ctx, p.ID, ptID, "owner-1", nil)
	require.NoError(t, err)
	pt := got.ParticipantByUser("user-2")
	assert.Equal(t, models.StatusDeclined, pt.Status)
	assert.Equal(t, int64(0), pt.PaidAmount)
}

func TestOwnerSelfPayment(t *testing.T) {
	svc, f := newTestService(t)
	ctx := context.Background()

	p := mustCreatePool(t, svc, CreatePoolInput{
		OwnerID:       "owner-1",
		Title:         "Сам за себя",
		AmountType:    models.AmountTypeTotal,
		Amount:        1000,
		ExpectedCount: 4,
	})

	// No row yet: one is created already confirmed.
	got, err := svc.OwnerSelfPayment(ctx, p.ID, f.users["owner-1"], nil)
	require.NoError(t, err)
	pt := got.ParticipantByUser("owner-1")
	require.NotNil(t, pt)
	assert.Equal(t, models.StatusConfirmed, pt.Status)
	assert.Equal(t, int64(250), pt.PaidAmount)

	// Second call confirms the same existing row, not a duplicate.
	got, err = svc.OwnerSelfPayment(ctx, p.ID, f.users["owner-1"], nil)
	require.NoError(t, err)
	require.Len(t, got.Participants, 1)

	_, err = svc.OwnerSelfPayment(ctx, p.ID, f.users["user-2"], nil)
	assert.ErrorIs(t, err, models.ErrForbidden)
}

func TestOwnerSelfPaymentCustomAmount(t *testing.T) {
	svc, f := newTestService(t)
	ctx := context.Background()

	p := mustCreatePool(t, svc, CreatePoolInput{
		OwnerID:       "owner-1",
		Title:         "Больше доли",
		AmountType:    models.AmountTypeTotal,
		Amount:        1000,
		ExpectedCount: 4,
	})

	amount := int64(400)
	got, err := svc.OwnerSelfPayment(ctx, p.ID, f.users["owner-1"], &amount)
	require.NoError(t, err)
	pt := got.ParticipantByUser("owner-1")
	assert.Equal(t, int64(400), pt.PaidAmount)
	assert.Equal(t, int64(250), pt.ExpectedAmount)
}

func TestDeclineInvitation(t *testing.T) {
	svc, f := newTestService(t)
	ctx := context.Background()

	p := mustCreatePool(t, svc, CreatePoolInput{
		OwnerID:      "owner-1",
		Title:        "Не пойду",
		AmountType:   models.AmountTypeTotal,
		Amount:       600,
		Participants: []*models.User{f.users["user-2"], f.users["user-3"]},
	})

	got, err := svc.DeclineInvitation(ctx, p.ID, "user-2")
	require.NoError(t, err)
	pt := got.ParticipantByUser("user-2")
	assert.Equal(t, models.StatusDeclined, pt.Status)

	// Declined participants drop out of the active roster but stay on record.
	assert.Len(t, got.Participants, 2)
	assert.Len(t, got.ActiveParticipants(), 1)

	// Decline is terminal: re-entering via the join link does not resurrect it.
	got, err = svc.AdmitParticipant(ctx, p.ID, f.users["user-2"])
	require.NoError(t, err)
	assert.Equal(t, models.StatusDeclined, got.ParticipantByUser("user-2").Status)

	// And declining again changes nothing.
	got, err = svc.DeclineInvitation(ctx, p.ID, "user-2")
	require.NoError(t, err)
	assert.Equal(t, models.StatusDeclined, got.ParticipantByUser("user-2").Status)
}

func TestSetPoolClosed(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	p := mustCreatePool(t, svc, CreatePoolInput{
		OwnerID:       "owner-1",
		Title:         "Закрыть-открыть",
		AmountType:    models.AmountTypeTotal,
		Amount:        100,
		ExpectedCount: 1,
	})

	got, err := svc.SetPoolClosed(ctx, p.ID, "owner-1", true)
	require.NoError(t, err)
	assert.True(t, got.IsClosed)

	// Closing twice is a no-op.
	got, err = svc.SetPoolClosed(ctx, p.ID, "owner-1", true)
	require.NoError(t, err)
	assert.True(t, got.IsClosed)

	// Reopening restores joinability.
	got, err = svc.SetPoolClosed(ctx, p.ID, "owner-1", false)
	require.NoError(t, err)
	assert.False(t, got.IsClosed)
	_, err = svc.ResolveJoinCode(ctx, p.JoinCode)
	assert.NoError(t, err)

	_, err = svc.SetPoolClosed(ctx, p.ID, "user-2", true)
	assert.ErrorIs(t, err, models.ErrForbidden)
}

func TestCloseKeepsParticipantState(t *testing.T) {
	svc, f := newTestService(t)
	ctx := context.Background()

	p := mustCreatePool(t, svc, CreatePoolInput{
		OwnerID:       "owner-1",
		Title:         "Снимок",
		AmountType:    models.AmountTypeTotal,
		Amount:        300,
		ExpectedCount: 3,
	})
	_, err := svc.AdmitParticipant(ctx, p.ID, f.users["user-2"])
	require.NoError(t, err)
	_, err = svc.SelfReportPayment(ctx, p.ID, "user-2", models.PayMethodTransfer, "")
	require.NoError(t, err)

	got, err := svc.SetPoolClosed(ctx, p.ID, "owner-1", true)
	require.NoError(t, err)
	pt := got.ParticipantByUser("user-2")
	assert.Equal(t, models.StatusMarkedPaid, pt.Status)
	assert.Equal(t, int64(100), pt.PaidAmount)
}

func TestDeletePool(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	p := mustCreatePool(t, svc, CreatePoolInput{
		OwnerID:       "owner-1",
		Title:         "Удалить",
		AmountType:    models.AmountTypeTotal,
		Amount:        100,
		ExpectedCount: 1,
	})

	// Open pools are protected from deletion.
	_, err := svc.DeletePool(ctx, p.ID, "owner-1")
	assert.ErrorIs(t, err, models.ErrPoolOpen)
	_, err = svc.GetPool(ctx, p.ID)
	assert.NoError(t, err, "failed delete must leave the pool intact")

	_, err = svc.DeletePool(ctx, p.ID, "user-2")
	assert.ErrorIs(t, err, models.ErrForbidden)

	_, err = svc.SetPoolClosed(ctx, p.ID, "owner-1", true)
	require.NoError(t, err)
	_, err = svc.DeletePool(ctx, p.ID, "owner-1")
	require.NoError(t, err)

	_, err = svc.GetPool(ctx, p.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestListPoolsByOwner(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		mustCreatePool(t, svc, CreatePoolInput{
			OwnerID:       "owner-1",
			Title:         "Пул",
			AmountType:    models.AmountTypeTotal,
			Amount:        100,
			ExpectedCount: 1,
		})
	}

	pools, total, err := svc.ListPoolsByOwner(ctx, "owner-1", 1, 5)
	require.NoError(t, err)
	assert.Equal(t, 7, total)
	assert.Len(t, pools, 5)

	pools, total, err = svc.ListPoolsByOwner(ctx, "owner-1", 2, 5)
	require.NoError(t, err)
	assert.Equal(t, 7, total)
	assert.Len(t, pools, 2)

	// Degenerate paging inputs get clamped rather than rejected.
	pools, _, err = svc.ListPoolsByOwner(ctx, "owner-1", 0, -3)
	require.NoError(t, err)
	assert.Len(t, pools, 7)

	pools, total, err = svc.ListPoolsByOwner(ctx, "user-2", 1, 5)
	require.NoError(t, err)
	assert.Equal(t, 0, total)
	assert.Empty(t, pools)
}

func TestKnownParticipants(t *testing.T) {
	svc, f := newTestService(t)
	ctx := context.Background()

	first := mustCreatePool(t, svc, CreatePoolInput{
		OwnerID:      "owner-1",
		Title:        "Первый пул",
		AmountType:   models.AmountTypeTotal,
		Amount:       100,
		Participants: []*models.User{f.users["user-2"]},
	})
	second := mustCreatePool(t, svc, CreatePoolInput{
		OwnerID:       "owner-1",
		Title:         "Второй пул",
		AmountType:    models.AmountTypeTotal,
		Amount:        100,
		ExpectedCount: 2,
	})
	_, err := svc.AdmitParticipant(ctx, second.ID, f.users["user-2"])
	require.NoError(t, err)
	_, err = svc.AdmitParticipant(ctx, second.ID, f.users["user-3"])
	require.NoError(t, err)
	_, err = svc.OwnerSelfPayment(ctx, first.ID, f.users["owner-1"], nil)
	require.NoError(t, err)

	users, err := svc.KnownParticipants(ctx, "owner-1")
	require.NoError(t, err)
	require.Len(t, users, 2, "deduplicated across pools, owner excluded")
	// Most recently seen first: user-3 was seen after user-2.
	assert.Equal(t, "user-3", users[0].ID)
	assert.Equal(t, "user-2", users[1].ID)
}
