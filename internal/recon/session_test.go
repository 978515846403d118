package recon

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/writerlane/agreements-backend/internal/models"
)

// fakeFetcher отдаёт договоры из памяти и считает обращения.
type fakeFetcher struct {
	mu         sync.Mutex
	agreements map[uuid.UUID]models.Agreement
	fetchCalls int
	failures   int
}

func newFakeFetcher(agreements ...models.Agreement) *fakeFetcher {
	f := &fakeFetcher{agreements: make(map[uuid.UUID]models.Agreement)}
	for _, a := range agreements {
		f.agreements[a.ID] = a
	}
	return f
}

func (f *fakeFetcher) FetchAgreement(_ context.Context, id uuid.UUID) (*models.Agreement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls++
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("хранилище недоступно")
	}
	a, ok := f.agreements[id]
	if !ok {
		return nil, errors.New("договор не найден")
	}
	copied := a
	copied.Installments = append([]models.Installment(nil), a.Installments...)
	return &copied, nil
}

func (f *fakeFetcher) FetchAll(context.Context) ([]models.Agreement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Agreement, 0, len(f.agreements))
	for _, a := range f.agreements {
		out = append(out, a)
	}
	return out, nil
}

func (f *fakeFetcher) set(a models.Agreement) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.agreements[a.ID] = a
}

func (f *fakeFetcher) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetchCalls
}

// fakeFlagStore — FlagStore в памяти.
type fakeFlagStore struct {
	mu      sync.Mutex
	pending map[uuid.UUID]bool
	spend   map[uuid.UUID]string
}

func newFakeFlagStore() *fakeFlagStore {
	return &fakeFlagStore{
		pending: make(map[uuid.UUID]bool),
		spend:   make(map[uuid.UUID]string),
	}
}

func (s *fakeFlagStore) SetPendingRefresh(_ context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[userID] = true
	return nil
}

func (s *fakeFlagStore) ConsumePendingRefresh(_ context.Context, userID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.pending[userID]
	delete(s.pending, userID)
	return set, nil
}

func (s *fakeFlagStore) SetLastKnownLifetimeSpend(_ context.Context, userID uuid.UUID, _ float64, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spend[userID] = "set"
	return nil
}

func (s *fakeFlagStore) LastKnownLifetimeSpend(context.Context, uuid.UUID) (float64, string, bool, error) {
	return 0, "", false, nil
}

func (s *fakeFlagStore) ClearUser(_ context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, userID)
	delete(s.spend, userID)
	return nil
}

func (s *fakeFlagStore) isPending(userID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending[userID]
}

func scheduledAgreement() models.Agreement {
	agreementID := uuid.New()
	return models.Agreement{
		ID:          agreementID,
		StudentID:   uuid.New(),
		Title:       "Дипломная работа",
		TotalAmount: 300,
		Status:      models.AgreementStatusActive,
		Installments: []models.Installment{
			{ID: uuid.New(), AgreementID: agreementID, Amount: 100, Status: models.InstallmentStatusPending},
			{ID: uuid.New(), AgreementID: agreementID, Amount: 100, Status: models.InstallmentStatusPending},
			{ID: uuid.New(), AgreementID: agreementID, Amount: 100, Status: models.InstallmentStatusPending},
		},
	}
}

func paymentEvent(a models.Agreement, idx int, at time.Time) Event {
	amount := a.Installments[idx].Amount
	status := string(models.InstallmentStatusPaid)
	return Event{
		Type:          EventPaymentSuccess,
		AgreementID:   a.ID,
		InstallmentID: &a.Installments[idx].ID,
		Amount:        &amount,
		Status:        &status,
		OccurredAt:    at,
	}
}

func newTestSession(t *testing.T, fetcher *fakeFetcher, flags FlagStore, opts Options) *Session {
	t.Helper()
	ctx := context.Background()
	s := NewSession(ctx, uuid.New(), fetcher, flags, opts)
	if err := s.Bootstrap(ctx); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestSession_ApplyEventOptimisticPatch(t *testing.T) {
	a := scheduledAgreement()
	fetcher := newFakeFetcher(a)
	s := newTestSession(t, fetcher, newFakeFlagStore(), Options{Debounce: time.Hour})

	s.ApplyEvent(paymentEvent(a, 0, time.Now().Add(time.Second)))

	got, ok := s.Agreement(a.ID)
	assert.True(t, ok)
	assert.Equal(t, models.InstallmentStatusPaid, got.Installments[0].Status)
	assert.InDelta(t, 100, got.PaidAmount, 0.001)
}

func TestSession_DuplicateEventIsIdempotent(t *testing.T) {
	a := scheduledAgreement()
	fetcher := newFakeFetcher(a)
	s := newTestSession(t, fetcher, newFakeFlagStore(), Options{Debounce: time.Hour})

	ev := paymentEvent(a, 0, time.Now().Add(time.Second))
	s.ApplyEvent(ev)
	s.ApplyEvent(ev)

	got, _ := s.Agreement(a.ID)
	// Сумма пересчитывается из статусов: дубль не удваивает.
	assert.InDelta(t, 100, got.PaidAmount, 0.001)
}

func TestSession_DebounceCollapsesRefetches(t *testing.T) {
	a := scheduledAgreement()
	fetcher := newFakeFetcher(a)
	s := newTestSession(t, fetcher, newFakeFlagStore(), Options{Debounce: 50 * time.Millisecond})

	base := time.Now().Add(time.Second)
	s.ApplyEvent(paymentEvent(a, 0, base))
	s.ApplyEvent(paymentEvent(a, 1, base.Add(time.Millisecond)))
	s.ApplyEvent(paymentEvent(a, 2, base.Add(2*time.Millisecond)))

	time.Sleep(300 * time.Millisecond)

	// Три события в одном окне дали одно авторитетное чтение.
	assert.Equal(t, 1, fetcher.calls())
}

func TestSession_RefetchReplacesOptimisticState(t *testing.T) {
	a := scheduledAgreement()
	fetcher := newFakeFetcher(a)
	s := newTestSession(t, fetcher, newFakeFlagStore(), Options{Debounce: 30 * time.Millisecond})

	// Сервер уже знает об оплате двух взносов.
	serverTruth := a
	serverTruth.Installments = append([]models.Installment(nil), a.Installments...)
	serverTruth.Installments[0].Status = models.InstallmentStatusPaid
	serverTruth.Installments[1].Status = models.InstallmentStatusPaid
	serverTruth.PaidAmount = 200
	serverTruth.UpdatedAt = time.Now().Add(2 * time.Second)
	fetcher.set(serverTruth)

	s.ApplyEvent(paymentEvent(a, 0, time.Now()))
	time.Sleep(250 * time.Millisecond)

	got, _ := s.Agreement(a.ID)
	assert.InDelta(t, 200, got.PaidAmount, 0.001)
	assert.Equal(t, models.InstallmentStatusPaid, got.Installments[1].Status)
}

func TestSession_MergeKeepsNewerPatch(t *testing.T) {
	a := scheduledAgreement()
	fetcher := newFakeFetcher(a)
	s := newTestSession(t, fetcher, newFakeFlagStore(), Options{Debounce: 30 * time.Millisecond})

	// Событие новее, чем UpdatedAt серверной записи: сервер его ещё
	// не видел, патч накатывается поверх результата чтения.
	s.ApplyEvent(paymentEvent(a, 0, time.Now().Add(time.Minute)))
	time.Sleep(250 * time.Millisecond)

	got, _ := s.Agreement(a.ID)
	assert.Equal(t, models.InstallmentStatusPaid, got.Installments[0].Status)
	assert.InDelta(t, 100, got.PaidAmount, 0.001)
}

func TestSession_ApplyEventSetsPendingRefreshFlag(t *testing.T) {
	a := scheduledAgreement()
	fetcher := newFakeFetcher(a)
	flags := newFakeFlagStore()
	s := newTestSession(t, fetcher, flags, Options{Debounce: time.Hour})

	s.ApplyEvent(paymentEvent(a, 0, time.Now()))
	time.Sleep(100 * time.Millisecond)

	assert.True(t, flags.isPending(s.userID))
}

func TestSession_PollingConsumesFlagAndRefetches(t *testing.T) {
	a := scheduledAgreement()
	fetcher := newFakeFetcher(a)
	flags := newFakeFlagStore()
	s := newTestSession(t, fetcher, flags, Options{
		Debounce:     time.Hour,
		PollInterval: 30 * time.Millisecond,
	})

	// Флаг оставлен другой сессией.
	_ = flags.SetPendingRefresh(context.Background(), s.userID)

	serverTruth := a
	serverTruth.Status = models.AgreementStatusCompleted
	fetcher.set(serverTruth)

	s.StartPolling()
	time.Sleep(200 * time.Millisecond)

	got, _ := s.Agreement(a.ID)
	assert.Equal(t, models.AgreementStatusCompleted, got.Status)
	// Флаг потреблён атомарно, повторных чтений не будет.
	assert.False(t, flags.isPending(s.userID))
}

func TestSession_RefetchRetriesThenReportsError(t *testing.T) {
	a := scheduledAgreement()
	fetcher := newFakeFetcher(a)
	fetcher.failures = 10
	s := newTestSession(t, fetcher, newFakeFlagStore(), Options{
		Debounce:        10 * time.Millisecond,
		MaxFetchRetries: 2,
	})

	s.ApplyEvent(paymentEvent(a, 0, time.Now().Add(time.Second)))

	select {
	case err := <-s.Errs():
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("ожидалась восстановимая ошибка после исчерпания повторов")
	}

	// Оптимистичный патч пережил неудачное чтение.
	got, _ := s.Agreement(a.ID)
	assert.Equal(t, models.InstallmentStatusPaid, got.Installments[0].Status)
}

func TestSession_StaleEventDoesNotPatch(t *testing.T) {
	a := scheduledAgreement()
	fetcher := newFakeFetcher(a)
	s := newTestSession(t, fetcher, newFakeFlagStore(), Options{Debounce: time.Hour})

	// Событие старше последнего авторитетного чтения (bootstrap).
	s.ApplyEvent(paymentEvent(a, 0, time.Now().Add(-time.Minute)))

	got, _ := s.Agreement(a.ID)
	assert.Equal(t, models.InstallmentStatusPending, got.Installments[0].Status)
}

func TestSession_CompletedEventSetsCompletedAt(t *testing.T) {
	a := scheduledAgreement()
	fetcher := newFakeFetcher(a)
	s := newTestSession(t, fetcher, newFakeFlagStore(), Options{Debounce: time.Hour})

	status := string(models.AgreementStatusCompleted)
	at := time.Now().Add(time.Second)
	s.ApplyEvent(Event{
		Type:        EventAgreementCompleted,
		AgreementID: a.ID,
		Status:      &status,
		OccurredAt:  at,
	})

	got, _ := s.Agreement(a.ID)
	assert.Equal(t, models.AgreementStatusCompleted, got.Status)
	if assert.NotNil(t, got.CompletedAt) {
		assert.True(t, got.CompletedAt.Equal(at))
	}
}
