package recon

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/writerlane/agreements-backend/internal/models"
)

func TestSessionManager_AcquireSharesSession(t *testing.T) {
	a := scheduledAgreement()
	fetcher := newFakeFetcher(a)
	m := NewSessionManager(context.Background(), newFakeFlagStore(), Options{Debounce: time.Hour, PollInterval: time.Hour}, nil)
	defer m.Shutdown()

	userID := uuid.New()
	first, err := m.Acquire(context.Background(), userID, fetcher)
	assert.NoError(t, err)

	second, err := m.Acquire(context.Background(), userID, fetcher)
	assert.NoError(t, err)
	// Второе соединение того же пользователя получает ту же сессию.
	assert.Same(t, first, second)
}

func TestSessionManager_LastReleaseClosesSession(t *testing.T) {
	a := scheduledAgreement()
	fetcher := newFakeFetcher(a)
	m := NewSessionManager(context.Background(), newFakeFlagStore(), Options{Debounce: time.Hour, PollInterval: time.Hour}, nil)
	defer m.Shutdown()

	userID := uuid.New()
	sess, err := m.Acquire(context.Background(), userID, fetcher)
	assert.NoError(t, err)
	_, err = m.Acquire(context.Background(), userID, fetcher)
	assert.NoError(t, err)

	m.Release(userID)
	select {
	case <-sess.Done():
		t.Fatal("сессия закрыта, пока её держит второе соединение")
	default:
	}

	m.Release(userID)
	select {
	case <-sess.Done():
	case <-time.After(time.Second):
		t.Fatal("последний Release не закрыл сессию")
	}
}

func TestSessionManager_DispatchRoutesToSession(t *testing.T) {
	a := scheduledAgreement()
	fetcher := newFakeFetcher(a)
	m := NewSessionManager(context.Background(), newFakeFlagStore(), Options{Debounce: time.Hour, PollInterval: time.Hour}, nil)
	defer m.Shutdown()

	userID := uuid.New()
	sess, err := m.Acquire(context.Background(), userID, fetcher)
	assert.NoError(t, err)

	m.Dispatch(userID, paymentEvent(a, 0, time.Now().Add(time.Second)))

	got, ok := sess.Agreement(a.ID)
	assert.True(t, ok)
	assert.Equal(t, models.InstallmentStatusPaid, got.Installments[0].Status)
}

func TestSessionManager_DispatchToOfflineUserIsNoop(t *testing.T) {
	a := scheduledAgreement()
	m := NewSessionManager(context.Background(), newFakeFlagStore(), Options{}, nil)
	defer m.Shutdown()

	// Пользователь не подключён: событие просто игнорируется,
	// офлайн доставку покрывает pending-refresh флаг.
	m.Dispatch(uuid.New(), paymentEvent(a, 0, time.Now()))
}
