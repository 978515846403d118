package recon

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/writerlane/agreements-backend/internal/goroutine"
	"github.com/writerlane/agreements-backend/internal/logger"
)

// ErrorHandler получает восстановимые ошибки сессии (провалы авторитетных
// чтений). Типичная реакция: предложить клиенту ручное обновление.
type ErrorHandler func(userID uuid.UUID, err error)

// SessionManager держит по одной сессии на подключённого пользователя.
// Сессия создаётся при первом соединении и закрывается, когда уходит
// последнее. Повторные соединения того же пользователя разделяют сессию.
type SessionManager struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*managedSession

	flags   FlagStore
	opts    Options
	onError ErrorHandler
	ctx     context.Context
}

type managedSession struct {
	session *Session
	refs    int
}

// NewSessionManager создаёт менеджер. onError может быть nil.
func NewSessionManager(ctx context.Context, flags FlagStore, opts Options, onError ErrorHandler) *SessionManager {
	return &SessionManager{
		sessions: make(map[uuid.UUID]*managedSession),
		flags:    flags,
		opts:     opts,
		onError:  onError,
		ctx:      ctx,
	}
}

// Acquire возвращает сессию пользователя, создавая её при первом
// подключении. Bootstrap выполняется один раз, до возврата сессии.
func (m *SessionManager) Acquire(ctx context.Context, userID uuid.UUID, fetcher Fetcher) (*Session, error) {
	m.mu.Lock()
	if ms, ok := m.sessions[userID]; ok {
		ms.refs++
		m.mu.Unlock()
		return ms.session, nil
	}
	m.mu.Unlock()

	sess := NewSession(m.ctx, userID, fetcher, m.flags, m.opts)
	if err := sess.Bootstrap(ctx); err != nil {
		sess.Close()
		return nil, err
	}
	sess.StartPolling()
	m.drainErrors(userID, sess)

	m.mu.Lock()
	defer m.mu.Unlock()
	// Параллельный Acquire мог успеть первым: его сессия остаётся, наша
	// закрывается.
	if ms, ok := m.sessions[userID]; ok {
		ms.refs++
		sess.Close()
		return ms.session, nil
	}
	m.sessions[userID] = &managedSession{session: sess, refs: 1}
	return sess, nil
}

// Release отпускает сессию. Последний Release закрывает её.
func (m *SessionManager) Release(userID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ms, ok := m.sessions[userID]
	if !ok {
		return
	}
	ms.refs--
	if ms.refs > 0 {
		return
	}
	delete(m.sessions, userID)
	ms.session.Close()
}

// Dispatch доставляет событие сессии пользователя, если тот подключён.
// Для офлайн пользователей событие покрывается pending-refresh флагом.
func (m *SessionManager) Dispatch(userID uuid.UUID, ev Event) {
	m.mu.Lock()
	ms, ok := m.sessions[userID]
	m.mu.Unlock()
	if !ok {
		return
	}
	ms.session.ApplyEvent(ev)
}

// Shutdown закрывает все активные сессии.
func (m *SessionManager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, ms := range m.sessions {
		ms.session.Close()
		delete(m.sessions, id)
	}
}

func (m *SessionManager) drainErrors(userID uuid.UUID, sess *Session) {
	goroutine.SafeGoWithContext(m.ctx, func(ctx context.Context) {
		for {
			select {
			case <-ctx.Done():
				return
			case <-sess.Done():
				return
			case err, ok := <-sess.Errs():
				if !ok {
					return
				}
				logger.Log.Warnf("recon: сессия пользователя %s: %v", userID, err)
				if m.onError != nil {
					m.onError(userID, err)
				}
			}
		}
	})
}
