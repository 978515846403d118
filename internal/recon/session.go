package recon

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/writerlane/agreements-backend/internal/goroutine"
	"github.com/writerlane/agreements-backend/internal/logger"
	"github.com/writerlane/agreements-backend/internal/models"
)

// Fetcher — авторитетное чтение договоров из хранилища.
type Fetcher interface {
	FetchAgreement(ctx context.Context, id uuid.UUID) (*models.Agreement, error)
	FetchAll(ctx context.Context) ([]models.Agreement, error)
}

// Options настраивают поведение сессии.
type Options struct {
	// Debounce — окно, в котором повторные события по одному договору
	// не порождают новых авторитетных чтений.
	Debounce time.Duration
	// PollInterval — период фонового опроса pending-refresh флага.
	PollInterval time.Duration
	// MaxFetchRetries — после скольких неудачных чтений сигнализировать
	// восстановимую ошибку.
	MaxFetchRetries int
}

// DefaultOptions — значения по умолчанию для продакшена.
func DefaultOptions() Options {
	return Options{
		Debounce:        3 * time.Second,
		PollInterval:    10 * time.Second,
		MaxFetchRetries: 3,
	}
}

// Session держит представление договоров одного подключённого клиента
// и сводит его к серверной истине. Коллекция принадлежит сессии
// эксклюзивно: другие сессии того же пользователя сходятся только через
// канал конвергенции и собственные re-fetch, общей мутируемой памяти нет.
//
// Оптимистичные патчи никогда не считаются финальными: каждый патч
// планирует авторитетное чтение, которое его замещает.
type Session struct {
	mu sync.Mutex

	userID  uuid.UUID
	fetcher Fetcher
	flags   FlagStore
	opts    Options

	agreements map[uuid.UUID]*models.Agreement
	timers     map[uuid.UUID]*time.Timer
	// lastPatch хранит последнее оптимистично применённое событие:
	// при слиянии с re-fetch более новый timestamp выигрывает.
	lastPatch map[uuid.UUID]Event
	// lastFetch — момент последнего авторитетного чтения договора,
	// события старше него заведомо устарели.
	lastFetch map[uuid.UUID]time.Time

	errs   chan error
	ctx    context.Context
	cancel context.CancelFunc
}

// NewSession создаёт сессию для пользователя.
func NewSession(ctx context.Context, userID uuid.UUID, fetcher Fetcher, flags FlagStore, opts Options) *Session {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultOptions().Debounce
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultOptions().PollInterval
	}
	if opts.MaxFetchRetries <= 0 {
		opts.MaxFetchRetries = DefaultOptions().MaxFetchRetries
	}

	sctx, cancel := context.WithCancel(ctx)
	return &Session{
		userID:     userID,
		fetcher:    fetcher,
		flags:      flags,
		opts:       opts,
		agreements: make(map[uuid.UUID]*models.Agreement),
		timers:     make(map[uuid.UUID]*time.Timer),
		lastPatch:  make(map[uuid.UUID]Event),
		lastFetch:  make(map[uuid.UUID]time.Time),
		errs:       make(chan error, 8),
		ctx:        sctx,
		cancel:     cancel,
	}
}

// Bootstrap загружает коллекцию. Если предыдущая сессия оставила
// pending-refresh флаг (была снесена до запланированного обновления),
// флаг потребляется и чтение происходит безусловно.
func (s *Session) Bootstrap(ctx context.Context) error {
	if s.flags != nil {
		if _, err := s.flags.ConsumePendingRefresh(ctx, s.userID); err != nil {
			logger.Log.Warnf("recon: не удалось прочитать pending-refresh флаг: %v", err)
		}
	}

	return s.refetchAll(ctx)
}

// StartPolling запускает фоновый опрос pending-refresh флага — страховку
// на случай потерянных таймеров и перезагрузок. Флаг очищается атомарно
// при потреблении, чтобы сёстры-сессии не устраивали лишних чтений.
func (s *Session) StartPolling() {
	goroutine.SafeGoWithContext(s.ctx, func(ctx context.Context) {
		ticker := time.NewTicker(s.opts.PollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if s.flags == nil {
					continue
				}
				set, err := s.flags.ConsumePendingRefresh(ctx, s.userID)
				if err != nil {
					logger.Log.Warnf("recon: опрос pending-refresh флага: %v", err)
					continue
				}
				if set {
					if err := s.refetchAll(ctx); err != nil {
						s.reportError(err)
					}
				}
			}
		}
	})
}

// Close останавливает таймеры и фоновые горутины сессии.
func (s *Session) Close() {
	s.cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}

// Errs отдаёт восстановимые ошибки (провалы авторитетных чтений после
// повторов). UI слой по ним предлагает ручное обновление; сессия живёт.
func (s *Session) Errs() <-chan error {
	return s.errs
}

// Done закрывается вместе с сессией.
func (s *Session) Done() <-chan struct{} {
	return s.ctx.Done()
}

// ApplyEvent применяет оптимистичный патч и планирует авторитетное чтение.
// Обработка идемпотентна: повторное применение того же события не меняет
// состояние (статусы выставляются, а не инкрементируются; суммы
// пересчитываются из статусов взносов). Событие, уже перекрытое более
// свежим re-fetch, патч не применяет, но обновление всё равно планируется.
func (s *Session) ApplyEvent(ev Event) {
	s.mu.Lock()

	if fetched, ok := s.lastFetch[ev.AgreementID]; !ok || ev.OccurredAt.After(fetched) {
		if a, ok := s.agreements[ev.AgreementID]; ok {
			patchAgreement(a, ev)
			s.lastPatch[ev.AgreementID] = ev
		}
	}

	s.scheduleRefetchLocked(ev.AgreementID)
	s.mu.Unlock()

	// Флаг переживает снос сессии: если таймер не доживёт, следующая
	// загрузка или опрос подхватят обновление.
	if s.flags != nil {
		goroutine.SafeGo(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.flags.SetPendingRefresh(ctx, s.userID); err != nil {
				logger.Log.Warnf("recon: не удалось выставить pending-refresh флаг: %v", err)
			}
		})
	}
}

// scheduleRefetchLocked перезапускает debounce-таймер договора: новое
// событие до срабатывания отменяет и переназначает таймер, а не добавляет
// второй — не больше одного чтения на окно на договор.
func (s *Session) scheduleRefetchLocked(id uuid.UUID) {
	if t, ok := s.timers[id]; ok {
		t.Stop()
	}

	s.timers[id] = time.AfterFunc(s.opts.Debounce, func() {
		goroutine.SafeGo(func() {
			s.mu.Lock()
			delete(s.timers, id)
			s.mu.Unlock()

			if err := s.refetchOne(s.ctx, id); err != nil {
				s.reportError(err)
			}
		})
	})
}

// refetchOne выполняет авторитетное чтение одного договора с повторами.
// При неудаче оптимистичный патч остаётся на месте: деградация, но не потеря.
func (s *Session) refetchOne(ctx context.Context, id uuid.UUID) error {
	var lastErr error
	for attempt := 0; attempt < s.opts.MaxFetchRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		fresh, err := s.fetcher.FetchAgreement(ctx, id)
		if err == nil {
			s.mu.Lock()
			s.mergeLocked(fresh)
			s.lastFetch[id] = time.Now()
			s.mu.Unlock()
			return nil
		}

		lastErr = err
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 500 * time.Millisecond):
		}
	}
	return lastErr
}

// refetchAll замещает коллекцию целиком серверной истиной.
func (s *Session) refetchAll(ctx context.Context) error {
	all, err := s.fetcher.FetchAll(ctx)
	if err != nil {
		return err
	}

	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	s.agreements = make(map[uuid.UUID]*models.Agreement, len(all))
	for i := range all {
		a := all[i]
		s.agreements[a.ID] = &a
		s.lastFetch[a.ID] = now
		delete(s.lastPatch, a.ID)
	}
	return nil
}

// mergeLocked сливает результат re-fetch с локальным состоянием.
// Серверная истина замещает оптимистичный патч; единственное исключение —
// патч, чей timestamp новее UpdatedAt присланной записи: такое событие
// сервер ещё не видел, и его поля накатываются поверх.
func (s *Session) mergeLocked(fresh *models.Agreement) {
	if patch, ok := s.lastPatch[fresh.ID]; ok {
		if patch.OccurredAt.After(fresh.UpdatedAt) {
			patchAgreement(fresh, patch)
		} else {
			delete(s.lastPatch, fresh.ID)
		}
	}
	s.agreements[fresh.ID] = fresh
}

// reportError отдаёт ошибку UI слою, не блокируясь.
func (s *Session) reportError(err error) {
	select {
	case s.errs <- err:
	default:
		logger.Log.Warnf("recon: канал ошибок переполнен, ошибка потеряна: %v", err)
	}
}

// Agreement возвращает копию договора из локальной коллекции.
func (s *Session) Agreement(id uuid.UUID) (*models.Agreement, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.agreements[id]
	if !ok {
		return nil, false
	}
	copied := *a
	copied.Installments = append([]models.Installment(nil), a.Installments...)
	return &copied, true
}

// Agreements возвращает копию всей коллекции.
func (s *Session) Agreements() []models.Agreement {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Agreement, 0, len(s.agreements))
	for _, a := range s.agreements {
		copied := *a
		copied.Installments = append([]models.Installment(nil), a.Installments...)
		out = append(out, copied)
	}
	return out
}

// patchAgreement применяет к договору только поля, названные в событии.
func patchAgreement(a *models.Agreement, ev Event) {
	switch ev.Type {
	case EventAgreementAccepted:
		if a.Status.CanTransitionTo(models.AgreementStatusActive) {
			a.Status = models.AgreementStatusActive
		}

	case EventAgreementUpdated:
		if ev.Status != nil {
			next := models.AgreementStatus(*ev.Status)
			if next.IsValid() && (a.Status == next || a.Status.CanTransitionTo(next)) {
				a.Status = next
			}
		}

	case EventAgreementCompleted:
		if a.Status.CanTransitionTo(models.AgreementStatusCompleted) {
			a.Status = models.AgreementStatusCompleted
			t := ev.OccurredAt
			a.CompletedAt = &t
		}

	case EventPaymentSuccess:
		patchPayment(a, ev)
	}

	if ev.OccurredAt.After(a.UpdatedAt) {
		a.UpdatedAt = ev.OccurredAt
	}
}

// patchPayment отражает успешный платёж. Для взноса статус выставляется,
// а paid_amount пересчитывается из статусов — повторное событие ничего
// не инкрементирует дважды.
func patchPayment(a *models.Agreement, ev Event) {
	status := models.InstallmentStatusPaid
	if ev.Status != nil && models.InstallmentStatus(*ev.Status).IsValid() {
		status = models.InstallmentStatus(*ev.Status)
	}

	if ev.InstallmentID != nil {
		inst := a.InstallmentByID(*ev.InstallmentID)
		if inst == nil {
			return
		}
		if inst.Status == status || inst.Status.CanTransitionTo(status) {
			inst.Status = status
			if inst.PaymentDate == nil {
				t := ev.OccurredAt
				inst.PaymentDate = &t
			}
		}

		var paid float64
		for i := range a.Installments {
			if a.Installments[i].Status.CountsAsPaid() {
				paid += a.Installments[i].Amount
			}
		}
		a.PaidAmount = paid
		return
	}

	// Разовый платёж: сумма известна только из события. Берём максимум,
	// чтобы дубликат события не удваивал кэш; re-fetch всё равно поправит.
	if ev.Amount != nil && *ev.Amount > a.PaidAmount {
		a.PaidAmount = *ev.Amount
	}
}
