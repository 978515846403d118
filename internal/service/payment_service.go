package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/writerlane/agreements-backend/internal/currency"
	"github.com/writerlane/agreements-backend/internal/goroutine"
	"github.com/writerlane/agreements-backend/internal/ledger"
	"github.com/writerlane/agreements-backend/internal/logger"
	"github.com/writerlane/agreements-backend/internal/models"
	"github.com/writerlane/agreements-backend/internal/pkg/apperror"
	"github.com/writerlane/agreements-backend/internal/recon"
	"github.com/writerlane/agreements-backend/internal/repository"
)

// PaymentRepo описывает зависимости сервиса платежей от хранилища.
type PaymentRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Agreement, error)
	ApplyInstallmentPayment(ctx context.Context, agreementID, installmentID uuid.UUID, status models.InstallmentStatus, paidAt time.Time) (*models.Agreement, error)
	ApplyLumpSumPayment(ctx context.Context, agreementID uuid.UUID, amount float64) (*models.Agreement, error)
	RecordGatewayPayment(ctx context.Context, p *models.GatewayPayment) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.AgreementStatus, writerID *uuid.UUID) (*models.Agreement, error)
}

// GatewayCallbackInput — тело callback'а платёжного шлюза.
type GatewayCallbackInput struct {
	Reference     string
	AgreementID   uuid.UUID
	InstallmentID *uuid.UUID
	Amount        float64
	Currency      string
	Gateway       string
	Status        string
	PaidAt        *time.Time
}

// PaymentService потребляет результаты платёжных шлюзов и применяет их
// к леджеру. Сам процессинг карт и перевод денег вне зоны ответственности.
type PaymentService struct {
	repo        PaymentRepo
	events      EventSink
	convergence ConvergencePublisher
	flags       recon.FlagStore
}

// NewPaymentService создаёт сервис платежей.
func NewPaymentService(repo PaymentRepo, events EventSink, convergence ConvergencePublisher, flags recon.FlagStore) *PaymentService {
	return &PaymentService{
		repo:        repo,
		events:      events,
		convergence: convergence,
		flags:       flags,
	}
}

// GatewayCallback обрабатывает callback шлюза. Доставка at-least-once:
// повторный терминальный callback с тем же reference не применяется второй
// раз. Промежуточный статус processing reference не потребляет.
func (s *PaymentService) GatewayCallback(ctx context.Context, in GatewayCallbackInput) error {
	if in.Reference == "" {
		return apperror.New(apperror.ErrCodeValidation, "callback без reference отклонён")
	}
	if in.Amount <= 0 {
		return apperror.New(apperror.ErrCodeValidation, "callback без суммы отклонён")
	}
	if in.Currency != "" && !currency.IsValid(in.Currency) {
		return apperror.New(apperror.ErrCodeValidation, "неизвестная валюта callback'а")
	}

	a, err := s.repo.GetByID(ctx, in.AgreementID)
	if err != nil {
		return err
	}

	paidAt := time.Now()
	if in.PaidAt != nil {
		paidAt = *in.PaidAt
	}

	// Промежуточный статус: шлюз авторизовал платёж, расчёт ещё идёт.
	// Reference не записываем, его потребит финальный callback той же
	// транзакции.
	if in.Status == "processing" {
		return s.applyProcessing(ctx, a, in, paidAt)
	}

	payment := &models.GatewayPayment{
		Reference:     in.Reference,
		AgreementID:   in.AgreementID,
		InstallmentID: in.InstallmentID,
		Amount:        in.Amount,
		Currency:      in.Currency,
		Gateway:       in.Gateway,
		Status:        in.Status,
	}
	if err := s.repo.RecordGatewayPayment(ctx, payment); err != nil {
		if errors.Is(err, repository.ErrDuplicateReference) {
			logger.Log.Infof("payment service: повторный callback %s, уже применён", in.Reference)
			return nil
		}
		return err
	}

	if in.Status != "success" {
		logger.Log.Infof("payment service: callback %s со статусом %s, леджер не меняется", in.Reference, in.Status)
		return nil
	}

	var updated *models.Agreement
	if in.InstallmentID != nil {
		if a.InstallmentByID(*in.InstallmentID) == nil {
			return apperror.ErrInstallmentNotFound
		}
		updated, err = s.repo.ApplyInstallmentPayment(ctx, in.AgreementID, *in.InstallmentID, models.InstallmentStatusPaid, paidAt)
	} else {
		if !a.IsLumpSum() {
			return apperror.New(apperror.ErrCodeValidation, "callback без взноса для договора с графиком")
		}
		updated, err = s.repo.ApplyLumpSumPayment(ctx, in.AgreementID, in.Amount)
	}
	if err != nil {
		return err
	}

	fullyPaid := s.emitPayment(ctx, updated, in, string(models.InstallmentStatusPaid), paidAt)

	if fullyPaid && updated.Status.CanTransitionTo(models.AgreementStatusCompleted) {
		if err := s.autoComplete(ctx, updated); err != nil {
			logger.Log.Warnf("payment service: автозавершение договора %s не удалось: %v", updated.ID, err)
		}
	}
	return nil
}

// applyProcessing переводит взнос в processing: сумма уже учитывается
// в прогрессе и агрегатах, но договор не закрывается до подтверждения
// расчёта. Для разовых договоров промежуточный статус леджер не меняет.
func (s *PaymentService) applyProcessing(ctx context.Context, a *models.Agreement, in GatewayCallbackInput, paidAt time.Time) error {
	if in.InstallmentID == nil {
		logger.Log.Infof("payment service: processing callback %s без взноса, леджер не меняется", in.Reference)
		return nil
	}
	if a.InstallmentByID(*in.InstallmentID) == nil {
		return apperror.ErrInstallmentNotFound
	}

	updated, err := s.repo.ApplyInstallmentPayment(ctx, in.AgreementID, *in.InstallmentID, models.InstallmentStatusProcessing, paidAt)
	if err != nil {
		return err
	}

	s.emitPayment(ctx, updated, in, string(models.InstallmentStatusProcessing), paidAt)
	return nil
}

// emitPayment рассылает платёжное событие обеим сторонам договора
// и возвращает признак полной оплаты.
func (s *PaymentService) emitPayment(ctx context.Context, updated *models.Agreement, in GatewayCallbackInput, status string, paidAt time.Time) bool {
	cur := in.Currency
	if cur == "" {
		cur = currency.ForAgreement(updated)
	}

	fullyPaid := ledger.IsFullyPaid(updated)
	ev := recon.Event{
		Type:          recon.EventPaymentSuccess,
		AgreementID:   updated.ID,
		InstallmentID: in.InstallmentID,
		Amount:        &in.Amount,
		Currency:      &cur,
		Status:        &status,
		FullyPaid:     &fullyPaid,
		OccurredAt:    paidAt,
	}
	s.emit(ctx, updated.StudentID, ev)
	if updated.WriterID != nil {
		s.emit(ctx, *updated.WriterID, ev)
	}
	return fullyPaid
}

// autoComplete закрывает договор, полностью покрытый подтверждёнными платежами.
func (s *PaymentService) autoComplete(ctx context.Context, a *models.Agreement) error {
	updated, err := s.repo.UpdateStatus(ctx, a.ID, models.AgreementStatusCompleted, nil)
	if err != nil {
		return err
	}

	status := string(models.AgreementStatusCompleted)
	fullyPaid := true
	ev := recon.Event{
		Type:        recon.EventAgreementCompleted,
		AgreementID: updated.ID,
		Status:      &status,
		Title:       &updated.Title,
		FullyPaid:   &fullyPaid,
		OccurredAt:  updated.UpdatedAt,
	}
	s.emit(ctx, updated.StudentID, ev)
	if updated.WriterID != nil {
		s.emit(ctx, *updated.WriterID, ev)
	}
	return nil
}

func (s *PaymentService) emit(_ context.Context, userID uuid.UUID, ev recon.Event) {
	if err := s.events.BroadcastToUser(userID, string(ev.Type), ev); err != nil {
		logger.Log.Warnf("payment service: не удалось отправить событие %s: %v", ev.Type, err)
	}

	// Контекст запроса к моменту публикации уже может быть погашен.
	goroutine.SafeGo(func() {
		bgCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.convergence.Publish(bgCtx, userID, ev); err != nil {
			logger.Log.Warnf("payment service: канал конвергенции недоступен: %v", err)
		}
		if err := s.flags.SetPendingRefresh(bgCtx, userID); err != nil {
			logger.Log.Warnf("payment service: не удалось выставить pending refresh: %v", err)
		}
	})
}
