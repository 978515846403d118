package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/writerlane/agreements-backend/internal/goroutine"
	"github.com/writerlane/agreements-backend/internal/ledger"
	"github.com/writerlane/agreements-backend/internal/logger"
	"github.com/writerlane/agreements-backend/internal/models"
	"github.com/writerlane/agreements-backend/internal/pkg/apperror"
	"github.com/writerlane/agreements-backend/internal/recon"
	"github.com/writerlane/agreements-backend/internal/validation"
)

// AgreementRepo описывает зависимости сервиса от хранилища договоров.
type AgreementRepo interface {
	Create(ctx context.Context, a *models.Agreement) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Agreement, error)
	ListByStudent(ctx context.Context, studentID uuid.UUID) ([]models.Agreement, error)
	ListByWriter(ctx context.Context, writerID uuid.UUID) ([]models.Agreement, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.AgreementStatus, writerID *uuid.UUID) (*models.Agreement, error)
}

// EventSink — доставка событий подключённым клиентам пользователя.
type EventSink interface {
	BroadcastToUser(userID uuid.UUID, event string, data any) error
}

// ConvergencePublisher — рассылка событий сессиям на других инстансах.
type ConvergencePublisher interface {
	Publish(ctx context.Context, userID uuid.UUID, ev recon.Event) error
}

// AgreementService реализует жизненный цикл договора.
type AgreementService struct {
	repo        AgreementRepo
	events      EventSink
	convergence ConvergencePublisher
	flags       recon.FlagStore
}

// CreateAgreementInput — данные нового договора.
type CreateAgreementInput struct {
	Title            string
	TotalAmount      float64
	DeclaredCurrency *string
	Gateway          *string
	NativeAmount     *float64
	ExchangeRate     *float64
	Installments     []InstallmentInput
}

// InstallmentInput — один взнос графика.
type InstallmentInput struct {
	Amount  float64
	DueDate time.Time
}

// NewAgreementService создаёт сервис договоров.
func NewAgreementService(repo AgreementRepo, events EventSink, convergence ConvergencePublisher, flags recon.FlagStore) *AgreementService {
	return &AgreementService{
		repo:        repo,
		events:      events,
		convergence: convergence,
		flags:       flags,
	}
}

// Create создаёт договор в статусе pending. График взносов обязан сходиться
// с суммой договора; пустой график означает разовую оплату.
func (s *AgreementService) Create(ctx context.Context, studentID uuid.UUID, in CreateAgreementInput) (*models.Agreement, error) {
	if err := validation.ValidateAgreementTitle(in.Title); err != nil {
		return nil, apperror.New(apperror.ErrCodeValidation, err.Error())
	}
	if err := validation.ValidateAmount("сумма договора", in.TotalAmount); err != nil {
		return nil, apperror.New(apperror.ErrCodeValidation, err.Error())
	}
	if len(in.Installments) > validation.MaxInstallmentsCount {
		return nil, apperror.New(apperror.ErrCodeValidation, "слишком много взносов в графике")
	}

	installments := make([]models.Installment, 0, len(in.Installments))
	for _, inst := range in.Installments {
		if err := validation.ValidateAmount("сумма взноса", inst.Amount); err != nil {
			return nil, apperror.New(apperror.ErrCodeValidation, err.Error())
		}
		installments = append(installments, models.Installment{
			Amount:  inst.Amount,
			DueDate: inst.DueDate,
			Status:  models.InstallmentStatusPending,
		})
	}

	if !ledger.ValidateSchedule(in.TotalAmount, installments) {
		return nil, apperror.New(apperror.ErrCodeValidation, "сумма взносов не совпадает с суммой договора")
	}

	a := &models.Agreement{
		StudentID:        studentID,
		Title:            in.Title,
		TotalAmount:      in.TotalAmount,
		DeclaredCurrency: in.DeclaredCurrency,
		Gateway:          in.Gateway,
		NativeAmount:     in.NativeAmount,
		ExchangeRate:     in.ExchangeRate,
		Status:           models.AgreementStatusPending,
		Installments:     installments,
	}

	if err := s.repo.Create(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Get возвращает договор, если пользователь является его стороной.
func (s *AgreementService) Get(ctx context.Context, userID uuid.UUID, id uuid.UUID) (*models.Agreement, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !isParty(a, userID) {
		return nil, apperror.ErrForbidden
	}
	return a, nil
}

// ListForUser возвращает договоры пользователя в его роли.
func (s *AgreementService) ListForUser(ctx context.Context, userID uuid.UUID, role string) ([]models.Agreement, error) {
	if role == models.RoleWriter {
		return s.repo.ListByWriter(ctx, userID)
	}
	return s.repo.ListByStudent(ctx, userID)
}

// Accept принимает договор автором: pending переходит в active,
// автор закрепляется за договором.
func (s *AgreementService) Accept(ctx context.Context, writerID uuid.UUID, id uuid.UUID) (*models.Agreement, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if a.WriterID != nil && *a.WriterID != writerID {
		return nil, apperror.ErrForbidden
	}
	if !a.Status.CanTransitionTo(models.AgreementStatusActive) {
		return nil, apperror.ErrInvalidTransition
	}

	updated, err := s.repo.UpdateStatus(ctx, id, models.AgreementStatusActive, &writerID)
	if err != nil {
		return nil, err
	}

	status := string(models.AgreementStatusActive)
	s.emit(ctx, updated.StudentID, recon.Event{
		Type:        recon.EventAgreementAccepted,
		AgreementID: updated.ID,
		Status:      &status,
		Title:       &updated.Title,
		OccurredAt:  updated.UpdatedAt,
	})
	return updated, nil
}

// Complete завершает договор. Завершение при неполной оплате допускается,
// но логируется и помечается в событии флагом fully_paid=false.
func (s *AgreementService) Complete(ctx context.Context, userID uuid.UUID, id uuid.UUID) (*models.Agreement, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !isParty(a, userID) {
		return nil, apperror.ErrForbidden
	}
	if !a.Status.CanTransitionTo(models.AgreementStatusCompleted) {
		return nil, apperror.ErrInvalidTransition
	}

	fullyPaid := ledger.IsFullyPaid(a)
	if !fullyPaid {
		logger.Log.Warnf(
			"agreement service: договор %s завершается при неполной оплате: оплачено %.2f из %.2f",
			a.ID, ledger.PaidAmount(a), a.TotalAmount,
		)
	}

	updated, err := s.repo.UpdateStatus(ctx, id, models.AgreementStatusCompleted, nil)
	if err != nil {
		return nil, err
	}

	status := string(models.AgreementStatusCompleted)
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
	return updated, nil
}

// Dispute переводит договор в спор.
func (s *AgreementService) Dispute(ctx context.Context, userID uuid.UUID, id uuid.UUID) (*models.Agreement, error) {
	return s.transition(ctx, userID, id, models.AgreementStatusDisputed)
}

// Cancel отменяет договор.
func (s *AgreementService) Cancel(ctx context.Context, userID uuid.UUID, id uuid.UUID) (*models.Agreement, error) {
	return s.transition(ctx, userID, id, models.AgreementStatusCancelled)
}

func (s *AgreementService) transition(ctx context.Context, userID uuid.UUID, id uuid.UUID, to models.AgreementStatus) (*models.Agreement, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !isParty(a, userID) {
		return nil, apperror.ErrForbidden
	}
	if !a.Status.CanTransitionTo(to) {
		return nil, apperror.ErrInvalidTransition
	}

	updated, err := s.repo.UpdateStatus(ctx, id, to, nil)
	if err != nil {
		return nil, err
	}

	status := string(to)
	ev := recon.Event{
		Type:        recon.EventAgreementUpdated,
		AgreementID: updated.ID,
		Status:      &status,
		Title:       &updated.Title,
		OccurredAt:  updated.UpdatedAt,
	}
	s.emit(ctx, updated.StudentID, ev)
	if updated.WriterID != nil && *updated.WriterID != userID {
		s.emit(ctx, *updated.WriterID, ev)
	}
	return updated, nil
}

// emit доставляет событие по всем каналам: локальным WebSocket клиентам,
// другим инстансам через канал конвергенции и офлайн-клиентам через
// pending-refresh флаг.
func (s *AgreementService) emit(_ context.Context, userID uuid.UUID, ev recon.Event) {
	if err := s.events.BroadcastToUser(userID, string(ev.Type), ev); err != nil {
		logger.Log.Warnf("agreement service: не удалось отправить событие %s: %v", ev.Type, err)
	}

	// Контекст запроса к моменту публикации уже может быть погашен.
	goroutine.SafeGo(func() {
		bgCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.convergence.Publish(bgCtx, userID, ev); err != nil {
			logger.Log.Warnf("agreement service: канал конвергенции недоступен: %v", err)
		}
		if err := s.flags.SetPendingRefresh(bgCtx, userID); err != nil {
			logger.Log.Warnf("agreement service: не удалось выставить pending refresh: %v", err)
		}
	})
}

func isParty(a *models.Agreement, userID uuid.UUID) bool {
	if a.StudentID == userID {
		return true
	}
	return a.WriterID != nil && *a.WriterID == userID
}
