package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/writerlane/agreements-backend/internal/currency"
	"github.com/writerlane/agreements-backend/internal/goroutine"
	"github.com/writerlane/agreements-backend/internal/ledger"
	"github.com/writerlane/agreements-backend/internal/logger"
	"github.com/writerlane/agreements-backend/internal/models"
	"github.com/writerlane/agreements-backend/internal/pkg/apperror"
	"github.com/writerlane/agreements-backend/internal/recon"
)

// FinancialsRepo описывает чтение договоров для агрегации.
type FinancialsRepo interface {
	ListByStudent(ctx context.Context, studentID uuid.UUID) ([]models.Agreement, error)
	ListByWriter(ctx context.Context, writerID uuid.UUID) ([]models.Agreement, error)
}

// FinancialsService считает агрегаты дашборда. Перспектива выбирается
// ролью: студент видит расходы, автор заработок.
type FinancialsService struct {
	repo  FinancialsRepo
	rates *currency.Table
	flags recon.FlagStore
}

// NewFinancialsService создаёт сервис агрегатов.
func NewFinancialsService(repo FinancialsRepo, rates *currency.Table, flags recon.FlagStore) *FinancialsService {
	return &FinancialsService{repo: repo, rates: rates, flags: flags}
}

// UserFinancials пересчитывает агрегаты пользователя из договоров.
// Результат кэшируется как last known lifetime spend для мгновенной
// отрисовки до следующего пересчёта.
func (s *FinancialsService) UserFinancials(
	ctx context.Context,
	userID uuid.UUID,
	role string,
	month time.Month,
	year int,
	reporting string,
) (ledger.Financials, error) {
	if reporting == "" {
		reporting = currency.USD
	}
	if !currency.IsValid(reporting) {
		return ledger.Financials{}, apperror.New(apperror.ErrCodeValidation, "неизвестная отчётная валюта")
	}

	var (
		agreements []models.Agreement
		err        error
	)
	if role == models.RoleWriter {
		agreements, err = s.repo.ListByWriter(ctx, userID)
	} else {
		agreements, err = s.repo.ListByStudent(ctx, userID)
	}
	if err != nil {
		return ledger.Financials{}, err
	}

	result := ledger.ComputeUserFinancials(agreements, month, year, reporting, s.rates)

	// Контекст запроса к моменту записи уже погашен, кэш пишем на своём.
	goroutine.SafeGo(func() {
		cacheCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.flags.SetLastKnownLifetimeSpend(cacheCtx, userID, result.LifetimeSpent, result.Currency); err != nil {
			logger.Log.Warnf("financials service: не удалось закэшировать lifetime spend: %v", err)
		}
	})

	return result, nil
}

// CachedLifetimeSpend возвращает последний известный lifetime spend
// без обращения к базе. ok=false означает, что кэша ещё нет.
func (s *FinancialsService) CachedLifetimeSpend(ctx context.Context, userID uuid.UUID) (float64, string, bool, error) {
	return s.flags.LastKnownLifetimeSpend(ctx, userID)
}
