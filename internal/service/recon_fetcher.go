package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/writerlane/agreements-backend/internal/models"
	"github.com/writerlane/agreements-backend/internal/recon"
)

// reconFetcher адаптирует репозиторий договоров к авторитетным чтениям
// сессии: коллекция пользователя зависит от его роли.
type reconFetcher struct {
	repo   AgreementRepo
	userID uuid.UUID
	role   string
}

// NewReconFetcher создаёт fetcher для сессии пользователя.
func NewReconFetcher(repo AgreementRepo, userID uuid.UUID, role string) recon.Fetcher {
	return &reconFetcher{repo: repo, userID: userID, role: role}
}

func (f *reconFetcher) FetchAgreement(ctx context.Context, id uuid.UUID) (*models.Agreement, error) {
	return f.repo.GetByID(ctx, id)
}

func (f *reconFetcher) FetchAll(ctx context.Context) ([]models.Agreement, error) {
	if f.role == models.RoleWriter {
		return f.repo.ListByWriter(ctx, f.userID)
	}
	return f.repo.ListByStudent(ctx, f.userID)
}
