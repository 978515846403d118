package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/writerlane/agreements-backend/internal/models"
	"github.com/writerlane/agreements-backend/internal/pkg/apperror"
	"github.com/writerlane/agreements-backend/internal/recon"
)

type mockAgreementRepo struct {
	mock.Mock
}

func (m *mockAgreementRepo) Create(ctx context.Context, a *models.Agreement) error {
	args := m.Called(ctx, a)
	return args.Error(0)
}

func (m *mockAgreementRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Agreement, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Agreement), args.Error(1)
}

func (m *mockAgreementRepo) ListByStudent(ctx context.Context, studentID uuid.UUID) ([]models.Agreement, error) {
	args := m.Called(ctx, studentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Agreement), args.Error(1)
}

func (m *mockAgreementRepo) ListByWriter(ctx context.Context, writerID uuid.UUID) ([]models.Agreement, error) {
	args := m.Called(ctx, writerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Agreement), args.Error(1)
}

func (m *mockAgreementRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status models.AgreementStatus, writerID *uuid.UUID) (*models.Agreement, error) {
	args := m.Called(ctx, id, status, writerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Agreement), args.Error(1)
}

func newAgreementService(repo *mockAgreementRepo, sink *stubSink) *AgreementService {
	return NewAgreementService(repo, sink, stubConvergence{}, stubFlags{})
}

func TestAgreementCreate_ValidSchedule(t *testing.T) {
	repo := new(mockAgreementRepo)
	repo.On("Create", mock.Anything, mock.Anything).Return(nil)

	svc := newAgreementService(repo, &stubSink{})
	studentID := uuid.New()
	due := time.Now().AddDate(0, 1, 0)

	a, err := svc.Create(context.Background(), studentID, CreateAgreementInput{
		Title:       "Дипломная работа",
		TotalAmount: 300,
		Installments: []InstallmentInput{
			{Amount: 100, DueDate: due},
			{Amount: 100, DueDate: due.AddDate(0, 1, 0)},
			{Amount: 100, DueDate: due.AddDate(0, 2, 0)},
		},
	})

	assert.NoError(t, err)
	assert.Equal(t, models.AgreementStatusPending, a.Status)
	assert.Equal(t, studentID, a.StudentID)
	assert.Len(t, a.Installments, 3)
	for _, inst := range a.Installments {
		assert.Equal(t, models.InstallmentStatusPending, inst.Status)
	}
	repo.AssertExpectations(t)
}

func TestAgreementCreate_ScheduleMismatchRejected(t *testing.T) {
	repo := new(mockAgreementRepo)
	svc := newAgreementService(repo, &stubSink{})

	_, err := svc.Create(context.Background(), uuid.New(), CreateAgreementInput{
		Title:       "Дипломная работа",
		TotalAmount: 300,
		Installments: []InstallmentInput{
			{Amount: 100, DueDate: time.Now()},
			{Amount: 100, DueDate: time.Now()},
		},
	})

	assert.Error(t, err)
	assert.True(t, apperror.IsValidation(err))
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestAgreementCreate_TitleTooShort(t *testing.T) {
	svc := newAgreementService(new(mockAgreementRepo), &stubSink{})

	_, err := svc.Create(context.Background(), uuid.New(), CreateAgreementInput{
		Title:       "ab",
		TotalAmount: 100,
	})

	assert.Error(t, err)
	assert.True(t, apperror.IsValidation(err))
}

func TestAgreementGet_StrangerForbidden(t *testing.T) {
	repo := new(mockAgreementRepo)
	a := activeAgreement()
	repo.On("GetByID", mock.Anything, a.ID).Return(a, nil)

	svc := newAgreementService(repo, &stubSink{})

	_, err := svc.Get(context.Background(), uuid.New(), a.ID)

	assert.ErrorIs(t, err, apperror.ErrForbidden)
}

func TestAgreementAccept_BindsWriterAndNotifiesStudent(t *testing.T) {
	repo := new(mockAgreementRepo)
	writerID := uuid.New()

	a := activeAgreement()
	a.Status = models.AgreementStatusPending

	updated := *a
	updated.Status = models.AgreementStatusActive
	updated.WriterID = &writerID

	repo.On("GetByID", mock.Anything, a.ID).Return(a, nil)
	repo.On("UpdateStatus", mock.Anything, a.ID, models.AgreementStatusActive, &writerID).Return(&updated, nil)

	sink := &stubSink{}
	svc := newAgreementService(repo, sink)

	got, err := svc.Accept(context.Background(), writerID, a.ID)

	assert.NoError(t, err)
	assert.Equal(t, models.AgreementStatusActive, got.Status)
	assert.Contains(t, sink.sent(), string(recon.EventAgreementAccepted))
	repo.AssertExpectations(t)
}

func TestAgreementAccept_ForeignWriterForbidden(t *testing.T) {
	repo := new(mockAgreementRepo)
	boundWriter := uuid.New()

	a := activeAgreement()
	a.Status = models.AgreementStatusPending
	a.WriterID = &boundWriter

	repo.On("GetByID", mock.Anything, a.ID).Return(a, nil)

	svc := newAgreementService(repo, &stubSink{})

	_, err := svc.Accept(context.Background(), uuid.New(), a.ID)

	assert.ErrorIs(t, err, apperror.ErrForbidden)
	repo.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAgreementAccept_CancelledAgreementRejected(t *testing.T) {
	repo := new(mockAgreementRepo)
	a := activeAgreement()
	a.Status = models.AgreementStatusCancelled

	repo.On("GetByID", mock.Anything, a.ID).Return(a, nil)

	svc := newAgreementService(repo, &stubSink{})

	_, err := svc.Accept(context.Background(), uuid.New(), a.ID)

	assert.ErrorIs(t, err, apperror.ErrInvalidTransition)
}

func TestAgreementComplete_UnderpaidEmitsFullyPaidFalse(t *testing.T) {
	repo := new(mockAgreementRepo)
	writerID := uuid.New()

	a := activeAgreement()
	a.WriterID = &writerID
	a.Installments[0].Status = models.InstallmentStatusPaid
	a.PaidAmount = 100

	updated := *a
	updated.Status = models.AgreementStatusCompleted

	repo.On("GetByID", mock.Anything, a.ID).Return(a, nil)
	repo.On("UpdateStatus", mock.Anything, a.ID, models.AgreementStatusCompleted, (*uuid.UUID)(nil)).Return(&updated, nil)

	sink := &stubSink{}
	svc := newAgreementService(repo, sink)

	got, err := svc.Complete(context.Background(), a.StudentID, a.ID)

	assert.NoError(t, err)
	assert.Equal(t, models.AgreementStatusCompleted, got.Status)
	// Обе стороны получают уведомление о завершении.
	sent := sink.sent()
	assert.Len(t, sent, 2)
	assert.Equal(t, string(recon.EventAgreementCompleted), sent[0])
	repo.AssertExpectations(t)
}

func TestAgreementDispute_FromActive(t *testing.T) {
	repo := new(mockAgreementRepo)
	a := activeAgreement()

	updated := *a
	updated.Status = models.AgreementStatusDisputed

	repo.On("GetByID", mock.Anything, a.ID).Return(a, nil)
	repo.On("UpdateStatus", mock.Anything, a.ID, models.AgreementStatusDisputed, (*uuid.UUID)(nil)).Return(&updated, nil)

	svc := newAgreementService(repo, &stubSink{})

	got, err := svc.Dispute(context.Background(), a.StudentID, a.ID)

	assert.NoError(t, err)
	assert.Equal(t, models.AgreementStatusDisputed, got.Status)
}

func TestAgreementCancel_CompletedRejected(t *testing.T) {
	repo := new(mockAgreementRepo)
	a := activeAgreement()
	a.Status = models.AgreementStatusCompleted

	repo.On("GetByID", mock.Anything, a.ID).Return(a, nil)

	svc := newAgreementService(repo, &stubSink{})

	_, err := svc.Cancel(context.Background(), a.StudentID, a.ID)

	assert.ErrorIs(t, err, apperror.ErrInvalidTransition)
	repo.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestListForUser_RoleSelectsPerspective(t *testing.T) {
	repo := new(mockAgreementRepo)
	userID := uuid.New()
	repo.On("ListByWriter", mock.Anything, userID).Return([]models.Agreement{}, nil)
	repo.On("ListByStudent", mock.Anything, userID).Return([]models.Agreement{*activeAgreement()}, nil)

	svc := newAgreementService(repo, &stubSink{})

	asWriter, err := svc.ListForUser(context.Background(), userID, models.RoleWriter)
	assert.NoError(t, err)
	assert.Empty(t, asWriter)

	asStudent, err := svc.ListForUser(context.Background(), userID, models.RoleStudent)
	assert.NoError(t, err)
	assert.Len(t, asStudent, 1)
	repo.AssertExpectations(t)
}
