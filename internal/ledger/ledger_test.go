package ledger

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/writerlane/agreements-backend/internal/models"
)

func scheduleAgreement(total float64, statuses ...models.InstallmentStatus) *models.Agreement {
	a := &models.Agreement{
		ID:          uuid.New(),
		TotalAmount: total,
		Status:      models.AgreementStatusActive,
	}
	per := total / float64(len(statuses))
	for _, st := range statuses {
		a.Installments = append(a.Installments, models.Installment{
			ID:      uuid.New(),
			Amount:  per,
			DueDate: time.Now(),
			Status:  st,
		})
	}
	var paid float64
	for i := range a.Installments {
		if a.Installments[i].Status.CountsAsPaid() {
			paid += a.Installments[i].Amount
		}
	}
	a.PaidAmount = paid
	return a
}

func TestPaidAmount_CountsPaidAndProcessing(t *testing.T) {
	a := scheduleAgreement(300,
		models.InstallmentStatusPaid,
		models.InstallmentStatusProcessing,
		models.InstallmentStatusPending,
	)

	assert.InDelta(t, 200, PaidAmount(a), AmountEpsilon)
	assert.InDelta(t, 100, PendingAmount(a), AmountEpsilon)
	assert.InDelta(t, 200.0/300.0*100, Progress(a), 0.01)
	// Processing двигает прогресс, но не закрывает договор.
	assert.False(t, IsFullyPaid(a))
}

func TestPaidAmount_InstallmentsAreGroundTruth(t *testing.T) {
	a := scheduleAgreement(300,
		models.InstallmentStatusPaid,
		models.InstallmentStatusPaid,
		models.InstallmentStatusPending,
	)
	// Кэш разъехался с графиком: верим графику.
	a.PaidAmount = 300

	assert.InDelta(t, 200, PaidAmount(a), AmountEpsilon)
}

func TestPaidAmount_LumpSumUsesCache(t *testing.T) {
	a := &models.Agreement{TotalAmount: 500, PaidAmount: 120}
	assert.InDelta(t, 120, PaidAmount(a), AmountEpsilon)
}

func TestProgress_ZeroTotal(t *testing.T) {
	a := &models.Agreement{TotalAmount: 0, PaidAmount: 50}
	assert.Equal(t, 0.0, Progress(a))
}

func TestProgress_Clamped(t *testing.T) {
	a := &models.Agreement{TotalAmount: 100, PaidAmount: 150}
	assert.Equal(t, 100.0, Progress(a))
}

func TestIsFullyPaid_AllPaid(t *testing.T) {
	a := scheduleAgreement(300,
		models.InstallmentStatusPaid,
		models.InstallmentStatusPaid,
		models.InstallmentStatusPaid,
	)
	assert.True(t, IsFullyPaid(a))
}

func TestIsFullyPaid_WithinEpsilon(t *testing.T) {
	a := &models.Agreement{TotalAmount: 100, PaidAmount: 99.995}
	assert.True(t, IsFullyPaid(a))
}

func TestValidateSchedule(t *testing.T) {
	installments := []models.Installment{
		{Amount: 100}, {Amount: 100}, {Amount: 100},
	}
	assert.True(t, ValidateSchedule(300, installments))
	assert.False(t, ValidateSchedule(350, installments))
	// Пустой график — разовая оплата, всегда валиден.
	assert.True(t, ValidateSchedule(300, nil))
}
