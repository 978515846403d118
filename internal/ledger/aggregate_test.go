package ledger

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/writerlane/agreements-backend/internal/currency"
	"github.com/writerlane/agreements-backend/internal/models"
)

func timePtr(t time.Time) *time.Time { return &t }
func strPtr(s string) *string        { return &s }

func TestComputeUserFinancials_InstallmentAgreement(t *testing.T) {
	june := time.Date(2024, time.June, 10, 12, 0, 0, 0, time.UTC)
	july := time.Date(2024, time.July, 2, 12, 0, 0, 0, time.UTC)

	a := models.Agreement{
		ID:          uuid.New(),
		TotalAmount: 300,
		Status:      models.AgreementStatusActive,
		PaidAmount:  200,
		Installments: []models.Installment{
			{Amount: 100, Status: models.InstallmentStatusPaid, PaymentDate: timePtr(june)},
			{Amount: 100, Status: models.InstallmentStatusProcessing, PaymentDate: timePtr(july)},
			{Amount: 100, Status: models.InstallmentStatusPending},
		},
	}

	got := ComputeUserFinancials([]models.Agreement{a}, time.June, 2024, currency.USD, currency.NewTable())

	assert.InDelta(t, 200, got.LifetimeSpent, AmountEpsilon)
	assert.InDelta(t, 100, got.MonthSpent, AmountEpsilon)
	assert.InDelta(t, 100, got.PendingBalance, AmountEpsilon)
	assert.Equal(t, currency.USD, got.Currency)
}

func TestComputeUserFinancials_CompletedLumpSum(t *testing.T) {
	completedAt := time.Date(2024, time.June, 20, 9, 0, 0, 0, time.UTC)
	a := models.Agreement{
		ID:          uuid.New(),
		TotalAmount: 500,
		Status:      models.AgreementStatusCompleted,
		PaidAmount:  480,
		CompletedAt: timePtr(completedAt),
	}

	got := ComputeUserFinancials([]models.Agreement{a}, time.June, 2024, currency.USD, currency.NewTable())

	// Завершённый разовый договор учитывается на полную сумму.
	assert.InDelta(t, 500, got.LifetimeSpent, AmountEpsilon)
	assert.InDelta(t, 500, got.MonthSpent, AmountEpsilon)
	// Завершённые договоры не дают pending.
	assert.InDelta(t, 0, got.PendingBalance, AmountEpsilon)
}

func TestComputeUserFinancials_AttributionFallsBackToUpdatedAt(t *testing.T) {
	march := time.Date(2024, time.March, 5, 0, 0, 0, 0, time.UTC)
	a := models.Agreement{
		ID:          uuid.New(),
		TotalAmount: 200,
		Status:      models.AgreementStatusActive,
		PaidAmount:  200,
		UpdatedAt:   march,
		Installments: []models.Installment{
			// Дата платежа не записана: взнос относится к месяцу updated_at.
			{Amount: 200, Status: models.InstallmentStatusPaid},
		},
	}

	got := ComputeUserFinancials([]models.Agreement{a}, time.March, 2024, currency.USD, currency.NewTable())
	assert.InDelta(t, 200, got.MonthSpent, AmountEpsilon)

	other := ComputeUserFinancials([]models.Agreement{a}, time.April, 2024, currency.USD, currency.NewTable())
	assert.InDelta(t, 0, other.MonthSpent, AmountEpsilon)
}

func TestComputeUserFinancials_DueDateNotUsedForAttribution(t *testing.T) {
	may := time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC)
	june := time.Date(2024, time.June, 15, 0, 0, 0, 0, time.UTC)
	a := models.Agreement{
		ID:          uuid.New(),
		TotalAmount: 100,
		Status:      models.AgreementStatusActive,
		PaidAmount:  100,
		Installments: []models.Installment{
			// Запланирован на май, оплачен в июне.
			{Amount: 100, Status: models.InstallmentStatusPaid, DueDate: may, PaymentDate: timePtr(june)},
		},
	}

	inMay := ComputeUserFinancials([]models.Agreement{a}, time.May, 2024, currency.USD, currency.NewTable())
	assert.InDelta(t, 0, inMay.MonthSpent, AmountEpsilon)

	inJune := ComputeUserFinancials([]models.Agreement{a}, time.June, 2024, currency.USD, currency.NewTable())
	assert.InDelta(t, 100, inJune.MonthSpent, AmountEpsilon)
}

func TestComputeUserFinancials_ConvertsNairaAgreements(t *testing.T) {
	paidAt := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)
	naira := models.Agreement{
		ID:               uuid.New(),
		TotalAmount:      154500,
		DeclaredCurrency: strPtr(currency.NGN),
		Status:           models.AgreementStatusActive,
		PaidAmount:       154500,
		Installments: []models.Installment{
			{Amount: 154500, Status: models.InstallmentStatusPaid, PaymentDate: timePtr(paidAt)},
		},
	}
	usd := models.Agreement{
		ID:          uuid.New(),
		TotalAmount: 50,
		Status:      models.AgreementStatusActive,
		PaidAmount:  50,
		Installments: []models.Installment{
			{Amount: 50, Status: models.InstallmentStatusPaid, PaymentDate: timePtr(paidAt)},
		},
	}

	got := ComputeUserFinancials([]models.Agreement{naira, usd}, time.June, 2024, currency.USD, currency.NewTable())

	// 154500 NGN по дефолтному курсу 1545 — ровно 100 USD.
	assert.InDelta(t, 150, got.LifetimeSpent, 0.01)
}

func TestComputeUserFinancials_LumpSumPendingBalance(t *testing.T) {
	a := models.Agreement{
		ID:          uuid.New(),
		TotalAmount: 400,
		Status:      models.AgreementStatusActive,
		PaidAmount:  150,
	}

	got := ComputeUserFinancials([]models.Agreement{a}, time.January, 2024, currency.USD, currency.NewTable())
	assert.InDelta(t, 250, got.PendingBalance, AmountEpsilon)
}
