package ledger

import (
	"time"

	"github.com/writerlane/agreements-backend/internal/currency"
	"github.com/writerlane/agreements-backend/internal/models"
)

// Financials — агрегаты дашборда в одной отчётной валюте.
type Financials struct {
	LifetimeSpent  float64 `json:"lifetime_spent"`
	MonthSpent     float64 `json:"month_spent"`
	PendingBalance float64 `json:"pending_balance"`
	Currency       string  `json:"currency"`
}

// ComputeUserFinancials собирает агрегаты по договорам пользователя.
// Валюта каждого договора определяется через currency.ForAgreement один раз,
// конвертация в отчётную валюту применяется ровно один раз на сумму в момент
// сложения — уже сконвертированные промежуточные значения повторно не
// пересчитываются.
//
// Набор договоров задаёт перспективу: для студента это его расходы,
// для автора — заработок; сам расчёт симметричен.
func ComputeUserFinancials(
	agreements []models.Agreement,
	month time.Month,
	year int,
	reporting string,
	rates *currency.Table,
) Financials {
	result := Financials{Currency: reporting}

	for i := range agreements {
		a := &agreements[i]
		cur := currency.ForAgreement(a)

		lifetime, monthPart := spentContribution(a, month, year)
		result.LifetimeSpent += rates.Convert(lifetime, cur, reporting)
		result.MonthSpent += rates.Convert(monthPart, cur, reporting)

		if pending := pendingContribution(a); pending > 0 {
			result.PendingBalance += rates.Convert(pending, cur, reporting)
		}
	}

	return result
}

// spentContribution возвращает вклад договора в lifetime и в указанный месяц,
// в валюте договора.
func spentContribution(a *models.Agreement, month time.Month, year int) (lifetime, monthPart float64) {
	if a.IsLumpSum() {
		lifetime = a.PaidAmount
		if a.Status == models.AgreementStatusCompleted && a.TotalAmount > lifetime {
			lifetime = a.TotalAmount
		}
		if lifetime > 0 && inMonth(lumpSumAttributionDate(a), month, year) {
			monthPart = lifetime
		}
		return lifetime, monthPart
	}

	for i := range a.Installments {
		inst := &a.Installments[i]
		if !inst.Status.CountsAsPaid() {
			continue
		}
		lifetime += inst.Amount
		if inMonth(installmentAttributionDate(a, inst), month, year) {
			monthPart += inst.Amount
		}
	}
	return lifetime, monthPart
}

// pendingContribution возвращает неоплаченный остаток договора.
// Учитываются только незавершённые договоры; для разовых — остаток от
// суммы договора, для договоров с графиком — взносы вне {paid, processing}.
func pendingContribution(a *models.Agreement) float64 {
	if a.Status != models.AgreementStatusPending && a.Status != models.AgreementStatusActive {
		return 0
	}

	if a.IsLumpSum() {
		remaining := a.TotalAmount - a.PaidAmount
		if remaining < 0 {
			return 0
		}
		return remaining
	}

	var sum float64
	for i := range a.Installments {
		if !a.Installments[i].Status.CountsAsPaid() {
			sum += a.Installments[i].Amount
		}
	}
	return sum
}

// installmentAttributionDate — дата, к которой взнос относится в месячной
// разбивке: дата платежа, иначе completed_at/updated_at владеющего договора.
// DueDate намеренно не используется: запланированная дата — не дата оплаты.
func installmentAttributionDate(a *models.Agreement, inst *models.Installment) time.Time {
	if inst.PaymentDate != nil {
		return *inst.PaymentDate
	}
	if a.CompletedAt != nil {
		return *a.CompletedAt
	}
	return a.UpdatedAt
}

// lumpSumAttributionDate — дата атрибуции разового договора:
// completed_at, иначе updated_at, иначе created_at.
func lumpSumAttributionDate(a *models.Agreement) time.Time {
	if a.CompletedAt != nil {
		return *a.CompletedAt
	}
	if !a.UpdatedAt.IsZero() {
		return a.UpdatedAt
	}
	return a.CreatedAt
}

func inMonth(t time.Time, month time.Month, year int) bool {
	return t.Month() == month && t.Year() == year
}
