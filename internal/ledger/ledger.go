package ledger

import (
	"math"

	"github.com/writerlane/agreements-backend/internal/logger"
	"github.com/writerlane/agreements-backend/internal/models"
)

// AmountEpsilon — допуск на ошибки округления при сравнении денежных сумм,
// одна сотая единицы валюты.
const AmountEpsilon = 0.01

// PaidAmount возвращает оплаченную часть договора.
// Взносы в статусах paid и processing считаются оплаченными.
// Денормализованное поле Agreement.PaidAmount — только кэш: оно используется
// исключительно для договоров без графика взносов; при расхождении с суммой
// по взносам истина — список взносов, расхождение логируется как warning.
func PaidAmount(a *models.Agreement) float64 {
	if a.IsLumpSum() {
		return a.PaidAmount
	}

	var sum float64
	for i := range a.Installments {
		if a.Installments[i].Status.CountsAsPaid() {
			sum += a.Installments[i].Amount
		}
	}

	if math.Abs(sum-a.PaidAmount) > AmountEpsilon {
		logger.Log.Warnf(
			"ledger: договор %s: paid_amount=%.2f расходится с суммой взносов %.2f, используем сумму взносов",
			a.ID, a.PaidAmount, sum,
		)
	}

	return sum
}

// PendingAmount возвращает сумму взносов в статусе pending.
func PendingAmount(a *models.Agreement) float64 {
	var sum float64
	for i := range a.Installments {
		if a.Installments[i].Status == models.InstallmentStatusPending {
			sum += a.Installments[i].Amount
		}
	}
	return sum
}

// Progress возвращает процент оплаты договора, всегда в пределах [0, 100].
// Нулевая сумма договора даёт 0, а не ошибку деления.
func Progress(a *models.Agreement) float64 {
	if a.TotalAmount <= 0 {
		return 0
	}

	p := PaidAmount(a) / a.TotalAmount * 100
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// IsFullyPaid сообщает, покрыта ли вся сумма договора подтверждёнными
// платежами. Взносы в processing сюда не входят: авторизация шлюза ещё
// не расчёт, закрывать договор по ней нельзя.
func IsFullyPaid(a *models.Agreement) bool {
	var paid float64
	if a.IsLumpSum() {
		paid = a.PaidAmount
	} else {
		for i := range a.Installments {
			if a.Installments[i].Status == models.InstallmentStatusPaid {
				paid += a.Installments[i].Amount
			}
		}
	}

	return a.TotalAmount-paid <= AmountEpsilon
}

// ValidateSchedule проверяет инвариант графика: сумма взносов равна сумме
// договора с точностью до AmountEpsilon. Пустой график валиден.
func ValidateSchedule(totalAmount float64, installments []models.Installment) bool {
	if len(installments) == 0 {
		return true
	}

	var sum float64
	for i := range installments {
		sum += installments[i].Amount
	}
	return math.Abs(sum-totalAmount) <= AmountEpsilon
}
