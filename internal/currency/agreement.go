package currency

import (
	"github.com/writerlane/agreements-backend/internal/models"
)

// ForAgreement определяет валюту договора по его сигналам.
// Единственная точка входа для договоров: отдельные взносы наследуют
// валюту владеющего договора.
func ForAgreement(a *models.Agreement) string {
	return Resolve(Signals{
		DeclaredCurrency: a.DeclaredCurrency,
		Gateway:          a.Gateway,
		NativeAmount:     a.NativeAmount,
		ExchangeRate:     a.ExchangeRate,
		TotalAmount:      a.TotalAmount,
	})
}
