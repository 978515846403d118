package currency

// Поддерживаемые валюты и шлюзы. Stripe принимает только USD,
// Paystack — только найру.
const (
	USD = "USD"
	NGN = "NGN"

	GatewayStripe   = "stripe"
	GatewayPaystack = "paystack"
)

// largeNativeThreshold — эвристика: суммы в найре на порядки больше долларовых,
// native_amount выше порога почти наверняка записан в локальной валюте.
const largeNativeThreshold = 5000

// Signals — набор признаков для определения валюты записи.
// Не хранится в базе, собирается из полей записи при чтении.
type Signals struct {
	DeclaredCurrency *string
	Gateway          *string
	NativeAmount     *float64
	ExchangeRate     *float64
	TotalAmount      float64
}

// Resolve определяет фактическую валюту транзакции по цепочке приоритетов.
// Функция тотальна и детерминирована: при отсутствии сигналов — USD.
// Любое место, где сумма отображается или агрегируется, обязано вызывать
// именно её: расхождение логики между путями меняет итоговые цифры на
// порядки, это ошибка корректности, а не отображения.
//
// Порядок приоритетов (первое совпадение выигрывает):
//  1. явно заявленная локальная валюта;
//  2. локальный шлюз (Paystack работает только с найрой);
//  3. native_amount отличается от total при курсе 1 — запись в найре
//     с незаполненным курсом;
//  4. native_amount выше порога;
//  5. заявленная валюта, иначе USD.
func Resolve(s Signals) string {
	if s.DeclaredCurrency != nil && *s.DeclaredCurrency == NGN {
		return NGN
	}

	if s.Gateway != nil && *s.Gateway == GatewayPaystack {
		return NGN
	}

	if s.NativeAmount != nil && *s.NativeAmount != s.TotalAmount &&
		s.ExchangeRate != nil && *s.ExchangeRate == 1 {
		return NGN
	}

	if s.NativeAmount != nil && *s.NativeAmount > largeNativeThreshold {
		return NGN
	}

	if s.DeclaredCurrency != nil && *s.DeclaredCurrency != "" {
		return *s.DeclaredCurrency
	}

	return USD
}

// IsValid проверяет, что код валюты поддерживается сервисом.
func IsValid(code string) bool {
	return code == USD || code == NGN
}
