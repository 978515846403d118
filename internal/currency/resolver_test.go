package currency

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func strPtr(s string) *string   { return &s }
func f64Ptr(f float64) *float64 { return &f }

func TestResolve_DeclaredLocalWins(t *testing.T) {
	got := Resolve(Signals{
		DeclaredCurrency: strPtr(NGN),
		Gateway:          strPtr(GatewayStripe),
		TotalAmount:      100,
	})
	assert.Equal(t, NGN, got)
}

func TestResolve_PaystackImpliesNaira(t *testing.T) {
	got := Resolve(Signals{
		Gateway:     strPtr(GatewayPaystack),
		TotalAmount: 100,
	})
	assert.Equal(t, NGN, got)
}

func TestResolve_NativeMismatchWithUnitRate(t *testing.T) {
	// Запись в найре с курсом-заглушкой 1: native не совпадает с total.
	got := Resolve(Signals{
		NativeAmount: f64Ptr(150000),
		ExchangeRate: f64Ptr(1),
		TotalAmount:  100,
	})
	assert.Equal(t, NGN, got)
}

func TestResolve_LargeNativeAmount(t *testing.T) {
	got := Resolve(Signals{
		NativeAmount: f64Ptr(77000),
		ExchangeRate: f64Ptr(1545),
		TotalAmount:  77000,
	})
	assert.Equal(t, NGN, got)
}

func TestResolve_SmallNativeStaysUSD(t *testing.T) {
	got := Resolve(Signals{
		NativeAmount: f64Ptr(100),
		ExchangeRate: f64Ptr(1545),
		TotalAmount:  100,
	})
	assert.Equal(t, USD, got)
}

func TestResolve_DeclaredUSD(t *testing.T) {
	got := Resolve(Signals{
		DeclaredCurrency: strPtr(USD),
		TotalAmount:      250,
	})
	assert.Equal(t, USD, got)
}

func TestResolve_NoSignalsDefaultsUSD(t *testing.T) {
	assert.Equal(t, USD, Resolve(Signals{TotalAmount: 42}))
}

func TestResolve_PaystackWithLargeNative(t *testing.T) {
	// Все сигналы сразу: шлюз выигрывает раньше эвристик по сумме.
	got := Resolve(Signals{
		Gateway:      strPtr(GatewayPaystack),
		NativeAmount: f64Ptr(150000),
		ExchangeRate: f64Ptr(1),
		TotalAmount:  100,
	})
	assert.Equal(t, NGN, got)
}

func TestIsValid(t *testing.T) {
	assert.True(t, IsValid(USD))
	assert.True(t, IsValid(NGN))
	assert.False(t, IsValid("EUR"))
	assert.False(t, IsValid(""))
}
