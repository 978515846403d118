package currency

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubRateSource struct {
	rates map[string]float64
	err   error
}

func (s *stubRateSource) Fetch(context.Context) (map[string]float64, error) {
	return s.rates, s.err
}

func TestTable_RateSameCurrency(t *testing.T) {
	table := NewTable()
	rate, ok := table.Rate(USD, USD)
	assert.True(t, ok)
	assert.Equal(t, 1.0, rate)
}

func TestTable_ConvertUSDToNGN(t *testing.T) {
	table := NewTable()
	got := table.Convert(100, USD, NGN)
	assert.InDelta(t, 154500, got, 0.01)
}

func TestTable_ConvertRoundTrip(t *testing.T) {
	table := NewTable()
	back := table.Convert(table.Convert(100, USD, NGN), NGN, USD)
	assert.InDelta(t, 100, back, 0.01)
}

func TestTable_ConvertUnknownPairReturnsAmount(t *testing.T) {
	table := NewTable()
	// Пары EUR/NGN нет и пути через USD тоже нет.
	assert.Equal(t, 500.0, table.Convert(500, "EUR", NGN))
}

func TestTable_RefreshOverwritesKnownPairs(t *testing.T) {
	table := NewTable()
	source := &stubRateSource{rates: map[string]float64{"USD/NGN": 1600}}

	err := table.Refresh(context.Background(), source)
	assert.NoError(t, err)

	rate, ok := table.Rate(USD, NGN)
	assert.True(t, ok)
	assert.Equal(t, 1600.0, rate)

	// Обратная пара не пришла в обновлении и осталась прежней.
	inverse, ok := table.Rate(NGN, USD)
	assert.True(t, ok)
	assert.InDelta(t, 1.0/1545.0, inverse, 1e-9)
}

func TestTable_RefreshIgnoresNonPositiveRates(t *testing.T) {
	table := NewTable()
	source := &stubRateSource{rates: map[string]float64{"USD/NGN": -5, "NGN/USD": 0}}

	err := table.Refresh(context.Background(), source)
	assert.NoError(t, err)

	rate, _ := table.Rate(USD, NGN)
	assert.Equal(t, 1545.0, rate)
}

func TestTable_RefreshSourceError(t *testing.T) {
	table := NewTable()
	source := &stubRateSource{err: errors.New("timeout")}

	err := table.Refresh(context.Background(), source)
	assert.Error(t, err)

	// Таблица не тронута.
	rate, _ := table.Rate(USD, NGN)
	assert.Equal(t, 1545.0, rate)
}
