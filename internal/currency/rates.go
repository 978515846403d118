package currency

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/writerlane/agreements-backend/internal/logger"
)

// defaultRates — стартовая таблица курсов. Используется до первого успешного
// обновления; курс применяется только для отображения и агрегации,
// никогда для расчётов по сделке.
var defaultRates = map[string]float64{
	"USD/NGN": 1545.0,
	"NGN/USD": 1.0 / 1545.0,
}

// RateSource — внешний источник курсов валют.
type RateSource interface {
	Fetch(ctx context.Context) (map[string]float64, error)
}

// Table — таблица множителей для пар валют с возможностью обновления.
type Table struct {
	mu    sync.RWMutex
	rates map[string]float64
}

// NewTable создаёт таблицу с дефолтными курсами.
func NewTable() *Table {
	rates := make(map[string]float64, len(defaultRates))
	for pair, rate := range defaultRates {
		rates[pair] = rate
	}
	return &Table{rates: rates}
}

// Rate возвращает множитель для пары валют.
func (t *Table) Rate(from, to string) (float64, bool) {
	if from == to {
		return 1, true
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	rate, ok := t.rates[from+"/"+to]
	return rate, ok
}

// Convert переводит сумму из одной валюты в другую.
// При отсутствии прямой пары пробует путь через USD; если и его нет,
// возвращает сумму без изменений и пишет предупреждение — терять данные
// на дашборде хуже, чем показать неконвертированную цифру.
func (t *Table) Convert(amount float64, from, to string) float64 {
	if from == to {
		return amount
	}

	if rate, ok := t.Rate(from, to); ok {
		return amount * rate
	}

	toUSD, ok1 := t.Rate(from, USD)
	fromUSD, ok2 := t.Rate(USD, to)
	if ok1 && ok2 {
		return amount * toUSD * fromUSD
	}

	logger.Log.Warnf("currency: нет курса для пары %s/%s, сумма не сконвертирована", from, to)
	return amount
}

// Refresh подтягивает свежие курсы из источника. Частичное обновление
// допустимо: известные пары перезаписываются, остальные сохраняются.
func (t *Table) Refresh(ctx context.Context, source RateSource) error {
	fresh, err := source.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("currency: не удалось обновить курсы: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for pair, rate := range fresh {
		if rate > 0 {
			t.rates[pair] = rate
		}
	}
	return nil
}

// HTTPRateSource загружает курсы из JSON endpoint вида {"USD/NGN": 1545.0}.
type HTTPRateSource struct {
	URL    string
	Client *http.Client
}

// NewHTTPRateSource создаёт источник с разумным таймаутом.
func NewHTTPRateSource(url string) *HTTPRateSource {
	return &HTTPRateSource{
		URL:    url,
		Client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Fetch запрашивает и разбирает таблицу курсов.
func (s *HTTPRateSource) Fetch(ctx context.Context) (map[string]float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rate source вернул статус %d", resp.StatusCode)
	}

	var rates map[string]float64
	if err := json.NewDecoder(resp.Body).Decode(&rates); err != nil {
		return nil, err
	}
	return rates, nil
}
