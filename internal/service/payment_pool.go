package service

import (
	"context"

	"github.com/panjf2000/ants/v2"

	"github.com/writerlane/agreements-backend/internal/logger"
)

// CallbackProcessor обрабатывает один callback шлюза.
type CallbackProcessor interface {
	GatewayCallback(ctx context.Context, in GatewayCallbackInput) error
}

// PaymentPool параллелит обработку callback'ов поверх пула воркеров.
// Шлюзы шлют подтверждения пачками, пул ограничивает конкурентность
// вместо goroutine-на-callback.
type PaymentPool struct {
	processor CallbackProcessor
	pool      *ants.Pool
}

// NewPaymentPool создаёт пул воркеров заданного размера.
func NewPaymentPool(processor CallbackProcessor, size int) (*PaymentPool, error) {
	pool, err := ants.NewPool(size, ants.WithPanicHandler(func(r interface{}) {
		logger.Log.Errorf("payment pool: паника в воркере: %v", r)
	}))
	if err != nil {
		return nil, err
	}

	return &PaymentPool{processor: processor, pool: pool}, nil
}

// Submit ставит callback в очередь обработки. Результат доставляется
// в канал, handler сам решает, ждать ли его синхронно.
func (p *PaymentPool) Submit(ctx context.Context, in GatewayCallbackInput) (<-chan error, error) {
	resultChan := make(chan error, 1)

	err := p.pool.Submit(func() {
		resultChan <- p.processor.GatewayCallback(ctx, in)
		close(resultChan)
	})
	if err != nil {
		return nil, err
	}

	return resultChan, nil
}

// Release останавливает пул.
func (p *PaymentPool) Release() {
	p.pool.Release()
}

// Running возвращает число занятых воркеров.
func (p *PaymentPool) Running() int {
	return p.pool.Running()
}
