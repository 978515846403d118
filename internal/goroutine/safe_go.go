package goroutine

import (
	"context"
	"runtime/debug"

	"github.com/writerlane/agreements-backend/internal/logger"
)

// SafeGo запускает горутину с обработкой panic.
// Используется таймерами reconciliation, хабом и фоновыми обновлениями:
// упавшая горутина не должна ронять процесс.
func SafeGo(fn func()) {
	go func() {
		defer recoverPanic()
		fn()
	}()
}

// SafeGoWithContext запускает горутину с контекстом и обработкой panic.
func SafeGoWithContext(ctx context.Context, fn func(context.Context)) {
	go func() {
		defer recoverPanic()
		fn(ctx)
	}()
}

func recoverPanic() {
	if r := recover(); r != nil {
		logger.Log.Errorf("panic в горутине: %v\nstack trace:\n%s", r, debug.Stack())
	}
}
