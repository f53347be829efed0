package shared

import (
	"log/slog"
	"runtime/debug"
)

// Go runs fn in a new goroutine. A panic in fn is recovered and logged with
// its stack; the process keeps running.
func Go(logger *slog.Logger, name string, fn func()) {
	if logger == nil {
		logger = slog.Default()
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("Recovered panic in background goroutine",
					slog.String("goroutine", name),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())))
			}
		}()
		fn()
	}()
}
