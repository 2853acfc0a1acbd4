package logger

import (
	"fmt"

	"myrtos/rtos/kernel"
	logsvc "myrtos/rtos/services/logger"
)

// Log sends a log line to the logger service.
//
// The call is best-effort: it drops the line when the queue is full. A nil
// ctx sends from outside any task.
func Log(ctx *kernel.Context, q *kernel.Queue, line string) bool {
	if q == nil {
		return false
	}
	var item [logsvc.LineBytes]byte
	n := copy(item[1:], line)
	item[0] = byte(n)
	return q.Send(ctx, item[:], 0)
}

// Logf formats and sends a log line, best-effort.
func Logf(ctx *kernel.Context, q *kernel.Queue, format string, args ...any) bool {
	return Log(ctx, q, fmt.Sprintf(format, args...))
}

// LogRetry sends a log line, backing off one tick between attempts while the
// queue is full.
func LogRetry(ctx *kernel.Context, q *kernel.Queue, line string, attempts int) error {
	if ctx == nil {
		return fmt.Errorf("logger retry: nil context")
	}
	for i := 0; i < attempts; i++ {
		if Log(ctx, q, line) {
			return nil
		}
		ctx.Delay(1)
	}
	return fmt.Errorf("logger retry: queue full after %d attempts", attempts)
}
