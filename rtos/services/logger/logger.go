// Package logger owns the kernel log queue and the task that drains it,
// together with the kernel event ring, into a hal.Logger.
package logger

import (
	"fmt"

	"myrtos/hal"
	"myrtos/rtos/kernel"
)

// LineBytes is the size of one log queue item: a length byte and the text.
const LineBytes = 128

// MaxLine is the longest line that fits one queue item.
const MaxLine = LineBytes - 1

// pollTicks bounds how long kernel events wait to be printed.
const pollTicks = 10

type Service struct {
	log hal.Logger
	k   *kernel.Kernel
	q   *kernel.Queue
}

// New creates the log queue and the logger task.
func New(k *kernel.Kernel, log hal.Logger, prio kernel.Priority, queueLen int) (*Service, error) {
	q, err := k.NewQueue(queueLen, LineBytes)
	if err != nil {
		return nil, fmt.Errorf("logger service: %w", err)
	}
	s := &Service{log: log, k: k, q: q}
	if _, err := k.CreateTask("logger", s.run, nil, 256, prio); err != nil {
		q.Delete(nil)
		return nil, fmt.Errorf("logger service: %w", err)
	}
	return s, nil
}

// Queue returns the queue clients send lines to.
func (s *Service) Queue() *kernel.Queue { return s.q }

func (s *Service) run(ctx *kernel.Context, _ any) {
	buf := make([]byte, LineBytes)
	for {
		if s.q.Receive(ctx, buf, pollTicks) {
			s.writeLine(buf)
			for s.q.Receive(ctx, buf, 0) {
				s.writeLine(buf)
			}
		}
		s.drainEvents()
	}
}

func (s *Service) writeLine(item []byte) {
	if s.log == nil {
		return
	}
	n := int(item[0])
	if n > MaxLine {
		n = MaxLine
	}
	s.log.WriteLineBytes(item[1 : 1+n])
}

func (s *Service) drainEvents() {
	ring := s.k.Events()
	for {
		ev, ok := ring.TryPop()
		if !ok {
			break
		}
		if s.log != nil {
			s.log.WriteLineString(FormatEvent(ev))
		}
	}
}

// FormatEvent renders a kernel event as a log line.
func FormatEvent(ev kernel.Event) string {
	prefix := "kernel"
	if ev.Kind.Fatal() {
		prefix = "kernel FAULT"
	}
	switch ev.Kind {
	case kernel.EventTaskCreated:
		return fmt.Sprintf("[%d] %s: task %d (%s) created, %d stack words", ev.Tick, prefix, ev.Task, ev.TaskName(), ev.Arg)
	case kernel.EventHeapExhausted:
		return fmt.Sprintf("[%d] %s: heap exhausted allocating %d bytes for task %d", ev.Tick, prefix, ev.Arg, ev.Task)
	case kernel.EventHeapCorrupt:
		return fmt.Sprintf("[%d] %s: heap corrupt", ev.Tick, prefix)
	default:
		return fmt.Sprintf("[%d] %s: task %d (%s) %s", ev.Tick, prefix, ev.Task, ev.TaskName(), ev.Kind)
	}
}
