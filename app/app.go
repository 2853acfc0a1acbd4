// Package app wires the kernel, its services and the HAL into a running
// system.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"myrtos/hal"
	"myrtos/internal/buildinfo"
	"myrtos/rtos/kernel"
	logsvc "myrtos/rtos/services/logger"
	"myrtos/rtos/services/monitor"
	"myrtos/rtos/services/shell"
	timersvc "myrtos/rtos/services/timer"

	"golang.org/x/sync/errgroup"
)

// Service task priorities. Demo tasks sit between idle and these.
const (
	prioMonitor kernel.Priority = 1
	prioShell   kernel.Priority = 5
	prioLogger  kernel.Priority = 6
	prioTimers  kernel.Priority = 7
)

type Config struct {
	Kernel kernel.Config

	// MonitorMs is the task table refresh period; 0 disables the monitor.
	MonitorMs uint32
	// Console runs the shell on the serial console and keyboard.
	Console bool
	// Demo starts the sample workload.
	Demo bool
}

// DefaultConfig returns the configuration used by the firmware image.
func DefaultConfig() Config {
	return Config{
		Kernel:    kernel.DefaultConfig(),
		MonitorMs: 500,
		Console:   true,
		Demo:      true,
	}
}

// System is a configured kernel with its services, not yet running.
type System struct {
	h   hal.HAL
	cfg Config
	k   *kernel.Kernel

	log    *logsvc.Service
	timers *timersvc.Service
	shell  *shell.Service
	mon    *monitor.Service
}

// New builds the kernel and creates the service and demo tasks.
func New(h hal.HAL, cfg Config) (*System, error) {
	if cfg.Kernel.TickRateHz == 0 && h.Time() != nil {
		cfg.Kernel.TickRateHz = h.Time().TickHz()
	}
	k, err := kernel.New(cfg.Kernel)
	if err != nil {
		return nil, err
	}
	s := &System{h: h, cfg: cfg, k: k}
	installPanicHandler(h, k)

	if s.log, err = logsvc.New(k, h.Logger(), prioLogger, 8); err != nil {
		return nil, err
	}
	if s.timers, err = timersvc.New(k, prioTimers, 8); err != nil {
		return nil, err
	}
	if cfg.Console {
		if s.shell, err = shell.New(k, s.consoleOut(), prioShell, 4); err != nil {
			return nil, err
		}
	}
	if cfg.MonitorMs > 0 {
		period := k.Config().MsToTicks(cfg.MonitorMs)
		if s.mon, err = monitor.New(k, h.Display(), prioMonitor, period); err != nil {
			return nil, err
		}
		s.mon.Watch("log", s.log.Queue())
		s.mon.Watch("timers", s.timers.Queue())
		if s.shell != nil {
			s.mon.Watch("shell", s.shell.Queue())
		}
	}
	if cfg.Demo {
		if err := startDemo(s); err != nil {
			return nil, fmt.Errorf("demo: %w", err)
		}
	}
	return s, nil
}

// Kernel returns the system kernel.
func (s *System) Kernel() *kernel.Kernel { return s.k }

// Run starts the scheduler and feeds it ticks and console input until ctx
// is canceled or the kernel stops.
func (s *System) Run(ctx context.Context) error {
	if l := s.h.Logger(); l != nil {
		l.WriteLineString(fmt.Sprintf("myrtos %s: %d tasks, %d bytes heap, %d Hz",
			buildinfo.Describe(), len(s.k.Tasks()), s.k.HeapStats().Size, s.k.Config().TickRateHz))
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.k.Start(gctx) })
	g.Go(func() error { return s.pumpTicks(gctx) })
	if s.shell != nil {
		g.Go(func() error { return s.console(gctx) })
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// pumpTicks forwards HAL ticks to the kernel. Ticks the HAL dropped are
// replayed from the sequence number.
func (s *System) pumpTicks(ctx context.Context) error {
	t := s.h.Time()
	if t == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	ch := t.Ticks()
	var last uint64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case seq := <-ch:
			if last == 0 {
				last = seq - 1
			}
			for ; last < seq; last++ {
				s.k.Tick()
			}
		}
	}
}

func (s *System) consoleOut() io.Writer {
	if ser := s.h.Serial(); ser != nil {
		return ser
	}
	return &lineWriter{log: s.h.Logger()}
}

// NewStep builds the system, runs it in the background and returns a step
// function for the host runners. step reports the error that stopped the
// system, or nil while it runs.
func NewStep(h hal.HAL, cfg Config) func() error {
	s, err := New(h, cfg)
	if err != nil {
		return func() error { return err }
	}
	done := make(chan error, 1)
	go func() {
		err := s.Run(context.Background())
		if err == nil {
			err = errStopped
		}
		done <- err
	}()
	var final error
	return func() error {
		if final != nil {
			return final
		}
		select {
		case final = <-done:
			return final
		default:
			return nil
		}
	}
}

var errStopped = errors.New("system stopped")

// Run starts the system and blocks forever (TinyGo entrypoint).
func Run(h hal.HAL, cfg Config) {
	s, err := New(h, cfg)
	if err != nil {
		if l := h.Logger(); l != nil {
			l.WriteLineString("boot: " + err.Error())
		}
		select {}
	}
	_ = s.Run(context.Background())
	select {}
}
