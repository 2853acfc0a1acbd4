package app

import (
	"encoding/binary"
	"errors"

	logclient "myrtos/rtos/client/logger"
	"myrtos/rtos/kernel"
	timersvc "myrtos/rtos/services/timer"
)

const sigBatch uint32 = 1 << 0

// demo is a small workload that keeps every kernel object busy: a queue
// between producer and consumer, a mutex shared across priorities, a
// semaphore given by a software timer and signals to a reporter.
type demo struct {
	s *System
	k *kernel.Kernel

	work *kernel.Queue
	lock *kernel.Mutex
	beat *kernel.Semaphore

	reporter kernel.TaskID
	shared   uint32
}

func startDemo(s *System) error {
	k := s.k
	d := &demo{s: s, k: k}
	var err error
	if d.work, err = k.NewQueue(4, 4); err != nil {
		return err
	}
	if d.lock, err = k.NewMutex(); err != nil {
		return err
	}
	if d.beat, err = k.NewSemaphore(1, 0); err != nil {
		return err
	}

	tasks := []struct {
		name string
		fn   kernel.TaskFunc
		prio kernel.Priority
	}{
		{"reporter", d.report, 1},
		{"holder", d.hold, 1},
		{"producer", d.produce, 2},
		{"blink", d.blink, 2},
		{"consumer", d.consume, 3},
		{"urgent", d.urgent, 4},
	}
	for _, t := range tasks {
		id, err := k.CreateTask(t.name, t.fn, nil, 192, t.prio)
		if err != nil {
			return err
		}
		if t.name == "reporter" {
			d.reporter = id
		}
	}

	beat := k.Config().MsToTicks(500)
	hb, err := s.timers.NewTimer("heartbeat", beat, func(ctx *kernel.Context, _ *timersvc.Timer) {
		d.beat.Give(ctx)
	}, nil)
	if err != nil {
		return err
	}
	if ok, _ := s.timers.StartFromISR(hb, beat); !ok {
		return errors.New("timer command queue full")
	}
	return nil
}

func (d *demo) logf(ctx *kernel.Context, format string, args ...any) {
	logclient.Logf(ctx, d.s.log.Queue(), format, args...)
}

func (d *demo) produce(ctx *kernel.Context, _ any) {
	var item [4]byte
	last := ctx.NowTick()
	period := d.k.Config().MsToTicks(50)
	for n := uint32(1); ; n++ {
		binary.LittleEndian.PutUint32(item[:], n)
		if !d.work.Send(ctx, item[:], period) {
			d.logf(ctx, "producer: queue full at item %d", n)
		}
		ctx.DelayUntil(&last, period)
	}
}

func (d *demo) consume(ctx *kernel.Context, _ any) {
	var item [4]byte
	for {
		if !d.work.Receive(ctx, item[:], kernel.WaitForever) {
			continue
		}
		if binary.LittleEndian.Uint32(item[:])%16 == 0 {
			ctx.SendSignal(d.reporter, sigBatch)
		}
	}
}

func (d *demo) report(ctx *kernel.Context, _ any) {
	for {
		if ctx.WaitSignal(sigBatch, kernel.WaitForever, kernel.ClearOnExit) == 0 {
			continue
		}
		hs := d.k.HeapStats()
		d.logf(ctx, "reporter: tick %d, shared %d, heap %d/%d free", ctx.NowTick(), d.shared, hs.Free, hs.Size)
	}
}

// hold keeps the mutex across a delay so urgent has to wait on a low
// priority owner.
func (d *demo) hold(ctx *kernel.Context, _ any) {
	busy := d.k.Config().MsToTicks(20)
	for {
		if d.lock.Lock(ctx, kernel.WaitForever) {
			d.shared++
			ctx.Delay(busy)
			d.lock.Unlock(ctx)
		}
		ctx.Delay(busy * 3)
	}
}

func (d *demo) urgent(ctx *kernel.Context, _ any) {
	last := ctx.NowTick()
	period := d.k.Config().MsToTicks(100)
	for {
		start := ctx.NowTick()
		if d.lock.Lock(ctx, period/2) {
			d.shared++
			d.lock.Unlock(ctx)
			if waited := ctx.NowTick() - start; waited > 0 {
				d.logf(ctx, "urgent: waited %d ticks for the lock", waited)
			}
		} else {
			d.logf(ctx, "urgent: lock timeout")
		}
		ctx.DelayUntil(&last, period)
	}
}

func (d *demo) blink(ctx *kernel.Context, _ any) {
	led := d.s.h.LED()
	on := false
	for {
		if !d.beat.Take(ctx, kernel.WaitForever) {
			continue
		}
		on = !on
		if led == nil {
			continue
		}
		if on {
			led.High()
		} else {
			led.Low()
		}
	}
}
