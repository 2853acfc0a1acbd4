// Package timersvc runs software timers on a kernel task.
//
// Timer commands travel over a kernel queue, so they can be issued from any
// task or from interrupt context. The service task keeps the active timers in
// a list sorted by expiry and sleeps on the queue until the earliest one.
package timersvc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync/atomic"

	"myrtos/rtos/kernel"
)

const (
	maxTimers = 64
	cmdSize   = 16
)

var ErrNoTimerSlot = errors.New("no free timer slot")

type op uint8

const (
	opStart op = iota + 1
	opStop
	opChangePeriod
	opDelete
)

// command is one queue item: op, slot generation, timer id, value, issue
// tick. The timer task drops commands whose generation no longer matches the
// slot, so a deleted handle cannot act on the timer that reused its slot.
type command struct {
	op    op
	gen   uint8
	id    uint16
	value uint32
	issue uint64
}

func (c command) encode(b []byte) {
	b[0] = byte(c.op)
	b[1] = c.gen
	binary.LittleEndian.PutUint16(b[2:], c.id)
	binary.LittleEndian.PutUint32(b[4:], c.value)
	binary.LittleEndian.PutUint64(b[8:], c.issue)
}

func decodeCommand(b []byte) command {
	return command{
		op:    op(b[0]),
		gen:   b[1],
		id:    binary.LittleEndian.Uint16(b[2:]),
		value: binary.LittleEndian.Uint32(b[4:]),
		issue: binary.LittleEndian.Uint64(b[8:]),
	}
}

// Callback runs on the timer task when a timer expires. It must not block.
type Callback func(ctx *kernel.Context, t *Timer)

// Timer is a one-shot (period 0) or periodic software timer.
type Timer struct {
	svc     *Service
	id      uint16
	gen     uint8
	name    string
	fn      Callback
	arg     any
	active  atomic.Bool
	deleted atomic.Bool

	// Owned by the timer task.
	period uint32
	expiry uint64
	next   *Timer
}

func (t *Timer) Name() string { return t.name }
func (t *Timer) Arg() any     { return t.arg }

// Active reports whether the timer is armed as last seen by the timer task.
func (t *Timer) Active() bool { return t.active.Load() }

// Service owns the timer task and its command queue.
type Service struct {
	k      *kernel.Kernel
	q      *kernel.Queue
	task   kernel.TaskID
	timers [maxTimers]atomic.Pointer[Timer]
	gens   [maxTimers]atomic.Uint32

	// active is the sorted list of armed timers, owned by the timer task.
	active *Timer
}

// New creates the command queue and the timer task.
func New(k *kernel.Kernel, prio kernel.Priority, queueLen int) (*Service, error) {
	q, err := k.NewQueue(queueLen, cmdSize)
	if err != nil {
		return nil, fmt.Errorf("timer service: %w", err)
	}
	s := &Service{k: k, q: q}
	id, err := k.CreateTask("timers", s.run, nil, 256, prio)
	if err != nil {
		q.Delete(nil)
		return nil, fmt.Errorf("timer service: %w", err)
	}
	s.task = id
	return s, nil
}

// Queue returns the command queue.
func (s *Service) Queue() *kernel.Queue { return s.q }

// TaskID returns the timer task.
func (s *Service) TaskID() kernel.TaskID { return s.task }

// NewTimer registers a dormant timer. A period of 0 makes it one-shot.
func (s *Service) NewTimer(name string, period uint32, fn Callback, arg any) (*Timer, error) {
	if fn == nil {
		return nil, errors.New("timer service: nil callback")
	}
	t := &Timer{svc: s, name: name, fn: fn, arg: arg, period: period}
	for i := range s.timers {
		if s.timers[i].Load() != nil {
			continue
		}
		t.id, t.gen = uint16(i), uint8(s.gens[i].Add(1))
		if s.timers[i].CompareAndSwap(nil, t) {
			return t, nil
		}
	}
	return nil, ErrNoTimerSlot
}

// Start arms t to expire delay ticks from now, restarting it if armed.
func (s *Service) Start(ctx *kernel.Context, t *Timer, delay, timeout uint32) bool {
	c, ok := s.command(t, opStart, delay)
	return ok && s.send(ctx, c, timeout)
}

// Stop disarms t.
func (s *Service) Stop(ctx *kernel.Context, t *Timer, timeout uint32) bool {
	c, ok := s.command(t, opStop, 0)
	return ok && s.send(ctx, c, timeout)
}

// ChangePeriod sets the period of t and rearms it one period from now.
func (s *Service) ChangePeriod(ctx *kernel.Context, t *Timer, period, timeout uint32) bool {
	c, ok := s.command(t, opChangePeriod, period)
	return ok && s.send(ctx, c, timeout)
}

// Delete disarms t and frees its slot. Every later call on t fails.
func (s *Service) Delete(ctx *kernel.Context, t *Timer, timeout uint32) bool {
	c, ok := s.command(t, opDelete, 0)
	if !ok || !t.deleted.CompareAndSwap(false, true) {
		return false
	}
	if !s.send(ctx, c, timeout) {
		t.deleted.Store(false)
		return false
	}
	return true
}

// StartFromISR is Start for interrupt context.
func (s *Service) StartFromISR(t *Timer, delay uint32) (ok, woken bool) {
	c, ok := s.command(t, opStart, delay)
	if !ok {
		return false, false
	}
	var b [cmdSize]byte
	c.issue = s.k.Ticks()
	c.encode(b[:])
	return s.q.SendFromISR(b[:])
}

func (s *Service) command(t *Timer, o op, value uint32) (command, bool) {
	if t == nil || t.svc != s || t.deleted.Load() {
		return command{}, false
	}
	return command{op: o, gen: t.gen, id: t.id, value: value}, true
}

func (s *Service) send(ctx *kernel.Context, c command, timeout uint32) bool {
	var b [cmdSize]byte
	c.issue = s.k.Ticks()
	c.encode(b[:])
	return s.q.Send(ctx, b[:], timeout)
}

func (s *Service) run(ctx *kernel.Context, _ any) {
	buf := make([]byte, cmdSize)
	for {
		if s.q.Receive(ctx, buf, s.sleepTicks(ctx.NowTick())) {
			s.apply(decodeCommand(buf))
			for s.q.Receive(ctx, buf, 0) {
				s.apply(decodeCommand(buf))
			}
		}
		s.expire(ctx)
	}
}

func (s *Service) sleepTicks(now uint64) uint32 {
	if s.active == nil {
		return kernel.WaitForever
	}
	if s.active.expiry <= now {
		return 0
	}
	d := s.active.expiry - now
	if d >= uint64(kernel.WaitForever) {
		return kernel.WaitForever - 1
	}
	return uint32(d)
}

func (s *Service) apply(c command) {
	if int(c.id) >= maxTimers {
		return
	}
	t := s.timers[c.id].Load()
	if t == nil || t.gen != c.gen {
		return
	}
	switch c.op {
	case opStart:
		s.remove(t)
		t.expiry = c.issue + uint64(c.value)
		s.insert(t)
	case opStop:
		s.remove(t)
	case opChangePeriod:
		s.remove(t)
		t.period = c.value
		t.expiry = c.issue + uint64(c.value)
		s.insert(t)
	case opDelete:
		s.remove(t)
		s.timers[c.id].CompareAndSwap(t, nil)
	}
}

// expire runs every timer due at or before now, in expiry order.
func (s *Service) expire(ctx *kernel.Context) {
	now := ctx.NowTick()
	for s.active != nil && s.active.expiry <= now {
		t := s.active
		s.active = t.next
		t.next = nil
		t.active.Store(false)
		if t.period > 0 {
			next := t.expiry + uint64(t.period)
			for next <= now {
				next += uint64(t.period)
			}
			t.expiry = next
			s.insert(t)
		}
		t.fn(ctx, t)
	}
}

// insert links t after every timer expiring at or before it.
func (s *Service) insert(t *Timer) {
	pp := &s.active
	for *pp != nil && (*pp).expiry <= t.expiry {
		pp = &(*pp).next
	}
	t.next = *pp
	*pp = t
	t.active.Store(true)
}

func (s *Service) remove(t *Timer) {
	for pp := &s.active; *pp != nil; pp = &(*pp).next {
		if *pp == t {
			*pp = t.next
			break
		}
	}
	t.next = nil
	t.active.Store(false)
}
