package timersvc

import (
	"testing"

	"myrtos/rtos/internal/ktest"
	"myrtos/rtos/kernel"
)

func newService(t *testing.T) (*ktest.Harness, *Service) {
	t.Helper()
	h := ktest.New(t, kernel.Config{})
	s, err := New(h.K, 5, 8)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return h, s
}

func recordTicks(fired chan<- uint64) Callback {
	return func(ctx *kernel.Context, _ *Timer) {
		fired <- ctx.NowTick()
	}
}

func drain(ch <-chan uint64) []uint64 {
	var out []uint64
	for {
		select {
		case v := <-ch:
			out = append(out, v)
		default:
			return out
		}
	}
}

func startFromISR(t *testing.T, h *ktest.Harness, s *Service, tm *Timer, delay uint32) {
	t.Helper()
	ok, woken := s.StartFromISR(tm, delay)
	if !ok {
		t.Fatal("StartFromISR() = false")
	}
	h.K.YieldFromISR(woken)
	h.Settle()
}

func TestOneShotFiresOnce(t *testing.T) {
	h, s := newService(t)
	fired := make(chan uint64, 8)
	tm, err := s.NewTimer("once", 0, recordTicks(fired), nil)
	if err != nil {
		t.Fatalf("NewTimer() error = %v", err)
	}
	h.Start()
	startFromISR(t, h, s, tm, 3)
	if !tm.Active() {
		t.Fatal("Active() = false after start")
	}

	h.Tick(2)
	if got := drain(fired); len(got) != 0 {
		t.Fatalf("fired early at %v", got)
	}
	h.Tick(5)
	got := drain(fired)
	if len(got) != 1 || got[0] != 3 {
		t.Fatalf("fired at %v, want [3]", got)
	}
	if tm.Active() {
		t.Fatal("one-shot timer still active")
	}
}

func TestPeriodicFiresUntilStopped(t *testing.T) {
	h, s := newService(t)
	fired := make(chan uint64, 16)
	tm, err := s.NewTimer("tick", 2, recordTicks(fired), nil)
	if err != nil {
		t.Fatalf("NewTimer() error = %v", err)
	}
	h.Start()
	startFromISR(t, h, s, tm, 1)

	h.Tick(6)
	got := drain(fired)
	want := []uint64{1, 3, 5}
	if len(got) != len(want) {
		t.Fatalf("fired at %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("fired at %v, want %v", got, want)
		}
	}

	stopped := make(chan bool, 1)
	if _, err := h.K.CreateTask("stopper", func(ctx *kernel.Context, _ any) {
		stopped <- s.Stop(ctx, tm, kernel.WaitForever)
	}, nil, 128, 2); err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}
	h.Settle()
	if !<-stopped {
		t.Fatal("Stop() = false")
	}
	h.Tick(6)
	if got := drain(fired); len(got) != 0 {
		t.Fatalf("fired after stop at %v", got)
	}
	if tm.Active() {
		t.Fatal("Active() = true after stop")
	}
}

func TestTimersFireInExpiryOrder(t *testing.T) {
	h, s := newService(t)
	order := make(chan string, 8)
	cb := func(ctx *kernel.Context, tm *Timer) { order <- tm.Name() }
	a, _ := s.NewTimer("a", 0, cb, nil)
	b, _ := s.NewTimer("b", 0, cb, nil)
	c, _ := s.NewTimer("c", 0, cb, nil)
	h.Start()
	startFromISR(t, h, s, a, 4)
	startFromISR(t, h, s, b, 2)
	startFromISR(t, h, s, c, 4)

	h.Tick(4)
	want := []string{"b", "a", "c"}
	for i, w := range want {
		select {
		case got := <-order:
			if got != w {
				t.Fatalf("fire %d = %s, want %s", i, got, w)
			}
		default:
			t.Fatalf("only %d timers fired, want %d", i, len(want))
		}
	}
}

func TestChangePeriodAndDelete(t *testing.T) {
	h, s := newService(t)
	fired := make(chan uint64, 16)
	tm, _ := s.NewTimer("p", 5, recordTicks(fired), nil)
	h.Start()
	startFromISR(t, h, s, tm, 5)

	done := make(chan bool, 2)
	if _, err := h.K.CreateTask("ctl", func(ctx *kernel.Context, _ any) {
		done <- s.ChangePeriod(ctx, tm, 2, kernel.WaitForever)
		ctx.Delay(5)
		done <- s.Delete(ctx, tm, kernel.WaitForever)
	}, nil, 128, 2); err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}
	h.Settle()
	if !<-done {
		t.Fatal("ChangePeriod() = false")
	}
	h.Tick(5)
	if !<-done {
		t.Fatal("Delete() = false")
	}
	got := drain(fired)
	if len(got) != 2 || got[0] != 2 || got[1] != 4 {
		t.Fatalf("fired at %v, want [2 4]", got)
	}
	h.Tick(4)
	if got := drain(fired); len(got) != 0 {
		t.Fatalf("fired after delete at %v", got)
	}
	if s.timers[tm.id].Load() != nil {
		t.Fatal("deleted timer still registered")
	}
}

func TestCommandEncoding(t *testing.T) {
	in := command{op: opChangePeriod, gen: 7, id: 513, value: 70000, issue: 1 << 40}
	var b [cmdSize]byte
	in.encode(b[:])
	if out := decodeCommand(b[:]); out != in {
		t.Fatalf("decodeCommand() = %+v, want %+v", out, in)
	}
}

func TestDeletedHandleCannotTouchReusedSlot(t *testing.T) {
	h, s := newService(t)
	fired := make(chan string, 8)
	byName := func(_ *kernel.Context, tm *Timer) { fired <- tm.Name() }
	a, err := s.NewTimer("a", 0, byName, nil)
	if err != nil {
		t.Fatalf("NewTimer(a) error = %v", err)
	}
	h.Start()

	res := make(chan bool, 8)
	reused := make(chan *Timer, 1)
	if _, err := h.K.CreateTask("ctl", func(ctx *kernel.Context, _ any) {
		res <- s.Delete(ctx, a, kernel.WaitForever)
		b, err := s.NewTimer("b", 0, byName, nil)
		if err != nil {
			reused <- nil
			return
		}
		reused <- b
		res <- s.Start(ctx, a, 1, 0)
		res <- s.Stop(ctx, a, 0)
		res <- s.Delete(ctx, a, 0)
		// A command from the old handle already in the queue.
		res <- s.send(ctx, command{op: opStart, gen: a.gen, id: a.id, value: 1}, 0)
	}, nil, 128, 2); err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}
	h.Settle()

	if !<-res {
		t.Fatal("Delete(a) = false")
	}
	b := <-reused
	if b == nil {
		t.Fatal("NewTimer(b) failed")
	}
	if b.id != a.id {
		t.Fatalf("b got slot %d, want the freed slot %d", b.id, a.id)
	}
	for _, call := range []string{"Start", "Stop", "Delete"} {
		if <-res {
			t.Errorf("%s on a deleted timer = true, want false", call)
		}
	}
	if !<-res {
		t.Fatal("queueing the stale command failed")
	}
	if ok, _ := s.StartFromISR(a, 1); ok {
		t.Fatal("StartFromISR on a deleted timer = true, want false")
	}

	h.Tick(3)
	if b.Active() {
		t.Fatal("stale command armed the timer in the reused slot")
	}
	select {
	case name := <-fired:
		t.Fatalf("timer %q fired from a stale handle", name)
	default:
	}

	startFromISR(t, h, s, b, 1)
	h.Tick(1)
	select {
	case name := <-fired:
		if name != "b" {
			t.Fatalf("fired %q, want b", name)
		}
	default:
		t.Fatal("b did not fire after its own Start")
	}
}
