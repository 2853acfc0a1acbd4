//go:build !tinygo

package hal

import "time"

// hostTime turns wall-clock progress, sampled by the host runner, into
// ticks at hz.
type hostTime struct {
	hz  int
	ch  chan uint64
	seq uint64

	last time.Time
	acc  time.Duration
}

func newHostTime(hz int) *hostTime {
	return &hostTime{hz: hz, ch: make(chan uint64, 1024)}
}

func (t *hostTime) Ticks() <-chan uint64 { return t.ch }
func (t *hostTime) TickHz() int          { return t.hz }

func (t *hostTime) period() time.Duration { return time.Second / time.Duration(t.hz) }

// step emits the ticks due since the previous call.
func (t *hostTime) step(now time.Time) {
	if t.last.IsZero() {
		t.last = now
		t.emit(1)
		return
	}
	t.acc += now.Sub(t.last)
	t.last = now
	p := t.period()
	n := uint64(t.acc / p)
	t.acc %= p
	t.emit(n)
}

func (t *hostTime) emit(n uint64) {
	for i := uint64(0); i < n; i++ {
		t.seq++
		select {
		case t.ch <- t.seq:
		default:
		}
	}
}
