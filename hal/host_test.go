//go:build !tinygo

package hal

import (
	"testing"
	"time"
)

func drain(ch <-chan uint64) []uint64 {
	var got []uint64
	for {
		select {
		case v := <-ch:
			got = append(got, v)
		default:
			return got
		}
	}
}

func TestHostTimeStep(t *testing.T) {
	ht := newHostTime(1000)
	start := time.Unix(100, 0)

	ht.step(start)
	if got := drain(ht.Ticks()); len(got) != 1 || got[0] != 1 {
		t.Fatalf("first step ticks = %v, want [1]", got)
	}
	ht.step(start.Add(2500 * time.Microsecond))
	if got := drain(ht.Ticks()); len(got) != 2 || got[1] != 3 {
		t.Fatalf("after 2.5ms ticks = %v, want [2 3]", got)
	}
	// The remainder carries over.
	ht.step(start.Add(3 * time.Millisecond))
	if got := drain(ht.Ticks()); len(got) != 1 || got[0] != 4 {
		t.Fatalf("after 3ms ticks = %v, want [4]", got)
	}
}

func TestHostTimeDropsWhenFull(t *testing.T) {
	ht := newHostTime(1000)
	start := time.Unix(100, 0)
	ht.step(start)
	ht.step(start.Add(2 * time.Second))
	got := drain(ht.Ticks())
	if len(got) != cap(ht.ch) {
		t.Fatalf("buffered ticks = %d, want %d", len(got), cap(ht.ch))
	}
	if ht.seq != 2001 {
		t.Fatalf("seq = %d, want 2001", ht.seq)
	}
}

func TestFramebufferPresent(t *testing.T) {
	fb := newHostFramebuffer(4, 2)
	fb.ClearRGB(0xff, 0, 0)
	dst := make([]byte, len(fb.back))
	if n := fb.snapshot(dst); n != 0 || dst[0] != 0 {
		t.Fatalf("snapshot before Present = %d %#x, want an empty frame", n, dst[0])
	}
	if err := fb.Present(); err != nil {
		t.Fatalf("Present() error = %v", err)
	}
	if n := fb.snapshot(dst); n != 1 {
		t.Fatalf("presents = %d, want 1", n)
	}
	if px := uint16(dst[0]) | uint16(dst[1])<<8; px != 0xf800 {
		t.Fatalf("pixel = %#04x, want 0xf800", px)
	}
}

func TestRGB565RoundTrip(t *testing.T) {
	for _, c := range [][3]uint8{{0, 0, 0}, {0xff, 0xff, 0xff}, {0xff, 0, 0}, {0, 0xff, 0}, {0, 0, 0xff}} {
		r, g, b := RGB888(RGB565(c[0], c[1], c[2]))
		if r != c[0] || g != c[1] || b != c[2] {
			t.Errorf("RGB888(RGB565(%v)) = %d,%d,%d", c, r, g, b)
		}
	}
}
