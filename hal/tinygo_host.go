//go:build tinygo && !baremetal

package hal

import (
	"os"
	"time"
)

type tinyGoHostHAL struct {
	t *tinyGoHostTime
}

// New returns a TinyGo-on-host HAL (linux, wasm): stdio console and a
// ticker, no display.
func New(tickHz int) HAL {
	if tickHz <= 0 {
		tickHz = 1000
	}
	return &tinyGoHostHAL{t: newTinyGoHostTime(tickHz)}
}

func (h *tinyGoHostHAL) Logger() Logger   { return printLogger{} }
func (h *tinyGoHostHAL) LED() LED         { return printLED{} }
func (h *tinyGoHostHAL) Display() Display { return nil }
func (h *tinyGoHostHAL) Input() Input     { return nil }
func (h *tinyGoHostHAL) Time() Time       { return h.t }
func (h *tinyGoHostHAL) Serial() Serial   { return stdio{} }

type tinyGoHostTime struct {
	hz  int
	ch  chan uint64
	seq uint64
}

func newTinyGoHostTime(hz int) *tinyGoHostTime {
	t := &tinyGoHostTime{hz: hz, ch: make(chan uint64, 16)}
	go func() {
		ticker := time.NewTicker(time.Second / time.Duration(hz))
		defer ticker.Stop()
		for range ticker.C {
			t.seq++
			select {
			case t.ch <- t.seq:
			default:
			}
		}
	}()
	return t
}

func (t *tinyGoHostTime) Ticks() <-chan uint64 { return t.ch }
func (t *tinyGoHostTime) TickHz() int          { return t.hz }

type printLogger struct{}

func (printLogger) WriteLineString(s string) { println(s) }
func (printLogger) WriteLineBytes(b []byte)  { println(string(b)) }

type printLED struct{}

func (printLED) High() { println("led: true") }
func (printLED) Low()  { println("led: false") }

type stdio struct{}

func (stdio) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdio) Write(p []byte) (int, error) { return os.Stdout.Write(p) }
