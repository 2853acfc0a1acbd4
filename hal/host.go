//go:build !tinygo

package hal

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// HostConfig sizes the host board.
type HostConfig struct {
	TickHz int
	Width  int
	Height int
	// Console selects the serial console: "tty" (raw terminal, falling back
	// to stdio), "stdio" or "" for none.
	Console string
}

type hostHAL struct {
	logger *hostLogger
	led    *hostLED
	fb     *hostFramebuffer
	kbd    *hostKeyboard
	t      *hostTime
	serial Serial
}

// New returns a host HAL implementation.
func New(cfg HostConfig) HAL {
	return newHost(cfg)
}

func newHost(cfg HostConfig) *hostHAL {
	if cfg.TickHz <= 0 {
		cfg.TickHz = 1000
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		cfg.Width, cfg.Height = 320, 240
	}
	logger := &hostLogger{w: os.Stderr}
	h := &hostHAL{
		logger: logger,
		led:    &hostLED{logger: logger},
		fb:     newHostFramebuffer(cfg.Width, cfg.Height),
		kbd:    newHostKeyboard(),
		t:      newHostTime(cfg.TickHz),
	}
	switch cfg.Console {
	case "tty":
		h.serial = openConsole()
	case "stdio":
		h.serial = &hostSerial{r: os.Stdin, w: os.Stdout}
	}
	return h
}

func (h *hostHAL) Logger() Logger   { return h.logger }
func (h *hostHAL) LED() LED         { return h.led }
func (h *hostHAL) Display() Display { return hostDisplay{fb: h.fb} }
func (h *hostHAL) Input() Input     { return hostInput{kbd: h.kbd} }
func (h *hostHAL) Time() Time       { return h.t }
func (h *hostHAL) Serial() Serial   { return h.serial }

// Close restores the terminal when the tty console was opened.
func (h *hostHAL) Close() error {
	if c, ok := h.serial.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

type hostDisplay struct {
	fb *hostFramebuffer
}

func (d hostDisplay) Framebuffer() Framebuffer { return d.fb }

type hostInput struct {
	kbd *hostKeyboard
}

func (in hostInput) Keyboard() Keyboard { return in.kbd }

type hostLogger struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *hostLogger) WriteLineString(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprint(l.w, s, "\r\n")
}

func (l *hostLogger) WriteLineBytes(b []byte) { l.WriteLineString(string(b)) }

type hostLED struct {
	mu     sync.Mutex
	on     bool
	logger *hostLogger
}

func (l *hostLED) set(on bool) {
	l.mu.Lock()
	changed := l.on != on
	l.on = on
	l.mu.Unlock()
	if changed {
		l.logger.WriteLineString(fmt.Sprintf("led: %v", on))
	}
}

func (l *hostLED) High() { l.set(true) }
func (l *hostLED) Low()  { l.set(false) }
