// Package hal is the boundary between the kernel and the board: log output,
// the tick source, the display, keys and a serial console.
package hal

import (
	"errors"
	"io"
)

// Logger writes newline-delimited log lines.
type Logger interface {
	WriteLineString(s string)
	WriteLineBytes(b []byte)
}

// LED is a single output pin.
type LED interface {
	High()
	Low()
}

var ErrNotImplemented = errors.New("not implemented")

// PixelFormat defines the framebuffer pixel encoding.
type PixelFormat uint8

const (
	// PixelFormatRGB565 is 16bpp little endian: rrrrrggggggbbbbb.
	PixelFormatRGB565 PixelFormat = iota + 1
)

// Framebuffer is a back buffer drawn by one task. Present publishes it.
type Framebuffer interface {
	Width() int
	Height() int
	Format() PixelFormat
	StrideBytes() int
	Buffer() []byte
	ClearRGB(r, g, b uint8)
	Present() error
}

// KeyCode identifies a non-text key.
type KeyCode uint16

const (
	KeyUnknown KeyCode = iota
	KeyUp
	KeyDown
	KeyLeft
	KeyRight
	KeyEnter
	KeyEscape
	KeyBackspace
	KeyTab
)

// KeyEvent is either a key press or release, or a typed rune (Code is
// KeyUnknown).
type KeyEvent struct {
	Code  KeyCode
	Press bool
	Rune  rune
}

// Keyboard provides key events (best-effort on each platform).
type Keyboard interface {
	Events() <-chan KeyEvent
}

// Display provides the framebuffer, or nil when there is none.
type Display interface {
	Framebuffer() Framebuffer
}

// Input provides the keyboard, or nil when there is none.
type Input interface {
	Keyboard() Keyboard
}

// Time delivers a monotonically numbered tick at TickHz. Ticks that are not
// collected in time are dropped; the sequence number shows the gap.
type Time interface {
	Ticks() <-chan uint64
	TickHz() int
}

// Serial is a byte console.
type Serial interface {
	io.ReadWriter
}

// HAL provides the only contact point between the OS and the outside world.
type HAL interface {
	Logger() Logger
	LED() LED
	Display() Display
	Input() Input
	Time() Time
	Serial() Serial
}

// RGB565 packs an 8-bit per channel color.
func RGB565(r, g, b uint8) uint16 {
	return uint16(r>>3)<<11 | uint16(g>>2)<<5 | uint16(b>>3)
}

// RGB888 expands an RGB565 pixel.
func RGB888(p uint16) (r, g, b uint8) {
	r = uint8(uint32(p>>11&0x1f) * 255 / 31)
	g = uint8(uint32(p>>5&0x3f) * 255 / 63)
	b = uint8(uint32(p&0x1f) * 255 / 31)
	return r, g, b
}
