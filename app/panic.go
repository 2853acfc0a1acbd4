package app

import (
	"fmt"
	"image/color"
	"strings"
	"unicode/utf8"

	"myrtos/hal"
	"myrtos/rtos/kernel"

	"tinygo.org/x/tinyfont"
	"tinygo.org/x/tinyfont/proggy"
)

const (
	panicFontHeight = 10
	panicFontOffset = 6
)

// installPanicHandler reports the first task panic or kernel fault on the
// log and paints it on the display. The monitor stops drawing afterwards.
func installPanicHandler(h hal.HAL, k *kernel.Kernel) {
	k.SetPanicHandler(func(info kernel.PanicInfo) {
		lines := panicLines(info)
		if l := h.Logger(); l != nil {
			for _, line := range lines {
				l.WriteLineString(line)
			}
		}
		if disp := h.Display(); disp != nil {
			if fb := disp.Framebuffer(); fb != nil {
				drawPanic(fb, lines)
			}
		}
	})
}

func panicLines(info kernel.PanicInfo) []string {
	lines := []string{
		"KERNEL PANIC",
		fmt.Sprintf("task: %d (%s)", info.TaskID, info.Task),
		fmt.Sprintf("panic: %v", info.Value),
	}
	if len(info.Stack) == 0 {
		return append(lines, "stack: unavailable")
	}
	lines = append(lines, "stack:")
	for _, line := range strings.Split(string(info.Stack), "\n") {
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func drawPanic(fb hal.Framebuffer, lines []string) {
	font := &proggy.TinySZ8pt7b
	_, w := tinyfont.LineWidth(font, "0")
	fontWidth := int16(w)
	if fontWidth <= 0 {
		return
	}
	fb.ClearRGB(0x80, 0, 0)
	d := panicDisplay{fb: fb}
	fg := color.RGBA{R: 255, G: 255, B: 255, A: 255}
	cols := int16(fb.Width()) / fontWidth
	if cols <= 0 {
		cols = 1
	}

	y := int16(0)
	maxH := int16(fb.Height())
	for _, line := range lines {
		for len(line) > 0 && y+panicFontHeight <= maxH {
			chunk, rest := takeRunes(line, cols)
			x := int16(0)
			for _, r := range chunk {
				tinyfont.DrawChar(d, font, x, y+panicFontOffset, r, fg)
				x += fontWidth
			}
			y += panicFontHeight
			line = strings.TrimLeft(rest, " ")
		}
	}
	_ = fb.Present()
}

type panicDisplay struct {
	fb hal.Framebuffer
}

func (d panicDisplay) Size() (x, y int16) {
	return int16(d.fb.Width()), int16(d.fb.Height())
}

func (d panicDisplay) SetPixel(x, y int16, c color.RGBA) {
	buf := d.fb.Buffer()
	if buf == nil || d.fb.Format() != hal.PixelFormatRGB565 {
		return
	}
	if int(x) < 0 || int(x) >= d.fb.Width() || int(y) < 0 || int(y) >= d.fb.Height() {
		return
	}
	off := int(y)*d.fb.StrideBytes() + int(x)*2
	if off+1 >= len(buf) {
		return
	}
	px := hal.RGB565(c.R, c.G, c.B)
	buf[off] = byte(px)
	buf[off+1] = byte(px >> 8)
}

func (d panicDisplay) Display() error { return nil }

// takeRunes splits s after n runes.
func takeRunes(s string, n int16) (prefix, rest string) {
	if n <= 0 {
		return "", s
	}
	i := 0
	for count := int16(0); i < len(s) && count < n; count++ {
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}
	return s[:i], s[i:]
}
