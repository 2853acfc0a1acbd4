package monitor

import (
	"image/color"

	"myrtos/hal"

	"tinygo.org/x/drivers"
)

// fbDisplay adapts an RGB565 hal.Framebuffer to the tinyterm displayer.
type fbDisplay struct {
	fb hal.Framebuffer
}

func (d fbDisplay) usable() ([]byte, bool) {
	if d.fb == nil || d.fb.Format() != hal.PixelFormatRGB565 {
		return nil, false
	}
	buf := d.fb.Buffer()
	return buf, buf != nil
}

func (d fbDisplay) Size() (x, y int16) {
	if d.fb == nil {
		return 0, 0
	}
	return int16(d.fb.Width()), int16(d.fb.Height())
}

func (d fbDisplay) SetPixel(x, y int16, c color.RGBA) {
	buf, ok := d.usable()
	if !ok {
		return
	}
	if int(x) < 0 || int(x) >= d.fb.Width() || int(y) < 0 || int(y) >= d.fb.Height() {
		return
	}
	putPixel(buf, int(y)*d.fb.StrideBytes()+int(x)*2, rgb565(c))
}

func (d fbDisplay) Display() error {
	if d.fb == nil {
		return nil
	}
	return d.fb.Present()
}

func (d fbDisplay) FillRectangle(x, y, width, height int16, c color.RGBA) error {
	buf, ok := d.usable()
	if !ok {
		return nil
	}
	x0, x1 := clamp(int(x), d.fb.Width()), clamp(int(x)+int(width), d.fb.Width())
	y0, y1 := clamp(int(y), d.fb.Height()), clamp(int(y)+int(height), d.fb.Height())
	px := rgb565(c)
	stride := d.fb.StrideBytes()
	for row := y0; row < y1; row++ {
		for col := x0; col < x1; col++ {
			putPixel(buf, row*stride+col*2, px)
		}
	}
	return nil
}

// ScrollUp moves the picture up by lines rows and blanks the bottom.
func (d fbDisplay) ScrollUp(lines int16, bg color.RGBA) error {
	buf, ok := d.usable()
	if !ok || lines <= 0 {
		return nil
	}
	h := d.fb.Height()
	n := int(lines)
	if n >= h {
		return d.FillRectangle(0, 0, int16(d.fb.Width()), int16(h), bg)
	}
	stride := d.fb.StrideBytes()
	end := h * stride
	if end > len(buf) {
		end = len(buf)
	}
	copy(buf, buf[n*stride:end])
	return d.FillRectangle(0, int16(h-n), int16(d.fb.Width()), int16(n), bg)
}

func (d fbDisplay) SetScroll(int16) {}

func (d fbDisplay) SetRotation(drivers.Rotation) error { return nil }

func putPixel(buf []byte, off int, px uint16) {
	if off < 0 || off+1 >= len(buf) {
		return
	}
	buf[off] = byte(px)
	buf[off+1] = byte(px >> 8)
}

func rgb565(c color.RGBA) uint16 {
	return uint16(c.R>>3)<<11 | uint16(c.G>>2)<<5 | uint16(c.B>>3)
}

func clamp(v, hi int) int {
	if v < 0 {
		return 0
	}
	if v > hi {
		return hi
	}
	return v
}
