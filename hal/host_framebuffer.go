//go:build !tinygo

package hal

import "sync"

// hostFramebuffer is double buffered: the drawing task owns back, Present
// copies it to front for the window.
type hostFramebuffer struct {
	width  int
	height int
	stride int
	back   []byte

	mu       sync.Mutex
	front    []byte
	presents uint64
}

func newHostFramebuffer(width, height int) *hostFramebuffer {
	stride := width * 2
	return &hostFramebuffer{
		width:  width,
		height: height,
		stride: stride,
		back:   make([]byte, stride*height),
		front:  make([]byte, stride*height),
	}
}

func (f *hostFramebuffer) Width() int          { return f.width }
func (f *hostFramebuffer) Height() int         { return f.height }
func (f *hostFramebuffer) Format() PixelFormat { return PixelFormatRGB565 }
func (f *hostFramebuffer) StrideBytes() int    { return f.stride }
func (f *hostFramebuffer) Buffer() []byte      { return f.back }

func (f *hostFramebuffer) ClearRGB(r, g, b uint8) {
	px := RGB565(r, g, b)
	for i := 0; i+1 < len(f.back); i += 2 {
		f.back[i] = byte(px)
		f.back[i+1] = byte(px >> 8)
	}
}

func (f *hostFramebuffer) Present() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copy(f.front, f.back)
	f.presents++
	return nil
}

// snapshot copies the last presented frame into dst and returns the
// present count.
func (f *hostFramebuffer) snapshot(dst []byte) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	copy(dst, f.front)
	return f.presents
}
