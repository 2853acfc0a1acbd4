//go:build !tinygo && cgo

package hal

import (
	"time"

	"myrtos/internal/buildinfo"

	"github.com/hajimehoshi/ebiten/v2"
)

// RunWindow starts a desktop window that shows the framebuffer and forwards
// keyboard input. It blocks until the window closes or step fails.
func RunWindow(newApp func(HAL) func() error, cfg HostConfig) error {
	h := newHost(cfg)
	defer h.Close()
	step := newApp(h)

	g := &hostGame{h: h, step: step}
	ebiten.SetWindowTitle("myrtos (" + buildinfo.Short() + ")")
	ebiten.SetWindowSize(h.fb.width*2, h.fb.height*2)
	ebiten.SetTPS(60)
	return ebiten.RunGame(g)
}

type hostGame struct {
	h       *hostHAL
	step    func() error
	img     *ebiten.Image
	scratch []byte
	rgba    []byte
	shown   uint64
}

func (g *hostGame) Update() error {
	g.h.kbd.poll()
	g.h.t.step(time.Now())
	if g.step != nil {
		return g.step()
	}
	return nil
}

func (g *hostGame) Draw(screen *ebiten.Image) {
	fb := g.h.fb
	if g.img == nil {
		g.img = ebiten.NewImage(fb.width, fb.height)
		g.scratch = make([]byte, len(fb.front))
		g.rgba = make([]byte, fb.width*fb.height*4)
	}
	if n := fb.snapshot(g.scratch); n != g.shown {
		g.shown = n
		for i, j := 0, 0; i+1 < len(g.scratch) && j+3 < len(g.rgba); i, j = i+2, j+4 {
			r, gg, b := RGB888(uint16(g.scratch[i]) | uint16(g.scratch[i+1])<<8)
			g.rgba[j], g.rgba[j+1], g.rgba[j+2], g.rgba[j+3] = r, gg, b, 0xff
		}
		g.img.WritePixels(g.rgba)
	}
	screen.DrawImage(g.img, nil)
}

func (g *hostGame) Layout(_, _ int) (int, int) {
	return g.h.fb.width, g.h.fb.height
}
