//go:build !tinygo

package hal

import (
	"context"
	"fmt"
	"time"
)

// HeadlessConfig controls the no-window host runner.
type HeadlessConfig struct {
	Host HostConfig
	// FrameHz is how often time is sampled and step is called.
	FrameHz int
	// Frames stops the runner after that many frames when non-zero.
	Frames uint64
}

// RunHeadless runs the OS without opening a window. newApp receives the HAL
// and returns a step function called once per frame; a non-nil error from
// step stops the runner.
func RunHeadless(ctx context.Context, newApp func(HAL) func() error, cfg HeadlessConfig) error {
	if cfg.FrameHz <= 0 {
		cfg.FrameHz = 100
	}
	d := time.Second / time.Duration(cfg.FrameHz)
	if d <= 0 {
		return fmt.Errorf("invalid headless frame rate: %d", cfg.FrameHz)
	}

	h := newHost(cfg.Host)
	defer h.Close()
	step := newApp(h)

	t := time.NewTicker(d)
	defer t.Stop()

	var frame uint64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-t.C:
			h.t.step(now)
			if step != nil {
				if err := step(); err != nil {
					return err
				}
			}
			frame++
			if cfg.Frames > 0 && frame >= cfg.Frames {
				return nil
			}
		}
	}
}
