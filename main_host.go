//go:build !tinygo

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"myrtos/app"
	"myrtos/hal"
)

func main() {
	cfg := app.DefaultConfig()
	host := hal.HostConfig{}
	var headless bool
	var frames uint64
	flag.BoolVar(&headless, "headless", false, "Run without a window.")
	flag.IntVar(&host.TickHz, "hz", 1000, "Kernel tick rate.")
	flag.Uint64Var(&frames, "frames", 0, "Stop after N frames in headless mode (0 = run forever).")
	flag.IntVar(&cfg.Kernel.HeapBytes, "heap", cfg.Kernel.HeapBytes, "Kernel heap size in bytes.")
	flag.IntVar(&cfg.Kernel.MaxPriorities, "priorities", cfg.Kernel.MaxPriorities, "Number of priority levels (1-32).")
	flag.BoolVar(&cfg.Kernel.NoTimeSlicing, "no-timeslice", false, "Disable round robin among equal priorities.")
	monitorMs := flag.Uint("monitor", uint(cfg.MonitorMs), "Task table refresh period in ms (0 = off).")
	console := flag.String("console", "tty", `Shell console: "tty", "stdio" or "none".`)
	flag.BoolVar(&cfg.Demo, "demo", cfg.Demo, "Run the demo workload.")
	flag.Parse()

	cfg.MonitorMs = uint32(*monitorMs)
	cfg.Kernel.TickRateHz = host.TickHz
	cfg.Console = *console != "none"
	if cfg.Console {
		host.Console = *console
	}
	newApp := func(h hal.HAL) func() error { return app.NewStep(h, cfg) }

	var err error
	if headless {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		err = hal.RunHeadless(ctx, newApp, hal.HeadlessConfig{Host: host, Frames: frames})
		if errors.Is(err, context.Canceled) {
			err = nil
		}
	} else {
		err = hal.RunWindow(newApp, host)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
