//go:build tinygo

package main

import (
	"myrtos/app"
	"myrtos/hal"
)

func main() {
	cfg := app.DefaultConfig()
	cfg.Kernel.HeapBytes = 48 << 10
	cfg.Kernel.MaxTasks = 16
	app.Run(hal.New(cfg.Kernel.TickRateHz), cfg)
}
