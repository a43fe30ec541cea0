// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// potd decodes continuous pots and publishes their values.
//
// Each pot has two wipers sampled by an ADS1015/ADS1115 converter, read
// from the analog pins of a Firmata board, or simulated with -sim. Values are shown on a terminal level meter and
// broadcast as JSON on the /ws websocket; /dial.png renders a gauge.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func mainImpl() error {
	var (
		configPath = flag.String("config", "", "YAML configuration file")
		logLevel   = flag.String("log-level", "info", "Log level: error, warn, info, debug")
		sim        = flag.Bool("sim", false, "Use simulated pots instead of the converter")
		wsAddr     = flag.String("ws", "", "HTTP listen address for /ws and /dial.png, empty disables")
		noMeter    = flag.Bool("no-meter", false, "Do not print the level meter")
	)
	flag.Parse()
	if flag.NArg() != 0 {
		return fmt.Errorf("unexpected argument: %s", flag.Arg(0))
	}

	cfg := DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = LoadConfigFile(*configPath); err != nil {
			return err
		}
	}
	var o FlagOverrides
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "log-level":
			o.LogLevel = logLevel
		case "sim":
			o.Sim = sim
		case "ws":
			o.WSAddr = wsAddr
		case "no-meter":
			o.NoMeter = noMeter
		}
	})
	o.Apply(&cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	level, _ := parseLogLevel(cfg.Logging.Level)
	logger := setupLogger(os.Stderr, level)

	d, err := newDaemon(cfg, logger)
	if err != nil {
		return err
	}
	if err := d.attach(); err != nil {
		d.halt()
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	logger.Info("potd running", "source", cfg.Source.Kind, "pots", len(cfg.Pots), "ws", cfg.WebSocket.Addr)
	return d.run(ctx)
}

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "potd: %s.\n", err)
		os.Exit(1)
	}
}
