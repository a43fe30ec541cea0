// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/GermanBionicSystems/rotarypot/ads1x15"
	"github.com/GermanBionicSystems/rotarypot/firmata"
	"github.com/GermanBionicSystems/rotarypot/oversample"
	"github.com/GermanBionicSystems/rotarypot/potsim"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

// simTick is how often a simulated knob moves.
const simTick = 10 * time.Millisecond

// boardTimeout bounds the firmware handshake and the first reading of each
// pot on a Firmata board.
var boardTimeout = 5 * time.Second

var _ oversample.AnalogReporter = (*firmata.Client)(nil)

// attach adds every configured pot with its wiper source.
func (d *daemon) attach() error {
	switch d.cfg.Source.Kind {
	case sourceSim:
		return d.attachSim()
	case sourceFirmata:
		return d.attachFirmata()
	default:
		return d.attachADS1x15()
	}
}

// attachSim gives each pot its own simulated knob, turning back and forth.
func (d *daemon) attachSim() error {
	sc := d.cfg.Source.Sim
	for i, pc := range d.cfg.Pots {
		sim, err := potsim.New(&potsim.Opts{
			Max:       pc.Ch1.MaxADC,
			Amplitude: 0.95,
			Noise:     sc.Noise,
			Seed:      uint64(i + 1),
			VRef:      3300 * physic.MilliVolt,
		})
		if err != nil {
			return fmt.Errorf("pot %q: %w", pc.Name, err)
		}
		sim.SetAngle(float64(i)*45 + 1.5)
		w1, _ := sim.Wiper(1)
		w2, _ := sim.Wiper(2)
		if err := d.addPot(pc, w1, w2); err != nil {
			return err
		}
		reverse := time.Duration(sc.ReverseMS) * time.Millisecond
		d.tasks = append(d.tasks, func(ctx context.Context) error {
			return sim.Spin(ctx, sc.SpeedDPS, simTick, reverse)
		})
	}
	d.logger.Info("simulated source", "pots", len(d.cfg.Pots), "speed_dps", sc.SpeedDPS)
	return nil
}

// attachADS1x15 opens the I²C bus and maps each pot to two converter inputs.
func (d *daemon) attachADS1x15() error {
	sc := d.cfg.Source
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("host init: %w", err)
	}
	bus, err := i2creg.Open(sc.I2CBus)
	if err != nil {
		return fmt.Errorf("open i2c bus %q: %w", sc.I2CBus, err)
	}
	d.closers = append(d.closers, bus.Close)
	gain, err := gainFor(sc.FullScaleMV)
	if err != nil {
		return err
	}
	dev, err := ads1x15.New(bus, i2c.Addr(sc.Address), &ads1x15.Opts{
		Variant:  ads1x15.Variant(sc.Variant),
		Gain:     gain,
		DataRate: sc.DataRate,
	})
	if err != nil {
		return err
	}
	d.closers = append(d.closers, dev.Halt)
	for _, pc := range d.cfg.Pots {
		w1, err := dev.PinForChannel(pc.Channels[0])
		if err != nil {
			return fmt.Errorf("pot %q: %w", pc.Name, err)
		}
		w2, err := dev.PinForChannel(pc.Channels[1])
		if err != nil {
			return fmt.Errorf("pot %q: %w", pc.Name, err)
		}
		if err := d.addPot(pc, w1, w2); err != nil {
			return err
		}
	}
	d.logger.Info("converter ready", "dev", dev.String(), "pots", len(d.cfg.Pots))
	return nil
}

// attachFirmata opens the board and maps each pot to two analog pins. The
// board pushes its readings, so pots need no sampling loop of their own.
func (d *daemon) attachFirmata() error {
	fc := d.cfg.Source.Firmata
	open := d.openBoard
	if open == nil {
		open = firmata.OpenSerial
	}
	board, err := open(fc.Port, fc.Baud)
	if err != nil {
		return fmt.Errorf("open board %q: %w", fc.Port, err)
	}
	c := firmata.NewClient(board, &firmata.Opts{Logger: d.logger})
	d.closers = append(d.closers, c.Close)
	ctx, cancel := context.WithTimeout(context.Background(), boardTimeout)
	defer cancel()
	fw, err := c.Start(ctx)
	if err != nil {
		return fmt.Errorf("board %q: %w", fc.Port, err)
	}
	if err := c.SetSamplingInterval(uint16(fc.SamplingMS)); err != nil {
		return err
	}
	for _, pc := range d.cfg.Pots {
		if err := d.addBoardPot(ctx, c, pc); err != nil {
			return err
		}
	}
	d.tasks = append(d.tasks, func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return nil
		case <-c.Done():
			return fmt.Errorf("board %q: %w", fc.Port, c.Err())
		}
	})
	d.logger.Info("board ready", "port", fc.Port, "firmware", fw.String(), "pots", len(d.cfg.Pots))
	return nil
}

// addBoardPot listens to the pins of pc and seeds the pot with their first
// averaged pair.
func (d *daemon) addBoardPot(ctx context.Context, r oversample.AnalogReporter, pc PotConfig) error {
	mb := oversample.NewMailbox()
	src, err := oversample.NewListenerSource(r, uint8(pc.Channels[0]), uint8(pc.Channels[1]), mb, d.cfg.Source.Shift)
	if err != nil {
		return fmt.Errorf("pot %q: %w", pc.Name, err)
	}
	first, err := firstPair(ctx, mb)
	if err != nil {
		_ = src.Halt()
		return fmt.Errorf("pot %q: %w", pc.Name, err)
	}
	if err := d.register(pc, first, mb, src); err != nil {
		_ = src.Halt()
		return err
	}
	return nil
}

func firstPair(ctx context.Context, mb *oversample.Mailbox) (oversample.Pair, error) {
	for {
		select {
		case <-ctx.Done():
			return oversample.Pair{}, fmt.Errorf("no reading: %w", ctx.Err())
		case <-mb.C():
			if p, ok := mb.Take(); ok {
				return p, nil
			}
		}
	}
}

// openSerial matches firmata.OpenSerial.
type openSerial func(path string, baud int) (io.ReadWriteCloser, error)
