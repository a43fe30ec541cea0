// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ads1x15 reads the single-ended inputs of a Texas Instruments
// ADS1015 (12-bit) or ADS1115 (16-bit) A/D converter over I²C.
//
// Each input is exposed as an analog.PinADC, so the wipers of a continuous
// pot can be wired to AIN0 and AIN1 and read by package oversample.
//
// # Datasheets
//
// https://www.ti.com/lit/ds/symlink/ads1115.pdf
//
// https://www.ti.com/lit/ds/symlink/ads1015.pdf
package ads1x15

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/analog"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

// Variant represents the model of the device.
type Variant string

const (
	ADS1015 Variant = "ADS1015"
	ADS1115 Variant = "ADS1115"

	// DefaultAddress is the I²C address with ADDR tied to GND.
	DefaultAddress i2c.Addr = 0x48

	// Number of single-ended inputs.
	Channels = 4
)

// Gain selects the full scale range of the programmable gain amplifier.
type Gain uint16

const (
	Gain2_3 Gain = 0x0000 // ±6.144V
	Gain1   Gain = 0x0200 // ±4.096V
	Gain2   Gain = 0x0400 // ±2.048V
	Gain4   Gain = 0x0600 // ±1.024V
	Gain8   Gain = 0x0800 // ±0.512V
	Gain16  Gain = 0x0a00 // ±0.256V
)

// FullScale returns the input voltage that reads as the maximum count.
func (g Gain) FullScale() physic.ElectricPotential {
	switch g {
	case Gain2_3:
		return 6144 * physic.MilliVolt
	case Gain1:
		return 4096 * physic.MilliVolt
	case Gain2:
		return 2048 * physic.MilliVolt
	case Gain4:
		return 1024 * physic.MilliVolt
	case Gain8:
		return 512 * physic.MilliVolt
	default:
		return 256 * physic.MilliVolt
	}
}

const (
	regConversion byte = 0x00
	regConfig     byte = 0x01

	cfgOSSingle   uint16 = 0x8000
	cfgMuxSingle0 uint16 = 0x4000
	cfgModeSingle uint16 = 0x0100
	cfgQueueNone  uint16 = 0x0003
	cfgRateShift         = 5

	maxPolls = 10
)

// Data rates in samples per second, indexed by their config register bits.
var (
	rates1015 = []int{128, 250, 490, 920, 1600, 2400, 3300}
	rates1115 = []int{8, 16, 32, 64, 128, 250, 475, 860}
)

var (
	errInvalidVariant  = errors.New("ads1x15: invalid variant")
	errInvalidGain     = errors.New("ads1x15: invalid gain")
	errInvalidDataRate = errors.New("ads1x15: unsupported data rate")
	errInvalidChannel  = errors.New("ads1x15: channel must be 0-3")
	errTimeout         = errors.New("ads1x15: conversion did not complete")
)

// Opts represents the configurable options of the converter.
type Opts struct {
	Variant Variant
	Gain    Gain
	// DataRate in samples per second. It must be one of the rates of the
	// variant. Zero selects the fastest one.
	DataRate int
}

// DefaultOpts is an ADS1115 at ±4.096V and 860 samples per second.
var DefaultOpts = Opts{Variant: ADS1115, Gain: Gain1, DataRate: 860}

// Dev represents an ADS1015 or ADS1115 converter.
type Dev struct {
	d        i2c.Dev
	mu       sync.Mutex
	opts     Opts
	rateBits uint16
	maxCount int32
	convTime time.Duration
}

// New returns a converter on bus at addr. If opts is nil, DefaultOpts is
// used. The device is not accessed until a pin is read.
func New(bus i2c.Bus, addr i2c.Addr, opts *Opts) (*Dev, error) {
	if opts == nil {
		o := DefaultOpts
		opts = &o
	}
	var rates []int
	var maxCount int32
	switch opts.Variant {
	case ADS1015:
		rates, maxCount = rates1015, 1<<11-1
	case ADS1115:
		rates, maxCount = rates1115, 1<<15-1
	default:
		return nil, errInvalidVariant
	}
	if opts.Gain > Gain16 || opts.Gain&0x01ff != 0 {
		return nil, errInvalidGain
	}
	idx := len(rates) - 1
	if opts.DataRate != 0 {
		idx = -1
		for i, r := range rates {
			if r == opts.DataRate {
				idx = i
			}
		}
		if idx < 0 {
			return nil, fmt.Errorf("%w: %d", errInvalidDataRate, opts.DataRate)
		}
	}
	d := &Dev{
		d:        i2c.Dev{Bus: bus, Addr: uint16(addr)},
		opts:     *opts,
		rateBits: uint16(idx) << cfgRateShift,
		maxCount: maxCount,
		convTime: time.Second/time.Duration(rates[idx]) + 100*time.Microsecond,
	}
	d.opts.DataRate = rates[idx]
	return d, nil
}

// PinForChannel returns the single-ended input AIN0-AIN3 as an analog pin.
func (d *Dev) PinForChannel(channel int) (*Pin, error) {
	if channel < 0 || channel >= Channels {
		return nil, errInvalidChannel
	}
	return &Pin{d: d, channel: channel}, nil
}

// config returns the config register word starting a single-shot
// conversion of channel.
func (d *Dev) config(channel int) uint16 {
	mux := cfgMuxSingle0 + uint16(channel)<<12
	return cfgOSSingle | mux | uint16(d.opts.Gain) | cfgModeSingle | d.rateBits | cfgQueueNone
}

// convert runs a single-shot conversion of channel and returns the count.
func (d *Dev) convert(channel int) (int32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cfg := d.config(channel)
	if err := d.d.Tx([]byte{regConfig, byte(cfg >> 8), byte(cfg)}, nil); err != nil {
		return 0, fmt.Errorf("ads1x15: error starting conversion: %w", err)
	}
	time.Sleep(d.convTime)
	r := make([]byte, 2)
	ready := false
	for range maxPolls {
		if err := d.d.Tx([]byte{regConfig}, r); err != nil {
			return 0, fmt.Errorf("ads1x15: error reading config: %w", err)
		}
		// OS reads back as 1 once the device is idle again.
		if r[0]&byte(cfgOSSingle>>8) != 0 {
			ready = true
			break
		}
		time.Sleep(d.convTime / 4)
	}
	if !ready {
		return 0, errTimeout
	}
	if err := d.d.Tx([]byte{regConversion}, r); err != nil {
		return 0, fmt.Errorf("ads1x15: error reading conversion: %w", err)
	}
	count := int32(int16(uint16(r[0])<<8 | uint16(r[1])))
	if d.opts.Variant == ADS1015 {
		// 12 bits, left justified.
		count >>= 4
	}
	return count, nil
}

// countToSample converts a count to an analog.Sample.
func (d *Dev) countToSample(count int32) analog.Sample {
	fs := d.opts.Gain.FullScale()
	return analog.Sample{
		V:   physic.ElectricPotential(int64(fs) * int64(count) / int64(d.maxCount+1)),
		Raw: count,
	}
}

// Halt implements conn.Resource. The device powers down by itself after
// each single-shot conversion.
func (d *Dev) Halt() error {
	return nil
}

func (d *Dev) String() string {
	return fmt.Sprintf("%s: %s", d.opts.Variant, d.d.String())
}

// Pin is a single-ended input of the converter.
type Pin struct {
	d       *Dev
	channel int
}

// Read performs a single-shot conversion. Implements analog.PinADC.
func (p *Pin) Read() (analog.Sample, error) {
	c, err := p.d.convert(p.channel)
	if err != nil {
		return analog.Sample{}, err
	}
	return p.d.countToSample(c), nil
}

// Range returns the samples at 0V and at full scale. Implements
// analog.PinADC.
func (p *Pin) Range() (analog.Sample, analog.Sample) {
	return p.d.countToSample(0), p.d.countToSample(p.d.maxCount)
}

// MaxCount is the largest raw reading of a single-ended input.
func (p *Pin) MaxCount() int32 {
	return p.d.maxCount
}

func (p *Pin) Name() string {
	return fmt.Sprintf("AIN%d", p.channel)
}

func (p *Pin) Number() int {
	return p.channel
}

func (p *Pin) Function() string {
	return "ADC"
}

func (p *Pin) String() string {
	return fmt.Sprintf("%s(%s)", p.d.opts.Variant, p.Name())
}

func (p *Pin) Halt() error {
	return nil
}

var _ conn.Resource = &Dev{}
var _ analog.PinADC = &Pin{}
