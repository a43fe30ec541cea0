// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/GermanBionicSystems/rotarypot/ads1x15"
	"github.com/GermanBionicSystems/rotarypot/contpot"
	"github.com/GermanBionicSystems/rotarypot/firmata"
	"gopkg.in/yaml.v3"
	"periph.io/x/conn/v3/physic"
)

// Config is the YAML configuration of potd.
type Config struct {
	Source SourceConfig `yaml:"source"`
	Pots   []PotConfig  `yaml:"pots"`

	// StrictSet rejects out of range values set by websocket clients with an
	// error instead of ignoring them.
	StrictSet  bool `yaml:"strict_set"`
	CheckStart bool `yaml:"check_start"`

	WebSocket WebSocketConfig `yaml:"websocket"`
	Meter     MeterConfig     `yaml:"meter"`
	Logging   LoggingConfig   `yaml:"logging"`
}

const (
	sourceADS1x15 = "ads1x15"
	sourceFirmata = "firmata"
	sourceSim     = "sim"
)

type SourceConfig struct {
	// Kind is "ads1x15", "firmata" or "sim".
	Kind string `yaml:"kind"`

	// I2CBus is the bus name passed to i2creg.Open, empty for the first one.
	I2CBus   string `yaml:"i2c_bus"`
	Address  uint16 `yaml:"address"`
	Variant  string `yaml:"variant"`
	DataRate int    `yaml:"data_rate"`
	// FullScaleMV selects the gain, as the full scale input in millivolts.
	FullScaleMV int `yaml:"full_scale_mv"`

	// IntervalUS is the time between two conversions of a wiper.
	IntervalUS int  `yaml:"interval_us"`
	Shift      uint `yaml:"shift"`

	Firmata FirmataConfig `yaml:"firmata"`
	Sim     SimConfig     `yaml:"sim"`
}

// FirmataConfig selects a board running StandardFirmata. Pot channels are
// its analog pins.
type FirmataConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
	// SamplingMS is how often the board reports its analog pins.
	SamplingMS int `yaml:"sampling_ms"`
}

type SimConfig struct {
	SpeedDPS  float64 `yaml:"speed_dps"`
	ReverseMS int     `yaml:"reverse_ms"`
	Noise     uint16  `yaml:"noise"`
}

// PotConfig describes one pot. The decoder settings are inlined.
type PotConfig struct {
	Name string `yaml:"name"`
	// Channels are the converter inputs of wiper 1 and 2.
	Channels       [2]int `yaml:"channels"`
	contpot.Config `yaml:",inline"`
}

type WebSocketConfig struct {
	// Addr is the HTTP listen address. Empty disables the server.
	Addr string `yaml:"addr"`
}

type MeterConfig struct {
	Enabled bool `yaml:"enabled"`
	Width   int  `yaml:"width"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a fully populated Config: one volume pot on AIN0 and
// AIN1 of an ADS1115 powered at 3.3V.
func DefaultConfig() Config {
	// 3.3V on a ±4.096V input range.
	ch := contpot.ChannelSettings{MinADC: 0, MaxADC: 26400, DeadZone: 130}
	return Config{
		Source: SourceConfig{
			Kind:        sourceADS1x15,
			Address:     uint16(ads1x15.DefaultAddress),
			Variant:     string(ads1x15.ADS1115),
			DataRate:    860,
			FullScaleMV: 4096,
			IntervalUS:  1000,
			Shift:       3,
			Firmata: FirmataConfig{
				Port:       "/dev/ttyACM0",
				Baud:       firmata.DefaultBaud,
				SamplingMS: 10,
			},
			Sim: SimConfig{
				SpeedDPS:  90,
				ReverseMS: 8000,
				Noise:     10,
			},
		},
		Pots: []PotConfig{{
			Name:     "volume",
			Channels: [2]int{0, 1},
			Config: contpot.Config{
				Start: 0,
				Min:   -100,
				Max:   100,
				Step:  0.5,
				Ch1:   ch,
				Ch2:   ch,
			},
		}},
		WebSocket: WebSocketConfig{Addr: "127.0.0.1:8080"},
		Meter:     MeterConfig{Enabled: true, Width: 40},
		Logging:   LoggingConfig{Level: "info"},
	}
}

// LoadConfigFile reads a YAML file on top of DefaultConfig. Unknown fields
// are rejected.
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	return parseConfig(b)
}

func parseConfig(b []byte) (Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}
	if err := dec.Decode(&struct{}{}); err == nil {
		return Config{}, errors.New("decode config yaml: unexpected trailing document")
	}
	return cfg, nil
}

// FlagOverrides holds the flags that were set explicitly. A nil field is
// left alone.
type FlagOverrides struct {
	Sim      *bool
	WSAddr   *string
	LogLevel *string
	NoMeter  *bool
}

// Apply merges the overrides into cfg.
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if o.Sim != nil && *o.Sim {
		cfg.Source.Kind = sourceSim
	}
	if o.WSAddr != nil {
		cfg.WebSocket.Addr = *o.WSAddr
	}
	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
	if o.NoMeter != nil && *o.NoMeter {
		cfg.Meter.Enabled = false
	}
}

// Validate checks the configuration after defaults, file and overrides are
// applied.
func (c *Config) Validate() error {
	switch c.Source.Kind {
	case sourceADS1x15:
		switch ads1x15.Variant(c.Source.Variant) {
		case ads1x15.ADS1015, ads1x15.ADS1115:
		default:
			return fmt.Errorf("source.variant must be %q or %q", ads1x15.ADS1015, ads1x15.ADS1115)
		}
		if _, err := gainFor(c.Source.FullScaleMV); err != nil {
			return err
		}
		if c.Source.Address == 0 || c.Source.Address > 0x7f {
			return errors.New("source.address must be a 7-bit I²C address")
		}
	case sourceFirmata:
		if c.Source.Firmata.Port == "" {
			return errors.New("source.firmata.port is empty")
		}
		if !slices.Contains(firmata.BaudRates, c.Source.Firmata.Baud) {
			return fmt.Errorf("source.firmata.baud must be one of %v", firmata.BaudRates)
		}
		if c.Source.Firmata.SamplingMS < 1 || c.Source.Firmata.SamplingMS > firmata.MaxSamplingInterval {
			return fmt.Errorf("source.firmata.sampling_ms must be between 1 and %d", firmata.MaxSamplingInterval)
		}
	case sourceSim:
		if c.Source.Sim.SpeedDPS <= 0 {
			return errors.New("source.sim.speed_dps must be > 0")
		}
		if c.Source.Sim.ReverseMS < 0 {
			return errors.New("source.sim.reverse_ms must be >= 0")
		}
	default:
		return fmt.Errorf("source.kind must be %q, %q or %q", sourceADS1x15, sourceFirmata, sourceSim)
	}
	if c.Source.IntervalUS <= 0 {
		return errors.New("source.interval_us must be > 0")
	}
	if c.Source.Shift > 10 {
		return errors.New("source.shift must be between 0 and 10")
	}

	if len(c.Pots) == 0 {
		return errors.New("pots must not be empty")
	}
	if len(c.Pots) > contpot.MaxCapacity {
		return fmt.Errorf("at most %d pots are supported", contpot.MaxCapacity)
	}
	for i, p := range c.Pots {
		if p.Name == "" {
			return fmt.Errorf("pots[%d].name is empty", i)
		}
		if p.Min > p.Max {
			return fmt.Errorf("pots[%d].min must be <= max", i)
		}
		if p.Step <= 0 {
			return fmt.Errorf("pots[%d].step must be > 0", i)
		}
		if p.Ch1.MinADC >= p.Ch1.MaxADC || p.Ch2.MinADC >= p.Ch2.MaxADC {
			return fmt.Errorf("pots[%d]: min_adc must be < max_adc", i)
		}
		if c.Source.Kind == sourceSim && (p.Ch1.MinADC != 0 || p.Ch2.MinADC != 0 || p.Ch1.MaxADC != p.Ch2.MaxADC) {
			// The simulated wipers both swing over 0..ch1.max_adc.
			return fmt.Errorf("pots[%d]: sim needs ch1 and ch2 with min_adc 0 and the same max_adc", i)
		}
		if n := c.channels(); n > 0 {
			for _, ch := range p.Channels {
				if ch < 0 || ch >= n {
					return fmt.Errorf("pots[%d].channels must be between 0 and %d", i, n-1)
				}
			}
			if p.Channels[0] == p.Channels[1] {
				return fmt.Errorf("pots[%d].channels must differ", i)
			}
		}
	}

	if c.Meter.Enabled && c.Meter.Width <= 0 {
		return errors.New("meter.width must be > 0")
	}
	if _, err := parseLogLevel(c.Logging.Level); err != nil {
		return err
	}
	return nil
}

// channels returns the number of inputs of the source, 0 when pots are not
// mapped to inputs.
func (c *Config) channels() int {
	switch c.Source.Kind {
	case sourceADS1x15:
		return ads1x15.Channels
	case sourceFirmata:
		return firmata.AnalogPins
	default:
		return 0
	}
}

// gainFor maps a full scale range in millivolts to the converter gain.
func gainFor(mv int) (ads1x15.Gain, error) {
	for _, g := range []ads1x15.Gain{ads1x15.Gain2_3, ads1x15.Gain1, ads1x15.Gain2, ads1x15.Gain4, ads1x15.Gain8, ads1x15.Gain16} {
		if g.FullScale() == physic.ElectricPotential(mv)*physic.MilliVolt {
			return g, nil
		}
	}
	return 0, fmt.Errorf("source.full_scale_mv must be one of 6144, 4096, 2048, 1024, 512, 256; got %d", mv)
}
