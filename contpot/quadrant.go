// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package contpot

import "strconv"

// DefaultDeadZone is the dead-zone used by Channel when none is wanted
// explicitly. Values above 10 work well for a 12-bit ADC.
const DefaultDeadZone = 20

// ChannelSettings holds the ADC properties of one wiper.
//
// The two wipers of a pot may be sampled by ADCs with different
// resolutions, so each has its own settings.
type ChannelSettings struct {
	// MinADC is the lowest raw sample, usually 0.
	MinADC uint16 `yaml:"min_adc" json:"min_adc"`
	// MaxADC is the highest raw sample, usually (1 << bits) - 1.
	MaxADC uint16 `yaml:"max_adc" json:"max_adc"`
	// DeadZone is the minimum distance a new sample must have from the stored
	// one to count as motion. The larger it is, the more the knob has to be
	// turned to cover the range.
	DeadZone uint16 `yaml:"dead_zone" json:"dead_zone"`
}

// Channel returns the settings of a wiper sampled by an ADC with the given
// resolution in bits.
func Channel(bits int, deadZone uint16) ChannelSettings {
	return ChannelSettings{MinADC: 0, MaxADC: uint16(1<<bits - 1), DeadZone: deadZone}
}

func (c ChannelSettings) valid() bool {
	return c.MinADC < c.MaxADC
}

// half is the classification threshold of the channel.
//
// It is half the span, not min+span/2; both are equal for the usual
// MinADC of 0.
func (c ChannelSettings) half() int {
	return int(c.MaxADC-c.MinADC) >> 1
}

// inDeadZone reports whether sample lies strictly within DeadZone of curr.
func (c ChannelSettings) inDeadZone(curr, sample uint16) bool {
	s, cur, dz := int(sample), int(curr), int(c.DeadZone)
	return s > cur-dz && s < cur+dz
}

// Quadrant is one quarter of a full wiper period.
type Quadrant uint8

const (
	Q1 Quadrant = iota
	Q2
	Q3
	Q4
)

func (q Quadrant) String() string {
	if q > Q4 {
		return "Quadrant(" + strconv.Itoa(int(q)) + ")"
	}
	return "Q" + strconv.Itoa(int(q)+1)
}

// classify returns the quadrant of the sample pair.
//
// The conditions overlap when a sample sits exactly on its threshold; the
// first matching quadrant in Q1..Q4 order wins.
func classify(ch1, ch2 ChannelSettings, s1, s2 uint16) Quadrant {
	h1, h2 := ch1.half(), ch2.half()
	v1, v2 := int(s1), int(s2)
	switch {
	case v1 <= h1 && v2 >= h2:
		return Q1
	case v1 >= h1 && v2 >= h2:
		return Q2
	case v1 >= h1 && v2 <= h2:
		return Q3
	default:
		return Q4
	}
}

// Classify returns the quadrant of the sample pair for the given wiper
// settings.
func Classify(ch1, ch2 ChannelSettings, s1, s2 uint16) Quadrant {
	return classify(ch1, ch2, s1, s2)
}
