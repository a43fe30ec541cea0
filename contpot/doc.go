// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package contpot decodes a free-spinning (continuous) dual-gang
// potentiometer whose two wipers are 90 degrees out of phase.
//
// The pot has no end-stop, so there is no absolute position. Each pair of
// wiper samples is classified into one of four quadrants of a rotation and
// compared against the previous pair to find the turning direction. Every
// registered turn moves the pot value by one step inside [Min, Max].
//
// Wiper voltages over two rotations, with the quadrants on top:
//
//	           |1|2|3|4|1|2|3|4|
//	      max  _________________
//	               /\      /\
//	ADC2  1/2  ___/__\___ /__\___
//	             /    \  /    \
//	           _/______\/______\_
//	      min
//
//	      max  ____________________
//	                 /\      /\
//	ADC1  1/2  _____/__\___ /__\___
//	            \  /    \  /    \
//	           __\/______\/______\_
//	      min
//
// Each wiper has a dead-zone: a new sample closer than DeadZone to the stored
// one is ignored. It filters ADC noise and also lowers the knob sensitivity,
// since more rotation is then needed to cover the range.
//
// The samples must already be low-pass filtered. Package oversample provides
// the 2^N oversampling and the handoff to the goroutine calling Update.
package contpot
