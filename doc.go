// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package rotarypot is a container for the packages that decode a
// free-spinning dual-gang potentiometer.
//
// The decoder itself lives in contpot. The analog side (ADC driver,
// oversampling and the producer/consumer handoff) lives in ads1x15 and
// oversample; firmata reads the wipers from a microcontroller board instead. potsim simulates a pot for tests and demos, levelmeter and
// dial show a value, and cmd/potd ties them together.
package rotarypot
