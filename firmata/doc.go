// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package firmata reads analog inputs of a board running StandardFirmata
// over a serial link.
//
// Only the analog reporting part of the protocol is implemented: the client
// waits for the firmware report, enables reporting per analog pin and
// forwards each reading to a listener channel. Other messages are parsed
// and dropped.
//
// Protocol
//
// https://github.com/firmata/protocol/blob/master/protocol.md
package firmata
