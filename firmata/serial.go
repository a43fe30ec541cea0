// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package firmata

// DefaultBaud is the rate StandardFirmata uses.
const DefaultBaud = 57600

// BaudRates lists the rates accepted by OpenSerial.
var BaudRates = []int{9600, 19200, 38400, 57600, 115200}
