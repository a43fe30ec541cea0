// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package firmata

import "errors"

var (
	ErrDeviceDisconnected      = errors.New("firmata: device disconnected")
	ErrAlreadyStarted          = errors.New("firmata: client already started")
	ErrNotStarted              = errors.New("firmata: client not started")
	ErrInvalidMessageTypeStart = errors.New("firmata: invalid message type start")
	ErrNoDataRead              = errors.New("firmata: no data read")
	ErrValueOutOfRange         = errors.New("firmata: value is out of range")
	ErrInvalidAnalogPin        = errors.New("firmata: analog pin number cannot exceed 0xF")
	ErrPinListenerNotReleased  = errors.New("firmata: pin listener is already set for pin")
)
