// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

//go:build !linux

package firmata

import (
	"errors"
	"io"
)

// OpenSerial is only implemented on linux.
func OpenSerial(path string, baud int) (io.ReadWriteCloser, error) {
	return nil, errors.New("firmata: serial ports are not supported on this OS")
}
