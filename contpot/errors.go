// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package contpot

import "errors"

var (
	ErrAlreadyInitialized = errors.New("contpot: registry already initialized")
	ErrNotInitialized     = errors.New("contpot: registry not initialized")
	ErrOutOfMemory        = errors.New("contpot: cannot allocate registry storage")
	ErrCapacityExceeded   = errors.New("contpot: registry is full")
	ErrInvalidIndex       = errors.New("contpot: pot index out of range")
	ErrInvalidSettings    = errors.New("contpot: channel min_adc must be lower than max_adc")
	ErrInvalidRange       = errors.New("contpot: min must not exceed max")
	ErrInvalidStep        = errors.New("contpot: step must be a finite value >= 0")
	ErrStartOutOfRange    = errors.New("contpot: start value outside [min, max]")
	ErrOutOfRange         = errors.New("contpot: value outside [min, max]")
)
