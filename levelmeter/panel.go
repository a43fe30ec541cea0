// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package levelmeter

import (
	"bytes"
	"fmt"
	"io"
	"sync"
)

// Panel prints several meters side by side on a single terminal line.
//
// The meters of a Panel are only updated through it; their own writers are
// not used.
type Panel struct {
	mu     sync.Mutex
	w      io.Writer
	meters []*Dev
	buf    bytes.Buffer
}

// NewPanel returns a Panel printing meters to w. Nil selects stdout, with
// colors only when it is a terminal.
func NewPanel(w io.Writer, meters ...*Dev) *Panel {
	if w == nil {
		w = stdout()
	}
	return &Panel{w: w, meters: meters}
}

func (p *Panel) String() string {
	return fmt.Sprintf("LevelMeterPanel{%d}", len(p.meters))
}

// Len returns the number of meters.
func (p *Panel) Len() int {
	return len(p.meters)
}

// Show updates meter i and reprints the whole line.
func (p *Panel) Show(i int, value, min, max float64) error {
	if i < 0 || i >= len(p.meters) {
		return fmt.Errorf("levelmeter: no meter %d", i)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	m := p.meters[i]
	m.mu.Lock()
	m.set(value, min, max)
	m.mu.Unlock()

	p.buf.Reset()
	_, _ = p.buf.WriteString("\r\033[0m")
	for j, m := range p.meters {
		if j != 0 {
			_, _ = p.buf.WriteString("  ")
		}
		m.mu.Lock()
		m.line(&p.buf)
		m.mu.Unlock()
	}
	_, err := p.buf.WriteTo(p.w)
	return err
}

// Halt implements conn.Resource.
//
// It resets the colors and moves to the next line.
func (p *Panel) Halt() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := p.w.Write([]byte("\n\033[0m"))
	return err
}
