// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package levelmeter shows the value of a pot as a one line bar on a
// terminal using ANSI color codes.
//
// The meter is also a 1D display.Drawer, so any image can be drawn on it.
// Several meters sharing a terminal are printed side by side by a Panel.
package levelmeter

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"os"
	"sync"

	"github.com/maruel/ansi256"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"periph.io/x/conn/v3/display"
)

// Opts represents the options of the meter.
type Opts struct {
	// Width is the number of cells of the bar.
	Width int
	// Label is printed before the bar.
	Label   string
	Palette *ansi256.Palette
	// W receives the output. Nil selects stdout, with colors only when it is
	// a terminal.
	W io.Writer
}

// DefaultWidth is used when Opts.Width is zero.
const DefaultWidth = 40

var (
	off  = color.NRGBA{0x30, 0x30, 0x30, 0xff}
	low  = color.NRGBA{0x00, 0xc0, 0x40, 0xff}
	high = color.NRGBA{0xff, 0x30, 0x00, 0xff}
)

// Dev is a level meter printed on a terminal.
type Dev struct {
	mu      sync.Mutex
	w       io.Writer
	label   string
	l       int
	palette ansi256.Palette

	pixels []byte
	text   string
	buf    bytes.Buffer
}

// New returns a meter. If opts is nil, a DefaultWidth meter on stdout is
// returned.
func New(opts *Opts) *Dev {
	if opts == nil {
		opts = &Opts{}
	}
	p := opts.Palette
	if p == nil {
		p = ansi256.Default
	}
	l := opts.Width
	if l <= 0 {
		l = DefaultWidth
	}
	w := opts.W
	if w == nil {
		w = stdout()
	}
	return &Dev{
		w:       w,
		label:   opts.Label,
		l:       l,
		palette: *p,
		pixels:  make([]byte, 3*l),
	}
}

// stdout strips the escape codes when stdout is not a terminal.
func stdout() io.Writer {
	if isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		return colorable.NewColorableStdout()
	}
	return colorable.NewNonColorable(os.Stdout)
}

func (d *Dev) String() string {
	return fmt.Sprintf("LevelMeter{%d}", d.l)
}

// Show fills the bar in proportion to value within [min, max] and prints
// the value after it.
func (d *Dev) Show(value, min, max float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.set(value, min, max)
	_, err := d.refresh()
	return err
}

// set must be called with mu held.
func (d *Dev) set(value, min, max float64) {
	n := Cells(value, min, max, d.l)
	for i := 0; i < d.l; i++ {
		c := off
		if i < n {
			c = ramp(i, d.l)
		}
		d.pixels[3*i] = c.R
		d.pixels[3*i+1] = c.G
		d.pixels[3*i+2] = c.B
	}
	d.text = fmt.Sprintf("%10.2f", value)
}

// Cells returns how many of width cells represent value within
// [min, max].
func Cells(value, min, max float64, width int) int {
	if max <= min || value <= min {
		return 0
	}
	if value >= max {
		return width
	}
	return int((value - min) / (max - min) * float64(width))
}

// ramp returns the color of cell i, going from green to red along the bar.
func ramp(i, width int) color.NRGBA {
	if width < 2 {
		return low
	}
	mix := func(a, b uint8) uint8 {
		return uint8((int(a)*(width-1-i) + int(b)*i) / (width - 1))
	}
	return color.NRGBA{mix(low.R, high.R), mix(low.G, high.G), mix(low.B, high.B), 0xff}
}

// Halt implements conn.Resource.
//
// It resets the colors and moves to the next line.
func (d *Dev) Halt() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.w.Write([]byte("\n\033[0m"))
	return err
}

// Write accepts a stream of raw RGB pixels and writes it to the terminal.
func (d *Dev) Write(pixels []byte) (int, error) {
	if len(pixels)%3 != 0 {
		return 0, errors.New("levelmeter: invalid RGB stream length")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	copy(d.pixels, pixels)
	return d.refresh()
}

// ColorModel implements display.Drawer.
func (d *Dev) ColorModel() color.Model {
	return color.NRGBAModel
}

// Bounds implements display.Drawer.
func (d *Dev) Bounds() image.Rectangle {
	return image.Rectangle{Max: image.Point{X: d.l, Y: 1}}
}

// Draw implements display.Drawer.
func (d *Dev) Draw(r image.Rectangle, src image.Image, sp image.Point) error {
	r = r.Intersect(d.Bounds())
	srcR := src.Bounds()
	srcR.Min = srcR.Min.Add(sp)
	if dX := r.Dx(); dX < srcR.Dx() {
		srcR.Max.X = srcR.Min.X + dX
	}
	deltaX := r.Min.X - srcR.Min.X
	d.mu.Lock()
	defer d.mu.Unlock()
	for sX := srcR.Min.X; sX < srcR.Max.X; sX++ {
		r16, g16, b16, _ := src.At(sX, srcR.Min.Y).RGBA()
		i := 3 * (sX + deltaX)
		d.pixels[i] = byte(r16 >> 8)
		d.pixels[i+1] = byte(g16 >> 8)
		d.pixels[i+2] = byte(b16 >> 8)
	}
	_, err := d.refresh()
	return err
}

// refresh must be called with mu held.
func (d *Dev) refresh() (int, error) {
	d.buf.Reset()
	_, _ = d.buf.WriteString("\r\033[0m")
	d.line(&d.buf)
	_, err := d.buf.WriteTo(d.w)
	return len(d.pixels), err
}

// line appends the label, the bar and the value text to b. It must be
// called with mu held.
func (d *Dev) line(b *bytes.Buffer) {
	if d.label != "" {
		_, _ = b.WriteString(d.label)
		_ = b.WriteByte(' ')
	}
	for i := 0; i < d.l; i++ {
		c := color.NRGBA{d.pixels[3*i], d.pixels[3*i+1], d.pixels[3*i+2], 255}
		_, _ = io.WriteString(b, d.palette.Block(c))
	}
	_, _ = b.WriteString("\033[0m ")
	_, _ = b.WriteString(d.text)
}

var _ display.Drawer = &Dev{}
var _ fmt.Stringer = &Dev{}
