// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package dial renders the value of a pot as a knob gauge.
//
// The gauge sweeps 270°, starting at the bottom left for the minimum and
// ending at the bottom right for the maximum. The image can be drawn on any
// display.Drawer, like an OLED or e-paper panel, or encoded as PNG.
package dial

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"math"
	"sync"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"periph.io/x/conn/v3/display"
)

const (
	startAngle = 135.0
	sweep      = 270.0
)

// Opts represents the options of a dial.
type Opts struct {
	// Size is the side of the square image in pixels when it is not set by
	// the destination.
	Size int
	// Label is printed under the value.
	Label string
	// Foreground, Track and Background colors. Nil selects white on black.
	Foreground color.Color
	Track      color.Color
	Background color.Color
}

// DefaultOpts is a 128 pixels white on black dial.
var DefaultOpts = Opts{Size: 128}

// Dial renders gauges. It is safe for concurrent use.
type Dial struct {
	opts Opts
	font *truetype.Font

	mu    sync.Mutex
	faces map[int]font.Face
}

// New returns a Dial. If opts is nil, DefaultOpts is used.
func New(opts *Opts) (*Dial, error) {
	if opts == nil {
		o := DefaultOpts
		opts = &o
	}
	f, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	d := &Dial{opts: *opts, font: f, faces: map[int]font.Face{}}
	if d.opts.Size <= 0 {
		d.opts.Size = DefaultOpts.Size
	}
	if d.opts.Foreground == nil {
		d.opts.Foreground = color.White
	}
	if d.opts.Track == nil {
		d.opts.Track = color.Gray{0x40}
	}
	if d.opts.Background == nil {
		d.opts.Background = color.Black
	}
	return d, nil
}

// Fraction returns the position of value within [min, max], in [0, 1].
func Fraction(value, min, max float64) float64 {
	if max <= min {
		return 0
	}
	return math.Max(0, math.Min(1, (value-min)/(max-min)))
}

// Render returns a size x size gauge of value within [min, max].
func (d *Dial) Render(size int, value, min, max float64) image.Image {
	return d.context(size, value, min, max).Image()
}

// EncodePNG writes a gauge of the default size as PNG to w.
func (d *Dial) EncodePNG(w io.Writer, value, min, max float64) error {
	return d.context(d.opts.Size, value, min, max).EncodePNG(w)
}

// Draw renders a gauge that fits dst and draws it.
func (d *Dial) Draw(dst display.Drawer, value, min, max float64) error {
	r := dst.Bounds()
	size := r.Dx()
	if r.Dy() < size {
		size = r.Dy()
	}
	if size <= 0 {
		return fmt.Errorf("dial: empty destination %s", r)
	}
	return dst.Draw(r, d.Render(size, value, min, max), image.Point{})
}

func (d *Dial) context(size int, value, min, max float64) *gg.Context {
	// Font faces cache glyphs and are not safe for concurrent use.
	d.mu.Lock()
	defer d.mu.Unlock()
	s := float64(size)
	cx, cy := s/2, s/2
	radius := s * 0.4
	width := math.Max(1, s/16)

	c := gg.NewContext(size, size)
	c.SetColor(d.opts.Background)
	c.Clear()
	c.SetLineCapRound()

	c.SetLineWidth(width)
	c.SetColor(d.opts.Track)
	c.DrawArc(cx, cy, radius, gg.Radians(startAngle), gg.Radians(startAngle+sweep))
	c.Stroke()

	f := Fraction(value, min, max)
	end := startAngle + sweep*f
	c.SetColor(d.opts.Foreground)
	if f > 0 {
		c.DrawArc(cx, cy, radius, gg.Radians(startAngle), gg.Radians(end))
		c.Stroke()
	}
	c.SetLineWidth(math.Max(1, width/2))
	a := gg.Radians(end)
	c.DrawLine(cx, cy, cx+radius*0.7*math.Cos(a), cy+radius*0.7*math.Sin(a))
	c.Stroke()

	c.SetFontFace(d.face(size))
	c.DrawStringAnchored(fmt.Sprintf("%.2f", value), cx, cy+radius*0.55, 0.5, 0.5)
	if d.opts.Label != "" {
		c.DrawStringAnchored(d.opts.Label, cx, cy+radius*0.95, 0.5, 0.5)
	}
	return c
}

// face returns a font face scaled to the image size. It must be called with
// mu held.
func (d *Dial) face(size int) font.Face {
	pt := size / 10
	if pt < 6 {
		pt = 6
	}
	f, ok := d.faces[pt]
	if !ok {
		f = truetype.NewFace(d.font, &truetype.Options{Size: float64(pt)})
		d.faces[pt] = f
	}
	return f
}
