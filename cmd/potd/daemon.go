// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/GermanBionicSystems/rotarypot/contpot"
	"github.com/GermanBionicSystems/rotarypot/dial"
	"github.com/GermanBionicSystems/rotarypot/levelmeter"
	"github.com/GermanBionicSystems/rotarypot/oversample"
	"golang.org/x/sync/errgroup"
	"periph.io/x/conn/v3"
)

// sampler fills the mailbox of a pot until halted.
type sampler interface {
	conn.Resource
}

// starter is a sampler that only runs once started.
type starter interface {
	Start()
}

// errCounter is a sampler that counts its read errors.
type errCounter interface {
	Err() (uint64, error)
}

// pot is the runtime state of one configured pot.
type pot struct {
	index int
	name  string
	mb    *oversample.Mailbox
	src   sampler
}

// daemon owns the decoder. Each pot is fed by its own sampling goroutine
// and consumed by its own loop; websocket clients read and set values.
type daemon struct {
	cfg    Config
	logger *slog.Logger
	dec    *contpot.Decoder
	hub    *Hub
	dial   *dial.Dial
	pots   []*pot

	// meter shows every pot on one line, one bar per pot in index order.
	meter *levelmeter.Panel
	// meterW receives the meters. Nil selects stdout.
	meterW io.Writer
	meters []*levelmeter.Dev
	// openBoard opens a Firmata board. Nil selects firmata.OpenSerial.
	openBoard openSerial
	// tasks run alongside the pots until the context is canceled.
	tasks   []func(context.Context) error
	closers []func() error
}

func newDaemon(cfg Config, logger *slog.Logger) (*daemon, error) {
	dec, err := contpot.New(len(cfg.Pots), &contpot.Opts{
		StrictSet:  cfg.StrictSet,
		CheckStart: cfg.CheckStart,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	dl, err := dial.New(&dial.Opts{Size: 256})
	if err != nil {
		return nil, err
	}
	return &daemon{
		cfg:    cfg,
		logger: logger,
		dec:    dec,
		hub:    NewHub(logger, 0, 0),
		dial:   dl,
	}, nil
}

// addPot seeds a pot with one reading of w1 and w2 and prepares its
// sampling goroutine.
func (d *daemon) addPot(pc PotConfig, w1, w2 oversample.ADC) error {
	first, err := oversample.ReadPair(w1, w2)
	if err != nil {
		return fmt.Errorf("pot %q: %w", pc.Name, err)
	}
	mb := oversample.NewMailbox()
	src, err := oversample.NewSource(w1, w2, mb, &oversample.Opts{
		Interval: time.Duration(d.cfg.Source.IntervalUS) * time.Microsecond,
		Shift:    d.cfg.Source.Shift,
	})
	if err != nil {
		return fmt.Errorf("pot %q: %w", pc.Name, err)
	}
	return d.register(pc, first, mb, src)
}

// register adds a pot seeded with first, fed through mb by src.
func (d *daemon) register(pc PotConfig, first oversample.Pair, mb *oversample.Mailbox, src sampler) error {
	index, err := d.dec.Add(first.S1, first.S2, pc.Config)
	if err != nil {
		return fmt.Errorf("pot %q: %w", pc.Name, err)
	}
	p := &pot{index: index, name: pc.Name, mb: mb, src: src}
	if d.cfg.Meter.Enabled {
		d.meters = append(d.meters, levelmeter.New(&levelmeter.Opts{Width: d.cfg.Meter.Width, Label: pc.Name, W: io.Discard}))
		d.meter = levelmeter.NewPanel(d.meterW, d.meters...)
	}
	d.pots = append(d.pots, p)
	d.logger.Info("pot added", "name", pc.Name, "index", index, "ch1", first.S1, "ch2", first.S2, "value", pc.Start, "source", src.String())
	return nil
}

// run starts everything and blocks until ctx is canceled or a component
// fails.
func (d *daemon) run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		d.hub.Run(ctx)
		return nil
	})
	for _, p := range d.pots {
		if s, ok := p.src.(starter); ok {
			s.Start()
		}
		g.Go(func() error { return d.consume(ctx, p) })
	}
	for _, t := range d.tasks {
		g.Go(func() error { return ignoreCanceled(t(ctx)) })
	}
	g.Go(func() error { return d.watch(ctx, 5*time.Second) })
	if d.cfg.WebSocket.Addr != "" {
		srv := &http.Server{Addr: d.cfg.WebSocket.Addr, Handler: d.mux(), ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			d.logger.Info("http server listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}
	err := g.Wait()
	d.halt()
	return err
}

// halt stops the sampling goroutines and releases the hardware.
func (d *daemon) halt() {
	for _, p := range d.pots {
		if err := p.src.Halt(); err != nil {
			d.logger.Warn("halt source", "pot", p.name, "error", err)
		}
	}
	if d.meter != nil {
		_ = d.meter.Halt()
	}
	for _, c := range d.closers {
		if err := c(); err != nil {
			d.logger.Warn("close", "error", err)
		}
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// consume applies every filtered pair posted for p.
func (d *daemon) consume(ctx context.Context, p *pot) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-p.mb.C():
			pair, ok := p.mb.Take()
			if !ok {
				continue
			}
			if err := d.apply(p, pair); err != nil {
				return err
			}
		}
	}
}

// apply feeds pair to the decoder and publishes the value when it changed.
func (d *daemon) apply(p *pot, pair oversample.Pair) error {
	r, err := d.dec.UpdateState(p.index, pair.S1, pair.S2)
	if err != nil {
		return err
	}
	if r.Changed {
		d.publish(p, r.State)
	}
	return nil
}

// watch logs sampling errors as they accumulate.
func (d *daemon) watch(ctx context.Context, every time.Duration) error {
	t := time.NewTicker(every)
	defer t.Stop()
	seen := make([]uint64, len(d.pots))
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			for i, p := range d.pots {
				e, ok := p.src.(errCounter)
				if !ok {
					continue
				}
				n, err := e.Err()
				if n != seen[i] {
					d.logger.Warn("sampling errors", "pot", p.name, "count", n-seen[i], "last", err, "dropped", p.mb.Dropped())
					seen[i] = n
				}
			}
		}
	}
}

// valueData is the payload of the "value" message.
type valueData struct {
	Pot      int     `json:"pot"`
	Name     string  `json:"name"`
	Value    float64 `json:"value"`
	Quadrant string  `json:"quadrant"`
}

// potState is one entry of the "state_init" message.
type potState struct {
	Pot      int     `json:"pot"`
	Name     string  `json:"name"`
	Value    float64 `json:"value"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Step     float64 `json:"step"`
	Quadrant string  `json:"quadrant"`
}

type stateInitData struct {
	Pots []potState `json:"pots"`
}

// setData is the payload of a "set" message sent by a client.
type setData struct {
	Pot   int     `json:"pot"`
	Value float64 `json:"value"`
}

type errorData struct {
	Message string `json:"message"`
}

func marshal(kind string, data any) ([]byte, error) {
	now := time.Now().UTC()
	return json.Marshal(envelope{Type: kind, Ts: &now, Data: data})
}

// publish broadcasts s as the state of p and shows it on the meter.
func (d *daemon) publish(p *pot, s contpot.State) {
	msg, err := marshal("value", valueData{Pot: p.index, Name: p.name, Value: s.Value, Quadrant: s.Quadrant.String()})
	if err != nil {
		d.logger.Warn("ws marshal failed", "error", err)
		return
	}
	d.hub.Broadcast(msg)
	if d.meter != nil {
		if err := d.meter.Show(p.index, s.Value, s.Min, s.Max); err != nil {
			d.logger.Debug("meter", "error", err)
		}
	}
}

// stateInit returns the "state_init" frame sent to every new client.
func (d *daemon) stateInit() []byte {
	data := stateInitData{Pots: make([]potState, 0, len(d.pots))}
	for _, p := range d.pots {
		s, err := d.dec.Snapshot(p.index)
		if err != nil {
			continue
		}
		data.Pots = append(data.Pots, potState{
			Pot: p.index, Name: p.name, Value: s.Value,
			Min: s.Min, Max: s.Max, Step: s.Step, Quadrant: s.Quadrant.String(),
		})
	}
	msg, err := marshal("state_init", data)
	if err != nil {
		d.logger.Warn("ws marshal failed", "error", err)
		return nil
	}
	return msg
}

// onMessage handles client requests. Only "set" is understood.
func (d *daemon) onMessage(c *Client, b []byte) {
	var in struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(b, &in); err != nil {
		d.reply(c, fmt.Errorf("invalid message: %w", err))
		return
	}
	if in.Type != "set" {
		d.reply(c, fmt.Errorf("unknown message type %q", in.Type))
		return
	}
	var req setData
	if err := json.Unmarshal(in.Data, &req); err != nil {
		d.reply(c, fmt.Errorf("invalid set message: %w", err))
		return
	}
	if err := d.set(req.Pot, req.Value); err != nil {
		d.reply(c, err)
	}
}

// set forces the value of a pot and publishes it when applied.
func (d *daemon) set(index int, value float64) error {
	if index < 0 || index >= len(d.pots) {
		return fmt.Errorf("%w: %d", contpot.ErrInvalidIndex, index)
	}
	ok, err := d.dec.SetValue(index, value)
	if err != nil {
		return err
	}
	p := d.pots[index]
	if !ok {
		d.logger.Debug("set value ignored", "pot", p.name, "value", value)
		return nil
	}
	s, err := d.dec.Snapshot(index)
	if err != nil {
		return err
	}
	d.logger.Info("value set", "pot", p.name, "value", value)
	d.publish(p, s)
	return nil
}

func (d *daemon) reply(c *Client, err error) {
	msg, mErr := marshal("error", errorData{Message: err.Error()})
	if mErr != nil {
		return
	}
	if !c.enqueue(msg) {
		d.logger.Debug("ws reply dropped", "remote_addr", c.remoteAddr)
	}
}

func (d *daemon) mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		d.hub.ServeWS(w, r, d.stateInit, d.onMessage)
	})
	mux.HandleFunc("/dial.png", d.handleDial)
	return mux
}

// handleDial serves a gauge of the pot selected by the "pot" query
// parameter, 0 by default.
func (d *daemon) handleDial(w http.ResponseWriter, r *http.Request) {
	index := 0
	if s := r.URL.Query().Get("pot"); s != "" {
		i, err := strconv.Atoi(s)
		if err != nil {
			http.Error(w, "invalid pot", http.StatusBadRequest)
			return
		}
		index = i
	}
	if index < 0 || index >= len(d.pots) {
		http.Error(w, "no such pot", http.StatusNotFound)
		return
	}
	s, err := d.dec.Snapshot(index)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if err := d.dial.EncodePNG(w, s.Value, s.Min, s.Max); err != nil {
		d.logger.Warn("dial encode failed", "error", err)
	}
}
