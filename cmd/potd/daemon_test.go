// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/GermanBionicSystems/rotarypot/contpot"
	"github.com/GermanBionicSystems/rotarypot/oversample"
	"github.com/GermanBionicSystems/rotarypot/potsim"
	"github.com/gorilla/websocket"
)

func simConfig() Config {
	cfg := DefaultConfig()
	cfg.Source.Kind = sourceSim
	cfg.Source.IntervalUS = 200
	cfg.Source.Shift = 1
	cfg.Source.Sim = SimConfig{SpeedDPS: 360, ReverseMS: 0, Noise: 0}
	ch := contpot.Channel(12, contpot.DefaultDeadZone)
	cfg.Pots = []PotConfig{{
		Name:   "balance",
		Config: contpot.Config{Start: 0, Min: -10, Max: 10, Step: 1, Ch1: ch, Ch2: ch},
	}}
	cfg.WebSocket.Addr = ""
	cfg.Meter.Width = 10
	return cfg
}

// newTestDaemon returns a daemon with one simulated pot at 1.5°, not
// running.
func newTestDaemon(t *testing.T, cfg Config) (*daemon, *potsim.Pot, *bytes.Buffer) {
	t.Helper()
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	d, err := newDaemon(cfg, discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	var meter bytes.Buffer
	d.meterW = &meter
	sim, err := potsim.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	sim.SetAngle(1.5)
	w1, _ := sim.Wiper(1)
	w2, _ := sim.Wiper(2)
	if err := d.addPot(cfg.Pots[0], w1, w2); err != nil {
		t.Fatal(err)
	}
	return d, sim, &meter
}

type frame struct {
	Type string          `json:"type"`
	Ts   *time.Time      `json:"ts"`
	Data json.RawMessage `json:"data"`
}

// nextFrame pops a frame broadcast while the hub is not running.
func nextFrame(t *testing.T, d *daemon) (frame, bool) {
	t.Helper()
	select {
	case b := <-d.hub.broadcast:
		var f frame
		if err := json.Unmarshal(b, &f); err != nil {
			t.Fatal(err)
		}
		return f, true
	default:
		return frame{}, false
	}
}

func TestApply(t *testing.T) {
	d, sim, meter := newTestDaemon(t, simConfig())
	p := d.pots[0]

	sim.Rotate(3)
	s1, s2 := sim.Samples()
	if err := d.apply(p, oversample.Pair{S1: s1, S2: s2}); err != nil {
		t.Fatal(err)
	}
	f, ok := nextFrame(t, d)
	if !ok || f.Type != "value" || f.Ts == nil {
		t.Fatalf("frame = %+v, %t", f, ok)
	}
	var v valueData
	if err := json.Unmarshal(f.Data, &v); err != nil {
		t.Fatal(err)
	}
	if v != (valueData{Pot: 0, Name: "balance", Value: 1, Quadrant: "Q1"}) {
		t.Errorf("value = %+v", v)
	}
	if !strings.Contains(meter.String(), "balance") || !strings.HasSuffix(meter.String(), "1.00") {
		t.Errorf("meter = %q", meter.String())
	}

	// The same pair again is within the dead-zone.
	if err := d.apply(p, oversample.Pair{S1: s1, S2: s2}); err != nil {
		t.Fatal(err)
	}
	if f, ok := nextFrame(t, d); ok {
		t.Errorf("suppressed pair broadcast %+v", f)
	}
}

func TestApplyClampedNotPublished(t *testing.T) {
	cfg := simConfig()
	cfg.Pots[0].Start = 10
	d, sim, _ := newTestDaemon(t, cfg)
	sim.Rotate(3)
	s1, s2 := sim.Samples()
	if err := d.apply(d.pots[0], oversample.Pair{S1: s1, S2: s2}); err != nil {
		t.Fatal(err)
	}
	if f, ok := nextFrame(t, d); ok {
		t.Errorf("unchanged value broadcast %+v", f)
	}
}

func TestSet(t *testing.T) {
	d, _, _ := newTestDaemon(t, simConfig())
	if err := d.set(0, 5); err != nil {
		t.Fatal(err)
	}
	if f, ok := nextFrame(t, d); !ok || f.Type != "value" {
		t.Errorf("no value frame after set, got %+v", f)
	}
	if v, _ := d.dec.Value(0); v != 5 {
		t.Errorf("value = %g", v)
	}
	// Out of range values are ignored by default.
	if err := d.set(0, 50); err != nil {
		t.Errorf("set(50) = %v", err)
	}
	if _, ok := nextFrame(t, d); ok {
		t.Error("ignored set was broadcast")
	}
	if err := d.set(4, 0); !errors.Is(err, contpot.ErrInvalidIndex) {
		t.Errorf("set(4) = %v", err)
	}

	cfg := simConfig()
	cfg.StrictSet = true
	d, _, _ = newTestDaemon(t, cfg)
	if err := d.set(0, 50); !errors.Is(err, contpot.ErrOutOfRange) {
		t.Errorf("strict set(50) = %v", err)
	}
}

func TestStateInit(t *testing.T) {
	d, _, _ := newTestDaemon(t, simConfig())
	var f frame
	if err := json.Unmarshal(d.stateInit(), &f); err != nil {
		t.Fatal(err)
	}
	var s stateInitData
	if err := json.Unmarshal(f.Data, &s); err != nil {
		t.Fatal(err)
	}
	want := potState{Pot: 0, Name: "balance", Value: 0, Min: -10, Max: 10, Step: 1, Quadrant: "Q1"}
	if f.Type != "state_init" || len(s.Pots) != 1 || s.Pots[0] != want {
		t.Errorf("state_init = %s %+v", f.Type, s)
	}
}

func TestWebSocket(t *testing.T) {
	d, _, _ := newTestDaemon(t, simConfig())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.hub.Run(ctx)
	srv := httptest.NewServer(d.mux())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	read := func() frame {
		t.Helper()
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			t.Fatal(err)
		}
		return f
	}
	if f := read(); f.Type != "state_init" {
		t.Fatalf("first frame %q", f.Type)
	}

	waitUntil(t, time.Second, func() bool { return d.hub.Len() == 1 }, "client not registered")
	if err := conn.WriteJSON(map[string]any{"type": "set", "data": setData{Pot: 0, Value: -3}}); err != nil {
		t.Fatal(err)
	}
	f := read()
	var v valueData
	if err := json.Unmarshal(f.Data, &v); err != nil {
		t.Fatal(err)
	}
	if f.Type != "value" || v.Value != -3 {
		t.Errorf("got %s %+v", f.Type, v)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"spin"}`)); err != nil {
		t.Fatal(err)
	}
	if f := read(); f.Type != "error" {
		t.Errorf("unknown request answered with %q", f.Type)
	}
}

func TestDialHandler(t *testing.T) {
	d, _, _ := newTestDaemon(t, simConfig())
	srv := httptest.NewServer(d.mux())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/dial.png")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/png" {
		t.Fatalf("status %d, type %q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	img, err := png.Decode(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 256 {
		t.Errorf("bounds = %v", img.Bounds())
	}

	for q, want := range map[string]int{"?pot=7": http.StatusNotFound, "?pot=x": http.StatusBadRequest} {
		resp, err := http.Get(srv.URL + "/dial.png" + q)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != want {
			t.Errorf("%s: status %d, want %d", q, resp.StatusCode, want)
		}
	}
}

func TestRunSim(t *testing.T) {
	cfg := simConfig()
	cfg.Meter.Enabled = false
	d, err := newDaemon(cfg, discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	if err := d.attach(); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if err := d.run(ctx); err != nil {
		t.Fatal(err)
	}
	if v, _ := d.dec.Value(0); v == 0 {
		t.Error("simulated knob did not move the value")
	}
}

// The sampling loop and websocket clients update the same pot and meter.
func TestApplyAndSetConcurrent(t *testing.T) {
	d, sim, _ := newTestDaemon(t, simConfig())
	p := d.pots[0]
	errc := make(chan error, 1)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			sim.Rotate(3)
			s1, s2 := sim.Samples()
			if err := d.apply(p, oversample.Pair{S1: s1, S2: s2}); err != nil {
				select {
				case errc <- err:
				default:
				}
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			if err := d.set(0, float64(i%10)); err != nil {
				select {
				case errc <- err:
				default:
				}
				return
			}
		}
	}()
	wg.Wait()
	select {
	case err := <-errc:
		t.Fatal(err)
	default:
	}
	if v, _ := d.dec.Value(0); v < -10 || v > 10 {
		t.Errorf("value %g out of range", v)
	}
}

func TestMeterSharesOneLine(t *testing.T) {
	cfg := simConfig()
	second := cfg.Pots[0]
	second.Name = "treble"
	cfg.Pots = append(cfg.Pots, second)
	d, _, meter := newTestDaemon(t, cfg)
	sim, err := potsim.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	w1, _ := sim.Wiper(1)
	w2, _ := sim.Wiper(2)
	if err := d.addPot(cfg.Pots[1], w1, w2); err != nil {
		t.Fatal(err)
	}
	meter.Reset()
	if err := d.set(1, 4); err != nil {
		t.Fatal(err)
	}
	out := meter.String()
	if strings.Count(out, "\r") != 1 {
		t.Errorf("meters printed on separate refreshes: %q", out)
	}
	ib, it := strings.Index(out, "balance "), strings.Index(out, "treble ")
	if ib < 0 || it < ib || !strings.HasSuffix(out, "4.00") {
		t.Errorf("meter line = %q", out)
	}
}
