// Copyright 2024 The go-ethereum Authors
// This file is part of go-ethereum.
//
// go-ethereum is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// go-ethereum is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with go-ethereum. If not, see <http://www.gnu.org/licenses/>.

package metrics

import (
	"testing"
	"time"
)

func TestCounterIncAndRegister(t *testing.T) {
	r := NewRegistry()
	c := NewRegisteredCounter("vsr/prepare/total", r)
	c.Inc(1)
	c.Inc(2)
	if c.Count() != 3 {
		t.Fatalf("got %d want 3", c.Count())
	}
	if r.Get("vsr/prepare/total") != c {
		t.Fatal("counter not registered under expected name")
	}
}

func TestGaugeUpdate(t *testing.T) {
	r := NewRegistry()
	g := NewRegisteredGauge("vsr/view/current", r)
	g.Update(4)
	g.Update(7)
	if g.Value() != 7 {
		t.Fatalf("got %d want 7", g.Value())
	}
}

func TestTimerMeanAndPercentile(t *testing.T) {
	r := NewRegistry()
	tm := NewRegisteredTimer("ledger/append/latency", r)
	for _, d := range []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 30 * time.Millisecond} {
		tm.Update(d)
	}
	if tm.Count() != 3 {
		t.Fatalf("got %d want 3", tm.Count())
	}
	if mean := tm.Mean(); mean != float64(20*time.Millisecond) {
		t.Fatalf("got %v want %v", mean, 20*time.Millisecond)
	}
	if p := tm.Percentile(1.0); p != float64(30*time.Millisecond) {
		t.Fatalf("p100 got %v want %v", p, 30*time.Millisecond)
	}
}

func TestMeterMark(t *testing.T) {
	r := NewRegistry()
	m := NewRegisteredMeter("ledger/scrub/throughput", r)
	m.Mark(5)
	m.Mark(3)
	if m.Count() != 8 {
		t.Fatalf("got %d want 8", m.Count())
	}
}

func TestRegistryEachVisitsAll(t *testing.T) {
	r := NewRegistry()
	NewRegisteredCounter("a", r)
	NewRegisteredGauge("b", r)
	seen := map[string]bool{}
	r.Each(func(name string, _ interface{}) { seen[name] = true })
	if !seen["a"] || !seen["b"] {
		t.Fatalf("Each did not visit all registered metrics: %+v", seen)
	}
}
