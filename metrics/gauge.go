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
	"sync"
	"sync/atomic"
)

// Gauge is a point-in-time value that can move in either direction, e.g.
// vsr/view/current or ledger/repair/budget/tokens.
type Gauge interface {
	Update(value int64)
	Value() int64
}

type gauge struct {
	value atomic.Int64
}

func (g *gauge) Update(value int64) { g.value.Store(value) }
func (g *gauge) Value() int64       { return g.value.Load() }

// NewRegisteredGauge creates a Gauge and registers it under name.
func NewRegisteredGauge(name string, r Registry) Gauge {
	g := &gauge{}
	registryOrDefault(r).Register(name, g)
	return g
}

// GaugeFloat64 is Gauge's floating-point counterpart, used for ratios like
// scrub coverage or repair-budget utilization.
type GaugeFloat64 interface {
	Update(value float64)
	Value() float64
}

type gaugeFloat64 struct {
	mu    sync.RWMutex
	value float64
}

func (g *gaugeFloat64) Update(value float64) {
	g.mu.Lock()
	g.value = value
	g.mu.Unlock()
}
func (g *gaugeFloat64) Value() float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.value
}

// NewRegisteredGaugeFloat64 creates a GaugeFloat64 and registers it under name.
func NewRegisteredGaugeFloat64(name string, r Registry) GaugeFloat64 {
	g := &gaugeFloat64{}
	registryOrDefault(r).Register(name, g)
	return g
}
