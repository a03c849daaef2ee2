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

// Package metrics provides the same NewRegisteredCounter/Gauge/Timer/Meter
// call style the teacher's daemon and consumer code uses throughout (see
// cmd/ubtconv/metrics.go, core/ubtemit/metrics.go), backed by a small
// in-process registry that the metrics/prometheus and metrics/statsd
// subpackages can export.
package metrics

import "sync"

// Enabled mirrors the teacher's --metrics switch. Nothing in the module
// reads it: constructors and instruments record regardless of its value.
var Enabled = true

// Registry collects named metrics so an exporter can walk them.
type Registry interface {
	Register(name string, metric interface{}) error
	Each(func(name string, metric interface{}))
	Get(name string) interface{}
}

type registry struct {
	mu      sync.RWMutex
	metrics map[string]interface{}
}

// NewRegistry creates a standalone Registry, e.g. for tests that must not
// pollute DefaultRegistry.
func NewRegistry() Registry {
	return &registry{metrics: make(map[string]interface{})}
}

func (r *registry) Register(name string, metric interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.metrics[name]; ok {
		return nil
	}
	r.metrics[name] = metric
	return nil
}

func (r *registry) Each(f func(name string, metric interface{})) {
	r.mu.RLock()
	snapshot := make(map[string]interface{}, len(r.metrics))
	for k, v := range r.metrics {
		snapshot[k] = v
	}
	r.mu.RUnlock()
	for k, v := range snapshot {
		f(k, v)
	}
}

func (r *registry) Get(name string) interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.metrics[name]
}

// DefaultRegistry is the registry every NewRegistered* helper writes into
// unless a caller passes its own Registry, mirroring the teacher's
// metrics.DefaultRegistry / "nil means default" convention.
var DefaultRegistry = NewRegistry()

func registryOrDefault(r Registry) Registry {
	if r == nil {
		return DefaultRegistry
	}
	return r
}
