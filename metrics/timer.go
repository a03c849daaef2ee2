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
	"sort"
	"sync"
	"time"
)

// Timer tracks the distribution of a duration, e.g. vsr/prepare/latency or
// ledger/append/fsync/latency, the way the teacher times its consumer's
// apply/commit/read stages.
type Timer interface {
	Update(d time.Duration)
	UpdateSince(start time.Time)
	Count() int64
	Mean() float64
	Percentile(p float64) float64
}

// timerSampleCap bounds the reservoir so a hot path's timer never grows
// unbounded memory; recent samples evict the oldest once full.
const timerSampleCap = 1024

type timer struct {
	mu      sync.Mutex
	count   int64
	sum     time.Duration
	samples []time.Duration
	cursor  int
}

func (t *timer) Update(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.count++
	t.sum += d
	if len(t.samples) < timerSampleCap {
		t.samples = append(t.samples, d)
	} else {
		t.samples[t.cursor] = d
		t.cursor = (t.cursor + 1) % timerSampleCap
	}
}

func (t *timer) UpdateSince(start time.Time) { t.Update(time.Since(start)) }

func (t *timer) Count() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}

func (t *timer) Mean() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.count == 0 {
		return 0
	}
	return float64(t.sum) / float64(t.count)
}

// Percentile returns the p-th percentile (0..1) of the retained sample
// reservoir, e.g. Percentile(0.99) for p99 prepare latency.
func (t *timer) Percentile(p float64) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.samples) == 0 {
		return 0
	}
	sorted := make([]time.Duration, len(t.samples))
	copy(sorted, t.samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(p * float64(len(sorted)-1))
	return float64(sorted[idx])
}

// NewRegisteredTimer creates a Timer and registers it under name.
func NewRegisteredTimer(name string, r Registry) Timer {
	t := &timer{}
	registryOrDefault(r).Register(name, t)
	return t
}
