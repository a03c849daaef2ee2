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

package ledger

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/kimberlitedb/kimberlite/metrics"
)

// ErrRepairBudgetExhausted is returned by Acquire when no credits remain
// or every inflight slot is taken. Nothing in the module retries on it.
var ErrRepairBudgetExhausted = errors.New("ledger: repair budget exhausted")

var (
	repairBudgetAvailable = metrics.NewRegisteredGauge("repair_budget_available", nil)
	repairEWMALatencyMs   = metrics.NewRegisteredGaugeFloat64("repair_ewma_latency_ms", nil)
	repairInflightCount   = metrics.NewRegisteredGauge("repair_inflight_count", nil)
)

// repairEWMAAlpha weights the EWMA of observed per-peer repair latency:
// each new sample contributes 30%, so a run of slow repairs is reflected
// within a handful of samples without reacting fully to a single outlier.
// It is larger than the metrics package's 1-minute meter alpha (~0.08).
const repairEWMAAlpha = 0.3

// RepairBudget is a per-replica credit pool for outbound repair requests,
// per spec.md §4.7: Acquire takes one credit, credits regenerate at a rate
// tracked via an EWMA of observed peer latency, and concurrent inflight
// requests are bounded independent of credits. The runtime only calls
// Tick; vsr.Replica sends Repair messages without calling Acquire or
// Release, so outbound repairs are not gated by the pool.
type RepairBudget struct {
	mu sync.Mutex

	capacity     int64
	available    int64
	ewmaLatency  float64 // milliseconds; 0 until the first sample arrives
	maxInflight  int64
	inflight     int64
	lastRegen    time.Time
	regenPerTick int64
}

// NewRepairBudget creates a pool with capacity credits, regenerating a
// base of one credit every time Tick is called (scaled by observed
// latency, see Tick), and allowing at most maxInflight concurrent
// outbound repair requests.
func NewRepairBudget(capacity int, maxInflight int) *RepairBudget {
	rb := &RepairBudget{
		capacity:     int64(capacity),
		available:    int64(capacity),
		maxInflight:  int64(maxInflight),
		regenPerTick: 1,
		lastRegen:    time.Time{},
	}
	repairBudgetAvailable.Update(rb.available)
	return rb
}

// Acquire reserves one credit and one inflight slot for an outbound repair
// request. Callers must call Release when the request completes (success
// or failure) with the observed round-trip latency.
func (rb *RepairBudget) Acquire() error {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	if rb.available <= 0 {
		return ErrRepairBudgetExhausted
	}
	if rb.inflight >= rb.maxInflight {
		return ErrRepairBudgetExhausted
	}
	rb.available--
	rb.inflight++
	repairBudgetAvailable.Update(rb.available)
	repairInflightCount.Update(rb.inflight)
	return nil
}

// Release records the observed latency of a completed (or abandoned)
// repair request, folding it into the EWMA that governs regeneration rate,
// and frees the inflight slot.
func (rb *RepairBudget) Release(latency time.Duration) {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.inflight--
	if rb.inflight < 0 {
		rb.inflight = 0
	}
	ms := float64(latency) / float64(time.Millisecond)
	if rb.ewmaLatency == 0 {
		rb.ewmaLatency = ms
	} else {
		rb.ewmaLatency = repairEWMAAlpha*ms + (1-repairEWMAAlpha)*rb.ewmaLatency
	}
	repairInflightCount.Update(rb.inflight)
	repairEWMALatencyMs.Update(rb.ewmaLatency)
}

// Tick regenerates credits; faster observed peer latency (a healthier
// cluster) regenerates credits faster, up to capacity. Callers run this on
// a fixed interval (e.g. once per heartbeat).
func (rb *RepairBudget) Tick() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	if rb.available >= rb.capacity {
		return
	}
	regen := rb.regenPerTick
	if rb.ewmaLatency > 0 {
		// Healthy (low-latency) peers earn faster regeneration: the base
		// rate is scaled by 50ms / EWMA (25ms doubles it, 10ms gives five
		// times it) and never drops below one credit per tick.
		factor := 50.0 / math.Max(rb.ewmaLatency, 1.0)
		regen = int64(math.Max(1, math.Round(float64(rb.regenPerTick)*factor)))
	}
	rb.available += regen
	if rb.available > rb.capacity {
		rb.available = rb.capacity
	}
	repairBudgetAvailable.Update(rb.available)
}

// Available reports the current credit count, for operator/diagnostic use.
func (rb *RepairBudget) Available() int64 {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.available
}

// EWMALatencyMs reports the current EWMA of observed repair latency.
func (rb *RepairBudget) EWMALatencyMs() float64 {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.ewmaLatency
}
