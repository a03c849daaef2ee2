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
	"math"
	"sync"
	"time"
)

// Meter tracks an event rate with an exponentially-weighted moving average,
// e.g. vsr/commit/rate or ledger/scrub/throughput, mirroring the teacher's
// daemonReplayBlocksPerSec meter.
type Meter interface {
	Mark(n int64)
	Count() int64
	Rate1() float64
}

// meterTickInterval matches the 5-second EWMA tick used by go-ethereum's
// metrics library (ewma.NewMovingAverage(5)).
const meterTickInterval = 5 * time.Second

// meter1MinuteAlpha is the standard Unix load-average alpha for a 1-minute
// EWMA sampled every 5 seconds: 1 - e^(-5/60).
var meter1MinuteAlpha = 1 - math.Exp(-float64(meterTickInterval)/float64(time.Minute))

type meter struct {
	mu        sync.Mutex
	count     int64
	uncounted int64
	rate1     float64
	lastTick  time.Time
	init      bool
}

func newMeter() *meter {
	return &meter{lastTick: time.Time{}}
}

func (m *meter) Mark(n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tick()
	m.count += n
	m.uncounted += n
}

func (m *meter) Count() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}

func (m *meter) Rate1() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tick()
	return m.rate1
}

// tick folds elapsed whole ticks into the EWMA; called under m.mu.
func (m *meter) tick() {
	now := time.Now()
	if !m.init {
		m.lastTick = now
		m.init = true
		return
	}
	elapsed := now.Sub(m.lastTick)
	ticks := int(elapsed / meterTickInterval)
	if ticks == 0 {
		return
	}
	instantRatePerSec := float64(m.uncounted) / meterTickInterval.Seconds()
	m.uncounted = 0
	for i := 0; i < ticks; i++ {
		if i == 0 {
			m.rate1 += meter1MinuteAlpha * (instantRatePerSec - m.rate1)
		} else {
			m.rate1 += meter1MinuteAlpha * (0 - m.rate1)
		}
	}
	m.lastTick = m.lastTick.Add(time.Duration(ticks) * meterTickInterval)
}

// NewRegisteredMeter creates a Meter and registers it under name.
func NewRegisteredMeter(name string, r Registry) Meter {
	m := newMeter()
	registryOrDefault(r).Register(name, m)
	return m
}
