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
	"testing"
	"time"
)

func TestRepairBudgetAcquireExhaustion(t *testing.T) {
	rb := NewRepairBudget(2, 10)
	if err := rb.Acquire(); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if err := rb.Acquire(); err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if err := rb.Acquire(); err != ErrRepairBudgetExhausted {
		t.Fatalf("expected ErrRepairBudgetExhausted, got %v", err)
	}
}

func TestRepairBudgetInflightBound(t *testing.T) {
	rb := NewRepairBudget(10, 1)
	if err := rb.Acquire(); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if err := rb.Acquire(); err != ErrRepairBudgetExhausted {
		t.Fatalf("expected inflight bound to reject second acquire, got %v", err)
	}
	rb.Release(5 * time.Millisecond)
	if err := rb.Acquire(); err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
}

func TestRepairBudgetEWMATracksLatency(t *testing.T) {
	rb := NewRepairBudget(5, 5)
	rb.Acquire()
	rb.Release(100 * time.Millisecond)
	first := rb.EWMALatencyMs()
	if first != 100 {
		t.Fatalf("first sample should set EWMA directly: got %f", first)
	}
	rb.Acquire()
	rb.Release(0 * time.Millisecond)
	second := rb.EWMALatencyMs()
	if second >= first {
		t.Fatalf("EWMA should decrease toward a lower sample: got %f, had %f", second, first)
	}
}

func TestRepairBudgetTickRegenerates(t *testing.T) {
	rb := NewRepairBudget(3, 3)
	rb.Acquire()
	rb.Acquire()
	if rb.Available() != 1 {
		t.Fatalf("expected 1 credit available, got %d", rb.Available())
	}
	rb.Tick()
	if rb.Available() <= 1 {
		t.Fatalf("Tick should regenerate at least one credit, got %d", rb.Available())
	}
}

func TestRepairBudgetTickCapsAtCapacity(t *testing.T) {
	rb := NewRepairBudget(3, 3)
	rb.Tick()
	rb.Tick()
	rb.Tick()
	if rb.Available() != 3 {
		t.Fatalf("regeneration must not exceed capacity: got %d", rb.Available())
	}
}
