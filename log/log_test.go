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

package log

import (
	"strings"
	"sync"
	"testing"
)

type captureHandler struct {
	mu      sync.Mutex
	records []Record
}

func (h *captureHandler) Log(r Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r)
	return nil
}

func TestLevelFiltering(t *testing.T) {
	h := &captureHandler{}
	l := NewLogger(h, LevelWarn)
	l.Info("should be dropped")
	l.Warn("should be kept")
	if len(h.records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(h.records))
	}
	if h.records[0].Msg != "should be kept" {
		t.Fatalf("unexpected record: %+v", h.records[0])
	}
}

func TestWithMergesContext(t *testing.T) {
	h := &captureHandler{}
	l := NewLogger(h, LevelInfo).With("replica", 1)
	l.Info("prepared", "op", 5)
	if len(h.records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(h.records))
	}
	ctx := h.records[0].Ctx
	if len(ctx) != 4 || ctx[0] != "replica" || ctx[2] != "op" {
		t.Fatalf("unexpected merged context: %+v", ctx)
	}
}

func TestFormatCtxOddLength(t *testing.T) {
	s := formatCtx([]interface{}{"key"})
	if !strings.Contains(s, "MISSING") {
		t.Fatalf("expected MISSING marker, got %q", s)
	}
}
