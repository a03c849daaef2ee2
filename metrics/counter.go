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

import "sync/atomic"

// Counter is a monotonic, cumulative count, e.g. vsr/prepare/total.
type Counter interface {
	Inc(delta int64)
	Count() int64
}

type counter struct {
	count atomic.Int64
}

func (c *counter) Inc(delta int64) { c.count.Add(delta) }
func (c *counter) Count() int64    { return c.count.Load() }

// NewRegisteredCounter creates a Counter and registers it under name in r
// (or DefaultRegistry when r is nil), matching the teacher's call signature.
func NewRegisteredCounter(name string, r Registry) Counter {
	c := &counter{}
	registryOrDefault(r).Register(name, c)
	return c
}
