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

// Package runtime is the only non-deterministic component: network I/O,
// disk I/O, clock sampling, random identifier generation, timer
// scheduling, effect execution, and client connection management all
// live here. Every value the kernel or vsr see arrives pre-sampled - this
// package timestamps commands and assigns identifiers before handing
// them down, so neither the kernel nor vsr ever touches a clock or an RNG.
package runtime

import "time"

// Clock abstracts wall-clock sampling so tests can drive Runtime with a
// fake clock instead of racing real time, the same seam vsr's Tick(now)
// parameter gives the consensus core.
type Clock interface {
	Now() time.Time
}

// systemClock is the production Clock, a thin wrapper over time.Now so
// every other caller in this package goes through the Clock interface
// rather than sampling time.Now directly.
type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the default Clock used outside of tests.
var SystemClock Clock = systemClock{}
