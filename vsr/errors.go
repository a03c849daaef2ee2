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

package vsr

import "errors"

var (
	ErrNotLeader              = errors.New("vsr: replica is not the leader for its current view")
	ErrWrongStatus            = errors.New("vsr: replica is not in a status that permits this operation")
	ErrStaleView              = errors.New("vsr: message view is stale")
	ErrReconfigInFlight       = errors.New("vsr: a reconfiguration is already in flight")
	ErrReconfigWouldBeEven    = errors.New("vsr: reconfiguration would make cluster size even")
	ErrReconfigEmptyCluster   = errors.New("vsr: reconfiguration would leave the cluster empty")
	ErrReconfigDuplicate      = errors.New("vsr: reconfiguration duplicates an existing member")
	ErrQuorumImpossible       = errors.New("vsr: vote count exceeds cluster size")
	ErrStandbyNotCaughtUp     = errors.New("vsr: standby has not caught up to the promotion threshold")
	ErrUnknownStandby         = errors.New("vsr: unknown standby replica")
)
