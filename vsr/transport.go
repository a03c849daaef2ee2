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

import "github.com/kimberlitedb/kimberlite/common"

// Transport sends protocol messages to peers. The runtime supplies the
// implementation (real network I/O); vsr only ever calls through this
// interface, keeping the consensus core free of sockets and goroutines.
type Transport interface {
	Send(to common.ReplicaId, msg interface{}) error
	Broadcast(to []common.ReplicaId, msg interface{})
}
