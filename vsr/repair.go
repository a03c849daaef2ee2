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

import (
	"time"

	"github.com/kimberlitedb/kimberlite/common"
)

// HandleRepair answers a peer's request for a range of log entries, used
// both for normal-case gap filling (HandlePrepare) and state transfer
// (recovery.go). Answers only with the contiguous entries the replica
// holds from FromOp, stopping at the first gap; HandleRepairResponse does
// not request the remainder again.
func (r *Replica) HandleRepair(req Repair) {
	r.mu.Lock()
	entries := make([]LogEntry, 0, int(req.ToOp-req.FromOp)+1)
	for op := req.FromOp; op <= req.ToOp; op++ {
		entry, ok := r.opLog[op]
		if !ok {
			break
		}
		entries = append(entries, entry)
	}
	r.mu.Unlock()
	if len(entries) == 0 {
		return
	}
	r.transport.Send(req.Sender, RepairResponse{Entries: entries, Sender: r.id})
}

// HandleRepairResponse installs repaired entries into the log and, when
// the replica is mid recovery or state transfer, advances that process.
func (r *Replica) HandleRepairResponse(resp RepairResponse) {
	start := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, entry := range resp.Entries {
		r.opLog[entry.Op] = entry
		if entry.Op > r.lastOp {
			r.lastOp = entry.Op
		}
	}
	if r.status != StatusStateTransfer && r.status != StatusRecovering {
		repairLatency.UpdateSince(start)
		return
	}
	r.catchUpCommitsLocked(common.CommitNumber(r.stateTransferTarget))
	if r.lastOp >= r.stateTransferTarget {
		r.finishRecoveryLocked()
	}
	repairLatency.UpdateSince(start)
}
