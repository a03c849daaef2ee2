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
	"github.com/kimberlitedb/kimberlite/log"
)

// StartRecovery is called by the runtime after restart, before the replica
// has decided whether its replayed durable log is current. Per spec.md
// §4.6 a recovering replica rejects client requests and polls every peer
// for its view and commit position.
func (r *Replica) StartRecovery() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = StatusRecovering
	r.recoveryResponses = make(map[common.ReplicaId]RecoveryResponse)
	r.recoveryStarted = time.Now()
	peers := otherMembers(r.reconfig.LeaderConfig(), r.id)
	r.transport.Broadcast(peers, RecoveryRequest{View: r.view, Sender: r.id})
	log.Info("vsr: entering recovery", "replica", r.id)
}

// HandleRecoveryRequest answers with the current view and commit
// position. A replica that is itself recovering cannot usefully answer
// and stays silent; the requester simply waits for enough other replies.
func (r *Replica) HandleRecoveryRequest(req RecoveryRequest) {
	r.mu.Lock()
	if r.status == StatusRecovering {
		r.mu.Unlock()
		return
	}
	resp := RecoveryResponse{View: r.view, CommitNumber: r.commitNumber, Sender: r.id}
	r.mu.Unlock()
	r.transport.Send(req.Sender, resp)
}

// HandleRecoveryResponse accumulates peer replies and, once a quorum has
// answered, either declares recovery complete (the replayed log already
// covers the cluster's commit position) or begins a targeted state
// transfer for the missing suffix.
func (r *Replica) HandleRecoveryResponse(resp RecoveryResponse) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status != StatusRecovering {
		return
	}
	r.recoveryResponses[resp.Sender] = resp

	cfg := r.reconfig.LeaderConfig()
	if len(r.recoveryResponses) < QuorumSize(cfg.Size()) {
		return
	}

	var best RecoveryResponse
	for _, rr := range r.recoveryResponses {
		if rr.CommitNumber > best.CommitNumber || (rr.CommitNumber == best.CommitNumber && rr.View > best.View) {
			best = rr
		}
	}
	if best.View > r.view {
		r.view = best.View
	}
	if common.OpNumber(best.CommitNumber) <= r.lastOp {
		r.finishRecoveryLocked()
		return
	}

	r.status = StatusStateTransfer
	r.stateTransferTarget = common.OpNumber(best.CommitNumber)
	r.transport.Send(best.Sender, Repair{FromOp: r.lastOp + 1, ToOp: r.stateTransferTarget, Sender: r.id})
	log.Info("vsr: recovery requires state transfer", "replica", r.id, "from", r.lastOp+1, "to", r.stateTransferTarget)
}

// finishRecoveryLocked returns the replica to Normal status once its log
// is known to cover the cluster's commit position.
func (r *Replica) finishRecoveryLocked() {
	wasStateTransfer := r.status == StatusStateTransfer
	r.catchUpCommitsLocked(common.CommitNumber(r.lastOp))
	r.status = StatusNormal
	r.lastHeartbeatSeen = time.Now()
	r.recoveryResponses = make(map[common.ReplicaId]RecoveryResponse)
	if !r.recoveryStarted.IsZero() {
		if wasStateTransfer {
			stateTransferLat.UpdateSince(r.recoveryStarted)
		} else {
			recoveryLatency.UpdateSince(r.recoveryStarted)
		}
		r.recoveryStarted = time.Time{}
	}
	log.Info("vsr: recovery complete", "replica", r.id, "view", r.view, "commit", r.commitNumber)
}
