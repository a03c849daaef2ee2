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

// beginViewChangeLocked is the timeout-triggered entry point: advance to
// new_view = current_view + 1.
func (r *Replica) beginViewChangeLocked(now time.Time) {
	r.enterViewChangeLocked(r.view + 1)
}

// startViewChangeLocked is the entry point triggered by observing a
// message carrying a view greater than our own.
func (r *Replica) startViewChangeLocked(newView common.ViewNumber) {
	r.enterViewChangeLocked(newView)
}

// enterViewChangeLocked implements step 1 of spec.md §4.5: advance view,
// stop accepting client requests, discard uncommitted sessions (VRR bug
// 2), and broadcast StartViewChange.
func (r *Replica) enterViewChangeLocked(newView common.ViewNumber) {
	if newView <= r.view && r.status == StatusViewChange {
		return
	}
	r.view = newView
	r.status = StatusViewChange
	r.sessions.DiscardUncommitted()
	log.Info("vsr: entering view change", "replica", r.id, "view", newView)

	if r.startViewChangeVotes[newView] == nil {
		r.startViewChangeVotes[newView] = make(map[common.ReplicaId]bool)
	}
	r.startViewChangeVotes[newView][r.id] = true

	peers := otherMembers(r.reconfig.LeaderConfig(), r.id)
	r.transport.Broadcast(peers, StartViewChange{NewView: newView, Sender: r.id})
}

// HandleStartViewChange implements step 2: once a quorum of
// StartViewChange for new_view is observed, send DoViewChange to the
// prospective new leader.
func (r *Replica) HandleStartViewChange(svc StartViewChange) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if svc.NewView > r.view {
		r.enterViewChangeLocked(svc.NewView)
	} else if svc.NewView < r.view {
		return
	}

	if r.startViewChangeVotes[svc.NewView] == nil {
		r.startViewChangeVotes[svc.NewView] = make(map[common.ReplicaId]bool)
	}
	r.startViewChangeVotes[svc.NewView][svc.Sender] = true

	cfg := r.reconfig.LeaderConfig()
	if len(r.startViewChangeVotes[svc.NewView]) < QuorumSize(cfg.Size()) {
		return
	}

	leader := cfg.LeaderFor(svc.NewView)
	dvc := DoViewChange{
		NewView:           svc.NewView,
		Log:               r.sortedLogLocked(),
		CommitNumber:      r.commitNumber,
		ReconfigState:     r.reconfig,
		CommittedSessions: r.sessions.CommittedSessions(),
		Sender:            r.id,
	}
	if leader == r.id {
		r.handleDoViewChangeLocked(dvc)
		return
	}
	r.transport.Send(leader, dvc)
}

// sortedLogLocked returns the in-memory prepare log as a slice ordered by
// OpNumber, the form DoViewChange and StartView carry on the wire.
func (r *Replica) sortedLogLocked() []LogEntry {
	out := make([]LogEntry, 0, len(r.opLog))
	for op := common.OpNumber(1); op <= r.lastOp; op++ {
		if entry, ok := r.opLog[op]; ok {
			out = append(out, entry)
		}
	}
	return out
}

// HandleDoViewChange is the entry point a prospective leader's transport
// layer calls on receiving a DoViewChange from a peer.
func (r *Replica) HandleDoViewChange(dvc DoViewChange) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handleDoViewChangeLocked(dvc)
}

func (r *Replica) handleDoViewChangeLocked(dvc DoViewChange) {
	if dvc.NewView < r.view {
		return
	}
	if r.doViewChangeMsgs[dvc.NewView] == nil {
		r.doViewChangeMsgs[dvc.NewView] = make(map[common.ReplicaId]DoViewChange)
	}
	// Keyed by sender so a replica resending DoViewChange (e.g. after
	// observing additional StartViewChange votes) never counts twice
	// toward quorum.
	r.doViewChangeMsgs[dvc.NewView][dvc.Sender] = dvc

	cfg := r.reconfig.LeaderConfig()
	if len(r.doViewChangeMsgs[dvc.NewView]) < QuorumSize(cfg.Size()) {
		return
	}
	if cfg.LeaderFor(dvc.NewView) != r.id {
		return // not actually the prospective leader; ignore
	}

	msgs := make([]DoViewChange, 0, len(r.doViewChangeMsgs[dvc.NewView]))
	for _, m := range r.doViewChangeMsgs[dvc.NewView] {
		msgs = append(msgs, m)
	}

	start := time.Now()
	basis := chooseBasis(msgs)
	mergedLog := mergeLogs(msgs)
	mergedSessions := basis.CommittedSessions

	r.view = dvc.NewView
	r.status = StatusNormal
	r.opLog = make(map[common.OpNumber]LogEntry, len(mergedLog))
	r.lastOp = 0
	for _, entry := range mergedLog {
		r.opLog[entry.Op] = entry
		if entry.Op > r.lastOp {
			r.lastOp = entry.Op
		}
	}
	r.catchUpCommitsLocked(basis.CommitNumber)
	if basis.ReconfigState.Phase == PhaseJoint {
		r.reconfig = basis.ReconfigState
	}
	r.sessions.AdoptCommittedSessions(mergedSessions)
	delete(r.startViewChangeVotes, dvc.NewView)
	delete(r.doViewChangeMsgs, dvc.NewView)
	r.prepareVotes = make(map[common.OpNumber]map[common.ReplicaId]bool)

	log.Info("vsr: completed view change as new leader", "replica", r.id, "view", r.view, "commit", r.commitNumber)
	peers := otherMembers(r.reconfig.LeaderConfig(), r.id)
	r.transport.Broadcast(peers, StartView{NewView: r.view, Log: r.sortedLogLocked(), CommitNumber: r.commitNumber, Sender: r.id})
	viewChangeLatency.UpdateSince(start)
}

// chooseBasis picks the DoViewChange with the largest (commit_number,
// last_op) pair, per spec.md §4.5 step 3.
func chooseBasis(msgs []DoViewChange) DoViewChange {
	best := msgs[0]
	bestLastOp := lastOpOf(best.Log)
	for _, m := range msgs[1:] {
		lastOp := lastOpOf(m.Log)
		if m.CommitNumber > best.CommitNumber || (m.CommitNumber == best.CommitNumber && lastOp > bestLastOp) {
			best, bestLastOp = m, lastOp
		}
	}
	return best
}

func lastOpOf(log []LogEntry) common.OpNumber {
	var max common.OpNumber
	for _, e := range log {
		if e.Op > max {
			max = e.Op
		}
	}
	return max
}

// mergeLogs unions every DoViewChange's log by OpNumber. Where two
// replicas report different commands at the same op (only possible for
// never-committed, speculative entries from a stale leader), the entry
// prepared in the highest view (LogEntry.View) wins; on equal views the
// first one seen is kept - the safety rule that commits
// from view v survive into v+1 because every correct replica in the
// quorum already holds them identically.
func mergeLogs(msgs []DoViewChange) []LogEntry {
	merged := make(map[common.OpNumber]LogEntry)
	for _, m := range msgs {
		for _, entry := range m.Log {
			existing, ok := merged[entry.Op]
			if !ok || entry.View > existing.View {
				merged[entry.Op] = entry
			}
		}
	}
	out := make([]LogEntry, 0, len(merged))
	for _, entry := range merged {
		out = append(out, entry)
	}
	return out
}
