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

// Package session implements Kimberlite's client-session table, including
// the two Viewstamped Replication paper bug fixes: a fresh ClientId per
// registration (bug 1 - successive client crashes) and a strict split
// between committed and uncommitted sessions that is discarded wholesale
// on view change (bug 2 - uncommitted table transfer).
package session

import (
	"sync"

	"github.com/google/uuid"
	"github.com/kimberlitedb/kimberlite/common"
)

// Committed is the record of a client's last completed request. It
// survives view changes by travelling in DoViewChange; the table holds it
// in memory only, so it does not survive a process restart.
type Committed struct {
	RequestNumber   common.RequestNumber
	CommittedOp     common.OpNumber
	ReplyOp         common.OpNumber
	CommitTimestamp int64
	Reply           interface{}
}

// Uncommitted tracks a request the leader has proposed but not yet
// committed. Entirely transient: wiped on every view change.
type Uncommitted struct {
	RequestNumber common.RequestNumber
	PreparingOp   common.OpNumber
}

// Table is the client-session table. It is safe for concurrent use; the
// VSR replica calls into it from both the normal-case path and the
// view-change path.
type Table struct {
	mu          sync.Mutex
	committed   map[common.ClientId]Committed
	uncommitted map[common.ClientId]Uncommitted
	maxSessions int
}

// NewTable creates a session table that evicts committed sessions once
// their count exceeds maxSessions.
func NewTable(maxSessions int) *Table {
	return &Table{
		committed:   make(map[common.ClientId]Committed),
		uncommitted: make(map[common.ClientId]Uncommitted),
		maxSessions: maxSessions,
	}
}

// Register allocates a fresh ClientId, the fix for VRR bug 1: a client
// that crashed and restarted must never reuse its old ClientId, because a
// reset request_number from the new incarnation would otherwise collide
// with a cached reply from the old one. The runtime calls this once per
// client connection/reconnection, never on every request.
func Register() common.ClientId {
	id := uuid.New()
	// Fold the 128-bit UUID down to the 64-bit ClientId space; collisions
	// are astronomically unlikely, and nothing here or in Table checks for
	// one.
	var folded uint64
	for i := 0; i < 8; i++ {
		folded = folded<<8 | uint64(id[i]^id[i+8])
	}
	return common.ClientId(folded)
}

// Lookup returns the committed entry for client, if any. Used to detect a
// duplicate request before proposing it again to the cluster.
func (t *Table) Lookup(client common.ClientId) (Committed, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.committed[client]
	return c, ok
}

// CheckRequest validates request monotonicity (RequestNumberMonotonic):
// returns true if req is a duplicate of the already-committed request
// (caller should reply from cache), false if req is new and may proceed,
// and stale == true if req is less than the committed request number,
// which would break monotonicity.
func (t *Table) CheckRequest(client common.ClientId, req common.RequestNumber) (isDuplicate bool, stale bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.committed[client]; ok {
		if req == c.RequestNumber {
			return true, false
		}
		if req < c.RequestNumber {
			return false, true
		}
	}
	return false, false
}

// Prepare records an uncommitted entry for a proposed request. The runtime
// calls it after Replica.Propose has returned the request's op number.
func (t *Table) Prepare(client common.ClientId, req common.RequestNumber, op common.OpNumber) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.uncommitted[client] = Uncommitted{RequestNumber: req, PreparingOp: op}
}

// Commit promotes an uncommitted entry to committed once quorum is
// reached, then applies DeterministicEviction if the committed set now
// exceeds maxSessions.
func (t *Table) Commit(client common.ClientId, req common.RequestNumber, op common.OpNumber, commitTimestamp int64, reply interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.uncommitted, client)
	t.committed[client] = Committed{
		RequestNumber:   req,
		CommittedOp:     op,
		ReplyOp:         op,
		CommitTimestamp: commitTimestamp,
		Reply:           reply,
	}
	t.evictLocked()
}

// DiscardUncommitted wipes the entire uncommitted table - the fix for VRR
// bug 2. Called exactly once, when a replica enters ViewChange status.
func (t *Table) DiscardUncommitted() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.uncommitted = make(map[common.ClientId]Uncommitted)
}

// UncommittedCount reports the size of the transient table, which
// NoClientLockout requires to be zero immediately after a view change.
func (t *Table) UncommittedCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.uncommitted)
}

// CommittedSessions returns a snapshot of the committed table for
// inclusion in a DoViewChange message. Uncommitted sessions are never
// included - that's the entire point of bug 2's fix.
func (t *Table) CommittedSessions() map[common.ClientId]Committed {
	t.mu.Lock()
	defer t.mu.Unlock()
	snap := make(map[common.ClientId]Committed, len(t.committed))
	for k, v := range t.committed {
		snap[k] = v
	}
	return snap
}

// AdoptCommittedSessions replaces the committed table wholesale. The new
// leader calls it with the sessions merged from the DoViewChange messages;
// followers handling StartView do not call it.
func (t *Table) AdoptCommittedSessions(sessions map[common.ClientId]Committed) {
	t.mu.Lock()
	defer t.mu.Unlock()
	merged := make(map[common.ClientId]Committed, len(sessions))
	for k, v := range sessions {
		merged[k] = v
	}
	t.committed = merged
	t.evictLocked()
}

// evictLocked implements DeterministicEviction: while over budget, evict
// the committed session with the smallest commit_timestamp, ties broken
// by the smaller ClientId. Every replica computes this identically given
// an equal session set.
func (t *Table) evictLocked() {
	for len(t.committed) > t.maxSessions && t.maxSessions > 0 {
		var victim common.ClientId
		var victimEntry Committed
		first := true
		for id, entry := range t.committed {
			if first || entry.CommitTimestamp < victimEntry.CommitTimestamp ||
				(entry.CommitTimestamp == victimEntry.CommitTimestamp && id < victim) {
				victim, victimEntry, first = id, entry, false
			}
		}
		if first {
			return
		}
		delete(t.committed, victim)
	}
}
