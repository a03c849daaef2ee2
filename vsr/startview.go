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

// HandleStartView implements step 4 of spec.md §4.5: a follower adopts the
// new leader's merged log, sets status back to Normal, and resumes
// accepting client requests.
func (r *Replica) HandleStartView(sv StartView) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sv.NewView < r.view {
		return
	}
	r.view = sv.NewView
	r.opLog = make(map[common.OpNumber]LogEntry, len(sv.Log))
	r.lastOp = 0
	for _, entry := range sv.Log {
		r.opLog[entry.Op] = entry
		if entry.Op > r.lastOp {
			r.lastOp = entry.Op
		}
	}
	r.catchUpCommitsLocked(sv.CommitNumber)
	if r.commitNumber != sv.CommitNumber {
		log.Warn("vsr: StartView log did not cover the advertised commit_number", "replica", r.id, "got", r.commitNumber, "want", sv.CommitNumber)
	}
	r.status = StatusNormal
	r.lastHeartbeatSeen = time.Now()
	delete(r.startViewChangeVotes, sv.NewView)
	delete(r.doViewChangeMsgs, sv.NewView)

	log.Info("vsr: adopted new view", "replica", r.id, "view", r.view, "commit", r.commitNumber)
}
