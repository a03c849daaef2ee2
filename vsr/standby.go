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

// DefaultStandbyPromotionThreshold bounds how far behind the cluster
// commit_number a standby may lag and still be eligible for promotion.
const DefaultStandbyPromotionThreshold = 1000

// standbyStaleAfter marks a standby unhealthy once its reports stop
// arriving for this long; refreshed by Tick.
const standbyStaleAfter = 5 * time.Second

// StandbyInfo tracks a non-voting replica that streams the committed log
// but never participates in quorums. It exists so that promotion to voter
// can skip a lengthy state transfer.
type StandbyInfo struct {
	CommitNumber common.CommitNumber
	LastSeen     time.Time
	Healthy      bool
}

// HandleStandbyReport records a standby's self-reported replication
// progress, the heartbeat-equivalent for non-voting replicas.
func (r *Replica) HandleStandbyReport(report StandbyReport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.standbys[report.Sender]
	if !ok {
		info = &StandbyInfo{}
		r.standbys[report.Sender] = info
	}
	info.CommitNumber = report.CommitNumber
	info.LastSeen = time.Now()
	info.Healthy = true
	r.refreshStandbyMetricsLocked()
}

// expireStaleStandbysLocked marks standbys unhealthy once their reports
// go quiet; called from Tick alongside the heartbeat/view-change timers.
func (r *Replica) expireStaleStandbysLocked(now time.Time) {
	if len(r.standbys) == 0 {
		return
	}
	for _, info := range r.standbys {
		if info.Healthy && now.Sub(info.LastSeen) >= standbyStaleAfter {
			info.Healthy = false
		}
	}
	r.refreshStandbyMetricsLocked()
}

// standbyLagLocked reports how many ops a standby trails the cluster
// commit_number.
func (r *Replica) standbyLagLocked(info *StandbyInfo) uint64 {
	cluster := uint64(r.commitNumber)
	reported := uint64(info.CommitNumber)
	if reported >= cluster {
		return 0
	}
	return cluster - reported
}

// refreshStandbyMetricsLocked recomputes the standby gauges: total count,
// healthy count, and the worst lag observed across all tracked standbys.
func (r *Replica) refreshStandbyMetricsLocked() {
	var healthy int
	var worstLag uint64
	for _, info := range r.standbys {
		if info.Healthy {
			healthy++
		}
		if lag := r.standbyLagLocked(info); lag > worstLag {
			worstLag = lag
		}
	}
	standbyCount.Update(int64(len(r.standbys)))
	standbyHealthy.Update(int64(healthy))
	standbyLag.Update(int64(worstLag))
}

// PromoteStandby validates that a tracked standby has caught up within
// threshold ops of the cluster commit_number and, if so, proposes adding
// it as a voting replica via reconfiguration. Per spec.md §4.10 the
// catch-up check happens before the reconfig op is ever issued.
func (r *Replica) PromoteStandby(id common.ReplicaId, threshold uint64) (common.OpNumber, error) {
	r.mu.Lock()
	info, ok := r.standbys[id]
	if !ok {
		r.mu.Unlock()
		return 0, ErrUnknownStandby
	}
	lag := r.standbyLagLocked(info)
	r.mu.Unlock()
	if lag > threshold {
		log.Warn("vsr: refusing standby promotion, not caught up", "replica", id, "lag", lag, "threshold", threshold)
		return 0, ErrStandbyNotCaughtUp
	}
	return r.ProposeReconfiguration(ReconfigAddReplica, []common.ReplicaId{id}, nil)
}
