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
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/kimberlitedb/kimberlite/common"
	"github.com/kimberlitedb/kimberlite/kernel"
	"github.com/kimberlitedb/kimberlite/log"
	"github.com/kimberlitedb/kimberlite/metrics"
)

// reconfigTransitionsTotal counts Joint->Stable reconfiguration
// completions, the point at which a membership change is fully absorbed.
var reconfigTransitionsTotal = metrics.NewRegisteredCounter("vsr_reconfig_transitions_total", nil)

// ProposeReconfiguration validates and proposes a membership change,
// returning the op number of the joint-entry op so a caller (the admin
// endpoint) can await its commit. It implements only the first half of
// spec.md §4.9's two-phase state machine - entering Joint{C_old, C_new};
// once that op commits, applyReconfigCommittedLocked automatically
// proposes the second op that leaves Joint for Stable{C_new}.
func (r *Replica) ProposeReconfiguration(kind ReconfigKind, add, remove []common.ReplicaId) (common.OpNumber, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.isLeaderLocked() {
		return 0, ErrNotLeader
	}
	if r.status != StatusNormal {
		return 0, ErrWrongStatus
	}
	if r.reconfig.Phase != PhaseStable {
		return 0, ErrReconfigInFlight
	}

	newCfg, err := computeReconfiguredMembers(r.reconfig.Old, add, remove)
	if err != nil {
		return 0, err
	}

	op, err := r.proposeLocked(kernel.Command{}, common.Hash{}, &ReconfigPayload{Kind: kind, CommitJointTo: newCfg})
	if err != nil {
		return 0, err
	}
	log.Info("vsr: proposed reconfiguration", "replica", r.id, "kind", kind, "add", add, "remove", remove)
	return op, nil
}

// computeReconfiguredMembers applies add/remove to old's membership and
// validates the result: no duplicate adds, no removing a non-member, a
// non-empty cluster, and an odd resulting size (VSR requires odd-sized
// configs so quorums always have a well-defined majority).
func computeReconfiguredMembers(old Config, add, remove []common.ReplicaId) (Config, error) {
	members := mapset.NewThreadUnsafeSet(old.Members...)
	for _, a := range add {
		if members.Contains(a) {
			return Config{}, ErrReconfigDuplicate
		}
		members.Add(a)
	}
	for _, rm := range remove {
		if !members.Contains(rm) {
			return Config{}, ErrReconfigDuplicate
		}
		members.Remove(rm)
	}
	if members.Cardinality() == 0 {
		return Config{}, ErrReconfigEmptyCluster
	}
	if members.Cardinality()%2 == 0 {
		return Config{}, ErrReconfigWouldBeEven
	}
	return NewConfig(members.ToSlice())
}

// applyReconfigCommittedLocked advances the reconfiguration state machine
// on commit of a membership-change op: entering Joint on the first op,
// and completing the transition to the new Stable config on the second.
// The leader that drove the first op also drives the second, since it is
// the only replica guaranteed to still be leader under both the old and
// the (about to become current) new configuration's quorum rule.
func (r *Replica) applyReconfigCommittedLocked(payload *ReconfigPayload, op common.OpNumber) {
	switch {
	case payload.CommitJointTo.Size() > 0:
		r.reconfig = ReconfigState{Phase: PhaseJoint, Old: r.reconfig.Old, New: payload.CommitJointTo, JointOp: op}
		log.Info("vsr: entered joint consensus", "replica", r.id, "joint_op", op, "new", payload.CommitJointTo.Members)
		if r.isLeaderLocked() {
			if _, err := r.proposeLocked(kernel.Command{}, common.Hash{}, &ReconfigPayload{Kind: payload.Kind, CommitNewTo: payload.CommitJointTo}); err != nil {
				log.Error("vsr: failed to propose joint-exit reconfiguration", "replica", r.id, "err", err)
			}
		}
	case payload.CommitNewTo.Size() > 0:
		r.reconfig = ReconfigState{Phase: PhaseStable, Old: payload.CommitNewTo}
		reconfigTransitionsTotal.Inc(1)
		log.Info("vsr: left joint consensus", "replica", r.id, "members", payload.CommitNewTo.Members)
	}
}
