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
	"fmt"
	"sort"

	"github.com/kimberlitedb/kimberlite/common"
)

// Config is a cluster membership: the set of replicas that vote in
// quorums. Members is kept in ascending id order, so every replica given
// the same set agrees on LeaderFor.
type Config struct {
	Members []common.ReplicaId
}

// NewConfig builds a Config, rejecting duplicate members and sorting a copy
// of members into ascending id order.
func NewConfig(members []common.ReplicaId) (Config, error) {
	seen := make(map[common.ReplicaId]bool, len(members))
	for _, m := range members {
		if seen[m] {
			return Config{}, fmt.Errorf("vsr: duplicate replica %d in config", m)
		}
		seen[m] = true
	}
	if len(members) == 0 {
		return Config{}, fmt.Errorf("vsr: config must not be empty")
	}
	sorted := append([]common.ReplicaId(nil), members...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return Config{Members: sorted}, nil
}

func (c Config) Size() int { return len(c.Members) }

func (c Config) Contains(id common.ReplicaId) bool {
	for _, m := range c.Members {
		if m == id {
			return true
		}
	}
	return false
}

// QuorumSize returns the minimum number of votes needed from a config of n
// members: a strict majority.
func QuorumSize(n int) int {
	return n/2 + 1
}

// LeaderFor returns the config member that holds the leader role in the
// given view, using view mod n over the ascending member order - the
// classic VSR round-robin leader election rule.
func (c Config) LeaderFor(view common.ViewNumber) common.ReplicaId {
	n := len(c.Members)
	if n == 0 {
		return 0
	}
	return c.Members[int(view)%n]
}

// ReconfigPhase distinguishes a stable configuration from one undergoing
// joint consensus.
type ReconfigPhase int

const (
	PhaseStable ReconfigPhase = iota
	PhaseJoint
)

// ReconfigKind names the administrative operation that initiated a
// membership change.
type ReconfigKind int

const (
	ReconfigAddReplica ReconfigKind = iota
	ReconfigRemoveReplica
	ReconfigReplace
)

// ReconfigState is the reconfiguration state machine from spec.md §4.9:
// Stable{C_old} or Joint{C_old, C_new, joint_op}.
type ReconfigState struct {
	Phase   ReconfigPhase
	Old     Config
	New     Config // zero value when Phase == PhaseStable
	JointOp common.OpNumber
}

// ReconfigPayload is carried by a Prepare that proposes a membership
// change, either the joint configuration (first phase) or the final new
// configuration (second phase).
type ReconfigPayload struct {
	Kind       ReconfigKind
	CommitJointTo Config // C_joint being proposed, when entering Joint
	CommitNewTo   Config // C_new being proposed, when leaving Joint
}

// LeaderConfig returns the configuration used for leader election: the old
// configuration throughout Joint, the (only) configuration otherwise.
func (s ReconfigState) LeaderConfig() Config {
	return s.Old
}

// CommitConfigsForQuorum returns the configuration(s) a commit must reach
// quorum in. During Joint, both must agree; otherwise there is only one.
func (s ReconfigState) CommitConfigsForQuorum() []Config {
	if s.Phase == PhaseJoint {
		return []Config{s.Old, s.New}
	}
	return []Config{s.Old}
}

// HasCommitQuorum reports whether votes (by ReplicaId) form a quorum
// across every configuration CommitConfigsForQuorum returns - the dual-
// majority rule joint consensus requires.
func (s ReconfigState) HasCommitQuorum(votes map[common.ReplicaId]bool) bool {
	for _, cfg := range s.CommitConfigsForQuorum() {
		count := 0
		for _, m := range cfg.Members {
			if votes[m] {
				count++
			}
		}
		if count < QuorumSize(cfg.Size()) {
			return false
		}
	}
	return true
}
