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
	"testing"
	"time"

	"github.com/kimberlitedb/kimberlite/common"
	"github.com/kimberlitedb/kimberlite/kernel"
	"github.com/kimberlitedb/kimberlite/session"
)

// fakeNetwork wires a set of Replicas together for tests: Send/Broadcast
// dispatch straight into the target replica's Handle* methods, inline,
// rather than through any real socket.
type fakeNetwork struct {
	replicas map[common.ReplicaId]*Replica
}

func (n *fakeNetwork) deliver(to common.ReplicaId, msg interface{}) error {
	r, ok := n.replicas[to]
	if !ok {
		return nil
	}
	switch m := msg.(type) {
	case Prepare:
		r.HandlePrepare(m)
	case PrepareOk:
		r.HandlePrepareOk(m)
	case Commit:
		r.HandleCommit(m)
	case Heartbeat:
		r.HandleHeartbeat(m)
	case StartViewChange:
		r.HandleStartViewChange(m)
	case DoViewChange:
		r.HandleDoViewChange(m)
	case StartView:
		r.HandleStartView(m)
	case RecoveryRequest:
		r.HandleRecoveryRequest(m)
	case RecoveryResponse:
		r.HandleRecoveryResponse(m)
	case Repair:
		r.HandleRepair(m)
	case RepairResponse:
		r.HandleRepairResponse(m)
	case StandbyReport:
		r.HandleStandbyReport(m)
	}
	return nil
}

// netTransport is a per-replica Transport view onto a shared fakeNetwork.
type netTransport struct {
	net *fakeNetwork
}

func (t *netTransport) Send(to common.ReplicaId, msg interface{}) error {
	return t.net.deliver(to, msg)
}

func (t *netTransport) Broadcast(to []common.ReplicaId, msg interface{}) {
	for _, id := range to {
		t.net.deliver(id, msg)
	}
}

func newTestCluster(t *testing.T, n int) ([]*Replica, *fakeNetwork) {
	t.Helper()
	members := make([]common.ReplicaId, n)
	for i := range members {
		members[i] = common.ReplicaId(i)
	}
	cfg, err := NewConfig(members)
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	net := &fakeNetwork{replicas: make(map[common.ReplicaId]*Replica, n)}
	replicas := make([]*Replica, n)
	for i := 0; i < n; i++ {
		id := common.ReplicaId(i)
		r := NewReplica(id, cfg, kernel.NewState(1024), session.NewTable(1024), &netTransport{net: net}, nil, nil, 100*time.Millisecond, time.Second)
		replicas[i] = r
		net.replicas[id] = r
	}
	return replicas, net
}

func createTenantCmd(tenant common.TenantId, name string) kernel.Command {
	return kernel.Command{Kind: kernel.CreateTenant, Tenant: tenant, TenantName: name}
}

func TestReplicaNormalCaseCommitsAcrossQuorum(t *testing.T) {
	replicas, _ := newTestCluster(t, 3)
	leader := replicas[0]

	op, err := leader.Propose(createTenantCmd(1, "acme"), common.Hash{})
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if op != 1 {
		t.Fatalf("expected op 1, got %d", op)
	}

	for _, r := range replicas {
		if r.commitNumber != common.CommitNumber(1) {
			t.Errorf("replica %d: commitNumber = %d, want 1", r.id, r.commitNumber)
		}
		if _, ok := r.kernelState.Tenants[1]; !ok {
			t.Errorf("replica %d: tenant 1 not applied", r.id)
		}
	}
}

func TestReplicaProposeRequiresLeader(t *testing.T) {
	replicas, _ := newTestCluster(t, 3)
	follower := replicas[1]
	if follower.IsLeader() {
		t.Fatal("replica 1 should not be leader of view 0 in a 3-member round-robin config")
	}
	if _, err := follower.Propose(createTenantCmd(1, "acme"), common.Hash{}); err != ErrNotLeader {
		t.Fatalf("expected ErrNotLeader, got %v", err)
	}
}

func TestReplicaHandlePrepareRejectsStaleView(t *testing.T) {
	replicas, _ := newTestCluster(t, 3)
	follower := replicas[1]
	follower.view = 5
	follower.HandlePrepare(Prepare{View: 1, Op: 1, Command: createTenantCmd(1, "acme"), Sender: 0})
	if follower.lastOp != 0 {
		t.Fatalf("stale Prepare should have been dropped, lastOp = %d", follower.lastOp)
	}
}

func TestViewChangeElectsNewLeaderAndMergesLog(t *testing.T) {
	replicas, _ := newTestCluster(t, 3)
	leader := replicas[0]
	if _, err := leader.Propose(createTenantCmd(1, "acme"), common.Hash{}); err != nil {
		t.Fatalf("Propose: %v", err)
	}

	newLeader := replicas[1]
	for _, r := range replicas {
		r.HandleStartViewChange(StartViewChange{NewView: 1, Sender: r.id})
	}

	for _, r := range replicas {
		if r.status != StatusNormal {
			t.Errorf("replica %d: status = %v, want Normal after StartView adoption", r.id, r.status)
		}
		if r.view != 1 {
			t.Errorf("replica %d: view = %d, want 1", r.id, r.view)
		}
		if r.commitNumber != common.CommitNumber(1) {
			t.Errorf("replica %d: commitNumber = %d, want 1 (carried over from old view)", r.id, r.commitNumber)
		}
	}
	if !newLeader.IsLeader() {
		t.Fatalf("replica 1 should be leader of view 1")
	}
}

func TestRecoveryFinishesImmediatelyWhenAlreadyCaughtUp(t *testing.T) {
	replicas, _ := newTestCluster(t, 3)
	leader := replicas[0]
	if _, err := leader.Propose(createTenantCmd(1, "acme"), common.Hash{}); err != nil {
		t.Fatalf("Propose: %v", err)
	}

	recovering := replicas[2]
	recovering.StartRecovery()
	if recovering.status != StatusRecovering {
		t.Fatalf("expected Recovering status")
	}

	for _, peer := range replicas {
		if peer.id == recovering.id {
			continue
		}
		recovering.HandleRecoveryResponse(RecoveryResponse{View: peer.view, CommitNumber: peer.commitNumber, Sender: peer.id})
	}
	if recovering.status != StatusNormal {
		t.Fatalf("expected recovery to finish immediately, status = %v", recovering.status)
	}
}

func TestRecoveryRequestsStateTransferWhenBehind(t *testing.T) {
	replicas, _ := newTestCluster(t, 3)
	leader := replicas[0]
	if _, err := leader.Propose(createTenantCmd(1, "acme"), common.Hash{}); err != nil {
		t.Fatalf("Propose: %v", err)
	}

	recovering := replicas[2]
	recovering.lastOp = 0
	recovering.commitNumber = 0
	recovering.opLog = make(map[common.OpNumber]LogEntry)
	recovering.StartRecovery()

	for _, peer := range replicas {
		if peer.id == recovering.id {
			continue
		}
		recovering.HandleRecoveryResponse(RecoveryResponse{View: peer.view, CommitNumber: peer.commitNumber, Sender: peer.id})
	}
	if recovering.status != StatusNormal {
		t.Fatalf("expected state transfer to complete recovery via fakeNetwork delivery, status = %v", recovering.status)
	}
	if recovering.commitNumber != common.CommitNumber(1) {
		t.Fatalf("expected recovered replica to catch up to commit 1, got %d", recovering.commitNumber)
	}
}

func TestStandbyPromotionRejectsWhenLagging(t *testing.T) {
	// Four voting members so promoting one standby yields five - an odd
	// resulting size, satisfying ProposeReconfiguration's size invariant.
	replicas, _ := newTestCluster(t, 4)
	leader := replicas[0]
	standbyID := common.ReplicaId(99)
	leader.HandleStandbyReport(StandbyReport{CommitNumber: 0, Sender: standbyID})

	if _, err := leader.Propose(createTenantCmd(1, "acme"), common.Hash{}); err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if _, err := leader.Propose(createTenantCmd(2, "beta"), common.Hash{}); err != nil {
		t.Fatalf("Propose: %v", err)
	}

	if _, err := leader.PromoteStandby(standbyID, 1); err != ErrStandbyNotCaughtUp {
		t.Fatalf("expected ErrStandbyNotCaughtUp, got %v", err)
	}

	leader.HandleStandbyReport(StandbyReport{CommitNumber: 2, Sender: standbyID})
	if _, err := leader.PromoteStandby(standbyID, 1); err != nil {
		t.Fatalf("expected promotion to succeed once caught up, got %v", err)
	}
	// The fake network delivers every message inline, so by the time
	// PromoteStandby returns both reconfiguration ops have already
	// committed end to end: Stable{4} -> Joint{4,5} -> Stable{5}.
	if leader.reconfig.Phase != PhaseStable {
		t.Fatalf("expected joint consensus to complete, phase = %v", leader.reconfig.Phase)
	}
	if leader.reconfig.Old.Size() != 5 {
		t.Fatalf("expected final cluster size 5, got %d", leader.reconfig.Old.Size())
	}
}

func TestProposeReconfigurationRejectsEvenResultingSize(t *testing.T) {
	replicas, _ := newTestCluster(t, 3)
	leader := replicas[0]
	_, err := leader.ProposeReconfiguration(ReconfigAddReplica, []common.ReplicaId{10}, nil)
	if err != ErrReconfigWouldBeEven {
		t.Fatalf("expected ErrReconfigWouldBeEven, got %v", err)
	}
}

func TestProposeReconfigurationRejectsDuplicateAdd(t *testing.T) {
	replicas, _ := newTestCluster(t, 3)
	leader := replicas[0]
	if _, err := leader.ProposeReconfiguration(ReconfigAddReplica, []common.ReplicaId{1}, nil); err != ErrReconfigDuplicate {
		t.Fatalf("expected ErrReconfigDuplicate, got %v", err)
	}
}

func TestProposeReconfigurationCompletesJointConsensus(t *testing.T) {
	replicas, net := newTestCluster(t, 3)
	leader := replicas[0]
	before := reconfigTransitionsTotal.Count()

	if _, err := leader.ProposeReconfiguration(ReconfigAddReplica, []common.ReplicaId{10, 11}, nil); err != nil {
		t.Fatalf("ProposeReconfiguration: %v", err)
	}
	_ = net

	for _, r := range replicas {
		if r.reconfig.Phase != PhaseStable {
			t.Errorf("replica %d: phase = %v, want Stable after both reconfig ops commit", r.id, r.reconfig.Phase)
		}
		if r.reconfig.Old.Size() != 5 {
			t.Errorf("replica %d: final config size = %d, want 5", r.id, r.reconfig.Old.Size())
		}
	}
	// Every replica applies the commit locally, so the Joint->Stable
	// transition counter ticks once per replica in the cluster.
	if got := reconfigTransitionsTotal.Count(); got != before+int64(len(replicas)) {
		t.Fatalf("reconfigTransitionsTotal = %d, want %d", got, before+int64(len(replicas)))
	}
}

func TestQuorumSizeMajority(t *testing.T) {
	cases := map[int]int{1: 1, 2: 2, 3: 2, 4: 3, 5: 3, 7: 4}
	for n, want := range cases {
		if got := QuorumSize(n); got != want {
			t.Errorf("QuorumSize(%d) = %d, want %d", n, got, want)
		}
	}
}

func TestHandlePrepareRejectsEquivocatingLeader(t *testing.T) {
	replicas, _ := newTestCluster(t, 3)
	leader := replicas[0]
	follower := replicas[1]

	if _, err := leader.Propose(createTenantCmd(1, "acme"), common.Hash{}); err != nil {
		t.Fatalf("Propose: %v", err)
	}
	before := byzantineRejected.Count()

	// Same (view, op) as the already-accepted entry, but a different
	// command: a leader equivocating rather than retransmitting.
	follower.HandlePrepare(Prepare{View: 0, Op: 1, Command: createTenantCmd(2, "evil"), Sender: 0})

	if got := byzantineRejected.Count(); got != before+1 {
		t.Fatalf("byzantineRejected = %d, want %d", got, before+1)
	}
	entry := follower.opLog[1]
	if entry.Command.Tenant != 1 || entry.Command.TenantName != "acme" {
		t.Fatalf("equivocating Prepare must not overwrite the already-accepted entry, got %+v", entry.Command)
	}
}

func TestHandlePrepareAcceptsIdenticalRetransmission(t *testing.T) {
	replicas, _ := newTestCluster(t, 3)
	leader := replicas[0]
	follower := replicas[1]

	if _, err := leader.Propose(createTenantCmd(1, "acme"), common.Hash{}); err != nil {
		t.Fatalf("Propose: %v", err)
	}
	before := byzantineRejected.Count()

	// Identical resend of the same entry must not be flagged.
	follower.HandlePrepare(Prepare{View: 0, Op: 1, Command: createTenantCmd(1, "acme"), Sender: 0})

	if got := byzantineRejected.Count(); got != before {
		t.Fatalf("byzantineRejected = %d, want unchanged at %d", got, before)
	}
}

func TestHandlePrepareOkRejectsVoteFromNonMember(t *testing.T) {
	replicas, _ := newTestCluster(t, 3)
	leader := replicas[0]

	op, err := leader.Propose(createTenantCmd(1, "acme"), common.Hash{})
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	before := byzantineRejected.Count()

	leader.HandlePrepareOk(PrepareOk{View: 0, Op: op, Replica: 99})

	if got := byzantineRejected.Count(); got != before+1 {
		t.Fatalf("byzantineRejected = %d, want %d", got, before+1)
	}
	if votes := leader.prepareVotes[op]; votes[99] {
		t.Fatal("vote from non-member replica must not be recorded")
	}
}

func TestViewChangeCatchesUpNewLeaderThatWasBehind(t *testing.T) {
	replicas, _ := newTestCluster(t, 3)
	leader := replicas[0]
	newLeader := replicas[1]

	if _, err := leader.Propose(createTenantCmd(1, "acme"), common.Hash{}); err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if newLeader.commitNumber != common.CommitNumber(1) {
		t.Fatalf("setup: expected replica 1 to have committed op 1, got %d", newLeader.commitNumber)
	}

	// The entry for op 1 is still in opLog (it was Prepared normally);
	// only rewind commitNumber and kernelState, simulating a replica that
	// logged the Prepare but never got to apply the matching Commit
	// before the view change began.
	newLeader.commitNumber = 0
	newLeader.kernelState = kernel.NewState(1024)

	for _, r := range replicas {
		r.HandleStartViewChange(StartViewChange{NewView: 1, Sender: r.id})
	}

	if !newLeader.IsLeader() {
		t.Fatalf("replica 1 should be leader of view 1")
	}
	if newLeader.commitNumber != common.CommitNumber(1) {
		t.Fatalf("new leader commitNumber = %d, want 1", newLeader.commitNumber)
	}
	if _, ok := newLeader.kernelState.Tenants[1]; !ok {
		t.Fatal("new leader's kernel state must be caught up to commitNumber via catchUpCommitsLocked, not just have commitNumber bumped")
	}
}

func TestReconfigStateHasCommitQuorumRequiresBothConfigsDuringJoint(t *testing.T) {
	old, _ := NewConfig([]common.ReplicaId{0, 1, 2})
	next, _ := NewConfig([]common.ReplicaId{0, 1, 2, 3, 4})
	state := ReconfigState{Phase: PhaseJoint, Old: old, New: next}

	votes := map[common.ReplicaId]bool{0: true, 1: true}
	if state.HasCommitQuorum(votes) {
		t.Fatal("quorum in old config alone should not suffice during joint consensus")
	}
	votes[3] = true
	votes[4] = true
	if !state.HasCommitQuorum(votes) {
		t.Fatal("expected quorum once both old and new configs have a majority")
	}
}
