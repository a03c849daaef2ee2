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

package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"github.com/kimberlitedb/kimberlite/common"
	"github.com/kimberlitedb/kimberlite/config"
	"github.com/kimberlitedb/kimberlite/kernel"
	"github.com/kimberlitedb/kimberlite/ledger"
	"github.com/kimberlitedb/kimberlite/rawdb"
	"github.com/kimberlitedb/kimberlite/session"
	"github.com/kimberlitedb/kimberlite/vsr"
)

// fakeClock lets tests control what rt.clock.Now() returns without racing
// real time, the runtime-level equivalent of vsr's Tick(now) parameter.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

// fakeNetwork wires a set of vsr.Replicas together for tests exactly as
// vsr's own test suite does: Send/Broadcast dispatch straight into the
// target's Handle* methods rather than through a real socket, so a
// Runtime under test can exercise a real multi-replica commit without
// PeerTransport or TCP.
type fakeNetwork struct {
	replicas map[common.ReplicaId]*vsr.Replica
}

func (n *fakeNetwork) deliver(to common.ReplicaId, msg interface{}) error {
	r, ok := n.replicas[to]
	if !ok {
		return nil
	}
	switch m := msg.(type) {
	case vsr.Prepare:
		r.HandlePrepare(m)
	case vsr.PrepareOk:
		r.HandlePrepareOk(m)
	case vsr.Commit:
		r.HandleCommit(m)
	case vsr.Heartbeat:
		r.HandleHeartbeat(m)
	}
	return nil
}

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

// newTestLeader builds a 3-member cluster over a fakeNetwork and returns a
// Runtime wrapping replica 0, the round-robin leader of view 0. The other
// two members are bare vsr.Replicas with no reply/effect callbacks, the
// same shortcut vsr's own tests take - this exercises Submit/deliverReply
// against a real quorum instead of a single self-voting node, which can
// never reach a commit quorum in the current vsr implementation.
func newTestLeader(t *testing.T) *Runtime {
	t.Helper()
	dataDir := t.TempDir()

	log, err := ledger.Open(dataDir+"/log", 1<<20, ledger.NewMemIndex())
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	t.Cleanup(func() { log.Close() })

	db, err := rawdb.Open(dataDir + "/db")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	members, err := vsr.NewConfig([]common.ReplicaId{0, 1, 2})
	if err != nil {
		t.Fatalf("new config: %v", err)
	}

	net := &fakeNetwork{replicas: make(map[common.ReplicaId]*vsr.Replica, 3)}
	heartbeat := 100 * time.Millisecond
	viewChangeTimeout := time.Second

	for _, id := range []common.ReplicaId{1, 2} {
		follower := vsr.NewReplica(id, members, kernel.NewState(16), session.NewTable(16),
			&netTransport{net: net}, nil, nil, heartbeat, viewChangeTimeout)
		net.replicas[id] = follower
	}

	rt := &Runtime{
		cfg:      &config.Config{FsyncPolicy: config.FsyncNever},
		clock:    &fakeClock{now: time.Unix(1700000000, 0)},
		log:      log,
		db:       db,
		sessions: session.NewTable(16),
		timers:   make(map[string]*time.Timer),
		pending:  make(map[pendingKey]*pendingEntry),
		stopCh:   make(chan struct{}),
	}
	leader := vsr.NewReplica(0, members, kernel.NewState(16), rt.sessions,
		&netTransport{net: net}, rt.deliverReply, rt.runEffects, heartbeat, viewChangeTimeout)
	net.replicas[0] = leader
	rt.replica = leader

	return rt
}

func TestSubmitCommitsAcrossQuorumAndDeliversReply(t *testing.T) {
	rt := newTestLeader(t)
	client := rt.RegisterClient()

	if _, err := rt.Submit(context.Background(), client, kernel.Command{
		Kind: kernel.CreateTenant, Tenant: common.TenantId(1), TenantName: "acme",
		Client: client, Request: common.RequestNumber(1),
	}); err != nil {
		t.Fatalf("create tenant: %v", err)
	}

	if _, err := rt.Submit(context.Background(), client, kernel.Command{
		Kind: kernel.CreateTable, Tenant: common.TenantId(1), Table: common.TableId(1),
		TableName: "widgets", Client: client, Request: common.RequestNumber(2),
	}); err != nil {
		t.Fatalf("create table: %v", err)
	}

	result, err := rt.Submit(context.Background(), client, kernel.Command{
		Kind: kernel.InsertRow, Tenant: common.TenantId(1), Table: common.TableId(1),
		RowPayload: []byte(`{"id":1}`), Client: client, Request: common.RequestNumber(3),
	})
	if err != nil {
		t.Fatalf("insert row: %v", err)
	}
	if result != "ok" {
		t.Fatalf("expected ok reply, got %v", result)
	}

	committed, ok := rt.sessions.Lookup(client)
	if !ok {
		t.Fatalf("expected a committed session entry after insert")
	}
	if committed.RequestNumber != common.RequestNumber(3) {
		t.Fatalf("expected committed request 3, got %d", committed.RequestNumber)
	}
}

func TestSubmitDuplicateRequestReturnsCachedReply(t *testing.T) {
	rt := newTestLeader(t)
	client := rt.RegisterClient()

	rt.Submit(context.Background(), client, kernel.Command{
		Kind: kernel.CreateTenant, Tenant: common.TenantId(1), TenantName: "acme",
		Client: client, Request: common.RequestNumber(1),
	})
	rt.Submit(context.Background(), client, kernel.Command{
		Kind: kernel.CreateTable, Tenant: common.TenantId(1), Table: common.TableId(1),
		TableName: "widgets", Client: client, Request: common.RequestNumber(2),
	})

	cmd := kernel.Command{
		Kind: kernel.InsertRow, Tenant: common.TenantId(1), Table: common.TableId(1),
		RowPayload: []byte(`{"id":1}`), Client: client, Request: common.RequestNumber(3),
	}
	first, err := rt.Submit(context.Background(), client, cmd)
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}
	second, err := rt.Submit(context.Background(), client, cmd)
	if err != nil {
		t.Fatalf("duplicate submit: %v", err)
	}
	if first != second {
		t.Fatalf("duplicate request returned a different reply: %v vs %v", first, second)
	}
}

func TestSubmitStaleRequestIsRejected(t *testing.T) {
	rt := newTestLeader(t)
	client := rt.RegisterClient()

	rt.Submit(context.Background(), client, kernel.Command{
		Kind: kernel.CreateTenant, Tenant: common.TenantId(1), TenantName: "acme",
		Client: client, Request: common.RequestNumber(5),
	})

	_, err := rt.Submit(context.Background(), client, kernel.Command{
		Kind: kernel.CreateTenant, Tenant: common.TenantId(2), TenantName: "other",
		Client: client, Request: common.RequestNumber(1),
	})
	if err != ErrStaleRequest {
		t.Fatalf("expected ErrStaleRequest, got %v", err)
	}
}

func TestDeliverReplyCommitsEvenWithoutAWaitingCaller(t *testing.T) {
	rt := newTestLeader(t)
	client := rt.RegisterClient()

	rt.deliverReply(client, vsr.Reply{RequestNumber: common.RequestNumber(7), Op: common.OpNumber(1), Result: "ok"})

	committed, ok := rt.sessions.Lookup(client)
	if !ok {
		t.Fatalf("expected deliverReply to commit into the session table")
	}
	if committed.RequestNumber != common.RequestNumber(7) {
		t.Fatalf("expected request 7 committed, got %d", committed.RequestNumber)
	}
}

func TestRuntimeStartStopIsIdempotentAndReleasesTheDataDirLock(t *testing.T) {
	dataDir := t.TempDir()
	log, err := ledger.Open(dataDir+"/log", 1<<20, ledger.NewMemIndex())
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	db, err := rawdb.Open(dataDir + "/db")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	self := common.ReplicaId(1)
	members, err := vsr.NewConfig([]common.ReplicaId{self})
	if err != nil {
		t.Fatalf("new config: %v", err)
	}

	rt, err := New(Deps{
		Config: &config.Config{
			DataDir:                  dataDir,
			ListenAddr:               "127.0.0.1:0",
			AdminAddr:                "127.0.0.1:0",
			HeartbeatIntervalMs:      50,
			ViewChangeTimeoutMs:      500,
			RepairBudget:             4,
			RepairMaxInflight:        1,
			ScrubThroughputOpsPerSec: 5,
			FsyncPolicy:              config.FsyncNever,
		},
		Clock:       &fakeClock{now: time.Unix(1700000000, 0)},
		Log:         log,
		DB:          db,
		Sessions:    session.NewTable(16),
		KernelState: kernel.NewState(16),
		Self:        self,
		Members:     members,
		PeerAddrs:   map[common.ReplicaId]string{},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := rt.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	// A second Start must be a no-op, not a double-registration of loops.
	if err := rt.Start(); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	rt.Stop()
	// A second Stop must be a no-op, not a double-close panic.
	rt.Stop()

	// Stop released the data directory lock, so a fresh flock can take it.
	fl := flock.New(dataDir + "/LOCK")
	locked, err := fl.TryLock()
	if err != nil || !locked {
		t.Fatalf("data dir lock still held after Stop: locked=%v err=%v", locked, err)
	}
	fl.Unlock()
}
