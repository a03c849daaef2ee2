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

// Package runtime is the only non-deterministic component of Kimberlite:
// network I/O, disk I/O, clock sampling, timer scheduling, effect
// execution and client connection lifecycle all live here, wired around
// the deterministic vsr/kernel/session core the rest of the module
// implements. It plays the same role cmd/ubtconv's Runner plays for the
// ethereum sidecar: own the background goroutines, own the backoff, own
// shutdown, and never let non-determinism leak into the core.
package runtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/kimberlitedb/kimberlite/config"
	"github.com/kimberlitedb/kimberlite/kernel"
	"github.com/kimberlitedb/kimberlite/ledger"
	"github.com/kimberlitedb/kimberlite/log"
	"github.com/kimberlitedb/kimberlite/metrics"
	"github.com/kimberlitedb/kimberlite/rawdb"
	"github.com/kimberlitedb/kimberlite/session"
	"github.com/kimberlitedb/kimberlite/tracing"
	"github.com/kimberlitedb/kimberlite/vsr"

	"go.opentelemetry.io/otel/trace"

	"github.com/kimberlitedb/kimberlite/common"
)

var (
	tickTotal       = metrics.NewRegisteredCounter("runtime/tick/total", nil)
	fsyncTotal      = metrics.NewRegisteredCounter("runtime/fsync/total", nil)
	fsyncErrorTotal = metrics.NewRegisteredCounter("runtime/fsync/errors/total", nil)
)

// Runtime owns one replica's entire non-deterministic shell: its durable
// log, its durable session/checkpoint/index store, its network transport,
// its timers, and the background loops that drive vsr.Replica.Tick and
// group-commit fsync. Exactly one Runtime runs per replica process.
type Runtime struct {
	cfg *config.Config

	clock Clock

	log     *ledger.Log
	auditLog log.Logger
	db      *rawdb.Database

	sessions *session.Table
	replica  *vsr.Replica

	transport *PeerTransport
	server    *peerServer
	admin     *adminServer
	peerIDs   []common.ReplicaId

	scrubber     *ledger.Scrubber
	repairBudget *ledger.RepairBudget

	tracer       trace.Tracer
	tracerClose  func(context.Context) error

	timersMu sync.Mutex
	timers   map[string]*time.Timer

	pendingMu sync.Mutex
	pending   map[pendingKey]*pendingEntry

	lock *flock.Flock

	mu      sync.Mutex
	wg      sync.WaitGroup
	stopCh  chan struct{}
	running bool
}

// Deps bundles the already-constructed collaborators a Runtime wires
// together. Building these (opening the log, dialing peers, loading
// config) is the caller's job - main.go in cmd/kimberlited - so Runtime
// itself stays unit-testable with in-memory stand-ins.
type Deps struct {
	Config       *config.Config
	Clock        Clock
	Log          *ledger.Log
	DB           *rawdb.Database
	Sessions     *session.Table
	KernelState  *kernel.State
	Self         common.ReplicaId
	Members      vsr.Config
	PeerAddrs    map[common.ReplicaId]string
	AuditLog     log.Logger
}

// New builds a Runtime around deps, constructing the vsr.Replica with this
// Runtime's runEffects/deliverReply as its EffectFunc/ReplyFunc and a
// PeerTransport dialing PeerAddrs lazily.
func New(deps Deps) (*Runtime, error) {
	if deps.Clock == nil {
		deps.Clock = SystemClock
	}
	lockPath := deps.Config.DataDir + "/LOCK"
	fl := flock.New(lockPath)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("runtime: acquire data dir lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("runtime: data dir %s is held by another process", deps.Config.DataDir)
	}

	rt := &Runtime{
		cfg:      deps.Config,
		clock:    deps.Clock,
		log:      deps.Log,
		auditLog: deps.AuditLog,
		db:       deps.DB,
		sessions: deps.Sessions,
		peerIDs:  otherMembers(deps.Members, deps.Self),
		timers:   make(map[string]*time.Timer),
		pending:  make(map[pendingKey]*pendingEntry),
		lock:     fl,
		stopCh:   make(chan struct{}),
	}
	if rt.auditLog == nil {
		rt.auditLog = log.Root()
	}

	rt.transport = NewPeerTransport(deps.Self, deps.PeerAddrs)

	heartbeat := time.Duration(deps.Config.HeartbeatIntervalMs) * time.Millisecond
	viewChangeTimeout := time.Duration(deps.Config.ViewChangeTimeoutMs) * time.Millisecond
	rt.replica = vsr.NewReplica(deps.Self, deps.Members, deps.KernelState, deps.Sessions, rt.transport,
		rt.deliverReply, rt.runEffects, heartbeat, viewChangeTimeout)

	server, err := newPeerServer(deps.Config.ListenAddr, rt.replica)
	if err != nil {
		fl.Unlock()
		return nil, err
	}
	rt.server = server

	rt.repairBudget = ledger.NewRepairBudget(int(deps.Config.RepairBudget), int(deps.Config.RepairMaxInflight))
	rt.scrubber = ledger.NewScrubber(rt.log, int(deps.Config.ScrubThroughputOpsPerSec), rt.onScrubCorruption)

	rt.admin = newAdminServer(rt, deps.Config.AdminAddr)

	if deps.Config.TracingEndpoint != "" {
		tracer, shutdown, err := tracing.Setup(context.Background(), tracing.Config{
			Endpoint:    deps.Config.TracingEndpoint,
			ReplicaName: deps.Config.ReplicaName,
			Insecure:    deps.Config.TracingInsecure,
		})
		if err != nil {
			fl.Unlock()
			return nil, fmt.Errorf("runtime: setup tracing: %w", err)
		}
		rt.tracer = tracer
		rt.tracerClose = shutdown
	} else {
		rt.tracer = tracing.NoopTracer()
		rt.tracerClose = func(context.Context) error { return nil }
	}

	return rt, nil
}

func otherMembers(members vsr.Config, self common.ReplicaId) []common.ReplicaId {
	out := make([]common.ReplicaId, 0, len(members.Members))
	for _, m := range members.Members {
		if m != self {
			out = append(out, m)
		}
	}
	return out
}

// onScrubCorruption is the ledger.CorruptionHandler installed on this
// runtime's Scrubber: a corrupt record found by the background tour is
// something vsr's repair protocol exists to fix, never something the
// runtime tries to patch in place.
func (rt *Runtime) onScrubCorruption(segmentID uint32) {
	log.Error("runtime: scrubber found corrupt segment, requesting repair", "segment", segmentID)
}

// Start launches every background loop: the peer listener, the vsr tick
// loop, the group-commit fsync loop, the scrubber tour, and the repair
// budget's credit-regeneration tick. Mirrors the teacher's Runner.Start in
// shape: idempotent, guarded by mu/running, one goroutine per concern.
func (rt *Runtime) Start() error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.running {
		return nil
	}
	rt.running = true

	go rt.server.serve()
	go rt.admin.serve()

	rt.wg.Add(1)
	go rt.tickLoop()

	if rt.cfg.FsyncPolicy == config.FsyncGroupCommit {
		rt.wg.Add(1)
		go rt.fsyncLoop()
	}

	rt.wg.Add(1)
	go rt.scrubLoop()

	rt.wg.Add(1)
	go rt.repairBudgetLoop()

	log.Info("runtime: started", "listen_addr", rt.cfg.ListenAddr, "data_dir", rt.cfg.DataDir)
	return nil
}

// Stop halts every background loop and releases the data directory lock.
// Safe to call once; a second call is a no-op.
func (rt *Runtime) Stop() {
	rt.mu.Lock()
	if !rt.running {
		rt.mu.Unlock()
		return
	}
	rt.running = false
	rt.mu.Unlock()

	close(rt.stopCh)
	rt.server.close()
	rt.admin.close()
	rt.transport.Close()
	rt.wg.Wait()

	rt.timersMu.Lock()
	for _, t := range rt.timers {
		t.Stop()
	}
	rt.timersMu.Unlock()

	if err := rt.log.Close(); err != nil {
		log.Error("runtime: closing log", "err", err)
	}
	if err := rt.db.Close(); err != nil {
		log.Error("runtime: closing database", "err", err)
	}
	rt.lock.Unlock()
	if rt.tracerClose != nil {
		if err := rt.tracerClose(context.Background()); err != nil {
			log.Error("runtime: shutting down tracer", "err", err)
		}
	}
	log.Info("runtime: stopped")
}

// tickLoop drives vsr.Replica.Tick at the configured heartbeat interval,
// the one place wall-clock time enters the consensus core.
func (rt *Runtime) tickLoop() {
	defer rt.wg.Done()
	interval := time.Duration(rt.cfg.HeartbeatIntervalMs) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-rt.stopCh:
			return
		case <-ticker.C:
			rt.replica.Tick(rt.clock.Now())
			tickTotal.Inc(1)
		}
	}
}

// fsyncLoop implements FsyncGroupCommit: batch appends for GroupCommitMs
// before forcing them durable, trading a small commit-latency tax for far
// fewer fsync syscalls under load.
func (rt *Runtime) fsyncLoop() {
	defer rt.wg.Done()
	interval := time.Duration(rt.cfg.GroupCommitMs) * time.Millisecond
	if interval <= 0 {
		interval = 5 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-rt.stopCh:
			return
		case <-ticker.C:
			if err := rt.log.Fsync(); err != nil {
				fsyncErrorTotal.Inc(1)
				log.Error("runtime: group-commit fsync failed", "err", err)
				continue
			}
			fsyncTotal.Inc(1)
		}
	}
}

// scrubLoop runs the background bit-rot scrubber tour continuously,
// rate-limited internally by Scrubber's own token bucket.
func (rt *Runtime) scrubLoop() {
	defer rt.wg.Done()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-rt.stopCh
		cancel()
	}()
	rt.scrubber.Run(ctx)
}

// repairBudgetLoop regenerates repair credit by calling RepairBudget.Tick
// once per second. Tick does not change the latency EWMA; only Release
// does.
func (rt *Runtime) repairBudgetLoop() {
	defer rt.wg.Done()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-rt.stopCh:
			return
		case <-ticker.C:
			rt.repairBudget.Tick()
		}
	}
}
