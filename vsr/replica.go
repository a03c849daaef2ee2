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
	"reflect"
	"sync"
	"time"

	"github.com/kimberlitedb/kimberlite/common"
	"github.com/kimberlitedb/kimberlite/kernel"
	"github.com/kimberlitedb/kimberlite/log"
	"github.com/kimberlitedb/kimberlite/metrics"
	"github.com/kimberlitedb/kimberlite/session"
)

// Status is a replica's current protocol state.
type Status int

const (
	StatusNormal Status = iota
	StatusViewChange
	StatusRecovering
	StatusStateTransfer
)

func (s Status) String() string {
	switch s {
	case StatusNormal:
		return "normal"
	case StatusViewChange:
		return "view-change"
	case StatusRecovering:
		return "recovering"
	case StatusStateTransfer:
		return "state-transfer"
	default:
		return "unknown"
	}
}

var (
	prepareLatency     = metrics.NewRegisteredTimer("vsr/prepare/latency", nil)
	commitLatency      = metrics.NewRegisteredTimer("vsr/commit/latency", nil)
	clientLatency      = metrics.NewRegisteredTimer("vsr/client/latency", nil)
	viewChangeLatency  = metrics.NewRegisteredTimer("vsr/viewchange/latency", nil)
	recoveryLatency    = metrics.NewRegisteredTimer("vsr/recovery/latency", nil)
	stateTransferLat   = metrics.NewRegisteredTimer("vsr/statetransfer/latency", nil)
	repairLatency      = metrics.NewRegisteredTimer("vsr/repair/latency", nil)
	byzantineRejected  = metrics.NewRegisteredCounter("byzantine_rejections_total", nil)
	standbyCount       = metrics.NewRegisteredGauge("vsr_standby_count", nil)
	standbyHealthy     = metrics.NewRegisteredGauge("vsr_standby_healthy_count", nil)
	standbyLag         = metrics.NewRegisteredGauge("vsr_standby_lag_operations", nil)
)

// ReplyFunc delivers a completed command's result to whatever is waiting
// on the client connection; supplied by the runtime.
type ReplyFunc func(client common.ClientId, reply Reply)

// EffectFunc executes the side effects a committed command produced -
// log writes, client notifications, alerts - exactly as the kernel
// described them. Supplied by the runtime; vsr only sequences the calls.
type EffectFunc func(effects []kernel.Effect)

// Replica is one VSR participant: the normal-case protocol, view change,
// recovery, reconfiguration, and standby tracking all operate on this
// single mutex-guarded struct. Every exported method is safe to call from
// the runtime's I/O goroutines concurrently; vsr serializes internally so
// the kernel is never entered concurrently, per spec.md §5.
type Replica struct {
	mu sync.Mutex

	id     common.ReplicaId
	view   common.ViewNumber
	status Status

	reconfig ReconfigState

	opLog        map[common.OpNumber]LogEntry
	lastOp       common.OpNumber
	commitNumber common.CommitNumber

	prepareVotes map[common.OpNumber]map[common.ReplicaId]bool

	startViewChangeVotes map[common.ViewNumber]map[common.ReplicaId]bool
	doViewChangeMsgs     map[common.ViewNumber]map[common.ReplicaId]DoViewChange

	standbys map[common.ReplicaId]*StandbyInfo

	recoveryResponses   map[common.ReplicaId]RecoveryResponse
	recoveryStarted     time.Time
	stateTransferTarget common.OpNumber

	kernelState *kernel.State
	sessions    *session.Table
	transport   Transport
	reply       ReplyFunc
	runEffects  EffectFunc

	heartbeatInterval  time.Duration
	viewChangeTimeout  time.Duration
	lastHeartbeatSeen  time.Time
	lastHeartbeatSent  time.Time
}

// NewReplica constructs a replica starting in Normal status at view 0,
// leading if it is config's view-0 leader.
func NewReplica(id common.ReplicaId, cfg Config, kernelState *kernel.State, sessions *session.Table, transport Transport, reply ReplyFunc, runEffects EffectFunc, heartbeatInterval, viewChangeTimeout time.Duration) *Replica {
	return &Replica{
		id:                   id,
		status:               StatusNormal,
		reconfig:             ReconfigState{Phase: PhaseStable, Old: cfg},
		opLog:                make(map[common.OpNumber]LogEntry),
		prepareVotes:         make(map[common.OpNumber]map[common.ReplicaId]bool),
		startViewChangeVotes: make(map[common.ViewNumber]map[common.ReplicaId]bool),
		doViewChangeMsgs:     make(map[common.ViewNumber]map[common.ReplicaId]DoViewChange),
		standbys:             make(map[common.ReplicaId]*StandbyInfo),
		recoveryResponses:    make(map[common.ReplicaId]RecoveryResponse),
		kernelState:          kernelState,
		sessions:             sessions,
		transport:            transport,
		reply:                reply,
		runEffects:           runEffects,
		heartbeatInterval:    heartbeatInterval,
		viewChangeTimeout:    viewChangeTimeout,
	}
}

func (r *Replica) isLeaderLocked() bool {
	return r.reconfig.LeaderConfig().LeaderFor(r.view) == r.id
}

// View reports the replica's current view.
func (r *Replica) View() common.ViewNumber {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.view
}

// Status reports the replica's current protocol status.
func (r *Replica) StatusNow() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// IsLeader reports whether this replica currently leads its view.
func (r *Replica) IsLeader() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.isLeaderLocked()
}

// CommittedOpNumber reports the highest op number this replica has
// committed, so a caller that proposed an op with no NotifyClient effect
// (Checkpoint, Compact, a reconfiguration phase) can poll for its landing
// instead of waiting on a reply that will never arrive.
func (r *Replica) CommittedOpNumber() common.OpNumber {
	r.mu.Lock()
	defer r.mu.Unlock()
	return common.OpNumber(r.commitNumber)
}

// Propose is called by the runtime when a client command arrives at the
// leader. prevHash must be the current chain tip (ledger.Log.Tip's second
// return value) - the durable log, not vsr, owns the hash chain, so the
// caller supplies it rather than vsr reconstructing it. Propose assigns
// the next OpNumber, appends to the in-memory log, and broadcasts Prepare.
func (r *Replica) Propose(cmd kernel.Command, prevHash common.Hash) (common.OpNumber, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.proposeLocked(cmd, prevHash, nil)
}

// proposeLocked is the shared entry point behind Propose and
// ProposeReconfiguration: assign the next OpNumber, append to the
// in-memory log, and broadcast Prepare.
func (r *Replica) proposeLocked(cmd kernel.Command, prevHash common.Hash, reconfig *ReconfigPayload) (common.OpNumber, error) {
	if r.status != StatusNormal {
		return 0, ErrWrongStatus
	}
	if !r.isLeaderLocked() {
		return 0, ErrNotLeader
	}
	op := r.lastOp + 1
	entry := LogEntry{Op: op, View: r.view, Command: cmd, Reconfig: reconfig, PrevHash: prevHash}
	r.opLog[op] = entry
	r.lastOp = op
	r.prepareVotes[op] = map[common.ReplicaId]bool{r.id: true}

	peers := otherMembers(r.reconfig.LeaderConfig(), r.id)
	r.transport.Broadcast(peers, Prepare{View: r.view, Op: op, Command: cmd, Reconfig: reconfig, PrevHash: entry.PrevHash, Sender: r.id})
	return op, nil
}

// HandlePrepare implements follower behavior on receiving a Prepare.
func (r *Replica) HandlePrepare(p Prepare) {
	start := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status == StatusRecovering || r.status == StatusStateTransfer {
		return // log not trustworthy yet, wait for recovery to finish
	}
	if p.View < r.view {
		return // stale leader, drop
	}
	if p.View > r.view {
		r.startViewChangeLocked(p.View)
		return
	}
	if existing, ok := r.opLog[p.Op]; ok {
		// Already have an entry for this op (from an earlier Prepare, or
		// adopted via a prior view change). A legitimate resend carries
		// the identical entry; anything else at the same op number is two
		// different Prepares claiming the same slot - a leader
		// equivocating, which spec.md §8 requires detecting rather than
		// silently overwriting.
		if !equivalentPrepare(existing, p) {
			byzantineRejected.Inc(1)
			log.Error("vsr: rejected equivocating Prepare", "replica", r.id, "op", p.Op, "view", p.View, "sender", p.Sender)
			return
		}
		r.transport.Send(p.Sender, PrepareOk{View: r.view, Op: p.Op, Replica: r.id})
		return
	}
	if p.Op != r.lastOp+1 {
		// Gap: request repair and buffer nothing here - the runtime's
		// repair responder will resend the missing range.
		r.transport.Send(p.Sender, Repair{FromOp: r.lastOp + 1, ToOp: p.Op, Sender: r.id})
		return
	}
	entry := LogEntry{Op: p.Op, View: p.View, Command: p.Command, Reconfig: p.Reconfig, PrevHash: p.PrevHash}
	r.opLog[p.Op] = entry
	r.lastOp = p.Op
	r.lastHeartbeatSeen = time.Now()

	r.transport.Send(p.Sender, PrepareOk{View: r.view, Op: p.Op, Replica: r.id})
	prepareLatency.UpdateSince(start)
}

// equivalentPrepare reports whether p carries the same entry this replica
// already accepted for p.Op - the only legitimate reason to see the same
// (view, op) twice is a retransmission.
func equivalentPrepare(entry LogEntry, p Prepare) bool {
	return reflect.DeepEqual(entry.Command, p.Command) &&
		reflect.DeepEqual(entry.Reconfig, p.Reconfig) &&
		entry.PrevHash == p.PrevHash
}

// HandlePrepareOk implements leader behavior: tracking votes and advancing
// commit_number once quorum is reached.
func (r *Replica) HandlePrepareOk(ok PrepareOk) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ok.View != r.view || !r.isLeaderLocked() {
		return
	}
	votes, exists := r.prepareVotes[ok.Op]
	if !exists {
		return
	}
	if !r.reconfig.Old.Contains(ok.Replica) && !r.reconfig.New.Contains(ok.Replica) {
		// A vote from a replica no config in play recognizes as a member
		// can't be legitimate - either stale wire data or a forged sender.
		byzantineRejected.Inc(1)
		log.Error("vsr: rejected PrepareOk from non-member replica", "replica", r.id, "op", ok.Op, "from", ok.Replica)
		return
	}
	votes[ok.Replica] = true
	maxClusterSize := r.reconfig.Old.Size()
	if r.reconfig.New.Size() > maxClusterSize {
		maxClusterSize = r.reconfig.New.Size()
	}
	if len(votes) > maxClusterSize {
		byzantineRejected.Inc(1)
		log.Error("vsr: prepare vote count exceeds cluster size", "replica", r.id, "op", ok.Op, "err", ErrQuorumImpossible)
		return
	}
	if !r.reconfig.HasCommitQuorum(votes) {
		return
	}
	r.advanceCommitLocked(ok.Op)
}

// advanceCommitLocked commits every contiguous op up to and including op,
// feeding each to the kernel in order and scheduling client replies.
func (r *Replica) advanceCommitLocked(op common.OpNumber) {
	start := time.Now()
	r.catchUpCommitsLocked(common.CommitNumber(op))
	peers := otherMembers(r.reconfig.LeaderConfig(), r.id)
	r.transport.Broadcast(peers, Commit{View: r.view, CommitNumber: r.commitNumber, Sender: r.id})
	commitLatency.UpdateSince(start)
}

// applyCommittedLocked hands one committed op to the kernel and, for
// client-originated commands, schedules the reply. Membership-change ops
// carry no kernel command at all; they only mutate reconfig state.
func (r *Replica) applyCommittedLocked(entry LogEntry) {
	if entry.Reconfig != nil {
		r.applyReconfigCommittedLocked(entry.Reconfig, entry.Op)
		return
	}
	next, effects, kerr := kernel.Apply(r.kernelState, entry.Command)
	if kerr != nil {
		log.Error("vsr: committed command rejected by kernel - this indicates a replica bug", "op", entry.Op, "err", kerr)
		return
	}
	r.kernelState = next
	if r.runEffects != nil && len(effects) > 0 {
		r.runEffects(effects)
	}
	if r.reply == nil {
		return
	}
	for _, eff := range effects {
		if eff.Kind != kernel.NotifyClient {
			continue
		}
		r.reply(eff.Client, Reply{View: entry.View, Op: entry.Op, RequestNumber: eff.Request, Result: eff.Result})
	}
}

// HandleCommit implements follower behavior on receiving a Commit.
func (r *Replica) HandleCommit(c Commit) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status == StatusRecovering || r.status == StatusStateTransfer {
		return
	}
	if c.View < r.view {
		return
	}
	if c.View > r.view {
		r.startViewChangeLocked(c.View)
		return
	}
	r.lastHeartbeatSeen = time.Now()
	r.catchUpCommitsLocked(c.CommitNumber)
}

// catchUpCommitsLocked applies every contiguous op between the current
// commit_number and to (inclusive) that is present in opLog, in order.
// Shared by HandleCommit, advanceCommitLocked, and StartView adoption.
func (r *Replica) catchUpCommitsLocked(to common.CommitNumber) {
	for common.OpNumber(r.commitNumber)+1 <= common.OpNumber(to) {
		next := common.OpNumber(r.commitNumber) + 1
		entry, ok := r.opLog[next]
		if !ok {
			break
		}
		r.applyCommittedLocked(entry)
		r.commitNumber = common.CommitNumber(next)
	}
}

// HandleHeartbeat resets the follower's view-change timer.
func (r *Replica) HandleHeartbeat(hb Heartbeat) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if hb.View < r.view {
		return
	}
	if hb.View > r.view {
		r.startViewChangeLocked(hb.View)
		return
	}
	r.lastHeartbeatSeen = time.Now()
}

// Tick drives time-based behavior: leader heartbeat emission and follower
// view-change timeouts. The runtime calls this on a regular schedule,
// passing the current time - vsr never samples the clock itself.
func (r *Replica) Tick(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.expireStaleStandbysLocked(now)
	if r.status != StatusNormal {
		return
	}
	if r.isLeaderLocked() {
		if now.Sub(r.lastHeartbeatSent) >= r.heartbeatInterval {
			peers := otherMembers(r.reconfig.LeaderConfig(), r.id)
			r.transport.Broadcast(peers, Heartbeat{View: r.view, CommitNumber: r.commitNumber, Sender: r.id})
			r.lastHeartbeatSent = now
		}
		return
	}
	if !r.lastHeartbeatSeen.IsZero() && now.Sub(r.lastHeartbeatSeen) >= r.viewChangeTimeout {
		r.beginViewChangeLocked(now)
	}
}

// otherMembers returns cfg's members excluding self, the standard
// broadcast-to-peers target set.
func otherMembers(cfg Config, self common.ReplicaId) []common.ReplicaId {
	out := make([]common.ReplicaId, 0, len(cfg.Members))
	for _, m := range cfg.Members {
		if m != self {
			out = append(out, m)
		}
	}
	return out
}
