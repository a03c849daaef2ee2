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

// Package vsr implements the Viewstamped Replication consensus core: the
// normal-case protocol, view change, recovery and state transfer, log
// repair, reconfiguration, and standby tracking. The package is agnostic
// to transport and I/O - callers supply a Transport and drive ticks; vsr
// itself never touches the network or the clock directly.
package vsr

import (
	"github.com/kimberlitedb/kimberlite/common"
	"github.com/kimberlitedb/kimberlite/kernel"
	"github.com/kimberlitedb/kimberlite/session"
)

// MessageKind tags every wire message, per spec.md §6.
type MessageKind int

const (
	KindPrepare MessageKind = iota
	KindPrepareOk
	KindCommit
	KindHeartbeat
	KindStartViewChange
	KindDoViewChange
	KindStartView
	KindRecoveryRequest
	KindRecoveryResponse
	KindRepair
	KindRepairResponse
	KindReconfiguration
	KindPing
	KindPong
	KindStandbyReport
)

func (k MessageKind) String() string {
	switch k {
	case KindPrepare:
		return "Prepare"
	case KindPrepareOk:
		return "PrepareOk"
	case KindCommit:
		return "Commit"
	case KindHeartbeat:
		return "Heartbeat"
	case KindStartViewChange:
		return "StartViewChange"
	case KindDoViewChange:
		return "DoViewChange"
	case KindStartView:
		return "StartView"
	case KindRecoveryRequest:
		return "RecoveryRequest"
	case KindRecoveryResponse:
		return "RecoveryResponse"
	case KindRepair:
		return "Repair"
	case KindRepairResponse:
		return "RepairResponse"
	case KindReconfiguration:
		return "Reconfiguration"
	case KindPing:
		return "Ping"
	case KindPong:
		return "Pong"
	case KindStandbyReport:
		return "StandbyReport"
	default:
		return "Unknown"
	}
}

// LogEntry is one op in a replica's in-memory prepare log: the unit the
// view-change log-merge rule and state transfer both operate on.
type LogEntry struct {
	Op       common.OpNumber
	View     common.ViewNumber
	Command  kernel.Command
	Reconfig *ReconfigPayload // set only for membership-change ops
	PrevHash common.Hash
}

// Prepare is broadcast by the leader for every new op.
type Prepare struct {
	View     common.ViewNumber
	Op       common.OpNumber
	Command  kernel.Command
	Reconfig *ReconfigPayload
	PrevHash common.Hash
	Sender   common.ReplicaId
}

// PrepareOk is a follower's vote for a Prepare.
type PrepareOk struct {
	View    common.ViewNumber
	Op      common.OpNumber
	Replica common.ReplicaId
}

// Commit advances the receiver's commit_number.
type Commit struct {
	View         common.ViewNumber
	CommitNumber common.CommitNumber
	Sender       common.ReplicaId
}

// Heartbeat is emitted periodically by the leader to reset followers'
// view-change timers.
type Heartbeat struct {
	View         common.ViewNumber
	CommitNumber common.CommitNumber
	Sender       common.ReplicaId
}

// Reply is the client-facing response to a completed request.
type Reply struct {
	View          common.ViewNumber
	Op            common.OpNumber
	RequestNumber common.RequestNumber
	Result        interface{}
}

// StartViewChange begins the view-change protocol.
type StartViewChange struct {
	NewView common.ViewNumber
	Sender  common.ReplicaId
}

// DoViewChange is sent by a replica that has observed a StartViewChange
// quorum to the prospective new leader.
type DoViewChange struct {
	NewView           common.ViewNumber
	Log               []LogEntry
	CommitNumber      common.CommitNumber
	ReconfigState     ReconfigState
	CommittedSessions map[common.ClientId]session.Committed
	Sender            common.ReplicaId
}

// StartView is broadcast by the new leader once it has merged a quorum of
// DoViewChange logs.
type StartView struct {
	NewView      common.ViewNumber
	Log          []LogEntry
	CommitNumber common.CommitNumber
	Sender       common.ReplicaId
}

// RecoveryRequest is sent by a replica entering Recovering status.
type RecoveryRequest struct {
	View   common.ViewNumber
	Sender common.ReplicaId
}

// RecoveryResponse answers a RecoveryRequest with the responder's current
// view and commit position, letting the recoverer decide whether its own
// log replay sufficed or state transfer is required.
type RecoveryResponse struct {
	View         common.ViewNumber
	CommitNumber common.CommitNumber
	Sender       common.ReplicaId
}

// Repair requests missing or corrupted records in [FromOp, ToOp].
type Repair struct {
	FromOp common.OpNumber
	ToOp   common.OpNumber
	Sender common.ReplicaId
}

// RepairResponse streams the requested records back.
type RepairResponse struct {
	Entries []LogEntry
	Sender  common.ReplicaId
}

// Reconfiguration carries an administrative membership-change request.
type Reconfiguration struct {
	Kind   ReconfigKind
	Add    []common.ReplicaId
	Remove []common.ReplicaId
	Sender common.ReplicaId
}

// Ping/Pong are a liveness-check message pair. Replica has no handler for
// them and nothing in the module sends them.
type Ping struct {
	Sender common.ReplicaId
}

type Pong struct {
	Sender common.ReplicaId
}

// StandbyReport is a non-voting replica's periodic progress announcement,
// the standby equivalent of a Heartbeat.
type StandbyReport struct {
	CommitNumber common.CommitNumber
	Sender       common.ReplicaId
}
