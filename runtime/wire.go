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
	"fmt"

	"github.com/kimberlitedb/kimberlite/vsr"
)

// wireMessage is the on-the-wire envelope for every vsr.MessageKind.
// gob cannot encode a bare interface{} without every concrete type
// registered up front, so the envelope instead carries one optional
// pointer field per message kind; exactly one is ever non-nil. Bit-exact
// layout is implementation-defined per spec.md §6, so a plain gob struct
// (rather than a hand-rolled tag+length format) is sufficient here.
type wireMessage struct {
	Prepare          *vsr.Prepare
	PrepareOk        *vsr.PrepareOk
	Commit           *vsr.Commit
	Heartbeat        *vsr.Heartbeat
	StartViewChange  *vsr.StartViewChange
	DoViewChange     *vsr.DoViewChange
	StartView        *vsr.StartView
	RecoveryRequest  *vsr.RecoveryRequest
	RecoveryResponse *vsr.RecoveryResponse
	Repair           *vsr.Repair
	RepairResponse   *vsr.RepairResponse
	Reconfiguration  *vsr.Reconfiguration
	Ping             *vsr.Ping
	Pong             *vsr.Pong
	StandbyReport    *vsr.StandbyReport
}

// wrap builds the envelope for msg, panicking on an unrecognized type -
// every caller here is this package's own transport code, never
// untrusted input, so a programmer error surfaces immediately.
func wrap(msg interface{}) wireMessage {
	switch m := msg.(type) {
	case vsr.Prepare:
		return wireMessage{Prepare: &m}
	case vsr.PrepareOk:
		return wireMessage{PrepareOk: &m}
	case vsr.Commit:
		return wireMessage{Commit: &m}
	case vsr.Heartbeat:
		return wireMessage{Heartbeat: &m}
	case vsr.StartViewChange:
		return wireMessage{StartViewChange: &m}
	case vsr.DoViewChange:
		return wireMessage{DoViewChange: &m}
	case vsr.StartView:
		return wireMessage{StartView: &m}
	case vsr.RecoveryRequest:
		return wireMessage{RecoveryRequest: &m}
	case vsr.RecoveryResponse:
		return wireMessage{RecoveryResponse: &m}
	case vsr.Repair:
		return wireMessage{Repair: &m}
	case vsr.RepairResponse:
		return wireMessage{RepairResponse: &m}
	case vsr.Reconfiguration:
		return wireMessage{Reconfiguration: &m}
	case vsr.Ping:
		return wireMessage{Ping: &m}
	case vsr.Pong:
		return wireMessage{Pong: &m}
	case vsr.StandbyReport:
		return wireMessage{StandbyReport: &m}
	default:
		panic(fmt.Sprintf("runtime: unrecognized message type %T", msg))
	}
}

// dispatch delivers the single populated field of wm to replica's
// matching Handle* method. Reconfiguration, Ping and Pong have no Handle*
// method and are dropped without effect.
func dispatch(replica *vsr.Replica, wm wireMessage) {
	switch {
	case wm.Prepare != nil:
		replica.HandlePrepare(*wm.Prepare)
	case wm.PrepareOk != nil:
		replica.HandlePrepareOk(*wm.PrepareOk)
	case wm.Commit != nil:
		replica.HandleCommit(*wm.Commit)
	case wm.Heartbeat != nil:
		replica.HandleHeartbeat(*wm.Heartbeat)
	case wm.StartViewChange != nil:
		replica.HandleStartViewChange(*wm.StartViewChange)
	case wm.DoViewChange != nil:
		replica.HandleDoViewChange(*wm.DoViewChange)
	case wm.StartView != nil:
		replica.HandleStartView(*wm.StartView)
	case wm.RecoveryRequest != nil:
		replica.HandleRecoveryRequest(*wm.RecoveryRequest)
	case wm.RecoveryResponse != nil:
		replica.HandleRecoveryResponse(*wm.RecoveryResponse)
	case wm.Repair != nil:
		replica.HandleRepair(*wm.Repair)
	case wm.RepairResponse != nil:
		replica.HandleRepairResponse(*wm.RepairResponse)
	case wm.StandbyReport != nil:
		replica.HandleStandbyReport(*wm.StandbyReport)
	}
}
