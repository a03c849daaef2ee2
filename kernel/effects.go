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

package kernel

import (
	"time"

	"github.com/kimberlitedb/kimberlite/common"
)

// EffectKind enumerates the side effects Apply can describe. The kernel
// only ever builds these values; the runtime is what actually writes to
// the log, sends a message, or sets a timer.
type EffectKind int

const (
	WriteToLog EffectKind = iota
	FlushToDisk
	DeleteFile
	SendMessage
	BroadcastMessage
	SetTimer
	CancelTimer
	NotifyClient
	TriggerAlert
	AuditLogAppend
	TableMetadataWrite
	TableMetadataDrop
	IndexMetadataWrite
	WakeProjection
	UpdateProjection
)

// Effect is data, not behavior: a description of one side effect the
// runtime must carry out after a command commits.
type Effect struct {
	Kind EffectKind

	// WriteToLog / AuditLogAppend
	Stream  common.StreamId
	Payload []byte

	// DeleteFile
	Path string

	// SendMessage
	Recipient common.ReplicaId
	Message   interface{}

	// SetTimer / CancelTimer
	TimerName string
	Duration  time.Duration

	// NotifyClient
	Client    common.ClientId
	Request   common.RequestNumber
	Result    interface{}
	IsReplay  bool

	// TriggerAlert
	AlertName string
	Severity  string

	// TableMetadataWrite/Drop, IndexMetadataWrite
	TableKey TableKey
	IndexKey IndexKey

	// WakeProjection / UpdateProjection
	ProjectionTarget string
}
