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

import "github.com/kimberlitedb/kimberlite/common"

// CommandKind enumerates the command variants Apply accepts.
type CommandKind int

const (
	CreateTenant CommandKind = iota
	DeleteTenant
	InsertRow
	UpdateRow
	DeleteRow
	CreateTable
	DropTable
	CreateIndex
	DropIndex
	Checkpoint
	Compact
	Query
)

// Command is the single input to Apply. Every field the transition might
// need - timestamps, generated ids, the client's idempotency token - is
// carried explicitly; the kernel never samples a clock or an RNG itself.
type Command struct {
	Kind         CommandKind
	TimestampUs  int64
	IdempotencyId common.IdempotencyId
	HasIdempotencyId bool

	Tenant common.TenantId
	Table  common.TableId
	Index  common.IndexId

	TenantName string
	TableName  string
	IndexName  string
	SchemaDoc  []byte
	IndexCols  []string

	// Row-mutation payload, opaque to the kernel: the SQL/projection layer
	// interprets it. The kernel only routes it into a WriteToLog effect.
	RowPayload []byte
	Stream     common.StreamId

	// Checkpoint/Compact parameters.
	Segments []uint32

	// Originating client, for NotifyClient / session bookkeeping performed
	// by the caller (the session table, not the kernel, owns request
	// numbers - the kernel only needs enough to address the reply).
	Client  common.ClientId
	Request common.RequestNumber
}
