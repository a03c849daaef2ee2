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

// assertState panics on a violated postcondition - an invariant the kernel
// itself is responsible for, never a consequence of bad input. A panic
// here means a bug in the kernel, not a bad command; the runtime's only
// correct response is to halt the replica (the Fatal error class noted in
// DESIGN.md's kernel entry).
func assertState(cond bool, msg string) {
	if !cond {
		panic("kernel invariant violated: " + msg)
	}
}

// Apply maps (state, command) to (state', effects) or a typed Error. It
// never mutates state in place for a rejected command: on error, state is
// returned unchanged.
//
// Apply(s, c) called twice with equal (s, c) always returns an equal
// result: no field here is read from a clock, an RNG, or anything but s
// and c.
func Apply(state *State, cmd Command) (*State, []Effect, *Error) {
	assertState(state != nil, "state must not be nil")

	if cmd.HasIdempotencyId {
		if cached, ok := state.Idempotency.get(cmd.IdempotencyId); ok {
			return state, []Effect{{
				Kind:     NotifyClient,
				Client:   cmd.Client,
				Request:  cmd.Request,
				Result:   cached.Result,
				IsReplay: true,
			}}, nil
		}
	}

	next := state.Clone()
	var effects []Effect
	var err *Error

	switch cmd.Kind {
	case CreateTenant:
		effects, err = applyCreateTenant(next, cmd)
	case DeleteTenant:
		effects, err = applyDeleteTenant(next, cmd)
	case CreateTable:
		effects, err = applyCreateTable(next, cmd)
	case DropTable:
		effects, err = applyDropTable(next, cmd)
	case CreateIndex:
		effects, err = applyCreateIndex(next, cmd)
	case DropIndex:
		effects, err = applyDropIndex(next, cmd)
	case InsertRow, UpdateRow, DeleteRow:
		effects, err = applyRowMutation(next, cmd)
	case Checkpoint:
		effects, err = applyCheckpoint(next, cmd)
	case Compact:
		effects, err = applyCompact(next, cmd)
	case Query:
		effects, err = applyQuery(next, cmd)
	default:
		err = newError(InvalidCommand, "unrecognized command kind %d", cmd.Kind)
	}

	if err != nil {
		return state, nil, err
	}

	next.Position = state.Position + 1
	assertState(next.Position == state.Position+1, "position must advance exactly one per applied command")
	assertState(cmd.Kind == Query || len(effects) > 0, "a mutating command must emit at least one effect")

	if cmd.HasIdempotencyId {
		next.Idempotency.put(cmd.IdempotencyId, idempotencyResult{
			Position: next.Position,
			Result:   effectsResult(effects),
		})
	}

	return next, effects, nil
}

// effectsResult picks the value cached for idempotent replay: the
// NotifyClient effect's Result if the command produced one, else nil.
func effectsResult(effects []Effect) interface{} {
	for _, e := range effects {
		if e.Kind == NotifyClient {
			return e.Result
		}
	}
	return nil
}

func applyCreateTenant(s *State, cmd Command) ([]Effect, *Error) {
	assertState(cmd.Kind == CreateTenant, "applyCreateTenant called with wrong command kind")
	if !cmd.Tenant.Valid() {
		return nil, newError(InvalidCommand, "tenant id must be nonzero")
	}
	if existing, ok := s.Tenants[cmd.Tenant]; ok && !existing.Deleted {
		return nil, newError(TenantAlreadyExists, "tenant %d already exists", cmd.Tenant)
	}
	s.Tenants[cmd.Tenant] = TenantMetadata{
		Id:        cmd.Tenant,
		Name:      cmd.TenantName,
		CreatedAt: cmd.TimestampUs,
	}
	assertState(s.Tenants[cmd.Tenant].Id == cmd.Tenant, "tenant must be recorded under its own id")
	return []Effect{
		{Kind: WriteToLog, Stream: cmd.Stream, Payload: cmd.SchemaDoc},
		{Kind: AuditLogAppend, Stream: cmd.Stream, Payload: []byte("tenant_created:" + cmd.TenantName)},
	}, nil
}

func applyDeleteTenant(s *State, cmd Command) ([]Effect, *Error) {
	assertState(cmd.Kind == DeleteTenant, "applyDeleteTenant called with wrong command kind")
	tenant, ok := s.Tenants[cmd.Tenant]
	if !ok || tenant.Deleted {
		return nil, newError(TenantNotFound, "tenant %d not found", cmd.Tenant)
	}
	tenant.Deleted = true
	s.Tenants[cmd.Tenant] = tenant
	assertState(s.Tenants[cmd.Tenant].Deleted, "tenant must be marked deleted")
	return []Effect{
		{Kind: AuditLogAppend, Stream: cmd.Stream, Payload: []byte("tenant_deleted")},
	}, nil
}

func requireLiveTenant(s *State, id common.TenantId) *Error {
	tenant, ok := s.Tenants[id]
	if !ok || tenant.Deleted {
		return newError(TenantNotFound, "tenant %d not found", id)
	}
	return nil
}

func applyCreateTable(s *State, cmd Command) ([]Effect, *Error) {
	assertState(cmd.Kind == CreateTable, "applyCreateTable called with wrong command kind")
	if err := requireLiveTenant(s, cmd.Tenant); err != nil {
		return nil, err
	}
	key := TableKey{Tenant: cmd.Tenant, Table: cmd.Table}
	if existing, ok := s.Tables[key]; ok && !existing.Dropped {
		return nil, newError(TableAlreadyExists, "table %+v already exists", key)
	}
	s.Tables[key] = TableSchema{Key: key, Name: cmd.TableName, Version: 1, SchemaDoc: cmd.SchemaDoc}
	assertState(s.Tables[key].Version == 1, "new table must start at schema version 1")
	return []Effect{
		{Kind: TableMetadataWrite, TableKey: key},
		{Kind: WakeProjection, ProjectionTarget: cmd.TableName},
	}, nil
}

func applyDropTable(s *State, cmd Command) ([]Effect, *Error) {
	assertState(cmd.Kind == DropTable, "applyDropTable called with wrong command kind")
	key := TableKey{Tenant: cmd.Tenant, Table: cmd.Table}
	table, ok := s.Tables[key]
	if !ok || table.Dropped {
		return nil, newError(TableNotFound, "table %+v not found", key)
	}
	table.Dropped = true
	s.Tables[key] = table
	assertState(s.Tables[key].Dropped, "table must be marked dropped")
	return []Effect{{Kind: TableMetadataDrop, TableKey: key}}, nil
}

func applyCreateIndex(s *State, cmd Command) ([]Effect, *Error) {
	assertState(cmd.Kind == CreateIndex, "applyCreateIndex called with wrong command kind")
	tableKey := TableKey{Tenant: cmd.Tenant, Table: cmd.Table}
	table, ok := s.Tables[tableKey]
	if !ok || table.Dropped {
		return nil, newError(TableNotFound, "table %+v not found", tableKey)
	}
	key := IndexKey{Tenant: cmd.Tenant, Index: cmd.Index}
	s.Indexes[key] = IndexSchema{Key: key, Table: cmd.Table, Name: cmd.IndexName, Columns: cmd.IndexCols}
	assertState(s.Indexes[key].Table == cmd.Table, "index must record its owning table")
	return []Effect{{Kind: IndexMetadataWrite, IndexKey: key}}, nil
}

func applyDropIndex(s *State, cmd Command) ([]Effect, *Error) {
	assertState(cmd.Kind == DropIndex, "applyDropIndex called with wrong command kind")
	key := IndexKey{Tenant: cmd.Tenant, Index: cmd.Index}
	index, ok := s.Indexes[key]
	if !ok || index.Dropped {
		return nil, newError(IndexNotFound, "index %+v not found", key)
	}
	index.Dropped = true
	s.Indexes[key] = index
	assertState(s.Indexes[key].Dropped, "index must be marked dropped")
	return []Effect{{Kind: IndexMetadataWrite, IndexKey: key}}, nil
}

func applyRowMutation(s *State, cmd Command) ([]Effect, *Error) {
	assertState(cmd.Kind == InsertRow || cmd.Kind == UpdateRow || cmd.Kind == DeleteRow, "applyRowMutation called with wrong command kind")
	tableKey := TableKey{Tenant: cmd.Tenant, Table: cmd.Table}
	table, ok := s.Tables[tableKey]
	if !ok || table.Dropped {
		return nil, newError(TableNotFound, "table %+v not found", tableKey)
	}
	if len(cmd.RowPayload) == 0 && cmd.Kind != DeleteRow {
		return nil, newError(InvalidCommand, "row payload must not be empty for %v", cmd.Kind)
	}
	return []Effect{
		{Kind: WriteToLog, Stream: cmd.Stream, Payload: cmd.RowPayload},
		{Kind: UpdateProjection, ProjectionTarget: table.Name},
		{Kind: NotifyClient, Client: cmd.Client, Request: cmd.Request, Result: "ok"},
	}, nil
}

func applyCheckpoint(s *State, cmd Command) ([]Effect, *Error) {
	assertState(cmd.Kind == Checkpoint, "applyCheckpoint called with wrong command kind")
	assertState(s.Position >= 0, "position must be non-negative before checkpoint")
	return []Effect{
		{Kind: FlushToDisk},
		{Kind: AuditLogAppend, Stream: cmd.Stream, Payload: []byte("checkpoint")},
	}, nil
}

func applyCompact(s *State, cmd Command) ([]Effect, *Error) {
	assertState(cmd.Kind == Compact, "applyCompact called with wrong command kind")
	if len(cmd.Segments) == 0 {
		return nil, newError(InvalidCommand, "compact requires at least one segment")
	}
	effects := make([]Effect, 0, len(cmd.Segments)+1)
	for range cmd.Segments {
		effects = append(effects, Effect{Kind: DeleteFile})
	}
	effects = append(effects, Effect{Kind: AuditLogAppend, Stream: cmd.Stream, Payload: []byte("compacted")})
	assertState(len(effects) == len(cmd.Segments)+1, "compact must emit one effect per segment plus an audit record")
	return effects, nil
}

func applyQuery(s *State, cmd Command) ([]Effect, *Error) {
	assertState(cmd.Kind == Query, "applyQuery called with wrong command kind")
	if err := requireLiveTenant(s, cmd.Tenant); err != nil {
		return nil, err
	}
	// Read-only: no state mutation, only a reply effect.
	return []Effect{{Kind: NotifyClient, Client: cmd.Client, Request: cmd.Request, Result: "query-ack"}}, nil
}
