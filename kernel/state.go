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

// Package kernel implements Kimberlite's pure, deterministic state machine:
// apply(state, command) -> (state', effects). It performs no I/O, reads no
// clock, and consults no RNG - every input the transition needs arrives as
// an explicit Command field, so a replayed log always reproduces identical
// state (see DESIGN.md's note on the idempotency cache for the one place
// this requires care).
package kernel

import "github.com/kimberlitedb/kimberlite/common"

// TenantMetadata is the per-tenant record the kernel owns.
type TenantMetadata struct {
	Id        common.TenantId
	Name      string
	CreatedAt int64 // µs, supplied by the command, never sampled locally
	Deleted   bool
}

// TableKey scopes a TableSchema to its tenant.
type TableKey struct {
	Tenant common.TenantId
	Table  common.TableId
}

// TableSchema describes a table's column layout version, not its rows -
// rows live in the projection store outside the core.
type TableSchema struct {
	Key       TableKey
	Name      string
	Version   uint32
	SchemaDoc []byte // opaque, owned by the SQL-layer collaborator
	Dropped   bool
}

// IndexKey scopes an IndexSchema to its tenant.
type IndexKey struct {
	Tenant common.TenantId
	Index  common.IndexId
}

// IndexSchema describes an index definition.
type IndexSchema struct {
	Key     IndexKey
	Table   common.TableId
	Name    string
	Columns []string
	Dropped bool
}

// State is the kernel's entire world. Deleting State and replaying the log
// from genesis (or from a checkpoint) must yield a byte-identical State -
// that equivalence is what makes recovery and standby catch-up possible.
type State struct {
	Position    common.Position
	Tenants     map[common.TenantId]TenantMetadata
	Tables      map[TableKey]TableSchema
	Indexes     map[IndexKey]IndexSchema
	Idempotency *idempotencyCache
}

// NewState returns an empty kernel state at the genesis position, with an
// idempotency cache bounded to maxIdempotencyEntries.
func NewState(maxIdempotencyEntries int) *State {
	return &State{
		Tenants:     make(map[common.TenantId]TenantMetadata),
		Tables:      make(map[TableKey]TableSchema),
		Indexes:     make(map[IndexKey]IndexSchema),
		Idempotency: newIdempotencyCache(maxIdempotencyEntries),
	}
}

// Clone returns a deep copy. Apply transitions a clone, so a rejected
// command leaves the state it was handed unchanged.
func (s *State) Clone() *State {
	clone := &State{
		Position:    s.Position,
		Tenants:     make(map[common.TenantId]TenantMetadata, len(s.Tenants)),
		Tables:      make(map[TableKey]TableSchema, len(s.Tables)),
		Indexes:     make(map[IndexKey]IndexSchema, len(s.Indexes)),
		Idempotency: s.Idempotency.clone(),
	}
	for k, v := range s.Tenants {
		clone.Tenants[k] = v
	}
	for k, v := range s.Tables {
		clone.Tables[k] = v
	}
	for k, v := range s.Indexes {
		clone.Indexes[k] = v
	}
	return clone
}
