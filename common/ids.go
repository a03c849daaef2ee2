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

// Package common holds the identifier newtypes and fixed-size hash shared
// across every Kimberlite package, in the same spirit as go-ethereum's
// common.Hash/common.Address: small value types with no behavior beyond
// formatting and comparison.
package common

import (
	"encoding/hex"
	"fmt"
)

// TenantId identifies a tenant namespace. TenantId 0 is reserved and never
// valid on the wire or in committed state.
type TenantId uint64

// Valid reports whether the tenant id is usable (nonzero).
func (t TenantId) Valid() bool { return t != 0 }

// StreamId identifies a log stream within a tenant.
type StreamId uint64

// ReplicaId identifies a voting or standby replica within a cluster.
type ReplicaId uint64

// ClientId identifies a client session. A restarted client must obtain a
// fresh ClientId (see session.Register) rather than reusing an old one -
// this is the fix for VRR bug 1 (successive client crashes).
type ClientId uint64

// RequestNumber is a per-client monotonic counter.
type RequestNumber uint64

// ViewNumber identifies a VSR leader epoch.
type ViewNumber uint64

// OpNumber is the position a leader assigns to a proposed command.
type OpNumber uint64

// CommitNumber is the highest OpNumber known to be committed.
type CommitNumber uint64

// Offset is a byte offset into a segment file.
type Offset uint64

// Position is the logical position of a record in the logical log (the
// concatenation of all segments in order).
type Position uint64

// TableId and IndexId identify schema objects scoped to a tenant.
type TableId uint64
type IndexId uint64

// IdempotencyId identifies a client-supplied idempotency token used by the
// kernel's idempotency cache.
type IdempotencyId [32]byte

func (id IdempotencyId) String() string {
	return hex.EncodeToString(id[:])
}

// Hash is a 32-byte cryptographic digest, used for the log's hash chain,
// segment hashes, and checkpoint roots.
type Hash [32]byte

// Zero reports whether the hash is the all-zero genesis sentinel.
func (h Hash) Zero() bool {
	return h == Hash{}
}

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// BytesToHash truncates or left-pads b into a Hash.
func BytesToHash(b []byte) Hash {
	var h Hash
	if len(b) > len(h) {
		b = b[len(b)-len(h):]
	}
	copy(h[len(h)-len(b):], b)
	return h
}

// GoString makes Hash print usefully under %#v and in test failures.
func (h Hash) GoString() string {
	return fmt.Sprintf("common.Hash(%s)", h.String())
}
