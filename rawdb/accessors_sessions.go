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

package rawdb

import (
	"encoding/binary"

	"github.com/kimberlitedb/kimberlite/common"
	"github.com/kimberlitedb/kimberlite/log"
)

// PersistedSession is the durable form of session.Committed. The reply is
// carried as already-serialized bytes: the runtime, not this package, owns
// encoding whatever reply value a command produced.
type PersistedSession struct {
	RequestNumber   common.RequestNumber
	CommittedOp     common.OpNumber
	ReplyOp         common.OpNumber
	CommitTimestamp int64
	Reply           []byte
}

func encodePersistedSession(s PersistedSession) []byte {
	buf := make([]byte, 32+len(s.Reply))
	binary.BigEndian.PutUint64(buf[0:8], uint64(s.RequestNumber))
	binary.BigEndian.PutUint64(buf[8:16], uint64(s.CommittedOp))
	binary.BigEndian.PutUint64(buf[16:24], uint64(s.ReplyOp))
	binary.BigEndian.PutUint64(buf[24:32], uint64(s.CommitTimestamp))
	copy(buf[32:], s.Reply)
	return buf
}

func decodePersistedSession(buf []byte) PersistedSession {
	return PersistedSession{
		RequestNumber:   common.RequestNumber(binary.BigEndian.Uint64(buf[0:8])),
		CommittedOp:     common.OpNumber(binary.BigEndian.Uint64(buf[8:16])),
		ReplyOp:         common.OpNumber(binary.BigEndian.Uint64(buf[16:24])),
		CommitTimestamp: int64(binary.BigEndian.Uint64(buf[24:32])),
		Reply:           append([]byte(nil), buf[32:]...),
	}
}

// WriteCommittedSession persists a client's committed session. Like the
// teacher's non-atomic Write* helpers, failures are fatal here. Nothing in
// the module calls it outside tests; session.Table keeps its entries in
// memory only.
func (d *Database) WriteCommittedSession(client common.ClientId, s PersistedSession) {
	if err := d.put(sessionCommittedKey(uint64(client)), encodePersistedSession(s)); err != nil {
		log.Crit("Failed to write committed session", "client", client, "err", err)
	}
}

// ReadCommittedSession reads a client's committed session, if any.
func (d *Database) ReadCommittedSession(client common.ClientId) (PersistedSession, error) {
	data, err := d.get(sessionCommittedKey(uint64(client)))
	if err != nil {
		return PersistedSession{}, err
	}
	return decodePersistedSession(data), nil
}

// HasCommittedSession reports whether client has a persisted session.
func (d *Database) HasCommittedSession(client common.ClientId) (bool, error) {
	return d.has(sessionCommittedKey(uint64(client)))
}

// DeleteCommittedSession removes a client's persisted session. Eviction
// from session.Table does not call it.
func (d *Database) DeleteCommittedSession(client common.ClientId) {
	if err := d.delete(sessionCommittedKey(uint64(client))); err != nil {
		log.Crit("Failed to delete committed session", "client", client, "err", err)
	}
}

// ReadAllCommittedSessions loads every persisted committed session. Replica
// startup does not call it; session.Table starts empty.
func (d *Database) ReadAllCommittedSessions() (map[common.ClientId]PersistedSession, error) {
	out := make(map[common.ClientId]PersistedSession)
	err := d.iteratePrefix(sessionCommittedPrefix, func(suffix, value []byte) bool {
		client := common.ClientId(binary.BigEndian.Uint64(suffix))
		out[client] = decodePersistedSession(value)
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
