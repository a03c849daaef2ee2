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

package ledger

import (
	"fmt"
	"sync"
	"time"

	"github.com/kimberlitedb/kimberlite/common"
	"github.com/kimberlitedb/kimberlite/log"
	"github.com/kimberlitedb/kimberlite/metrics"
)

// SealedSegmentInfo is committed to the segment index (the storage
// layout's index.meta) when a segment seals.
type SealedSegmentInfo struct {
	Id        uint32
	Hash      common.Hash
	FirstPos  common.Position
	LastPos   common.Position
}

// Index persists segment metadata across restarts; rawdb provides a
// goleveldb-backed implementation, tests use an in-memory one.
type Index interface {
	RecordSeal(info SealedSegmentInfo) error
	SegmentForPosition(pos common.Position) (uint32, bool)
	Sealed() []SealedSegmentInfo
}

// memIndex is a trivial in-process Index, used when a caller has no
// durable index configured (tests, simulation).
type memIndex struct {
	mu     sync.Mutex
	sealed []SealedSegmentInfo
}

func NewMemIndex() Index { return &memIndex{} }

func (m *memIndex) RecordSeal(info SealedSegmentInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sealed = append(m.sealed, info)
	return nil
}

func (m *memIndex) SegmentForPosition(pos common.Position) (uint32, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sealed {
		if pos >= s.FirstPos && pos <= s.LastPos {
			return s.Id, true
		}
	}
	return 0, false
}

func (m *memIndex) Sealed() []SealedSegmentInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SealedSegmentInfo, len(m.sealed))
	copy(out, m.sealed)
	return out
}

var (
	appendLatency  = metrics.NewRegisteredTimer("ledger/append/latency", nil)
	appendTotal    = metrics.NewRegisteredCounter("ledger/append/total", nil)
	fsyncLatency   = metrics.NewRegisteredTimer("ledger/fsync/latency", nil)
	sealTotal      = metrics.NewRegisteredCounter("ledger/seal/total", nil)
	corruptedTotal = metrics.NewRegisteredCounter("ledger/corrupted/total", nil)
)

// Log is the hash-chained, segmented, append-only log described by
// spec.md §4.1: one active segment accepting writes, any number of sealed
// (immutable) segments behind it.
type Log struct {
	mu          sync.Mutex
	dir         string
	segmentSize int64
	active      *segment
	sealedByID  map[uint32]*segment
	index       Index
	nextPos     common.Position
	nextSegID   uint32
}

// Open creates or recovers a Log rooted at dir. If a previous active
// segment exists it is recovered (torn-write truncation per §4.1);
// otherwise a fresh segment 0 is created.
func Open(dir string, segmentSize int64, idx Index) (*Log, error) {
	if segmentSize <= 0 {
		segmentSize = DefaultSegmentSize
	}
	if idx == nil {
		idx = NewMemIndex()
	}
	l := &Log{dir: dir, segmentSize: segmentSize, sealedByID: make(map[uint32]*segment), index: idx}

	active, err := openSegment(dir, 0, segmentSize)
	if err != nil {
		active, err = createSegment(dir, 0, segmentSize, common.Hash{})
		if err != nil {
			return nil, err
		}
	}
	l.active = active
	l.nextSegID = 1
	l.nextPos = common.Position(len(active.index))
	return l, nil
}

// Append writes payload for stream to the active segment, rotating to a
// fresh segment on ErrSegmentFull, per the write-path algorithm in §4.1.
func (l *Log) Append(stream common.StreamId, tenant common.TenantId, tsMicros int64, eventType uint16, payload []byte) (common.Offset, error) {
	start := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	rec := Record{
		PrevHash: l.active.lastHash,
		Metadata: Metadata{
			Position:    l.nextPos,
			Tenant:      tenant,
			Stream:      stream,
			TimestampUs: tsMicros,
			EventType:   eventType,
		},
		Payload: payload,
	}
	offset, err := l.active.append(rec)
	if err == ErrSegmentFull {
		if sealErr := l.rotateLocked(); sealErr != nil {
			return 0, sealErr
		}
		rec.PrevHash = l.active.lastHash
		offset, err = l.active.append(rec)
	}
	if err != nil {
		return 0, err
	}
	l.nextPos++
	appendTotal.Inc(1)
	appendLatency.UpdateSince(start)
	return common.Offset(offset), nil
}

// rotateLocked seals the active segment and opens a fresh one. Caller
// holds l.mu.
func (l *Log) rotateLocked() error {
	hash, err := l.active.seal()
	if err != nil {
		return err
	}
	sealTotal.Inc(1)
	firstPos := common.Position(0)
	for p, off := range l.active.index {
		if off == 0 {
			firstPos = p
		}
	}
	lastPos := l.nextPos - 1
	info := SealedSegmentInfo{Id: l.active.id, Hash: hash, FirstPos: firstPos, LastPos: lastPos}
	if err := l.index.RecordSeal(info); err != nil {
		return err
	}
	l.sealedByID[l.active.id] = l.active
	log.Info("ledger: sealed segment", "id", l.active.id, "hash", hash, "lastPos", lastPos)

	fresh, err := createSegment(l.dir, l.nextSegID, l.segmentSize, l.active.lastHash)
	if err != nil {
		return err
	}
	l.active = fresh
	l.nextSegID++
	return nil
}

// ReadAt returns the record stored at pos, verifying its CRC on every
// call - callers must never cache this across segment reopen.
func (l *Log) ReadAt(stream common.StreamId, pos common.Position) (Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	seg := l.segmentForPosition(pos)
	if seg == nil {
		return Record{}, ErrNotFound
	}
	offset, ok := seg.index[pos]
	if !ok {
		return Record{}, ErrNotFound
	}
	rec, err := seg.readAt(offset)
	if err != nil {
		corruptedTotal.Inc(1)
		return Record{}, err
	}
	if rec.Metadata.Stream != stream {
		return Record{}, ErrWrongStream
	}
	return rec, nil
}

func (l *Log) segmentForPosition(pos common.Position) *segment {
	if _, ok := l.active.index[pos]; ok {
		return l.active
	}
	if id, ok := l.index.SegmentForPosition(pos); ok {
		if s, ok := l.sealedByID[id]; ok {
			return s
		}
	}
	return nil
}

// VerifyChain checks a sealed segment's full hash chain, returning the
// first offending position, if any.
func (l *Log) VerifyChain(segmentID uint32) (common.Position, bool, error) {
	l.mu.Lock()
	seg, ok := l.sealedByID[segmentID]
	if !ok && l.active.id == segmentID {
		seg = l.active
		ok = true
	}
	l.mu.Unlock()
	if !ok {
		return 0, false, fmt.Errorf("ledger: unknown segment %d", segmentID)
	}
	return seg.verifyChain()
}

// SealActive forces a seal/rotate even though the active segment is not
// full, for operator-triggered Checkpoint/Compact workflows.
func (l *Log) SealActive() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rotateLocked()
}

// Fsync flushes the active segment, used after a group-commit batch
// window closes.
func (l *Log) Fsync() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	start := time.Now()
	err := l.active.fsync()
	fsyncLatency.UpdateSince(start)
	return err
}

// Tip returns the current write position and the active segment's
// running hash, used by the VSR replica to populate Prepare.prev_hash.
func (l *Log) Tip() (common.Position, common.Hash) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.nextPos, l.active.lastHash
}

func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, s := range l.sealedByID {
		s.close()
	}
	return l.active.close()
}
