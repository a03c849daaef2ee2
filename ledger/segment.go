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
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kimberlitedb/kimberlite/common"
	"github.com/kimberlitedb/kimberlite/crypto"
	"github.com/kimberlitedb/kimberlite/log"
)

// DefaultSegmentSize is the preallocated capacity of a fresh segment file,
// matching spec.md §3's "default 1 GiB" sizing.
const DefaultSegmentSize = 1 << 30

// segmentFileName renders the 8-digit zero-padded segment file name the
// storage layout (spec.md §6) mandates.
func segmentFileName(id uint32) string {
	return fmt.Sprintf("%08d.segment", id)
}

// segment is one fixed-capacity, preallocated, sequentially-appended file.
// Only the active segment is ever written to; sealed segments are
// immutable for the remainder of the process's life.
type segment struct {
	id       uint32
	path     string
	file     *os.File
	capacity int64
	written  int64 // bytes actually used, <= capacity
	sealed   bool
	lastHash common.Hash
	// index maps the position of each record's first byte to its file
	// offset, so read_at can seek directly instead of scanning.
	index map[common.Position]int64
}

// createSegment preallocates a new active segment file of the given
// capacity, seeded with lastHash as the chain's running tip.
func createSegment(dir string, id uint32, capacity int64, lastHash common.Hash) (*segment, error) {
	path := filepath.Join(dir, segmentFileName(id))
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("ledger: create segment %d: %w", id, err)
	}
	if err := f.Truncate(capacity); err != nil {
		f.Close()
		return nil, fmt.Errorf("ledger: preallocate segment %d: %w", id, err)
	}
	return &segment{
		id: id, path: path, file: f, capacity: capacity,
		lastHash: lastHash, index: make(map[common.Position]int64),
	}, nil
}

// openSegment opens an existing segment file, scanning its tail so torn
// writes are caught before the segment is trusted.
func openSegment(dir string, id uint32, capacity int64) (*segment, error) {
	path := filepath.Join(dir, segmentFileName(id))
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("ledger: open segment %d: %w", id, err)
	}
	s := &segment{id: id, path: path, file: f, capacity: capacity, index: make(map[common.Position]int64)}
	if err := s.recover(); err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

// recover scans from the start of the file, verifying CRC on each record
// and stopping (truncating any trailing garbage) at the first failure -
// the torn-write recovery algorithm from spec.md §4.1.
func (s *segment) recover() error {
	var offset int64
	var pos common.Position
	var lastHash common.Hash
	for offset+lengthFieldSize <= s.capacity {
		lengthBuf := make([]byte, lengthFieldSize)
		if _, err := s.file.ReadAt(lengthBuf, offset); err != nil {
			break
		}
		afterLength := binary.LittleEndian.Uint32(lengthBuf)
		if afterLength == 0 || afterLength < afterLengthSize {
			break // padding / never written
		}
		recBuf := make([]byte, afterLength)
		if _, err := s.file.ReadAt(recBuf, offset+lengthFieldSize); err != nil {
			break
		}
		rec, err := decodeRecord(recBuf)
		if err != nil {
			log.Warn("ledger: truncating torn tail", "segment", s.id, "offset", offset, "err", err)
			break
		}
		if rec.PrevHash != lastHash {
			log.Warn("ledger: chain break on recovery, truncating", "segment", s.id, "offset", offset)
			break
		}
		s.index[rec.Metadata.Position] = offset
		lastHash = rec.Hash()
		pos = rec.Metadata.Position + 1
		offset += int64(lengthFieldSize) + int64(afterLength)
	}
	s.written = offset
	s.lastHash = lastHash
	_ = pos
	return nil
}

// append writes rec at the segment's current write cursor, returning the
// byte offset it was written at, or ErrSegmentFull if it would not fit.
func (s *segment) append(rec Record) (int64, error) {
	if s.sealed {
		return 0, fmt.Errorf("ledger: segment %d is sealed", s.id)
	}
	size := int64(rec.encodedSize())
	if s.written+size > s.capacity {
		return 0, ErrSegmentFull
	}
	buf := rec.encode()
	offset := s.written
	if _, err := s.file.WriteAt(buf, offset); err != nil {
		return 0, fmt.Errorf("ledger: write segment %d: %w", s.id, err)
	}
	s.written += size
	s.index[rec.Metadata.Position] = offset
	s.lastHash = rec.Hash()
	return offset, nil
}

// fsync flushes the segment file to stable storage.
func (s *segment) fsync() error {
	return s.file.Sync()
}

// readAt decodes the record stored at the given file offset.
func (s *segment) readAt(offset int64) (Record, error) {
	lengthBuf := make([]byte, lengthFieldSize)
	if _, err := s.file.ReadAt(lengthBuf, offset); err != nil {
		return Record{}, ErrNotFound
	}
	afterLength := binary.LittleEndian.Uint32(lengthBuf)
	recBuf := make([]byte, afterLength)
	if _, err := s.file.ReadAt(recBuf, offset+lengthFieldSize); err != nil {
		return Record{}, ErrNotFound
	}
	return decodeRecord(recBuf)
}

// verifyChain re-derives every record's hash and checks it against the
// next record's prev_hash, returning the first offending position if any.
func (s *segment) verifyChain() (common.Position, bool, error) {
	var prevHash common.Hash
	offsets := s.sortedOffsets()
	for i, offset := range offsets {
		rec, err := s.readAt(offset)
		if err != nil {
			return rec.Metadata.Position, true, err
		}
		if i > 0 && rec.PrevHash != prevHash {
			return rec.Metadata.Position, true, ErrChainBroken
		}
		prevHash = rec.Hash()
	}
	return 0, false, nil
}

func (s *segment) sortedOffsets() []int64 {
	positions := make([]common.Position, 0, len(s.index))
	for p := range s.index {
		positions = append(positions, p)
	}
	// Selection sort: segments hold a bounded, modest record count per
	// scrubber tour window, so O(n^2) here is not a hot path.
	for i := 0; i < len(positions); i++ {
		min := i
		for j := i + 1; j < len(positions); j++ {
			if positions[j] < positions[min] {
				min = j
			}
		}
		positions[i], positions[min] = positions[min], positions[i]
	}
	offsets := make([]int64, len(positions))
	for i, p := range positions {
		offsets[i] = s.index[p]
	}
	return offsets
}

// seal fsyncs, computes the segment hash, and marks the segment read-only
// in memory (callers must not append to it afterward).
func (s *segment) seal() (common.Hash, error) {
	if err := s.fsync(); err != nil {
		return common.Hash{}, err
	}
	h := crypto.SealSegment(s.lastHash, s.id, uint64(len(s.index)))
	s.sealed = true
	return h, nil
}

func (s *segment) close() error {
	return s.file.Close()
}
