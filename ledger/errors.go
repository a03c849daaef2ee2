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

import "errors"

var (
	// ErrSegmentFull is returned by append when the active segment has no
	// room for the record; the caller should rotate and retry.
	ErrSegmentFull = errors.New("ledger: segment full")
	// ErrInvalidStream is returned when a stream id is out of range for
	// the record being appended.
	ErrInvalidStream = errors.New("ledger: invalid stream")
	// ErrNotFound is returned by read_at for an unknown position.
	ErrNotFound = errors.New("ledger: record not found")
	// ErrCorruptedEntry is returned by read_at when the stored CRC does
	// not match the recomputed one.
	ErrCorruptedEntry = errors.New("ledger: corrupted entry")
	// ErrChainBroken is returned when a record's prev_hash does not match
	// the predecessor's hash.
	ErrChainBroken = errors.New("ledger: chain broken")
	// ErrWrongStream is returned when a read targets a stream the record
	// does not belong to.
	ErrWrongStream = errors.New("ledger: wrong stream")
)
