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

import "encoding/binary"

// Key prefixes, one table per concern, mirroring the one-file-per-table
// accessor layout of the teacher's rawdb package.
var (
	sessionCommittedPrefix = []byte("s-committed-")
	segmentSealedPrefix    = []byte("l-sealed-")
	checkpointPrefix       = []byte("c-checkpoint-")
	scrubCursorKey         = []byte("scrub-cursor")
	repairStatsKey         = []byte("repair-stats")
	latestCheckpointKey    = []byte("c-latest")
)

func sessionCommittedKey(clientID uint64) []byte {
	buf := make([]byte, len(sessionCommittedPrefix)+8)
	copy(buf, sessionCommittedPrefix)
	binary.BigEndian.PutUint64(buf[len(sessionCommittedPrefix):], clientID)
	return buf
}

func segmentSealedKey(segmentID uint32) []byte {
	buf := make([]byte, len(segmentSealedPrefix)+4)
	copy(buf, segmentSealedPrefix)
	binary.BigEndian.PutUint32(buf[len(segmentSealedPrefix):], segmentID)
	return buf
}

func checkpointKey(position uint64) []byte {
	buf := make([]byte, len(checkpointPrefix)+8)
	copy(buf, checkpointPrefix)
	binary.BigEndian.PutUint64(buf[len(checkpointPrefix):], position)
	return buf
}
