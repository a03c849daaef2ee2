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

	"github.com/kimberlitedb/kimberlite/log"
)

// WriteScrubCursor persists the id of the last segment a scrub tour fully
// verified. ledger.Scrubber does not call it or ReadScrubCursor; every
// tour covers all sealed segments.
func (d *Database) WriteScrubCursor(segmentID uint32) {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, segmentID)
	if err := d.put(scrubCursorKey, buf); err != nil {
		log.Crit("Failed to write scrub cursor", "segment", segmentID, "err", err)
	}
}

// ReadScrubCursor returns the last fully-verified segment id, or 0 if no
// tour has completed a segment yet.
func (d *Database) ReadScrubCursor() uint32 {
	data, err := d.get(scrubCursorKey)
	if err != nil || len(data) != 4 {
		return 0
	}
	return binary.BigEndian.Uint32(data)
}

// RepairStats is a durable snapshot of a RepairBudget's EWMA state.
// ledger.RepairBudget neither saves nor loads it, so its EWMA starts from
// zero on every restart.
type RepairStats struct {
	EWMALatencyMicros uint64
}

func (d *Database) WriteRepairStats(s RepairStats) {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, s.EWMALatencyMicros)
	if err := d.put(repairStatsKey, buf); err != nil {
		log.Crit("Failed to write repair stats", "err", err)
	}
}

func (d *Database) ReadRepairStats() (RepairStats, error) {
	data, err := d.get(repairStatsKey)
	if err != nil {
		return RepairStats{}, err
	}
	return RepairStats{EWMALatencyMicros: binary.BigEndian.Uint64(data)}, nil
}
