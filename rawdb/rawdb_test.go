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
	"reflect"
	"testing"

	"github.com/kimberlitedb/kimberlite/common"
	"github.com/kimberlitedb/kimberlite/ledger"
)

func openTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestCommittedSessionRoundTrip(t *testing.T) {
	db := openTestDB(t)
	client := common.ClientId(42)
	s := PersistedSession{RequestNumber: 3, CommittedOp: 7, ReplyOp: 7, CommitTimestamp: 1000, Reply: []byte("ok")}
	db.WriteCommittedSession(client, s)

	got, err := db.ReadCommittedSession(client)
	if err != nil {
		t.Fatalf("ReadCommittedSession: %v", err)
	}
	if !reflect.DeepEqual(got, s) {
		t.Fatalf("got %+v want %+v", got, s)
	}

	if ok, err := db.HasCommittedSession(client); err != nil || !ok {
		t.Fatalf("HasCommittedSession: ok=%v err=%v", ok, err)
	}
	db.DeleteCommittedSession(client)
	if ok, _ := db.HasCommittedSession(client); ok {
		t.Fatal("session should be deleted")
	}
}

func TestReadAllCommittedSessions(t *testing.T) {
	db := openTestDB(t)
	db.WriteCommittedSession(common.ClientId(1), PersistedSession{RequestNumber: 1})
	db.WriteCommittedSession(common.ClientId(2), PersistedSession{RequestNumber: 2})

	all, err := db.ReadAllCommittedSessions()
	if err != nil {
		t.Fatalf("ReadAllCommittedSessions: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(all))
	}
}

func TestSegmentIndexPersistsAcrossReload(t *testing.T) {
	db := openTestDB(t)
	idx, err := NewSegmentIndex(db)
	if err != nil {
		t.Fatalf("NewSegmentIndex: %v", err)
	}
	info := ledger.SealedSegmentInfo{Id: 1, FirstPos: 0, LastPos: 9}
	if err := idx.RecordSeal(info); err != nil {
		t.Fatalf("RecordSeal: %v", err)
	}
	if id, ok := idx.SegmentForPosition(5); !ok || id != 1 {
		t.Fatalf("SegmentForPosition: id=%d ok=%v", id, ok)
	}

	reloaded, err := NewSegmentIndex(db)
	if err != nil {
		t.Fatalf("reload NewSegmentIndex: %v", err)
	}
	if id, ok := reloaded.SegmentForPosition(5); !ok || id != 1 {
		t.Fatalf("after reload: id=%d ok=%v", id, ok)
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	db := openTestDB(t)
	c := Checkpoint{Position: 100, StateHash: common.Hash{0xAB}, CreatedAt: 12345}
	if err := db.WriteCheckpoint(c); err != nil {
		t.Fatalf("WriteCheckpoint: %v", err)
	}
	got, err := db.ReadCheckpoint(100)
	if err != nil {
		t.Fatalf("ReadCheckpoint: %v", err)
	}
	if got != c {
		t.Fatalf("got %+v want %+v", got, c)
	}
	latest, err := db.ReadLatestCheckpoint()
	if err != nil {
		t.Fatalf("ReadLatestCheckpoint: %v", err)
	}
	if latest != c {
		t.Fatalf("latest got %+v want %+v", latest, c)
	}
}

func TestScrubCursorPersistence(t *testing.T) {
	db := openTestDB(t)
	if got := db.ReadScrubCursor(); got != 0 {
		t.Fatalf("expected 0 default cursor, got %d", got)
	}
	db.WriteScrubCursor(7)
	if got := db.ReadScrubCursor(); got != 7 {
		t.Fatalf("got %d want 7", got)
	}
}
