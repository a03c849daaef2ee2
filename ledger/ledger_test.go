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
	"bytes"
	"os"
	"testing"

	"github.com/kimberlitedb/kimberlite/common"
)

func TestRecordEncodeDecodeRoundTrip(t *testing.T) {
	rec := Record{
		PrevHash: common.Hash{0x01},
		Metadata: Metadata{Position: 3, Tenant: 1, Stream: 2, TimestampUs: 99, EventType: 7},
		Payload:  []byte("hello kimberlite"),
	}
	encoded := rec.encode()
	decoded, err := decodeRecord(encoded[lengthFieldSize:])
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded.PrevHash != rec.PrevHash {
		t.Fatal("prev_hash mismatch on round trip")
	}
	if decoded.Metadata != rec.Metadata {
		t.Fatalf("metadata mismatch: got %+v want %+v", decoded.Metadata, rec.Metadata)
	}
	if !bytes.Equal(decoded.Payload, rec.Payload) {
		t.Fatal("payload mismatch on round trip")
	}
}

func TestRecordCorruptedEntryDetected(t *testing.T) {
	rec := Record{Metadata: Metadata{Position: 1}, Payload: []byte("x")}
	encoded := rec.encode()
	encoded[len(encoded)-1] ^= 0xFF // flip a payload bit
	if _, err := decodeRecord(encoded[lengthFieldSize:]); err != ErrCorruptedEntry {
		t.Fatalf("expected ErrCorruptedEntry, got %v", err)
	}
}

func TestLogAppendReadAtRoundTrip(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir, 1<<20, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer l.Close()

	off, err := l.Append(1, 1, 1000, 1, []byte("payload-1"))
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	_ = off

	rec, err := l.ReadAt(1, 0)
	if err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if !bytes.Equal(rec.Payload, []byte("payload-1")) {
		t.Fatalf("got payload %q", rec.Payload)
	}
}

func TestLogChainedHashesAcrossRecords(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir, 1<<20, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer l.Close()

	for i := 0; i < 3; i++ {
		if _, err := l.Append(1, 1, int64(i), 0, []byte{byte(i)}); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}
	rec1, _ := l.ReadAt(1, 1)
	rec0, _ := l.ReadAt(1, 0)
	if rec1.PrevHash != rec0.Hash() {
		t.Fatal("record 1's prev_hash must equal record 0's hash")
	}
}

func TestLogGenesisPrevHashZero(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir, 1<<20, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer l.Close()
	if _, err := l.Append(1, 1, 0, 0, []byte("genesis")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	rec, _ := l.ReadAt(1, 0)
	if !rec.PrevHash.Zero() {
		t.Fatal("genesis record must have zero prev_hash")
	}
}

func TestLogWrongStreamRejected(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir, 1<<20, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer l.Close()
	if _, err := l.Append(1, 1, 0, 0, []byte("x")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := l.ReadAt(2, 0); err != ErrWrongStream {
		t.Fatalf("expected ErrWrongStream, got %v", err)
	}
}

func TestLogSealAndVerifyChain(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir, 1<<20, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer l.Close()
	for i := 0; i < 5; i++ {
		if _, err := l.Append(1, 1, int64(i), 0, []byte{byte(i)}); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}
	sealedID := l.active.id
	if err := l.SealActive(); err != nil {
		t.Fatalf("SealActive: %v", err)
	}
	if _, broken, err := l.VerifyChain(sealedID); err != nil || broken {
		t.Fatalf("VerifyChain reported a break on a healthy chain: broken=%v err=%v", broken, err)
	}
}

func TestSegmentRecoveryTruncatesTornTail(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir, 1<<20, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := l.Append(1, 1, 0, 0, []byte("good-record")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	goodWritten := l.active.written
	// Simulate a torn write: corrupt a byte just past the good record so
	// the next open must stop there rather than trusting garbage.
	f, err := os.OpenFile(l.active.path, os.O_RDWR, 0o644)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	garbage := []byte{0x01, 0x00, 0x00, 0x00, 0xFF, 0xFF, 0xFF, 0xFF}
	if _, err := f.WriteAt(garbage, goodWritten); err != nil {
		t.Fatalf("write garbage: %v", err)
	}
	f.Close()
	l.Close()

	recovered, err := Open(dir, 1<<20, nil)
	if err != nil {
		t.Fatalf("reopen after torn write: %v", err)
	}
	defer recovered.Close()
	rec, err := recovered.ReadAt(1, 0)
	if err != nil {
		t.Fatalf("good record must survive recovery: %v", err)
	}
	if !bytes.Equal(rec.Payload, []byte("good-record")) {
		t.Fatalf("unexpected payload after recovery: %q", rec.Payload)
	}
	if recovered.active.written != goodWritten {
		t.Fatalf("recovery must truncate at the torn tail: got %d want %d", recovered.active.written, goodWritten)
	}
}
