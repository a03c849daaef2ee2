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

// Package ledger implements Kimberlite's hash-chained, append-only,
// segmented log: the durable substrate every committed command is written
// to before (or after, consistently) the kernel applies it.
package ledger

import (
	"encoding/binary"
	"fmt"

	"github.com/kimberlitedb/kimberlite/common"
	"github.com/kimberlitedb/kimberlite/crypto"
)

// MetadataSize is the fixed metadata block size mandated by the wire
// format: position(8) | tenant(8) | stream(8) | ts_micros(8) | event_type(2)
// | reserved(6) = 40 bytes.
const MetadataSize = 40

// lengthFieldSize is the on-disk u32 length prefix's own size.
const lengthFieldSize = 4

// afterLengthSize is crc32(4) + prev_hash(32): the header bytes the u32
// length field's value counts (everything after the length field itself).
const afterLengthSize = 4 + 32

// Metadata is the fixed 40-byte record metadata block.
type Metadata struct {
	Position    common.Position
	Tenant      common.TenantId
	Stream      common.StreamId
	TimestampUs int64
	EventType   uint16
}

func (m Metadata) encode() [MetadataSize]byte {
	var buf [MetadataSize]byte
	binary.LittleEndian.PutUint64(buf[0:8], uint64(m.Position))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(m.Tenant))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(m.Stream))
	binary.LittleEndian.PutUint64(buf[24:32], uint64(m.TimestampUs))
	binary.LittleEndian.PutUint16(buf[32:34], m.EventType)
	// buf[34:40] left zero: 6 reserved bytes.
	return buf
}

func decodeMetadata(buf []byte) Metadata {
	return Metadata{
		Position:    common.Position(binary.LittleEndian.Uint64(buf[0:8])),
		Tenant:      common.TenantId(binary.LittleEndian.Uint64(buf[8:16])),
		Stream:      common.StreamId(binary.LittleEndian.Uint64(buf[16:24])),
		TimestampUs: int64(binary.LittleEndian.Uint64(buf[24:32])),
		EventType:   binary.LittleEndian.Uint16(buf[32:34]),
	}
}

// Record is one decoded log entry: length | crc32 | prev_hash | metadata |
// payload, little-endian packed per the external wire format.
type Record struct {
	PrevHash common.Hash
	Metadata Metadata
	Payload  []byte
}

// Hash computes SHA-256(prev_hash ‖ checksummed_fields) - the hash this
// record contributes to the chain, which the following record must carry
// as its PrevHash.
func (r Record) Hash() common.Hash {
	return crypto.ChainHash(r.PrevHash, r.checksummedFields())
}

// checksummedFields returns metadata‖payload, the span the chain hash
// covers after prev_hash. The CRC covers prev_hash followed by these bytes.
func (r Record) checksummedFields() []byte {
	md := r.Metadata.encode()
	buf := make([]byte, 0, MetadataSize+len(r.Payload))
	buf = append(buf, md[:]...)
	buf = append(buf, r.Payload...)
	return buf
}

func (r Record) crc32() uint32 {
	return crypto.CRC32(r.PrevHash[:], r.checksummedFields())
}

// encodedSize returns the total number of bytes encode will produce,
// including the length field itself.
func (r Record) encodedSize() int {
	return lengthFieldSize + afterLengthSize + MetadataSize + len(r.Payload)
}

// encode serializes r to the exact on-disk wire format:
// u32 length | u32 crc32 | 32B prev_hash | 40B metadata | payload, where
// length counts every byte after the length field itself.
func (r Record) encode() []byte {
	fields := r.checksummedFields()
	afterLength := afterLengthSize + len(fields)
	buf := make([]byte, lengthFieldSize+afterLength)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(afterLength))
	binary.LittleEndian.PutUint32(buf[4:8], crypto.CRC32(r.PrevHash[:], fields))
	copy(buf[8:40], r.PrevHash[:])
	copy(buf[40:], fields)
	return buf
}

// decodeRecord parses a buffer previously produced by encode, verifying
// the CRC. buf must start just after the length field (i.e. at crc32).
func decodeRecord(buf []byte) (Record, error) {
	if len(buf) < afterLengthSize {
		return Record{}, fmt.Errorf("ledger: record shorter than header: %d bytes", len(buf))
	}
	storedCRC := binary.LittleEndian.Uint32(buf[0:4])
	var prevHash common.Hash
	copy(prevHash[:], buf[4:36])
	fields := buf[36:]
	if len(fields) < MetadataSize {
		return Record{}, fmt.Errorf("ledger: record missing metadata block")
	}
	if crypto.CRC32(prevHash[:], fields) != storedCRC {
		return Record{}, ErrCorruptedEntry
	}
	md := decodeMetadata(fields[:MetadataSize])
	payload := append([]byte(nil), fields[MetadataSize:]...)
	return Record{PrevHash: prevHash, Metadata: md, Payload: payload}, nil
}
