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

// Package crypto gathers the cryptographic primitives used by the log's
// hash chain (SHA-256), its hot-path structural hashing (BLAKE2b standing
// in for the spec's BLAKE3 role - see DESIGN.md), per-record integrity
// (CRC32), at-rest encryption (AES-256-GCM), and message/segment signing
// (Ed25519).
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"hash/crc32"

	"github.com/kimberlitedb/kimberlite/common"
	"golang.org/x/crypto/blake2b"
)

// ChainHash computes the next record's hash as SHA-256(prevHash ‖ fields),
// per §3's hash-chain invariant record.hash = SHA-256(prev_hash ‖
// checksummed_fields).
func ChainHash(prevHash common.Hash, fields []byte) common.Hash {
	h := sha256.New()
	h.Write(prevHash[:])
	h.Write(fields)
	return common.BytesToHash(h.Sum(nil))
}

// CRC32 computes the IEEE CRC32 checksum used per-record, covering
// prev_hash ‖ metadata ‖ payload as specified in §3/§6.
func CRC32(fields ...[]byte) uint32 {
	c := crc32.NewIEEE()
	for _, f := range fields {
		c.Write(f)
	}
	return c.Sum32()
}

// HotHash is a fast, non-chained, unkeyed structural hash for hot paths
// where SHA-256's extra cost is not justified. No package in this module
// calls it at present: the scrubber and the segment index rely on
// ChainHash and CRC32. BLAKE2b-256 is the nearest real dependency in the
// example pack to the spec's "BLAKE3 hot path" role (see DESIGN.md).
func HotHash(data []byte) common.Hash {
	return common.Hash(blake2b.Sum256(data))
}

// GenesisHash is the zero hash used as the previous-record hash for the
// first record of the log, per §3. Later segments continue the chain from
// the previous segment's last record hash.
var GenesisHash common.Hash

// SealSegment derives a segment hash from its record chain's final hash,
// committed to the segment index on seal (§4.1 seal_segment).
func SealSegment(lastRecordHash common.Hash, segmentID uint32, recordCount uint64) common.Hash {
	var buf [12]byte
	buf[0] = byte(segmentID)
	buf[1] = byte(segmentID >> 8)
	buf[2] = byte(segmentID >> 16)
	buf[3] = byte(segmentID >> 24)
	for i := 0; i < 8; i++ {
		buf[4+i] = byte(recordCount >> (8 * i))
	}
	return ChainHash(lastRecordHash, buf[:])
}

// AESKeySize is the key size required by SealAtRest/OpenAtRest (AES-256).
const AESKeySize = 32

// SealAtRest encrypts plaintext with AES-256-GCM for at-rest segment
// encryption, returning nonce‖ciphertext.
func SealAtRest(key [AESKeySize]byte, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// OpenAtRest reverses SealAtRest.
func OpenAtRest(key [AESKeySize]byte, sealed []byte) ([]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(sealed) < gcm.NonceSize() {
		return nil, errors.New("crypto: sealed payload shorter than nonce")
	}
	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	return gcm.Open(nil, nonce, ciphertext, nil)
}

// SigningKey wraps an Ed25519 keypair used to sign wire messages and
// sealed segments for compliance attestation.
type SigningKey struct {
	Public  ed25519.PublicKey
	private ed25519.PrivateKey
}

// GenerateSigningKey creates a fresh Ed25519 keypair.
func GenerateSigningKey() (*SigningKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &SigningKey{Public: pub, private: priv}, nil
}

// Sign signs msg, typically a segment hash or wire-message body CRC.
func (k *SigningKey) Sign(msg []byte) []byte {
	return ed25519.Sign(k.private, msg)
}

// Verify checks a signature produced by Sign (or any Ed25519 key).
func Verify(pub ed25519.PublicKey, msg, sig []byte) bool {
	return ed25519.Verify(pub, msg, sig)
}
