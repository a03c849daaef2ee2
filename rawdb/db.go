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

// Package rawdb provides the goleveldb-backed accessors a replica uses for
// everything the log itself doesn't durably index: client sessions, the
// segment position index, checkpoints, and scrub/repair bookkeeping.
package rawdb

import (
	"fmt"

	"github.com/VictoriaMetrics/fastcache"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
	"golang.org/x/sync/singleflight"

	"github.com/kimberlitedb/kimberlite/log"
)

// readCacheSize bounds the in-memory read-through cache fronting every
// accessor's point lookups (sessions, checkpoints, segment index entries).
// Unlike the kernel's idempotency cache, eviction here never affects
// replicated state - a miss just falls through to leveldb - so fastcache's
// non-deterministic bucket-random eviction is harmless (see DESIGN.md).
const readCacheSize = 32 * 1024 * 1024

// Database is a thin wrapper around a goleveldb handle, fronted by a
// fastcache read-through cache. Every accessor in this package takes a
// *Database rather than the raw leveldb type so call sites read the same
// way regardless of which table they touch.
type Database struct {
	ldb   *leveldb.DB
	cache *fastcache.Cache
	// reads collapses concurrent misses on the same key (e.g. several
	// admin requests racing ReadLatestCheckpoint right after a restart,
	// before the cache is warm) into a single leveldb.Get.
	reads singleflight.Group
}

// Open opens (or creates) the goleveldb store rooted at dir.
func Open(dir string) (*Database, error) {
	ldb, err := leveldb.OpenFile(dir, &opt.Options{})
	if _, corrupted := err.(*errors.ErrCorrupted); corrupted {
		log.Warn("rawdb: recovering corrupted database", "dir", dir)
		ldb, err = leveldb.RecoverFile(dir, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("rawdb: open %s: %w", dir, err)
	}
	return &Database{ldb: ldb, cache: fastcache.New(readCacheSize)}, nil
}

func (d *Database) Close() error { return d.ldb.Close() }

func (d *Database) get(key []byte) ([]byte, error) {
	if val, ok := d.cache.HasGet(nil, key); ok {
		return val, nil
	}
	val, err, _ := d.reads.Do(string(key), func() (interface{}, error) {
		val, err := d.ldb.Get(key, nil)
		if err == leveldb.ErrNotFound {
			return nil, ErrNotFound
		}
		if err == nil {
			d.cache.Set(key, val)
		}
		return val, err
	})
	if val == nil {
		return nil, err
	}
	return val.([]byte), err
}

func (d *Database) has(key []byte) (bool, error) {
	if _, ok := d.cache.HasGet(nil, key); ok {
		return true, nil
	}
	return d.ldb.Has(key, nil)
}

func (d *Database) put(key, value []byte) error {
	if err := d.ldb.Put(key, value, nil); err != nil {
		return err
	}
	d.cache.Set(key, value)
	return nil
}

func (d *Database) delete(key []byte) error {
	if err := d.ldb.Delete(key, nil); err != nil {
		return err
	}
	d.cache.Del(key)
	return nil
}

// iteratePrefix walks every key beginning with prefix, invoking fn with the
// key's suffix (prefix stripped) and the value. Iteration stops early if fn
// returns false.
func (d *Database) iteratePrefix(prefix []byte, fn func(suffix, value []byte) bool) error {
	it := d.ldb.NewIterator(util.BytesPrefix(prefix), nil)
	defer it.Release()
	for it.Next() {
		key := it.Key()
		suffix := append([]byte(nil), key[len(prefix):]...)
		value := append([]byte(nil), it.Value()...)
		if !fn(suffix, value) {
			break
		}
	}
	return it.Error()
}

// newBatch starts a batched write, used by accessors that must make two or
// more keys durable atomically (WriteCheckpoint's checkpoint record and
// its latest-checkpoint pointer).
func (d *Database) newBatch() *leveldb.Batch { return new(leveldb.Batch) }

// write commits b and, since leveldb.Batch keeps no public record of what
// it holds, drops the whole read cache rather than tracking per-key
// invalidation - batched writes are rare enough (only checkpoints use
// them) that this is not a hot-path concern.
func (d *Database) write(b *leveldb.Batch) error {
	if err := d.ldb.Write(b, nil); err != nil {
		return err
	}
	d.cache.Reset()
	return nil
}
