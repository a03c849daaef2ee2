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

package kernel

import (
	"container/list"

	"github.com/kimberlitedb/kimberlite/common"
)

// idempotencyResult is what a replayed command with a previously-seen
// IdempotencyId gets handed back instead of re-executing.
type idempotencyResult struct {
	Position common.Position
	Result   interface{}
}

type idempotencyEntry struct {
	id     common.IdempotencyId
	result idempotencyResult
}

// idempotencyCache is a deterministic bounded LRU keyed by IdempotencyId.
// Every replica's cache must evict in the same order given the same
// sequence of inserts, which is why this is a plain list+map rather than
// something like fastcache: fastcache's bucket-random eviction would make
// two replicas diverge on which entries survive, breaking the "replay
// yields byte-identical state" guarantee (see DESIGN.md).
type idempotencyCache struct {
	capacity int
	order    *list.List
	index    map[common.IdempotencyId]*list.Element
}

func newIdempotencyCache(capacity int) *idempotencyCache {
	if capacity <= 0 {
		capacity = 1
	}
	return &idempotencyCache{
		capacity: capacity,
		order:    list.New(),
		index:    make(map[common.IdempotencyId]*list.Element),
	}
}

func (c *idempotencyCache) get(id common.IdempotencyId) (idempotencyResult, bool) {
	el, ok := c.index[id]
	if !ok {
		return idempotencyResult{}, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*idempotencyEntry).result, true
}

func (c *idempotencyCache) put(id common.IdempotencyId, result idempotencyResult) {
	if el, ok := c.index[id]; ok {
		el.Value.(*idempotencyEntry).result = result
		c.order.MoveToFront(el)
		return
	}
	el := c.order.PushFront(&idempotencyEntry{id: id, result: result})
	c.index[id] = el
	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.index, oldest.Value.(*idempotencyEntry).id)
	}
}

func (c *idempotencyCache) clone() *idempotencyCache {
	clone := newIdempotencyCache(c.capacity)
	// Walk back-to-front so PushFront reproduces the same recency order.
	for el := c.order.Back(); el != nil; el = el.Prev() {
		entry := el.Value.(*idempotencyEntry)
		clone.put(entry.id, entry.result)
	}
	return clone
}

func (c *idempotencyCache) len() int { return c.order.Len() }
