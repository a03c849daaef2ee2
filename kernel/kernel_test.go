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
	"testing"

	"github.com/kimberlitedb/kimberlite/common"
)

func TestApplyDeterministic(t *testing.T) {
	s := NewState(16)
	cmd := Command{Kind: CreateTenant, Tenant: 1, TenantName: "acme", TimestampUs: 100}

	s1, e1, err1 := Apply(s, cmd)
	if err1 != nil {
		t.Fatalf("unexpected error: %v", err1)
	}
	s2, e2, err2 := Apply(s, cmd)
	if err2 != nil {
		t.Fatalf("unexpected error: %v", err2)
	}
	if s1.Tenants[1] != s2.Tenants[1] {
		t.Fatal("Apply must be deterministic for equal (state, command)")
	}
	if len(e1) != len(e2) {
		t.Fatal("effect count must match across repeated Apply calls")
	}
}

func TestApplyTenantNotFound(t *testing.T) {
	s := NewState(16)
	_, _, err := Apply(s, Command{Kind: CreateTable, Tenant: 99, Table: 1})
	if err == nil || err.Kind != TenantNotFound {
		t.Fatalf("expected TenantNotFound, got %v", err)
	}
}

func TestApplyIdempotentReplay(t *testing.T) {
	s := NewState(16)
	var idemId common.IdempotencyId
	idemId[0] = 0xAB

	s, _, err := Apply(s, Command{Kind: CreateTenant, Tenant: 1, TenantName: "acme", HasIdempotencyId: true, IdempotencyId: idemId})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	before := s.Clone()

	s2, effects, err := Apply(s, Command{Kind: CreateTenant, Tenant: 1, TenantName: "acme-retry", HasIdempotencyId: true, IdempotencyId: idemId})
	if err != nil {
		t.Fatalf("unexpected error on replay: %v", err)
	}
	if s2.Position != before.Position {
		t.Fatalf("idempotent replay must not advance position: got %d want %d", s2.Position, before.Position)
	}
	if len(effects) != 1 || effects[0].Kind != NotifyClient || !effects[0].IsReplay {
		t.Fatalf("idempotent replay must emit exactly one NotifyClient{is_replay:true}, got %+v", effects)
	}
	if s2.Tenants[1].Name != "acme" {
		t.Fatal("idempotent replay must not apply the new command's effects")
	}
}

func TestApplyQueryDoesNotMutateTenants(t *testing.T) {
	s := NewState(16)
	s, _, err := Apply(s, Command{Kind: CreateTenant, Tenant: 1, TenantName: "acme"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	before := len(s.Tenants)
	s, effects, err := Apply(s, Command{Kind: Query, Tenant: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s.Tenants) != before {
		t.Fatal("query must not mutate tenant map")
	}
	if len(effects) != 1 || effects[0].Kind != NotifyClient {
		t.Fatalf("query must emit exactly one NotifyClient effect, got %+v", effects)
	}
}

func TestApplyRejectionLeavesStateUnchanged(t *testing.T) {
	s := NewState(16)
	before := s.Clone()
	_, _, err := Apply(s, Command{Kind: DeleteTenant, Tenant: 1})
	if err == nil {
		t.Fatal("expected TenantNotFound")
	}
	if len(s.Tenants) != len(before.Tenants) {
		t.Fatal("rejected command must leave state unchanged")
	}
}

func TestIdempotencyCacheDeterministicEviction(t *testing.T) {
	c := newIdempotencyCache(2)
	var a, b, d common.IdempotencyId
	a[0], b[0], d[0] = 1, 2, 3
	c.put(a, idempotencyResult{Position: 1})
	c.put(b, idempotencyResult{Position: 2})
	c.put(d, idempotencyResult{Position: 3})
	if _, ok := c.get(a); ok {
		t.Fatal("oldest entry must be evicted once capacity is exceeded")
	}
	if _, ok := c.get(b); !ok {
		t.Fatal("entry b must survive eviction")
	}
	if c.len() != 2 {
		t.Fatalf("cache must respect capacity, got len %d", c.len())
	}
}
