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

package common

import "testing"

func TestTenantIdValid(t *testing.T) {
	if TenantId(0).Valid() {
		t.Fatal("tenant id 0 must be invalid")
	}
	if !TenantId(1).Valid() {
		t.Fatal("tenant id 1 must be valid")
	}
}

func TestHashZero(t *testing.T) {
	var h Hash
	if !h.Zero() {
		t.Fatal("zero-value hash must report Zero()")
	}
	h[0] = 1
	if h.Zero() {
		t.Fatal("non-zero hash must not report Zero()")
	}
}

func TestBytesToHash(t *testing.T) {
	h := BytesToHash([]byte{1, 2, 3})
	want := Hash{}
	want[31] = 3
	want[30] = 2
	want[29] = 1
	if h != want {
		t.Fatalf("got %x want %x", h, want)
	}
}
