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

package runtime

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func doAdmin(t *testing.T, handler func(http.ResponseWriter, *http.Request), req adminRequest) adminResponse {
	t.Helper()
	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	w := httptest.NewRecorder()
	r := httptest.NewRequest("POST", "http://test/admin", bytes.NewReader(body))
	handler(w, r)

	var out adminResponse
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestAdminCheckpointCommitsAndReturnsOK(t *testing.T) {
	rt := newTestLeader(t)
	a := &adminServer{rt: rt}

	resp := doAdmin(t, a.handleCheckpoint, adminRequest{})
	if !resp.OK {
		t.Fatalf("expected ok, got %+v", resp)
	}
	if resp.Op == 0 {
		t.Fatalf("expected a non-zero committed op number")
	}
}

func TestAdminCompactCommitsAndReturnsOK(t *testing.T) {
	rt := newTestLeader(t)
	a := &adminServer{rt: rt}

	resp := doAdmin(t, a.handleCompact, adminRequest{Segments: []uint32{1, 2}})
	if !resp.OK {
		t.Fatalf("expected ok, got %+v", resp)
	}
}

func TestAdminAddReplicaRejectedWhenReconfigWouldBeEven(t *testing.T) {
	rt := newTestLeader(t)
	a := &adminServer{rt: rt}

	resp := doAdmin(t, a.handleAddReplica, adminRequest{ReplicaID: 99})
	if resp.OK {
		t.Fatalf("expected rejection, got ok")
	}
	if resp.Class != "validation" {
		t.Fatalf("expected validation class (even-sized cluster), got %q: %s", resp.Class, resp.Error)
	}
}

func TestAdminReplaceCommitsJointEntryWithoutTheNewMembers(t *testing.T) {
	rt := newTestLeader(t)
	a := &adminServer{rt: rt}

	// Adding two replicas to a 3-member cluster validates (resulting size
	// 5 is odd) and is proposed. This harness never registers 98 or 100 as
	// live replicas in fakeNetwork, but the joint-entry op is proposed in
	// the Stable phase and so needs only the old 3-member quorum; the three
	// old members are also 3 of the 5 new members.
	resp := doAdmin(t, a.handleReplace, adminRequest{Add: []uint64{98, 100}, TimeoutSeconds: 1})
	if !resp.OK {
		t.Fatalf("expected ok, got %+v", resp)
	}
	if resp.Op == 0 {
		t.Fatalf("expected a non-zero committed op number")
	}
}

func TestAdminPromoteStandbyRejectsUnknownStandby(t *testing.T) {
	rt := newTestLeader(t)
	a := &adminServer{rt: rt}

	resp := doAdmin(t, a.handlePromoteStandby, adminRequest{ReplicaID: 77})
	if resp.OK {
		t.Fatalf("expected rejection for an untracked standby")
	}
	if resp.Class != "validation" {
		t.Fatalf("expected validation class, got %q: %s", resp.Class, resp.Error)
	}
}
