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
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kimberlitedb/kimberlite/common"
	"github.com/kimberlitedb/kimberlite/config"
	"github.com/kimberlitedb/kimberlite/kernel"
	"github.com/kimberlitedb/kimberlite/log"
	promexport "github.com/kimberlitedb/kimberlite/metrics/prometheus"
	"github.com/kimberlitedb/kimberlite/vsr"
)

// adminServer answers kimberlitectl's operator commands and, when
// configured, serves the /debug/metrics/prometheus scrape endpoint - the
// same path the teacher exposes its own debug/metrics surface behind.
// It listens on Config.AdminAddr, a separate socket from the peer
// protocol's ListenAddr, so an operator never needs gob-speaking tooling
// to administer a cluster.
type adminServer struct {
	rt     *Runtime
	server *http.Server
}

// adminRequest is the JSON body for every POST /admin/* endpoint. Only the
// fields relevant to the endpoint being called are read.
type adminRequest struct {
	ReplicaID      uint64   `json:"replica_id"`
	Add            []uint64 `json:"add"`
	Remove         []uint64 `json:"remove"`
	Threshold      uint64   `json:"threshold"`
	Segments       []uint32 `json:"segments"`
	TimeoutSeconds int      `json:"timeout_seconds"`
}

// adminResponse is the JSON body returned by every POST /admin/* endpoint.
// Class distinguishes the four exit-code families spec.md §6 mandates:
// "" on success, or one of validation/timeout/rejected/aborted.
type adminResponse struct {
	OK    bool            `json:"ok"`
	Op    common.OpNumber `json:"op,omitempty"`
	Class string          `json:"class,omitempty"`
	Error string          `json:"error,omitempty"`
}

func newAdminServer(rt *Runtime, addr string) *adminServer {
	mux := http.NewServeMux()
	a := &adminServer{rt: rt}

	mux.HandleFunc("/admin/add_replica", a.handleAddReplica)
	mux.HandleFunc("/admin/remove_replica", a.handleRemoveReplica)
	mux.HandleFunc("/admin/replace", a.handleReplace)
	mux.HandleFunc("/admin/promote_standby", a.handlePromoteStandby)
	mux.HandleFunc("/admin/checkpoint", a.handleCheckpoint)
	mux.HandleFunc("/admin/compact", a.handleCompact)

	if rt.cfg.MetricsExport == config.MetricsExportPrometheus {
		reg := prometheus.NewRegistry()
		reg.MustRegister(promexport.NewCollector("kimberlite", nil))
		mux.Handle("/debug/metrics/prometheus", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}

	a.server = &http.Server{Addr: addr, Handler: mux}
	return a
}

func (a *adminServer) serve() {
	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("runtime: admin server stopped", "err", err)
	}
}

func (a *adminServer) close() {
	_ = a.server.Close()
}

func decodeAdminRequest(w http.ResponseWriter, r *http.Request) (adminRequest, bool) {
	var req adminRequest
	if r.Body != nil {
		defer r.Body.Close()
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeAdmin(w, http.StatusBadRequest, adminResponse{Class: "validation", Error: err.Error()})
			return req, false
		}
	}
	return req, true
}

func writeAdmin(w http.ResponseWriter, status int, resp adminResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

const defaultAdminTimeout = 30 * time.Second

// awaitAndRespond classifies a propose/reconfigure error into the
// validation, rejected or aborted class and writes the response, or awaits
// the proposed op's commit (up to timeoutSeconds, 0 meaning
// defaultAdminTimeout) on success.
func (a *adminServer) awaitAndRespond(w http.ResponseWriter, r *http.Request, op common.OpNumber, err error, timeoutSeconds int) {
	if err != nil {
		status, class := classifyReconfigError(err)
		writeAdmin(w, status, adminResponse{Class: class, Error: err.Error()})
		return
	}
	timeout := defaultAdminTimeout
	if timeoutSeconds > 0 {
		timeout = time.Duration(timeoutSeconds) * time.Second
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()
	if err := a.rt.awaitCommit(ctx, op); err != nil {
		writeAdmin(w, http.StatusGatewayTimeout, adminResponse{Op: op, Class: "timeout", Error: err.Error()})
		return
	}
	writeAdmin(w, http.StatusOK, adminResponse{OK: true, Op: op})
}

func classifyReconfigError(err error) (int, string) {
	switch {
	case errors.Is(err, vsr.ErrNotLeader), errors.Is(err, vsr.ErrWrongStatus), errors.Is(err, vsr.ErrReconfigInFlight):
		return http.StatusConflict, "rejected"
	case errors.Is(err, vsr.ErrReconfigDuplicate), errors.Is(err, vsr.ErrReconfigEmptyCluster),
		errors.Is(err, vsr.ErrReconfigWouldBeEven), errors.Is(err, vsr.ErrUnknownStandby),
		errors.Is(err, vsr.ErrStandbyNotCaughtUp):
		return http.StatusBadRequest, "validation"
	default:
		return http.StatusInternalServerError, "aborted"
	}
}

func toReplicaIDs(ids []uint64) []common.ReplicaId {
	out := make([]common.ReplicaId, len(ids))
	for i, id := range ids {
		out[i] = common.ReplicaId(id)
	}
	return out
}

func (a *adminServer) handleAddReplica(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAdminRequest(w, r)
	if !ok {
		return
	}
	op, err := a.rt.replica.ProposeReconfiguration(vsr.ReconfigAddReplica, []common.ReplicaId{common.ReplicaId(req.ReplicaID)}, nil)
	a.awaitAndRespond(w, r, op, err, req.TimeoutSeconds)
}

func (a *adminServer) handleRemoveReplica(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAdminRequest(w, r)
	if !ok {
		return
	}
	op, err := a.rt.replica.ProposeReconfiguration(vsr.ReconfigRemoveReplica, nil, []common.ReplicaId{common.ReplicaId(req.ReplicaID)})
	a.awaitAndRespond(w, r, op, err, req.TimeoutSeconds)
}

func (a *adminServer) handleReplace(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAdminRequest(w, r)
	if !ok {
		return
	}
	op, err := a.rt.replica.ProposeReconfiguration(vsr.ReconfigReplace, toReplicaIDs(req.Add), toReplicaIDs(req.Remove))
	a.awaitAndRespond(w, r, op, err, req.TimeoutSeconds)
}

func (a *adminServer) handlePromoteStandby(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAdminRequest(w, r)
	if !ok {
		return
	}
	threshold := req.Threshold
	if threshold == 0 {
		threshold = vsr.DefaultStandbyPromotionThreshold
	}
	op, err := a.rt.replica.PromoteStandby(common.ReplicaId(req.ReplicaID), threshold)
	a.awaitAndRespond(w, r, op, err, req.TimeoutSeconds)
}

func (a *adminServer) handleCheckpoint(w http.ResponseWriter, r *http.Request) {
	_, ok := decodeAdminRequest(w, r)
	if !ok {
		return
	}
	a.proposeAndRespond(w, r, kernel.Command{Kind: kernel.Checkpoint}, 0)
}

func (a *adminServer) handleCompact(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAdminRequest(w, r)
	if !ok {
		return
	}
	a.proposeAndRespond(w, r, kernel.Command{Kind: kernel.Compact, Segments: req.Segments}, req.TimeoutSeconds)
}

// proposeAndRespond proposes a Checkpoint/Compact command directly (these
// carry no NotifyClient effect and are not client requests, so they skip
// Submit's session-table dedup entirely) and awaits its commit.
func (a *adminServer) proposeAndRespond(w http.ResponseWriter, r *http.Request, cmd kernel.Command, timeoutSeconds int) {
	_, prevHash := a.rt.log.Tip()
	op, err := a.rt.replica.Propose(cmd, prevHash)
	if err != nil {
		status, class := classifyReconfigError(err)
		writeAdmin(w, status, adminResponse{Class: class, Error: err.Error()})
		return
	}
	a.awaitAndRespond(w, r, op, nil, timeoutSeconds)
}

// awaitCommit polls until replica has committed at least up to op, or ctx
// is done. Polling rather than a notification channel keeps this off the
// hot consensus path; operator commands are rare and not latency-critical.
func (rt *Runtime) awaitCommit(ctx context.Context, op common.OpNumber) error {
	if op == 0 {
		return nil
	}
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		if rt.replica.CommittedOpNumber() >= op {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
