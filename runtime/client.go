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
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/kimberlitedb/kimberlite/common"
	"github.com/kimberlitedb/kimberlite/kernel"
	"github.com/kimberlitedb/kimberlite/log"
	"github.com/kimberlitedb/kimberlite/metrics"
	"github.com/kimberlitedb/kimberlite/session"
	"github.com/kimberlitedb/kimberlite/tracing"
	"github.com/kimberlitedb/kimberlite/vsr"
)

// ErrStaleRequest is returned when a client resubmits a request_number
// behind its own last committed one, a violation of RequestNumberMonotonic
// the runtime rejects before ever proposing anything.
var ErrStaleRequest = errors.New("runtime: request_number is stale for this client")

// ErrNotLeader surfaces vsr.ErrNotLeader to a client, who per spec.md §7 is
// expected to resubmit against whichever replica is actually leading.
var ErrNotLeader = vsr.ErrNotLeader

var (
	clientDuplicateTotal = metrics.NewRegisteredCounter("runtime/client/duplicate/total", nil)
	clientStaleTotal     = metrics.NewRegisteredCounter("runtime/client/stale/total", nil)
	clientAcceptedTotal  = metrics.NewRegisteredCounter("runtime/client/accepted/total", nil)
)

type pendingKey struct {
	client  common.ClientId
	request common.RequestNumber
}

type pendingEntry struct {
	ch chan interface{}
}

// RegisterClient allocates a fresh ClientId for a new connection, the
// runtime-facing entry point for session.Register (VRR bug 1: a
// reconnecting client must never reuse its previous identity).
func (rt *Runtime) RegisterClient() common.ClientId {
	return session.Register()
}

// Submit is the runtime's client-request entry point: it implements the
// session-table dedup check ahead of proposing (spec.md §4.3), then blocks
// until the command commits and its NotifyClient effect fires, or ctx is
// canceled.
func (rt *Runtime) Submit(ctx context.Context, client common.ClientId, cmd kernel.Command) (interface{}, error) {
	var submitErr error
	tracer := rt.tracer
	if tracer == nil {
		tracer = tracing.NoopTracer()
	}
	ctx, _, endSpan := tracing.StartSpan(ctx, tracer, "runtime.Submit",
		attribute.Int64("client", int64(client)),
		attribute.Int64("request", int64(cmd.Request)),
		attribute.Int("command_kind", int(cmd.Kind)),
	)
	defer func() { endSpan(submitErr) }()

	cmd.Client = client
	cmd.TimestampUs = rt.clock.Now().UnixMicro()

	isDuplicate, stale := rt.sessions.CheckRequest(client, cmd.Request)
	if stale {
		clientStaleTotal.Inc(1)
		submitErr = ErrStaleRequest
		return nil, submitErr
	}
	if isDuplicate {
		clientDuplicateTotal.Inc(1)
		committed, _ := rt.sessions.Lookup(client)
		return committed.Reply, nil
	}

	// Register the waiter before proposing: a commit can reach deliverReply
	// before Propose returns.
	key := pendingKey{client: client, request: cmd.Request}
	entry := &pendingEntry{ch: make(chan interface{}, 1)}
	rt.pendingMu.Lock()
	rt.pending[key] = entry
	rt.pendingMu.Unlock()

	_, tip := rt.log.Tip()
	op, err := rt.replica.Propose(cmd, tip)
	if err != nil {
		rt.pendingMu.Lock()
		delete(rt.pending, key)
		rt.pendingMu.Unlock()
		submitErr = fmt.Errorf("runtime: propose: %w", err)
		return nil, submitErr
	}
	rt.sessions.Prepare(client, cmd.Request, op)
	clientAcceptedTotal.Inc(1)

	select {
	case result := <-entry.ch:
		return result, nil
	case <-ctx.Done():
		rt.pendingMu.Lock()
		delete(rt.pending, key)
		rt.pendingMu.Unlock()
		submitErr = ctx.Err()
		return nil, submitErr
	}
}

// deliverReply is installed as vsr.ReplyFunc. It runs on every replica
// that applies the committing op - leader and followers alike, since the
// kernel runs identically everywhere - so the session table's committed
// entry is recorded cluster-wide, not only wherever the client happened
// to connect. Only the replica that actually holds a pending channel for
// this (client, request) - the one the client is connected to - wakes a
// waiter.
func (rt *Runtime) deliverReply(client common.ClientId, reply vsr.Reply) {
	rt.sessions.Commit(client, reply.RequestNumber, reply.Op, rt.clock.Now().UnixMicro(), reply.Result)

	key := pendingKey{client: client, request: reply.RequestNumber}
	rt.pendingMu.Lock()
	entry, ok := rt.pending[key]
	if ok {
		delete(rt.pending, key)
	}
	rt.pendingMu.Unlock()
	if !ok {
		return
	}
	select {
	case entry.ch <- reply.Result:
	default:
		log.Warn("runtime: dropped reply, caller already gave up", "client", client, "request", reply.RequestNumber)
	}
}
