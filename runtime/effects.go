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
	"os"
	"time"

	"github.com/kimberlitedb/kimberlite/kernel"
	"github.com/kimberlitedb/kimberlite/log"
	"github.com/kimberlitedb/kimberlite/metrics"
)

var (
	effectsExecutedTotal = metrics.NewRegisteredCounter("runtime/effects/executed/total", nil)
	alertsTriggeredTotal = metrics.NewRegisteredCounter("runtime/effects/alerts/total", nil)
)

// runEffects is installed as vsr.EffectFunc: it carries out, in order,
// every side effect a committed command produced. The kernel only ever
// describes these as data (kernel.Effect); this is the one place they
// actually happen, per spec.md §4.11.
func (rt *Runtime) runEffects(effects []kernel.Effect) {
	for _, eff := range effects {
		rt.runEffect(eff)
		effectsExecutedTotal.Inc(1)
	}
}

func (rt *Runtime) runEffect(eff kernel.Effect) {
	switch eff.Kind {
	case kernel.WriteToLog:
		if _, err := rt.log.Append(eff.Stream, 0, rt.clock.Now().UnixMicro(), 0, eff.Payload); err != nil {
			log.Error("runtime: effect WriteToLog failed", "stream", eff.Stream, "err", err)
		}

	case kernel.AuditLogAppend:
		rt.auditLog.Info("audit", "stream", eff.Stream, "payload", string(eff.Payload))

	case kernel.FlushToDisk:
		if err := rt.log.Fsync(); err != nil {
			log.Error("runtime: effect FlushToDisk failed", "err", err)
		}

	case kernel.DeleteFile:
		if eff.Path == "" {
			log.Debug("runtime: DeleteFile effect carried no path, skipping")
			break
		}
		if err := os.Remove(eff.Path); err != nil && !os.IsNotExist(err) {
			log.Error("runtime: effect DeleteFile failed", "path", eff.Path, "err", err)
		}

	case kernel.SendMessage:
		if err := rt.transport.Send(eff.Recipient, eff.Message); err != nil {
			log.Debug("runtime: effect SendMessage failed", "to", eff.Recipient, "err", err)
		}

	case kernel.BroadcastMessage:
		rt.transport.Broadcast(rt.peerIDs, eff.Message)

	case kernel.SetTimer:
		rt.setTimer(eff.TimerName, eff.Duration)

	case kernel.CancelTimer:
		rt.cancelTimer(eff.TimerName)

	case kernel.NotifyClient:
		// Delivery happens separately: vsr.Replica.applyCommittedLocked
		// invokes the ReplyFunc (runtime.deliverReply) directly for every
		// NotifyClient effect, since only it carries the op's view and op
		// number. Nothing to do here.

	case kernel.TriggerAlert:
		alertsTriggeredTotal.Inc(1)
		log.Warn("runtime: kernel alert", "name", eff.AlertName, "severity", eff.Severity)

	case kernel.TableMetadataWrite, kernel.TableMetadataDrop, kernel.IndexMetadataWrite:
		// Schema metadata lives in kernelState itself (State.Tables/Indexes);
		// these effects only exist to let a future projection store observe
		// the change without re-diffing the whole kernel state.
		log.Debug("runtime: schema metadata effect", "kind", eff.Kind, "table", eff.TableKey, "index", eff.IndexKey)

	case kernel.WakeProjection, kernel.UpdateProjection:
		log.Debug("runtime: projection effect", "kind", eff.Kind, "target", eff.ProjectionTarget)

	default:
		log.Error("runtime: unrecognized effect kind, ignoring", "kind", eff.Kind)
	}
}

// setTimer/cancelTimer back SetTimer/CancelTimer effects with a named
// registry of time.Timer handles. No command kind currently fires one on
// expiry, so the only action taken here is logging; the registry exists
// so a future command kind has somewhere to hook in without another
// runtime-level change.
func (rt *Runtime) setTimer(name string, d time.Duration) {
	rt.timersMu.Lock()
	defer rt.timersMu.Unlock()
	if existing, ok := rt.timers[name]; ok {
		existing.Stop()
	}
	rt.timers[name] = time.AfterFunc(d, func() {
		log.Debug("runtime: timer fired", "name", name)
	})
}

func (rt *Runtime) cancelTimer(name string) {
	rt.timersMu.Lock()
	defer rt.timersMu.Unlock()
	if existing, ok := rt.timers[name]; ok {
		existing.Stop()
		delete(rt.timers, name)
	}
}
