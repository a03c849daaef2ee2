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

// Package statsd implements the statsd{endpoint} metrics_export config
// variant. No pack example imports a statsd client, and the wire protocol
// is a handful of UDP datagram lines, so this writer is built directly on
// net.Conn rather than reaching for an unvetted third-party client - see
// DESIGN.md.
package statsd

import (
	"fmt"
	"net"
	"time"

	"github.com/kimberlitedb/kimberlite/metrics"
)

// Writer periodically flushes a metrics.Registry to a statsd endpoint over
// UDP, matching the fire-and-forget delivery semantics of the protocol.
type Writer struct {
	conn     net.Conn
	registry metrics.Registry
	prefix   string
}

// Dial opens a UDP socket to addr (host:port) for the given registry.
func Dial(addr, prefix string, r metrics.Registry) (*Writer, error) {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, err
	}
	if r == nil {
		r = metrics.DefaultRegistry
	}
	return &Writer{conn: conn, registry: r, prefix: prefix}, nil
}

// Close releases the underlying UDP socket.
func (w *Writer) Close() error { return w.conn.Close() }

// Run flushes the registry every interval until stop is closed.
func (w *Writer) Run(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			w.Flush()
		case <-stop:
			return
		}
	}
}

// Flush writes one UDP datagram per metric using the standard statsd line
// format (bucket:value|type); send errors are swallowed since statsd
// delivery is best-effort.
func (w *Writer) Flush() {
	w.registry.Each(func(name string, metric interface{}) {
		bucket := w.prefix + name
		switch m := metric.(type) {
		case metrics.Counter:
			fmt.Fprintf(w.conn, "%s:%d|c\n", bucket, m.Count())
		case metrics.Gauge:
			fmt.Fprintf(w.conn, "%s:%d|g\n", bucket, m.Value())
		case metrics.GaugeFloat64:
			fmt.Fprintf(w.conn, "%s:%f|g\n", bucket, m.Value())
		case metrics.Meter:
			fmt.Fprintf(w.conn, "%s.rate1:%f|g\n", bucket, m.Rate1())
		case metrics.Timer:
			fmt.Fprintf(w.conn, "%s.mean:%f|ms\n", bucket, m.Mean()/float64(time.Millisecond))
		}
	})
}
