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
	"encoding/gob"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/kimberlitedb/kimberlite/common"
	"github.com/kimberlitedb/kimberlite/log"
	"github.com/kimberlitedb/kimberlite/metrics"
	"github.com/kimberlitedb/kimberlite/vsr"
)

var (
	transportSendErrorsTotal = metrics.NewRegisteredCounter("runtime/transport/send_errors/total", nil)
	transportReconnectsTotal = metrics.NewRegisteredCounter("runtime/transport/reconnects/total", nil)
)

// peerConn owns the outbound connection to one peer replica, reconnecting
// under exponential backoff exactly as the teacher's OutboxReader manages
// its single RPC client: a connect attempt bumps the delay on failure and
// resets it on success.
type peerConn struct {
	mu             sync.Mutex
	addr           string
	conn           net.Conn
	enc            *gob.Encoder
	reconnectDelay time.Duration
	reconnectMin   time.Duration
	reconnectMax   time.Duration
	lastAttempt    time.Time
	dialTimeout    time.Duration
}

func newPeerConn(addr string) *peerConn {
	return &peerConn{
		addr:           addr,
		reconnectMin:   250 * time.Millisecond,
		reconnectMax:   5 * time.Second,
		reconnectDelay: 250 * time.Millisecond,
		dialTimeout:    2 * time.Second,
	}
}

// connectLocked dials addr if not already connected, honoring the current
// backoff delay since the last attempt. Caller holds mu.
func (p *peerConn) connectLocked() error {
	if p.conn != nil {
		return nil
	}
	if wait := p.reconnectDelay - time.Since(p.lastAttempt); wait > 0 {
		return fmt.Errorf("runtime: %s still in reconnect backoff for %s", p.addr, wait)
	}
	p.lastAttempt = time.Now()
	conn, err := net.DialTimeout("tcp", p.addr, p.dialTimeout)
	if err != nil {
		p.bumpReconnectDelayLocked()
		return fmt.Errorf("runtime: dial %s: %w", p.addr, err)
	}
	p.conn = conn
	p.enc = gob.NewEncoder(conn)
	p.reconnectDelay = p.reconnectMin
	transportReconnectsTotal.Inc(1)
	log.Info("runtime: connected to peer", "addr", p.addr)
	return nil
}

func (p *peerConn) bumpReconnectDelayLocked() {
	p.reconnectDelay *= 2
	if p.reconnectDelay > p.reconnectMax {
		p.reconnectDelay = p.reconnectMax
	}
}

func (p *peerConn) send(wm wireMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.connectLocked(); err != nil {
		return err
	}
	if err := p.enc.Encode(&wm); err != nil {
		p.conn.Close()
		p.conn = nil
		p.enc = nil
		return fmt.Errorf("runtime: send to %s: %w", p.addr, err)
	}
	return nil
}

func (p *peerConn) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
}

// PeerTransport implements vsr.Transport over plain TCP connections, one
// persistent outbound connection per peer, each reconnecting independently
// on failure. It never blocks the caller on a peer that is down: Send
// returns an error (counted, logged, dropped per spec.md §7's Transient
// class) rather than retrying inline.
type PeerTransport struct {
	self  common.ReplicaId
	peers map[common.ReplicaId]*peerConn
}

// NewPeerTransport builds a transport dialing addrs lazily as messages are
// sent; addrs must map every cluster member other than self to a
// "host:port" listen address.
func NewPeerTransport(self common.ReplicaId, addrs map[common.ReplicaId]string) *PeerTransport {
	peers := make(map[common.ReplicaId]*peerConn, len(addrs))
	for id, addr := range addrs {
		peers[id] = newPeerConn(addr)
	}
	return &PeerTransport{self: self, peers: peers}
}

func (t *PeerTransport) Send(to common.ReplicaId, msg interface{}) error {
	peer, ok := t.peers[to]
	if !ok {
		return fmt.Errorf("runtime: no known address for replica %d", to)
	}
	wm := wrap(msg)
	if err := peer.send(wm); err != nil {
		transportSendErrorsTotal.Inc(1)
		log.Debug("runtime: transport send failed", "to", to, "err", err)
		return err
	}
	return nil
}

func (t *PeerTransport) Broadcast(to []common.ReplicaId, msg interface{}) {
	wm := wrap(msg)
	for _, id := range to {
		peer, ok := t.peers[id]
		if !ok {
			continue
		}
		if err := peer.send(wm); err != nil {
			transportSendErrorsTotal.Inc(1)
			log.Debug("runtime: transport broadcast send failed", "to", id, "err", err)
		}
	}
}

func (t *PeerTransport) Close() {
	for _, peer := range t.peers {
		peer.close()
	}
}

var _ vsr.Transport = (*PeerTransport)(nil)

// peerServer accepts inbound peer connections and dispatches every decoded
// wireMessage to replica, one long-lived goroutine per connection - the
// inbound-connection half of the transport, separate from PeerTransport's
// outbound half since VSR traffic is not request/response.
type peerServer struct {
	listener net.Listener
	replica  *vsr.Replica

	mu       sync.Mutex
	wg       sync.WaitGroup
	stopping bool
}

func newPeerServer(listenAddr string, replica *vsr.Replica) (*peerServer, error) {
	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return nil, fmt.Errorf("runtime: listen %s: %w", listenAddr, err)
	}
	return &peerServer{listener: ln, replica: replica}, nil
}

func (s *peerServer) serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.mu.Lock()
			stopping := s.stopping
			s.mu.Unlock()
			if stopping {
				return
			}
			log.Debug("runtime: peer accept failed", "err", err)
			return
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *peerServer) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()
	dec := gob.NewDecoder(conn)
	for {
		var wm wireMessage
		if err := dec.Decode(&wm); err != nil {
			return
		}
		dispatch(s.replica, wm)
	}
}

func (s *peerServer) close() {
	s.mu.Lock()
	s.stopping = true
	s.mu.Unlock()
	s.listener.Close()
	s.wg.Wait()
}
