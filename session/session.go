// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package session provides the minimal logical-session bookkeeping the
// Topology Core needs: a transaction-number counter, an inTransaction
// predicate, and a terminal ended notification. Session pool allocation
// policy is an external collaborator (spec §1) and is represented here only
// as the opaque Pool the Topology drains on close.
package session

import (
	"sync"
	"sync/atomic"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Session is the interface the Topology Core depends on. A concrete
// implementation is free to carry far more (cluster time, causal
// consistency, transaction state machine); the core only ever touches this
// surface.
type Session interface {
	Equal(Session) bool
	IncrementTxnNumber() int64
	TxnNumber() int64
	InTransaction() bool
	EndSession(func())
	Ended() <-chan struct{}
}

// ClusterClock tracks the highest clusterTime this client has observed, so
// it can be gossiped on the next outgoing command. Advancing it is the only
// responsibility the Topology Core has toward it; interpreting clusterTime
// values is left to the wire-protocol layer.
type ClusterClock struct {
	mu          sync.Mutex
	clusterTime primitive.D
}

// AdvanceClusterTime stores newTime, replacing whatever is tracked; it does
// not compare the two values.
func (c *ClusterClock) AdvanceClusterTime(newTime primitive.D) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.clusterTime == nil {
		c.clusterTime = newTime
		return
	}
	// A full clusterTime comparison requires the wire document semantics
	// this package does not own; the caller is expected to only advance
	// with values already known to be newer.
	c.clusterTime = newTime
}

// ClusterTime returns the most recently advanced clusterTime, if any.
func (c *ClusterClock) ClusterTime() (primitive.D, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clusterTime, c.clusterTime != nil
}

// ClientSession is the Topology Core's own Session implementation, used for
// implicit sessions and suitable as the concrete type callers pass back
// into dispatch.Command/Insert/Update/Remove.
type ClientSession struct {
	id primitive.Binary

	txnNumber int64
	inTxn     int32

	pool  *Pool
	ended chan struct{}
	once  sync.Once
}

// NewClientSession allocates a session id and registers it with pool so
// pool-wide termination (spec §4.2 close) can reach it.
func NewClientSession(pool *Pool) *ClientSession {
	oid := primitive.NewObjectID()
	s := &ClientSession{
		id:    primitive.Binary{Subtype: 0x04, Data: oid[:]},
		pool:  pool,
		ended: make(chan struct{}),
	}
	if pool != nil {
		pool.track(s)
	}
	return s
}

// ID returns the session's logical session id.
func (s *ClientSession) ID() primitive.Binary { return s.id }

// Equal implements Session.
func (s *ClientSession) Equal(other Session) bool {
	o, ok := other.(*ClientSession)
	return ok && o == s
}

// IncrementTxnNumber implements Session; it is called exactly once per
// retryable-write attempt sequence, never on the retry itself (spec §4.5).
func (s *ClientSession) IncrementTxnNumber() int64 {
	return atomic.AddInt64(&s.txnNumber, 1)
}

// TxnNumber implements Session.
func (s *ClientSession) TxnNumber() int64 {
	return atomic.LoadInt64(&s.txnNumber)
}

// SetInTransaction marks the session as (not) currently in a multi-statement
// transaction; transaction state machinery itself is out of this package's
// scope.
func (s *ClientSession) SetInTransaction(v bool) {
	if v {
		atomic.StoreInt32(&s.inTxn, 1)
	} else {
		atomic.StoreInt32(&s.inTxn, 0)
	}
}

// InTransaction implements Session.
func (s *ClientSession) InTransaction() bool {
	return atomic.LoadInt32(&s.inTxn) == 1
}

// EndSession implements Session. It is idempotent: only the first call
// invokes cb and closes the ended channel.
func (s *ClientSession) EndSession(cb func()) {
	s.once.Do(func() {
		if s.pool != nil {
			s.pool.untrack(s)
		}
		close(s.ended)
		if cb != nil {
			cb()
		}
	})
}

// Ended implements Session.
func (s *ClientSession) Ended() <-chan struct{} {
	return s.ended
}

// Pool is the opaque session pool the Topology owns and releases on close.
// Its allocation policy (reuse, server-side session expiry) is an external
// collaborator per spec §1; this type only tracks liveness for drain/close.
type Pool struct {
	mu       sync.Mutex
	sessions map[*ClientSession]struct{}
	released bool
}

// NewPool constructs an empty session pool.
func NewPool() *Pool {
	return &Pool{sessions: make(map[*ClientSession]struct{})}
}

func (p *Pool) track(s *ClientSession) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.released {
		p.sessions[s] = struct{}{}
	}
}

func (p *Pool) untrack(s *ClientSession) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.sessions, s)
}

// IDs returns the logical session ids of every currently tracked session,
// the payload an endSessions admin command sends.
func (p *Pool) IDs() []primitive.Binary {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]primitive.Binary, 0, len(p.sessions))
	for s := range p.sessions {
		ids = append(ids, s.id)
	}
	return ids
}

// EndAll ends every still-tracked session. Errors from individual sessions
// are not collected; per spec §4.2, endSessions is best-effort.
func (p *Pool) EndAll() {
	p.mu.Lock()
	sessions := make([]*ClientSession, 0, len(p.sessions))
	for s := range p.sessions {
		sessions = append(sessions, s)
	}
	p.mu.Unlock()
	for _, s := range sessions {
		s.EndSession(nil)
	}
}

// Release marks the pool terminated; no further sessions are tracked. This
// is the "session pool's own allocation policy" terminator the Topology
// invokes once, at the end of close (spec §4.2, §8 scenario 6).
func (p *Pool) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.released = true
}
