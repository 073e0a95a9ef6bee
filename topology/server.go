// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package topology

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mongodb/sdam-core/address"
	"github.com/mongodb/sdam-core/description"
	"github.com/mongodb/sdam-core/event"
	"github.com/mongodb/sdam-core/internal/logger"
)

// server connection states, mirroring the teacher's x/mongo/driver/topology
// int32 state machine.
const (
	srvDisconnected int32 = iota
	srvConnected
	srvDisconnecting
)

// updateTopologyCallback reports a freshly observed ServerDescription to the
// parent Topology and returns the description the Server Handle should
// actually store, per spec §4.2 serverUpdateHandler.
type updateTopologyCallback func(description.Server) description.Server

// Server is a Server Handle: spec §3's "opaque reference to a monitored
// server" that owns a background heartbeat loop and forwards commands to an
// injected Executor. The wire-protocol transport itself is out of scope
// (spec §1); Server only sequences calls into the Heartbeater/Executor the
// Topology was configured with.
type Server struct {
	address address.Address
	cfg     *Config

	state int32

	done          chan struct{}
	checkNow      chan struct{}
	disconnecting chan struct{}
	closewg       sync.WaitGroup

	desc           atomic.Value // description.Server
	updateCallback atomic.Value // updateTopologyCallback

	subLock     sync.Mutex
	subscribers map[uint64]chan description.Server
	nextSubID   uint64
	subsClosed  bool

	rttSet bool
	rtt    time.Duration

	poolGeneration uint64
}

// ServerSubscription delivers every updated ServerDescription for one
// Server Handle. The channel has buffer size one and is pre-populated with
// the current description (spec §5 suspension-point pattern).
type ServerSubscription struct {
	C  <-chan description.Server
	s  *Server
	id uint64
}

// Unsubscribe stops delivery and closes the channel. Idempotent.
func (ss *ServerSubscription) Unsubscribe() {
	ss.s.subLock.Lock()
	defer ss.s.subLock.Unlock()
	if ss.s.subsClosed {
		return
	}
	if ch, ok := ss.s.subscribers[ss.id]; ok {
		close(ch)
		delete(ss.s.subscribers, ss.id)
	}
}

// newServer constructs a Server Handle at addr, Unknown until its first
// heartbeat lands.
func newServer(addr address.Address, cfg *Config) *Server {
	s := &Server{
		address:       addr,
		cfg:           cfg,
		done:          make(chan struct{}),
		checkNow:      make(chan struct{}, 1),
		disconnecting: make(chan struct{}),
		subscribers:   make(map[uint64]chan description.Server),
	}
	s.desc.Store(description.NewDefaultServer(addr))
	return s
}

// connectServer constructs a Server Handle and starts its monitoring loop.
func connectServer(addr address.Address, cfg *Config, cb updateTopologyCallback) *Server {
	s := newServer(addr, cfg)
	s.start(cb)
	return s
}

// start begins the background heartbeat loop. Must be called at most once.
func (s *Server) start(cb updateTopologyCallback) {
	atomic.StoreInt32(&s.state, srvConnected)
	s.updateCallback.Store(cb)
	s.closewg.Add(1)
	go s.monitor()
}

// Description returns the last-known ServerDescription.
func (s *Server) Description() description.Server {
	return s.desc.Load().(description.Server)
}

// Address returns the address this handle monitors.
func (s *Server) Address() address.Address { return s.address }

// Subscribe returns a ServerSubscription for description updates.
func (s *Server) Subscribe() (*ServerSubscription, error) {
	if atomic.LoadInt32(&s.state) != srvConnected {
		return nil, ErrSubscribeAfterClosed
	}
	ch := make(chan description.Server, 1)
	ch <- s.Description()

	s.subLock.Lock()
	defer s.subLock.Unlock()
	if s.subsClosed {
		return nil, ErrSubscribeAfterClosed
	}
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = ch
	return &ServerSubscription{C: ch, s: s, id: id}, nil
}

// RequestImmediateCheck causes the monitor loop to heartbeat right away
// instead of waiting for the next tick, spec §4.4 step 4.
func (s *Server) RequestImmediateCheck() {
	select {
	case s.checkNow <- struct{}{}:
	default:
	}
}

// reset replaces the stored description with a fresh Unknown-with-error one,
// the §4.6 error handler's "any other error" branch: reset without clearing
// the pool. It goes through the same updateCallback path as a heartbeat
// result so the parent Topology reconciles normally.
func (s *Server) reset(err error) {
	prev := s.Description()
	s.storeAndPublish(description.NewServerFromError(s.address, err, prev.TopologyVersion))
}

// resetWithPoolClear performs the same reset as reset but also bumps the
// pool generation, the §4.6 error handler's parse-layer-error branch
// ("reset... with its connection pool cleared"). The connection pool
// itself is out of scope (spec §1); the generation counter is the
// observable stand-in a pooling Executor can check to invalidate whatever
// it pooled for this address.
func (s *Server) resetWithPoolClear(err error) {
	atomic.AddUint64(&s.poolGeneration, 1)
	s.reset(err)
}

// PoolGeneration returns the generation counter bumped by a parse-layer
// error reset.
func (s *Server) PoolGeneration() uint64 {
	return atomic.LoadUint64(&s.poolGeneration)
}

// destroy stops the monitor loop and closes all subscriptions. destroy does
// not itself emit serverClosed; the Topology does, after destroy returns,
// since the event carries the topology id.
func (s *Server) destroy() {
	if !atomic.CompareAndSwapInt32(&s.state, srvConnected, srvDisconnecting) {
		return
	}
	close(s.done)
	s.closewg.Wait()
	atomic.StoreInt32(&s.state, srvDisconnected)
}

// monitor runs the heartbeat loop described in spec §4.6 and the teacher's
// Server.update: an immediate first heartbeat, then a ticker gated by
// minHeartbeatInterval, woken early by checkNow.
func (s *Server) monitor() {
	defer s.closewg.Done()

	heartbeatTicker := time.NewTicker(s.cfg.HeartbeatFrequency)
	rateLimiter := time.NewTicker(s.cfg.MinHeartbeatInterval)
	defer heartbeatTicker.Stop()
	defer rateLimiter.Stop()

	var conn interface{}
	s.heartbeatOnce(&conn)

	for {
		select {
		case <-s.done:
			s.closeSubscriptions()
			return
		case <-heartbeatTicker.C:
		case <-s.checkNow:
		}

		select {
		case <-s.done:
			s.closeSubscriptions()
			return
		case <-rateLimiter.C:
		}

		s.heartbeatOnce(&conn)
	}
}

func (s *Server) closeSubscriptions() {
	s.subLock.Lock()
	defer s.subLock.Unlock()
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
	s.subsClosed = true
}

// heartbeatOnce issues one isMaster probe and publishes the resulting
// description, reusing the connection handle in conn across calls the way
// the teacher's heartbeat(conn *connection) does.
func (s *Server) heartbeatOnce(conn *interface{}) {
	ctx, cancel := context.WithTimeout(context.Background(), heartbeatTimeout(s.cfg))
	defer cancel()

	start := time.Now()
	s.publishHeartbeatStarted()

	reply, rtt, next, err := s.cfg.Heartbeater(ctx, s.address, *conn)
	*conn = next
	elapsed := time.Since(start)
	if rtt == 0 {
		rtt = elapsed
	}

	if err != nil {
		s.publishHeartbeatFailed(elapsed, err)
		s.storeAndPublish(description.NewServerFromError(s.address, err, s.Description().TopologyVersion))
		return
	}

	s.publishHeartbeatSucceeded(elapsed, reply)
	desc := description.NewServerFromIsMaster(s.address, reply, s.updateAverageRTT(rtt))
	s.storeAndPublish(desc)
}

func heartbeatTimeout(cfg *Config) time.Duration {
	if cfg.HeartbeatFrequency < 10*time.Second {
		return cfg.HeartbeatFrequency
	}
	return 10 * time.Second
}

// updateAverageRTT applies the teacher's exponentially-weighted moving
// average (alpha = 0.2) to smooth reported round-trip times.
func (s *Server) updateAverageRTT(delay time.Duration) time.Duration {
	if !s.rttSet {
		s.rtt = delay
		s.rttSet = true
		return s.rtt
	}
	const alpha = 0.2
	s.rtt = time.Duration(alpha*float64(delay) + (1-alpha)*float64(s.rtt))
	return s.rtt
}

// storeAndPublish routes desc through the parent Topology's callback (which
// may itself rewrite the description, e.g. on a stale TopologyVersion),
// stores the result, and fans it out to subscribers.
func (s *Server) storeAndPublish(desc description.Server) {
	if cb, ok := s.updateCallback.Load().(updateTopologyCallback); ok && cb != nil {
		desc = cb(desc)
	}
	s.desc.Store(desc)

	s.subLock.Lock()
	defer s.subLock.Unlock()
	for _, ch := range s.subscribers {
		select {
		case <-ch:
		default:
		}
		ch <- desc
	}
}

func (s *Server) publishHeartbeatStarted() {
	if s.cfg.Logger != nil {
		s.cfg.Logger.Print(logger.LevelDebug, &logger.ServerHeartbeatStartedMessage{Address: s.address.String()})
	}
	if s.cfg.ServerMonitor != nil && s.cfg.ServerMonitor.ServerHeartbeatStarted != nil {
		s.cfg.ServerMonitor.ServerHeartbeatStarted(&event.ServerHeartbeatStartedEvent{Address: s.address})
	}
}

func (s *Server) publishHeartbeatSucceeded(d time.Duration, reply *description.IsMasterResult) {
	if s.cfg.Logger != nil {
		s.cfg.Logger.Print(logger.LevelDebug, &logger.ServerHeartbeatSucceededMessage{
			Address: s.address.String(), DurationMS: d.Milliseconds(),
			ReplyFmt: logger.Dump(reply), IncludeBody: true,
		})
	}
	if s.cfg.ServerMonitor != nil && s.cfg.ServerMonitor.ServerHeartbeatSucceeded != nil {
		s.cfg.ServerMonitor.ServerHeartbeatSucceeded(&event.ServerHeartbeatSucceededEvent{
			Address: s.address, Duration: d, Reply: *reply,
		})
	}
}

func (s *Server) publishHeartbeatFailed(d time.Duration, err error) {
	if s.cfg.Logger != nil {
		s.cfg.Logger.Print(logger.LevelInfo, &logger.ServerHeartbeatFailedMessage{
			Address: s.address.String(), DurationMS: d.Milliseconds(), Err: err,
		})
	}
	if s.cfg.ServerMonitor != nil && s.cfg.ServerMonitor.ServerHeartbeatFailed != nil {
		s.cfg.ServerMonitor.ServerHeartbeatFailed(&event.ServerHeartbeatFailedEvent{
			Address: s.address, Duration: d, Err: err,
		})
	}
}
