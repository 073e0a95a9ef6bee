// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package topology

import (
	"context"
	"errors"
	"math/rand"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/mongodb/sdam-core/address"
	"github.com/mongodb/sdam-core/description"
	"github.com/mongodb/sdam-core/event"
	"github.com/mongodb/sdam-core/internal/logger"
	"github.com/mongodb/sdam-core/internal/randutil"
	"github.com/mongodb/sdam-core/session"
)

// topology connection states.
const (
	topoDisconnected int32 = iota
	topoConnecting
	topoConnected
	topoDisconnecting
)

// random is a package-level source shared by every Topology's random pick
// in SelectServer step 3 (spec §4.4), guarded against concurrent use since
// math/rand's default source is not goroutine-safe.
var random = randutil.New(rand.NewSource(time.Now().UnixNano()))

// nextTopologyID is the process-wide monotonic counter backing spec §3's
// "Topology identifier is... a shared monotonic counter".
var nextTopologyID uint64

// newTopologyID atomically assigns the next process-wide topology
// identifier, spec §3 Invariant 5 / §9's "model as an atomically
// incremented value within the process".
func newTopologyID() uint64 {
	return atomic.AddUint64(&nextTopologyID, 1)
}

// Topology is the Topology Actor of spec §3/§4.2: it owns the current
// TopologyDescription, the live Server Handle set, and the session pool,
// and mediates every state transition.
type Topology struct {
	id    uint64
	cfg   *Config
	state int32

	desc atomic.Value // description.Topology

	serversMu sync.Mutex
	servers   map[address.Address]*Server

	subMu       sync.Mutex
	subscribers map[uint64]chan description.Topology
	nextSubID   uint64
	subsClosed  bool

	connectOnce    sync.Once
	firstConnectMu sync.Mutex
	connectWaiters []chan struct{}
	everConnected  bool

	sessions *session.Pool

	srvDone chan struct{}
	srvWG   sync.WaitGroup

	client ClientInfo

	reqID int64
}

// New constructs a Topology from opts but does not start monitoring; call
// Connect to do that (spec §4.2).
func New(opts ...Option) (*Topology, error) {
	cfg, err := newConfig(opts...)
	if err != nil {
		return nil, err
	}

	t := &Topology{
		id:          newTopologyID(),
		cfg:         cfg,
		servers:     make(map[address.Address]*Server),
		subscribers: make(map[uint64]chan description.Topology),
		sessions:    session.NewPool(),
		srvDone:     make(chan struct{}),
		client:      clientInfo(cfg.AppName),
	}
	t.desc.Store(description.New())
	return t, nil
}

// ID returns the topology's process-wide unique, stable identifier.
func (t *Topology) ID() uint64 { return t.id }

// idString renders the identifier for the structured logger, which takes
// every id field as a string.
func (t *Topology) idString() string { return strconv.FormatUint(t.id, 10) }

// Description returns the current authoritative TopologyDescription.
func (t *Topology) Description() description.Topology {
	return t.desc.Load().(description.Topology)
}

// ClientInfo returns the handshake client-info record (spec §6).
func (t *Topology) ClientInfo() ClientInfo { return t.client }

// Connect starts monitoring every seeded server. It emits topologyOpening
// then the initial topologyDescriptionChanged (Unknown to seeded), per spec
// §3's Lifecycle and §4.2's connect contract. A concurrent Connect call
// while one is already in progress returns ErrTopologyConnected; use
// AwaitConnect to coalesce onto the first-connect notification instead.
func (t *Topology) Connect() error {
	if !atomic.CompareAndSwapInt32(&t.state, topoDisconnected, topoConnecting) {
		return ErrTopologyConnected
	}

	t.publishTopologyOpening()

	kind := description.ReplicaSetNoPrimary
	switch {
	case t.cfg.Direct || len(t.cfg.SeedList) == 1 && t.cfg.ReplicaSetName == "":
		kind = description.Single
	case t.cfg.ReplicaSetName == "":
		kind = description.TopologyUnknown
	}

	prev := description.New()
	seeded := description.NewWithServers(kind, t.cfg.ReplicaSetName, t.cfg.SeedList)
	t.desc.Store(seeded)
	t.publishTopologyDescriptionChanged(prev, seeded)

	t.serversMu.Lock()
	for _, addr := range t.cfg.SeedList {
		t.openServerLocked(addr)
	}
	t.serversMu.Unlock()

	if t.cfg.SRVResolver != nil {
		t.srvWG.Add(1)
		go t.pollSRV()
	}

	atomic.StoreInt32(&t.state, topoConnected)
	return nil
}

// AwaitConnect blocks until the first qualifying server reports connect
// (spec §4.2's connect callback), or ctx is done.
func (t *Topology) AwaitConnect(ctx context.Context) error {
	t.firstConnectMu.Lock()
	if t.everConnected {
		t.firstConnectMu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	t.connectWaiters = append(t.connectWaiters, ch)
	t.firstConnectMu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// onServerConnect implements the first-connect handler, spec §4.6: in a
// ReplicaSetWithPrimary topology, only the primary's first connect signals
// topology-level connect; otherwise (a deliberate over-emission tolerated
// for compatibility, spec §9) every server's first connect does.
func (t *Topology) onServerConnect(addr address.Address) {
	desc := t.Description()
	if desc.Kind == description.ReplicaSetWithPrimary {
		sd, ok := desc.Server(addr)
		if !ok || sd.Kind != description.RSPrimary {
			return
		}
	}

	t.firstConnectMu.Lock()
	t.everConnected = true
	waiters := t.connectWaiters
	t.connectWaiters = nil
	t.firstConnectMu.Unlock()

	for _, ch := range waiters {
		close(ch)
	}
	t.publishConnect(addr)
}

// Close drains active sessions, ends the session pool, destroys every
// Server Handle, and emits topologyClosed. Idempotent: calls after the
// first are no-ops, matching spec §4.2's close contract. Session draining
// and server teardown run concurrently via errgroup, spec §8 scenario 6's
// only requirement being that topologyClosed waits for both.
func (t *Topology) Close(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&t.state, topoConnected, topoDisconnecting) {
		return nil
	}

	if t.cfg.SRVResolver != nil {
		close(t.srvDone)
		t.srvWG.Wait()
	}

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		t.sessions.EndAll()
		t.sessions.Release()
		return nil
	})

	t.serversMu.Lock()
	servers := make([]*Server, 0, len(t.servers))
	for _, s := range t.servers {
		servers = append(servers, s)
	}
	t.serversMu.Unlock()

	for _, s := range servers {
		s := s
		g.Go(func() error {
			s.destroy()
			t.publishServerClosed(s.address)
			return nil
		})
	}

	_ = g.Wait()

	t.serversMu.Lock()
	t.servers = make(map[address.Address]*Server)
	t.serversMu.Unlock()

	t.subMu.Lock()
	for id, ch := range t.subscribers {
		close(ch)
		delete(t.subscribers, id)
	}
	t.subsClosed = true
	t.subMu.Unlock()

	t.desc.Store(description.New())
	atomic.StoreInt32(&t.state, topoDisconnected)
	t.publishTopologyClosed()
	return nil
}

// Destroy is a deprecated alias of Close (spec §6).
func (t *Topology) Destroy(ctx context.Context) error { return t.Close(ctx) }

// Connected reports whether the topology is currently connected.
func (t *Topology) Connected() bool {
	return atomic.LoadInt32(&t.state) == topoConnected
}

// Subscription delivers every updated TopologyDescription. The channel has
// buffer size one, pre-populated with the current description.
type Subscription struct {
	C  <-chan description.Topology
	t  *Topology
	id uint64
}

// Unsubscribe stops delivery. Idempotent.
func (s *Subscription) Unsubscribe() {
	s.t.subMu.Lock()
	defer s.t.subMu.Unlock()
	if s.t.subsClosed {
		return
	}
	if ch, ok := s.t.subscribers[s.id]; ok {
		close(ch)
		delete(s.t.subscribers, s.id)
	}
}

// Subscribe returns a Subscription for topology description updates.
func (t *Topology) Subscribe() (*Subscription, error) {
	if !t.Connected() {
		return nil, ErrTopologyClosed
	}
	ch := make(chan description.Topology, 1)
	ch <- t.Description()

	t.subMu.Lock()
	defer t.subMu.Unlock()
	if t.subsClosed {
		return nil, ErrSubscribeAfterClosed
	}
	id := t.nextSubID
	t.nextSubID++
	t.subscribers[id] = ch
	return &Subscription{C: ch, t: t, id: id}, nil
}

func (t *Topology) publishToSubscribers(desc description.Topology) {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	for _, ch := range t.subscribers {
		select {
		case <-ch:
		default:
		}
		ch <- desc
	}
}

// RequestImmediateCheck tells every Server Handle to heartbeat now, spec
// §4.4 step 4.
func (t *Topology) RequestImmediateCheck() {
	t.serversMu.Lock()
	defer t.serversMu.Unlock()
	for _, s := range t.servers {
		s.RequestImmediateCheck()
	}
}

// FindServer returns the live Server Handle for an address, if any.
func (t *Topology) FindServer(addr address.Address) (*Server, bool) {
	t.serversMu.Lock()
	defer t.serversMu.Unlock()
	s, ok := t.servers[addr]
	return s, ok
}

// serverUpdateHandler implements spec §4.2: applies update, emits the event
// pair in the normative order, and reconciles the server set. It is the
// updateTopologyCallback every Server Handle invokes with its latest
// heartbeat result, and returns the description that handle should store
// (possibly rewritten, e.g. ignored as stale).
func (t *Topology) serverUpdateHandler(sd description.Server) description.Server {
	t.serversMu.Lock()
	defer t.serversMu.Unlock()

	prevTopo := t.Description()
	oldSD, tracked := prevTopo.Server(sd.Address)
	if !tracked {
		return sd
	}

	if oldSD.TopologyVersion.CompareToIncoming(sd.TopologyVersion) > 0 {
		// A reordered heartbeat: ignore it (SUPPLEMENTED FEATURES staleness
		// guard) and keep reporting the description already on file.
		return oldSD
	}

	newTopo := prevTopo.Update(sd)

	if !oldSD.Equal(sd) {
		t.publishServerDescriptionChanged(sd.Address, oldSD, sd)
	}

	t.updateServersLocked(prevTopo, newTopo)

	t.desc.Store(newTopo)
	t.publishToSubscribers(newTopo)
	if !prevTopo.Equal(newTopo) {
		t.publishTopologyDescriptionChanged(prevTopo, newTopo)
	}

	return sd
}

// updateServersLocked reconciles the live Server Handle set against next's
// membership, spec §4.3. Callers must hold serversMu.
func (t *Topology) updateServersLocked(prev, next description.Topology) {
	for addr := range next.Servers {
		if _, ok := t.servers[addr]; !ok {
			t.openServerLocked(addr)
		}
	}
	for addr, s := range t.servers {
		if _, ok := next.Servers[addr]; !ok {
			delete(t.servers, addr)
			go func(s *Server, addr address.Address) {
				s.destroy()
				t.publishServerClosed(addr)
			}(s, addr)
		}
	}
}

// openServerLocked creates and starts a Server Handle for addr, wiring the
// first-connect handler via watchFirstConnect and serverUpdateHandler as
// its update callback (spec §4.3 step 2). The error handler is not a
// separate subscription: Topology.Execute invokes handleServerError
// directly on the same addr, the message-passing redesign's collapse of
// that indirection (spec §9). Callers must hold serversMu.
func (t *Topology) openServerLocked(addr address.Address) {
	t.publishServerOpening(addr)
	s := connectServer(addr, t.cfg, t.serverUpdateHandler)
	t.servers[addr] = s
	go t.watchFirstConnect(s)
}

// watchFirstConnect subscribes to s and invokes the first-connect handler
// (spec §4.6) the first time s reports a non-Unknown description, then
// exits; ongoing reconciliation keeps happening through
// serverUpdateHandler regardless.
func (t *Topology) watchFirstConnect(s *Server) {
	sub, err := s.Subscribe()
	if err != nil {
		return
	}
	defer sub.Unsubscribe()
	for desc := range sub.C {
		if desc.Kind != description.Unknown {
			t.onServerConnect(s.address)
			return
		}
	}
}

// pollSRV runs the optional SRV host-list rescan loop (SUPPLEMENTED
// FEATURES 1): every RescanSRVInterval it resolves the current host list
// and diffs it against the member list, feeding additions and removals
// through the same reconciliation serverUpdateHandler uses (spec §4.3).
func (t *Topology) pollSRV() {
	defer t.srvWG.Done()

	ticker := time.NewTicker(t.cfg.RescanSRVInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.srvDone:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), t.cfg.RescanSRVInterval)
		hosts, err := t.cfg.SRVResolver(ctx)
		cancel()
		if err != nil {
			t.publishError(err)
			continue
		}
		t.applySRVHosts(hosts)
	}
}

// applySRVHosts diffs hosts against the current member list: addresses not
// yet tracked are added as Unknown servers, tracked addresses no longer
// present are removed, and the result is reconciled through
// updateServersLocked exactly as a heartbeat-driven membership change would
// be (spec §4.3).
func (t *Topology) applySRVHosts(hosts []address.Address) {
	wanted := make(map[address.Address]struct{}, len(hosts))
	for _, a := range hosts {
		wanted[a] = struct{}{}
	}

	t.serversMu.Lock()
	defer t.serversMu.Unlock()

	prevTopo := t.Description()
	servers := make(map[address.Address]description.Server, len(prevTopo.Servers))
	for addr, sd := range prevTopo.Servers {
		servers[addr] = sd
	}

	changed := false
	for addr := range wanted {
		if _, ok := servers[addr]; !ok {
			servers[addr] = description.NewDefaultServer(addr)
			changed = true
		}
	}
	for addr := range servers {
		if _, ok := wanted[addr]; !ok {
			delete(servers, addr)
			changed = true
		}
	}
	if !changed {
		return
	}

	next := prevTopo
	next.Servers = servers

	t.desc.Store(next)
	t.updateServersLocked(prevTopo, next)
	t.publishToSubscribers(next)
	t.publishTopologyDescriptionChanged(prevTopo, next)
}

// StartSession creates a Session tracked by the topology's pool until it
// ends, spec §4.2.
func (t *Topology) StartSession() *session.ClientSession {
	return session.NewClientSession(t.sessions)
}

// EndSessions best-effort ends every tracked session, spec §4.2: it sends
// an endSessions admin command with a primaryPreferred read preference
// through the injected Executor, ignoring any error from selection or
// dispatch, then drains the local pool regardless of the command's outcome.
func (t *Topology) EndSessions(ctx context.Context) {
	if ids := t.sessions.IDs(); len(ids) > 0 {
		cmd := bson.D{{Key: "endSessions", Value: ids}}
		selector := description.ReadPref{Mode: description.PrimaryPreferredMode}.Selector()
		if srv, err := t.SelectServer(ctx, selector); err == nil {
			_, _ = t.Execute(ctx, srv.Address(), "admin", cmd)
		}
	}
	t.sessions.EndAll()
}

// HasSessionSupport reports whether the current description has a
// non-absent logicalSessionTimeoutMinutes, spec §4.2.
func (t *Topology) HasSessionSupport() bool {
	return t.Description().HasSessionSupport()
}

// SupportsRetryableWrites reports the topology-level capability spec §4.5's
// retry recognition depends on.
func (t *Topology) SupportsRetryableWrites() bool {
	return t.Description().SupportsRetryableWrites()
}

// LastIsMaster returns the first non-Unknown server description's reported
// state, or the zero value if none exists; spec §4.2 notes this is
// undefined when descriptions disagree.
func (t *Topology) LastIsMaster() description.Server {
	for _, s := range t.Description().ServerList() {
		if s.Kind != description.Unknown {
			return s
		}
	}
	return description.Server{}
}

// Execute forwards cmd to addr via the injected Executor, the boundary onto
// the out-of-scope wire-protocol transport (spec §1), publishing the
// commandStarted/Succeeded/Failed event triple spec §6 lists among the
// core's emitted events.
func (t *Topology) Execute(ctx context.Context, addr address.Address, dbName string, cmd interface{}) (interface{}, error) {
	name := commandName(cmd)
	reqID := atomic.AddInt64(&t.reqID, 1)

	t.publishCommandStarted(addr, dbName, name, cmd, reqID)
	start := time.Now()

	reply, err := t.cfg.Executor(ctx, addr, dbName, cmd)

	if err != nil {
		t.publishCommandFailed(addr, name, time.Since(start), err, reqID)
		t.handleServerError(addr, err)
		return nil, err
	}
	t.publishCommandSucceeded(addr, name, time.Since(start), reply, reqID)
	return reply, nil
}

// handleServerError is the error handler of spec §4.6, invoked directly
// from the dispatch error path rather than through a subscription (the
// event-emitter-to-message-passing redesign noted in spec §9 collapses
// that indirection). A parse-layer error resets the Server Handle's
// description to Unknown and bumps its pool generation; any other error
// resets the description without touching the generation.
func (t *Topology) handleServerError(addr address.Address, err error) {
	s, ok := t.FindServer(addr)
	if !ok {
		return
	}
	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		s.resetWithPoolClear(err)
	} else {
		s.reset(err)
	}
	t.publishError(err)
}

// ParseError marks err as a parse-layer failure (malformed wire data),
// spec §4.6's distinction between the two error-handler branches.
// Executors should wrap transport errors that indicate corrupt or
// unparseable replies in a ParseError so the error handler bumps the
// affected server's pool generation as well as resetting its description.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return "parse error: " + e.Err.Error() }

func (e *ParseError) Unwrap() error { return e.Err }

// commandName extracts the top-level command name from a bson.D, the only
// cmd shape the dispatch package constructs; anything else is reported as
// "unknown" rather than failing the dispatch itself.
func commandName(cmd interface{}) string {
	if d, ok := cmd.(bson.D); ok && len(d) > 0 {
		return d[0].Key
	}
	return "unknown"
}

// selectOnce applies selector to the current description without blocking,
// spec §4.4 step 3.
func (t *Topology) selectOnce(selector description.ServerSelector) ([]description.Server, description.Topology, error) {
	desc := t.Description()
	if desc.CompatibleErr != nil {
		return nil, desc, desc.CompatibleErr
	}
	suitable, err := selector.SelectServer(desc, desc.Selectable())
	if err != nil {
		return nil, desc, err
	}
	return suitable, desc, nil
}

// pickHandle maps a chosen ServerDescription to its live Server Handle,
// spec §4.4 step 3's "map descriptions to their live Server Handles".
func (t *Topology) pickHandle(suitable []description.Server) *Server {
	for {
		if len(suitable) == 0 {
			return nil
		}
		pick := suitable[random.Intn(len(suitable))]
		if s, ok := t.FindServer(pick.Address); ok {
			return s
		}
		// The handle vanished between selection and lookup (e.g. removed
		// by reconciliation); drop it and try another candidate.
		suitable = removeAt(suitable, pick.Address)
	}
}

func removeAt(servers []description.Server, addr address.Address) []description.Server {
	out := servers[:0]
	for _, s := range servers {
		if s.Address != addr {
			out = append(out, s)
		}
	}
	return out
}

func (t *Topology) publishServerOpening(addr address.Address) {
	if t.cfg.Logger != nil {
		t.cfg.Logger.Print(logger.LevelInfo, &logger.ServerOpeningMessage{TopologyID: t.idString(), Address: addr.String()})
	}
	if t.cfg.ServerMonitor != nil && t.cfg.ServerMonitor.ServerOpening != nil {
		t.cfg.ServerMonitor.ServerOpening(&event.ServerOpeningEvent{Address: addr, TopologyID: t.id})
	}
}

func (t *Topology) publishServerClosed(addr address.Address) {
	if t.cfg.Logger != nil {
		t.cfg.Logger.Print(logger.LevelInfo, &logger.ServerClosedMessage{TopologyID: t.idString(), Address: addr.String()})
	}
	if t.cfg.ServerMonitor != nil && t.cfg.ServerMonitor.ServerClosed != nil {
		t.cfg.ServerMonitor.ServerClosed(&event.ServerClosedEvent{Address: addr, TopologyID: t.id})
	}
}

func (t *Topology) publishServerDescriptionChanged(addr address.Address, prev, next description.Server) {
	if t.cfg.ServerMonitor != nil && t.cfg.ServerMonitor.ServerDescriptionChanged != nil {
		t.cfg.ServerMonitor.ServerDescriptionChanged(&event.ServerDescriptionChangedEvent{
			Address: addr, TopologyID: t.id, PreviousDescription: prev, NewDescription: next,
		})
	}
}

func (t *Topology) publishTopologyOpening() {
	if t.cfg.Logger != nil {
		t.cfg.Logger.Print(logger.LevelInfo, &logger.TopologyOpeningMessage{TopologyID: t.idString()})
	}
	if t.cfg.ServerMonitor != nil && t.cfg.ServerMonitor.TopologyOpening != nil {
		t.cfg.ServerMonitor.TopologyOpening(&event.TopologyOpeningEvent{TopologyID: t.id})
	}
}

func (t *Topology) publishTopologyClosed() {
	if t.cfg.Logger != nil {
		t.cfg.Logger.Print(logger.LevelInfo, &logger.TopologyClosedMessage{TopologyID: t.idString()})
	}
	if t.cfg.ServerMonitor != nil && t.cfg.ServerMonitor.TopologyClosed != nil {
		t.cfg.ServerMonitor.TopologyClosed(&event.TopologyClosedEvent{TopologyID: t.id})
	}
}

func (t *Topology) publishTopologyDescriptionChanged(prev, next description.Topology) {
	if t.cfg.Logger != nil {
		t.cfg.Logger.Print(logger.LevelDebug, &logger.TopologyDescriptionChangedMessage{
			TopologyID: t.idString(), PreviousFmt: logger.Dump(prev), NewFmt: logger.Dump(next), NewKind: string(next.Kind),
		})
	}
	if t.cfg.ServerMonitor != nil && t.cfg.ServerMonitor.TopologyDescriptionChanged != nil {
		t.cfg.ServerMonitor.TopologyDescriptionChanged(&event.TopologyDescriptionChangedEvent{
			TopologyID: t.id, PreviousDescription: prev, NewDescription: next,
		})
	}
}

func (t *Topology) publishConnect(addr address.Address) {
	if t.cfg.ServerMonitor != nil && t.cfg.ServerMonitor.Connect != nil {
		t.cfg.ServerMonitor.Connect(&event.ConnectEvent{Address: addr, TopologyID: t.id})
	}
}

func (t *Topology) publishCommandStarted(addr address.Address, dbName, name string, cmd interface{}, reqID int64) {
	if t.cfg.CommandMonitor == nil || t.cfg.CommandMonitor.Started == nil {
		return
	}
	raw, _ := cmd.(bson.Raw)
	t.cfg.CommandMonitor.Started(&event.CommandStartedEvent{
		Address: addr, DatabaseName: dbName, CommandName: name, Command: raw, RequestID: reqID,
	})
}

func (t *Topology) publishCommandSucceeded(addr address.Address, name string, d time.Duration, reply interface{}, reqID int64) {
	if t.cfg.CommandMonitor == nil || t.cfg.CommandMonitor.Succeeded == nil {
		return
	}
	raw, _ := reply.(bson.Raw)
	t.cfg.CommandMonitor.Succeeded(&event.CommandSucceededEvent{
		Address: addr, CommandName: name, Duration: d, Reply: raw, RequestID: reqID,
	})
}

func (t *Topology) publishCommandFailed(addr address.Address, name string, d time.Duration, err error, reqID int64) {
	if t.cfg.CommandMonitor == nil || t.cfg.CommandMonitor.Failed == nil {
		return
	}
	t.cfg.CommandMonitor.Failed(&event.CommandFailedEvent{
		Address: addr, CommandName: name, Duration: d, Err: err, RequestID: reqID,
	})
}

func (t *Topology) publishError(err error) {
	if t.cfg.ServerMonitor != nil && t.cfg.ServerMonitor.Error != nil {
		t.cfg.ServerMonitor.Error(&event.ErrorEvent{TopologyID: t.id, Err: err})
	}
}
