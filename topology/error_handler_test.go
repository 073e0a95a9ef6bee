// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package topology

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/mongodb/sdam-core/address"
	"github.com/mongodb/sdam-core/description"
)

func newExecutingTestTopology(t *testing.T, executor Executor) *Topology {
	t.Helper()
	topo, err := New(
		WithSeedList("h:27017"),
		WithHeartbeater(standaloneHeartbeater()),
		WithServerSelectionTimeout(time.Second),
		WithMinHeartbeatInterval(5*time.Millisecond),
		WithHeartbeatFrequency(20*time.Millisecond),
		WithExecutor(executor),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = topo.Close(context.Background()) })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := topo.SelectServer(ctx, description.WriteSelector()); err != nil {
		t.Fatalf("warm-up SelectServer() error = %v", err)
	}
	return topo
}

// A plain command error resets the server to Unknown without touching the
// pool generation, spec §4.6's "any other error" branch.
func TestExecuteErrorResetsServerToUnknown(t *testing.T) {
	addr := address.Address("h:27017")
	executor := func(ctx context.Context, addr address.Address, dbName string, cmd interface{}) (interface{}, error) {
		return nil, errors.New("not primary")
	}
	topo := newExecutingTestTopology(t, executor)

	if _, err := topo.Execute(context.Background(), addr, "db", bson.D{{Key: "ping", Value: 1}}); err == nil {
		t.Fatal("Execute() error = nil, want an error")
	}

	sd, ok := topo.Description().Server(addr)
	if !ok || sd.Kind != description.Unknown {
		t.Fatalf("server after error = %+v, want reset to Unknown", sd)
	}
	s, ok := topo.FindServer(addr)
	if !ok {
		t.Fatal("server handle missing after error")
	}
	if got := s.PoolGeneration(); got != 0 {
		t.Fatalf("PoolGeneration() = %d, want 0 for a non-parse error", got)
	}
}

// A ParseError additionally bumps the pool generation, spec §4.6's
// parse-layer branch.
func TestExecuteParseErrorBumpsPoolGeneration(t *testing.T) {
	addr := address.Address("h:27017")
	executor := func(ctx context.Context, addr address.Address, dbName string, cmd interface{}) (interface{}, error) {
		return nil, &ParseError{Err: errors.New("truncated reply")}
	}
	topo := newExecutingTestTopology(t, executor)

	if _, err := topo.Execute(context.Background(), addr, "db", bson.D{{Key: "ping", Value: 1}}); err == nil {
		t.Fatal("Execute() error = nil, want an error")
	}

	s, ok := topo.FindServer(addr)
	if !ok {
		t.Fatal("server handle missing after parse error")
	}
	if got := s.PoolGeneration(); got != 1 {
		t.Fatalf("PoolGeneration() = %d, want 1 after a parse error", got)
	}
}

// SRV rescan adds newly resolved hosts and removes ones no longer reported,
// reconciled the same way a heartbeat-driven membership change is (spec
// §4.3), SUPPLEMENTED FEATURES 1.
func TestApplySRVHostsAddsAndRemoves(t *testing.T) {
	a, b := address.Address("a:27017"), address.Address("b:27017")
	topo := newTestTopology(t, standaloneHeartbeater(), time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := topo.SelectServer(ctx, description.WriteSelector()); err != nil {
		t.Fatalf("warm-up SelectServer() error = %v", err)
	}

	topo.applySRVHosts([]address.Address{a, b})

	if _, ok := topo.Description().Server(a); !ok {
		t.Fatalf("server %v was not added by applySRVHosts", a)
	}
	if _, ok := topo.FindServer(a); !ok {
		t.Fatalf("no live handle opened for %v", a)
	}
	if _, ok := topo.Description().Server(address.Address("h:27017")); ok {
		t.Fatal("original seed was not removed by applySRVHosts")
	}
}

// EndSessions sends a best-effort endSessions admin command before
// draining the local pool, spec §4.2.
func TestEndSessionsSendsAdminCommand(t *testing.T) {
	var gotDB string
	var gotCmd bson.D
	executor := func(ctx context.Context, addr address.Address, dbName string, cmd interface{}) (interface{}, error) {
		gotDB = dbName
		gotCmd, _ = cmd.(bson.D)
		return bson.Raw{}, nil
	}
	topo := newExecutingTestTopology(t, executor)
	sess := topo.StartSession()

	topo.EndSessions(context.Background())

	if gotDB != "admin" {
		t.Fatalf("endSessions dispatched to db %q, want admin", gotDB)
	}
	if len(gotCmd) == 0 || gotCmd[0].Key != "endSessions" {
		t.Fatalf("command = %+v, want an endSessions document", gotCmd)
	}
	select {
	case <-sess.Ended():
	default:
		t.Fatal("session was not ended by EndSessions")
	}
}

// pollSRV, started by Connect when an SRVResolver is configured, rescans on
// its own schedule and applies the result through the normal
// reconciliation path.
func TestPollSRVRescansOnSchedule(t *testing.T) {
	a := address.Address("a:27017")
	resolved := make(chan struct{}, 1)
	resolver := func(ctx context.Context) ([]address.Address, error) {
		select {
		case resolved <- struct{}{}:
		default:
		}
		return []address.Address{a}, nil
	}

	topo, err := New(
		WithSeedList("h:27017"),
		WithHeartbeater(standaloneHeartbeater()),
		WithRescanSRVInterval(10*time.Millisecond, resolver),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := topo.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { _ = topo.Close(context.Background()) })

	select {
	case <-resolved:
	case <-time.After(time.Second):
		t.Fatal("SRVResolver was never invoked")
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, ok := topo.Description().Server(a); ok {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("server %v was never added by the SRV rescan loop", a)
}
