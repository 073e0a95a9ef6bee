// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package event defines the typed lifecycle events the Topology Core
// publishes and the monitor structs subscribers populate to receive them.
// This replaces the source's dynamic publish-subscribe object with typed
// messages (the event-emitter-to-message-passing redesign of spec §9).
package event

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/mongodb/sdam-core/address"
	"github.com/mongodb/sdam-core/description"
)

// ServerOpeningEvent is published when the topology begins tracking an
// address that did not previously have a Server Handle.
type ServerOpeningEvent struct {
	Address    address.Address
	TopologyID uint64
}

// ServerClosedEvent is published when a Server Handle is destroyed.
type ServerClosedEvent struct {
	Address    address.Address
	TopologyID uint64
}

// ServerDescriptionChangedEvent is published whenever a Server Handle's
// description changes, even if the topology-level kind does not.
type ServerDescriptionChangedEvent struct {
	Address             address.Address
	TopologyID          uint64
	PreviousDescription description.Server
	NewDescription      description.Server
}

// TopologyOpeningEvent is published by Connect, before the initial
// topologyDescriptionChanged.
type TopologyOpeningEvent struct {
	TopologyID uint64
}

// TopologyClosedEvent is published once, when Close completes.
type TopologyClosedEvent struct {
	TopologyID uint64
}

// TopologyDescriptionChangedEvent is published every time the authoritative
// TopologyDescription changes content, after any per-server events the same
// update produced (spec §5 ordering guarantee 2).
type TopologyDescriptionChangedEvent struct {
	TopologyID          uint64
	PreviousDescription description.Topology
	NewDescription      description.Topology
}

// ServerHeartbeatStartedEvent is published immediately before a heartbeat
// probe is sent.
type ServerHeartbeatStartedEvent struct {
	Address address.Address
}

// ServerHeartbeatSucceededEvent is published when a heartbeat probe returns
// successfully.
type ServerHeartbeatSucceededEvent struct {
	Address  address.Address
	Duration time.Duration
	Reply    description.IsMasterResult
}

// ServerHeartbeatFailedEvent is published when a heartbeat probe fails.
type ServerHeartbeatFailedEvent struct {
	Address  address.Address
	Duration time.Duration
	Err      error
}

// CommandStartedEvent is published immediately before a command is sent to
// a selected server.
type CommandStartedEvent struct {
	Address      address.Address
	DatabaseName string
	CommandName  string
	Command      bson.Raw
	RequestID    int64
}

// CommandSucceededEvent is published when a command's reply arrives
// successfully.
type CommandSucceededEvent struct {
	Address      address.Address
	CommandName  string
	Duration     time.Duration
	Reply        bson.Raw
	RequestID    int64
}

// CommandFailedEvent is published when a command fails, whether from a
// transport error or a server-reported error.
type CommandFailedEvent struct {
	Address     address.Address
	CommandName string
	Duration    time.Duration
	Err         error
	RequestID   int64
}

// ConnectEvent is published the first time the topology (or, in a
// non-replica-set deployment, any server) completes its first successful
// heartbeat, per spec §4.6.
type ConnectEvent struct {
	Address    address.Address
	TopologyID uint64
}

// ErrorEvent carries an error that has no dedicated callback invocation to
// deliver to, e.g. a failed SRV rescan or a command error handled by the
// server error handler.
type ErrorEvent struct {
	TopologyID uint64
	Err        error
}

// ServerMonitor is the set of callbacks a subscriber populates to observe
// server- and topology-level lifecycle events. A nil field is simply not
// invoked; this mirrors the teacher's serverMonitor config field.
type ServerMonitor struct {
	ServerOpening              func(*ServerOpeningEvent)
	ServerClosed               func(*ServerClosedEvent)
	ServerDescriptionChanged   func(*ServerDescriptionChangedEvent)
	TopologyOpening            func(*TopologyOpeningEvent)
	TopologyClosed             func(*TopologyClosedEvent)
	TopologyDescriptionChanged func(*TopologyDescriptionChangedEvent)
	ServerHeartbeatStarted     func(*ServerHeartbeatStartedEvent)
	ServerHeartbeatSucceeded   func(*ServerHeartbeatSucceededEvent)
	ServerHeartbeatFailed      func(*ServerHeartbeatFailedEvent)
	Connect                    func(*ConnectEvent)
	Error                      func(*ErrorEvent)
}

// CommandMonitor is the set of callbacks a subscriber populates to observe
// command dispatch.
type CommandMonitor struct {
	Started   func(*CommandStartedEvent)
	Succeeded func(*CommandSucceededEvent)
	Failed    func(*CommandFailedEvent)
}

// Merge combines zero or more monitors into one that invokes every
// non-nil callback from each, in order. Used when both the internal
// logging sink and a caller-supplied monitor want the same events.
func Merge(monitors ...*ServerMonitor) *ServerMonitor {
	merged := &ServerMonitor{}
	for _, m := range monitors {
		if m == nil {
			continue
		}
		chain(&merged.ServerOpening, m.ServerOpening)
		chain(&merged.ServerClosed, m.ServerClosed)
		chain(&merged.ServerDescriptionChanged, m.ServerDescriptionChanged)
		chain(&merged.TopologyOpening, m.TopologyOpening)
		chain(&merged.TopologyClosed, m.TopologyClosed)
		chain(&merged.TopologyDescriptionChanged, m.TopologyDescriptionChanged)
		chain(&merged.ServerHeartbeatStarted, m.ServerHeartbeatStarted)
		chain(&merged.ServerHeartbeatSucceeded, m.ServerHeartbeatSucceeded)
		chain(&merged.ServerHeartbeatFailed, m.ServerHeartbeatFailed)
		chain(&merged.Connect, m.Connect)
		chain(&merged.Error, m.Error)
	}
	return merged
}

// chain appends add to whatever callback dst already holds, so both fire in
// registration order.
func chain[E any](dst *func(*E), add func(*E)) {
	if add == nil {
		return
	}
	prev := *dst
	*dst = func(e *E) {
		if prev != nil {
			prev(e)
		}
		add(e)
	}
}
