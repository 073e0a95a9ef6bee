// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package logger

import (
	"fmt"

	"github.com/davecgh/go-spew/spew"
)

// ComponentMessage is a loggable event tagged with the Component it belongs
// to, so a Logger can consult ComponentLevels before paying for Serialize.
type ComponentMessage interface {
	Component() Component
	Message() string
	Serialize() []interface{}
}

// DroppedMessage replaces a message that could not be queued because the
// logger's job channel was full. It is always Command component so it
// surfaces regardless of which component actually overflowed.
type DroppedMessage struct{}

// Component implements ComponentMessage.
func (*DroppedMessage) Component() Component { return ComponentCommand }

// Message implements ComponentMessage.
func (*DroppedMessage) Message() string { return "Log message dropped, log sink too slow" }

// Serialize implements ComponentMessage.
func (*DroppedMessage) Serialize() []interface{} { return nil }

// TopologyOpeningMessage reports that a Topology's Connect has started
// monitoring.
type TopologyOpeningMessage struct {
	TopologyID string
}

func (*TopologyOpeningMessage) Component() Component { return ComponentTopology }
func (*TopologyOpeningMessage) Message() string      { return "Starting topology monitoring" }
func (m *TopologyOpeningMessage) Serialize() []interface{} {
	return []interface{}{"topologyId", m.TopologyID}
}

// TopologyClosedMessage reports that a Topology's Close has completed.
type TopologyClosedMessage struct {
	TopologyID string
}

func (*TopologyClosedMessage) Component() Component { return ComponentTopology }
func (*TopologyClosedMessage) Message() string      { return "Stopped topology monitoring" }
func (m *TopologyClosedMessage) Serialize() []interface{} {
	return []interface{}{"topologyId", m.TopologyID}
}

// TopologyDescriptionChangedMessage reports that the authoritative
// TopologyDescription was replaced. It always serializes the new kind and
// both go-spew-dumped snapshots; the Topology logs it at Debug level only.
type TopologyDescriptionChangedMessage struct {
	TopologyID  string
	PreviousFmt string
	NewFmt      string
	NewKind     string
}

func (*TopologyDescriptionChangedMessage) Component() Component { return ComponentTopology }
func (*TopologyDescriptionChangedMessage) Message() string      { return "Topology description changed" }
func (m *TopologyDescriptionChangedMessage) Serialize() []interface{} {
	return []interface{}{
		"topologyId", m.TopologyID,
		"newKind", m.NewKind,
		"previousDescription", m.PreviousFmt,
		"newDescription", m.NewFmt,
	}
}

// ServerOpeningMessage reports that a Topology started tracking a new
// address.
type ServerOpeningMessage struct {
	TopologyID string
	Address    string
}

func (*ServerOpeningMessage) Component() Component { return ComponentTopology }
func (*ServerOpeningMessage) Message() string      { return "Starting server monitoring" }
func (m *ServerOpeningMessage) Serialize() []interface{} {
	return []interface{}{"topologyId", m.TopologyID, "serverHost", m.Address}
}

// ServerClosedMessage reports that a Server Handle was torn down.
type ServerClosedMessage struct {
	TopologyID string
	Address    string
}

func (*ServerClosedMessage) Component() Component { return ComponentTopology }
func (*ServerClosedMessage) Message() string      { return "Stopped server monitoring" }
func (m *ServerClosedMessage) Serialize() []interface{} {
	return []interface{}{"topologyId", m.TopologyID, "serverHost", m.Address}
}

// ServerHeartbeatStartedMessage reports that a heartbeat probe is about to
// be sent.
type ServerHeartbeatStartedMessage struct {
	Address string
	Awaited bool
}

func (*ServerHeartbeatStartedMessage) Component() Component { return ComponentTopology }
func (*ServerHeartbeatStartedMessage) Message() string      { return "Server heartbeat started" }
func (m *ServerHeartbeatStartedMessage) Serialize() []interface{} {
	return []interface{}{"serverHost", m.Address, "awaited", m.Awaited}
}

// ServerHeartbeatSucceededMessage reports a successful heartbeat reply.
// Debug level includes the spew-dumped reply document.
type ServerHeartbeatSucceededMessage struct {
	Address     string
	DurationMS  int64
	ReplyFmt    string
	IncludeBody bool
}

func (*ServerHeartbeatSucceededMessage) Component() Component { return ComponentTopology }
func (*ServerHeartbeatSucceededMessage) Message() string      { return "Server heartbeat succeeded" }
func (m *ServerHeartbeatSucceededMessage) Serialize() []interface{} {
	kv := []interface{}{"serverHost", m.Address, "durationMS", m.DurationMS}
	if m.IncludeBody {
		kv = append(kv, "reply", m.ReplyFmt)
	}
	return kv
}

// ServerHeartbeatFailedMessage reports a failed heartbeat probe.
type ServerHeartbeatFailedMessage struct {
	Address    string
	DurationMS int64
	Err        error
}

func (*ServerHeartbeatFailedMessage) Component() Component { return ComponentTopology }
func (*ServerHeartbeatFailedMessage) Message() string      { return "Server heartbeat failed" }
func (m *ServerHeartbeatFailedMessage) Serialize() []interface{} {
	return []interface{}{"serverHost", m.Address, "durationMS", m.DurationMS, "failure", m.Err.Error()}
}

// ServerSelectionStartedMessage reports the start of a server selection
// attempt.
type ServerSelectionStartedMessage struct {
	Operation string
	Selector  string
}

func (*ServerSelectionStartedMessage) Component() Component { return ComponentServerSelection }
func (*ServerSelectionStartedMessage) Message() string      { return "Server selection started" }
func (m *ServerSelectionStartedMessage) Serialize() []interface{} {
	return []interface{}{"operation", m.Operation, "selector", m.Selector}
}

// ServerSelectionSucceededMessage reports that a selection attempt chose a
// server.
type ServerSelectionSucceededMessage struct {
	Operation  string
	Address    string
	DurationMS int64
}

func (*ServerSelectionSucceededMessage) Component() Component { return ComponentServerSelection }
func (*ServerSelectionSucceededMessage) Message() string      { return "Server selection succeeded" }
func (m *ServerSelectionSucceededMessage) Serialize() []interface{} {
	return []interface{}{"operation", m.Operation, "serverHost", m.Address, "durationMS", m.DurationMS}
}

// ServerSelectionFailedMessage reports that a selection attempt's deadline
// elapsed before a suitable server appeared.
type ServerSelectionFailedMessage struct {
	Operation  string
	Selector   string
	DurationMS int64
	Err        error
}

func (*ServerSelectionFailedMessage) Component() Component { return ComponentServerSelection }
func (*ServerSelectionFailedMessage) Message() string      { return "Server selection failed" }
func (m *ServerSelectionFailedMessage) Serialize() []interface{} {
	return []interface{}{
		"operation", m.Operation,
		"selector", m.Selector,
		"durationMS", m.DurationMS,
		"failure", m.Err.Error(),
	}
}

// CommandStartedMessage reports that a command is about to be sent.
type CommandStartedMessage struct {
	RequestID   int64
	Address     string
	CommandName string
	CommandFmt  string
}

func (*CommandStartedMessage) Component() Component { return ComponentCommand }
func (*CommandStartedMessage) Message() string      { return "Command started" }
func (m *CommandStartedMessage) Serialize() []interface{} {
	return []interface{}{
		"requestId", m.RequestID,
		"serverHost", m.Address,
		"commandName", m.CommandName,
		"command", m.CommandFmt,
	}
}

// CommandSucceededMessage reports a successful command reply.
type CommandSucceededMessage struct {
	RequestID   int64
	Address     string
	CommandName string
	DurationMS  int64
	ReplyFmt    string
}

func (*CommandSucceededMessage) Component() Component { return ComponentCommand }
func (*CommandSucceededMessage) Message() string      { return "Command succeeded" }
func (m *CommandSucceededMessage) Serialize() []interface{} {
	return []interface{}{
		"requestId", m.RequestID,
		"serverHost", m.Address,
		"commandName", m.CommandName,
		"durationMS", m.DurationMS,
		"reply", m.ReplyFmt,
	}
}

// CommandFailedMessage reports a command that failed, whether from a
// transport error or a server-reported one.
type CommandFailedMessage struct {
	RequestID   int64
	Address     string
	CommandName string
	DurationMS  int64
	Err         error
}

func (*CommandFailedMessage) Component() Component { return ComponentCommand }
func (*CommandFailedMessage) Message() string      { return "Command failed" }
func (m *CommandFailedMessage) Serialize() []interface{} {
	return []interface{}{
		"requestId", m.RequestID,
		"serverHost", m.Address,
		"commandName", m.CommandName,
		"durationMS", m.DurationMS,
		"failure", m.Err.Error(),
	}
}

// Dump renders v with go-spew for a Debug-level structured message body. The
// driver's own BSON types already print reasonably via fmt, but
// TopologyDescription/ServerDescription are plain structs with unexported
// slice internals that fmt's default verb flattens unhelpfully.
func Dump(v interface{}) string {
	return fmt.Sprintf("%# v", spew.NewFormatter(v))
}
