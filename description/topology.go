// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package description

import (
	"bytes"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/mongodb/sdam-core/address"
)

// compareObjectID orders two ObjectIDs byte-wise; primitive.ObjectID is a
// fixed-size byte array and supports only == / != directly.
func compareObjectID(a, b primitive.ObjectID) int {
	return bytes.Compare(a[:], b[:])
}

// TopologyKind is the tagged variant of the overall deployment shape.
type TopologyKind string

// The topology kinds recognized by SDAM.
const (
	TopologyUnknown       TopologyKind = "Unknown"
	Single                TopologyKind = "Single"
	Sharded               TopologyKind = "Sharded"
	ReplicaSetNoPrimary   TopologyKind = "ReplicaSetNoPrimary"
	ReplicaSetWithPrimary TopologyKind = "ReplicaSetWithPrimary"
)

// Topology is the immutable snapshot of the cluster view. New returns the
// initial Unknown description with no servers, matching spec §8's
// requirement that the first topologyDescriptionChanged event's "previous"
// has type Unknown with empty servers; the zero value has an empty Kind.
type Topology struct {
	Kind          TopologyKind
	Servers       map[address.Address]Server
	CompatibleErr error

	SetName       string
	MaxSetVersion *int64
	MaxElectionID primitive.ObjectID

	SessionTimeoutMinutes *int64
}

// New returns the empty Unknown topology description.
func New() Topology {
	return Topology{Kind: TopologyUnknown, Servers: map[address.Address]Server{}}
}

// NewWithServers seeds a topology with the given addresses, all initially
// Unknown, at the given kind (used by Topology.Connect to construct the
// initial description before any heartbeat has landed).
func NewWithServers(kind TopologyKind, setName string, addrs []address.Address) Topology {
	servers := make(map[address.Address]Server, len(addrs))
	for _, a := range addrs {
		servers[a] = NewDefaultServer(a)
	}
	return Topology{Kind: kind, Servers: servers, SetName: setName}
}

// Equal reports whether two topology descriptions are content-equal.
func (t Topology) Equal(other Topology) bool {
	if t.Kind != other.Kind || t.SetName != other.SetName {
		return false
	}
	if len(t.Servers) != len(other.Servers) {
		return false
	}
	for addr, s := range t.Servers {
		os, ok := other.Servers[addr]
		if !ok || !s.Equal(os) {
			return false
		}
	}
	return true
}

// Server returns the ServerDescription for addr, if tracked.
func (t Topology) Server(addr address.Address) (Server, bool) {
	s, ok := t.Servers[addr]
	return s, ok
}

// ServerList returns the tracked server descriptions in no particular order.
func (t Topology) ServerList() []Server {
	out := make([]Server, 0, len(t.Servers))
	for _, s := range t.Servers {
		out = append(out, s)
	}
	return out
}

func (t Topology) clone() Topology {
	next := Topology{
		Kind:                  t.Kind,
		CompatibleErr:         t.CompatibleErr,
		SetName:               t.SetName,
		MaxSetVersion:         t.MaxSetVersion,
		MaxElectionID:         t.MaxElectionID,
		SessionTimeoutMinutes: t.SessionTimeoutMinutes,
		Servers:               make(map[address.Address]Server, len(t.Servers)),
	}
	for addr, s := range t.Servers {
		next.Servers[addr] = s
	}
	return next
}

// Update applies the SDAM transition rules for the current topology kind and
// returns the resulting description. It is pure: given the same receiver and
// argument it always returns the same value, and it performs no I/O.
//
// If sd's address is not a member of the current description, Update
// returns the receiver unchanged (spec §4.1); callers must treat that as a
// no-op and skip event emission.
func (t Topology) Update(sd Server) Topology {
	if _, ok := t.Servers[sd.Address]; !ok {
		return t
	}

	next := t.clone()
	switch t.Kind {
	case Single:
		// A Single topology never changes kind or membership; it exists
		// to track exactly one directly-connected server.
		next.Servers[sd.Address] = sd
	case TopologyUnknown:
		next.updateFromUnknown(sd)
	case Sharded:
		next.updateFromSharded(sd)
	case ReplicaSetNoPrimary:
		next.updateFromRSNoPrimary(sd)
	case ReplicaSetWithPrimary:
		next.updateFromRSWithPrimary(sd)
	}

	next.SessionTimeoutMinutes = minSessionTimeout(next.Servers)
	return next
}

func (t *Topology) updateFromUnknown(sd Server) {
	switch sd.Kind {
	case Unknown, RSGhost:
		t.Servers[sd.Address] = sd
	case Standalone:
		if len(t.Servers) == 1 {
			t.Servers[sd.Address] = sd
			t.Kind = Single
			return
		}
		// A standalone showing up among other seeds is not part of this
		// deployment; drop it.
		delete(t.Servers, sd.Address)
	case Mongos:
		t.Servers[sd.Address] = sd
		t.Kind = Sharded
	case RSPrimary:
		t.Servers[sd.Address] = sd
		t.SetName = sd.SetName
		t.recordElection(sd)
		t.invalidateOtherPrimaries(sd.Address)
		t.addMembers(sd)
		t.pruneToPrimaryMembers(sd)
		t.Kind = ReplicaSetWithPrimary
	case RSSecondary, RSArbiter, RSOther:
		t.Servers[sd.Address] = sd
		if t.SetName == "" {
			t.SetName = sd.SetName
		}
		t.addMembers(sd)
		t.Kind = ReplicaSetNoPrimary
	default:
		t.Servers[sd.Address] = sd
	}
}

func (t *Topology) updateFromSharded(sd Server) {
	switch sd.Kind {
	case Unknown, Mongos:
		t.Servers[sd.Address] = sd
	default:
		// Every other kind is incompatible with a Sharded deployment.
		delete(t.Servers, sd.Address)
	}
}

func (t *Topology) updateFromRSNoPrimary(sd Server) {
	switch sd.Kind {
	case Unknown, RSGhost:
		t.Servers[sd.Address] = sd
	case Standalone, Mongos:
		delete(t.Servers, sd.Address)
	case RSPrimary:
		t.Servers[sd.Address] = sd
		t.SetName = sd.SetName
		t.recordElection(sd)
		t.invalidateOtherPrimaries(sd.Address)
		t.addMembers(sd)
		t.pruneToPrimaryMembers(sd)
		t.Kind = ReplicaSetWithPrimary
	case RSSecondary, RSArbiter, RSOther:
		if t.SetName != "" && t.SetName != sd.SetName {
			delete(t.Servers, sd.Address)
			return
		}
		t.SetName = sd.SetName
		t.Servers[sd.Address] = sd
		t.addMembers(sd)
	default:
		t.Servers[sd.Address] = sd
	}
}

func (t *Topology) updateFromRSWithPrimary(sd Server) {
	switch sd.Kind {
	case Unknown:
		t.Servers[sd.Address] = sd
	case Standalone, Mongos:
		delete(t.Servers, sd.Address)
	case RSPrimary:
		if t.demotedByElection(sd) {
			t.Servers[sd.Address] = NewServerFromError(sd.Address, nil, sd.TopologyVersion)
			break
		}
		t.Servers[sd.Address] = sd
		t.SetName = sd.SetName
		t.recordElection(sd)
		t.invalidateOtherPrimaries(sd.Address)
		t.addMembers(sd)
		t.pruneToPrimaryMembers(sd)
	case RSSecondary, RSArbiter, RSOther, RSGhost:
		if t.SetName != "" && sd.SetName != "" && sd.SetName != t.SetName {
			delete(t.Servers, sd.Address)
			break
		}
		t.Servers[sd.Address] = sd
		t.addMembers(sd)
	default:
		t.Servers[sd.Address] = sd
	}
	t.demoteIfNoPrimary()
}

// demotedByElection reports whether sd is a primary reporting a
// (setVersion, electionID) tuple strictly older than the highest one this
// topology has already observed, per the tie-break rule in spec §4.1.
func (t *Topology) demotedByElection(sd Server) bool {
	if sd.SetVersion == nil || t.MaxSetVersion == nil {
		return false
	}
	switch {
	case *sd.SetVersion > *t.MaxSetVersion:
		return false
	case *sd.SetVersion < *t.MaxSetVersion:
		return true
	default:
		return compareObjectID(sd.ElectionID, t.MaxElectionID) < 0
	}
}

func (t *Topology) recordElection(sd Server) {
	if sd.SetVersion != nil && (t.MaxSetVersion == nil || *sd.SetVersion > *t.MaxSetVersion ||
		(*sd.SetVersion == *t.MaxSetVersion && compareObjectID(sd.ElectionID, t.MaxElectionID) > 0)) {
		v := *sd.SetVersion
		t.MaxSetVersion = &v
		t.MaxElectionID = sd.ElectionID
	}
}

// invalidateOtherPrimaries demotes every tracked RSPrimary other than winner
// to Unknown, since a replica set has at most one primary at a time.
func (t *Topology) invalidateOtherPrimaries(winner address.Address) {
	for addr, s := range t.Servers {
		if addr != winner && s.Kind == RSPrimary {
			t.Servers[addr] = NewDefaultServer(addr)
		}
	}
}

// addMembers adds an Unknown default description for every member sd
// reports that is not already tracked.
func (t *Topology) addMembers(sd Server) {
	for _, addr := range allMembers(sd) {
		if _, ok := t.Servers[addr]; !ok {
			t.Servers[addr] = NewDefaultServer(addr)
		}
	}
}

// pruneToPrimaryMembers removes tracked servers the primary no longer lists
// as a member; the primary is authoritative for replica-set membership.
func (t *Topology) pruneToPrimaryMembers(sd Server) {
	members := make(map[address.Address]struct{})
	for _, addr := range allMembers(sd) {
		members[addr] = struct{}{}
	}
	members[sd.Address] = struct{}{}
	for addr := range t.Servers {
		if _, ok := members[addr]; !ok {
			delete(t.Servers, addr)
		}
	}
}

func (t *Topology) demoteIfNoPrimary() {
	for _, s := range t.Servers {
		if s.Kind == RSPrimary {
			t.Kind = ReplicaSetWithPrimary
			return
		}
	}
	t.Kind = ReplicaSetNoPrimary
}

func allMembers(sd Server) []address.Address {
	out := make([]address.Address, 0, len(sd.Hosts)+len(sd.Arbiters)+len(sd.Passives))
	out = append(out, sd.Hosts...)
	out = append(out, sd.Arbiters...)
	out = append(out, sd.Passives...)
	return out
}

// minSessionTimeout is the minimum LogicalSessionTimeoutMinutes across all
// data-bearing servers, or nil if any data-bearing server lacks the field.
func minSessionTimeout(servers map[address.Address]Server) *int64 {
	var min *int64
	for _, s := range servers {
		if !s.DataBearing() {
			continue
		}
		if s.LogicalSessionTimeoutMinutes == nil {
			return nil
		}
		if min == nil || *s.LogicalSessionTimeoutMinutes < *min {
			v := *s.LogicalSessionTimeoutMinutes
			min = &v
		}
	}
	return min
}

// HasSessionSupport reports whether the topology has a non-absent session
// timeout, spec §4.2's hasSessionSupport.
func (t Topology) HasSessionSupport() bool {
	return t.SessionTimeoutMinutes != nil
}

// SupportsRetryableWrites reports whether at least one tracked server is
// data-bearing, reports a logical session timeout, and speaks a wire
// version new enough for retryable writes (wire version 6, server 3.6+).
// It is always false for a Single topology.
func (t Topology) SupportsRetryableWrites() bool {
	if t.Kind == Single {
		return false
	}
	for _, s := range t.Servers {
		if s.DataBearing() && s.LogicalSessionTimeoutMinutes != nil && s.MaxWireVersion >= 6 {
			return true
		}
	}
	return false
}
