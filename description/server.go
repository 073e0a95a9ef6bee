// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package description holds the immutable snapshot types SDAM produces and
// consumes: ServerDescription, TopologyDescription, and the pure update
// function that advances one into the next.
package description

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/mongodb/sdam-core/address"
)

// ServerKind is the tagged variant of a single server's role.
type ServerKind string

// The server kinds recognized by SDAM.
const (
	Unknown     ServerKind = "Unknown"
	Standalone  ServerKind = "Standalone"
	Mongos      ServerKind = "Mongos"
	RSPrimary   ServerKind = "RSPrimary"
	RSSecondary ServerKind = "RSSecondary"
	RSArbiter   ServerKind = "RSArbiter"
	RSOther     ServerKind = "RSOther"
	RSGhost     ServerKind = "RSGhost"
)

// TopologyVersion supports the staleness guard described in SPEC_FULL.md:
// an incoming ServerDescription whose TopologyVersion is older than the one
// already on file for that address is dropped as a reordered heartbeat.
type TopologyVersion struct {
	ProcessID primitive.ObjectID `bson:"processId"`
	Counter   int64              `bson:"counter"`
}

// CompareToIncoming returns >0 if tv is newer than other, 0 if equal, <0 if
// other is newer. A nil receiver or argument is treated as the oldest
// possible version.
func (tv *TopologyVersion) CompareToIncoming(other *TopologyVersion) int {
	switch {
	case tv == nil && other == nil:
		return 0
	case tv == nil:
		return -1
	case other == nil:
		return 1
	case tv.ProcessID != other.ProcessID:
		// A changed process ID (the server restarted) always wins for the
		// incoming side; we can't compare counters across processes.
		return -1
	case tv.Counter == other.Counter:
		return 0
	case tv.Counter > other.Counter:
		return 1
	default:
		return -1
	}
}

// IsMasterResult is the subset of an isMaster/hello reply SDAM inspects,
// grounded on the teacher's core/results.go isMasterResult.
type IsMasterResult struct {
	Arbiters                     []string         `bson:"arbiters"`
	ArbiterOnly                  bool             `bson:"arbiterOnly"`
	ElectionID                   primitive.ObjectID `bson:"electionId"`
	Hidden                       bool             `bson:"hidden"`
	Hosts                        []string         `bson:"hosts"`
	IsMaster                     bool             `bson:"ismaster"`
	IsReplicaSet                 bool             `bson:"isreplicaset"`
	LogicalSessionTimeoutMinutes *int64           `bson:"logicalSessionTimeoutMinutes"`
	MaxWireVersion               int32            `bson:"maxWireVersion"`
	MinWireVersion               int32            `bson:"minWireVersion"`
	Me                           string           `bson:"me"`
	Msg                          string           `bson:"msg"`
	OK                           bool             `bson:"ok"`
	Passives                     []string         `bson:"passives"`
	Secondary                    bool             `bson:"secondary"`
	SetName                      string           `bson:"setName"`
	SetVersion                   *int64           `bson:"setVersion"`
	Tags                         bson.M           `bson:"tags"`
	TopologyVersion              *TopologyVersion `bson:"topologyVersion"`
}

// Kind derives the ServerKind from the reply, mirroring the teacher's
// isMasterResult.ServerType derivation table.
func (r *IsMasterResult) Kind() ServerKind {
	if !r.OK {
		return Unknown
	}
	if r.IsReplicaSet {
		return RSGhost
	}
	if r.SetName != "" {
		switch {
		case r.IsMaster:
			return RSPrimary
		case r.Hidden:
			return RSOther
		case r.Secondary:
			return RSSecondary
		case r.ArbiterOnly:
			return RSArbiter
		default:
			return RSOther
		}
	}
	if r.Msg == "isdbgrid" {
		return Mongos
	}
	return Standalone
}

// ParseIsMaster unmarshals a raw isMaster/hello reply into an IsMasterResult,
// restoring the teacher's core/results.go parsing step ahead of ServerType
// derivation (SPEC_FULL.md's supplemented "lastIsMaster parsing helper").
func ParseIsMaster(raw bson.Raw) (*IsMasterResult, error) {
	var r IsMasterResult
	if err := bson.Unmarshal(raw, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Members returns the canonicalized union of hosts, arbiters, and passives.
func (r *IsMasterResult) Members() []address.Address {
	members := make([]address.Address, 0, len(r.Hosts)+len(r.Arbiters)+len(r.Passives))
	for _, h := range r.Hosts {
		members = append(members, address.Address(h).Canonicalize())
	}
	for _, a := range r.Arbiters {
		members = append(members, address.Address(a).Canonicalize())
	}
	for _, p := range r.Passives {
		members = append(members, address.Address(p).Canonicalize())
	}
	return members
}

// Server is the immutable last-known state of a single server.
type Server struct {
	Address address.Address
	Kind    ServerKind

	AverageRTT    time.Duration
	AverageRTTSet bool

	LastUpdateTime time.Time
	LastError      error

	SetName         string
	SetVersion      *int64
	ElectionID      primitive.ObjectID
	TopologyVersion *TopologyVersion

	Hosts    []address.Address
	Arbiters []address.Address
	Passives []address.Address
	Tags     bson.M

	LogicalSessionTimeoutMinutes *int64

	MaxWireVersion int32
	MinWireVersion int32
}

// NewDefaultServer returns the Unknown description seeded for an address that
// has not yet reported a heartbeat.
func NewDefaultServer(addr address.Address) Server {
	return Server{Address: addr, Kind: Unknown, LastUpdateTime: time.Now()}
}

// NewServerFromIsMaster builds a Server description from a parsed isMaster
// reply and the observed round-trip time.
func NewServerFromIsMaster(addr address.Address, r *IsMasterResult, rtt time.Duration) Server {
	s := Server{
		Address:                      addr,
		Kind:                         r.Kind(),
		AverageRTT:                   rtt,
		AverageRTTSet:                true,
		LastUpdateTime:               time.Now(),
		SetName:                      r.SetName,
		SetVersion:                   r.SetVersion,
		ElectionID:                   r.ElectionID,
		TopologyVersion:              r.TopologyVersion,
		Hosts:                        canonicalize(r.Hosts),
		Arbiters:                     canonicalize(r.Arbiters),
		Passives:                     canonicalize(r.Passives),
		Tags:                         r.Tags,
		LogicalSessionTimeoutMinutes: r.LogicalSessionTimeoutMinutes,
		MaxWireVersion:               r.MaxWireVersion,
		MinWireVersion:               r.MinWireVersion,
	}
	return s
}

// NewServerFromError builds the Unknown-with-error description used to reset
// a server after a monitoring or command failure (spec §4.6).
func NewServerFromError(addr address.Address, err error, tv *TopologyVersion) Server {
	return Server{
		Address:         addr,
		Kind:            Unknown,
		LastUpdateTime:  time.Now(),
		LastError:       err,
		TopologyVersion: tv,
	}
}

func canonicalize(hosts []string) []address.Address {
	if len(hosts) == 0 {
		return nil
	}
	out := make([]address.Address, len(hosts))
	for i, h := range hosts {
		out[i] = address.Address(h).Canonicalize()
	}
	return out
}

// DataBearing reports whether the server is a member that can hold user data
// and therefore counts toward the topology's session-timeout minimum.
func (s Server) DataBearing() bool {
	switch s.Kind {
	case Standalone, Mongos, RSPrimary, RSSecondary:
		return true
	default:
		return false
	}
}

// Equal reports whether two descriptions are content-equal, i.e.
// interchangeable per spec §3 invariant on ServerDescription.
func (s Server) Equal(other Server) bool {
	if s.Address != other.Address || s.Kind != other.Kind || s.SetName != other.SetName {
		return false
	}
	if !equalInt64Ptr(s.SetVersion, other.SetVersion) {
		return false
	}
	if s.ElectionID != other.ElectionID {
		return false
	}
	if !equalAddrs(s.Hosts, other.Hosts) || !equalAddrs(s.Arbiters, other.Arbiters) || !equalAddrs(s.Passives, other.Passives) {
		return false
	}
	if !equalInt64Ptr(s.LogicalSessionTimeoutMinutes, other.LogicalSessionTimeoutMinutes) {
		return false
	}
	if (s.LastError == nil) != (other.LastError == nil) {
		return false
	}
	if s.LastError != nil && s.LastError.Error() != other.LastError.Error() {
		return false
	}
	return true
}

func equalInt64Ptr(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalAddrs(a, b []address.Address) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
