// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package description

// ServerSelector is a pure predicate over a topology snapshot and its
// non-Unknown servers, per spec §4.4. It may return an error, which
// terminates selection with that error.
type ServerSelector interface {
	SelectServer(Topology, []Server) ([]Server, error)
}

// ServerSelectorFunc adapts a function to a ServerSelector.
type ServerSelectorFunc func(Topology, []Server) ([]Server, error)

// SelectServer implements ServerSelector.
func (f ServerSelectorFunc) SelectServer(t Topology, candidates []Server) ([]Server, error) {
	return f(t, candidates)
}

// ReadPrefMode is a basic read-preference mode. The full read-preference
// matching algorithm (tag sets, maxStalenessSeconds, hedged reads) is
// delegated to caller-supplied selectors per spec §1; this is the minimal
// mode set needed to pick a default selector for dispatch.Command.
type ReadPrefMode string

// The read-preference modes recognized by the default selector.
const (
	PrimaryMode            ReadPrefMode = "primary"
	PrimaryPreferredMode   ReadPrefMode = "primaryPreferred"
	SecondaryMode          ReadPrefMode = "secondary"
	SecondaryPreferredMode ReadPrefMode = "secondaryPreferred"
	NearestMode            ReadPrefMode = "nearest"
)

// ReadPref is the convenience record spec §4.4 says may be passed instead of
// a selector function; it is adapted via Selector().
type ReadPref struct {
	Mode ReadPrefMode
}

// Selector returns the ServerSelector this read preference adapts to.
func (rp ReadPref) Selector() ServerSelectorFunc {
	return func(topo Topology, candidates []Server) ([]Server, error) {
		switch topo.Kind {
		case Single, Sharded:
			// Any candidate is selectable outside a replica set; the mode
			// has no meaning there.
			return candidates, nil
		}
		switch rp.Mode {
		case PrimaryMode:
			return filterKind(candidates, RSPrimary), nil
		case SecondaryMode:
			return filterKind(candidates, RSSecondary), nil
		case PrimaryPreferredMode:
			if primaries := filterKind(candidates, RSPrimary); len(primaries) > 0 {
				return primaries, nil
			}
			return filterKind(candidates, RSSecondary), nil
		case SecondaryPreferredMode:
			if secondaries := filterKind(candidates, RSSecondary); len(secondaries) > 0 {
				return secondaries, nil
			}
			return filterKind(candidates, RSPrimary), nil
		case NearestMode:
			out := filterKind(candidates, RSPrimary)
			return append(out, filterKind(candidates, RSSecondary)...), nil
		default:
			return filterKind(candidates, RSPrimary), nil
		}
	}
}

func filterKind(candidates []Server, kind ServerKind) []Server {
	var out []Server
	for _, s := range candidates {
		if s.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}

// WriteSelector returns candidates that can accept writes: the only server
// in a Single topology, a mongos in Sharded, or the primary in a replica
// set.
func WriteSelector() ServerSelectorFunc {
	return func(topo Topology, candidates []Server) ([]Server, error) {
		switch topo.Kind {
		case Single:
			return candidates, nil
		case Sharded:
			return filterKind(candidates, Mongos), nil
		default:
			return filterKind(candidates, RSPrimary), nil
		}
	}
}

// Selectable is the subset of selectable candidates from a topology
// snapshot: every tracked server whose Kind is not Unknown, per spec §4.4
// step 3 ("Snapshot server descriptions... Apply the selector").
func (t Topology) Selectable() []Server {
	var out []Server
	for _, s := range t.Servers {
		if s.Kind != Unknown {
			out = append(out, s)
		}
	}
	return out
}
