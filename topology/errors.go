// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package topology

import (
	"errors"
	"fmt"
	"time"

	"github.com/mongodb/sdam-core/description"
)

// ErrSubscribeAfterClosed is returned when a caller attempts to subscribe to
// a closed Topology or Server Handle.
var ErrSubscribeAfterClosed = errors.New("cannot subscribe after close")

// ErrTopologyClosed is returned when a caller attempts to use a closed
// Topology.
var ErrTopologyClosed = errors.New("topology is closed")

// ErrTopologyConnected is returned when Connect is called on an
// already-connected Topology.
var ErrTopologyConnected = errors.New("topology is connected or connecting")

// ErrServerSelectionTimeout is the sentinel wrapped by ServerSelectionError
// when the deadline in spec §4.4 elapses.
var ErrServerSelectionTimeout = errors.New("server selection timeout")

// timeoutCause distinguishes the three ways a selection timeout can occur,
// spec §7's Timeout sub-kinds.
type timeoutCause string

const (
	causeGeneric    timeoutCause = "generic"
	causePreConnect timeoutCause = "pre-connect"
	causeMonitoring timeoutCause = "monitoring"
)

// ServerSelectionError reports that no suitable server was found before the
// selection deadline elapsed. An error raised by the selector itself is
// returned as is, not wrapped in this type. It carries the topology description at the moment of failure for
// diagnostics.
type ServerSelectionError struct {
	Wrapped error
	Desc    description.Topology
	cause   timeoutCause
	elapsed time.Duration
}

// Error implements error. Messages mention "Server selection timed out" per
// spec §8 scenario 2's assertion.
func (e ServerSelectionError) Error() string {
	switch e.cause {
	case causePreConnect:
		return "Server selection timed out waiting to connect"
	case causeMonitoring:
		return "Server selection timed out due to monitoring"
	case causeGeneric:
		return fmt.Sprintf("Server selection timed out after %s", e.elapsed)
	default:
		return fmt.Sprintf("server selection error: %s", e.Wrapped)
	}
}

// Unwrap exposes the wrapped cause to errors.Is/errors.As.
func (e ServerSelectionError) Unwrap() error { return e.Wrapped }

func newTimeoutError(cause timeoutCause, elapsed time.Duration, desc description.Topology) error {
	return ServerSelectionError{Wrapped: ErrServerSelectionTimeout, Desc: desc, cause: cause, elapsed: elapsed}
}
