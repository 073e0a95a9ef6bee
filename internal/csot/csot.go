// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package csot holds deadline helpers for the server-selection loop described
// in spec §4.4. The loop measures its budget with Elapsed against the start
// timestamp it threads through each iteration; WithServerSelectionTimeout
// derives a context bounded by serverSelectionTimeout and is not used by the
// loop.
package csot

import (
	"context"
	"time"
)

// WithServerSelectionTimeout returns a context whose deadline is the
// minimum of parent's existing deadline (if any) and serverSelectionTimeout
// from now. A non-positive serverSelectionTimeout with no parent deadline
// returns parent unchanged with a no-op cancel func.
func WithServerSelectionTimeout(
	parent context.Context,
	serverSelectionTimeout time.Duration,
) (context.Context, context.CancelFunc) {
	deadline, hasDeadline := parent.Deadline()

	switch {
	case !hasDeadline && serverSelectionTimeout <= 0:
		return parent, func() {}
	case !hasDeadline:
		return context.WithTimeout(parent, serverSelectionTimeout)
	case serverSelectionTimeout > 0 && time.Until(deadline) >= serverSelectionTimeout:
		return context.WithTimeout(parent, serverSelectionTimeout)
	default:
		return context.WithCancel(parent)
	}
}

// Elapsed returns the time elapsed since start, clamped to zero. Selection
// re-entry after a topologyDescriptionChanged notification measures against
// the original start timestamp (spec §4.4), never a per-iteration one.
func Elapsed(start time.Time) time.Duration {
	d := time.Since(start)
	if d < 0 {
		return 0
	}
	return d
}
