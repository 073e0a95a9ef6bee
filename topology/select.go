// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package topology

import (
	"context"
	"time"

	"github.com/mongodb/sdam-core/description"
	"github.com/mongodb/sdam-core/internal/csot"
)

// SelectServer implements the deadline-bounded retry loop of spec §4.4. It
// races serverSelectionTimeoutMS (measured from this call, not from any
// inner re-entry) against topologyDescriptionChanged notifications driven
// by monitoring, and against a forced reconnect when the topology is not
// yet connected.
//
// A caller-supplied ctx can fail selection early regardless of the
// configured deadline; this is additive to spec §4.4, not a replacement for
// it, since the spec's own budget is still enforced independently.
func (t *Topology) SelectServer(ctx context.Context, selector description.ServerSelector) (*Server, error) {
	return t.selectServerFrom(ctx, selector, time.Now())
}

func (t *Topology) selectServerFrom(ctx context.Context, selector description.ServerSelector, start time.Time) (*Server, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		elapsed := csot.Elapsed(start)
		deadline := t.cfg.ServerSelectionTimeout
		if elapsed >= deadline {
			return nil, newTimeoutError(causeGeneric, elapsed, t.Description())
		}

		if !t.Connected() {
			return t.selectAfterConnect(ctx, selector, deadline-elapsed)
		}

		suitable, desc, err := t.selectOnce(selector)
		if err != nil {
			return nil, err
		}

		if len(suitable) > 0 {
			if s := t.pickHandle(suitable); s != nil {
				return s, nil
			}
			// Every candidate's handle vanished between selection and
			// lookup (reconciliation raced us); retry immediately against
			// the latest description rather than waiting a full monitoring
			// cycle.
			continue
		}

		if err := t.waitForTopologyChange(ctx, desc); err != nil {
			return nil, err
		}
		// Loop re-enters preserving the original start timestamp: spec
		// §4.4's "deadline is measured against the original start
		// timestamp across iterations induced by description-change
		// notifications".
	}
}

// selectAfterConnect implements spec §4.4 step 2: trigger a connect, race a
// one-shot first-connect notification against a fallback timer armed at the
// remaining budget. Exactly one of the two determines the outcome; after a
// successful connect, the budget resets per the spec's deliberate
// exception.
func (t *Topology) selectAfterConnect(ctx context.Context, selector description.ServerSelector, budget time.Duration) (*Server, error) {
	if err := t.Connect(); err != nil && err != ErrTopologyConnected {
		return nil, err
	}

	connected := make(chan error, 1)
	go func() { connected <- t.AwaitConnect(ctx) }()

	timer := time.NewTimer(budget)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, newTimeoutError(causePreConnect, budget, t.Description())
	case err := <-connected:
		if err != nil {
			return nil, err
		}
		return t.selectServerFrom(ctx, selector, time.Now())
	}
}

// waitForTopologyChange implements spec §4.4 step 4: request an immediate
// heartbeat on every server, then wait for either a topology description
// change or a minHeartbeatIntervalMS timeout, whichever fires first. The
// timer is always stopped before returning so a losing timer never fires
// its callback after the race is decided.
func (t *Topology) waitForTopologyChange(ctx context.Context, prev description.Topology) error {
	t.RequestImmediateCheck()

	sub, err := t.Subscribe()
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	// Subscribe pre-populates the channel with the current description;
	// drain it so the wait only wakes on a notification that arrives after
	// RequestImmediateCheck, not the snapshot already accounted for in prev.
	// If that snapshot already differs from prev, a change landed before the
	// subscription and selection re-enters at once.
	select {
	case current := <-sub.C:
		if !current.Equal(prev) {
			return nil
		}
	default:
	}

	timer := time.NewTimer(t.cfg.MinHeartbeatInterval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return newTimeoutError(causeMonitoring, t.cfg.MinHeartbeatInterval, t.Description())
	case _, ok := <-sub.C:
		if !ok {
			return ErrTopologyClosed
		}
		return nil
	}
}
