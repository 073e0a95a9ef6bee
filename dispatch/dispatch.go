// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package dispatch implements spec §4.5: server selection followed by
// command/write forwarding, with the retryable-write rule threaded through
// transaction-numbered sessions. It is the boundary between the Topology
// Actor (selection, description tracking) and the out-of-scope
// wire-protocol transport (spec §1), which it reaches only through
// Topology.Execute.
package dispatch

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/mongodb/sdam-core/description"
	"github.com/mongodb/sdam-core/session"
	"github.com/mongodb/sdam-core/topology"
)

// Namespace identifies a database and collection pair, spec §4.5's "ns".
type Namespace struct {
	DB         string
	Collection string
}

// retryableWriteCommands is the top-level command name set eligible for the
// single-retry policy, spec §4.5.
var retryableWriteCommands = map[string]bool{
	"findAndModify": true,
	"insert":        true,
	"update":        true,
	"delete":        true,
}

// Classifier reports whether err is a transient failure eligible for a
// retry: spec §4.5's "externally supplied classifier". Inspecting actual
// not-primary/network error codes requires the wire-protocol transport,
// out of scope per spec §1; a real deployment supplies its own Classifier
// through Options.
type Classifier func(error) bool

// DefaultClassifier treats every error except context cancellation/deadline
// as a retry candidate. It exists so the dispatch path is exercisable
// without a transport-specific classifier wired in; production callers
// should supply one that inspects actual server/network error codes.
func DefaultClassifier(err error) bool {
	return err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled)
}

// Options configures a single Command/Insert/Update/Remove call.
type Options struct {
	// ReadPref selects the selector for Command; ignored by the write
	// dispatch paths, which always use a writable selector (spec §4.5).
	ReadPref description.ReadPref

	// Session, when non-nil, makes the call retryable-write-eligible
	// (together with RetryWrites).
	Session *session.ClientSession

	// RetryWrites is the caller's retryWrites option.
	RetryWrites bool

	// Classifier overrides DefaultClassifier.
	Classifier Classifier

	retrying bool
}

func (o Options) classifier() Classifier {
	if o.Classifier != nil {
		return o.Classifier
	}
	return DefaultClassifier
}

// Command implements spec §4.5's command dispatch: resolves a read
// preference (default primary), selects a server, and forwards cmd. A
// retryable write is recognized per the six conditions in spec §4.5; when
// recognized, the session's transaction number is incremented once before
// the first attempt and carried unchanged into the single retry.
func Command(ctx context.Context, t *topology.Topology, ns Namespace, cmd bson.D, opts Options) (bson.Raw, error) {
	mode := opts.ReadPref.Mode
	if mode == "" {
		mode = description.PrimaryMode
	}
	selector := description.ReadPref{Mode: mode}.Selector()
	return dispatch(ctx, t, ns, cmd, selector, opts)
}

// Insert forwards an insert command with the given documents, selecting a
// writable server (spec §4.5's write dispatch; retryability mirrors
// Command without the read-preference branch).
func Insert(ctx context.Context, t *topology.Topology, ns Namespace, docs []bson.D) func(Options) (bson.Raw, error) {
	cmd := writeCommand("insert", ns, bson.D{{Key: "documents", Value: docs}})
	return func(opts Options) (bson.Raw, error) {
		return dispatch(ctx, t, ns, cmd, description.WriteSelector(), opts)
	}
}

// Update forwards an update command with the given update specs.
func Update(ctx context.Context, t *topology.Topology, ns Namespace, updates []bson.D) func(Options) (bson.Raw, error) {
	cmd := writeCommand("update", ns, bson.D{{Key: "updates", Value: updates}})
	return func(opts Options) (bson.Raw, error) {
		return dispatch(ctx, t, ns, cmd, description.WriteSelector(), opts)
	}
}

// Remove forwards a delete command with the given delete specs.
func Remove(ctx context.Context, t *topology.Topology, ns Namespace, deletes []bson.D) func(Options) (bson.Raw, error) {
	cmd := writeCommand("delete", ns, bson.D{{Key: "deletes", Value: deletes}})
	return func(opts Options) (bson.Raw, error) {
		return dispatch(ctx, t, ns, cmd, description.WriteSelector(), opts)
	}
}

func writeCommand(name string, ns Namespace, rest bson.D) bson.D {
	cmd := bson.D{{Key: name, Value: ns.Collection}}
	return append(cmd, rest...)
}

// dispatch is the shared selection-and-retry engine behind Command and the
// write helpers.
func dispatch(ctx context.Context, t *topology.Topology, ns Namespace, cmd bson.D, selector description.ServerSelector, opts Options) (bson.Raw, error) {
	retryable := isRetryableWrite(t, cmd, opts)
	if retryable && !opts.retrying {
		opts.Session.IncrementTxnNumber()
	}
	if retryable {
		cmd = withTxnNumber(cmd, opts.Session.TxnNumber())
	}

	srv, err := t.SelectServer(ctx, selector)
	if err != nil {
		return nil, err
	}

	reply, err := t.Execute(ctx, srv.Address(), ns.DB, cmd)
	if err != nil {
		if retryable && !opts.retrying && opts.classifier()(err) {
			retryOpts := opts
			retryOpts.retrying = true
			// The transaction number is not re-incremented on retry: it
			// was already folded into cmd above and is preserved as-is,
			// spec §4.5.
			return dispatch(ctx, t, ns, cmd, selector, retryOpts)
		}
		return nil, err
	}
	raw, _ := reply.(bson.Raw)
	return raw, nil
}

// isRetryableWrite implements the six-condition test of spec §4.5.
func isRetryableWrite(t *topology.Topology, cmd bson.D, opts Options) bool {
	if opts.retrying || !opts.RetryWrites || opts.Session == nil {
		return false
	}
	if opts.Session.InTransaction() {
		return false
	}
	if !t.SupportsRetryableWrites() {
		return false
	}
	if len(cmd) == 0 {
		return false
	}
	return retryableWriteCommands[cmd[0].Key]
}

// withTxnNumber sets (or replaces) the txnNumber field so the wire-protocol
// layer includes it, spec §4.5's "willRetryWrite... includes txnNumber".
func withTxnNumber(cmd bson.D, txnNumber int64) bson.D {
	out := make(bson.D, 0, len(cmd)+1)
	for _, e := range cmd {
		if e.Key == "txnNumber" {
			continue
		}
		out = append(out, e)
	}
	out = append(out, bson.E{Key: "txnNumber", Value: txnNumber})
	return out
}
