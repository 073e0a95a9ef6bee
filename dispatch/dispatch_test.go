package dispatch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/mongodb/sdam-core/address"
	"github.com/mongodb/sdam-core/description"
	"github.com/mongodb/sdam-core/session"
	"github.com/mongodb/sdam-core/topology"
)

var errTransient = errors.New("not primary")

// newRetryableTopology builds a connected, single-seed topology whose
// SupportsRetryableWrites is true (wire version 6+, a session timeout, and
// data-bearing), wired to the caller's fake Executor.
func newRetryableTopology(t *testing.T, executor topology.Executor) *topology.Topology {
	t.Helper()
	// SupportsRetryableWrites is never true for a Single topology (spec
	// §4.5 implies a real deployment, not a standalone); force a
	// replica-set shape so the capability check passes.
	sessionTimeout := int64(30)
	topo, err := topology.New(
		topology.WithSeedList("h:27017"),
		topology.WithReplicaSetName("rs"),
		topology.WithServerSelectionTimeout(2*time.Second),
		// A reset on a failed command forces a re-heartbeat before a retry
		// can select a server again; keep the rescan fast so the retry
		// converges well within the test's context deadline.
		topology.WithMinHeartbeatInterval(10*time.Millisecond),
		topology.WithHeartbeater(func(ctx context.Context, addr address.Address, prev interface{}) (*description.IsMasterResult, time.Duration, interface{}, error) {
			return &description.IsMasterResult{
				OK:                           true,
				IsMaster:                     true,
				SetName:                      "rs",
				MaxWireVersion:               6,
				LogicalSessionTimeoutMinutes: &sessionTimeout,
			}, time.Millisecond, nil, nil
		}),
		topology.WithExecutor(executor),
	)
	if err != nil {
		t.Fatalf("topology.New() error = %v", err)
	}
	t.Cleanup(func() { _ = topo.Close(context.Background()) })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := topo.SelectServer(ctx, description.WriteSelector()); err != nil {
		t.Fatalf("warm-up SelectServer() error = %v", err)
	}
	return topo
}

// Scenario 3 of spec §8: a retryable write retries exactly once on a
// transient error, without re-incrementing the transaction number.
func TestInsertRetriesOnceOnTransientError(t *testing.T) {
	var attempts int32
	executor := func(ctx context.Context, addr address.Address, dbName string, cmd interface{}) (interface{}, error) {
		n := atomic.AddInt32(&attempts, 1)
		if n == 1 {
			return nil, errTransient
		}
		return bson.Raw{}, nil
	}
	topo := newRetryableTopology(t, executor)
	sess := session.NewClientSession(session.NewPool())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	insert := Insert(ctx, topo, Namespace{DB: "db", Collection: "c"}, []bson.D{{{Key: "x", Value: 1}}})
	_, err := insert(Options{Session: sess, RetryWrites: true})
	if err != nil {
		t.Fatalf("insert() error = %v, want success after one retry", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 2 {
		t.Fatalf("executor called %d times, want 2 (one failure, one retry)", got)
	}
	if got := sess.TxnNumber(); got != 1 {
		t.Fatalf("TxnNumber() = %d, want 1 (not re-incremented on retry)", got)
	}
}

// Scenario 4 of spec §8: a non-retryable error is delivered without a
// second dispatch attempt.
func TestInsertNonRetryableErrorNoRetry(t *testing.T) {
	var attempts int32
	permanent := errors.New("document failed validation")
	executor := func(ctx context.Context, addr address.Address, dbName string, cmd interface{}) (interface{}, error) {
		atomic.AddInt32(&attempts, 1)
		return nil, permanent
	}
	topo := newRetryableTopology(t, executor)
	sess := session.NewClientSession(session.NewPool())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	insert := Insert(ctx, topo, Namespace{DB: "db", Collection: "c"}, []bson.D{{{Key: "x", Value: 1}}})
	_, err := insert(Options{
		Session:     sess,
		RetryWrites: true,
		Classifier:  func(error) bool { return false },
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("insert() error = %v, want %v", err, permanent)
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Fatalf("executor called %d times, want 1 (no retry)", got)
	}
}

// Without RetryWrites set, the write is dispatched once and any error is
// surfaced verbatim even though the topology supports retryable writes.
func TestInsertWithoutRetryWritesOptionDoesNotRetry(t *testing.T) {
	var attempts int32
	executor := func(ctx context.Context, addr address.Address, dbName string, cmd interface{}) (interface{}, error) {
		atomic.AddInt32(&attempts, 1)
		return nil, errTransient
	}
	topo := newRetryableTopology(t, executor)
	sess := session.NewClientSession(session.NewPool())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	insert := Insert(ctx, topo, Namespace{DB: "db", Collection: "c"}, []bson.D{{{Key: "x", Value: 1}}})
	_, err := insert(Options{Session: sess})
	if !errors.Is(err, errTransient) {
		t.Fatalf("insert() error = %v, want %v", err, errTransient)
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Fatalf("executor called %d times, want 1", got)
	}
	if got := sess.TxnNumber(); got != 0 {
		t.Fatalf("TxnNumber() = %d, want 0 (write was never recognized as retryable)", got)
	}
}
