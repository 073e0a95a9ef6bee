package topology

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mongodb/sdam-core/address"
	"github.com/mongodb/sdam-core/description"
)

// standaloneHeartbeater reports every address as a Standalone on the first
// call, letting a single-seed Topology reach the Single/connected state.
func standaloneHeartbeater() Heartbeater {
	return func(ctx context.Context, addr address.Address, prev interface{}) (*description.IsMasterResult, time.Duration, interface{}, error) {
		return &description.IsMasterResult{OK: true}, time.Millisecond, nil, nil
	}
}

// neverConnectsHeartbeater always fails, so no server ever leaves Unknown.
func neverConnectsHeartbeater() Heartbeater {
	return func(ctx context.Context, addr address.Address, prev interface{}) (*description.IsMasterResult, time.Duration, interface{}, error) {
		return nil, 0, nil, errors.New("connection refused")
	}
}

func newTestTopology(t *testing.T, hb Heartbeater, selTimeout time.Duration) *Topology {
	t.Helper()
	topo, err := New(
		WithSeedList("h:27017"),
		WithHeartbeater(hb),
		WithServerSelectionTimeout(selTimeout),
		WithMinHeartbeatInterval(5*time.Millisecond),
		WithHeartbeatFrequency(20*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = topo.Close(context.Background()) })
	return topo
}

// Scenario 1 of spec §8, exercised through selection: a single-seed
// Standalone topology's only server becomes selectable once it reports.
func TestSelectServerConnectsAndSelects(t *testing.T) {
	topo := newTestTopology(t, standaloneHeartbeater(), time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	srv, err := topo.SelectServer(ctx, description.WriteSelector())
	if err != nil {
		t.Fatalf("SelectServer() error = %v", err)
	}
	if srv.Address() != address.Address("h:27017") {
		t.Fatalf("SelectServer() address = %v, want h:27017", srv.Address())
	}
}

// Scenario 2 of spec §8, via the pre-connect path: against a topology whose
// server never connects, selection fails with a ServerSelectionError close to
// the 50ms deadline.
func TestSelectServerTimeoutWaitingToConnect(t *testing.T) {
	topo := newTestTopology(t, neverConnectsHeartbeater(), 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	start := time.Now()
	_, err := topo.SelectServer(ctx, description.WriteSelector())
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("SelectServer() error = nil, want Timeout")
	}
	var selErr ServerSelectionError
	if !errors.As(err, &selErr) {
		t.Fatalf("error = %v (%T), want ServerSelectionError", err, err)
	}
	if elapsed > 500*time.Millisecond {
		t.Fatalf("SelectServer() took %s, want close to the 50ms deadline", elapsed)
	}
}

// A selector that never matches, against a topology that does connect,
// times out via the monitoring-wait path (spec §4.4 step 4) rather than the
// pre-connect path.
func TestSelectServerTimeoutDueToMonitoring(t *testing.T) {
	topo := newTestTopology(t, standaloneHeartbeater(), 80*time.Millisecond)

	impossible := description.ServerSelectorFunc(func(description.Topology, []description.Server) ([]description.Server, error) {
		return nil, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := topo.SelectServer(ctx, impossible)
	if err == nil {
		t.Fatal("SelectServer() error = nil, want Timeout")
	}
	if !errors.Is(err, ErrServerSelectionTimeout) {
		t.Fatalf("error = %v, want ErrServerSelectionTimeout", err)
	}
}
