package description

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/mongodb/sdam-core/address"
)

func primary(addr address.Address, setName string, setVersion int64, electionID primitive.ObjectID, hosts ...address.Address) Server {
	v := setVersion
	return Server{
		Address:    addr,
		Kind:       RSPrimary,
		SetName:    setName,
		SetVersion: &v,
		ElectionID: electionID,
		Hosts:      hosts,
	}
}

func secondary(addr address.Address, setName string) Server {
	return Server{Address: addr, Kind: RSSecondary, SetName: setName}
}

// Scenario 1 of spec §8: single-seed Standalone connect.
func TestUpdateSingleSeedStandalone(t *testing.T) {
	addr := address.Address("h:27017")
	topo := NewWithServers(Single, "", []address.Address{addr})

	next := topo.Update(Server{Address: addr, Kind: Standalone})

	if next.Kind != Single {
		t.Fatalf("Kind = %v, want Single", next.Kind)
	}
	sd, ok := next.Server(addr)
	if !ok || sd.Kind != Standalone {
		t.Fatalf("server at %v = %+v, want Standalone", addr, sd)
	}
}

// Scenario 5 of spec §8: replica-set primary election with two seeds.
func TestUpdateReplicaSetPrimaryElection(t *testing.T) {
	a, b := address.Address("a:27017"), address.Address("b:27017")
	topo := NewWithServers(ReplicaSetNoPrimary, "rs", []address.Address{a, b})

	afterB := topo.Update(secondary(b, "rs"))
	if afterB.Kind != ReplicaSetNoPrimary {
		t.Fatalf("Kind after secondary = %v, want ReplicaSetNoPrimary", afterB.Kind)
	}

	oid := primitive.NewObjectID()
	afterA := afterB.Update(primary(a, "rs", 1, oid, a, b))
	if afterA.Kind != ReplicaSetWithPrimary {
		t.Fatalf("Kind after primary = %v, want ReplicaSetWithPrimary", afterA.Kind)
	}
	sd, ok := afterA.Server(a)
	if !ok || sd.Kind != RSPrimary {
		t.Fatalf("server at %v = %+v, want RSPrimary", a, sd)
	}
}

// A from-Unknown topology seeded with a replica-set primary first transitions
// straight to ReplicaSetWithPrimary without an intermediate NoPrimary state,
// and unknown members the primary reports are added as Unknown.
func TestUpdateFromUnknownToReplicaSetWithPrimary(t *testing.T) {
	a, b := address.Address("a:27017"), address.Address("b:27017")
	topo := New()
	topo.Servers[a] = NewDefaultServer(a)

	oid := primitive.NewObjectID()
	next := topo.Update(primary(a, "rs", 1, oid, a, b))

	if next.Kind != ReplicaSetWithPrimary {
		t.Fatalf("Kind = %v, want ReplicaSetWithPrimary", next.Kind)
	}
	if _, ok := next.Server(b); !ok {
		t.Fatalf("member %v reported by primary was not added", b)
	}
}

// Tie-break rule, spec §4.1: a primary reporting a lower (setVersion,
// electionID) tuple than the one already recorded is demoted to Unknown
// rather than accepted.
func TestUpdateStalePrimaryDemoted(t *testing.T) {
	a, b := address.Address("a:27017"), address.Address("b:27017")
	topo := NewWithServers(ReplicaSetNoPrimary, "rs", []address.Address{a, b})

	newOID := primitive.NewObjectID()
	afterA := topo.Update(primary(a, "rs", 2, newOID, a, b))
	if afterA.Kind != ReplicaSetWithPrimary {
		t.Fatalf("Kind after first primary = %v, want ReplicaSetWithPrimary", afterA.Kind)
	}

	staleOID := primitive.NewObjectID()
	afterB := afterA.Update(primary(b, "rs", 1, staleOID, a, b))

	sd, ok := afterB.Server(b)
	if !ok {
		t.Fatalf("server %v missing after stale primary update", b)
	}
	if sd.Kind != Unknown {
		t.Fatalf("stale primary at %v = %v, want demoted to Unknown", b, sd.Kind)
	}
	// The original primary must still be recognized.
	original, ok := afterB.Server(a)
	if !ok || original.Kind != RSPrimary {
		t.Fatalf("original primary at %v = %+v, want still RSPrimary", a, original)
	}
}

// Update is a no-op (by content) when the incoming address is not tracked,
// spec §4.1.
func TestUpdateUnknownAddressIsNoop(t *testing.T) {
	addr := address.Address("h:27017")
	topo := NewWithServers(Single, "", []address.Address{addr})

	other := address.Address("other:27017")
	next := topo.Update(Server{Address: other, Kind: Standalone})

	if !next.Equal(topo) {
		t.Fatalf("Update with untracked address mutated the topology: %+v", next)
	}
}

// Update is idempotent when sd is structurally equal to what's on file,
// spec §8's law.
func TestUpdateIdempotent(t *testing.T) {
	addr := address.Address("h:27017")
	topo := NewWithServers(Single, "", []address.Address{addr})
	sd := Server{Address: addr, Kind: Standalone}

	once := topo.Update(sd)
	twice := once.Update(sd)

	if !once.Equal(twice) {
		t.Fatalf("Update was not idempotent: once=%+v twice=%+v", once, twice)
	}
}

// logicalSessionTimeoutMinutes is the minimum across data-bearing servers,
// absent if any data-bearing server lacks it.
func TestSessionTimeoutIsMinimumAcrossDataBearingServers(t *testing.T) {
	a, b := address.Address("a:27017"), address.Address("b:27017")
	topo := NewWithServers(Sharded, "", []address.Address{a, b})

	five, ten := int64(5), int64(10)
	topo = topo.Update(Server{Address: a, Kind: Mongos, LogicalSessionTimeoutMinutes: &ten})
	topo = topo.Update(Server{Address: b, Kind: Mongos, LogicalSessionTimeoutMinutes: &five})

	if topo.SessionTimeoutMinutes == nil || *topo.SessionTimeoutMinutes != five {
		t.Fatalf("SessionTimeoutMinutes = %v, want 5", topo.SessionTimeoutMinutes)
	}

	topo = topo.Update(Server{Address: b, Kind: Mongos})
	if topo.SessionTimeoutMinutes != nil {
		t.Fatalf("SessionTimeoutMinutes = %v, want absent once a data-bearing server lacks it", *topo.SessionTimeoutMinutes)
	}
}

// Re-applying the same ServerDescription produces a structurally identical
// Topology, checked with go-cmp instead of the hand-rolled Equal so a
// regression in Equal itself wouldn't mask a real divergence.
func TestUpdateIdempotentByDiff(t *testing.T) {
	addr := address.Address("h:27017")
	topo := NewWithServers(Single, "", []address.Address{addr})
	sd := Server{Address: addr, Kind: Standalone}

	once := topo.Update(sd)
	twice := once.Update(sd)

	if diff := cmp.Diff(once, twice, cmpopts.EquateComparable(primitive.ObjectID{})); diff != "" {
		t.Fatalf("Update was not idempotent (-once +twice):\n%s", diff)
	}
}
