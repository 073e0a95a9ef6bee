package compression

import "testing"

func TestNegotiatePrefersRegistryOrder(t *testing.T) {
	r := NewRegistry([]string{"zstd", "snappy", "zlib"})
	got := r.Negotiate([]string{"snappy", "zlib"})
	if got != "snappy" {
		t.Fatalf("Negotiate() = %q, want %q", got, "snappy")
	}
}

func TestNegotiateNoMutualCompressor(t *testing.T) {
	r := NewRegistry([]string{"zstd"})
	if got := r.Negotiate([]string{"snappy"}); got != "" {
		t.Fatalf("Negotiate() = %q, want empty", got)
	}
}

func TestSelfCheckRoundTrips(t *testing.T) {
	r := NewRegistry([]string{"snappy", "zlib", "zstd"})
	payload := []byte("the quick brown fox jumps over the lazy dog, repeated for compressibility: " +
		"the quick brown fox jumps over the lazy dog")
	for _, name := range []string{"snappy", "zlib", "zstd"} {
		if err := r.SelfCheck(name, payload); err != nil {
			t.Errorf("SelfCheck(%q) failed: %v", name, err)
		}
	}
}

func TestSelfCheckUnknownCompressor(t *testing.T) {
	r := NewRegistry([]string{"snappy"})
	if err := r.SelfCheck("lz4", []byte("x")); err == nil {
		t.Fatal("expected error for unregistered compressor")
	}
}

func TestOfferedPreservesOrderAndSkipsUnknown(t *testing.T) {
	r := NewRegistry([]string{"zlib", "bogus", "snappy"})
	got := r.Offered()
	want := []string{"zlib", "snappy"}
	if len(got) != len(want) {
		t.Fatalf("Offered() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Offered()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
