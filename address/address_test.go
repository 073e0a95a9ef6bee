package address

import "testing"

func TestCanonicalize(t *testing.T) {
	cases := map[string]Address{
		"Host":      "host:27017",
		"host:1234": "host:1234",
		"":          "",
	}
	for in, want := range cases {
		if got := Address(in).Canonicalize(); got != want {
			t.Errorf("Canonicalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseList(t *testing.T) {
	got, err := ParseList("a:1,b,c:3")
	if err != nil {
		t.Fatalf("ParseList returned error: %v", err)
	}
	want := []Address{"a:1", "b:27017", "c:3"}
	if len(got) != len(want) {
		t.Fatalf("ParseList(%q) = %v, want %v", "a:1,b,c:3", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ParseList()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestParseListRejectsEmptySeed(t *testing.T) {
	if _, err := ParseList("a:1,,c:3"); err == nil {
		t.Fatal("expected error for empty seed entry")
	}
}

func TestParseListRejectsBadPort(t *testing.T) {
	if _, err := ParseList("a:notaport"); err == nil {
		t.Fatal("expected error for non-numeric port")
	}
}
