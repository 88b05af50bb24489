package negotiate

import "testing"

func TestSelectALPNPrefersServerOrder(t *testing.T) {
	got, err := SelectALPN([]string{"h2", "http/1.1"}, []string{"http/1.1", "h2"})
	if err != nil {
		t.Fatal(err)
	}
	if got != "h2" {
		t.Fatalf("got %q, want h2", got)
	}
}

func TestSelectALPNNoOverlapIsStrict(t *testing.T) {
	// Strict negotiation: no overlap means a hard failure, never a
	// silent fallback to the server's top preference.
	_, err := SelectALPN([]string{"h2"}, []string{"spdy/3"})
	if err != ErrNoOverlap {
		t.Fatalf("got %v, want ErrNoOverlap", err)
	}
}

func TestSelectALPNSingleCandidate(t *testing.T) {
	got, err := SelectALPN([]string{"h2", "http/1.1"}, []string{"http/1.1"})
	if err != nil {
		t.Fatal(err)
	}
	if got != "http/1.1" {
		t.Fatalf("got %q, want http/1.1", got)
	}
}
