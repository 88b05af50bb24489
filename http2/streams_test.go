package http2

import "testing"

func newWritableStream(id uint32, weight uint16, dep uint32) *Stream {
	s := NewStream(id, 65535, nil)
	s.SetPriority(dep, weight, false)
	s.SetState(StreamStateOpen)
	s.SetPendingWrite(true)
	return s
}

// TestPriorityOrdering exercises the write-scheduler ordering key:
// (dependency, 256-weight, !exclusive, stream_id) ascending. Among
// streams with the same dependency, the higher weight goes first.
func TestPriorityOrdering(t *testing.T) {
	var strms Streams

	low := newWritableStream(3, 1, 0)
	high := newWritableStream(5, 256, 0)
	mid := newWritableStream(7, 16, 0)

	strms.Insert(low)
	strms.Insert(high)
	strms.Insert(mid)

	order := []uint32{}
	for {
		s := strms.NextWritable()
		if s == nil {
			break
		}
		order = append(order, s.ID())
		s.SetPendingWrite(false)
	}

	want := []uint32{5, 7, 3}
	if len(order) != len(want) {
		t.Fatalf("got %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("got %v, want %v", order, want)
		}
	}
}

// TestPriorityOrderingExclusiveTiebreak covers the exclusive tiebreak:
// among equal dependency and weight, the exclusive stream sorts first,
// and ties beyond that break on ascending stream id.
func TestPriorityOrderingExclusiveTiebreak(t *testing.T) {
	var strms Streams

	a := newWritableStream(3, 16, 0)
	b := newWritableStream(9, 16, 0)
	b.exclusive = true

	strms.Insert(a)
	strms.Insert(b)

	first := strms.NextWritable()
	if first.ID() != 9 {
		t.Fatalf("expected the exclusive stream 9 first, got %d", first.ID())
	}
}

// TestNextWritableSkipsZeroWindowAndIdle ensures the scheduler never
// selects a stream with no pending write or a non-positive send
// window, covering property 4 (send_window never goes negative on the
// local side, so a zero window correctly blocks selection).
func TestNextWritableSkipsZeroWindowAndIdle(t *testing.T) {
	var strms Streams

	blocked := newWritableStream(1, 16, 0)
	blocked.sendWindow = 0

	idle := NewStream(3, 65535, nil) // no pending write

	ready := newWritableStream(5, 16, 0)

	strms.Insert(blocked)
	strms.Insert(idle)
	strms.Insert(ready)

	s := strms.NextWritable()
	if s == nil || s.ID() != 5 {
		t.Fatalf("expected stream 5, got %v", s)
	}
}

// A dependency edge that would close a loop in the priority tree has
// to be caught before it is installed, or the scheduler's lazy rebuild
// would walk it forever.
func TestWouldCycleDetectsDirectAndTransitiveCycles(t *testing.T) {
	var strms Streams

	s1 := NewStream(1, 65535, nil)
	s3 := NewStream(3, 65535, nil)
	s5 := NewStream(5, 65535, nil)
	strms.Insert(s1)
	strms.Insert(s3)
	strms.Insert(s5)

	// 3 depends on 1.
	s3.SetPriority(1, DefaultWeight, false)
	// Making 1 depend on 3 would be a direct cycle.
	if !strms.WouldCycle(1, 3) {
		t.Fatalf("expected a direct cycle to be detected")
	}

	// 5 depends on 3 (which depends on 1): 1 -> (would depend on) 5 is
	// a transitive cycle (1 -> 5 -> 3 -> 1).
	s5.SetPriority(3, DefaultWeight, false)
	if !strms.WouldCycle(1, 5) {
		t.Fatalf("expected a transitive cycle to be detected")
	}

	// A fresh, unrelated dependency is not a cycle.
	s7 := NewStream(7, 65535, nil)
	strms.Insert(s7)
	if strms.WouldCycle(7, 1) {
		t.Fatalf("unrelated dependency incorrectly flagged as a cycle")
	}
}

// TestStreamFlowControlNonNegativity is property 4: ConsumeSend never
// takes the window negative, and CreditSend never overflows the
// signed 31-bit range.
func TestStreamFlowControlNonNegativity(t *testing.T) {
	s := NewStream(1, 10, nil)

	if s.ConsumeSend(11) {
		t.Fatalf("expected ConsumeSend to refuse exceeding the window")
	}
	if !s.ConsumeSend(10) {
		t.Fatalf("expected ConsumeSend(10) to succeed")
	}
	if s.SendWindow() != 0 {
		t.Fatalf("expected window 0, got %d", s.SendWindow())
	}

	if err := s.CreditSend(maxWindowSizeSigned); err != nil {
		t.Fatalf("unexpected overflow error: %v", err)
	}
	if err := s.CreditSend(1); err == nil {
		t.Fatalf("expected a FLOW_CONTROL_ERROR on overflow")
	}
}
