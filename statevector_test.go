package reptree

import "testing"

func TestStateVector_UpdateAndContains(t *testing.T) {
	sv := NewStateVector()
	sv.Update("a", 1)
	sv.Update("a", 2)
	sv.Update("a", 3)

	if !sv.Contains(OpID{Counter: 2, PeerID: "a"}) {
		t.Errorf("expected counter 2 to be contained")
	}
	if sv.Contains(OpID{Counter: 4, PeerID: "a"}) {
		t.Errorf("counter 4 should not be contained yet")
	}

	rs := sv.ranges["a"]
	if len(rs) != 1 || rs[0] != (Range{Lo: 1, Hi: 3}) {
		t.Errorf("expected contiguous range [1,3], got %v", rs)
	}
}

func TestStateVector_UpdateOutOfOrderMergesGaps(t *testing.T) {
	sv := NewStateVector()
	sv.Update("a", 5)
	sv.Update("a", 1)
	sv.Update("a", 3)
	sv.Update("a", 2)
	sv.Update("a", 4)

	rs := sv.ranges["a"]
	if len(rs) != 1 || rs[0] != (Range{Lo: 1, Hi: 5}) {
		t.Errorf("expected merged range [1,5], got %v", rs)
	}
}

func TestStateVector_UpdateLeavesGap(t *testing.T) {
	sv := NewStateVector()
	sv.Update("a", 1)
	sv.Update("a", 5)

	rs := sv.ranges["a"]
	if len(rs) != 2 {
		t.Fatalf("expected two disjoint ranges, got %v", rs)
	}
	if !sv.Contains(OpID{Counter: 1, PeerID: "a"}) || !sv.Contains(OpID{Counter: 5, PeerID: "a"}) {
		t.Errorf("expected both endpoints contained")
	}
	if sv.Contains(OpID{Counter: 3, PeerID: "a"}) {
		t.Errorf("gap counter should not be contained")
	}
}

func TestStateVector_Retract(t *testing.T) {
	sv := NewStateVector()
	for i := uint64(1); i <= 5; i++ {
		sv.Update("a", i)
	}
	sv.retract("a", 3)
	if sv.Contains(OpID{Counter: 3, PeerID: "a"}) {
		t.Errorf("expected counter 3 to be retracted")
	}
	if !sv.Contains(OpID{Counter: 2, PeerID: "a"}) || !sv.Contains(OpID{Counter: 4, PeerID: "a"}) {
		t.Errorf("retract must not disturb neighboring counters")
	}

	sv.retract("a", 1)
	if sv.Contains(OpID{Counter: 1, PeerID: "a"}) {
		t.Errorf("expected endpoint retraction to work")
	}
}

func TestStateVector_Diff(t *testing.T) {
	mine := NewStateVector()
	for i := uint64(1); i <= 5; i++ {
		mine.Update("a", i)
	}
	theirs := NewStateVector()
	theirs.Update("a", 1)
	theirs.Update("a", 2)

	missing := mine.Diff(theirs)
	if len(missing) != 1 || missing[0] != (MissingRange{PeerID: "a", Lo: 3, Hi: 5}) {
		t.Errorf("expected missing range [3,5] for peer a, got %v", missing)
	}

	if len(mine.Diff(mine)) != 0 {
		t.Errorf("diffing against self should yield nothing missing")
	}
}

func TestStateVector_CloneIsIndependent(t *testing.T) {
	sv := NewStateVector()
	sv.Update("a", 1)
	clone := sv.Clone()
	sv.Update("a", 2)

	if clone.Contains(OpID{Counter: 2, PeerID: "a"}) {
		t.Errorf("clone must not observe updates made after Clone()")
	}
}

func TestStateVector_EncodeDecodeRoundTrip(t *testing.T) {
	sv := NewStateVector()
	sv.Update("a", 1)
	sv.Update("a", 2)
	sv.Update("b", 10)

	enc := sv.Encode()
	decoded := DecodeStateVector(enc)

	if !decoded.Contains(OpID{Counter: 1, PeerID: "a"}) || !decoded.Contains(OpID{Counter: 10, PeerID: "b"}) {
		t.Errorf("round-tripped state vector lost entries: %v", enc)
	}
	if decoded.Contains(OpID{Counter: 3, PeerID: "a"}) {
		t.Errorf("round trip must not fabricate entries")
	}
}
