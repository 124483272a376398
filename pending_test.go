package reptree

import "testing"

func TestPendingQueues_ParkAndDrainMoves(t *testing.T) {
	p := newPendingQueues()
	op1 := MoveOp{OpID: OpID{Counter: 1, PeerID: "a"}, TargetID: "x", ParentID: strPtr("missing")}
	op2 := MoveOp{OpID: OpID{Counter: 2, PeerID: "a"}, TargetID: "y", ParentID: strPtr("missing")}

	p.parkMove("missing", op1)
	p.parkMove("missing", op2)

	drained := p.drainMoves("missing")
	if len(drained) != 2 || drained[0].TargetID != "x" || drained[1].TargetID != "y" {
		t.Errorf("expected parked moves drained in arrival order, got %v", drained)
	}
	if again := p.drainMoves("missing"); len(again) != 0 {
		t.Errorf("expected drain to empty the queue, got %v", again)
	}
}

func TestPendingQueues_ParkAndDrainProps(t *testing.T) {
	p := newPendingQueues()
	op := SetPropertyOp{OpID: OpID{Counter: 1, PeerID: "a"}, TargetID: "x", Key: "name", HasValue: true, Value: "v"}
	p.parkProp("x", op)

	drained := p.drainProps("x")
	if len(drained) != 1 || drained[0].Key != "name" {
		t.Errorf("expected parked prop drained, got %v", drained)
	}
	if again := p.drainProps("x"); len(again) != 0 {
		t.Errorf("expected drain to empty the queue, got %v", again)
	}
}
