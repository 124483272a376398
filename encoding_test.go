package reptree

import "testing"

func TestEncodeDecodeMoveOp(t *testing.T) {
	op := MoveOp{OpID: OpID{Counter: 3, PeerID: "a"}, TargetID: "x", ParentID: strPtr("root")}
	data, err := EncodeOp(op)
	if err != nil {
		t.Fatalf("EncodeOp: %v", err)
	}
	decoded, err := DecodeOp(data)
	if err != nil {
		t.Fatalf("DecodeOp: %v", err)
	}
	mv, ok := decoded.(MoveOp)
	if !ok {
		t.Fatalf("expected MoveOp, got %T", decoded)
	}
	if !mv.OpID.Equal(op.OpID) || mv.TargetID != op.TargetID || *mv.ParentID != *op.ParentID {
		t.Errorf("round trip mismatch: got %+v, want %+v", mv, op)
	}
}

func TestEncodeDecodeMoveOp_NilParent(t *testing.T) {
	op := MoveOp{OpID: OpID{Counter: 1, PeerID: "a"}, TargetID: "root", ParentID: nil}
	data, err := EncodeOp(op)
	if err != nil {
		t.Fatalf("EncodeOp: %v", err)
	}
	decoded, err := DecodeOp(data)
	if err != nil {
		t.Fatalf("DecodeOp: %v", err)
	}
	mv := decoded.(MoveOp)
	if mv.ParentID != nil {
		t.Errorf("expected nil parent to round-trip as nil, got %v", *mv.ParentID)
	}
}

func TestEncodeDecodeSetPropertyOp(t *testing.T) {
	op := SetPropertyOp{OpID: OpID{Counter: 2, PeerID: "a"}, TargetID: "x", Key: "title", HasValue: true, Value: "Home"}
	data, err := EncodeOp(op)
	if err != nil {
		t.Fatalf("EncodeOp: %v", err)
	}
	decoded, err := DecodeOp(data)
	if err != nil {
		t.Fatalf("DecodeOp: %v", err)
	}
	sp, ok := decoded.(SetPropertyOp)
	if !ok {
		t.Fatalf("expected SetPropertyOp, got %T", decoded)
	}
	if sp.Key != "title" || sp.Value != "Home" || !sp.HasValue {
		t.Errorf("round trip mismatch: got %+v", sp)
	}
}

func TestEncodeOp_RejectsTransient(t *testing.T) {
	op := SetPropertyOp{OpID: OpID{Counter: 1, PeerID: "a"}, TargetID: "x", Key: "status", HasValue: true, Value: "typing", Transient: true}
	if _, err := EncodeOp(op); err == nil {
		t.Errorf("expected EncodeOp to reject a transient op")
	}
}

func TestDecodeOp_RejectsTransientOnWire(t *testing.T) {
	data := []byte(`{"t":"set","v":1,"id":{"counter":1,"peerId":"a"},"targetId":"x","key":"status","hasValue":true,"value":"typing","transient":true}`)
	if _, err := DecodeOp(data); err == nil {
		t.Errorf("expected DecodeOp to reject transient:true on the wire")
	}
}

func TestDecodeOp_RejectsUnsupportedVersion(t *testing.T) {
	data := []byte(`{"t":"move","v":2,"id":{"counter":1,"peerId":"a"},"targetId":"x","parentId":null}`)
	if _, err := DecodeOp(data); err == nil {
		t.Errorf("expected DecodeOp to reject an unsupported wire version")
	}
}

func TestStateVectorWireRoundTrip(t *testing.T) {
	sv := NewStateVector()
	sv.Update("a", 1)
	sv.Update("a", 2)

	data, err := EncodeStateVector(sv)
	if err != nil {
		t.Fatalf("EncodeStateVector: %v", err)
	}
	decoded, err := DecodeStateVectorJSON(data)
	if err != nil {
		t.Fatalf("DecodeStateVectorJSON: %v", err)
	}
	if !decoded.Contains(OpID{Counter: 1, PeerID: "a"}) {
		t.Errorf("expected round-tripped state vector to contain counter 1")
	}
}
