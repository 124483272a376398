package reptree

import (
	"encoding/json"
	"fmt"
)

// wireOpID is OpID's wire shape (spec.md §4.6).
type wireOpID struct {
	Counter uint64 `json:"counter"`
	PeerID  string `json:"peerId"`
}

type wireMoveOp struct {
	Type     string   `json:"t"`
	Version  int      `json:"v"`
	ID       wireOpID `json:"id"`
	TargetID string   `json:"targetId"`
	ParentID *string  `json:"parentId"`
}

type wireSetPropertyOp struct {
	Type      string   `json:"t"`
	Version   int      `json:"v"`
	ID        wireOpID `json:"id"`
	TargetID  string   `json:"targetId"`
	Key       string   `json:"key"`
	HasValue  bool     `json:"hasValue"`
	Value     any      `json:"value,omitempty"`
	Transient bool     `json:"transient"`
}

// wireVersion is the only encoding version this implementation produces
// or accepts (spec.md §4.6).
const wireVersion = 1

// EncodeOp renders op in RepTree's wire encoding v1. A transient
// SetProperty op is rejected: transient values MUST NOT be transmitted
// (spec.md §4.2, §4.6, §8 "Transient isolation").
func EncodeOp(op Op) ([]byte, error) {
	switch o := op.(type) {
	case MoveOp:
		return json.Marshal(wireMoveOp{
			Type:     "move",
			Version:  wireVersion,
			ID:       wireOpID{Counter: o.OpID.Counter, PeerID: o.OpID.PeerID},
			TargetID: o.TargetID,
			ParentID: o.ParentID,
		})
	case SetPropertyOp:
		if o.Transient {
			return nil, fmt.Errorf("reptree: transient property op %s must not be encoded for transmission", o.OpID)
		}
		return json.Marshal(wireSetPropertyOp{
			Type:      "set",
			Version:   wireVersion,
			ID:        wireOpID{Counter: o.OpID.Counter, PeerID: o.OpID.PeerID},
			TargetID:  o.TargetID,
			Key:       o.Key,
			HasValue:  o.HasValue,
			Value:     o.Value,
			Transient: false,
		})
	default:
		return nil, fmt.Errorf("reptree: unsupported op type %T", op)
	}
}

// wireEnvelope peeks at the discriminant fields common to every op
// before committing to a concrete shape.
type wireEnvelope struct {
	Type    string `json:"t"`
	Version int    `json:"v"`
}

// DecodeOp parses RepTree's wire encoding v1, producing a MoveOp or
// SetPropertyOp as an Op. A decoded SetProperty op with transient=true
// is rejected, since a conforming encoder never produces one (spec.md
// §4.6).
func DecodeOp(data []byte) (Op, error) {
	var env wireEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("reptree: malformed op envelope: %w", err)
	}
	if env.Version != wireVersion {
		return nil, fmt.Errorf("reptree: unsupported wire version %d", env.Version)
	}
	switch env.Type {
	case "move":
		var w wireMoveOp
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("reptree: malformed move op: %w", err)
		}
		parentID := w.ParentID
		if parentID != nil && *parentID == "" {
			parentID = nil // empty parent id is read as a root-level move
		}
		op := MoveOp{OpID: OpID{Counter: w.ID.Counter, PeerID: w.ID.PeerID}, TargetID: w.TargetID, ParentID: parentID}
		if err := validateOpID(op.OpID); err != nil {
			return nil, err
		}
		return op, nil
	case "set":
		var w wireSetPropertyOp
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("reptree: malformed set op: %w", err)
		}
		if w.Transient {
			return nil, fmt.Errorf("reptree: decoded op %s carries transient:true, which no conforming encoder emits", w.ID)
		}
		op := SetPropertyOp{
			OpID:     OpID{Counter: w.ID.Counter, PeerID: w.ID.PeerID},
			TargetID: w.TargetID,
			Key:      w.Key,
			HasValue: w.HasValue,
			Value:    w.Value,
		}
		if err := validateOpID(op.OpID); err != nil {
			return nil, err
		}
		if op.HasValue {
			if err := validateValueDomain(op.Value, 0); err != nil {
				return nil, NewValidationError(op.Key, op.Value, err)
			}
		}
		return op, nil
	default:
		return nil, fmt.Errorf("reptree: unknown op type %q", env.Type)
	}
}

// EncodeStateVector renders sv in the wire shape {peerId: [[lo,hi]...]}
// (spec.md §4.6).
func EncodeStateVector(sv *StateVector) ([]byte, error) {
	return json.Marshal(sv.Encode())
}

// DecodeStateVectorJSON parses the wire shape EncodeStateVector produces.
func DecodeStateVectorJSON(data []byte) (*StateVector, error) {
	var enc map[string][][2]uint64
	if err := json.Unmarshal(data, &enc); err != nil {
		return nil, fmt.Errorf("reptree: malformed state vector: %w", err)
	}
	return DecodeStateVector(enc), nil
}
