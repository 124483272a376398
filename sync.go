package reptree

import (
	"fmt"
	"sort"
)

// sortOpsByID orders ops by OpID ascending, the delivery order that
// lets a receiver's move log extend without undo/redo for most ops
// (spec.md §4.3 "get_missing_ops" step 3).
func sortOpsByID(ops []Op) {
	sort.Slice(ops, func(i, j int) bool { return ops[i].ID().Less(ops[j].ID()) })
}

// Merge applies a batch of remote or previously persisted ops. It is
// idempotent for already-applied OpIDs (spec.md §4.1 "merge").
func (e *Engine) Merge(ops []Op) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, op := range ops {
		switch o := op.(type) {
		case MoveOp:
			e.applyMoveLocked(o)
		case SetPropertyOp:
			e.applySetPropertyLocked(o)
		default:
			return fmt.Errorf("reptree: unsupported op type %T", op)
		}
	}
	return nil
}

// GetMissingOps returns, sorted by OpID, every op this replica has that
// theirSV does not — the minimal in-memory answer to "what does the
// other replica still need" (spec.md §4.3). Async callers needing to
// also cover evicted ops should use GetMissingOpsAsync.
func (e *Engine) GetMissingOps(theirSV *StateVector) []Op {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.missingOpsLocked(theirSV)
}

func (e *Engine) missingOpsLocked(theirSV *StateVector) []Op {
	var out []Op
	for _, op := range e.moveLog {
		if !theirSV.Contains(op.OpID) {
			out = append(out, op)
		}
	}
	for _, op := range e.propLog {
		if !theirSV.Contains(op.OpID) {
			out = append(out, op)
		}
	}
	sortOpsByID(out)
	return out
}
