package reptree

// txState buffers everything a Transact call needs to unwind on abort:
// the ops it issued (to undo structurally and to keep out of
// PopLocalOps), and a snapshot of every (vertex, key) persistent
// property entry it touched, taken lazily on first write (spec.md §5).
type txState struct {
	issued            []Op
	propSnapshot      map[txPropKey]propSnapshotEntry
	transientSnapshot map[txPropKey]propSnapshotEntry
	svBefore          *StateVector
	clockBefore       uint64
	outgoingLen       int
}

type txPropKey struct {
	vertexID string
	key      string
}

type propSnapshotEntry struct {
	existed bool
	entry   propEntry
}

func newTxState(e *Engine) *txState {
	return &txState{
		propSnapshot:      make(map[txPropKey]propSnapshotEntry),
		transientSnapshot: make(map[txPropKey]propSnapshotEntry),
		svBefore:          e.sv.Clone(),
		clockBefore:       e.clock.Current(),
		outgoingLen:       len(e.outgoing),
	}
}

// snapshotPropertyOnce records (vertexID, key)'s pre-transaction value
// the first time the running transaction touches it. Caller must hold
// e.mu and have e.tx != nil.
func (e *Engine) snapshotPropertyOnce(vertexID, key string) {
	k := txPropKey{vertexID: vertexID, key: key}
	if _, ok := e.tx.propSnapshot[k]; ok {
		return
	}
	v := e.tree.get(vertexID)
	if v == nil {
		e.tx.propSnapshot[k] = propSnapshotEntry{existed: false}
		return
	}
	entry, ok := v.properties[key]
	e.tx.propSnapshot[k] = propSnapshotEntry{existed: ok, entry: entry}
}

// snapshotTransientOnce is snapshotPropertyOnce for the transient
// overlay: a persistent SetProperty inside a transaction can delete an
// existing transient entry (property.go's LWW rule), and that deletion
// must unwind on abort exactly like any other mutation the transaction
// made. Caller must hold e.mu and have e.tx != nil.
func (e *Engine) snapshotTransientOnce(vertexID, key string) {
	k := txPropKey{vertexID: vertexID, key: key}
	if _, ok := e.tx.transientSnapshot[k]; ok {
		return
	}
	v := e.tree.get(vertexID)
	if v == nil {
		e.tx.transientSnapshot[k] = propSnapshotEntry{existed: false}
		return
	}
	entry, ok := v.transient[key]
	e.tx.transientSnapshot[k] = propSnapshotEntry{existed: ok, entry: entry}
}

// Transact runs fn under a single logical unit: every Move and
// SetProperty issued inside fn is applied immediately (so fn can read
// its own writes), but if fn returns a non-nil error every structural
// and property change it made is unwound, the Lamport clock and state
// vector are rewound, and none of its ops are exposed via PopLocalOps
// or GetAllOps (spec.md §5 "Local transactions").
//
// Transact does not nest: calling it again from within fn returns
// ErrTransactionAborted.
func (e *Engine) Transact(fn func() error) error {
	e.mu.Lock()
	if e.tx != nil {
		e.mu.Unlock()
		return ErrTransactionAborted
	}
	e.tx = newTxState(e)
	e.mu.Unlock()

	err := fn()

	e.mu.Lock()
	defer e.mu.Unlock()
	tx := e.tx
	e.tx = nil
	if err == nil {
		return nil
	}

	for i := len(tx.issued) - 1; i >= 0; i-- {
		if mv, ok := tx.issued[i].(MoveOp); ok {
			e.undoIssuedMove(mv)
		}
	}
	for k, snap := range tx.propSnapshot {
		v := e.tree.get(k.vertexID)
		if v == nil {
			continue
		}
		if snap.existed {
			v.properties[k.key] = snap.entry
		} else {
			delete(v.properties, k.key)
		}
	}
	for k, snap := range tx.transientSnapshot {
		v := e.tree.get(k.vertexID)
		if v == nil {
			continue
		}
		if snap.existed {
			v.transient[k.key] = snap.entry
		} else {
			delete(v.transient, k.key)
		}
	}

	keep := tx.outgoingLen
	if keep > len(e.outgoing) {
		keep = len(e.outgoing)
	}
	e.outgoing = e.outgoing[:keep]

	issuedIDs := make(map[OpID]bool, len(tx.issued))
	for _, op := range tx.issued {
		issuedIDs[op.ID()] = true
	}
	e.moveLog = filterMoves(e.moveLog, issuedIDs)
	e.propLog = filterProps(e.propLog, issuedIDs)

	e.sv = tx.svBefore
	e.clock.rewind(tx.clockBefore)

	return err
}

// undoIssuedMove reverses a move this transaction itself issued, using
// the same rollback record undoMove uses for remote replay.
func (e *Engine) undoIssuedMove(op MoveOp) {
	if _, ok := e.parentBeforeMove[op.OpID]; !ok {
		return // never structurally applied (e.g. skipped as a cycle)
	}
	e.undoMove(op)
	delete(e.parentBeforeMove, op.OpID)
}

func filterMoves(log []MoveOp, drop map[OpID]bool) []MoveOp {
	out := log[:0:0]
	for _, op := range log {
		if !drop[op.OpID] {
			out = append(out, op)
		}
	}
	return out
}

func filterProps(log []SetPropertyOp, drop map[OpID]bool) []SetPropertyOp {
	out := log[:0:0]
	for _, op := range log {
		if !drop[op.OpID] {
			out = append(out, op)
		}
	}
	return out
}
