package reptree

// priorParent records what a vertex's parent pointer (and existence)
// was immediately before a given Move op was tried, so undoMove can
// restore it exactly (spec.md §4.1 steps 4-5).
type priorParent struct {
	existed  bool
	parentID *string
}

// applyMoveLocked is the full algorithm of spec.md §4.1, applied to
// every Move op whether local or remote. Caller must hold e.mu.
func (e *Engine) applyMoveLocked(op MoveOp) {
	if e.sv.Contains(op.OpID) {
		return // dedup: already applied, state vector unchanged
	}
	if op.ParentID != nil && !e.tree.hasVertex(*op.ParentID) {
		e.pending.parkMove(*op.ParentID, op) // causal deferral, not an error
		return
	}

	e.clock.Observe(op.OpID.Counter)
	e.sv.Update(op.OpID.PeerID, op.OpID.Counter)

	e.insertMoveAndReplay(op)
	if op.ParentID == nil && e.rootID == nil {
		e.rootID = strPtr(op.TargetID)
	}
	e.flushPendingMoves(op.TargetID)
}

// insertMoveAndReplay keeps the move log sorted by OpID. A move newer
// than everything applied so far is simply appended and tried. An
// older, late-arriving move requires undoing everything newer, splicing
// the late move into its correct position, trying it, then redoing the
// undone moves in their original OpID order (spec.md §4.1 step 3).
func (e *Engine) insertMoveAndReplay(op MoveOp) {
	if len(e.moveLog) == 0 || op.OpID.Greater(e.moveLog[len(e.moveLog)-1].OpID) {
		e.moveLog = append(e.moveLog, op)
		e.tryMove(op)
		e.writeThroughMoveLocked(op)
		return
	}

	i := len(e.moveLog)
	var undone []MoveOp // collected newest-first as we walk backward
	for i > 0 && e.moveLog[i-1].OpID.Greater(op.OpID) {
		i--
		e.undoMove(e.moveLog[i])
		undone = append(undone, e.moveLog[i])
	}

	spliced := make([]MoveOp, 0, len(e.moveLog)+1)
	spliced = append(spliced, e.moveLog[:i]...)
	spliced = append(spliced, op)
	spliced = append(spliced, e.moveLog[i:]...)
	e.moveLog = spliced

	e.tryMove(op)

	// Replay undone ops in ascending (original log) OpID order: undone
	// was built newest-first, so walk it back to front.
	for j := len(undone) - 1; j >= 0; j-- {
		e.tryMove(undone[j])
	}

	e.writeThroughMoveLocked(op)
}

// tryMove applies op's structural effect, unless it is a self-parent or
// would introduce a cycle, in which case it is silently skipped (but
// stays in the move log, because every replica must process it
// identically — spec.md §4.1 step 4, §7 "Benign rejection").
func (e *Engine) tryMove(op MoveOp) {
	target := e.tree.get(op.TargetID)
	existed := target != nil
	var oldParent *string
	if existed {
		oldParent = target.parentID
	}
	e.parentBeforeMove[op.OpID] = priorParent{existed: existed, parentID: oldParent}

	if op.ParentID != nil && *op.ParentID == op.TargetID {
		e.diag.benignRejection(op, "self-parent")
		return
	}
	if op.ParentID != nil && e.isAncestorLocked(op.TargetID, *op.ParentID) {
		e.diag.benignRejection(op, "cycle")
		return
	}

	if oldParent != nil {
		if p := e.tree.get(*oldParent); p != nil {
			p.removeChild(op.TargetID)
		}
	}
	target = e.tree.ensure(op.TargetID)
	target.parentID = op.ParentID
	if op.ParentID != nil {
		p := e.tree.ensure(*op.ParentID)
		p.addChild(op.TargetID)
	}

	e.tree.emit(Event{Kind: EventMove, VertexID: op.TargetID, OldParentID: oldParent, NewParentID: op.ParentID})
	e.emitChildrenEvent(oldParent)
	e.emitChildrenEvent(op.ParentID)

	if !existed {
		e.flushPendingProps(op.TargetID)
	}
}

// undoMove reverses op's structural effect using the priorParent
// recorded by tryMove, restoring the target's parent pointer, or
// removing the target entirely if it did not exist before op was first
// tried (spec.md §4.1 step 5).
func (e *Engine) undoMove(op MoveOp) {
	prior, ok := e.parentBeforeMove[op.OpID]
	if !ok {
		panic(invariantf("no rollback record for move %s", op.OpID))
	}
	target := e.tree.get(op.TargetID)
	if target == nil {
		return // op never actually changed the snapshot (e.g. was skipped)
	}
	currentParent := target.parentID
	if currentParent != nil {
		if p := e.tree.get(*currentParent); p != nil {
			p.removeChild(op.TargetID)
		}
	}

	if !prior.existed {
		delete(e.tree.vertices, op.TargetID)
		e.tree.emit(Event{Kind: EventMove, VertexID: op.TargetID, OldParentID: currentParent, NewParentID: nil})
		e.emitChildrenEvent(currentParent)
		return
	}

	target.parentID = prior.parentID
	if prior.parentID != nil {
		p := e.tree.ensure(*prior.parentID)
		p.addChild(op.TargetID)
	}
	e.tree.emit(Event{Kind: EventMove, VertexID: op.TargetID, OldParentID: currentParent, NewParentID: prior.parentID})
	e.emitChildrenEvent(currentParent)
	e.emitChildrenEvent(prior.parentID)
}

// emitChildrenEvent fires a children{} event for parentID, if any.
func (e *Engine) emitChildrenEvent(parentID *string) {
	if parentID == nil {
		return
	}
	p := e.tree.get(*parentID)
	if p == nil {
		return
	}
	children := make([]string, len(p.children))
	copy(children, p.children)
	e.tree.emit(Event{Kind: EventChildren, ParentID: *parentID, Children: children})
}

// flushPendingMoves re-applies every move that was parked waiting for
// vertexID to become a valid parent (spec.md §4.1 step 6).
func (e *Engine) flushPendingMoves(vertexID string) {
	for _, op := range e.pending.drainMoves(vertexID) {
		e.applyMoveLocked(op)
	}
}

// isAncestorLocked reports whether ancestorID is on vertexID's parent
// chain. A cycle encountered mid-walk is treated as "not an ancestor"
// so the walk always terminates (spec.md §4.1: "logged as a corruption
// signal"). Caller must hold e.mu.
func (e *Engine) isAncestorLocked(ancestorID, vertexID string) bool {
	visited := make(map[string]bool)
	cur := vertexID
	for {
		if cur == ancestorID {
			return true
		}
		if visited[cur] {
			e.diag.corruptionSignal(cur)
			return false
		}
		visited[cur] = true
		v := e.tree.get(cur)
		if v == nil || v.parentID == nil {
			return false
		}
		cur = *v.parentID
	}
}

// IsAncestor reports whether ancestorID is on childID's parent chain
// (spec.md §6).
func (e *Engine) IsAncestor(childID, ancestorID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.isAncestorLocked(ancestorID, childID)
}
