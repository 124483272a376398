package reptree

// applySetPropertyLocked is the algorithm of spec.md §4.2, applied to
// every SetProperty op whether local or remote. Caller must hold e.mu.
func (e *Engine) applySetPropertyLocked(op SetPropertyOp) {
	if !op.Transient && e.sv.Contains(op.OpID) {
		return // dedup
	}
	if !e.tree.hasVertex(op.TargetID) {
		if op.Transient {
			return // transient ops only make sense locally, for existing vertices
		}
		e.pending.parkProp(op.TargetID, op)
		return
	}

	e.clock.Observe(op.OpID.Counter)
	if !op.Transient {
		e.sv.Update(op.OpID.PeerID, op.OpID.Counter)
	}

	v := e.tree.ensure(op.TargetID)

	if op.Transient {
		if e.tx != nil {
			e.snapshotTransientOnce(op.TargetID, op.Key)
		}
		existing, ok := v.transient[op.Key]
		if ok && !op.OpID.Greater(existing.opID) {
			return
		}
		if !op.HasValue {
			delete(v.transient, op.Key)
		} else {
			v.transient[op.Key] = propEntry{value: op.Value, opID: op.OpID}
		}
		e.tree.emit(Event{Kind: EventProperty, VertexID: op.TargetID, Key: op.Key, Value: op.Value})
		return
	}

	e.propLog = append(e.propLog, op)
	if e.tx != nil {
		e.snapshotPropertyOnce(op.TargetID, op.Key)
	}

	existing, ok := v.properties[op.Key]
	if ok && !op.OpID.Greater(existing.opID) {
		e.writeThroughPropLocked(op)
		return // an older-OpID Set is ignored; no property{} event fires
	}
	if !op.HasValue {
		delete(v.properties, op.Key)
	} else {
		v.properties[op.Key] = propEntry{value: op.Value, opID: op.OpID}
	}
	if t, ok := v.transient[op.Key]; ok && op.OpID.Greater(t.opID) {
		if e.tx != nil {
			e.snapshotTransientOnce(op.TargetID, op.Key)
		}
		delete(v.transient, op.Key)
	}
	e.tree.emit(Event{Kind: EventProperty, VertexID: op.TargetID, Key: op.Key, Value: op.Value})
	e.writeThroughPropLocked(op)
}

// flushPendingProps re-applies every SetProperty op that was parked
// waiting for vertexID to exist (spec.md §4.2 "Pending-ops flush"),
// called when a Move op first creates vertexID.
func (e *Engine) flushPendingProps(vertexID string) {
	for _, op := range e.pending.drainProps(vertexID) {
		e.applySetPropertyLocked(op)
	}
}

// setPropertyLocked validates value and applies a freshly issued local
// SetProperty op. Caller must hold e.mu.
func (e *Engine) setPropertyLocked(targetID, key string, value any, transient bool) error {
	if err := ValidateValue(key, value, e.reserved); err != nil {
		return err
	}
	op := SetPropertyOp{
		OpID:     e.nextLocalOpID(),
		TargetID: targetID,
		Key:      key,
		HasValue: true,
		Value:    value,
	}
	if transient {
		op.Transient = true
		// Never queued for transmission (e.outgoing), but still tracked by
		// an enclosing transaction so abort can unwind it.
		if e.tx != nil {
			e.tx.issued = append(e.tx.issued, op)
		}
	} else {
		e.recordLocal(op) // transient ops are never queued for transmission
	}
	e.applySetPropertyLocked(op)
	return nil
}

// SetProperty issues a persistent SetProperty op (spec.md §4.2).
func (e *Engine) SetProperty(vertexID, key string, value any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.setPropertyLocked(vertexID, key, value, false)
}

// SetTransient writes a local-only overlay value: never logged, never
// returned by GetAllOps/PopLocalOps, never transmitted (spec.md §4.2,
// §4.6, §8 "Transient isolation").
func (e *Engine) SetTransient(vertexID, key string, value any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.setPropertyLocked(vertexID, key, value, true)
}

// ClearProperty issues a persistent deletion (HasValue:false) for key on
// vertexID (spec.md §4.2: "undefined... denotes deletion").
func (e *Engine) ClearProperty(vertexID, key string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	op := SetPropertyOp{OpID: e.nextLocalOpID(), TargetID: vertexID, Key: key, HasValue: false}
	e.recordLocal(op)
	e.applySetPropertyLocked(op)
	return nil
}

// CommitTransients promotes every current transient entry on vertexID
// to a persistent SetProperty op (spec.md §4.2).
func (e *Engine) CommitTransients(vertexID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	v := e.tree.get(vertexID)
	if v == nil {
		return ErrVertexNotFound
	}
	pending := make(map[string]any, len(v.transient))
	for k, entry := range v.transient {
		pending[k] = entry.value
	}
	for k, val := range pending {
		if err := e.setPropertyLocked(vertexID, k, val, false); err != nil {
			return err
		}
	}
	return nil
}

// GetProperty returns the value for (vertexID, key): the transient
// overlay value if includeTransient is true and a transient entry
// exists, otherwise the persistent value. ok is false if neither exists
// or the vertex is unknown (spec.md §4.2).
func (e *Engine) GetProperty(vertexID, key string, includeTransient bool) (value any, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v := e.tree.get(vertexID)
	if v == nil {
		return nil, false
	}
	if includeTransient {
		if entry, exists := v.transient[key]; exists {
			return entry.value, true
		}
	}
	if entry, exists := v.properties[key]; exists {
		return entry.value, true
	}
	return nil, false
}

// GetProperties returns a copy of vertexID's merged property view:
// persistent values overlaid by any transient values for the same key.
func (e *Engine) GetProperties(vertexID string, includeTransient bool) (map[string]any, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v := e.tree.get(vertexID)
	if v == nil {
		return nil, ErrVertexNotFound
	}
	out := make(map[string]any, len(v.properties))
	for k, entry := range v.properties {
		out[k] = entry.value
	}
	if includeTransient {
		for k, entry := range v.transient {
			out[k] = entry.value
		}
	}
	return out, nil
}
