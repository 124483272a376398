package reptree

import (
	"context"
	"sort"

	"github.com/cshekharsharma/reptree/store"
)

// bridge wires an Engine to external durable storage (spec.md §4.5): a
// VertexStore for snapshot overflow and one LogStore per op kind for
// history overflow. A nil bridge means the engine is purely in-memory:
// every op stays resident forever and *_async methods behave exactly
// like their synchronous counterparts.
//
// opMemoryLimit bounds how many entries of e.moveLog/e.propLog stay
// resident. Every op is written through to the matching LogStore when
// it enters its log; once a log grows past the limit, the oldest
// entries are dropped from RAM and remain only in the store. Eviction
// assumes an evicted op is causally stable: a move or property write
// older than the resident window is not expected to arrive after the
// fact. Should one arrive anyway, insertMoveAndReplay can only undo/redo
// what is still resident, so the late op is spliced in before the
// oldest resident entry instead of at its exact historical position;
// no diagnostic is logged for that case.
type bridge struct {
	vertices      store.VertexStore
	moveLog       store.LogStore[MoveOp]
	propLog       store.LogStore[SetPropertyOp]
	pageLimit     int
	opMemoryLimit int
}

// WithStore attaches a durable bridge so the engine writes every
// durably-applied op through to storage and async reads can page
// vertices and ops eviction has dropped from RAM (spec.md §4.5).
// pageLimit bounds a single children page fetch (<=0 means a built-in
// default). opMemoryLimit bounds resident log size per log (<=0 means
// unbounded: ops are written through for durability but never evicted).
func WithStore(vertices store.VertexStore, moves store.LogStore[MoveOp], props store.LogStore[SetPropertyOp], pageLimit, opMemoryLimit int) EngineOption {
	return func(e *Engine) {
		e.bridge = &bridge{vertices: vertices, moveLog: moves, propLog: props, pageLimit: pageLimit, opMemoryLimit: opMemoryLimit}
	}
}

// encodeVertex renders v's current state in the bridge's wire shape.
func encodeVertex(id string, v *vertexState) store.EncodedVertex {
	props := make(map[string]store.EncodedProperty, len(v.properties))
	for k, entry := range v.properties {
		props[k] = store.EncodedProperty{Value: entry.value, OpCounter: entry.opID.Counter, OpPeerID: entry.opID.PeerID}
	}
	return store.EncodedVertex{ID: id, ParentID: v.parentID, Properties: props}
}

// promoteVertexLocked writes vertexID's current state through to the
// bridge's VertexStore, if a bridge is attached. Caller must hold e.mu.
// Errors are logged, not propagated: a failed promotion only means a
// later async read might not find the vertex yet, which is no worse
// than it never having been promoted at all.
func (e *Engine) promoteVertexLocked(vertexID string) {
	if e.bridge == nil {
		return
	}
	v := e.tree.get(vertexID)
	if v == nil {
		return
	}
	if err := e.bridge.vertices.PutVertex(context.Background(), encodeVertex(vertexID, v)); err != nil {
		e.diag.log.Sugar().Warnw("vertex promotion failed", "vertex", vertexID, "error", err)
	}
}

// writeThroughMoveLocked appends op to the bridge's move LogStore, if
// attached, then evicts the oldest resident move-log entries once
// opMemoryLimit is exceeded. Caller must hold e.mu.
func (e *Engine) writeThroughMoveLocked(op MoveOp) {
	if e.bridge == nil {
		return
	}
	if _, err := e.bridge.moveLog.Append(context.Background(), op); err != nil {
		e.diag.log.Sugar().Warnw("move write-through failed", "op", op.OpID.String(), "error", err)
		return
	}
	e.promoteVertexLocked(op.TargetID)
	if op.ParentID != nil {
		e.promoteVertexLocked(*op.ParentID)
	}
	e.evictMovesLocked()
}

// writeThroughPropLocked appends op to the bridge's property LogStore,
// if attached, then evicts the oldest resident property-log entries
// once opMemoryLimit is exceeded. Caller must hold e.mu.
func (e *Engine) writeThroughPropLocked(op SetPropertyOp) {
	if e.bridge == nil {
		return
	}
	if _, err := e.bridge.propLog.Append(context.Background(), op); err != nil {
		e.diag.log.Sugar().Warnw("property write-through failed", "op", op.OpID.String(), "error", err)
		return
	}
	e.promoteVertexLocked(op.TargetID)
	e.evictPropsLocked()
}

// evictMovesLocked drops the oldest resident move-log entries once the
// bridge's opMemoryLimit is exceeded. A transaction in progress blocks
// eviction: Transact only ever undoes ops it itself just issued, which
// sort to the newest end of the log, but leaving the whole log alone
// during a transaction keeps that invariant obviously true rather than
// merely likely. Caller must hold e.mu.
func (e *Engine) evictMovesLocked() {
	limit := e.bridge.opMemoryLimit
	if limit <= 0 || e.tx != nil {
		return
	}
	for len(e.moveLog) > limit {
		evicted := e.moveLog[0]
		e.moveLog = e.moveLog[1:]
		delete(e.parentBeforeMove, evicted.OpID)
	}
}

// evictPropsLocked is evictMovesLocked for the property log. Caller
// must hold e.mu.
func (e *Engine) evictPropsLocked() {
	limit := e.bridge.opMemoryLimit
	if limit <= 0 || e.tx != nil {
		return
	}
	for len(e.propLog) > limit {
		e.propLog = e.propLog[1:]
	}
}

// GetChildrenIdsAsync returns vertexID's children, consulting the
// resident snapshot first and falling back to the bridge's VertexStore
// only if vertexID itself is not resident (spec.md §4.5, §6).
func (e *Engine) GetChildrenIdsAsync(ctx context.Context, vertexID string) ([]string, error) {
	e.mu.Lock()
	v := e.tree.get(vertexID)
	if v != nil {
		out := make([]string, len(v.children))
		copy(out, v.children)
		e.mu.Unlock()
		return out, nil
	}
	br := e.bridge
	e.mu.Unlock()

	if br == nil {
		return nil, ErrVertexNotFound
	}
	limit := br.pageLimit
	if limit <= 0 {
		limit = 256
	}
	var out []string
	cursor := ""
	for {
		page, err := br.vertices.GetChildrenPage(ctx, vertexID, cursor, limit)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		for _, p := range page {
			out = append(out, p.ID)
			cursor = p.Cursor
		}
		if len(page) < limit {
			break
		}
	}
	return out, nil
}

// GetVertexAsync resolves vertexID from the resident snapshot, falling
// back to the bridge's VertexStore when it is unknown in memory (spec.md
// §4.5: "an implementation MAY evict... MUST be able to page it back").
func (e *Engine) GetVertexAsync(ctx context.Context, vertexID string) (*Vertex, error) {
	e.mu.Lock()
	if v := e.tree.get(vertexID); v != nil {
		snap := snapshotVertex(vertexID, v)
		e.mu.Unlock()
		return snap, nil
	}
	br := e.bridge
	e.mu.Unlock()

	if br == nil {
		return nil, ErrVertexNotFound
	}
	enc, ok, err := br.vertices.GetVertex(ctx, vertexID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrVertexNotFound
	}
	props := make(map[string]any, len(enc.Properties))
	for k, p := range enc.Properties {
		props[k] = p.Value
	}
	children, err := e.GetChildrenIdsAsync(ctx, vertexID)
	if err != nil {
		return nil, err
	}
	return &Vertex{ID: enc.ID, ParentID: enc.ParentID, Properties: props, Transient: map[string]any{}, Children: children}, nil
}

// GetMissingOpsAsync is GetMissingOps extended to also cover ops the
// in-memory log has evicted: for any peer range theirSV lacks that this
// replica's resident moveLog/propLog no longer cover, it pages the
// bridge's LogStores instead (spec.md §4.5 "async variants page the
// bridge"). If, after paging the bridge, some range theirSV needs is
// still not accounted for, it returns ErrHistoryPruned instead of a
// silently incomplete result (spec.md §4.3, §7 "History unavailable").
func (e *Engine) GetMissingOpsAsync(ctx context.Context, theirSV *StateVector) ([]Op, error) {
	e.mu.Lock()
	resident := e.missingOpsLocked(theirSV)
	sv := e.sv.Clone()
	br := e.bridge
	e.mu.Unlock()

	if br == nil {
		return resident, nil
	}

	seen := make(map[OpID]bool, len(resident))
	for _, op := range resident {
		seen[op.ID()] = true
	}

	moveLatest, err := br.moveLog.LatestSeq(ctx)
	if err != nil {
		return nil, err
	}
	extra, err := scanMissing(ctx, br.moveLog, moveLatest, func(op MoveOp) Op { return op }, theirSV, seen)
	if err != nil {
		return nil, err
	}
	resident = append(resident, extra...)

	propLatest, err := br.propLog.LatestSeq(ctx)
	if err != nil {
		return nil, err
	}
	extraProps, err := scanMissing(ctx, br.propLog, propLatest, func(op SetPropertyOp) Op { return op }, theirSV, seen)
	if err != nil {
		return nil, err
	}
	resident = append(resident, extraProps...)

	sortOpsByID(resident)

	covered := theirSV.Clone()
	for _, op := range resident {
		covered.Update(op.ID().PeerID, op.ID().Counter)
	}
	if unaccounted := sv.Diff(covered); len(unaccounted) > 0 {
		for _, mr := range unaccounted {
			e.diag.historyUnavailable(mr.PeerID, mr.Lo, mr.Hi)
		}
		return nil, ErrHistoryPruned
	}
	return resident, nil
}

func scanMissing[T any](ctx context.Context, ls store.LogStore[T], latest uint64, toOp func(T) Op, theirSV *StateVector, seen map[OpID]bool) ([]Op, error) {
	if latest == 0 {
		return nil, nil
	}
	next, closeFn, err := ls.ScanRange(ctx, store.ScanOptions{})
	if err != nil {
		return nil, err
	}
	defer closeFn()

	var out []Op
	for {
		logged, ok, err := next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		op := toOp(logged.Op)
		if seen[op.ID()] {
			continue
		}
		if theirSV.Contains(op.ID()) {
			continue
		}
		seen[op.ID()] = true
		out = append(out, op)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID().Less(out[j].ID()) })
	return out, nil
}
