// Package reptree implements a replicated, tree-structured data store
// with conflict-free concurrent editing across peers: the Kleppmann
// move-tree CRDT for structure, a last-writer-wins store for
// properties, and the causality bookkeeping (Lamport counters, a
// range-based state vector) needed to compute the minimal set of
// operations one replica must send another.
//
// Every replica holds an independent Engine. Peers exchange Move and
// SetProperty operations via Merge; regardless of delivery order,
// replicas that have seen the same set of operations converge to
// identical tree structure and property values.
package reptree

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Engine is one replica of a replicated tree. It owns the snapshot, the
// move and property logs, the pending queues, the state vector, and the
// Lamport counter; external collaborators only observe its emitted
// events and submit ops through Merge (spec.md §3 "Ownership").
//
// All exported methods serialize through mu: spec.md §5 requires a
// single logical task per replica, and this is the "lock" an
// implementation that exposes threads must provide.
type Engine struct {
	mu sync.Mutex

	peerID string
	clock  *LamportClock
	tree   *TreeState

	moveLog []MoveOp
	propLog []SetPropertyOp
	sv      *StateVector

	pending          *pendingQueues
	parentBeforeMove map[OpID]priorParent

	outgoing []Op // local ops not yet returned by PopLocalOps

	rootID   *string
	reserved map[string]bool
	diag     diagnostics

	bridge *bridge // nil unless WithStore was supplied

	tx *txState // non-nil while inside Transact
}

// EngineOption configures an Engine at construction time, following the
// functional-options shape edirooss-zmux-server uses for its client
// constructors.
type EngineOption func(*Engine)

// WithLogger attaches a *zap.Logger for diagnostics (spec.md §7). The
// default is a no-op logger.
func WithLogger(log *zap.Logger) EngineOption {
	return func(e *Engine) { e.diag = newDiagnostics(log) }
}

// WithReservedTimestampKeys overrides the default
// ReservedTimestampKeys set used to validate ISO-8601 string values.
func WithReservedTimestampKeys(keys map[string]bool) EngineOption {
	return func(e *Engine) { e.reserved = keys }
}

// New constructs an empty replica identified by peerID. If peerID is
// empty, a fresh UUID is generated (matching how edirooss-zmux-server
// and poxiaoyun-common mint identity with google/uuid). initialOps, if
// non-nil, is merged immediately — the same path Replicate uses to seed
// a new peer from another replica's full history.
func New(peerID string, initialOps []Op, opts ...EngineOption) (*Engine, error) {
	if peerID == "" {
		peerID = uuid.NewString()
	}
	e := &Engine{
		peerID:           peerID,
		clock:            NewLamportClock(),
		tree:             NewTreeState(),
		sv:               NewStateVector(),
		pending:          newPendingQueues(),
		parentBeforeMove: make(map[OpID]priorParent),
		reserved:         ReservedTimestampKeys,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.diag.log == nil {
		e.diag = newDiagnostics(nil)
	}
	if len(initialOps) > 0 {
		if err := e.Merge(initialOps); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// PeerID returns this replica's identity.
func (e *Engine) PeerID() string { return e.peerID }

// Replicate builds a fresh Engine identified by newPeerID, seeded with
// every op GetAllOps returns (spec.md §6).
func (e *Engine) Replicate(newPeerID string, opts ...EngineOption) (*Engine, error) {
	ops := e.GetAllOps()
	return New(newPeerID, ops, opts...)
}

// CreateRoot designates a new root vertex and returns its id. Fails if
// a root already exists (spec.md §4.1, §7).
func (e *Engine) CreateRoot() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.rootID != nil {
		return "", ErrRootAlreadyExists
	}
	id := uuid.NewString()
	op := MoveOp{OpID: e.nextLocalOpID(), TargetID: id, ParentID: nil}
	e.recordLocal(op)
	e.applyMoveLocked(op)
	e.rootID = strPtr(id)
	return id, nil
}

// NewVertex creates a fresh vertex under parentID with the given
// persistent properties (may be nil/empty) and returns its id. Fails if
// parentID does not exist in the snapshot (spec.md §4.1: a local
// creation call fails synchronously, unlike a remote Move which would
// park).
func (e *Engine) NewVertex(parentID string, props map[string]any) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.newVertexLocked(parentID, "", props)
}

// NewNamedVertex is NewVertex with the conventional "name" property set
// in the same batch, so a racing reader never observes the vertex
// before it has a name (SPEC_FULL §D).
func (e *Engine) NewNamedVertex(parentID, name string, props map[string]any) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.newVertexLocked(parentID, name, props)
}

func (e *Engine) newVertexLocked(parentID, name string, props map[string]any) (string, error) {
	if !e.tree.hasVertex(parentID) {
		return "", fmt.Errorf("%w: %s", ErrUnknownParent, parentID)
	}
	id := uuid.NewString()
	moveOp := MoveOp{OpID: e.nextLocalOpID(), TargetID: id, ParentID: strPtr(parentID)}
	e.recordLocal(moveOp)
	e.applyMoveLocked(moveOp)

	if name != "" {
		if err := e.setPropertyLocked(id, "name", name, false); err != nil {
			return "", err
		}
	}
	for k, v := range props {
		if err := e.setPropertyLocked(id, k, v, false); err != nil {
			return "", err
		}
	}
	return id, nil
}

// Move issues a Move op placing vertexID under parentID (spec.md §4.1).
// A local Move against a cycle-inducing parent is silently ignored by
// the conflict engine, as it would be for any peer (spec.md §4.1, §7).
func (e *Engine) Move(vertexID, parentID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var parent *string
	if parentID != "" {
		parent = strPtr(parentID)
	}
	op := MoveOp{OpID: e.nextLocalOpID(), TargetID: vertexID, ParentID: parent}
	e.recordLocal(op)
	e.applyMoveLocked(op)
	return nil
}

// Delete moves vertexID under the deleted-parent sentinel (spec.md §3,
// §4.1). Children remain attached and are dragged into the deleted
// subtree.
func (e *Engine) Delete(vertexID string) error {
	return e.Move(vertexID, DeletedParentID)
}

// nextLocalOpID advances the Lamport clock and returns the OpID for the
// next locally originated operation. Caller must hold e.mu.
func (e *Engine) nextLocalOpID() OpID {
	return OpID{Counter: e.clock.Next(), PeerID: e.peerID}
}

// recordLocal appends op to the outgoing queue (and, if inside a
// transaction, to its buffer) so PopLocalOps and Transact's abort path
// can find it later. Caller must hold e.mu.
func (e *Engine) recordLocal(op Op) {
	e.outgoing = append(e.outgoing, op)
	if e.tx != nil {
		e.tx.issued = append(e.tx.issued, op)
	}
}

// PopLocalOps returns and clears the queue of locally originated ops not
// yet retrieved (spec.md §6).
func (e *Engine) PopLocalOps() []Op {
	e.mu.Lock()
	defer e.mu.Unlock()
	ops := e.outgoing
	e.outgoing = nil
	return ops
}

// GetAllOps returns every persistent op still resident in this
// replica's move and property logs, interleaved in OpID order. Ops
// evicted by a WithStore bridge's opMemoryLimit are not included.
// Transient SetProperty ops are never included (spec.md §8 "Transient
// isolation").
func (e *Engine) GetAllOps() []Op {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Op, 0, len(e.moveLog)+len(e.propLog))
	for _, op := range e.moveLog {
		out = append(out, op)
	}
	for _, op := range e.propLog {
		out = append(out, op)
	}
	sortOpsByID(out)
	return out
}

// GetStateVector returns a snapshot of this replica's state vector.
func (e *Engine) GetStateVector() *StateVector {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sv.Clone()
}

// ObserveVertexMove registers cb for every EventMove concerning
// vertexID, ignoring property and children events on the same vertex
// (spec.md §9 "observe_vertex_move"). Returns a Disposer.
func (e *Engine) ObserveVertexMove(vertexID string, cb func(Event)) Disposer {
	return e.tree.Observe(vertexID, func(ev Event) {
		if ev.Kind == EventMove {
			cb(ev)
		}
	})
}

// ObserveOpApplied registers cb for every event the engine emits,
// regardless of vertex or kind (spec.md §9 "observe_op_applied").
// Returns a Disposer.
func (e *Engine) ObserveOpApplied(cb func(Event)) Disposer {
	return e.tree.ObserveAll(cb)
}
