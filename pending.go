package reptree

// pendingQueues holds the two causal-deferral buffers spec.md §2/§4.1/
// §4.2 describe: one keyed by a missing parent id (for moves), one
// keyed by a missing target id (for property writes).
//
// The shape is the teacher's rga.go pendingOrphans pattern
// (map[ID][]Node, drained recursively by processNode once the awaited
// id appears) generalized from a single text sequence's causal buffer
// to the engine's two independent dependency kinds.
type pendingQueues struct {
	moves map[string][]MoveOp          // keyed by missing parent id
	props map[string][]SetPropertyOp   // keyed by missing target id
}

func newPendingQueues() *pendingQueues {
	return &pendingQueues{
		moves: make(map[string][]MoveOp),
		props: make(map[string][]SetPropertyOp),
	}
}

func (p *pendingQueues) parkMove(parentID string, op MoveOp) {
	p.moves[parentID] = append(p.moves[parentID], op)
}

func (p *pendingQueues) parkProp(targetID string, op SetPropertyOp) {
	p.props[targetID] = append(p.props[targetID], op)
}

// drainMoves removes and returns every move parked on vertexID becoming
// a valid parent, in arrival order.
func (p *pendingQueues) drainMoves(vertexID string) []MoveOp {
	ops := p.moves[vertexID]
	delete(p.moves, vertexID)
	return ops
}

// drainProps removes and returns every property write parked on
// vertexID becoming a valid target, in arrival order.
func (p *pendingQueues) drainProps(vertexID string) []SetPropertyOp {
	ops := p.props[vertexID]
	delete(p.props, vertexID)
	return ops
}
