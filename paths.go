package reptree

import (
	"fmt"
	"sort"
	"strings"
)

// Vertex is a read-only view of one vertex's materialized state,
// returned by the Get* read APIs (spec.md §6).
type Vertex struct {
	ID         string
	ParentID   *string
	Properties map[string]any
	Transient  map[string]any
	Children   []string
}

func snapshotVertex(id string, v *vertexState) *Vertex {
	props := make(map[string]any, len(v.properties))
	for k, e := range v.properties {
		props[k] = e.value
	}
	trans := make(map[string]any, len(v.transient))
	for k, e := range v.transient {
		trans[k] = e.value
	}
	children := make([]string, len(v.children))
	copy(children, v.children)
	return &Vertex{ID: id, ParentID: v.parentID, Properties: props, Transient: trans, Children: children}
}

// GetVertex returns a snapshot of vertexID's current state.
func (e *Engine) GetVertex(vertexID string) (*Vertex, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v := e.tree.get(vertexID)
	if v == nil {
		return nil, fmt.Errorf("%w: %s", ErrVertexNotFound, vertexID)
	}
	return snapshotVertex(vertexID, v), nil
}

// GetAllVertices returns every resident vertex except the deleted-parent
// sentinel, which is present but non-enumerable via bulk traversal
// (spec.md §9 open question; see DESIGN.md).
func (e *Engine) GetAllVertices() []*Vertex {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Vertex, 0, len(e.tree.vertices))
	for id, v := range e.tree.vertices {
		if id == DeletedParentID {
			continue
		}
		out = append(out, snapshotVertex(id, v))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetChildrenIds returns vertexID's children in insertion order.
// Enumerating the sentinel's own children directly is allowed — only
// bulk traversal and path resolution treat it as absent.
func (e *Engine) GetChildrenIds(vertexID string) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v := e.tree.get(vertexID)
	if v == nil {
		return nil, fmt.Errorf("%w: %s", ErrVertexNotFound, vertexID)
	}
	out := make([]string, len(v.children))
	copy(out, v.children)
	return out, nil
}

// GetChildren returns snapshots of vertexID's children in insertion
// order.
func (e *Engine) GetChildren(vertexID string) ([]*Vertex, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v := e.tree.get(vertexID)
	if v == nil {
		return nil, fmt.Errorf("%w: %s", ErrVertexNotFound, vertexID)
	}
	out := make([]*Vertex, 0, len(v.children))
	for _, id := range v.children {
		out = append(out, snapshotVertex(id, e.tree.get(id)))
	}
	return out, nil
}

// GetParent returns vertexID's parent id. ok is false if vertexID is at
// root level (nil parent) or unknown.
func (e *Engine) GetParent(vertexID string) (parentID string, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v := e.tree.get(vertexID)
	if v == nil || v.parentID == nil {
		return "", false
	}
	return *v.parentID, true
}

// GetAncestors returns vertexID's ancestor chain, nearest first, up to
// (but not including) a nil parent.
func (e *Engine) GetAncestors(vertexID string) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.tree.hasVertex(vertexID) {
		return nil, fmt.Errorf("%w: %s", ErrVertexNotFound, vertexID)
	}
	var out []string
	visited := map[string]bool{vertexID: true}
	cur := vertexID
	for {
		v := e.tree.get(cur)
		if v == nil || v.parentID == nil {
			return out, nil
		}
		if visited[*v.parentID] {
			e.diag.corruptionSignal(*v.parentID)
			return out, nil
		}
		visited[*v.parentID] = true
		out = append(out, *v.parentID)
		cur = *v.parentID
	}
}

// GetVertexByPath resolves a slash-separated path of vertex "name"
// property values, starting from the root (spec.md §6). The sentinel
// subtree is unreachable this way because it is never a child of root.
func (e *Engine) GetVertexByPath(path string) (*Vertex, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.rootID == nil {
		return nil, ErrNoRoot
	}
	cur := *e.rootID
	path = strings.Trim(path, "/")
	if path == "" {
		return snapshotVertex(cur, e.tree.get(cur)), nil
	}
	for _, segment := range strings.Split(path, "/") {
		v := e.tree.get(cur)
		next := ""
		found := false
		for _, childID := range v.children {
			child := e.tree.get(childID)
			if name, ok := child.properties["name"]; ok {
				if s, isStr := name.value.(string); isStr && s == segment {
					next = childID
					found = true
					break
				}
			}
		}
		if !found {
			return nil, fmt.Errorf("%w: path segment %q", ErrVertexNotFound, segment)
		}
		cur = next
	}
	return snapshotVertex(cur, e.tree.get(cur)), nil
}

// CompareStructure reports whether e and other share the same root id
// and an identical recursive {parent, children, persistent-property}
// view for every vertex (spec.md §3 invariant 5, §8 "Convergence").
func (e *Engine) CompareStructure(other *Engine) bool {
	e.mu.Lock()
	other.mu.Lock()
	defer e.mu.Unlock()
	defer other.mu.Unlock()

	if !equalRootID(e.rootID, other.rootID) {
		return false
	}
	if len(e.tree.vertices) != len(other.tree.vertices) {
		return false
	}
	for id, v := range e.tree.vertices {
		ov, ok := other.tree.vertices[id]
		if !ok {
			return false
		}
		if !equalRootID(v.parentID, ov.parentID) {
			return false
		}
		if !equalStringSlices(v.children, ov.children) {
			return false
		}
		if len(v.properties) != len(ov.properties) {
			return false
		}
		for k, entry := range v.properties {
			oe, ok := ov.properties[k]
			if !ok || !valuesEqual(entry.value, oe.value) {
				return false
			}
		}
	}
	return true
}

// CompareMoveOps reports whether e and other have applied the exact
// same sequence of move OpIDs, independent of their materialized
// structure (spec.md §8).
func (e *Engine) CompareMoveOps(other *Engine) bool {
	e.mu.Lock()
	other.mu.Lock()
	defer e.mu.Unlock()
	defer other.mu.Unlock()

	if len(e.moveLog) != len(other.moveLog) {
		return false
	}
	for i, op := range e.moveLog {
		if !op.OpID.Equal(other.moveLog[i].OpID) {
			return false
		}
	}
	return true
}

func equalRootID(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalStringSlices(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]int, len(a))
	for _, s := range a {
		seen[s]++
	}
	for _, s := range b {
		seen[s]--
	}
	for _, n := range seen {
		if n != 0 {
			return false
		}
	}
	return true
}

// valuesEqual does a structural comparison suitable for the JSON-like
// value domain ValidateValue accepts.
func valuesEqual(a, b any) bool {
	switch av := a.(type) {
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !valuesEqual(av[i], bv[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			ov, ok := bv[k]
			if !ok || !valuesEqual(v, ov) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}
