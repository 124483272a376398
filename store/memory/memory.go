// Package memory is a reference implementation of the store.VertexStore
// and store.LogStore bridge contracts (spec.md §4.5), suitable for
// tests and for demonstrating the engine's async paging helpers without
// a real database.
//
// Durability here is "in the process" rather than "on disk" — the
// backing slice is the source of truth and holds every appended op. The
// optional bounded LRU window in front of it is a read path, not a
// memory bound: the same "check cache, fall back to source" shape
// poxiaoyun-common/cache/inmemory uses, applied here to ScanRange.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/cshekharsharma/reptree/store"
)

// LogStore is an in-memory, append-only store.LogStore[T] with an
// optional bounded hot window: an LRU cache of at most windowSize ops,
// filled on Append, in front of an append-only slice that holds the
// full durable history. ScanRange reads from the cache when every
// requested op is cached and from the slice otherwise.
type LogStore[T any] struct {
	mu     sync.RWMutex
	all    []store.LoggedOp[T]
	window *lru.Cache[uint64, T]
}

// NewLogStore returns a LogStore whose hot window holds at most
// windowSize ops. windowSize <= 0 means no hot window at all: ScanRange
// then always reads the durable slice.
func NewLogStore[T any](windowSize int) *LogStore[T] {
	ls := &LogStore[T]{}
	if windowSize > 0 {
		c, err := lru.New[uint64, T](windowSize)
		if err != nil {
			panic(fmt.Sprintf("memory.NewLogStore: %v", err)) // only fails for windowSize<=0
		}
		ls.window = c
	}
	return ls
}

func (ls *LogStore[T]) Append(_ context.Context, op T) (uint64, error) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	seq := uint64(len(ls.all)) + 1
	ls.all = append(ls.all, store.LoggedOp[T]{Seq: seq, Op: op})
	if ls.window != nil {
		ls.window.Add(seq, op)
	}
	return seq, nil
}

func (ls *LogStore[T]) LatestSeq(_ context.Context) (uint64, error) {
	ls.mu.RLock()
	defer ls.mu.RUnlock()
	return uint64(len(ls.all)), nil
}

// rangeResidentInWindow reports whether every sequence number in
// [from,to] is currently cached in the hot window, without touching
// the durable slice. Used by ScanRange to decide whether it can skip
// straight to the LRU cache instead of copying ls.all.
func (ls *LogStore[T]) rangeResidentInWindow(from, to uint64) bool {
	if ls.window == nil || from > to {
		return false
	}
	for seq := from; seq <= to; seq++ {
		if !ls.window.Contains(seq) {
			return false
		}
	}
	return true
}

// ScanRange serves a requested range straight from the hot window when
// every sequence number in it is still cache-resident, and otherwise
// falls back to the durable slice (spec.md §4.5). Either path returns
// results in the same logical order: the window is only ever a
// residency hint for which source to read from, never a second source
// of truth that could disagree with ls.all.
func (ls *LogStore[T]) ScanRange(_ context.Context, opts store.ScanOptions) (func(ctx context.Context) (store.LoggedOp[T], bool, error), func() error, error) {
	ls.mu.RLock()
	latest := uint64(len(ls.all))
	from := uint64(1)
	if opts.From != nil {
		from = *opts.From
	}
	to := latest
	if opts.To != nil && *opts.To < to {
		to = *opts.To
	}

	var filtered []store.LoggedOp[T]
	if from <= to && ls.rangeResidentInWindow(from, to) {
		filtered = make([]store.LoggedOp[T], 0, to-from+1)
		for seq := from; seq <= to; seq++ {
			op, _ := ls.window.Get(seq)
			filtered = append(filtered, store.LoggedOp[T]{Seq: seq, Op: op})
		}
		ls.mu.RUnlock()
	} else {
		snapshot := make([]store.LoggedOp[T], len(ls.all))
		copy(snapshot, ls.all)
		ls.mu.RUnlock()

		filtered = snapshot[:0:0]
		for _, lo := range snapshot {
			if lo.Seq >= from && lo.Seq <= to {
				filtered = append(filtered, lo)
			}
		}
	}
	if opts.Reverse {
		sort.SliceStable(filtered, func(i, j int) bool { return filtered[i].Seq > filtered[j].Seq })
	}
	if opts.Limit > 0 && len(filtered) > opts.Limit {
		filtered = filtered[:opts.Limit]
	}

	idx := 0
	next := func(_ context.Context) (store.LoggedOp[T], bool, error) {
		if idx >= len(filtered) {
			var zero store.LoggedOp[T]
			return zero, false, nil
		}
		op := filtered[idx]
		idx++
		return op, true, nil
	}
	closeFn := func() error { idx = len(filtered); return nil }
	return next, closeFn, nil
}

// VertexStore is an in-memory store.VertexStore, with children listed
// in insertion order for stable paging.
type VertexStore struct {
	mu       sync.RWMutex
	vertices map[string]store.EncodedVertex
	children map[string][]string // parentID -> child ids in insertion order
}

// NewVertexStore returns an empty VertexStore.
func NewVertexStore() *VertexStore {
	return &VertexStore{
		vertices: make(map[string]store.EncodedVertex),
		children: make(map[string][]string),
	}
}

func (vs *VertexStore) GetVertex(_ context.Context, id string) (store.EncodedVertex, bool, error) {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	v, ok := vs.vertices[id]
	return v, ok, nil
}

func (vs *VertexStore) PutVertex(_ context.Context, v store.EncodedVertex) error {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	_, existed := vs.vertices[v.ID]
	vs.vertices[v.ID] = v
	if !existed && v.ParentID != nil {
		vs.children[*v.ParentID] = append(vs.children[*v.ParentID], v.ID)
	}
	return nil
}

func (vs *VertexStore) GetChildrenPage(_ context.Context, parentID string, afterCursor string, limit int) ([]store.ChildPage, error) {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	ids := vs.children[parentID]

	start := 0
	if afterCursor != "" {
		for i, id := range ids {
			if id == afterCursor {
				start = i + 1
				break
			}
		}
	}
	end := len(ids)
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	if start >= end {
		return nil, nil
	}
	out := make([]store.ChildPage, 0, end-start)
	for _, id := range ids[start:end] {
		out = append(out, store.ChildPage{ID: id, Cursor: id})
	}
	return out, nil
}
