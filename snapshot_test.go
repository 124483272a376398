package reptree

import "testing"

func TestTreeState_SeededWithSentinel(t *testing.T) {
	ts := NewTreeState()
	if !ts.hasVertex(DeletedParentID) {
		t.Errorf("expected sentinel vertex %q to be seeded", DeletedParentID)
	}
}

func TestTreeState_ObserveAndDispose(t *testing.T) {
	ts := NewTreeState()
	var received []Event
	dispose := ts.Observe("v1", func(ev Event) { received = append(received, ev) })

	ts.emit(Event{Kind: EventProperty, VertexID: "v1", Key: "k", Value: "v"})
	if len(received) != 1 {
		t.Fatalf("expected 1 event, got %d", len(received))
	}

	dispose()
	ts.emit(Event{Kind: EventProperty, VertexID: "v1", Key: "k", Value: "v2"})
	if len(received) != 1 {
		t.Errorf("expected disposed observer to stop receiving events, got %d", len(received))
	}
}

func TestTreeState_ObserveAllReceivesEverything(t *testing.T) {
	ts := NewTreeState()
	count := 0
	ts.ObserveAll(func(Event) { count++ })

	ts.emit(Event{Kind: EventMove, VertexID: "a"})
	ts.emit(Event{Kind: EventProperty, VertexID: "b"})
	if count != 2 {
		t.Errorf("expected global observer to see both events, got %d", count)
	}
}

func TestEngine_ObserveVertexMoveFiltersKind(t *testing.T) {
	e := newTestEngine(t, "p1")
	root, _ := e.CreateRoot()
	child, _ := e.NewVertex(root, map[string]any{"name": "x"})

	var moveEvents int
	dispose := e.ObserveVertexMove(child, func(Event) { moveEvents++ })
	defer dispose()

	if err := e.SetProperty(child, "name", "y"); err != nil {
		t.Fatalf("SetProperty: %v", err)
	}
	if moveEvents != 0 {
		t.Errorf("ObserveVertexMove must not fire for property events, got %d", moveEvents)
	}

	if err := e.Move(child, DeletedParentID); err != nil {
		t.Fatalf("Move: %v", err)
	}
	if moveEvents != 1 {
		t.Errorf("expected exactly one move event, got %d", moveEvents)
	}
}

func TestEngine_ObserveOpAppliedSeesAllKinds(t *testing.T) {
	e := newTestEngine(t, "p1")
	var kinds []EventKind
	dispose := e.ObserveOpApplied(func(ev Event) { kinds = append(kinds, ev.Kind) })
	defer dispose()

	root, _ := e.CreateRoot()
	_ = e.SetProperty(root, "title", "Home")

	sawMove, sawProperty := false, false
	for _, k := range kinds {
		if k == EventMove {
			sawMove = true
		}
		if k == EventProperty {
			sawProperty = true
		}
	}
	if !sawMove || !sawProperty {
		t.Errorf("expected ObserveOpApplied to see both move and property events, got %v", kinds)
	}
}
