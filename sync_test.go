package reptree

import "testing"

func TestEngine_GetMissingOps(t *testing.T) {
	a := newTestEngine(t, "a")
	root, _ := a.CreateRoot()
	_, _ = a.NewVertex(root, nil)
	_, _ = a.NewVertex(root, nil)

	b := newTestEngine(t, "b")

	missing := a.GetMissingOps(b.GetStateVector())
	if len(missing) != len(a.GetAllOps()) {
		t.Fatalf("expected all of a's ops missing from empty b, got %d of %d", len(missing), len(a.GetAllOps()))
	}

	if err := b.Merge(missing); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if !a.CompareStructure(b) {
		t.Errorf("expected b to converge with a after merging all missing ops")
	}

	if remaining := a.GetMissingOps(b.GetStateVector()); len(remaining) != 0 {
		t.Errorf("expected nothing left missing once b has caught up, got %v", remaining)
	}
}

func TestEngine_GetMissingOpsIsSortedByOpID(t *testing.T) {
	a := newTestEngine(t, "a")
	root, _ := a.CreateRoot()
	_, _ = a.NewVertex(root, nil)
	_, _ = a.NewVertex(root, nil)

	b := newTestEngine(t, "b")
	missing := a.GetMissingOps(b.GetStateVector())
	for i := 1; i < len(missing); i++ {
		if missing[i].ID().Less(missing[i-1].ID()) {
			t.Errorf("GetMissingOps must be sorted by OpID ascending, got %v then %v", missing[i-1].ID(), missing[i].ID())
		}
	}
}

func TestEngine_MergeIsIdempotent(t *testing.T) {
	a := newTestEngine(t, "a")
	root, _ := a.CreateRoot()
	_, _ = a.NewVertex(root, nil)
	ops := a.GetAllOps()

	b := newTestEngine(t, "b")
	if err := b.Merge(ops); err != nil {
		t.Fatalf("first Merge: %v", err)
	}
	if err := b.Merge(ops); err != nil {
		t.Fatalf("second Merge: %v", err)
	}
	if !a.CompareStructure(b) {
		t.Errorf("re-merging the same ops must be a no-op, not break convergence")
	}
}
