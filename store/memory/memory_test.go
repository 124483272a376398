package memory

import (
	"context"
	"testing"

	"github.com/cshekharsharma/reptree/store"
)

func TestLogStore_AppendAndScanRange(t *testing.T) {
	ctx := context.Background()
	ls := NewLogStore[string](0)

	for _, s := range []string{"a", "b", "c"} {
		if _, err := ls.Append(ctx, s); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	latest, err := ls.LatestSeq(ctx)
	if err != nil || latest != 3 {
		t.Fatalf("expected LatestSeq == 3, got %d err=%v", latest, err)
	}

	next, closeFn, err := ls.ScanRange(ctx, store.ScanOptions{})
	if err != nil {
		t.Fatalf("ScanRange: %v", err)
	}
	defer closeFn()

	var got []string
	for {
		op, ok, err := next(ctx)
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if !ok {
			break
		}
		got = append(got, op.Op)
	}
	if len(got) != 3 || got[0] != "a" || got[2] != "c" {
		t.Errorf("expected [a b c] in order, got %v", got)
	}
}

func TestLogStore_ScanRangeBounds(t *testing.T) {
	ctx := context.Background()
	ls := NewLogStore[int](0)
	for i := 0; i < 5; i++ {
		ls.Append(ctx, i)
	}

	from := uint64(2)
	to := uint64(4)
	next, closeFn, err := ls.ScanRange(ctx, store.ScanOptions{From: &from, To: &to})
	if err != nil {
		t.Fatalf("ScanRange: %v", err)
	}
	defer closeFn()

	var seqs []uint64
	for {
		op, ok, _ := next(ctx)
		if !ok {
			break
		}
		seqs = append(seqs, op.Seq)
	}
	if len(seqs) != 3 || seqs[0] != 2 || seqs[2] != 4 {
		t.Errorf("expected seqs [2 3 4], got %v", seqs)
	}
}

func TestLogStore_WindowEvictionDoesNotAffectScanRange(t *testing.T) {
	ctx := context.Background()
	ls := NewLogStore[int](2) // tiny hot window

	for i := 0; i < 10; i++ {
		if _, err := ls.Append(ctx, i); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	next, closeFn, err := ls.ScanRange(ctx, store.ScanOptions{})
	if err != nil {
		t.Fatalf("ScanRange: %v", err)
	}
	defer closeFn()

	count := 0
	for {
		_, ok, _ := next(ctx)
		if !ok {
			break
		}
		count++
	}
	if count != 10 {
		t.Errorf("ScanRange must return every durable op regardless of hot-window size, got %d", count)
	}
}

func TestVertexStore_PutGetAndChildrenPage(t *testing.T) {
	ctx := context.Background()
	vs := NewVertexStore()

	root := store.EncodedVertex{ID: "root"}
	if err := vs.PutVertex(ctx, root); err != nil {
		t.Fatalf("PutVertex(root): %v", err)
	}
	for _, id := range []string{"a", "b", "c"} {
		parentID := "root"
		v := store.EncodedVertex{ID: id, ParentID: &parentID}
		if err := vs.PutVertex(ctx, v); err != nil {
			t.Fatalf("PutVertex(%s): %v", id, err)
		}
	}

	got, ok, err := vs.GetVertex(ctx, "a")
	if err != nil || !ok || got.ID != "a" {
		t.Fatalf("GetVertex(a): %+v ok=%v err=%v", got, ok, err)
	}

	page, err := vs.GetChildrenPage(ctx, "root", "", 2)
	if err != nil {
		t.Fatalf("GetChildrenPage: %v", err)
	}
	if len(page) != 2 || page[0].ID != "a" || page[1].ID != "b" {
		t.Errorf("expected first page [a b], got %v", page)
	}

	page2, err := vs.GetChildrenPage(ctx, "root", page[len(page)-1].Cursor, 2)
	if err != nil {
		t.Fatalf("GetChildrenPage(page2): %v", err)
	}
	if len(page2) != 1 || page2[0].ID != "c" {
		t.Errorf("expected second page [c], got %v", page2)
	}
}
