package storage

import (
	"context"
	stderrors "errors"
	"testing"
)

func TestLocalStorage_PutGet(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}
	ctx := context.Background()

	objectPath := "reports/sweep-1-10.md"
	content := []byte("# F(1-10) Sweep\n")
	if err := store.Put(ctx, objectPath, content, "text/markdown"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	exists, err := store.Exists(ctx, objectPath)
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if !exists {
		t.Error("expected object to exist")
	}

	got, err := store.Get(ctx, objectPath)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content mismatch: got %q, want %q", got, content)
	}

	if err := store.Delete(ctx, objectPath); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	exists, _ = store.Exists(ctx, objectPath)
	if exists {
		t.Error("expected object to not exist after delete")
	}
	if err := store.Delete(ctx, objectPath); err != nil {
		t.Errorf("deleting a missing object should succeed, got %v", err)
	}
}

func TestLocalStorage_PutReplaces(t *testing.T) {
	store, _ := NewLocalStorage(t.TempDir())
	ctx := context.Background()

	store.Put(ctx, "a.md", []byte("first"), "")
	if err := store.Put(ctx, "a.md", []byte("second"), ""); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	got, _ := store.Get(ctx, "a.md")
	if string(got) != "second" {
		t.Errorf("expected replaced content, got %q", got)
	}
}

func TestLocalStorage_GetNotFound(t *testing.T) {
	store, _ := NewLocalStorage(t.TempDir())

	_, err := store.Get(context.Background(), "missing.md")
	if !stderrors.Is(err, ErrObjectNotFound) {
		t.Errorf("expected ErrObjectNotFound, got %v", err)
	}
}

func TestLocalStorage_ListObjects(t *testing.T) {
	store, _ := NewLocalStorage(t.TempDir())
	ctx := context.Background()

	for _, p := range []string{"reports/b.md", "reports/a.md", "other/c.md"} {
		if err := store.Put(ctx, p, []byte(p), ""); err != nil {
			t.Fatalf("Put %s failed: %v", p, err)
		}
	}

	objects, err := store.ListObjects(ctx, "reports/")
	if err != nil {
		t.Fatalf("ListObjects failed: %v", err)
	}
	if len(objects) != 2 || objects[0] != "reports/a.md" || objects[1] != "reports/b.md" {
		t.Errorf("unexpected listing %v", objects)
	}

	all, _ := store.ListObjects(ctx, "")
	if len(all) != 3 {
		t.Errorf("expected 3 objects, got %v", all)
	}
}

func TestLocalStorage_RejectsEscapingPaths(t *testing.T) {
	store, _ := NewLocalStorage(t.TempDir())
	ctx := context.Background()

	for _, p := range []string{"", "../outside.md", "/etc/passwd"} {
		if err := store.Put(ctx, p, []byte("x"), ""); !stderrors.Is(err, ErrInvalidPath) {
			t.Errorf("Put(%q): expected ErrInvalidPath, got %v", p, err)
		}
	}
}

func TestLocalStorage_CancelledContext(t *testing.T) {
	store, _ := NewLocalStorage(t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := store.Put(ctx, "a.md", []byte("x"), ""); err == nil {
		t.Error("expected Put to fail on a cancelled context")
	}
}
