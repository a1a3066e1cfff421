package storage

import (
	"context"
	"errors"
	"io"
	"testing"
)

func writeObject(t *testing.T, b Backend, key, body string) {
	t.Helper()
	w, err := b.Create(context.Background(), key)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := io.WriteString(w, body); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestLocalBackendRoundTrip(t *testing.T) {
	b, err := NewLocalBackend(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	writeObject(t, b, "repos/2/catalog.jsonl.zst", "two")
	writeObject(t, b, "repos/1/catalog.jsonl.zst", "one")
	writeObject(t, b, "other/x", "x")

	r, err := b.Open(ctx, "repos/1/catalog.jsonl.zst")
	if err != nil {
		t.Fatal(err)
	}
	data, _ := io.ReadAll(r)
	r.Close()
	if string(data) != "one" {
		t.Fatalf("read %q", data)
	}

	keys, err := b.List(ctx, "repos/")
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 2 || keys[0] != "repos/1/catalog.jsonl.zst" || keys[1] != "repos/2/catalog.jsonl.zst" {
		t.Fatalf("keys = %v", keys)
	}
	if missing, err := b.List(ctx, "nothing"); err != nil || missing != nil {
		t.Fatalf("list of missing prefix = %v, %v", missing, err)
	}

	if err := b.Delete(ctx, "other/x"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := b.Has(ctx, "other/x"); ok {
		t.Fatal("deleted object still present")
	}
	if err := b.Delete(ctx, "other/x"); !errors.Is(err, ErrNotExist) {
		t.Fatalf("expected ErrNotExist, got %v", err)
	}
	if _, err := b.Open(ctx, "other/x"); !errors.Is(err, ErrNotExist) {
		t.Fatalf("expected ErrNotExist, got %v", err)
	}
}

func TestLocalBackendAbortKeepsPreviousObject(t *testing.T) {
	b, err := NewLocalBackend(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	writeObject(t, b, "a/b", "first")

	w, err := b.Create(ctx, "a/b")
	if err != nil {
		t.Fatal(err)
	}
	io.WriteString(w, "partial")
	if err := w.Abort(); err != nil {
		t.Fatal(err)
	}

	r, err := b.Open(ctx, "a/b")
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	data, _ := io.ReadAll(r)
	if string(data) != "first" {
		t.Fatalf("aborted write replaced object: %q", data)
	}
	keys, _ := b.List(ctx, "a")
	if len(keys) != 1 {
		t.Fatalf("temporary files visible: %v", keys)
	}
}

func TestLocalBackendRejectsEscapingKeys(t *testing.T) {
	b, err := NewLocalBackend(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if _, err := b.Create(ctx, "/"); err == nil {
		t.Fatal("expected error for empty key")
	}
	writeObject(t, b, "../../escape", "x")
	if ok, _ := b.Has(ctx, "escape"); !ok {
		t.Fatal("key was not confined to the root")
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := b.Open(cancelled, "escape"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
