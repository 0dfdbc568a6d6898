package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const reloadDocV2 = `
rules:
  - id: r2
    priority: 10
    effect: allow
    match:
      action_type: read_file
  - id: default
    priority: 0
    effect: deny
`

func writePolicy(t *testing.T, path, doc string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}
}

func startReloader(t *testing.T, path string) (*Store, chan int) {
	t.Helper()

	set, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	store := NewStore(set)

	r, err := NewReloader(store, path)
	if err != nil {
		t.Fatal(err)
	}
	swapped := make(chan int, 4)
	r.OnSwap = func(version int, hash string) { swapped <- version }

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = r.Run(ctx) }()

	// Give the watcher time to start.
	time.Sleep(100 * time.Millisecond)
	return store, swapped
}

func TestReloaderSwapsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	writePolicy(t, path, validDoc)
	store, swapped := startReloader(t, path)

	writePolicy(t, path, reloadDocV2)

	select {
	case v := <-swapped:
		if v != 2 {
			t.Fatalf("expected version 2 after swap, got %d", v)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("reload did not fire")
	}

	active := store.Active()
	if active.Version != 2 {
		t.Errorf("expected active version 2, got %d", active.Version)
	}
	if len(active.Rules) != 2 || active.Rules[0].ID != "r2" {
		t.Errorf("new rules not installed: %+v", active.Rules)
	}
}

func TestReloaderRejectsInvalidDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	writePolicy(t, path, validDoc)
	store, swapped := startReloader(t, path)
	before := store.Active()

	writePolicy(t, path, "rules:\n  - id: r2\n    effect: bogus\n")

	// Wait past the debounce window plus the reload itself.
	time.Sleep(600 * time.Millisecond)

	if store.Active() != before {
		t.Fatal("rejected document replaced the active version")
	}
	if store.Active().Version != 1 {
		t.Fatalf("expected version 1 after rejected reload, got %d", store.Active().Version)
	}

	// The watcher keeps running: a valid rewrite still swaps.
	writePolicy(t, path, reloadDocV2)
	select {
	case v := <-swapped:
		if v != 2 {
			t.Fatalf("expected version 2, got %d", v)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("reload did not recover after rejected document")
	}
}
