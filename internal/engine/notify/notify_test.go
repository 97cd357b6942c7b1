package notify

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestWatcherCheckOnceFiresOnFirstObservedPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.db-wal")
	if err := os.WriteFile(path, []byte("1"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	var mu sync.Mutex
	fired := 0
	w := New([]string{path}, func() { mu.Lock(); fired++; mu.Unlock() }, nil, WithDebounce(time.Millisecond))
	w.CheckOnce()
	time.Sleep(10 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if fired != 1 {
		t.Fatalf("expected exactly 1 trigger on first observed mtime, got %d", fired)
	}
}

func TestWatcherCheckOnceIgnoresUnchangedMTime(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "signal")
	if err := os.WriteFile(path, []byte("1"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	var mu sync.Mutex
	fired := 0
	w := New([]string{path}, func() { mu.Lock(); fired++; mu.Unlock() }, nil, WithDebounce(time.Millisecond))
	w.CheckOnce()
	time.Sleep(10 * time.Millisecond)
	w.CheckOnce() // mtime unchanged: must not re-trigger
	time.Sleep(10 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if fired != 1 {
		t.Fatalf("expected 1 trigger total across two checks with no write in between, got %d", fired)
	}
}

func TestWatcherCheckOnceFiresAgainAfterWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "signal")
	if err := os.WriteFile(path, []byte("1"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	var mu sync.Mutex
	fired := 0
	w := New([]string{path}, func() { mu.Lock(); fired++; mu.Unlock() }, nil, WithDebounce(time.Millisecond))
	w.CheckOnce()
	time.Sleep(10 * time.Millisecond)

	// Bump the mtime forward explicitly; some filesystems have coarse mtime
	// resolution, so a same-millisecond rewrite can otherwise look unchanged.
	future := time.Now().Add(time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	w.CheckOnce()
	time.Sleep(10 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if fired != 2 {
		t.Fatalf("expected 2 triggers after a second observed mtime change, got %d", fired)
	}
}

func TestWatcherCheckOnceSkipsMissingPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "does-not-exist")

	fired := false
	w := New([]string{path}, func() { fired = true }, nil, WithDebounce(time.Millisecond))
	w.CheckOnce()
	time.Sleep(10 * time.Millisecond)

	if fired {
		t.Fatalf("expected no trigger for a path that does not exist")
	}
}

func TestWatcherStartStopGraceful(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.db-wal")
	if err := os.WriteFile(path, []byte("1"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	w := New([]string{path}, func() {}, nil, WithPollInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	w.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return after Stop")
	}
}

func TestWatcherDebounceCoalescesRapidChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "signal")
	if err := os.WriteFile(path, []byte("1"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	var mu sync.Mutex
	fired := 0
	w := New([]string{path}, func() { mu.Lock(); fired++; mu.Unlock() }, nil, WithDebounce(30*time.Millisecond))

	w.CheckOnce()
	// Two more observed mtime changes inside the debounce window.
	for i := 1; i <= 2; i++ {
		bumped := time.Now().Add(time.Duration(i) * time.Second)
		if err := os.Chtimes(path, bumped, bumped); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
		w.CheckOnce()
	}
	time.Sleep(60 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if fired != 1 {
		t.Fatalf("expected rapid repeated triggers within the debounce window to coalesce to 1 call, got %d", fired)
	}
}
