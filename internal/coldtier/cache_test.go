package coldtier

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// memBackend is an in-memory Backend stand-in, avoiding any real network
// dependency in the test.
type memBackend struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemBackend() *memBackend { return &memBackend{objects: make(map[string][]byte)} }

func (b *memBackend) Upload(ctx context.Context, name string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.objects[name] = data
	b.mu.Unlock()
	return nil
}

func (b *memBackend) Download(ctx context.Context, name string) (io.ReadCloser, error) {
	b.mu.Lock()
	data, ok := b.objects[name]
	b.mu.Unlock()
	if !ok {
		return nil, os.ErrNotExist
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition never became true")
}

func TestCacheUploadsAndEvicts(t *testing.T) {
	dir := t.TempDir()
	backend := newMemBackend()

	const fileSize = 100
	c, err := New(Config{Dir: dir, AvailCacheSize: fileSize, Backend: backend})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	write := func(name string) {
		if err := os.WriteFile(filepath.Join(dir, name), bytes.Repeat([]byte{'x'}, fileSize), 0o644); err != nil {
			t.Fatal(err)
		}
		c.AddNewFile(name)
	}

	write("a")
	waitFor(t, time.Second, func() bool {
		backend.mu.Lock()
		defer backend.mu.Unlock()
		_, ok := backend.objects["a"]
		return ok
	})
	waitFor(t, time.Second, func() bool {
		c.sizeMu.Lock()
		defer c.sizeMu.Unlock()
		_, ok := c.lru.Get("a")
		return ok
	})

	// A second same-size file pushes usedSize over availCacheSize, which
	// must evict "a" and delete its local copy (spec.md §4.11's
	// usedCacheSize <= availCacheSize invariant).
	write("b")
	waitFor(t, time.Second, func() bool {
		_, err := os.Stat(filepath.Join(dir, "a"))
		return os.IsNotExist(err)
	})
}

func TestOpenOldFileRestoresFromBackend(t *testing.T) {
	dir := t.TempDir()
	backend := newMemBackend()
	backend.objects["remote-only"] = []byte("restored contents")

	c, err := New(Config{Dir: dir, AvailCacheSize: 1 << 20, Backend: backend})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	rc, err := c.OpenOldFile(context.Background(), "remote-only")
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "restored contents" {
		t.Fatalf("got %q, want %q", got, "restored contents")
	}
}
