// Package coldtier (cache.go) implements the cache and its two background
// workers from spec.md §4.11: a storer that drains a pending-upload queue
// and then hands each uploaded file to the "recently used" list, and a
// cache updater that applies that list to an LRU bimap, evicting local
// files once usedCacheSize exceeds availCacheSize.
//
// The local-directory-as-write-back-cache shape and its size-bounded LRU
// eviction are grounded on restic's internal/cache package (cache.go,
// file.go): a local cache directory fronting a remote repository, evicted
// by restic's own bookkeeping rather than the OS. golang-lru/v2 here plays
// the same generic-LRU role restic's internal/bloblru and internal/restore's
// container LRU both use, just keyed by short name and evicted on total
// byte size instead of entry count.
package coldtier

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/chintran27/cdstore-go/internal/cdserrors"
)

// maxTrackedFiles bounds the LRU's entry count; eviction in this cache is
// actually driven by usedCacheSize vs availCacheSize (see evictLocked), so
// this only needs to be large enough to never be the binding constraint.
const maxTrackedFiles = 1 << 20

// Config configures a new Cache.
type Config struct {
	// Dir is the local write-back cache directory.
	Dir string
	// AvailCacheSize is the byte budget the cache updater evicts down to.
	AvailCacheSize int64
	// Backend is the pluggable remote object store.
	Backend Backend
}

// Cache is the local write-back cache over Backend (spec.md §4.11).
type Cache struct {
	dir            string
	backend        Backend
	availCacheSize int64

	sizeMu   sync.Mutex
	usedSize int64
	lru      *lru.Cache[string, int64]

	pendingMu   sync.Mutex
	pendingCond *sync.Cond
	pending     []string
	pendingDone bool

	recentMu   sync.Mutex
	recentCond *sync.Cond
	recent     []string
	recentDone bool
}

// New creates the cache directory if absent and starts the two background
// workers (spec.md §4.11: "two background workers").
func New(cfg Config) (*Cache, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, cdserrors.Wrap(cdserrors.KindIO, err, "coldtier: creating cache directory")
	}

	c := &Cache{
		dir:            cfg.Dir,
		backend:        cfg.Backend,
		availCacheSize: cfg.AvailCacheSize,
	}
	c.pendingCond = sync.NewCond(&c.pendingMu)
	c.recentCond = sync.NewCond(&c.recentMu)

	lruCache, err := lru.NewWithEvict[string, int64](maxTrackedFiles, c.onEvict)
	if err != nil {
		return nil, cdserrors.Wrap(cdserrors.KindFatal, err, "coldtier: creating LRU")
	}
	c.lru = lruCache

	go c.storerLoop()
	go c.cacheUpdaterLoop()

	return c, nil
}

// Close signals both background workers to drain and stop.
func (c *Cache) Close() {
	c.pendingMu.Lock()
	c.pendingDone = true
	c.pendingCond.Broadcast()
	c.pendingMu.Unlock()

	c.recentMu.Lock()
	c.recentDone = true
	c.recentCond.Broadcast()
	c.recentMu.Unlock()
}

func (c *Cache) localPath(shortName string) string {
	return filepath.Join(c.dir, shortName)
}

// AddNewFile enqueues shortName for asynchronous upload to the backend
// (spec.md §4.11). The file remains locally until space pressure evicts it.
func (c *Cache) AddNewFile(shortName string) {
	c.pendingMu.Lock()
	c.pending = append(c.pending, shortName)
	c.pendingCond.Signal()
	c.pendingMu.Unlock()
}

// storerLoop drains the pending-upload queue, then converts each stored
// file into a "recently used" entry (spec.md §4.11).
func (c *Cache) storerLoop() {
	for {
		c.pendingMu.Lock()
		for len(c.pending) == 0 && !c.pendingDone {
			c.pendingCond.Wait()
		}
		if len(c.pending) == 0 && c.pendingDone {
			c.pendingMu.Unlock()
			return
		}
		name := c.pending[0]
		c.pending = c.pending[1:]
		c.pendingMu.Unlock()

		if err := c.upload(name); err != nil {
			continue
		}

		c.recentMu.Lock()
		c.recent = append(c.recent, name)
		c.recentCond.Signal()
		c.recentMu.Unlock()
	}
}

func (c *Cache) upload(shortName string) error {
	f, err := os.Open(c.localPath(shortName))
	if err != nil {
		return cdserrors.Wrap(cdserrors.KindIO, err, "coldtier: opening local file to upload")
	}
	defer f.Close()
	return c.backend.Upload(context.Background(), shortName, f)
}

// cacheUpdaterLoop applies the recently-used list to the LRU bimap,
// evicting least-recent entries whenever usedCacheSize exceeds
// availCacheSize (spec.md §4.11).
func (c *Cache) cacheUpdaterLoop() {
	for {
		c.recentMu.Lock()
		for len(c.recent) == 0 && !c.recentDone {
			c.recentCond.Wait()
		}
		if len(c.recent) == 0 && c.recentDone {
			c.recentMu.Unlock()
			return
		}
		name := c.recent[0]
		c.recent = c.recent[1:]
		c.recentMu.Unlock()

		c.promote(name)
	}
}

// promote inserts or refreshes name as most-recently-used and evicts down
// to availCacheSize if needed.
func (c *Cache) promote(shortName string) {
	size, err := fileSize(c.localPath(shortName))
	if err != nil {
		return
	}

	c.sizeMu.Lock()
	if _, ok := c.lru.Get(shortName); !ok {
		c.lru.Add(shortName, size)
		c.usedSize += size
	}
	c.evictLocked()
	c.sizeMu.Unlock()
}

// evictLocked must be called with sizeMu held. It evicts least-recently-used
// entries until usedSize <= availCacheSize (the invariant in spec.md §3:
// "availCacheSize >= usedCacheSize is maintained eventually").
func (c *Cache) evictLocked() {
	for c.usedSize > c.availCacheSize && c.lru.Len() > 0 {
		if _, _, ok := c.lru.RemoveOldest(); !ok {
			return
		}
	}
}

// onEvict is the LRU's eviction callback: delete the local file and shrink
// usedSize. Called with sizeMu already held (from evictLocked).
func (c *Cache) onEvict(shortName string, size int64) {
	_ = os.Remove(c.localPath(shortName))
	c.usedSize -= size
}

// OpenOldFile opens shortName locally if present; otherwise restores it
// from the backend, accounting its size against the cache budget and
// enqueueing it into the recently-used list (spec.md §4.11).
func (c *Cache) OpenOldFile(ctx context.Context, shortName string) (io.ReadCloser, error) {
	path := c.localPath(shortName)
	if f, err := os.Open(path); err == nil {
		c.recentMu.Lock()
		c.recent = append(c.recent, shortName)
		c.recentCond.Signal()
		c.recentMu.Unlock()
		return f, nil
	}

	stream, err := c.backend.Download(ctx, shortName)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	tmp, err := os.Create(path)
	if err != nil {
		return nil, cdserrors.Wrap(cdserrors.KindIO, err, "coldtier: creating restored local file")
	}
	if _, err := io.Copy(tmp, stream); err != nil {
		_ = tmp.Close()
		return nil, cdserrors.Wrap(cdserrors.KindIO, err, "coldtier: writing restored local file")
	}
	if err := tmp.Close(); err != nil {
		return nil, cdserrors.Wrap(cdserrors.KindIO, err, "coldtier: closing restored local file")
	}

	c.recentMu.Lock()
	c.recent = append(c.recent, shortName)
	c.recentCond.Signal()
	c.recentMu.Unlock()

	return os.Open(path)
}

func fileSize(path string) (int64, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, cdserrors.Wrap(cdserrors.KindIO, err, "coldtier: statting local file")
	}
	return fi.Size(), nil
}
