// Package progress implements a minimal client-side progress reporter,
// grounded on restic/internal/ui/progress's Updater: a background ticker
// that calls back at a fixed interval and once more, with final=true, when
// stopped. cmd/client uses one to print elapsed time and byte counts while
// an upload or download is in flight.
package progress

import (
	"sync"
	"time"
)

// Updater calls report periodically until Done is called, which triggers
// one last call with final=true.
type Updater struct {
	report func(d time.Duration, final bool)
	start  time.Time
	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
}

// NewUpdater starts reporting immediately. An interval of zero disables the
// periodic ticks; only the final call on Done fires.
func NewUpdater(interval time.Duration, report func(d time.Duration, final bool)) *Updater {
	u := &Updater{
		report: report,
		start:  time.Now(),
		done:   make(chan struct{}),
	}

	if interval <= 0 {
		return u
	}

	u.ticker = time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-u.ticker.C:
				u.report(time.Since(u.start), false)
			case <-u.done:
				return
			}
		}
	}()

	return u
}

// Done stops the ticker and fires one final report. Safe to call more than
// once.
func (u *Updater) Done() {
	u.once.Do(func() {
		if u.ticker != nil {
			u.ticker.Stop()
		}
		close(u.done)
		u.report(time.Since(u.start), true)
	})
}

// ByteCounter tracks bytes transferred so far across concurrent uploader or
// downloader goroutines; Add is safe to call from any of them.
type ByteCounter struct {
	mu    sync.Mutex
	total int64
}

func (c *ByteCounter) Add(n int) {
	c.mu.Lock()
	c.total += int64(n)
	c.mu.Unlock()
}

func (c *ByteCounter) Total() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}
