// Package fscache implements the memoized exists/mtime lookups described
// in spec.md §4.1 (C1). It bounds stat syscalls to one per path per
// pipeline invocation: state computation visits every output of every
// run, so without memoization the stat load is O(runs × outputs).
package fscache

import (
	"os"
	"sync"
	"time"
)

type entry struct {
	exists bool
	mtime  time.Time
}

// Cache is a process-local memo of filesystem stat results. A mutex
// guards every access, so it is safe for concurrent use across
// goroutines.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
}

// New returns an empty cache, scoped to a single pipeline invocation.
func New() *Cache {
	return &Cache{entries: make(map[string]entry)}
}

// Exists reports whether path exists, consulting (and populating) the
// memo.
func (c *Cache) Exists(path string) bool {
	e := c.lookup(path)
	return e.exists
}

// Mtime returns the modification time of path and whether it exists.
func (c *Cache) Mtime(path string) (time.Time, bool) {
	e := c.lookup(path)
	return e.mtime, e.exists
}

func (c *Cache) lookup(path string) entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[path]; ok {
		return e
	}
	e := statEntry(path)
	c.entries[path] = e
	return e
}

func statEntry(path string) entry {
	info, err := os.Stat(path)
	if err != nil {
		return entry{}
	}
	return entry{exists: true, mtime: info.ModTime()}
}

// Invalidate evicts path from the memo. The engine calls this after any
// write it performs itself (output publication, ping write, annotation
// write) so a subsequent read observes the write.
func (c *Cache) Invalidate(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, path)
}

// DryRun is the virtual path -> timestamp map substituted for all fsc
// calls in dry-run mode (spec.md §4.5). Executing a task in dry-run
// stamps every declared output with the current virtual clock so that
// downstream state computations see the planned reality.
type DryRun struct {
	mu    sync.Mutex
	clock map[string]time.Time
	now   time.Time
}

// NewDryRun returns a dry-run cache seeded at the given virtual time.
func NewDryRun(now time.Time) *DryRun {
	return &DryRun{clock: make(map[string]time.Time), now: now}
}

// Exists reports whether path has been stamped.
func (d *DryRun) Exists(path string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.clock[path]
	return ok
}

// Mtime returns the virtual stamp for path.
func (d *DryRun) Mtime(path string) (time.Time, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.clock[path]
	return t, ok
}

// Stamp records path as existing as of the current virtual clock tick,
// then advances the clock by a nanosecond so stamps within the same
// dry-run task still order deterministically against each other.
func (d *DryRun) Stamp(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clock[path] = d.now
	d.now = d.now.Add(time.Nanosecond)
}

// Checker is the interface the task/state engine consumes; both Cache
// and DryRun satisfy it.
type Checker interface {
	Exists(path string) bool
	Mtime(path string) (time.Time, bool)
}
