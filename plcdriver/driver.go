// Package plcdriver adapts the external github.com/yatesdr/plcio/logix
// client into the small Driver surface the rest of the daemon needs: connect,
// discover tags, read a batch of tags, and close. The Logix protocol itself —
// CIP encoding, symbol browsing, UDT templates — lives entirely in that
// external module; this package only knows how to drive it the way a
// PLC-to-cloud collector needs to.
package plcdriver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/yatesdr/plcio/logix"
)

// Threads is the size of the pre-opened connection pool used for chunked
// concurrent reads, matching the original collector's fixed worker count.
const Threads = 20

// TagsPerRequest is the largest single read batch dispatched to one
// connection before the poll is split across the worker pool.
const TagsPerRequest = 1000

// Observation is one leaf value read from the PLC at a point in time.
type Observation struct {
	Name  string
	Value float64
	Time  time.Time
}

// Driver is the PLC-facing surface a source depends on. It is deliberately
// small: connection lifecycle, tag discovery, and batch reads.
type Driver interface {
	Open(ctx context.Context) error
	Close() error
	IsConnected() bool
	Discover(ctx context.Context) ([]DiscoveredTag, error)
	Poll(ctx context.Context, tagNames []string) ([]Observation, error)
}

// Logger is the small logging surface a LogixDriver needs: a place to report
// a chunk read failure at danger level without importing the logging package
// directly (that package lives above this one in the dependency graph).
type Logger interface {
	Danger(format string, args ...interface{})
}

// LogixDriver drives a Rockwell Logix-family controller via
// github.com/yatesdr/plcio/logix. A pool of pre-opened connections is checked
// out per read batch the same way the original collector pre-opened a fixed
// set of pycomm3 connections and round-robinned reads across them.
type LogixDriver struct {
	address string
	opts    []logix.Option
	log     Logger

	mu   sync.Mutex
	pool []*logix.Client
}

// NewLogixDriver constructs a driver for a controller at address, applying
// any connection options (slot routing, route path, unconnected messaging).
// log receives a danger-level report whenever a chunked read fails on one of
// the pool's worker connections.
func NewLogixDriver(address string, log Logger, opts ...logix.Option) *LogixDriver {
	return &LogixDriver{address: address, log: log, opts: opts}
}

// Open opens Threads connections to the controller up front. If even one
// fails, every connection opened so far is closed and the error is returned —
// a half-open pool is worse than no pool, since checkout has no way to signal
// "try again with fewer workers".
func (d *LogixDriver) Open(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	pool := make([]*logix.Client, 0, Threads)
	for i := 0; i < Threads; i++ {
		client, err := logix.Connect(d.address, d.opts...)
		if err != nil {
			for _, c := range pool {
				c.Close()
			}
			return fmt.Errorf("plcdriver: connect %s: %w", d.address, err)
		}
		pool = append(pool, client)
	}
	d.pool = pool
	return nil
}

// Close closes every connection in the pool.
func (d *LogixDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, c := range d.pool {
		c.Close()
	}
	d.pool = nil
	return nil
}

// IsConnected reports whether the pool has at least one live connection.
func (d *LogixDriver) IsConnected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, c := range d.pool {
		if c.IsConnected() {
			return true
		}
	}
	return false
}

// checkout removes one connection from the pool for exclusive use.
func (d *LogixDriver) checkout() (*logix.Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.pool) == 0 {
		return nil, fmt.Errorf("plcdriver: no connections available")
	}
	c := d.pool[len(d.pool)-1]
	d.pool = d.pool[:len(d.pool)-1]
	return c, nil
}

// checkin returns a connection to the pool. It is always called, even after a
// read error on that connection, so a single bad read never permanently
// shrinks the pool.
func (d *LogixDriver) checkin(c *logix.Client) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pool = append(d.pool, c)
}
