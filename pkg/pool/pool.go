// Package pool implements the bounded, blocking-get socket pool shared by
// the Server's data-socket holding area and the Client's Backend and
// data-socket pools. One pool type serves all three roles; behavior is
// selected at construction time (bounded vs. dial-on-miss, with or
// without a recycle TTL).
package pool

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	rerr "github.com/rtcplabs/rtcp/pkg/errors"
)

// ErrFull is returned by Add when the pool is at capacity.
var ErrFull = rerr.NewPoolError("add", "pool at capacity")

// Item is a pooled connection plus the bookkeeping fields a caller needs to
// decide whether it may be reused: a stable identity, a disconnected flag
// set by whichever task last held it, and the instant it was released back
// to the pool.
type Item struct {
	Conn           net.Conn
	ID             string
	Disconnected   bool
	LastReleasedAt *time.Time
}

// Stats is a point-in-time snapshot of pool occupancy.
type Stats struct {
	Available int
}

// DialFunc dials a fresh connection to stock the pool when Get finds it
// empty. Pools without a DialFunc block on Get until Add supplies an item.
type DialFunc func(ctx context.Context) (net.Conn, error)

// Pool is a LIFO holding area for *Item values.
type Pool struct {
	mu   sync.Mutex
	cond *sync.Cond
	idle []*Item

	capacity   int // 0 means unbounded
	recycleTTL time.Duration
	dial       DialFunc
	now        func() time.Time
	closed     bool
}

// Option configures a Pool at construction time.
type Option func(*Pool)

// WithCapacity bounds the pool; Add refuses once len(idle) reaches n.
// Used by the Server's data-socket pool (capacity 1000).
func WithCapacity(n int) Option {
	return func(p *Pool) { p.capacity = n }
}

// WithDialOnMiss supplies a dialer invoked by Get when the pool is
// momentarily empty, instead of blocking. Used by the Client's Backend and
// data-socket pools.
func WithDialOnMiss(d DialFunc) Option {
	return func(p *Pool) { p.dial = d }
}

// WithRecycleTTL refuses Return of an item whose LastReleasedAt is older
// than ttl. Used by the Client's pools (10s); the Server's pool instead
// leaves staleness to caller-side policy in Get's retry loop.
func WithRecycleTTL(ttl time.Duration) Option {
	return func(p *Pool) { p.recycleTTL = ttl }
}

// withClock overrides the time source; exercised by tests.
func withClock(now func() time.Time) Option {
	return func(p *Pool) { p.now = now }
}

// New constructs a Pool with the given options.
func New(opts ...Option) *Pool {
	p := &Pool{now: time.Now}
	for _, o := range opts {
		o(p)
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// NewItem wraps conn in an Item with a freshly generated id.
func NewItem(conn net.Conn) *Item {
	return &Item{Conn: conn, ID: uuid.NewString()}
}

// Add inserts conn as a freshly checked-in item. Non-blocking; returns
// ErrFull if the pool is at its bounded capacity. Used by the Server's
// data-port acceptor.
func (p *Pool) Add(conn net.Conn) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.capacity > 0 && len(p.idle) >= p.capacity {
		return ErrFull
	}
	p.idle = append(p.idle, NewItem(conn))
	p.cond.Signal()
	return nil
}

// Seed inserts item as-is, with no capacity check and no timestamp
// stamping. It exists for warm-starting or testing a pool with items
// whose bookkeeping fields are already set, unlike Add (which always
// wraps a fresh net.Conn) and Return (which always stamps LastReleasedAt).
func (p *Pool) Seed(item *Item) {
	p.mu.Lock()
	p.idle = append(p.idle, item)
	p.cond.Signal()
	p.mu.Unlock()
}

// Get blocks until an item is available, a DialFunc produces one, or ctx is
// done. It returns the most recently released item (LIFO), matching the
// hot-connection-reuse bias of a typical connection pool.
func (p *Pool) Get(ctx context.Context) (*Item, error) {
	if p.dial != nil {
		item, ok := p.popIdle()
		if ok {
			return item, nil
		}
		conn, err := p.dial(ctx)
		if err != nil {
			return nil, err
		}
		return NewItem(conn), nil
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			p.mu.Lock()
			p.cond.Broadcast()
			p.mu.Unlock()
		case <-done:
		}
	}()
	defer close(done)

	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.idle) == 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if p.closed {
			return nil, rerr.NewPoolError("get", "pool closed")
		}
		p.cond.Wait()
	}
	item := p.idle[len(p.idle)-1]
	p.idle = p.idle[:len(p.idle)-1]
	return item, nil
}

func (p *Pool) popIdle() (*Item, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.idle) == 0 {
		return nil, false
	}
	item := p.idle[len(p.idle)-1]
	p.idle = p.idle[:len(p.idle)-1]
	return item, true
}

// Take permanently removes item from consideration; the caller remains
// responsible for closing item.Conn. Take is a no-op with respect to pool
// bookkeeping beyond not re-adding the item — it exists as the named
// counterpart operation to Add/Return for callers that decide to evict.
func (p *Pool) Take(item *Item) {
	_ = item // ownership transfers to caller; nothing to untrack
}

// Return checks item back in, applying the recycle policy: refuse (the
// item is destroyed, caller must close it) if Disconnected is set, if
// LastReleasedAt is older than the configured RecycleTTL, or if a bounded
// pool is already at capacity. Pools with no RecycleTTL configured skip
// the age check (the Server's pool relies on caller-side staleness checks
// in Get's retry loop instead).
func (p *Pool) Return(item *Item) (recycled bool) {
	if item.Disconnected {
		return false
	}
	if p.recycleTTL > 0 && item.LastReleasedAt != nil {
		if p.now().Sub(*item.LastReleasedAt) > p.recycleTTL {
			return false
		}
	}
	now := p.now()
	item.LastReleasedAt = &now

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.capacity > 0 && len(p.idle) >= p.capacity {
		return false
	}
	p.idle = append(p.idle, item)
	p.cond.Signal()
	return true
}

// Status returns a snapshot of pool occupancy.
func (p *Pool) Status() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{Available: len(p.idle)}
}

// StaleOlderThan reports whether item's LastReleasedAt is set and older
// than ttl as of now. It is exported for callers implementing their own
// checkout-time staleness policy (the Server's 8-second stale-guard),
// distinct from a pool's own RecycleTTL applied at Return time.
func StaleOlderThan(item *Item, ttl time.Duration, now time.Time) bool {
	return item.LastReleasedAt != nil && now.Sub(*item.LastReleasedAt) > ttl
}

// Close marks the pool closed and wakes all Get waiters; it does not close
// idle connections, since ownership of Conn lifetime belongs to callers.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()
}
