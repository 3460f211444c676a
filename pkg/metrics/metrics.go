// Package metrics tracks the small set of counters worth surfacing for a
// running tunnel: how many sessions have been paired, how many pooled
// sockets were evicted for staleness or disconnect, and how many times
// the Server had to ask for more data sockets. Shaped after a phase-timer
// idiom (start/end pairs around a named phase), simplified here to
// atomic counters since the tunnel's phases are binary (happened / did
// not happen) rather than timed durations.
package metrics

import "sync/atomic"

// Counters is a set of process-wide atomic counters. The zero value is
// ready to use.
type Counters struct {
	sessionsPaired   atomic.Int64
	socketsEvicted   atomic.Int64
	notifiersSent    atomic.Int64
	notifiersDropped atomic.Int64
}

// IncSessionsPaired records one User successfully paired with a pooled
// socket.
func (c *Counters) IncSessionsPaired() { c.sessionsPaired.Add(1) }

// IncSocketsEvicted records one pooled socket destroyed rather than
// recycled (stale guard, disconnect, or recycle-TTL refusal).
func (c *Counters) IncSocketsEvicted() { c.socketsEvicted.Add(1) }

// IncNotifierSent records one NewConnection frame written to a Client.
func (c *Counters) IncNotifierSent() { c.notifiersSent.Add(1) }

// IncNotifierDropped records one notification signal dropped because a
// control channel's mailbox was full.
func (c *Counters) IncNotifierDropped() { c.notifiersDropped.Add(1) }

// Snapshot is a point-in-time read of every counter.
type Snapshot struct {
	SessionsPaired   int64
	SocketsEvicted   int64
	NotifiersSent    int64
	NotifiersDropped int64
}

// Snapshot returns the current value of every counter.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		SessionsPaired:   c.sessionsPaired.Load(),
		SocketsEvicted:   c.socketsEvicted.Load(),
		NotifiersSent:    c.notifiersSent.Load(),
		NotifiersDropped: c.notifiersDropped.Load(),
	}
}
