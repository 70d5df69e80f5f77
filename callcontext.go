package lokacall

import (
	"time"

	"github.com/google/uuid"
)

// CallContext is the immutable, per-invocation carrier threaded through
// every decorator layer down to the primitive callable. It never mutates
// in place: With* methods return a new value, leaving the receiver
// untouched, so an outer decorator's override is never visible to a
// sibling branch of the call tree.
type CallContext struct {
	channel     any
	deadline    time.Time
	hasDeadline bool
	options     any
	correlation uuid.UUID
}

// NewCallContext returns an empty CallContext stamped with a fresh
// correlation ID. The ID is minted once per outer Call/FutureCall and
// carried unchanged through every retry attempt, so log lines from one
// logical call correlate across attempts.
func NewCallContext() *CallContext {
	return &CallContext{correlation: uuid.New()}
}

// Channel returns the bound channel handle, or nil if none was bound.
func (c *CallContext) Channel() any {
	if c == nil {
		return nil
	}
	return c.channel
}

// Deadline returns the per-call deadline and whether one is set.
func (c *CallContext) Deadline() (time.Time, bool) {
	if c == nil {
		return time.Time{}, false
	}
	return c.deadline, c.hasDeadline
}

// Options returns the opaque transport options, or nil if none were set.
func (c *CallContext) Options() any {
	if c == nil {
		return nil
	}
	return c.options
}

// CorrelationID returns the ID minted for this logical call.
func (c *CallContext) CorrelationID() uuid.UUID {
	if c == nil {
		return uuid.Nil
	}
	return c.correlation
}

func (c *CallContext) clone() *CallContext {
	if c == nil {
		return NewCallContext()
	}
	cp := *c
	return &cp
}

// WithChannel returns a copy of c with the channel handle replaced.
func (c *CallContext) WithChannel(ch any) *CallContext {
	cp := c.clone()
	cp.channel = ch
	return cp
}

// WithDeadline returns a copy of c with the deadline set to d. The copy
// always reports a deadline; there is no way to clear one.
func (c *CallContext) WithDeadline(d time.Time) *CallContext {
	cp := c.clone()
	cp.deadline = d
	cp.hasDeadline = true
	return cp
}

// WithOptions returns a copy of c with the transport options replaced.
func (c *CallContext) WithOptions(opts any) *CallContext {
	cp := c.clone()
	cp.options = opts
	return cp
}
