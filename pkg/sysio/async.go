// Package sysio implements the host-integration contract (spec §6):
// the System interface through which a Process funnels blocking work
// (I/O, RPCs, device actions, network messaging) back to an embedder,
// plus AsyncResult and Barrier, the two primitives that let a Process
// park on pending host work without blocking its own step loop.
package sysio

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// RequestKey, CommandKey, ExternReplyKey, and InternReplyKey are the
// opaque tokens a System hands back for work it cannot complete
// synchronously. They cross the host/core boundary (spec §6) and must
// be collision-free and otherwise meaningless to the core, so each
// wraps a uuid rather than a counter a host could accidentally collide
// with its own IDs.
type RequestKey struct{ id uuid.UUID }
type CommandKey struct{ id uuid.UUID }
type ExternReplyKey struct{ id uuid.UUID }
type InternReplyKey struct{ id uuid.UUID }

func newRequestKey() RequestKey   { return RequestKey{uuid.New()} }
func newCommandKey() CommandKey   { return CommandKey{uuid.New()} }
func newExternReplyKey() ExternReplyKey { return ExternReplyKey{uuid.New()} }
func newInternReplyKey() InternReplyKey { return InternReplyKey{uuid.New()} }

func (k RequestKey) String() string     { return k.id.String() }
func (k CommandKey) String() string     { return k.id.String() }
func (k ExternReplyKey) String() string { return k.id.String() }
func (k InternReplyKey) String() string { return k.id.String() }

// resultState is AsyncResult's three states (spec §3): Pending, then
// Completed once, then Consumed once polled.
type resultState int

const (
	pending resultState = iota
	completed
	consumed
)

// AsyncResult is a three-state cell a System uses to hand back the
// outcome of deferred work: Pending until Complete is called, then
// Completed(v) until the first Poll, then Consumed forever after.
// Complete is idempotent-failing: a second call reports failure rather
// than overwriting the first result, since the process that owns this
// key has at most one outstanding completion to observe.
type AsyncResult[T any] struct {
	mu    sync.Mutex
	state resultState
	value T
}

// NewAsyncResult returns a Pending cell.
func NewAsyncResult[T any]() *AsyncResult[T] {
	return &AsyncResult[T]{state: pending}
}

// Complete transitions Pending -> Completed(v). ok is false if the
// cell was already Completed or Consumed, in which case v is dropped.
func (r *AsyncResult[T]) Complete(v T) (ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != pending {
		return false
	}
	r.value = v
	r.state = completed
	return true
}

// PollOutcome is what Poll reports: whether the cell had already been
// consumed (a host bug, since a Process only polls once per instruction
// resume), whether a value is available this call, and the value if so.
type PollOutcome[T any] struct {
	AlreadyConsumed bool
	Ready           bool
	Value           T
}

// Poll transitions Completed -> Consumed and returns the value; calling
// again afterward reports AlreadyConsumed rather than panicking, since
// a scheduler bug here should not crash the whole process.
func (r *AsyncResult[T]) Poll() PollOutcome[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.state {
	case completed:
		r.state = consumed
		return PollOutcome[T]{Ready: true, Value: r.value}
	case consumed:
		return PollOutcome[T]{AlreadyConsumed: true}
	default:
		return PollOutcome[T]{}
	}
}

// Barrier is a reference-counted arrival handle (spec §3): Broadcast
// creates one per targeted process, hands out a Grant for each, and a
// BarrierCondition completes once every Grant has been Released.
// Unlike sync.WaitGroup, a BarrierCondition can be polled
// non-blockingly, which is what a cooperative step loop needs.
type Barrier struct {
	mu      sync.Mutex
	pending int
}

// NewBarrier returns a Barrier along with n initial Grants (one per
// process targeted by the broadcast that creates it). The Barrier's
// BarrierCondition completes once every Grant, initial or later-added,
// has been Released.
func NewBarrier(n int) (*Barrier, []Grant) {
	b := &Barrier{pending: n}
	grants := make([]Grant, n)
	for i := range grants {
		grants[i] = Grant{b: b}
	}
	return b, grants
}

// Grant is one strong hold on a Barrier; Release drops it.
type Grant struct {
	b        *Barrier
	released bool
}

// Grant returns a new strong hold, incrementing the outstanding count.
// Used when a target process is added to a broadcast after the barrier
// was created.
func (b *Barrier) Grant() Grant {
	b.mu.Lock()
	b.pending++
	b.mu.Unlock()
	return Grant{b: b}
}

// Release drops this hold. Calling it twice is a no-op (the second call
// would otherwise double-decrement the shared counter).
func (g *Grant) Release() {
	if g.released {
		return
	}
	g.released = true
	g.b.mu.Lock()
	g.b.pending--
	g.b.mu.Unlock()
}

// Condition returns a BarrierCondition: a weak, pollable view that does
// not itself hold the barrier open.
func (b *Barrier) Condition() BarrierCondition {
	return BarrierCondition{b: b}
}

// BarrierCondition is a weak reference to a Barrier: it can be polled
// for completion but holds no grant of its own.
type BarrierCondition struct {
	b *Barrier
}

// IsCompleted reports whether every grant on the underlying Barrier has
// been released.
func (c BarrierCondition) IsCompleted() bool {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	return c.b.pending <= 0
}

// ErrKeyNotFound is returned by a LocalSystem when asked to poll a key
// it never issued (a host bug, not a Process bug).
var ErrKeyNotFound = fmt.Errorf("sysio: unknown async key")
