package sysio

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kristofer/scriptvm/pkg/values"
)

// RequestHandler resolves one Request for a named entity. PerformRequest
// calls it inline and reports its value or error as a synchronous
// Outcome; a handler has no way to hand back a pending key.
type RequestHandler func(ctx context.Context, req Request, entity string) (values.Value, error)

// CommandHandler resolves one Command the same way, with no return
// value on success.
type CommandHandler func(ctx context.Context, cmd Command, entity string) error

// LocalSystem is a reference, in-process System implementation (spec
// §6 "a defaulted local implementation is offered"): registered
// handlers resolve requests/commands inline, SpawnRequest/SpawnCommand
// run work on goroutines tracked by an errgroup, and network messaging
// loops back to this LocalSystem's own inbox (the unexported net field
// would route it over a websocket peer connection instead, but
// NewLocalSystem leaves it nil and nothing sets it). It exists to make the engine runnable and testable
// without a real host; production embedders are expected to provide
// their own System satisfying richer UI/device semantics.
type LocalSystem struct {
	mode      TimeMode
	startTime int64
	clockMu   sync.Mutex
	clockMs   int64

	requestHandlers map[Feature]RequestHandler
	commandHandlers map[Feature]CommandHandler

	mu             sync.Mutex
	requests       map[RequestKey]*AsyncResult[Result[values.Value]]
	commands       map[CommandKey]*AsyncResult[Result[struct{}]]
	pendingReplies map[ExternReplyKey]*AsyncResult[*string]
	inbox          []IncomingMessage

	group  *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc

	net *NetTransport // optional, nil if no networking configured
}

// NewLocalSystem returns a LocalSystem in the given time mode, with no
// handlers registered (every Request/Command reports NotSupported
// until RegisterRequestHandler/RegisterCommandHandler is called).
func NewLocalSystem(mode TimeMode) *LocalSystem {
	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	return &LocalSystem{
		mode:            mode,
		requestHandlers: make(map[Feature]RequestHandler),
		commandHandlers: make(map[Feature]CommandHandler),
		requests:        make(map[RequestKey]*AsyncResult[Result[values.Value]]),
		commands:        make(map[CommandKey]*AsyncResult[Result[struct{}]]),
		pendingReplies:  make(map[ExternReplyKey]*AsyncResult[*string]),
		group:           g,
		ctx:             gctx,
		cancel:          cancel,
	}
}

// Close cancels any in-flight goroutine work and waits for it to
// unwind. A LocalSystem is not usable afterward.
func (s *LocalSystem) Close() error {
	s.cancel()
	return s.group.Wait()
}

// RegisterRequestHandler installs the handler invoked for Requests of
// the given Feature.
func (s *LocalSystem) RegisterRequestHandler(f Feature, h RequestHandler) {
	s.requestHandlers[f] = h
}

// RegisterCommandHandler installs the handler invoked for Commands of
// the given Feature.
func (s *LocalSystem) RegisterCommandHandler(f Feature, h CommandHandler) {
	s.commandHandlers[f] = h
}

// SetClockMs advances the Arbitrary-mode clock; a no-op in other modes.
func (s *LocalSystem) SetClockMs(ms int64) {
	s.clockMu.Lock()
	s.clockMs = ms
	s.clockMu.Unlock()
}

// Rand returns a uniform float in [lo,hi).
func (s *LocalSystem) Rand(lo, hi float64) float64 {
	if lo > hi {
		lo, hi = hi, lo
	}
	return lo + rand.Float64()*(hi-lo)
}

// Time reports milliseconds since an implementation-defined epoch,
// per Mode: always 0 (Timeless), the explicit SetClockMs value
// (Arbitrary), or the real wall clock (RealLocal).
func (s *LocalSystem) Time() int64 {
	switch s.mode {
	case TimeArbitrary:
		s.clockMu.Lock()
		defer s.clockMu.Unlock()
		return s.clockMs
	case TimeRealLocal:
		return time.Now().UnixMilli()
	default:
		return 0
	}
}

// PerformRequest resolves req synchronously against its registered
// handler, or reports NotSupported if none is registered. LocalSystem
// never defers a Request: the Outcome is always synchronous and the
// returned key is the zero RequestKey. SpawnRequest/PollRequest are a
// separate pair for work a host starts outside PerformRequest.
func (s *LocalSystem) PerformRequest(req Request, entity string) (Outcome[values.Value], RequestKey) {
	h, ok := s.requestHandlers[req.Kind]
	if !ok {
		return Outcome[values.Value]{Result: Result[values.Value]{Err: fmt.Sprintf("request %v not supported", req.Kind)}}, RequestKey{}
	}
	v, err := h(s.ctx, req, entity)
	res := Result[values.Value]{Value: v}
	if err != nil {
		res = Result[values.Value]{Err: err.Error()}
	}
	return Outcome[values.Value]{Result: res}, RequestKey{}
}

// PerformCommand mirrors PerformRequest for Commands.
func (s *LocalSystem) PerformCommand(cmd Command, entity string) (Outcome[struct{}], CommandKey) {
	h, ok := s.commandHandlers[cmd.Kind]
	if !ok {
		return Outcome[struct{}]{Result: Result[struct{}]{Err: fmt.Sprintf("command %v not supported", cmd.Kind)}}, CommandKey{}
	}
	err := h(s.ctx, cmd, entity)
	res := Result[struct{}]{}
	if err != nil {
		res.Err = err.Error()
	}
	return Outcome[struct{}]{Result: res}, CommandKey{}
}

// SpawnRequest runs work on a tracked goroutine and returns a key whose
// PollRequest result becomes Ready once work finishes. Intended for use
// by handlers that need real asynchrony (simulated network latency,
// device I/O) instead of blocking PerformRequest's caller.
func (s *LocalSystem) SpawnRequest(work func(ctx context.Context) (values.Value, error)) RequestKey {
	key := newRequestKey()
	ar := NewAsyncResult[Result[values.Value]]()
	s.mu.Lock()
	s.requests[key] = ar
	s.mu.Unlock()
	s.group.Go(func() error {
		v, err := work(s.ctx)
		res := Result[values.Value]{Value: v}
		if err != nil {
			res = Result[values.Value]{Err: err.Error()}
		}
		ar.Complete(res)
		return nil
	})
	return key
}

// SpawnCommand is SpawnRequest's Command counterpart.
func (s *LocalSystem) SpawnCommand(work func(ctx context.Context) error) CommandKey {
	key := newCommandKey()
	ar := NewAsyncResult[Result[struct{}]]()
	s.mu.Lock()
	s.commands[key] = ar
	s.mu.Unlock()
	s.group.Go(func() error {
		err := work(s.ctx)
		res := Result[struct{}]{}
		if err != nil {
			res.Err = err.Error()
		}
		ar.Complete(res)
		return nil
	})
	return key
}

// PollRequest polls a key returned by SpawnRequest.
func (s *LocalSystem) PollRequest(key RequestKey) PollOutcome[Result[values.Value]] {
	s.mu.Lock()
	ar, ok := s.requests[key]
	s.mu.Unlock()
	if !ok {
		return PollOutcome[Result[values.Value]]{AlreadyConsumed: true}
	}
	out := ar.Poll()
	if out.Ready {
		s.mu.Lock()
		delete(s.requests, key)
		s.mu.Unlock()
	}
	return out
}

// PollCommand polls a key returned by SpawnCommand.
func (s *LocalSystem) PollCommand(key CommandKey) PollOutcome[Result[struct{}]] {
	s.mu.Lock()
	ar, ok := s.commands[key]
	s.mu.Unlock()
	if !ok {
		return PollOutcome[Result[struct{}]]{AlreadyConsumed: true}
	}
	out := ar.Poll()
	if out.Ready {
		s.mu.Lock()
		delete(s.commands, key)
		s.mu.Unlock()
	}
	return out
}

// SendMessage delivers msgType/values to targets. If net is configured,
// delivery is routed over the websocket peer connection; otherwise
// (the common unit-test configuration) it loops back into this
// process's own inbox, which is enough to exercise broadcast/receive
// semantics without a live peer. expectReply allocates and returns an
// ExternReplyKey the caller can poll.
func (s *LocalSystem) SendMessage(msgType string, vals []NamedValue, targets []string, expectReply bool) (ExternReplyKey, bool) {
	var replyKey InternReplyKey
	var extKey ExternReplyKey
	if expectReply {
		extKey = newExternReplyKey()
		replyKey = InternReplyKey{id: extKey.id}
		s.mu.Lock()
		s.pendingReplies[extKey] = NewAsyncResult[*string]()
		s.mu.Unlock()
	}
	if s.net != nil {
		s.net.Send(msgType, vals, targets)
	} else {
		s.loopbackDeliver(msgType, vals, targets, replyKey)
	}
	return extKey, expectReply
}

// PollReply polls an ExternReplyKey returned by SendMessage.
func (s *LocalSystem) PollReply(key ExternReplyKey) PollOutcome[*string] {
	s.mu.Lock()
	ar, ok := s.pendingReplies[key]
	s.mu.Unlock()
	if !ok {
		return PollOutcome[*string]{AlreadyConsumed: true}
	}
	return ar.Poll()
}

// SendReply fulfills a reply the local inbox is still waiting on. In
// this in-process reference implementation an InternReplyKey and the
// ExternReplyKey it answers share the same underlying id (a real
// networked System would instead carry the two across the wire
// separately), so the lookup is a direct map hit.
func (s *LocalSystem) SendReply(key InternReplyKey, json string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ar, ok := s.pendingReplies[ExternReplyKey{id: key.id}]; ok {
		j := json
		ar.Complete(&j)
	}
}

// ReceiveMessage pops one queued inbound message, if any.
func (s *LocalSystem) ReceiveMessage() (IncomingMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.inbox) == 0 {
		return IncomingMessage{}, false
	}
	m := s.inbox[0]
	s.inbox = s.inbox[1:]
	return m, true
}

func (s *LocalSystem) loopbackDeliver(msgType string, vals []NamedValue, targets []string, replyKey InternReplyKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sender := "local"
	for _, t := range targets {
		s.inbox = append(s.inbox, IncomingMessage{MsgType: msgType, Values: vals, Sender: sender + "->" + t, ReplyKey: replyKey})
	}
}
