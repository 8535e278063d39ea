// Package process implements the bytecode interpreter (spec §3 Process,
// §4.3): a single-threaded, cooperative stack machine whose Step method
// performs exactly one unit of work — a pending-defer poll, one
// instruction, or an error-recovery transition — and returns a Status
// telling the host scheduler what to do next. It is a direct
// continuation of the teacher's pkg/vm's switch-dispatch Run loop,
// generalized so the dispatch loop can suspend and resume across
// independent Step calls instead of running to completion in one call.
package process

import (
	"github.com/kristofer/scriptvm/pkg/bytecode"
	"github.com/kristofer/scriptvm/pkg/errs"
	"github.com/kristofer/scriptvm/pkg/symtab"
	"github.com/kristofer/scriptvm/pkg/sysio"
	"github.com/kristofer/scriptvm/pkg/values"
)

// Status is what Step reports to the scheduler driving this Process
// (spec §5 "Scheduling model", §3 "step advances exactly one
// instruction (or polls the defer slot)"). Step performs exactly one
// unit of work per call — a defer poll, one instruction, or a handler
// recovery transition — and reports which kind of unit it was so the
// scheduler knows whether to call Step again immediately (Continue) or
// move on to another process (Yield/Broadcast/Terminated/Errored).
type Status int

const (
	// StatusContinue reports that Step did one unit of work (a defer
	// resolution, or an instruction that isn't Yield/Broadcast/Return-
	// at-bottom-frame) and the process is still runnable; the scheduler
	// may call Step again right away.
	StatusContinue Status = iota
	StatusYield
	StatusBroadcast
	StatusTerminated
	StatusErrored
)

func (s Status) String() string {
	switch s {
	case StatusContinue:
		return "Continue"
	case StatusYield:
		return "Yield"
	case StatusBroadcast:
		return "Broadcast"
	case StatusTerminated:
		return "Terminated"
	case StatusErrored:
		return "Errored"
	default:
		return "Unknown"
	}
}

// CallFrame is one activation record (spec §3 Process.call_stack): the
// frame's local bindings, where to resume in the caller once Return
// executes, and the sizes every stack must be restored to so a call's
// sole net effect is pushing one return value (spec §8).
type CallFrame struct {
	Name             string
	Locals           *symtab.SymbolTable
	ReturnTo         int
	CalledFrom       int
	ValueStackSize   int
	HandlerStackSize int
	WarpAtCall       int
}

// Handler is one pushed exception handler (spec §4.3 "Exception
// handling"): the position to jump to and the variable to bind on
// unwind, plus every stack size that must be restored so recovery never
// leaves a partially-unwound state. There is no recorded handler-stack
// size: a handler that catches an error is popped as part of recovery
// (see Step), so nothing needs to restore the handler stack itself.
type Handler struct {
	Pos            int
	VarName        string
	WarpAtPush     int
	CallStackSize  int
	ValueStackSize int
}

// deferKind tags what kind of host operation a parked Process is
// waiting on.
type deferKind int

const (
	deferRequest deferKind = iota
	deferCommand
	deferReply
	deferBarrier
	deferSleep
)

// pendingDefer describes the one outstanding asynchronous operation a
// parked Process is waiting on (spec §3 Process.defer; §5 "Suspension
// points"). At most one can be outstanding at a time, since the
// interpreter is single-threaded and an instruction that defers does
// not resume until its defer resolves.
type pendingDefer struct {
	kind      deferKind
	aftPos    int
	reqKey    sysio.RequestKey
	reqAction requestAction
	cmdKey    sysio.CommandKey
	replyKey  sysio.ExternReplyKey
	// barrier is nil until the scheduler calls ParkOnBarrier: a waiting
	// Broadcast sets kind=deferBarrier before the scheduler has had a
	// chance to size and create the actual Barrier (only it knows how
	// many sibling processes were targeted), so pollDefer must be able to
	// tell "not parked yet" from "parked, not yet released".
	barrier *sysio.BarrierCondition
	until   int64
}

// GlobalContext is the state every Process sharing one project holds in
// common (original_source/src/runtime.rs's GlobalContext): the root
// variable scope every entity's fields chain in front of, and the
// shared timer ResetTimer/PushTimer read and write. It is not owned by
// any one Process, since timer state and globals are visible to every
// process in a project, not scoped per-process.
type GlobalContext struct {
	Vars       *symtab.SymbolTable
	TimerStart int64
}

// NewGlobalContext returns a GlobalContext with an empty, parentless
// global scope and a zeroed timer.
func NewGlobalContext() *GlobalContext {
	return &GlobalContext{Vars: symtab.New(nil)}
}

// Process is one running script (spec §3): bytecode plus every stack
// the interpreter needs, the context it shares with its sibling
// processes, and whatever async operation it is currently parked on.
type Process struct {
	Name    string
	Entity  string // entity name passed to System calls (spec §6)
	Code    []bytecode.Instruction
	Strings []string

	Global *GlobalContext
	Fields *symtab.SymbolTable // entity field scope, parented to Global.Vars

	Pos         int
	Stack       []values.Value
	Meta        []string
	Calls       []CallFrame
	Handlers    []Handler
	WarpCounter int

	// LastRPCError, LastSyscallError, and LastAnswer mirror
	// original_source's Option<Value> slots: nil until the first
	// Rpc/Syscall error or Ask answer, then the most recent one.
	// PushRpcError/PushSyscallError/PushAnswer push an empty string
	// instead of these when nil.
	LastRPCError     *values.Value
	LastSyscallError *values.Value
	LastAnswer       *values.Value

	SyscallErrorScheme errs.Scheme
	RpcErrorScheme     errs.Scheme
	MaxCallDepth       int

	def         *pendingDefer
	replyKey    sysio.InternReplyKey
	hasReplyKey bool

	Terminated bool
	Result     values.Value
	FailCause  *errs.ErrorCause
	FailPos    int

	// BroadcastMsgType and BroadcastWait are valid to read only
	// immediately after a Step call that returned StatusBroadcast: the
	// message type to fan out, and whether this Process is now parked
	// waiting for every targeted process to finish (see ParkOnBarrier).
	BroadcastMsgType string
	BroadcastWait    bool
}

// DefaultMaxCallDepth matches spec §4.3 "Call depth": 1024.
const DefaultMaxCallDepth = 1024

// New constructs a Process ready to execute code from instruction 0 in
// a fresh top-level frame rooted at fields (the owning entity's field
// scope, which must already chain to global.Vars as its parent — see
// entityFields in cmd/engine for how a host wires this up).
func New(name, entity string, code []bytecode.Instruction, strings []string, global *GlobalContext, fields *symtab.SymbolTable) *Process {
	p := &Process{
		Name:               name,
		Entity:             entity,
		Code:               code,
		Strings:            strings,
		Global:             global,
		Fields:             fields,
		SyscallErrorScheme: errs.Hard,
		RpcErrorScheme:     errs.Hard,
		MaxCallDepth:       DefaultMaxCallDepth,
	}
	p.Calls = append(p.Calls, CallFrame{
		Name:       "main",
		Locals:     symtab.New(fields),
		CalledFrom: -1,
		ReturnTo:   -1,
	})
	return p
}

// Alive reports whether this Process has neither terminated normally
// nor failed with an unhandled error.
func (p *Process) Alive() bool {
	return !p.Terminated && p.FailCause == nil
}

func (p *Process) top() *CallFrame {
	return &p.Calls[len(p.Calls)-1]
}

func (p *Process) push(v values.Value) {
	p.Stack = append(p.Stack, v)
}

func (p *Process) pop() values.Value {
	if len(p.Stack) == 0 {
		return values.Value{}
	}
	v := p.Stack[len(p.Stack)-1]
	p.Stack = p.Stack[:len(p.Stack)-1]
	return v
}

// popN pops n values and returns them in their original push order
// (oldest first), since spec instructions that consume a run of
// operands (Call's params, CallRpc's args, ...) describe them in
// source order, not stack order.
func (p *Process) popN(n int) []values.Value {
	if n <= 0 {
		return nil
	}
	start := len(p.Stack) - n
	if start < 0 {
		start = 0
	}
	out := append([]values.Value(nil), p.Stack[start:]...)
	p.Stack = p.Stack[:start]
	return out
}

func (p *Process) popMeta() string {
	if len(p.Meta) == 0 {
		return ""
	}
	s := p.Meta[len(p.Meta)-1]
	p.Meta = p.Meta[:len(p.Meta)-1]
	return s
}

func (p *Process) popMetaN(n int) []string {
	if n <= 0 {
		return nil
	}
	start := len(p.Meta) - n
	if start < 0 {
		start = 0
	}
	out := append([]string(nil), p.Meta[start:]...)
	p.Meta = p.Meta[:start]
	return out
}

func (p *Process) constString(idx int) string {
	if idx < 0 || idx >= len(p.Strings) {
		return ""
	}
	return p.Strings[idx]
}

// ParkOnBarrier installs cond as the condition this Process is waiting
// on after a StatusBroadcast Step reported BroadcastWait. A scheduler
// calls it once it has fanned the broadcast out and sized a Barrier to
// the processes it actually spawned; until then, pollDefer reports the
// process as still waiting. A call when this Process is not currently
// parked on a deferBarrier is a no-op.
func (p *Process) ParkOnBarrier(cond sysio.BarrierCondition) {
	if p.def != nil && p.def.kind == deferBarrier {
		c := cond
		p.def.barrier = &c
	}
}

// Frames builds the StackSample trail errs.Extract wants, outermost
// frame first and innermost last (matching Process.call_stack layout).
func (p *Process) Frames() []errs.StackSample {
	out := make([]errs.StackSample, 0, len(p.Calls))
	for _, f := range p.Calls {
		locals := map[string]values.Value{}
		out = append(out, errs.StackSample{
			Name:       f.Name,
			CalledFrom: f.CalledFrom,
			Locals:     locals,
		})
	}
	return out
}
