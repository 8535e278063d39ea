package sysio

import (
	"github.com/kristofer/scriptvm/pkg/values"
)

// Feature tags a Request or Command so a host can gate support and
// report NotSupported uniformly (spec §6) rather than each System
// implementation inventing its own capability-probing convention.
type Feature int

const (
	FeatureInput Feature = iota
	FeatureSyscall
	FeatureRpc
	FeatureProperty
	FeatureUnknownBlock
	FeaturePrint
	FeatureSetProperty
	FeatureChangeProperty
	FeatureSetCostume
	FeatureClearEffects
	FeatureClearDrawings
	FeatureGotoXY
	FeatureGotoEntity
	FeaturePointTowardsXY
	FeaturePointTowardsEntity
	FeatureForward
	FeatureTurn
)

// PrintStyle distinguishes a plain say/think bubble print from a
// console-style print, mirroring the two observable print surfaces a
// host commonly offers.
type PrintStyle int

const (
	PrintConsole PrintStyle = iota
	PrintSay
	PrintThink
)

// Request is a blocking operation that returns a Value (spec §6).
// Exactly one of the fields matching Kind is meaningful.
type Request struct {
	Kind Feature

	// Input
	Prompt *string

	// Syscall
	SyscallName string
	Args        []values.Value

	// Rpc
	Service   string
	Rpc       string
	NamedArgs []NamedValue

	// Property
	Property string

	// UnknownBlock
	BlockName string
	BlockArgs []values.Value
}

// NamedValue pairs an argument name (sourced from the meta stack) with
// its value, used by Rpc calls and outgoing network messages.
type NamedValue struct {
	Name  string
	Value values.Value
}

// Command is a blocking operation with no return value (spec §6).
type Command struct {
	Kind Feature

	// Print
	PrintStyle PrintStyle
	PrintValue *values.Value

	// SetProperty / ChangeProperty
	Property string
	Amount   values.Value

	// SetCostume
	CostumeIndex int

	// GotoXY / PointTowardsXY
	X, Y float64

	// GotoEntity / PointTowardsEntity
	TargetEntity string

	// Forward
	Distance float64

	// Turn. Degrees is already sign-adjusted for direction (left negative)
	// by the caller, so a host's handler just adds it to heading.
	Degrees float64
}

// Result is the synchronous half of perform_request/perform_command and
// of their poll counterparts: a value (or, for Command, no value) paired
// with an error string on failure.
type Result[T any] struct {
	Value T
	Err   string
}

// Outcome is what PerformRequest/PerformCommand return: either the
// operation completed synchronously (Async false, Result meaningful),
// or it is still pending and must be polled later via the returned key
// (Async true; Result is the zero value until polled to completion).
type Outcome[T any] struct {
	Async  bool
	Result Result[T]
}

// IncomingMessage is a message delivered to receive_message (spec §6):
// a message type, its named values in sender order, and the sender's
// identity if known. ReplyKey is the zero value unless the sender set
// expect_reply, in which case SendReply(ReplyKey, ...) answers it.
type IncomingMessage struct {
	MsgType  string
	Values   []NamedValue
	Sender   string
	ReplyKey InternReplyKey
}

// TimeMode selects how System.Time behaves: Timeless always returns 0
// (deterministic replay/testing), Arbitrary advances an explicit
// caller-fed millisecond clock, RealLocal reads the host wall clock.
type TimeMode int

const (
	TimeTimeless TimeMode = iota
	TimeArbitrary
	TimeRealLocal
)

// System is the embedder-provided host contract (spec §6). A Process
// never talks to a System directly — pkg/process mediates every
// Request/Command/message call, tagging it with the originating
// entity so the host can resolve per-sprite semantics.
type System interface {
	Rand(lo, hi float64) float64
	Time() int64

	PerformRequest(req Request, entityName string) (Outcome[values.Value], RequestKey)
	PerformCommand(cmd Command, entityName string) (Outcome[struct{}], CommandKey)
	PollRequest(key RequestKey) PollOutcome[Result[values.Value]]
	PollCommand(key CommandKey) PollOutcome[Result[struct{}]]

	SendMessage(msgType string, values []NamedValue, targets []string, expectReply bool) (ExternReplyKey, bool)
	PollReply(key ExternReplyKey) PollOutcome[*string] // Json-encoded reply, nil if none
	SendReply(key InternReplyKey, json string)
	ReceiveMessage() (IncomingMessage, bool)
}
