// Package bytecode defines the instruction format this engine executes
// and the compiled-program artifact an external compiler produces
// (spec §3 Bytecode model, §6 "Bytecode artifact", §7 "Locations
// table"). It is a direct continuation of the teacher's bytecode
// package: opcodes are still single bytes with a small fixed set of
// integer operands, and constants still live in a side pool referenced
// by index rather than embedded in the instruction stream — only the
// opcode set and operand shape changed to match a cooperative,
// list/closure/exception-aware stack machine instead of a
// Smalltalk-style message-send machine.
package bytecode

// Opcode identifies one instruction. Opcodes are grouped by family to
// match spec §4.3's "Instruction families and semantics" exactly, so
// the family a given Opcode belongs to can be read off its name.
type Opcode byte

const (
	// --- Control flow ---
	OpYield Opcode = iota
	OpWarpStart
	OpWarpStop
	OpJump
	OpConditionalJump
	OpCall
	OpMakeClosure
	OpCallClosure
	OpReturn

	// --- Value/stack ---
	OpPushBool
	OpPushInt
	OpPushNumber
	OpPushString
	OpPushVariable
	OpPopValue
	OpDupeValue
	OpSwapValues
	OpToBool
	OpToNumber

	// --- List ---
	OpListCons
	OpListCdr
	OpListFind
	OpListContains
	OpListIsEmpty
	OpListLength
	OpListDims
	OpListRank
	OpListRev
	OpListFlatten
	OpListReshape
	OpListCartesianProduct
	OpListJson
	OpListInsert
	OpListInsertLast
	OpListInsertRandom
	OpListGet
	OpListGetLast
	OpListGetRandom
	OpListAssign
	OpListAssignLast
	OpListAssignRandom
	OpListRemove
	OpListRemoveLast
	OpListRemoveAll
	OpListPopFirstOrElse

	// --- Arithmetic ---
	OpBinaryOp
	OpUnaryOp
	OpVariadicOp

	// --- Comparison ---
	OpEq
	OpRefEq

	// --- Variables ---
	OpDeclareLocal
	OpAssign
	OpBinaryOpAssign

	// --- Meta ---
	OpMetaPush

	// --- Exception handling ---
	OpPushHandler
	OpPopHandler
	OpThrow

	// --- Async requests/commands ---
	OpCallRpc
	OpSyscall
	OpPrint
	OpAsk
	OpPushPosition
	OpPushHeading
	OpForward
	OpTurn
	OpPushEffect
	OpSetEffect
	OpChangeEffect

	// --- Error channels ---
	OpPushRpcError
	OpPushSyscallError
	OpPushAnswer

	// --- Timer ---
	OpResetTimer
	OpPushTimer

	// --- Sleep ---
	OpSleep

	// --- Messaging ---
	OpSendNetworkMessage
	OpSendNetworkReply
	OpBroadcast
)

var opcodeNames = map[Opcode]string{
	OpYield:                "YIELD",
	OpWarpStart:            "WARP_START",
	OpWarpStop:             "WARP_STOP",
	OpJump:                 "JUMP",
	OpConditionalJump:      "CONDITIONAL_JUMP",
	OpCall:                 "CALL",
	OpMakeClosure:          "MAKE_CLOSURE",
	OpCallClosure:          "CALL_CLOSURE",
	OpReturn:               "RETURN",
	OpPushBool:             "PUSH_BOOL",
	OpPushInt:              "PUSH_INT",
	OpPushNumber:           "PUSH_NUMBER",
	OpPushString:           "PUSH_STRING",
	OpPushVariable:         "PUSH_VARIABLE",
	OpPopValue:             "POP_VALUE",
	OpDupeValue:            "DUPE_VALUE",
	OpSwapValues:           "SWAP_VALUES",
	OpToBool:               "TO_BOOL",
	OpToNumber:             "TO_NUMBER",
	OpListCons:             "LIST_CONS",
	OpListCdr:              "LIST_CDR",
	OpListFind:             "LIST_FIND",
	OpListContains:         "LIST_CONTAINS",
	OpListIsEmpty:          "LIST_IS_EMPTY",
	OpListLength:           "LIST_LENGTH",
	OpListDims:             "LIST_DIMS",
	OpListRank:             "LIST_RANK",
	OpListRev:              "LIST_REV",
	OpListFlatten:          "LIST_FLATTEN",
	OpListReshape:          "LIST_RESHAPE",
	OpListCartesianProduct: "LIST_CARTESIAN_PRODUCT",
	OpListJson:             "LIST_JSON",
	OpListInsert:           "LIST_INSERT",
	OpListInsertLast:       "LIST_INSERT_LAST",
	OpListInsertRandom:     "LIST_INSERT_RANDOM",
	OpListGet:              "LIST_GET",
	OpListGetLast:          "LIST_GET_LAST",
	OpListGetRandom:        "LIST_GET_RANDOM",
	OpListAssign:           "LIST_ASSIGN",
	OpListAssignLast:       "LIST_ASSIGN_LAST",
	OpListAssignRandom:     "LIST_ASSIGN_RANDOM",
	OpListRemove:           "LIST_REMOVE",
	OpListRemoveLast:       "LIST_REMOVE_LAST",
	OpListRemoveAll:        "LIST_REMOVE_ALL",
	OpListPopFirstOrElse:   "LIST_POP_FIRST_OR_ELSE",
	OpBinaryOp:             "BINARY_OP",
	OpUnaryOp:              "UNARY_OP",
	OpVariadicOp:           "VARIADIC_OP",
	OpEq:                   "EQ",
	OpRefEq:                "REF_EQ",
	OpDeclareLocal:         "DECLARE_LOCAL",
	OpAssign:               "ASSIGN",
	OpBinaryOpAssign:       "BINARY_OP_ASSIGN",
	OpMetaPush:             "META_PUSH",
	OpPushHandler:          "PUSH_HANDLER",
	OpPopHandler:           "POP_HANDLER",
	OpThrow:                "THROW",
	OpCallRpc:              "CALL_RPC",
	OpSyscall:              "SYSCALL",
	OpPrint:                "PRINT",
	OpAsk:                  "ASK",
	OpPushPosition:         "PUSH_POSITION",
	OpPushHeading:          "PUSH_HEADING",
	OpForward:              "FORWARD",
	OpTurn:                 "TURN",
	OpPushEffect:           "PUSH_EFFECT",
	OpSetEffect:            "SET_EFFECT",
	OpChangeEffect:         "CHANGE_EFFECT",
	OpPushRpcError:         "PUSH_RPC_ERROR",
	OpPushSyscallError:     "PUSH_SYSCALL_ERROR",
	OpPushAnswer:           "PUSH_ANSWER",
	OpResetTimer:           "RESET_TIMER",
	OpPushTimer:            "PUSH_TIMER",
	OpSleep:                "SLEEP",
	OpSendNetworkMessage:   "SEND_NETWORK_MESSAGE",
	OpSendNetworkReply:     "SEND_NETWORK_REPLY",
	OpBroadcast:            "BROADCAST",
}

// String returns a human-readable opcode name, used by the disassembler
// and error messages.
func (op Opcode) String() string {
	if n, ok := opcodeNames[op]; ok {
		return n
	}
	return "UNKNOWN"
}

// Arity selects which operand-count family a variadic-style instruction
// uses (spec §4.3's "{Fixed n|Dynamic}" notation): VariadicOp, Syscall,
// ListReshape, and ListCartesianProduct all take either a fixed operand
// count or pop a dynamic count/list at runtime.
type Arity int

const (
	ArityFixed Arity = iota
	ArityDynamic
)

// Instruction is one bytecode instruction: an Opcode plus up to three
// integer operands (A, B, C) whose meaning depends on Op, and an Arity
// flag for the handful of opcodes that distinguish a fixed argument
// count from a dynamic (popped) one. Unused operand fields are zero.
//
// Operand conventions by family:
//   - Jump/ConditionalJump: A = target instruction index.
//   - Call: A = target instruction index, B = param count.
//   - MakeClosure: A = target instruction index, B = param count, C = capture count.
//   - CallClosure: A = arg count.
//   - PushBool: A = 0/1. PushInt: A = value. PushNumber/PushString/PushVariable: A = constant pool index.
//   - DupeValue: A = index from top (0 = current top). SwapValues: A, B = stack indices.
//   - ListReshape/ListCartesianProduct: Arity selects Fixed (A = count) or Dynamic (pops a list).
//   - BinaryOp/UnaryOp/VariadicOp: A = the ops.BinOp/ops.UnOp/ops.VariadicOp code. VariadicOp additionally uses Arity/B for Fixed (B = arg count) or Dynamic (pops a list).
//   - Eq: A = 0/1 (negate).
//   - DeclareLocal/Assign/BinaryOpAssign: A = constant pool index of the name; BinaryOpAssign additionally uses B for the ops.BinOp code.
//   - MetaPush: A = constant pool index of the string.
//   - PushHandler: A = target instruction index, B = constant pool index of the bound variable name.
//   - CallRpc: A, B = constant pool indices of service/rpc names, C = named-arg count.
//   - Syscall: Arity selects Fixed (A = arg count) or Dynamic (pops a list); name is on top of stack.
//   - Print: A = print style (0 console, 1 say, 2 think); value is on top of stack.
//   - Turn: A = 0/1 (right).
//   - PushEffect/SetEffect/ChangeEffect: A = constant pool index of the effect name.
//   - SendNetworkMessage: A = constant pool index of msg_type, B = named-value count, C = 0/1 (expect_reply).
//   - Broadcast: A = 0/1 (wait).
type Instruction struct {
	Op      Opcode
	A, B, C int
	Arity   Arity
}

// Bytecode is a complete compiled program (spec §6 "Bytecode artifact"):
// the instruction stream, the string constant pool instructions index
// into, and the two-pass initialization descriptor for globals and
// entities.
type Bytecode struct {
	Code    []Instruction
	Strings []string
	Data    InitInfo
}

// InitValue is a scalar initializer: a literal Bool/Number, or a
// reference into Bytecode.Data.RefValues resolved during the two-pass
// fixup (spec §6).
type InitValue struct {
	Kind   InitValueKind
	Bool   bool
	Number float64
	Ref    int
}

// InitValueKind tags an InitValue's variant.
type InitValueKind int

const (
	InitBool InitValueKind = iota
	InitNumber
	InitRef
)

// RefValue is a heap-allocated initializer: a String, an Image, or a
// List of InitValue entries (which may themselves be Ref(k) pointing
// elsewhere in RefValues, including back at the list being built,
// letting compiled programs embed cyclic literal data) (spec §6).
type RefValue struct {
	Kind       RefValueKind
	Str        string
	ImageBytes []byte
	ImageFmt   string
	ListItems  []InitValue
}

// RefValueKind tags a RefValue's variant.
type RefValueKind int

const (
	RefString RefValueKind = iota
	RefImage
	RefList
)

// EntityInit describes one entity's starting state within InitInfo
// (spec §6): its name, declared fields (each an InitValue), costume
// indices into RefValues, and starting Properties scalars.
type EntityInit struct {
	Name          string
	Fields        map[string]InitValue
	CostumeRefs   []int // indices into RefValues, each a RefImage
	ActiveCostume int
	Visible       bool
	Size          float64
	X, Y          float64
	Heading       float64
	ColorARGB     uint32
}

// InitInfo is the two-pass initialization descriptor (spec §6):
// globals and entity fields are declared as name/InitValue pairs, and
// RefValues holds every heap-shaped literal (strings, images, lists)
// referenced by InitRef. Initialization allocates every RefValues shell
// first (so a self-referencing list has somewhere to point), then
// populates list contents in a second pass.
type InitInfo struct {
	ProjectName string
	Globals     []GlobalInit
	Entities    []EntityInit
	RefValues   []RefValue
}

// GlobalInit pairs a global variable's name with its initializer.
type GlobalInit struct {
	Name  string
	Value InitValue
}

// Location is a source line/column, keyed by instruction index in a
// Bytecode's Locations table (spec §6 "Locations table", §7
// ErrorSummary) — a secondary artifact distinct from the Bytecode
// itself, since a host may choose not to ship it (e.g. a release build
// that drops debug info).
type Location struct {
	ScriptName string
	Line       int
	Column     int
}

// Locations maps instruction index to source Location. It is optional:
// a nil or incomplete Locations leaves ErrorSummary frames without a
// resolved Location, falling back to the bare bytecode position
// spec.md requires.
type Locations map[int]Location
