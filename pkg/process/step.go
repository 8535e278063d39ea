// Step's instruction dispatch (spec §4.3 "Instruction families and
// semantics"): one call decodes and executes exactly one bytecode
// Instruction, or polls the single outstanding pendingDefer if one is
// parked, and reports back what kind of unit of work it did.
package process

import (
	"encoding/json"

	"github.com/kristofer/scriptvm/pkg/bytecode"
	"github.com/kristofer/scriptvm/pkg/errs"
	"github.com/kristofer/scriptvm/pkg/gcheap"
	"github.com/kristofer/scriptvm/pkg/ops"
	"github.com/kristofer/scriptvm/pkg/symtab"
	"github.com/kristofer/scriptvm/pkg/sysio"
	"github.com/kristofer/scriptvm/pkg/values"
)

// requestAction tags which slot a resolved Request feeds: which
// error scheme governs it, which Process.Last* slot records a Soft
// failure, and (for Input) where the answer is recorded in addition to
// being pushed.
type requestAction int

const (
	actionSyscall requestAction = iota
	actionRpc
	actionInput
	actionPush
)

// Step executes exactly one unit of work (spec §3, §5): if a defer is
// outstanding, it polls that and nothing else; otherwise it decodes and
// executes the single instruction at Pos. It never falls through from
// one to the other within a call, so the scheduler always gets a
// chance to run another Process between them.
func (p *Process) Step(w *gcheap.Witness, sys sysio.System) Status {
	if !p.Alive() {
		if p.Terminated {
			return StatusTerminated
		}
		return StatusErrored
	}

	if d := p.def; d != nil {
		status, cause := p.pollDefer(w, sys)
		if cause != nil {
			return p.fail(cause, d.aftPos)
		}
		return status
	}

	if p.Pos < 0 || p.Pos >= len(p.Code) {
		return p.fail(errs.Newf(errs.NotSupported, "instruction pointer %d out of range", p.Pos), p.Pos)
	}
	ins := p.Code[p.Pos]
	aftPos := p.Pos + 1
	status, cause := p.dispatch(w, sys, ins, aftPos)
	if cause != nil {
		return p.fail(cause, p.Pos)
	}
	return status
}

// fail raises cause at pos: if a handler is pushed, recovery unwinds to
// it and execution continues (StatusContinue); otherwise the Process
// fails outright (StatusErrored).
func (p *Process) fail(cause *errs.ErrorCause, pos int) Status {
	if len(p.Handlers) == 0 {
		p.FailCause = cause
		p.FailPos = pos
		return StatusErrored
	}
	h := p.Handlers[len(p.Handlers)-1]
	p.Handlers = p.Handlers[:len(p.Handlers)-1]
	if h.CallStackSize <= len(p.Calls) {
		p.Calls = p.Calls[:h.CallStackSize]
	}
	if h.ValueStackSize <= len(p.Stack) {
		p.Stack = p.Stack[:h.ValueStackSize]
	}
	p.WarpCounter = h.WarpAtPush
	if h.VarName != "" {
		p.top().Locals.DeclareLocal(h.VarName, values.Str(cause.HandlerBinding()))
	}
	p.Pos = h.Pos
	return StatusContinue
}

// pollDefer polls the one outstanding asynchronous operation. It never
// decodes or executes a bytecode instruction.
func (p *Process) pollDefer(w *gcheap.Witness, sys sysio.System) (Status, *errs.ErrorCause) {
	d := p.def
	switch d.kind {
	case deferRequest:
		out := sys.PollRequest(d.reqKey)
		if out.AlreadyConsumed {
			panic(errs.InternalBug("pollDefer: request key already consumed"))
		}
		if !out.Ready {
			return StatusYield, nil
		}
		cause := p.resolveRequestResult(d.reqAction, out.Value)
		p.def = nil
		p.Pos = d.aftPos
		return StatusContinue, cause

	case deferCommand:
		out := sys.PollCommand(d.cmdKey)
		if out.AlreadyConsumed {
			panic(errs.InternalBug("pollDefer: command key already consumed"))
		}
		if !out.Ready {
			return StatusYield, nil
		}
		cause := resolveCommandResult(out.Value)
		p.def = nil
		p.Pos = d.aftPos
		return StatusContinue, cause

	case deferReply:
		out := sys.PollReply(d.replyKey)
		if out.AlreadyConsumed {
			panic(errs.InternalBug("pollDefer: reply key already consumed"))
		}
		if !out.Ready {
			return StatusYield, nil
		}
		var v values.Value
		if out.Value == nil || *out.Value == "" {
			v = values.Str("")
		} else {
			var raw interface{}
			if err := json.Unmarshal([]byte(*out.Value), &raw); err != nil {
				v = values.Str(*out.Value)
			} else {
				dv, err := values.FromJSON(w, raw)
				if err != nil {
					v = values.Str(*out.Value)
				} else {
					v = dv
				}
			}
		}
		p.push(v)
		p.def = nil
		p.Pos = d.aftPos
		return StatusContinue, nil

	case deferBarrier:
		if d.barrier == nil {
			return StatusYield, nil
		}
		if !d.barrier.IsCompleted() {
			return StatusYield, nil
		}
		p.def = nil
		p.Pos = d.aftPos
		return StatusContinue, nil

	case deferSleep:
		if sys.Time() < d.until {
			return StatusYield, nil
		}
		p.def = nil
		p.Pos = d.aftPos
		return StatusContinue, nil

	default:
		panic(errs.InternalBug("pollDefer: unknown defer kind"))
	}
}

// resolveCommandResult turns a polled Command outcome into an
// ErrorCause, or nil on success. Commands have no Soft scheme — a
// Command failure always becomes a hard Promoted error, matching
// original_source's perform_command! macro (spec §6 "Commands never
// distinguish Soft/Hard").
func resolveCommandResult(res sysio.Result[struct{}]) *errs.ErrorCause {
	if res.Err == "" {
		return nil
	}
	return errs.New(errs.Promoted, res.Err)
}

// resolveRequestResult dispatches a polled Request outcome by which
// kind of request it was: Syscall/Rpc honor their own error scheme and
// last-error slot, Input records the answer, and Push (read-only state
// queries like PushPosition) always errors hard on failure since there
// is no soft fallback value to push instead.
func (p *Process) resolveRequestResult(action requestAction, res sysio.Result[values.Value]) *errs.ErrorCause {
	switch action {
	case actionSyscall:
		return p.resolveSoftRequest(res, p.SyscallErrorScheme, &p.LastSyscallError)
	case actionRpc:
		return p.resolveSoftRequest(res, p.RpcErrorScheme, &p.LastRPCError)
	case actionInput:
		if res.Err != "" {
			return errs.New(errs.Promoted, res.Err)
		}
		p.LastAnswer = &res.Value
		p.push(res.Value)
		return nil
	case actionPush:
		if res.Err != "" {
			return errs.New(errs.Promoted, res.Err)
		}
		p.push(res.Value)
		return nil
	default:
		panic(errs.InternalBug("resolveRequestResult: unknown request action"))
	}
}

// resolveSoftRequest implements the Syscall/Rpc error scheme shared
// logic (spec §4.8 "Soft/hard error"): success clears lastErr and
// pushes the value; a Soft-scheme failure pushes the error message as
// a String and records it in lastErr instead of raising; a Hard-scheme
// failure always raises.
func (p *Process) resolveSoftRequest(res sysio.Result[values.Value], scheme errs.Scheme, lastErr **values.Value) *errs.ErrorCause {
	if res.Err == "" {
		*lastErr = nil
		p.push(res.Value)
		return nil
	}
	if scheme == errs.Hard {
		return errs.New(errs.Promoted, res.Err)
	}
	errVal := values.Str(res.Err)
	*lastErr = &errVal
	p.push(errVal)
	return nil
}

// performCommand runs cmd via sys.PerformCommand: synchronously
// resolved commands advance Pos immediately (possibly raising), while
// an asynchronous one parks this Process on a deferCommand and leaves
// Pos unchanged until pollDefer resolves it.
func (p *Process) performCommand(sys sysio.System, cmd sysio.Command, aftPos int) (Status, *errs.ErrorCause) {
	out, key := sys.PerformCommand(cmd, p.Entity)
	if out.Async {
		p.def = &pendingDefer{kind: deferCommand, aftPos: aftPos, cmdKey: key}
		return StatusYield, nil
	}
	cause := resolveCommandResult(out.Result)
	if cause != nil {
		return StatusContinue, cause
	}
	p.Pos = aftPos
	return StatusContinue, nil
}

// performRequest is performCommand's Request counterpart: it records
// which requestAction this call is (so the eventual resolution, sync
// or async, dispatches through the same per-action logic) before
// resolving or parking.
func (p *Process) performRequest(sys sysio.System, req sysio.Request, action requestAction, aftPos int) (Status, *errs.ErrorCause) {
	out, key := sys.PerformRequest(req, p.Entity)
	if out.Async {
		p.def = &pendingDefer{kind: deferRequest, aftPos: aftPos, reqKey: key, reqAction: action}
		return StatusYield, nil
	}
	cause := p.resolveRequestResult(action, out.Result)
	if cause != nil {
		return StatusContinue, cause
	}
	p.Pos = aftPos
	return StatusContinue, nil
}

// toBoolStrict requires v to already be a Bool (spec §4.2 "strict
// conversion"): unlike the coercions arithmetic/comparison use, ToBool
// and every instruction that tests a condition never treats a
// truthy-looking String or Number as a Bool.
func toBoolStrict(v values.Value) (bool, *errs.ErrorCause) {
	b, ok := v.AsBool()
	if !ok {
		return false, errs.Newf(errs.ConversionError, "cannot convert %s to Bool", v.TypeTag())
	}
	return b, nil
}

// toNumberStrict mirrors ops' unexported toNumber exactly (a Number
// passes through, a String is parsed, anything else fails): it cannot
// call into package ops directly since that helper isn't exported, so
// the identical logic is reproduced here.
func toNumberStrict(v values.Value) (values.Number, *errs.ErrorCause) {
	if n, ok := v.AsNumber(); ok {
		return n, nil
	}
	if s, ok := v.AsString(); ok {
		if n, ok := values.ParseNumber(s); ok {
			return n, nil
		}
	}
	return values.Number{}, errs.Newf(errs.ConversionError, "cannot convert %s to Number", v.TypeTag())
}

// toStringStrict is stricter than ops' unexported coerceString: a
// Bool does NOT render as "true"/"false" here the way it does for
// StrCat/SplitBy, matching original_source's to_string(), which raises
// ConversionError on Bool rather than stringifying it.
func toStringStrict(v values.Value) (string, *errs.ErrorCause) {
	switch v.Kind() {
	case values.KindString:
		s, _ := v.AsString()
		return s, nil
	case values.KindNumber:
		n, _ := v.AsNumber()
		return n.String(), nil
	default:
		return "", errs.Newf(errs.ConversionError, "cannot convert %s to String", v.TypeTag())
	}
}

// listOf requires v to be a List, dereferencing its handle through w.
func listOf(w *gcheap.Witness, v values.Value) (*values.List, *errs.ErrorCause) {
	h, ok := v.Handle()
	if ok {
		if l, ok := w.Get(h).(*values.List); ok {
			return l, nil
		}
	}
	return nil, errs.Newf(errs.ConversionError, "expected a List, got %s", v.TypeTag())
}

// prepIndex converts a 1-based Number index to a 0-based int, checked
// against [1,bound] (spec §4.2 "List indices are 1-based").
func prepIndex(n values.Number, bound int) (int, *errs.ErrorCause) {
	if !n.IsInteger() {
		return 0, errs.New(errs.IndexNotInteger, "list index must be an integer")
	}
	i := n.Int64()
	if i < 1 || int(i) > bound {
		return 0, errs.Newf(errs.IndexOutOfBounds, "index %d out of range [1,%d]", i, bound)
	}
	return int(i) - 1, nil
}

func dimFromValue(v values.Value) (int, *errs.ErrorCause) {
	n, cause := toNumberStrict(v)
	if cause != nil {
		return 0, cause
	}
	if !n.IsInteger() || n.Int64() < 0 {
		return 0, errs.Newf(errs.InvalidSize, "invalid reshape dimension %v", n.Float())
	}
	return int(n.Int64()), nil
}

// dispatch decodes ins and executes it in place, returning the Status
// to report and, on failure, the ErrorCause that occurred (which Step
// routes through handler recovery). Every case is responsible for
// setting p.Pos itself; there is no implicit fallthrough to aftPos.
func (p *Process) dispatch(w *gcheap.Witness, sys sysio.System, ins bytecode.Instruction, aftPos int) (Status, *errs.ErrorCause) {
	switch ins.Op {

	// --- Control flow ---

	case bytecode.OpYield:
		p.Pos = aftPos
		if p.WarpCounter > 0 {
			return StatusContinue, nil
		}
		return StatusYield, nil

	case bytecode.OpWarpStart:
		p.WarpCounter++
		p.Pos = aftPos
		return StatusContinue, nil

	case bytecode.OpWarpStop:
		if p.WarpCounter > 0 {
			p.WarpCounter--
		}
		p.Pos = aftPos
		return StatusContinue, nil

	case bytecode.OpJump:
		p.Pos = ins.A
		return StatusContinue, nil

	case bytecode.OpConditionalJump:
		v := p.pop()
		b, cause := toBoolStrict(v)
		if cause != nil {
			return StatusContinue, cause
		}
		when := ins.B != 0
		if b == when {
			p.Pos = ins.A
		} else {
			p.Pos = aftPos
		}
		return StatusContinue, nil

	case bytecode.OpCall:
		if len(p.Calls) >= p.MaxCallDepth {
			return StatusContinue, errs.Newf(errs.CallDepthLimit, "call depth exceeded %d", p.MaxCallDepth)
		}
		paramCount := ins.B
		argValues := p.popN(paramCount)
		names := p.popMetaN(paramCount)
		locals := symtab.New(p.Fields)
		for i, name := range names {
			locals.DeclareLocal(name, argValues[i])
		}
		p.Calls = append(p.Calls, CallFrame{
			Name:           "call",
			Locals:         locals,
			CalledFrom:     p.Pos,
			ReturnTo:       aftPos,
			ValueStackSize: len(p.Stack),
			HandlerStackSize: len(p.Handlers),
			WarpAtCall:     p.WarpCounter,
		})
		p.Pos = ins.A
		return StatusContinue, nil

	case bytecode.OpMakeClosure:
		paramCount, captureCount := ins.B, ins.C
		entries := p.popMetaN(paramCount + captureCount)
		names := append([]string(nil), entries[:paramCount]...)
		captureNames := entries[paramCount:]
		// Parented to p.Fields (which itself chains to Global.Vars) so a
		// closure body can still reach globals and entity fields it never
		// explicitly captured, matching the single flat lookup scope the
		// original interpreter builds fresh every step.
		caps := symtab.New(p.Fields)
		for _, name := range captureNames {
			shared, ok := p.top().Locals.Alias(w, name)
			if !ok {
				return StatusContinue, errs.Newf(errs.UndefinedVariable, "undefined capture %q", name)
			}
			caps.RedefineOrDefine(name, shared)
		}
		closureVal, _ := values.NewClosure(w, ins.A, names, caps)
		p.push(closureVal)
		p.Pos = aftPos
		return StatusContinue, nil

	case bytecode.OpCallClosure:
		argCount := ins.A
		closureVal := p.pop()
		h, ok := closureVal.Handle()
		var cl *values.Closure
		if ok {
			cl, ok = w.Get(h).(*values.Closure)
		}
		if !ok {
			return StatusContinue, errs.Newf(errs.ConversionError, "expected a Closure, got %s", closureVal.TypeTag())
		}
		if len(cl.Params) != argCount {
			return StatusContinue, errs.Newf(errs.ClosureArgCount, "closure expects %d args, got %d", len(cl.Params), argCount)
		}
		if len(p.Calls) >= p.MaxCallDepth {
			return StatusContinue, errs.Newf(errs.CallDepthLimit, "call depth exceeded %d", p.MaxCallDepth)
		}
		argValues := p.popN(argCount)
		capsTable, ok := cl.Captures.(*symtab.SymbolTable)
		if !ok {
			capsTable = symtab.New(p.Fields)
		}
		locals := symtab.New(capsTable)
		for i, name := range cl.Params {
			locals.DeclareLocal(name, argValues[i])
		}
		p.Calls = append(p.Calls, CallFrame{
			Name:           "closure",
			Locals:         locals,
			CalledFrom:     p.Pos,
			ReturnTo:       aftPos,
			ValueStackSize: len(p.Stack),
			HandlerStackSize: len(p.Handlers),
			WarpAtCall:     p.WarpCounter,
		})
		p.Pos = cl.Entry
		return StatusContinue, nil

	case bytecode.OpReturn:
		retVal := p.pop()
		frame := p.Calls[len(p.Calls)-1]
		p.Calls = p.Calls[:len(p.Calls)-1]
		p.WarpCounter = frame.WarpAtCall
		if frame.ValueStackSize <= len(p.Stack) {
			p.Stack = p.Stack[:frame.ValueStackSize]
		}
		if frame.HandlerStackSize <= len(p.Handlers) {
			p.Handlers = p.Handlers[:frame.HandlerStackSize]
		}
		if len(p.Calls) == 0 {
			p.Terminated = true
			p.Result = retVal
			return StatusTerminated, nil
		}
		p.Pos = frame.ReturnTo
		p.push(retVal)
		return StatusContinue, nil

	// --- Value/stack ---

	case bytecode.OpPushBool:
		p.push(values.Bool(ins.A != 0))
		p.Pos = aftPos
		return StatusContinue, nil

	case bytecode.OpPushInt:
		p.push(values.Num(values.Int(int64(ins.A))))
		p.Pos = aftPos
		return StatusContinue, nil

	case bytecode.OpPushNumber:
		n, _ := values.ParseNumber(p.constString(ins.A))
		p.push(values.Num(n))
		p.Pos = aftPos
		return StatusContinue, nil

	case bytecode.OpPushString:
		p.push(values.Str(p.constString(ins.A)))
		p.Pos = aftPos
		return StatusContinue, nil

	case bytecode.OpPushVariable:
		name := p.constString(ins.A)
		shared, ok := p.top().Locals.Lookup(name)
		if !ok {
			return StatusContinue, errs.Newf(errs.UndefinedVariable, "undefined variable %q", name)
		}
		p.push(shared.Get(w))
		p.Pos = aftPos
		return StatusContinue, nil

	case bytecode.OpPopValue:
		p.pop()
		p.Pos = aftPos
		return StatusContinue, nil

	case bytecode.OpDupeValue:
		idx := len(p.Stack) - 1 - ins.A
		if idx < 0 || idx >= len(p.Stack) {
			return StatusContinue, errs.Newf(errs.NotSupported, "dupe index %d out of range", ins.A)
		}
		p.push(p.Stack[idx])
		p.Pos = aftPos
		return StatusContinue, nil

	case bytecode.OpSwapValues:
		ia, ib := ins.A, ins.B
		if ia < 0 || ia >= len(p.Stack) || ib < 0 || ib >= len(p.Stack) {
			return StatusContinue, errs.New(errs.NotSupported, "swap index out of range")
		}
		p.Stack[ia], p.Stack[ib] = p.Stack[ib], p.Stack[ia]
		p.Pos = aftPos
		return StatusContinue, nil

	case bytecode.OpToBool:
		b, cause := toBoolStrict(p.pop())
		if cause != nil {
			return StatusContinue, cause
		}
		p.push(values.Bool(b))
		p.Pos = aftPos
		return StatusContinue, nil

	case bytecode.OpToNumber:
		n, cause := toNumberStrict(p.pop())
		if cause != nil {
			return StatusContinue, cause
		}
		p.push(values.Num(n))
		p.Pos = aftPos
		return StatusContinue, nil

	// --- List ---

	case bytecode.OpListCons:
		list := p.pop()
		item := p.pop()
		l, cause := listOf(w, list)
		if cause != nil {
			return StatusContinue, cause
		}
		items := append([]values.Value{item}, l.Items()...)
		lv, _ := values.NewList(w, items...)
		p.push(lv)
		p.Pos = aftPos
		return StatusContinue, nil

	case bytecode.OpListCdr:
		list := p.pop()
		l, cause := listOf(w, list)
		if cause != nil {
			return StatusContinue, cause
		}
		if l.Len() == 0 {
			return StatusContinue, errs.New(errs.EmptyList, "cdr of empty list")
		}
		lv, _ := values.NewList(w, l.Items()[1:]...)
		p.push(lv)
		p.Pos = aftPos
		return StatusContinue, nil

	case bytecode.OpListFind:
		list := p.pop()
		val := p.pop()
		l, cause := listOf(w, list)
		if cause != nil {
			return StatusContinue, cause
		}
		idx := 0
		for i := 0; i < l.Len(); i++ {
			if ops.CheckEq(w, val, l.At(i)) {
				idx = i + 1
				break
			}
		}
		p.push(values.Num(values.Int(int64(idx))))
		p.Pos = aftPos
		return StatusContinue, nil

	case bytecode.OpListContains:
		list := p.pop()
		val := p.pop()
		l, cause := listOf(w, list)
		if cause != nil {
			return StatusContinue, cause
		}
		found := false
		for i := 0; i < l.Len(); i++ {
			if ops.CheckEq(w, val, l.At(i)) {
				found = true
				break
			}
		}
		p.push(values.Bool(found))
		p.Pos = aftPos
		return StatusContinue, nil

	case bytecode.OpListIsEmpty:
		l, cause := listOf(w, p.pop())
		if cause != nil {
			return StatusContinue, cause
		}
		p.push(values.Bool(l.Len() == 0))
		p.Pos = aftPos
		return StatusContinue, nil

	case bytecode.OpListLength:
		l, cause := listOf(w, p.pop())
		if cause != nil {
			return StatusContinue, cause
		}
		p.push(values.Num(values.Int(int64(l.Len()))))
		p.Pos = aftPos
		return StatusContinue, nil

	case bytecode.OpListDims:
		v := p.pop()
		dims, err := ops.Dimensions(w, v)
		if err != nil {
			return StatusContinue, asErrorCause(err)
		}
		items := make([]values.Value, len(dims))
		for i, d := range dims {
			items[i] = values.Num(values.Int(int64(d)))
		}
		lv, _ := values.NewList(w, items...)
		p.push(lv)
		p.Pos = aftPos
		return StatusContinue, nil

	case bytecode.OpListRank:
		v := p.pop()
		dims, err := ops.Dimensions(w, v)
		if err != nil {
			return StatusContinue, asErrorCause(err)
		}
		p.push(values.Num(values.Int(int64(len(dims)))))
		p.Pos = aftPos
		return StatusContinue, nil

	case bytecode.OpListRev:
		l, cause := listOf(w, p.pop())
		if cause != nil {
			return StatusContinue, cause
		}
		items := l.Items()
		rev := make([]values.Value, len(items))
		for i, v := range items {
			rev[len(items)-1-i] = v
		}
		lv, _ := values.NewList(w, rev...)
		p.push(lv)
		p.Pos = aftPos
		return StatusContinue, nil

	case bytecode.OpListFlatten:
		v := p.pop()
		flat, err := ops.Flatten(w, v)
		if err != nil {
			return StatusContinue, asErrorCause(err)
		}
		lv, _ := values.NewList(w, flat...)
		p.push(lv)
		p.Pos = aftPos
		return StatusContinue, nil

	case bytecode.OpListReshape:
		var dimVals []values.Value
		if ins.Arity == bytecode.ArityDynamic {
			l, cause := listOf(w, p.pop())
			if cause != nil {
				return StatusContinue, cause
			}
			dimVals = l.Items()
		} else {
			dimVals = p.popN(ins.A)
		}
		src := p.pop()
		dims := make([]int, len(dimVals))
		for i, dv := range dimVals {
			d, cause := dimFromValue(dv)
			if cause != nil {
				return StatusContinue, cause
			}
			dims[i] = d
		}
		out, err := ops.Reshape(w, src, dims)
		if err != nil {
			return StatusContinue, asErrorCause(err)
		}
		p.push(out)
		p.Pos = aftPos
		return StatusContinue, nil

	case bytecode.OpListCartesianProduct:
		var listVals []values.Value
		if ins.Arity == bytecode.ArityDynamic {
			l, cause := listOf(w, p.pop())
			if cause != nil {
				return StatusContinue, cause
			}
			listVals = l.Items()
		} else {
			listVals = p.popN(ins.A)
		}
		lists := make([]*values.List, len(listVals))
		for i, lv := range listVals {
			l, cause := listOf(w, lv)
			if cause != nil {
				return StatusContinue, cause
			}
			lists[i] = l
		}
		out, err := ops.CartesianProduct(w, lists)
		if err != nil {
			return StatusContinue, asErrorCause(err)
		}
		p.push(out)
		p.Pos = aftPos
		return StatusContinue, nil

	case bytecode.OpListJson:
		v := p.pop()
		raw, err := values.ToJSON(w, v)
		if err != nil {
			return StatusContinue, jsonErrorCause(err)
		}
		buf, err := json.Marshal(raw)
		if err != nil {
			return StatusContinue, errs.New(errs.ToJsonErrorCause, err.Error())
		}
		p.push(values.Str(string(buf)))
		p.Pos = aftPos
		return StatusContinue, nil

	case bytecode.OpListInsert:
		list := p.pop()
		idxVal := p.pop()
		val := p.pop()
		l, cause := listOf(w, list)
		if cause != nil {
			return StatusContinue, cause
		}
		n, cause := toNumberStrict(idxVal)
		if cause != nil {
			return StatusContinue, cause
		}
		idx, cause := prepIndex(n, l.Len()+1)
		if cause != nil {
			return StatusContinue, cause
		}
		l.InsertAt(idx, val)
		p.Pos = aftPos
		return StatusContinue, nil

	case bytecode.OpListInsertLast:
		list := p.pop()
		val := p.pop()
		l, cause := listOf(w, list)
		if cause != nil {
			return StatusContinue, cause
		}
		l.PushBack(val)
		p.Pos = aftPos
		return StatusContinue, nil

	case bytecode.OpListInsertRandom:
		list := p.pop()
		val := p.pop()
		l, cause := listOf(w, list)
		if cause != nil {
			return StatusContinue, cause
		}
		idx := 0
		if l.Len() > 0 {
			idx = int(sys.Rand(0, float64(l.Len()+1)))
			if idx > l.Len() {
				idx = l.Len()
			}
		}
		l.InsertAt(idx, val)
		p.Pos = aftPos
		return StatusContinue, nil

	case bytecode.OpListGet:
		list := p.pop()
		idxVal := p.pop()
		l, cause := listOf(w, list)
		if cause != nil {
			return StatusContinue, cause
		}
		n, cause := toNumberStrict(idxVal)
		if cause != nil {
			return StatusContinue, cause
		}
		out, err := ops.Index(l, n)
		if err != nil {
			return StatusContinue, asErrorCause(err)
		}
		p.push(out)
		p.Pos = aftPos
		return StatusContinue, nil

	case bytecode.OpListGetLast:
		l, cause := listOf(w, p.pop())
		if cause != nil {
			return StatusContinue, cause
		}
		if l.Len() == 0 {
			return StatusContinue, errs.New(errs.EmptyList, "last of empty list")
		}
		p.push(l.At(l.Len() - 1))
		p.Pos = aftPos
		return StatusContinue, nil

	case bytecode.OpListGetRandom:
		l, cause := listOf(w, p.pop())
		if cause != nil {
			return StatusContinue, cause
		}
		if l.Len() == 0 {
			return StatusContinue, errs.New(errs.EmptyList, "random element of empty list")
		}
		idx := int(sys.Rand(0, float64(l.Len())))
		if idx >= l.Len() {
			idx = l.Len() - 1
		}
		p.push(l.At(idx))
		p.Pos = aftPos
		return StatusContinue, nil

	case bytecode.OpListAssign:
		val := p.pop()
		list := p.pop()
		idxVal := p.pop()
		l, cause := listOf(w, list)
		if cause != nil {
			return StatusContinue, cause
		}
		n, cause := toNumberStrict(idxVal)
		if cause != nil {
			return StatusContinue, cause
		}
		idx, cause := prepIndex(n, l.Len())
		if cause != nil {
			return StatusContinue, cause
		}
		l.Set(idx, val)
		p.Pos = aftPos
		return StatusContinue, nil

	case bytecode.OpListAssignLast:
		val := p.pop()
		l, cause := listOf(w, p.pop())
		if cause != nil {
			return StatusContinue, cause
		}
		if l.Len() == 0 {
			return StatusContinue, errs.New(errs.EmptyList, "assign last of empty list")
		}
		l.Set(l.Len()-1, val)
		p.Pos = aftPos
		return StatusContinue, nil

	case bytecode.OpListAssignRandom:
		val := p.pop()
		l, cause := listOf(w, p.pop())
		if cause != nil {
			return StatusContinue, cause
		}
		if l.Len() == 0 {
			return StatusContinue, errs.New(errs.EmptyList, "assign random of empty list")
		}
		idx := int(sys.Rand(0, float64(l.Len())))
		if idx >= l.Len() {
			idx = l.Len() - 1
		}
		l.Set(idx, val)
		p.Pos = aftPos
		return StatusContinue, nil

	case bytecode.OpListRemove:
		list := p.pop()
		idxVal := p.pop()
		l, cause := listOf(w, list)
		if cause != nil {
			return StatusContinue, cause
		}
		n, cause := toNumberStrict(idxVal)
		if cause != nil {
			return StatusContinue, cause
		}
		idx, cause := prepIndex(n, l.Len())
		if cause != nil {
			return StatusContinue, cause
		}
		l.RemoveAt(idx)
		p.Pos = aftPos
		return StatusContinue, nil

	case bytecode.OpListRemoveLast:
		l, cause := listOf(w, p.pop())
		if cause != nil {
			return StatusContinue, cause
		}
		if l.Len() == 0 {
			return StatusContinue, errs.New(errs.EmptyList, "remove last of empty list")
		}
		l.RemoveAt(l.Len() - 1)
		p.Pos = aftPos
		return StatusContinue, nil

	case bytecode.OpListRemoveAll:
		l, cause := listOf(w, p.pop())
		if cause != nil {
			return StatusContinue, cause
		}
		l.RemoveAll()
		p.Pos = aftPos
		return StatusContinue, nil

	case bytecode.OpListPopFirstOrElse:
		l, cause := listOf(w, p.pop())
		if cause != nil {
			return StatusContinue, cause
		}
		if l.Len() == 0 {
			p.Pos = ins.A
			return StatusContinue, nil
		}
		v, _ := l.PopFront()
		p.push(v)
		p.Pos = aftPos
		return StatusContinue, nil

	// --- Arithmetic ---

	case bytecode.OpBinaryOp:
		b := p.pop()
		a := p.pop()
		out, err := ops.BinaryLift(w, ops.BinOp(ins.A), a, b, true)
		if err != nil {
			return StatusContinue, asErrorCause(err)
		}
		p.push(out)
		p.Pos = aftPos
		return StatusContinue, nil

	case bytecode.OpUnaryOp:
		a := p.pop()
		out, err := ops.LiftUnary(w, ops.UnOp(ins.A), a)
		if err != nil {
			return StatusContinue, asErrorCause(err)
		}
		p.push(out)
		p.Pos = aftPos
		return StatusContinue, nil

	case bytecode.OpVariadicOp:
		var args []values.Value
		if ins.Arity == bytecode.ArityDynamic {
			v := p.pop()
			a, err := ops.ArgsFromList(w, v)
			if err != nil {
				return StatusContinue, asErrorCause(err)
			}
			args = a
		} else {
			args = p.popN(ins.B)
		}
		out, err := ops.Variadic(w, ops.VariadicOp(ins.A), args)
		if err != nil {
			return StatusContinue, asErrorCause(err)
		}
		p.push(out)
		p.Pos = aftPos
		return StatusContinue, nil

	// --- Comparison ---

	case bytecode.OpEq:
		b := p.pop()
		a := p.pop()
		eq := ops.CheckEq(w, a, b)
		negate := ins.A != 0
		p.push(values.Bool(eq != negate))
		p.Pos = aftPos
		return StatusContinue, nil

	case bytecode.OpRefEq:
		b := p.pop()
		a := p.pop()
		p.push(values.Bool(ops.CheckRefEq(a, b)))
		p.Pos = aftPos
		return StatusContinue, nil

	// --- Variables ---

	case bytecode.OpDeclareLocal:
		name := p.constString(ins.A)
		p.top().Locals.DeclareLocal(name, values.Num(values.Zero))
		p.Pos = aftPos
		return StatusContinue, nil

	case bytecode.OpAssign:
		v := p.pop()
		name := p.constString(ins.A)
		p.top().Locals.SetOrDefine(w, name, v)
		p.Pos = aftPos
		return StatusContinue, nil

	case bytecode.OpBinaryOpAssign:
		b := p.pop()
		name := p.constString(ins.A)
		shared, ok := p.top().Locals.Lookup(name)
		if !ok {
			return StatusContinue, errs.Newf(errs.UndefinedVariable, "undefined variable %q", name)
		}
		a := shared.Get(w)
		out, err := ops.BinaryLift(w, ops.BinOp(ins.B), a, b, true)
		if err != nil {
			return StatusContinue, asErrorCause(err)
		}
		p.top().Locals.SetOrDefine(w, name, out)
		p.Pos = aftPos
		return StatusContinue, nil

	// --- Meta ---

	case bytecode.OpMetaPush:
		p.Meta = append(p.Meta, p.constString(ins.A))
		p.Pos = aftPos
		return StatusContinue, nil

	// --- Exception handling ---

	case bytecode.OpPushHandler:
		p.Handlers = append(p.Handlers, Handler{
			Pos:            ins.A,
			VarName:        p.constString(ins.B),
			WarpAtPush:     p.WarpCounter,
			CallStackSize:  len(p.Calls),
			ValueStackSize: len(p.Stack),
		})
		p.Pos = aftPos
		return StatusContinue, nil

	case bytecode.OpPopHandler:
		if len(p.Handlers) > 0 {
			p.Handlers = p.Handlers[:len(p.Handlers)-1]
		}
		p.Pos = aftPos
		return StatusContinue, nil

	case bytecode.OpThrow:
		msg, cause := toStringStrict(p.pop())
		if cause != nil {
			return StatusContinue, cause
		}
		return StatusContinue, errs.New(errs.Custom, msg)

	// --- Async requests/commands ---

	case bytecode.OpCallRpc:
		service := p.constString(ins.A)
		rpc := p.constString(ins.B)
		argCount := ins.C
		argValues := p.popN(argCount)
		names := p.popMetaN(argCount)
		namedArgs := make([]sysio.NamedValue, argCount)
		for i := range namedArgs {
			namedArgs[i] = sysio.NamedValue{Name: names[i], Value: argValues[i]}
		}
		req := sysio.Request{Kind: sysio.FeatureRpc, Service: service, Rpc: rpc, NamedArgs: namedArgs}
		return p.performRequest(sys, req, actionRpc, aftPos)

	case bytecode.OpSyscall:
		name, cause := toStringStrict(p.pop())
		if cause != nil {
			return StatusContinue, cause
		}
		var args []values.Value
		if ins.Arity == bytecode.ArityDynamic {
			l, cause := listOf(w, p.pop())
			if cause != nil {
				return StatusContinue, cause
			}
			args = append([]values.Value(nil), l.Items()...)
		} else {
			args = p.popN(ins.A)
		}
		req := sysio.Request{Kind: sysio.FeatureSyscall, SyscallName: name, Args: args}
		return p.performRequest(sys, req, actionSyscall, aftPos)

	case bytecode.OpPrint:
		v := p.pop()
		cmd := sysio.Command{Kind: sysio.FeaturePrint, PrintStyle: sysio.PrintStyle(ins.A), PrintValue: &v}
		return p.performCommand(sys, cmd, aftPos)

	case bytecode.OpAsk:
		prompt, cause := toStringStrict(p.pop())
		if cause != nil {
			return StatusContinue, cause
		}
		var promptPtr *string
		if prompt != "" {
			promptPtr = &prompt
		}
		req := sysio.Request{Kind: sysio.FeatureInput, Prompt: promptPtr}
		return p.performRequest(sys, req, actionInput, aftPos)

	case bytecode.OpPushPosition:
		req := sysio.Request{Kind: sysio.FeatureProperty, Property: "position"}
		return p.performRequest(sys, req, actionPush, aftPos)

	case bytecode.OpPushHeading:
		req := sysio.Request{Kind: sysio.FeatureProperty, Property: "heading"}
		return p.performRequest(sys, req, actionPush, aftPos)

	case bytecode.OpForward:
		n, cause := toNumberStrict(p.pop())
		if cause != nil {
			return StatusContinue, cause
		}
		cmd := sysio.Command{Kind: sysio.FeatureForward, Distance: n.Float()}
		return p.performCommand(sys, cmd, aftPos)

	case bytecode.OpTurn:
		n, cause := toNumberStrict(p.pop())
		if cause != nil {
			return StatusContinue, cause
		}
		deg := n.Float()
		if ins.A == 0 {
			deg = -deg
		}
		cmd := sysio.Command{Kind: sysio.FeatureTurn, Degrees: deg}
		return p.performCommand(sys, cmd, aftPos)

	case bytecode.OpPushEffect:
		req := sysio.Request{Kind: sysio.FeatureProperty, Property: p.constString(ins.A)}
		return p.performRequest(sys, req, actionPush, aftPos)

	case bytecode.OpSetEffect:
		n, cause := toNumberStrict(p.pop())
		if cause != nil {
			return StatusContinue, cause
		}
		cmd := sysio.Command{Kind: sysio.FeatureSetProperty, Property: p.constString(ins.A), Amount: values.Num(n)}
		return p.performCommand(sys, cmd, aftPos)

	case bytecode.OpChangeEffect:
		n, cause := toNumberStrict(p.pop())
		if cause != nil {
			return StatusContinue, cause
		}
		cmd := sysio.Command{Kind: sysio.FeatureChangeProperty, Property: p.constString(ins.A), Amount: values.Num(n)}
		return p.performCommand(sys, cmd, aftPos)

	// --- Error channels ---

	case bytecode.OpPushRpcError:
		if p.LastRPCError == nil {
			p.push(values.Str(""))
		} else {
			p.push(*p.LastRPCError)
		}
		p.Pos = aftPos
		return StatusContinue, nil

	case bytecode.OpPushSyscallError:
		if p.LastSyscallError == nil {
			p.push(values.Str(""))
		} else {
			p.push(*p.LastSyscallError)
		}
		p.Pos = aftPos
		return StatusContinue, nil

	case bytecode.OpPushAnswer:
		if p.LastAnswer == nil {
			p.push(values.Str(""))
		} else {
			p.push(*p.LastAnswer)
		}
		p.Pos = aftPos
		return StatusContinue, nil

	// --- Timer ---

	case bytecode.OpResetTimer:
		p.Global.TimerStart = sys.Time()
		p.Pos = aftPos
		return StatusContinue, nil

	case bytecode.OpPushTimer:
		elapsed := float64(sys.Time()-p.Global.TimerStart) / 1000
		p.push(values.Num(values.MustNumber(elapsed)))
		p.Pos = aftPos
		return StatusContinue, nil

	// --- Sleep ---

	case bytecode.OpSleep:
		n, cause := toNumberStrict(p.pop())
		if cause != nil {
			return StatusContinue, cause
		}
		if n.Float() <= 0 {
			p.Pos = aftPos
			return StatusYield, nil
		}
		until := sys.Time() + int64(n.Float()*1000)
		p.def = &pendingDefer{kind: deferSleep, aftPos: aftPos, until: until}
		return StatusYield, nil

	// --- Messaging ---

	case bytecode.OpSendNetworkMessage:
		msgType := p.constString(ins.A)
		count := ins.B
		argValues := p.popN(count)
		names := p.popMetaN(count)
		target, cause := toStringStrict(p.pop())
		if cause != nil {
			return StatusContinue, cause
		}
		pairs := make([]sysio.NamedValue, count)
		for i := range pairs {
			pairs[i] = sysio.NamedValue{Name: names[i], Value: argValues[i]}
		}
		// original_source's SendNetworkMessage pops name/value pairs in a
		// loop without reversing afterward (unlike CallRpc, which does),
		// so the wire order ends up reverse-of-declaration order.
		for i, j := 0, len(pairs)-1; i < j; i, j = i+1, j-1 {
			pairs[i], pairs[j] = pairs[j], pairs[i]
		}
		var targets []string
		if target != "" {
			targets = []string{target}
		}
		expectReply := ins.C != 0
		replyKey, waiting := sys.SendMessage(msgType, pairs, targets, expectReply)
		if waiting {
			p.def = &pendingDefer{kind: deferReply, aftPos: aftPos, replyKey: replyKey}
			return StatusYield, nil
		}
		p.Pos = aftPos
		return StatusContinue, nil

	case bytecode.OpSendNetworkReply:
		v := p.pop()
		if !p.hasReplyKey {
			return StatusContinue, errs.New(errs.NotSupported, "send_network_reply with no pending incoming message")
		}
		raw, err := values.ToJSON(w, v)
		if err != nil {
			return StatusContinue, jsonErrorCause(err)
		}
		buf, err := json.Marshal(raw)
		if err != nil {
			return StatusContinue, errs.New(errs.ToJsonErrorCause, err.Error())
		}
		sys.SendReply(p.replyKey, string(buf))
		p.hasReplyKey = false
		p.Pos = aftPos
		return StatusContinue, nil

	case bytecode.OpBroadcast:
		msgType, cause := toStringStrict(p.pop())
		if cause != nil {
			return StatusContinue, cause
		}
		p.BroadcastMsgType = msgType
		p.BroadcastWait = ins.A != 0
		if p.BroadcastWait {
			p.def = &pendingDefer{kind: deferBarrier, aftPos: aftPos}
		} else {
			p.Pos = aftPos
		}
		return StatusBroadcast, nil

	default:
		return StatusContinue, errs.Newf(errs.NotSupported, "unimplemented opcode %s", ins.Op)
	}
}

// asErrorCause recovers the *errs.ErrorCause package ops/values
// functions actually return (as a plain error) back into the typed
// cause Process propagates through handler recovery.
func asErrorCause(err error) *errs.ErrorCause {
	if ec, ok := err.(*errs.ErrorCause); ok {
		return ec
	}
	return errs.New(errs.Promoted, err.Error())
}

// jsonErrorCause maps values.ToJSON's sentinel errors onto the
// matching Cause.
func jsonErrorCause(err error) *errs.ErrorCause {
	switch err {
	case values.Cyclic:
		return errs.New(errs.CyclicValue, err.Error())
	case values.ComplexType:
		return errs.New(errs.ToJsonErrorCause, err.Error())
	default:
		return errs.New(errs.ToJsonErrorCause, err.Error())
	}
}
