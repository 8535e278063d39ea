// Disassembly output for Bytecode, the engine's analogue of the
// teacher's binary .sg format.go: where the teacher serializes
// Bytecode to a compact binary file, this engine's bytecode instead
// comes from an external compiler as a ready-made value (spec §6
// "Bytecode artifact" is host-supplied input, not a file this package
// round-trips), so the part of format.go worth keeping is its
// complement: a human-readable rendering for `cmd/engine disasm` and
// for debugging test fixtures.
package bytecode

import (
	"fmt"
	"strings"

	"github.com/olekukonko/tablewriter"
)

// Disassemble renders bc's instruction stream as an aligned table:
// index, opcode name, operands, and (if locs is non-nil) the resolved
// source position.
func Disassemble(bc *Bytecode, locs Locations) string {
	var sb strings.Builder
	table := tablewriter.NewWriter(&sb)
	table.SetHeader([]string{"#", "OP", "A", "B", "C", "SOURCE"})
	table.SetAutoFormatHeaders(false)
	table.SetBorder(false)

	for i, ins := range bc.Code {
		row := []string{
			fmt.Sprintf("%d", i),
			operandLabel(bc, ins),
			fmt.Sprintf("%d", ins.A),
			fmt.Sprintf("%d", ins.B),
			fmt.Sprintf("%d", ins.C),
			sourceLabel(locs, i),
		}
		table.Append(row)
	}
	table.Render()
	return sb.String()
}

// operandLabel renders an instruction's opcode, annotating operands
// that index into Strings with the literal they name so a disassembly
// reader doesn't have to cross-reference the constant pool by hand.
func operandLabel(bc *Bytecode, ins Instruction) string {
	name := ins.Op.String()
	switch ins.Op {
	case OpPushString, OpPushVariable, OpDeclareLocal, OpAssign, OpMetaPush,
		OpPushEffect, OpSetEffect, OpChangeEffect:
		if ins.A >= 0 && ins.A < len(bc.Strings) {
			return fmt.Sprintf("%s %q", name, bc.Strings[ins.A])
		}
	case OpSendNetworkMessage:
		if ins.A >= 0 && ins.A < len(bc.Strings) {
			return fmt.Sprintf("%s %q", name, bc.Strings[ins.A])
		}
	}
	return name
}

func sourceLabel(locs Locations, pos int) string {
	if locs == nil {
		return ""
	}
	loc, ok := locs[pos]
	if !ok {
		return ""
	}
	if loc.ScriptName == "" {
		return fmt.Sprintf("%d:%d", loc.Line, loc.Column)
	}
	return fmt.Sprintf("%s:%d:%d", loc.ScriptName, loc.Line, loc.Column)
}
