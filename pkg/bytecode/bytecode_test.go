package bytecode

import "testing"

func TestOpcodeStringKnownAndUnknown(t *testing.T) {
	if got := OpJump.String(); got != "JUMP" {
		t.Fatalf("OpJump.String() = %q, want JUMP", got)
	}
	unknown := Opcode(255)
	if got := unknown.String(); got != "UNKNOWN" {
		t.Fatalf("unknown opcode String() = %q, want UNKNOWN", got)
	}
}

func TestDisassembleAnnotatesStringOperands(t *testing.T) {
	bc := &Bytecode{
		Strings: []string{"x", "hello"},
		Code: []Instruction{
			{Op: OpPushString, A: 1},
			{Op: OpDeclareLocal, A: 0},
			{Op: OpReturn},
		},
	}
	out := Disassemble(bc, nil)
	if out == "" {
		t.Fatal("Disassemble returned empty output")
	}
	if !contains(out, `"hello"`) {
		t.Errorf("disassembly missing string literal annotation: %s", out)
	}
	if !contains(out, `"x"`) {
		t.Errorf("disassembly missing declared-local name annotation: %s", out)
	}
}

func TestDisassembleWithLocations(t *testing.T) {
	bc := &Bytecode{
		Code: []Instruction{{Op: OpYield}},
	}
	locs := Locations{0: {ScriptName: "main", Line: 5, Column: 2}}
	out := Disassemble(bc, locs)
	if !contains(out, "main:5:2") {
		t.Errorf("disassembly missing resolved source location: %s", out)
	}
}

func contains(s, sub string) bool {
	return len(s) >= len(sub) && indexOf(s, sub) >= 0
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}
