package codegen_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snekc/internal/asm"
	"snekc/internal/codegen"
	"snekc/internal/parser"
)

func compile(t *testing.T, src string) []asm.Instr {
	t.Helper()
	prog, err := parser.Parse(src)
	require.NoError(t, err)
	gen := codegen.New(prog)
	instrs, err := gen.Program(prog)
	require.NoError(t, err)
	return instrs
}

func hasOp(instrs []asm.Instr, op asm.Op) bool {
	for _, in := range instrs {
		if in.Op == op {
			return true
		}
	}
	return false
}

func emitted(t *testing.T, instrs []asm.Instr) string {
	t.Helper()
	text, err := asm.NewEmitter(instrs).Emit()
	require.NoError(t, err)
	return text
}

func TestSimpleAdditionEmitsArithmeticAndOverflowTrap(t *testing.T) {
	instrs := compile(t, "(+ 1 2)")
	assert.True(t, hasOp(instrs, asm.OpAdd))
	assert.True(t, hasOp(instrs, asm.OpJo))

	text := emitted(t, instrs)
	assert.Contains(t, text, "our_code_starts_here:")
	assert.Contains(t, text, "type_error:")
	assert.Contains(t, text, "overflow_error:")
}

func TestMultiplicationDetagsOneOperand(t *testing.T) {
	instrs := compile(t, "(* 3 4)")
	assert.True(t, hasOp(instrs, asm.OpSAR))
	assert.True(t, hasOp(instrs, asm.OpIMul))
}

func TestEqualityUsesXorTypeCheck(t *testing.T) {
	instrs := compile(t, "(= true true)")
	assert.True(t, hasOp(instrs, asm.OpXor))
}

func TestUserFunctionCallEmitsCallAndStackAdjustment(t *testing.T) {
	instrs := compile(t, "(fun (double x) (* x 2)) (double 21)")
	text := emitted(t, instrs)
	assert.Contains(t, text, "double:")
	assert.Contains(t, text, "call double")
	// one argument: rsp moves by 1*8 + 8 around the call.
	assert.Contains(t, text, "sub rsp, 16\n        call double\n        add rsp, 16")
}

func TestPrintCallsRuntime(t *testing.T) {
	instrs := compile(t, "(print 5)")
	text := emitted(t, instrs)
	assert.Contains(t, text, "call snek_print")
}

func TestBreakOutsideLoopIsAnError(t *testing.T) {
	prog, err := parser.Parse("(block (break 1) 2)")
	require.NoError(t, err)
	gen := codegen.New(prog)
	_, err = gen.Program(prog)
	require.Error(t, err)
}

func TestLoopAndBreakEmitTwoLabelsAndAJumpBack(t *testing.T) {
	instrs := compile(t, "(loop (break 5))")
	text := emitted(t, instrs)
	assert.Contains(t, text, "loop_head_")
	assert.Contains(t, text, "loop_end_")
	assert.True(t, hasOp(instrs, asm.OpJmp))
}

func TestIfEmitsElseAndEndLabels(t *testing.T) {
	instrs := compile(t, "(if true 1 2)")
	text := emitted(t, instrs)
	assert.Contains(t, text, "if_else_")
	assert.Contains(t, text, "if_end_")
}

func TestLabelsAreUniqueAcrossTwoFunctions(t *testing.T) {
	src := `
		(fun (even n) (if (= n 0) true (odd (sub1 n))))
		(fun (odd n) (if (= n 0) false (even (sub1 n))))
		(block (print input) (print (even input)) (even input))
	`
	instrs := compile(t, src)
	seen := map[string]bool{}
	for _, in := range instrs {
		if in.Op == asm.OpLabel {
			name := in.Target.String()
			assert.False(t, seen[name], "label %q must only be defined once", name)
			seen[name] = true
		}
	}
}
