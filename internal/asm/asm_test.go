package asm_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snekc/internal/asm"
)

func TestEmitBasicArithmetic(t *testing.T) {
	program := []asm.Instr{
		asm.Def(asm.Named("our_code_starts_here")),
		asm.Two(asm.OpMov, asm.Register(asm.RAX), asm.Imm(2)),
		asm.Two(asm.OpAdd, asm.Register(asm.RAX), asm.Imm(4)),
		asm.Ret(),
	}
	text, err := asm.NewEmitter(program).Emit()
	require.NoError(t, err)
	assert.Contains(t, text, "our_code_starts_here:")
	assert.Contains(t, text, "mov rax, 2")
	assert.Contains(t, text, "add rax, 4")
	assert.Contains(t, text, "ret")
}

func TestMemOperandRendersPositiveAndNegativeOffsets(t *testing.T) {
	assert.Equal(t, "[rsp - 8]", asm.Mem(8).String())
	assert.Equal(t, "[rsp + 8]", asm.Mem(-8).String())
	assert.Equal(t, "[rsp]", asm.Mem(0).String())
}

func TestEmitRejectsCallWithoutTarget(t *testing.T) {
	_, err := asm.NewEmitter([]asm.Instr{{Op: asm.OpCall}}).Emit()
	require.Error(t, err)
}

func TestEmitWritesOneLinePerInstruction(t *testing.T) {
	program := []asm.Instr{
		asm.Def(asm.Named("a")),
		asm.Jump(asm.OpJmp, asm.Named("b")),
		asm.Def(asm.Named("b")),
	}
	text, err := asm.NewEmitter(program).Emit()
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(text), "\n")
	require.Len(t, lines, 3)
}

func TestTrapLabelsRenderTheirFixedNames(t *testing.T) {
	assert.Equal(t, "type_error", asm.TypeErrorLabel.String())
	assert.Equal(t, "overflow_error", asm.OverflowLabel.String())
}
