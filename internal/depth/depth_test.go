package depth_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snekc/internal/ast"
	"snekc/internal/depth"
	"snekc/internal/parser"
)

func mustParse(t *testing.T, src string) ast.Expr {
	t.Helper()
	prog, err := parser.Parse(src)
	require.NoError(t, err)
	return prog.Terminal
}

func TestDepthOfAtoms(t *testing.T) {
	assert.EqualValues(t, 0, depth.Of(mustParse(t, "5")))
	assert.EqualValues(t, 0, depth.Of(mustParse(t, "true")))
	assert.EqualValues(t, 0, depth.Of(mustParse(t, "input")))
}

func TestDepthOfBinOp(t *testing.T) {
	// depth(e1)+1 vs depth(e2); both atomic here, so depth = 1.
	assert.EqualValues(t, 1, depth.Of(mustParse(t, "(+ 1 2)")))
}

func TestDepthOfNestedBinOp(t *testing.T) {
	// (+ (+ 1 2) 3): left has depth 1, so overall is max(1+1, 0) = 2.
	assert.EqualValues(t, 2, depth.Of(mustParse(t, "(+ (+ 1 2) 3)")))
}

func TestDepthOfLet(t *testing.T) {
	// one binding (depth 0 init, +0) joined with body depth 0 + 1 binding = 1.
	assert.EqualValues(t, 1, depth.Of(mustParse(t, "(let ((x 5)) x)")))
}

func TestDepthOfLetWithMultipleBindings(t *testing.T) {
	e := mustParse(t, "(let ((x 1) (y (+ x 1))) (+ x y))")
	// bindings: x -> depth(1)+0=0; y -> depth(+ x 1)=1, +1 = 2.
	// body: depth(+ x y)=1, + len(bindings)=2 -> 3.
	assert.EqualValues(t, 3, depth.Of(e))
}

func TestFrameReservesTwoExtraSlots(t *testing.T) {
	assert.EqualValues(t, 2, depth.Frame(0))
	assert.EqualValues(t, 5, depth.Frame(3))
}
