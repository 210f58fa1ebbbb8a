// Package depth computes the stack-slot upper bound the code
// generator uses to size each function's activation record, per the
// table in section 4.2: every compound form's depth is a max over its
// children, offset by however many stack slots that child's siblings
// will already occupy by the time it evaluates.
package depth

import (
	"golang.org/x/exp/slices"

	"snekc/internal/ast"
)

// Of returns the number of stack slots e needs to evaluate without
// spilling below the current frame.
func Of(e ast.Expr) int64 {
	switch n := e.(type) {
	case ast.Number, ast.True, ast.False, ast.Input, ast.Id:
		return 0

	case ast.UnOp:
		return Of(n.Operand)

	case ast.BinOp:
		return max2(Of(n.Left)+1, Of(n.Right))

	case ast.Let:
		depths := make([]int64, 0, len(n.Bindings)+1)
		for i, b := range n.Bindings {
			depths = append(depths, Of(b.Init)+int64(i))
		}
		depths = append(depths, Of(n.Body)+int64(len(n.Bindings)))
		return slices.Max(depths)

	case ast.Set:
		return Of(n.Value)

	case ast.If:
		return max3(Of(n.Cond), Of(n.Then), Of(n.Else))

	case ast.Loop:
		return Of(n.Body)

	case ast.Break:
		return Of(n.Value)

	case ast.Block:
		depths := make([]int64, len(n.Exprs))
		for i, c := range n.Exprs {
			depths[i] = Of(c)
		}
		return slices.Max(depths)

	case ast.FuncCall:
		if len(n.Args) == 0 {
			return 0
		}
		depths := make([]int64, len(n.Args))
		for i, a := range n.Args {
			depths[i] = Of(a)
		}
		return slices.Max(depths)

	default:
		return 0
	}
}

// Frame returns the activation-record size, in slots, for a function
// whose body has the given depth: the generator reserves two extra
// words for the call sequence described in section 4.3.
func Frame(bodyDepth int64) int64 {
	return bodyDepth + 2
}

func max2(a, b int64) int64 {
	return slices.Max([]int64{a, b})
}

func max3(a, b, c int64) int64 {
	return slices.Max([]int64{a, b, c})
}
