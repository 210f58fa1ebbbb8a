package sexpr_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"snekc/internal/sexpr"
)

func TestReadAtom(t *testing.T) {
	n, err := sexpr.Read("42")
	require.NoError(t, err)
	require.False(t, n.IsList)
	require.Equal(t, "42", n.Atom)
}

func TestReadFlatList(t *testing.T) {
	n, err := sexpr.Read("(+ 1 2)")
	require.NoError(t, err)
	require.True(t, n.IsList)
	require.Len(t, n.Children, 3)
	require.Equal(t, "+", n.Children[0].Atom)
	require.Equal(t, "1", n.Children[1].Atom)
	require.Equal(t, "2", n.Children[2].Atom)
}

func TestReadNestedList(t *testing.T) {
	n, err := sexpr.Read("(let ((x 5)) (+ x x))")
	require.NoError(t, err)
	require.True(t, n.IsList)
	require.Len(t, n.Children, 3)

	bindings := n.Children[1]
	require.True(t, bindings.IsList)
	require.Len(t, bindings.Children, 1)

	oneBinding := bindings.Children[0]
	require.True(t, oneBinding.IsList)
	require.Equal(t, "x", oneBinding.Children[0].Atom)
	require.Equal(t, "5", oneBinding.Children[1].Atom)
}

func TestReadMultipleTopLevelForms(t *testing.T) {
	n, err := sexpr.Read("((fun (double x) (* x 2)) (double 21))")
	require.NoError(t, err)
	require.True(t, n.IsList)
	require.Len(t, n.Children, 2)
}
