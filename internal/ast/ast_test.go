package ast_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"snekc/internal/ast"
)

func TestIsReserved(t *testing.T) {
	for _, kw := range []string{"let", "fun", "break", "input", "+", "isnum", "print"} {
		assert.True(t, ast.IsReserved(kw), "%q should be reserved", kw)
	}
	for _, name := range []string{"x", "double", "fact", "n"} {
		assert.False(t, ast.IsReserved(name), "%q should not be reserved", name)
	}
}

func TestUnOpKindString(t *testing.T) {
	assert.Equal(t, "add1", ast.Add1.String())
	assert.Equal(t, "isbool", ast.IsBool.String())
}

func TestBinOpKindString(t *testing.T) {
	assert.Equal(t, "+", ast.Plus.String())
	assert.Equal(t, "=", ast.Eq.String())
}
