package runtime_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"snekc/runtime"
)

func TestSourceIsEmbeddedAndExportsTheExpectedSymbols(t *testing.T) {
	src := string(runtime.Source)
	assert.NotEmpty(t, src)
	assert.Contains(t, src, "our_code_starts_here")
	assert.Contains(t, src, "snek_print")
	assert.Contains(t, src, "snek_equal")
	assert.Contains(t, src, "snek_error")
}
