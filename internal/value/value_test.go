package value_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snekc/internal/value"
)

func TestEncodeRoundTrips(t *testing.T) {
	for _, n := range []int64{0, 1, -1, 42, value.MaxInt, value.MinInt} {
		encoded := value.Encode(n)
		require.Zero(t, encoded&1, "low bit of an encoded integer must be clear")
		assert.Equal(t, n, encoded>>1)
	}
}

func TestInRange(t *testing.T) {
	assert.True(t, value.InRange(value.MaxInt))
	assert.True(t, value.InRange(value.MinInt))
	assert.False(t, value.InRange(value.MaxInt+1))
	assert.False(t, value.InRange(value.MinInt-1))
}

func TestSingletonTagsDisagreeWithNumberTag(t *testing.T) {
	for _, s := range []int64{value.Nil, value.False, value.True} {
		assert.Equal(t, int64(1), s&1, "singleton encodings must have their low bit set")
	}
	assert.NotEqual(t, value.False, value.True)
}
