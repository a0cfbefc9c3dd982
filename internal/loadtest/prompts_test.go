package loadtest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPromptSet(t *testing.T) {
	_, err := NewPromptSet(nil)
	assert.Error(t, err)

	_, err = NewPromptSet([]string{"a", ""})
	assert.Error(t, err)

	src := []string{"a", "b"}
	set, err := NewPromptSet(src)
	require.NoError(t, err)
	src[0] = "changed"
	assert.Equal(t, "a", set.At(0))
	assert.Equal(t, 2, set.Len())
}

func TestPromptSet_AtWraps(t *testing.T) {
	set, err := NewPromptSet([]string{"a", "b", "c"})
	require.NoError(t, err)

	assert.Equal(t, "a", set.At(3))
	assert.Equal(t, "c", set.At(5))
	assert.Equal(t, "c", set.At(-1))
}

func TestPromptIndex(t *testing.T) {
	tests := []struct {
		lane, lanes, size int
		iter              int64
		want              int
	}{
		{lane: 0, iter: 0, lanes: 4, size: 5, want: 0},
		{lane: 3, iter: 0, lanes: 4, size: 5, want: 3},
		{lane: 1, iter: 1, lanes: 4, size: 5, want: 0},
		{lane: 2, iter: 7, lanes: 4, size: 5, want: 0},
		{lane: 0, iter: 9, lanes: 1, size: 1, want: 0},
		{lane: 0, iter: 0, lanes: 1, size: 0, want: 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PromptIndex(tt.lane, tt.iter, tt.lanes, tt.size),
			"lane=%d iter=%d", tt.lane, tt.iter)
	}
}

func TestPromptIndex_CoversSetEvenly(t *testing.T) {
	const lanes, size = 4, 5
	seen := make(map[int]int)
	for iter := int64(0); iter < size; iter++ {
		for lane := 0; lane < lanes; lane++ {
			seen[PromptIndex(lane, iter, lanes, size)]++
		}
	}
	for i := 0; i < size; i++ {
		assert.Equal(t, lanes, seen[i], "prompt %d", i)
	}
}

func TestPromptIndex_LaneCoverage(t *testing.T) {
	distinct := func(lane, lanes, size int) int {
		seen := make(map[int]bool)
		for iter := int64(0); iter < int64(size*lanes); iter++ {
			seen[PromptIndex(lane, iter, lanes, size)] = true
		}
		return len(seen)
	}

	// lanes a multiple of size: each lane is pinned to one prompt.
	assert.Equal(t, 1, distinct(1, 3, 3))
	assert.Equal(t, 1, distinct(2, 6, 3))
	// coprime: each lane walks the whole set.
	assert.Equal(t, 5, distinct(1, 4, 5))
	// gcd(4, 6) = 2: each lane sees half the set.
	assert.Equal(t, 3, distinct(0, 4, 6))
}
