package align

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuffixSortIsAPermutation(t *testing.T) {
	buf := []byte("abracadabra")
	iii := SuffixSort(buf)
	require.Len(t, iii, len(buf)+1)

	seen := make(map[int32]bool, len(iii))
	for _, v := range iii {
		assert.False(t, seen[v], "duplicate suffix index %d", v)
		seen[v] = true
		assert.True(t, v >= 0 && int(v) <= len(buf))
	}
}

func TestSuffixSortOrdersLexicographically(t *testing.T) {
	buf := []byte("banana$banana")
	iii := SuffixSort(buf)

	suffixAt := func(i int32) []byte {
		if int(i) >= len(buf) {
			return nil // sentinel suffix, sorts first
		}
		return buf[i:]
	}
	for i := 1; i < len(iii); i++ {
		prev := suffixAt(iii[i-1])
		cur := suffixAt(iii[i])
		assert.LessOrEqual(t, bytes.Compare(prev, cur), 0, "suffix order violated at rank %d", i)
	}
}

func TestSuffixSortOnRandomBuffers(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for trial := 0; trial < 20; trial++ {
		n := r.Intn(500)
		buf := make([]byte, n)
		_, _ = r.Read(buf)

		iii := SuffixSort(buf)
		require.Len(t, iii, n+1)

		seen := make(map[int32]bool, len(iii))
		for _, v := range iii {
			assert.False(t, seen[v])
			seen[v] = true
		}
	}
}

func TestSuffixSortEmptyBuffer(t *testing.T) {
	iii := SuffixSort(nil)
	assert.Len(t, iii, 1)
}
