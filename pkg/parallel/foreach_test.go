package parallel

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForEachVisitsEveryIndexExactlyOnce(t *testing.T) {
	const n = 1000
	var mu sync.Mutex
	seen := make(map[int]bool, n)

	err := ForEach(8, n, func(i int) error {
		mu.Lock()
		seen[i] = true
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, seen, n)
}

func TestForEachPropagatesError(t *testing.T) {
	const n = 50
	boom := assert.AnError

	err := ForEach(4, n, func(i int) error {
		if i == 10 {
			return boom
		}
		return nil
	})
	assert.Error(t, err)
}

func TestForEachRunsEveryCallToCompletionDespiteEarlierError(t *testing.T) {
	const n = 200
	var completed int64

	_ = ForEach(8, n, func(i int) error {
		atomic.AddInt64(&completed, 1)
		if i%7 == 0 {
			return assert.AnError
		}
		return nil
	})
	assert.Equal(t, int64(n), completed)
}

func TestForEachZeroWork(t *testing.T) {
	called := false
	err := ForEach(4, 0, func(i int) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.False(t, called)
}

func TestForEachClampsWorkerCount(t *testing.T) {
	err := ForEach(0, 5, func(i int) error { return nil })
	assert.NoError(t, err)

	err = ForEach(100, 5, func(i int) error { return nil })
	assert.NoError(t, err)
}
