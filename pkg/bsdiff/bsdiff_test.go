package bsdiff

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blkmatch/bsdiffx/pkg/bspatch"
)

func roundTrip(t *testing.T, old, newb []byte) []byte {
	t.Helper()
	patch, err := Bytes(old, newb)
	require.NoError(t, err)

	got, err := bspatch.Bytes(old, patch)
	require.NoError(t, err)
	assert.Equal(t, newb, got)
	return patch
}

func TestRoundTripIdentity(t *testing.T) {
	buf := []byte("the quick brown fox jumps over the lazy dog")
	roundTrip(t, buf, buf)
}

func TestRoundTripPureInsert(t *testing.T) {
	old := []byte("abcd")
	newb := []byte("abcdXYZ")
	patch := roundTrip(t, old, newb)
	assert.True(t, len(patch) > 0)
}

func TestRoundTripPureDelete(t *testing.T) {
	old := []byte("abcdXYZ")
	newb := []byte("abcd")
	roundTrip(t, old, newb)
}

func TestRoundTripEmptyOld(t *testing.T) {
	roundTrip(t, nil, []byte("brand new content"))
}

func TestRoundTripEmptyNew(t *testing.T) {
	roundTrip(t, []byte("going away"), nil)
}

func TestRoundTripBothEmpty(t *testing.T) {
	roundTrip(t, nil, nil)
}

func TestRoundTripRandomEdits(t *testing.T) {
	r := rand.New(rand.NewSource(5))
	old := make([]byte, 10000)
	_, _ = r.Read(old)
	newb := make([]byte, len(old))
	copy(newb, old)
	for i := 0; i < 300; i++ {
		newb[r.Intn(len(newb))] = byte(r.Intn(256))
	}
	roundTrip(t, old, newb)
}

func TestRoundTripUnmatchedPrefix(t *testing.T) {
	old := []byte("ABCDEFGHIJKLMNOP")
	newb := []byte("ZZZZABCDEFGHIJKLMNOP")
	roundTrip(t, old, newb)
}

func TestPatchHasBSDIFF40Magic(t *testing.T) {
	patch, err := Bytes([]byte("old"), []byte("new"))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(patch, []byte("BSDIFF40")))
}
