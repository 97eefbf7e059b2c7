package bsdiffsx

import (
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blkmatch/bsdiffx/pkg/align"
)

func writePatch(t *testing.T, old, newb []byte, b int) string {
	t.Helper()
	alignment, err := align.Align(old, newb)
	require.NoError(t, err)

	dir := t.TempDir()
	patchPath := filepath.Join(dir, "patch.sx")
	f, err := os.Create(patchPath)
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, Write(alignment, old, newb, b, f))
	return patchPath
}

func openReader(t *testing.T, old []byte, patchPath string) *Reader {
	t.Helper()
	dir := filepath.Dir(patchPath)
	oldPath := filepath.Join(dir, "old.bin")
	require.NoError(t, os.WriteFile(oldPath, old, 0644))

	r, err := Open(patchPath, oldPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestReadAtWholeFileMatchesOriginal(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	old := make([]byte, 5000)
	_, _ = rnd.Read(old)
	newb := make([]byte, len(old))
	copy(newb, old)
	for i := 0; i < 80; i++ {
		newb[rnd.Intn(len(newb))] = byte(rnd.Intn(256))
	}

	patchPath := writePatch(t, old, newb, 512)
	r := openReader(t, old, patchPath)

	assert.Equal(t, int64(len(newb)), r.Size())

	buf := make([]byte, len(newb))
	n, err := r.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, len(newb), n)
	assert.Equal(t, newb, buf)
}

func TestReadAtArbitrarySlice(t *testing.T) {
	rnd := rand.New(rand.NewSource(2))
	old := make([]byte, 8000)
	_, _ = rnd.Read(old)
	newb := make([]byte, len(old)+37)
	copy(newb, old)
	rnd.Read(newb[len(old):])
	for i := 0; i < 40; i++ {
		newb[rnd.Intn(len(old))] = byte(rnd.Intn(256))
	}

	patchPath := writePatch(t, old, newb, 300)
	r := openReader(t, old, patchPath)

	start := 123
	length := 777
	buf := make([]byte, length)
	n, err := r.ReadAt(buf, int64(start))
	require.NoError(t, err)
	assert.Equal(t, newb[start:start+length], buf[:n])
}

func TestReadAtSegmentStraddlingSpanLargerThanWindow(t *testing.T) {
	// A long run of identical bytes produces one alignment segment spanning
	// many patch windows; exercises clipAlignment's straddling-segment fix.
	old := bytes(5000, 'x')
	newb := bytes(5000, 'x')
	newb[4999] = 'y'

	patchPath := writePatch(t, old, newb, 256)
	r := openReader(t, old, patchPath)

	buf := make([]byte, len(newb))
	n, err := r.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, len(newb), n)
	assert.Equal(t, newb, buf)
}

func bytes(n int, b byte) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = b
	}
	return out
}

func TestReadAtPastEndOfFileReturnsEOF(t *testing.T) {
	old := []byte("short file")
	newb := []byte("short file, extended")

	patchPath := writePatch(t, old, newb, 64)
	r := openReader(t, old, patchPath)

	buf := make([]byte, 10)
	_, err := r.ReadAt(buf, int64(len(newb)))
	assert.Equal(t, io.EOF, err)
}

func TestOpenRejectsBadMagic(t *testing.T) {
	dir := t.TempDir()
	patchPath := filepath.Join(dir, "bad.sx")
	require.NoError(t, os.WriteFile(patchPath, []byte("not a valid sx patch at all, way too short"), 0644))
	oldPath := filepath.Join(dir, "old.bin")
	require.NoError(t, os.WriteFile(oldPath, []byte("old"), 0644))

	_, err := Open(patchPath, oldPath)
	assert.ErrorIs(t, err, ErrCorruptPatch)
}

func TestClipAlignmentSkipsSegmentsBeforeWindowAndStopsAtWindowEnd(t *testing.T) {
	alignment := align.Alignment{
		{NPos: 0, OPos: 0, ALen: 10},
		{NPos: 20, OPos: 50, ALen: 5},
		{NPos: 40, OPos: 100, ALen: 5},
	}

	local, resume := clipAlignment(alignment, 0, 15, 30)
	require.Len(t, local, 1)
	assert.Equal(t, uint64(5), local[0].NPos)
	assert.Equal(t, uint64(50), local[0].OPos)
	assert.Equal(t, uint64(5), local[0].ALen)
	assert.Equal(t, 2, resume)
}

func TestClipAlignmentResumesOnStraddlingSegment(t *testing.T) {
	alignment := align.Alignment{
		{NPos: 0, OPos: 0, ALen: 100},
	}
	local, resume := clipAlignment(alignment, 0, 0, 40)
	require.Len(t, local, 1)
	assert.Equal(t, uint64(40), local[0].ALen)
	assert.Equal(t, 0, resume, "segment straddles the window end, must be reconsidered next window")

	local2, resume2 := clipAlignment(alignment, resume, 40, 80)
	require.Len(t, local2, 1)
	assert.Equal(t, uint64(40), local2[0].ALen)
	assert.Equal(t, 0, resume2)

	local3, resume3 := clipAlignment(alignment, resume2, 80, 120)
	require.Len(t, local3, 1)
	assert.Equal(t, uint64(20), local3[0].ALen)
	assert.Equal(t, 1, resume3)
}
