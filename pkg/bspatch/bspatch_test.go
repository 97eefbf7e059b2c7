package bspatch

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blkmatch/bsdiffx/pkg/align"
	"github.com/blkmatch/bsdiffx/pkg/bsdiff"
)

func TestBytesRejectsBadMagic(t *testing.T) {
	_, err := Bytes([]byte("old"), []byte("not a patch"))
	assert.ErrorIs(t, err, ErrCorruptPatch)
}

func TestBytesRejectsTruncatedHeader(t *testing.T) {
	_, err := Bytes([]byte("old"), []byte("BSDIFF40"))
	assert.ErrorIs(t, err, ErrCorruptPatch)
}

func TestFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "old.bin")
	newPath := filepath.Join(dir, "new.bin")
	patchPath := filepath.Join(dir, "patch.bin")

	oldData := []byte("version one of the file contents")
	newData := []byte("version two of the file contents, a little longer")

	require.NoError(t, os.WriteFile(oldPath, oldData, 0644))

	alignment, err := align.Align(oldData, newData)
	require.NoError(t, err)
	patchBytes, err := bsdiff.BytesWithAlignment(alignment, oldData, newData)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(patchPath, patchBytes, 0644))

	require.NoError(t, File(oldPath, newPath, patchPath))

	got, err := os.ReadFile(newPath)
	require.NoError(t, err)
	assert.Equal(t, newData, got)
}

func TestReaderMatchesBytes(t *testing.T) {
	oldData := []byte("reader vs bytes parity check, with some repeated repeated repeated text")
	newData := []byte("reader vs bytes parity check, with some altered repeated repeated text!!")

	patch, err := bsdiff.Bytes(oldData, newData)
	require.NoError(t, err)

	want, err := Bytes(oldData, patch)
	require.NoError(t, err)

	var out bytes.Buffer
	buf := make([]byte, len(newData))
	n, err := readerApply(oldData, patch, buf)
	require.NoError(t, err)
	out.Write(buf[:n])

	assert.Equal(t, want, out.Bytes())
}

// readerApply exercises the io.ReaderAt/io.WriterAt Reader entry point via
// an in-memory sink sized to the expected new-file length.
func readerApply(oldData, patch []byte, buf []byte) (int, error) {
	sink := &sliceWriterAt{buf: buf}
	if err := Reader(bytes.NewReader(oldData), sink, bytes.NewReader(patch)); err != nil {
		return 0, err
	}
	return sink.max, nil
}

type sliceWriterAt struct {
	buf []byte
	max int
}

func (s *sliceWriterAt) WriteAt(p []byte, off int64) (int, error) {
	n := copy(s.buf[off:], p)
	if end := int(off) + n; end > s.max {
		s.max = end
	}
	return n, nil
}
