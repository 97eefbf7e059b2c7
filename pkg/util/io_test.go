package util

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufWriterWriteAndSeek(t *testing.T) {
	var w BufWriter
	n, err := w.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	pos, err := w.Seek(0, io.SeekStart)
	require.NoError(t, err)
	assert.Equal(t, int64(0), pos)

	_, err = w.Write([]byte("H"))
	require.NoError(t, err)
	assert.Equal(t, []byte("Hello"), w.Bytes())
}

func TestBufWriterWriteAtGrowsBuffer(t *testing.T) {
	var w BufWriter
	_, err := w.WriteAt([]byte("tail"), 10)
	require.NoError(t, err)
	assert.Equal(t, 14, w.Len())
	assert.Equal(t, []byte("tail"), w.Bytes()[10:14])
}

func TestBufWriterSeekEndAndCurrent(t *testing.T) {
	var w BufWriter
	_, _ = w.Write([]byte("0123456789"))

	pos, err := w.Seek(-3, io.SeekEnd)
	require.NoError(t, err)
	assert.Equal(t, int64(7), pos)

	pos, err = w.Seek(1, io.SeekCurrent)
	require.NoError(t, err)
	assert.Equal(t, int64(8), pos)

	_, err = w.Seek(-100, io.SeekStart)
	assert.Error(t, err)
}
