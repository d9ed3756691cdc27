package bgzf

import (
	"bytes"
	"io/ioutil"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterReaderRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, 6)
	require.NoError(t, err)

	payload := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog "), 5000)
	_, err = w.Write(payload)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r := NewReader(&buf)
	got, err := ioutil.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestWriterVOffsetMonotonic(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, 6)
	require.NoError(t, err)

	var last uint64
	for i := 0; i < 5; i++ {
		chunk := bytes.Repeat([]byte{byte(i)}, DefaultUncompressedBlockSize)
		_, err := w.Write(chunk)
		require.NoError(t, err)
		v := w.VOffset()
		assert.GreaterOrEqual(t, v, last)
		last = v
	}
	require.NoError(t, w.Close())
}

func TestMultiThreadedWriterSingleThreadedReader(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriterMT(&buf, 6, 4)

	payload := bytes.Repeat([]byte("0123456789abcdef"), 20000)
	_, err := w.Write(payload)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r := NewReader(&buf)
	got, err := ioutil.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestSingleThreadedWriterMultiThreadedReader(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, 6)
	require.NoError(t, err)

	payload := bytes.Repeat([]byte("GATTACAGATTACA"), 20000)
	_, err = w.Write(payload)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r := NewReaderMT(&buf, 4)
	got, err := ioutil.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	require.NoError(t, r.Close())
}

func TestReaderRejectsTruncatedStream(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, 6)
	require.NoError(t, err)
	_, err = w.Write([]byte("hello world"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	truncated := buf.Bytes()[:buf.Len()-10]
	r := NewReader(bytes.NewReader(truncated))
	_, err = ioutil.ReadAll(r)
	assert.Error(t, err)
}
