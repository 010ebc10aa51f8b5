package streambuf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingWriter accepts a bounded number of bytes per call so tests can
// force short writes.
type recordingWriter struct {
	accepted []byte
	limit    int // max bytes per call; 0 means unlimited
}

func (w *recordingWriter) WriteStreamData(data []byte) (int, error) {
	n := len(data)
	if w.limit > 0 && n > w.limit {
		n = w.limit
	}
	w.accepted = append(w.accepted, data[:n]...)
	return n, nil
}

func TestReadConsumesAcrossChunks(t *testing.T) {
	b := New(nil)
	b.AddReadData([]byte{1, 2, 3})
	b.AddReadData([]byte{4, 5})
	b.AddReadData([]byte{6, 7, 8, 9})

	assert.Equal(t, 9, b.ReadableBytes())

	buf := make([]byte, 4)
	n := b.Read(buf)
	require.Equal(t, 4, n)
	assert.Equal(t, []byte{1, 2, 3, 4}, buf)
	assert.Equal(t, 5, b.ReadableBytes())

	n = b.Read(buf)
	require.Equal(t, 4, n)
	assert.Equal(t, []byte{5, 6, 7, 8}, buf)

	// Partial read: only one byte remains.
	n = b.Read(buf)
	require.Equal(t, 1, n)
	assert.Equal(t, byte(9), buf[0])
	assert.Equal(t, 0, b.ReadableBytes())
}

func TestPeekDoesNotConsume(t *testing.T) {
	b := New(nil)
	b.AddReadData([]byte{10, 20})
	b.AddReadData([]byte{30})

	buf := make([]byte, 3)
	n := b.Peek(buf)
	require.Equal(t, 3, n)
	assert.Equal(t, []byte{10, 20, 30}, buf)
	assert.Equal(t, 3, b.ReadableBytes())

	// Peek again returns the same bytes.
	n = b.Peek(buf)
	require.Equal(t, 3, n)
	assert.Equal(t, []byte{10, 20, 30}, buf)
}

func TestPeekBeyondBuffered(t *testing.T) {
	b := New(nil)
	b.AddReadData([]byte{1, 2})

	buf := make([]byte, 8)
	n := b.Peek(buf)
	assert.Equal(t, 2, n, "peek must never report more than buffered")
}

func TestReadEmpty(t *testing.T) {
	b := New(nil)
	buf := make([]byte, 4)
	assert.Equal(t, 0, b.Read(buf))
	assert.Equal(t, 0, b.Peek(buf))
}

func TestWriteFlushesImmediately(t *testing.T) {
	w := &recordingWriter{}
	b := New(w)

	require.NoError(t, b.Write([]byte("hello")))
	assert.Equal(t, []byte("hello"), w.accepted)
	assert.Equal(t, 0, b.PendingWriteBytes())
}

func TestShortWriteQueuesRemainder(t *testing.T) {
	w := &recordingWriter{limit: 3}
	b := New(w)

	require.NoError(t, b.Write([]byte("abcdef")))
	assert.Equal(t, []byte("abc"), w.accepted)
	assert.Equal(t, 3, b.PendingWriteBytes())

	// Further writes queue without hitting the writer.
	require.NoError(t, b.Write([]byte("gh")))
	assert.Equal(t, []byte("abc"), w.accepted)
	assert.Equal(t, 5, b.PendingWriteBytes())

	// SetWritable retries the queue; the writer keeps accepting 3 bytes
	// per call until drained.
	w.limit = 0
	require.NoError(t, b.SetWritable())
	assert.Equal(t, []byte("abcdefgh"), w.accepted)
	assert.Equal(t, 0, b.PendingWriteBytes())
}

func TestSetWriterReplacesSink(t *testing.T) {
	w1 := &recordingWriter{limit: 2}
	b := New(w1)

	require.NoError(t, b.Write([]byte("xyz")))
	assert.Equal(t, []byte("xy"), w1.accepted)

	w2 := &recordingWriter{}
	b.SetWriter(w2)
	require.NoError(t, b.SetWritable())

	assert.Equal(t, []byte("z"), w2.accepted, "remainder goes to the new writer")
	assert.Equal(t, 0, b.PendingWriteBytes())
}

func TestWriterFunc(t *testing.T) {
	var got []byte
	b := New(WriterFunc(func(data []byte) (int, error) {
		got = append(got, data...)
		return len(data), nil
	}))

	require.NoError(t, b.Write([]byte{1, 2, 3}))
	assert.Equal(t, []byte{1, 2, 3}, got)
}
