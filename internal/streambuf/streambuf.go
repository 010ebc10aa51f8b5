// Package streambuf buffers a byte-oriented transport into a queue the
// protocol layer can peek at and consume from. Reads arrive in arbitrarily
// sized chunks from the transport; writes are flushed through a pluggable
// writer and queued whenever the transport cannot take them.
package streambuf

import "sync"

// Writer flushes bytes toward the transport. It may accept fewer bytes
// than offered (a short write); the remainder stays queued in the buffer
// until SetWritable is called.
type Writer interface {
	WriteStreamData(data []byte) (int, error)
}

// WriterFunc adapts a function to the Writer interface.
type WriterFunc func(data []byte) (int, error)

// WriteStreamData implements Writer.
func (f WriterFunc) WriteStreamData(data []byte) (int, error) {
	return f(data)
}

// StreamBuffer owns the read and write queues between an asynchronous
// transport and the message dispatch layer. It never interprets framing;
// callers use Peek to inspect headers before committing to Read.
type StreamBuffer struct {
	mu sync.Mutex

	readChunks [][]byte
	readOff    int // consumed bytes of readChunks[0]

	writeChunks [][]byte
	writeOff    int // flushed bytes of writeChunks[0]

	writer   Writer
	writable bool
}

// New creates an empty stream buffer. The buffer starts writable; the
// first short write flips it to blocked until SetWritable.
func New(writer Writer) *StreamBuffer {
	return &StreamBuffer{
		writer:   writer,
		writable: true,
	}
}

// SetWriter replaces the writer, e.g. when a client reconnects on a new
// transport. Queued write data is flushed to the new writer on the next
// Write or SetWritable call.
func (b *StreamBuffer) SetWriter(writer Writer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.writer = writer
	b.writable = writer != nil
}

// AddReadData appends a chunk received from the transport to the read
// queue. The chunk is retained; callers must not reuse it.
func (b *StreamBuffer) AddReadData(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.readChunks = append(b.readChunks, chunk)
}

// ReadableBytes returns the number of bytes currently buffered for
// reading.
func (b *StreamBuffer) ReadableBytes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.readableLocked()
}

// Read copies up to len(buf) buffered bytes into buf and consumes them.
// Returns the number of bytes actually copied, which is less than
// len(buf) when the buffer holds fewer bytes. It never blocks.
func (b *StreamBuffer) Read(buf []byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.copyLocked(buf)

	// Consume what was copied.
	remaining := n
	for remaining > 0 {
		head := b.readChunks[0]
		avail := len(head) - b.readOff
		if remaining < avail {
			b.readOff += remaining
			break
		}
		remaining -= avail
		b.readChunks = b.readChunks[1:]
		b.readOff = 0
	}
	return n
}

// Peek copies up to len(buf) buffered bytes into buf without consuming
// them. Returns the number of bytes actually copied.
func (b *StreamBuffer) Peek(buf []byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.copyLocked(buf)
}

// Write queues data for the transport and attempts an immediate flush.
// On a short write the remainder stays queued until SetWritable. The
// returned error is the writer's error, if any; queued data survives it.
func (b *StreamBuffer) Write(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.writeChunks = append(b.writeChunks, data)
	return b.flushLocked()
}

// SetWritable signals that the transport can accept data again and
// retries any queued writes.
func (b *StreamBuffer) SetWritable() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.writable = true
	return b.flushLocked()
}

// PendingWriteBytes returns the number of bytes queued but not yet
// accepted by the writer.
func (b *StreamBuffer) PendingWriteBytes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	total := -b.writeOff
	for _, c := range b.writeChunks {
		total += len(c)
	}
	if total < 0 {
		return 0
	}
	return total
}

func (b *StreamBuffer) readableLocked() int {
	total := -b.readOff
	for _, c := range b.readChunks {
		total += len(c)
	}
	if total < 0 {
		return 0
	}
	return total
}

func (b *StreamBuffer) copyLocked(buf []byte) int {
	copied := 0
	off := b.readOff
	for _, chunk := range b.readChunks {
		if copied == len(buf) {
			break
		}
		copied += copy(buf[copied:], chunk[off:])
		off = 0
	}
	return copied
}

func (b *StreamBuffer) flushLocked() error {
	if !b.writable || b.writer == nil {
		return nil
	}
	for len(b.writeChunks) > 0 {
		head := b.writeChunks[0][b.writeOff:]
		n, err := b.writer.WriteStreamData(head)
		if n < 0 {
			n = 0
		}
		if n < len(head) {
			b.writeOff += n
			b.writable = false
			return err
		}
		b.writeChunks = b.writeChunks[1:]
		b.writeOff = 0
		if err != nil {
			return err
		}
	}
	return nil
}
