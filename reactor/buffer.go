// File: reactor/buffer.go
// Package reactor implements the main/sub event-loop network engine.
//
// Buffer is the application-level byte buffer described in the component's
// data model: a small prependable prefix, a readable region, and a
// writable tail, used to absorb TCP short reads/writes without copying on
// every call.

package reactor

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

const (
	cheapPrepend      = 8
	initialBufferSize = 1024
	extensionBufSize  = 64 * 1024
)

// ErrConnReset is returned by ReadFD when the peer has reset the connection.
var ErrConnReset = errors.New("reactor: connection reset by peer")

// Buffer is a growable byte buffer with a reserved prepend region.
//
//	+-------------------+------------------+------------------+
//	| prependable bytes |  readable bytes  |  writable bytes  |
//	+-------------------+------------------+------------------+
//	0      <=      readerIndex   <=   writerIndex    <=     len(buf)
type Buffer struct {
	buf         []byte
	readerIndex int
	writerIndex int
}

// NewBuffer allocates a Buffer with the given initial capacity beyond the
// reserved prepend region.
func NewBuffer(initialSize int) *Buffer {
	if initialSize <= 0 {
		initialSize = initialBufferSize
	}
	return &Buffer{
		buf:         make([]byte, cheapPrepend+initialSize),
		readerIndex: cheapPrepend,
		writerIndex: cheapPrepend,
	}
}

// ReadableBytes returns the number of bytes available to read.
func (b *Buffer) ReadableBytes() int { return b.writerIndex - b.readerIndex }

// WritableBytes returns the number of bytes that can be appended without growth.
func (b *Buffer) WritableBytes() int { return len(b.buf) - b.writerIndex }

// PrependableBytes returns the size of the unused prefix region.
func (b *Buffer) PrependableBytes() int { return b.readerIndex }

// Peek returns a view of the readable region without consuming it.
func (b *Buffer) Peek() []byte { return b.buf[b.readerIndex:b.writerIndex] }

// Retrieve advances the reader index past n bytes, discarding them.
func (b *Buffer) Retrieve(n int) {
	if n < b.ReadableBytes() {
		b.readerIndex += n
	} else {
		b.RetrieveAll()
	}
}

// RetrieveAll discards all readable bytes, resetting both indices to the
// start of the readable region.
func (b *Buffer) RetrieveAll() {
	b.readerIndex = cheapPrepend
	b.writerIndex = cheapPrepend
}

// RetrieveAsString consumes and returns the first n readable bytes as a string.
func (b *Buffer) RetrieveAsString(n int) string {
	s := string(b.Peek()[:n])
	b.Retrieve(n)
	return s
}

// RetrieveAllAsString consumes and returns every readable byte as a string.
func (b *Buffer) RetrieveAllAsString() string {
	return b.RetrieveAsString(b.ReadableBytes())
}

// EnsureWritable grows the buffer, if necessary, so at least n more bytes
// can be appended without another allocation.
func (b *Buffer) EnsureWritable(n int) {
	if b.WritableBytes() < n {
		b.makeSpace(n)
	}
}

// Append copies data onto the writable tail, growing the buffer as needed.
func (b *Buffer) Append(data []byte) {
	b.EnsureWritable(len(data))
	copy(b.buf[b.writerIndex:], data)
	b.writerIndex += len(data)
}

// AppendString is a convenience wrapper around Append for string payloads.
func (b *Buffer) AppendString(s string) {
	b.Append([]byte(s))
}

func (b *Buffer) makeSpace(n int) {
	if b.WritableBytes()+b.PrependableBytes() < n+cheapPrepend {
		newBuf := make([]byte, b.writerIndex+n)
		copy(newBuf, b.buf)
		b.buf = newBuf
		return
	}
	readable := b.ReadableBytes()
	copy(b.buf[cheapPrepend:], b.buf[b.readerIndex:b.writerIndex])
	b.readerIndex = cheapPrepend
	b.writerIndex = b.readerIndex + readable
}

// ReadFD performs one scatter-read from fd into the writable tail, spilling
// into a stack-sized extension buffer when the tail is smaller than a
// typical socket read so a single syscall can still ingest it all.
// Returns the number of bytes read, 0 on a clean peer close, and a
// negative count alongside an error on failure (including EAGAIN).
func (b *Buffer) ReadFD(fd int) (int, error) {
	var extBuf [extensionBufSize]byte
	writable := b.WritableBytes()

	iov := make([][]byte, 0, 2)
	iov = append(iov, b.buf[b.writerIndex:])
	if writable < extensionBufSize {
		iov = append(iov, extBuf[:])
	}

	n, err := unix.Readv(fd, iov)
	if err != nil {
		if errors.Is(err, unix.ECONNRESET) {
			return -1, ErrConnReset
		}
		return -1, err
	}
	if n == 0 {
		return 0, nil
	}
	if n <= writable {
		b.writerIndex += n
	} else {
		b.writerIndex += writable
		b.Append(extBuf[:n-writable])
	}
	return n, nil
}

// WriteFD performs one write syscall of the readable region to fd.
func (b *Buffer) WriteFD(fd int) (int, error) {
	n, err := unix.Write(fd, b.Peek())
	if err != nil {
		return -1, err
	}
	return n, nil
}

func (b *Buffer) String() string {
	return fmt.Sprintf("Buffer{readable=%d writable=%d prependable=%d}",
		b.ReadableBytes(), b.WritableBytes(), b.PrependableBytes())
}
