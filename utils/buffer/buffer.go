// Package buffer implements the encoding of vectors of 64-bit words on writers and
// readers that expose their internal buffers, such as [bufio.Writer] and [bufio.Reader].
//
// Words are encoded in little-endian order directly in the internal buffer of the
// writer (resp. decoded from the internal buffer of the reader), without intermediate copies.
package buffer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/tuneinsight/nttgpu/utils"
)

// Writer is an interface for writers that expose their internal buffers.
// This interface is notably implemented by the bufio.Writer type
// (see https://pkg.go.dev/bufio#Writer).
type Writer interface {
	io.Writer
	Flush() (err error)
	AvailableBuffer() []byte
	Available() int
}

// Reader is an interface for readers that expose their internal buffers.
// This interface is notably implemented by the bufio.Reader type
// (see https://pkg.go.dev/bufio#Reader).
type Reader interface {
	io.Reader
	Size() int
	Peek(n int) ([]byte, error)
	Discard(n int) (discarded int, err error)
}

// WriteUint64 writes c on w.
func WriteUint64(w Writer, c uint64) (n int64, err error) {
	return WriteUint64Slice(w, []uint64{c})
}

// WriteUint64Slice writes c on w, flushing w each time its internal buffer is full.
func WriteUint64Slice(w Writer, c []uint64) (n int64, err error) {

	for len(c) > 0 {

		available := w.Available() >> 3

		if available == 0 {
			if err = w.Flush(); err != nil {
				return
			}

			if available = w.Available() >> 3; available == 0 {
				return n, fmt.Errorf("cannot WriteUint64Slice: available buffer/8 is zero even after flush")
			}
		}

		chunk := utils.Min(available, len(c))

		buf := w.AvailableBuffer()[:chunk<<3]
		for i := 0; i < chunk; i++ {
			binary.LittleEndian.PutUint64(buf[i<<3:], c[i])
		}

		var inc int
		inc, err = w.Write(buf)
		n += int64(inc)

		if err != nil {
			return
		}

		c = c[chunk:]
	}

	return
}

// ReadUint64 reads one word from r on c.
func ReadUint64(r Reader, c *uint64) (n int, err error) {

	if c == nil {
		return 0, fmt.Errorf("cannot ReadUint64: c is nil")
	}

	var bb [8]byte
	if n, err = io.ReadFull(r, bb[:]); err != nil {
		return
	}

	*c = binary.LittleEndian.Uint64(bb[:])

	return
}

// ReadUint64Slice reads len(c) words from r on c.
// It returns [io.ErrUnexpectedEOF] if r ends before c is filled.
func ReadUint64Slice(r Reader, c []uint64) (n int, err error) {

	for len(c) > 0 {

		size := utils.Min(r.Size(), len(c)<<3) &^ 7

		if size == 0 {
			return n, fmt.Errorf("cannot ReadUint64Slice: reader buffer is smaller than a word")
		}

		// Peek returns the available bytes along with the error if less than size are buffered.
		slice, perr := r.Peek(size)

		words := len(slice) >> 3
		for i := 0; i < words; i++ {
			c[i] = binary.LittleEndian.Uint64(slice[i<<3:])
		}

		var inc int
		inc, err = r.Discard(words << 3)
		n += inc

		if err != nil {
			return
		}

		c = c[words:]

		if perr != nil && len(c) > 0 {
			if errors.Is(perr, io.EOF) {
				perr = io.ErrUnexpectedEOF
			}
			return n, perr
		}
	}

	return
}
