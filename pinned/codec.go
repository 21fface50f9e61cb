package pinned

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/tuneinsight/nttgpu/field"
	"github.com/tuneinsight/nttgpu/utils/buffer"
)

// ErrNotReduced is returned when a decoded element is not a reduced field element.
var ErrNotReduced = errors.New("element is not reduced modulo p")

// WriteTo writes the length and the elements of the vector on w.
func (v *Vec) WriteTo(w io.Writer) (n int64, err error) {

	if v.freed {
		return 0, ErrDoubleFree
	}

	bw, ok := w.(buffer.Writer)
	if !ok {
		bw = bufio.NewWriter(w)
	}

	var inc int64
	if inc, err = buffer.WriteUint64(bw, uint64(len(v.data))); err != nil {
		return n + inc, err
	}

	n += inc

	if inc, err = buffer.WriteUint64Slice(bw, v.data); err != nil {
		return n + inc, err
	}

	n += inc

	return n, bw.Flush()
}

// ReadFrom reads on the vector the elements written by [Vec.WriteTo].
// The encoded length must be equal to the length of the vector, and every element
// must be reduced; on error the content of the vector is undefined.
func (v *Vec) ReadFrom(r io.Reader) (n int64, err error) {

	if v.freed {
		return 0, ErrDoubleFree
	}

	br, ok := r.(buffer.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}

	var size uint64
	var inc int
	if inc, err = buffer.ReadUint64(br, &size); err != nil {
		return int64(inc), fmt.Errorf("cannot ReadFrom: %w", err)
	}

	n += int64(inc)

	if size != uint64(len(v.data)) {
		return n, fmt.Errorf("cannot ReadFrom: encoded length %d does not match the vector length %d", size, len(v.data))
	}

	inc, err = buffer.ReadUint64Slice(br, v.data)
	n += int64(inc)

	if err != nil {
		return n, fmt.Errorf("cannot ReadFrom: %w", err)
	}

	for i, x := range v.data {
		if !field.IsReduced(x) {
			return n, fmt.Errorf("cannot ReadFrom: %w: index %d", ErrNotReduced, i)
		}
	}

	return
}
