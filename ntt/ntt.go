// Package ntt implements the Number Theoretic Transform over the Goldilocks field
// with a radix-2 Stockham auto-sort kernel.
//
// The kernel alternates between two buffers at each of the log2(N) stages, so that
// the output is produced in natural order without any bit-reversal pass. Each stage
// is a single data-parallel launch of N/2 independent butterflies on an [Executor].
// The executor returning from a launch is the barrier between two stages.
package ntt

import (
	"errors"
	"fmt"

	"github.com/tuneinsight/nttgpu/field"
	"github.com/tuneinsight/nttgpu/utils"
)

var (
	// ErrInvalidSize is returned when a transform size is not a supported power of two
	// or does not match the size of the table.
	ErrInvalidSize = errors.New("invalid transform size")

	// ErrBufferAlias is returned when the destination and scratch buffers overlap.
	ErrBufferAlias = errors.New("destination and scratch buffers overlap")

	// ErrCorruptedTable is returned when a decoded or uploaded table does not match its digest.
	ErrCorruptedTable = errors.New("corrupted twiddle table")
)

// Direction is the direction of a transform.
type Direction int

const (
	// Forward evaluates a polynomial given by its coefficients.
	Forward = Direction(iota)
	// Backward interpolates a polynomial given by its evaluations.
	Backward
)

func (d Direction) String() string {
	switch d {
	case Forward:
		return "forward"
	case Backward:
		return "backward"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// Transform writes on dst[:N] the NTT of src[:N] in the given direction, where N is the size of the table.
// The evaluation points are Root^j for j in [0, N), in natural order. The backward transform includes
// the scaling by N^-1.
// scratch must provide at least N words and must not overlap dst. src can be equal to dst or to scratch.
func Transform(dir Direction, t *Table, src, dst, scratch []uint64, exec Executor) (err error) {
	switch dir {
	case Forward:
		return stockham(t.LogN, t.RootsForward, 0, src, dst, scratch, exec)
	case Backward:
		return stockham(t.LogN, t.RootsBackward, t.NInv, src, dst, scratch, exec)
	default:
		return fmt.Errorf("invalid direction: %v", dir)
	}
}

// NTT evaluates dst = NTT(src), see [Transform].
func NTT(t *Table, src, dst, scratch []uint64, exec Executor) (err error) {
	return Transform(Forward, t, src, dst, scratch, exec)
}

// INTT evaluates dst = INTT(src), see [Transform].
func INTT(t *Table, src, dst, scratch []uint64, exec Executor) (err error) {
	return Transform(Backward, t, src, dst, scratch, exec)
}

// stockham runs the logN stages of the Stockham auto-sort NTT.
// If scale is not zero, the output is multiplied by scale.
//
// Stage s combines the 2^s-point transforms of the interleaved subsequences
// into 2^(s+1)-point transforms. With half = N/2 and r = N/2^(s+1), the butterfly
// i in [0, half) reads in[i + (i &^ (r-1))] and in[i + (i &^ (r-1)) + r], uses the
// twiddle Root^(i &^ (r-1)) and writes out[i] and out[i + half].
func stockham(logN int, roots []uint64, scale uint64, src, dst, scratch []uint64, exec Executor) (err error) {

	N := 1 << logN

	if len(src) < N || len(dst) < N || len(scratch) < N || len(roots) < N>>1 {
		return fmt.Errorf("%w: len(src)=%d, len(dst)=%d, len(scratch)=%d and len(roots)=%d must be at least N=%d (N/2 for roots)",
			ErrInvalidSize, len(src), len(dst), len(scratch), len(roots), N)
	}

	src, dst, scratch = src[:N], dst[:N], scratch[:N]

	if utils.Alias1D(dst, scratch) {
		return ErrBufferAlias
	}

	if logN == 0 {
		if scale != 0 {
			dst[0] = field.Mul(src[0], scale)
		} else {
			dst[0] = src[0]
		}
		return
	}

	// The last stage must write on dst, so stage s writes
	// on dst if logN-1-s is even and on scratch otherwise.
	buffers := [2][]uint64{dst, scratch}
	target := func(s int) []uint64 {
		return buffers[(logN-1-s)&1]
	}

	// The first stage cannot read and write the same buffer.
	if first := target(0); utils.Alias1D(src, first) {
		other := buffers[((logN-1)&1)^1]
		copy(other, src)
		src = other
	}

	half := N >> 1

	in := src
	for s := 0; s < logN; s++ {

		out := target(s)
		mask := (half >> s) - 1 // r-1 with r = N/2^(s+1)
		r := half >> s

		if err = exec.Launch(half, func(lo, hi int) {
			butterflies(in, out, roots, lo, hi, half, r, mask)
		}); err != nil {
			return
		}

		in = out
	}

	if scale != 0 {
		return exec.Launch(N, func(lo, hi int) {
			field.MulScalarVec(dst[lo:hi], scale, dst[lo:hi])
		})
	}

	return
}

// butterflies computes the butterflies [lo, hi) of one Stockham stage:
// a' = a + w*b, b' = a - w*b.
func butterflies(in, out, roots []uint64, lo, hi, half, r, mask int) {
	for i := lo; i < hi; i++ {
		jr := i &^ mask
		a := in[i+jr]
		tb := field.Mul(roots[jr], in[i+jr+r])
		out[i] = field.Add(a, tb)
		out[i+half] = field.Sub(a, tb)
	}
}
