// Package utils implements various helper functions.
package utils

import (
	"math/bits"

	"golang.org/x/exp/constraints"
)

// IsPowerOfTwo returns true if x is a strictly positive power of two.
func IsPowerOfTwo[T constraints.Integer](x T) bool {
	return x > 0 && x&(x-1) == 0
}

// Log2 returns floor(log2(x)) for x > 0 and 0 otherwise.
func Log2[T constraints.Integer](x T) int {
	if x <= 0 {
		return 0
	}
	return bits.Len64(uint64(x)) - 1
}

// Min returns the minimum value of the input values.
func Min[V constraints.Ordered](a, b V) (r V) {
	if a <= b {
		return a
	}
	return b
}

// SplitRange splits [0, count) in at most parts contiguous chunks of nearly equal size
// and calls f on each of them. Chunks are never empty.
func SplitRange(count, parts int, f func(lo, hi int)) {

	if count <= 0 {
		return
	}

	if parts < 1 {
		parts = 1
	}

	parts = Min(parts, count)

	size := count / parts
	rem := count % parts

	var lo int
	for i := 0; i < parts; i++ {
		hi := lo + size
		if i < rem {
			hi++
		}
		f(lo, hi)
		lo = hi
	}
}
