package field

import (
	"fmt"
)

// AddVec evaluates p3 = p1 + p2 mod p element-wise.
func AddVec(p1, p2, p3 []uint64) {
	checkLen("AddVec", len(p3), len(p1), len(p2))
	for i := range p3 {
		p3[i] = Add(p1[i], p2[i])
	}
}

// SubVec evaluates p3 = p1 - p2 mod p element-wise.
func SubVec(p1, p2, p3 []uint64) {
	checkLen("SubVec", len(p3), len(p1), len(p2))
	for i := range p3 {
		p3[i] = Sub(p1[i], p2[i])
	}
}

// NegVec evaluates p2 = -p1 mod p element-wise.
func NegVec(p1, p2 []uint64) {
	checkLen("NegVec", len(p2), len(p1))
	for i := range p2 {
		p2[i] = Neg(p1[i])
	}
}

// MulVec evaluates p3 = p1 * p2 mod p element-wise.
func MulVec(p1, p2, p3 []uint64) {

	checkLen("MulVec", len(p3), len(p1), len(p2))

	N := len(p3)

	var j int
	for ; j+8 <= N; j += 8 {

		x := (*[8]uint64)(p1[j : j+8])
		y := (*[8]uint64)(p2[j : j+8])
		z := (*[8]uint64)(p3[j : j+8])

		z[0] = Mul(x[0], y[0])
		z[1] = Mul(x[1], y[1])
		z[2] = Mul(x[2], y[2])
		z[3] = Mul(x[3], y[3])
		z[4] = Mul(x[4], y[4])
		z[5] = Mul(x[5], y[5])
		z[6] = Mul(x[6], y[6])
		z[7] = Mul(x[7], y[7])
	}

	for ; j < N; j++ {
		p3[j] = Mul(p1[j], p2[j])
	}
}

// MulScalarVec evaluates p2 = p1 * scalar mod p element-wise.
func MulScalarVec(p1 []uint64, scalar uint64, p2 []uint64) {

	checkLen("MulScalarVec", len(p2), len(p1))

	N := len(p2)

	var j int
	for ; j+8 <= N; j += 8 {

		x := (*[8]uint64)(p1[j : j+8])
		z := (*[8]uint64)(p2[j : j+8])

		z[0] = Mul(x[0], scalar)
		z[1] = Mul(x[1], scalar)
		z[2] = Mul(x[2], scalar)
		z[3] = Mul(x[3], scalar)
		z[4] = Mul(x[4], scalar)
		z[5] = Mul(x[5], scalar)
		z[6] = Mul(x[6], scalar)
		z[7] = Mul(x[7], scalar)
	}

	for ; j < N; j++ {
		p2[j] = Mul(p1[j], scalar)
	}
}

// ReduceVec evaluates p2 = p1 mod p element-wise, for arbitrary uint64 inputs.
func ReduceVec(p1, p2 []uint64) {
	checkLen("ReduceVec", len(p2), len(p1))
	for i := range p2 {
		p2[i] = Reduce(p1[i])
	}
}

// PowersVec writes dst[i] = start * x^i mod p for i in [0, len(dst)).
func PowersVec(start, x uint64, dst []uint64) {
	acc := start
	for i := range dst {
		dst[i] = acc
		acc = Mul(acc, x)
	}
}

// MulPowersVec evaluates p2[i] = p1[i] * start * x^i mod p.
// p1 and p2 can be the same slice.
func MulPowersVec(p1 []uint64, start, x uint64, p2 []uint64) {
	checkLen("MulPowersVec", len(p2), len(p1))
	acc := start
	for i := range p2 {
		p2[i] = Mul(p1[i], acc)
		acc = Mul(acc, x)
	}
}

// BatchInverse writes the inverse of each element of p1 on p2 using
// Montgomery's trick: a single inversion and 3(N-1) multiplications.
// p1 and p2 can be the same slice. It panics if any element is zero.
func BatchInverse(p1, p2 []uint64) {

	checkLen("BatchInverse", len(p2), len(p1))

	N := len(p1)

	if N == 0 {
		return
	}

	prefix := make([]uint64, N)

	acc := uint64(1)
	for i := 0; i < N; i++ {
		// Sanity check
		if p1[i] == 0 {
			panic(fmt.Errorf("cannot BatchInverse: element %d is zero", i))
		}
		prefix[i] = acc
		acc = Mul(acc, p1[i])
	}

	inv := Inverse(acc)

	for i := N - 1; i >= 0; i-- {
		x := p1[i]
		p2[i] = Mul(inv, prefix[i])
		inv = Mul(inv, x)
	}
}

// Equal returns true if both vectors have the same length and the same elements.
func Equal(p1, p2 []uint64) bool {
	if len(p1) != len(p2) {
		return false
	}
	for i := range p1 {
		if p1[i] != p2[i] {
			return false
		}
	}
	return true
}

func checkLen(op string, n int, others ...int) {
	// Sanity check
	for _, m := range others {
		if m < n {
			panic(fmt.Errorf("cannot %s: input length %d < output length %d", op, m, n))
		}
	}
}
