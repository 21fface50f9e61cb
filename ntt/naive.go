package ntt

import (
	"github.com/tuneinsight/nttgpu/field"
)

// NaiveEvaluate returns the evaluations of the polynomial with the given coefficients
// on offset * root^j for j in [0, len(coeffs)), by Horner's rule.
// It runs in O(N^2) and is meant to be used as a reference.
func NaiveEvaluate(coeffs []uint64, root, offset uint64) (evals []uint64) {

	N := len(coeffs)

	evals = make([]uint64, N)

	x := offset
	for j := 0; j < N; j++ {
		var y uint64
		for i := N - 1; i >= 0; i-- {
			y = field.Add(field.Mul(y, x), coeffs[i])
		}
		evals[j] = y
		x = field.Mul(x, root)
	}

	return
}

// NaiveInterpolate returns the coefficients of the polynomial of degree < N
// whose evaluations on offset * root^j are evals, root being of order N.
// It runs in O(N^2) and is meant to be used as a reference.
func NaiveInterpolate(evals []uint64, root, offset uint64) (coeffs []uint64) {

	N := len(evals)

	// c_i = N^-1 * offset^-i * sum_j evals[j] * root^-ij
	coeffs = NaiveEvaluate(evals, field.Inverse(root), 1)

	nInv := field.Inverse(uint64(N))
	offInv := field.Inverse(offset)

	field.MulPowersVec(coeffs, nInv, offInv, coeffs)

	return
}
