// Package field implements arithmetic over the Goldilocks prime field
// Z_p with p = 2^64 - 2^32 + 1.
//
// Elements are represented as uint64 values. Every function of this package
// expects fully reduced inputs (in [0, p-1]) and returns fully reduced outputs,
// unless stated otherwise.
package field

import (
	"fmt"
	"math/bits"
)

const (
	// Modulus is the Goldilocks prime p = 2^64 - 2^32 + 1.
	Modulus uint64 = 0xFFFFFFFF00000001

	// Epsilon is 2^64 mod p = 2^32 - 1.
	Epsilon uint64 = 0xFFFFFFFF

	// Generator is a generator of the multiplicative group of Z_p.
	Generator uint64 = 7

	// TwoAdicity is the largest k such that 2^k divides p-1.
	TwoAdicity = 32
)

// Factors are the unique prime factors of p-1 = 2^32 * 3 * 5 * 17 * 257 * 65537.
var Factors = []uint64{2, 3, 5, 17, 257, 65537}

// IsReduced returns true if x is in [0, p-1].
func IsReduced(x uint64) bool {
	return x < Modulus
}

// Reduce returns x mod p for any uint64 x.
func Reduce(x uint64) uint64 {
	if x >= Modulus {
		return x - Modulus
	}
	return x
}

// Add returns a + b mod p.
func Add(a, b uint64) uint64 {
	s, carry := bits.Add64(a, b, 0)
	// 2^64 = Epsilon mod p, and s + Epsilon cannot overflow when carry is set.
	s += Epsilon * carry
	return Reduce(s)
}

// Sub returns a - b mod p.
func Sub(a, b uint64) uint64 {
	d, borrow := bits.Sub64(a, b, 0)
	// d + p = d - Epsilon mod 2^64.
	return d - Epsilon*borrow
}

// Neg returns -a mod p.
func Neg(a uint64) uint64 {
	if a == 0 {
		return 0
	}
	return Modulus - a
}

// Mul returns a * b mod p.
func Mul(a, b uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	return Reduce128(hi, lo)
}

// Square returns a^2 mod p.
func Square(a uint64) uint64 {
	return Mul(a, a)
}

// Reduce128 returns (hi * 2^64 + lo) mod p.
// It uses 2^64 = 2^32 - 1 mod p and 2^96 = -1 mod p to fold the
// high word without any division.
func Reduce128(hi, lo uint64) (r uint64) {

	hihi := hi >> 32
	hilo := hi & Epsilon

	// lo - hihi, with 2^64 = Epsilon on borrow
	t0, borrow := bits.Sub64(lo, hihi, 0)
	t0 -= Epsilon * borrow

	// hilo * 2^64 = hilo * Epsilon
	t1 := hilo * Epsilon

	r, carry := bits.Add64(t0, t1, 0)
	r += Epsilon * carry

	return Reduce(r)
}

// Exp returns x^e mod p.
func Exp(x, e uint64) (y uint64) {
	y = 1
	for i := e; i > 0; i >>= 1 {
		if i&1 == 1 {
			y = Mul(y, x)
		}
		x = Mul(x, x)
	}
	return
}

// Inverse returns x^-1 mod p, computed as x^(p-2).
// It panics if x = 0.
func Inverse(x uint64) uint64 {
	// Sanity check
	if x == 0 {
		panic("cannot Inverse: 0 has no inverse")
	}
	return Exp(x, Modulus-2)
}

// Div returns a * b^-1 mod p.
// It panics if b = 0.
func Div(a, b uint64) uint64 {
	return Mul(a, Inverse(b))
}

// CheckGenerator checks that g generates the multiplicative group of Z_p,
// i.e. that g^((p-1)/f) != 1 for every prime factor f of p-1.
func CheckGenerator(g uint64) (err error) {

	if g == 0 || g >= Modulus {
		return fmt.Errorf("invalid generator: %d is not a non-zero reduced element", g)
	}

	for _, factor := range Factors {
		if Exp(g, (Modulus-1)/factor) == 1 {
			return fmt.Errorf("invalid generator: %d^((p-1)/%d) = 1", g, factor)
		}
	}

	return
}

// RootOfUnity returns a primitive 2^logN-th root of unity, Generator^((p-1)/2^logN).
// It panics if logN is negative or larger than [TwoAdicity].
func RootOfUnity(logN int) uint64 {
	// Sanity check
	if logN < 0 || logN > TwoAdicity {
		panic(fmt.Errorf("cannot RootOfUnity: logN=%d must be in [0, %d]", logN, TwoAdicity))
	}
	return Exp(Generator, (Modulus-1)>>logN)
}
