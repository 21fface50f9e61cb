package bignum

import (
	"math/big"
)

// Stats returns the base 2 logarithm of the standard deviation
// and the mean of the values, computed with prec bits of precision.
// The standard deviation uses the unbiased (N-1) estimator.
// A zero standard deviation is reported as -Inf.
func Stats(values []big.Int, prec uint) [2]float64 {

	N := len(values)

	// Sanity check
	if N < 2 {
		panic("cannot Stats: len(values) must be at least 2")
	}

	mean := NewFloat(0, prec)
	tmp := NewFloat(0, prec)

	for i := 0; i < N; i++ {
		mean.Add(mean, tmp.SetInt(&values[i]))
	}

	mean.Quo(mean, NewFloat(N, prec))

	variance := NewFloat(0, prec)

	for i := 0; i < N; i++ {
		tmp.SetInt(&values[i])
		tmp.Sub(tmp, mean)
		tmp.Mul(tmp, tmp)
		variance.Add(variance, tmp)
	}

	variance.Quo(variance, NewFloat(N-1, prec))

	meanF64, _ := mean.Float64()

	if variance.Sign() == 0 {
		return [2]float64{negInf(), meanF64}
	}

	// log2(std) = log2(variance)/2
	logStd := Log2(variance)
	logStd.Quo(logStd, NewFloat(2, prec))

	logStdF64, _ := logStd.Float64()

	return [2]float64{logStdF64, meanF64}
}

func negInf() float64 {
	f, _ := new(big.Float).SetInf(true).Float64()
	return f
}
