package bignum

import (
	"math"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFloat(t *testing.T) {

	t.Run("NewFloat", func(t *testing.T) {
		for _, x := range []interface{}{int(7), int64(7), uint(7), uint64(7), 7.0, big.NewInt(7), big.NewFloat(7)} {
			y, _ := NewFloat(x, 64).Float64()
			require.Equal(t, 7.0, y)
		}

		require.Equal(t, uint(64), NewFloat(nil, 64).Prec())
		require.Panics(t, func() { NewFloat("7", 64) })
	})

	t.Run("Log", func(t *testing.T) {
		for _, x := range []float64{0.5, 1.4142135623730951, 1e9} {
			y, _ := Log(NewFloat(x, 53)).Float64()
			require.InDelta(t, math.Log(x), y, 1e-12)
		}
	})

	t.Run("Ln2", func(t *testing.T) {
		y, _ := Ln2(53).Float64()
		require.Equal(t, math.Ln2, y)
	})
}
