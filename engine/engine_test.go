package engine

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/tuneinsight/nttgpu/device"
	"github.com/tuneinsight/nttgpu/field"
	"github.com/tuneinsight/nttgpu/logger"
	"github.com/tuneinsight/nttgpu/ntt"
	"github.com/tuneinsight/nttgpu/pinned"
	"github.com/tuneinsight/nttgpu/utils/sampling"
)

const testLogMaxN = 10

func testString(opname string, logN int) string {
	return fmt.Sprintf("%s/LogN=%d", opname, logN)
}

type testContext struct {
	eng     *Engine
	pg      *device.ParamGroup
	sampler *field.UniformSampler
}

func newTestContext(t *testing.T, metrics bool) *testContext {

	logger.Disable()

	eng, err := New(Config{
		Device:  device.Config{Workers: 4, MemoryLimit: 1 << 26, ParallelThreshold: 16, VerifyUploads: true},
		Metrics: metrics,
	})
	require.NoError(t, err)

	t.Cleanup(func() { require.NoError(t, eng.Close()) })

	pg, err := eng.GPUInit(1 << testLogMaxN)
	require.NoError(t, err)

	return &testContext{
		eng:     eng,
		pg:      pg,
		sampler: field.NewUniformSampler(sampling.NewSource([32]byte{'e', 'n', 'g'})),
	}
}

func TestEngine(t *testing.T) {

	tc := newTestContext(t, false)

	testKnownSmallCase(tc, t)

	for _, logN := range []int{0, 1, 3, 6, 8} {
		testRoundTrip(tc, logN, t)
		testCosetRoundTrip(tc, logN, t)
		testCosetEvaluation(tc, logN, t)
		testBlowup(tc, logN, t)
	}

	testPreconditions(tc, t)
	testPinnedVectors(tc, t)
	testConcurrentCalls(tc, t)
	testStats(tc, t)
}

func testKnownSmallCase(tc *testContext, t *testing.T) {

	t.Run("KnownSmallCase", func(t *testing.T) {

		result := make([]uint64, 4)
		require.NoError(t, tc.eng.EvaluatePoly([]uint64{1, 1, 1, 1}, result, 4, tc.pg))
		require.Equal(t, []uint64{4, 0, 0, 0}, result)

		require.NoError(t, tc.eng.InterpolatePoly([]uint64{4, 0, 0, 0}, result, 4, tc.pg))
		require.Equal(t, []uint64{1, 1, 1, 1}, result)

		// The constant polynomial 1 evaluates to 1 everywhere, on any coset.
		result = make([]uint64, 8)
		require.NoError(t, tc.eng.EvaluatePolyWithOffset([]uint64{1, 0, 0, 0}, 4, field.Generator, 2, result, 8, tc.pg))
		require.Equal(t, []uint64{1, 1, 1, 1, 1, 1, 1, 1}, result)
	})
}

func testRoundTrip(tc *testContext, logN int, t *testing.T) {

	t.Run(testString("RoundTrip", logN), func(t *testing.T) {

		N := 1 << logN

		coeffs := tc.sampler.ReadNew(N)
		evals := make([]uint64, N)

		require.NoError(t, tc.eng.EvaluatePoly(coeffs, evals, N, tc.pg))

		tab, err := ntt.NewTable(logN)
		require.NoError(t, err)
		require.Equal(t, ntt.NaiveEvaluate(coeffs, tab.Root, 1), evals)

		require.NoError(t, tc.eng.InterpolatePoly(evals, evals, N, tc.pg))
		require.Equal(t, coeffs, evals)
	})
}

func testCosetRoundTrip(tc *testContext, logN int, t *testing.T) {

	t.Run(testString("CosetRoundTrip", logN), func(t *testing.T) {

		N := 1 << logN

		for _, offset := range []uint64{1, field.Generator, field.Modulus - 1, tc.sampler.Uint64()%(field.Modulus-1) + 1} {

			coeffs := tc.sampler.ReadNew(N)
			evals := make([]uint64, N)

			require.NoError(t, tc.eng.EvaluatePolyWithOffset(coeffs, N, offset, 1, evals, N, tc.pg))

			back := make([]uint64, N)
			require.NoError(t, tc.eng.InterpolatePolyWithOffset(evals, back, N, offset, tc.pg))
			require.Equal(t, coeffs, back, "offset=%d", offset)

			// In place
			require.NoError(t, tc.eng.InterpolatePolyWithOffset(evals, evals, N, offset, tc.pg))
			require.Equal(t, coeffs, evals, "offset=%d", offset)
		}
	})
}

func testCosetEvaluation(tc *testContext, logN int, t *testing.T) {

	t.Run(testString("CosetEvaluation", logN), func(t *testing.T) {

		N := 1 << logN

		tab, err := ntt.NewTable(logN)
		require.NoError(t, err)

		coeffs := tc.sampler.ReadNew(N)
		evals := make([]uint64, N)

		require.NoError(t, tc.eng.EvaluatePolyWithOffset(coeffs, N, field.Generator, 1, evals, N, tc.pg))
		require.Equal(t, ntt.NaiveEvaluate(coeffs, tab.Root, field.Generator), evals)

		coeffs = make([]uint64, N)
		require.NoError(t, tc.eng.InterpolatePolyWithOffset(evals, coeffs, N, field.Generator, tc.pg))
		require.Equal(t, ntt.NaiveInterpolate(evals, tab.Root, field.Generator), coeffs)
	})
}

func testBlowup(tc *testContext, logN int, t *testing.T) {

	t.Run(testString("Blowup", logN), func(t *testing.T) {

		N := 1 << logN

		coeffs := tc.sampler.ReadNew(N)
		offset := uint64(field.Generator)

		base := make([]uint64, N)
		require.NoError(t, tc.eng.EvaluatePolyWithOffset(coeffs, N, offset, 1, base, N, tc.pg))

		for logB := 1; logN+logB <= testLogMaxN && logB <= 3; logB++ {

			blowup := 1 << logB

			ext := make([]uint64, N*blowup)
			require.NoError(t, tc.eng.EvaluatePolyWithOffset(coeffs, N, offset, blowup, ext, N*blowup, tc.pg))

			for j := 0; j < N; j++ {
				require.Equal(t, base[j], ext[j*blowup], "blowup=%d, j=%d", blowup, j)
			}

			// The extension interpolates back to the zero-padded coefficients.
			back := make([]uint64, N*blowup)
			require.NoError(t, tc.eng.InterpolatePolyWithOffset(ext, back, N*blowup, offset, tc.pg))
			require.Equal(t, coeffs, back[:N])
			for _, c := range back[N:] {
				require.Zero(t, c)
			}

			// Input and output sharing the same buffer.
			buff := make([]uint64, N*blowup)
			copy(buff, coeffs)
			for i := N; i < len(buff); i++ {
				buff[i] = 0xdead
			}
			require.NoError(t, tc.eng.EvaluatePolyWithOffset(buff, N, offset, blowup, buff, N*blowup, tc.pg))
			require.Equal(t, ext, buff)
		}
	})
}

func testPreconditions(tc *testContext, t *testing.T) {

	t.Run("Preconditions", func(t *testing.T) {

		var opErr *OpError

		sentinel := []uint64{11, 22, 33, 44, 55, 66, 77, 88}
		result := func() []uint64 { return append([]uint64(nil), sentinel...) }

		requireUntouched := func(t *testing.T, err error, out []uint64, target error) {
			require.ErrorIs(t, err, target)
			require.True(t, errors.As(err, &opErr))
			require.Equal(t, sentinel[:len(out)], out)
		}

		// Non power-of-two sizes.
		out := result()
		requireUntouched(t, tc.eng.EvaluatePoly(make([]uint64, 8), out, 3, tc.pg), out, ntt.ErrInvalidSize)
		require.Equal(t, OpEvaluate, opErr.Op)
		require.Equal(t, 3, opErr.N)

		out = result()
		requireUntouched(t, tc.eng.InterpolatePoly(make([]uint64, 8), out, 6, tc.pg), out, ntt.ErrInvalidSize)
		out = result()
		requireUntouched(t, tc.eng.InterpolatePolyWithOffset(make([]uint64, 8), out, 5, 3, tc.pg), out, ntt.ErrInvalidSize)
		out = result()
		requireUntouched(t, tc.eng.EvaluatePolyWithOffset(make([]uint64, 8), 3, 3, 2, out, 6, tc.pg), out, ntt.ErrInvalidSize)
		require.Equal(t, OpEvaluateWithOffset, opErr.Op)

		// Sizes beyond the initialized ones.
		big := make([]uint64, 1<<(testLogMaxN+1))
		require.ErrorIs(t, tc.eng.EvaluatePoly(big, big, len(big), tc.pg), ntt.ErrInvalidSize)
		out = result()
		requireUntouched(t, tc.eng.EvaluatePolyWithOffset(big, 1<<testLogMaxN, 3, 4, out, 1<<(testLogMaxN+2), tc.pg), out, ntt.ErrInvalidSize)

		// Before initialization of any size.
		out = result()
		requireUntouched(t, tc.eng.EvaluatePoly(make([]uint64, 8), out, 8, nil), out, device.ErrInvalidHandle)

		// Result length mismatch.
		out = result()
		requireUntouched(t, tc.eng.EvaluatePolyWithOffset(make([]uint64, 4), 4, 3, 2, out, 4, tc.pg), out, ErrLengthMismatch)
		out = result()
		requireUntouched(t, tc.eng.EvaluatePolyWithOffset(make([]uint64, 4), 4, 3, 4, out, 16, tc.pg), out, ErrLengthMismatch)
		out = result()
		requireUntouched(t, tc.eng.EvaluatePolyWithOffset(make([]uint64, 2), 4, 3, 2, out, 8, tc.pg), out, ErrLengthMismatch)
		out = result()
		requireUntouched(t, tc.eng.EvaluatePoly(make([]uint64, 4), out, 8, tc.pg), out, ErrLengthMismatch)

		// Zero offset and invalid blowup.
		out = result()
		requireUntouched(t, tc.eng.EvaluatePolyWithOffset(make([]uint64, 4), 4, 0, 2, out, 8, tc.pg), out, ErrZeroOffset)
		out = result()
		requireUntouched(t, tc.eng.EvaluatePolyWithOffset(make([]uint64, 4), 4, field.Modulus, 2, out, 8, tc.pg), out, ErrZeroOffset)
		out = result()
		requireUntouched(t, tc.eng.InterpolatePolyWithOffset(make([]uint64, 4), out, 4, 0, tc.pg), out, ErrZeroOffset)
		for _, blowup := range []int{0, -2, 3} {
			out = result()
			requireUntouched(t, tc.eng.EvaluatePolyWithOffset(make([]uint64, 2), 2, 3, blowup, out, 2*blowup, tc.pg), out, ErrInvalidBlowup)
		}

		// Invalid initialization sizes.
		for _, n := range []int{0, 3, 1 << 5 * 3} {
			_, err := tc.eng.GPUInit(n)
			require.ErrorIs(t, err, ntt.ErrInvalidSize)
		}

		// Released parameters.
		pg, err := tc.eng.GPUInit(8)
		require.NoError(t, err)
		require.NoError(t, pg.Release())
		out = result()
		requireUntouched(t, tc.eng.InterpolatePoly(make([]uint64, 8), out, 8, pg), out, device.ErrInvalidHandle)
	})
}

func testPinnedVectors(tc *testContext, t *testing.T) {

	t.Run("PinnedVectors", func(t *testing.T) {

		N := 1 << 6

		v, err := tc.eng.VecInit(N)
		require.NoError(t, err)
		require.Equal(t, N, v.Len())

		coeffs := tc.sampler.ReadNew(N)
		copy(v.Data(), coeffs)

		require.NoError(t, tc.eng.EvaluatePoly(v.Data(), v.Data(), N, tc.pg))
		require.NoError(t, tc.eng.InterpolatePoly(v.Data(), v.Data(), N, tc.pg))
		require.Equal(t, coeffs, v.Data())

		require.NoError(t, tc.eng.VecFree(v))
		require.ErrorIs(t, tc.eng.VecFree(v), pinned.ErrDoubleFree)
		require.ErrorIs(t, tc.eng.VecFree(nil), pinned.ErrForeignHandle)

		other, err := pinned.NewAllocator(pinned.Config{})
		require.NoError(t, err)
		foreign, err := other.Alloc(4)
		require.NoError(t, err)
		require.ErrorIs(t, tc.eng.VecFree(foreign), pinned.ErrForeignHandle)
		require.NoError(t, other.Close())

		_, err = tc.eng.VecInit(0)
		require.Error(t, err)

		require.NoError(t, tc.eng.WithVec(N, func(v *pinned.Vec) error {
			return tc.eng.EvaluatePolyWithOffset(coeffs, N/2, 3, 2, v.Data(), N, tc.pg)
		}))
		require.Zero(t, tc.eng.Allocator().Live())
	})
}

func testConcurrentCalls(tc *testContext, t *testing.T) {

	t.Run("Concurrent", func(t *testing.T) {

		var wg sync.WaitGroup
		errs := make([]error, 8)

		for g := range errs {
			wg.Add(1)
			go func(g int) {
				defer wg.Done()

				sampler := field.NewUniformSampler(sampling.NewSource([32]byte{byte(g)}))
				N := 1 << (g%4 + 5)
				offset := uint64(g + 2)

				coeffs := sampler.ReadNew(N)
				evals := make([]uint64, 2*N)
				back := make([]uint64, 2*N)

				for i := 0; i < 10; i++ {
					if err := tc.eng.EvaluatePolyWithOffset(coeffs, N, offset, 2, evals, 2*N, tc.pg); err != nil {
						errs[g] = err
						return
					}
					if err := tc.eng.InterpolatePolyWithOffset(evals, back, 2*N, offset, tc.pg); err != nil {
						errs[g] = err
						return
					}
					if !field.Equal(coeffs, back[:N]) {
						errs[g] = fmt.Errorf("goroutine %d: round trip mismatch", g)
						return
					}
				}
			}(g)
		}

		wg.Wait()

		for _, err := range errs {
			require.NoError(t, err)
		}
	})
}

func testStats(tc *testContext, t *testing.T) {

	t.Run("Stats", func(t *testing.T) {

		stats := tc.eng.Stats()

		s, ok := stats[OpEvaluate]
		require.True(t, ok)
		require.Greater(t, s.Count, 0)
		require.LessOrEqual(t, s.Median, s.P95)

		require.Equal(t, 2, stats[OpGPUInit].Count)
	})
}

func TestEngineProperties(t *testing.T) {

	tc := newTestContext(t, false)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	properties := gopter.NewProperties(parameters)

	genElement := gen.UInt64Range(0, field.Modulus-1)
	genOffset := gen.UInt64Range(1, field.Modulus-1)
	genLogN := gen.IntRange(0, 7)

	genVecs := genLogN.FlatMap(func(v interface{}) gopter.Gen {
		N := 1 << v.(int)
		return gen.SliceOfN(2*N, genElement)
	}, reflect.TypeOf([]uint64(nil)))

	properties.Property("interpolate_poly(evaluate_poly(c)) = c", prop.ForAll(
		func(c []uint64) bool {
			N := len(c)
			buff := make([]uint64, N)
			if tc.eng.EvaluatePoly(c, buff, N, tc.pg) != nil || tc.eng.InterpolatePoly(buff, buff, N, tc.pg) != nil {
				return false
			}
			return field.Equal(c, buff)
		},
		genVecs,
	))

	properties.Property("coset round trip with blowup 1", prop.ForAll(
		func(c []uint64, offset uint64) bool {
			N := len(c)
			buff := make([]uint64, N)
			if tc.eng.EvaluatePolyWithOffset(c, N, offset, 1, buff, N, tc.pg) != nil {
				return false
			}
			if tc.eng.InterpolatePolyWithOffset(buff, buff, N, offset, tc.pg) != nil {
				return false
			}
			return field.Equal(c, buff)
		},
		genVecs, genOffset,
	))

	properties.Property("evaluate_poly is linear", prop.ForAll(
		func(c []uint64) bool {

			N := len(c) / 2
			c1, c2 := c[:N], c[N:]

			sum := make([]uint64, N)
			field.AddVec(c1, c2, sum)

			e1 := make([]uint64, N)
			e2 := make([]uint64, N)
			es := make([]uint64, N)

			if tc.eng.EvaluatePoly(c1, e1, N, tc.pg) != nil ||
				tc.eng.EvaluatePoly(c2, e2, N, tc.pg) != nil ||
				tc.eng.EvaluatePoly(sum, es, N, tc.pg) != nil {
				return false
			}

			field.AddVec(e1, e2, e1)

			return field.Equal(e1, es)
		},
		genVecs,
	))

	properties.TestingRun(t)
}

func TestEngineMetrics(t *testing.T) {

	logger.Disable()

	names := []string{
		"nttgpu_transforms_total",
		"nttgpu_transform_errors_total",
		"nttgpu_transform_duration_seconds",
		"nttgpu_device_memory_bytes",
		"nttgpu_pinned_bytes",
	}

	newEngine := func(reg prometheus.Registerer, metrics bool) *Engine {
		eng, err := New(Config{
			Device:     device.Config{Workers: 2, MemoryLimit: 1 << 26, ParallelThreshold: 16},
			Metrics:    metrics,
			Registerer: reg,
		})
		require.NoError(t, err)
		return eng
	}

	// gather returns, for each metric name, the value of the "engine" label of each series.
	gather := func(reg *prometheus.Registry) map[string]map[string]float64 {
		families, err := reg.Gather()
		require.NoError(t, err)
		series := map[string]map[string]float64{}
		for _, mf := range families {
			series[mf.GetName()] = map[string]float64{}
			for _, m := range mf.GetMetric() {
				var id string
				for _, lp := range m.GetLabel() {
					if lp.GetName() == "engine" {
						id = lp.GetValue()
					}
				}
				require.NotEmpty(t, id, mf.GetName())
				series[mf.GetName()][id] = m.GetGauge().GetValue()
			}
		}
		return series
	}

	t.Run("Registered", func(t *testing.T) {

		reg := prometheus.NewRegistry()
		eng := newEngine(reg, true)
		defer eng.Close()

		pg, err := eng.GPUInit(16)
		require.NoError(t, err)

		N := 16
		buff := make([]uint64, N)
		require.NoError(t, eng.EvaluatePoly(buff, buff, N, pg))
		require.Error(t, eng.EvaluatePoly(buff, buff, 3, pg))

		series := gather(reg)
		for _, name := range names {
			require.Len(t, series[name], 1, name)
		}
	})

	t.Run("SeveralEngines", func(t *testing.T) {

		reg := prometheus.NewRegistry()

		eng0 := newEngine(reg, true)
		defer eng0.Close()

		eng1 := newEngine(reg, true)
		defer eng1.Close()

		pg0, err := eng0.GPUInit(1 << 8)
		require.NoError(t, err)

		pg1, err := eng1.GPUInit(1 << 4)
		require.NoError(t, err)

		buff := make([]uint64, 16)
		require.NoError(t, eng0.EvaluatePoly(buff, buff, 16, pg0))
		require.NoError(t, eng1.EvaluatePoly(buff, buff, 16, pg1))

		gauges := gather(reg)["nttgpu_device_memory_bytes"]
		require.Len(t, gauges, 2)

		values := map[float64]bool{}
		for _, v := range gauges {
			values[v] = true
		}

		require.True(t, values[float64(eng0.Device().MemoryInUse())])
		require.True(t, values[float64(eng1.Device().MemoryInUse())])
		require.NotEqual(t, eng0.Device().MemoryInUse(), eng1.Device().MemoryInUse())
	})

	t.Run("Close", func(t *testing.T) {

		reg := prometheus.NewRegistry()

		eng := newEngine(reg, true)
		require.NotEmpty(t, gather(reg))

		require.NoError(t, eng.Close())
		require.Empty(t, gather(reg))
	})

	t.Run("Disabled", func(t *testing.T) {

		reg := prometheus.NewRegistry()

		eng := newEngine(reg, false)
		defer eng.Close()

		pg, err := eng.GPUInit(16)
		require.NoError(t, err)

		buff := make([]uint64, 16)
		require.NoError(t, eng.EvaluatePoly(buff, buff, 16, pg))

		require.Empty(t, gather(reg))
	})
}

func TestConfig(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	_, err := New(Config{Device: device.Config{Workers: 0}})
	require.Error(t, err)

	_, err = New(Config{Device: device.Config{Workers: 1}, Pinned: pinned.Config{MemoryLimit: -1}})
	require.Error(t, err)
}
