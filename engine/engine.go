// Package engine implements the polynomial evaluation and interpolation entry points
// of the NTT engine over the Goldilocks field.
//
// An [Engine] owns a [device.Device], on which the transforms run, and a [pinned.Allocator]
// providing the host staging vectors. The entry points map onto the accelerator
// interface as follows:
//
//	evaluate_poly                -> EvaluatePoly
//	evaluate_poly_with_offset    -> EvaluatePolyWithOffset
//	interpolate_poly             -> InterpolatePoly
//	interpolate_poly_with_offset -> InterpolatePolyWithOffset
//	GPU_init                     -> GPUInit
//	Vec_init                     -> VecInit
//	Vec_free                     -> VecFree
//
// Evaluations are given in natural order: the j-th evaluation is the value of the
// polynomial at offset * w^j, where w is the primitive root of unity of the transform size.
package engine

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/tuneinsight/nttgpu/device"
	"github.com/tuneinsight/nttgpu/field"
	"github.com/tuneinsight/nttgpu/logger"
	"github.com/tuneinsight/nttgpu/ntt"
	"github.com/tuneinsight/nttgpu/pinned"
	"github.com/tuneinsight/nttgpu/utils"
)

// Names of the operations, as reported in errors, statistics and metrics.
const (
	OpEvaluate              = "evaluate_poly"
	OpEvaluateWithOffset    = "evaluate_poly_with_offset"
	OpInterpolate           = "interpolate_poly"
	OpInterpolateWithOffset = "interpolate_poly_with_offset"
	OpGPUInit               = "gpu_init"
	OpVecInit               = "vec_init"
	OpVecFree               = "vec_free"
)

// Config is a struct storing the parameters of an [Engine].
type Config struct {
	Device device.Config
	Pinned pinned.Config

	// Metrics enables the engine metrics. When set, the collectors of the engine are
	// registered on Registerer, or on the default Prometheus registerer if it is nil,
	// with an "engine" label unique to the engine, and unregistered on Close.
	Metrics    bool
	Registerer prometheus.Registerer
}

// DefaultConfig returns the default configuration of an [Engine].
func DefaultConfig() Config {
	return Config{
		Device:  device.DefaultConfig(),
		Pinned:  pinned.Config{},
		Metrics: true,
	}
}

// Validate checks that the configuration is usable.
func (c Config) Validate() (err error) {
	return errors.Join(c.Device.Validate(), c.Pinned.Validate())
}

// Engine is the entry point of the NTT engine. An Engine is safe for concurrent use,
// as long as concurrent calls do not share their output buffers.
type Engine struct {
	cfg   Config
	log   zerolog.Logger
	dev   *device.Device
	alloc *pinned.Allocator

	metrics *metrics

	mu        sync.Mutex
	latencies map[string]*latencies
}

// New creates a new [Engine].
func New(cfg Config) (e *Engine, err error) {

	if err = cfg.Validate(); err != nil {
		return nil, err
	}

	e = &Engine{
		cfg:       cfg,
		log:       logger.Component("engine"),
		latencies: map[string]*latencies{},
	}

	if e.dev, err = device.New(cfg.Device); err != nil {
		return nil, err
	}

	if e.alloc, err = pinned.NewAllocator(cfg.Pinned); err != nil {
		return nil, errors.Join(err, e.dev.Close())
	}

	if cfg.Metrics {
		if e.metrics, err = newMetrics(cfg.Registerer); err != nil {
			return nil, errors.Join(err, e.dev.Close(), e.alloc.Close())
		}
	}

	return
}

// Device returns the device of the engine.
func (e *Engine) Device() *device.Device {
	return e.dev
}

// Allocator returns the host staging allocator of the engine.
func (e *Engine) Allocator() *pinned.Allocator {
	return e.alloc
}

// Close releases the device and every live pinned vector. The data of the vectors
// returned by [Engine.VecInit] must not be used afterwards.
func (e *Engine) Close() (err error) {
	err = errors.Join(e.dev.Close(), e.alloc.Close())
	if e.metrics != nil {
		e.metrics.unregister()
	}
	return
}

// GPUInit uploads the NTT parameters of every power-of-two size up to n on the device
// and returns the handle the transforms of these sizes must be called with.
func (e *Engine) GPUInit(n int) (pg *device.ParamGroup, err error) {
	err = e.run(OpGPUInit, n, func() (err error) {
		pg, err = e.dev.Init(n)
		return
	})
	return
}

// VecInit allocates a pinned host vector of n elements.
func (e *Engine) VecInit(n int) (v *pinned.Vec, err error) {
	err = e.run(OpVecInit, n, func() (err error) {
		v, err = e.alloc.Alloc(n)
		return
	})
	return
}

// VecFree frees a vector returned by [Engine.VecInit].
func (e *Engine) VecFree(v *pinned.Vec) (err error) {

	var n int
	if v != nil {
		n = v.Len()
	}

	return e.run(OpVecFree, n, func() error {
		return e.alloc.Free(v)
	})
}

// WithVec allocates a pinned host vector of n elements, calls fn on it and frees it on return.
func (e *Engine) WithVec(n int, fn func(v *pinned.Vec) error) (err error) {
	var v *pinned.Vec
	if v, err = e.VecInit(n); err != nil {
		return
	}

	defer func() {
		if ferr := e.VecFree(v); err == nil {
			err = ferr
		}
	}()

	return fn(v)
}

// EvaluatePoly writes on result[:n] the evaluations of the polynomial of coefficients vec[:n]
// on the n-th roots of unity. vec and result can be the same slice.
func (e *Engine) EvaluatePoly(vec, result []uint64, n int, pg *device.ParamGroup) error {
	return e.run(OpEvaluate, n, func() (err error) {

		if err = e.check(pg, n, len(vec), len(result)); err != nil {
			return
		}

		return e.dev.Transform(pg, ntt.Forward, vec[:n], result[:n])
	})
}

// InterpolatePoly writes on result[:n] the coefficients of the polynomial whose evaluations
// on the n-th roots of unity are vec[:n]. vec and result can be the same slice.
func (e *Engine) InterpolatePoly(vec, result []uint64, n int, pg *device.ParamGroup) error {
	return e.run(OpInterpolate, n, func() (err error) {

		if err = e.check(pg, n, len(vec), len(result)); err != nil {
			return
		}

		return e.dev.Transform(pg, ntt.Backward, vec[:n], result[:n])
	})
}

// EvaluatePolyWithOffset writes on result[:n*blowup] the evaluations of the polynomial of
// coefficients vec[:n] on the coset offset * <w>, where w is the primitive (n*blowup)-th root of unity.
// The coefficients are zero-padded at the high-degree end: with blowup = 1 this is a coset NTT,
// and with blowup > 1 a low-degree extension whose every blowup-th evaluation is the coset NTT.
// resultLen must be equal to n*blowup. vec and result can be the same slice.
func (e *Engine) EvaluatePolyWithOffset(vec []uint64, n int, offset uint64, blowup int, result []uint64, resultLen int, pg *device.ParamGroup) error {
	return e.run(OpEvaluateWithOffset, n, func() (err error) {

		if offset = field.Reduce(offset); offset == 0 {
			return ErrZeroOffset
		}

		if !utils.IsPowerOfTwo(blowup) {
			return fmt.Errorf("%w: blowup=%d", ErrInvalidBlowup, blowup)
		}

		if !utils.IsPowerOfTwo(n) || utils.Log2(n)+utils.Log2(blowup) > field.TwoAdicity {
			return fmt.Errorf("%w: n=%d and n*blowup must be powers of two smaller or equal to 2^%d", ntt.ErrInvalidSize, n, field.TwoAdicity)
		}

		N := n * blowup

		if resultLen != N {
			return fmt.Errorf("%w: resultLen=%d must be equal to n*blowup=%d", ErrLengthMismatch, resultLen, N)
		}

		if err = e.check(pg, N, N, len(result)); err != nil {
			return
		}

		if len(vec) < n {
			return fmt.Errorf("%w: input buffer (%d) must hold at least %d elements", ErrLengthMismatch, len(vec), n)
		}

		// Zero padding at the high-degree end.
		if err = e.dev.Launch(N-n, func(lo, hi int) {
			utils.ZeroSlice(result[n+lo : n+hi])
		}); err != nil {
			return
		}

		if err = e.scaleByPowers(vec[:n], offset, result[:n]); err != nil {
			return
		}

		return e.dev.Transform(pg, ntt.Forward, result[:N], result[:N])
	})
}

// InterpolatePolyWithOffset writes on result[:n] the coefficients of the polynomial whose
// evaluations on the coset offset * <w> are vec[:n], where w is the primitive n-th root of unity.
// vec and result can be the same slice.
func (e *Engine) InterpolatePolyWithOffset(vec, result []uint64, n int, offset uint64, pg *device.ParamGroup) error {
	return e.run(OpInterpolateWithOffset, n, func() (err error) {

		if offset = field.Reduce(offset); offset == 0 {
			return ErrZeroOffset
		}

		if err = e.check(pg, n, len(vec), len(result)); err != nil {
			return
		}

		if err = e.dev.Transform(pg, ntt.Backward, vec[:n], result[:n]); err != nil {
			return
		}

		return e.scaleByPowers(result[:n], field.Inverse(offset), result[:n])
	})
}

// check validates the size of a transform against the parameter group and the buffers,
// before anything is written on the output.
func (e *Engine) check(pg *device.ParamGroup, n, lenIn, lenOut int) (err error) {

	if !utils.IsPowerOfTwo(n) {
		return fmt.Errorf("%w: n=%d must be a power of two", ntt.ErrInvalidSize, n)
	}

	if _, err = pg.Table(utils.Log2(n)); err != nil {
		return
	}

	if lenIn < n || lenOut < n {
		return fmt.Errorf("%w: input (%d) and output (%d) buffers must hold at least %d elements", ErrLengthMismatch, lenIn, lenOut, n)
	}

	return
}

// scaleByPowers sets dst[i] = src[i] * x^i. Each execution unit seeds its
// range [lo, hi) with x^lo.
func (e *Engine) scaleByPowers(src []uint64, x uint64, dst []uint64) error {

	if x == 1 {
		return e.dev.Launch(len(src), func(lo, hi int) {
			copy(dst[lo:hi], src[lo:hi])
		})
	}

	return e.dev.Launch(len(src), func(lo, hi int) {
		field.MulPowersVec(src[lo:hi], field.Exp(x, uint64(lo)), x, dst[lo:hi])
	})
}

// run calls f as the operation op of size n, wrapping its error in an [OpError],
// and records its latency.
func (e *Engine) run(op string, n int, f func() error) (err error) {

	now := time.Now()

	err = f()

	took := time.Since(now)

	if err != nil {

		e.log.Debug().Err(err).Str("op", op).Int("n", n).Msg("operation failed")

		if e.metrics != nil {
			e.metrics.operationErrors.WithLabelValues(op).Inc()
		}

		return &OpError{Op: op, N: n, Err: err}
	}

	e.log.Debug().Str("op", op).Int("n", n).Dur("took", took).Msg("operation done")

	e.mu.Lock()
	l, ok := e.latencies[op]
	if !ok {
		l = &latencies{}
		e.latencies[op] = l
	}
	l.add(took)
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.operationsTotal.WithLabelValues(op).Inc()
		e.metrics.operationDuration.WithLabelValues(op).Observe(took.Seconds())
		e.updateGauges()
	}

	return
}

func (e *Engine) updateGauges() {
	if e.metrics != nil {
		e.metrics.deviceMemory.Set(float64(e.dev.MemoryInUse()))
		e.metrics.pinnedMemory.Set(float64(e.alloc.BytesInUse()))
	}
}
