// Package device implements the execution device of the NTT engine.
//
// A [Device] models an accelerator as a fixed number of execution units driven by
// data-parallel kernel launches, and an accounted memory holding the twiddle tables
// of every initialized [ParamGroup] as well as the work buffers of the transforms
// in flight. A Device is safe for concurrent use.
package device

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tuneinsight/nttgpu/field"
	"github.com/tuneinsight/nttgpu/logger"
	"github.com/tuneinsight/nttgpu/ntt"
	"github.com/tuneinsight/nttgpu/utils"
	"github.com/tuneinsight/nttgpu/utils/structs"
)

var (
	// ErrClosed is returned by any operation on a closed device.
	ErrClosed = errors.New("device is closed")

	// ErrInvalidHandle is returned when a parameter group is nil, released, or belongs to another device.
	ErrInvalidHandle = errors.New("invalid parameter group handle")

	// ErrOutOfMemory is returned when an allocation would exceed the device memory limit.
	ErrOutOfMemory = errors.New("device out of memory")

	// ErrDeviceFault is returned when a kernel aborts during a launch.
	ErrDeviceFault = errors.New("device fault")
)

const wordSize = 8

// Device is an execution device with accounted memory.
type Device struct {
	cfg Config
	log zerolog.Logger

	used atomic.Int64

	mu     sync.RWMutex
	closed bool
	nextID uint64
	groups map[uint64]*group

	// pools[logN] recycles the work buffers of the transforms of size 2^logN.
	pools [field.TwoAdicity + 1]structs.BufferPool[workBuffers]
}

// workBuffers are the two device buffers a transform ping-pongs between.
type workBuffers struct {
	work, scratch *[]uint64
}

// New creates a new [Device] with the given configuration.
func New(cfg Config) (d *Device, err error) {

	if err = cfg.Validate(); err != nil {
		return nil, err
	}

	d = &Device{
		cfg:    cfg,
		log:    logger.Component("device"),
		groups: map[uint64]*group{},
	}

	for i := range d.pools {
		words := structs.NewSyncPoolUint64(1 << i)
		d.pools[i] = structs.NewBuffFromUintPool(
			func() workBuffers {
				return workBuffers{work: words.Get(), scratch: words.Get()}
			},
			func(b workBuffers) {
				words.Put(b.work)
				words.Put(b.scratch)
			})
	}

	d.log.Info().
		Int("workers", cfg.Workers).
		Int64("memory_limit", cfg.MemoryLimit).
		Str("cpu", cpuFeatures()).
		Msg("device ready")

	return
}

// Config returns the configuration of the device.
func (d *Device) Config() Config {
	return d.cfg
}

// MemoryInUse returns the number of bytes of device memory currently allocated.
func (d *Device) MemoryInUse() int64 {
	return d.used.Load()
}

// Init uploads on the device the NTT parameters of every size 2^0, ..., n
// and returns a handle on them. n must be a power of two not larger than 2^32.
// On failure, nothing stays allocated.
func (d *Device) Init(n int) (pg *ParamGroup, err error) {

	if !utils.IsPowerOfTwo(n) || utils.Log2(n) > field.TwoAdicity {
		return nil, fmt.Errorf("cannot Init: %w: n=%d must be a power of two smaller or equal to 2^%d", ntt.ErrInvalidSize, n, field.TwoAdicity)
	}

	if d.isClosed() {
		return nil, ErrClosed
	}

	now := time.Now()

	maxLogN := utils.Log2(n)

	g := &group{tables: make([]*ntt.Table, maxLogN+1)}

	defer func() {
		if err != nil {
			d.free(g.bytes)
		}
	}()

	// Largest size first, so that the memory check fails before any generation work.
	for logN := maxLogN; logN >= 0; logN-- {

		bytes := int64(1<<logN) * wordSize

		if err = d.alloc(bytes); err != nil {
			d.log.Warn().Err(err).Int("n", n).Msg("parameter upload aborted")
			return nil, fmt.Errorf("cannot Init: %w", err)
		}

		g.bytes += bytes
	}

	// The group is generated and uploaded outside of the registry lock,
	// transforms on the other groups are not blocked meanwhile.
	var host *ntt.Table
	if host, err = ntt.NewTable(maxLogN); err != nil {
		return nil, fmt.Errorf("cannot Init: %w", err)
	}

	for logN := maxLogN; logN >= 0; logN-- {

		var sub *ntt.Table
		if sub, err = host.Subtable(logN); err != nil {
			return nil, fmt.Errorf("cannot Init: %w", err)
		}

		if g.tables[logN], err = d.upload(sub); err != nil {
			return nil, fmt.Errorf("cannot Init: %w", err)
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	// The device may have been closed during the upload.
	if d.closed {
		return nil, ErrClosed
	}

	d.nextID++
	d.groups[d.nextID] = g

	pg = &ParamGroup{dev: d, id: d.nextID, maxLogN: maxLogN}

	d.log.Info().
		Int("n", n).
		Int64("bytes", g.bytes).
		Dur("took", time.Since(now)).
		Msg("parameters uploaded")

	return
}

// upload copies the table on device memory and checks the copy against the host digest.
func (d *Device) upload(host *ntt.Table) (dev *ntt.Table, err error) {

	dev = &ntt.Table{
		LogN:          host.LogN,
		N:             host.N,
		Root:          host.Root,
		RootInv:       host.RootInv,
		NInv:          host.NInv,
		RootsForward:  make([]uint64, len(host.RootsForward)),
		RootsBackward: make([]uint64, len(host.RootsBackward)),
	}

	if err = d.launch(len(host.RootsForward), func(lo, hi int) {
		copy(dev.RootsForward[lo:hi], host.RootsForward[lo:hi])
		copy(dev.RootsBackward[lo:hi], host.RootsBackward[lo:hi])
	}); err != nil {
		return nil, err
	}

	if uploadHook != nil {
		uploadHook(dev)
	}

	if d.cfg.VerifyUploads && dev.Digest() != host.Digest() {
		return nil, fmt.Errorf("%w: upload of the table of size 2^%d", ntt.ErrCorruptedTable, host.LogN)
	}

	return
}

// uploadHook, if set, is called on every table after its copy on the device.
var uploadHook func(*ntt.Table)

// Transform writes on dst the NTT of src in the given direction, using the tables of pg.
// The size of the transform is len(src), which must be a power of two not larger than the size
// pg was initialized with, and len(dst) must be equal to len(src). src and dst can be the same slice.
func (d *Device) Transform(pg *ParamGroup, dir ntt.Direction, src, dst []uint64) (err error) {

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return ErrClosed
	}

	var g *group
	if g, err = d.lookup(pg); err != nil {
		return
	}

	N := len(src)

	if !utils.IsPowerOfTwo(N) || len(dst) != N {
		return fmt.Errorf("%w: len(src)=%d must be a power of two and len(dst)=%d must be equal to it", ntt.ErrInvalidSize, N, len(dst))
	}

	logN := utils.Log2(N)

	if logN >= len(g.tables) {
		return fmt.Errorf("%w: size 2^%d exceeds the initialized size 2^%d", ntt.ErrInvalidSize, logN, len(g.tables)-1)
	}

	bytes := 2 * int64(N) * wordSize
	if err = d.alloc(bytes); err != nil {
		return
	}
	defer d.free(bytes)

	buffers := d.pools[logN].Get()
	defer d.pools[logN].Put(buffers)

	work, scratch := buffers.work, buffers.scratch

	exec := executor{d}

	if err = exec.Launch(N, func(lo, hi int) {
		copy((*work)[lo:hi], src[lo:hi])
	}); err != nil {
		return
	}

	if err = ntt.Transform(dir, g.tables[logN], *work, *work, *scratch, exec); err != nil {
		return
	}

	return exec.Launch(N, func(lo, hi int) {
		copy(dst[lo:hi], (*work)[lo:hi])
	})
}

// Launch runs kernel over [0, count) on the execution units of the device and returns
// once every unit is done. A kernel that panics makes the launch return [ErrDeviceFault].
func (d *Device) Launch(count int, kernel func(lo, hi int)) (err error) {

	d.mu.RLock()
	closed := d.closed
	d.mu.RUnlock()

	if closed {
		return ErrClosed
	}

	return d.launch(count, kernel)
}

func (d *Device) launch(count int, kernel func(lo, hi int)) (err error) {

	if count <= 0 {
		return
	}

	if d.cfg.Workers == 1 || count < d.cfg.ParallelThreshold {
		return guard(kernel, 0, count)
	}

	var eg errgroup.Group
	eg.SetLimit(d.cfg.Workers)

	utils.SplitRange(count, d.cfg.Workers, func(lo, hi int) {
		eg.Go(func() error {
			return guard(kernel, lo, hi)
		})
	})

	return eg.Wait()
}

// guard runs kernel(lo, hi) and converts a panic into an error.
func guard(kernel func(lo, hi int), lo, hi int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: kernel on [%d, %d): %v", ErrDeviceFault, lo, hi, r)
		}
	}()
	kernel(lo, hi)
	return
}

// executor exposes the device to the kernels of the ntt package.
// It does not check whether the device is closed: callers hold the device lock.
type executor struct {
	d *Device
}

func (e executor) Launch(count int, kernel func(lo, hi int)) error {
	return e.d.launch(count, kernel)
}

// alloc accounts for bytes of device memory.
func (d *Device) alloc(bytes int64) error {
	for {
		used := d.used.Load()

		if d.cfg.MemoryLimit > 0 && used+bytes > d.cfg.MemoryLimit {
			return fmt.Errorf("%w: %d bytes requested, %d of %d in use", ErrOutOfMemory, bytes, used, d.cfg.MemoryLimit)
		}

		if d.used.CompareAndSwap(used, used+bytes) {
			return nil
		}
	}
}

func (d *Device) free(bytes int64) {
	d.used.Add(-bytes)
}

func (d *Device) isClosed() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.closed
}

// Close releases every parameter group of the device.
// Any later operation on the device returns [ErrClosed]. Closing twice is a no-op.
func (d *Device) Close() error {

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}

	released := len(d.groups)

	for id, g := range d.groups {
		d.free(g.bytes)
		delete(d.groups, id)
	}

	d.closed = true

	d.log.Info().Int("released", released).Int64("memory_in_use", d.MemoryInUse()).Msg("device closed")

	return nil
}
