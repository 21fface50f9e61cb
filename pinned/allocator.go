// Package pinned implements a host staging allocator returning page-locked vectors
// of field elements, the host side of the transfers to and from the device.
//
// Page locking is best effort: when the operating system refuses it, the allocator falls
// back to ordinary heap memory unless [Config.RequireLocked] is set.
package pinned

import (
	"errors"
	"fmt"
	"sync"

	"github.com/bits-and-blooms/bitset"
	"github.com/rs/zerolog"

	"github.com/tuneinsight/nttgpu/logger"
)

var (
	// ErrDoubleFree is returned when a vector is freed twice.
	ErrDoubleFree = errors.New("vector already freed")

	// ErrForeignHandle is returned when a vector is nil or was not allocated by the allocator.
	ErrForeignHandle = errors.New("vector not allocated by this allocator")

	// ErrLockFailed is returned when page-locked memory is required but cannot be obtained.
	ErrLockFailed = errors.New("cannot obtain page-locked memory")

	// ErrClosed is returned by Alloc on a closed allocator.
	ErrClosed = errors.New("allocator is closed")
)

// Config is a struct storing the parameters of an [Allocator].
type Config struct {
	// RequireLocked makes Alloc fail with [ErrLockFailed] instead of falling back to heap memory.
	RequireLocked bool

	// MemoryLimit is the maximum number of bytes of live vectors. Zero means no limit.
	MemoryLimit int64
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.MemoryLimit < 0 {
		return fmt.Errorf("invalid pinned config: MemoryLimit=%d cannot be negative", c.MemoryLimit)
	}
	return nil
}

// Vec is a host vector of field elements allocated by an [Allocator].
// A Vec must not be used by two operations concurrently.
type Vec struct {
	owner   *Allocator
	id      uint
	data    []uint64
	release func() error // unmaps locked memory, nil for heap memory
	freed   bool
}

// Data returns the elements of the vector, or nil once the vector is freed.
//
// The returned slice aliases the memory of the vector: it must not be used once the
// vector is freed, by [Allocator.Free] or [Allocator.Close]. Page-locked memory is
// unmapped on release, and an access through a retained slice is a fatal fault.
func (v *Vec) Data() []uint64 {
	return v.data
}

// Len returns the number of elements of the vector.
func (v *Vec) Len() int {
	return len(v.data)
}

// Locked returns true if the vector is backed by page-locked memory.
func (v *Vec) Locked() bool {
	return v.release != nil
}

// Allocator allocates and frees [Vec]. An Allocator is safe for concurrent use.
type Allocator struct {
	cfg Config
	log zerolog.Logger

	mu     sync.Mutex
	closed bool
	live   *bitset.BitSet
	slots  []*Vec
	bytes  int64
}

// NewAllocator creates a new [Allocator].
func NewAllocator(cfg Config) (a *Allocator, err error) {

	if err = cfg.Validate(); err != nil {
		return nil, err
	}

	return &Allocator{
		cfg:  cfg,
		log:  logger.Component("pinned"),
		live: bitset.New(64),
	}, nil
}

// Alloc returns a zeroed vector of n elements.
func (a *Allocator) Alloc(n int) (v *Vec, err error) {

	if n <= 0 {
		return nil, fmt.Errorf("cannot Alloc: n=%d must be positive", n)
	}

	bytes := int64(n) * 8

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil, ErrClosed
	}

	if a.cfg.MemoryLimit > 0 && a.bytes+bytes > a.cfg.MemoryLimit {
		return nil, fmt.Errorf("cannot Alloc: %d bytes requested, %d of %d in use", bytes, a.bytes, a.cfg.MemoryLimit)
	}

	v = &Vec{owner: a}

	var lockErr error
	if v.data, v.release, lockErr = mapLocked(n); lockErr != nil {

		if a.cfg.RequireLocked {
			return nil, fmt.Errorf("cannot Alloc: %w: %w", ErrLockFailed, lockErr)
		}

		a.log.Debug().Err(lockErr).Int("n", n).Msg("page locking refused, using heap memory")

		v.data = make([]uint64, n)
		v.release = nil
	}

	id, ok := a.live.NextClear(0)
	if !ok {
		id = a.live.Len()
	}

	a.live.Set(id)

	for uint(len(a.slots)) <= id {
		a.slots = append(a.slots, nil)
	}

	a.slots[id] = v
	v.id = id
	a.bytes += bytes

	return
}

// Free releases the memory of v.
// Freeing a vector twice returns [ErrDoubleFree], freeing a nil vector or a vector
// of another allocator returns [ErrForeignHandle].
func (a *Allocator) Free(v *Vec) (err error) {

	if v == nil || v.owner != a {
		return ErrForeignHandle
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if v.freed {
		return ErrDoubleFree
	}

	return a.free(v)
}

// free releases v. The caller must hold a.mu.
func (a *Allocator) free(v *Vec) (err error) {

	// Sanity check
	if !a.live.Test(v.id) || a.slots[v.id] != v {
		panic(fmt.Errorf("pinned: registry out of sync for vector %d", v.id))
	}

	a.live.Clear(v.id)
	a.slots[v.id] = nil
	a.bytes -= int64(len(v.data)) * 8

	if v.release != nil {
		err = v.release()
	}

	v.data = nil
	v.release = nil
	v.freed = true

	return
}

// With allocates a vector of n elements, calls fn on it and frees it,
// including when fn panics.
func (a *Allocator) With(n int, fn func(v *Vec) error) (err error) {

	var v *Vec
	if v, err = a.Alloc(n); err != nil {
		return
	}

	defer func() {
		if ferr := a.Free(v); err == nil {
			err = ferr
		}
	}()

	return fn(v)
}

// Live returns the number of vectors allocated and not yet freed.
func (a *Allocator) Live() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return int(a.live.Count())
}

// BytesInUse returns the number of bytes held by live vectors.
func (a *Allocator) BytesInUse() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bytes
}

// Close frees every live vector, invalidating the slices returned by their [Vec.Data].
// Later calls to Alloc return [ErrClosed].
func (a *Allocator) Close() (err error) {

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}

	var freed int
	for id, ok := a.live.NextSet(0); ok; id, ok = a.live.NextSet(id + 1) {
		err = errors.Join(err, a.free(a.slots[id]))
		freed++
	}

	a.closed = true

	a.log.Info().Int("freed", freed).Msg("allocator closed")

	return
}
