package pinned

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tuneinsight/nttgpu/logger"
)

func TestAllocator(t *testing.T) {

	logger.Disable()

	t.Run("AllocFree", func(t *testing.T) {

		a, err := NewAllocator(Config{})
		require.NoError(t, err)

		v, err := a.Alloc(1000)
		require.NoError(t, err)
		require.Equal(t, 1000, v.Len())
		require.Len(t, v.Data(), 1000)
		require.Equal(t, 1, a.Live())
		require.Equal(t, int64(8000), a.BytesInUse())

		for i, x := range v.Data() {
			require.Zero(t, x, "index %d", i)
		}

		data := v.Data()
		for i := range data {
			data[i] = uint64(i)
		}
		require.Equal(t, uint64(999), v.Data()[999])

		require.NoError(t, a.Free(v))
		require.Nil(t, v.Data())
		require.Zero(t, a.Live())
		require.Zero(t, a.BytesInUse())

		require.ErrorIs(t, a.Free(v), ErrDoubleFree)
	})

	t.Run("InvalidArguments", func(t *testing.T) {

		a, err := NewAllocator(Config{})
		require.NoError(t, err)

		_, err = a.Alloc(0)
		require.Error(t, err)
		_, err = a.Alloc(-1)
		require.Error(t, err)

		require.ErrorIs(t, a.Free(nil), ErrForeignHandle)

		b, err := NewAllocator(Config{})
		require.NoError(t, err)
		v, err := b.Alloc(4)
		require.NoError(t, err)
		require.ErrorIs(t, a.Free(v), ErrForeignHandle)
		require.NoError(t, b.Free(v))

		_, err = NewAllocator(Config{MemoryLimit: -1})
		require.Error(t, err)
	})

	t.Run("MemoryLimit", func(t *testing.T) {

		a, err := NewAllocator(Config{MemoryLimit: 64})
		require.NoError(t, err)

		v, err := a.Alloc(8)
		require.NoError(t, err)

		_, err = a.Alloc(1)
		require.Error(t, err)

		require.NoError(t, a.Free(v))

		v, err = a.Alloc(8)
		require.NoError(t, err)
		require.NoError(t, a.Free(v))
	})

	t.Run("RequireLocked", func(t *testing.T) {

		a, err := NewAllocator(Config{RequireLocked: true})
		require.NoError(t, err)

		// Whether the OS grants page locking depends on RLIMIT_MEMLOCK.
		v, err := a.Alloc(16)
		if err != nil {
			require.ErrorIs(t, err, ErrLockFailed)
			require.Zero(t, a.Live())
			return
		}

		require.True(t, v.Locked())
		require.NoError(t, a.Free(v))
	})

	t.Run("SlotReuse", func(t *testing.T) {

		a, err := NewAllocator(Config{})
		require.NoError(t, err)

		vecs := make([]*Vec, 100)
		for i := range vecs {
			vecs[i], err = a.Alloc(i + 1)
			require.NoError(t, err)
		}

		for i := 0; i < len(vecs); i += 2 {
			require.NoError(t, a.Free(vecs[i]))
		}
		require.Equal(t, 50, a.Live())

		v, err := a.Alloc(3)
		require.NoError(t, err)
		require.Equal(t, uint(0), v.id)

		// A stale handle sharing the slot of a live vector is still detected.
		require.ErrorIs(t, a.Free(vecs[0]), ErrDoubleFree)
		require.Equal(t, 51, a.Live())
	})

	t.Run("With", func(t *testing.T) {

		a, err := NewAllocator(Config{})
		require.NoError(t, err)

		var kept *Vec
		require.NoError(t, a.With(32, func(v *Vec) error {
			kept = v
			require.Len(t, v.Data(), 32)
			return nil
		}))
		require.Nil(t, kept.Data())
		require.Zero(t, a.Live())

		errFn := errors.New("fn failed")
		require.ErrorIs(t, a.With(32, func(v *Vec) error { return errFn }), errFn)
		require.Zero(t, a.Live())

		require.Panics(t, func() {
			_ = a.With(32, func(v *Vec) error { panic("boom") })
		})
		require.Zero(t, a.Live())

		require.ErrorIs(t, a.With(32, func(v *Vec) error { return a.Free(v) }), ErrDoubleFree)
	})

	t.Run("Concurrent", func(t *testing.T) {

		a, err := NewAllocator(Config{})
		require.NoError(t, err)

		var wg sync.WaitGroup
		errs := make([]error, 16)

		for g := range errs {
			wg.Add(1)
			go func(g int) {
				defer wg.Done()
				for i := 0; i < 50; i++ {
					v, err := a.Alloc(g + 1)
					if err != nil {
						errs[g] = err
						return
					}
					v.Data()[g] = uint64(i)
					if err = a.Free(v); err != nil {
						errs[g] = err
						return
					}
				}
			}(g)
		}

		wg.Wait()

		for _, err := range errs {
			require.NoError(t, err)
		}

		require.Zero(t, a.Live())
		require.Zero(t, a.BytesInUse())
	})

	t.Run("Close", func(t *testing.T) {

		a, err := NewAllocator(Config{})
		require.NoError(t, err)

		v0, err := a.Alloc(10)
		require.NoError(t, err)
		_, err = a.Alloc(20)
		require.NoError(t, err)

		require.NoError(t, a.Close())
		require.Zero(t, a.Live())
		require.Zero(t, a.BytesInUse())
		require.Nil(t, v0.Data())
		require.Zero(t, v0.Len())
		require.False(t, v0.Locked())
		require.NoError(t, a.Close())

		_, err = a.Alloc(1)
		require.ErrorIs(t, err, ErrClosed)
		require.ErrorIs(t, a.Free(v0), ErrDoubleFree)
	})
}
