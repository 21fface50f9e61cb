package structs

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBufferPool(t *testing.T) {

	t.Run("SyncPoolUint64", func(t *testing.T) {
		var pool BufferPool[*[]uint64] = NewSyncPoolUint64(16)
		buff := pool.Get()
		require.Len(t, *buff, 16)
		pool.Put(buff)
	})

	t.Run("BuffFromUintPool", func(t *testing.T) {

		inner := NewSyncPoolUint64(8)

		var created, recycled int
		var mu sync.Mutex

		pool := NewBuffFromUintPool(func() [2]*[]uint64 {
			mu.Lock()
			created++
			mu.Unlock()
			return [2]*[]uint64{inner.Get(), inner.Get()}
		}, func(obj [2]*[]uint64) {
			mu.Lock()
			recycled++
			mu.Unlock()
			inner.Put(obj[0])
			inner.Put(obj[1])
		})

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				obj := pool.Get()
				(*obj[0])[0] = 1
				(*obj[1])[0] = 2
				pool.Put(obj)
			}()
		}
		wg.Wait()

		require.Equal(t, 8, created)
		require.Equal(t, 8, recycled)
	})
}
