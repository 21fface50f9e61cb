package ntt

import (
	"github.com/tuneinsight/nttgpu/utils/structs"
)

// NumberTheoreticTransformer is an interface to provide
// flexibility on where and how the NTT is executed.
type NumberTheoreticTransformer interface {
	Forward(p1, p2 []uint64) error
	Backward(p1, p2 []uint64) error
}

// Transformer is a host-side [NumberTheoreticTransformer] for a fixed size.
// Scratch buffers are drawn from a pool, so a Transformer can be used concurrently.
type Transformer struct {
	*Table
	exec Executor
	pool structs.BufferPool[*[]uint64]
}

// NewTransformer returns a [Transformer] running the kernels of the given table on exec.
// If exec is nil, kernels run on the calling goroutine.
func NewTransformer(t *Table, exec Executor) *Transformer {

	if exec == nil {
		exec = Serial{}
	}

	return &Transformer{
		Table: t,
		exec:  exec,
		pool:  structs.NewSyncPoolUint64(t.N),
	}
}

// Forward writes the forward NTT of p1 on p2.
func (tr *Transformer) Forward(p1, p2 []uint64) error {
	scratch := tr.pool.Get()
	defer tr.pool.Put(scratch)
	return Transform(Forward, tr.Table, p1, p2, *scratch, tr.exec)
}

// Backward writes the backward NTT of p1 on p2.
func (tr *Transformer) Backward(p1, p2 []uint64) error {
	scratch := tr.pool.Get()
	defer tr.pool.Put(scratch)
	return Transform(Backward, tr.Table, p1, p2, *scratch, tr.exec)
}
