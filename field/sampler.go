package field

import (
	"encoding/binary"
	"math/big"

	"github.com/tuneinsight/nttgpu/utils/bignum"
	"github.com/tuneinsight/nttgpu/utils/sampling"
)

const samplerBufferSize = 1024

// UniformSampler wraps a [sampling.PRNG] and samples uniform elements of Z_p.
// A UniformSampler must not be used concurrently.
type UniformSampler struct {
	prng   sampling.PRNG
	buffer []byte
	ptr    int
}

// NewUniformSampler creates a new instance of UniformSampler from a PRNG.
func NewUniformSampler(prng sampling.PRNG) *UniformSampler {
	return &UniformSampler{
		prng:   prng,
		buffer: make([]byte, samplerBufferSize),
		ptr:    samplerBufferSize,
	}
}

// Uint64 returns a uniform element of Z_p.
func (u *UniformSampler) Uint64() (x uint64) {

	// Rejection sampling, rejects with probability (2^32-1)/2^64.
	for {

		if u.ptr == len(u.buffer) {
			if _, err := u.prng.Read(u.buffer); err != nil {
				// Sanity check, this error should not happen.
				panic(err)
			}
			u.ptr = 0
		}

		x = binary.LittleEndian.Uint64(u.buffer[u.ptr:])
		u.ptr += 8

		if x < Modulus {
			return
		}
	}
}

// Read fills vec with uniform elements of Z_p.
func (u *UniformSampler) Read(vec []uint64) {
	for i := range vec {
		vec[i] = u.Uint64()
	}
}

// ReadNew returns a new vector of n uniform elements of Z_p.
func (u *UniformSampler) ReadNew(n int) (vec []uint64) {
	vec = make([]uint64, n)
	u.Read(vec)
	return
}

// Stats returns base 2 logarithm of the standard deviation
// and the mean of the elements of vec, seen as integers in [0, p-1].
// vec must have at least two elements.
func Stats(vec []uint64) [2]float64 {
	values := make([]big.Int, len(vec))
	for i := range values {
		values[i].SetUint64(vec[i])
	}
	return bignum.Stats(values, 128)
}
