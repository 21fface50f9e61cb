package device

import (
	"fmt"
	"runtime"
)

// Config is a struct storing the parameters of a [Device].
type Config struct {
	// Workers is the number of execution units a kernel launch is spread over.
	Workers int

	// MemoryLimit is the number of bytes of device memory available to the
	// twiddle tables and the work buffers. Zero means no limit.
	MemoryLimit int64

	// ParallelThreshold is the launch size under which kernels run on a single unit.
	ParallelThreshold int

	// VerifyUploads enables the digest check of the tables copied on the device.
	VerifyUploads bool
}

// DefaultConfig returns a [Config] using every available core and 4 GiB of device memory.
func DefaultConfig() Config {
	return Config{
		Workers:           runtime.NumCPU(),
		MemoryLimit:       4 << 30,
		ParallelThreshold: 1 << 12,
		VerifyUploads:     true,
	}
}

// Validate checks that the configuration is usable.
func (c Config) Validate() (err error) {

	if c.Workers < 1 {
		return fmt.Errorf("invalid device config: Workers=%d must be at least 1", c.Workers)
	}

	if c.MemoryLimit < 0 {
		return fmt.Errorf("invalid device config: MemoryLimit=%d cannot be negative", c.MemoryLimit)
	}

	if c.ParallelThreshold < 0 {
		return fmt.Errorf("invalid device config: ParallelThreshold=%d cannot be negative", c.ParallelThreshold)
	}

	return
}
