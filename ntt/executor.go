package ntt

// Executor launches data-parallel kernels.
type Executor interface {
	// Launch calls kernel on disjoint sub-ranges [lo, hi) covering [0, count)
	// and returns only once every call has returned.
	Launch(count int, kernel func(lo, hi int)) error
}

// Serial is an [Executor] running kernels on the calling goroutine.
type Serial struct{}

// Launch runs kernel(0, count).
func (Serial) Launch(count int, kernel func(lo, hi int)) error {
	if count > 0 {
		kernel(0, count)
	}
	return nil
}
