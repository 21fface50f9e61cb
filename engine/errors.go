package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrLengthMismatch is returned when a buffer or a declared result length
	// does not match the size of the requested transform.
	ErrLengthMismatch = errors.New("length mismatch")

	// ErrZeroOffset is returned when a coset transform is called with a zero domain offset.
	ErrZeroOffset = errors.New("domain offset cannot be zero")

	// ErrInvalidBlowup is returned when the blowup factor is not a power of two.
	ErrInvalidBlowup = errors.New("blowup factor must be a power of two")
)

// OpError is the error returned by the entry points of an [Engine].
// It records the failing operation and its size, and wraps the cause.
type OpError struct {
	Op  string
	N   int
	Err error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("nttgpu: %s (n=%d): %v", e.Op, e.N, e.Err)
}

// Unwrap returns the cause of the error.
func (e *OpError) Unwrap() error {
	return e.Err
}
