//go:build !unix

package pinned

import "errors"

// mapLocked is not supported on this platform.
func mapLocked(n int) (data []uint64, release func() error, err error) {
	return nil, nil, errors.New("page locking is not supported on this platform")
}
