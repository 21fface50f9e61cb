package utils

// Alias1D returns true if x and y share the same base array.
// Taken from http://golang.org/src/pkg/math/big/nat.go#L340 .
func Alias1D[V any](x, y []V) bool {
	return cap(x) > 0 && cap(y) > 0 && &x[0:cap(x)][cap(x)-1] == &y[0:cap(y)][cap(y)-1]
}

// ZeroSlice sets all elements of s to their zero value.
func ZeroSlice[V any](s []V) {
	var zero V
	for i := range s {
		s[i] = zero
	}
}
