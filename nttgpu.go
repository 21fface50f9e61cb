/*
Package nttgpu is a Number Theoretic Transform engine over the Goldilocks field p = 2^64 - 2^32 + 1,
serving as the polynomial evaluation and interpolation backend of STARK provers.

The transforms run as data-parallel Stockham kernels on a device modelled by a pool of execution units
with its own accounted memory, and the host side stages its vectors in page-locked memory.
The entry points are implemented by the engine package; field, ntt, device and pinned implement
the field arithmetic, the transform kernels, the device and the host staging allocator.
*/
package nttgpu
