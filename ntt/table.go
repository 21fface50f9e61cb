package ntt

import (
	"encoding/binary"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/zeebo/blake3"

	"github.com/tuneinsight/nttgpu/field"
)

// Table is a struct storing the precomputed constants of the
// NTT of size N = 2^LogN over the Goldilocks field.
// A Table is immutable once generated and can be shared by concurrent transforms.
type Table struct {
	LogN int
	N    int

	Root    uint64 // primitive N-th root of unity
	RootInv uint64 // Root^-1
	NInv    uint64 // N^-1 mod p

	RootsForward  []uint64 // Root^i for i in [0, N/2), natural order
	RootsBackward []uint64 // Root^-i for i in [0, N/2), natural order
}

// NewTable generates the [Table] of the NTT of size 2^logN.
// logN must be in [0, field.TwoAdicity].
func NewTable(logN int) (t *Table, err error) {

	if logN < 0 || logN > field.TwoAdicity {
		return nil, fmt.Errorf("%w: logN=%d must be in [0, %d]", ErrInvalidSize, logN, field.TwoAdicity)
	}

	t = &Table{
		LogN: logN,
		N:    1 << logN,
	}

	t.Root = field.RootOfUnity(logN)
	t.RootInv = field.Inverse(t.Root)
	t.NInv = field.Inverse(uint64(t.N))

	t.RootsForward = make([]uint64, t.N>>1)
	t.RootsBackward = make([]uint64, t.N>>1)

	field.PowersVec(1, t.Root, t.RootsForward)
	field.PowersVec(1, t.RootInv, t.RootsBackward)

	return
}

// Subtable returns the [Table] of the NTT of size 2^logM <= N, obtained by
// striding the roots of the receiver: the 2^logM-th root is Root^(N/2^logM).
func (t *Table) Subtable(logM int) (sub *Table, err error) {

	if logM < 0 || logM > t.LogN {
		return nil, fmt.Errorf("%w: logM=%d must be in [0, %d]", ErrInvalidSize, logM, t.LogN)
	}

	if logM == t.LogN {
		return t, nil
	}

	stride := 1 << (t.LogN - logM)

	M := 1 << logM

	sub = &Table{
		LogN:          logM,
		N:             M,
		Root:          field.Exp(t.Root, uint64(stride)),
		RootInv:       field.Exp(t.RootInv, uint64(stride)),
		NInv:          field.Inverse(uint64(M)),
		RootsForward:  make([]uint64, M>>1),
		RootsBackward: make([]uint64, M>>1),
	}

	for i := range sub.RootsForward {
		sub.RootsForward[i] = t.RootsForward[i*stride]
		sub.RootsBackward[i] = t.RootsBackward[i*stride]
	}

	return
}

// Size returns the number of uint64 words held by the twiddle tables.
func (t *Table) Size() int {
	return len(t.RootsForward) + len(t.RootsBackward)
}

// Equal performs a deep equality check between two tables.
func (t *Table) Equal(other *Table) bool {

	if t == nil || other == nil {
		return t == other
	}

	return t.LogN == other.LogN &&
		t.N == other.N &&
		t.Root == other.Root &&
		t.RootInv == other.RootInv &&
		t.NInv == other.NInv &&
		cmp.Equal(t.RootsForward, other.RootsForward, cmpopts.EquateEmpty()) &&
		cmp.Equal(t.RootsBackward, other.RootsBackward, cmpopts.EquateEmpty())
}

// Digest returns the blake3 hash of the constants and twiddles of the table.
func (t *Table) Digest() (digest [32]byte) {

	hasher := blake3.New()

	buff := make([]byte, 0, 4096)

	flush := func() {
		// Sanity check, a blake3.Hasher never returns an error on Write
		if _, err := hasher.Write(buff); err != nil {
			panic(err)
		}
		buff = buff[:0]
	}

	buff = binary.LittleEndian.AppendUint64(buff, uint64(t.LogN))
	buff = binary.LittleEndian.AppendUint64(buff, t.Root)
	buff = binary.LittleEndian.AppendUint64(buff, t.RootInv)
	buff = binary.LittleEndian.AppendUint64(buff, t.NInv)

	for _, roots := range [][]uint64{t.RootsForward, t.RootsBackward} {
		for _, w := range roots {
			if len(buff)+8 > cap(buff) {
				flush()
			}
			buff = binary.LittleEndian.AppendUint64(buff, w)
		}
	}

	flush()

	copy(digest[:], hasher.Sum(nil))

	return
}

// tableLiteral is the minimum information needed to
// regenerate and authenticate a [Table].
type tableLiteral struct {
	LogN   uint8    `cbor:"1,keyasint"`
	Root   uint64   `cbor:"2,keyasint"`
	Digest [32]byte `cbor:"3,keyasint"`
}

// MarshalBinary encodes the table on a compact CBOR representation.
// The twiddles are not serialized: they are regenerated on decoding.
func (t *Table) MarshalBinary() (data []byte, err error) {
	return cbor.Marshal(tableLiteral{
		LogN:   uint8(t.LogN),
		Root:   t.Root,
		Digest: t.Digest(),
	})
}

// UnmarshalBinary decodes a table encoded with [Table.MarshalBinary] on the receiver,
// regenerates its twiddles and checks them against the encoded digest.
func (t *Table) UnmarshalBinary(data []byte) (err error) {

	var lit tableLiteral
	if err = cbor.Unmarshal(data, &lit); err != nil {
		return fmt.Errorf("cannot UnmarshalBinary: %w", err)
	}

	var tab *Table
	if tab, err = NewTable(int(lit.LogN)); err != nil {
		return fmt.Errorf("cannot UnmarshalBinary: %w", err)
	}

	if tab.Root != lit.Root {
		return fmt.Errorf("cannot UnmarshalBinary: %w: root mismatch", ErrCorruptedTable)
	}

	if tab.Digest() != lit.Digest {
		return fmt.Errorf("cannot UnmarshalBinary: %w: digest mismatch", ErrCorruptedTable)
	}

	*t = *tab

	return
}
