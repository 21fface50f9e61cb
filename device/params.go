package device

import (
	"fmt"

	"github.com/tuneinsight/nttgpu/ntt"
)

// group is the device-side state of a [ParamGroup].
type group struct {
	tables []*ntt.Table // tables[logN] is the table of size 2^logN
	bytes  int64
}

// ParamGroup is a handle on the NTT parameters uploaded by [Device.Init].
// It only carries a registry index: it stays safe to use after [ParamGroup.Release]
// or [Device.Close], where its operations return [ErrInvalidHandle] or [ErrClosed].
type ParamGroup struct {
	dev     *Device
	id      uint64
	maxLogN int
}

// MaxLogN returns the log2 of the largest transform size of the group.
func (pg *ParamGroup) MaxLogN() int {
	return pg.maxLogN
}

// Table returns the device table of the transform of size 2^logN.
func (pg *ParamGroup) Table(logN int) (t *ntt.Table, err error) {

	if pg == nil || pg.dev == nil {
		return nil, ErrInvalidHandle
	}

	d := pg.dev

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return nil, ErrClosed
	}

	var g *group
	if g, err = d.lookup(pg); err != nil {
		return
	}

	if logN < 0 || logN >= len(g.tables) {
		return nil, fmt.Errorf("%w: logN=%d must be in [0, %d]", ntt.ErrInvalidSize, logN, len(g.tables)-1)
	}

	return g.tables[logN], nil
}

// Release frees the device memory of the group. Releasing twice returns [ErrInvalidHandle].
func (pg *ParamGroup) Release() (err error) {

	if pg == nil || pg.dev == nil {
		return ErrInvalidHandle
	}

	d := pg.dev

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}

	var g *group
	if g, err = d.lookup(pg); err != nil {
		return
	}

	d.free(g.bytes)
	delete(d.groups, pg.id)

	d.log.Debug().Uint64("id", pg.id).Int64("bytes", g.bytes).Msg("parameters released")

	return
}

// lookup returns the state of pg. The caller must hold d.mu.
func (d *Device) lookup(pg *ParamGroup) (g *group, err error) {

	if pg == nil || pg.dev != d {
		return nil, ErrInvalidHandle
	}

	var ok bool
	if g, ok = d.groups[pg.id]; !ok {
		return nil, fmt.Errorf("%w: parameter group %d was released", ErrInvalidHandle, pg.id)
	}

	return
}
