package storage

import (
	"github.com/internet-of-plants/libiop/internal/fatal"
	"github.com/internet-of-plants/libiop/platform"
)

// Region is a bounds-enforcing view over one flash region. The flash backend
// already rejects out-of-range access with an error; Region additionally
// treats an out-of-range access from library code as corrupted internal
// state and escalates it through the fatal boundary, because an offset
// computed past a region means some component's bookkeeping is wrong and its
// next write could land anywhere.
type Region struct {
	flash  platform.Flash
	region platform.Region
	size   int
}

// NewRegion wraps one flash region.
func NewRegion(flash platform.Flash, region platform.Region) *Region {
	return &Region{
		flash:  flash,
		region: region,
		size:   flash.RegionSize(region),
	}
}

// Size reports the region capacity in bytes.
func (r *Region) Size() int { return r.size }

// Read fills p from the region starting at off. Transient hardware faults
// are returned; a bounds violation halts.
func (r *Region) Read(off int, p []byte) error {
	r.check(off, len(p))
	return r.flash.ReadAt(r.region, off, p)
}

// Write writes p into the region starting at off. Transient hardware faults
// are returned; a bounds violation halts.
func (r *Region) Write(off int, p []byte) error {
	r.check(off, len(p))
	return r.flash.WriteAt(r.region, off, p)
}

// Erase resets the region to its erased state.
func (r *Region) Erase() error {
	return r.flash.Erase(r.region)
}

func (r *Region) check(off, n int) {
	if off < 0 || n < 0 || off+n > r.size {
		fatal.Halt("storage access out of bounds: off=%d len=%d region_size=%d", off, n, r.size)
	}
}
