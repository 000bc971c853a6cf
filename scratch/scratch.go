// Package scratch implements island's per-frame scratch allocators: a
// device-local ring for inline vertex/index/argument uploads and a
// host-visible staging ring for writes that must later be copied into
// device-local images/buffers. Both are adapted from backend.LinearAllocator
// but specialized to a ring-with-growth contract: allocations live until
// their owning frame's fence signals, the ring resets wholesale at frame
// retirement rather than freeing individual allocations, and a request
// that would overflow a configured ceiling fails instead of growing
// forever.
package scratch

import (
	"fmt"
	"sync"

	"github.com/neshume/island/errs"
	"github.com/neshume/island/internal/rlog"
)

// Allocation is a single scratch reservation: a byte range within the
// ring's current backing buffer, plus the generation it was made against.
// Callers read Offset to build buffer-offset command records; Ptr is
// populated only for rings backed by host-visible memory (the staging
// ring), nil otherwise.
type Allocation struct {
	Offset     uint64
	Size       uint64
	Ptr        []byte
	generation uint64
}

// Backing is the minimal contract a scratch Ring needs from its GPU-visible
// storage: grow to a new byte capacity, and (for host-visible backings)
// hand back a byte slice mapped over a range. island/backend's Buffer +
// DeviceMemory implement this for both the device-local-coherent and
// host-visible-coherent cases; tests use an in-memory fake.
type Backing interface {
	Capacity() uint64
	Grow(newCapacity uint64) error
	Map(offset, size uint64) []byte // nil if the backing is not host-mapped
}

// Ring is a frame-local linear allocator that never frees individual
// allocations -- only the whole ring, at frame retirement. It grows its
// backing store in powers of two up to Ceiling; requests that would still
// not fit report ResourceError{ScratchExhausted}. Allocate may be called
// from several goroutines at once.
type Ring struct {
	Name       string
	Backing    Backing
	Ceiling    uint64
	mu         sync.Mutex
	cursor     uint64
	generation uint64
}

func NewRing(name string, backing Backing, ceiling uint64) *Ring {
	return &Ring{Name: name, Backing: backing, Ceiling: ceiling}
}

// Allocate reserves size bytes aligned to align, growing the backing store
// if the ring's current capacity is insufficient. align must be a power of
// two; a zero align is treated as 1.
func (r *Ring) Allocate(size, align uint64) (*Allocation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if align == 0 {
		align = 1
	}
	offset := alignUp(r.cursor, align)
	needed := offset + size

	if needed > r.Backing.Capacity() {
		if err := r.growTo(needed); err != nil {
			return nil, err
		}
	}

	r.cursor = needed
	a := &Allocation{Offset: offset, Size: size, generation: r.generation}
	a.Ptr = r.Backing.Map(offset, size)
	return a, nil
}

func (r *Ring) growTo(required uint64) error {
	cap := r.Backing.Capacity()
	if cap == 0 {
		cap = 1
	}
	newCap := cap
	for newCap < required {
		newCap *= 2
	}
	if newCap > r.Ceiling {
		return errs.Resource(errs.ScratchExhausted, r.Name,
			fmt.Errorf("requested growth to %d bytes exceeds ceiling of %d", newCap, r.Ceiling))
	}
	rlog.Debugf("scratch ring %q growing %d -> %d bytes", r.Name, cap, newCap)
	return r.Backing.Grow(newCap)
}

// Reset rewinds the ring to empty and bumps its generation counter,
// invalidating any Allocation taken before the reset -- callers must not
// hold onto an Allocation past the frame it was made in. This is called
// once the frame's retirement fence has signaled: allocations live until
// the fence for their frame signals completion.
func (r *Ring) Reset() {
	r.cursor = 0
	r.generation++
}

func (r *Ring) Used() uint64 {
	return r.cursor
}

func (r *Ring) Remaining() uint64 {
	return r.Backing.Capacity() - r.cursor
}

func alignUp(v, align uint64) uint64 {
	m := v % align
	if m == 0 {
		return v
	}
	return v - m + align
}

// FrameScratch bundles the two rings a single in-flight frame owns: a
// device-local ring for data the GPU reads directly, and a staging ring
// for data that must be copied into device-local images/buffers by the
// command-stream replayer. Both reset together at frame retirement.
type FrameScratch struct {
	DeviceLocal *Ring
	Staging     *Ring
}

func NewFrameScratch(deviceLocal, staging Backing, initialCeiling uint64) *FrameScratch {
	return &FrameScratch{
		DeviceLocal: NewRing("device-local", deviceLocal, initialCeiling),
		Staging:     NewRing("staging", staging, initialCeiling),
	}
}

func (f *FrameScratch) Reset() {
	f.DeviceLocal.Reset()
	f.Staging.Reset()
}
