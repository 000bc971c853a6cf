package backend

import (
	"fmt"

	"github.com/neshume/island/internal/rlog"
)

// Allocation describes a live suballocation carved out of a resource pool's
// backing DeviceMemory by an IAllocator. Object is filled in by the owning
// pool once the backing Buffer/Image has been bound, so a caller walking a
// pool's allocations can recover which resource lives at which offset.
type Allocation struct {
	Offset uint64
	Size   uint64
	Object interface{}
}

func (a *Allocation) String() string {
	return fmt.Sprintf("[%d %d]", a.Offset, a.Size)
}

// IAllocator suballocates ranges of a fixed-size backing allocation.
// ImageResourcePool uses one to carve its shared vk.DeviceMemory into
// per-attachment ImageResource slots; it's the boundary that lets a pool
// swap allocation strategy without changing its own code.
type IAllocator interface {
	Free(a *Allocation)
	Allocate(size uint64, align uint64) *Allocation
	LogDetails()
	DestroyContents()
}

// LinearAllocator is a first-fit free-list allocator over a fixed byte range.
// It is "linear" in the sense that it never moves or compacts a live
// allocation; freeing one just removes it from the ordered list and lets a
// later allocation reuse the gap.
type LinearAllocator struct {
	Size   uint64
	allocs []*Allocation
}

func makeAlignUp(a uint64, align uint64) uint64 {
	if align == 0 {
		return a
	}
	m := a % align
	if m == 0 {
		return a
	}
	return (a - m) + align
}

func (p *LinearAllocator) Free(fa *Allocation) {
	fi := -1
	for i, a := range p.allocs {
		if a == fa {
			fi = i
			break
		}
	}
	if fi != -1 {
		p.allocs = append(p.allocs[:fi], p.allocs[fi+1:]...)
	}
}

func (p *LinearAllocator) Allocate(size uint64, align uint64) *Allocation {
	if len(p.allocs) == 0 {
		if size > p.Size {
			return nil
		}
		na := &Allocation{Offset: 0, Size: size}
		p.allocs = append(p.allocs, na)
		return na
	}

	if p.allocs[0].Offset >= size {
		na := &Allocation{Offset: 0, Size: size}
		p.allocs = append([]*Allocation{na}, p.allocs...)
		return na
	}

	for i := 0; i < len(p.allocs); i++ {
		c := p.allocs[i]
		if i+1 >= len(p.allocs) {
			break
		}
		n := p.allocs[i+1]

		l := makeAlignUp(c.Offset+c.Size, align)
		h := n.Offset

		if h > l && h-l >= size {
			na := &Allocation{Offset: l, Size: size}
			p.allocs = append(p.allocs[:i+1], append([]*Allocation{na}, p.allocs[i+1:]...)...)
			return na
		}
	}

	last := p.allocs[len(p.allocs)-1]
	nl := makeAlignUp(last.Offset+last.Size, align)
	if nl <= p.Size && p.Size-nl >= size {
		na := &Allocation{Offset: nl, Size: size}
		p.allocs = append(p.allocs, na)
		return na
	}
	return nil
}

func (p *LinearAllocator) String() string {
	return fmt.Sprintf("%v", p.allocs)
}

func (p *LinearAllocator) LogDetails() {
	rlog.Debugf("linear allocator: size=%d live=%d %s", p.Size, len(p.allocs), p.String())
}

func (p *LinearAllocator) DestroyContents() {
	p.allocs = nil
}
