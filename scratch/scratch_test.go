package scratch

import (
	"testing"

	"github.com/neshume/island/errs"
)

// fakeBacking is an in-memory stand-in for a host-visible GPU buffer,
// exercising Ring's growth and mapping contract without touching Vulkan.
type fakeBacking struct {
	buf []byte
}

func (f *fakeBacking) Capacity() uint64 { return uint64(len(f.buf)) }

func (f *fakeBacking) Grow(newCapacity uint64) error {
	grown := make([]byte, newCapacity)
	copy(grown, f.buf)
	f.buf = grown
	return nil
}

func (f *fakeBacking) Map(offset, size uint64) []byte {
	return f.buf[offset : offset+size]
}

func newFakeRing(initial, ceiling uint64) *Ring {
	return NewRing("test", &fakeBacking{buf: make([]byte, initial)}, ceiling)
}

func TestRingAllocationsDoNotOverlap(t *testing.T) {
	r := newFakeRing(16, 4096)

	a, err := r.Allocate(100, 4)
	if err != nil {
		t.Fatal(err)
	}
	b, err := r.Allocate(50, 4)
	if err != nil {
		t.Fatal(err)
	}

	if b.Offset < a.Offset+a.Size {
		t.Fatalf("overlapping allocations: a=%+v b=%+v", a, b)
	}
}

func TestRingGrowsInPowersOfTwo(t *testing.T) {
	r := newFakeRing(16, 4096)

	a, err := r.Allocate(100, 1)
	if err != nil {
		t.Fatal(err)
	}
	if a.Offset != 0 {
		t.Fatalf("expected first allocation at offset 0, got %d", a.Offset)
	}
	if r.Backing.Capacity() != 128 {
		t.Fatalf("expected capacity to grow to next power of two (128), got %d", r.Backing.Capacity())
	}
}

func TestScratchExhausted(t *testing.T) {
	r := newFakeRing(64, 64)

	_, err := r.Allocate(65, 1)
	if err == nil {
		t.Fatal("expected ScratchExhausted error for an allocation beyond the ceiling")
	}

	var re *errs.ResourceError
	if ok := asResourceError(err, &re); !ok {
		t.Fatalf("expected a *errs.ResourceError, got %T: %v", err, err)
	}
	if re.Kind != errs.ScratchExhausted {
		t.Fatalf("expected ScratchExhausted kind, got %s", re.Kind)
	}
}

func asResourceError(err error, target **errs.ResourceError) bool {
	re, ok := err.(*errs.ResourceError)
	if !ok {
		return false
	}
	*target = re
	return true
}

func TestRingResetReclaimsSpaceAcrossFrames(t *testing.T) {
	r := newFakeRing(128, 4096)

	if _, err := r.Allocate(100, 1); err != nil {
		t.Fatal(err)
	}
	if r.Remaining() >= 28 {
		t.Fatalf("expected ring to be nearly full, remaining=%d", r.Remaining())
	}

	r.Reset()

	if r.Used() != 0 {
		t.Fatalf("expected Used() == 0 after Reset, got %d", r.Used())
	}
	if _, err := r.Allocate(100, 1); err != nil {
		t.Fatal(err)
	}
}

func TestFrameScratchResetsBothRings(t *testing.T) {
	fs := NewFrameScratch(&fakeBacking{buf: make([]byte, 64)}, &fakeBacking{buf: make([]byte, 64)}, 4096)

	if _, err := fs.DeviceLocal.Allocate(32, 1); err != nil {
		t.Fatal(err)
	}
	if _, err := fs.Staging.Allocate(32, 1); err != nil {
		t.Fatal(err)
	}

	fs.Reset()

	if fs.DeviceLocal.Used() != 0 || fs.Staging.Used() != 0 {
		t.Fatal("expected both rings to reset")
	}
}
