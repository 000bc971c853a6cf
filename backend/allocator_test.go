package backend

import (
	"testing"
)

func TestAlign(t *testing.T) {
	if makeAlignUp(12, 3) != 12 {
		t.Fail()
	}

	if makeAlignUp(10, 3) != 12 {
		t.Fail()
	}
}

func TestLinearAllocator(t *testing.T) {
	a := &LinearAllocator{Size: 1024}

	ra := a.Allocate(2048, 1)
	if ra != nil {
		t.Error("should have failed an allocation larger than the pool")
	}

	ra = a.Allocate(512, 1)
	fa := ra
	if ra == nil {
		t.Fatal("failed 512-byte allocation")
	}

	ra = a.Allocate(768, 1)
	if ra != nil {
		t.Error("should have failed an allocation that doesn't fit in the remainder")
	}

	ra = a.Allocate(500, 1)
	k := ra
	if ra == nil {
		t.Fatal("failed 500-byte allocation")
	}

	ra = a.Allocate(50, 1)
	if ra != nil {
		t.Error("pool should be exhausted")
	}

	ra = a.Allocate(12, 1)
	if ra == nil {
		t.Error("failed 12-byte allocation into remaining 12 bytes")
	}

	a.Free(k)
	ra = a.Allocate(500, 1)
	if ra == nil {
		t.Error("failed to reallocate freed range")
	}

	a.Free(fa)
	ra = a.Allocate(20, 1)
	if ra == nil {
		t.Error("failed to allocate from the head after freeing it")
	}

	ra = a.Allocate(40, 1)
	if ra == nil {
		t.Error("failed allocation from remaining head space")
	}
}

func TestLinearAllocatorAlignment(t *testing.T) {
	a := &LinearAllocator{Size: 256}

	first := a.Allocate(10, 16)
	if first == nil || first.Offset != 0 {
		t.Fatalf("expected first allocation at offset 0, got %+v", first)
	}

	second := a.Allocate(10, 16)
	if second == nil {
		t.Fatal("second allocation failed")
	}
	if second.Offset%16 != 0 {
		t.Errorf("second allocation offset %d is not 16-byte aligned", second.Offset)
	}
	if second.Offset < first.Offset+first.Size {
		t.Errorf("second allocation %+v overlaps first %+v", second, first)
	}
}

func TestLinearAllocatorDestroyContents(t *testing.T) {
	a := &LinearAllocator{Size: 64}
	if a.Allocate(64, 1) == nil {
		t.Fatal("expected full-size allocation to succeed")
	}
	if a.Allocate(1, 1) != nil {
		t.Fatal("expected pool to be exhausted")
	}
	a.DestroyContents()
	if a.Allocate(64, 1) == nil {
		t.Fatal("expected allocator to be reusable after DestroyContents")
	}
}
