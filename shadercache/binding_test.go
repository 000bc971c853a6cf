package shadercache

import (
	"testing"

	vk "github.com/vulkan-go/vulkan"
)

func TestBindingInfoPackUnpackRoundTrip(t *testing.T) {
	b := MakeBindingInfo(2, 5, 3, TypeStorageBuffer, 128, vk.ShaderStageFragmentBit, 1, 0xdeadbeef)

	if b.SetIndex() != 2 {
		t.Errorf("SetIndex = %d, want 2", b.SetIndex())
	}
	if b.Binding() != 5 {
		t.Errorf("Binding = %d, want 5", b.Binding())
	}
	if b.Count() != 3 {
		t.Errorf("Count = %d, want 3", b.Count())
	}
	if b.Type() != TypeStorageBuffer {
		t.Errorf("Type = %v, want TypeStorageBuffer", b.Type())
	}
	if b.Range() != 128 {
		t.Errorf("Range = %d, want 128", b.Range())
	}
	if b.StageBits() != vk.ShaderStageFragmentBit {
		t.Errorf("StageBits = %v, want fragment", b.StageBits())
	}
	if b.DynamicOffsetIndex() != 1 {
		t.Errorf("DynamicOffsetIndex = %d, want 1", b.DynamicOffsetIndex())
	}
	if b.NameHash != 0xdeadbeef {
		t.Errorf("NameHash = %#x, want 0xdeadbeef", b.NameHash)
	}
}

func TestSortBindingsOrdersBySetThenBinding(t *testing.T) {
	bindings := []BindingInfo{
		MakeBindingInfo(1, 0, 1, TypeUniformBuffer, 0, 0, 0, 0),
		MakeBindingInfo(0, 2, 1, TypeUniformBuffer, 0, 0, 0, 0),
		MakeBindingInfo(0, 0, 1, TypeUniformBuffer, 0, 0, 0, 0),
		MakeBindingInfo(0, 1, 1, TypeUniformBuffer, 0, 0, 0, 0),
	}
	SortBindings(bindings)

	want := [][2]uint32{{0, 0}, {0, 1}, {0, 2}, {1, 0}}
	for i, b := range bindings {
		if b.SetIndex() != want[i][0] || b.Binding() != want[i][1] {
			t.Fatalf("index %d: got (set=%d binding=%d), want (set=%d binding=%d)",
				i, b.SetIndex(), b.Binding(), want[i][0], want[i][1])
		}
	}
}

func TestWithStageBitsMerges(t *testing.T) {
	b := MakeBindingInfo(0, 0, 1, TypeUniformBuffer, 0, vk.ShaderStageVertexBit, 0, 0)
	merged := b.WithStageBits(vk.ShaderStageFragmentBit)

	want := vk.ShaderStageVertexBit | vk.ShaderStageFragmentBit
	if merged.StageBits() != want {
		t.Fatalf("StageBits = %v, want %v", merged.StageBits(), want)
	}
	// merging stage bits must not disturb the other fields
	if merged.SetIndex() != b.SetIndex() || merged.Binding() != b.Binding() {
		t.Fatalf("merging stage bits disturbed set/binding: %+v -> %+v", b, merged)
	}
}

func TestDescriptorLayoutEquivalenceUnderInsertionOrder(t *testing.T) {
	a := []BindingInfo{
		MakeBindingInfo(0, 1, 1, TypeUniformBuffer, 64, vk.ShaderStageVertexBit, 0, 0),
		MakeBindingInfo(0, 0, 1, TypeCombinedImageSampler, 0, vk.ShaderStageFragmentBit, 0, 0),
	}
	b := []BindingInfo{
		MakeBindingInfo(0, 0, 1, TypeCombinedImageSampler, 0, vk.ShaderStageFragmentBit, 0, 0),
		MakeBindingInfo(0, 1, 1, TypeUniformBuffer, 64, vk.ShaderStageVertexBit, 0, 0),
	}
	SortBindings(a)
	SortBindings(b)

	if len(a) != len(b) {
		t.Fatal("length mismatch")
	}
	for i := range a {
		if a[i].Packed != b[i].Packed {
			t.Fatalf("canonicalized sequences differ at %d: %v != %v", i, a[i], b[i])
		}
	}
}
