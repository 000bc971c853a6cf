package pipelinecache

import (
	"testing"

	"github.com/neshume/island/errs"
	"github.com/neshume/island/shadercache"
	vk "github.com/vulkan-go/vulkan"
)

func TestMergeBySetGroupsAndSorts(t *testing.T) {
	all := []shadercache.BindingInfo{
		shadercache.MakeBindingInfo(1, 0, 1, shadercache.TypeUniformBuffer, 64, vk.ShaderStageVertexBit, 0, 0),
		shadercache.MakeBindingInfo(0, 1, 1, shadercache.TypeCombinedImageSampler, 0, vk.ShaderStageFragmentBit, 0, 0),
		shadercache.MakeBindingInfo(0, 0, 1, shadercache.TypeUniformBuffer, 64, vk.ShaderStageVertexBit, 0, 0),
	}

	bySet, err := MergeBySet(all)
	if err != nil {
		t.Fatalf("MergeBySet returned error: %v", err)
	}
	if len(bySet) != 2 {
		t.Fatalf("got %d sets, want 2", len(bySet))
	}
	if len(bySet[0]) != 2 {
		t.Fatalf("set 0: got %d bindings, want 2", len(bySet[0]))
	}
	if bySet[0][0].Binding() != 0 || bySet[0][1].Binding() != 1 {
		t.Fatalf("set 0 not sorted by binding: %+v", bySet[0])
	}
}

func TestMergeBySetCombinesStageBitsAcrossStages(t *testing.T) {
	all := []shadercache.BindingInfo{
		shadercache.MakeBindingInfo(0, 0, 1, shadercache.TypeUniformBuffer, 64, vk.ShaderStageVertexBit, 0, 0),
		shadercache.MakeBindingInfo(0, 0, 1, shadercache.TypeUniformBuffer, 64, vk.ShaderStageFragmentBit, 0, 0),
	}

	bySet, err := MergeBySet(all)
	if err != nil {
		t.Fatalf("MergeBySet returned error: %v", err)
	}
	got := bySet[0][0].StageBits()
	want := vk.ShaderStageVertexBit | vk.ShaderStageFragmentBit
	if got != want {
		t.Fatalf("StageBits = %v, want %v", got, want)
	}
}

func TestMergeBySetRejectsConflictingType(t *testing.T) {
	all := []shadercache.BindingInfo{
		shadercache.MakeBindingInfo(0, 0, 1, shadercache.TypeUniformBuffer, 64, vk.ShaderStageVertexBit, 0, 0),
		shadercache.MakeBindingInfo(0, 0, 1, shadercache.TypeCombinedImageSampler, 64, vk.ShaderStageFragmentBit, 0, 0),
	}

	_, err := MergeBySet(all)
	if err == nil {
		t.Fatal("expected a BindingConflict error, got nil")
	}
	pe, ok := err.(*errs.PipelineError)
	if !ok {
		t.Fatalf("error is not a PipelineError: %v", err)
	}
	if pe.Kind != errs.BindingConflict {
		t.Fatalf("Kind = %v, want BindingConflict", pe.Kind)
	}
}

func TestSetLayoutSlotForOnlyBufferBindings(t *testing.T) {
	l := &SetLayout{entries: []templateEntry{{binding: 2, slot: 0}, {binding: 5, slot: 1}}}

	if slot, ok := l.SlotFor(2); !ok || slot != 0 {
		t.Fatalf("SlotFor(2) = (%d, %v), want (0, true)", slot, ok)
	}
	if slot, ok := l.SlotFor(5); !ok || slot != 1 {
		t.Fatalf("SlotFor(5) = (%d, %v), want (1, true)", slot, ok)
	}
	if _, ok := l.SlotFor(3); ok {
		t.Fatal("SlotFor(3) should report no slot -- binding 3 was never a template entry")
	}
	if got := l.EntryCount(); got != 2 {
		t.Fatalf("EntryCount() = %d, want 2", got)
	}
}

func TestIsBufferType(t *testing.T) {
	buffers := []vk.DescriptorType{
		vk.DescriptorTypeUniformBuffer, vk.DescriptorTypeStorageBuffer,
		vk.DescriptorTypeUniformBufferDynamic, vk.DescriptorTypeStorageBufferDynamic,
	}
	for _, dt := range buffers {
		if !isBufferType(dt) {
			t.Fatalf("isBufferType(%v) = false, want true", dt)
		}
	}
	if isBufferType(vk.DescriptorTypeCombinedImageSampler) {
		t.Fatal("isBufferType(CombinedImageSampler) = true, want false")
	}
}

func TestHashBindingsIgnoresDeclarationOrder(t *testing.T) {
	a := []shadercache.BindingInfo{
		shadercache.MakeBindingInfo(0, 1, 1, shadercache.TypeUniformBuffer, 64, vk.ShaderStageVertexBit, 0, 0),
		shadercache.MakeBindingInfo(0, 0, 1, shadercache.TypeCombinedImageSampler, 0, vk.ShaderStageFragmentBit, 0, 0),
	}
	b := []shadercache.BindingInfo{
		shadercache.MakeBindingInfo(0, 0, 1, shadercache.TypeCombinedImageSampler, 0, vk.ShaderStageFragmentBit, 0, 0),
		shadercache.MakeBindingInfo(0, 1, 1, shadercache.TypeUniformBuffer, 64, vk.ShaderStageVertexBit, 0, 0),
	}
	shadercache.SortBindings(a)
	shadercache.SortBindings(b)

	if hashBindings(a) != hashBindings(b) {
		t.Fatal("canonicalized sequences built from the same bindings in different declaration order hashed differently")
	}
}
