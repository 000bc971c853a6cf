package shadercache

import (
	"sort"

	"github.com/vulkan-go/vulkan"
)

// BindingInfo is a packed 64-bit shader-binding record:
//
//	dynamic_offset_idx : 8   (bits 0-7)
//	stage_bits         : 6   (bits 8-13)
//	range              : 27  (bits 14-40, uniform range in bytes)
//	type               : 4   (bits 41-44)
//	count              : 8   (bits 45-52)
//	binding            : 8   (bits 53-60)
//	setIndex           : 3   (bits 61-63)
//
// binding/setIndex occupy the bits that dominate an unsigned numeric
// comparison of the packed word, which is what makes sorting the packed
// uint64 equivalent to sorting by (setIndex, binding) ascending, using
// explicit shift/mask rather than relying on any compiler's own bitfield
// ordering.
type BindingInfo struct {
	Packed   uint64
	NameHash uint64
}

const (
	shiftDynOffsetIdx = 0
	shiftStageBits    = 8
	shiftRange        = 14
	shiftType         = 41
	shiftCount        = 45
	shiftBinding      = 53
	shiftSetIndex     = 61

	maskDynOffsetIdx = (uint64(1) << 8) - 1
	maskStageBits    = (uint64(1) << 6) - 1
	maskRange        = (uint64(1) << 27) - 1
	maskType         = (uint64(1) << 4) - 1
	maskCount        = (uint64(1) << 8) - 1
	maskBinding      = (uint64(1) << 8) - 1
	maskSetIndex     = (uint64(1) << 3) - 1
)

// DescriptorType is the small set of binding kinds reflection cares
// about; it is independent from vk.DescriptorType's numeric values so
// the packed 4-bit field has a stable, documented meaning regardless of
// how the Vulkan headers number their enum.
type DescriptorType uint8

const (
	TypeSampler DescriptorType = iota
	TypeCombinedImageSampler
	TypeSampledImage
	TypeStorageImage
	TypeUniformBuffer
	TypeStorageBuffer
	TypeUniformBufferDynamic
	TypeStorageBufferDynamic
	TypeAccelerationStructure
)

func (t DescriptorType) VKDescriptorType() vulkan.DescriptorType {
	switch t {
	case TypeSampler:
		return vulkan.DescriptorTypeSampler
	case TypeCombinedImageSampler:
		return vulkan.DescriptorTypeCombinedImageSampler
	case TypeSampledImage:
		return vulkan.DescriptorTypeSampledImage
	case TypeStorageImage:
		return vulkan.DescriptorTypeStorageImage
	case TypeUniformBuffer:
		return vulkan.DescriptorTypeUniformBuffer
	case TypeStorageBuffer:
		return vulkan.DescriptorTypeStorageBuffer
	case TypeUniformBufferDynamic:
		return vulkan.DescriptorTypeUniformBufferDynamic
	case TypeStorageBufferDynamic:
		return vulkan.DescriptorTypeStorageBufferDynamic
	default:
		return vulkan.DescriptorTypeUniformBuffer
	}
}

// MakeBindingInfo packs the individual reflected fields into a BindingInfo.
// Callers building a binding by hand (tests, the example command) go
// through this rather than poking at Packed directly.
func MakeBindingInfo(setIndex, binding, count uint32, typ DescriptorType, rangeBytes uint32, stageBits vulkan.ShaderStageFlagBits, dynamicOffsetIdx uint8, nameHash uint64) BindingInfo {
	var p uint64
	p |= (uint64(dynamicOffsetIdx) & maskDynOffsetIdx) << shiftDynOffsetIdx
	p |= (uint64(stageBits) & maskStageBits) << shiftStageBits
	p |= (uint64(rangeBytes) & maskRange) << shiftRange
	p |= (uint64(typ) & maskType) << shiftType
	p |= (uint64(count) & maskCount) << shiftCount
	p |= (uint64(binding) & maskBinding) << shiftBinding
	p |= (uint64(setIndex) & maskSetIndex) << shiftSetIndex
	return BindingInfo{Packed: p, NameHash: nameHash}
}

func (b BindingInfo) SetIndex() uint32 { return uint32((b.Packed >> shiftSetIndex) & maskSetIndex) }
func (b BindingInfo) Binding() uint32  { return uint32((b.Packed >> shiftBinding) & maskBinding) }
func (b BindingInfo) Count() uint32    { return uint32((b.Packed >> shiftCount) & maskCount) }
func (b BindingInfo) Type() DescriptorType {
	return DescriptorType((b.Packed >> shiftType) & maskType)
}
func (b BindingInfo) Range() uint32 { return uint32((b.Packed >> shiftRange) & maskRange) }
func (b BindingInfo) StageBits() vulkan.ShaderStageFlagBits {
	return vulkan.ShaderStageFlagBits((b.Packed >> shiftStageBits) & maskStageBits)
}
func (b BindingInfo) DynamicOffsetIndex() uint8 {
	return uint8((b.Packed >> shiftDynOffsetIdx) & maskDynOffsetIdx)
}

// WithStageBits returns a copy of b with its stage mask OR'd against
// other, used by the pipeline/descriptor-layout cache to merge bindings
// that multiple shader stages declare at the same (set, binding).
func (b BindingInfo) WithStageBits(other vulkan.ShaderStageFlagBits) BindingInfo {
	merged := b
	cleared := merged.Packed &^ (maskStageBits << shiftStageBits)
	newBits := (uint64(b.StageBits()|other) & maskStageBits) << shiftStageBits
	merged.Packed = cleared | newBits
	return merged
}

// SortBindings orders a slice of BindingInfo by (setIndex, binding)
// ascending. Because setIndex and binding occupy the highest bits of the
// packed word, this is exactly an ascending sort on Packed.
func SortBindings(bindings []BindingInfo) {
	sort.Slice(bindings, func(i, j int) bool { return bindings[i].Packed < bindings[j].Packed })
}
