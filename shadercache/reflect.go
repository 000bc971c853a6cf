package shadercache

import (
	"encoding/binary"
	"fmt"
)

const spirvMagic = 0x07230203

// spirv opcodes relevant to reflecting descriptor bindings and vertex
// input locations. Only the subset the cache needs is decoded; this is
// not a general SPIR-V disassembler.
const (
	opName           = 5
	opMemberDecorate = 72
	opDecorate       = 71
	opTypePointer    = 32
	opVariable       = 59
)

const (
	decorationBinding      = 33
	decorationDescriptorSet = 34
	decorationLocation     = 30
)

const (
	storageClassUniform        = 2
	storageClassInput          = 1
	storageClassUniformConstant = 0
	storageClassStorageBuffer  = 12
)

// ReflectSPIRV walks a SPIR-V binary's instruction stream and recovers the
// (set, binding, location) decorations attached to module-scope variables.
// It deliberately does not resolve a variable's full pointee type -- doing
// so needs a type-graph walk the cache has no use for yet -- so every
// recovered binding defaults to TypeUniformBuffer/count 1 unless the
// variable's storage class indicates a sampled image or storage buffer.
// island/pipelinecache takes these bindings as given and does not correct
// them; its MergeBySet fails with BindingConflict only when two stages
// disagree on type, count or range at the same (set, binding).
func ReflectSPIRV(code []byte, stage Stage) (Reflection, error) {
	if len(code) < 20 || len(code)%4 != 0 {
		return Reflection{}, fmt.Errorf("shadercache: not a SPIR-V module (%d bytes)", len(code))
	}
	words := bytesToWords(code)
	if words[0] != spirvMagic {
		return Reflection{}, fmt.Errorf("shadercache: bad SPIR-V magic %#x", words[0])
	}

	type varInfo struct {
		id           uint32
		storageClass uint32
		set          *uint32
		binding      *uint32
		location     *uint32
	}
	vars := map[uint32]*varInfo{}

	get := func(id uint32) *varInfo {
		v, ok := vars[id]
		if !ok {
			v = &varInfo{id: id}
			vars[id] = v
		}
		return v
	}

	i := 5 // skip header (magic, version, generator, bound, schema)
	for i < len(words) {
		word := words[i]
		wordCount := int(word >> 16)
		opcode := word & 0xffff
		if wordCount == 0 || i+wordCount > len(words) {
			break
		}
		switch opcode {
		case opDecorate:
			target := words[i+1]
			decoration := words[i+2]
			switch decoration {
			case decorationBinding:
				v := get(target)
				b := words[i+3]
				v.binding = &b
			case decorationDescriptorSet:
				v := get(target)
				s := words[i+3]
				v.set = &s
			case decorationLocation:
				v := get(target)
				l := words[i+3]
				v.location = &l
			}
		case opVariable:
			// OpVariable: result type, result id, storage class, [initializer]
			resultID := words[i+2]
			storageClass := words[i+3]
			get(resultID).storageClass = storageClass
		}
		i += wordCount
	}

	var refl Reflection
	for _, v := range vars {
		if v.set != nil && v.binding != nil {
			typ := TypeUniformBuffer
			switch v.storageClass {
			case storageClassUniformConstant:
				typ = TypeCombinedImageSampler
			case storageClassStorageBuffer:
				typ = TypeStorageBuffer
			}
			refl.Bindings = append(refl.Bindings, MakeBindingInfo(*v.set, *v.binding, 1, typ, 0, stage.VKShaderStage(), 0, 0))
			continue
		}
		if v.storageClass == storageClassInput && v.location != nil {
			refl.VertexAttributes = append(refl.VertexAttributes, VertexAttribute{
				Location: *v.location,
			})
		}
	}

	return refl, nil
}

func bytesToWords(b []byte) []uint32 {
	out := make([]uint32, len(b)/4)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return out
}
