package backend

import (
	vk "github.com/vulkan-go/vulkan"
)

// BufferObject is anything with a byte representation -- mesh data from
// island/path, or a raw byte slice a caller assembled itself.
type BufferObject interface {
	Bytes() []byte
}

// VertexSource is the per-vertex struct type a mesh is described with;
// GraphicsPipelineConfig.AddVertexDescriptor reads its binding and
// attribute layout to build the pipeline's vertex input state.
type VertexSource interface {
	BufferObject
	GetBindingDescription() vk.VertexInputBindingDescription
	GetAttributeDescriptions() []vk.VertexInputAttributeDescription
}

// IDestructable is anything GraphicsPipelineConfig.manageDestroy takes
// ownership of and tears down when the config itself is destroyed --
// a shader module loaded for one stage, for instance.
type IDestructable interface {
	Destroy()
}
