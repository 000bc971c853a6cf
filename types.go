package island

import (
	"github.com/neshume/island/encoder"
	"github.com/neshume/island/rendergraph"
	"github.com/neshume/island/rhandle"
	vk "github.com/vulkan-go/vulkan"
)

// ResourceHandle is the public handle type applications build modules
// against; it wraps rhandle.Handle so island/rhandle itself never needs
// to be imported directly by callers who only want to declare resources
// and wire up passes.
type ResourceHandle struct {
	h rhandle.Handle
}

func (r ResourceHandle) Valid() bool        { return r.h.Valid() }
func (r ResourceHandle) String() string     { return r.h.String() }
func (r ResourceHandle) inner() rhandle.Handle { return r.h }

// Usage bundles the pipeline stage and (for images) layout a pass
// requires when touching a resource, the argument shape Reads/Writes/
// ReadWrites on RenderPass take.
type Usage struct {
	stage  vk.PipelineStageFlagBits
	layout vk.ImageLayout
}

// At builds a Usage for the given pipeline stage and, for image
// resources, the layout the pass requires while using it. Buffer usages
// should pass layout 0.
func At(stage vk.PipelineStageFlagBits, layout vk.ImageLayout) Usage {
	return Usage{stage: stage, layout: layout}
}

// Attachment describes a color or depth-stencil attachment of a draw
// pass by resource handle, format, and required layout.
type Attachment struct {
	Handle ResourceHandle
	Format vk.Format
	Layout vk.ImageLayout
}

// Encoder is the command-recording handle a pass's execute callback
// receives; it forwards to island/encoder.Encoder without requiring the
// caller to import that package directly.
type Encoder struct {
	inner rendergraph.Encoder
}

func (e Encoder) raw() *encoder.Encoder {
	enc, _ := e.inner.(*encoder.Encoder)
	return enc
}

func (e Encoder) BindPipeline(key uint64, graphics bool) { e.raw().BindPipeline(key, graphics) }
func (e Encoder) SetViewport(x, y, width, height, minDepth, maxDepth float32) {
	e.raw().SetViewport(x, y, width, height, minDepth, maxDepth)
}
func (e Encoder) SetScissor(x, y int32, width, height uint32) { e.raw().SetScissor(x, y, width, height) }
func (e Encoder) SetVertexData(binding uint32, data []byte) (encoder.BufferRange, error) {
	return e.raw().SetVertexData(binding, data)
}
func (e Encoder) SetIndexData(data []byte, indexType vk.IndexType) (encoder.BufferRange, error) {
	return e.raw().SetIndexData(data, indexType)
}
func (e Encoder) SetArgumentData(setIndex, binding uint32, data []byte) (encoder.BufferRange, error) {
	return e.raw().SetArgumentData(setIndex, binding, data)
}
func (e Encoder) SetArgumentTexture(setIndex, binding uint32, view vk.ImageView, sampler vk.Sampler, layout vk.ImageLayout) {
	e.raw().SetArgumentTexture(setIndex, binding, view, sampler, layout)
}
func (e Encoder) SetArgumentImage(setIndex, binding uint32, view vk.ImageView, layout vk.ImageLayout, dtype vk.DescriptorType) {
	e.raw().SetArgumentImage(setIndex, binding, view, layout, dtype)
}
func (e Encoder) BindArgumentBuffer(setIndex, binding uint32, buffer vk.Buffer, offset, size uint64, dtype vk.DescriptorType) {
	e.raw().BindArgumentBuffer(setIndex, binding, buffer, offset, size, dtype)
}
func (e Encoder) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	e.raw().Draw(vertexCount, instanceCount, firstVertex, firstInstance)
}
func (e Encoder) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	e.raw().DrawIndexed(indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
}
func (e Encoder) Dispatch(x, y, z uint32) { e.raw().Dispatch(x, y, z) }

// Module is the public builder surface over rendergraph.RenderModule: an
// application declares resources and adds passes to one Module per
// frame, rebuilt fresh every frame rather than mutated in place.
type Module struct {
	registry *rhandle.Registry
	inner    *rendergraph.RenderModule
}

// NewModule creates an empty module backed by registry -- typically the
// Renderer's own handle registry, shared across frames so handles
// produced for persistent resources (e.g. the swapchain image) compare
// equal frame to frame.
func NewModule(registry *rhandle.Registry) *Module {
	return &Module{registry: registry, inner: rendergraph.NewRenderModule()}
}

// ProduceHandle interns name under kind, returning the
// same handle on every call with the same name.
func (m *Module) ProduceHandle(kind rhandle.Kind, name string) (ResourceHandle, error) {
	h, err := m.registry.ProduceHandle(kind, name)
	if err != nil {
		return ResourceHandle{}, err
	}
	return ResourceHandle{h: h}, nil
}

// DeclareResource attaches a fixed description to a handle for this
// module's lifetime.
func (m *Module) DeclareResource(h ResourceHandle, info rendergraph.ResourceInfo) {
	m.inner.DeclareResource(h.h, info)
}

// AddPass appends a new pass named name to the module and returns its
// public facade.
func (m *Module) AddPass(name string, kind rendergraph.PassKind) RenderPass {
	p := m.inner.AddPass(&rendergraph.Pass{Name: name, Kind: kind})
	return newRenderPass(p)
}
