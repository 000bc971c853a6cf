// Package encoder implements island's per-pass deferred command stream:
// a contiguous byte buffer of typed, tagged records that a pass's
// execute callback appends to, later replayed into API command buffers
// by the frame orchestrator once computed barriers are known.
// Recording never touches the device; only Replay (replay.go) does.
package encoder

import (
	"encoding/binary"
	"math"

	"github.com/neshume/island/rendergraph"
	"github.com/neshume/island/scratch"
	vk "github.com/vulkan-go/vulkan"
)

// RecordType tags one entry in the command stream.
type RecordType uint8

const (
	RecordBindPipeline RecordType = iota
	RecordBindVertexBuffers
	RecordBindIndexBuffer
	RecordSetViewport
	RecordSetScissor
	RecordSetLineWidth
	RecordDraw
	RecordDrawIndexed
	RecordDrawMeshTasks
	RecordDispatch
	RecordTraceRays
	RecordSetArgumentData
	RecordSetArgumentTexture
	RecordSetArgumentImage
	RecordSetArgumentTLAS
	RecordBindArgumentBuffer
	RecordWriteToBuffer
	RecordWriteToImage
	RecordBuildBLAS
	RecordBuildTLAS
)

// BufferRange identifies a (buffer, offset, size) slice of a scratch ring --
// the shape set_vertex_data/set_index_data/set_argument_data record after
// copying caller bytes into scratch.
type BufferRange struct {
	Buffer vk.Buffer
	Offset uint64
	Size   uint64
}

// Encoder accumulates one pass's command stream. It is not safe for
// concurrent use by more than one goroutine -- the orchestrator may run
// pass execute callbacks in parallel, but only provided they write to
// disjoint encoders: one Encoder per pass, one writer each.
type Encoder struct {
	pass   *rendergraph.Pass
	buf    []byte
	scratchAlloc *scratch.FrameScratch // scratch allocators this encoder funnels inline data through
}

func New(pass *rendergraph.Pass, fs *scratch.FrameScratch) *Encoder {
	return &Encoder{pass: pass, scratchAlloc: fs}
}

// Pass satisfies rendergraph.Encoder, letting a Pass's Execute callback be
// typed against the narrower interface without this package depending
// back on a concrete *Encoder type at the rendergraph layer.
func (e *Encoder) Pass() *rendergraph.Pass { return e.pass }

// Bytes returns the recorded stream for replay.
func (e *Encoder) Bytes() []byte { return e.buf }

// Reset clears the stream for reuse by the next frame using this
// encoder slot. The encoder itself does not own scratch memory, so
// nothing beyond the byte buffer needs rewinding.
func (e *Encoder) Reset() { e.buf = e.buf[:0] }

func (e *Encoder) appendHeader(t RecordType, payloadSize int) {
	e.buf = append(e.buf, byte(t))
	var sz [4]byte
	binary.LittleEndian.PutUint32(sz[:], uint32(payloadSize))
	e.buf = append(e.buf, sz[:]...)
}

func (e *Encoder) appendU32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

func (e *Encoder) appendU64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

func (e *Encoder) appendF32(v float32) {
	e.appendU32(math.Float32bits(v))
}

func (e *Encoder) appendI32(v int32) {
	e.appendU32(uint32(v))
}

// BindPipeline records a pipeline bind. The pipeline is identified by its
// PipelineCache key rather than embedding the live vk.Pipeline handle, so
// stream replay can re-resolve a possibly-rebuilt (hot-reloaded) pipeline
// at replay time instead of baking in a handle recorded during Execute.
func (e *Encoder) BindPipeline(key uint64, graphics bool) {
	e.appendHeader(RecordBindPipeline, 9)
	e.appendU64(key)
	if graphics {
		e.buf = append(e.buf, 1)
	} else {
		e.buf = append(e.buf, 0)
	}
}

func (e *Encoder) SetViewport(x, y, width, height, minDepth, maxDepth float32) {
	e.appendHeader(RecordSetViewport, 24)
	e.appendF32(x)
	e.appendF32(y)
	e.appendF32(width)
	e.appendF32(height)
	e.appendF32(minDepth)
	e.appendF32(maxDepth)
}

func (e *Encoder) SetScissor(x, y int32, width, height uint32) {
	e.appendHeader(RecordSetScissor, 16)
	e.appendI32(x)
	e.appendI32(y)
	e.appendU32(width)
	e.appendU32(height)
}

func (e *Encoder) SetLineWidth(width float32) {
	e.appendHeader(RecordSetLineWidth, 4)
	e.appendF32(width)
}

// SetVertexData copies data into the device-local scratch ring and
// records a vertex-buffer bind against the resulting range.
func (e *Encoder) SetVertexData(binding uint32, data []byte) (BufferRange, error) {
	rng, err := e.stageInline(data, 4)
	if err != nil {
		return BufferRange{}, err
	}
	e.appendHeader(RecordBindVertexBuffers, 28)
	e.appendU32(binding)
	e.appendU64(uint64(rng.Buffer))
	e.appendU64(rng.Offset)
	e.appendU64(rng.Size)
	return rng, nil
}

// SetIndexData copies data into the device-local scratch ring and records
// an index-buffer bind against the resulting range.
func (e *Encoder) SetIndexData(data []byte, indexType vk.IndexType) (BufferRange, error) {
	rng, err := e.stageInline(data, 4)
	if err != nil {
		return BufferRange{}, err
	}
	e.appendHeader(RecordBindIndexBuffer, 28)
	e.appendU32(uint32(indexType))
	e.appendU64(uint64(rng.Buffer))
	e.appendU64(rng.Offset)
	e.appendU64(rng.Size)
	return rng, nil
}

// SetArgumentData copies data into the device-local scratch ring and
// records a per-set argument update: a memcpy into a per-frame buffer
// followed by one template application per set.
func (e *Encoder) SetArgumentData(setIndex, binding uint32, data []byte) (BufferRange, error) {
	rng, err := e.stageInline(data, 16)
	if err != nil {
		return BufferRange{}, err
	}
	e.appendHeader(RecordSetArgumentData, 32)
	e.appendU32(setIndex)
	e.appendU32(binding)
	e.appendU64(uint64(rng.Buffer))
	e.appendU64(rng.Offset)
	e.appendU64(rng.Size)
	return rng, nil
}

// SetArgumentTexture records a combined-image-sampler write at (setIndex,
// binding). Unlike SetArgumentData, nothing is copied through scratch --
// replay applies view/sampler/layout straight to the bound pipeline's
// descriptor set through backend.DescriptorSet's manual write path, since
// a descriptor update template's flat array can only hold
// vk.DescriptorBufferInfo entries (see pipelinecache.SetLayout).
func (e *Encoder) SetArgumentTexture(setIndex, binding uint32, view vk.ImageView, sampler vk.Sampler, layout vk.ImageLayout) {
	e.appendHeader(RecordSetArgumentTexture, 28)
	e.appendU32(setIndex)
	e.appendU32(binding)
	e.appendU64(uint64(view))
	e.appendU64(uint64(sampler))
	e.appendU32(uint32(layout))
}

// SetArgumentImage records a sampled- or storage-image write at
// (setIndex, binding) with no sampler -- a storage image bound for a
// compute pass's writes, or a sampled image whose sampler is a separate
// binding elsewhere in the set. dtype must match the binding's declared
// descriptor type.
func (e *Encoder) SetArgumentImage(setIndex, binding uint32, view vk.ImageView, layout vk.ImageLayout, dtype vk.DescriptorType) {
	e.appendHeader(RecordSetArgumentImage, 24)
	e.appendU32(setIndex)
	e.appendU32(binding)
	e.appendU64(uint64(view))
	e.appendU32(uint32(layout))
	e.appendU32(uint32(dtype))
}

// BindArgumentBuffer records a direct buffer-descriptor write at
// (setIndex, binding) against a caller-owned vk.Buffer, bypassing the
// per-frame scratch ring SetArgumentData copies through -- for a buffer
// whose contents are not rewritten every frame, staging it through
// scratch on every pass would be wasted work.
func (e *Encoder) BindArgumentBuffer(setIndex, binding uint32, buffer vk.Buffer, offset, size uint64, dtype vk.DescriptorType) {
	e.appendHeader(RecordBindArgumentBuffer, 36)
	e.appendU32(setIndex)
	e.appendU32(binding)
	e.appendU64(uint64(buffer))
	e.appendU64(offset)
	e.appendU64(size)
	e.appendU32(uint32(dtype))
}

func (e *Encoder) stageInline(data []byte, align uint64) (BufferRange, error) {
	alloc, err := e.scratchAlloc.DeviceLocal.Allocate(uint64(len(data)), align)
	if err != nil {
		return BufferRange{}, err
	}
	if alloc.Ptr != nil {
		copy(alloc.Ptr, data)
	}
	buf, _ := e.scratchAlloc.DeviceLocal.Backing.(vkBufferBacking)
	var vkBuf vk.Buffer
	if buf != nil {
		vkBuf = buf.VKBuffer()
	}
	return BufferRange{Buffer: vkBuf, Offset: alloc.Offset, Size: alloc.Size}, nil
}

// vkBufferBacking is implemented by backend.RingBuffer; declared locally
// so this package does not need to import backend just to ask a Backing
// for its live buffer handle.
type vkBufferBacking interface {
	VKBuffer() vk.Buffer
}

func (e *Encoder) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	e.appendHeader(RecordDraw, 16)
	e.appendU32(vertexCount)
	e.appendU32(instanceCount)
	e.appendU32(firstVertex)
	e.appendU32(firstInstance)
}

func (e *Encoder) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	e.appendHeader(RecordDrawIndexed, 20)
	e.appendU32(indexCount)
	e.appendU32(instanceCount)
	e.appendU32(firstIndex)
	e.appendI32(vertexOffset)
	e.appendU32(firstInstance)
}

func (e *Encoder) DrawMeshTasks(groupCountX, groupCountY, groupCountZ uint32) {
	e.appendHeader(RecordDrawMeshTasks, 12)
	e.appendU32(groupCountX)
	e.appendU32(groupCountY)
	e.appendU32(groupCountZ)
}

func (e *Encoder) Dispatch(x, y, z uint32) {
	e.appendHeader(RecordDispatch, 12)
	e.appendU32(x)
	e.appendU32(y)
	e.appendU32(z)
}

// TraceRays records a ray-tracing dispatch. Replay will refuse this record
// (see replay.go) since github.com/vulkan-go/vulkan has no ray-tracing
// entry points to dispatch it against; recording is still supported so an
// application building against the full command set compiles and its
// stream can be inspected/tested without a device.
func (e *Encoder) TraceRays(width, height, depth uint32) {
	e.appendHeader(RecordTraceRays, 12)
	e.appendU32(width)
	e.appendU32(height)
	e.appendU32(depth)
}

func (e *Encoder) WriteToBuffer(target vk.Buffer, dstOffset uint64, data []byte) (BufferRange, error) {
	rng, err := e.stageInline(data, 4)
	if err != nil {
		return BufferRange{}, err
	}
	e.appendHeader(RecordWriteToBuffer, 40)
	e.appendU64(uint64(target))
	e.appendU64(dstOffset)
	e.appendU64(uint64(rng.Buffer))
	e.appendU64(rng.Offset)
	e.appendU64(rng.Size)
	return rng, nil
}

// WriteToImage stages data through the staging ring and records the
// target image, mip level and extent. Replay copies the staged bytes into
// the image's color aspect with the image expected in
// ImageLayoutTransferDstOptimal; no layout transitions are recorded.
func (e *Encoder) WriteToImage(target vk.Image, mipLevel uint32, extent vk.Extent3D, data []byte) (BufferRange, error) {
	alloc, err := e.scratchAlloc.Staging.Allocate(uint64(len(data)), 4)
	if err != nil {
		return BufferRange{}, err
	}
	if alloc.Ptr != nil {
		copy(alloc.Ptr, data)
	}
	buf, _ := e.scratchAlloc.Staging.Backing.(vkBufferBacking)
	var vkBuf vk.Buffer
	if buf != nil {
		vkBuf = buf.VKBuffer()
	}
	rng := BufferRange{Buffer: vkBuf, Offset: alloc.Offset, Size: alloc.Size}

	e.appendHeader(RecordWriteToImage, 48)
	e.appendU64(uint64(target))
	e.appendU32(mipLevel)
	e.appendU32(extent.Width)
	e.appendU32(extent.Height)
	e.appendU32(extent.Depth)
	e.appendU64(uint64(rng.Buffer))
	e.appendU64(rng.Offset)
	e.appendU64(rng.Size)
	return rng, nil
}

// BuildBLAS and BuildTLAS record acceleration-structure build requests.
// Recording is supported for API completeness; replay refuses them for
// the same reason TraceRays is refused -- see replay.go.
func (e *Encoder) BuildBLAS(geometryHash uint64) {
	e.appendHeader(RecordBuildBLAS, 8)
	e.appendU64(geometryHash)
}

func (e *Encoder) BuildTLAS(instanceHash uint64) {
	e.appendHeader(RecordBuildTLAS, 8)
	e.appendU64(instanceHash)
}
