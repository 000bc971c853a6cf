package encoder

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/neshume/island/backend"
	"github.com/neshume/island/errs"
	"github.com/neshume/island/pipelinecache"
	vk "github.com/vulkan-go/vulkan"
)

// Replay decodes one encoder's recorded stream and issues the
// corresponding vk.Cmd* calls against cb, in the order they were
// recorded: commands within a single encoder execute strictly in
// submission order. pipelines resolves a BindPipeline record's key back
// to the live object the pipeline cache built for it.
func Replay(cb *backend.CommandBuffer, stream []byte, pipelines *pipelinecache.Cache) error {
	rp := &replayer{cb: cb, pipelines: pipelines}
	r := reader{buf: stream}
	for !r.done() {
		recType, payload, err := r.next()
		if err != nil {
			return err
		}
		if err := rp.replayOne(RecordType(recType), payload); err != nil {
			return err
		}
	}
	rp.flushArguments()
	return nil
}

// replayer carries the state Replay needs across records within one
// stream: which pipeline is currently bound, and the buffer-argument
// writes accumulated against its descriptor sets since the last flush.
// One replayer per Replay call -- never shared across encoders.
type replayer struct {
	cb        *backend.CommandBuffer
	pipelines *pipelinecache.Cache

	current        *pipelinecache.Pipeline
	pending        map[uint32][]vk.DescriptorBufferInfo
	pendingImages  map[uint32][]pendingImageWrite
	pendingBuffers map[uint32][]pendingBufferWrite
	dirty          map[uint32]bool
}

// pendingImageWrite is one set_argument_texture/set_argument_image record
// accumulated against a set, applied at the next flush through
// backend.DescriptorSet's manual write path rather than the update
// template recordArgumentData's writes go through.
type pendingImageWrite struct {
	binding uint32
	dtype   vk.DescriptorType
	view    vk.ImageView
	sampler vk.Sampler
	layout  vk.ImageLayout
}

// pendingBufferWrite is one bind_argument_buffer record accumulated
// against a set -- a direct buffer-descriptor write the caller supplied
// a live vk.Buffer for, bypassing scratch entirely.
type pendingBufferWrite struct {
	binding uint32
	dtype   vk.DescriptorType
	buffer  vk.Buffer
	offset  uint64
	size    uint64
}

func (rp *replayer) replayOne(t RecordType, p []byte) error {
	switch t {
	case RecordBindPipeline:
		key := binary.LittleEndian.Uint64(p[0:8])
		pipeline, ok := rp.pipelines.Lookup(key)
		if !ok {
			return errs.Pipeline(errs.LayoutMismatch, fmt.Sprintf("%d", key),
				fmt.Errorf("no pipeline built for key %d by replay time", key))
		}
		rp.flushArguments()
		rp.current = pipeline
		rp.pending = nil
		rp.pendingImages = nil
		rp.pendingBuffers = nil
		rp.dirty = nil
		if p[8] != 0 {
			rp.cb.CmdBindGraphicsPipeline(&backend.GraphicsPipeline{VKPipeline: pipeline.VKPipeline})
		} else {
			rp.cb.CmdBindComputePipeline(&backend.ComputePipeline{VKPipeline: pipeline.VKPipeline})
		}

	case RecordSetViewport:
		rp.cb.CmdSetViewport(vk.Viewport{
			X: readF32(p, 0), Y: readF32(p, 4),
			Width: readF32(p, 8), Height: readF32(p, 12),
			MinDepth: readF32(p, 16), MaxDepth: readF32(p, 20),
		})

	case RecordSetScissor:
		rp.cb.CmdSetScissor(vk.Rect2D{
			Offset: vk.Offset2D{X: readI32(p, 0), Y: readI32(p, 4)},
			Extent: vk.Extent2D{Width: binary.LittleEndian.Uint32(p[8:12]), Height: binary.LittleEndian.Uint32(p[12:16])},
		})

	case RecordSetLineWidth:
		rp.cb.CmdSetLineWidth(readF32(p, 0))

	case RecordBindVertexBuffers:
		binding := binary.LittleEndian.Uint32(p[0:4])
		buffer := vk.Buffer(binary.LittleEndian.Uint64(p[4:12]))
		offset := binary.LittleEndian.Uint64(p[12:20])
		rp.cb.CmdBindVertexBuffers(binding, []vk.Buffer{buffer}, []vk.DeviceSize{vk.DeviceSize(offset)})

	case RecordBindIndexBuffer:
		indexType := binary.LittleEndian.Uint32(p[0:4])
		buffer := vk.Buffer(binary.LittleEndian.Uint64(p[4:12]))
		offset := binary.LittleEndian.Uint64(p[12:20])
		rp.cb.CmdBindIndexBuffer(buffer, vk.DeviceSize(offset), vk.IndexType(indexType))

	case RecordDraw:
		rp.flushArguments()
		rp.cb.CmdDraw(
			binary.LittleEndian.Uint32(p[0:4]), binary.LittleEndian.Uint32(p[4:8]),
			binary.LittleEndian.Uint32(p[8:12]), binary.LittleEndian.Uint32(p[12:16]))

	case RecordDrawIndexed:
		rp.flushArguments()
		rp.cb.CmdDrawIndexed(
			binary.LittleEndian.Uint32(p[0:4]), binary.LittleEndian.Uint32(p[4:8]),
			binary.LittleEndian.Uint32(p[8:12]), readI32(p, 12), binary.LittleEndian.Uint32(p[16:20]))

	case RecordDispatch:
		rp.flushArguments()
		rp.cb.CmdDispatch(
			int(binary.LittleEndian.Uint32(p[0:4])), int(binary.LittleEndian.Uint32(p[4:8])), int(binary.LittleEndian.Uint32(p[8:12])))

	case RecordDrawMeshTasks, RecordTraceRays, RecordBuildBLAS, RecordBuildTLAS, RecordSetArgumentTLAS:
		return fmt.Errorf("encoder: record type %d has no replay target in this binding (see pipelinecache's VariantRayTracing note)", t)

	case RecordSetArgumentData:
		return rp.recordArgumentData(p)

	case RecordSetArgumentTexture:
		return rp.recordArgumentTexture(p)

	case RecordSetArgumentImage:
		return rp.recordArgumentImage(p)

	case RecordBindArgumentBuffer:
		return rp.recordArgumentBuffer(p)

	case RecordWriteToBuffer:
		target := vk.Buffer(binary.LittleEndian.Uint64(p[0:8]))
		dstOffset := binary.LittleEndian.Uint64(p[8:16])
		src := vk.Buffer(binary.LittleEndian.Uint64(p[16:24]))
		srcOffset := binary.LittleEndian.Uint64(p[24:32])
		size := binary.LittleEndian.Uint64(p[32:40])
		rp.cb.CmdCopyBuffer(src, target, []vk.BufferCopy{{
			SrcOffset: vk.DeviceSize(srcOffset),
			DstOffset: vk.DeviceSize(dstOffset),
			Size:      vk.DeviceSize(size),
		}})

	case RecordWriteToImage:
		target := vk.Image(binary.LittleEndian.Uint64(p[0:8]))
		mipLevel := binary.LittleEndian.Uint32(p[8:12])
		extent := vk.Extent3D{
			Width:  binary.LittleEndian.Uint32(p[12:16]),
			Height: binary.LittleEndian.Uint32(p[16:20]),
			Depth:  binary.LittleEndian.Uint32(p[20:24]),
		}
		src := vk.Buffer(binary.LittleEndian.Uint64(p[24:32]))
		srcOffset := binary.LittleEndian.Uint64(p[32:40])
		rp.cb.CmdCopyBufferToImage(src, target, vk.ImageLayoutTransferDstOptimal, []vk.BufferImageCopy{{
			BufferOffset: vk.DeviceSize(srcOffset),
			ImageSubresource: vk.ImageSubresourceLayers{
				AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
				MipLevel:   mipLevel,
				LayerCount: 1,
			},
			ImageExtent: extent,
		}})

	default:
		return fmt.Errorf("encoder: unknown record type %d", t)
	}
	return nil
}

// recordArgumentData decodes one set_argument_data record and stages the
// resulting vk.DescriptorBufferInfo into this replayer's pending array for
// its set, to be applied in one template call by flushArguments. A binding
// with no template slot (not buffer-backed -- see pipelinecache.SetLayout)
// is silently skipped; image arguments arrive as set_argument_texture/
// set_argument_image records instead, which flushArguments writes through
// backend.DescriptorSet's manual path.
func (rp *replayer) recordArgumentData(p []byte) error {
	if rp.current == nil {
		return fmt.Errorf("encoder: set_argument_data record with no pipeline bound")
	}
	setIndex := binary.LittleEndian.Uint32(p[0:4])
	binding := binary.LittleEndian.Uint32(p[4:8])
	buffer := vk.Buffer(binary.LittleEndian.Uint64(p[8:16]))
	offset := binary.LittleEndian.Uint64(p[16:24])
	size := binary.LittleEndian.Uint64(p[24:32])

	layout := rp.current.SetLayouts
	var sl *pipelinecache.SetLayout
	for _, l := range layout {
		if l.SetIndex == setIndex {
			sl = l
			break
		}
	}
	if sl == nil {
		return nil
	}
	slot, ok := sl.SlotFor(binding)
	if !ok {
		return nil
	}

	if rp.pending == nil {
		rp.pending = make(map[uint32][]vk.DescriptorBufferInfo)
	}
	if rp.pending[setIndex] == nil {
		rp.pending[setIndex] = make([]vk.DescriptorBufferInfo, sl.EntryCount())
	}
	rp.pending[setIndex][slot] = vk.DescriptorBufferInfo{
		Buffer: buffer,
		Offset: vk.DeviceSize(offset),
		Range:  vk.DeviceSize(size),
	}
	rp.markDirty(setIndex)
	return nil
}

// recordArgumentTexture decodes one set_argument_texture record and
// accumulates the resulting combined-image-sampler write for its set, to
// be applied by flushArguments alongside (or instead of) any buffer-backed
// template writes the same set also has pending.
func (rp *replayer) recordArgumentTexture(p []byte) error {
	if rp.current == nil {
		return fmt.Errorf("encoder: set_argument_texture record with no pipeline bound")
	}
	setIndex := binary.LittleEndian.Uint32(p[0:4])
	binding := binary.LittleEndian.Uint32(p[4:8])
	view := vk.ImageView(binary.LittleEndian.Uint64(p[8:16]))
	sampler := vk.Sampler(binary.LittleEndian.Uint64(p[16:24]))
	layout := vk.ImageLayout(binary.LittleEndian.Uint32(p[24:28]))

	rp.setPendingImage(setIndex, pendingImageWrite{
		binding: binding,
		dtype:   vk.DescriptorTypeCombinedImageSampler,
		view:    view,
		sampler: sampler,
		layout:  layout,
	})
	return nil
}

// recordArgumentImage decodes one set_argument_image record -- the same
// shape as set_argument_texture, minus the sampler.
func (rp *replayer) recordArgumentImage(p []byte) error {
	if rp.current == nil {
		return fmt.Errorf("encoder: set_argument_image record with no pipeline bound")
	}
	setIndex := binary.LittleEndian.Uint32(p[0:4])
	binding := binary.LittleEndian.Uint32(p[4:8])
	view := vk.ImageView(binary.LittleEndian.Uint64(p[8:16]))
	layout := vk.ImageLayout(binary.LittleEndian.Uint32(p[16:20]))
	dtype := vk.DescriptorType(binary.LittleEndian.Uint32(p[20:24]))

	rp.setPendingImage(setIndex, pendingImageWrite{
		binding: binding,
		dtype:   dtype,
		view:    view,
		layout:  layout,
	})
	return nil
}

// recordArgumentBuffer decodes one bind_argument_buffer record and
// accumulates the resulting direct buffer-descriptor write for its set.
func (rp *replayer) recordArgumentBuffer(p []byte) error {
	if rp.current == nil {
		return fmt.Errorf("encoder: bind_argument_buffer record with no pipeline bound")
	}
	setIndex := binary.LittleEndian.Uint32(p[0:4])
	binding := binary.LittleEndian.Uint32(p[4:8])
	buffer := vk.Buffer(binary.LittleEndian.Uint64(p[8:16]))
	offset := binary.LittleEndian.Uint64(p[16:24])
	size := binary.LittleEndian.Uint64(p[24:32])
	dtype := vk.DescriptorType(binary.LittleEndian.Uint32(p[32:36]))

	if rp.pendingBuffers == nil {
		rp.pendingBuffers = make(map[uint32][]pendingBufferWrite)
	}
	list := rp.pendingBuffers[setIndex]
	w := pendingBufferWrite{binding: binding, dtype: dtype, buffer: buffer, offset: offset, size: size}
	replaced := false
	for i := range list {
		if list[i].binding == binding {
			list[i] = w
			replaced = true
			break
		}
	}
	if !replaced {
		list = append(list, w)
	}
	rp.pendingBuffers[setIndex] = list
	rp.markDirty(setIndex)
	return nil
}

// setPendingImage records or replaces w in the set's pending image-write
// list, keyed by binding, and marks the set dirty.
func (rp *replayer) setPendingImage(setIndex uint32, w pendingImageWrite) {
	if rp.pendingImages == nil {
		rp.pendingImages = make(map[uint32][]pendingImageWrite)
	}
	list := rp.pendingImages[setIndex]
	for i := range list {
		if list[i].binding == w.binding {
			list[i] = w
			rp.pendingImages[setIndex] = list
			rp.markDirty(setIndex)
			return
		}
	}
	rp.pendingImages[setIndex] = append(list, w)
	rp.markDirty(setIndex)
}

func (rp *replayer) markDirty(setIndex uint32) {
	if rp.dirty == nil {
		rp.dirty = make(map[uint32]bool)
	}
	rp.dirty[setIndex] = true
}

// flushArguments applies every dirty set's pending argument writes --
// buffer-backed ones through its update template, image- and
// direct-buffer-backed ones through backend.DescriptorSet's manual write
// path -- and binds the resulting descriptor sets, then clears the dirty
// marks (the pending data itself is left in place -- a later draw against
// the same pipeline that touches none of a set's bindings still sees its
// last-written values rather than garbage).
func (rp *replayer) flushArguments() {
	if rp.current == nil || len(rp.dirty) == 0 {
		return
	}
	for setIndex := range rp.dirty {
		sl := rp.setLayout(setIndex)
		set := rp.current.DescriptorSetFor(setIndex)
		if sl == nil || set == nil {
			continue
		}
		sl.ApplyArguments(rp.current.Layout.Device, set.VKDescriptorSet, rp.pending[setIndex])
		rp.applyManualWrites(setIndex, set)
		rp.cb.CmdBindDescriptorSets(vk.PipelineBindPointGraphics, rp.current.Layout, int(setIndex), set)
	}
	rp.dirty = make(map[uint32]bool)
}

// applyManualWrites pushes setIndex's accumulated image and direct-buffer
// argument writes into set through backend.DescriptorSet's write path --
// the one a descriptor update template can't cover, since its flat array
// holds only vk.DescriptorBufferInfo entries (see pipelinecache.SetLayout).
func (rp *replayer) applyManualWrites(setIndex uint32, set *backend.DescriptorSet) {
	imgs := rp.pendingImages[setIndex]
	bufs := rp.pendingBuffers[setIndex]
	if len(imgs) == 0 && len(bufs) == 0 {
		return
	}
	manual := &backend.DescriptorSet{Device: rp.current.Layout.Device, VKDescriptorSet: set.VKDescriptorSet}
	for _, w := range imgs {
		if w.dtype == vk.DescriptorTypeCombinedImageSampler {
			manual.AddCombinedImageSampler(int(w.binding), w.layout, w.view, w.sampler)
		} else {
			manual.AddImage(int(w.binding), w.dtype, w.layout, w.view)
		}
	}
	for _, w := range bufs {
		manual.AddBuffer(int(w.binding), w.dtype, &backend.Buffer{VKBuffer: w.buffer, Size: w.size}, int(w.offset))
	}
	manual.Write()
}

func (rp *replayer) setLayout(setIndex uint32) *pipelinecache.SetLayout {
	for _, l := range rp.current.SetLayouts {
		if l.SetIndex == setIndex {
			return l
		}
	}
	return nil
}

type reader struct {
	buf []byte
	pos int
}

func (r *reader) done() bool { return r.pos >= len(r.buf) }

func (r *reader) next() (recType byte, payload []byte, err error) {
	if r.pos+5 > len(r.buf) {
		return 0, nil, fmt.Errorf("encoder: truncated record header at byte %d", r.pos)
	}
	recType = r.buf[r.pos]
	size := binary.LittleEndian.Uint32(r.buf[r.pos+1 : r.pos+5])
	r.pos += 5
	if r.pos+int(size) > len(r.buf) {
		return 0, nil, fmt.Errorf("encoder: truncated record payload at byte %d", r.pos)
	}
	payload = r.buf[r.pos : r.pos+int(size)]
	r.pos += int(size)
	return recType, payload, nil
}

func readF32(b []byte, off int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b[off : off+4]))
}

func readI32(b []byte, off int) int32 {
	return int32(binary.LittleEndian.Uint32(b[off : off+4]))
}
