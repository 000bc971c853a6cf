// Package island implements the frame-graph-driven rendering core: an
// application declares resources and passes into a Module each frame,
// and a Renderer compiles, records, and submits that module against a
// real Vulkan device through island/backend.
package island

import (
	"fmt"

	"github.com/neshume/island/backend"
	"github.com/neshume/island/config"
	"github.com/neshume/island/encoder"
	"github.com/neshume/island/errs"
	"github.com/neshume/island/internal/rlog"
	"github.com/neshume/island/pipelinecache"
	"github.com/neshume/island/rendergraph"
	"github.com/neshume/island/rhandle"
	"github.com/neshume/island/scratch"
	"github.com/neshume/island/shadercache"
	vk "github.com/vulkan-go/vulkan"
	"golang.org/x/sync/errgroup"
)

// frameState is the per-frames-in-flight bookkeeping the orchestrator
// cycles through: one command buffer, one retirement fence, and one
// scratch allocator pair per slot, so a frame N+FramesInFlight reuses
// slot N's resources only after slot N's fence has signaled. Encoders
// are not kept here -- a Module is rebuilt fresh every frame (its Pass
// pointers are new each time), so encoders are scoped to a single
// RenderFrame call instead of accumulating across frames.
type frameState struct {
	cmd     *backend.CommandBuffer
	fence   *backend.Fence
	scratch *scratch.FrameScratch

	// acquireSem is waited on by the frame's submission, signaled by
	// AcquireNextImage; renderSem is signaled by the submission and
	// waited on by present, so the swapchain never presents an image
	// the GPU is still writing to.
	acquireSem vk.Semaphore
	renderSem  vk.Semaphore
}

// Renderer owns the device-facing half of the frame lifecycle:
// swapchain acquire/present, per-frame command buffer and fence
// management, and driving one RenderModule through compile → setup →
// execute → replay → submit each frame.
type Renderer struct {
	cfg    config.Renderer
	device *backend.Device
	queue  *backend.Queue
	pool   *backend.CommandPool

	swapchain       *backend.Swapchain
	swapchainImages []*backend.Image
	swapchainViews  []*backend.ImageView
	swapchainHandle ResourceHandle

	pipelines  *pipelinecache.Cache
	setLayouts *pipelinecache.DescriptorSetLayoutCache
	shaders    *shadercache.Cache
	registry   *rhandle.Registry

	resources *backend.ResourceManager
	declared  map[rhandle.Handle]*declaredImage

	frames   []frameState
	frameIdx int
}

// declaredImage is the live allocation backing a non-swapchain resource
// a Module declared through rendergraph.ResourceInfo, lazily created the
// first time a frame's attachment view resolver needs it. pool is nil
// for a manually bound image (BindImage), since the Renderer does not
// own that allocation's lifetime.
type declaredImage struct {
	image *backend.Image
	view  *backend.ImageView
	pool  *backend.ImageResourcePool
}

// NewRenderer wires a Renderer around an already-initialized device,
// queue, and swapchain -- island/backend owns instance/device/surface
// setup, split from per-frame orchestration; the Renderer itself only
// owns what the frame orchestration loop needs.
func NewRenderer(cfg config.Renderer, device *backend.Device, queue *backend.Queue, queueFamily *backend.QueueFamily, sc *backend.Swapchain) (*Renderer, error) {
	pool, err := device.CreateCommandPool(queueFamily)
	if err != nil {
		return nil, fmt.Errorf("island: creating command pool: %w", err)
	}

	var pipelines *pipelinecache.Cache
	if cfg.PipelineCacheDir != "" {
		pipelines, err = pipelinecache.NewCacheFromDisk(device, cfg.PipelineCacheDir)
	} else {
		pipelines, err = pipelinecache.NewCache(device)
	}
	if err != nil {
		return nil, fmt.Errorf("island: creating pipeline cache: %w", err)
	}

	shaders := shadercache.New(device.VKDevice, nil)
	if cfg.HotReloadShaders {
		if err := shaders.EnableHotReload(); err != nil {
			return nil, fmt.Errorf("island: enabling shader hot-reload: %w", err)
		}
	}

	r := &Renderer{
		cfg:        cfg,
		device:     device,
		queue:      queue,
		pool:       pool,
		swapchain:  sc,
		pipelines:  pipelines,
		setLayouts: pipelinecache.NewDescriptorSetLayoutCache(device),
		shaders:    shaders,
		registry:   rhandle.NewRegistry(),
		resources:  device.CreateResourceManager(),
		declared:   make(map[rhandle.Handle]*declaredImage),
	}

	if err := r.resize(sc); err != nil {
		return nil, err
	}
	if err := r.initFrames(); err != nil {
		return nil, err
	}

	h, err := r.registry.ProduceHandle(rhandle.KindImage, "swapchain")
	if err != nil {
		return nil, err
	}
	r.swapchainHandle = ResourceHandle{h: h}

	rlog.Infof("island: renderer ready, %d frames in flight, swapchain %dx%d", cfg.FramesInFlight, sc.Extent.Width, sc.Extent.Height)
	return r, nil
}

// Registry exposes the Renderer's shared handle registry so an
// application can produce handles for resources outside a Module (e.g.
// persistent textures) using the same interning table passes resolve
// against.
func (r *Renderer) Registry() *rhandle.Registry { return r.registry }

// SwapchainHandle returns the handle a pass writes to present to screen.
func (r *Renderer) SwapchainHandle() ResourceHandle { return r.swapchainHandle }

// Pipelines exposes the Renderer's pipeline cache so an application can
// pre-warm pipelines outside the frame loop.
func (r *Renderer) Pipelines() *pipelinecache.Cache { return r.pipelines }

// SetLayouts exposes the Renderer's descriptor set layout cache, used to
// build the pipelinecache.Description.SetLayouts a pipeline with bound
// resources needs -- reflect a shader's stages with island/shadercache,
// group the result with pipelinecache.MergeBySet, then GetOrBuild one
// SetLayout per set index from here before calling Pipelines().GetOrBuild.
func (r *Renderer) SetLayouts() *pipelinecache.DescriptorSetLayoutCache { return r.setLayouts }

// Shaders exposes the Renderer's shader module cache so an application
// can compile vertex/fragment/compute stages to feed Pipelines().
func (r *Renderer) Shaders() *shadercache.Cache { return r.shaders }

// BindImage associates a live backend.Image with a non-swapchain handle
// so barriers touching it during replay can resolve a concrete vk.Image,
// and so the attachment view resolver uses this image instead of
// allocating one from the handle's declared ResourceInfo. Use this for a
// resource an application builds itself -- e.g. a texture staged through
// backend.Device.StageTextureFromDiskFit, passing &staged.Image since
// BindImage only needs the embedded vk.Image, not the staging wrapper
// around it; resources with no manual binding are allocated automatically
// from their DeclareResource info the first time a pass attaches them.
// SetInfo refuses any second binding for the same handle: a handle's
// info is fixed for the lifetime of its backing allocation.
func (r *Renderer) BindImage(h ResourceHandle, img *backend.Image) error {
	return r.registry.SetInfo(h.h, img)
}

// ensureDeclaredImage resolves h to an image view for attachment use,
// preferring a manually bound image (BindImage) and falling back to
// allocating one from the handle's ResourceInfo out of a dedicated
// ImageResourcePool sized for that resource alone.
func (r *Renderer) ensureDeclaredImage(h rhandle.Handle, info rendergraph.ResourceInfo) (*backend.ImageView, vk.Format, error) {
	if d, ok := r.declared[h]; ok {
		return d.view, d.image.VKFormat, nil
	}

	if bound, ok := r.registry.Info(h); ok {
		if img, ok := bound.(*backend.Image); ok {
			view, err := img.CreateImageView()
			if err != nil {
				return nil, 0, fmt.Errorf("island: creating view for bound resource %s: %w", h, err)
			}
			r.declared[h] = &declaredImage{image: img, view: view}
			return view, img.VKFormat, nil
		}
	}

	if !info.IsImage {
		return nil, 0, fmt.Errorf("island: resource %s has no declared image info", h)
	}

	bytesPerTexel := uint64(4)
	size := uint64(info.Extent.Width) * uint64(info.Extent.Height) * uint64(info.Extent.Depth) * bytesPerTexel
	if size == 0 {
		size = 1
	}

	pool, err := r.resources.AllocateImagePoolWithOptions(h.String(), size, vk.MemoryPropertyDeviceLocalBit, info.Usage, vk.SharingModeExclusive)
	if err != nil {
		return nil, 0, fmt.Errorf("island: allocating pool for resource %s: %w", h, err)
	}
	img, err := pool.AllocateImage(vk.Extent2D{Width: info.Extent.Width, Height: info.Extent.Height}, info.Format, vk.ImageTilingOptimal, info.Usage)
	if err != nil {
		return nil, 0, fmt.Errorf("island: allocating image for resource %s: %w", h, err)
	}

	aspect := vk.ImageAspectFlags(vk.ImageAspectColorBit)
	if info.Usage&vk.ImageUsageDepthStencilAttachmentBit != 0 {
		aspect = vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	}
	view, err := img.CreateImageViewWithAspectMask(aspect)
	if err != nil {
		return nil, 0, fmt.Errorf("island: creating view for resource %s: %w", h, err)
	}

	if err := r.registry.SetInfo(h, &img.Image); err != nil {
		return nil, 0, fmt.Errorf("island: registering allocated resource %s: %w", h, err)
	}
	r.declared[h] = &declaredImage{image: &img.Image, view: view, pool: pool}
	return view, img.VKFormat, nil
}

func (r *Renderer) resize(sc *backend.Swapchain) error {
	images, err := sc.GetImages()
	if err != nil {
		return fmt.Errorf("island: fetching swapchain images: %w", err)
	}
	views := make([]*backend.ImageView, len(images))
	for i, img := range images {
		v, err := img.CreateImageView()
		if err != nil {
			return fmt.Errorf("island: creating swapchain image view %d: %w", i, err)
		}
		views[i] = v
	}
	r.swapchain = sc
	r.swapchainImages = images
	r.swapchainViews = views
	return nil
}

func (r *Renderer) initFrames() error {
	r.frames = make([]frameState, r.cfg.FramesInFlight)
	cmds, err := r.pool.AllocateBuffers(r.cfg.FramesInFlight)
	if err != nil {
		return fmt.Errorf("island: allocating frame command buffers: %w", err)
	}
	for i := range r.frames {
		fence, err := r.device.CreateFence()
		if err != nil {
			return fmt.Errorf("island: creating frame fence %d: %w", i, err)
		}
		acquireSem, err := r.device.VKCreateSemaphore()
		if err != nil {
			return fmt.Errorf("island: creating frame acquire semaphore %d: %w", i, err)
		}
		renderSem, err := r.device.VKCreateSemaphore()
		if err != nil {
			return fmt.Errorf("island: creating frame render semaphore %d: %w", i, err)
		}
		deviceLocal := r.device.NewRingBuffer(vk.BufferUsageVertexBufferBit|vk.BufferUsageIndexBufferBit|vk.BufferUsageUniformBufferBit, true)
		staging := r.device.NewRingBuffer(vk.BufferUsageTransferSrcBit, true)
		if r.cfg.ScratchDeviceLocalInitial > 0 {
			if err := deviceLocal.Grow(r.cfg.ScratchDeviceLocalInitial); err != nil {
				return fmt.Errorf("island: sizing frame %d device-local scratch: %w", i, err)
			}
		}
		if r.cfg.ScratchStagingInitial > 0 {
			if err := staging.Grow(r.cfg.ScratchStagingInitial); err != nil {
				return fmt.Errorf("island: sizing frame %d staging scratch: %w", i, err)
			}
		}

		r.frames[i] = frameState{
			cmd:        cmds[i],
			fence:      fence,
			acquireSem: acquireSem,
			renderSem:  renderSem,
			scratch:    scratch.NewFrameScratch(deviceLocal, staging, r.cfg.ScratchDeviceLocalCeiling),
		}
		r.frames[i].scratch.DeviceLocal.Ceiling = r.cfg.ScratchDeviceLocalCeiling
		r.frames[i].scratch.Staging.Ceiling = r.cfg.ScratchStagingCeiling
	}
	return nil
}

// RenderFrame drives module through the full orchestration sequence:
// wait on this slot's retirement fence and reset it, reset its scratch
// rings, acquire a swapchain image, compile module into a Plan, run setup
// callbacks, run execute callbacks (concurrently, one goroutine and one
// Encoder per active pass), replay each pass's recorded stream with
// barriers interleaved, submit, and present.
func (r *Renderer) RenderFrame(module *Module) error {
	slot := &r.frames[r.frameIdx]

	if err := r.device.WaitForFences(true, 0, slot.fence); err != nil {
		return errs.Frame(errs.Timeout, "wait-fence", err)
	}
	if err := r.device.ResetFences(slot.fence); err != nil {
		return errs.Frame(errs.DeviceLost, "reset-fence", err)
	}
	slot.scratch.Reset()

	var imageIndex uint32
	res := vk.AcquireNextImage(r.device.VKDevice, r.swapchain.VKSwapchain, vk.MaxUint64, slot.acquireSem, vk.NullFence, &imageIndex)
	if res == vk.ErrorOutOfDate {
		return errs.Frame(errs.SwapchainOutOfDate, "acquire", nil)
	}
	if err := vk.Error(res); err != nil {
		return errs.Frame(errs.DeviceLost, "acquire", err)
	}

	views := func(h rhandle.Handle) (*backend.ImageView, vk.Format, error) {
		if h == r.swapchainHandle.h {
			return r.swapchainViews[imageIndex], r.swapchain.Format, nil
		}
		return r.ensureDeclaredImage(h, module.inner.Resources[h])
	}

	plan, err := rendergraph.Compile(r.device, module.inner, r.swapchainHandle.h, views)
	if err != nil {
		return err
	}

	active := r.runSetup(plan)
	encoders := make(map[*rendergraph.Pass]*encoder.Encoder, len(active))
	if err := r.runExecute(slot, active, encoders); err != nil {
		return err
	}

	if err := slot.cmd.Reset(); err != nil {
		return err
	}
	if err := slot.cmd.Begin(); err != nil {
		return err
	}
	if err := r.replay(slot, plan, active, encoders, r.swapchainImages[imageIndex]); err != nil {
		return err
	}
	if err := slot.cmd.End(); err != nil {
		return err
	}

	if err := r.queue.SubmitSync(slot.fence, slot.acquireSem, vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit), slot.renderSem, slot.cmd); err != nil {
		return errs.Frame(errs.DeviceLost, "submit", err)
	}

	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{slot.renderSem},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{r.swapchain.VKSwapchain},
		PImageIndices:      []uint32{imageIndex},
	}
	presentRes := vk.QueuePresent(r.queue.VKQueue, &presentInfo)
	if presentRes == vk.ErrorOutOfDate || presentRes == vk.Suboptimal {
		return errs.Frame(errs.SwapchainOutOfDate, "present", nil)
	}
	if err := vk.Error(presentRes); err != nil {
		return errs.Frame(errs.DeviceLost, "present", err)
	}

	r.frameIdx = (r.frameIdx + 1) % len(r.frames)
	return nil
}

// runSetup invokes each pass's Setup callback (step 4), dropping passes
// that reject themselves for this frame from the active set without
// mutating the compiled Plan.
func (r *Renderer) runSetup(plan *rendergraph.Plan) []*rendergraph.CompiledPass {
	active := make([]*rendergraph.CompiledPass, 0, len(plan.Passes))
	for _, cp := range plan.Passes {
		if cp.Setup != nil && !cp.Setup() {
			continue
		}
		active = append(active, cp)
	}
	return active
}

// runExecute invokes each active pass's Execute callback (step 5). The
// Renderer runs the whole active set through an errgroup, each pass
// recording into its own Encoder; the order callbacks finish in does not
// matter, since replay walks the compiled Plan's order. The only state
// the encoders share is the slot's scratch rings, whose Allocate takes
// the ring's own lock.
func (r *Renderer) runExecute(slot *frameState, active []*rendergraph.CompiledPass, encoders map[*rendergraph.Pass]*encoder.Encoder) error {
	var g errgroup.Group
	for _, cp := range active {
		cp := cp
		if cp.Execute == nil {
			continue
		}
		enc := encoder.New(cp.Pass, slot.scratch)
		encoders[cp.Pass] = enc
		g.Go(func() error {
			cp.Execute(enc)
			return nil
		})
	}
	return g.Wait()
}

// replay interleaves each pass's recorded barrier set (computed once for
// the whole plan) with its command stream, then replays the stream
// itself into the frame's single command buffer: adjacent sync-chain
// entries materialize a Barrier that gets applied right before the pass
// that needs it runs.
func (r *Renderer) replay(slot *frameState, plan *rendergraph.Plan, active []*rendergraph.CompiledPass, encoders map[*rendergraph.Pass]*encoder.Encoder, swapchainImage *backend.Image) error {
	barriersBefore := make(map[int][]rendergraph.Barrier)
	for _, b := range plan.Barriers {
		barriersBefore[b.BeforePassIdx] = append(barriersBefore[b.BeforePassIdx], b)
	}

	indexOf := make(map[*rendergraph.Pass]int, len(plan.Passes))
	for i, cp := range plan.Passes {
		indexOf[cp.Pass] = i
	}

	for _, cp := range active {
		idx := indexOf[cp.Pass]
		for _, b := range barriersBefore[idx] {
			r.applyBarrier(slot, b, swapchainImage)
		}

		if cp.VKRenderPass != nil {
			slot.cmd.CmdBeginRenderPass(cp.VKRenderPass, cp.VKFramebuffer, vk.Extent2D{Width: cp.Width, Height: cp.Height}, nil)
		}

		enc := encoders[cp.Pass]
		if enc != nil {
			if err := encoder.Replay(slot.cmd, enc.Bytes(), r.pipelines); err != nil {
				return fmt.Errorf("island: replaying pass %q: %w", cp.Name, err)
			}
		}

		if cp.VKRenderPass != nil {
			slot.cmd.CmdEndRenderPass()
		}
	}
	return nil
}

// applyBarrier materializes one sync-chain Barrier as a pipeline
// barrier. Image handles resolve to a live vk.Image through
// the resource registry's declared info, except the swapchain handle
// whose concrete image depends on this frame's acquire result and so is
// passed in directly.
func (r *Renderer) applyBarrier(slot *frameState, b rendergraph.Barrier, swapchainImage *backend.Image) {
	switch b.Handle.Kind() {
	case rhandle.KindImage:
		barrier := vk.ImageMemoryBarrier{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       vk.AccessFlags(b.SrcAccess),
			DstAccessMask:       vk.AccessFlags(b.DstAccess),
			OldLayout:           b.OldLayout,
			NewLayout:           b.NewLayout,
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
				LevelCount: 1,
				LayerCount: 1,
			},
		}
		if b.Handle == r.swapchainHandle.h {
			barrier.Image = swapchainImage.VKImage
		} else if img := r.resolveDeclaredImage(b.Handle); img != nil {
			barrier.Image = img.VKImage
		}
		slot.cmd.CmdPipelineBarrier(b.SrcStage, b.DstStage, []vk.ImageMemoryBarrier{barrier}, nil)
	default:
		bufBarrier := vk.BufferMemoryBarrier{
			SType:               vk.StructureTypeBufferMemoryBarrier,
			SrcAccessMask:       vk.AccessFlags(b.SrcAccess),
			DstAccessMask:       vk.AccessFlags(b.DstAccess),
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		}
		slot.cmd.CmdPipelineBarrier(b.SrcStage, b.DstStage, nil, []vk.BufferMemoryBarrier{bufBarrier})
	}
}

// resolveDeclaredImage looks up the live backend.Image backing h, either
// bound by the application through BindImage or allocated automatically
// from its declared ResourceInfo, for barriers against resources other
// than the swapchain.
func (r *Renderer) resolveDeclaredImage(h rhandle.Handle) *backend.Image {
	if d, ok := r.declared[h]; ok {
		return d.image
	}
	info, ok := r.registry.Info(h)
	if !ok {
		return nil
	}
	img, _ := info.(*backend.Image)
	return img
}

// Destroy releases the Renderer's own resources. It does not own the
// device, queue, or swapchain passed to NewRenderer.
func (r *Renderer) Destroy() {
	if r.cfg.PipelineCacheDir != "" {
		if err := r.pipelines.SaveToDisk(r.cfg.PipelineCacheDir); err != nil {
			rlog.Warnf("island: saving pipeline cache to disk: %v", err)
		}
	}
	r.shaders.Close()
	r.pipelines.Destroy()
	for _, f := range r.frames {
		f.fence.Destroy()
		r.device.VKDestroySemaphore(f.acquireSem)
		r.device.VKDestroySemaphore(f.renderSem)
		f.scratch.DeviceLocal.Backing.(*backend.RingBuffer).Destroy()
		f.scratch.Staging.Backing.(*backend.RingBuffer).Destroy()
	}
	for _, v := range r.swapchainViews {
		v.Destroy()
	}
	for _, d := range r.declared {
		d.view.Destroy()
	}
	r.resources.Destroy()
	r.pool.Destroy()
}
