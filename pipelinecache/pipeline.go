package pipelinecache

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/neshume/island/backend"
	"github.com/neshume/island/errs"
	"github.com/neshume/island/internal/rlog"
	"github.com/neshume/island/shadercache"
	vk "github.com/vulkan-go/vulkan"
	"golang.org/x/sync/singleflight"
)

// Variant distinguishes the three pipeline kinds that share the same
// cache: graphics, compute, and ray-tracing.
type Variant uint8

const (
	VariantGraphics Variant = iota
	VariantCompute
	VariantRayTracing
)

// FixedFunctionState is the portion of a PipelineStateObject that is not
// derived from shader stages or descriptor layouts: rasterization,
// blending, depth/stencil, input assembly, multisample, and an optional
// explicit vertex input description. It is hashed as an opaque byte blob
// by the caller (island/rendergraph, which owns the concrete
// backend.GraphicsPipelineConfig construction) and passed in pre-hashed,
// since only the caller knows which fields are load-bearing for a given
// variant.
type FixedFunctionState struct {
	Hash   uint64
	Config *backend.GraphicsPipelineConfig // nil for compute/ray-tracing
}

// Description is everything needed to build or look up one pipeline.
type Description struct {
	Variant       Variant
	Stages        []*shadercache.Module
	SetLayouts    []*SetLayout
	FixedFunction FixedFunctionState
	RenderPassSig uint64        // zero for compute/ray-tracing
	Extent        vk.Extent2D   // viewport/scissor extent, graphics only
	Layout        *backend.PipelineLayout
}

// Pipeline is the cached value: the live API object plus the generation
// snapshot of every shader stage it was built from, so a caller can detect
// staleness after a hot-reload bumps a module's generation counter and
// request a fresh build (which naturally lands under a new key, since the
// new bytecode's digest differs). SetLayouts, DescriptorSets and Layout let
// island/encoder's replay step resolve a bound pipeline straight back to
// the descriptor sets and update templates it needs to apply argument
// writes, given only the key recorded by BindPipeline -- without these, a
// RecordSetArgumentData has no set to apply to at replay time.
type Pipeline struct {
	Key              uint64
	Variant          Variant
	VKPipeline       vk.Pipeline
	SetLayouts       []*SetLayout
	DescriptorSets   []*backend.DescriptorSet
	Layout           *backend.PipelineLayout
	stageGenerations []uint64
}

// DescriptorSetFor returns the live descriptor set allocated for setIndex,
// or nil if this pipeline declared no such set.
func (p *Pipeline) DescriptorSetFor(setIndex uint32) *backend.DescriptorSet {
	for i, l := range p.SetLayouts {
		if l.SetIndex == setIndex {
			return p.DescriptorSets[i]
		}
	}
	return nil
}

// StillFresh reports whether every shader stage this pipeline was built
// from is still at the generation it was built against.
func (p *Pipeline) StillFresh(stages []*shadercache.Module) bool {
	if len(stages) != len(p.stageGenerations) {
		return false
	}
	for i, s := range stages {
		if s.Generation() != p.stageGenerations[i] {
			return false
		}
	}
	return true
}

// descriptorPoolCapacity bounds how many sets and buffer-descriptor slots
// this cache's shared pool can hand out over its lifetime. A pipeline
// cache exists for the process lifetime of one device, so this is sized
// generously rather than grown dynamically -- growing a vk.DescriptorPool
// after creation isn't possible, only resetting it wholesale.
const descriptorPoolCapacity = 4096

// Cache is the PipelineCache: absent keys trigger synchronous pipeline
// creation, and at-most-one build per key is guaranteed by per-key
// locking, implemented with singleflight rather than a hand-rolled mutex
// table.
type Cache struct {
	device   *backend.Device
	vkCache  *backend.PipelineCache
	descPool *backend.DescriptorPool

	mu    sync.RWMutex
	byKey map[uint64]*Pipeline
	group singleflight.Group

	builds uint64 // diagnostic counter, exposed via Builds() for tests
}

func NewCache(device *backend.Device) (*Cache, error) {
	vkCache, err := device.CreatePipelineCache()
	if err != nil {
		return nil, err
	}
	descPool, err := newDescriptorPool(device)
	if err != nil {
		return nil, err
	}
	return &Cache{device: device, vkCache: vkCache, descPool: descPool, byKey: make(map[uint64]*Pipeline)}, nil
}

func newDescriptorPool(device *backend.Device) (*backend.DescriptorPool, error) {
	pool := device.NewDescriptorPool()
	pool.AddPoolSize(vk.DescriptorTypeUniformBuffer, descriptorPoolCapacity)
	pool.AddPoolSize(vk.DescriptorTypeStorageBuffer, descriptorPoolCapacity)
	pool.AddPoolSize(vk.DescriptorTypeCombinedImageSampler, descriptorPoolCapacity)
	return device.CreateDescriptorPool(pool, descriptorPoolCapacity)
}

// NewCacheFromDisk behaves like NewCache but first looks for a
// previously persisted blob under dir, named after this device's
// PipelineCacheKey, and seeds the new vk.PipelineCache from it so
// pipelines built in a prior run don't need recompiling from source. A
// missing or unreadable blob is not an error -- it just means this run
// starts cold.
func NewCacheFromDisk(device *backend.Device, dir string) (*Cache, error) {
	path := blobPath(dir, device.PhysicalDevice)
	blob, err := os.ReadFile(path)
	if err != nil {
		blob = nil
	} else {
		rlog.Infof("pipelinecache: loaded persisted cache blob %s (%d bytes)", path, len(blob))
	}

	vkCache, err := device.CreatePipelineCacheWithInitialData(blob)
	if err != nil {
		return nil, err
	}
	descPool, err := newDescriptorPool(device)
	if err != nil {
		return nil, err
	}
	return &Cache{device: device, vkCache: vkCache, descPool: descPool, byKey: make(map[uint64]*Pipeline)}, nil
}

// Destroy releases the shared descriptor pool every cached Pipeline's
// descriptor sets were allocated from. Individual pipelines and their
// descriptor set layouts outlive the vk.PipelineCache object itself and are
// not released here -- the driver tears them down with the device.
func (c *Cache) Destroy() {
	c.descPool.Destroy()
}

// SaveToDisk writes the driver's current serialized cache contents to
// dir, named after the device's PipelineCacheKey, for NewCacheFromDisk
// to pick up on a later run.
func (c *Cache) SaveToDisk(dir string) error {
	data, err := c.vkCache.Data()
	if err != nil {
		return fmt.Errorf("pipelinecache: reading cache data: %w", err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(blobPath(dir, c.device.PhysicalDevice), data, 0o644)
}

func blobPath(dir string, pd *backend.PhysicalDevice) string {
	return filepath.Join(dir, pd.PipelineCacheKey()+".bin")
}

// Builds returns the number of pipelines actually constructed (as opposed
// to served from cache) over this Cache's lifetime -- repeated equal
// requests should hold this at 1.
func (c *Cache) Builds() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.builds
}

// Lookup returns the pipeline already built for key, if any -- used by
// island/encoder's replay step to resolve a BindPipeline record back to a
// live vk.Pipeline without re-deriving the key from a Description.
func (c *Cache) Lookup(key uint64) (*Pipeline, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.byKey[key]
	return p, ok
}

func (c *Cache) key(d Description) uint64 {
	digests := make([][32]byte, len(d.Stages))
	for i, s := range d.Stages {
		digests[i] = s.Digest
	}
	sort.Slice(digests, func(i, j int) bool { return bytes.Compare(digests[i][:], digests[j][:]) < 0 })
	layoutHashes := make([]uint64, len(d.SetLayouts))
	for i, l := range d.SetLayouts {
		layoutHashes[i] = l.Hash
	}
	return hashPipelineKey(d.FixedFunction.Hash, digests, layoutHashes, d.RenderPassSig)
}

// GetOrBuild returns the cached Pipeline for d's content hash, building it
// if absent. A cached entry whose shader stages have gone stale (a
// hot-reload bumped their generation) is treated the same as a miss by
// the caller recomputing d with the module's new bytecode/digest before
// calling GetOrBuild again -- Description.Stages is expected to reflect
// current state, not a snapshot from an earlier frame.
func (c *Cache) GetOrBuild(d Description) (*Pipeline, error) {
	key := c.key(d)

	c.mu.RLock()
	if p, ok := c.byKey[key]; ok {
		c.mu.RUnlock()
		return p, nil
	}
	c.mu.RUnlock()

	v, err, _ := c.group.Do(keyString(key), func() (interface{}, error) {
		c.mu.RLock()
		if p, ok := c.byKey[key]; ok {
			c.mu.RUnlock()
			return p, nil
		}
		c.mu.RUnlock()

		built, err := c.build(key, d)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.byKey[key] = built
		c.builds++
		c.mu.Unlock()
		return built, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Pipeline), nil
}

func (c *Cache) build(key uint64, d Description) (*Pipeline, error) {
	gens := make([]uint64, len(d.Stages))
	for i, s := range d.Stages {
		gens[i] = s.Generation()
	}

	var vkPipeline vk.Pipeline
	var err error

	switch d.Variant {
	case VariantGraphics:
		vkPipeline, err = c.buildGraphics(d)
	case VariantCompute:
		vkPipeline, err = c.buildCompute(d)
	case VariantRayTracing:
		vkPipeline, err = c.buildRayTracing(d)
	}
	if err != nil {
		return nil, errs.Pipeline(errs.ShaderCompileFailed, keyString(key), err)
	}

	descSets := make([]*backend.DescriptorSet, len(d.SetLayouts))
	for i, l := range d.SetLayouts {
		set, err := c.descPool.Allocate(l.VKLayout)
		if err != nil {
			return nil, errs.Pipeline(errs.LayoutMismatch, keyString(key), err)
		}
		descSets[i] = set
	}

	return &Pipeline{
		Key:              key,
		Variant:          d.Variant,
		VKPipeline:       vkPipeline,
		SetLayouts:       d.SetLayouts,
		DescriptorSets:   descSets,
		Layout:           d.Layout,
		stageGenerations: gens,
	}, nil
}

func (c *Cache) buildGraphics(d Description) (vk.Pipeline, error) {
	if d.FixedFunction.Config == nil {
		return nil, errs.Pipeline(errs.LayoutMismatch, "", nil)
	}
	cfg := d.FixedFunction.Config
	cfg.PipelineLayout = d.Layout
	pipeline, err := c.device.CreateGraphicsPipeline(c.vkCache, d.Extent, cfg)
	if err != nil {
		return nil, err
	}
	return pipeline.VKPipeline, nil
}

func (c *Cache) buildCompute(d Description) (vk.Pipeline, error) {
	if len(d.Stages) != 1 {
		return nil, errs.Pipeline(errs.LayoutMismatch, "", nil)
	}
	cp := &backend.ComputePipeline{}
	cp.SetPipelineLayout(d.Layout)
	cp.VKPipelineShaderStageCreateInfo = vk.PipelineShaderStageCreateInfo{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  vk.ShaderStageComputeBit,
		Module: d.Stages[0].VK,
		PName:  cStringEntryPoint,
	}
	if err := c.device.CreateComputePipelines(c.vkCache, cp); err != nil {
		return nil, err
	}
	return cp.VKPipeline, nil
}

// buildRayTracing would construct the shader-group indices a ray-tracing
// pipeline needs (raygen/miss/hit) and call the driver's ray-tracing
// pipeline creation entry point. github.com/vulkan-go/vulkan does not
// expose VK_KHR_ray_tracing_pipeline or VK_NV_ray_tracing; its generated
// surface predates both extensions. The VariantRayTracing key and the
// TraceRays/BuildBLAS/BuildTLAS encoder records are still
// modeled, so an application assembling a ray-tracing Description gets
// an explicit, typed failure here rather than a silent no-op or a call
// into a symbol that doesn't exist in the bound driver API.
func (c *Cache) buildRayTracing(d Description) (vk.Pipeline, error) {
	return nil, errs.Pipeline(errs.ShaderCompileFailed, "ray-tracing",
		fmt.Errorf("ray-tracing pipelines require VK_KHR_ray_tracing_pipeline, which github.com/vulkan-go/vulkan does not bind"))
}

var cStringEntryPoint = safeEntryPoint()

func safeEntryPoint() string {
	return "main\x00"
}
