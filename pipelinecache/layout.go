package pipelinecache

import (
	"fmt"
	"sort"
	"sync"
	"unsafe"

	"github.com/neshume/island/backend"
	"github.com/neshume/island/errs"
	"github.com/neshume/island/shadercache"
	vk "github.com/vulkan-go/vulkan"
	"golang.org/x/sync/singleflight"
)

// descriptorBufferInfoSize is the stride between consecutive
// vk.DescriptorBufferInfo entries in the flat array a descriptor update
// template writes from; computed once rather than hard-coded so it tracks
// whatever layout the bound vulkan-go release generates for the struct.
var descriptorBufferInfoSize = uint64(unsafe.Sizeof(vk.DescriptorBufferInfo{}))

// templateEntry records where one buffer-backed binding lands in the flat
// vk.DescriptorBufferInfo array GetOrBuild's caller fills in before calling
// ApplyArguments -- the binding number a replay-time write is keyed by, and
// its slot index in that array.
type templateEntry struct {
	binding uint32
	slot    int
}

// SetLayout is the cached value for one descriptor set: the API layout
// object, the update template used to apply a batch of argument writes in
// one call (a memcpy followed by one template application per set), and
// the canonical (sorted) binding list it was built from. Only
// buffer-backed bindings (uniform/storage buffers) get a template slot --
// combined-image-sampler and other non-buffer bindings are written through
// backend.DescriptorSet's manual path instead, since a template's client
// memory layout can't mix vk.DescriptorBufferInfo and vk.DescriptorImageInfo
// entries without a second, parallel array this cache does not yet build.
type SetLayout struct {
	SetIndex         uint32
	Bindings         []shadercache.BindingInfo
	Hash             uint64
	VKLayout         *backend.DescriptorSetLayout
	VKUpdateTemplate vk.DescriptorUpdateTemplate
	hasTemplate      bool
	entries          []templateEntry
}

// SlotFor returns the index a binding's vk.DescriptorBufferInfo belongs at
// in the flat array ApplyArguments expects, or ok == false if binding has
// no template slot (not a buffer-backed binding in this set).
func (l *SetLayout) SlotFor(binding uint32) (int, bool) {
	for _, e := range l.entries {
		if e.binding == binding {
			return e.slot, true
		}
	}
	return 0, false
}

// EntryCount is the length of the flat vk.DescriptorBufferInfo array
// ApplyArguments expects for this set.
func (l *SetLayout) EntryCount() int { return len(l.entries) }

// DescriptorSetLayoutCache interns descriptor set layouts keyed by the
// content hash of their canonicalized binding list. Merging rule:
// bindings from different shader stages at the same (set, binding) OR
// their stage masks together; if their type, count or range disagree, the
// merge fails with a PipelineError{BindingConflict}.
type DescriptorSetLayoutCache struct {
	device *backend.Device

	mu      sync.RWMutex
	byHash  map[uint64]*SetLayout
	group   singleflight.Group
}

func NewDescriptorSetLayoutCache(device *backend.Device) *DescriptorSetLayoutCache {
	return &DescriptorSetLayoutCache{device: device, byHash: make(map[uint64]*SetLayout)}
}

// MergeBySet groups a flat reflected binding list (pooled across every
// shader stage in a pipeline) by set index, merging duplicate
// (set, binding) entries across stages.
func MergeBySet(all []shadercache.BindingInfo) (map[uint32][]shadercache.BindingInfo, error) {
	bySet := make(map[uint32]map[uint32]shadercache.BindingInfo)
	for _, b := range all {
		set, binding := b.SetIndex(), b.Binding()
		if bySet[set] == nil {
			bySet[set] = make(map[uint32]shadercache.BindingInfo)
		}
		existing, ok := bySet[set][binding]
		if !ok {
			bySet[set][binding] = b
			continue
		}
		if existing.Type() != b.Type() || existing.Count() != b.Count() || existing.Range() != b.Range() {
			return nil, errs.Pipeline(errs.BindingConflict,
				fmt.Sprintf("set=%d binding=%d", set, binding), nil)
		}
		bySet[set][binding] = existing.WithStageBits(b.StageBits())
	}

	out := make(map[uint32][]shadercache.BindingInfo, len(bySet))
	for set, m := range bySet {
		list := make([]shadercache.BindingInfo, 0, len(m))
		for _, b := range m {
			list = append(list, b)
		}
		shadercache.SortBindings(list)
		out[set] = list
	}
	return out, nil
}

// GetOrBuild returns the cached SetLayout for the given (already sorted)
// binding list, building it exactly once even under concurrent callers
// requesting the same canonicalized sequence.
func (c *DescriptorSetLayoutCache) GetOrBuild(setIndex uint32, bindings []shadercache.BindingInfo) (*SetLayout, error) {
	h := hashBindings(bindings)

	c.mu.RLock()
	if l, ok := c.byHash[h]; ok {
		c.mu.RUnlock()
		return l, nil
	}
	c.mu.RUnlock()

	v, err, _ := c.group.Do(keyString(h), func() (interface{}, error) {
		c.mu.RLock()
		if l, ok := c.byHash[h]; ok {
			c.mu.RUnlock()
			return l, nil
		}
		c.mu.RUnlock()

		built, err := c.build(setIndex, bindings, h)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.byHash[h] = built
		c.mu.Unlock()
		return built, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*SetLayout), nil
}

func (c *DescriptorSetLayoutCache) build(setIndex uint32, bindings []shadercache.BindingInfo, hash uint64) (*SetLayout, error) {
	dsl := c.device.NewDescriptorSetLayout()
	for _, b := range bindings {
		dsl.AddBinding(vk.DescriptorSetLayoutBinding{
			Binding:         b.Binding(),
			DescriptorType:  b.Type().VKDescriptorType(),
			DescriptorCount: maxu32(b.Count(), 1),
			StageFlags:      vk.ShaderStageFlags(b.StageBits()),
		})
	}

	built, err := c.device.CreateDescriptorSetLayout(dsl)
	if err != nil {
		return nil, errs.Pipeline(errs.LayoutMismatch, keyString(hash), err)
	}

	entries := make([]templateEntry, 0, len(bindings))
	vkEntries := make([]vk.DescriptorUpdateTemplateEntry, 0, len(bindings))
	for _, b := range bindings {
		if !isBufferType(b.Type().VKDescriptorType()) {
			continue
		}
		slot := len(entries)
		entries = append(entries, templateEntry{binding: b.Binding(), slot: slot})
		vkEntries = append(vkEntries, vk.DescriptorUpdateTemplateEntry{
			DstBinding:      b.Binding(),
			DstArrayElement: 0,
			DescriptorCount: 1,
			DescriptorType:  b.Type().VKDescriptorType(),
			Offset:          uint(uint64(slot) * descriptorBufferInfoSize),
			Stride:          uint(descriptorBufferInfoSize),
		})
	}

	layout := &SetLayout{
		SetIndex: setIndex,
		Bindings: bindings,
		Hash:     hash,
		VKLayout: built,
		entries:  entries,
	}
	if len(vkEntries) == 0 {
		return layout, nil
	}

	createInfo := vk.DescriptorUpdateTemplateCreateInfo{
		SType:                      vk.StructureTypeDescriptorUpdateTemplateCreateInfo,
		DescriptorUpdateEntryCount: uint32(len(vkEntries)),
		PDescriptorUpdateEntries:   vkEntries,
		TemplateType:               vk.DescriptorUpdateTemplateTypeDescriptorSet,
		DescriptorSetLayout:        built.VKDescriptorSetLayout,
		PipelineBindPoint:          vk.PipelineBindPointGraphics,
		Set:                        setIndex,
	}
	var template vk.DescriptorUpdateTemplate
	if err := vk.Error(vk.CreateDescriptorUpdateTemplate(c.device.VKDevice, &createInfo, nil, &template)); err != nil {
		return nil, errs.Pipeline(errs.LayoutMismatch, keyString(hash), err)
	}
	layout.VKUpdateTemplate = template
	layout.hasTemplate = true
	return layout, nil
}

// isBufferType reports whether dtype's descriptor data is a
// vk.DescriptorBufferInfo, the only shape the flat array a descriptor
// update template writes from this cache builds can hold.
func isBufferType(dtype vk.DescriptorType) bool {
	switch dtype {
	case vk.DescriptorTypeUniformBuffer, vk.DescriptorTypeStorageBuffer,
		vk.DescriptorTypeUniformBufferDynamic, vk.DescriptorTypeStorageBufferDynamic:
		return true
	default:
		return false
	}
}

// ApplyArguments applies a flat array of per-binding buffer writes to set in
// a single driver call via this layout's update template. infos must be
// len(l.EntryCount()) and indexed by each binding's SlotFor position --
// the caller (island/encoder's replay step) is responsible for leaving
// any untouched slot zeroed rather than stale, since the template always
// writes every entry it was built with.
func (l *SetLayout) ApplyArguments(device *backend.Device, set vk.DescriptorSet, infos []vk.DescriptorBufferInfo) {
	if !l.hasTemplate || len(infos) == 0 {
		return
	}
	vk.UpdateDescriptorSetWithTemplate(device.VKDevice, set, l.VKUpdateTemplate, unsafe.Pointer(&infos[0]))
}

func maxu32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}

func keyString(h uint64) string {
	return string([]byte{
		byte(h), byte(h >> 8), byte(h >> 16), byte(h >> 24),
		byte(h >> 32), byte(h >> 40), byte(h >> 48), byte(h >> 56),
	})
}

// sortSetIndices returns a MergeBySet result's set indices in
// deterministic (ascending) order.
func sortSetIndices(bySet map[uint32][]shadercache.BindingInfo) []uint32 {
	sets := make([]uint32, 0, len(bySet))
	for s := range bySet {
		sets = append(sets, s)
	}
	sort.Slice(sets, func(i, j int) bool { return sets[i] < sets[j] })
	return sets
}
