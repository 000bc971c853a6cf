package backend

import (
	"fmt"

	"github.com/neshume/island/internal/rlog"

	vk "github.com/vulkan-go/vulkan"
)

var insufficientPoolSpaceError = fmt.Errorf("insufficient storage space in resource pool")

// ImageResourcePool is a shared vk.DeviceMemory allocation carved up by a
// LinearAllocator into ImageResource slots. renderer.go's
// ensureDeclaredImage creates one per distinct declared attachment
// resource, sized for exactly that resource.
type ImageResourcePool struct {
	Device           *Device
	Name             string
	Usage            vk.ImageUsageFlagBits
	Sharing          vk.SharingMode
	MemoryProperties vk.MemoryPropertyFlagBits
	Size             uint64
	Allocator        IAllocator
	Memory           *DeviceMemory
	NeedsStaging     bool
	ResourceManager  *ResourceManager
}

func (p *ImageResourcePool) AllocateImage(extent vk.Extent2D, format vk.Format, tiling vk.ImageTiling, usage vk.ImageUsageFlagBits) (*ImageResource, error) {
	i, err := p.Device.CreateImageWithOptions(extent, format, tiling, usage)
	if err != nil {
		return nil, err
	}

	mr := i.VKMemoryRequirements()

	mr.Deref()

	allocation := p.Allocator.Allocate(uint64(mr.Size), uint64(mr.Alignment))
	if allocation == nil {
		return nil, insufficientPoolSpaceError
	}

	err = vk.Error(vk.BindImageMemory(p.Device.VKDevice, i.VKImage, p.Memory.VKDeviceMemory, vk.DeviceSize(allocation.Offset)))
	if err != nil {
		return nil, err
	}

	img := &ImageResource{}
	img.VKImage = i.VKImage
	img.Device = i.Device
	img.VKFormat = i.VKFormat
	img.Size = uint64(mr.Size)
	img.Allocation = allocation
	img.ResourcePool = p
	img.Extent = extent

	allocation.Object = img

	return img, nil
}

func (p *ImageResourcePool) LogDetails() {
	rlog.Debugf("Size: %d", p.Size)
	p.Allocator.LogDetails()
}

func (p *ImageResourcePool) Destroy() {
	if p.Allocator != nil {
		p.Allocator.DestroyContents()
		p.Allocator = nil
	}
	if p.Memory != nil {
		p.Memory.Destroy()
		p.Memory = nil
	}
	delete(p.ResourceManager.imagePools, p.Name)
}

// ResourceManager owns every ImageResourcePool a Renderer allocates for
// frame-graph attachments. Vertex, index, and argument data bypass this
// entirely and flow through scratch.Ring (backend.RingBuffer) instead --
// see encoder.Encoder -- since those buffers are written every frame and
// a linear pool allocator designed for long-lived resources doesn't fit
// that churn.
type ResourceManager struct {
	Device     *Device
	imagePools map[string]*ImageResourcePool
}

func (d *Device) CreateResourceManager() *ResourceManager {
	return &ResourceManager{Device: d, imagePools: make(map[string]*ImageResourcePool)}
}

func (r *ResourceManager) AllocateDeviceTexturePool(name string, size uint64) (*ImageResourcePool, error) {
	return r.AllocateImagePoolWithOptions(name, size, vk.MemoryPropertyDeviceLocalBit, vk.ImageUsageTransferDstBit|vk.ImageUsageSampledBit, vk.SharingModeExclusive)
}

func (r *ResourceManager) AllocateImagePoolWithOptions(name string, size uint64, mprops vk.MemoryPropertyFlagBits, usage vk.ImageUsageFlagBits, sharing vk.SharingMode) (*ImageResourcePool, error) {
	needsStaging := false

	//FIXME this could be smarter about detecting integrated devies to really see if staging is needed
	if vk.MemoryPropertyFlagBits(mprops)&vk.MemoryPropertyDeviceLocalBit == vk.MemoryPropertyDeviceLocalBit {
		needsStaging = true
	}

	a := &LinearAllocator{Size: size}

	p := &ImageResourcePool{
		Device:           r.Device,
		Name:             name,
		Usage:            usage,
		Sharing:          sharing,
		MemoryProperties: mprops,
		Size:             size,
		Allocator:        a,
		NeedsStaging:     needsStaging,
		ResourceManager:  r,
	}

	if needsStaging {
		usage |= vk.ImageUsageTransferDstBit
	}

	buffer, err := r.Device.CreateImageWithOptions(vk.Extent2D{Width: 800, Height: 600}, vk.FormatR8g8b8a8Uint, vk.ImageTilingOptimal, usage)
	if err != nil {
		return nil, err
	}
	defer buffer.Destroy()

	mr := buffer.VKMemoryRequirements()
	mr.Deref()

	memory, err := r.Device.Allocate(int(size), mr.MemoryTypeBits, mprops)
	if err != nil {
		return nil, err
	}
	p.Memory = memory

	r.imagePools[name] = p

	return p, nil

}

func (r *ResourceManager) Destroy() {
	for _, p := range r.imagePools {
		p.Destroy()
	}
}

func (r *ResourceManager) LogDetails() {
	for name, pool := range r.imagePools {
		rlog.Debugf("Image Pool: %s", name)
		pool.LogDetails()
	}
}

func (r *ResourceManager) ImagePool(name string) *ImageResourcePool {
	return r.imagePools[name]
}
