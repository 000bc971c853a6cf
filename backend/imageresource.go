package backend

import (
	vk "github.com/vulkan-go/vulkan"
)

// ImageResource is an image carved out of an ImageResourcePool's shared
// allocation -- the frame graph's per-attachment images all come from one
// of these (see renderer.go's ensureDeclaredImage), each with its own
// Allocation inside the pool's LinearAllocator rather than its own
// vk.DeviceMemory.
type ImageResource struct {
	Image
	ResourcePool *ImageResourcePool
	Allocation   *Allocation
	Extent       vk.Extent2D
}

func (r *ImageResource) String() string {
	return "image"
}

func (r *ImageResource) Destroy() {
	r.Free()
}

// Free releases r's slot in its pool's allocator. The pool itself, and
// the vk.DeviceMemory backing it, outlive any one ImageResource.
func (r *ImageResource) Free() {
	if r.Allocation != nil {
		r.ResourcePool.Allocator.Free(r.Allocation)
		r.Allocation = nil
	}
	r.Image.Destroy()
}
