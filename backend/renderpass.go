package backend

import (
	vk "github.com/vulkan-go/vulkan"
)

// RenderPass wraps an API render pass object. island/rendergraph builds
// one of these per distinct (draw pass, attachment signature) pair
// discovered while compiling a frame, rather than one hardcoded pass
// shared by the whole application.
type RenderPass struct {
	Device       *Device
	VKRenderPass vk.RenderPass
}

// CreateRenderPass creates a render pass from a caller-assembled
// CreateInfo. The caller (island/rendergraph) is responsible for deriving
// attachment descriptions, subpass description, and dependencies; this
// method only owns the API call and object lifetime.
func (d *Device) CreateRenderPass(createInfo vk.RenderPassCreateInfo) (*RenderPass, error) {
	createInfo.SType = vk.StructureTypeRenderPassCreateInfo

	var vkRenderPass vk.RenderPass
	err := vk.Error(vk.CreateRenderPass(d.VKDevice, &createInfo, nil, &vkRenderPass))
	if err != nil {
		return nil, err
	}
	return &RenderPass{Device: d, VKRenderPass: vkRenderPass}, nil
}

// Destroy destroys this render pass.
func (r *RenderPass) Destroy() {
	vk.DestroyRenderPass(r.Device.VKDevice, r.VKRenderPass, nil)
}

// CreateFramebuffer creates a single-layer framebuffer bound to
// renderPass with the given attachment views, sized to (width, height) --
// the same shape GraphicsApp.createFramebuffers used for its fixed
// two-attachment (color, depth) case, generalized to an arbitrary
// attachment list.
func (d *Device) CreateFramebuffer(renderPass *RenderPass, attachments []vk.ImageView, width, height uint32) (vk.Framebuffer, error) {
	createInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      renderPass.VKRenderPass,
		Layers:          1,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		Width:           width,
		Height:          height,
	}

	var fb vk.Framebuffer
	err := vk.Error(vk.CreateFramebuffer(d.VKDevice, &createInfo, nil, &fb))
	if err != nil {
		return vk.NullFramebuffer, err
	}
	return fb, nil
}
