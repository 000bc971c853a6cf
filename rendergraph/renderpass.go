package rendergraph

import (
	"github.com/neshume/island/backend"
	"github.com/neshume/island/pipelinecache"
	"github.com/neshume/island/rhandle"
	vk "github.com/vulkan-go/vulkan"
)

// CompiledPass is one entry of a compiled Plan: the declared Pass plus,
// for draw passes, the API render pass / framebuffer it was assigned and
// the signature pipelines key on.
type CompiledPass struct {
	*Pass

	RenderPassSig uint64
	VKRenderPass  *backend.RenderPass
	VKFramebuffer vk.Framebuffer
}

// attachmentViews resolves a draw pass's image views in attachment order
// (color attachments, then depth) -- the binding order shaders see, and
// an order that stays fixed once a pass declares it.
type attachmentViews func(h rhandle.Handle) (*backend.ImageView, vk.Format, error)

// buildRenderPass implements step 6 for one draw pass: derive attachment
// descriptions from whether this pass is the first/last writer of each
// attachment in its SyncChain, construct the API render pass, and create
// a framebuffer sized to the pass's extent.
func buildRenderPass(device *backend.Device, passIdx int, pass *Pass, chains map[rhandle.Handle]*SyncChain, swapchain rhandle.Handle, resources map[rhandle.Handle]ResourceInfo, views attachmentViews) (*CompiledPass, error) {
	cp := &CompiledPass{Pass: pass}
	if pass.Kind != PassDraw {
		return cp, nil
	}

	var sigInputs []pipelinecache.AttachmentSignatureInput
	var attachmentDescs []vk.AttachmentDescription
	var imageViews []vk.ImageView

	appendAttachment := func(h rhandle.Handle, format vk.Format, layout vk.ImageLayout, isDepth bool) error {
		chain := chains[h]
		loadOp, storeOp, initialLayout, finalLayout := inferLoadStore(chain, passIdx, h == swapchain, isDepth, resources[h].Persistent)

		attachmentDescs = append(attachmentDescs, vk.AttachmentDescription{
			Format:         format,
			Samples:        orDefault(pass.Samples, vk.SampleCount1Bit),
			LoadOp:         loadOp,
			StoreOp:        storeOp,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  initialLayout,
			FinalLayout:    finalLayout,
		})
		sigInputs = append(sigInputs, pipelinecache.AttachmentSignatureInput{
			Format: uint32(format), Samples: uint32(orDefault(pass.Samples, vk.SampleCount1Bit)),
			LoadOp: uint32(loadOp), StoreOp: uint32(storeOp), FinalLayout: uint32(finalLayout),
		})

		view, _, err := views(h)
		if err != nil {
			return err
		}
		imageViews = append(imageViews, view.VKImageView)
		_ = layout
		return nil
	}

	colorRefs := make([]vk.AttachmentReference, 0, len(pass.ColorAttachments))
	for i, a := range pass.ColorAttachments {
		if err := appendAttachment(a.Handle, a.Format, a.Layout, false); err != nil {
			return nil, err
		}
		colorRefs = append(colorRefs, vk.AttachmentReference{Attachment: uint32(i), Layout: vk.ImageLayoutColorAttachmentOptimal})
	}

	var depthRef *vk.AttachmentReference
	if pass.DepthAttachment != nil {
		if err := appendAttachment(pass.DepthAttachment.Handle, pass.DepthAttachment.Format, pass.DepthAttachment.Layout, true); err != nil {
			return nil, err
		}
		depthRef = &vk.AttachmentReference{Attachment: uint32(len(colorRefs)), Layout: vk.ImageLayoutDepthStencilAttachmentOptimal}
	}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:       vk.PipelineBindPointGraphics,
		ColorAttachmentCount:    uint32(len(colorRefs)),
		PColorAttachments:       colorRefs,
		PDepthStencilAttachment: depthRef,
	}

	createInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachmentDescs)),
		PAttachments:    attachmentDescs,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
	}

	renderPass, err := device.CreateRenderPass(createInfo)
	if err != nil {
		return nil, err
	}

	framebuffer, err := device.CreateFramebuffer(renderPass, imageViews, pass.Width, pass.Height)
	if err != nil {
		return nil, err
	}

	cp.RenderPassSig = pipelinecache.RenderPassSignature(sigInputs)
	cp.VKRenderPass = renderPass
	cp.VKFramebuffer = framebuffer
	return cp, nil
}

// inferLoadStore implements the load/store-op, initial-layout and
// final-layout inference rule: first writer of a resource clears from
// UNDEFINED; the last writer of the swapchain resource stores with
// PRESENT_SRC final layout; any other producer→consumer handoff within
// the frame stores with the final layout the chain recorded for that
// pass's entry. A resource's last write this frame with no further
// same-frame reader stores only if the resource is marked Persistent
// (expected to be read again starting next frame) -- otherwise it stores
// DONT_CARE, since nothing will read it. Whenever a pass is not the
// first writer, LoadOp is LOAD and InitialLayout is taken from the prior
// sync-chain entry's layout -- the layout the barrier ahead of this pass
// leaves the resource in -- rather than UNDEFINED, which would let the
// driver discard the very contents LOAD is meant to preserve.
func inferLoadStore(chain *SyncChain, passIdx int, isSwapchain, isDepth, persistent bool) (vk.AttachmentLoadOp, vk.AttachmentStoreOp, vk.ImageLayout, vk.ImageLayout) {
	if chain == nil || len(chain.Entries) == 0 {
		return vk.AttachmentLoadOpClear, vk.AttachmentStoreOpStore, vk.ImageLayoutUndefined, vk.ImageLayoutGeneral
	}

	firstIdx, lastIdx := chain.Entries[0].PassIdx, chain.Entries[len(chain.Entries)-1].PassIdx
	loadOp := vk.AttachmentLoadOpLoad
	initialLayout := vk.ImageLayoutUndefined
	if passIdx == firstIdx {
		loadOp = vk.AttachmentLoadOpClear
	} else {
		for i, e := range chain.Entries {
			if e.PassIdx == passIdx {
				if i > 0 {
					initialLayout = chain.Entries[i-1].Layout
				}
				break
			}
		}
	}

	storeOp := vk.AttachmentStoreOpDontCare
	finalLayout := vk.ImageLayoutShaderReadOnlyOptimal
	if isDepth {
		finalLayout = vk.ImageLayoutDepthStencilAttachmentOptimal
	}
	if passIdx == lastIdx {
		if isSwapchain {
			storeOp = vk.AttachmentStoreOpStore
			finalLayout = vk.ImageLayoutPresentSrc
		} else if persistent {
			storeOp = vk.AttachmentStoreOpStore
			finalLayout = chain.Entries[len(chain.Entries)-1].Layout
		}
	} else {
		for _, e := range chain.Entries {
			if e.PassIdx == passIdx {
				storeOp = vk.AttachmentStoreOpStore
				finalLayout = e.Layout
				break
			}
		}
	}

	return loadOp, storeOp, initialLayout, finalLayout
}

func orDefault(v, def vk.SampleCountFlagBits) vk.SampleCountFlagBits {
	if v == 0 {
		return def
	}
	return v
}
