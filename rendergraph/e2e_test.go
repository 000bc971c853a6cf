package rendergraph

import (
	"testing"

	"github.com/neshume/island/rhandle"
	vk "github.com/vulkan-go/vulkan"
)

// TestTriangleToSwapchain compiles the smallest possible module: one draw
// pass writing the swapchain resource with a single color attachment. It
// checks the pass survives compilation as the lone entry, that the
// swapchain's sync chain records it in COLOR_ATTACHMENT, that the inferred
// attachment clears, stores and ends in PRESENT_SRC, and that no
// inter-pass barrier is emitted.
func TestTriangleToSwapchain(t *testing.T) {
	reg := rhandle.NewRegistry()
	swapchain, err := reg.ProduceHandle(rhandle.KindImage, "swapchain")
	if err != nil {
		t.Fatalf("ProduceHandle: %v", err)
	}

	module := NewRenderModule()
	module.AddPass(&Pass{
		Name:   "triangle",
		IsRoot: true,
		Kind:   PassDraw,
		ColorAttachments: []Attachment{
			{Handle: swapchain, Layout: vk.ImageLayoutColorAttachmentOptimal},
		},
	})

	plan, err := Compile(nil, module, swapchain, nil)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	if len(plan.Passes) != 1 || plan.Passes[0].Name != "triangle" {
		t.Fatalf("expected a single compiled pass named triangle, got %+v", plan.Passes)
	}

	chain, ok := plan.SyncChains[swapchain]
	if !ok || len(chain.Entries) != 1 {
		t.Fatalf("expected a 1-entry sync chain for the swapchain resource, got %+v", chain)
	}
	if chain.Entries[0].Layout != vk.ImageLayoutColorAttachmentOptimal {
		t.Fatalf("swapchain entry layout = %v, want COLOR_ATTACHMENT_OPTIMAL", chain.Entries[0].Layout)
	}

	loadOp, storeOp, _, finalLayout := inferLoadStore(chain, 0, true, false, false)
	if loadOp != vk.AttachmentLoadOpClear {
		t.Errorf("loadOp = %v, want CLEAR (sole writer is also first writer)", loadOp)
	}
	if storeOp != vk.AttachmentStoreOpStore {
		t.Errorf("storeOp = %v, want STORE (last writer of the swapchain always stores)", storeOp)
	}
	if finalLayout != vk.ImageLayoutPresentSrc {
		t.Errorf("finalLayout = %v, want PRESENT_SRC", finalLayout)
	}

	if len(plan.Barriers) != 0 {
		t.Fatalf("expected no inter-pass barriers for a single pass, got %d", len(plan.Barriers))
	}
}

// TestDepthPrepassOrdering compiles a pass A that writes a depth image,
// and a pass B that reads that depth image and writes the swapchain. It
// checks the compiled order places A before B and that the synthesized
// barrier transitions the depth image from DEPTH_ATTACHMENT_OPTIMAL to
// SHADER_READ_ONLY_OPTIMAL between them.
func TestDepthPrepassOrdering(t *testing.T) {
	reg := rhandle.NewRegistry()
	swapchain, _ := reg.ProduceHandle(rhandle.KindImage, "swapchain")
	depth, _ := reg.ProduceHandle(rhandle.KindImage, "depth")

	module := NewRenderModule()
	passA := module.AddPass(&Pass{
		Name: "depthPrepass",
		Kind: PassDraw,
		DepthAttachment: &Attachment{
			Handle: depth,
			Layout: vk.ImageLayoutDepthStencilAttachmentOptimal,
		},
	})
	_ = passA

	passB := module.AddPass(&Pass{
		Name:   "main",
		IsRoot: true,
		Kind:   PassDraw,
		ColorAttachments: []Attachment{
			{Handle: swapchain, Layout: vk.ImageLayoutColorAttachmentOptimal},
		},
	})
	passB.Reads(depth, vk.PipelineStageFragmentShaderBit, vk.ImageLayoutShaderReadOnlyOptimal)

	plan, err := Compile(nil, module, swapchain, nil)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	if len(plan.Passes) != 2 {
		t.Fatalf("expected 2 compiled passes, got %d: %+v", len(plan.Passes), plan.Passes)
	}
	if plan.Passes[0].Name != "depthPrepass" || plan.Passes[1].Name != "main" {
		t.Fatalf("compiled order = [%s %s], want [depthPrepass main]", plan.Passes[0].Name, plan.Passes[1].Name)
	}

	chain, ok := plan.SyncChains[depth]
	if !ok || len(chain.Entries) != 2 {
		t.Fatalf("expected a 2-entry sync chain for depth, got %+v", chain)
	}
	if chain.Entries[0].Layout != vk.ImageLayoutDepthStencilAttachmentOptimal {
		t.Errorf("depth producer layout = %v, want DEPTH_ATTACHMENT_OPTIMAL", chain.Entries[0].Layout)
	}
	if chain.Entries[1].Layout != vk.ImageLayoutShaderReadOnlyOptimal {
		t.Errorf("depth consumer layout = %v, want SHADER_READ_ONLY_OPTIMAL", chain.Entries[1].Layout)
	}

	var depthBarrier *Barrier
	for i := range plan.Barriers {
		if plan.Barriers[i].OldLayout == vk.ImageLayoutDepthStencilAttachmentOptimal {
			depthBarrier = &plan.Barriers[i]
			break
		}
	}
	if depthBarrier == nil {
		t.Fatal("expected a barrier transitioning depth out of DEPTH_ATTACHMENT_OPTIMAL")
	}
	if depthBarrier.NewLayout != vk.ImageLayoutShaderReadOnlyOptimal {
		t.Errorf("depth barrier NewLayout = %v, want SHADER_READ_ONLY_OPTIMAL", depthBarrier.NewLayout)
	}
}

// TestInferLoadStoreLoadDerivesInitialLayoutFromPriorEntry covers the
// depth-prepass-with-load pattern: a pass re-attaching a resource another
// pass already wrote this frame gets LoadOp=LOAD, and its InitialLayout
// must be the layout the prior entry left the resource in rather than
// UNDEFINED -- a driver is free to discard UNDEFINED contents, which would
// silently corrupt the very data LOAD is meant to preserve.
func TestInferLoadStoreLoadDerivesInitialLayoutFromPriorEntry(t *testing.T) {
	chain := &SyncChain{
		Entries: []SyncEntry{
			{PassIdx: 0, Layout: vk.ImageLayoutDepthStencilAttachmentOptimal},
			{PassIdx: 1, Layout: vk.ImageLayoutDepthStencilAttachmentOptimal},
		},
	}

	loadOp, _, initialLayout, _ := inferLoadStore(chain, 1, false, true, false)
	if loadOp != vk.AttachmentLoadOpLoad {
		t.Fatalf("loadOp = %v, want LOAD (pass 1 is not the first writer)", loadOp)
	}
	if initialLayout != vk.ImageLayoutDepthStencilAttachmentOptimal {
		t.Errorf("initialLayout = %v, want DEPTH_ATTACHMENT_OPTIMAL (the prior entry's layout), not UNDEFINED", initialLayout)
	}

	loadOp, _, initialLayout, _ = inferLoadStore(chain, 0, false, true, false)
	if loadOp != vk.AttachmentLoadOpClear {
		t.Fatalf("loadOp = %v, want CLEAR (pass 0 is the first writer)", loadOp)
	}
	if initialLayout != vk.ImageLayoutUndefined {
		t.Errorf("initialLayout = %v, want UNDEFINED for the first writer", initialLayout)
	}
}
