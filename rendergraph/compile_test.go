package rendergraph

import (
	"testing"

	"github.com/neshume/island/errs"
	"github.com/neshume/island/rhandle"
	vk "github.com/vulkan-go/vulkan"
)

func newHandles(t *testing.T, n int) []rhandle.Handle {
	t.Helper()
	reg := rhandle.NewRegistry()
	out := make([]rhandle.Handle, n)
	for i := range out {
		h, err := reg.ProduceHandle(rhandle.KindImage, "")
		if err != nil {
			t.Fatalf("ProduceHandle: %v", err)
		}
		out[i] = h
	}
	return out
}

func compileOrder(t *testing.T, module *RenderModule, swapchain rhandle.Handle) []string {
	t.Helper()
	plan, err := Compile(nil, module, swapchain, nil)
	if err != nil {
		t.Fatalf("Compile returned error: %v", err)
	}
	names := make([]string, len(plan.Passes))
	for i, p := range plan.Passes {
		names[i] = p.Name
	}
	return names
}

// TestCompileOrdersWritersBeforeReaders checks that compiled order is a
// function of declared usages (and here, since sort keys are equal,
// insertion order) only: a pass writing a resource must come before any
// pass that reads it.
func TestCompileOrdersWritersBeforeReaders(t *testing.T) {
	h := newHandles(t, 2)
	swapchain, scene := h[0], h[1]

	module := NewRenderModule()
	present := module.AddPass(&Pass{Name: "present", IsRoot: true, Kind: PassDraw,
		ColorAttachments: []Attachment{{Handle: swapchain, Layout: vk.ImageLayoutColorAttachmentOptimal}}})
	present.Reads(scene, vk.PipelineStageFragmentShaderBit, vk.ImageLayoutShaderReadOnlyOptimal)

	module.AddPass(&Pass{Name: "opaque", Kind: PassDraw,
		ColorAttachments: []Attachment{{Handle: scene, Layout: vk.ImageLayoutColorAttachmentOptimal}}})

	order := compileOrder(t, module, swapchain)
	if len(order) != 2 {
		t.Fatalf("got %d passes, want 2: %v", len(order), order)
	}
	if order[0] != "opaque" || order[1] != "present" {
		t.Fatalf("order = %v, want [opaque present]", order)
	}
}

// TestCompilePrunesUnreachableWork checks that a pass writing a resource
// nothing downstream of the root reads gets dropped from the plan.
func TestCompilePrunesUnreachableWork(t *testing.T) {
	h := newHandles(t, 3)
	swapchain, offscreenOrphan, orphanTarget := h[0], h[1], h[2]

	module := NewRenderModule()
	module.AddPass(&Pass{Name: "present", IsRoot: true, Kind: PassDraw,
		ColorAttachments: []Attachment{{Handle: swapchain, Layout: vk.ImageLayoutColorAttachmentOptimal}}})
	unreachable := module.AddPass(&Pass{Name: "unused", Kind: PassDraw,
		ColorAttachments: []Attachment{{Handle: orphanTarget, Layout: vk.ImageLayoutColorAttachmentOptimal}}})
	unreachable.Reads(offscreenOrphan, vk.PipelineStageFragmentShaderBit, vk.ImageLayoutShaderReadOnlyOptimal)

	order := compileOrder(t, module, swapchain)
	if len(order) != 1 || order[0] != "present" {
		t.Fatalf("order = %v, want [present] (unused pruned)", order)
	}
}

// TestCompileDetectsCycle checks that a pair of passes with a circular
// dependency (P writes R1, reads R2; Q writes R2, reads R1) is reported
// as a cycle rather than silently dropped or compiled in an arbitrary
// order.
func TestCompileDetectsCycle(t *testing.T) {
	h := newHandles(t, 3)
	swapchain, r1, r2 := h[0], h[1], h[2]

	module := NewRenderModule()
	module.AddPass(&Pass{Name: "present", IsRoot: true, Kind: PassDraw,
		ColorAttachments: []Attachment{{Handle: swapchain, Layout: vk.ImageLayoutColorAttachmentOptimal}}})

	p := module.AddPass(&Pass{Name: "P", Kind: PassDraw,
		ColorAttachments: []Attachment{{Handle: r1, Layout: vk.ImageLayoutColorAttachmentOptimal}}})
	p.Reads(r2, vk.PipelineStageFragmentShaderBit, vk.ImageLayoutShaderReadOnlyOptimal)

	q := module.AddPass(&Pass{Name: "Q", Kind: PassDraw,
		ColorAttachments: []Attachment{{Handle: r2, Layout: vk.ImageLayoutColorAttachmentOptimal}}})
	q.Reads(r1, vk.PipelineStageFragmentShaderBit, vk.ImageLayoutShaderReadOnlyOptimal)

	// Make P and Q roots directly (rather than relying on swapchain
	// reachability) so the cycle between them is the only thing under
	// test -- neither writes to the swapchain.
	p.IsRoot = true
	q.IsRoot = true

	_, err := Compile(nil, module, swapchain, nil)
	if err == nil {
		t.Fatal("expected a Cycle error, got nil")
	}
	rgErr, ok := err.(*errs.RendergraphError)
	if !ok {
		t.Fatalf("error is not a RendergraphError: %v", err)
	}
	if rgErr.Kind != errs.Cycle {
		t.Fatalf("Kind = %v, want Cycle", rgErr.Kind)
	}
}

// TestCompileOrdersMultipleWritersWithoutCycle checks that two passes
// writing the same resource with no read relationship between them order
// deterministically by (sort_key, insertion order) rather than producing
// a cycle.
func TestCompileOrdersMultipleWritersWithoutCycle(t *testing.T) {
	h := newHandles(t, 2)
	swapchain, scene := h[0], h[1]

	module := NewRenderModule()
	present := module.AddPass(&Pass{Name: "present", IsRoot: true, Kind: PassDraw,
		ColorAttachments: []Attachment{{Handle: swapchain, Layout: vk.ImageLayoutColorAttachmentOptimal}}})
	present.Reads(scene, vk.PipelineStageFragmentShaderBit, vk.ImageLayoutShaderReadOnlyOptimal)

	module.AddPass(&Pass{Name: "clear", SortKey: 0, Kind: PassDraw,
		ColorAttachments: []Attachment{{Handle: scene, Layout: vk.ImageLayoutColorAttachmentOptimal}}})
	module.AddPass(&Pass{Name: "overlay", SortKey: 1, Kind: PassDraw,
		ColorAttachments: []Attachment{{Handle: scene, Layout: vk.ImageLayoutColorAttachmentOptimal}}})

	order := compileOrder(t, module, swapchain)
	if len(order) != 3 {
		t.Fatalf("got %d passes, want 3: %v", len(order), order)
	}
	if order[0] != "clear" || order[1] != "overlay" || order[2] != "present" {
		t.Fatalf("order = %v, want [clear overlay present]", order)
	}
}

func TestCompileNoRootYieldsNoRootError(t *testing.T) {
	h := newHandles(t, 2)
	swapchain, scene := h[0], h[1]

	module := NewRenderModule()
	module.AddPass(&Pass{Name: "orphan", Kind: PassDraw,
		ColorAttachments: []Attachment{{Handle: scene, Layout: vk.ImageLayoutColorAttachmentOptimal}}})

	_, err := Compile(nil, module, swapchain, nil)
	if err == nil {
		t.Fatal("expected a NoRoot error, got nil")
	}
	rgErr, ok := err.(*errs.RendergraphError)
	if !ok {
		t.Fatalf("error is not a RendergraphError: %v", err)
	}
	if rgErr.Kind != errs.NoRoot {
		t.Fatalf("Kind = %v, want NoRoot", rgErr.Kind)
	}
}

func TestCompileDeterministicAcrossRuns(t *testing.T) {
	h := newHandles(t, 3)
	swapchain, a, b := h[0], h[1], h[2]

	build := func() *RenderModule {
		module := NewRenderModule()
		module.AddPass(&Pass{Name: "present", IsRoot: true, Kind: PassDraw,
			ColorAttachments: []Attachment{{Handle: swapchain, Layout: vk.ImageLayoutColorAttachmentOptimal}}}).
			Reads(a, vk.PipelineStageFragmentShaderBit, vk.ImageLayoutShaderReadOnlyOptimal).
			Reads(b, vk.PipelineStageFragmentShaderBit, vk.ImageLayoutShaderReadOnlyOptimal)
		module.AddPass(&Pass{Name: "shadow", Kind: PassDraw, SortKey: 0,
			ColorAttachments: []Attachment{{Handle: a, Layout: vk.ImageLayoutColorAttachmentOptimal}}})
		module.AddPass(&Pass{Name: "gbuffer", Kind: PassDraw, SortKey: 0,
			ColorAttachments: []Attachment{{Handle: b, Layout: vk.ImageLayoutColorAttachmentOptimal}}})
		return module
	}

	first := compileOrder(t, build(), swapchain)
	second := compileOrder(t, build(), swapchain)

	if len(first) != len(second) {
		t.Fatalf("lengths differ: %v vs %v", first, second)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("order differs at %d: %v vs %v", i, first, second)
		}
	}
}
