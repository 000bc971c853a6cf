package rendergraph

import (
	"testing"

	"github.com/neshume/island/rhandle"
	vk "github.com/vulkan-go/vulkan"
)

// TestSyncChainBarrierCoversAdjacentStates checks that for every resource
// and every adjacent pair of touching passes, the emitted barrier's src
// stage/access covers the producer's post-state and dst covers the
// consumer's pre-state, and the layout transition matches the recorded
// layouts.
func TestSyncChainBarrierCoversAdjacentStates(t *testing.T) {
	reg := rhandle.NewRegistry()
	scene, _ := reg.ProduceHandle(rhandle.KindImage, "scene")

	writer := &Pass{Name: "opaque", Kind: PassDraw,
		ColorAttachments: []Attachment{{Handle: scene, Layout: vk.ImageLayoutColorAttachmentOptimal}}}
	reader := &Pass{Name: "present", Kind: PassDraw}
	reader.Reads(scene, vk.PipelineStageFragmentShaderBit, vk.ImageLayoutShaderReadOnlyOptimal)

	order := []*Pass{writer, reader}
	chains, barriers := buildSyncChains(order, nil)

	chain, ok := chains[scene]
	if !ok || len(chain.Entries) != 2 {
		t.Fatalf("expected a 2-entry chain for scene, got %+v", chain)
	}

	if len(barriers) != 1 {
		t.Fatalf("got %d barriers, want 1", len(barriers))
	}
	b := barriers[0]

	if b.SrcStage != chain.Entries[0].Stage {
		t.Errorf("SrcStage = %v, want producer post-state %v", b.SrcStage, chain.Entries[0].Stage)
	}
	if b.DstStage != chain.Entries[1].Stage {
		t.Errorf("DstStage = %v, want consumer pre-state %v", b.DstStage, chain.Entries[1].Stage)
	}
	if b.OldLayout != chain.Entries[0].Layout {
		t.Errorf("OldLayout = %v, want %v", b.OldLayout, chain.Entries[0].Layout)
	}
	if b.NewLayout != chain.Entries[1].Layout {
		t.Errorf("NewLayout = %v, want %v", b.NewLayout, chain.Entries[1].Layout)
	}
	if b.BeforePassIdx != 1 {
		t.Errorf("BeforePassIdx = %d, want 1 (consumer's index)", b.BeforePassIdx)
	}
}

// TestSyncChainNoBarrierWithinSamePass: two usages recorded by the same
// pass index must not synthesize a self-barrier.
func TestSyncChainNoBarrierWithinSamePass(t *testing.T) {
	reg := rhandle.NewRegistry()
	scene, _ := reg.ProduceHandle(rhandle.KindImage, "scene")

	solo := &Pass{Name: "solo", Kind: PassDraw,
		ColorAttachments: []Attachment{{Handle: scene, Layout: vk.ImageLayoutColorAttachmentOptimal}}}

	_, barriers := buildSyncChains([]*Pass{solo}, nil)
	if len(barriers) != 0 {
		t.Fatalf("got %d barriers for a single-pass chain, want 0", len(barriers))
	}
}

// TestSyncChainSkipsBarrierWhenStateUnchanged: identical stage/access/
// layout across adjacent passes requires no barrier.
func TestSyncChainSkipsBarrierWhenStateUnchanged(t *testing.T) {
	reg := rhandle.NewRegistry()
	scene, _ := reg.ProduceHandle(rhandle.KindImage, "scene")

	a := &Pass{Name: "a", Kind: PassDraw}
	a.Reads(scene, vk.PipelineStageFragmentShaderBit, vk.ImageLayoutShaderReadOnlyOptimal)
	b := &Pass{Name: "b", Kind: PassDraw}
	b.Reads(scene, vk.PipelineStageFragmentShaderBit, vk.ImageLayoutShaderReadOnlyOptimal)

	_, barriers := buildSyncChains([]*Pass{a, b}, nil)
	if len(barriers) != 0 {
		t.Fatalf("got %d barriers for two reads with identical state, want 0", len(barriers))
	}
}
