package island

import (
	"testing"

	"github.com/neshume/island/rendergraph"
	"github.com/neshume/island/rhandle"
	vk "github.com/vulkan-go/vulkan"
)

func TestModuleProduceHandleIdempotent(t *testing.T) {
	m := NewModule(rhandle.NewRegistry())

	a, err := m.ProduceHandle(rhandle.KindImage, "color")
	if err != nil {
		t.Fatal(err)
	}
	b, err := m.ProduceHandle(rhandle.KindImage, "color")
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatalf("expected the same handle for the same name, got %v != %v", a, b)
	}
}

func TestModuleSharedRegistryAcrossModules(t *testing.T) {
	reg := rhandle.NewRegistry()
	frame1 := NewModule(reg)
	frame2 := NewModule(reg)

	a, _ := frame1.ProduceHandle(rhandle.KindImage, "swapchain")
	b, _ := frame2.ProduceHandle(rhandle.KindImage, "swapchain")
	if a != b {
		t.Fatalf("expected a persistent resource's handle to compare equal across modules sharing a registry, got %v != %v", a, b)
	}
}

func TestAddPassReturnsIndependentFacades(t *testing.T) {
	m := NewModule(rhandle.NewRegistry())

	p := m.AddPass("main", rendergraph.PassDraw)
	p.SetRoot(true).SetSortKey(5)

	if !p.pass().IsRoot {
		t.Fatal("expected SetRoot(true) to mark the underlying pass as root")
	}
	if p.pass().SortKey != 5 {
		t.Fatalf("expected sort key 5, got %d", p.pass().SortKey)
	}
}

func TestRenderPassRefcounting(t *testing.T) {
	m := NewModule(rhandle.NewRegistry())
	p := m.AddPass("shadow", rendergraph.PassDraw)

	ref := p.Ref()
	if got := ref.Release(); got != 1 {
		t.Fatalf("expected one reference remaining after releasing the extra ref, got %d", got)
	}
	if got := p.Release(); got != 0 {
		t.Fatalf("expected zero references after releasing the original, got %d", got)
	}
}

func TestSetColorAttachmentsTranslatesHandles(t *testing.T) {
	m := NewModule(rhandle.NewRegistry())
	h, _ := m.ProduceHandle(rhandle.KindImage, "swapchain")

	p := m.AddPass("present", rendergraph.PassDraw).SetColorAttachments(Attachment{
		Handle: h,
		Format: vk.FormatB8g8r8a8Unorm,
		Layout: vk.ImageLayoutColorAttachmentOptimal,
	})

	attachments := p.pass().ColorAttachments
	if len(attachments) != 1 {
		t.Fatalf("expected 1 color attachment, got %d", len(attachments))
	}
	if attachments[0].Handle != h.h {
		t.Fatalf("expected the attachment's handle to match the declared resource handle")
	}
	if attachments[0].Format != vk.FormatB8g8r8a8Unorm {
		t.Fatalf("expected the attachment's format to round-trip")
	}
}

func TestDeclareResourcePersistentFlag(t *testing.T) {
	m := NewModule(rhandle.NewRegistry())
	h, _ := m.ProduceHandle(rhandle.KindImage, "history")

	m.DeclareResource(h, rendergraph.ResourceInfo{IsImage: true, Persistent: true})

	info, ok := m.inner.Resources[h.h]
	if !ok {
		t.Fatal("expected the declared resource info to be recorded on the module")
	}
	if !info.Persistent {
		t.Fatal("expected the Persistent flag to round-trip through DeclareResource")
	}
}

func TestAtBuildsUsage(t *testing.T) {
	u := At(vk.PipelineStageFragmentShaderBit, vk.ImageLayoutShaderReadOnlyOptimal)
	if u.stage != vk.PipelineStageFragmentShaderBit {
		t.Fatal("expected stage to round-trip through At")
	}
	if u.layout != vk.ImageLayoutShaderReadOnlyOptimal {
		t.Fatal("expected layout to round-trip through At")
	}
}

func TestRenderPassReadsWritesForwardToUnderlyingPass(t *testing.T) {
	m := NewModule(rhandle.NewRegistry())
	src, _ := m.ProduceHandle(rhandle.KindImage, "gbuffer-albedo")
	dst, _ := m.ProduceHandle(rhandle.KindImage, "lit")

	p := m.AddPass("lighting", rendergraph.PassCompute).
		Reads(src, At(vk.PipelineStageComputeShaderBit, vk.ImageLayoutShaderReadOnlyOptimal)).
		Writes(dst, At(vk.PipelineStageComputeShaderBit, vk.ImageLayoutGeneral))

	if p.pass().Kind != rendergraph.PassCompute {
		t.Fatalf("expected pass kind to round-trip, got %v", p.pass().Kind)
	}
}
