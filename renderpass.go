package island

import (
	"sync/atomic"

	"github.com/neshume/island/rendergraph"
	vk "github.com/vulkan-go/vulkan"
)

// RenderPass is a cheap-to-copy facade over a pass recorded into a
// RenderModule. The underlying *rendergraph.Pass is shared and
// reference-counted rather than deep-copied on every builder call -- the
// same tradeoff a reference-counted C++ wrapper around an opaque handle
// makes so that passing the wrapper by value doesn't imply an allocation.
type RenderPass struct {
	state *renderPassState
}

type renderPassState struct {
	pass *rendergraph.Pass
	refs atomic.Int32
}

func newRenderPass(p *rendergraph.Pass) RenderPass {
	s := &renderPassState{pass: p}
	s.refs.Store(1)
	return RenderPass{state: s}
}

// Ref returns a new facade sharing this pass's underlying state, bumping
// the refcount. Each Ref must be balanced by a Release.
func (r RenderPass) Ref() RenderPass {
	if r.state != nil {
		r.state.refs.Add(1)
	}
	return r
}

// Release drops one reference. island itself never frees anything on the
// last release -- the underlying *rendergraph.Pass is owned by the
// RenderModule it was added to -- but a caller holding a RenderPass across
// goroutines can use the refcount to know when it's safe to stop treating
// the value as live.
func (r RenderPass) Release() int32 {
	if r.state == nil {
		return 0
	}
	return r.state.refs.Add(-1)
}

func (r RenderPass) pass() *rendergraph.Pass { return r.state.pass }

// Reads, Writes, ReadWrites, and SetExecute forward to the underlying
// rendergraph.Pass, letting callers build up a pass through the facade
// without importing island/rendergraph directly.
func (r RenderPass) Reads(h ResourceHandle, usage Usage) RenderPass {
	r.pass().Reads(h.h, usage.stage, usage.layout)
	return r
}

func (r RenderPass) Writes(h ResourceHandle, usage Usage) RenderPass {
	r.pass().Writes(h.h, usage.stage, usage.layout)
	return r
}

func (r RenderPass) ReadWrites(h ResourceHandle, usage Usage) RenderPass {
	r.pass().ReadWrites(h.h, usage.stage, usage.layout)
	return r
}

// SetExecute installs the callback invoked during the execute phase of
// the frame orchestrator, recording commands into the Encoder passed to
// fn.
func (r RenderPass) SetExecute(fn func(e Encoder)) RenderPass {
	r.pass().Execute = func(e rendergraph.Encoder) {
		fn(Encoder{inner: e})
	}
	return r
}

// SetSetup installs the callback invoked during the setup phase, after
// compilation and before execute -- returning false marks the pass
// inactive for this frame without removing it from the module or the
// compiled plan.
func (r RenderPass) SetSetup(fn func() bool) RenderPass {
	r.pass().Setup = fn
	return r
}

// SetRoot marks this pass as a root: it survives pruning even if nothing
// downstream reads what it writes.
func (r RenderPass) SetRoot(isRoot bool) RenderPass {
	r.pass().IsRoot = isRoot
	return r
}

// SetSortKey sets the tiebreaker topological sort uses when two passes
// are otherwise unordered relative to each other.
func (r RenderPass) SetSortKey(key int64) RenderPass {
	r.pass().SortKey = key
	return r
}

// SetColorAttachments declares this draw pass's color attachments.
func (r RenderPass) SetColorAttachments(attachments ...Attachment) RenderPass {
	out := make([]rendergraph.Attachment, len(attachments))
	for i, a := range attachments {
		out[i] = rendergraph.Attachment{Handle: a.Handle.h, Format: a.Format, Layout: a.Layout}
	}
	r.pass().ColorAttachments = out
	return r
}

// SetDepthAttachment declares this draw pass's depth-stencil attachment.
func (r RenderPass) SetDepthAttachment(a Attachment) RenderPass {
	r.pass().DepthAttachment = &rendergraph.Attachment{Handle: a.Handle.h, Format: a.Format, Layout: a.Layout}
	return r
}

// SetExtent declares the draw pass's framebuffer extent and sample count.
func (r RenderPass) SetExtent(width, height uint32, samples vk.SampleCountFlagBits) RenderPass {
	r.pass().Width = width
	r.pass().Height = height
	r.pass().Samples = samples
	return r
}
