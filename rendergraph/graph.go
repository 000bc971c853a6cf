// Package rendergraph compiles a RenderModule -- an unordered bag of passes
// declared by the application for one frame -- into an ordered execution
// plan: a topologically sorted, pruned pass list together with per-resource
// sync chains and, for draw passes, the API render-pass/framebuffer objects
// that follow from the inferred attachment load/store ops.
//
// The compiler itself touches no device state beyond render-pass and
// framebuffer creation; it is pure graph algorithms over the pass/usage
// declarations until step 6.
package rendergraph

import (
	"sort"

	"github.com/neshume/island/errs"
	"github.com/neshume/island/rhandle"
	vk "github.com/vulkan-go/vulkan"
)

// AccessKind classifies how a pass touches a resource.
type AccessKind uint8

const (
	AccessRead AccessKind = iota
	AccessWrite
	AccessReadWrite
)

func (a AccessKind) reads() bool  { return a == AccessRead || a == AccessReadWrite }
func (a AccessKind) writes() bool { return a == AccessWrite || a == AccessReadWrite }

func mergeAccess(a, b AccessKind) AccessKind {
	if a == b {
		return a
	}
	if a.reads() && b.reads() && !a.writes() && !b.writes() {
		return AccessRead
	}
	if a.writes() && b.writes() && !a.reads() && !b.reads() {
		return AccessWrite
	}
	return AccessReadWrite
}

// ResourceUsage is a pass's declared touch on one resource. Multiple
// usages of the same handle within a pass are merged into the union of
// access kinds and stage masks before the compiler ever sees them.
type ResourceUsage struct {
	Handle rhandle.Handle
	Access AccessKind
	Stage  vk.PipelineStageFlagBits
	Layout vk.ImageLayout // meaningful for images only
}

// PassKind distinguishes the three pass shapes the orchestrator knows how
// to replay.
type PassKind uint8

const (
	PassDraw PassKind = iota
	PassCompute
	PassTransfer
)

// SetupFunc runs once per frame before a pass's commands are recorded; it
// may reject the pass by returning false, in which case the pass is
// neither executed nor replayed this frame (the compiled Plan still
// lists it).
type SetupFunc func() bool

// Attachment is one color or depth-stencil attachment of a draw pass,
// named by resource handle so the compiler can look up its provenance in
// the sync chain.
type Attachment struct {
	Handle rhandle.Handle
	Format vk.Format
	Layout vk.ImageLayout // the layout this pass requires while rendering
}

// Pass is one node the application contributes to a RenderModule. Its
// used-resource set is computed automatically from Reads/Writes/ReadWrites
// plus ColorAttachments/DepthAttachment, not supplied directly -- no pass
// may touch a resource it has not declared.
type Pass struct {
	Name    string
	Kind    PassKind
	Width   uint32
	Height  uint32
	Samples vk.SampleCountFlagBits

	IsRoot  bool
	SortKey int64

	ColorAttachments []Attachment
	DepthAttachment  *Attachment

	Setup   SetupFunc
	Execute func(e Encoder)

	declaredExtra  []ResourceUsage
	insertionIndex int // stable tiebreak, assigned by RenderModule.AddPass
}

// Encoder is the subset of island/encoder's command-recording surface a
// rendergraph-compiled pass is handed; it is declared here as an interface
// so this package has no import-time dependency on island/encoder (which
// in turn depends on this package's compiled Plan for replay).
type Encoder interface {
	Pass() *Pass
}

// usages returns every ResourceUsage this pass declares, merging repeats
// of the same handle into the union of their access kinds and stage masks.
func (p *Pass) usages() []ResourceUsage {
	merged := make(map[rhandle.Handle]*ResourceUsage)
	add := func(u ResourceUsage) {
		if existing, ok := merged[u.Handle]; ok {
			existing.Access = mergeAccess(existing.Access, u.Access)
			existing.Stage |= u.Stage
			mergeLayout(existing, u)
			return
		}
		cp := u
		merged[u.Handle] = &cp
	}

	for _, a := range p.ColorAttachments {
		add(ResourceUsage{Handle: a.Handle, Access: AccessWrite, Stage: vk.PipelineStageColorAttachmentOutputBit, Layout: a.Layout})
	}
	if p.DepthAttachment != nil {
		add(ResourceUsage{Handle: p.DepthAttachment.Handle, Access: AccessReadWrite, Stage: vk.PipelineStageEarlyFragmentTestsBit, Layout: p.DepthAttachment.Layout})
	}
	for _, u := range p.declaredExtra {
		add(u)
	}

	out := make([]ResourceUsage, 0, len(merged))
	for _, u := range merged {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Handle < out[j].Handle })
	return out
}

// mergeLayout keeps the most recently declared layout requirement when a
// pass merges repeated usages of the same handle.
func mergeLayout(existing *ResourceUsage, u ResourceUsage) {
	if u.Layout != 0 {
		existing.Layout = u.Layout
	}
}

// Reads declares that p samples or reads handle h at the given stage.
func (p *Pass) Reads(h rhandle.Handle, stage vk.PipelineStageFlagBits, layout vk.ImageLayout) *Pass {
	p.declaredExtra = append(p.declaredExtra, ResourceUsage{Handle: h, Access: AccessRead, Stage: stage, Layout: layout})
	return p
}

// Writes declares that p writes handle h (e.g. a compute/transfer target
// that is not a draw-pass attachment) at the given stage.
func (p *Pass) Writes(h rhandle.Handle, stage vk.PipelineStageFlagBits, layout vk.ImageLayout) *Pass {
	p.declaredExtra = append(p.declaredExtra, ResourceUsage{Handle: h, Access: AccessWrite, Stage: stage, Layout: layout})
	return p
}

// ReadWrites declares a read-modify-write usage, e.g. an image storage
// binding used by a compute pass.
func (p *Pass) ReadWrites(h rhandle.Handle, stage vk.PipelineStageFlagBits, layout vk.ImageLayout) *Pass {
	p.declaredExtra = append(p.declaredExtra, ResourceUsage{Handle: h, Access: AccessReadWrite, Stage: stage, Layout: layout})
	return p
}

// ResourceInfo is the declarative description an application attaches to
// a handle when it declares it to a RenderModule -- fixed for the
// lifetime of the backing allocation.
type ResourceInfo struct {
	IsImage     bool
	Format      vk.Format
	Extent      vk.Extent3D
	MipLevels   uint32
	ArrayLayers uint32
	Samples     vk.SampleCountFlagBits
	Usage       vk.ImageUsageFlagBits
	BufferSize  uint64
	BufferUsage vk.BufferUsageFlagBits

	// Persistent marks a resource whose contents this frame's last writer
	// produces are expected to still be valid when next frame's first
	// reader runs, even though nothing within this frame reads it after
	// that write. Without it, a resource written only by passes with no
	// same-frame reader is treated as transient and its last write stores
	// with AttachmentStoreOpDontCare.
	Persistent bool
}

// RenderModule is the unordered bag of passes the application builds for
// one frame, plus any resource declaration overrides.
type RenderModule struct {
	Passes    []*Pass
	Resources map[rhandle.Handle]ResourceInfo

	nextInsertionIndex int
}

func NewRenderModule() *RenderModule {
	return &RenderModule{Resources: make(map[rhandle.Handle]ResourceInfo)}
}

// AddPass appends p to the module, assigning it a stable insertion index
// used to break sort-key ties during topological sort: ties resolve by
// the pass's sort_key, then by this insertion order.
func (m *RenderModule) AddPass(p *Pass) *Pass {
	p.insertionIndex = m.nextInsertionIndex
	m.nextInsertionIndex++
	m.Passes = append(m.Passes, p)
	return p
}

// DeclareResource attaches or overrides a handle's ResourceInfo.
func (m *RenderModule) DeclareResource(h rhandle.Handle, info ResourceInfo) {
	m.Resources[h] = info
}

// provenance is the per-resource producer/consumer bookkeeping computed in
// compiler step 1.
type provenance struct {
	producers map[rhandle.Handle][]*Pass
	consumers map[rhandle.Handle][]*Pass
}

func buildProvenance(passes []*Pass) provenance {
	p := provenance{producers: make(map[rhandle.Handle][]*Pass), consumers: make(map[rhandle.Handle][]*Pass)}
	for _, pass := range passes {
		for _, u := range pass.usages() {
			if u.Access.writes() {
				p.producers[u.Handle] = append(p.producers[u.Handle], pass)
			}
			if u.Access.reads() {
				p.consumers[u.Handle] = append(p.consumers[u.Handle], pass)
			}
		}
	}
	return p
}

// markRoots implements step 2: seed with explicit roots and any pass
// writing the swapchain handle, then iterate a reverse BFS over
// producer→consumer edges -- a pass is a root if it is flagged is_root or
// writes a resource transitively consumed by a root. Read that direction
// carefully: roots pull their producers in by walking backwards from
// consumer to producer, not the other way around.
func markRoots(passes []*Pass, prov provenance, swapchain rhandle.Handle) map[*Pass]bool {
	roots := make(map[*Pass]bool)
	queue := make([]*Pass, 0, len(passes))

	for _, p := range passes {
		if p.IsRoot {
			roots[p] = true
			queue = append(queue, p)
		}
	}
	for _, p := range prov.producers[swapchain] {
		if !roots[p] {
			roots[p] = true
			queue = append(queue, p)
		}
	}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, u := range cur.usages() {
			if !u.Access.reads() {
				continue
			}
			for _, producer := range prov.producers[u.Handle] {
				if !roots[producer] {
					roots[producer] = true
					queue = append(queue, producer)
				}
			}
		}
	}
	return roots
}

// prune implements step 3.
func prune(passes []*Pass, roots map[*Pass]bool) []*Pass {
	out := make([]*Pass, 0, len(passes))
	for _, p := range passes {
		if roots[p] {
			out = append(out, p)
		}
	}
	return out
}

// writeBefore orders two writers of the same resource (write-after-write)
// by sort_key then stable insertion order, giving a single deterministic
// direction for the edge between them instead of one in each direction.
func writeBefore(a, b *Pass) bool {
	if a.SortKey != b.SortKey {
		return a.SortKey < b.SortKey
	}
	return a.insertionIndex < b.insertionIndex
}

// topoSort implements step 4: an edge P→Q exists iff P writes a resource
// Q reads, or P writes a resource Q also writes (ordered by sort_key then
// insertion order so write-after-write never produces a 2-cycle). Ties
// among ready nodes are resolved the same way; a cycle yields
// RendergraphError{Cycle} naming every pass still unresolved when no more
// zero-indegree nodes remain.
func topoSort(passes []*Pass, prov provenance) ([]*Pass, error) {
	indexOf := make(map[*Pass]int, len(passes))
	for i, p := range passes {
		indexOf[p] = i
	}

	adj := make([][]int, len(passes))
	indegree := make([]int, len(passes))
	seenEdge := make(map[[2]int]bool)

	addEdge := func(from, to int) {
		if from == to {
			return
		}
		key := [2]int{from, to}
		if seenEdge[key] {
			return
		}
		seenEdge[key] = true
		adj[from] = append(adj[from], to)
		indegree[to]++
	}

	for _, q := range passes {
		qi := indexOf[q]
		for _, u := range q.usages() {
			if u.Access.reads() {
				for _, producer := range prov.producers[u.Handle] {
					if pi, ok := indexOf[producer]; ok {
						addEdge(pi, qi)
					}
				}
			}
			if u.Access.writes() {
				for _, writer := range prov.producers[u.Handle] {
					wi, ok := indexOf[writer]
					if !ok || wi == qi {
						continue
					}
					if writeBefore(writer, q) {
						addEdge(wi, qi)
					}
				}
			}
		}
	}

	ready := make([]int, 0, len(passes))
	for i, d := range indegree {
		if d == 0 {
			ready = append(ready, i)
		}
	}
	sortReady := func() {
		sort.Slice(ready, func(a, b int) bool {
			pa, pb := passes[ready[a]], passes[ready[b]]
			if pa.SortKey != pb.SortKey {
				return pa.SortKey < pb.SortKey
			}
			return pa.insertionIndex < pb.insertionIndex
		})
	}

	order := make([]*Pass, 0, len(passes))
	remaining := indegree
	for len(order) < len(passes) {
		if len(ready) == 0 {
			break
		}
		sortReady()
		next := ready[0]
		ready = ready[1:]
		order = append(order, passes[next])
		for _, to := range adj[next] {
			remaining[to]--
			if remaining[to] == 0 {
				ready = append(ready, to)
			}
		}
	}

	if len(order) < len(passes) {
		var stuck []string
		resolved := make(map[*Pass]bool, len(order))
		for _, p := range order {
			resolved[p] = true
		}
		for _, p := range passes {
			if !resolved[p] {
				stuck = append(stuck, p.Name)
			}
		}
		return nil, errs.Rendergraph(errs.Cycle, stuck, nil)
	}

	return order, nil
}
