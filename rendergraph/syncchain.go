package rendergraph

import (
	"github.com/neshume/island/rhandle"
	vk "github.com/vulkan-go/vulkan"
)

// SyncEntry is one record in a resource's SyncChain: the {stage, access,
// layout} state that a pass establishes at one of its usage points,
// together with the index of the pass that produced it.
type SyncEntry struct {
	Stage   vk.PipelineStageFlagBits
	Access  vk.AccessFlagBits
	Layout  vk.ImageLayout
	PassIdx int // index into the compiled Plan.Passes this entry belongs to
}

// SyncChain is a per-resource ordered timeline of {stageMask, accessMask,
// layout} entries, one per pass that touches the resource, in the order
// the compiled plan executes them.
type SyncChain struct {
	Handle  rhandle.Handle
	Entries []SyncEntry
}

// Barrier is the materialized dependency between two adjacent entries on
// the same resource's SyncChain: an execution dependency (src stage → dst
// stage), a memory dependency (src access → dst access), and an image
// layout transition where the layouts differ.
type Barrier struct {
	Handle rhandle.Handle

	SrcStage vk.PipelineStageFlagBits
	DstStage vk.PipelineStageFlagBits

	SrcAccess vk.AccessFlagBits
	DstAccess vk.AccessFlagBits

	OldLayout vk.ImageLayout
	NewLayout vk.ImageLayout

	// BeforePassIdx is the index (into Plan.Passes) of the pass the
	// barrier must be recorded before, i.e. the consumer side.
	BeforePassIdx int
}

func accessToVK(a AccessKind, isDepthAttachment bool) vk.AccessFlagBits {
	switch a {
	case AccessRead:
		if isDepthAttachment {
			return vk.AccessDepthStencilAttachmentReadBit
		}
		return vk.AccessShaderReadBit
	case AccessWrite:
		if isDepthAttachment {
			return vk.AccessDepthStencilAttachmentWriteBit
		}
		return vk.AccessColorAttachmentWriteBit
	default:
		if isDepthAttachment {
			return vk.AccessDepthStencilAttachmentReadBit | vk.AccessDepthStencilAttachmentWriteBit
		}
		return vk.AccessShaderReadBit | vk.AccessColorAttachmentWriteBit
	}
}

// buildSyncChains implements step 5: for each resource, walk passes in
// (already topologically sorted) execution order and append one entry per
// usage, then materialize a Barrier between every adjacent pair of
// entries on the same resource.
func buildSyncChains(order []*Pass, depthHandles map[rhandle.Handle]bool) (map[rhandle.Handle]*SyncChain, []Barrier) {
	chains := make(map[rhandle.Handle]*SyncChain)
	var barriers []Barrier

	for idx, pass := range order {
		for _, u := range pass.usages() {
			chain, ok := chains[u.Handle]
			if !ok {
				chain = &SyncChain{Handle: u.Handle}
				chains[u.Handle] = chain
			}
			entry := SyncEntry{
				Stage:   u.Stage,
				Access:  accessToVK(u.Access, depthHandles[u.Handle]),
				Layout:  u.Layout,
				PassIdx: idx,
			}
			if n := len(chain.Entries); n > 0 {
				prev := chain.Entries[n-1]
				if prev.PassIdx != idx && needsBarrier(prev, entry) {
					barriers = append(barriers, Barrier{
						Handle:        u.Handle,
						SrcStage:      prev.Stage,
						DstStage:      entry.Stage,
						SrcAccess:     prev.Access,
						DstAccess:     entry.Access,
						OldLayout:     prev.Layout,
						NewLayout:     entry.Layout,
						BeforePassIdx: idx,
					})
				}
			}
			chain.Entries = append(chain.Entries, entry)
		}
	}

	return chains, barriers
}

func needsBarrier(prev, next SyncEntry) bool {
	if prev.Layout != next.Layout {
		return true
	}
	if prev.Access&next.Access != next.Access {
		return true
	}
	return prev.Stage != next.Stage
}
