package rendergraph

import (
	"github.com/neshume/island/backend"
	"github.com/neshume/island/errs"
	"github.com/neshume/island/rhandle"
)

// Plan is the compiled form of a RenderModule.
type Plan struct {
	Passes      []*CompiledPass
	SyncChains  map[rhandle.Handle]*SyncChain
	Barriers    []Barrier
}

// Compile runs the six-step compilation algorithm against module,
// treating swapchain as the implicit root resource. device may be nil,
// in which case draw passes are compiled through step 5 (sync chains)
// but render pass/framebuffer objects are left unset -- useful for unit
// tests that only want to assert on graph shape, not touch a live API
// device.
func Compile(device *backend.Device, module *RenderModule, swapchain rhandle.Handle, views attachmentViews) (*Plan, error) {
	prov := buildProvenance(module.Passes)
	roots := markRoots(module.Passes, prov, swapchain)
	pruned := prune(module.Passes, roots)

	if len(pruned) == 0 && len(module.Passes) > 0 {
		names := make([]string, len(module.Passes))
		for i, p := range module.Passes {
			names[i] = p.Name
		}
		return nil, errs.Rendergraph(errs.NoRoot, names, nil)
	}

	order, err := topoSort(pruned, prov)
	if err != nil {
		return nil, err
	}

	depthHandles := make(map[rhandle.Handle]bool)
	for _, p := range order {
		if p.DepthAttachment != nil {
			depthHandles[p.DepthAttachment.Handle] = true
		}
	}
	chains, barriers := buildSyncChains(order, depthHandles)

	compiled := make([]*CompiledPass, len(order))
	for i, p := range order {
		if p.Kind != PassDraw || device == nil || views == nil {
			compiled[i] = &CompiledPass{Pass: p}
			continue
		}
		cp, err := buildRenderPass(device, i, p, chains, swapchain, module.Resources, views)
		if err != nil {
			return nil, err
		}
		compiled[i] = cp
	}

	return &Plan{Passes: compiled, SyncChains: chains, Barriers: barriers}, nil
}
