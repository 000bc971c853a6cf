// Package config holds island's runtime knobs as plain structs with
// fluent setters -- no config-file or flag-parsing library, since the
// renderer core itself never needs one; cmd/islanddemo is the only place
// a flag library (cobra) belongs.
package config

// Renderer holds the runtime knobs for a Renderer: how many frames may
// be in flight concurrently, initial scratch ring sizes and ceilings,
// and whether shader hot-reload and Vulkan validation layers are active.
type Renderer struct {
	FramesInFlight int

	ScratchDeviceLocalInitial uint64
	ScratchDeviceLocalCeiling uint64
	ScratchStagingInitial     uint64
	ScratchStagingCeiling     uint64

	HotReloadShaders  bool
	ValidationEnabled bool

	// PipelineCacheDir, if non-empty, is a directory the Renderer loads a
	// persisted pipeline-cache blob from at startup and saves one to on
	// Destroy, named after the device's UUID and driver version. Empty
	// means the pipeline cache always starts cold.
	PipelineCacheDir string
}

// Default returns a conservative starting configuration: double
// buffering, validation on, hot-reload off, and scratch rings sized for a
// handful of megabytes of per-frame inline data before they need to grow.
func Default() Renderer {
	return Renderer{
		FramesInFlight:            2,
		ScratchDeviceLocalInitial: 1 << 20,
		ScratchDeviceLocalCeiling: 64 << 20,
		ScratchStagingInitial:     1 << 20,
		ScratchStagingCeiling:     64 << 20,
		HotReloadShaders:          false,
		ValidationEnabled:         true,
	}
}

func (r Renderer) WithFramesInFlight(n int) Renderer {
	r.FramesInFlight = n
	return r
}

func (r Renderer) WithScratchCeilings(deviceLocal, staging uint64) Renderer {
	r.ScratchDeviceLocalCeiling = deviceLocal
	r.ScratchStagingCeiling = staging
	return r
}

func (r Renderer) WithHotReload(enabled bool) Renderer {
	r.HotReloadShaders = enabled
	return r
}

func (r Renderer) WithValidation(enabled bool) Renderer {
	r.ValidationEnabled = enabled
	return r
}

func (r Renderer) WithPipelineCacheDir(dir string) Renderer {
	r.PipelineCacheDir = dir
	return r
}
