package backend

import (
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
)

type ComputePipeline struct {
	VKPipeline                      vk.Pipeline
	VKPipelineShaderStageCreateInfo vk.PipelineShaderStageCreateInfo
	VKPipelineLayout                vk.PipelineLayout
}

type PipelineCache struct {
	Device          *Device
	VKPipelineCache vk.PipelineCache
}

func (d *Device) CreatePipelineCache() (*PipelineCache, error) {
	return d.CreatePipelineCacheWithInitialData(nil)
}

// CreatePipelineCacheWithInitialData seeds a new pipeline cache from a
// previously persisted blob (e.g. one written by Data, keyed by
// PhysicalDevice.PipelineCacheKey) -- an empty or nil blob behaves like
// CreatePipelineCache. The driver is free to reject a blob built against
// a different device/driver; it falls back to an empty cache rather than
// erroring.
func (d *Device) CreatePipelineCacheWithInitialData(blob []byte) (*PipelineCache, error) {
	var pipelineCacheCreate = vk.PipelineCacheCreateInfo{}
	pipelineCacheCreate.SType = vk.StructureTypePipelineCacheCreateInfo
	if len(blob) > 0 {
		pipelineCacheCreate.InitialDataSize = uint64(len(blob))
		pipelineCacheCreate.PInitialData = unsafe.Pointer(&blob[0])
	}

	var pipelineCache vk.PipelineCache

	err := vk.Error(vk.CreatePipelineCache(d.VKDevice, &pipelineCacheCreate, nil, &pipelineCache))
	if err != nil {
		return nil, err
	}

	return &PipelineCache{Device: d, VKPipelineCache: pipelineCache}, nil
}

// Data retrieves the driver's current serialized form of this cache, for
// persisting to disk between runs.
func (c *PipelineCache) Data() ([]byte, error) {
	var size uint64
	if err := vk.Error(vk.GetPipelineCacheData(c.Device.VKDevice, c.VKPipelineCache, &size, nil)); err != nil {
		return nil, err
	}
	if size == 0 {
		return nil, nil
	}
	data := make([]byte, size)
	if err := vk.Error(vk.GetPipelineCacheData(c.Device.VKDevice, c.VKPipelineCache, &size, unsafe.Pointer(&data[0]))); err != nil {
		return nil, err
	}
	return data[:size], nil
}

func (c *PipelineCache) Destroy() {
	vk.DestroyPipelineCache(c.Device.VKDevice, c.VKPipelineCache, nil)
}

func (c *ComputePipeline) SetPipelineLayout(layout *PipelineLayout) {
	c.VKPipelineLayout = layout.VKPipelineLayout
}

func (c *ComputePipeline) SetShaderStage(entryPoint string, shaderModule *ShaderModule) {
	c.VKPipelineShaderStageCreateInfo = shaderModule.VKPipelineShaderStageCreateInfo(vk.ShaderStageComputeBit, entryPoint)
}

func (d *Device) CreateComputePipelines(pc *PipelineCache, cp ...*ComputePipeline) error {

	pipelines := make([]vk.Pipeline, len(cp))

	ci := make([]vk.ComputePipelineCreateInfo, len(cp))

	for i, p := range cp {
		var pipelineCreateInfo = vk.ComputePipelineCreateInfo{}
		pipelineCreateInfo.SType = vk.StructureTypeComputePipelineCreateInfo
		pipelineCreateInfo.Stage = p.VKPipelineShaderStageCreateInfo
		pipelineCreateInfo.Layout = p.VKPipelineLayout
		ci[i] = pipelineCreateInfo
	}

	err := vk.Error(vk.CreateComputePipelines(
		d.VKDevice, pc.VKPipelineCache,
		1, ci,
		nil, pipelines))

	if err != nil {
		return err
	}

	for i, _ := range pipelines {
		cp[i].VKPipeline = pipelines[i]
	}

	return nil

}
