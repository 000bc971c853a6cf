package backend

import (
	vk "github.com/vulkan-go/vulkan"
)

// VKCreateSemaphore creates the GPU-GPU sync primitive RenderFrame pairs
// around a frame's submission: one per slot signaled by AcquireNextImage
// and waited on by the submit, one signaled by the submit and waited on
// by present.
func (d *Device) VKCreateSemaphore() (vk.Semaphore, error) {
	semaphoreCreateInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}

	var sema vk.Semaphore

	err := vk.Error(vk.CreateSemaphore(d.VKDevice, &semaphoreCreateInfo, nil, &sema))

	return sema, err
}

func (d *Device) VKDestroySemaphore(s vk.Semaphore) {
	vk.DestroySemaphore(d.VKDevice, s, nil)
}
