package backend

import (
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
)

// RingBuffer is the concrete island/scratch.Backing this package
// contributes: a single growable vk.Buffer + bound vk.DeviceMemory,
// persistently mapped when host-visible. CreateAndBindBufferAndMemory
// (buffer.go) already does the create-buffer/allocate-memory/bind
// sequence; RingBuffer just adds the grow-and-preserve-contents behavior
// a scratch ring needs.
type RingBuffer struct {
	Device      *Device
	Usage       vk.BufferUsageFlagBits
	HostVisible bool

	Buffer *Buffer
	Memory *DeviceMemory
	mapped unsafe.Pointer
}

// NewRingBuffer creates a zero-capacity ring buffer; the first Allocate
// against it (via scratch.Ring) triggers the initial Grow.
func (d *Device) NewRingBuffer(usage vk.BufferUsageFlagBits, hostVisible bool) *RingBuffer {
	return &RingBuffer{Device: d, Usage: usage, HostVisible: hostVisible}
}

func (r *RingBuffer) Capacity() uint64 {
	if r.Buffer == nil {
		return 0
	}
	return r.Buffer.Size
}

// VKBuffer exposes the live buffer handle so island/encoder can record
// (buffer, offset, range) command payloads without island/scratch itself
// depending on the backend package.
func (r *RingBuffer) VKBuffer() vk.Buffer {
	if r.Buffer == nil {
		return vk.NullBuffer
	}
	return r.Buffer.VKBuffer
}

func (r *RingBuffer) Grow(newCapacity uint64) error {
	mprops := vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
	if r.HostVisible {
		mprops = vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit)
	}

	newBuffer, newMemory, err := r.Device.CreateAndBindBufferAndMemory(
		newCapacity, 0, vk.BufferUsageFlags(r.Usage), mprops, vk.SharingModeExclusive)
	if err != nil {
		return err
	}

	var newMapped unsafe.Pointer
	if r.HostVisible {
		newMapped, err = newMemory.MapWithSize(int(newCapacity))
		if err != nil {
			newBuffer.Destroy()
			newMemory.Destroy()
			return err
		}
	}

	if r.mapped != nil && r.Buffer != nil {
		const m = 0x7fffffff
		src := (*[m]byte)(r.mapped)[:r.Buffer.Size]
		dst := (*[m]byte)(newMapped)[:newCapacity]
		copy(dst, src)
		r.Memory.Unmap()
	}
	if r.Buffer != nil {
		r.Buffer.Destroy()
		r.Memory.Destroy()
	}

	r.Buffer = newBuffer
	r.Memory = newMemory
	r.mapped = newMapped
	return nil
}

func (r *RingBuffer) Map(offset, size uint64) []byte {
	if !r.HostVisible || r.mapped == nil {
		return nil
	}
	const m = 0x7fffffff
	return (*[m]byte)(unsafe.Pointer(uintptr(r.mapped) + uintptr(offset)))[:size:size]
}

func (r *RingBuffer) Destroy() {
	if r.mapped != nil {
		r.Memory.Unmap()
		r.mapped = nil
	}
	if r.Buffer != nil {
		r.Buffer.Destroy()
		r.Memory.Destroy()
	}
}
