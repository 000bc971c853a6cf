package encoder

import (
	"encoding/binary"
	"testing"

	"github.com/neshume/island/scratch"
	vk "github.com/vulkan-go/vulkan"
)

// fakeVKBacking stands in for backend.RingBuffer: an in-memory byte slice
// that also reports a fixed vk.Buffer identity, so stageInline's type
// assertion to vkBufferBacking succeeds without touching Vulkan.
type fakeVKBacking struct {
	buf    []byte
	handle vk.Buffer
}

func (f *fakeVKBacking) Capacity() uint64 { return uint64(len(f.buf)) }

func (f *fakeVKBacking) Grow(newCapacity uint64) error {
	grown := make([]byte, newCapacity)
	copy(grown, f.buf)
	f.buf = grown
	return nil
}

func (f *fakeVKBacking) Map(offset, size uint64) []byte {
	return f.buf[offset : offset+size]
}

func (f *fakeVKBacking) VKBuffer() vk.Buffer { return f.handle }

func newTestEncoder() *Encoder {
	fs := scratch.NewFrameScratch(
		&fakeVKBacking{buf: make([]byte, 256), handle: vk.Buffer(0xdead)},
		&fakeVKBacking{buf: make([]byte, 256), handle: vk.Buffer(0xbeef)},
		65536,
	)
	return New(nil, fs)
}

func readHeader(t *testing.T, buf []byte, off int) (RecordType, int, int) {
	t.Helper()
	if off+5 > len(buf) {
		t.Fatalf("truncated header at offset %d (len %d)", off, len(buf))
	}
	recType := RecordType(buf[off])
	size := int(binary.LittleEndian.Uint32(buf[off+1 : off+5]))
	return recType, size, off + 5
}

func TestDrawRecordsHeaderAndPayload(t *testing.T) {
	e := newTestEncoder()
	e.Draw(3, 1, 0, 0)

	recType, size, payloadOff := readHeader(t, e.Bytes(), 0)
	if recType != RecordDraw {
		t.Fatalf("recType = %v, want RecordDraw", recType)
	}
	if size != 16 {
		t.Fatalf("payload size = %d, want 16", size)
	}
	if payloadOff+size != len(e.Bytes()) {
		t.Fatalf("stream length %d does not match header+payload %d", len(e.Bytes()), payloadOff+size)
	}

	vertexCount := binary.LittleEndian.Uint32(e.Bytes()[payloadOff : payloadOff+4])
	if vertexCount != 3 {
		t.Fatalf("vertexCount = %d, want 3", vertexCount)
	}
}

func TestMultipleRecordsAppendSequentially(t *testing.T) {
	e := newTestEncoder()
	e.SetLineWidth(2.5)
	e.Dispatch(4, 4, 1)

	_, sizeA, offA := readHeader(t, e.Bytes(), 0)
	if sizeA != 4 {
		t.Fatalf("first record payload size = %d, want 4", sizeA)
	}

	recType, sizeB, offB := readHeader(t, e.Bytes(), offA+sizeA)
	if recType != RecordDispatch {
		t.Fatalf("second record type = %v, want RecordDispatch", recType)
	}
	if sizeB != 12 {
		t.Fatalf("second record payload size = %d, want 12", sizeB)
	}
	if offB+sizeB != len(e.Bytes()) {
		t.Fatalf("stream length mismatch: %d vs %d", len(e.Bytes()), offB+sizeB)
	}
}

func TestSetVertexDataStagesThroughDeviceLocalRing(t *testing.T) {
	e := newTestEncoder()
	data := []byte{1, 2, 3, 4, 5, 6, 7, 8}

	rng, err := e.SetVertexData(0, data)
	if err != nil {
		t.Fatal(err)
	}
	if rng.Buffer != vk.Buffer(0xdead) {
		t.Fatalf("BufferRange.Buffer = %#x, want device-local ring's handle", rng.Buffer)
	}
	if rng.Size != uint64(len(data)) {
		t.Fatalf("BufferRange.Size = %d, want %d", rng.Size, len(data))
	}

	got := e.scratchAlloc.DeviceLocal.Backing.Map(rng.Offset, rng.Size)
	for i := range data {
		if got[i] != data[i] {
			t.Fatalf("byte %d = %d, want %d", i, got[i], data[i])
		}
	}

	_, size, payloadOff := readHeader(t, e.Bytes(), 0)
	if size != 28 {
		t.Fatalf("RecordBindVertexBuffers payload size = %d, want 28", size)
	}
	recordedBuffer := binary.LittleEndian.Uint64(e.Bytes()[payloadOff+4 : payloadOff+12])
	if recordedBuffer != uint64(rng.Buffer) {
		t.Fatalf("recorded buffer handle = %#x, want %#x", recordedBuffer, rng.Buffer)
	}
}

func TestSetArgumentDataRecordsBufferHandle(t *testing.T) {
	e := newTestEncoder()
	data := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}

	rng, err := e.SetArgumentData(1, 3, data)
	if err != nil {
		t.Fatal(err)
	}

	_, size, payloadOff := readHeader(t, e.Bytes(), 0)
	if size != 32 {
		t.Fatalf("RecordSetArgumentData payload size = %d, want 32", size)
	}
	setIndex := binary.LittleEndian.Uint32(e.Bytes()[payloadOff : payloadOff+4])
	binding := binary.LittleEndian.Uint32(e.Bytes()[payloadOff+4 : payloadOff+8])
	buffer := binary.LittleEndian.Uint64(e.Bytes()[payloadOff+8 : payloadOff+16])
	if setIndex != 1 || binding != 3 {
		t.Fatalf("setIndex/binding = %d/%d, want 1/3", setIndex, binding)
	}
	if buffer != uint64(rng.Buffer) {
		t.Fatalf("recorded buffer handle = %#x, want %#x -- replay cannot build a DescriptorBufferInfo without it", buffer, rng.Buffer)
	}
}

func TestWriteToImageStagesThroughStagingRing(t *testing.T) {
	e := newTestEncoder()
	data := []byte{9, 9, 9, 9}

	rng, err := e.WriteToImage(vk.Image(42), 0, vk.Extent3D{Width: 1, Height: 1, Depth: 1}, data)
	if err != nil {
		t.Fatal(err)
	}
	if rng.Buffer != vk.Buffer(0xbeef) {
		t.Fatalf("BufferRange.Buffer = %#x, want staging ring's handle", rng.Buffer)
	}

	got := e.scratchAlloc.Staging.Backing.Map(rng.Offset, rng.Size)
	for i := range data {
		if got[i] != data[i] {
			t.Fatalf("byte %d = %d, want %d", i, got[i], data[i])
		}
	}
}

func TestResetClearsStream(t *testing.T) {
	e := newTestEncoder()
	e.Draw(1, 1, 0, 0)
	if len(e.Bytes()) == 0 {
		t.Fatal("expected non-empty stream before Reset")
	}
	e.Reset()
	if len(e.Bytes()) != 0 {
		t.Fatalf("expected empty stream after Reset, got %d bytes", len(e.Bytes()))
	}
}

func TestTraceRaysStillRecordsDespiteNoReplayTarget(t *testing.T) {
	e := newTestEncoder()
	e.TraceRays(8, 8, 1)

	recType, size, _ := readHeader(t, e.Bytes(), 0)
	if recType != RecordTraceRays {
		t.Fatalf("recType = %v, want RecordTraceRays", recType)
	}
	if size != 12 {
		t.Fatalf("payload size = %d, want 12", size)
	}
}
