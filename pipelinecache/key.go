// Package pipelinecache implements island's two read-mostly interning
// tables: DescriptorSetLayoutCache and PipelineCache. Keys are 64-bit
// content hashes built with github.com/cespare/xxhash/v2 rather than a
// cryptographic digest -- nothing here needs collision resistance against
// an adversary, only against accidental aliasing of genuinely different
// pipeline descriptions.
//
// At-most-one-build-per-key -- other callers block and share the result --
// is implemented with golang.org/x/sync/singleflight rather than
// hand-rolled per-key mutexes.
package pipelinecache

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/neshume/island/shadercache"
)

// AttachmentSignatureInput is the per-attachment state that feeds a
// render-pass compatibility signature: a 64-bit hash over attachment
// {format, sample count, load/store ops, final layout}. The initial
// layout is not part of the hash.
type AttachmentSignatureInput struct {
	Format      uint32 // vk.Format
	Samples     uint32 // vk.SampleCountFlagBits
	LoadOp      uint32
	StoreOp     uint32
	FinalLayout uint32
}

// RenderPassSignature hashes a render pass's attachment descriptions into
// a 64-bit compatibility key. Two render passes
// built from equal attachment inputs are compatible and therefore share
// the same pipelines -- pipelines key on this signature, not on render
// pass identity.
func RenderPassSignature(attachments []AttachmentSignatureInput) uint64 {
	var buf [20]byte
	h := xxhash.New()
	for _, a := range attachments {
		binary.LittleEndian.PutUint32(buf[0:4], a.Format)
		binary.LittleEndian.PutUint32(buf[4:8], a.Samples)
		binary.LittleEndian.PutUint32(buf[8:12], a.LoadOp)
		binary.LittleEndian.PutUint32(buf[12:16], a.StoreOp)
		binary.LittleEndian.PutUint32(buf[16:20], a.FinalLayout)
		h.Write(buf[:])
	}
	return h.Sum64()
}

// hashBindings hashes a canonicalized (already sorted) BindingInfo slice --
// the DescriptorSetLayoutCache key. Equal sorted sequences, regardless of
// the order bindings were declared in, hash equal.
func hashBindings(bindings []shadercache.BindingInfo) uint64 {
	h := xxhash.New()
	var buf [16]byte
	for _, b := range bindings {
		binary.LittleEndian.PutUint64(buf[0:8], b.Packed)
		binary.LittleEndian.PutUint64(buf[8:16], b.NameHash)
		h.Write(buf[:])
	}
	return h.Sum64()
}

// hashPipelineKey forms the PipelineCache key: a hash of the
// fixed-function state hash, the shader module digests (Cache.key sorts
// them before calling this), the descriptor-set-layout hashes in
// Description.SetLayouts order, and the compatible render-pass
// signature.
func hashPipelineKey(fixedFunction uint64, shaderDigests [][32]byte, setLayoutHashes []uint64, renderPassSig uint64) uint64 {
	h := xxhash.New()
	var buf8 [8]byte

	binary.LittleEndian.PutUint64(buf8[:], fixedFunction)
	h.Write(buf8[:])

	for _, d := range shaderDigests {
		h.Write(d[:])
	}
	for _, l := range setLayoutHashes {
		binary.LittleEndian.PutUint64(buf8[:], l)
		h.Write(buf8[:])
	}
	binary.LittleEndian.PutUint64(buf8[:], renderPassSig)
	h.Write(buf8[:])

	return h.Sum64()
}
