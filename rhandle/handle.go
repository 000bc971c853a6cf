// Package rhandle implements island's resource handle registry: a
// process-wide interning table mapping a textual name to a stable,
// opaque 64-bit handle. Handle equality is identity, and a handle
// outlives the resource it names -- a non-owning index into a registry
// rather than a pointer into an object it owns.
package rhandle

import (
	"fmt"
	"sync"
)

// Kind tags the category a Handle belongs to. It occupies the high 8 bits
// of the packed handle word.
type Kind uint8

const (
	KindImage Kind = iota + 1
	KindBuffer
	KindBLAS
	KindTLAS
)

func (k Kind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindBuffer:
		return "buffer"
	case KindBLAS:
		return "blas"
	case KindTLAS:
		return "tlas"
	default:
		return "unknown"
	}
}

// indexBits is the width of the per-process-unique index packed into the
// low bits of a Handle. Exhausting this space is the registry's one fatal
// failure mode.
const indexBits = 48
const indexMask = uint64(1)<<indexBits - 1

// Handle is an opaque 64-bit resource identifier: an 8-bit Kind tag in the
// high byte, a 48-bit per-process-unique index in the low bits. The
// remaining 8 bits are reserved and always zero.
type Handle uint64

// Invalid is the zero Handle; no resource is ever registered at index 0.
const Invalid Handle = 0

func pack(kind Kind, index uint64) Handle {
	return Handle(uint64(kind)<<56 | (index & indexMask))
}

func (h Handle) Kind() Kind {
	return Kind(uint64(h) >> 56)
}

func (h Handle) index() uint64 {
	return uint64(h) & indexMask
}

func (h Handle) Valid() bool {
	return h != Invalid
}

func (h Handle) String() string {
	return fmt.Sprintf("%s#%d", h.Kind(), h.index())
}

// entry is the registry-side bookkeeping for one interned handle: the name
// it was produced from (for diagnostics only -- names carry no semantics)
// and a declared ResourceInfo, set separately from interning so a handle
// may be produced before its backing description is known.
type entry struct {
	name   string
	kind   Kind
	handle Handle
	info   interface{}
}

// Registry is the process-wide interning table. It is safe for concurrent
// use; ProduceHandle is idempotent per (kind, name).
type Registry struct {
	mu      sync.RWMutex
	byName  map[string]Handle
	entries map[Handle]*entry
	next    uint64
}

func NewRegistry() *Registry {
	return &Registry{
		byName:  make(map[string]Handle),
		entries: make(map[Handle]*entry),
		next:    1,
	}
}

// ProduceHandle interns name under kind, returning the existing handle if
// one was already produced for that exact (kind, name) pair. An unnamed
// resource (name == "") gets a generated unique token so every call still
// produces a fresh handle; unnamed resources are never deduplicated.
func (r *Registry) ProduceHandle(kind Kind, name string) (Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := name
	if key != "" {
		if h, ok := r.byName[key]; ok {
			if h.Kind() != kind {
				return Invalid, fmt.Errorf("rhandle: name %q already registered as kind %s, requested %s", name, h.Kind(), kind)
			}
			return h, nil
		}
	}

	if r.next > indexMask {
		panic("rhandle: exhausted 48-bit handle index space")
	}
	idx := r.next
	r.next++

	h := pack(kind, idx)
	e := &entry{name: name, kind: kind, handle: h}
	r.entries[h] = e
	if key != "" {
		r.byName[key] = h
	}
	return h, nil
}

// Name returns the diagnostic name associated with a handle, or its
// stringified form if the resource was produced unnamed.
func (r *Registry) Name(h Handle) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.entries[h]; ok && e.name != "" {
		return e.name
	}
	return h.String()
}

// SetInfo attaches a declared description to a handle. A handle's info
// is fixed for the lifetime of the backing allocation; SetInfo refuses
// any second declaration for the same handle, even of an equal value --
// re-declaration requires a fresh handle.
func (r *Registry) SetInfo(h Handle, info interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[h]
	if !ok {
		return fmt.Errorf("rhandle: %s is not registered", h)
	}
	if e.info != nil {
		return fmt.Errorf("rhandle: %s already has a declared info; rebinding requires a new handle", h)
	}
	e.info = info
	return nil
}

func (r *Registry) Info(h Handle) (interface{}, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[h]
	if !ok {
		return nil, false
	}
	return e.info, e.info != nil
}

func (r *Registry) Exists(h Handle) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[h]
	return ok
}
