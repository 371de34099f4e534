package ownership

import (
	"fmt"
	"sync"
)

// Address is the opaque token a released value is known by while it lives in
// host state. Zero is never a valid address. The low 32 bits select a slot and
// the high 32 bits carry the slot's generation, so a stale address is
// detected after the slot is reused.
type Address uint64

func makeAddress(slot int, gen uint32) Address {
	return Address(uint64(gen)<<32 | uint64(slot+1))
}

func (a Address) slot() int   { return int(uint32(a)) - 1 }
func (a Address) gen() uint32 { return uint32(a >> 32) }

// ContractViolation is the panic value raised when an address is reclaimed
// or borrowed without a matching release. It is never returned as an error.
type ContractViolation struct {
	Addr Address
	Op   string
}

func (c *ContractViolation) Error() string {
	return fmt.Sprintf("ownership contract violated: %s of untracked address %#x", c.Op, uint64(c.Addr))
}

// Registry holds released values so the host can carry a plain integer in
// place of a Go pointer. Safe for concurrent use.
type Registry struct {
	entries  []entry
	freeList []int
	mu       sync.RWMutex
}

type entry struct {
	value any
	gen   uint32
	valid bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries:  make([]entry, 0, 64),
		freeList: make([]int, 0, 16),
	}
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry used by Box and Arc.
func Default() *Registry {
	return defaultRegistry
}

// Release stores value and returns its address. It never frees anything.
func (r *Registry) Release(value any) Address {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.freeList) > 0 {
		slot := r.freeList[len(r.freeList)-1]
		r.freeList = r.freeList[:len(r.freeList)-1]
		e := &r.entries[slot]
		e.gen++
		e.value = value
		e.valid = true
		return makeAddress(slot, e.gen)
	}

	r.entries = append(r.entries, entry{value: value, valid: true})
	return makeAddress(len(r.entries)-1, 0)
}

// Borrow returns the value stored at addr without taking it back.
// Panics with *ContractViolation if addr is not currently released.
func (r *Registry) Borrow(addr Address) any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.lookup(addr)
	if !ok {
		panic(&ContractViolation{Addr: addr, Op: "borrow"})
	}
	return e.value
}

// Reclaim removes the value at addr and returns it. Each released address
// can be reclaimed exactly once; anything else panics with *ContractViolation.
func (r *Registry) Reclaim(addr Address) any {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.lookup(addr)
	if !ok {
		panic(&ContractViolation{Addr: addr, Op: "reclaim"})
	}
	value := e.value
	e.valid = false
	e.value = nil
	r.freeList = append(r.freeList, addr.slot())
	return value
}

// Contains reports whether addr is currently released.
func (r *Registry) Contains(addr Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.lookup(addr)
	return ok
}

// Len returns the number of released values not yet reclaimed.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, e := range r.entries {
		if e.valid {
			count++
		}
	}
	return count
}

// lookup must be called with mu held.
func (r *Registry) lookup(addr Address) (*entry, bool) {
	slot := addr.slot()
	if addr == 0 || slot < 0 || slot >= len(r.entries) {
		return nil, false
	}
	e := &r.entries[slot]
	if !e.valid || e.gen != addr.gen() {
		return nil, false
	}
	return e, true
}
