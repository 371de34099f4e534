package usermem

import (
	"fmt"

	"github.com/tetratelabs/wazero/api"
)

// guestLimit is the size of a 32-bit wasm address space.
const guestLimit = 1 << 32

// GuestMemory adapts a wazero linear memory to AddressSpace. Addresses are
// 32-bit; anything at or above 4 GiB is outside the guest's addressing mode.
type GuestMemory struct {
	Mem api.Memory
}

// WrapGuest wraps a wazero api.Memory. It returns nil for a nil memory.
func WrapGuest(mem api.Memory) *GuestMemory {
	if mem == nil {
		return nil
	}
	return &GuestMemory{Mem: mem}
}

// Limit implements AddressSpace. Memory can grow, so the limit is the
// addressing bound and not the current size; copies past the current size fault.
func (g *GuestMemory) Limit() uint64 {
	return guestLimit
}

// CopyIn implements AddressSpace.
func (g *GuestMemory) CopyIn(addr uint64, dst []byte) (int, error) {
	if len(dst) == 0 {
		return 0, nil
	}
	if addr+uint64(len(dst)) > guestLimit {
		return 0, fmt.Errorf("memory read out of bounds: offset=%#x, length=%d", addr, len(dst))
	}
	data, ok := g.Mem.Read(uint32(addr), uint32(len(dst)))
	if !ok {
		return 0, fmt.Errorf("memory read out of bounds: offset=%#x, length=%d", addr, len(dst))
	}
	return copy(dst, data), nil
}

// CopyOut implements AddressSpace.
func (g *GuestMemory) CopyOut(addr uint64, src []byte) (int, error) {
	if len(src) == 0 {
		return 0, nil
	}
	if addr+uint64(len(src)) > guestLimit {
		return 0, fmt.Errorf("memory write out of bounds: offset=%#x, length=%d", addr, len(src))
	}
	if !g.Mem.Write(uint32(addr), src) {
		return 0, fmt.Errorf("memory write out of bounds: offset=%#x, length=%d", addr, len(src))
	}
	return len(src), nil
}
