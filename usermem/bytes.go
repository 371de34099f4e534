package usermem

import (
	"github.com/wippyai/chardev/errors"
)

// BytesIO is an AddressSpace backed by a byte slice starting at address Base.
// Addresses below Base or past the end of Bytes fault.
type BytesIO struct {
	Bytes []byte
	Base  uint64
}

// NewBytesIO allocates a zeroed address space of size bytes at base.
func NewBytesIO(base uint64, size int) *BytesIO {
	return &BytesIO{Bytes: make([]byte, size), Base: base}
}

// Limit implements AddressSpace.
func (b *BytesIO) Limit() uint64 {
	return b.Base + uint64(len(b.Bytes))
}

// CopyIn implements AddressSpace.
func (b *BytesIO) CopyIn(addr uint64, dst []byte) (int, error) {
	start, n, err := b.span(addr, len(dst))
	n = copy(dst[:n], b.Bytes[start:])
	return n, err
}

// CopyOut implements AddressSpace.
func (b *BytesIO) CopyOut(addr uint64, src []byte) (int, error) {
	start, n, err := b.span(addr, len(src))
	n = copy(b.Bytes[start:start+uint64(n)], src[:n])
	return n, err
}

// span returns the offset into Bytes and how many of the requested bytes are
// addressable. A partial span comes with a fault error.
func (b *BytesIO) span(addr uint64, length int) (uint64, int, error) {
	if addr < b.Base || addr > b.Limit() {
		if length == 0 {
			return 0, 0, nil
		}
		return 0, 0, errors.Fault(errors.PhaseUsermem, addr, uint64(length))
	}
	start := addr - b.Base
	avail := uint64(len(b.Bytes)) - start
	if uint64(length) > avail {
		return start, int(avail), errors.Fault(errors.PhaseUsermem, addr, uint64(length))
	}
	return start, length, nil
}
