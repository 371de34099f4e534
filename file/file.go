// Package file defines the host-owned per-open file state and the read-only
// handle drivers see during a call.
package file

import (
	"github.com/wippyai/chardev/ownership"
	"github.com/wippyai/chardev/usermem"
)

// Open flags understood by this layer. Values follow the Linux numbering.
const (
	O_RDONLY   uint32 = 0o0
	O_WRONLY   uint32 = 0o1
	O_RDWR     uint32 = 0o2
	O_NONBLOCK uint32 = 0o4000
)

// State is the host's file object. The host owns it; trampolines borrow it
// for the duration of one call.
type State struct {
	// Mem is the address space user buffers passed to this call refer to.
	Mem usermem.AddressSpace
	// Pos is the file position (loff_t).
	Pos int64
	// Flags are the open flags.
	Flags uint32
	// PrivateData is the per-open opaque slot. Zero means empty.
	PrivateData ownership.Address
}

// Inode identifies the device node a file was opened through.
type Inode struct {
	Name  string
	Major uint32
	Minor uint32
}

// File is a non-owning view of a State, valid only for the call it was passed to.
type File struct {
	state *State
}

// FromState wraps a host file state. s must be non-nil and outlive the call.
func FromState(s *State) *File {
	if s == nil {
		panic("file: nil file state")
	}
	return &File{state: s}
}

// Pos returns the current file position. Positions are kept within
// [0, 2^63) by the trampolines, so the conversion is lossless.
func (f *File) Pos() uint64 {
	return uint64(f.state.Pos)
}

// IsBlocking reports whether the file was opened without O_NONBLOCK.
func (f *File) IsBlocking() bool {
	return f.state.Flags&O_NONBLOCK == 0
}

// Flags returns the open flags.
func (f *File) Flags() uint32 {
	return f.state.Flags
}
