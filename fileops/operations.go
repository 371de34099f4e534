package fileops

import (
	"fmt"

	"github.com/wippyai/chardev/errors"
	"github.com/wippyai/chardev/file"
	"github.com/wippyai/chardev/ioctl"
	"github.com/wippyai/chardev/ownership"
	"github.com/wippyai/chardev/usermem"
)

// Operations are the per-open methods of a device. Every method is invoked
// through a non-owning reference, possibly from many goroutines at once, so
// implementations synchronize their own state. Embed Unimplemented to get the
// default for methods a driver does not provide.
type Operations interface {
	// Read fills w with data starting at offset. The number of bytes read is
	// taken from how much of w was consumed.
	Read(f *file.File, w *usermem.Writer, offset uint64) error
	// Write consumes r starting at offset. The host is told how much of r was
	// consumed; the returned count is informational.
	Write(f *file.File, r *usermem.Reader, offset uint64) (int64, error)
	// Seek computes the new file position.
	Seek(f *file.File, to SeekFrom) (uint64, error)
	// Ioctl handles a device-control command.
	Ioctl(f *file.File, cmd *ioctl.Command) (int32, error)
	// CompatIoctl handles a device-control command from a 32-bit caller on a
	// 64-bit host.
	CompatIoctl(f *file.File, cmd *ioctl.Command) (int32, error)
	// Fsync flushes pending changes in [start, end].
	Fsync(f *file.File, start, end uint64, datasync bool) (uint32, error)
}

// Unimplemented provides the default for every Operations method: EINVAL.
type Unimplemented struct{}

func (Unimplemented) Read(*file.File, *usermem.Writer, uint64) error {
	return errors.Unsupported(errors.PhaseRead, "read not implemented")
}

func (Unimplemented) Write(*file.File, *usermem.Reader, uint64) (int64, error) {
	return 0, errors.Unsupported(errors.PhaseWrite, "write not implemented")
}

func (Unimplemented) Seek(*file.File, SeekFrom) (uint64, error) {
	return 0, errors.Unsupported(errors.PhaseSeek, "seek not implemented")
}

func (Unimplemented) Ioctl(*file.File, *ioctl.Command) (int32, error) {
	return 0, errors.Unsupported(errors.PhaseIoctl, "ioctl not implemented")
}

func (Unimplemented) CompatIoctl(*file.File, *ioctl.Command) (int32, error) {
	return 0, errors.Unsupported(errors.PhaseIoctl, "compat ioctl not implemented")
}

func (Unimplemented) Fsync(*file.File, uint64, uint64, bool) (uint32, error) {
	return 0, errors.Unsupported(errors.PhaseFsync, "fsync not implemented")
}

// Driver describes a device type: which operations it wires up and how to
// create a per-open instance of T.
type Driver[T any] interface {
	// Capabilities is read once, when the table is built.
	Capabilities() Capabilities
	// Open creates the state for one open file.
	Open() (ownership.Pointer[T], error)
}

// Releaser is implemented by drivers that want to see the instance when its
// file is released. The instance is dropped after Release returns; a driver
// that needs it to outlive the file keeps its own ownership unit (for
// example an Arc clone).
type Releaser[T any] interface {
	Release(p ownership.Pointer[T], f *file.File)
}

// Whence values for Llseek.
const (
	WhenceSet int32 = 0
	WhenceCur int32 = 1
	WhenceEnd int32 = 2
)

// SeekFrom is the target of a seek.
type SeekFrom struct {
	Whence int32
	// Offset is the absolute position for WhenceSet and a signed delta otherwise.
	Offset int64
}

// SeekStart seeks to an absolute position.
func SeekStart(off uint64) SeekFrom { return SeekFrom{Whence: WhenceSet, Offset: int64(off)} }

// SeekEnd seeks relative to the end of the file.
func SeekEnd(delta int64) SeekFrom { return SeekFrom{Whence: WhenceEnd, Offset: delta} }

// SeekCurrent seeks relative to the current position.
func SeekCurrent(delta int64) SeekFrom { return SeekFrom{Whence: WhenceCur, Offset: delta} }

// Start returns the absolute position of a WhenceSet target.
func (s SeekFrom) Start() uint64 { return uint64(s.Offset) }

func (s SeekFrom) String() string {
	switch s.Whence {
	case WhenceSet:
		return fmt.Sprintf("start(%d)", uint64(s.Offset))
	case WhenceCur:
		return fmt.Sprintf("current(%+d)", s.Offset)
	case WhenceEnd:
		return fmt.Sprintf("end(%+d)", s.Offset)
	default:
		return fmt.Sprintf("whence(%d, %d)", s.Whence, s.Offset)
	}
}

// Resolve applies the seek to a file of the given size at position cur and
// returns the new position. Results outside [0, 2^63) are invalid.
func (s SeekFrom) Resolve(cur, size uint64) (uint64, error) {
	var base uint64
	switch s.Whence {
	case WhenceSet:
		return s.Start(), nil
	case WhenceCur:
		base = cur
	case WhenceEnd:
		base = size
	default:
		return 0, errors.InvalidArgument(errors.PhaseSeek, "bad whence")
	}
	if base > maxOffset {
		return 0, errors.InvalidOffset(errors.PhaseSeek, base)
	}
	pos := int64(base) + s.Offset
	if (s.Offset > 0 && pos < int64(base)) || pos < 0 {
		return 0, errors.InvalidOffset(errors.PhaseSeek, s)
	}
	return uint64(pos), nil
}
