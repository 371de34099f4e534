package fileops

import (
	stderrors "errors"
	"io"
	"math"

	"go.uber.org/zap"

	"github.com/wippyai/chardev/errors"
	"github.com/wippyai/chardev/file"
	"github.com/wippyai/chardev/ioctl"
	"github.com/wippyai/chardev/ownership"
	"github.com/wippyai/chardev/usermem"
)

// Offsets handed to drivers are limited to the non-negative int64 range.
const maxOffset = math.MaxInt64

func fail(op string, err error) int64 {
	n := errors.Negative(err)
	Logger().Debug("file operation failed",
		zap.String("op", op),
		zap.Int64("errno", -n),
		zap.Error(err))
	return n
}

func instance[T any, PT interface {
	*T
	Operations
}](s *file.State) PT {
	return PT(ownership.BorrowAddress[T](s.PrivateData))
}

func toOffset(phase errors.Phase, off int64) (uint64, error) {
	if off < 0 {
		return 0, errors.InvalidOffset(phase, off)
	}
	return uint64(off), nil
}

func openTrampoline[T any](d Driver[T]) OpenFunc {
	return func(_ *file.Inode, s *file.State) int32 {
		p, err := d.Open()
		if err != nil {
			return int32(fail("open", err))
		}
		s.PrivateData = p.IntoAddress()
		return 0
	}
}

func releaseTrampoline[T any](d Driver[T]) ReleaseFunc {
	return func(_ *file.Inode, s *file.State) int32 {
		addr := s.PrivateData
		s.PrivateData = 0
		p := ownership.FromAddress[T](addr)
		if r, ok := d.(Releaser[T]); ok {
			r.Release(p, file.FromState(s))
		}
		p.Drop()
		return 0
	}
}

// transferBounds validates pos and the buffer length for read and write so
// that pos plus the transferred count stays within the offset range.
func transferBounds(phase errors.Phase, pos int64, length uint64) (uint64, error) {
	off, err := toOffset(phase, pos)
	if err != nil {
		return 0, err
	}
	if length > maxOffset-off {
		return 0, errors.New(phase, errors.KindInvalidArgument).
			Detail("transfer of %d bytes at offset %d overflows the file position", length, off).
			Value(length).
			Build()
	}
	return off, nil
}

func readTrampoline[T any, PT interface {
	*T
	Operations
}]() ReadFunc {
	return func(s *file.State, buf, length uint64, pos *int64) int64 {
		off, err := transferBounds(errors.PhaseRead, *pos, length)
		if err != nil {
			return fail("read", err)
		}
		slice, err := usermem.NewSlice(s.Mem, buf, length)
		if err != nil {
			return fail("read", err)
		}
		w := slice.Writer()
		err = instance[T, PT](s).Read(file.FromState(s), w, off)
		// A driver that copied until the buffer filled up has read fully.
		if stderrors.Is(err, io.ErrShortWrite) && w.IsEmpty() {
			err = nil
		}
		if err != nil {
			return fail("read", err)
		}
		n := int64(length - w.Len())
		*pos += n
		return n
	}
}

func writeTrampoline[T any, PT interface {
	*T
	Operations
}]() WriteFunc {
	return func(s *file.State, buf, length uint64, pos *int64) int64 {
		off, err := transferBounds(errors.PhaseWrite, *pos, length)
		if err != nil {
			return fail("write", err)
		}
		slice, err := usermem.NewSlice(s.Mem, buf, length)
		if err != nil {
			return fail("write", err)
		}
		r := slice.Reader()
		reported, err := instance[T, PT](s).Write(file.FromState(s), r, off)
		if err != nil {
			return fail("write", err)
		}
		n := int64(length - r.Len())
		if reported != n {
			Logger().Debug("write count differs from consumed bytes",
				zap.Int64("reported", reported),
				zap.Int64("consumed", n))
		}
		*pos += n
		return n
	}
}

func llseekTrampoline[T any, PT interface {
	*T
	Operations
}]() LlseekFunc {
	return func(s *file.State, offset int64, whence int32) int64 {
		var to SeekFrom
		switch whence {
		case WhenceSet:
			start, err := toOffset(errors.PhaseSeek, offset)
			if err != nil {
				return fail("llseek", err)
			}
			to = SeekStart(start)
		case WhenceCur:
			to = SeekCurrent(offset)
		case WhenceEnd:
			to = SeekEnd(offset)
		default:
			return fail("llseek", errors.New(errors.PhaseSeek, errors.KindInvalidArgument).
				Detail("unknown whence %d", whence).
				Value(whence).
				Build())
		}

		pos, err := instance[T, PT](s).Seek(file.FromState(s), to)
		if err != nil {
			return fail("llseek", err)
		}
		if pos > maxOffset {
			return fail("llseek", errors.InvalidOffset(errors.PhaseSeek, pos))
		}
		s.Pos = int64(pos)
		return int64(pos)
	}
}

func ioctlTrampoline[T any, PT interface {
	*T
	Operations
}](layout ioctl.Layout, compat bool) IoctlFunc {
	op := "unlocked_ioctl"
	if compat {
		op = "compat_ioctl"
	}
	return func(s *file.State, cmd uint32, arg uint64) int64 {
		c := ioctl.NewCommand(layout, s.Mem, cmd, arg)
		inst := instance[T, PT](s)
		f := file.FromState(s)

		var ret int32
		var err error
		if compat {
			ret, err = inst.CompatIoctl(f, c)
		} else {
			ret, err = inst.Ioctl(f, c)
		}
		if err != nil {
			return fail(op, err)
		}
		return int64(ret)
	}
}

func fsyncTrampoline[T any, PT interface {
	*T
	Operations
}]() FsyncFunc {
	return func(s *file.State, start, end int64, datasync int32) int32 {
		from, err := toOffset(errors.PhaseFsync, start)
		if err != nil {
			return int32(fail("fsync", err))
		}
		to, err := toOffset(errors.PhaseFsync, end)
		if err != nil {
			return int32(fail("fsync", err))
		}
		ret, err := instance[T, PT](s).Fsync(file.FromState(s), from, to, datasync != 0)
		if err != nil {
			return int32(fail("fsync", err))
		}
		if ret > math.MaxInt32 {
			return int32(fail("fsync", errors.New(errors.PhaseFsync, errors.KindInvalidArgument).
				Detail("result %d does not fit the host return type", ret).
				Value(ret).
				Build()))
		}
		return int32(ret)
	}
}
