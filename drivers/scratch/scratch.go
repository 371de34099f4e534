// Package scratch is an in-memory, seekable scratch device. All opens share
// one buffer that grows on write up to a fixed limit.
package scratch

import (
	"encoding/binary"
	"math"
	"sync"

	"github.com/wippyai/chardev/errors"
	"github.com/wippyai/chardev/file"
	"github.com/wippyai/chardev/fileops"
	"github.com/wippyai/chardev/ioctl"
	"github.com/wippyai/chardev/ownership"
	"github.com/wippyai/chardev/usermem"
)

// Commands for Ioctl.
var (
	// GetSize reads the buffer size as a uint64.
	GetSize = ioctl.IOR('s', 1, 8)
	// Truncate sets the buffer size from a uint64.
	Truncate = ioctl.IOW('s', 2, 8)
	// Clear empties the buffer.
	Clear = ioctl.IO('s', 3)
	// Exchange takes {offset, value uint64}, stores value at offset and
	// returns the previous 8 bytes in place of offset.
	Exchange = ioctl.IOWR('s', 4, 16)
)

// Commands for CompatIoctl, with 32-bit payloads.
var (
	GetSize32  = ioctl.IOR('s', 1, 4)
	Truncate32 = ioctl.IOW('s', 2, 4)
)

// DefaultLimit is the buffer size limit used by NewDriver when none is given.
const DefaultLimit = 1 << 20

// Buffer is the shared device state.
type Buffer struct {
	mu    sync.RWMutex
	data  []byte
	limit uint64
	syncs uint64
	dirty bool
}

// Close frees the contents once the last reference is gone.
func (b *Buffer) Close() error {
	b.mu.Lock()
	b.data = nil
	b.mu.Unlock()
	return nil
}

// Size returns the current buffer size.
func (b *Buffer) Size() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return uint64(len(b.data))
}

// Syncs returns how many fsync calls found unsynced data.
func (b *Buffer) Syncs() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.syncs
}

func (b *Buffer) Read(_ *file.File, w *usermem.Writer, off uint64) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if off >= uint64(len(b.data)) {
		return nil
	}
	_, err := w.Write(b.data[off:])
	return err
}

func (b *Buffer) Write(_ *file.File, r *usermem.Reader, off uint64) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if r.IsEmpty() {
		return 0, nil
	}
	if off >= b.limit {
		return 0, errors.New(errors.PhaseWrite, errors.KindErrno).
			Errno(errors.ENOSPC).
			Detail("offset %d at or past the %d byte limit", off, b.limit).
			Build()
	}
	prev := uint64(len(b.data))
	end := off + min(r.Len(), b.limit-off)
	b.resizeLocked(max(end, prev))

	n, err := r.Read(b.data[off:end])
	if n == 0 {
		b.resizeLocked(prev)
		return 0, err
	}
	// A fault part way through keeps what was copied and reports a short write.
	b.resizeLocked(max(off+uint64(n), prev))
	b.dirty = true
	return int64(n), nil
}

func (b *Buffer) resizeLocked(size uint64) {
	switch {
	case size <= uint64(len(b.data)):
		clear(b.data[size:])
		b.data = b.data[:size]
	case size <= uint64(cap(b.data)):
		b.data = b.data[:size]
	default:
		grown := make([]byte, size, max(size, 2*uint64(cap(b.data))))
		copy(grown, b.data)
		b.data = grown
	}
}

func (b *Buffer) Seek(f *file.File, to fileops.SeekFrom) (uint64, error) {
	return to.Resolve(f.Pos(), b.Size())
}

func (b *Buffer) Fsync(_ *file.File, _, _ uint64, _ bool) (uint32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.dirty {
		b.syncs++
		b.dirty = false
	}
	return 0, nil
}

func (b *Buffer) Ioctl(f *file.File, cmd *ioctl.Command) (int32, error) {
	return cmd.Dispatch(handler{b: b}, f)
}

func (b *Buffer) CompatIoctl(f *file.File, cmd *ioctl.Command) (int32, error) {
	return cmd.Dispatch(compatHandler{b: b}, f)
}

func (b *Buffer) truncate(size uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if size > b.limit {
		return errors.New(errors.PhaseIoctl, errors.KindInvalidArgument).
			Detail("size %d exceeds the %d byte limit", size, b.limit).
			Value(size).
			Build()
	}
	b.resizeLocked(size)
	b.dirty = true
	return nil
}

func unknown(cmd uint32) error {
	return errors.New(errors.PhaseIoctl, errors.KindUnsupported).
		Detail("unknown command %#x", cmd).
		Build()
}

type handler struct {
	b *Buffer
}

func (h handler) Pure(_ *file.File, cmd uint32, _ uint64) (int32, error) {
	if cmd != Clear {
		return 0, unknown(cmd)
	}
	return 0, h.b.truncate(0)
}

func (h handler) Read(_ *file.File, cmd uint32, w *usermem.Writer) (int32, error) {
	if cmd != GetSize {
		return 0, unknown(cmd)
	}
	return 0, w.WriteUint64(h.b.Size())
}

func (h handler) Write(_ *file.File, cmd uint32, r *usermem.Reader) (int32, error) {
	if cmd != Truncate {
		return 0, unknown(cmd)
	}
	size, err := r.ReadUint64()
	if err != nil {
		return 0, err
	}
	return 0, h.b.truncate(size)
}

func (h handler) ReadWrite(_ *file.File, cmd uint32, s usermem.Slice) (int32, error) {
	if cmd != Exchange {
		return 0, unknown(cmd)
	}
	r := s.Reader()
	off, err := r.ReadUint64()
	if err != nil {
		return 0, err
	}
	val, err := r.ReadUint64()
	if err != nil {
		return 0, err
	}

	b := h.b
	b.mu.Lock()
	if off > uint64(len(b.data)) || uint64(len(b.data))-off < 8 {
		b.mu.Unlock()
		return 0, errors.InvalidOffset(errors.PhaseIoctl, off)
	}
	var old [8]byte
	copy(old[:], b.data[off:off+8])
	binary.LittleEndian.PutUint64(b.data[off:off+8], val)
	b.dirty = true
	b.mu.Unlock()

	return 0, s.Writer().WriteFull(old[:])
}

// compatHandler serves 32-bit callers. It has no Exchange.
type compatHandler struct {
	ioctl.UnimplementedHandler
	b *Buffer
}

func (h compatHandler) Pure(f *file.File, cmd uint32, arg uint64) (int32, error) {
	return handler{b: h.b}.Pure(f, cmd, arg)
}

func (h compatHandler) Read(_ *file.File, cmd uint32, w *usermem.Writer) (int32, error) {
	if cmd != GetSize32 {
		return 0, unknown(cmd)
	}
	size := h.b.Size()
	if size > math.MaxUint32 {
		return 0, errors.New(errors.PhaseIoctl, errors.KindErrno).
			Errno(errors.ERANGE).
			Detail("size %d does not fit 32 bits", size).
			Build()
	}
	return 0, w.WriteUint32(uint32(size))
}

func (h compatHandler) Write(_ *file.File, cmd uint32, r *usermem.Reader) (int32, error) {
	if cmd != Truncate32 {
		return 0, unknown(cmd)
	}
	size, err := r.ReadUint32()
	if err != nil {
		return 0, err
	}
	return 0, h.b.truncate(uint64(size))
}

// Driver shares one Buffer between all opens.
type Driver struct {
	shared *ownership.Arc[Buffer]
}

// NewDriver creates a driver whose buffer is limited to limit bytes. A
// non-positive limit selects DefaultLimit.
func NewDriver(limit int) *Driver {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Driver{shared: ownership.NewArc(&Buffer{limit: uint64(limit)})}
}

// Buffer returns the shared buffer.
func (d *Driver) Buffer() *Buffer {
	return d.shared.Get()
}

// Close drops the driver's reference to the buffer.
func (d *Driver) Close() error {
	d.shared.Drop()
	return nil
}

func (*Driver) Capabilities() fileops.Capabilities {
	return fileops.Use(
		fileops.CapRead,
		fileops.CapWrite,
		fileops.CapSeek,
		fileops.CapIoctl,
		fileops.CapCompatIoctl,
		fileops.CapFsync,
	)
}

func (d *Driver) Open() (ownership.Pointer[Buffer], error) {
	return d.shared.Clone(), nil
}
