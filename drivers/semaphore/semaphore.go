// Package semaphore is a counting semaphore exposed as a device. Writing n
// bytes adds n to the count. Each read of a non-empty buffer at offset zero
// waits for the count to be positive, takes one unit and returns one byte.
//
// All opens share one Semaphore; each open keeps its own read counter, which
// ioctl GetReadCount and SetReadCount expose.
package semaphore

import (
	"sync"
	"sync/atomic"

	"github.com/wippyai/chardev/errors"
	"github.com/wippyai/chardev/file"
	"github.com/wippyai/chardev/fileops"
	"github.com/wippyai/chardev/ioctl"
	"github.com/wippyai/chardev/ownership"
	"github.com/wippyai/chardev/usermem"
)

// Commands understood by Ioctl. Both carry a little-endian uint64.
var (
	GetReadCount = ioctl.IOR('c', 1, 8)
	SetReadCount = ioctl.IOW('c', 1, 8)
)

// Semaphore is the state shared by all opens.
type Semaphore struct {
	mu      sync.Mutex
	changed *sync.Cond
	count   uint64
	maxSeen uint64
	// epoch is bumped by Interrupt; waiters that see it move give up.
	epoch uint64
}

func newSemaphore() *Semaphore {
	s := &Semaphore{}
	s.changed = sync.NewCond(&s.mu)
	return s
}

func (s *Semaphore) consume(blocking bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	epoch := s.epoch
	for s.count == 0 {
		if !blocking {
			return errors.WouldBlock(errors.PhaseRead)
		}
		s.changed.Wait()
		if s.epoch != epoch {
			return errors.Interrupted(errors.PhaseRead)
		}
	}
	s.count--
	return nil
}

func (s *Semaphore) add(n uint64) {
	s.mu.Lock()
	if s.count+n < s.count {
		s.count = ^uint64(0)
	} else {
		s.count += n
	}
	if s.count > s.maxSeen {
		s.maxSeen = s.count
	}
	s.mu.Unlock()
	s.changed.Broadcast()
}

// Interrupt wakes every blocked reader with EINTR.
func (s *Semaphore) Interrupt() {
	s.mu.Lock()
	s.epoch++
	s.mu.Unlock()
	s.changed.Broadcast()
}

// Count returns the current count and the highest count seen.
func (s *Semaphore) Count() (count, maxSeen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count, s.maxSeen
}

// File is one open of the device.
type File struct {
	fileops.Unimplemented
	shared    *ownership.Arc[Semaphore]
	readCount atomic.Uint64
}

// Close drops this open's reference to the shared state.
func (f *File) Close() error {
	f.shared.Drop()
	return nil
}

func (f *File) Read(h *file.File, w *usermem.Writer, offset uint64) error {
	if w.IsEmpty() || offset > 0 {
		return nil
	}
	if err := f.shared.Get().consume(h.IsBlocking()); err != nil {
		return err
	}
	if err := w.WriteFull([]byte{0}); err != nil {
		return err
	}
	f.readCount.Add(1)
	return nil
}

func (f *File) Write(_ *file.File, r *usermem.Reader, _ uint64) (int64, error) {
	n := r.Skip(r.Len())
	f.shared.Get().add(n)
	return int64(n), nil
}

func (f *File) Ioctl(h *file.File, cmd *ioctl.Command) (int32, error) {
	return cmd.Dispatch(ioctlHandler{f: f}, h)
}

type ioctlHandler struct {
	ioctl.UnimplementedHandler
	f *File
}

func (c ioctlHandler) Read(_ *file.File, cmd uint32, w *usermem.Writer) (int32, error) {
	if cmd != GetReadCount {
		return 0, errors.Unsupported(errors.PhaseIoctl, "unknown command")
	}
	return 0, w.WriteUint64(c.f.readCount.Load())
}

func (c ioctlHandler) Write(_ *file.File, cmd uint32, r *usermem.Reader) (int32, error) {
	if cmd != SetReadCount {
		return 0, errors.Unsupported(errors.PhaseIoctl, "unknown command")
	}
	v, err := r.ReadUint64()
	if err != nil {
		return 0, err
	}
	c.f.readCount.Store(v)
	return 0, nil
}

// Driver hands every open a reference to one Semaphore.
type Driver struct {
	shared *ownership.Arc[Semaphore]
}

// NewDriver creates a driver with a zero count.
func NewDriver() *Driver {
	return &Driver{shared: ownership.NewArc(newSemaphore())}
}

// Semaphore returns the shared state.
func (d *Driver) Semaphore() *Semaphore {
	return d.shared.Get()
}

// Refs returns the number of references to the shared state, the driver's
// own included.
func (d *Driver) Refs() int64 {
	return d.shared.RefCount()
}

// Close drops the driver's reference. Files still open keep the state alive.
func (d *Driver) Close() error {
	d.shared.Drop()
	return nil
}

func (*Driver) Capabilities() fileops.Capabilities {
	return fileops.Use(fileops.CapRead, fileops.CapWrite, fileops.CapIoctl)
}

func (d *Driver) Open() (ownership.Pointer[File], error) {
	return ownership.NewBox(&File{shared: d.shared.Clone()}), nil
}
