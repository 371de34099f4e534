package host

import (
	"math"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/chardev/errors"
	"github.com/wippyai/chardev/file"
	"github.com/wippyai/chardev/usermem"
)

// openFile is one open file description. It is released when the descriptor
// is closed and the last in-flight call on it has returned.
type openFile struct {
	node  *node
	state file.State
	refs  atomic.Int32
	// posMu is held across read, write and llseek so that each sees and
	// updates the position as a unit.
	posMu sync.Mutex
}

// Process is a descriptor table plus the address space its user buffers live
// in. Every call returns a non-negative result or a negated errno.
type Process struct {
	host *Host
	mem  usermem.AddressSpace

	mu  sync.RWMutex
	fds map[int32]*openFile
}

// Mem returns the process address space.
func (p *Process) Mem() usermem.AddressSpace {
	return p.mem
}

func fail(op string, err error) int64 {
	n := errors.Negative(err)
	Logger().Debug("syscall failed",
		zap.String("op", op),
		zap.Int64("errno", -n),
		zap.Error(err))
	return n
}

func errnoResult(op string, n errors.Errno, detail string) int64 {
	return fail(op, errors.New(errors.PhaseHost, errors.KindErrno).Errno(n).Detail("%s", detail).Build())
}

// Open opens the device at path ("name" or "/dev/name") and returns a new
// descriptor.
func (p *Process) Open(path string, flags uint32) int64 {
	n, err := p.host.resolve(path)
	if err != nil {
		return fail("open", err)
	}

	fd, err := p.reserve()
	if err != nil {
		return fail("open", err)
	}

	of := &openFile{
		node:  n,
		state: file.State{Mem: p.mem, Flags: flags},
	}
	if ret := n.table.Open(&n.inode, &of.state); ret < 0 {
		p.unreserve(fd)
		Logger().Debug("open rejected by driver",
			zap.String("device", n.inode.Name),
			zap.Int32("errno", -ret))
		return int64(ret)
	}
	of.refs.Store(1)

	p.mu.Lock()
	p.fds[fd] = of
	p.mu.Unlock()

	Logger().Debug("file opened", zap.String("device", n.inode.Name), zap.Int32("fd", fd))
	return int64(fd)
}

// reserve claims the lowest free descriptor.
func (p *Process) reserve() (int32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for fd := int32(0); int(fd) < p.host.opts.MaxFDs; fd++ {
		if _, used := p.fds[fd]; !used {
			p.fds[fd] = nil
			return fd, nil
		}
	}
	return 0, errors.New(errors.PhaseOpen, errors.KindErrno).
		Errno(errors.EMFILE).
		Detail("descriptor table full").
		Build()
}

func (p *Process) unreserve(fd int32) {
	p.mu.Lock()
	delete(p.fds, fd)
	p.mu.Unlock()
}

// get takes a reference on the file behind fd. Callers must put it back.
func (p *Process) get(fd int32) (*openFile, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	of := p.fds[fd]
	if of == nil {
		return nil, errors.BadDescriptor(fd)
	}
	of.refs.Add(1)
	return of, nil
}

func (p *Process) put(of *openFile) {
	if of.refs.Add(-1) == 0 {
		of.node.table.Release(&of.node.inode, &of.state)
		Logger().Debug("file released", zap.String("device", of.node.inode.Name))
	}
}

// Close removes fd from the table. The file is released once no call on it
// is in flight.
func (p *Process) Close(fd int32) int64 {
	p.mu.Lock()
	of := p.fds[fd]
	if of != nil {
		delete(p.fds, fd)
	}
	p.mu.Unlock()

	if of == nil {
		return fail("close", errors.BadDescriptor(fd))
	}
	p.put(of)
	return 0
}

// CloseAll closes every open descriptor, as on process exit.
func (p *Process) CloseAll() {
	p.mu.Lock()
	files := make([]*openFile, 0, len(p.fds))
	for fd, of := range p.fds {
		if of != nil {
			files = append(files, of)
			delete(p.fds, fd)
		}
	}
	p.mu.Unlock()

	for _, of := range files {
		p.put(of)
	}
}

// OpenFDs returns the number of open descriptors.
func (p *Process) OpenFDs() int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	count := 0
	for _, of := range p.fds {
		if of != nil {
			count++
		}
	}
	return count
}

func accessMode(flags uint32) uint32 {
	return flags & 0o3
}

// Read reads up to length bytes into buf at the file position.
func (p *Process) Read(fd int32, buf, length uint64) int64 {
	of, err := p.get(fd)
	if err != nil {
		return fail("read", err)
	}
	defer p.put(of)

	if accessMode(of.state.Flags) == file.O_WRONLY {
		return fail("read", errors.BadDescriptor(fd))
	}
	read := of.node.table.Read
	if read == nil {
		return errnoResult("read", errors.EINVAL, "device has no read")
	}
	return p.transfer(of, func(pos *int64) int64 {
		return read(&of.state, buf, length, pos)
	})
}

// Write writes length bytes from buf at the file position.
func (p *Process) Write(fd int32, buf, length uint64) int64 {
	of, err := p.get(fd)
	if err != nil {
		return fail("write", err)
	}
	defer p.put(of)

	if accessMode(of.state.Flags) == file.O_RDONLY {
		return fail("write", errors.BadDescriptor(fd))
	}
	write := of.node.table.Write
	if write == nil {
		return errnoResult("write", errors.EINVAL, "device has no write")
	}
	return p.transfer(of, func(pos *int64) int64 {
		return write(&of.state, buf, length, pos)
	})
}

func (p *Process) transfer(of *openFile, call func(pos *int64) int64) int64 {
	of.posMu.Lock()
	defer of.posMu.Unlock()

	pos := of.state.Pos
	n := call(&pos)
	if n >= 0 {
		of.state.Pos = pos
	}
	return n
}

// Lseek repositions the file.
func (p *Process) Lseek(fd int32, offset int64, whence int32) int64 {
	of, err := p.get(fd)
	if err != nil {
		return fail("lseek", err)
	}
	defer p.put(of)

	llseek := of.node.table.Llseek
	if llseek == nil {
		return errnoResult("lseek", errors.ESPIPE, "device is not seekable")
	}
	of.posMu.Lock()
	defer of.posMu.Unlock()
	return llseek(&of.state, offset, whence)
}

// Ioctl issues a device-control command.
func (p *Process) Ioctl(fd int32, cmd uint32, arg uint64) int64 {
	of, err := p.get(fd)
	if err != nil {
		return fail("ioctl", err)
	}
	defer p.put(of)

	ioctl := of.node.table.UnlockedIoctl
	if ioctl == nil {
		return errnoResult("ioctl", errors.ENOTTY, "device has no ioctl")
	}
	return ioctl(&of.state, cmd, arg)
}

// CompatIoctl issues a device-control command on behalf of a 32-bit caller.
func (p *Process) CompatIoctl(fd int32, cmd uint32, arg uint64) int64 {
	of, err := p.get(fd)
	if err != nil {
		return fail("compat_ioctl", err)
	}
	defer p.put(of)

	ioctl := of.node.table.CompatIoctl
	if ioctl == nil {
		return errnoResult("compat_ioctl", errors.ENOTTY, "device has no compat ioctl")
	}
	return ioctl(&of.state, cmd, uint64(uint32(arg)))
}

// Fsync flushes the whole file.
func (p *Process) Fsync(fd int32, datasync bool) int64 {
	of, err := p.get(fd)
	if err != nil {
		return fail("fsync", err)
	}
	defer p.put(of)

	fsync := of.node.table.Fsync
	if fsync == nil {
		return errnoResult("fsync", errors.EINVAL, "device has no fsync")
	}
	var ds int32
	if datasync {
		ds = 1
	}
	return int64(fsync(&of.state, 0, math.MaxInt64, ds))
}
