package hostcall

import (
	"context"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/chardev/errors"
)

const (
	i32 = api.ValueTypeI32
	i64 = api.ValueTypeI64
)

// syscall is one function of the host module. Every syscall returns an i64:
// the result, or a negated errno.
type syscall struct {
	name   string
	params []api.ValueType
	fn     func(m *Module, ctx context.Context, mod api.Module, stack []uint64)
}

var syscalls = []syscall{
	{"open", []api.ValueType{i32, i32, i32}, (*Module).open},
	{"close", []api.ValueType{i32}, (*Module).close},
	{"read", []api.ValueType{i32, i32, i32}, (*Module).read},
	{"write", []api.ValueType{i32, i32, i32}, (*Module).write},
	{"lseek", []api.ValueType{i32, i64, i32}, (*Module).lseek},
	{"ioctl", []api.ValueType{i32, i32, i64}, (*Module).ioctl},
	{"compat_ioctl", []api.ValueType{i32, i32, i64}, (*Module).compatIoctl},
	{"fsync", []api.ValueType{i32, i32}, (*Module).fsync},
}

// Syscalls returns the names of the functions the host module exports.
func Syscalls() []string {
	names := make([]string, len(syscalls))
	for i, s := range syscalls {
		names[i] = s.name
	}
	return names
}

func ret(stack []uint64, v int64) {
	stack[0] = uint64(v)
}

// open(path_ptr, path_len, flags i32) -> fd
func (m *Module) open(_ context.Context, mod api.Module, stack []uint64) {
	ptr, n, flags := api.DecodeU32(stack[0]), api.DecodeU32(stack[1]), api.DecodeU32(stack[2])
	mem := mod.Memory()
	if mem == nil {
		ret(stack, -int64(errors.EFAULT))
		return
	}
	path, ok := mem.Read(ptr, n)
	if !ok {
		ret(stack, -int64(errors.EFAULT))
		return
	}
	ret(stack, m.Process(mod).Open(string(path), flags))
}

// close(fd i32)
func (m *Module) close(_ context.Context, mod api.Module, stack []uint64) {
	ret(stack, m.Process(mod).Close(api.DecodeI32(stack[0])))
}

// read(fd, buf, len i32) -> count
func (m *Module) read(_ context.Context, mod api.Module, stack []uint64) {
	fd, buf, n := api.DecodeI32(stack[0]), api.DecodeU32(stack[1]), api.DecodeU32(stack[2])
	ret(stack, m.Process(mod).Read(fd, uint64(buf), uint64(n)))
}

// write(fd, buf, len i32) -> count
func (m *Module) write(_ context.Context, mod api.Module, stack []uint64) {
	fd, buf, n := api.DecodeI32(stack[0]), api.DecodeU32(stack[1]), api.DecodeU32(stack[2])
	ret(stack, m.Process(mod).Write(fd, uint64(buf), uint64(n)))
}

// lseek(fd i32, offset i64, whence i32) -> position
func (m *Module) lseek(_ context.Context, mod api.Module, stack []uint64) {
	fd, off, whence := api.DecodeI32(stack[0]), int64(stack[1]), api.DecodeI32(stack[2])
	ret(stack, m.Process(mod).Lseek(fd, off, whence))
}

// ioctl(fd, cmd i32, arg i64) -> result
func (m *Module) ioctl(_ context.Context, mod api.Module, stack []uint64) {
	fd, cmd, arg := api.DecodeI32(stack[0]), api.DecodeU32(stack[1]), stack[2]
	ret(stack, m.Process(mod).Ioctl(fd, cmd, arg))
}

// compat_ioctl(fd, cmd i32, arg i64) -> result
func (m *Module) compatIoctl(_ context.Context, mod api.Module, stack []uint64) {
	fd, cmd, arg := api.DecodeI32(stack[0]), api.DecodeU32(stack[1]), stack[2]
	ret(stack, m.Process(mod).CompatIoctl(fd, cmd, arg))
}

// fsync(fd, datasync i32)
func (m *Module) fsync(_ context.Context, mod api.Module, stack []uint64) {
	fd, datasync := api.DecodeI32(stack[0]), api.DecodeI32(stack[1])
	ret(stack, m.Process(mod).Fsync(fd, datasync != 0))
}
