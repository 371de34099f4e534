// Package hostcall exposes a host's character device system calls to
// WebAssembly guests running under wazero.
//
// The host module (named "chardev" by default) exports:
//
//	open(path_ptr, path_len, flags i32) i64
//	close(fd i32) i64
//	read(fd, buf, len i32) i64
//	write(fd, buf, len i32) i64
//	lseek(fd i32, offset i64, whence i32) i64
//	ioctl(fd, cmd i32, arg i64) i64
//	compat_ioctl(fd, cmd i32, arg i64) i64
//	fsync(fd, datasync i32) i64
//
// Results are non-negative on success and a negated errno on failure.
// Pointers are offsets into the calling module's exported memory and are
// validated against it. Each calling module instance has its own descriptor
// table.
//
// ShimWASM builds a minimal guest that re-exports the syscalls, and Guest
// drives one from Go; the CLI and tests use it to issue calls from inside a
// real guest address space.
package hostcall
