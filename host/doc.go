// Package host simulates the kernel side of character devices: a device
// namespace, per-process descriptor tables, and the system calls that invoke
// a device's dispatch table.
//
// A nil slot is handled here, the way the kernel would: read and write fail
// with EINVAL, llseek with ESPIPE, ioctl with ENOTTY and fsync with EINVAL.
// The driver is never involved.
//
// Descriptors hold a reference on their open file, as does every call in
// flight. Close drops the descriptor's reference; the release slot runs when
// the last reference goes away, so each successful open is released exactly
// once and never while a call on it is running.
package host
