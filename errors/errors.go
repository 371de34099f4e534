package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Phase indicates which operation the error occurred in
type Phase string

const (
	PhaseOpen      Phase = "open"      // open callback
	PhaseRelease   Phase = "release"   // release callback
	PhaseRead      Phase = "read"      // read callback
	PhaseWrite     Phase = "write"     // write callback
	PhaseSeek      Phase = "seek"      // llseek callback
	PhaseIoctl     Phase = "ioctl"     // unlocked/compat ioctl
	PhaseFsync     Phase = "fsync"     // fsync callback
	PhaseRegister  Phase = "register"  // device registration
	PhaseUsermem   Phase = "usermem"   // user buffer validation and copies
	PhaseOwnership Phase = "ownership" // release/reclaim of per-open state
	PhaseHost      Phase = "host"      // host syscall entry
)

// Kind categorizes the error
type Kind string

const (
	KindInvalidArgument   Kind = "invalid_argument"
	KindUnsupported       Kind = "unsupported"
	KindFault             Kind = "fault"
	KindOutOfMemory       Kind = "out_of_memory"
	KindAlreadyRegistered Kind = "already_registered"
	KindBusy              Kind = "busy"
	KindNotFound          Kind = "not_found"
	KindBadDescriptor     Kind = "bad_descriptor"
	KindWouldBlock        Kind = "would_block"
	KindInterrupted       Kind = "interrupted"
	KindErrno             Kind = "errno"
)

// Error is the structured error type used throughout the module
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Errno  Errno
	Detail string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Errno != 0 {
		b.WriteString(" (")
		b.WriteString(e.Errno.Name())
		b.WriteByte(')')
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error.
// A bare Errno target matches when the error maps to that errno.
func (e *Error) Is(target error) bool {
	switch t := target.(type) {
	case *Error:
		return e.Phase == t.Phase && e.Kind == t.Kind
	case Errno:
		return e.errno() == t
	}
	return false
}

func (e *Error) errno() Errno {
	if e.Errno != 0 {
		return e.Errno
	}
	return kindErrno(e.Kind)
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Errno overrides the errno the error maps to
func (b *Builder) Errno(n Errno) *Builder {
	b.err.Errno = n
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// InvalidArgument creates an invalid argument error
func InvalidArgument(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidArgument,
		Detail: detail,
	}
}

// InvalidOffset creates an invalid argument error for an offset outside [0, 2^63)
func InvalidOffset(phase Phase, offset any) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidArgument,
		Detail: fmt.Sprintf("offset %v outside the supported range", offset),
		Value:  offset,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// Fault creates an addressing failure for a user buffer
func Fault(phase Phase, addr, length uint64) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindFault,
		Detail: fmt.Sprintf("bad user buffer: addr=%#x, length=%d", addr, length),
		Value:  addr,
	}
}

// OutOfMemory creates a resource exhaustion error
func OutOfMemory(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfMemory,
		Detail: what,
	}
}

// AlreadyRegistered creates a double registration error
func AlreadyRegistered(name string) *Error {
	return &Error{
		Phase:  PhaseRegister,
		Kind:   KindAlreadyRegistered,
		Detail: fmt.Sprintf("registration %q already registered", name),
	}
}

// Busy creates a busy error, used when a device name is taken
func Busy(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindBusy,
		Detail: detail,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// BadDescriptor creates a bad file descriptor error
func BadDescriptor(fd int32) *Error {
	return &Error{
		Phase:  PhaseHost,
		Kind:   KindBadDescriptor,
		Detail: fmt.Sprintf("fd %d is not open", fd),
		Value:  fd,
	}
}

// WouldBlock creates an error for a non-blocking call that would have blocked
func WouldBlock(phase Phase) *Error {
	return &Error{
		Phase: phase,
		Kind:  KindWouldBlock,
	}
}

// Interrupted creates an error for a blocking call that was cut short
func Interrupted(phase Phase) *Error {
	return &Error{
		Phase: phase,
		Kind:  KindInterrupted,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// ToErrno maps err to the host's errno convention.
// nil maps to 0; errors that carry no errno information map to EINVAL.
func ToErrno(err error) Errno {
	if err == nil {
		return 0
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e.errno()
	}
	var n Errno
	if stderrors.As(err, &n) {
		return n
	}
	return EINVAL
}

// Negative returns -errno for err, the value trampolines hand back to the host.
func Negative(err error) int64 {
	return -int64(ToErrno(err))
}

func kindErrno(k Kind) Errno {
	switch k {
	case KindInvalidArgument, KindUnsupported, KindAlreadyRegistered:
		return EINVAL
	case KindFault:
		return EFAULT
	case KindOutOfMemory:
		return ENOMEM
	case KindBusy:
		return EBUSY
	case KindNotFound:
		return ENODEV
	case KindBadDescriptor:
		return EBADF
	case KindWouldBlock:
		return EAGAIN
	case KindInterrupted:
		return EINTR
	default:
		return EINVAL
	}
}
