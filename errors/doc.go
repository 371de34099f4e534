// Package errors provides structured error types for the chardev module.
//
// Errors are categorized by Phase (which file operation or subsystem produced
// them) and Kind (error category). Every Kind maps onto a host errno so the
// trampolines can hand a negative error code back to the host:
//
//	err := errors.New(errors.PhaseRead, errors.KindFault).
//		Detail("buffer at %#x not mapped", addr).
//		Build()
//
//	ret := errors.Negative(err) // -14 (EFAULT)
//
// Drivers that need a specific errno can return an Errno directly or set it
// on the builder:
//
//	return errors.ENOTTY
//	return errors.New(errors.PhaseIoctl, errors.KindErrno).Errno(errors.ERANGE).Build()
//
// All errors implement the standard error interface and support errors.Is/As,
// including errors.Is(err, errors.EINVAL).
package errors
