package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:  PhaseRead,
				Kind:   KindFault,
				Detail: "bad buffer",
			},
			contains: []string{"[read]", "fault", "bad buffer"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseSeek,
				Kind:  KindInvalidArgument,
			},
			contains: []string{"[seek]", "invalid_argument"},
		},
		{
			name: "explicit errno",
			err: &Error{
				Phase: PhaseIoctl,
				Kind:  KindErrno,
				Errno: ENOTTY,
			},
			contains: []string{"[ioctl]", "errno", "ENOTTY"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseRegister,
				Kind:   KindOutOfMemory,
				Detail: "no minors left",
				Cause:  errors.New("underlying error"),
			},
			contains: []string{"[register]", "out_of_memory", "no minors left", "caused by", "underlying error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := Wrap(PhaseUsermem, KindFault, cause, "copy failed")

	if !errors.Is(errors.Unwrap(err), cause) {
		t.Error("errors.Unwrap did not return cause")
	}
}

func TestError_Is(t *testing.T) {
	err := InvalidOffset(PhaseRead, int64(-1))

	if !errors.Is(err, &Error{Phase: PhaseRead, Kind: KindInvalidArgument}) {
		t.Error("expected match on phase and kind")
	}
	if errors.Is(err, &Error{Phase: PhaseWrite, Kind: KindInvalidArgument}) {
		t.Error("different phase should not match")
	}
	if !errors.Is(err, EINVAL) {
		t.Error("invalid argument should match EINVAL")
	}
	if errors.Is(err, EFAULT) {
		t.Error("invalid argument should not match EFAULT")
	}
}

func TestToErrno(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Errno
	}{
		{"nil", nil, 0},
		{"invalid", InvalidArgument(PhaseSeek, "bad whence"), EINVAL},
		{"unsupported", Unsupported(PhaseRead, "read"), EINVAL},
		{"fault", Fault(PhaseWrite, 0x10, 4), EFAULT},
		{"oom", OutOfMemory(PhaseRegister, "minors"), ENOMEM},
		{"already registered", AlreadyRegistered("misc"), EINVAL},
		{"busy", Busy(PhaseRegister, "name taken"), EBUSY},
		{"not found", NotFound(PhaseHost, "device", "x"), ENODEV},
		{"bad fd", BadDescriptor(3), EBADF},
		{"would block", WouldBlock(PhaseRead), EAGAIN},
		{"interrupted", Interrupted(PhaseRead), EINTR},
		{"bare errno", ENOTTY, ENOTTY},
		{"wrapped errno", fmt.Errorf("ioctl: %w", ERANGE), ERANGE},
		{"explicit override", New(PhaseIoctl, KindErrno).Errno(EOPNOTSUPP).Build(), EOPNOTSUPP},
		{"foreign error", errors.New("boom"), EINVAL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ToErrno(tt.err); got != tt.want {
				t.Errorf("ToErrno() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNegative(t *testing.T) {
	if got := Negative(Fault(PhaseRead, 0, 1)); got != -14 {
		t.Errorf("Negative(fault) = %d, want -14", got)
	}
	if got := Negative(nil); got != 0 {
		t.Errorf("Negative(nil) = %d, want 0", got)
	}
}

func TestErrno_Name(t *testing.T) {
	if EFAULT.Name() != "EFAULT" {
		t.Errorf("EFAULT.Name() = %q", EFAULT.Name())
	}
	if Errno(200).Name() != "errno 200" {
		t.Errorf("Errno(200).Name() = %q", Errno(200).Name())
	}
}

func TestFromReturn(t *testing.T) {
	if FromReturn(12) != 0 {
		t.Error("positive return is not an error")
	}
	if FromReturn(-22) != EINVAL {
		t.Error("-22 should decode to EINVAL")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("inner")
	err := New(PhaseHost, KindBusy).
		Detail("device %q busy", "scratch").
		Value(7).
		Cause(cause).
		Build()

	if err.Detail != `device "scratch" busy` {
		t.Errorf("unexpected detail %q", err.Detail)
	}
	if err.Value != 7 {
		t.Errorf("unexpected value %v", err.Value)
	}
	if !errors.Is(err, cause) {
		t.Error("cause not reachable")
	}
	if ToErrno(err) != EBUSY {
		t.Errorf("ToErrno = %v", ToErrno(err))
	}
}
