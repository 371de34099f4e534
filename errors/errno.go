package errors

import "strconv"

// Errno is a host error number. Values follow the Linux numbering, which is
// the convention the dispatch table reports in regardless of the build host.
type Errno int32

const (
	EPERM      Errno = 1
	ENOENT     Errno = 2
	EINTR      Errno = 4
	EIO        Errno = 5
	EBADF      Errno = 9
	EAGAIN     Errno = 11
	ENOMEM     Errno = 12
	EFAULT     Errno = 14
	EBUSY      Errno = 16
	EEXIST     Errno = 17
	ENODEV     Errno = 19
	EINVAL     Errno = 22
	EMFILE     Errno = 24
	ENOTTY     Errno = 25
	ENOSPC     Errno = 28
	ESPIPE     Errno = 29
	ERANGE     Errno = 34
	ENOSYS     Errno = 38
	EOPNOTSUPP Errno = 95
)

var errnoNames = map[Errno]string{
	EPERM:      "EPERM",
	ENOENT:     "ENOENT",
	EINTR:      "EINTR",
	EIO:        "EIO",
	EBADF:      "EBADF",
	EAGAIN:     "EAGAIN",
	ENOMEM:     "ENOMEM",
	EFAULT:     "EFAULT",
	EBUSY:      "EBUSY",
	EEXIST:     "EEXIST",
	ENODEV:     "ENODEV",
	EINVAL:     "EINVAL",
	EMFILE:     "EMFILE",
	ENOTTY:     "ENOTTY",
	ENOSPC:     "ENOSPC",
	ESPIPE:     "ESPIPE",
	ERANGE:     "ERANGE",
	ENOSYS:     "ENOSYS",
	EOPNOTSUPP: "EOPNOTSUPP",
}

// Name returns the symbolic name, or "errno N" for numbers without one.
func (e Errno) Name() string {
	if s, ok := errnoNames[e]; ok {
		return s
	}
	return "errno " + strconv.Itoa(int(e))
}

// Error implements the error interface
func (e Errno) Error() string {
	return e.Name()
}

// FromReturn decodes a host return value. Non-negative values are successes
// and yield 0.
func FromReturn(ret int64) Errno {
	if ret >= 0 {
		return 0
	}
	return Errno(-ret)
}
