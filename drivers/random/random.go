// Package random is a driver that reads as a stream of random bytes and
// accepts writes as additional entropy, which it discards.
package random

import (
	"crypto/rand"
	"io"

	"github.com/wippyai/chardev/errors"
	"github.com/wippyai/chardev/file"
	"github.com/wippyai/chardev/fileops"
	"github.com/wippyai/chardev/ownership"
	"github.com/wippyai/chardev/usermem"
)

const chunkSize = 256

// File is one open of the random device.
type File struct {
	fileops.Unimplemented
	src io.Reader
}

// Read fills the whole buffer. The offset is ignored.
func (r *File) Read(_ *file.File, w *usermem.Writer, _ uint64) error {
	var chunk [chunkSize]byte
	for !w.IsEmpty() {
		n := chunkSize
		if w.Len() < uint64(n) {
			n = int(w.Len())
		}
		if _, err := io.ReadFull(r.src, chunk[:n]); err != nil {
			return errors.New(errors.PhaseRead, errors.KindErrno).
				Errno(errors.EIO).
				Cause(err).
				Detail("entropy source").
				Build()
		}
		if err := w.WriteFull(chunk[:n]); err != nil {
			return err
		}
	}
	return nil
}

// Write consumes the buffer and throws it away.
func (r *File) Write(_ *file.File, rd *usermem.Reader, _ uint64) (int64, error) {
	return int64(rd.Skip(rd.Len())), nil
}

// Driver opens random Files. Source defaults to crypto/rand.
type Driver struct {
	Source io.Reader
}

func (Driver) Capabilities() fileops.Capabilities {
	return fileops.Use(fileops.CapRead, fileops.CapWrite)
}

func (d Driver) Open() (ownership.Pointer[File], error) {
	src := d.Source
	if src == nil {
		src = rand.Reader
	}
	return ownership.NewBox(&File{src: src}), nil
}
