package usermem

import (
	"encoding/binary"
	"io"

	"github.com/wippyai/chardev/errors"
)

// AddressSpace is the caller's memory as seen by the host. Addresses are
// untrusted; implementations validate every copy.
type AddressSpace interface {
	// CopyIn copies len(dst) bytes starting at addr into dst. It returns the
	// number of bytes copied before a fault, if any.
	CopyIn(addr uint64, dst []byte) (int, error)
	// CopyOut copies src to memory starting at addr.
	CopyOut(addr uint64, src []byte) (int, error)
	// Limit is one past the highest valid address.
	Limit() uint64
}

// Slice is a validated (address, length) pair in an AddressSpace. It may be
// turned into a Reader or a Writer; callers that need both must obtain them
// from the same Slice so the buffer is only materialized once.
type Slice struct {
	as     AddressSpace
	addr   uint64
	length uint64
}

// NewSlice validates that [addr, addr+length) lies within the address space.
// It does not touch memory; individual copies can still fault.
func NewSlice(as AddressSpace, addr, length uint64) (Slice, error) {
	if as == nil {
		return Slice{}, errors.New(errors.PhaseUsermem, errors.KindFault).
			Detail("no address space").
			Build()
	}
	end := addr + length
	if end < addr || end > as.Limit() {
		return Slice{}, errors.Fault(errors.PhaseUsermem, addr, length)
	}
	return Slice{as: as, addr: addr, length: length}, nil
}

// Addr returns the start address.
func (s Slice) Addr() uint64 { return s.addr }

// Len returns the declared length.
func (s Slice) Len() uint64 { return s.length }

// Reader returns a reader consuming the slice front to back.
func (s Slice) Reader() *Reader {
	return &Reader{cursor{as: s.as, addr: s.addr, remaining: s.length}}
}

// Writer returns a writer producing into the slice front to back.
func (s Slice) Writer() *Writer {
	return &Writer{cursor{as: s.as, addr: s.addr, remaining: s.length}}
}

// ReadAll copies the whole slice out of user memory.
func (s Slice) ReadAll() ([]byte, error) {
	buf := make([]byte, s.length)
	if err := s.Reader().ReadFull(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// WriteAll copies data into the slice. data must fit.
func (s Slice) WriteAll(data []byte) error {
	return s.Writer().WriteFull(data)
}

type cursor struct {
	as        AddressSpace
	addr      uint64
	remaining uint64
}

// Len returns the number of bytes left in the view.
func (c *cursor) Len() uint64 { return c.remaining }

// IsEmpty reports whether the view is exhausted.
func (c *cursor) IsEmpty() bool { return c.remaining == 0 }

func (c *cursor) advance(n int) {
	c.addr += uint64(n)
	c.remaining -= uint64(n)
}

func (c *cursor) clamp(n int) int {
	if uint64(n) > c.remaining {
		return int(c.remaining)
	}
	return n
}

// Reader consumes bytes from user memory. Implements io.Reader.
type Reader struct {
	cursor
}

// Read copies up to min(len(dst), Len()) bytes and advances. At the end of the
// view it returns io.EOF.
func (r *Reader) Read(dst []byte) (int, error) {
	if r.remaining == 0 {
		if len(dst) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}
	n := r.clamp(len(dst))
	got, err := r.as.CopyIn(r.addr, dst[:n])
	r.advance(got)
	if err != nil {
		return got, errors.Wrap(errors.PhaseUsermem, errors.KindFault, err, "copy from user")
	}
	return got, nil
}

// ReadFull fills dst or fails with a fault without consuming past the view.
func (r *Reader) ReadFull(dst []byte) error {
	if uint64(len(dst)) > r.remaining {
		return errors.Fault(errors.PhaseUsermem, r.addr, uint64(len(dst)))
	}
	_, err := r.Read(dst)
	return err
}

// ReadUint32 reads a little-endian uint32.
func (r *Reader) ReadUint32() (uint32, error) {
	var b [4]byte
	if err := r.ReadFull(b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

// ReadUint64 reads a little-endian uint64.
func (r *Reader) ReadUint64() (uint64, error) {
	var b [8]byte
	if err := r.ReadFull(b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

// Skip discards up to n bytes without copying them.
func (r *Reader) Skip(n uint64) uint64 {
	if n > r.remaining {
		n = r.remaining
	}
	r.addr += n
	r.remaining -= n
	return n
}

// Writer produces bytes into user memory. Implements io.Writer.
type Writer struct {
	cursor
}

// Write copies min(len(src), Len()) bytes and advances. A short write returns
// io.ErrShortWrite so io.Copy-style callers stop.
func (w *Writer) Write(src []byte) (int, error) {
	n := w.clamp(len(src))
	got, err := w.as.CopyOut(w.addr, src[:n])
	w.advance(got)
	if err != nil {
		return got, errors.Wrap(errors.PhaseUsermem, errors.KindFault, err, "copy to user")
	}
	if n < len(src) {
		return got, io.ErrShortWrite
	}
	return got, nil
}

// WriteFull writes all of src or fails with a fault without writing past the view.
func (w *Writer) WriteFull(src []byte) error {
	if uint64(len(src)) > w.remaining {
		return errors.Fault(errors.PhaseUsermem, w.addr, uint64(len(src)))
	}
	_, err := w.Write(src)
	return err
}

// WriteUint32 writes a little-endian uint32.
func (w *Writer) WriteUint32(v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return w.WriteFull(b[:])
}

// WriteUint64 writes a little-endian uint64.
func (w *Writer) WriteUint64(v uint64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return w.WriteFull(b[:])
}

// Fill writes up to n copies of b, stopping at the end of the view.
func (w *Writer) Fill(b byte, n uint64) (uint64, error) {
	var chunk [256]byte
	for i := range chunk {
		chunk[i] = b
	}
	var total uint64
	for n > 0 && w.remaining > 0 {
		step := min(n, uint64(len(chunk)))
		got, err := w.Write(chunk[:step])
		total += uint64(got)
		n -= uint64(got)
		if err != nil && err != io.ErrShortWrite {
			return total, err
		}
	}
	return total, nil
}
