package random

import (
	"bytes"
	stderrors "errors"
	"testing"
	"testing/iotest"

	"github.com/wippyai/chardev/errors"
	"github.com/wippyai/chardev/file"
	"github.com/wippyai/chardev/fileops"
	"github.com/wippyai/chardev/host"
	"github.com/wippyai/chardev/usermem"
)

func setup(t *testing.T, d Driver) (*host.Process, *usermem.BytesIO, int32) {
	t.Helper()
	h := host.New(host.DefaultOptions())
	if _, err := h.Register(host.Device{Name: "random", Major: host.MiscMajor, Minor: -1, Table: fileops.Build[File](d)}); err != nil {
		t.Fatal(err)
	}
	mem := usermem.NewBytesIO(0, 1024)
	p := h.NewProcess(mem)
	fd := p.Open("/dev/random", file.O_RDWR)
	if fd < 0 {
		t.Fatalf("open = %d", fd)
	}
	t.Cleanup(func() { p.Close(int32(fd)) })
	return p, mem, int32(fd)
}

func TestRead_FillsBuffer(t *testing.T) {
	src := bytes.Repeat([]byte{0xab}, 2000)
	p, mem, fd := setup(t, Driver{Source: bytes.NewReader(src)})

	if got := p.Read(fd, 10, 600); got != 600 {
		t.Fatalf("read = %d, want 600", got)
	}
	if !bytes.Equal(mem.Bytes[10:610], src[:600]) {
		t.Error("buffer not filled from the source")
	}
	if mem.Bytes[9] != 0 || mem.Bytes[610] != 0 {
		t.Error("read wrote outside the buffer")
	}
}

func TestRead_CryptoSource(t *testing.T) {
	p, mem, fd := setup(t, Driver{})
	if got := p.Read(fd, 0, 64); got != 64 {
		t.Fatalf("read = %d", got)
	}
	if bytes.Equal(mem.Bytes[:64], make([]byte, 64)) {
		t.Error("64 random bytes were all zero")
	}
}

func TestRead_SourceFailure(t *testing.T) {
	p, _, fd := setup(t, Driver{Source: iotest.ErrReader(stderrors.New("dry"))})
	if got := p.Read(fd, 0, 8); got != -int64(errors.EIO) {
		t.Fatalf("read = %d, want -EIO", got)
	}
}

func TestWrite_Discards(t *testing.T) {
	p, mem, fd := setup(t, Driver{})
	copy(mem.Bytes, "entropy")
	if got := p.Write(fd, 0, 7); got != 7 {
		t.Fatalf("write = %d, want 7", got)
	}
	if string(mem.Bytes[:7]) != "entropy" {
		t.Error("write modified the caller's buffer")
	}
}

func TestSeek_Unsupported(t *testing.T) {
	p, _, fd := setup(t, Driver{})
	if got := p.Lseek(fd, 0, fileops.WhenceSet); got != -int64(errors.ESPIPE) {
		t.Fatalf("lseek = %d, want -ESPIPE", got)
	}
}
