package scratch

import (
	"encoding/binary"
	"testing"

	"github.com/wippyai/chardev/errors"
	"github.com/wippyai/chardev/file"
	"github.com/wippyai/chardev/fileops"
	"github.com/wippyai/chardev/host"
	"github.com/wippyai/chardev/usermem"
)

type fixture struct {
	d   *Driver
	p   *host.Process
	mem *usermem.BytesIO
	fd  int32
}

func setup(t *testing.T, limit int) *fixture {
	t.Helper()
	d := NewDriver(limit)
	h := host.New(host.DefaultOptions())
	if _, err := h.Register(host.Device{Name: "scratch", Major: host.MiscMajor, Minor: -1, Table: fileops.Build[Buffer](d)}); err != nil {
		t.Fatal(err)
	}
	mem := usermem.NewBytesIO(0, 256)
	p := h.NewProcess(mem)
	fd := p.Open("scratch", file.O_RDWR)
	if fd < 0 {
		t.Fatalf("open = %d", fd)
	}
	t.Cleanup(func() {
		p.CloseAll()
		d.Close()
	})
	return &fixture{d: d, p: p, mem: mem, fd: int32(fd)}
}

// put copies s to the start of user memory and writes it.
func (f *fixture) put(s string) int64 {
	copy(f.mem.Bytes, s)
	return f.p.Write(f.fd, 0, uint64(len(s)))
}

// get reads up to n bytes into user memory at 128 and returns them.
func (f *fixture) get(n uint64) (string, int64) {
	got := f.p.Read(f.fd, 128, n)
	if got < 0 {
		return "", got
	}
	return string(f.mem.Bytes[128 : 128+got]), got
}

func TestReadWriteSeek(t *testing.T) {
	f := setup(t, 0)

	if got := f.put("hello world"); got != 11 {
		t.Fatalf("write = %d", got)
	}
	if got := f.p.Lseek(f.fd, 6, fileops.WhenceSet); got != 6 {
		t.Fatalf("lseek set = %d", got)
	}
	if s, _ := f.get(5); s != "world" {
		t.Errorf("read = %q, want world", s)
	}
	if s, n := f.get(5); n != 0 {
		t.Errorf("read at end = %q", s)
	}

	if got := f.p.Lseek(f.fd, -5, fileops.WhenceEnd); got != 6 {
		t.Fatalf("lseek end = %d", got)
	}
	if got := f.p.Lseek(f.fd, -6, fileops.WhenceCur); got != 0 {
		t.Fatalf("lseek cur = %d", got)
	}
	if s, _ := f.get(64); s != "hello world" {
		t.Errorf("read = %q", s)
	}
	if got := f.p.Lseek(f.fd, -1, fileops.WhenceSet); got != -int64(errors.EINVAL) {
		t.Errorf("lseek negative = %d", got)
	}
	if got := f.p.Lseek(f.fd, 0, 3); got != -int64(errors.EINVAL) {
		t.Errorf("lseek bad whence = %d", got)
	}
}

func TestWrite_Hole(t *testing.T) {
	f := setup(t, 0)
	f.p.Lseek(f.fd, 10, fileops.WhenceSet)
	if got := f.put("x"); got != 1 {
		t.Fatalf("write = %d", got)
	}
	if size := f.d.Buffer().Size(); size != 11 {
		t.Fatalf("size = %d", size)
	}
	f.p.Lseek(f.fd, 0, fileops.WhenceSet)
	if s, _ := f.get(64); s != "\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00x" {
		t.Errorf("read = %q", s)
	}
}

func TestWrite_Limit(t *testing.T) {
	f := setup(t, 16)
	if got := f.put("0123456789abcdefXYZ"); got != 16 {
		t.Fatalf("write = %d, want 16", got)
	}
	if got := f.put("more"); got != -int64(errors.ENOSPC) {
		t.Fatalf("write at limit = %d, want -ENOSPC", got)
	}
}

// unreadableFrom faults on copies from user memory at or above bad.
type unreadableFrom struct {
	*usermem.BytesIO
	bad uint64
}

func (m *unreadableFrom) CopyIn(addr uint64, dst []byte) (int, error) {
	if addr+uint64(len(dst)) <= m.bad {
		return m.BytesIO.CopyIn(addr, dst)
	}
	n := 0
	if addr < m.bad {
		n, _ = m.BytesIO.CopyIn(addr, dst[:m.bad-addr])
	}
	return n, errors.EFAULT
}

func TestWrite_Fault(t *testing.T) {
	d := NewDriver(0)
	defer d.Close()
	h := host.New(host.DefaultOptions())
	if _, err := h.Register(host.Device{Name: "scratch", Major: host.MiscMajor, Minor: -1, Table: fileops.Build[Buffer](d)}); err != nil {
		t.Fatal(err)
	}
	mem := &unreadableFrom{BytesIO: usermem.NewBytesIO(0, 64), bad: 32}
	copy(mem.Bytes[29:], "abc")
	p := h.NewProcess(mem)
	defer p.CloseAll()
	fd := int32(p.Open("scratch", file.O_RDWR))
	if fd < 0 {
		t.Fatalf("open = %d", fd)
	}

	// Three bytes copy before the fault: a short write, and the buffer
	// holds exactly those bytes.
	if got := p.Write(fd, 29, 8); got != 3 {
		t.Fatalf("partial write = %d, want 3", got)
	}
	if size := d.Buffer().Size(); size != 3 {
		t.Errorf("size after partial write = %d, want 3", size)
	}
	if got := p.Lseek(fd, 0, fileops.WhenceCur); got != 3 {
		t.Errorf("position after partial write = %d, want 3", got)
	}

	// Nothing copies: the write fails and the buffer keeps its size, even
	// when the write started past the end.
	if got := p.Write(fd, 40, 4); got != -int64(errors.EFAULT) {
		t.Fatalf("faulting write = %d, want -EFAULT", got)
	}
	p.Lseek(fd, 10, fileops.WhenceSet)
	if got := p.Write(fd, 40, 4); got != -int64(errors.EFAULT) {
		t.Fatalf("faulting write past end = %d, want -EFAULT", got)
	}
	if size := d.Buffer().Size(); size != 3 {
		t.Errorf("size after failed writes = %d, want 3", size)
	}

	p.Lseek(fd, 0, fileops.WhenceSet)
	if got := p.Read(fd, 0, 16); got != 3 {
		t.Fatalf("read = %d, want 3", got)
	}
	if s := string(mem.Bytes[:3]); s != "abc" {
		t.Errorf("read back %q, want %q", s, "abc")
	}
}

func TestFsync(t *testing.T) {
	f := setup(t, 0)
	f.put("dirty")
	if got := f.p.Fsync(f.fd, false); got != 0 {
		t.Fatalf("fsync = %d", got)
	}
	if got := f.p.Fsync(f.fd, true); got != 0 {
		t.Fatalf("fdatasync = %d", got)
	}
	if got := f.d.Buffer().Syncs(); got != 1 {
		t.Errorf("syncs = %d, want 1", got)
	}
}

func TestIoctl(t *testing.T) {
	f := setup(t, 64)
	f.put("abcdefghijklmnop")
	le := binary.LittleEndian

	if got := f.p.Ioctl(f.fd, GetSize, 200); got != 0 {
		t.Fatalf("get size = %d", got)
	}
	if v := le.Uint64(f.mem.Bytes[200:]); v != 16 {
		t.Errorf("size = %d", v)
	}

	le.PutUint64(f.mem.Bytes[200:], 4)
	le.PutUint64(f.mem.Bytes[208:], 0x3837363534333231)
	if got := f.p.Ioctl(f.fd, Exchange, 200); got != 0 {
		t.Fatalf("exchange = %d", got)
	}
	if old := string(f.mem.Bytes[200:208]); old != "efghijkl" {
		t.Errorf("old bytes = %q", old)
	}
	f.p.Lseek(f.fd, 0, fileops.WhenceSet)
	if s, _ := f.get(64); s != "abcd12345678mnop" {
		t.Errorf("after exchange = %q", s)
	}

	le.PutUint64(f.mem.Bytes[200:], 12)
	if got := f.p.Ioctl(f.fd, Exchange, 200); got != -int64(errors.EINVAL) {
		t.Errorf("exchange past end = %d", got)
	}

	le.PutUint64(f.mem.Bytes[200:], 3)
	if got := f.p.Ioctl(f.fd, Truncate, 200); got != 0 {
		t.Fatalf("truncate = %d", got)
	}
	if size := f.d.Buffer().Size(); size != 3 {
		t.Errorf("size after truncate = %d", size)
	}
	le.PutUint64(f.mem.Bytes[200:], 65)
	if got := f.p.Ioctl(f.fd, Truncate, 200); got != -int64(errors.EINVAL) {
		t.Errorf("truncate past limit = %d", got)
	}

	if got := f.p.Ioctl(f.fd, Clear, 0); got != 0 {
		t.Fatalf("clear = %d", got)
	}
	if size := f.d.Buffer().Size(); size != 0 {
		t.Errorf("size after clear = %d", size)
	}
	if got := f.p.Ioctl(f.fd, GetSize32, 200); got != -int64(errors.EINVAL) {
		t.Errorf("compat command on native ioctl = %d", got)
	}
}

func TestCompatIoctl(t *testing.T) {
	f := setup(t, 0)
	f.put("abc")
	le := binary.LittleEndian

	if got := f.p.CompatIoctl(f.fd, GetSize32, 200); got != 0 {
		t.Fatalf("get size = %d", got)
	}
	if v := le.Uint32(f.mem.Bytes[200:]); v != 3 {
		t.Errorf("size = %d", v)
	}

	le.PutUint32(f.mem.Bytes[200:], 1)
	if got := f.p.CompatIoctl(f.fd, Truncate32, 200); got != 0 {
		t.Fatalf("truncate = %d", got)
	}
	if size := f.d.Buffer().Size(); size != 1 {
		t.Errorf("size = %d", size)
	}
	if got := f.p.CompatIoctl(f.fd, Exchange, 200); got != -int64(errors.EINVAL) {
		t.Errorf("exchange = %d, want -EINVAL", got)
	}
}

func TestSharedBufferLifetime(t *testing.T) {
	f := setup(t, 0)
	f.put("shared")
	buf := f.d.Buffer()

	other := f.p.Open("scratch", file.O_RDONLY)
	if other < 0 {
		t.Fatalf("open = %d", other)
	}
	if got := f.p.Read(int32(other), 128, 6); got != 6 || string(f.mem.Bytes[128:134]) != "shared" {
		t.Fatalf("second open read %d: %q", got, f.mem.Bytes[128:134])
	}

	f.d.Close()
	if buf.Size() != 6 {
		t.Fatal("buffer freed while files are open")
	}
	f.p.CloseAll()
	if buf.Size() != 0 {
		t.Error("buffer not freed after the last close")
	}
}
