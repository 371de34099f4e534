package semaphore

import (
	"encoding/binary"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wippyai/chardev/errors"
	"github.com/wippyai/chardev/file"
	"github.com/wippyai/chardev/fileops"
	"github.com/wippyai/chardev/host"
	"github.com/wippyai/chardev/ioctl"
	"github.com/wippyai/chardev/usermem"
)

func setup(t *testing.T) (*host.Host, *Driver) {
	t.Helper()
	d := NewDriver()
	h := host.New(host.DefaultOptions())
	if _, err := h.Register(host.Device{Name: "sem", Major: host.MiscMajor, Minor: -1, Table: fileops.Build[File](d)}); err != nil {
		t.Fatal(err)
	}
	return h, d
}

func open(t *testing.T, p *host.Process, flags uint32) int32 {
	t.Helper()
	fd := p.Open("sem", flags)
	if fd < 0 {
		t.Fatalf("open = %d", fd)
	}
	return int32(fd)
}

func TestRead_NonBlockingWouldBlock(t *testing.T) {
	h, _ := setup(t)
	p := h.NewProcess(usermem.NewBytesIO(0, 16))
	defer p.CloseAll()

	fd := open(t, p, file.O_RDONLY|file.O_NONBLOCK)
	wfd := open(t, p, file.O_WRONLY)
	if got := p.Read(fd, 0, 1); got != -int64(errors.EAGAIN) {
		t.Fatalf("read = %d, want -EAGAIN", got)
	}
	if got := p.Write(wfd, 0, 2); got != 2 {
		t.Fatalf("write = %d", got)
	}
	if got := p.Read(fd, 0, 1); got != 1 {
		t.Fatalf("read after write = %d", got)
	}
	// The position moved past zero, so this open now reads end of file.
	if got := p.Read(fd, 0, 1); got != 0 {
		t.Fatalf("second read = %d, want 0", got)
	}
}

// A write advances the writer's own position, so reading back through the
// same descriptor sees end of file even with units available.
func TestReadAfterWrite_SameOpenIsEOF(t *testing.T) {
	h, d := setup(t)
	p := h.NewProcess(usermem.NewBytesIO(0, 16))
	defer p.CloseAll()

	fd := open(t, p, file.O_RDWR|file.O_NONBLOCK)
	if got := p.Write(fd, 0, 2); got != 2 {
		t.Fatalf("write = %d", got)
	}
	if got := p.Read(fd, 0, 1); got != 0 {
		t.Fatalf("read = %d, want 0", got)
	}
	if count, _ := d.Semaphore().Count(); count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
	fresh := open(t, p, file.O_RDONLY)
	if got := p.Read(fresh, 0, 1); got != 1 {
		t.Fatalf("read on a fresh open = %d, want 1", got)
	}
}

func TestRead_BlocksUntilWrite(t *testing.T) {
	h, d := setup(t)
	reader := h.NewProcess(usermem.NewBytesIO(0, 16))
	writer := h.NewProcess(usermem.NewBytesIO(0, 16))
	defer reader.CloseAll()
	defer writer.CloseAll()

	rfd := open(t, reader, file.O_RDONLY)
	wfd := open(t, writer, file.O_WRONLY)

	done := make(chan int64, 1)
	go func() { done <- reader.Read(rfd, 0, 4) }()

	select {
	case n := <-done:
		t.Fatalf("read returned %d before any write", n)
	case <-time.After(20 * time.Millisecond):
	}

	if got := writer.Write(wfd, 0, 1); got != 1 {
		t.Fatalf("write = %d", got)
	}
	select {
	case n := <-done:
		if n != 1 {
			t.Errorf("read = %d, want 1", n)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("reader never woke up")
	}

	if count, maxSeen := d.Semaphore().Count(); count != 0 || maxSeen != 1 {
		t.Errorf("count=%d maxSeen=%d", count, maxSeen)
	}
}

func TestRead_Interrupted(t *testing.T) {
	h, d := setup(t)
	p := h.NewProcess(usermem.NewBytesIO(0, 16))
	defer p.CloseAll()
	fd := open(t, p, file.O_RDONLY)

	done := make(chan int64, 1)
	go func() { done <- p.Read(fd, 0, 1) }()

	deadline := time.After(5 * time.Second)
	for {
		d.Semaphore().Interrupt()
		select {
		case n := <-done:
			if n != -int64(errors.EINTR) {
				t.Fatalf("read = %d, want -EINTR", n)
			}
			return
		case <-deadline:
			t.Fatal("reader never interrupted")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestIoctl_ReadCount(t *testing.T) {
	h, _ := setup(t)
	mem := usermem.NewBytesIO(0, 64)
	p := h.NewProcess(mem)
	defer p.CloseAll()

	fd := open(t, p, file.O_RDONLY)
	wfd := open(t, p, file.O_WRONLY)
	if got := p.Write(wfd, 0, 3); got != 3 {
		t.Fatalf("write = %d", got)
	}
	if got := p.Read(fd, 0, 1); got != 1 {
		t.Fatalf("read = %d", got)
	}

	if got := p.Ioctl(fd, GetReadCount, 32); got != 0 {
		t.Fatalf("get = %d", got)
	}
	if v := binary.LittleEndian.Uint64(mem.Bytes[32:]); v != 1 {
		t.Errorf("read count = %d, want 1", v)
	}

	binary.LittleEndian.PutUint64(mem.Bytes[40:], 99)
	if got := p.Ioctl(fd, SetReadCount, 40); got != 0 {
		t.Fatalf("set = %d", got)
	}
	p.Ioctl(fd, GetReadCount, 32)
	if v := binary.LittleEndian.Uint64(mem.Bytes[32:]); v != 99 {
		t.Errorf("read count = %d, want 99", v)
	}

	// Counters are per open.
	other := open(t, p, file.O_RDONLY)
	p.Ioctl(other, GetReadCount, 32)
	if v := binary.LittleEndian.Uint64(mem.Bytes[32:]); v != 0 {
		t.Errorf("fresh open read count = %d", v)
	}

	if got := p.Ioctl(fd, ioctl.IO('c', 2), 0); got != -int64(errors.EINVAL) {
		t.Errorf("unknown command = %d, want -EINVAL", got)
	}
}

func TestSharedStateRefs(t *testing.T) {
	h, d := setup(t)
	p := h.NewProcess(nil)

	a := open(t, p, file.O_RDONLY)
	b := open(t, p, file.O_RDONLY)
	if got := d.Refs(); got != 3 {
		t.Fatalf("refs = %d, want 3", got)
	}
	p.Close(a)
	p.Close(b)
	if got := d.Refs(); got != 1 {
		t.Fatalf("refs after close = %d, want 1", got)
	}

	c := open(t, p, file.O_RDONLY)
	sem := d.Semaphore()
	d.Close()
	// The open file still holds the state after the driver let go.
	sem.add(1)
	if count, _ := sem.Count(); count != 1 {
		t.Errorf("count = %d", count)
	}
	p.Close(c)
}

func TestConcurrentReaders(t *testing.T) {
	h, d := setup(t)
	const readers = 16

	var g errgroup.Group
	for i := 0; i < readers; i++ {
		g.Go(func() error {
			p := h.NewProcess(usermem.NewBytesIO(0, 4))
			defer p.CloseAll()
			fd := p.Open("sem", file.O_RDONLY)
			if fd < 0 {
				return errors.Errno(-fd)
			}
			if n := p.Read(int32(fd), 0, 1); n != 1 {
				return errors.FromReturn(n)
			}
			return nil
		})
	}

	w := h.NewProcess(usermem.NewBytesIO(0, readers))
	defer w.CloseAll()
	wfd := open(t, w, file.O_WRONLY)
	for i := 0; i < readers; i++ {
		if got := w.Write(wfd, 0, 1); got != 1 {
			t.Fatalf("write = %d", got)
		}
	}

	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if count, _ := d.Semaphore().Count(); count != 0 {
		t.Errorf("count = %d, want 0", count)
	}
}
