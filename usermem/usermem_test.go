package usermem

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/tetratelabs/wazero"

	"github.com/wippyai/chardev/errors"
)

// memoryWASM is a minimal WASM module with 1 page of memory exported as "memory"
var memoryWASM = []byte{
	0x00, 0x61, 0x73, 0x6d, // magic
	0x01, 0x00, 0x00, 0x00, // version
	0x05, 0x03, 0x01, 0x00, 0x01, // memory section: 1 page, no max
	0x07, 0x0a, 0x01, // export section: 10 bytes, 1 export
	0x06, 0x6d, 0x65, 0x6d, 0x6f, 0x72, 0x79, // name: "memory" (6 bytes + string)
	0x02, 0x00, // kind: memory, index 0
}

func TestNewSlice_Validation(t *testing.T) {
	as := NewBytesIO(0x1000, 64)

	tests := []struct {
		name    string
		addr    uint64
		length  uint64
		wantErr bool
	}{
		{"whole space", 0x1000, 64, false},
		{"empty at limit", 0x1040, 0, false},
		{"past limit", 0x1000, 65, true},
		{"wraps around", ^uint64(0) - 1, 4, true},
		{"above limit", 0x2000, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSlice(as, tt.addr, tt.length)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewSlice() err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !stderrors.Is(err, errors.EFAULT) {
				t.Errorf("expected EFAULT, got %v", err)
			}
		})
	}
}

func TestNewSlice_NilAddressSpace(t *testing.T) {
	if _, err := NewSlice(nil, 0, 0); err == nil {
		t.Fatal("expected error for nil address space")
	}
}

func TestReader_BoundedTransfer(t *testing.T) {
	// For every length L and request K the reader moves min(K, remaining)
	// bytes and never more than L in total.
	for l := uint64(0); l <= 24; l++ {
		for k := 0; k <= 32; k += 3 {
			as := NewBytesIO(0, 64)
			for i := range as.Bytes {
				as.Bytes[i] = byte(i)
			}
			s, err := NewSlice(as, 8, l)
			if err != nil {
				t.Fatalf("NewSlice(8, %d): %v", l, err)
			}
			r := s.Reader()
			var total uint64
			for round := 0; round < 4; round++ {
				before := r.Len()
				buf := make([]byte, k)
				n, err := r.Read(buf)
				if err != nil && err != io.EOF {
					t.Fatalf("L=%d K=%d: unexpected error %v", l, k, err)
				}
				want := min(uint64(k), before)
				if uint64(n) != want {
					t.Fatalf("L=%d K=%d: read %d, want %d", l, k, n, want)
				}
				if r.Len() != before-want {
					t.Fatalf("L=%d K=%d: remaining %d, want %d", l, k, r.Len(), before-want)
				}
				total += uint64(n)
			}
			if total > l {
				t.Fatalf("L=%d K=%d: transferred %d > %d", l, k, total, l)
			}
		}
	}
}

func TestWriter_BoundedTransfer(t *testing.T) {
	as := NewBytesIO(0, 32)
	s, err := NewSlice(as, 4, 10)
	if err != nil {
		t.Fatal(err)
	}
	w := s.Writer()

	n, err := w.Write([]byte("hello"))
	if err != nil || n != 5 {
		t.Fatalf("Write = %d, %v", n, err)
	}
	n, err = w.Write([]byte("world!!"))
	if n != 5 || err != io.ErrShortWrite {
		t.Fatalf("second Write = %d, %v; want 5, ErrShortWrite", n, err)
	}
	if w.Len() != 0 {
		t.Fatalf("remaining = %d", w.Len())
	}
	if diff := cmp.Diff([]byte("helloworld"), as.Bytes[4:14]); diff != "" {
		t.Errorf("memory mismatch (-want +got):\n%s", diff)
	}
	if as.Bytes[3] != 0 || as.Bytes[14] != 0 {
		t.Error("write crossed the view bounds")
	}
}

func TestReader_Integers(t *testing.T) {
	as := NewBytesIO(0, 16)
	s, _ := NewSlice(as, 0, 12)
	w := s.Writer()
	if err := w.WriteUint32(0xdeadbeef); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteUint64(0x0102030405060708); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteUint32(1); err == nil {
		t.Fatal("expected fault when writing past the view")
	}

	r := s.Reader()
	v32, err := r.ReadUint32()
	if err != nil || v32 != 0xdeadbeef {
		t.Fatalf("ReadUint32 = %#x, %v", v32, err)
	}
	v64, err := r.ReadUint64()
	if err != nil || v64 != 0x0102030405060708 {
		t.Fatalf("ReadUint64 = %#x, %v", v64, err)
	}
	if _, err := r.ReadUint32(); !stderrors.Is(err, errors.EFAULT) {
		t.Fatalf("expected EFAULT past the end, got %v", err)
	}
}

func TestReader_Skip(t *testing.T) {
	as := NewBytesIO(0, 8)
	copy(as.Bytes, "abcdefgh")
	s, _ := NewSlice(as, 0, 8)
	r := s.Reader()
	if got := r.Skip(3); got != 3 {
		t.Fatalf("Skip = %d", got)
	}
	rest, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if string(rest) != "defgh" {
		t.Errorf("rest = %q", rest)
	}
	if got := r.Skip(10); got != 0 {
		t.Errorf("Skip on empty view = %d", got)
	}
}

func TestSlice_ReadAllWriteAll(t *testing.T) {
	as := NewBytesIO(0x100, 16)
	s, err := NewSlice(as, 0x104, 4)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.WriteAll([]byte{1, 2, 3, 4}); err != nil {
		t.Fatal(err)
	}
	data, err := s.ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, []byte{1, 2, 3, 4}) {
		t.Errorf("ReadAll = %v", data)
	}
	if err := s.WriteAll(make([]byte, 5)); err == nil {
		t.Error("WriteAll larger than slice should fail")
	}
}

func TestWriter_Fill(t *testing.T) {
	as := NewBytesIO(0, 600)
	s, _ := NewSlice(as, 0, 520)
	w := s.Writer()
	n, err := w.Fill(0xaa, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if n != 520 || w.Len() != 0 {
		t.Fatalf("Fill wrote %d, remaining %d", n, w.Len())
	}
	if as.Bytes[519] != 0xaa || as.Bytes[520] != 0 {
		t.Error("fill crossed the view bounds")
	}
}

// shortSpace validates a large range but only backs the first few bytes, so
// copies fault part way through.
type shortSpace struct {
	*BytesIO
}

func (s shortSpace) Limit() uint64 { return 1 << 20 }

func TestReader_FaultAdvancesByCopied(t *testing.T) {
	as := shortSpace{NewBytesIO(0, 6)}
	s, err := NewSlice(as, 2, 10)
	if err != nil {
		t.Fatal(err)
	}
	r := s.Reader()
	buf := make([]byte, 10)
	n, err := r.Read(buf)
	if n != 4 {
		t.Fatalf("copied %d, want 4", n)
	}
	if !stderrors.Is(err, errors.EFAULT) {
		t.Fatalf("expected EFAULT, got %v", err)
	}
	if r.Len() != 6 {
		t.Fatalf("remaining %d, want 6", r.Len())
	}
}

func newGuestMemory(t *testing.T) *GuestMemory {
	t.Helper()
	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	t.Cleanup(func() { rt.Close(ctx) })

	mod, err := rt.Instantiate(ctx, memoryWASM)
	if err != nil {
		t.Fatalf("failed to instantiate: %v", err)
	}
	return WrapGuest(mod.ExportedMemory("memory"))
}

func TestWrapGuest_Nil(t *testing.T) {
	if WrapGuest(nil) != nil {
		t.Error("expected nil for nil memory")
	}
}

func TestGuestMemory_ReadWrite(t *testing.T) {
	mem := newGuestMemory(t)

	s, err := NewSlice(mem, 100, 4)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.WriteAll([]byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("WriteAll: %v", err)
	}
	got, err := s.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if diff := cmp.Diff([]byte{1, 2, 3, 4}, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestGuestMemory_OutOfBounds(t *testing.T) {
	mem := newGuestMemory(t)

	// Inside the 32-bit addressing mode but past the single mapped page.
	s, err := NewSlice(mem, 65536, 1)
	if err != nil {
		t.Fatalf("NewSlice: %v", err)
	}
	if _, err := s.ReadAll(); !stderrors.Is(err, errors.EFAULT) {
		t.Errorf("expected EFAULT reading unmapped memory, got %v", err)
	}
	if err := s.WriteAll([]byte{1}); !stderrors.Is(err, errors.EFAULT) {
		t.Errorf("expected EFAULT writing unmapped memory, got %v", err)
	}

	// Outside the addressing mode entirely.
	if _, err := NewSlice(mem, 1<<32-2, 4); err == nil {
		t.Error("expected NewSlice to reject a range past 4 GiB")
	}
}
