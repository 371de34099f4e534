package binary

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestWriteU32(t *testing.T) {
	tests := []struct {
		v    uint32
		want []byte
	}{
		{0, []byte{0x00}},
		{1, []byte{0x01}},
		{127, []byte{0x7f}},
		{128, []byte{0x80, 0x01}},
		{624485, []byte{0xe5, 0x8e, 0x26}},
		{0xffffffff, []byte{0xff, 0xff, 0xff, 0xff, 0x0f}},
	}
	for _, tt := range tests {
		w := NewWriter()
		w.WriteU32(tt.v)
		if diff := cmp.Diff(tt.want, w.Bytes()); diff != "" {
			t.Errorf("WriteU32(%d) mismatch (-want +got):\n%s", tt.v, diff)
		}
	}
}

func TestWriteS64(t *testing.T) {
	tests := []struct {
		v    int64
		want []byte
	}{
		{0, []byte{0x00}},
		{-1, []byte{0x7f}},
		{63, []byte{0x3f}},
		{64, []byte{0xc0, 0x00}},
		{-64, []byte{0x40}},
		{-65, []byte{0xbf, 0x7f}},
		{-123456, []byte{0xc0, 0xbb, 0x78}},
	}
	for _, tt := range tests {
		w := NewWriter()
		w.WriteS64(tt.v)
		if diff := cmp.Diff(tt.want, w.Bytes()); diff != "" {
			t.Errorf("WriteS64(%d) mismatch (-want +got):\n%s", tt.v, diff)
		}
	}
}

func TestWriteName(t *testing.T) {
	w := NewWriter()
	w.WriteName("chardev")
	w.WriteU32LE(1)
	want := []byte{7, 'c', 'h', 'a', 'r', 'd', 'e', 'v', 1, 0, 0, 0}
	if diff := cmp.Diff(want, w.Bytes()); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	if w.Len() != len(want) {
		t.Errorf("Len = %d", w.Len())
	}
}
