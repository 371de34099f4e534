package fileops

import (
	"reflect"

	"github.com/wippyai/chardev/file"
	"github.com/wippyai/chardev/ioctl"
)

// Slot signatures. Every slot follows the host convention: a non-negative
// result on success, a negated errno on failure.
type (
	OpenFunc    func(inode *file.Inode, f *file.State) int32
	ReleaseFunc func(inode *file.Inode, f *file.State) int32
	ReadFunc    func(f *file.State, buf, length uint64, pos *int64) int64
	WriteFunc   func(f *file.State, buf, length uint64, pos *int64) int64
	LlseekFunc  func(f *file.State, offset int64, whence int32) int64
	IoctlFunc   func(f *file.State, cmd uint32, arg uint64) int64
	FsyncFunc   func(f *file.State, start, end int64, datasync int32) int32
)

// Table is the dispatch table the host invokes. Field order is the host's
// file_operations order and must not change; the slot tag carries the host's
// name for each field. Slots typed uintptr are never populated.
type Table struct {
	Owner              uintptr     `slot:"owner"`
	Llseek             LlseekFunc  `slot:"llseek"`
	Read               ReadFunc    `slot:"read"`
	Write              WriteFunc   `slot:"write"`
	ReadIter           uintptr     `slot:"read_iter"`
	WriteIter          uintptr     `slot:"write_iter"`
	Iopoll             uintptr     `slot:"iopoll"`
	Iterate            uintptr     `slot:"iterate"`
	IterateShared      uintptr     `slot:"iterate_shared"`
	Poll               uintptr     `slot:"poll"`
	UnlockedIoctl      IoctlFunc   `slot:"unlocked_ioctl"`
	CompatIoctl        IoctlFunc   `slot:"compat_ioctl"`
	Mmap               uintptr     `slot:"mmap"`
	MmapSupportedFlags uintptr     `slot:"mmap_supported_flags"`
	Open               OpenFunc    `slot:"open"`
	Flush              uintptr     `slot:"flush"`
	Release            ReleaseFunc `slot:"release"`
	Fsync              FsyncFunc   `slot:"fsync"`
	Fasync             uintptr     `slot:"fasync"`
	Lock               uintptr     `slot:"lock"`
	Sendpage           uintptr     `slot:"sendpage"`
	GetUnmappedArea    uintptr     `slot:"get_unmapped_area"`
	CheckFlags         uintptr     `slot:"check_flags"`
	Flock              uintptr     `slot:"flock"`
	SpliceWrite        uintptr     `slot:"splice_write"`
	SpliceRead         uintptr     `slot:"splice_read"`
	Setlease           uintptr     `slot:"setlease"`
	Fallocate          uintptr     `slot:"fallocate"`
	ShowFdinfo         uintptr     `slot:"show_fdinfo"`
	CopyFileRange      uintptr     `slot:"copy_file_range"`
	RemapFileRange     uintptr     `slot:"remap_file_range"`
	Fadvise            uintptr     `slot:"fadvise"`
}

// SlotNames returns every slot name in table order.
func SlotNames() []string {
	t := reflect.TypeOf(Table{})
	names := make([]string, t.NumField())
	for i := range names {
		names[i] = t.Field(i).Tag.Get("slot")
	}
	return names
}

// Slots returns the names of the populated slots in table order.
func (t *Table) Slots() []string {
	v := reflect.ValueOf(t).Elem()
	typ := v.Type()
	var out []string
	for i := 0; i < v.NumField(); i++ {
		if !v.Field(i).IsZero() {
			out = append(out, typ.Field(i).Tag.Get("slot"))
		}
	}
	return out
}

// Capabilities reports which optional slots of t are populated.
func (t *Table) Capabilities() Capabilities {
	return Capabilities{
		Read:        t.Read != nil,
		Write:       t.Write != nil,
		Seek:        t.Llseek != nil,
		Ioctl:       t.UnlockedIoctl != nil,
		CompatIoctl: t.CompatIoctl != nil,
		Fsync:       t.Fsync != nil,
	}
}

// Options configures how trampolines marshal arguments.
type Options struct {
	// Layout decodes ioctl command words.
	Layout ioctl.Layout
}

// DefaultOptions returns options for the generic ioctl layout.
func DefaultOptions() Options {
	return Options{Layout: ioctl.Generic}
}

// Build creates the dispatch table for driver d with default options.
//
//	table := fileops.Build[scratch.Buffer](scratch.Driver{})
func Build[T any, PT interface {
	*T
	Operations
}](d Driver[T]) *Table {
	return NewTable[T, PT](d, DefaultOptions())
}

// NewTable creates the dispatch table for driver d. Open and release are
// always populated; every other slot is populated exactly when d declares the
// matching capability.
func NewTable[T any, PT interface {
	*T
	Operations
}](d Driver[T], opts Options) *Table {
	caps := d.Capabilities()
	t := &Table{
		Open:    openTrampoline(d),
		Release: releaseTrampoline(d),
	}
	if caps.Read {
		t.Read = readTrampoline[T, PT]()
	}
	if caps.Write {
		t.Write = writeTrampoline[T, PT]()
	}
	if caps.Seek {
		t.Llseek = llseekTrampoline[T, PT]()
	}
	if caps.Ioctl {
		t.UnlockedIoctl = ioctlTrampoline[T, PT](opts.Layout, false)
	}
	if caps.CompatIoctl {
		t.CompatIoctl = ioctlTrampoline[T, PT](opts.Layout, true)
	}
	if caps.Fsync {
		t.Fsync = fsyncTrampoline[T, PT]()
	}
	return t
}
