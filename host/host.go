package host

import (
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/chardev/errors"
	"github.com/wippyai/chardev/file"
	"github.com/wippyai/chardev/fileops"
	"github.com/wippyai/chardev/ioctl"
	"github.com/wippyai/chardev/usermem"
)

// MiscMajor is the major number shared by all misc devices.
const MiscMajor = 10

// Options configures a Host.
type Options struct {
	// MaxFDs bounds each process's descriptor table.
	MaxFDs int
	// Layout is the ioctl layout tables for this host are built with.
	Layout ioctl.Layout
	// DynamicMinorBase and MaxMinor bound dynamically assigned minors.
	DynamicMinorBase uint32
	MaxMinor         uint32
	// DynamicMajorBase and MaxMajor bound dynamically assigned majors.
	DynamicMajorBase uint32
	MaxMajor         uint32
}

// DefaultOptions returns the options used by New when none are given.
func DefaultOptions() Options {
	return Options{
		MaxFDs:           1024,
		Layout:           ioctl.Generic,
		DynamicMinorBase: 64,
		MaxMinor:         255,
		DynamicMajorBase: 234,
		MaxMajor:         254,
	}
}

// Device is a node in the host's device namespace.
type Device struct {
	Name  string
	Major uint32
	// Minor is the requested minor. A negative value asks for a dynamic one.
	Minor int32
	Table *fileops.Table
}

type node struct {
	inode file.Inode
	table *fileops.Table
}

type devnum struct {
	major, minor uint32
}

// Host is an in-process stand-in for the kernel side of a character device:
// it owns the device namespace and dispatches file system calls through each
// device's table. Safe for concurrent use.
type Host struct {
	opts Options

	mu      sync.RWMutex
	devices map[string]*node
	numbers map[devnum]string
	majors  map[uint32]string
}

// New creates a host with opts.
func New(opts Options) *Host {
	if opts.MaxFDs <= 0 {
		opts.MaxFDs = DefaultOptions().MaxFDs
	}
	if opts.Layout.DirBits == 0 {
		opts.Layout = ioctl.Generic
	}
	if opts.MaxMinor == 0 {
		d := DefaultOptions()
		opts.DynamicMinorBase, opts.MaxMinor = d.DynamicMinorBase, d.MaxMinor
	}
	if opts.MaxMajor == 0 {
		d := DefaultOptions()
		opts.DynamicMajorBase, opts.MaxMajor = d.DynamicMajorBase, d.MaxMajor
	}
	return &Host{
		opts:    opts,
		devices: make(map[string]*node),
		numbers: make(map[devnum]string),
		majors:  make(map[uint32]string),
	}
}

// TableOptions returns the options device tables for this host must be built with.
func (h *Host) TableOptions() fileops.Options {
	return fileops.Options{Layout: h.opts.Layout}
}

// Register adds d to the namespace and returns the inode it was assigned.
// A taken name or device number fails with EBUSY.
func (h *Host) Register(d Device) (file.Inode, error) {
	if d.Name == "" || strings.Contains(d.Name, "/") {
		return file.Inode{}, errors.InvalidArgument(errors.PhaseRegister, "device name must be a single path element")
	}
	if d.Table == nil || d.Table.Open == nil || d.Table.Release == nil {
		return file.Inode{}, errors.InvalidArgument(errors.PhaseRegister, "table must populate open and release")
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.devices[d.Name]; ok {
		return file.Inode{}, errors.Busy(errors.PhaseRegister, "device name "+d.Name+" already in use")
	}

	minor, err := h.pickMinorLocked(d.Major, d.Minor)
	if err != nil {
		return file.Inode{}, err
	}

	n := &node{
		inode: file.Inode{Name: d.Name, Major: d.Major, Minor: minor},
		table: d.Table,
	}
	h.devices[d.Name] = n
	h.numbers[devnum{d.Major, minor}] = d.Name

	Logger().Info("device registered",
		zap.String("name", d.Name),
		zap.Uint32("major", d.Major),
		zap.Uint32("minor", minor),
		zap.Strings("slots", d.Table.Slots()))
	return n.inode, nil
}

func (h *Host) pickMinorLocked(major uint32, minor int32) (uint32, error) {
	if minor >= 0 {
		if _, taken := h.numbers[devnum{major, uint32(minor)}]; taken {
			return 0, errors.New(errors.PhaseRegister, errors.KindBusy).
				Detail("device number %d:%d already in use", major, minor).
				Build()
		}
		return uint32(minor), nil
	}
	for m := h.opts.DynamicMinorBase; m <= h.opts.MaxMinor; m++ {
		if _, taken := h.numbers[devnum{major, m}]; !taken {
			return m, nil
		}
	}
	return 0, errors.Busy(errors.PhaseRegister, "no dynamic minor left")
}

// Unregister removes the named device. Files already open keep working.
func (h *Host) Unregister(name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	n, ok := h.devices[name]
	if !ok {
		return errors.NotFound(errors.PhaseRegister, "device", name)
	}
	delete(h.devices, name)
	delete(h.numbers, devnum{n.inode.Major, n.inode.Minor})

	Logger().Info("device unregistered", zap.String("name", name))
	return nil
}

// AllocMajor reserves a dynamic major number for name.
func (h *Host) AllocMajor(name string) (uint32, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for m := h.opts.MaxMajor; m >= h.opts.DynamicMajorBase && m > 0; m-- {
		if _, taken := h.majors[m]; !taken && m != MiscMajor {
			h.majors[m] = name
			return m, nil
		}
	}
	return 0, errors.Busy(errors.PhaseRegister, "no dynamic major left")
}

// FreeMajor releases a major number reserved with AllocMajor.
func (h *Host) FreeMajor(major uint32) {
	h.mu.Lock()
	delete(h.majors, major)
	h.mu.Unlock()
}

// Lookup returns the inode of a registered device.
func (h *Host) Lookup(name string) (file.Inode, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n, ok := h.devices[name]
	if !ok {
		return file.Inode{}, false
	}
	return n.inode, true
}

// Devices lists the registered devices sorted by name.
func (h *Host) Devices() []Device {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]Device, 0, len(h.devices))
	for _, n := range h.devices {
		out = append(out, Device{
			Name:  n.inode.Name,
			Major: n.inode.Major,
			Minor: int32(n.inode.Minor),
			Table: n.table,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (h *Host) resolve(path string) (*node, error) {
	name := strings.TrimPrefix(path, "/dev/")

	h.mu.RLock()
	defer h.mu.RUnlock()

	n, ok := h.devices[name]
	if !ok {
		return nil, errors.New(errors.PhaseOpen, errors.KindNotFound).
			Errno(errors.ENOENT).
			Detail("no such device %q", path).
			Build()
	}
	return n, nil
}

// NewProcess creates a process whose user buffers live in mem.
func (h *Host) NewProcess(mem usermem.AddressSpace) *Process {
	return &Process{
		host: h,
		mem:  mem,
		fds:  make(map[int32]*openFile),
	}
}
