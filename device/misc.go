package device

import (
	"sync"

	"github.com/wippyai/chardev/errors"
	"github.com/wippyai/chardev/file"
	"github.com/wippyai/chardev/fileops"
	"github.com/wippyai/chardev/host"
)

// Misc is a misc device registration. Create it with NewMisc, register one
// driver with RegisterMisc, and Close it to remove the device.
type Misc struct {
	host *host.Host

	mu         sync.Mutex
	inode      file.Inode
	registered bool
}

// NewMisc creates an unregistered misc device on h.
func NewMisc(h *host.Host) *Misc {
	return &Misc{host: h}
}

// RegisterMisc builds the dispatch table for d and registers it under name.
// A negative minor requests a dynamic one. A Misc registers at most once;
// a second call fails with already-registered.
func RegisterMisc[T any, PT interface {
	*T
	fileops.Operations
}](m *Misc, name string, minor int32, d fileops.Driver[T]) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return errors.AlreadyRegistered(name)
	}

	table := fileops.NewTable[T, PT](d, m.host.TableOptions())
	inode, err := m.host.Register(host.Device{
		Name:  name,
		Major: host.MiscMajor,
		Minor: minor,
		Table: table,
	})
	if err != nil {
		return err
	}
	m.inode = inode
	m.registered = true
	return nil
}

// NewMiscPinned allocates and registers a misc device in one step.
func NewMiscPinned[T any, PT interface {
	*T
	fileops.Operations
}](h *host.Host, name string, minor int32, d fileops.Driver[T]) (*Misc, error) {
	m := NewMisc(h)
	if err := RegisterMisc[T, PT](m, name, minor, d); err != nil {
		return nil, err
	}
	return m, nil
}

// Inode returns the registered device node. It is zero before registration.
func (m *Misc) Inode() file.Inode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inode
}

// Registered reports whether the device is currently registered.
func (m *Misc) Registered() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.registered
}

// Close deregisters the device. Closing an unregistered Misc is a no-op.
func (m *Misc) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.registered {
		return nil
	}
	m.registered = false
	return m.host.Unregister(m.inode.Name)
}
