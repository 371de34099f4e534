package device

import (
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/wippyai/chardev/errors"
	"github.com/wippyai/chardev/file"
	"github.com/wippyai/chardev/fileops"
	"github.com/wippyai/chardev/host"
)

// Chrdev is a character device region of up to Capacity minors sharing one
// dynamically allocated major. Each RegisterChrdev call takes the next minor
// and adds a device named name followed by its index.
type Chrdev struct {
	host        *host.Host
	name        string
	minorsStart uint32
	capacity    int

	mu     sync.Mutex
	major  uint32
	alloc  bool
	inodes []file.Inode
}

// NewChrdev creates an empty region. The major number is allocated on the
// first registration.
func NewChrdev(h *host.Host, name string, minorsStart uint32, capacity int) *Chrdev {
	return &Chrdev{
		host:        h,
		name:        name,
		minorsStart: minorsStart,
		capacity:    capacity,
	}
}

// RegisterChrdev registers d on the next free minor of c. Once all Capacity
// minors are used it fails with out-of-memory.
func RegisterChrdev[T any, PT interface {
	*T
	fileops.Operations
}](c *Chrdev, d fileops.Driver[T]) (file.Inode, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.alloc {
		major, err := c.host.AllocMajor(c.name)
		if err != nil {
			return file.Inode{}, err
		}
		c.major = major
		c.alloc = true
	}

	used := len(c.inodes)
	if used >= c.capacity {
		return file.Inode{}, errors.OutOfMemory(errors.PhaseRegister,
			fmt.Sprintf("region %s has all %d minors in use", c.name, c.capacity))
	}

	inode, err := c.host.Register(host.Device{
		Name:  fmt.Sprintf("%s%d", c.name, used),
		Major: c.major,
		Minor: int32(c.minorsStart) + int32(used),
		Table: fileops.NewTable[T, PT](d, c.host.TableOptions()),
	})
	if err != nil {
		return file.Inode{}, err
	}
	c.inodes = append(c.inodes, inode)
	return inode, nil
}

// Major returns the region's major number, zero before the first registration.
func (c *Chrdev) Major() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.major
}

// Inodes returns the registered device nodes in minor order.
func (c *Chrdev) Inodes() []file.Inode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]file.Inode(nil), c.inodes...)
}

// Close removes every registered device and frees the major number.
func (c *Chrdev) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for _, inode := range c.inodes {
		if err := c.host.Unregister(inode.Name); err != nil {
			errs = append(errs, err)
		}
	}
	c.inodes = nil
	if c.alloc {
		c.host.FreeMajor(c.major)
		c.alloc = false
		c.major = 0
	}
	return stderrors.Join(errs...)
}
