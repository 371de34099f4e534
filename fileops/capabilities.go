package fileops

import "strings"

// Capability names one optional operation a driver can provide.
type Capability uint8

const (
	CapRead Capability = iota
	CapWrite
	CapSeek
	CapIoctl
	CapCompatIoctl
	CapFsync
)

var capabilityNames = [...]string{
	CapRead:        "read",
	CapWrite:       "write",
	CapSeek:        "seek",
	CapIoctl:       "ioctl",
	CapCompatIoctl: "compat_ioctl",
	CapFsync:       "fsync",
}

func (c Capability) String() string {
	if int(c) < len(capabilityNames) {
		return capabilityNames[c]
	}
	return "unknown"
}

// ParseCapability maps a capability name to its value.
func ParseCapability(name string) (Capability, bool) {
	for i, n := range capabilityNames {
		if n == name {
			return Capability(i), true
		}
	}
	return 0, false
}

// Capabilities declares which optional operations a driver implements. The
// table builder populates a slot exactly when its flag is set.
type Capabilities struct {
	Read        bool
	Write       bool
	Seek        bool
	Ioctl       bool
	CompatIoctl bool
	Fsync       bool
}

// UseNone declares no optional operations. Open and release are always wired.
var UseNone = Capabilities{}

// Use declares the given capabilities and nothing else.
//
//	func (exampleDriver) Capabilities() fileops.Capabilities {
//		return fileops.Use(fileops.CapRead, fileops.CapWrite)
//	}
func Use(caps ...Capability) Capabilities {
	var c Capabilities
	for _, cp := range caps {
		c = c.With(cp)
	}
	return c
}

// With returns c with cp added.
func (c Capabilities) With(cp Capability) Capabilities {
	switch cp {
	case CapRead:
		c.Read = true
	case CapWrite:
		c.Write = true
	case CapSeek:
		c.Seek = true
	case CapIoctl:
		c.Ioctl = true
	case CapCompatIoctl:
		c.CompatIoctl = true
	case CapFsync:
		c.Fsync = true
	}
	return c
}

// Has reports whether cp is declared.
func (c Capabilities) Has(cp Capability) bool {
	switch cp {
	case CapRead:
		return c.Read
	case CapWrite:
		return c.Write
	case CapSeek:
		return c.Seek
	case CapIoctl:
		return c.Ioctl
	case CapCompatIoctl:
		return c.CompatIoctl
	case CapFsync:
		return c.Fsync
	}
	return false
}

// List returns the declared capabilities in declaration order.
func (c Capabilities) List() []Capability {
	var out []Capability
	for i := range capabilityNames {
		if c.Has(Capability(i)) {
			out = append(out, Capability(i))
		}
	}
	return out
}

func (c Capabilities) String() string {
	list := c.List()
	if len(list) == 0 {
		return "none"
	}
	names := make([]string, len(list))
	for i, cp := range list {
		names[i] = cp.String()
	}
	return strings.Join(names, "|")
}
