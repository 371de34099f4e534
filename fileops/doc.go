// Package fileops builds the dispatch table a host uses to call into a
// character device driver.
//
// A driver implements Operations on its per-open type and describes itself
// with a Driver:
//
//	type Counter struct {
//		fileops.Unimplemented
//		mu sync.Mutex
//		n  uint64
//	}
//
//	func (c *Counter) Read(f *file.File, w *usermem.Writer, off uint64) error {
//		c.mu.Lock()
//		defer c.mu.Unlock()
//		return w.WriteUint64(c.n)
//	}
//
//	type CounterDriver struct{}
//
//	func (CounterDriver) Capabilities() fileops.Capabilities {
//		return fileops.Use(fileops.CapRead)
//	}
//
//	func (CounterDriver) Open() (ownership.Pointer[Counter], error) {
//		return ownership.NewBox(&Counter{}), nil
//	}
//
//	table := fileops.Build[Counter](CounterDriver{})
//
// The table has open and release populated, plus one slot per declared
// capability. Undeclared slots stay nil and the host reports the operation as
// unsupported on its own.
//
// # Trampolines
//
// Each populated slot is a closure specialized for the driver type. It
// borrows the instance stored in the file's private data, converts the raw
// arguments, calls the driver and maps the result to a count or a negated
// errno:
//
//   - Offsets must lie in [0, 2^63). Anything else fails with EINVAL before
//     the driver runs. This is a restriction of this layer, not of the host.
//   - Read and write counts are computed from how much of the user buffer
//     view was consumed. A write's returned count is informational.
//   - Open stores the released instance address in the private data. Release
//     clears the private data, reclaims the instance once, runs the optional
//     Releaser hook and drops the instance.
//   - Llseek stores the new position in the file state.
//
// Drivers synchronize their own state; trampolines take no locks.
package fileops
