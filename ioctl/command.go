package ioctl

import (
	"github.com/wippyai/chardev/errors"
	"github.com/wippyai/chardev/file"
	"github.com/wippyai/chardev/usermem"
)

// Handler handles the four shapes of device-control commands. Embed
// UnimplementedHandler to get EINVAL for the shapes a driver does not use.
type Handler interface {
	// Pure handles commands without a buffer; arg is passed through untouched.
	Pure(f *file.File, cmd uint32, arg uint64) (int32, error)
	// Read handles commands whose caller reads: the handler fills w.
	Read(f *file.File, cmd uint32, w *usermem.Writer) (int32, error)
	// Write handles commands whose caller writes: the handler consumes r.
	Write(f *file.File, cmd uint32, r *usermem.Reader) (int32, error)
	// ReadWrite handles commands with a buffer in both directions. The handler
	// obtains its own reader and writer from s.
	ReadWrite(f *file.File, cmd uint32, s usermem.Slice) (int32, error)
}

// UnimplementedHandler rejects every command shape with EINVAL.
type UnimplementedHandler struct{}

func (UnimplementedHandler) Pure(*file.File, uint32, uint64) (int32, error) {
	return 0, errors.Unsupported(errors.PhaseIoctl, "no handler for commands without a buffer")
}

func (UnimplementedHandler) Read(*file.File, uint32, *usermem.Writer) (int32, error) {
	return 0, errors.Unsupported(errors.PhaseIoctl, "no handler for read commands")
}

func (UnimplementedHandler) Write(*file.File, uint32, *usermem.Reader) (int32, error) {
	return 0, errors.Unsupported(errors.PhaseIoctl, "no handler for write commands")
}

func (UnimplementedHandler) ReadWrite(*file.File, uint32, usermem.Slice) (int32, error) {
	return 0, errors.Unsupported(errors.PhaseIoctl, "no handler for read-write commands")
}

// Command is one device-control call: the raw command word, its argument and
// the buffer the direction implies. The buffer is materialized once, when the
// command is created, and handed out at most once by Dispatch.
type Command struct {
	sliceErr error
	slice    usermem.Slice
	view     interface{ Len() uint64 }
	layout   Layout
	dir      Direction
	arg      uint64
	cmd      uint32
	taken    bool
}

// NewCommand decodes cmd with layout and, for commands that carry a buffer,
// validates Size bytes at arg in as. A validation failure is kept and
// reported by Dispatch.
func NewCommand(layout Layout, as usermem.AddressSpace, cmd uint32, arg uint64) *Command {
	c := &Command{
		layout: layout,
		dir:    layout.Decode(cmd),
		arg:    arg,
		cmd:    cmd,
	}
	switch c.dir.Kind {
	case KindNone, KindInvalid:
	default:
		c.slice, c.sliceErr = usermem.NewSlice(as, arg, uint64(c.dir.Size))
	}
	return c
}

// Raw returns the command word and argument as passed by the caller.
func (c *Command) Raw() (uint32, uint64) {
	return c.cmd, c.arg
}

// Direction returns the decoded direction and size.
func (c *Command) Direction() Direction {
	return c.dir
}

// Layout returns the layout the command was decoded with.
func (c *Command) Layout() Layout {
	return c.layout
}

// Transferred reports how many bytes of the buffer the Read or Write handler
// consumed or produced. It is zero before dispatch and for other shapes.
func (c *Command) Transferred() uint64 {
	if c.view == nil {
		return 0
	}
	return uint64(c.dir.Size) - c.view.Len()
}

// Dispatch routes the command to the handler method matching its direction.
func (c *Command) Dispatch(h Handler, f *file.File) (int32, error) {
	switch c.dir.Kind {
	case KindNone:
		return h.Pure(f, c.cmd, c.arg)
	case KindInvalid:
		return 0, errors.New(errors.PhaseIoctl, errors.KindInvalidArgument).
			Detail("invalid direction in command %#x", c.cmd).
			Value(c.cmd).
			Build()
	}

	if c.sliceErr != nil {
		return 0, c.sliceErr
	}
	if c.taken {
		return 0, errors.New(errors.PhaseIoctl, errors.KindFault).
			Detail("buffer for command %#x already dispatched", c.cmd).
			Build()
	}
	c.taken = true

	switch c.dir.Kind {
	case KindRead:
		w := c.slice.Writer()
		c.view = w
		return h.Read(f, c.cmd, w)
	case KindWrite:
		r := c.slice.Reader()
		c.view = r
		return h.Write(f, c.cmd, r)
	default:
		return h.ReadWrite(f, c.cmd, c.slice)
	}
}
