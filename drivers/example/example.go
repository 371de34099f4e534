// Package example is the smallest complete driver: a file type with no
// operations beyond open and release, registered both as a misc device and on
// a two-minor character device region.
package example

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/wippyai/chardev/device"
	"github.com/wippyai/chardev/errors"
	"github.com/wippyai/chardev/fileops"
	"github.com/wippyai/chardev/host"
	"github.com/wippyai/chardev/ownership"
)

// File is the per-open state. It has none.
type File struct {
	fileops.Unimplemented
}

// Driver opens Files and logs each open.
type Driver struct {
	Log *zap.Logger
}

func (Driver) Capabilities() fileops.Capabilities {
	return fileops.UseNone
}

func (d Driver) Open() (ownership.Pointer[File], error) {
	if d.Log != nil {
		d.Log.Info("example file was opened")
	}
	return ownership.NewBox(&File{}), nil
}

// Params are the module parameters.
type Params struct {
	Bool  bool    `yaml:"my_bool"`
	I32   int32   `yaml:"my_i32"`
	Str   string  `yaml:"my_str"`
	Usize uint64  `yaml:"my_usize"`
	Array []int32 `yaml:"my_array"`
}

// MaxArrayLen bounds Params.Array.
const MaxArrayLen = 3

// DefaultParams returns the parameter defaults.
func DefaultParams() Params {
	return Params{
		Bool:  true,
		I32:   42,
		Str:   "default str val",
		Usize: 42,
		Array: []int32{0, 1},
	}
}

// Validate checks parameter bounds.
func (p Params) Validate() error {
	if len(p.Array) > MaxArrayLen {
		return errors.New(errors.PhaseRegister, errors.KindInvalidArgument).
			Detail("my_array holds at most %d values, got %d", MaxArrayLen, len(p.Array)).
			Value(p.Array).
			Build()
	}
	return nil
}

// Names the module registers its devices under.
const (
	ChrdevName = "rust_chrdev"
	MiscName   = "rust_miscdev"
)

// Module owns the registrations made by Load.
type Module struct {
	log     *zap.Logger
	message string
	chrdev  *device.Chrdev
	misc    *device.Misc
}

// Load registers the example devices on h: two minors of a character device
// region and one misc device with a dynamic minor.
func Load(h *host.Host, params Params, log *zap.Logger) (*Module, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	log.Info("example module loading",
		zap.Bool("my_bool", params.Bool),
		zap.Int32("my_i32", params.I32),
		zap.String("my_str", params.Str),
		zap.Uint64("my_usize", params.Usize),
		zap.Int32s("my_array", params.Array))

	drv := Driver{Log: log}

	chrdev := device.NewChrdev(h, ChrdevName, 0, 2)
	for i := 0; i < 2; i++ {
		if _, err := device.RegisterChrdev[File](chrdev, drv); err != nil {
			_ = chrdev.Close()
			return nil, fmt.Errorf("register %s minor %d: %w", ChrdevName, i, err)
		}
	}

	misc, err := device.NewMiscPinned[File](h, MiscName, -1, drv)
	if err != nil {
		_ = chrdev.Close()
		return nil, fmt.Errorf("register %s: %w", MiscName, err)
	}

	return &Module{
		log:     log,
		message: "on the heap!",
		chrdev:  chrdev,
		misc:    misc,
	}, nil
}

// Chrdev returns the character device region.
func (m *Module) Chrdev() *device.Chrdev { return m.chrdev }

// Misc returns the misc device registration.
func (m *Module) Misc() *device.Misc { return m.misc }

// Close removes every device the module registered.
func (m *Module) Close() error {
	m.log.Info("example module unloading", zap.String("message", m.message))
	miscErr := m.misc.Close()
	chrErr := m.chrdev.Close()
	if miscErr != nil {
		return miscErr
	}
	return chrErr
}
