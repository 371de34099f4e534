package main

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v2"

	"github.com/wippyai/chardev/device"
	"github.com/wippyai/chardev/drivers/example"
	"github.com/wippyai/chardev/drivers/random"
	"github.com/wippyai/chardev/drivers/scratch"
	"github.com/wippyai/chardev/drivers/semaphore"
	"github.com/wippyai/chardev/fileops"
	"github.com/wippyai/chardev/host"
	"github.com/wippyai/chardev/ioctl"
)

// manifest lists the devices to register at startup.
type manifest struct {
	Host    hostSpec     `yaml:"host"`
	Devices []deviceSpec `yaml:"devices"`
}

type hostSpec struct {
	MaxFDs int    `yaml:"max_fds"`
	Layout string `yaml:"ioctl_layout"`
}

type deviceSpec struct {
	Name   string                 `yaml:"name"`
	Driver string                 `yaml:"driver"`
	Kind   string                 `yaml:"kind"`
	Minor  *int32                 `yaml:"minor"`
	Count  int                    `yaml:"count"`
	Params map[string]interface{} `yaml:"params"`
}

const defaultManifest = `
devices:
  - name: scratch
    driver: scratch
    params:
      limit: 65536
  - name: random
    driver: random
  - name: semaphore
    driver: semaphore
  - driver: example
`

func parseManifest(data []byte) (*manifest, error) {
	var m manifest
	if err := yaml.UnmarshalStrict(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	for i, d := range m.Devices {
		if d.Driver == "" {
			return nil, fmt.Errorf("device %d: driver is required", i)
		}
		if d.Name == "" && d.Driver != "example" {
			return nil, fmt.Errorf("device %d (%s): name is required", i, d.Driver)
		}
		switch d.Kind {
		case "", "misc", "chrdev":
		default:
			return nil, fmt.Errorf("device %s: unknown kind %q", d.Name, d.Kind)
		}
	}
	return &m, nil
}

func loadManifest(path string) (*manifest, error) {
	if path == "" {
		return parseManifest([]byte(defaultManifest))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return parseManifest(data)
}

// decodeParams converts the loosely typed params map into a driver's
// parameter struct.
func (d deviceSpec) decodeParams(out interface{}) error {
	if len(d.Params) == 0 {
		return nil
	}
	raw, err := yaml.Marshal(d.Params)
	if err != nil {
		return err
	}
	if err := yaml.UnmarshalStrict(raw, out); err != nil {
		return fmt.Errorf("device %s: params: %w", d.Name, err)
	}
	return nil
}

func (d deviceSpec) minor() int32 {
	if d.Minor == nil {
		return -1
	}
	return *d.Minor
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// system is a host with the manifest's devices registered.
type system struct {
	host    *host.Host
	closers []io.Closer
}

func newSystem(m *manifest, log *zap.Logger) (*system, error) {
	opts := host.DefaultOptions()
	if m.Host.MaxFDs > 0 {
		opts.MaxFDs = m.Host.MaxFDs
	}
	switch m.Host.Layout {
	case "", "generic":
	case "legacy":
		opts.Layout = ioctl.Legacy
	default:
		return nil, fmt.Errorf("unknown ioctl layout %q", m.Host.Layout)
	}

	s := &system{host: host.New(opts)}
	for _, spec := range m.Devices {
		c, err := s.register(spec, log)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("register %s: %w", spec.Driver, err)
		}
		s.closers = append(s.closers, c)
	}
	return s, nil
}

func (s *system) register(spec deviceSpec, log *zap.Logger) (io.Closer, error) {
	switch spec.Driver {
	case "example":
		params := example.DefaultParams()
		if err := spec.decodeParams(&params); err != nil {
			return nil, err
		}
		return example.Load(s.host, params, log.Named("example"))

	case "random":
		return registerAs[random.File](s.host, spec, random.Driver{})

	case "semaphore":
		drv := semaphore.NewDriver()
		c, err := registerAs[semaphore.File](s.host, spec, drv)
		if err != nil {
			drv.Close()
			return nil, err
		}
		return closeBoth(c, drv), nil

	case "scratch":
		var params struct {
			Limit int `yaml:"limit"`
		}
		if err := spec.decodeParams(&params); err != nil {
			return nil, err
		}
		drv := scratch.NewDriver(params.Limit)
		c, err := registerAs[scratch.Buffer](s.host, spec, drv)
		if err != nil {
			drv.Close()
			return nil, err
		}
		return closeBoth(c, drv), nil

	default:
		return nil, fmt.Errorf("unknown driver %q", spec.Driver)
	}
}

func closeBoth(first, second io.Closer) io.Closer {
	return closerFunc(func() error {
		err := first.Close()
		if err2 := second.Close(); err == nil {
			err = err2
		}
		return err
	})
}

func registerAs[T any, PT interface {
	*T
	fileops.Operations
}](h *host.Host, spec deviceSpec, d fileops.Driver[T]) (io.Closer, error) {
	if spec.Kind == "chrdev" {
		count := spec.Count
		if count <= 0 {
			count = 1
		}
		first := spec.minor()
		if first < 0 {
			first = 0
		}
		c := device.NewChrdev(h, spec.Name, uint32(first), count)
		for i := 0; i < count; i++ {
			if _, err := device.RegisterChrdev[T, PT](c, d); err != nil {
				c.Close()
				return nil, err
			}
		}
		return c, nil
	}

	m, err := device.NewMiscPinned[T, PT](h, spec.Name, spec.minor(), d)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Close unregisters every device in reverse registration order.
func (s *system) Close() error {
	var first error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	s.closers = nil
	return first
}
