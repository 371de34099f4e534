package hostcall

import (
	"context"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/chardev/host"
	"github.com/wippyai/chardev/usermem"
)

// Options configures the host module.
type Options struct {
	// ModuleName is the import module name guests use.
	ModuleName string
	// GuestPages is the memory size, in 64 KiB pages, of shim guests.
	GuestPages uint32
}

// DefaultOptions returns the default options.
func DefaultOptions() Options {
	return Options{
		ModuleName: "chardev",
		GuestPages: 1,
	}
}

// Module exposes a host's system calls to WebAssembly guests. Each calling
// module instance gets its own process: its own descriptor table, with user
// buffers in its linear memory.
type Module struct {
	host *host.Host
	opts Options

	mu    sync.Mutex
	procs map[api.Module]*host.Process
}

// New creates the host module for h.
func New(h *host.Host, opts Options) *Module {
	d := DefaultOptions()
	if opts.ModuleName == "" {
		opts.ModuleName = d.ModuleName
	}
	if opts.GuestPages == 0 {
		opts.GuestPages = d.GuestPages
	}
	return &Module{
		host:  h,
		opts:  opts,
		procs: make(map[api.Module]*host.Process),
	}
}

// Name returns the import module name.
func (m *Module) Name() string {
	return m.opts.ModuleName
}

// Instantiate registers the host module in rt.
func (m *Module) Instantiate(ctx context.Context, rt wazero.Runtime) (api.Module, error) {
	builder := rt.NewHostModuleBuilder(m.opts.ModuleName)
	for _, sc := range syscalls {
		fn := sc.fn
		builder.NewFunctionBuilder().
			WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
				fn(m, ctx, mod, stack)
			}), sc.params, []api.ValueType{i64}).
			WithName(sc.name).
			Export(sc.name)
	}

	mod, err := builder.Instantiate(ctx)
	if err != nil {
		return nil, fmt.Errorf("hostcall: instantiate %s: %w", m.opts.ModuleName, err)
	}
	Logger().Debug("host module instantiated",
		zap.String("module", m.opts.ModuleName),
		zap.Strings("syscalls", Syscalls()))
	return mod, nil
}

// Process returns the process of the calling module, creating it on first use.
func (m *Module) Process(mod api.Module) *host.Process {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.procs[mod]; ok {
		return p
	}
	var mem usermem.AddressSpace
	if gm := usermem.WrapGuest(mod.Memory()); gm != nil {
		mem = gm
	}
	p := m.host.NewProcess(mem)
	m.procs[mod] = p
	Logger().Debug("guest attached", zap.String("guest", mod.Name()))
	return p
}

// Detach closes every descriptor the module holds and forgets its process.
func (m *Module) Detach(mod api.Module) {
	m.mu.Lock()
	p, ok := m.procs[mod]
	delete(m.procs, mod)
	m.mu.Unlock()

	if ok {
		p.CloseAll()
		Logger().Debug("guest detached", zap.String("guest", mod.Name()))
	}
}
