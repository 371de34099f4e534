package hostcall

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/chardev/errors"
	"github.com/wippyai/chardev/wasm"
)

// Shim memory layout.
const (
	// PathAddr is where Guest.Open places the path.
	PathAddr = 0
	// MaxPath bounds the path length.
	MaxPath = 256
	// BufAddr is the start of the general-purpose buffer region.
	BufAddr = 4096
)

// ShimWASM encodes a guest module that imports every syscall from
// moduleName, exports a wrapper of the same name for each, and exports a
// linear memory of pages pages named "memory".
func ShimWASM(moduleName string, pages uint32) []byte {
	var m wasm.Module
	imports := make([]uint32, len(syscalls))
	types := make([]wasm.FuncType, len(syscalls))
	for i, sc := range syscalls {
		ft := wasm.FuncType{Results: []wasm.ValType{wasm.ValI64}}
		for _, p := range sc.params {
			ft.Params = append(ft.Params, wasm.ValType(p))
		}
		types[i] = ft
		imports[i] = m.ImportFunc(moduleName, sc.name, ft)
	}

	m.Memories = []wasm.MemoryType{{Limits: wasm.Limits{Min: pages}}}
	m.Export("memory", wasm.KindMemory, 0)

	for i, sc := range syscalls {
		body := make([]wasm.Instruction, 0, len(sc.params)+1)
		for p := range sc.params {
			body = append(body, wasm.LocalGet(uint32(p)))
		}
		body = append(body, wasm.Call(imports[i]))
		idx := m.AddFunc(types[i], wasm.FuncBody{Code: wasm.MustEncodeInstructions(body...)})
		m.Export(sc.name, wasm.KindFunc, idx)
	}
	return m.Encode()
}

// Guest is an instantiated shim: a guest module whose exports issue
// syscalls from its own process, with buffers in its own memory.
type Guest struct {
	host  *Module
	mod   api.Module
	calls map[string]api.Function
}

// NewGuest compiles and instantiates a shim named name in rt. The host
// module must already be instantiated in rt.
func (m *Module) NewGuest(ctx context.Context, rt wazero.Runtime, name string) (*Guest, error) {
	compiled, err := rt.CompileModule(ctx, ShimWASM(m.opts.ModuleName, m.opts.GuestPages))
	if err != nil {
		return nil, fmt.Errorf("hostcall: compile shim: %w", err)
	}
	mod, err := rt.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(name))
	if err != nil {
		return nil, fmt.Errorf("hostcall: instantiate shim %s: %w", name, err)
	}

	g := &Guest{host: m, mod: mod, calls: make(map[string]api.Function, len(syscalls))}
	for _, sc := range syscalls {
		g.calls[sc.name] = mod.ExportedFunction(sc.name)
	}
	return g, nil
}

// Module returns the guest module instance.
func (g *Guest) Module() api.Module {
	return g.mod
}

// Memory returns the guest's linear memory.
func (g *Guest) Memory() api.Memory {
	return g.mod.Memory()
}

// BufSize is the number of bytes available from BufAddr.
func (g *Guest) BufSize() uint32 {
	return g.mod.Memory().Size() - BufAddr
}

// Call invokes syscall name with raw arguments and returns its raw result.
func (g *Guest) Call(ctx context.Context, name string, args ...uint64) (int64, error) {
	fn, ok := g.calls[name]
	if !ok {
		return 0, fmt.Errorf("hostcall: no syscall %q", name)
	}
	res, err := fn.Call(ctx, args...)
	if err != nil {
		return 0, fmt.Errorf("hostcall: %s: %w", name, err)
	}
	return int64(res[0]), nil
}

func result(ret int64, err error) (int64, error) {
	if err != nil {
		return 0, err
	}
	if ret < 0 {
		return ret, errors.FromReturn(ret)
	}
	return ret, nil
}

// Open places path at PathAddr and opens it.
func (g *Guest) Open(ctx context.Context, path string, flags uint32) (int32, error) {
	if len(path) > MaxPath {
		return 0, errors.New(errors.PhaseOpen, errors.KindInvalidArgument).
			Detail("path longer than %d bytes", MaxPath).
			Build()
	}
	if !g.Memory().Write(PathAddr, []byte(path)) {
		return 0, errors.EFAULT
	}
	fd, err := result(g.Call(ctx, "open", PathAddr, uint64(len(path)), api.EncodeU32(flags)))
	return int32(fd), err
}

// Close closes fd.
func (g *Guest) Close(ctx context.Context, fd int32) error {
	_, err := result(g.Call(ctx, "close", api.EncodeI32(fd)))
	return err
}

// Read reads up to n bytes through the buffer region and returns them.
func (g *Guest) Read(ctx context.Context, fd int32, n uint32) ([]byte, error) {
	if n > g.BufSize() {
		n = g.BufSize()
	}
	got, err := result(g.Call(ctx, "read", api.EncodeI32(fd), BufAddr, uint64(n)))
	if err != nil {
		return nil, err
	}
	data, _ := g.Memory().Read(BufAddr, uint32(got))
	return append([]byte(nil), data...), nil
}

// Write copies data into the buffer region and writes it.
func (g *Guest) Write(ctx context.Context, fd int32, data []byte) (int64, error) {
	if uint32(len(data)) > g.BufSize() {
		data = data[:g.BufSize()]
	}
	if !g.Memory().Write(BufAddr, data) {
		return 0, errors.EFAULT
	}
	return result(g.Call(ctx, "write", api.EncodeI32(fd), BufAddr, uint64(len(data))))
}

// Lseek repositions fd.
func (g *Guest) Lseek(ctx context.Context, fd int32, off int64, whence int32) (int64, error) {
	return result(g.Call(ctx, "lseek", api.EncodeI32(fd), api.EncodeI64(off), api.EncodeI32(whence)))
}

// Ioctl issues cmd with arg passed through unchanged. Buffer-carrying
// commands usually point arg into the buffer region.
func (g *Guest) Ioctl(ctx context.Context, fd int32, cmd uint32, arg uint64) (int64, error) {
	return result(g.Call(ctx, "ioctl", api.EncodeI32(fd), api.EncodeU32(cmd), arg))
}

// CompatIoctl is Ioctl for a 32-bit caller.
func (g *Guest) CompatIoctl(ctx context.Context, fd int32, cmd uint32, arg uint64) (int64, error) {
	return result(g.Call(ctx, "compat_ioctl", api.EncodeI32(fd), api.EncodeU32(cmd), arg))
}

// Fsync flushes fd.
func (g *Guest) Fsync(ctx context.Context, fd int32, datasync bool) (int64, error) {
	var ds int32
	if datasync {
		ds = 1
	}
	return result(g.Call(ctx, "fsync", api.EncodeI32(fd), api.EncodeI32(ds)))
}

// Shutdown detaches the guest's process, closing its descriptors, and closes
// the module instance.
func (g *Guest) Shutdown(ctx context.Context) error {
	g.host.Detach(g.mod)
	return g.mod.Close(ctx)
}
