package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"
	"go.uber.org/zap"
)

type runCmd struct {
	entry string
	wasi  bool
}

func init() {
	subcommandList = append(subcommandList, &runCmd{})
}

func (*runCmd) Name() string { return "run" }

func (*runCmd) Synopsis() string {
	return "Runs a WebAssembly module that imports the chardev syscalls."
}

func (*runCmd) Usage() string {
	return `chardev [-manifest <file>] run [-entry <export>] [-wasi=false] <module.wasm>

The module imports open, close, read, write, lseek, ioctl, compat_ioctl and
fsync from the "chardev" module. Each returns a non-negative result or a
negated errno.
`
}

func (cmd *runCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&cmd.entry, "entry", "_start", "exported function to call")
	f.BoolVar(&cmd.wasi, "wasi", true, "provide wasi_snapshot_preview1 to the module")
}

func (cmd *runCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprint(os.Stderr, cmd.Usage())
		return subcommands.ExitUsageError
	}
	wasm, err := os.ReadFile(f.Arg(0))
	if err != nil {
		loggerFrom(ctx).Error("read module", zap.Error(err))
		return subcommands.ExitFailure
	}
	if err := cmd.execute(ctx, wasm); err != nil {
		loggerFrom(ctx).Error("run failed", zap.String("entry", cmd.entry), zap.Error(err))
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func (cmd *runCmd) execute(ctx context.Context, wasm []byte) error {
	log := loggerFrom(ctx)

	booted, err := bootSystem(ctx)
	if err != nil {
		return err
	}
	defer booted.Close()

	rt, calls, err := newRuntime(ctx, booted)
	if err != nil {
		return err
	}
	defer rt.Close(ctx)

	if cmd.wasi {
		if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
			return fmt.Errorf("instantiate WASI: %w", err)
		}
	}

	compiled, err := rt.CompileModule(ctx, wasm)
	if err != nil {
		return fmt.Errorf("compile: %w", err)
	}
	cfg := wazero.NewModuleConfig().
		WithName("guest").
		WithStdout(os.Stdout).
		WithStderr(os.Stderr).
		WithArgs("guest").
		WithStartFunctions()
	mod, err := rt.InstantiateModule(ctx, compiled, cfg)
	if err != nil {
		return fmt.Errorf("instantiate: %w", err)
	}
	defer calls.Detach(mod)

	fn := mod.ExportedFunction(cmd.entry)
	if fn == nil {
		return fmt.Errorf("module does not export %q", cmd.entry)
	}
	res, err := fn.Call(ctx)
	var exit *sys.ExitError
	switch {
	case errors.As(err, &exit):
		if exit.ExitCode() != 0 {
			return fmt.Errorf("%s: exit code %d", cmd.entry, exit.ExitCode())
		}
		log.Info("guest exited", zap.String("entry", cmd.entry))
		return nil
	case err != nil:
		return fmt.Errorf("%s: %w", cmd.entry, err)
	}

	log.Info("guest returned",
		zap.String("entry", cmd.entry),
		zap.Uint64s("results", res),
		zap.Int("open_fds", calls.Process(mod).OpenFDs()))
	return nil
}
