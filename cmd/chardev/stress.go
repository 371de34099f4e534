package main

import (
	"context"
	stderrors "errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/subcommands"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wippyai/chardev/errors"
	"github.com/wippyai/chardev/file"
	"github.com/wippyai/chardev/fileops"
	"github.com/wippyai/chardev/hostcall"
)

type stressCmd struct {
	device     string
	workers    int
	iterations int
	payload    string
}

func init() {
	subcommandList = append(subcommandList, &stressCmd{})
}

func (*stressCmd) Name() string { return "stress" }

func (*stressCmd) Synopsis() string {
	return "Opens, uses and closes a device from many guests at once."
}

func (*stressCmd) Usage() string {
	return "chardev [-manifest <file>] stress [-device <name>] [-workers N] [-iterations N]\n"
}

func (cmd *stressCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&cmd.device, "device", "scratch", "device to exercise")
	f.IntVar(&cmd.workers, "workers", 8, "number of guest processes")
	f.IntVar(&cmd.iterations, "iterations", 200, "open/close cycles per guest")
	f.StringVar(&cmd.payload, "payload", "ping", "bytes written on each cycle")
}

func (cmd *stressCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if err := cmd.execute(ctx, os.Stdout); err != nil {
		loggerFrom(ctx).Error("stress failed", zap.String("device", cmd.device), zap.Error(err))
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type stressStats struct {
	opens  atomic.Int64
	calls  atomic.Int64
	misses atomic.Int64
}

func (cmd *stressCmd) execute(ctx context.Context, w io.Writer) error {
	if cmd.workers <= 0 || cmd.iterations <= 0 {
		return fmt.Errorf("-workers and -iterations must be positive")
	}
	sys, err := bootSystem(ctx)
	if err != nil {
		return err
	}
	defer sys.Close()

	ino, ok := sys.host.Lookup(cmd.device)
	if !ok {
		return fmt.Errorf("no device %q", cmd.device)
	}
	var caps fileops.Capabilities
	for _, d := range sys.host.Devices() {
		if d.Name == ino.Name {
			caps = d.Table.Capabilities()
		}
	}

	rt, calls, err := newRuntime(ctx, sys)
	if err != nil {
		return err
	}
	defer rt.Close(ctx)

	guests := make([]*hostcall.Guest, 0, cmd.workers)
	defer func() {
		for _, guest := range guests {
			_ = guest.Shutdown(ctx)
		}
	}()
	for i := 0; i < cmd.workers; i++ {
		guest, err := calls.NewGuest(ctx, rt, fmt.Sprintf("stress-%d", i))
		if err != nil {
			return err
		}
		guests = append(guests, guest)
	}

	var stats stressStats
	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for _, guest := range guests {
		g.Go(func() error {
			return cmd.work(gctx, guest, caps, &stats)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	elapsed := time.Since(start)
	fmt.Fprintf(w, "%s: %d opens, %d calls, %d would-block in %v (%.0f calls/s)\n",
		cmd.device, stats.opens.Load(), stats.calls.Load(), stats.misses.Load(),
		elapsed.Round(time.Millisecond), float64(stats.calls.Load())/elapsed.Seconds())
	return nil
}

// work runs the open/use/close cycle. Reads are non-blocking so a device
// with nothing to read, such as an empty semaphore, does not stall the run.
func (cmd *stressCmd) work(ctx context.Context, g *hostcall.Guest, caps fileops.Capabilities, stats *stressStats) error {
	payload := []byte(cmd.payload)
	for i := 0; i < cmd.iterations; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		fd, err := g.Open(ctx, cmd.device, file.O_RDWR|file.O_NONBLOCK)
		if err != nil {
			return fmt.Errorf("open: %w", err)
		}
		stats.opens.Add(1)

		if caps.Write {
			if _, err := g.Write(ctx, fd, payload); err != nil {
				return fmt.Errorf("write: %w", err)
			}
			stats.calls.Add(1)
		}
		if caps.Seek {
			if _, err := g.Lseek(ctx, fd, 0, fileops.WhenceSet); err != nil {
				return fmt.Errorf("lseek: %w", err)
			}
			stats.calls.Add(1)
		}
		if caps.Read {
			_, err := g.Read(ctx, fd, uint32(len(payload)))
			switch {
			case stderrors.Is(err, errors.EAGAIN):
				stats.misses.Add(1)
			case err != nil:
				return fmt.Errorf("read: %w", err)
			}
			stats.calls.Add(1)
		}
		if err := g.Close(ctx, fd); err != nil {
			return fmt.Errorf("close: %w", err)
		}
	}
	return nil
}
