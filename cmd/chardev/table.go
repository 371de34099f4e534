package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/subcommands"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/chardev/fileops"
	"github.com/wippyai/chardev/host"
)

type tableCmd struct {
	all bool
}

func init() {
	subcommandList = append(subcommandList, &tableCmd{})
}

func (*tableCmd) Name() string { return "table" }

func (*tableCmd) Synopsis() string {
	return "Prints the registered devices and their populated dispatch slots."
}

func (*tableCmd) Usage() string {
	return "chardev [-manifest <file>] table [-all]\n"
}

func (cmd *tableCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&cmd.all, "all", false, "list every slot, marking the populated ones")
}

func (cmd *tableCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if err := cmd.execute(ctx, os.Stdout); err != nil {
		loggerFrom(ctx).Error("table failed", zap.Error(err))
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func (cmd *tableCmd) execute(ctx context.Context, w io.Writer) error {
	sys, err := bootSystem(ctx)
	if err != nil {
		return err
	}
	defer sys.Close()

	width := 80
	if fd := int(os.Stdout.Fd()); term.IsTerminal(fd) {
		if cols, _, err := term.GetSize(fd); err == nil && cols > 20 {
			width = cols
		}
	}
	writeTable(w, sys.host.Devices(), cmd.all, width)
	return nil
}

func writeTable(w io.Writer, devs []host.Device, all bool, width int) {
	for _, d := range devs {
		fmt.Fprintf(w, "%s (%d:%d) %s\n", d.Name, d.Major, d.Minor, d.Table.Capabilities())

		slots := d.Table.Slots()
		if all {
			populated := make(map[string]bool, len(slots))
			for _, s := range slots {
				populated[s] = true
			}
			slots = slots[:0:0]
			for _, s := range fileops.SlotNames() {
				mark := "-"
				if populated[s] {
					mark = "+"
				}
				slots = append(slots, mark+s)
			}
		}
		for _, line := range wrapWords(slots, width-2) {
			fmt.Fprintf(w, "  %s\n", line)
		}
	}
}

// wrapWords joins words with spaces into lines no wider than width. A word
// longer than width gets a line of its own.
func wrapWords(words []string, width int) []string {
	var (
		lines []string
		cur   strings.Builder
	)
	for _, word := range words {
		if cur.Len() > 0 && cur.Len()+1+len(word) > width {
			lines = append(lines, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(word)
	}
	if cur.Len() > 0 {
		lines = append(lines, cur.String())
	}
	return lines
}
