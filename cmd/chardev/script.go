package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/google/subcommands"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

// script is a list of console lines run in order by one guest.
type script struct {
	Steps []step `yaml:"steps"`
}

type step struct {
	Do string `yaml:"do"`
	// Fail marks a step that is expected to return an error.
	Fail bool `yaml:"fail"`
}

func parseScript(data []byte) (*script, error) {
	var s script
	if err := yaml.UnmarshalStrict(data, &s); err != nil {
		return nil, fmt.Errorf("parse script: %w", err)
	}
	if len(s.Steps) == 0 {
		return nil, fmt.Errorf("script has no steps")
	}
	return &s, nil
}

type scriptCmd struct {
	keepGoing bool
}

func init() {
	subcommandList = append(subcommandList, &scriptCmd{})
}

func (*scriptCmd) Name() string { return "script" }

func (*scriptCmd) Synopsis() string {
	return "Runs a YAML list of console commands through a guest process."
}

func (*scriptCmd) Usage() string {
	return "chardev [-manifest <file>] script [-k] <script.yaml>\n"
}

func (cmd *scriptCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&cmd.keepGoing, "k", false, "keep going after an unexpected result")
}

func (cmd *scriptCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprint(os.Stderr, cmd.Usage())
		return subcommands.ExitUsageError
	}
	data, err := os.ReadFile(f.Arg(0))
	if err != nil {
		loggerFrom(ctx).Error("read script", zap.Error(err))
		return subcommands.ExitFailure
	}
	if err := cmd.execute(ctx, data, os.Stdout); err != nil {
		loggerFrom(ctx).Error("script failed", zap.Error(err))
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func (cmd *scriptCmd) execute(ctx context.Context, data []byte, w io.Writer) error {
	sc, err := parseScript(data)
	if err != nil {
		return err
	}
	sys, err := bootSystem(ctx)
	if err != nil {
		return err
	}
	defer sys.Close()

	sess, err := newSession(ctx, sys)
	if err != nil {
		return err
	}
	defer sess.Close(ctx)

	return runScript(ctx, sess, sc, w, cmd.keepGoing)
}

func runScript(ctx context.Context, sess *session, sc *script, w io.Writer, keepGoing bool) error {
	var failed int
	for i, st := range sc.Steps {
		out, err := sess.exec(ctx, st.Do)
		fmt.Fprintf(w, "> %s\n", st.Do)
		switch {
		case err != nil && st.Fail:
			fmt.Fprintf(w, "  error (expected): %v\n", err)
			continue
		case err != nil:
			fmt.Fprintf(w, "  error: %v\n", err)
		case st.Fail:
			fmt.Fprintf(w, "  %s\n  unexpected success\n", out)
		default:
			if out != "" {
				fmt.Fprintf(w, "  %s\n", out)
			}
			continue
		}
		failed++
		if !keepGoing {
			return fmt.Errorf("step %d (%s) did not go as expected", i+1, st.Do)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d steps did not go as expected", failed, len(sc.Steps))
	}
	return nil
}
