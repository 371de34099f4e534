// Command chardev hosts character devices in a simulated kernel and drives
// them from WebAssembly guests.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/chardev/fileops"
	"github.com/wippyai/chardev/host"
	"github.com/wippyai/chardev/hostcall"
)

var (
	logLevel       = zapcore.WarnLevel
	manifestPath   string
	subcommandList []subcommands.Command
)

func init() {
	flag.Var(&logLevel, "log-level", "log verbosity: debug, info, warn or error")
	flag.StringVar(&manifestPath, "manifest", "", "device manifest (YAML); the built-in set is used when empty")

	subcommandList = append(subcommandList,
		subcommands.HelpCommand(),
		subcommands.FlagsCommand(),
		subcommands.CommandsCommand(),
	)
}

type loggerKey struct{}

func withLogger(ctx context.Context, log *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, log)
}

func loggerFrom(ctx context.Context) *zap.Logger {
	if log, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok {
		return log
	}
	return zap.NewNop()
}

func newLogger() (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(logLevel)
	cfg.DisableStacktrace = true
	return cfg.Build()
}

// bootSystem loads the manifest named by -manifest and registers its devices.
func bootSystem(ctx context.Context) (*system, error) {
	m, err := loadManifest(manifestPath)
	if err != nil {
		return nil, err
	}
	return newSystem(m, loggerFrom(ctx))
}

func main() {
	for _, cmd := range subcommandList {
		subcommands.Register(cmd, "")
	}

	flag.Parse()
	log, err := newLogger()
	if err != nil {
		log = zap.NewNop()
	}

	fileops.SetLogger(log.Named("fileops"))
	host.SetLogger(log.Named("host"))
	hostcall.SetLogger(log.Named("hostcall"))

	ctx := withLogger(context.Background(), log)
	status := subcommands.Execute(ctx)
	_ = log.Sync()
	os.Exit(int(status))
}
