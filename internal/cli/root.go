package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/PipeOpsHQ/rivalscope/internal/config"
)

// Run dispatches a subcommand and returns the process exit code.
func Run(ctx context.Context, args []string) int {
	return run(ctx, args, os.Stdin, os.Stdout)
}

func run(ctx context.Context, args []string, in io.Reader, out io.Writer) int {
	if len(args) < 1 {
		printUsage(out)
		return 2
	}
	cmd := strings.TrimSpace(args[0])
	if cmd == "help" || cmd == "-h" || cmd == "--help" {
		printUsage(out)
		return 0
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	logger, err := newLogger(cfg, os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	slog.SetDefault(logger)

	rt, err := buildRuntime(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build runtime", "error", err)
		return 1
	}
	defer rt.Close()

	switch cmd {
	case "serve":
		err = runServe(ctx, rt, args[1:])
	case "run":
		err = runInteractive(ctx, rt.manager, args[1:], in, out)
	case "state":
		err = showState(ctx, rt.manager, args[1:], out)
	case "sessions":
		err = listSessions(ctx, rt.manager, args[1:], out)
	case "prompts":
		err = listPrompts(rt.prompts, out)
	default:
		printUsage(out)
		return 2
	}
	if err != nil {
		logger.Error(cmd+" failed", "error", err)
		return 1
	}
	return 0
}

func newLogger(cfg *config.Config, w io.Writer) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})), nil
}
