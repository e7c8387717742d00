package cli

import (
	"log/slog"
	"strconv"
	"strings"

	"github.com/PipeOpsHQ/rivalscope/memory"
	"github.com/PipeOpsHQ/rivalscope/state"
)

type cliOptions struct {
	userID string
	addr   string
	status string
	limit  int
}

func parseArgs(args []string) (cliOptions, []string) {
	opts := cliOptions{}
	positional := make([]string, 0, len(args))
	for i, arg := range args {
		switch {
		case arg == "--":
			return opts, append(positional, args[i+1:]...)
		case strings.HasPrefix(arg, "--user="):
			opts.userID = strings.TrimSpace(strings.TrimPrefix(arg, "--user="))
		case strings.HasPrefix(arg, "--addr="):
			opts.addr = strings.TrimSpace(strings.TrimPrefix(arg, "--addr="))
		case strings.HasPrefix(arg, "--status="):
			opts.status = strings.TrimSpace(strings.TrimPrefix(arg, "--status="))
		case strings.HasPrefix(arg, "--limit="):
			if n, err := strconv.Atoi(strings.TrimPrefix(arg, "--limit=")); err == nil && n > 0 {
				opts.limit = n
			}
		default:
			positional = append(positional, arg)
		}
	}
	return opts, positional
}

// parseReply splits "modify focus on pricing" into action and content.
func parseReply(line string) (action, content string) {
	line = strings.TrimSpace(line)
	action, content, _ = strings.Cut(line, " ")
	return strings.ToLower(action), strings.TrimSpace(content)
}

func closeStore(store state.Store) {
	if store == nil {
		return
	}
	if err := store.Close(); err != nil {
		slog.Warn("state store close failed", "error", err)
	}
}

func closeMemory(store memory.Store) {
	if store == nil {
		return
	}
	if err := store.Close(); err != nil {
		slog.Warn("memory store close failed", "error", err)
	}
}
