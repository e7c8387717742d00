package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/PipeOpsHQ/rivalscope/api"
	"github.com/PipeOpsHQ/rivalscope/prompt"
	"github.com/PipeOpsHQ/rivalscope/session"
)

func runServe(ctx context.Context, rt *runtime, args []string) error {
	opts, _ := parseArgs(args)
	addr := rt.cfg.Addr
	if opts.addr != "" {
		addr = opts.addr
	}
	cfg := api.Config{
		Addr:     addr,
		Sessions: rt.manager,
		Events:   rt.hub,
		Logger:   rt.logger,
	}
	if rt.tracer != nil {
		cfg.TracerProvider = rt.tracer
	}
	srv, err := api.NewServer(cfg)
	if err != nil {
		return err
	}
	if err := srv.ListenAndServe(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// runInteractive creates a session and walks its gates with replies read
// line by line from in.
func runInteractive(ctx context.Context, m *session.Manager, args []string, in io.Reader, out io.Writer) error {
	opts, positional := parseArgs(args)
	if len(positional) < 1 {
		return fmt.Errorf("usage: run [--user=ID] <target> [-- query]")
	}
	target := strings.TrimSpace(positional[0])
	query := strings.TrimSpace(strings.Join(positional[1:], " "))

	created, err := m.Create(ctx, session.CreateRequest{UserID: opts.userID, TargetReference: target, Query: query})
	if err != nil {
		return err
	}
	id := created.SessionID
	fmt.Fprintf(out, "session %s\n", id)
	printTurn(out, created.Stage, created.ApprovalStatus, created.Message)

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return err
			}
			fmt.Fprintf(out, "\nsession %s paused; resume it over the API\n", id)
			return nil
		}
		action, content := parseReply(scanner.Text())
		switch action {
		case "":
			continue
		case "quit", "exit":
			fmt.Fprintf(out, "session %s paused; resume it over the API\n", id)
			return nil
		case "state":
			if err := showState(ctx, m, []string{id}, out); err != nil {
				return err
			}
			continue
		}

		resp, err := m.SendMessage(ctx, session.MessageRequest{SessionID: id, Action: action, Content: content})
		if err != nil {
			if session.Code(err) == session.CodeInvalidInput {
				fmt.Fprintf(out, "error: %v\n", err)
				continue
			}
			return err
		}
		printTurn(out, resp.Stage, resp.Status, resp.Message)
		if resp.Stage == session.StageCompleted {
			return showState(ctx, m, []string{id}, out)
		}
	}
}

func printTurn(out io.Writer, stage, status, message string) {
	fmt.Fprintf(out, "[%s] %s\n", stage, status)
	if message != "" {
		fmt.Fprintln(out, message)
	}
}

func showState(ctx context.Context, m *session.Manager, args []string, out io.Writer) error {
	_, positional := parseArgs(args)
	if len(positional) < 1 || strings.TrimSpace(positional[0]) == "" {
		return fmt.Errorf("usage: state <session-id>")
	}
	st, err := m.GetState(ctx, strings.TrimSpace(positional[0]))
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(st)
}

func listSessions(ctx context.Context, m *session.Manager, args []string, out io.Writer) error {
	opts, _ := parseArgs(args)
	limit := opts.limit
	if limit == 0 {
		limit = 100
	}
	items, err := m.List(ctx, session.ListQuery{UserID: opts.userID, Status: opts.status, Limit: limit})
	if err != nil {
		return err
	}
	for _, s := range items {
		fmt.Fprintf(out, "%s\t%s\t%s\t%s\t%d\t%s\n",
			s.SessionID, s.Stage, s.ApprovalStatus, s.CompanyURL, s.Revision, s.UpdatedAt.UTC().Format(time.RFC3339))
	}
	return nil
}

func listPrompts(r *prompt.Registry, out io.Writer) error {
	for _, name := range r.Names() {
		spec, _ := r.Resolve(name)
		fmt.Fprintf(out, "%s@%s\t%s\n", spec.Name, spec.Version, spec.Description)
	}
	return nil
}
