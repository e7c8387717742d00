package cli

import (
	"fmt"
	"io"
)

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "rivalscope: reviewer-gated competitive research")
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  rivalscope serve [--addr=127.0.0.1:8080]")
	fmt.Fprintln(w, "  rivalscope run [--user=ID] <target-url-or-domain> [-- query]")
	fmt.Fprintln(w, "  rivalscope state <session-id>")
	fmt.Fprintln(w, "  rivalscope sessions [--user=ID] [--status=STATUS] [--limit=N]")
	fmt.Fprintln(w, "  rivalscope prompts")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Interactive replies (run):")
	fmt.Fprintln(w, "  approve                      accept the pending stage")
	fmt.Fprintln(w, "  modify <instructions>        revise the pending stage")
	fmt.Fprintln(w, "  reject                       discard the latest revision")
	fmt.Fprintln(w, "  state                        print the session state")
	fmt.Fprintln(w, "  quit                         leave; the session stays resumable")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Environment Variables:")
	fmt.Fprintln(w, "  RIVALSCOPE_CONFIG            YAML config file")
	fmt.Fprintln(w, "  RIVALSCOPE_STATE_BACKEND     memory|sqlite|redis|hybrid")
	fmt.Fprintln(w, "  RIVALSCOPE_MEMORY_BACKEND    memory|sqlite|redis")
	fmt.Fprintln(w, "  RIVALSCOPE_PROVIDER          openai|gemini (unset: deterministic synthesis)")
	fmt.Fprintln(w, "  TAVILY_API_KEY               use Tavily instead of DuckDuckGo")
	fmt.Fprintln(w, "  LOG_LEVEL                    debug|info|warn|error")
	fmt.Fprintln(w, "  OTEL_ENABLED                 record spans for workflow events")
}
