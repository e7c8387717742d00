package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/PipeOpsHQ/rivalscope/internal/config"
	"github.com/PipeOpsHQ/rivalscope/llm"
	"github.com/PipeOpsHQ/rivalscope/memory"
	memfactory "github.com/PipeOpsHQ/rivalscope/memory/factory"
	"github.com/PipeOpsHQ/rivalscope/observe"
	otelobserve "github.com/PipeOpsHQ/rivalscope/observe/otel"
	"github.com/PipeOpsHQ/rivalscope/prompt"
	providerfactory "github.com/PipeOpsHQ/rivalscope/providers/factory"
	"github.com/PipeOpsHQ/rivalscope/session"
	"github.com/PipeOpsHQ/rivalscope/stage"
	"github.com/PipeOpsHQ/rivalscope/state"
	statefactory "github.com/PipeOpsHQ/rivalscope/state/factory"
	"github.com/PipeOpsHQ/rivalscope/tools"
	"github.com/PipeOpsHQ/rivalscope/workflow"
)

type runtime struct {
	cfg     *config.Config
	logger  *slog.Logger
	states  state.Store
	memory  memory.Store
	hub     *observe.Hub
	prompts *prompt.Registry
	tracer  *sdktrace.TracerProvider
	manager *session.Manager
	closers []func()
}

func buildRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*runtime, error) {
	rt := &runtime{cfg: cfg, logger: logger, hub: observe.NewHub(0)}
	ok := false
	defer func() {
		if !ok {
			rt.Close()
		}
	}()

	st := cfg.Storage
	states, err := statefactory.New(ctx, statefactory.Settings{
		Backend:       st.StateBackend,
		SQLitePath:    st.SQLitePath,
		RedisAddr:     st.Redis.Addr,
		RedisPassword: st.Redis.Password,
		RedisDB:       st.Redis.DB,
		RedisPrefix:   st.Redis.Prefix,
		RedisTTL:      st.Redis.TTL.Std(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint store: %w", err)
	}
	rt.states = states
	rt.closers = append(rt.closers, func() { closeStore(states) })

	mem, err := memfactory.New(ctx, memfactory.Settings{
		Backend:       st.MemoryBackend,
		SQLitePath:    st.SQLitePath,
		RedisAddr:     st.Redis.Addr,
		RedisPassword: st.Redis.Password,
		RedisDB:       st.Redis.DB,
		RedisPrefix:   st.Redis.Prefix,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open memory store: %w", err)
	}
	rt.memory = mem
	rt.closers = append(rt.closers, func() { closeMemory(mem) })

	sinks := []observe.Sink{observe.NewLogSink(logger), rt.hub}
	if cfg.Telemetry.OTelEnabled {
		rt.tracer = sdktrace.NewTracerProvider(sdktrace.WithBatcher(newLogExporter(logger)))
		otel.SetTracerProvider(rt.tracer)
		spans := observe.NewBuffered(otelobserve.NewSink(rt.tracer), 0)
		sinks = append(sinks, spans)
		rt.closers = append(rt.closers, spans.Close, func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := rt.tracer.Shutdown(sctx); err != nil {
				logger.Warn("tracer shutdown failed", "error", err)
			}
		})
	}
	observer := observe.Fanout(sinks...)

	provider, err := providerfactory.New(ctx, providerfactory.Settings{
		Provider:     cfg.LLM.Provider,
		OVHBaseURL:   cfg.LLM.OVHBaseURL,
		OVHToken:     cfg.LLM.OVHToken,
		OVHModel:     cfg.LLM.OVHModel,
		GeminiAPIKey: cfg.LLM.GeminiAPIKey,
		GeminiModel:  cfg.LLM.GeminiModel,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to configure provider: %w", err)
	}
	retry := llm.DefaultRetryPolicy()
	retry.MaxAttempts = cfg.LLM.MaxAttempts
	synth := llm.NewClient(provider,
		llm.WithTimeout(cfg.LLM.Timeout.Std()),
		llm.WithRetryPolicy(retry),
		llm.WithObserver(observer),
		llm.WithLogger(logger),
	)
	if !synth.Configured() {
		logger.Info("no synthesis provider configured; using deterministic summaries")
	}

	rt.prompts = prompt.Default()
	if dir := strings.TrimSpace(cfg.PromptDir); dir != "" {
		n, err := rt.prompts.LoadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to load prompts from %s: %w", dir, err)
		}
		logger.Info("loaded prompt overrides", "dir", dir, "count", n)
	}

	searcher, err := newSearcher(cfg)
	if err != nil {
		return nil, err
	}

	stageOpts := []stage.Option{
		stage.WithLogger(logger),
		stage.WithObserver(observer),
		stage.WithSynthesizer(synth),
		stage.WithPrompts(rt.prompts),
		stage.WithWorkers(cfg.Research.Workers),
		stage.WithFreshness(cfg.Research.CacheFreshness.Std()),
	}
	researcher, err := stage.NewResearcher(searcher, tools.NewHTTPFetcher(), stageOpts...)
	if err != nil {
		return nil, err
	}
	engine, err := workflow.New(states, mem, []workflow.Stage{
		stage.NewPlanner(stageOpts...),
		researcher,
		stage.NewStrategist(stageOpts...),
	}, workflow.WithObserver(observer), workflow.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	rt.manager, err = session.NewManager(engine, states, session.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	ok = true
	return rt, nil
}

func newSearcher(cfg *config.Config) (tools.Searcher, error) {
	if key := strings.TrimSpace(cfg.Search.TavilyAPIKey); key != "" {
		return tools.NewTavily(key)
	}
	return tools.NewDuckDuckGo(), nil
}

// Close releases resources in reverse order of acquisition.
func (rt *runtime) Close() {
	if rt == nil {
		return
	}
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}

// logExporter writes finished spans through slog at debug level.
type logExporter struct {
	logger *slog.Logger
}

func newLogExporter(logger *slog.Logger) *logExporter {
	return &logExporter{logger: logger}
}

func (e *logExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, s := range spans {
		attrs := []any{
			"trace_id", s.SpanContext().TraceID().String(),
			"span_id", s.SpanContext().SpanID().String(),
			"duration_ms", s.EndTime().Sub(s.StartTime()).Milliseconds(),
			"status", s.Status().Code.String(),
		}
		for _, kv := range s.Attributes() {
			attrs = append(attrs, string(kv.Key), kv.Value.Emit())
		}
		e.logger.DebugContext(ctx, "span "+s.Name(), attrs...)
	}
	return nil
}

func (e *logExporter) Shutdown(context.Context) error { return nil }
