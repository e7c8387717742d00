// Package workflow drives a research session through its review gates.
// Every Start and Resume runs to the next gate, writes one checkpoint and
// returns; nothing blocks waiting for the reviewer.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/PipeOpsHQ/rivalscope/memory"
	"github.com/PipeOpsHQ/rivalscope/observe"
	"github.com/PipeOpsHQ/rivalscope/state"
	"github.com/PipeOpsHQ/rivalscope/types"
)

type Input struct {
	UserID string `json:"userId"`
	// Target is the company reference, usually its website.
	Target string `json:"target"`
	Query  string `json:"query"`
}

type Command struct {
	Action  Action `json:"action"`
	Content string `json:"content,omitempty"`
}

// Result is returned at every gate and at the end of the session.
type Result struct {
	SessionID string    `json:"sessionId"`
	Stage     StageName `json:"stage"`
	Status    Status    `json:"status"`
	Gate      Gate      `json:"gate,omitempty"`
	Terminal  bool      `json:"terminal"`
	Revision  int       `json:"revision"`
	State     State     `json:"state"`
}

// Paused reports whether the session is waiting for a reviewer.
func (r Result) Paused() bool { return !r.Terminal }

type Engine struct {
	checkpoints state.Store
	memory      memory.Store
	stages      map[StageName]Stage
	routes      routingTable
	routeRows   []Route
	observer    observe.Sink
	logger      *slog.Logger
	owner       string
	now         func() time.Time

	inflight sync.Map
}

type Option func(*Engine)

func WithObserver(sink observe.Sink) Option {
	return func(e *Engine) {
		if sink != nil {
			e.observer = sink
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithRoutes replaces the routing table. It is validated by New.
func WithRoutes(routes []Route) Option {
	return func(e *Engine) {
		e.routeRows = routes
	}
}

func withClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func New(checkpoints state.Store, mem memory.Store, stages []Stage, opts ...Option) (*Engine, error) {
	if checkpoints == nil {
		return nil, fmt.Errorf("checkpoint store is required")
	}
	if mem == nil {
		return nil, fmt.Errorf("memory store is required")
	}
	e := &Engine{
		checkpoints: checkpoints,
		memory:      mem,
		stages:      map[StageName]Stage{},
		observer:    observe.NoopSink{},
		logger:      slog.Default(),
		owner:       uuid.NewString(),
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, s := range stages {
		if s == nil {
			return nil, fmt.Errorf("stage is nil")
		}
		if !s.Name().Valid() {
			return nil, fmt.Errorf("unknown stage %q", s.Name())
		}
		if _, dup := e.stages[s.Name()]; dup {
			return nil, fmt.Errorf("stage %q registered twice", s.Name())
		}
		e.stages[s.Name()] = s
	}
	if _, ok := e.stages[StagePlan]; !ok {
		return nil, fmt.Errorf("plan stage is required")
	}

	e.routeRows = DefaultRoutes
	for _, opt := range opts {
		opt(e)
	}
	routes, err := compileRoutes(e.routeRows, e.stages)
	if err != nil {
		return nil, fmt.Errorf("invalid routing table: %w", err)
	}
	e.routes = routes
	return e, nil
}

// Start builds the initial state, runs the plan stage and pauses at the
// plan gate.
func (e *Engine) Start(ctx context.Context, sessionID string, in Input) (Result, error) {
	if e == nil {
		return Result{}, fmt.Errorf("engine is not initialized")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return Result{}, fmt.Errorf("%w: session id is required", ErrInvalidInput)
	}
	target, err := ResolveTarget(in.Target)
	if err != nil {
		return Result{}, err
	}

	release, err := e.acquire(ctx, sessionID)
	if err != nil {
		return Result{}, err
	}
	defer release()

	// A session record without a checkpoint is left by a start that never
	// paused; it may be started again.
	if _, err := e.checkpoints.LoadCheckpoint(ctx, sessionID); err == nil {
		return Result{}, fmt.Errorf("%w: session %q already exists", ErrConflict, sessionID)
	} else if !errors.Is(err, state.ErrNotFound) {
		return Result{}, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	ctx = observe.WithSessionID(ctx, sessionID)
	now := e.now()
	st := State{
		SessionID:   sessionID,
		UserID:      strings.TrimSpace(in.UserID),
		CompanyURL:  target,
		CompanyName: InferCompanyName(target),
		Query:       strings.TrimSpace(in.Query),
		Stage:       StagePlan,
		Status:      StatusRevisionRequested,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	st.Scope = DefaultScope(e.preferences(ctx, st.UserID))
	if st.Query != "" {
		st.Messages = append(st.Messages, types.Message{Role: types.RoleUser, Content: st.Query})
	}
	e.emit(ctx, observe.Event{Kind: observe.KindSession, Status: observe.StatusStarted, Name: "start",
		Attributes: map[string]any{"company_url": target, "user_id": st.UserID}})
	e.logger.Info("session started", "session_id", sessionID, "company_url", target)

	e.runStage(ctx, &st, StagePlan, Request{Op: OpRun})
	st.Stage = StagePlan
	st.Status = StatusPendingPlan
	return e.pause(ctx, st, 0)
}

// Resume applies a reviewer action to the latest checkpoint.
func (e *Engine) Resume(ctx context.Context, sessionID string, cmd Command) (Result, error) {
	if e == nil {
		return Result{}, fmt.Errorf("engine is not initialized")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return Result{}, fmt.Errorf("%w: session id is required", ErrInvalidInput)
	}
	action, err := ParseAction(string(cmd.Action))
	if err != nil {
		return Result{}, err
	}

	release, err := e.acquire(ctx, sessionID)
	if err != nil {
		return Result{}, err
	}
	defer release()

	ctx = observe.WithSessionID(ctx, sessionID)
	checkpoint, st, err := e.load(ctx, sessionID)
	if err != nil {
		return Result{}, err
	}
	gate, ok, err := gateFor(st.Stage, st.Status)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return Result{}, fmt.Errorf("%w: session %q is already complete", ErrInvalidInput, sessionID)
	}
	route, ok := e.routes.lookup(gate, action)
	if !ok {
		return Result{}, fmt.Errorf("%w: no route for %s at %s gate", ErrInvalidInput, action, gate)
	}

	e.emit(ctx, observe.Event{Kind: observe.KindGate, Status: observe.StatusCompleted, Name: string(gate),
		Attributes: map[string]any{"action": string(action), "op": string(route.Op)}})
	e.logger.Info("session resumed", "session_id", sessionID, "gate", gate, "action", action)

	content := strings.TrimSpace(cmd.Content)
	if content != "" {
		st.Messages = append(st.Messages, types.Message{Role: types.RoleUser, Content: content})
	}
	st.Status = route.Transient
	if err := e.saveSession(ctx, st); err != nil {
		return Result{}, err
	}

	if err := e.apply(ctx, &st, route, content); err != nil {
		e.syncSession(ctx, sessionID)
		return Result{}, err
	}
	st.Stage = route.Stage
	st.Status = route.Next
	res, err := e.pause(ctx, st, checkpoint.Seq)
	if err != nil {
		e.syncSession(ctx, sessionID)
		return Result{}, err
	}
	return res, nil
}

// GetState reads the latest checkpoint. It never writes.
func (e *Engine) GetState(ctx context.Context, sessionID string) (Result, error) {
	if e == nil {
		return Result{}, fmt.Errorf("engine is not initialized")
	}
	_, st, err := e.load(ctx, strings.TrimSpace(sessionID))
	if err != nil {
		return Result{}, err
	}
	return resultFor(st), nil
}

func (e *Engine) apply(ctx context.Context, st *State, route Route, content string) error {
	if route.Stage == StageResearch && route.Op != OpRollback {
		if err := st.pushResearch(); err != nil {
			return err
		}
	}

	req := Request{Op: route.Op}
	switch route.Op {
	case OpRevise:
		d := ParseDirective(content)
		d.Stage = route.Stage
		st.Directives = append(st.Directives, d)
		st.Scope.Apply(d)
		req.Directive = &d
	case OpReset:
		st.Scope = DefaultScope(e.preferences(ctx, st.UserID))
		st.Plan = nil
	case OpRollback:
		e.rollback(ctx, st, route.Stage)
		return nil
	}
	e.runStage(ctx, st, route.Stage, req)
	return nil
}

func (e *Engine) rollback(ctx context.Context, st *State, stage StageName) {
	switch stage {
	case StageResearch:
		st.restoreResearch()
		st.Say("Discarded the latest research changes and restored the previous results.")
	case StageStrategy:
		if st.revertDraft() {
			st.Say(fmt.Sprintf("Reverted the strategy to draft %d.", st.LatestDraft().Version))
		} else {
			st.Say("There is no earlier strategy draft; keeping the current one.")
		}
	}
	e.emit(ctx, observe.Event{Kind: observe.KindStage, Status: observe.StatusCompleted, Name: string(stage),
		Attributes: map[string]any{"op": string(OpRollback)}})
}

// runStage never fails the session: errors and panics become failures on
// the state and a degraded event.
func (e *Engine) runStage(ctx context.Context, st *State, name StageName, req Request) {
	stage := e.stages[name]
	req.Memory = e.memory
	started := e.now()
	e.emit(ctx, observe.Event{Kind: observe.KindStage, Status: observe.StatusStarted, Name: string(name),
		Attributes: map[string]any{"op": string(req.Op)}})

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("stage %s panicked: %v", name, r)
			}
		}()
		if stage == nil {
			return fmt.Errorf("stage %q is not registered", name)
		}
		return stage.Run(ctx, st, req)
	}()

	event := observe.Event{Kind: observe.KindStage, Status: observe.StatusCompleted, Name: string(name),
		DurationMs: e.now().Sub(started).Milliseconds(), Attributes: map[string]any{"op": string(req.Op)}}
	if err != nil {
		st.AddFailure(Failure{Stage: name, Reason: err.Error(), At: e.now()})
		event.Status = observe.StatusDegraded
		event.Error = err.Error()
		e.logger.Warn("stage degraded", "session_id", st.SessionID, "stage", name, "error", err)
	}
	e.emit(ctx, event)
}

// pause writes the checkpoint for st and returns the gate result. prevSeq is
// the sequence the state was loaded from; a concurrent writer makes the save
// fail with ErrConflict.
func (e *Engine) pause(ctx context.Context, st State, prevSeq int) (Result, error) {
	st.Revision++
	st.UpdatedAt = e.now()
	if gate, ok, _ := gateFor(st.Stage, st.Status); ok {
		st.Say(gateMessage(gate, st))
	}

	snapshot, err := st.snapshot()
	if err != nil {
		return Result{}, err
	}
	err = e.checkpoints.SaveCheckpoint(ctx, state.CheckpointRecord{
		SessionID: st.SessionID,
		Seq:       prevSeq + 1,
		Stage:     string(st.Stage),
		Status:    string(st.Status),
		State:     snapshot,
		CreatedAt: st.UpdatedAt,
	})
	if err != nil {
		if errors.Is(err, state.ErrConflict) {
			return Result{}, fmt.Errorf("%w: checkpoint for session %q moved on", ErrConflict, st.SessionID)
		}
		return Result{}, fmt.Errorf("failed to save checkpoint: %w", err)
	}
	if err := e.saveSession(ctx, st); err != nil {
		return Result{}, err
	}

	e.emit(ctx, observe.Event{Kind: observe.KindCheckpoint, Status: observe.StatusCompleted, Name: string(st.Stage),
		Attributes: map[string]any{"seq": prevSeq + 1, "status": string(st.Status)}})
	res := resultFor(st)
	if res.Terminal {
		e.emit(ctx, observe.Event{Kind: observe.KindSession, Status: observe.StatusCompleted, Name: "finalize"})
		e.logger.Info("session completed", "session_id", st.SessionID, "revision", st.Revision)
	} else {
		e.emit(ctx, observe.Event{Kind: observe.KindGate, Status: observe.StatusStarted, Name: string(res.Gate)})
		e.logger.Info("session paused", "session_id", st.SessionID, "gate", res.Gate, "status", st.Status)
	}
	return res, nil
}

func (e *Engine) load(ctx context.Context, sessionID string) (state.CheckpointRecord, State, error) {
	if sessionID == "" {
		return state.CheckpointRecord{}, State{}, fmt.Errorf("%w: session id is required", ErrInvalidInput)
	}
	checkpoint, err := e.checkpoints.LoadCheckpoint(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, state.ErrNotFound) {
			return state.CheckpointRecord{}, State{}, fmt.Errorf("failed to load checkpoint: %w", err)
		}
		if _, serr := e.checkpoints.LoadSession(ctx, sessionID); serr == nil {
			return state.CheckpointRecord{}, State{}, fmt.Errorf("%w: session %q", ErrNoCheckpoint, sessionID)
		} else if !errors.Is(serr, state.ErrNotFound) {
			return state.CheckpointRecord{}, State{}, fmt.Errorf("failed to load session: %w", serr)
		}
		return state.CheckpointRecord{}, State{}, fmt.Errorf("%w: %q", ErrUnknownSession, sessionID)
	}
	st, err := restoreState(checkpoint.State)
	if err != nil {
		return state.CheckpointRecord{}, State{}, err
	}
	st.Stage = StageName(checkpoint.Stage)
	st.Status = Status(checkpoint.Status)
	if !st.Status.Valid() {
		return state.CheckpointRecord{}, State{}, fmt.Errorf("checkpoint for %q has invalid status %q", sessionID, checkpoint.Status)
	}
	return checkpoint, st, nil
}

// preferences falls back to defaults when memory is unavailable.
func (e *Engine) preferences(ctx context.Context, userID string) memory.Preferences {
	if strings.TrimSpace(userID) == "" {
		return memory.Preferences{}
	}
	prefs, err := memory.LoadPreferences(ctx, e.memory, userID)
	if err != nil {
		e.logger.Warn("failed to load preferences", "user_id", userID, "error", err)
		return memory.Preferences{}
	}
	return prefs
}

// syncSession rewrites the session record from the latest checkpoint after a
// resume failed part way, so the record never reports a status no checkpoint
// holds.
func (e *Engine) syncSession(ctx context.Context, sessionID string) {
	ctx = context.WithoutCancel(ctx)
	_, st, err := e.load(ctx, sessionID)
	if err == nil {
		err = e.saveSession(ctx, st)
	}
	if err != nil {
		e.logger.Warn("failed to resync session record", "session_id", sessionID, "error", err)
	}
}

func (e *Engine) saveSession(ctx context.Context, st State) error {
	err := e.checkpoints.SaveSession(ctx, state.SessionRecord{
		SessionID:  st.SessionID,
		UserID:     st.UserID,
		CompanyURL: st.CompanyURL,
		Query:      st.Query,
		Stage:      string(st.Stage),
		Status:     string(st.Status),
		Revision:   st.Revision,
		CreatedAt:  st.CreatedAt,
		UpdatedAt:  e.now(),
	})
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// acquire enforces one in-flight Start/Resume per session in this process,
// and across processes when the store can lock.
func (e *Engine) acquire(ctx context.Context, sessionID string) (func(), error) {
	if _, busy := e.inflight.LoadOrStore(sessionID, struct{}{}); busy {
		return nil, fmt.Errorf("%w: session %q is busy", ErrConflict, sessionID)
	}
	locker, ok := e.checkpoints.(state.Locker)
	if !ok {
		return func() { e.inflight.Delete(sessionID) }, nil
	}
	acquired, err := locker.AcquireSessionLock(ctx, sessionID, e.owner)
	if err != nil {
		e.inflight.Delete(sessionID)
		return nil, fmt.Errorf("failed to lock session: %w", err)
	}
	if !acquired {
		e.inflight.Delete(sessionID)
		return nil, fmt.Errorf("%w: session %q is locked by another worker", ErrConflict, sessionID)
	}
	return func() {
		if err := locker.ReleaseSessionLock(context.WithoutCancel(ctx), sessionID, e.owner); err != nil {
			e.logger.Warn("failed to release session lock", "session_id", sessionID, "error", err)
		}
		e.inflight.Delete(sessionID)
	}, nil
}

func (e *Engine) emit(ctx context.Context, event observe.Event) {
	if event.SessionID == "" {
		event.SessionID = observe.SessionIDFrom(ctx)
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = e.now()
	}
	if err := e.observer.Emit(ctx, event); err != nil {
		e.logger.Debug("observer emit failed", "error", err)
	}
}

func resultFor(st State) Result {
	res := Result{
		SessionID: st.SessionID,
		Stage:     st.Stage,
		Status:    st.Status,
		Terminal:  st.Status.Terminal(),
		Revision:  st.Revision,
		State:     st,
	}
	if gate, ok, _ := gateFor(st.Stage, st.Status); ok {
		res.Gate = gate
	}
	return res
}

func gateMessage(gate Gate, st State) string {
	switch gate {
	case GatePlan:
		n := 0
		if st.Plan != nil {
			n = len(st.Plan.Tasks)
		}
		return fmt.Sprintf("Research plan ready with %d tasks. Approve, modify, or reject it.", n)
	case GateResearch:
		n := 0
		if st.Research != nil {
			n = len(st.Research.Results)
		}
		return fmt.Sprintf("Research complete with %d results gathered. Awaiting your approval to proceed to strategy.", n)
	case GateStrategy:
		v := 0
		if d := st.LatestDraft(); d != nil {
			v = d.Version
		}
		return fmt.Sprintf("Strategy draft %d ready for review.", v)
	}
	return ""
}
