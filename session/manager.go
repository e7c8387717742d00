// Package session is the outer surface over the workflow engine: it mints
// session ids, shapes responses and maps engine errors to stable codes.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/PipeOpsHQ/rivalscope/guardrail"
	"github.com/PipeOpsHQ/rivalscope/memory"
	"github.com/PipeOpsHQ/rivalscope/state"
	"github.com/PipeOpsHQ/rivalscope/types"
	"github.com/PipeOpsHQ/rivalscope/workflow"
)

// StatusProcessing is what Create reports for a session it accepted.
const StatusProcessing = "processing"

// StageCompleted is the stage label of a finished session.
const StageCompleted = "completed"

// DefaultInputLimit caps query and reply length in runes.
const DefaultInputLimit = 4000

// Engine is the subset of *workflow.Engine the manager drives.
type Engine interface {
	Start(ctx context.Context, sessionID string, in workflow.Input) (workflow.Result, error)
	Resume(ctx context.Context, sessionID string, cmd workflow.Command) (workflow.Result, error)
	GetState(ctx context.Context, sessionID string) (workflow.Result, error)
}

type CreateRequest struct {
	UserID          string `json:"user_id"`
	TargetReference string `json:"target_reference"`
	Query           string `json:"query"`
}

type CreateResponse struct {
	SessionID      string `json:"session_id"`
	Status         string `json:"status"`
	ApprovalStatus string `json:"approval_status"`
	Stage          string `json:"stage"`
	Message        string `json:"message,omitempty"`
}

type MessageRequest struct {
	SessionID string `json:"session_id"`
	Content   string `json:"content"`
	Action    string `json:"action"`
}

type MessageResponse struct {
	Status  string `json:"status"`
	Stage   string `json:"stage"`
	Message string `json:"message,omitempty"`
}

// PartialResults is whatever the session has produced so far.
type PartialResults struct {
	Plan     *workflow.Plan          `json:"plan,omitempty"`
	Research *workflow.Research      `json:"research,omitempty"`
	Analyses []memory.Analysis       `json:"analyses,omitempty"`
	Draft    *workflow.StrategyDraft `json:"draft,omitempty"`
	Insights *workflow.Insights      `json:"insights,omitempty"`
	Failures []workflow.Failure      `json:"failures,omitempty"`
}

type StateResponse struct {
	SessionID      string          `json:"session_id"`
	Stage          string          `json:"stage"`
	ApprovalStatus string          `json:"approval_status"`
	Revision       int             `json:"revision"`
	CompanyName    string          `json:"company_name,omitempty"`
	CompanyURL     string          `json:"company_url,omitempty"`
	PartialResults PartialResults  `json:"partial_results"`
	Messages       []types.Message `json:"messages,omitempty"`
}

type Summary struct {
	SessionID      string    `json:"session_id"`
	UserID         string    `json:"user_id,omitempty"`
	CompanyURL     string    `json:"company_url,omitempty"`
	Query          string    `json:"query,omitempty"`
	Stage          string    `json:"stage"`
	ApprovalStatus string    `json:"approval_status"`
	Revision       int       `json:"revision"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type ListQuery struct {
	UserID string
	Status string
	Limit  int
	Offset int
}

type Manager struct {
	engine   Engine
	sessions state.Store
	logger   *slog.Logger
	newID    func() string
	guard    *guardrail.Pipeline
}

type Option func(*Manager)

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithIDGenerator replaces uuid session ids.
func WithIDGenerator(fn func() string) Option {
	return func(m *Manager) {
		if fn != nil {
			m.newID = fn
		}
	}
}

// WithInputLimit changes the rune cap on queries and replies. Zero lifts it.
func WithInputLimit(n int) Option {
	return func(m *Manager) {
		if n >= 0 {
			m.guard = guardrail.ReviewerInput(n)
		}
	}
}

// NewManager wires the engine and the session index it writes to.
func NewManager(engine Engine, sessions state.Store, opts ...Option) (*Manager, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}
	m := &Manager{
		engine:   engine,
		sessions: sessions,
		logger:   slog.Default(),
		newID:    uuid.NewString,
		guard:    guardrail.ReviewerInput(DefaultInputLimit),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Create starts a session. The plan stage runs before Create returns, so
// the response already carries the plan gate's approval status.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (CreateResponse, error) {
	if m == nil {
		return CreateResponse{}, fmt.Errorf("session manager is not initialized")
	}
	if strings.TrimSpace(req.TargetReference) == "" {
		return CreateResponse{}, fmt.Errorf("%w: target_reference is required", workflow.ErrInvalidInput)
	}
	if err := m.screen(ctx, "query", req.Query); err != nil {
		return CreateResponse{}, err
	}
	id := m.newID()
	res, err := m.engine.Start(ctx, id, workflow.Input{
		UserID: strings.TrimSpace(req.UserID),
		Target: req.TargetReference,
		Query:  req.Query,
	})
	if err != nil {
		m.logger.Warn("session create failed", "session_id", id, "code", Code(err), "error", err)
		return CreateResponse{}, err
	}
	return CreateResponse{
		SessionID:      id,
		Status:         StatusProcessing,
		ApprovalStatus: string(res.Status),
		Stage:          StageLabel(res),
		Message:        lastAssistant(res.State.Messages),
	}, nil
}

// SendMessage validates the action and resumes the session with it.
func (m *Manager) SendMessage(ctx context.Context, req MessageRequest) (MessageResponse, error) {
	if m == nil {
		return MessageResponse{}, fmt.Errorf("session manager is not initialized")
	}
	if strings.TrimSpace(req.SessionID) == "" {
		return MessageResponse{}, fmt.Errorf("%w: session_id is required", workflow.ErrInvalidInput)
	}
	action, err := workflow.ParseAction(req.Action)
	if err != nil {
		return MessageResponse{}, err
	}
	if err := m.screen(ctx, "content", req.Content); err != nil {
		return MessageResponse{}, err
	}
	res, err := m.engine.Resume(ctx, req.SessionID, workflow.Command{Action: action, Content: req.Content})
	if err != nil {
		m.logger.Warn("session message failed", "session_id", req.SessionID, "action", action, "code", Code(err), "error", err)
		return MessageResponse{}, err
	}
	return MessageResponse{
		Status:  string(res.Status),
		Stage:   StageLabel(res),
		Message: lastAssistant(res.State.Messages),
	}, nil
}

func (m *Manager) GetState(ctx context.Context, sessionID string) (StateResponse, error) {
	if m == nil {
		return StateResponse{}, fmt.Errorf("session manager is not initialized")
	}
	res, err := m.engine.GetState(ctx, sessionID)
	if err != nil {
		return StateResponse{}, err
	}
	st := res.State
	return StateResponse{
		SessionID:      res.SessionID,
		Stage:          StageLabel(res),
		ApprovalStatus: string(res.Status),
		Revision:       res.Revision,
		CompanyName:    st.CompanyName,
		CompanyURL:     st.CompanyURL,
		PartialResults: PartialResults{
			Plan:     st.Plan,
			Research: st.Research,
			Analyses: st.Analyses,
			Draft:    st.LatestDraft(),
			Insights: st.Insights,
			Failures: st.Failures,
		},
		Messages: st.Messages,
	}, nil
}

func (m *Manager) List(ctx context.Context, q ListQuery) ([]Summary, error) {
	if m == nil {
		return nil, fmt.Errorf("session manager is not initialized")
	}
	if q.Status != "" && !workflow.Status(q.Status).Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", workflow.ErrInvalidInput, q.Status)
	}
	recs, err := m.sessions.ListSessions(ctx, state.ListSessionsQuery{
		UserID: q.UserID,
		Status: q.Status,
		Limit:  q.Limit,
		Offset: q.Offset,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	out := make([]Summary, 0, len(recs))
	for _, r := range recs {
		stage := r.Stage
		if workflow.Status(r.Status).Terminal() {
			stage = StageCompleted
		}
		out = append(out, Summary{
			SessionID:      r.SessionID,
			UserID:         r.UserID,
			CompanyURL:     r.CompanyURL,
			Query:          r.Query,
			Stage:          stage,
			ApprovalStatus: r.Status,
			Revision:       r.Revision,
			CreatedAt:      r.CreatedAt,
			UpdatedAt:      r.UpdatedAt,
		})
	}
	return out, nil
}

func (m *Manager) screen(ctx context.Context, field, text string) error {
	if _, _, err := m.guard.Apply(ctx, text); err != nil {
		if errors.Is(err, guardrail.ErrBlocked) {
			return fmt.Errorf("%w: %s rejected: %v", workflow.ErrInvalidInput, field, err)
		}
		return err
	}
	return nil
}

// StageLabel is the stage marker, or "completed" once the session is done.
func StageLabel(res workflow.Result) string {
	if res.Terminal {
		return StageCompleted
	}
	return string(res.Stage)
}

func lastAssistant(msgs []types.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == types.RoleAssistant {
			return msgs[i].Content
		}
	}
	return ""
}

type ErrorCode string

const (
	CodeInvalidInput   ErrorCode = "invalid_input"
	CodeUnknownSession ErrorCode = "unknown_session"
	CodeNoCheckpoint   ErrorCode = "no_checkpoint"
	CodeConflict       ErrorCode = "conflict"
	CodeInternal       ErrorCode = "internal"
)

// Code maps an engine error to its external code.
func Code(err error) ErrorCode {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, workflow.ErrInvalidInput):
		return CodeInvalidInput
	case errors.Is(err, workflow.ErrUnknownSession):
		return CodeUnknownSession
	case errors.Is(err, workflow.ErrNoCheckpoint):
		return CodeNoCheckpoint
	case errors.Is(err, workflow.ErrConflict):
		return CodeConflict
	default:
		return CodeInternal
	}
}
