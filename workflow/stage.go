package workflow

import (
	"context"

	"github.com/PipeOpsHQ/rivalscope/memory"
)

// Request is what the engine hands a stage.
type Request struct {
	Op Op
	// Directive is set for OpRevise.
	Directive *Directive
	Memory    memory.Store
}

// Stage transforms the session state in place. An error marks the run as
// degraded; whatever the stage already wrote to st is kept.
type Stage interface {
	Name() StageName
	Run(ctx context.Context, st *State, req Request) error
}

// StageFunc adapts a function to Stage.
type StageFunc struct {
	StageName StageName
	Fn        func(ctx context.Context, st *State, req Request) error
}

func (f StageFunc) Name() StageName { return f.StageName }

func (f StageFunc) Run(ctx context.Context, st *State, req Request) error {
	if f.Fn == nil {
		return nil
	}
	return f.Fn(ctx, st, req)
}
