package llm

import (
	"context"
	"errors"

	"github.com/PipeOpsHQ/rivalscope/types"
)

var (
	ErrNotSupported  = errors.New("llm: operation not supported by provider")
	ErrNoProvider    = errors.New("llm: no provider configured")
	ErrInvalidOutput = errors.New("llm: invalid structured output")
	// ErrPermanent marks provider failures that a retry cannot fix, such as
	// bad credentials or an unknown model.
	ErrPermanent = errors.New("llm: permanent provider error")
)

type Capabilities struct {
	StructuredOutput bool
}

type Provider interface {
	Name() string
	Capabilities() Capabilities
	Generate(ctx context.Context, req types.Request) (types.Response, error)
}

// Synthesizer is the collaborator contract stages depend on.
type Synthesizer interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
	GenerateStructured(ctx context.Context, system, prompt string, out any) error
}
