package workflow

import (
	"fmt"
	"strings"
)

// Status is the approval status of a session. It is a closed set.
type Status string

const (
	StatusPendingPlan       Status = "pending_plan_approval"
	StatusApprovedPlan      Status = "approved_plan"
	StatusPendingResearch   Status = "pending_research_approval"
	StatusApprovedResearch  Status = "approved_research"
	StatusPendingStrategy   Status = "pending_strategy_approval"
	StatusApprovedStrategy  Status = "approved_strategy"
	StatusRevisionRequested Status = "revision_requested"
)

var allStatuses = []Status{
	StatusPendingPlan,
	StatusApprovedPlan,
	StatusPendingResearch,
	StatusApprovedResearch,
	StatusPendingStrategy,
	StatusApprovedStrategy,
	StatusRevisionRequested,
}

func Statuses() []Status {
	return append([]Status(nil), allStatuses...)
}

func (s Status) Valid() bool {
	for _, v := range allStatuses {
		if s == v {
			return true
		}
	}
	return false
}

func (s Status) Terminal() bool { return s == StatusApprovedStrategy }

// StageName is the stage marker stored with every checkpoint.
type StageName string

const (
	StagePlan     StageName = "plan"
	StageResearch StageName = "research"
	StageStrategy StageName = "strategy"
)

var stageOrder = []StageName{StagePlan, StageResearch, StageStrategy}

func (s StageName) Valid() bool {
	return s.index() >= 0
}

func (s StageName) index() int {
	for i, v := range stageOrder {
		if s == v {
			return i
		}
	}
	return -1
}

// Gate is where a session waits for a human. Each gate follows one stage.
type Gate string

const (
	GatePlan     Gate = "plan"
	GateResearch Gate = "research"
	GateStrategy Gate = "strategy"
)

var gateStatus = map[Gate]Status{
	GatePlan:     StatusPendingPlan,
	GateResearch: StatusPendingResearch,
	GateStrategy: StatusPendingStrategy,
}

func (g Gate) Stage() StageName { return StageName(g) }

// gateFor derives the gate a checkpoint waits at. ok is false for the
// terminal status.
func gateFor(stage StageName, status Status) (Gate, bool, error) {
	if status.Terminal() {
		return "", false, nil
	}
	for gate, pending := range gateStatus {
		if status == pending {
			if gate.Stage() != stage {
				return "", false, fmt.Errorf("checkpoint stage %q does not match status %q", stage, status)
			}
			return gate, true, nil
		}
	}
	return "", false, fmt.Errorf("checkpoint status %q is not a gate", status)
}

type Action string

const (
	ActionApprove Action = "approve"
	ActionModify  Action = "modify"
	ActionReject  Action = "reject"
)

var allActions = []Action{ActionApprove, ActionModify, ActionReject}

// ParseAction is case-insensitive. Unknown values wrap ErrInvalidInput.
func ParseAction(raw string) (Action, error) {
	a := Action(strings.ToLower(strings.TrimSpace(raw)))
	for _, v := range allActions {
		if a == v {
			return a, nil
		}
	}
	return "", fmt.Errorf("%w: unknown action %q (use approve, modify, or reject)", ErrInvalidInput, raw)
}
