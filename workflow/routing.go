package workflow

import "fmt"

// Op is what the engine does with the stage a route selects.
type Op string

const (
	// OpRun runs the stage on the current state.
	OpRun Op = "run"
	// OpRevise merges the directive into scope and re-runs the stage.
	OpRevise Op = "revise"
	// OpReset clears scope back to defaults and re-runs the stage.
	OpReset Op = "reset"
	// OpRollback restores the stage's previous output without running it.
	OpRollback Op = "rollback"
	// OpFinalize runs the stage's closing step and ends the session.
	OpFinalize Op = "finalize"
)

// Route is one row of the routing table.
type Route struct {
	Gate   Gate
	Action Action
	Op     Op
	Stage  StageName
	// Transient is the status held while the stage runs.
	Transient Status
	Next      Status
}

// DefaultRoutes is the plan → research → strategy review protocol.
var DefaultRoutes = []Route{
	{Gate: GatePlan, Action: ActionApprove, Op: OpRun, Stage: StageResearch, Transient: StatusApprovedPlan, Next: StatusPendingResearch},
	{Gate: GatePlan, Action: ActionModify, Op: OpRevise, Stage: StagePlan, Transient: StatusRevisionRequested, Next: StatusPendingPlan},
	{Gate: GatePlan, Action: ActionReject, Op: OpReset, Stage: StagePlan, Transient: StatusRevisionRequested, Next: StatusPendingPlan},

	{Gate: GateResearch, Action: ActionApprove, Op: OpRun, Stage: StageStrategy, Transient: StatusApprovedResearch, Next: StatusPendingStrategy},
	{Gate: GateResearch, Action: ActionModify, Op: OpRevise, Stage: StageResearch, Transient: StatusRevisionRequested, Next: StatusPendingResearch},
	{Gate: GateResearch, Action: ActionReject, Op: OpRollback, Stage: StageResearch, Transient: StatusRevisionRequested, Next: StatusPendingResearch},

	{Gate: GateStrategy, Action: ActionApprove, Op: OpFinalize, Stage: StageStrategy, Transient: StatusApprovedStrategy, Next: StatusApprovedStrategy},
	{Gate: GateStrategy, Action: ActionModify, Op: OpRevise, Stage: StageStrategy, Transient: StatusRevisionRequested, Next: StatusPendingStrategy},
	{Gate: GateStrategy, Action: ActionReject, Op: OpRollback, Stage: StageStrategy, Transient: StatusRevisionRequested, Next: StatusPendingStrategy},
}

type routeKey struct {
	gate   Gate
	action Action
}

type routingTable map[routeKey]Route

// compileRoutes rejects tables with gaps, duplicates, or rows that would let
// a session skip a review: modify and reject must stay on the gate's own
// stage, approve may move at most one stage forward.
func compileRoutes(routes []Route, stages map[StageName]Stage) (routingTable, error) {
	table := routingTable{}
	for _, r := range routes {
		key := routeKey{r.Gate, r.Action}
		if _, dup := table[key]; dup {
			return nil, fmt.Errorf("duplicate route for gate %q action %q", r.Gate, r.Action)
		}
		if _, ok := gateStatus[r.Gate]; !ok {
			return nil, fmt.Errorf("route has unknown gate %q", r.Gate)
		}
		if !r.Stage.Valid() {
			return nil, fmt.Errorf("route %s/%s has unknown stage %q", r.Gate, r.Action, r.Stage)
		}
		if !r.Transient.Valid() || !r.Next.Valid() {
			return nil, fmt.Errorf("route %s/%s has invalid status", r.Gate, r.Action)
		}
		if _, ok := stages[r.Stage]; !ok {
			return nil, fmt.Errorf("route %s/%s needs stage %q which is not registered", r.Gate, r.Action, r.Stage)
		}

		step := r.Stage.index() - r.Gate.Stage().index()
		switch r.Action {
		case ActionModify, ActionReject:
			if step != 0 {
				return nil, fmt.Errorf("route %s/%s must stay on stage %q", r.Gate, r.Action, r.Gate.Stage())
			}
			if r.Next != gateStatus[r.Gate] {
				return nil, fmt.Errorf("route %s/%s must return to %q", r.Gate, r.Action, gateStatus[r.Gate])
			}
		case ActionApprove:
			if step < 0 || step > 1 {
				return nil, fmt.Errorf("route %s/%s may only advance one stage", r.Gate, r.Action)
			}
		default:
			return nil, fmt.Errorf("route has unknown action %q", r.Action)
		}

		switch r.Op {
		case OpRun, OpRevise, OpReset, OpFinalize:
		case OpRollback:
			if r.Stage == StagePlan {
				return nil, fmt.Errorf("route %s/%s: plan has no prior output to roll back to", r.Gate, r.Action)
			}
		default:
			return nil, fmt.Errorf("route %s/%s has unknown op %q", r.Gate, r.Action, r.Op)
		}
		table[key] = r
	}

	for gate := range gateStatus {
		for _, action := range allActions {
			if _, ok := table[routeKey{gate, action}]; !ok {
				return nil, fmt.Errorf("no route for gate %q action %q", gate, action)
			}
		}
	}
	return table, nil
}

func (t routingTable) lookup(gate Gate, action Action) (Route, bool) {
	r, ok := t[routeKey{gate, action}]
	return r, ok
}
