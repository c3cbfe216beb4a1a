package model

import "fmt"

// Action names what caused a state machine step
type Action string

const (
	// ActionCreate only appears in the transition log as the first entry.
	ActionCreate            Action = "create"
	ActionGenerateAgreement Action = "generateAgreement"
	ActionActivate          Action = "activate"
	ActionResume            Action = "resume"
	ActionCalculateRevenue  Action = "calculateRevenue"
	ActionSuspend           Action = "suspend"
	ActionTerminate         Action = "terminate"
	ActionExpire            Action = "expire"
)

// actionTargets maps each transition action to the state it lands in
var actionTargets = map[Action]RelationshipStatus{
	ActionGenerateAgreement: StatusPendingAgreement,
	ActionActivate:          StatusActive,
	ActionResume:            StatusActive,
	ActionCalculateRevenue:  StatusActive,
	ActionSuspend:           StatusSuspended,
	ActionTerminate:         StatusTerminated,
	ActionExpire:            StatusExpired,
}

// ParseAction validates an action requested by a caller
func ParseAction(s string) (Action, error) {
	a := Action(s)
	if _, ok := actionTargets[a]; !ok {
		return "", fmt.Errorf("unknown action %q", s)
	}
	return a, nil
}

// Target is the state the action moves a relationship into
func (a Action) Target() RelationshipStatus {
	return actionTargets[a]
}

// InState reports whether the action runs without leaving the current state
func (a Action) InState() bool {
	return a == ActionGenerateAgreement || a == ActionCalculateRevenue
}
