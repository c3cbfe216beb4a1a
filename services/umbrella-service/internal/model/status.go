package model

import "fmt"

// RelationshipStatus is the lifecycle state of an umbrella relationship
type RelationshipStatus string

const (
	StatusPendingAgreement RelationshipStatus = "PENDING_AGREEMENT"
	StatusActive           RelationshipStatus = "ACTIVE"
	StatusSuspended        RelationshipStatus = "SUSPENDED"
	StatusTerminated       RelationshipStatus = "TERMINATED"
	StatusExpired          RelationshipStatus = "EXPIRED"
)

// legalTransitions is the single source of truth for lifecycle moves.
// PENDING_AGREEMENT -> TERMINATED is allowed so an unsigned relationship can be cancelled.
var legalTransitions = map[RelationshipStatus][]RelationshipStatus{
	StatusPendingAgreement: {StatusActive, StatusSuspended, StatusTerminated},
	StatusActive:           {StatusSuspended, StatusTerminated},
	StatusSuspended:        {StatusActive, StatusTerminated},
	StatusTerminated:       {},
	StatusExpired:          {StatusActive, StatusTerminated},
}

// ParseRelationshipStatus validates a status name
func ParseRelationshipStatus(s string) (RelationshipStatus, error) {
	status := RelationshipStatus(s)
	if _, ok := legalTransitions[status]; !ok {
		return "", fmt.Errorf("unknown relationship status %q", s)
	}
	return status, nil
}

// CanTransitionTo reports whether the table allows moving from s to target
func (s RelationshipStatus) CanTransitionTo(target RelationshipStatus) bool {
	for _, allowed := range legalTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// AllowedTransitions returns a copy of the states reachable from s
func (s RelationshipStatus) AllowedTransitions() []RelationshipStatus {
	return append([]RelationshipStatus(nil), legalTransitions[s]...)
}

// IsTerminal reports whether no transition leaves s
func (s RelationshipStatus) IsTerminal() bool {
	return len(legalTransitions[s]) == 0
}

// RelationshipType classifies the sponsorship
type RelationshipType string

const (
	TypePrivateUmbrella   RelationshipType = "PRIVATE_UMBRELLA"
	TypeCorporateUmbrella RelationshipType = "CORPORATE_UMBRELLA"
	TypeAffiliateUmbrella RelationshipType = "AFFILIATE_UMBRELLA"
)

// ParseRelationshipType validates a relationship type, defaulting to PRIVATE_UMBRELLA
func ParseRelationshipType(s string) (RelationshipType, error) {
	switch RelationshipType(s) {
	case "":
		return TypePrivateUmbrella, nil
	case TypePrivateUmbrella, TypeCorporateUmbrella, TypeAffiliateUmbrella:
		return RelationshipType(s), nil
	default:
		return "", fmt.Errorf("unknown relationship type %q", s)
	}
}
