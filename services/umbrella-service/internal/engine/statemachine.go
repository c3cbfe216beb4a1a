package engine

import (
	"context"
	"time"

	"github.com/suteetoe/umbrella/services/umbrella-service/internal/model"
	umbrellametrics "github.com/suteetoe/umbrella/services/umbrella-service/prometheus"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TransitionResult is the outcome of one state machine step
type TransitionResult struct {
	Relationship *model.UmbrellaRelationship `json:"relationship"`
	From         model.RelationshipStatus    `json:"from"`
	Action       model.Action                `json:"action"`
	Document     *model.AgreementDocument    `json:"document,omitempty"`
	Shares       []model.RevenueShare        `json:"shares,omitempty"`
}

// StateMachine is the only writer of relationship status.
// The persisted status plus the transition log are authoritative.
type StateMachine struct {
	db        *gorm.DB
	log       *zap.Logger
	metrics   *umbrellametrics.Metrics
	now       func() time.Time
	gate      *AgreementGate
	shares    *RevenueShareCalculator
	analytics *AnalyticsAggregator
	instances *instanceCache
}

// Transition validates and applies target/action to the relationship in one transaction
func (m *StateMachine) Transition(ctx context.Context, relationshipID string, target model.RelationshipStatus, action model.Action, metadata map[string]interface{}) (*TransitionResult, error) {
	defer m.metrics.TrackDBOperation("transition")(time.Now())

	var res *TransitionResult
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		res, err = m.transitionTx(tx, relationshipID, target, action, metadata)
		return err
	})
	if err != nil {
		m.metrics.RecordTransitionReject(string(Code(err)))
		m.log.Warn("Transition rejected",
			zap.String("umbrella_id", relationshipID),
			zap.String("to", string(target)),
			zap.String("action", string(action)),
			zap.Error(err))
		return nil, err
	}

	m.committed(res)
	return res, nil
}

// committed runs bookkeeping once the transaction holding res has committed
func (m *StateMachine) committed(res *TransitionResult) {
	m.instances.invalidate(res.Relationship.ID)
	m.metrics.RecordTransition(string(res.From), string(res.Relationship.Status), string(res.Action))
	m.log.Info("Relationship transitioned",
		zap.String("umbrella_id", res.Relationship.ID),
		zap.String("from", string(res.From)),
		zap.String("to", string(res.Relationship.Status)),
		zap.String("action", string(res.Action)),
		zap.Int64("version", res.Relationship.Version))
}

// transitionTx does the work of Transition inside tx; callers that already
// hold a transaction (the agreement gate) use it directly.
func (m *StateMachine) transitionTx(tx *gorm.DB, relationshipID string, target model.RelationshipStatus, action model.Action, metadata map[string]interface{}) (*TransitionResult, error) {
	if _, err := model.ParseAction(string(action)); err != nil {
		return nil, validationError("%v", err)
	}
	if action.Target() != target {
		return nil, validationError("action %s cannot move a relationship to %s", action, target)
	}

	var rel model.UmbrellaRelationship
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&rel, "id = ?", relationshipID).Error; err != nil {
		return nil, lookupError("relationship", relationshipID, err)
	}

	from := rel.Status
	if action.InState() {
		if from != target {
			return nil, newError(CodeInvalidTransition, nil, "%s requires status %s, relationship %s is %s", action, target, rel.ID, from)
		}
	} else if !from.CanTransitionTo(target) {
		return nil, newError(CodeInvalidTransition, nil, "cannot transition relationship %s from %s to %s", rel.ID, from, target)
	}
	if action == model.ActionActivate {
		if err := requireEffectiveAgreement(tx, &rel); err != nil {
			return nil, err
		}
	}

	now := m.now()
	changes := map[string]interface{}{
		"status":     target,
		"version":    rel.Version + 1,
		"updated_at": now,
	}
	res := &TransitionResult{From: from, Action: action}

	post, err := m.sideEffect(&rel, action, metadata, changes, now, res)
	if err != nil {
		return nil, err
	}

	result := tx.Model(&model.UmbrellaRelationship{}).
		Where("id = ? AND version = ?", rel.ID, rel.Version).
		Updates(changes)
	if result.Error != nil {
		return nil, storeError("update relationship status", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, newError(CodeConflict, ErrConcurrentUpdate, "relationship %s changed while transitioning", rel.ID)
	}
	if err := tx.First(&rel, "id = ?", rel.ID).Error; err != nil {
		return nil, storeError("reload relationship", err)
	}

	if err := m.appendLog(tx, &rel, from, action, metadata); err != nil {
		return nil, err
	}
	if post != nil {
		if err := post(tx, &rel); err != nil {
			return nil, err
		}
	}

	res.Relationship = &rel
	return res, nil
}

// requireEffectiveAgreement allows activate only on a PENDING_AGREEMENT
// relationship whose agreement both parties have signed. SUSPENDED and
// EXPIRED relationships come back through resume.
func requireEffectiveAgreement(tx *gorm.DB, rel *model.UmbrellaRelationship) error {
	if rel.Status != model.StatusPendingAgreement {
		return newError(CodeInvalidTransition, nil, "activate requires status %s, relationship %s is %s", model.StatusPendingAgreement, rel.ID, rel.Status)
	}
	var effective int64
	err := tx.Model(&model.AgreementDocument{}).
		Where("umbrella_id = ? AND status = ?", rel.ID, model.DocumentEffective).
		Count(&effective).Error
	if err != nil {
		return storeError("check agreement status", err)
	}
	if effective == 0 {
		return newError(CodeInvalidTransition, nil, "relationship %s has no agreement signed by both parties", rel.ID)
	}
	return nil
}

type postEffect func(tx *gorm.DB, rel *model.UmbrellaRelationship) error

// sideEffect adds the column changes for action to changes and returns the
// work that has to run after the status write. Every action is handled here.
func (m *StateMachine) sideEffect(rel *model.UmbrellaRelationship, action model.Action, metadata map[string]interface{}, changes map[string]interface{}, now time.Time, res *TransitionResult) (postEffect, error) {
	switch action {
	case model.ActionGenerateAgreement:
		return func(tx *gorm.DB, rel *model.UmbrellaRelationship) error {
			doc, err := m.gate.generate(tx, rel)
			res.Document = doc
			return err
		}, nil

	case model.ActionActivate:
		changes["agreement_signed"] = true
		changes["is_active"] = true
		changes["signed_at"] = now
		return func(tx *gorm.DB, rel *model.UmbrellaRelationship) error {
			return m.analytics.seedMonthly(tx, rel.ReferrerID)
		}, nil

	case model.ActionResume:
		changes["is_active"] = true
		return nil, nil

	case model.ActionCalculateRevenue:
		event, err := revenueEventFromMetadata(rel, metadata)
		if err != nil {
			return nil, err
		}
		return func(tx *gorm.DB, rel *model.UmbrellaRelationship) error {
			share, _, err := m.shares.shareFor(tx, rel, event)
			if err != nil {
				return err
			}
			res.Shares = []model.RevenueShare{*share}
			return nil
		}, nil

	case model.ActionSuspend:
		changes["is_active"] = false
		return nil, nil

	case model.ActionTerminate:
		changes["is_active"] = false
		changes["pair_key"] = nil
		if reason, ok := metadata["reason"].(string); ok && reason != "" {
			changes["termination_reason"] = reason
		}
		return func(tx *gorm.DB, rel *model.UmbrellaRelationship) error {
			return m.gate.supersedeDrafts(tx, rel.ID, now)
		}, nil

	case model.ActionExpire:
		changes["is_active"] = false
		return nil, nil

	default:
		return nil, validationError("action %s has no handler", action)
	}
}

// appendLog writes the transition log entry for rel's current version
func (m *StateMachine) appendLog(tx *gorm.DB, rel *model.UmbrellaRelationship, from model.RelationshipStatus, action model.Action, metadata map[string]interface{}) error {
	entry := model.RelationshipTransition{
		UmbrellaID: rel.ID,
		Sequence:   rel.Version,
		FromState:  from,
		ToState:    rel.Status,
		Action:     action,
		CreatedAt:  rel.UpdatedAt,
	}
	if len(metadata) > 0 {
		entry.Metadata = datatypes.JSONMap(metadata)
	}
	if err := tx.Create(&entry).Error; err != nil {
		return storeError("append transition log", err)
	}
	return nil
}

// Instance returns the runtime view of a relationship rebuilt from the store
func (m *StateMachine) Instance(ctx context.Context, relationshipID string) (*Instance, error) {
	var rel model.UmbrellaRelationship
	if err := m.db.WithContext(ctx).Select("id", "status", "version").First(&rel, "id = ?", relationshipID).Error; err != nil {
		return nil, lookupError("relationship", relationshipID, err)
	}

	now := m.now()
	if inst, ok := m.instances.get(rel.ID, rel.Version, now); ok {
		return inst, nil
	}

	var entries []model.RelationshipTransition
	if err := m.db.WithContext(ctx).
		Where("umbrella_id = ? AND sequence <= ?", rel.ID, rel.Version).
		Order("sequence").
		Find(&entries).Error; err != nil {
		return nil, storeError("load transition log", err)
	}

	inst := rehydrate(rel.ID, rel.Status, rel.Version, entries)
	m.instances.put(inst, now)
	return inst.clone(), nil
}

// SweepInstances drops cached instances older than the cache TTL
func (m *StateMachine) SweepInstances(ctx context.Context) int {
	n := m.instances.sweep(m.now())
	if n > 0 {
		m.log.Debug("Swept cached instances", zap.Int("count", n))
	}
	return n
}
