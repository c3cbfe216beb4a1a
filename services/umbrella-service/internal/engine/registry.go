package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/suteetoe/umbrella/services/umbrella-service/internal/model"
	umbrellametrics "github.com/suteetoe/umbrella/services/umbrella-service/prometheus"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	MinShareRate = decimal.RequireFromString("0.5")
	MaxShareRate = decimal.RequireFromString("1.5")
)

// Role filters relationships by the side the user is on
type Role string

const (
	RoleReferrer Role = "referrer"
	RoleReferred Role = "referred"
	RoleAll      Role = "all"
)

// ParseRole validates a role filter, defaulting to all
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case "":
		return RoleAll, nil
	case RoleReferrer, RoleReferred, RoleAll:
		return Role(s), nil
	default:
		return "", validationError("unknown role %q", s)
	}
}

// CreateRelationshipInput is the request to register a relationship
type CreateRelationshipInput struct {
	ReferrerID       string
	ReferredID       string
	ShareRate        decimal.Decimal
	RelationshipType string
}

// RelationshipPatch updates metadata the state machine does not govern.
// Nil fields are left untouched.
type RelationshipPatch struct {
	Notes             *string
	TerminationReason *string
}

// Registry validates and persists relationships
type Registry struct {
	db      *gorm.DB
	log     *zap.Logger
	metrics *umbrellametrics.Metrics
	now     func() time.Time
	users   UserDirectory
	machine *StateMachine
}

func (in CreateRelationshipInput) validate() (model.RelationshipType, error) {
	if in.ReferrerID == "" || in.ReferredID == "" {
		return "", validationError("referrer and referred ids are required")
	}
	if in.ReferrerID == in.ReferredID {
		return "", validationError("a user cannot refer themselves")
	}
	if in.ShareRate.LessThan(MinShareRate) || in.ShareRate.GreaterThan(MaxShareRate) {
		return "", validationError("share rate %s is outside [%s, %s]", in.ShareRate, MinShareRate, MaxShareRate)
	}
	typ, err := model.ParseRelationshipType(in.RelationshipType)
	if err != nil {
		return "", validationError("%v", err)
	}
	return typ, nil
}

func (r *Registry) requireUser(ctx context.Context, userID string) error {
	ok, err := r.users.UserExists(ctx, userID)
	if err != nil {
		return storeError("lookup user", err)
	}
	if !ok {
		return notFoundError("user", userID)
	}
	return nil
}

// Create validates the pairing and persists it in PENDING_AGREEMENT
func (r *Registry) Create(ctx context.Context, in CreateRelationshipInput) (*model.UmbrellaRelationship, error) {
	in.ReferrerID = strings.TrimSpace(in.ReferrerID)
	in.ReferredID = strings.TrimSpace(in.ReferredID)

	typ, err := in.validate()
	if err != nil {
		r.log.Warn("Rejected relationship", zap.String("referrer_id", in.ReferrerID), zap.String("referred_id", in.ReferredID), zap.Error(err))
		return nil, err
	}
	if err := r.requireUser(ctx, in.ReferrerID); err != nil {
		return nil, err
	}
	if err := r.requireUser(ctx, in.ReferredID); err != nil {
		return nil, err
	}

	defer r.metrics.TrackDBOperation("create_relationship")(time.Now())

	now := r.now()
	pairKey := model.PairKey(in.ReferrerID, in.ReferredID)
	rel := &model.UmbrellaRelationship{
		ReferrerID:       in.ReferrerID,
		ReferredID:       in.ReferredID,
		RelationshipType: typ,
		ShareRate:        in.ShareRate,
		Status:           model.StatusPendingAgreement,
		PairKey:          &pairKey,
		Version:          1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.UmbrellaRelationship{}).Where("pair_key = ?", pairKey).Count(&count).Error; err != nil {
			return storeError("check existing relationship", err)
		}
		if count > 0 {
			return newError(CodeConflict, nil, "a relationship between %s and %s already exists", in.ReferrerID, in.ReferredID)
		}

		if err := tx.Create(rel).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return newError(CodeConflict, err, "a relationship between %s and %s already exists", in.ReferrerID, in.ReferredID)
			}
			return storeError("create relationship", err)
		}

		return r.machine.appendLog(tx, rel, "", model.ActionCreate, nil)
	})
	if err != nil {
		if Code(err) == CodeConflict {
			r.log.Warn("Duplicate relationship", zap.String("referrer_id", in.ReferrerID), zap.String("referred_id", in.ReferredID))
		}
		return nil, err
	}

	r.metrics.RecordRelationshipCreated()
	r.log.Info("Relationship created",
		zap.String("umbrella_id", rel.ID),
		zap.String("referrer_id", rel.ReferrerID),
		zap.String("referred_id", rel.ReferredID),
		zap.String("share_rate", rel.ShareRate.String()),
		zap.String("relationship_type", string(rel.RelationshipType)))
	return rel, nil
}

// Get loads one relationship
func (r *Registry) Get(ctx context.Context, id string) (*model.UmbrellaRelationship, error) {
	var rel model.UmbrellaRelationship
	if err := r.db.WithContext(ctx).First(&rel, "id = ?", id).Error; err != nil {
		return nil, lookupError("relationship", id, err)
	}
	return &rel, nil
}

// List returns the user's relationships newest first, each with its latest shareLimit shares
func (r *Registry) List(ctx context.Context, userID string, role Role, shareLimit int) ([]model.UmbrellaRelationship, error) {
	if userID == "" {
		return nil, validationError("user id is required")
	}

	defer r.metrics.TrackDBOperation("list_relationships")(time.Now())

	query := r.db.WithContext(ctx).Model(&model.UmbrellaRelationship{})
	switch role {
	case RoleReferrer:
		query = query.Where("referrer_id = ?", userID)
	case RoleReferred:
		query = query.Where("referred_id = ?", userID)
	case RoleAll, "":
		query = query.Where("referrer_id = ? OR referred_id = ?", userID, userID)
	default:
		return nil, validationError("unknown role %q", role)
	}

	var rels []model.UmbrellaRelationship
	if err := query.Order("created_at DESC").Order("id").Find(&rels).Error; err != nil {
		return nil, storeError("list relationships", err)
	}
	if len(rels) == 0 || shareLimit <= 0 {
		return rels, nil
	}

	ids := make([]string, len(rels))
	for i, rel := range rels {
		ids[i] = rel.ID
	}
	var shares []model.RevenueShare
	if err := r.db.WithContext(ctx).Where("umbrella_id IN ?", ids).Order("created_at DESC").Order("id").Find(&shares).Error; err != nil {
		return nil, storeError("list revenue shares", err)
	}

	byRelationship := make(map[string][]model.RevenueShare, len(rels))
	for _, s := range shares {
		if len(byRelationship[s.UmbrellaID]) < shareLimit {
			byRelationship[s.UmbrellaID] = append(byRelationship[s.UmbrellaID], s)
		}
	}
	for i := range rels {
		rels[i].RevenueShares = byRelationship[rels[i].ID]
	}
	return rels, nil
}

// Update writes metadata fields; status only changes through the state machine
func (r *Registry) Update(ctx context.Context, id string, patch RelationshipPatch) (*model.UmbrellaRelationship, error) {
	changes := map[string]interface{}{}
	if patch.Notes != nil {
		changes["notes"] = *patch.Notes
	}
	if patch.TerminationReason != nil {
		changes["termination_reason"] = *patch.TerminationReason
	}

	var rel model.UmbrellaRelationship
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&rel, "id = ?", id).Error; err != nil {
			return lookupError("relationship", id, err)
		}
		if len(changes) == 0 {
			return nil
		}
		changes["updated_at"] = r.now()
		if err := tx.Model(&model.UmbrellaRelationship{}).Where("id = ?", id).Updates(changes).Error; err != nil {
			return storeError("update relationship", err)
		}
		return tx.First(&rel, "id = ?", id).Error
	})
	if err != nil {
		return nil, err
	}

	r.log.Info("Relationship metadata updated", zap.String("umbrella_id", id), zap.Int("fields", len(changes)))
	return &rel, nil
}

// Terminate ends the relationship through the state machine, keeping the reason
func (r *Registry) Terminate(ctx context.Context, id, reason string) (*model.UmbrellaRelationship, error) {
	res, err := r.machine.Transition(ctx, id, model.StatusTerminated, model.ActionTerminate, map[string]interface{}{"reason": reason})
	if err != nil {
		return nil, err
	}
	return res.Relationship, nil
}
