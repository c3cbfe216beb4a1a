package engine

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/suteetoe/umbrella/services/umbrella-service/internal/model"
	umbrellametrics "github.com/suteetoe/umbrella/services/umbrella-service/prometheus"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RevenueEvent is revenue earned on a project by its owner
type RevenueEvent struct {
	ProjectID string
	// RevenueEventID distinguishes several payments on one project; it
	// defaults to ProjectID.
	RevenueEventID string
	Revenue        decimal.Decimal
	ProjectOwnerID string
}

// SettlementInput is the caller-supplied payment record for a share
type SettlementInput struct {
	PaymentMethod string
	TransactionID string
}

// RevenueShareCalculator turns revenue events into shares and records settlement
type RevenueShareCalculator struct {
	db      *gorm.DB
	log     *zap.Logger
	metrics *umbrellametrics.Metrics
	now     func() time.Time
}

func (e *RevenueEvent) normalize() error {
	e.ProjectID = strings.TrimSpace(e.ProjectID)
	e.RevenueEventID = strings.TrimSpace(e.RevenueEventID)
	if e.ProjectID == "" {
		return validationError("project id is required")
	}
	if e.RevenueEventID == "" {
		e.RevenueEventID = e.ProjectID
	}
	if e.Revenue.IsNegative() {
		return validationError("revenue must not be negative, got %s", e.Revenue)
	}
	if !e.Revenue.Equal(e.Revenue.Round(2)) {
		return validationError("revenue must have at most two decimal places, got %s", e.Revenue)
	}
	e.Revenue = e.Revenue.Round(2)
	return nil
}

// revenueEventFromMetadata reads a calculateRevenue transition's metadata
func revenueEventFromMetadata(rel *model.UmbrellaRelationship, metadata map[string]interface{}) (RevenueEvent, error) {
	projectID, _ := metadata["projectId"].(string)
	eventID, _ := metadata["revenueEventId"].(string)
	raw, ok := metadata["revenue"]
	if !ok {
		return RevenueEvent{}, validationError("calculateRevenue requires metadata.revenue")
	}
	revenue, err := parseAmount(raw)
	if err != nil {
		return RevenueEvent{}, validationError("invalid metadata.revenue: %v", err)
	}

	event := RevenueEvent{
		ProjectID:      projectID,
		RevenueEventID: eventID,
		Revenue:        revenue,
		ProjectOwnerID: rel.ReferredID,
	}
	if err := event.normalize(); err != nil {
		return RevenueEvent{}, err
	}
	return event, nil
}

// CalculateShares creates one share per ACTIVE relationship whose referred
// user owns the project. Each share uses its own relationship's rate.
// Retrying the same event returns the shares stored the first time.
func (c *RevenueShareCalculator) CalculateShares(ctx context.Context, event RevenueEvent) ([]model.RevenueShare, error) {
	event.ProjectOwnerID = strings.TrimSpace(event.ProjectOwnerID)
	if event.ProjectOwnerID == "" {
		return nil, validationError("project owner id is required")
	}
	if err := event.normalize(); err != nil {
		return nil, err
	}

	defer c.metrics.TrackDBOperation("calculate_shares")(time.Now())

	shares := []model.RevenueShare{}
	var created []model.RevenueShare
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rels []model.UmbrellaRelationship
		if err := tx.Where("referred_id = ? AND status = ?", event.ProjectOwnerID, model.StatusActive).
			Order("created_at").Order("id").
			Find(&rels).Error; err != nil {
			return storeError("find eligible relationships", err)
		}

		for i := range rels {
			share, isNew, err := c.shareFor(tx, &rels[i], event)
			if err != nil {
				return err
			}
			shares = append(shares, *share)
			if isNew {
				created = append(created, *share)
			}
		}
		return nil
	})
	if err != nil {
		c.log.Error("Failed to calculate revenue shares",
			zap.String("project_id", event.ProjectID),
			zap.String("project_owner_id", event.ProjectOwnerID),
			zap.Error(err))
		return nil, err
	}

	for _, s := range created {
		amount, _ := s.ShareAmount.Float64()
		c.metrics.RecordShareCalculated(amount)
	}
	c.log.Info("Revenue shares calculated",
		zap.String("project_id", event.ProjectID),
		zap.String("revenue_event_id", event.RevenueEventID),
		zap.String("project_owner_id", event.ProjectOwnerID),
		zap.String("revenue", event.Revenue.String()),
		zap.Int("shares", len(shares)),
		zap.Int("new_shares", len(created)))
	return shares, nil
}

// shareFor stores the share of event owed under rel, or returns the one
// already stored for the same (relationship, project, event)
func (c *RevenueShareCalculator) shareFor(tx *gorm.DB, rel *model.UmbrellaRelationship, event RevenueEvent) (*model.RevenueShare, bool, error) {
	now := c.now()
	share := &model.RevenueShare{
		UmbrellaID:      rel.ID,
		ProjectID:       event.ProjectID,
		RevenueEventID:  event.RevenueEventID,
		ReferrerID:      rel.ReferrerID,
		ReferredID:      rel.ReferredID,
		ProjectRevenue:  event.Revenue,
		SharePercentage: rel.ShareRate,
		ShareAmount:     model.ShareAmount(event.Revenue, rel.ShareRate),
		Status:          model.ShareCalculated,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(share)
	if result.Error != nil {
		return nil, false, storeError("create revenue share", result.Error)
	}
	if result.RowsAffected == 1 {
		return share, true, nil
	}

	var existing model.RevenueShare
	err := tx.Where("umbrella_id = ? AND project_id = ? AND revenue_event_id = ?", rel.ID, event.ProjectID, event.RevenueEventID).
		First(&existing).Error
	if err != nil {
		return nil, false, storeError("load existing revenue share", err)
	}
	c.log.Debug("Revenue share already calculated",
		zap.String("umbrella_id", rel.ID),
		zap.String("share_id", existing.ID))
	return &existing, false, nil
}

// MarkPaid moves a CALCULATED share to PAID. Settling twice is an error.
func (c *RevenueShareCalculator) MarkPaid(ctx context.Context, shareID string, in SettlementInput) (*model.RevenueShare, error) {
	in.PaymentMethod = strings.TrimSpace(in.PaymentMethod)
	if in.PaymentMethod == "" {
		return nil, validationError("payment method is required")
	}

	defer c.metrics.TrackDBOperation("mark_share_paid")(time.Now())

	var share model.RevenueShare
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&share, "id = ?", shareID).Error; err != nil {
			return lookupError("revenue share", shareID, err)
		}
		if share.Status == model.SharePaid {
			return newError(CodeAlreadySettled, nil, "revenue share %s was already paid", shareID)
		}

		now := c.now()
		result := tx.Model(&model.RevenueShare{}).
			Where("id = ? AND status = ?", shareID, model.ShareCalculated).
			Updates(map[string]interface{}{
				"status":         model.SharePaid,
				"paid_at":        now,
				"payment_method": in.PaymentMethod,
				"transaction_id": in.TransactionID,
				"updated_at":     now,
			})
		if result.Error != nil {
			return storeError("mark revenue share paid", result.Error)
		}
		if result.RowsAffected == 0 {
			return newError(CodeAlreadySettled, nil, "revenue share %s was already paid", shareID)
		}
		return tx.First(&share, "id = ?", shareID).Error
	})
	if err != nil {
		c.log.Warn("Settlement rejected", zap.String("share_id", shareID), zap.Error(err))
		return nil, err
	}

	c.metrics.RecordSharePaid()
	c.log.Info("Revenue share paid",
		zap.String("share_id", share.ID),
		zap.String("umbrella_id", share.UmbrellaID),
		zap.String("amount", share.ShareAmount.StringFixed(2)),
		zap.String("payment_method", share.PaymentMethod),
		zap.String("transaction_id", share.TransactionID))
	return &share, nil
}

// Get loads one share
func (c *RevenueShareCalculator) Get(ctx context.Context, shareID string) (*model.RevenueShare, error) {
	var share model.RevenueShare
	if err := c.db.WithContext(ctx).First(&share, "id = ?", shareID).Error; err != nil {
		return nil, lookupError("revenue share", shareID, err)
	}
	return &share, nil
}

// ListShares returns a relationship's shares newest first
func (c *RevenueShareCalculator) ListShares(ctx context.Context, relationshipID string) ([]model.RevenueShare, error) {
	var shares []model.RevenueShare
	if err := c.db.WithContext(ctx).Where("umbrella_id = ?", relationshipID).Order("created_at DESC").Order("id").Find(&shares).Error; err != nil {
		return nil, storeError("list revenue shares", err)
	}
	return shares, nil
}
