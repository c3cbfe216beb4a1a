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
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AnalyticsAggregator folds relationships and shares into period rollups.
// GetRollup serves the stored row of a window once it exists; Recompute and
// RefreshAll rewrite it.
type AnalyticsAggregator struct {
	db      *gorm.DB
	log     *zap.Logger
	metrics *umbrellametrics.Metrics
	now     func() time.Time
}

// GetRollup returns the user's rollup for the period window containing now,
// computing and storing it on first request
func (a *AnalyticsAggregator) GetRollup(ctx context.Context, userID string, period model.Period) (*model.AnalyticsRollup, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, validationError("user id is required")
	}
	if _, err := model.ParsePeriod(string(period)); err != nil {
		return nil, validationError("%v", err)
	}

	start, end := period.Window(a.now())
	db := a.db.WithContext(ctx)

	var rollup model.AnalyticsRollup
	err := db.Where("user_id = ? AND period = ? AND period_start = ?", userID, period, start).First(&rollup).Error
	if err == nil {
		return &rollup, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storeError("load rollup", err)
	}

	computed, err := a.compute(db, userID, period, start, end)
	if err != nil {
		return nil, err
	}
	// A concurrent request may have stored the window first; keep its row.
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(computed).Error; err != nil {
		return nil, storeError("store rollup", err)
	}
	if err := db.Where("user_id = ? AND period = ? AND period_start = ?", userID, period, start).First(&rollup).Error; err != nil {
		return nil, storeError("reload rollup", err)
	}

	a.metrics.RecordRollupComputation(string(period))
	a.log.Debug("Rollup computed",
		zap.String("user_id", userID),
		zap.String("period", string(period)),
		zap.Time("period_start", start))
	return &rollup, nil
}

// Recompute rewrites the user's rollup for the current window
func (a *AnalyticsAggregator) Recompute(ctx context.Context, userID string, period model.Period) (*model.AnalyticsRollup, error) {
	if userID == "" {
		return nil, validationError("user id is required")
	}
	if _, err := model.ParsePeriod(string(period)); err != nil {
		return nil, validationError("%v", err)
	}
	return a.upsert(a.db.WithContext(ctx), userID, period)
}

func (a *AnalyticsAggregator) upsert(db *gorm.DB, userID string, period model.Period) (*model.AnalyticsRollup, error) {
	start, end := period.Window(a.now())
	rollup, err := a.compute(db, userID, period, start, end)
	if err != nil {
		return nil, err
	}

	err = db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "period"}, {Name: "period_start"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"period_end", "total_referrals", "active_referrals", "total_revenue", "total_shares",
			"average_share_rate", "projects_generated", "projects_active", "projects_completed",
			"computed_at", "updated_at",
		}),
	}).Create(rollup).Error
	if err != nil {
		return nil, storeError("upsert rollup", err)
	}

	var stored model.AnalyticsRollup
	if err := db.Where("user_id = ? AND period = ? AND period_start = ?", userID, period, start).First(&stored).Error; err != nil {
		return nil, storeError("reload rollup", err)
	}
	a.metrics.RecordRollupComputation(string(period))
	return &stored, nil
}

// seedMonthly refreshes the referrer's current monthly rollup inside a transition
func (a *AnalyticsAggregator) seedMonthly(tx *gorm.DB, userID string) error {
	_, err := a.upsert(tx, userID, model.PeriodMonthly)
	return err
}

// compute sums the user's referral activity in [start, end)
func (a *AnalyticsAggregator) compute(db *gorm.DB, userID string, period model.Period, start, end time.Time) (*model.AnalyticsRollup, error) {
	var rels []model.UmbrellaRelationship
	if err := db.Select("id", "status", "share_rate").
		Where("referrer_id = ? AND created_at >= ? AND created_at < ?", userID, start, end).
		Find(&rels).Error; err != nil {
		return nil, storeError("load relationships for rollup", err)
	}

	var shares []model.RevenueShare
	if err := db.Select("id", "project_id", "project_revenue", "share_amount", "status").
		Where("referrer_id = ? AND created_at >= ? AND created_at < ?", userID, start, end).
		Find(&shares).Error; err != nil {
		return nil, storeError("load shares for rollup", err)
	}

	now := a.now()
	rollup := &model.AnalyticsRollup{
		UserID:           userID,
		Period:           period,
		PeriodStart:      start,
		PeriodEnd:        end,
		TotalReferrals:   int64(len(rels)),
		TotalRevenue:     decimal.Zero,
		TotalShares:      decimal.Zero,
		AverageShareRate: decimal.Zero,
		ComputedAt:       now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	rateSum := decimal.Zero
	for _, r := range rels {
		if r.Status == model.StatusActive {
			rollup.ActiveReferrals++
		}
		rateSum = rateSum.Add(r.ShareRate)
	}
	if len(rels) > 0 {
		rollup.AverageShareRate = rateSum.Div(decimal.NewFromInt(int64(len(rels)))).Round(4)
	}

	// A project is completed once every share on it is paid.
	projectPaid := map[string]bool{}
	for _, s := range shares {
		rollup.TotalRevenue = rollup.TotalRevenue.Add(s.ProjectRevenue)
		rollup.TotalShares = rollup.TotalShares.Add(s.ShareAmount)
		paid, seen := projectPaid[s.ProjectID]
		projectPaid[s.ProjectID] = (paid || !seen) && s.Status == model.SharePaid
	}
	rollup.ProjectsGenerated = int64(len(projectPaid))
	for _, paid := range projectPaid {
		if paid {
			rollup.ProjectsCompleted++
		} else {
			rollup.ProjectsActive++
		}
	}
	return rollup, nil
}

// RefreshAll recomputes the current window for every referrer, batchSize
// users at a time with up to batchSize concurrent recomputations. It stops
// between users once ctx is done.
func (a *AnalyticsAggregator) RefreshAll(ctx context.Context, period model.Period, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 1
	}

	refreshed := 0
	lastID := ""
	for {
		var userIDs []string
		err := a.db.WithContext(ctx).Model(&model.UmbrellaRelationship{}).
			Distinct("referrer_id").
			Where("referrer_id > ?", lastID).
			Order("referrer_id").
			Limit(batchSize).
			Pluck("referrer_id", &userIDs).Error
		if err != nil {
			return refreshed, storeError("list referrers", err)
		}
		if len(userIDs) == 0 {
			return refreshed, nil
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(batchSize)
		for _, userID := range userIDs {
			userID := userID
			if err := gctx.Err(); err != nil {
				break
			}
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				_, err := a.upsert(a.db.WithContext(gctx), userID, period)
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return refreshed, err
		}
		if err := ctx.Err(); err != nil {
			return refreshed, err
		}

		refreshed += len(userIDs)
		lastID = userIDs[len(userIDs)-1]
		a.log.Debug("Refreshed rollup batch", zap.String("period", string(period)), zap.Int("users", len(userIDs)))
	}
}
