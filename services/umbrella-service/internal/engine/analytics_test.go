package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suteetoe/umbrella/services/umbrella-service/internal/model"
)

func TestGetRollupIsStablePerWindow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.engine.GetRollup(ctx, "alice", model.PeriodMonthly)
	require.NoError(t, err)
	assert.True(t, first.PeriodStart.Equal(time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, first.PeriodEnd.Equal(time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)))
	assert.Zero(t, first.TotalReferrals)
	assert.True(t, first.AverageShareRate.IsZero())

	env.clock.Advance(24 * time.Hour)
	second, err := env.engine.GetRollup(ctx, "alice", model.PeriodMonthly)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.True(t, first.PeriodStart.Equal(second.PeriodStart))
	assert.True(t, first.PeriodEnd.Equal(second.PeriodEnd))

	var rows int64
	require.NoError(t, env.db.Model(&model.AnalyticsRollup{}).Count(&rows).Error)
	assert.Equal(t, int64(1), rows)
}

func TestGetRollupWindows(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	quarterly, err := env.engine.GetRollup(ctx, "alice", model.PeriodQuarterly)
	require.NoError(t, err)
	assert.True(t, quarterly.PeriodStart.Equal(time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, quarterly.PeriodEnd.Equal(time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)))

	yearly, err := env.engine.GetRollup(ctx, "alice", model.PeriodYearly)
	require.NoError(t, err)
	assert.True(t, yearly.PeriodStart.Equal(time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, yearly.PeriodEnd.Equal(time.Date(2027, time.January, 1, 0, 0, 0, 0, time.UTC)))

	_, err = env.engine.GetRollup(ctx, "alice", model.Period("weekly"))
	assert.ErrorIs(t, err, ErrValidation)
	_, err = env.engine.GetRollup(ctx, " ", model.PeriodMonthly)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRollupMetrics(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.activate(t, env.create(t, "alice", "bob", "1.25"))
	env.create(t, "alice", "carol", "0.5")
	env.activate(t, env.create(t, "dave", "bob", "1.0"))

	shares, err := env.engine.CalculateShares(ctx, RevenueEvent{ProjectID: "p1", Revenue: rate("100"), ProjectOwnerID: "bob"})
	require.NoError(t, err)
	_, err = env.engine.CalculateShares(ctx, RevenueEvent{ProjectID: "p2", Revenue: rate("200"), ProjectOwnerID: "bob"})
	require.NoError(t, err)
	for _, s := range shares {
		if s.ReferrerID == "alice" {
			_, err := env.engine.MarkSharePaid(ctx, s.ID, SettlementInput{PaymentMethod: "bank_transfer"})
			require.NoError(t, err)
		}
	}

	rollup, err := env.engine.Analytics.Recompute(ctx, "alice", model.PeriodMonthly)
	require.NoError(t, err)
	assert.Equal(t, int64(2), rollup.TotalReferrals)
	assert.Equal(t, int64(1), rollup.ActiveReferrals)
	assert.True(t, rollup.AverageShareRate.Equal(rate("0.875")), rollup.AverageShareRate.String())
	assert.True(t, rollup.TotalRevenue.Equal(rate("300")), rollup.TotalRevenue.String())
	assert.True(t, rollup.TotalShares.Equal(rate("3.75")), rollup.TotalShares.String())
	assert.Equal(t, int64(2), rollup.ProjectsGenerated)
	assert.Equal(t, int64(1), rollup.ProjectsActive)
	assert.Equal(t, int64(1), rollup.ProjectsCompleted)
}

func TestRollupIgnoresOtherWindows(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.activate(t, env.create(t, "alice", "bob", "1.0"))

	env.clock.Advance(31 * 24 * time.Hour)
	rollup, err := env.engine.Analytics.Recompute(ctx, "alice", model.PeriodMonthly)
	require.NoError(t, err)
	assert.True(t, rollup.PeriodStart.Equal(time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)))
	assert.Zero(t, rollup.TotalReferrals)

	yearly, err := env.engine.Analytics.Recompute(ctx, "alice", model.PeriodYearly)
	require.NoError(t, err)
	assert.Equal(t, int64(1), yearly.TotalReferrals)
}

func TestGetRollupServesStoredRow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.activate(t, env.create(t, "alice", "bob", "1.0"))

	seeded, err := env.engine.GetRollup(ctx, "alice", model.PeriodMonthly)
	require.NoError(t, err)
	assert.Equal(t, int64(1), seeded.ActiveReferrals)
	assert.True(t, seeded.TotalShares.IsZero())

	_, err = env.engine.CalculateShares(ctx, RevenueEvent{ProjectID: "p1", Revenue: rate("100"), ProjectOwnerID: "bob"})
	require.NoError(t, err)

	cached, err := env.engine.GetRollup(ctx, "alice", model.PeriodMonthly)
	require.NoError(t, err)
	assert.True(t, cached.TotalShares.IsZero())

	fresh, err := env.engine.Analytics.Recompute(ctx, "alice", model.PeriodMonthly)
	require.NoError(t, err)
	assert.Equal(t, seeded.ID, fresh.ID)
	assert.True(t, fresh.TotalShares.Equal(rate("1")))
}

func TestRefreshAll(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.activate(t, env.create(t, "alice", "bob", "1.0"))
	env.create(t, "alice", "carol", "1.0")
	env.create(t, "dave", "carol", "1.0")
	env.create(t, "carol", "bob", "1.0")

	n, err := env.engine.Analytics.RefreshAll(ctx, model.PeriodQuarterly, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	var users []string
	require.NoError(t, env.db.Model(&model.AnalyticsRollup{}).Where("period = ?", model.PeriodQuarterly).Order("user_id").Pluck("user_id", &users).Error)
	assert.Equal(t, []string{"alice", "carol", "dave"}, users)

	again, err := env.engine.Analytics.RefreshAll(ctx, model.PeriodQuarterly, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, again)

	var rows int64
	require.NoError(t, env.db.Model(&model.AnalyticsRollup{}).Where("period = ?", model.PeriodQuarterly).Count(&rows).Error)
	assert.Equal(t, int64(3), rows)
}

func TestRefreshAllHonoursCancellation(t *testing.T) {
	env := newTestEnv(t)
	env.create(t, "alice", "bob", "1.0")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n, err := env.engine.Analytics.RefreshAll(ctx, model.PeriodMonthly, 10)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, n)
}
