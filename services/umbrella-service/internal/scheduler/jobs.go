package scheduler

import (
	"context"
	"time"

	"github.com/suteetoe/umbrella/services/umbrella-service/internal/engine"
	"github.com/suteetoe/umbrella/services/umbrella-service/internal/model"
)

// RollupJob refreshes every referrer's rollup for each period
func RollupJob(e *engine.Engine, interval time.Duration, batchSize int) Job {
	return Job{
		Name:     "rollup-refresh",
		Interval: interval,
		Run: func(ctx context.Context) error {
			for _, period := range []model.Period{model.PeriodMonthly, model.PeriodQuarterly, model.PeriodYearly} {
				if _, err := e.Analytics.RefreshAll(ctx, period, batchSize); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// InstanceSweepJob evicts expired runtime instances
func InstanceSweepJob(e *engine.Engine, interval time.Duration) Job {
	return Job{
		Name:     "instance-sweep",
		Interval: interval,
		Run: func(ctx context.Context) error {
			e.Machine.SweepInstances(ctx)
			return nil
		},
	}
}
