package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Period is the window length of an analytics rollup
type Period string

const (
	PeriodMonthly   Period = "monthly"
	PeriodQuarterly Period = "quarterly"
	PeriodYearly    Period = "yearly"
)

// ParsePeriod validates a rollup period name
func ParsePeriod(s string) (Period, error) {
	switch Period(s) {
	case PeriodMonthly, PeriodQuarterly, PeriodYearly:
		return Period(s), nil
	default:
		return "", fmt.Errorf("unknown period %q", s)
	}
}

// Window returns the UTC [start, end) window of p that contains now
func (p Period) Window(now time.Time) (time.Time, time.Time) {
	now = now.UTC()
	switch p {
	case PeriodQuarterly:
		month := ((now.Month()-1)/3)*3 + 1
		start := time.Date(now.Year(), month, 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 3, 0)
	case PeriodYearly:
		start := time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(1, 0, 0)
	default:
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, 0)
	}
}

// AnalyticsRollup aggregates a referrer's activity over one period window.
// PeriodEnd is exclusive.
type AnalyticsRollup struct {
	ID                string          `json:"id" gorm:"type:varchar(36);primaryKey"`
	UserID            string          `json:"user_id" gorm:"type:varchar(64);not null;uniqueIndex:idx_umbrella_analytics_period,priority:1"`
	Period            Period          `json:"period" gorm:"type:varchar(16);not null;uniqueIndex:idx_umbrella_analytics_period,priority:2"`
	PeriodStart       time.Time       `json:"period_start" gorm:"not null;uniqueIndex:idx_umbrella_analytics_period,priority:3"`
	PeriodEnd         time.Time       `json:"period_end" gorm:"not null"`
	TotalReferrals    int64           `json:"total_referrals"`
	ActiveReferrals   int64           `json:"active_referrals"`
	TotalRevenue      decimal.Decimal `json:"total_revenue" gorm:"type:numeric(20,2);not null"`
	TotalShares       decimal.Decimal `json:"total_shares" gorm:"type:numeric(20,2);not null"`
	AverageShareRate  decimal.Decimal `json:"average_share_rate" gorm:"type:numeric(6,4);not null"`
	ProjectsGenerated int64           `json:"projects_generated"`
	ProjectsActive    int64           `json:"projects_active"`
	ProjectsCompleted int64           `json:"projects_completed"`
	ComputedAt        time.Time       `json:"computed_at"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// TableName pins the table name
func (AnalyticsRollup) TableName() string {
	return "umbrella_analytics"
}

// BeforeCreate assigns an id when the caller has not
func (a *AnalyticsRollup) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// AllModels lists every table the service migrates
func AllModels() []interface{} {
	return []interface{}{
		&UmbrellaRelationship{},
		&RelationshipTransition{},
		&AgreementDocument{},
		&AgreementSignature{},
		&RevenueShare{},
		&AnalyticsRollup{},
	}
}
