package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ShareStatus is the settlement state of a revenue share
type ShareStatus string

const (
	ShareCalculated ShareStatus = "CALCULATED"
	SharePaid       ShareStatus = "PAID"
)

// RevenueShare is the amount owed to a referrer for one revenue event.
// Parties and rate are copied from the relationship when the share is calculated.
type RevenueShare struct {
	ID              string          `json:"id" gorm:"type:varchar(36);primaryKey"`
	UmbrellaID      string          `json:"umbrella_id" gorm:"type:varchar(36);not null;uniqueIndex:idx_revenue_share_event,priority:1"`
	ProjectID       string          `json:"project_id" gorm:"type:varchar(64);not null;uniqueIndex:idx_revenue_share_event,priority:2;index"`
	RevenueEventID  string          `json:"revenue_event_id" gorm:"type:varchar(64);not null;uniqueIndex:idx_revenue_share_event,priority:3"`
	ReferrerID      string          `json:"referrer_id" gorm:"type:varchar(64);index;not null"`
	ReferredID      string          `json:"referred_id" gorm:"type:varchar(64);index;not null"`
	ProjectRevenue  decimal.Decimal `json:"project_revenue" gorm:"type:numeric(20,2);not null"`
	SharePercentage decimal.Decimal `json:"share_percentage" gorm:"type:numeric(6,4);not null"`
	ShareAmount     decimal.Decimal `json:"share_amount" gorm:"type:numeric(20,2);not null"`
	Status          ShareStatus     `json:"status" gorm:"type:varchar(16);index;not null"`
	PaidAt          *time.Time      `json:"paid_at,omitempty"`
	PaymentMethod   string          `json:"payment_method,omitempty" gorm:"type:varchar(64)"`
	TransactionID   string          `json:"transaction_id,omitempty" gorm:"type:varchar(128)"`
	CreatedAt       time.Time       `json:"created_at" gorm:"index"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// TableName pins the table name
func (RevenueShare) TableName() string {
	return "revenue_shares"
}

// BeforeCreate assigns an id when the caller has not
func (s *RevenueShare) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// ShareAmount computes revenue x rate / 100 rounded half-up to cents
func ShareAmount(revenue, ratePercent decimal.Decimal) decimal.Decimal {
	return revenue.Mul(ratePercent).Div(decimal.NewFromInt(100)).Round(2)
}
