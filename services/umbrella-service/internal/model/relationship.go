package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// UmbrellaRelationship is a referrer/referred sponsorship pairing.
// ReferrerID and ReferredID point at user records owned by another service.
type UmbrellaRelationship struct {
	ID               string             `json:"id" gorm:"type:varchar(36);primaryKey"`
	ReferrerID       string             `json:"referrer_id" gorm:"type:varchar(64);index;not null"`
	ReferredID       string             `json:"referred_id" gorm:"type:varchar(64);index;not null"`
	RelationshipType RelationshipType   `json:"relationship_type" gorm:"type:varchar(32);not null"`
	ShareRate        decimal.Decimal    `json:"share_rate" gorm:"type:numeric(6,4);not null"`
	Status           RelationshipStatus `json:"status" gorm:"type:varchar(32);index;not null"`
	AgreementSigned  bool               `json:"agreement_signed" gorm:"not null;default:false"`
	IsActive         bool               `json:"is_active" gorm:"not null;default:false"`
	SignedAt         *time.Time         `json:"signed_at,omitempty"`

	// PairKey is set while the relationship is not terminated; the unique
	// index keeps one live relationship per unordered user pair.
	PairKey *string `json:"-" gorm:"type:varchar(160);uniqueIndex"`

	Notes             string `json:"notes,omitempty" gorm:"type:text"`
	TerminationReason string `json:"termination_reason,omitempty" gorm:"type:text"`

	// Version guards status writes against concurrent transitions.
	Version   int64     `json:"version" gorm:"not null;default:1"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`
	UpdatedAt time.Time `json:"updated_at"`

	RevenueShares []RevenueShare `json:"revenue_shares,omitempty" gorm:"foreignKey:UmbrellaID"`
}

// TableName pins the table name
func (UmbrellaRelationship) TableName() string {
	return "umbrella_relationships"
}

// BeforeCreate assigns an id when the caller has not
func (r *UmbrellaRelationship) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// PartyOf reports which side of the relationship userID is on
func (r *UmbrellaRelationship) PartyOf(userID string) (Party, bool) {
	switch userID {
	case r.ReferrerID:
		return PartyReferrer, true
	case r.ReferredID:
		return PartyReferred, true
	default:
		return "", false
	}
}

// PairKey builds the order-independent key for a user pair
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}

// RelationshipTransition is one append-only entry of a relationship's lifecycle log
type RelationshipTransition struct {
	ID         string             `json:"id" gorm:"type:varchar(36);primaryKey"`
	UmbrellaID string             `json:"umbrella_id" gorm:"type:varchar(36);index:idx_umbrella_transition_seq,priority:1;not null"`
	Sequence   int64              `json:"sequence" gorm:"index:idx_umbrella_transition_seq,priority:2;not null"`
	FromState  RelationshipStatus `json:"from_state,omitempty" gorm:"type:varchar(32)"`
	ToState    RelationshipStatus `json:"to_state" gorm:"type:varchar(32);not null"`
	Action     Action             `json:"action" gorm:"type:varchar(32);not null"`
	Metadata   datatypes.JSONMap  `json:"metadata,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
}

// TableName pins the table name
func (RelationshipTransition) TableName() string {
	return "umbrella_transitions"
}

// BeforeCreate assigns an id when the caller has not
func (t *RelationshipTransition) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}
