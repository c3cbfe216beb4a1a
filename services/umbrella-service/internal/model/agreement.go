package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DocumentType identifies the kind of legal document
type DocumentType string

const DocumentTypeUmbrellaAgreement DocumentType = "UMBRELLA_AGREEMENT"

// DocumentStatus is the signing state of an agreement document
type DocumentStatus string

const (
	DocumentDraft      DocumentStatus = "DRAFT"
	DocumentEffective  DocumentStatus = "EFFECTIVE"
	DocumentSuperseded DocumentStatus = "SUPERSEDED"
)

// Party is the side of a relationship a signer represents
type Party string

const (
	PartyReferrer Party = "REFERRER"
	PartyReferred Party = "REFERRED"
)

// RequiredParties must all sign before an agreement becomes effective
var RequiredParties = []Party{PartyReferrer, PartyReferred}

// AgreementDocument is the agreement generated for a relationship
type AgreementDocument struct {
	ID                string         `json:"id" gorm:"type:varchar(36);primaryKey"`
	UmbrellaID        string         `json:"umbrella_id" gorm:"type:varchar(36);index;not null"`
	DocumentType      DocumentType   `json:"document_type" gorm:"type:varchar(32);not null"`
	Content           string         `json:"content" gorm:"type:text;not null"`
	Status            DocumentStatus `json:"status" gorm:"type:varchar(16);index;not null"`
	RequiresSignature bool           `json:"requires_signature" gorm:"not null;default:true"`
	ReferrerID        string         `json:"referrer_id" gorm:"type:varchar(64);not null"`
	ReferredID        string         `json:"referred_id" gorm:"type:varchar(64);not null"`
	ShareRate         string         `json:"share_rate" gorm:"type:varchar(16);not null"`
	EffectiveAt       *time.Time     `json:"effective_at,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`

	Signatures []AgreementSignature `json:"signatures,omitempty" gorm:"foreignKey:DocumentID"`
}

// TableName pins the table name
func (AgreementDocument) TableName() string {
	return "agreement_documents"
}

// BeforeCreate assigns an id when the caller has not
func (d *AgreementDocument) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	return nil
}

// AgreementSignature records one party signing a document. Rows are never updated.
type AgreementSignature struct {
	ID            string    `json:"id" gorm:"type:varchar(36);primaryKey"`
	DocumentID    string    `json:"document_id" gorm:"type:varchar(36);not null;uniqueIndex:idx_agreement_signature_signer,priority:1"`
	SignerID      string    `json:"signer_id" gorm:"type:varchar(64);not null;uniqueIndex:idx_agreement_signature_signer,priority:2"`
	Party         Party     `json:"party" gorm:"type:varchar(16);not null"`
	SignatureHash string    `json:"signature_hash" gorm:"type:varchar(64);not null"`
	SignedAt      time.Time `json:"signed_at" gorm:"not null"`
	IPAddress     string    `json:"ip_address" gorm:"type:varchar(64)"`
	UserAgent     string    `json:"user_agent" gorm:"type:text"`
}

// TableName pins the table name
func (AgreementSignature) TableName() string {
	return "agreement_signatures"
}

// BeforeCreate assigns an id when the caller has not
func (s *AgreementSignature) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}
