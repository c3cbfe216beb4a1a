package engine

import (
	"context"
	"encoding/hex"
	"errors"
	"time"

	"github.com/suteetoe/umbrella/services/umbrella-service/internal/model"
	umbrellametrics "github.com/suteetoe/umbrella/services/umbrella-service/prometheus"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ClientMeta is the request metadata captured with a signature
type ClientMeta struct {
	IPAddress string
	UserAgent string
}

// SignResult reports a recorded signature and whether it completed the quorum
type SignResult struct {
	Signature    *model.AgreementSignature   `json:"signature"`
	Document     *model.AgreementDocument    `json:"document"`
	Activated    bool                        `json:"activated"`
	Relationship *model.UmbrellaRelationship `json:"relationship,omitempty"`
}

// AgreementGate generates agreements and collects the two required signatures
type AgreementGate struct {
	db           *gorm.DB
	log          *zap.Logger
	metrics      *umbrellametrics.Metrics
	now          func() time.Time
	content      ContentGenerator
	signatureKey []byte
	machine      *StateMachine
}

// generate stores a DRAFT agreement for rel, superseding any earlier draft
func (g *AgreementGate) generate(tx *gorm.DB, rel *model.UmbrellaRelationship) (*model.AgreementDocument, error) {
	now := g.now()
	if err := g.supersedeDrafts(tx, rel.ID, now); err != nil {
		return nil, err
	}

	parties := AgreementParties{
		UmbrellaID:       rel.ID,
		ReferrerID:       rel.ReferrerID,
		ReferredID:       rel.ReferredID,
		RelationshipType: string(rel.RelationshipType),
		ShareRate:        rel.ShareRate.String(),
	}
	content, err := g.content.AgreementContent(tx.Statement.Context, parties)
	if err != nil {
		return nil, storeError("generate agreement content", err)
	}

	doc := &model.AgreementDocument{
		UmbrellaID:        rel.ID,
		DocumentType:      model.DocumentTypeUmbrellaAgreement,
		Content:           content,
		Status:            model.DocumentDraft,
		RequiresSignature: true,
		ReferrerID:        rel.ReferrerID,
		ReferredID:        rel.ReferredID,
		ShareRate:         parties.ShareRate,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := tx.Create(doc).Error; err != nil {
		return nil, storeError("create agreement document", err)
	}

	g.log.Info("Agreement generated", zap.String("umbrella_id", rel.ID), zap.String("document_id", doc.ID))
	return doc, nil
}

func (g *AgreementGate) supersedeDrafts(tx *gorm.DB, relationshipID string, now time.Time) error {
	err := tx.Model(&model.AgreementDocument{}).
		Where("umbrella_id = ? AND status = ?", relationshipID, model.DocumentDraft).
		Updates(map[string]interface{}{"status": model.DocumentSuperseded, "updated_at": now}).Error
	if err != nil {
		return storeError("supersede agreement drafts", err)
	}
	return nil
}

// Sign records signerID's signature on a DRAFT document. When both required
// parties have signed, the document becomes EFFECTIVE and the relationship is
// activated in the same transaction.
func (g *AgreementGate) Sign(ctx context.Context, documentID, signerID string, meta ClientMeta) (*SignResult, error) {
	if documentID == "" || signerID == "" {
		return nil, validationError("document id and signer id are required")
	}

	defer g.metrics.TrackDBOperation("sign_agreement")(time.Now())

	var (
		res   *SignResult
		trans *TransitionResult
	)
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var doc model.AgreementDocument
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&doc, "id = ?", documentID).Error; err != nil {
			return lookupError("agreement document", documentID, err)
		}
		if doc.Status != model.DocumentDraft {
			return validationError("document %s is %s and cannot be signed", doc.ID, doc.Status)
		}

		var rel model.UmbrellaRelationship
		if err := tx.First(&rel, "id = ?", doc.UmbrellaID).Error; err != nil {
			return lookupError("relationship", doc.UmbrellaID, err)
		}
		if rel.Status != model.StatusPendingAgreement {
			return newError(CodeInvalidTransition, nil, "relationship %s is %s and its agreement cannot be signed", rel.ID, rel.Status)
		}
		party, ok := rel.PartyOf(signerID)
		if !ok {
			return newError(CodeValidation, ErrNotAParty, "user %s cannot sign the agreement of relationship %s", signerID, rel.ID)
		}

		var existing int64
		if err := tx.Model(&model.AgreementSignature{}).Where("document_id = ? AND signer_id = ?", doc.ID, signerID).Count(&existing).Error; err != nil {
			return storeError("check existing signature", err)
		}
		if existing > 0 {
			return newError(CodeConflict, ErrDuplicateSignature, "user %s already signed document %s", signerID, doc.ID)
		}

		signedAt := g.now()
		sig := &model.AgreementSignature{
			DocumentID:    doc.ID,
			SignerID:      signerID,
			Party:         party,
			SignatureHash: g.signatureHash(doc.ID, signerID, signedAt, meta),
			SignedAt:      signedAt,
			IPAddress:     meta.IPAddress,
			UserAgent:     meta.UserAgent,
		}
		if err := tx.Create(sig).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return newError(CodeConflict, ErrDuplicateSignature, "user %s already signed document %s", signerID, doc.ID)
			}
			return storeError("create signature", err)
		}
		res = &SignResult{Signature: sig, Document: &doc}

		var signed []model.Party
		if err := tx.Model(&model.AgreementSignature{}).Where("document_id = ?", doc.ID).Pluck("party", &signed).Error; err != nil {
			return storeError("load signatures", err)
		}
		if !quorum(signed) {
			return nil
		}

		flip := tx.Model(&model.AgreementDocument{}).
			Where("id = ? AND status = ?", doc.ID, model.DocumentDraft).
			Updates(map[string]interface{}{"status": model.DocumentEffective, "effective_at": signedAt, "updated_at": signedAt})
		if flip.Error != nil {
			return storeError("mark agreement effective", flip.Error)
		}
		if flip.RowsAffected == 0 {
			return newError(CodeConflict, nil, "document %s changed while signing", doc.ID)
		}
		if err := tx.First(&doc, "id = ?", doc.ID).Error; err != nil {
			return storeError("reload agreement document", err)
		}

		var err error
		trans, err = g.machine.transitionTx(tx, rel.ID, model.StatusActive, model.ActionActivate, map[string]interface{}{"document_id": doc.ID})
		if err != nil {
			return err
		}
		res.Activated = true
		res.Relationship = trans.Relationship
		return nil
	})
	if err != nil {
		g.log.Warn("Signature rejected",
			zap.String("document_id", documentID),
			zap.String("signer_id", signerID),
			zap.Error(err))
		return nil, err
	}

	g.metrics.RecordSignature(string(res.Signature.Party))
	g.log.Info("Agreement signed",
		zap.String("document_id", documentID),
		zap.String("signer_id", signerID),
		zap.String("party", string(res.Signature.Party)))

	if trans != nil {
		g.machine.committed(trans)
		g.metrics.RecordAgreementEffective()
		g.log.Info("Agreement effective", zap.String("document_id", documentID), zap.String("umbrella_id", trans.Relationship.ID))
	}
	return res, nil
}

// quorum reports whether every required party is among signed
func quorum(signed []model.Party) bool {
	have := make(map[model.Party]bool, len(signed))
	for _, p := range signed {
		have[p] = true
	}
	for _, p := range model.RequiredParties {
		if !have[p] {
			return false
		}
	}
	return true
}

// signatureHash is a keyed, non-reversible commitment over the signing event
func (g *AgreementGate) signatureHash(documentID, signerID string, signedAt time.Time, meta ClientMeta) string {
	h, err := blake2b.New256(g.signatureKey)
	if err != nil {
		// key length is checked by engine.New
		panic(err)
	}
	for _, part := range []string{signerID, documentID, signedAt.UTC().Format(time.RFC3339Nano), meta.IPAddress, meta.UserAgent} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Document loads an agreement with its signatures
func (g *AgreementGate) Document(ctx context.Context, documentID string) (*model.AgreementDocument, error) {
	var doc model.AgreementDocument
	err := g.db.WithContext(ctx).
		Preload("Signatures", func(db *gorm.DB) *gorm.DB { return db.Order("signed_at") }).
		First(&doc, "id = ?", documentID).Error
	if err != nil {
		return nil, lookupError("agreement document", documentID, err)
	}
	return &doc, nil
}

// CurrentDocument returns the newest non-superseded agreement of a relationship
func (g *AgreementGate) CurrentDocument(ctx context.Context, relationshipID string) (*model.AgreementDocument, error) {
	var doc model.AgreementDocument
	err := g.db.WithContext(ctx).
		Preload("Signatures", func(db *gorm.DB) *gorm.DB { return db.Order("signed_at") }).
		Where("umbrella_id = ? AND status <> ?", relationshipID, model.DocumentSuperseded).
		Order("created_at DESC").
		First(&doc).Error
	if err != nil {
		return nil, lookupError("agreement for relationship", relationshipID, err)
	}
	return &doc, nil
}
