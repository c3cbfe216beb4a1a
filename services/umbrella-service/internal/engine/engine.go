package engine

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/suteetoe/umbrella/services/umbrella-service/internal/model"
	umbrellametrics "github.com/suteetoe/umbrella/services/umbrella-service/prometheus"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultShareListLimit = 5

// Options wires the engine to its collaborators
type Options struct {
	DB      *gorm.DB
	Users   UserDirectory
	Content ContentGenerator
	Logger  *zap.Logger
	Metrics *umbrellametrics.Metrics
	Now     func() time.Time
	// SignatureKey keys the BLAKE2b signature commitment; at most 64 bytes.
	SignatureKey     []byte
	ShareListLimit   int
	InstanceCacheTTL time.Duration
}

// Engine exposes the public operations of the umbrella relationship engine
type Engine struct {
	Registry   *Registry
	Machine    *StateMachine
	Agreements *AgreementGate
	Shares     *RevenueShareCalculator
	Analytics  *AnalyticsAggregator

	shareListLimit int
}

// New builds an engine; DB and Users are required
func New(opts Options) (*Engine, error) {
	if opts.DB == nil {
		return nil, errors.New("engine: database is required")
	}
	if opts.Users == nil {
		return nil, errors.New("engine: user directory is required")
	}
	if len(opts.SignatureKey) > 64 {
		return nil, errors.New("engine: signature key must be at most 64 bytes")
	}
	if opts.Content == nil {
		opts.Content = PlainContent{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ShareListLimit <= 0 {
		opts.ShareListLimit = defaultShareListLimit
	}
	now := func() time.Time { return opts.Now().UTC() }

	analytics := &AnalyticsAggregator{db: opts.DB, log: opts.Logger.Named("analytics"), metrics: opts.Metrics, now: now}
	shares := &RevenueShareCalculator{db: opts.DB, log: opts.Logger.Named("revenue"), metrics: opts.Metrics, now: now}
	gate := &AgreementGate{
		db:           opts.DB,
		log:          opts.Logger.Named("agreement"),
		metrics:      opts.Metrics,
		now:          now,
		content:      opts.Content,
		signatureKey: opts.SignatureKey,
	}
	machine := &StateMachine{
		db:        opts.DB,
		log:       opts.Logger.Named("statemachine"),
		metrics:   opts.Metrics,
		now:       now,
		gate:      gate,
		shares:    shares,
		analytics: analytics,
		instances: newInstanceCache(opts.InstanceCacheTTL),
	}
	gate.machine = machine
	registry := &Registry{
		db:      opts.DB,
		log:     opts.Logger.Named("registry"),
		metrics: opts.Metrics,
		now:     now,
		users:   opts.Users,
		machine: machine,
	}

	return &Engine{
		Registry:       registry,
		Machine:        machine,
		Agreements:     gate,
		Shares:         shares,
		Analytics:      analytics,
		shareListLimit: opts.ShareListLimit,
	}, nil
}

// CreateRelationship registers a new relationship in PENDING_AGREEMENT
func (e *Engine) CreateRelationship(ctx context.Context, in CreateRelationshipInput) (*model.UmbrellaRelationship, error) {
	return e.Registry.Create(ctx, in)
}

// ListRelationships returns the user's relationships with their latest shares
func (e *Engine) ListRelationships(ctx context.Context, userID string, role Role) ([]model.UmbrellaRelationship, error) {
	return e.Registry.List(ctx, userID, role, e.shareListLimit)
}

// GenerateAgreement creates a DRAFT agreement for a pending relationship
func (e *Engine) GenerateAgreement(ctx context.Context, relationshipID string) (*model.AgreementDocument, error) {
	res, err := e.Machine.Transition(ctx, relationshipID, model.StatusPendingAgreement, model.ActionGenerateAgreement, nil)
	if err != nil {
		return nil, err
	}
	return res.Document, nil
}

// SignAgreement records a party signature and activates the relationship on quorum
func (e *Engine) SignAgreement(ctx context.Context, documentID, signerID string, meta ClientMeta) (*SignResult, error) {
	return e.Agreements.Sign(ctx, documentID, signerID, meta)
}

// Transition applies a state machine step
func (e *Engine) Transition(ctx context.Context, relationshipID string, target model.RelationshipStatus, action model.Action, metadata map[string]interface{}) (*TransitionResult, error) {
	return e.Machine.Transition(ctx, relationshipID, target, action, metadata)
}

// CalculateShares creates shares for every active relationship of the revenue owner
func (e *Engine) CalculateShares(ctx context.Context, event RevenueEvent) ([]model.RevenueShare, error) {
	return e.Shares.CalculateShares(ctx, event)
}

// MarkSharePaid settles a calculated share
func (e *Engine) MarkSharePaid(ctx context.Context, shareID string, in SettlementInput) (*model.RevenueShare, error) {
	return e.Shares.MarkPaid(ctx, shareID, in)
}

// GetRollup returns the user's rollup for the current period window
func (e *Engine) GetRollup(ctx context.Context, userID string, period model.Period) (*model.AnalyticsRollup, error) {
	return e.Analytics.GetRollup(ctx, userID, period)
}

// parseAmount accepts the shapes a revenue figure takes after JSON decoding
func parseAmount(v interface{}) (decimal.Decimal, error) {
	switch x := v.(type) {
	case decimal.Decimal:
		return x, nil
	case string:
		return decimal.NewFromString(x)
	case float64:
		return decimal.NewFromFloat(x), nil
	case int:
		return decimal.NewFromInt(int64(x)), nil
	case int64:
		return decimal.NewFromInt(x), nil
	case interface{ String() string }:
		return decimal.NewFromString(x.String())
	default:
		return decimal.Zero, errors.New("unsupported amount type")
	}
}
