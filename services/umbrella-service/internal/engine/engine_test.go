package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suteetoe/umbrella/gomicro/database"
	"github.com/suteetoe/umbrella/services/umbrella-service/internal/model"
	umbrellametrics "github.com/suteetoe/umbrella/services/umbrella-service/prometheus"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testNow = time.Date(2026, time.March, 15, 10, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	engine *Engine
	db     *gorm.DB
	clock  *testClock
	users  *StaticDirectory
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := database.Open(sqlite.Open(dsn), logger.Silent)
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, database.MigrateModels(db, model.AllModels()...))
	return db
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := openTestDB(t)
	clock := &testClock{now: testNow}
	users := NewStaticDirectory("alice", "bob", "carol", "dave")

	e, err := New(Options{
		DB:               db,
		Users:            users,
		Logger:           zaptest.NewLogger(t),
		Metrics:          umbrellametrics.NewMetrics("umbrella_test", prometheus.NewRegistry()),
		Now:              clock.Now,
		SignatureKey:     []byte("test-signature-key"),
		InstanceCacheTTL: time.Minute,
	})
	require.NoError(t, err)
	return &testEnv{engine: e, db: db, clock: clock, users: users}
}

func rate(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func (env *testEnv) create(t *testing.T, referrer, referred, shareRate string) *model.UmbrellaRelationship {
	t.Helper()
	rel, err := env.engine.CreateRelationship(context.Background(), CreateRelationshipInput{
		ReferrerID: referrer,
		ReferredID: referred,
		ShareRate:  rate(shareRate),
	})
	require.NoError(t, err)
	return rel
}

// activate runs the agreement flow to completion
func (env *testEnv) activate(t *testing.T, rel *model.UmbrellaRelationship) *model.UmbrellaRelationship {
	t.Helper()
	ctx := context.Background()
	doc, err := env.engine.GenerateAgreement(ctx, rel.ID)
	require.NoError(t, err)
	_, err = env.engine.SignAgreement(ctx, doc.ID, rel.ReferrerID, ClientMeta{IPAddress: "10.0.0.1", UserAgent: "test"})
	require.NoError(t, err)
	res, err := env.engine.SignAgreement(ctx, doc.ID, rel.ReferredID, ClientMeta{IPAddress: "10.0.0.2", UserAgent: "test"})
	require.NoError(t, err)
	require.True(t, res.Activated)
	return res.Relationship
}

// forceStatus puts a relationship into status without going through the machine
func (env *testEnv) forceStatus(t *testing.T, id string, status model.RelationshipStatus) {
	t.Helper()
	require.NoError(t, env.db.Model(&model.UmbrellaRelationship{}).Where("id = ?", id).Update("status", status).Error)
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Options{Users: NewStaticDirectory()})
	assert.Error(t, err)

	db := openTestDB(t)
	_, err = New(Options{DB: db})
	assert.Error(t, err)

	_, err = New(Options{DB: db, Users: NewStaticDirectory(), SignatureKey: make([]byte, 65)})
	assert.Error(t, err)
}

func TestUmbrellaLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rel := env.create(t, "alice", "bob", "1.25")
	assert.Equal(t, model.StatusPendingAgreement, rel.Status)

	doc, err := env.engine.GenerateAgreement(ctx, rel.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DocumentDraft, doc.Status)
	assert.Contains(t, doc.Content, "alice")

	first, err := env.engine.SignAgreement(ctx, doc.ID, "alice", ClientMeta{IPAddress: "10.0.0.1"})
	require.NoError(t, err)
	assert.False(t, first.Activated)
	assert.Equal(t, model.PartyReferrer, first.Signature.Party)

	second, err := env.engine.SignAgreement(ctx, doc.ID, "bob", ClientMeta{IPAddress: "10.0.0.2"})
	require.NoError(t, err)
	require.True(t, second.Activated)
	assert.Equal(t, model.DocumentEffective, second.Document.Status)
	assert.Equal(t, model.StatusActive, second.Relationship.Status)
	assert.True(t, second.Relationship.IsActive)
	assert.True(t, second.Relationship.AgreementSigned)

	env.clock.Advance(time.Hour)
	shares, err := env.engine.CalculateShares(ctx, RevenueEvent{ProjectID: "p1", Revenue: rate("100.00"), ProjectOwnerID: "bob"})
	require.NoError(t, err)
	require.Len(t, shares, 1)
	assert.True(t, shares[0].ShareAmount.Equal(rate("1.25")), shares[0].ShareAmount.String())

	paid, err := env.engine.MarkSharePaid(ctx, shares[0].ID, SettlementInput{PaymentMethod: "bank_transfer", TransactionID: "tx-1"})
	require.NoError(t, err)
	assert.Equal(t, model.SharePaid, paid.Status)

	rollup, err := env.engine.Analytics.Recompute(ctx, "alice", model.PeriodMonthly)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rollup.TotalReferrals)
	assert.Equal(t, int64(1), rollup.ActiveReferrals)
	assert.True(t, rollup.TotalShares.Equal(rate("1.25")))
	assert.Equal(t, int64(1), rollup.ProjectsCompleted)

	terminated, err := env.engine.Registry.Terminate(ctx, rel.ID, "program ended")
	require.NoError(t, err)
	assert.Equal(t, model.StatusTerminated, terminated.Status)
	assert.False(t, terminated.IsActive)
	assert.Equal(t, "program ended", terminated.TerminationReason)

	inst, err := env.engine.Machine.Instance(ctx, rel.ID)
	require.NoError(t, err)
	var actions []model.Action
	for _, h := range inst.History {
		actions = append(actions, h.Action)
	}
	assert.Equal(t, []model.Action{
		model.ActionCreate, model.ActionGenerateAgreement, model.ActionActivate, model.ActionTerminate,
	}, actions)
}
