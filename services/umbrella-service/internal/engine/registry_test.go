package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suteetoe/umbrella/services/umbrella-service/internal/model"
)

type failingDirectory struct{}

func (failingDirectory) UserExists(context.Context, string) (bool, error) {
	return false, errors.New("directory unavailable")
}

func TestCreateRelationship(t *testing.T) {
	env := newTestEnv(t)

	rel := env.create(t, "alice", "bob", "1.25")
	assert.NotEmpty(t, rel.ID)
	assert.Equal(t, model.StatusPendingAgreement, rel.Status)
	assert.Equal(t, model.TypePrivateUmbrella, rel.RelationshipType)
	assert.Equal(t, int64(1), rel.Version)
	assert.False(t, rel.IsActive)
	assert.False(t, rel.AgreementSigned)

	inst, err := env.engine.Machine.Instance(context.Background(), rel.ID)
	require.NoError(t, err)
	require.Len(t, inst.History, 1)
	assert.Equal(t, model.ActionCreate, inst.History[0].Action)
	assert.Equal(t, model.StatusPendingAgreement, inst.History[0].State)
}

func TestCreateRelationshipValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		input CreateRelationshipInput
		want  error
	}{
		{"self referral", CreateRelationshipInput{ReferrerID: "alice", ReferredID: "alice", ShareRate: rate("1")}, ErrValidation},
		{"rate below range", CreateRelationshipInput{ReferrerID: "alice", ReferredID: "bob", ShareRate: rate("0.49")}, ErrValidation},
		{"rate above range", CreateRelationshipInput{ReferrerID: "alice", ReferredID: "bob", ShareRate: rate("1.51")}, ErrValidation},
		{"unknown type", CreateRelationshipInput{ReferrerID: "alice", ReferredID: "bob", ShareRate: rate("1"), RelationshipType: "FAMILY"}, ErrValidation},
		{"missing referred", CreateRelationshipInput{ReferrerID: "alice", ShareRate: rate("1")}, ErrValidation},
		{"unknown referrer", CreateRelationshipInput{ReferrerID: "zed", ReferredID: "bob", ShareRate: rate("1")}, ErrNotFound},
		{"unknown referred", CreateRelationshipInput{ReferrerID: "alice", ReferredID: "zed", ShareRate: rate("1")}, ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.engine.CreateRelationship(ctx, tt.input)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	var count int64
	require.NoError(t, env.db.Model(&model.UmbrellaRelationship{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestCreateRelationshipRateBounds(t *testing.T) {
	env := newTestEnv(t)

	low := env.create(t, "alice", "bob", "0.5")
	high := env.create(t, "alice", "carol", "1.5")
	assert.True(t, low.ShareRate.Equal(MinShareRate))
	assert.True(t, high.ShareRate.Equal(MaxShareRate))
}

func TestCreateRelationshipDirectoryFailure(t *testing.T) {
	env := newTestEnv(t)
	env.engine.Registry.users = failingDirectory{}

	_, err := env.engine.CreateRelationship(context.Background(), CreateRelationshipInput{ReferrerID: "alice", ReferredID: "bob", ShareRate: rate("1")})
	require.Error(t, err)
	assert.Equal(t, ErrorCode(""), Code(err))
}

func TestCreateRelationshipConflict(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rel := env.create(t, "alice", "bob", "1.25")

	_, err := env.engine.CreateRelationship(ctx, CreateRelationshipInput{ReferrerID: "alice", ReferredID: "bob", ShareRate: rate("1")})
	assert.ErrorIs(t, err, ErrConflict)
	_, err = env.engine.CreateRelationship(ctx, CreateRelationshipInput{ReferrerID: "bob", ReferredID: "alice", ShareRate: rate("1")})
	assert.ErrorIs(t, err, ErrConflict)

	_, err = env.engine.Registry.Terminate(ctx, rel.ID, "")
	require.NoError(t, err)

	again := env.create(t, "bob", "alice", "1.0")
	assert.NotEqual(t, rel.ID, again.ID)
}

func TestListRelationshipsByRole(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first := env.create(t, "alice", "bob", "1.0")
	env.clock.Advance(time.Minute)
	second := env.create(t, "alice", "carol", "1.0")
	env.clock.Advance(time.Minute)
	third := env.create(t, "dave", "alice", "1.0")

	all, err := env.engine.ListRelationships(ctx, "alice", RoleAll)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{third.ID, second.ID, first.ID}, []string{all[0].ID, all[1].ID, all[2].ID})

	referrer, err := env.engine.ListRelationships(ctx, "alice", RoleReferrer)
	require.NoError(t, err)
	assert.Len(t, referrer, 2)

	referred, err := env.engine.ListRelationships(ctx, "alice", RoleReferred)
	require.NoError(t, err)
	require.Len(t, referred, 1)
	assert.Equal(t, third.ID, referred[0].ID)

	none, err := env.engine.ListRelationships(ctx, "carol", RoleReferrer)
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = env.engine.ListRelationships(ctx, "", RoleAll)
	assert.ErrorIs(t, err, ErrValidation)
	_, err = ParseRole("owner")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestListRelationshipsCapsShares(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rel := env.activate(t, env.create(t, "alice", "bob", "1.0"))
	for i := 0; i < 7; i++ {
		env.clock.Advance(time.Minute)
		_, err := env.engine.CalculateShares(ctx, RevenueEvent{
			ProjectID:      "p1",
			RevenueEventID: string(rune('a' + i)),
			Revenue:        rate("10"),
			ProjectOwnerID: "bob",
		})
		require.NoError(t, err)
	}

	rels, err := env.engine.ListRelationships(ctx, "alice", RoleReferrer)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, rel.ID, rels[0].ID)
	require.Len(t, rels[0].RevenueShares, defaultShareListLimit)
	assert.Equal(t, "g", rels[0].RevenueShares[0].RevenueEventID)

	all, err := env.engine.Shares.ListShares(ctx, rel.ID)
	require.NoError(t, err)
	assert.Len(t, all, 7)
}

func TestUpdateRelationshipMetadata(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rel := env.create(t, "alice", "bob", "1.0")

	notes := "met at the meetup"
	updated, err := env.engine.Registry.Update(ctx, rel.ID, RelationshipPatch{Notes: &notes})
	require.NoError(t, err)
	assert.Equal(t, notes, updated.Notes)
	assert.Equal(t, model.StatusPendingAgreement, updated.Status)
	assert.Equal(t, rel.Version, updated.Version)

	unchanged, err := env.engine.Registry.Update(ctx, rel.ID, RelationshipPatch{})
	require.NoError(t, err)
	assert.Equal(t, notes, unchanged.Notes)

	_, err = env.engine.Registry.Update(ctx, "missing", RelationshipPatch{Notes: &notes})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetRelationshipNotFound(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.engine.Registry.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
