package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/suteetoe/umbrella/services/umbrella-service/internal/model"
)

func TestRehydrate(t *testing.T) {
	entries := []model.RelationshipTransition{
		{Sequence: 1, ToState: model.StatusPendingAgreement, Action: model.ActionCreate},
		{Sequence: 2, FromState: model.StatusPendingAgreement, ToState: model.StatusPendingAgreement, Action: model.ActionGenerateAgreement},
	}

	inst := rehydrate("u-1", model.StatusPendingAgreement, 2, entries)
	assert.Equal(t, model.StatusPendingAgreement, inst.CurrentState)
	assert.Empty(t, inst.PreviousState)
	assert.Len(t, inst.History, 2)
}

func TestInstanceCache(t *testing.T) {
	now := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	c := newInstanceCache(time.Minute)
	c.put(&Instance{RelationshipID: "u-1", Version: 3}, now)

	_, ok := c.get("u-1", 3, now.Add(30*time.Second))
	assert.True(t, ok)
	_, ok = c.get("u-1", 4, now)
	assert.False(t, ok, "stale version must miss")
	_, ok = c.get("u-1", 3, now.Add(2*time.Minute))
	assert.False(t, ok, "expired entry must miss")

	assert.Equal(t, 1, c.sweep(now.Add(2*time.Minute)))
	assert.Equal(t, 0, c.len())
}

func TestInstanceCacheDisabled(t *testing.T) {
	c := newInstanceCache(0)
	c.put(&Instance{RelationshipID: "u-1", Version: 1}, time.Now())

	_, ok := c.get("u-1", 1, time.Now())
	assert.False(t, ok)
	assert.Equal(t, 0, c.len())
}
