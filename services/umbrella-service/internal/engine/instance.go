package engine

import (
	"sync"
	"time"

	"github.com/suteetoe/umbrella/services/umbrella-service/internal/model"
)

// HistoryEntry is one step of an instance's history
type HistoryEntry struct {
	State         model.RelationshipStatus `json:"state"`
	PreviousState model.RelationshipStatus `json:"previous_state,omitempty"`
	Action        model.Action             `json:"action"`
	Timestamp     time.Time                `json:"timestamp"`
	Metadata      map[string]interface{}   `json:"metadata,omitempty"`
}

// Instance is the runtime view of a relationship's lifecycle. It is derived
// from the store and safe to discard.
type Instance struct {
	RelationshipID string                   `json:"relationship_id"`
	CurrentState   model.RelationshipStatus `json:"current_state"`
	PreviousState  model.RelationshipStatus `json:"previous_state,omitempty"`
	Version        int64                    `json:"version"`
	History        []HistoryEntry           `json:"history"`
}

func rehydrate(id string, status model.RelationshipStatus, version int64, entries []model.RelationshipTransition) *Instance {
	inst := &Instance{
		RelationshipID: id,
		CurrentState:   status,
		Version:        version,
		History:        make([]HistoryEntry, 0, len(entries)),
	}
	for _, e := range entries {
		inst.History = append(inst.History, HistoryEntry{
			State:         e.ToState,
			PreviousState: e.FromState,
			Action:        e.Action,
			Timestamp:     e.CreatedAt,
			Metadata:      e.Metadata,
		})
		if e.FromState != "" && e.FromState != e.ToState {
			inst.PreviousState = e.FromState
		}
	}
	return inst
}

func (i *Instance) clone() *Instance {
	c := *i
	c.History = append([]HistoryEntry(nil), i.History...)
	return &c
}

type cachedInstance struct {
	inst     *Instance
	storedAt time.Time
}

// instanceCache keeps rehydrated instances between requests. An entry is only
// served while its version matches the store. A zero TTL disables caching.
type instanceCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cachedInstance
}

func newInstanceCache(ttl time.Duration) *instanceCache {
	return &instanceCache{ttl: ttl, entries: make(map[string]cachedInstance)}
}

func (c *instanceCache) get(id string, version int64, now time.Time) (*Instance, bool) {
	if c.ttl <= 0 {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok || e.inst.Version != version || now.Sub(e.storedAt) > c.ttl {
		return nil, false
	}
	return e.inst.clone(), true
}

func (c *instanceCache) put(inst *Instance, now time.Time) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[inst.RelationshipID] = cachedInstance{inst: inst, storedAt: now}
}

func (c *instanceCache) invalidate(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
}

func (c *instanceCache) sweep(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for id, e := range c.entries {
		if now.Sub(e.storedAt) > c.ttl {
			delete(c.entries, id)
			n++
		}
	}
	return n
}

func (c *instanceCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
