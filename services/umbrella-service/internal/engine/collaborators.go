package engine

import (
	"context"
	"strings"
	"sync"
)

// UserDirectory resolves user identifiers owned by another service
type UserDirectory interface {
	UserExists(ctx context.Context, userID string) (bool, error)
}

// AgreementParties is what the content generator gets to fill the agreement text
type AgreementParties struct {
	UmbrellaID       string
	ReferrerID       string
	ReferredID       string
	RelationshipType string
	ShareRate        string
}

// ContentGenerator produces the agreement body. The engine treats the result as opaque.
type ContentGenerator interface {
	AgreementContent(ctx context.Context, parties AgreementParties) (string, error)
}

// StaticDirectory is an in-memory UserDirectory
type StaticDirectory struct {
	mu    sync.RWMutex
	users map[string]struct{}
}

// NewStaticDirectory creates a directory that knows the given user ids
func NewStaticDirectory(userIDs ...string) *StaticDirectory {
	d := &StaticDirectory{users: make(map[string]struct{}, len(userIDs))}
	for _, id := range userIDs {
		d.users[id] = struct{}{}
	}
	return d
}

// Add registers more users
func (d *StaticDirectory) Add(userIDs ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, id := range userIDs {
		d.users[id] = struct{}{}
	}
}

func (d *StaticDirectory) UserExists(_ context.Context, userID string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.users[userID]
	return ok, nil
}

// PlainContent renders a minimal agreement body; used when no generator is configured
type PlainContent struct{}

func (PlainContent) AgreementContent(_ context.Context, p AgreementParties) (string, error) {
	var b strings.Builder
	b.WriteString("Umbrella agreement ")
	b.WriteString(p.UmbrellaID)
	b.WriteString(": referrer ")
	b.WriteString(p.ReferrerID)
	b.WriteString(" receives ")
	b.WriteString(p.ShareRate)
	b.WriteString("% of project revenue generated by ")
	b.WriteString(p.ReferredID)
	b.WriteString(".")
	return b.String(), nil
}
