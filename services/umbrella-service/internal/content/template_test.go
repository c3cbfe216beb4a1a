package content

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suteetoe/umbrella/services/umbrella-service/internal/engine"
)

func TestDefaultAgreement(t *testing.T) {
	g, err := NewGenerator("")
	require.NoError(t, err)

	text, err := g.AgreementContent(context.Background(), engine.AgreementParties{
		UmbrellaID:       "u-1",
		ReferrerID:       "alice",
		ReferredID:       "bob",
		RelationshipType: "PRIVATE_UMBRELLA",
		ShareRate:        "1.25",
	})
	require.NoError(t, err)
	assert.Contains(t, text, "UMBRELLA AGREEMENT u-1")
	assert.Contains(t, text, "alice")
	assert.Contains(t, text, "1.25%")
}

func TestCustomTemplate(t *testing.T) {
	g, err := NewGenerator("{{.ReferrerID}}->{{.ReferredID}}")
	require.NoError(t, err)

	text, err := g.AgreementContent(context.Background(), engine.AgreementParties{ReferrerID: "a", ReferredID: "b"})
	require.NoError(t, err)
	assert.Equal(t, "a->b", text)
}

func TestBadTemplate(t *testing.T) {
	_, err := NewGenerator("{{.ReferrerID")
	assert.Error(t, err)

	g, err := NewGenerator("{{.Unknown}}")
	require.NoError(t, err)
	_, err = g.AgreementContent(context.Background(), engine.AgreementParties{})
	assert.Error(t, err)
}

func TestCancelledContext(t *testing.T) {
	g, err := NewGenerator("")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = g.AgreementContent(ctx, engine.AgreementParties{})
	assert.ErrorIs(t, err, context.Canceled)
}
