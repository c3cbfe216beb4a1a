package content

import (
	"bytes"
	"context"
	"fmt"
	"text/template"

	"github.com/suteetoe/umbrella/services/umbrella-service/internal/engine"
)

const defaultAgreement = `UMBRELLA AGREEMENT {{.UmbrellaID}}

Type: {{.RelationshipType}}

1. {{.ReferrerID}} ("Referrer") introduced {{.ReferredID}} ("Referred") to the platform.
2. For every project owned by the Referred, the Referrer receives {{.ShareRate}}% of the
   project revenue recorded by the platform while this agreement is in effect.
3. This agreement takes effect once both parties have signed it and ends when the
   relationship is terminated.
`

// Generator renders agreement bodies from a text template
type Generator struct {
	tmpl *template.Template
}

// NewGenerator parses the given template; an empty string selects the default agreement
func NewGenerator(text string) (*Generator, error) {
	if text == "" {
		text = defaultAgreement
	}
	tmpl, err := template.New("agreement").Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse agreement template: %w", err)
	}
	return &Generator{tmpl: tmpl}, nil
}

// AgreementContent renders the template for one relationship
func (g *Generator) AgreementContent(ctx context.Context, parties engine.AgreementParties) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := g.tmpl.Execute(&buf, parties); err != nil {
		return "", fmt.Errorf("failed to render agreement: %w", err)
	}
	return buf.String(), nil
}
