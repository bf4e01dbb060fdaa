package persona

import (
	"context"
	"fmt"
	"strings"
)

// Phraser is the answer-phrasing collaborator: it may reword a drafted
// answer but decides nothing. Implementations must not introduce
// information beyond the supplied facts.
type Phraser interface {
	Rephrase(ctx context.Context, query, draft string, facts []Fact) (string, error)
}

// TemplatePhraser returns drafts verbatim. Deterministic default for tests
// and offline use.
type TemplatePhraser struct{}

func (TemplatePhraser) Rephrase(_ context.Context, _, draft string, _ []Fact) (string, error) {
	return draft, nil
}

// LLMPhraser polishes drafts through an OpenAI-compatible chat endpoint.
type LLMPhraser struct {
	Client *ChatClient
	Model  string
}

const phraserSystemPrompt = `You rewrite a drafted chat reply into natural, friendly prose.
Keep every piece of information from the draft and the fact list; add nothing and invent nothing.
If the draft says no information is available, say so plainly.`

func (p *LLMPhraser) Rephrase(ctx context.Context, query, draft string, facts []Fact) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "question: %s\n", query)
	if len(facts) > 0 {
		b.WriteString("facts:\n")
		for _, f := range facts {
			fmt.Fprintf(&b, "- %s: %s\n", strings.ReplaceAll(f.Key, "_", " "), f.Value)
		}
	}
	fmt.Fprintf(&b, "draft reply: %s", draft)

	model := p.Model
	if model == "" {
		model = "gpt-4o-mini"
	}

	out, err := p.Client.Complete(ctx, model, []ChatMessage{
		{Role: "system", Content: phraserSystemPrompt},
		{Role: "user", Content: b.String()},
	})
	if err != nil || strings.TrimSpace(out) == "" {
		// Phrasing is cosmetic; the draft always stands on its own.
		return draft, err
	}
	return out, nil
}
