package persona

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// Responder answers queries from the store only. It is stateless per
// request; the phrasing collaborator may reword its drafts but facts come
// exclusively from storage and absences stay explicit, never fabricated.
type Responder struct {
	p     *Persona
	store *Store
}

func NewResponder(p *Persona) *Responder {
	return &Responder{p: p, store: NewStore(p)}
}

var (
	reInference   = regexp.MustCompile(`(?i)\b(likely|probably|might|would\s+\w+\s+prefer|guess)\b`)
	reOverview    = regexp.MustCompile(`(?i)(what\s+do\s+you\s+know|tell\s+me\s+(everything\s+)?about|list\s+(all\s+)?(the\s+)?facts)`)
	reAttribution = regexp.MustCompile(`(?i)(how\s+do\s+you\s+know|source|who\s+told\s+you)`)
)

// Answer resolves a query in fixed order: exact key match, then search,
// then an explicit no-information reply. Inference only on request, always
// labeled, never persisted.
func (r *Responder) Answer(ctx context.Context, subjectID, actorID, query string) (string, error) {
	gate := r.p.Config.gate()
	isOwner := gate.Classify(subjectID, actorID) == OwnerCapability

	if reOverview.MatchString(query) {
		return r.overview(ctx, gate, subjectID, isOwner, query)
	}

	// 1. Exact match against known keys.
	keys, err := r.store.Keys(ctx, subjectID)
	if err != nil {
		return "", err
	}
	if key := matchQueryKey(query, keys); key != "" {
		fact, err := r.store.GetFact(ctx, subjectID, key)
		if err == nil {
			draft := r.exactDraft(subjectID, isOwner, fact, reAttribution.MatchString(query))
			return r.phrase(ctx, query, draft, []Fact{fact}), nil
		}
		if !errors.Is(err, ErrNotFound) {
			return "", err
		}
	}

	if reInference.MatchString(query) {
		return r.inference(ctx, subjectID, query)
	}

	// 2. Ranked search.
	facts, err := r.store.SearchFacts(ctx, subjectID, query)
	if err != nil {
		return "", err
	}
	if len(facts) > 0 {
		draft := summaryDraft(fmt.Sprintf("Here is what I have that matches %q:", query), facts)
		return r.phrase(ctx, query, draft, facts), nil
	}

	// 3. Explicit no-information signal.
	return r.phrase(ctx, query, r.noInfoDraft(subjectID, isOwner), nil), nil
}

// Represent builds a first-person persona summary from every stored fact.
// The output is derived on the fly and never written back. Like overview,
// it enumerates the whole base, so it sits behind the same listing policy.
func (r *Responder) Represent(ctx context.Context, subjectID, actorID string) (string, error) {
	gate := r.p.Config.gate()
	if err := gate.Authorize(gate.Classify(subjectID, actorID), OpListFacts); err != nil {
		return r.listRefusal(subjectID), nil
	}

	facts, err := r.allFacts(ctx, subjectID)
	if err != nil {
		return "", err
	}
	if len(facts) == 0 {
		return fmt.Sprintf("I cannot represent %s yet: nothing has been shared with me.", subjectID), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Speaking as %s:", subjectID)
	for _, f := range facts {
		fmt.Fprintf(&b, " my %s is %s.", strings.ReplaceAll(f.Key, "_", " "), f.Value)
	}
	return r.phrase(ctx, "represent "+subjectID, b.String(), facts), nil
}

func (r *Responder) overview(ctx context.Context, gate *Gate, subjectID string, isOwner bool, query string) (string, error) {
	capability := VisitorCapability
	if isOwner {
		capability = OwnerCapability
	}
	if err := gate.Authorize(capability, OpListFacts); err != nil {
		return r.listRefusal(subjectID), nil
	}

	facts, err := r.allFacts(ctx, subjectID)
	if err != nil {
		return "", err
	}
	if len(facts) == 0 {
		return r.phrase(ctx, query, r.noInfoDraft(subjectID, isOwner), nil), nil
	}

	header := fmt.Sprintf("Here is what I know about %s:", subjectID)
	if isOwner {
		header = "Here is what I know about you:"
	}
	return r.phrase(ctx, query, summaryDraft(header, facts), facts), nil
}

func (r *Responder) inference(ctx context.Context, subjectID, query string) (string, error) {
	facts, err := r.store.SearchFacts(ctx, subjectID, query)
	if err != nil {
		return "", err
	}
	if len(facts) == 0 {
		facts, _, err = r.store.ListFacts(ctx, subjectID, r.p.Config.searchLimit(), "")
		if err != nil {
			return "", err
		}
	}
	if len(facts) == 0 {
		return r.phrase(ctx, query, r.noInfoDraft(subjectID, false), nil), nil
	}

	keys := make([]string, 0, len(facts))
	for _, f := range facts {
		keys = append(keys, f.Key)
	}
	draft := summaryDraft(
		fmt.Sprintf("This is an inference drawn from [%s], not a stored fact:", strings.Join(keys, ", ")),
		facts)
	return r.phrase(ctx, query, draft, facts), nil
}

// allFacts walks the pagination token to exhaustion so enumeration never
// silently truncates at one page.
func (r *Responder) allFacts(ctx context.Context, subjectID string) ([]Fact, error) {
	var out []Fact
	token := ""
	for {
		page, next, err := r.store.ListFacts(ctx, subjectID, 0, token)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if next == "" {
			return out, nil
		}
		token = next
	}
}

func (r *Responder) listRefusal(subjectID string) string {
	return fmt.Sprintf("I can answer specific questions about %s, but I do not share the full list of what they have told me.", subjectID)
}

func (r *Responder) exactDraft(subjectID string, isOwner bool, fact Fact, withSource bool) string {
	label := strings.ReplaceAll(fact.Key, "_", " ")
	whose := subjectID + "'s"
	if isOwner {
		whose = "Your"
	}
	draft := fmt.Sprintf("%s %s is %s.", whose, label, fact.Value)
	if withSource {
		draft += fmt.Sprintf(" I learned this from: %q.", fact.SourceStatement)
	}
	return draft
}

func (r *Responder) noInfoDraft(subjectID string, isOwner bool) string {
	if isOwner {
		return "I don't have any information about that yet. You can teach me by telling me about yourself, for example \"My favorite color is blue\"."
	}
	return fmt.Sprintf("%s hasn't shared that information with me yet.", subjectID)
}

func (r *Responder) phrase(ctx context.Context, query, draft string, facts []Fact) string {
	out, err := r.p.Phraser.Rephrase(ctx, query, draft, facts)
	if err != nil {
		r.p.log.Warn("phrasing failed, using draft", zap.Error(err))
		return draft
	}
	return out
}

func summaryDraft(header string, facts []Fact) string {
	var b strings.Builder
	b.WriteString(header)
	for _, f := range facts {
		fmt.Fprintf(&b, "\n- %s: %s", strings.ReplaceAll(f.Key, "_", " "), f.Value)
	}
	return b.String()
}

// matchQueryKey finds the stored key whose spaced form appears in the
// query, preferring the longest match ("favorite color" over "color").
func matchQueryKey(query string, keys []string) string {
	spaced := " " + strings.Join(queryWords(query), " ") + " "
	best := ""
	for _, key := range keys {
		spacedKey := " " + strings.ReplaceAll(key, "_", " ") + " "
		if strings.Contains(spaced, spacedKey) && len(key) > len(best) {
			best = key
		}
	}
	return best
}

func queryWords(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
}
