package extract

import (
	"context"
	"regexp"
	"slices"
	"strings"
)

// RuleExtractor is the deterministic offline collaborator: a small set of
// first-person patterns covering the common "teach me about yourself"
// phrasings. It exists for tests, demos and air-gapped deployments; the
// real extraction quality comes from the LLM provider.
type RuleExtractor struct{}

func NewRuleExtractor() *RuleExtractor {
	return &RuleExtractor{}
}

var (
	reMyIs       = regexp.MustCompile(`(?i)^my\s+(.{1,60}?)\s+is\s+(.+)$`)
	reWorkAtAs   = regexp.MustCompile(`(?i)^(?:i\s+)?work(?:s|ed|ing)?\s+at\s+(.+?)\s+as\s+(?:a|an)\s+(.+)$`)
	reWorkAsAt   = regexp.MustCompile(`(?i)^(?:i\s+)?work(?:s|ed|ing)?\s+as\s+(?:a|an)\s+(.+?)\s+at\s+(.+)$`)
	reWorkAt     = regexp.MustCompile(`(?i)^(?:i\s+)?work(?:s|ed|ing)?\s+at\s+(.+)$`)
	reHobby      = regexp.MustCompile(`(?i)^(?:i\s+)?(?:love|like|enjoy)s?\s+(.+)$`)
	reLiveIn     = regexp.MustCompile(`(?i)^(?:i\s+)?lives?\s+in\s+(.+)$`)
	reOccupation = regexp.MustCompile(`(?i)^(?:i\s+am|i'm)\s+(?:a|an)\s+(.+)$`)

	reHedge  = regexp.MustCompile(`(?i)^(?:maybe|perhaps|i\s+think|i\s+guess)[,\s]+`)
	reClause = regexp.MustCompile(`(?i)\s+and\s+|,|;`)
)

func (e *RuleExtractor) Extract(_ context.Context, statement string, existingKeys []string) ([]Candidate, error) {
	s := strings.TrimSpace(statement)
	if s == "" || strings.HasSuffix(s, "?") {
		return nil, nil
	}

	// Hedged statements still extract, at half confidence, so the caller's
	// threshold can drop them.
	confScale := 1.0
	for loc := reHedge.FindStringIndex(s); loc != nil; loc = reHedge.FindStringIndex(s) {
		confScale = 0.5
		s = strings.TrimSpace(s[loc[1]:])
	}

	var candidates []Candidate
	seen := map[string]bool{}
	add := func(key, value string, confidence float64) {
		key = snakeKey(key)
		value = cleanValue(value)
		if key == "" || value == "" || seen[key] {
			return
		}
		seen[key] = true
		candidates = append(candidates, Candidate{
			Key:        key,
			Value:      value,
			Confidence: confidence * confScale,
			IsFactual:  true,
			Supersedes: slices.Contains(existingKeys, key),
		})
	}

	for _, clause := range splitClauses(s) {
		switch {
		case reMyIs.MatchString(clause):
			m := reMyIs.FindStringSubmatch(clause)
			add(m[1], m[2], 0.9)
		case reWorkAtAs.MatchString(clause):
			m := reWorkAtAs.FindStringSubmatch(clause)
			add("employer", m[1], 0.85)
			add("job_title", m[2], 0.85)
		case reWorkAsAt.MatchString(clause):
			m := reWorkAsAt.FindStringSubmatch(clause)
			add("job_title", m[1], 0.85)
			add("employer", m[2], 0.85)
		case reWorkAt.MatchString(clause):
			m := reWorkAt.FindStringSubmatch(clause)
			add("employer", m[1], 0.8)
		case reLiveIn.MatchString(clause):
			m := reLiveIn.FindStringSubmatch(clause)
			add("location", m[1], 0.85)
		case reOccupation.MatchString(clause):
			m := reOccupation.FindStringSubmatch(clause)
			add("occupation", m[1], 0.7)
		case reHobby.MatchString(clause):
			m := reHobby.FindStringSubmatch(clause)
			add("hobby", m[1], 0.8)
		}
	}
	return candidates, nil
}

func (e *RuleExtractor) Provider() string {
	return "rules"
}

// splitClauses breaks a compound statement into independently matchable
// clauses: "I work at Google as a software engineer and love hiking"
// becomes two clauses.
func splitClauses(s string) []string {
	parts := reClause.Split(s, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func snakeKey(raw string) string {
	words := strings.Fields(strings.ToLower(strings.TrimSpace(raw)))
	return strings.Join(words, "_")
}

func cleanValue(raw string) string {
	return strings.Trim(strings.TrimSpace(raw), ".!,")
}
