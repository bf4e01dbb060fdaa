// Package extract turns a free-text statement into candidate facts via an
// external collaborator. Output is untrusted: callers validate confidence,
// factuality and key collisions before anything is persisted.
package extract

import (
	"context"
	"errors"
)

var ErrUnavailable = errors.New("extraction service unavailable")

// Candidate is one proposed fact from a statement. Confidence is the
// collaborator's certainty in [0, 1]; IsFactual false flags questions,
// opinions and other non-facts; Supersedes true means the collaborator
// judged the statement a correction of an existing key rather than a new
// fact.
type Candidate struct {
	Key        string  `json:"key"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	IsFactual  bool    `json:"is_factual"`
	Supersedes bool    `json:"supersedes"`
}

// Extractor is the collaborator contract. A statement may yield zero, one
// or many candidates. existingKeys give the collaborator context for
// judging corrections versus new facts.
type Extractor interface {
	Extract(ctx context.Context, statement string, existingKeys []string) ([]Candidate, error)
	Provider() string
}

type Config struct {
	Provider string // "openai", "rules" (fallback)
	APIKey   string
	BaseURL  string
	Model    string
}

// NewExtractor builds an extractor for the configured provider, falling
// back to the deterministic rule-based extractor for offline and test use.
func NewExtractor(config Config) Extractor {
	switch config.Provider {
	case "openai":
		return NewOpenAIExtractor(config)
	case "rules":
		fallthrough
	default:
		return NewRuleExtractor()
	}
}
