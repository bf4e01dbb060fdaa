package persona

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

var (
	reQuestionLead = regexp.MustCompile(`(?i)^(what|who|where|when|why|how|which|do|does|did|is|are|was|were|can|could|tell\s+me|list)\b`)
	reRepresent    = regexp.MustCompile(`(?i)^(?:please\s+|can\s+you\s+)*represent\b`)
)

// HandleTurn is the one chat-boundary operation: it classifies the turn as
// a teaching statement or a query, enforces the permission gate, and always
// comes back with response text. Permission denials and extraction hiccups
// are turned into explicit user-facing replies; only infrastructure
// failures surface as errors.
func (p *Persona) HandleTurn(ctx context.Context, subjectID, actorID, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "Say something and I will try to help.", nil
	}

	if reRepresent.MatchString(text) {
		return NewResponder(p).Represent(ctx, subjectID, actorID)
	}
	if isQuestion(text) {
		return NewResponder(p).Answer(ctx, subjectID, actorID, text)
	}

	// A declarative turn is a teaching attempt.
	res, err := NewLearner(p).Learn(ctx, subjectID, actorID, text)
	switch {
	case errors.Is(err, ErrForbidden):
		// Explicit refusal, clearly distinct from "I don't understand".
		return fmt.Sprintf("Thank you for sharing, but I can only learn new information about %s from %s directly. You are logged in as %q.", subjectID, subjectID, actorID), nil
	case errors.Is(err, ErrExtractionTimeout), errors.Is(err, ErrExtractionUnavailable):
		p.log.Warn("extraction failed", zap.String("subject", subjectID), zap.Error(err))
		return "I couldn't process that right now. Please try again.", nil
	case errors.Is(err, ErrRevisionConflict):
		return "That fact was updated by someone else just now. Please try again.", nil
	case err != nil:
		return "", err
	}

	if res.Empty() {
		switch {
		case res.Known > 0:
			return "That matches what I already know.", nil
		case res.Skipped > 0:
			return "I wasn't confident enough in that to remember it.", nil
		default:
			return "I didn't catch a fact to remember in that. You can teach me with statements like \"My favorite color is blue\".", nil
		}
	}
	return confirmDraft(res), nil
}

func isQuestion(text string) bool {
	return strings.HasSuffix(text, "?") || reQuestionLead.MatchString(text)
}

// confirmDraft mirrors the taught facts back so the owner can spot a bad
// extraction immediately.
func confirmDraft(res LearnResult) string {
	var parts []string
	for _, f := range res.Learned {
		parts = append(parts, fmt.Sprintf("Learned: %s = %q.", strings.ReplaceAll(f.Key, "_", " "), f.Value))
	}
	for _, u := range res.Updated {
		parts = append(parts, fmt.Sprintf("Updated: %s = %q (was %q).", strings.ReplaceAll(u.Key, "_", " "), u.Value, u.Previous))
	}
	return strings.Join(parts, " ")
}
