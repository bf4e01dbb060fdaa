package persona

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"personigo/extract"
)

// Learner runs the teaching pipeline for one turn: permission gate,
// extraction with a bounded deadline, local validation of every candidate,
// collision resolution, then commits through the Store. Candidates fail
// independently; one bad candidate never blocks the rest of the statement.
type Learner struct {
	p     *Persona
	store factStore
}

// factStore is the slice of the Store the teaching pipeline needs.
type factStore interface {
	Keys(ctx context.Context, subjectID string) ([]string, error)
	GetFact(ctx context.Context, subjectID, key string) (Fact, error)
	PutFact(ctx context.Context, subjectID, key, value string, confidence float64, source string) (Fact, error)
	UpdateFact(ctx context.Context, subjectID, key, value string, confidence float64, source string, expectedRevision int64) (Fact, error)
}

func NewLearner(p *Persona) *Learner {
	return &Learner{p: p, store: NewStore(p)}
}

// Update pairs the corrected fact with the value it replaced, so the
// confirmation can show the owner what changed.
type Update struct {
	Fact
	Previous string
}

type LearnResult struct {
	Learned []Fact
	Updated []Update
	// Known counts candidates whose stored value already matches.
	Known int
	// Skipped counts candidates rejected by validation.
	Skipped int
}

func (r LearnResult) Empty() bool {
	return len(r.Learned) == 0 && len(r.Updated) == 0
}

// Learn extracts candidate facts from an owner's statement and persists the
// valid ones. Visitors get ErrForbidden before any extraction happens.
func (l *Learner) Learn(ctx context.Context, subjectID, actorID, statement string) (LearnResult, error) {
	var res LearnResult

	gate := l.p.Config.gate()
	if err := gate.Authorize(gate.Classify(subjectID, actorID), OpPutFact); err != nil {
		return res, err
	}

	existingKeys, err := l.store.Keys(ctx, subjectID)
	if err != nil {
		return res, err
	}

	candidates, err := l.extract(ctx, statement, existingKeys)
	if err != nil {
		return res, err
	}

	threshold := l.p.Config.threshold()
	for _, cand := range candidates {
		ok, err := l.commit(ctx, subjectID, statement, cand, &existingKeys, threshold, &res)
		if errors.Is(err, ErrRevisionConflict) {
			// Transient: the one-shot retry already lost twice, so the
			// whole turn is worth repeating.
			return res, err
		}
		if err != nil {
			// Partial success: log and keep going with the remaining
			// candidates.
			l.p.log.Warn("candidate not persisted",
				zap.String("subject", subjectID),
				zap.String("key", cand.Key),
				zap.Error(err))
			continue
		}
		if !ok {
			res.Skipped++
		}
	}
	return res, nil
}

// extract calls the collaborator under the configured deadline and maps its
// failures onto the engine's retryable error taxonomy.
func (l *Learner) extract(ctx context.Context, statement string, existingKeys []string) ([]extract.Candidate, error) {
	ctx, cancel := context.WithTimeout(ctx, l.p.Config.extractionTimeout())
	defer cancel()

	candidates, err := l.p.Extractor.Extract(ctx, statement, existingKeys)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrExtractionTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrExtractionUnavailable, err)
	}
	return candidates, nil
}

// commit validates one candidate and writes it. Returns (false, nil) for a
// candidate skipped by policy, (true, nil) for one persisted or already
// known.
func (l *Learner) commit(ctx context.Context, subjectID, statement string, cand extract.Candidate, existingKeys *[]string, threshold float64, res *LearnResult) (bool, error) {
	// The collaborator is untrusted: enforce its own contract here.
	if !cand.IsFactual {
		return false, nil
	}
	value := strings.TrimSpace(cand.Value)
	if value == "" || strings.HasSuffix(value, "?") {
		return false, nil
	}
	if cand.Confidence < threshold || cand.Confidence > 1 {
		return false, nil
	}

	key := NormalizeKey(cand.Key)
	if key == "" {
		return false, nil
	}

	if slices.Contains(*existingKeys, key) {
		return l.mergeOrDisambiguate(ctx, subjectID, key, value, statement, cand, existingKeys, res)
	}

	fact, err := l.store.PutFact(ctx, subjectID, key, value, cand.Confidence, statement)
	if errors.Is(err, ErrKeyExists) {
		// Lost the insert race to a concurrent teaching turn: retry once as
		// a merge against the winner's fact.
		return l.mergeOrDisambiguate(ctx, subjectID, key, value, statement, cand, existingKeys, res)
	}
	if err != nil {
		return false, err
	}
	*existingKeys = append(*existingKeys, key)
	res.Learned = append(res.Learned, fact)
	return true, nil
}

// mergeOrDisambiguate resolves a key collision: same value means the fact
// is already known, a marked correction updates in place, anything else
// gets a numbered key so distinct facts never overwrite each other.
func (l *Learner) mergeOrDisambiguate(ctx context.Context, subjectID, key, value, statement string, cand extract.Candidate, existingKeys *[]string, res *LearnResult) (bool, error) {
	current, err := l.store.GetFact(ctx, subjectID, key)
	if err != nil {
		return false, err
	}

	if strings.EqualFold(strings.TrimSpace(current.Value), value) {
		// Merge: the fact is already known, which is not a rejection.
		res.Known++
		return true, nil
	}

	if cand.Supersedes {
		fact, err := l.updateWithRetry(ctx, subjectID, key, value, statement, cand.Confidence, current.Revision)
		if err != nil {
			return false, err
		}
		res.Updated = append(res.Updated, Update{Fact: fact, Previous: current.Value})
		return true, nil
	}

	// Conservative default: differing values under the same label are
	// distinct facts.
	disambiguated := DisambiguateKey(key, *existingKeys)
	fact, err := l.store.PutFact(ctx, subjectID, disambiguated, value, cand.Confidence, statement)
	if err != nil {
		return false, err
	}
	*existingKeys = append(*existingKeys, disambiguated)
	res.Learned = append(res.Learned, fact)
	return true, nil
}

// updateWithRetry applies the one-shot re-read-and-retry policy for lost
// update races; a second conflict surfaces as a transient failure.
func (l *Learner) updateWithRetry(ctx context.Context, subjectID, key, value, statement string, confidence float64, expectedRevision int64) (Fact, error) {
	fact, err := l.store.UpdateFact(ctx, subjectID, key, value, confidence, statement, expectedRevision)
	if !errors.Is(err, ErrRevisionConflict) {
		return fact, err
	}

	current, err := l.store.GetFact(ctx, subjectID, key)
	if err != nil {
		return Fact{}, err
	}
	return l.store.UpdateFact(ctx, subjectID, key, value, confidence, statement, current.Revision)
}
