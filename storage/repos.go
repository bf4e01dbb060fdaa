package storage

import (
	"context"
	"sort"
	"strings"
	"time"
)

// SubjectRepo manages the persons that knowledge bases are about. Subjects
// are created implicitly on first fact write and never deleted here.
type SubjectRepo interface {
	// Ensure returns the internal id for externalID, creating the subject
	// if it does not exist yet. Safe under concurrent calls.
	Ensure(ctx context.Context, externalID string) (int64, error)
	GetByExternalID(ctx context.Context, externalID string) (int64, error)
}

// FactRepo persists one subject's knowledge base: a unique (subject, key)
// mapping with optimistic revision control.
type FactRepo interface {
	// Insert stores a new fact with revision 1. Returns ErrKeyExists when
	// the key is already taken for this subject.
	Insert(ctx context.Context, subjectID int64, key, value string, confidence float64, source string) (*FactRecord, error)

	// Update replaces value/confidence/source of an existing fact and bumps
	// its revision, but only when the stored revision equals
	// expectedRevision. Returns ErrRevisionConflict on a stale revision and
	// ErrNotFound for an absent key.
	Update(ctx context.Context, subjectID int64, key, value string, confidence float64, source string, expectedRevision int64) (*FactRecord, error)

	Delete(ctx context.Context, subjectID int64, key string) error
	Get(ctx context.Context, subjectID int64, key string) (*FactRecord, error)

	// List returns facts in insertion order, starting after afterID
	// (0 means from the beginning), at most limit records.
	List(ctx context.Context, subjectID int64, limit int, afterID int64) ([]FactRecord, error)

	// Keys returns every stored key for the subject, insertion-ordered.
	Keys(ctx context.Context, subjectID int64) ([]string, error)

	// Search ranks the subject's facts by token overlap between the query
	// and each fact's key/value/source statement. Zero-score facts are
	// omitted; ties go to the most recently updated fact.
	Search(ctx context.Context, subjectID int64, query string, limit int) ([]FactRecord, error)
}

// AuditRepo is the append-only provenance trail for fact mutations.
type AuditRepo interface {
	Append(ctx context.Context, subjectID int64, key, op, value string, confidence float64, source string, revision int64) error
}

type FactRecord struct {
	ID              int64
	UUID            string
	SubjectID       int64
	Key             string
	Value           string
	Confidence      float64
	SourceStatement string
	Revision        int64
	DateCreated     time.Time
	DateUpdated     time.Time
}

func decodeAnyTime(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x, true
	case string:
		return parseTimeString(x)
	case []byte:
		return parseTimeString(string(x))
	default:
		return time.Time{}, false
	}
}

func parseTimeString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02 15:04:05.999999999",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// stopwords are function words that carry no signal for fact lookup;
// without the filter a query like "what is my shoe size" would match every
// source statement containing "my" or "is".
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "is": {}, "are": {}, "was": {}, "were": {},
	"am": {}, "be": {}, "been": {}, "do": {}, "does": {}, "did": {},
	"what": {}, "who": {}, "where": {}, "when": {}, "why": {}, "how": {},
	"which": {}, "would": {}, "could": {}, "should": {}, "can": {},
	"will": {}, "have": {}, "has": {}, "had": {}, "my": {}, "your": {},
	"his": {}, "her": {}, "their": {}, "our": {}, "its": {}, "i": {},
	"you": {}, "he": {}, "she": {}, "it": {}, "we": {}, "they": {},
	"me": {}, "him": {}, "them": {}, "us": {}, "of": {}, "to": {},
	"in": {}, "on": {}, "at": {}, "for": {}, "with": {}, "and": {},
	"or": {}, "but": {}, "not": {}, "no": {}, "as": {}, "about": {},
	"know": {}, "tell": {}, "that": {}, "this": {}, "these": {},
	"those": {}, "there": {}, "here": {},
}

func splitWords(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
}

// queryTokens splits free text into lowercase alphanumeric words and drops
// stopwords.
func queryTokens(s string) []string {
	words := splitWords(s)
	out := make([]string, 0, len(words))
	for _, w := range words {
		if len(w) < 2 {
			continue
		}
		if _, ok := stopwords[w]; ok {
			continue
		}
		out = append(out, w)
	}
	return out
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range splitWords(s) {
		set[w] = struct{}{}
	}
	return set
}

// scoreFact is the shared token-overlap ranking used by both SQL and Mongo
// fact repos. Key hits weigh more than value hits, value hits more than
// source-statement hits.
func scoreFact(tokens []string, rec FactRecord) float64 {
	keys := tokenSet(strings.ReplaceAll(rec.Key, "_", " "))
	values := tokenSet(rec.Value)
	sources := tokenSet(rec.SourceStatement)

	var score float64
	for _, tok := range tokens {
		if _, ok := keys[tok]; ok {
			score += 3
		}
		if _, ok := values[tok]; ok {
			score += 2
		}
		if _, ok := sources[tok]; ok {
			score += 1
		}
	}
	return score
}

// rankFacts filters zero-score records and orders the rest by score, then
// by most recent update.
func rankFacts(query string, recs []FactRecord, limit int) []FactRecord {
	tokens := queryTokens(query)
	if len(tokens) == 0 {
		return nil
	}

	type scored struct {
		rec   FactRecord
		score float64
	}
	var results []scored
	for _, rec := range recs {
		if s := scoreFact(tokens, rec); s > 0 {
			results = append(results, scored{rec: rec, score: s})
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].score == results[j].score {
			return results[i].rec.DateUpdated.After(results[j].rec.DateUpdated)
		}
		return results[i].score > results[j].score
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	out := make([]FactRecord, 0, len(results))
	for _, r := range results {
		out = append(out, r.rec)
	}
	return out
}
