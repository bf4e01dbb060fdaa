package persona

import (
	"time"

	"personigo/storage"
)

// Fact is one learned statement about a subject. Key is normalized and
// unique within the subject's knowledge base; SourceStatement preserves the
// original wording that produced it.
type Fact struct {
	Key             string
	Value           string
	Confidence      float64
	SourceStatement string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	Revision        int64
}

func factFromRecord(rec *storage.FactRecord) Fact {
	return Fact{
		Key:             rec.Key,
		Value:           rec.Value,
		Confidence:      rec.Confidence,
		SourceStatement: rec.SourceStatement,
		CreatedAt:       rec.DateCreated,
		UpdatedAt:       rec.DateUpdated,
		Revision:        rec.Revision,
	}
}

func factsFromRecords(recs []storage.FactRecord) []Fact {
	out := make([]Fact, 0, len(recs))
	for i := range recs {
		out = append(out, factFromRecord(&recs[i]))
	}
	return out
}
