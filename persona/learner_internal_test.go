package persona

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"personigo/extract"
)

// contendedStore simulates a fact whose revision moves between every read
// and write, so both the first update and its retry lose the race.
type contendedStore struct {
	updates int
}

func (s *contendedStore) Keys(context.Context, string) ([]string, error) {
	return []string{"favorite_color"}, nil
}

func (s *contendedStore) GetFact(context.Context, string, string) (Fact, error) {
	return Fact{Key: "favorite_color", Value: "blue", Revision: 1}, nil
}

func (s *contendedStore) PutFact(context.Context, string, string, string, float64, string) (Fact, error) {
	return Fact{}, errors.New("unexpected insert")
}

func (s *contendedStore) UpdateFact(context.Context, string, string, string, float64, string, int64) (Fact, error) {
	s.updates++
	return Fact{}, ErrRevisionConflict
}

type oneCandidateExtractor struct {
	cand extract.Candidate
}

func (e *oneCandidateExtractor) Extract(context.Context, string, []string) ([]extract.Candidate, error) {
	return []extract.Candidate{e.cand}, nil
}

func (e *oneCandidateExtractor) Provider() string { return "stub" }

func TestLearnSurfacesRepeatedRevisionConflict(t *testing.T) {
	p := &Persona{
		Config: newConfig(),
		Extractor: &oneCandidateExtractor{cand: extract.Candidate{
			Key:        "favorite_color",
			Value:      "red",
			Confidence: 0.9,
			IsFactual:  true,
			Supersedes: true,
		}},
		log: zap.NewNop(),
	}
	l := &Learner{p: p, store: &contendedStore{}}

	_, err := l.Learn(context.Background(), "zhen", "zhen", "My favorite color is red")
	if !errors.Is(err, ErrRevisionConflict) {
		t.Fatalf("expected a revision conflict after the retry, got %v", err)
	}
}

func TestUpdateRetriesExactlyOnce(t *testing.T) {
	store := &contendedStore{}
	l := &Learner{p: &Persona{Config: newConfig(), log: zap.NewNop()}, store: store}

	_, err := l.updateWithRetry(context.Background(), "zhen", "favorite_color", "red", "statement", 0.9, 1)
	if !errors.Is(err, ErrRevisionConflict) {
		t.Fatalf("expected a revision conflict, got %v", err)
	}
	if store.updates != 2 {
		t.Fatalf("expected one retry (2 update attempts), got %d", store.updates)
	}
}
