package persona_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"personigo/extract"
	"personigo/persona"
)

func TestLearner_OwnerTeachesOneFact(t *testing.T) {
	p := newTestPersona(t)
	l := persona.NewLearner(p)
	ctx := context.Background()

	res, err := l.Learn(ctx, "zhen", "zhen", "My favorite color is blue")
	require.NoError(t, err)
	require.Len(t, res.Learned, 1)
	assert.Equal(t, "favorite_color", res.Learned[0].Key)
	assert.Equal(t, "blue", res.Learned[0].Value)
	assert.Equal(t, "My favorite color is blue", res.Learned[0].SourceStatement)

	fact, err := persona.NewStore(p).GetFact(ctx, "zhen", "favorite_color")
	require.NoError(t, err)
	assert.Equal(t, "blue", fact.Value)
}

func TestLearner_CompoundStatement(t *testing.T) {
	p := newTestPersona(t)
	l := persona.NewLearner(p)
	ctx := context.Background()

	res, err := l.Learn(ctx, "zhen", "zhen", "I work at Google as a software engineer and I love hiking")
	require.NoError(t, err)

	keys := map[string]string{}
	for _, f := range res.Learned {
		keys[f.Key] = f.Value
	}
	assert.Equal(t, "Google", keys["employer"])
	assert.Equal(t, "software engineer", keys["job_title"])
	assert.Equal(t, "hiking", keys["hobby"])
}

func TestLearner_VisitorForbiddenBeforeExtraction(t *testing.T) {
	ext := &stubExtractor{cands: []extract.Candidate{
		{Key: "favorite_color", Value: "red", Confidence: 0.9, IsFactual: true},
	}}
	p := newTestPersona(t, persona.WithExtractor(ext))
	l := persona.NewLearner(p)
	ctx := context.Background()

	_, err := l.Learn(ctx, "zhen", "visitor", "Zhen's favorite color is red")
	assert.ErrorIs(t, err, persona.ErrForbidden)

	// nothing was written
	facts, _, err := persona.NewStore(p).ListFacts(ctx, "zhen", 0, "")
	require.NoError(t, err)
	assert.Empty(t, facts)
}

func TestLearner_PartialSuccess(t *testing.T) {
	ext := &stubExtractor{cands: []extract.Candidate{
		{Key: "favorite_color", Value: "blue", Confidence: 0.9, IsFactual: true},
		{Key: "mood", Value: "", Confidence: 0.9, IsFactual: true},      // empty value
		{Key: "weather", Value: "nice", Confidence: 0.9},                // not factual
		{Key: "hometown", Value: "Hangzhou", Confidence: 0.2, IsFactual: true}, // below threshold
		{Key: "hobby", Value: "hiking", Confidence: 0.8, IsFactual: true},
	}}
	p := newTestPersona(t, persona.WithExtractor(ext))
	l := persona.NewLearner(p)

	res, err := l.Learn(context.Background(), "zhen", "zhen", "mixed statement")
	require.NoError(t, err)
	require.Len(t, res.Learned, 2)
	assert.Equal(t, "favorite_color", res.Learned[0].Key)
	assert.Equal(t, "hobby", res.Learned[1].Key)
	assert.Equal(t, 3, res.Skipped)
}

func TestLearner_ConfidenceThresholdConfigurable(t *testing.T) {
	ext := &stubExtractor{cands: []extract.Candidate{
		{Key: "hometown", Value: "Hangzhou", Confidence: 0.5, IsFactual: true},
	}}
	p := newTestPersona(t, persona.WithExtractor(ext), persona.WithConfidenceThreshold(0.4))
	l := persona.NewLearner(p)

	res, err := l.Learn(context.Background(), "zhen", "zhen", "I think my hometown is Hangzhou")
	require.NoError(t, err)
	require.Len(t, res.Learned, 1)
	assert.Equal(t, "hometown", res.Learned[0].Key)
}

func TestLearner_DuplicateValueMerges(t *testing.T) {
	ext := &stubExtractor{cands: []extract.Candidate{
		{Key: "favorite_color", Value: "Blue", Confidence: 0.9, IsFactual: true},
	}}
	p := newTestPersona(t, persona.WithExtractor(ext))
	l := persona.NewLearner(p)
	ctx := context.Background()

	s := persona.NewStore(p)
	_, err := s.PutFact(ctx, "zhen", "favorite_color", "blue", 0.9, "My favorite color is blue")
	require.NoError(t, err)

	res, err := l.Learn(ctx, "zhen", "zhen", "My favorite color is blue")
	require.NoError(t, err)
	assert.True(t, res.Empty())
	assert.Equal(t, 1, res.Known, "re-taught fact counts as known, not rejected")
	assert.Zero(t, res.Skipped)

	fact, err := s.GetFact(ctx, "zhen", "favorite_color")
	require.NoError(t, err)
	assert.Equal(t, int64(1), fact.Revision, "re-teaching the same value is a no-op")
}

func TestLearner_SupersedesUpdatesInPlace(t *testing.T) {
	ext := &stubExtractor{cands: []extract.Candidate{
		{Key: "favorite_color", Value: "red", Confidence: 0.95, IsFactual: true, Supersedes: true},
	}}
	p := newTestPersona(t, persona.WithExtractor(ext))
	l := persona.NewLearner(p)
	ctx := context.Background()

	s := persona.NewStore(p)
	_, err := s.PutFact(ctx, "zhen", "favorite_color", "blue", 0.9, "My favorite color is blue")
	require.NoError(t, err)

	res, err := l.Learn(ctx, "zhen", "zhen", "Actually my favorite color is red now")
	require.NoError(t, err)
	require.Len(t, res.Updated, 1)
	assert.Equal(t, "blue", res.Updated[0].Previous)
	assert.Empty(t, res.Learned)

	fact, err := s.GetFact(ctx, "zhen", "favorite_color")
	require.NoError(t, err)
	assert.Equal(t, "red", fact.Value)
	assert.Equal(t, int64(2), fact.Revision)
	assert.Equal(t, "Actually my favorite color is red now", fact.SourceStatement)
}

func TestLearner_CollisionWithoutSupersedesDisambiguates(t *testing.T) {
	ext := &stubExtractor{cands: []extract.Candidate{
		{Key: "project", Value: "atlas", Confidence: 0.9, IsFactual: true},
	}}
	p := newTestPersona(t, persona.WithExtractor(ext))
	l := persona.NewLearner(p)
	ctx := context.Background()

	s := persona.NewStore(p)
	_, err := s.PutFact(ctx, "zhen", "project", "hermes", 0.9, "My project is hermes")
	require.NoError(t, err)

	res, err := l.Learn(ctx, "zhen", "zhen", "My project is atlas")
	require.NoError(t, err)
	require.Len(t, res.Learned, 1)
	assert.Equal(t, "project_2", res.Learned[0].Key)

	// both facts survive
	hermes, err := s.GetFact(ctx, "zhen", "project")
	require.NoError(t, err)
	assert.Equal(t, "hermes", hermes.Value)
	atlas, err := s.GetFact(ctx, "zhen", "project_2")
	require.NoError(t, err)
	assert.Equal(t, "atlas", atlas.Value)
}

func TestLearner_ExtractionTimeout(t *testing.T) {
	ext := &stubExtractor{
		cands: []extract.Candidate{{Key: "hobby", Value: "hiking", Confidence: 0.9, IsFactual: true}},
		delay: 200 * time.Millisecond,
	}
	p := newTestPersona(t, persona.WithExtractor(ext), persona.WithExtractionTimeout(20*time.Millisecond))
	l := persona.NewLearner(p)

	_, err := l.Learn(context.Background(), "zhen", "zhen", "I love hiking")
	assert.ErrorIs(t, err, persona.ErrExtractionTimeout)
}

func TestLearner_ExtractionUnavailable(t *testing.T) {
	ext := &stubExtractor{err: extract.ErrUnavailable}
	p := newTestPersona(t, persona.WithExtractor(ext))
	l := persona.NewLearner(p)

	_, err := l.Learn(context.Background(), "zhen", "zhen", "I love hiking")
	assert.ErrorIs(t, err, persona.ErrExtractionUnavailable)
}

func TestLearner_QuestionYieldsNothing(t *testing.T) {
	p := newTestPersona(t)
	l := persona.NewLearner(p)

	res, err := l.Learn(context.Background(), "zhen", "zhen", "What is my favorite color?")
	require.NoError(t, err)
	assert.True(t, res.Empty())
}
