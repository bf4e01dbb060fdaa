package persona_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"personigo/persona"
)

func TestStore_ReplayInvariant(t *testing.T) {
	p := newTestPersona(t)
	s := persona.NewStore(p)
	ctx := context.Background()

	_, err := s.PutFact(ctx, "zhen", "favorite_color", "blue", 0.9, "My favorite color is blue")
	require.NoError(t, err)
	_, err = s.PutFact(ctx, "zhen", "employer", "Google", 0.9, "I work at Google")
	require.NoError(t, err)
	_, err = s.PutFact(ctx, "zhen", "hobby", "hiking", 0.8, "I love hiking")
	require.NoError(t, err)

	updated, err := s.UpdateFact(ctx, "zhen", "favorite_color", "red", 0.95, "My favorite color is red", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Revision)
	assert.True(t, !updated.UpdatedAt.Before(updated.CreatedAt))

	require.NoError(t, s.DeleteFact(ctx, "zhen", "employer"))

	facts, token, err := s.ListFacts(ctx, "zhen", 0, "")
	require.NoError(t, err)
	assert.Empty(t, token)
	require.Len(t, facts, 2)
	// insertion order survives the update
	assert.Equal(t, "favorite_color", facts[0].Key)
	assert.Equal(t, "red", facts[0].Value)
	assert.Equal(t, "hobby", facts[1].Key)
}

func TestStore_PutExistingKeyFails(t *testing.T) {
	p := newTestPersona(t)
	s := persona.NewStore(p)
	ctx := context.Background()

	_, err := s.PutFact(ctx, "zhen", "favorite_color", "blue", 0.9, "My favorite color is blue")
	require.NoError(t, err)

	_, err = s.PutFact(ctx, "zhen", "Favorite Color ", "green", 0.9, "My favorite color is green")
	assert.ErrorIs(t, err, persona.ErrKeyExists, "normalized keys collide")

	// the original fact is untouched
	fact, err := s.GetFact(ctx, "zhen", "favorite_color")
	require.NoError(t, err)
	assert.Equal(t, "blue", fact.Value)
	assert.Equal(t, int64(1), fact.Revision)
}

func TestStore_SubjectsAreIsolated(t *testing.T) {
	p := newTestPersona(t)
	s := persona.NewStore(p)
	ctx := context.Background()

	_, err := s.PutFact(ctx, "zhen", "hobby", "hiking", 0.8, "I love hiking")
	require.NoError(t, err)
	_, err = s.PutFact(ctx, "li", "hobby", "chess", 0.8, "I love chess")
	require.NoError(t, err)

	fact, err := s.GetFact(ctx, "li", "hobby")
	require.NoError(t, err)
	assert.Equal(t, "chess", fact.Value)

	facts, _, err := s.ListFacts(ctx, "zhen", 0, "")
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, "hiking", facts[0].Value)
}

func TestStore_StaleRevisionConflicts(t *testing.T) {
	p := newTestPersona(t)
	s := persona.NewStore(p)
	ctx := context.Background()

	_, err := s.PutFact(ctx, "zhen", "location", "Shanghai", 0.9, "I live in Shanghai")
	require.NoError(t, err)

	_, err = s.UpdateFact(ctx, "zhen", "location", "Hangzhou", 0.9, "I live in Hangzhou", 1)
	require.NoError(t, err)

	_, err = s.UpdateFact(ctx, "zhen", "location", "Beijing", 0.9, "I live in Beijing", 1)
	assert.ErrorIs(t, err, persona.ErrRevisionConflict)

	fact, err := s.GetFact(ctx, "zhen", "location")
	require.NoError(t, err)
	assert.Equal(t, "Hangzhou", fact.Value, "stale update must not clobber")
	assert.Equal(t, int64(2), fact.Revision)
}

func TestStore_MissingKeyErrors(t *testing.T) {
	p := newTestPersona(t)
	s := persona.NewStore(p)
	ctx := context.Background()

	_, err := s.PutFact(ctx, "zhen", "hobby", "hiking", 0.8, "I love hiking")
	require.NoError(t, err)

	_, err = s.GetFact(ctx, "zhen", "nope")
	assert.ErrorIs(t, err, persona.ErrNotFound)

	err = s.DeleteFact(ctx, "zhen", "nope")
	assert.ErrorIs(t, err, persona.ErrNotFound)

	_, err = s.UpdateFact(ctx, "zhen", "nope", "x", 0.9, "src", 1)
	assert.ErrorIs(t, err, persona.ErrNotFound)
}

func TestStore_ValidationAtBoundary(t *testing.T) {
	p := newTestPersona(t)
	s := persona.NewStore(p)
	ctx := context.Background()

	_, err := s.PutFact(ctx, "zhen", "hobby", "  ", 0.8, "I love hiking")
	assert.ErrorIs(t, err, persona.ErrValidationFailed, "empty value")

	_, err = s.PutFact(ctx, "zhen", "hobby", "hiking", 1.2, "I love hiking")
	assert.ErrorIs(t, err, persona.ErrValidationFailed, "confidence out of range")

	_, err = s.PutFact(ctx, "zhen", "hobby", "hiking", -0.1, "I love hiking")
	assert.ErrorIs(t, err, persona.ErrValidationFailed, "negative confidence")

	_, err = s.PutFact(ctx, "zhen", "hobby", "hiking", 0.8, "")
	assert.ErrorIs(t, err, persona.ErrValidationFailed, "write without provenance")

	_, err = s.PutFact(ctx, "zhen", " ?! ", "hiking", 0.8, "I love hiking")
	assert.ErrorIs(t, err, persona.ErrValidationFailed, "key normalizes to nothing")
}

func TestStore_Pagination(t *testing.T) {
	p := newTestPersona(t)
	s := persona.NewStore(p)
	ctx := context.Background()

	keys := []string{"a", "b", "c", "d", "e"}
	for _, k := range keys {
		_, err := s.PutFact(ctx, "zhen", k, "v_"+k, 0.9, "statement about "+k)
		require.NoError(t, err)
	}

	var got []string
	token := ""
	for page := 0; page < 4; page++ {
		facts, next, err := s.ListFacts(ctx, "zhen", 2, token)
		require.NoError(t, err)
		for _, f := range facts {
			got = append(got, f.Key)
		}
		if next == "" {
			break
		}
		token = next
	}
	assert.Equal(t, keys, got, "pagination walks every fact once, in insertion order")
}

func TestStore_SearchRanking(t *testing.T) {
	p := newTestPersona(t)
	s := persona.NewStore(p)
	ctx := context.Background()

	_, err := s.PutFact(ctx, "zhen", "favorite_color", "blue", 0.9, "My favorite color is blue")
	require.NoError(t, err)
	_, err = s.PutFact(ctx, "zhen", "employer", "Google", 0.9, "I work at Google")
	require.NoError(t, err)

	facts, err := s.SearchFacts(ctx, "zhen", "color")
	require.NoError(t, err)
	require.NotEmpty(t, facts)
	assert.Equal(t, "favorite_color", facts[0].Key)

	none, err := s.SearchFacts(ctx, "zhen", "quantum mechanics")
	require.NoError(t, err)
	assert.Empty(t, none, "zero-score facts are omitted")
}

func TestStore_SearchTiebreakMostRecentFirst(t *testing.T) {
	p := newTestPersona(t)
	s := persona.NewStore(p)
	ctx := context.Background()

	_, err := s.PutFact(ctx, "zhen", "drink", "green tea", 0.9, "I like green tea")
	require.NoError(t, err)
	_, err = s.PutFact(ctx, "zhen", "snack", "tea biscuit", 0.9, "I like tea biscuit")
	require.NoError(t, err)

	facts, err := s.SearchFacts(ctx, "zhen", "tea")
	require.NoError(t, err)
	require.Len(t, facts, 2)
	assert.Equal(t, "snack", facts[0].Key, "equal scores break toward the later update")

	// updating the older fact flips the order
	_, err = s.UpdateFact(ctx, "zhen", "drink", "black tea", 0.9, "I like black tea", 1)
	require.NoError(t, err)

	facts, err = s.SearchFacts(ctx, "zhen", "tea")
	require.NoError(t, err)
	require.Len(t, facts, 2)
	assert.Equal(t, "drink", facts[0].Key)
}

func TestStore_SubjectInsertFailureIsNotMasked(t *testing.T) {
	db := openTestDB(t)
	p := persona.New(persona.WithStorageConn(db))
	require.NoError(t, p.Storage.Build())
	s := persona.NewStore(p)
	ctx := context.Background()

	// A non-uniqueness insert failure must surface, not be rewritten into
	// a not-found from the race-loser fallback read.
	_, err := db.Exec(`CREATE TRIGGER block_subject_insert BEFORE INSERT ON persona_subject
		BEGIN SELECT RAISE(ABORT, 'subject insert blocked'); END`)
	require.NoError(t, err)

	_, err = s.PutFact(ctx, "zhen", "hobby", "hiking", 0.8, "I love hiking")
	require.Error(t, err)
	assert.NotErrorIs(t, err, persona.ErrNotFound)
	assert.Contains(t, err.Error(), "subject insert blocked")
}

func TestStore_ConcurrentPutsExactlyOneWins(t *testing.T) {
	p := newTestPersona(t)
	s := persona.NewStore(p)
	ctx := context.Background()

	const writers = 8
	errs := make([]error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.PutFact(ctx, "zhen", "hometown", "Hangzhou", 0.9, "My hometown is Hangzhou")
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		default:
			assert.ErrorIs(t, err, persona.ErrKeyExists)
		}
	}
	assert.Equal(t, 1, wins)
}

func TestStore_ConcurrentStaleUpdatesLoseOnce(t *testing.T) {
	p := newTestPersona(t)
	s := persona.NewStore(p)
	ctx := context.Background()

	_, err := s.PutFact(ctx, "zhen", "mood", "calm", 0.9, "I feel calm")
	require.NoError(t, err)

	const writers = 6
	errs := make([]error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.UpdateFact(ctx, "zhen", "mood", "busy", 0.9, "I feel busy", 1)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		default:
			assert.ErrorIs(t, err, persona.ErrRevisionConflict)
		}
	}
	assert.Equal(t, 1, wins, "expected exactly one update against revision 1")

	fact, err := s.GetFact(ctx, "zhen", "mood")
	require.NoError(t, err)
	assert.Equal(t, int64(2), fact.Revision, "no lost updates")
}
