package persona

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"personigo/storage"
)

// Store is the permission-agnostic knowledge store: validation, key
// normalization and persistence for one backing store. Callers enforce the
// permission gate before mutating through it.
type Store struct {
	p *Persona
}

func NewStore(p *Persona) *Store {
	return &Store{p: p}
}

func (s *Store) driver() (storage.Driver, error) {
	if s.p.Storage == nil || s.p.Storage.Driver() == nil {
		return nil, errors.New("no storage configured")
	}
	return s.p.Storage.Driver(), nil
}

func validateFactInput(key, value string, confidence float64, source string) error {
	if key == "" {
		return fmt.Errorf("empty key: %w", ErrValidationFailed)
	}
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("empty value for %q: %w", key, ErrValidationFailed)
	}
	if math.IsNaN(confidence) || confidence < 0 || confidence > 1 {
		return fmt.Errorf("confidence %v out of range for %q: %w", confidence, key, ErrValidationFailed)
	}
	if strings.TrimSpace(source) == "" {
		return fmt.Errorf("missing source statement for %q: %w", key, ErrValidationFailed)
	}
	return nil
}

// PutFact inserts a new fact under the normalized key. An occupied key
// fails with ErrKeyExists: teaching and correcting stay distinguishable
// operations.
func (s *Store) PutFact(ctx context.Context, subjectID, key, value string, confidence float64, source string) (Fact, error) {
	drv, err := s.driver()
	if err != nil {
		return Fact{}, err
	}

	key = NormalizeKey(key)
	if err := validateFactInput(key, value, confidence, source); err != nil {
		return Fact{}, err
	}

	sid, err := drv.Subjects().Ensure(ctx, subjectID)
	if err != nil {
		return Fact{}, err
	}

	rec, err := drv.Facts().Insert(ctx, sid, key, value, confidence, source)
	if err != nil {
		return Fact{}, err
	}
	s.audit(ctx, drv, sid, key, "put", rec)
	return factFromRecord(rec), nil
}

// UpdateFact is the explicit correction path, guarded by optimistic
// concurrency: a stale expectedRevision fails with ErrRevisionConflict and
// the caller must re-read before retrying.
func (s *Store) UpdateFact(ctx context.Context, subjectID, key, value string, confidence float64, source string, expectedRevision int64) (Fact, error) {
	drv, err := s.driver()
	if err != nil {
		return Fact{}, err
	}

	key = NormalizeKey(key)
	if err := validateFactInput(key, value, confidence, source); err != nil {
		return Fact{}, err
	}

	sid, err := drv.Subjects().GetByExternalID(ctx, subjectID)
	if err != nil {
		return Fact{}, err
	}

	rec, err := drv.Facts().Update(ctx, sid, key, value, confidence, source, expectedRevision)
	if err != nil {
		return Fact{}, err
	}
	s.audit(ctx, drv, sid, key, "update", rec)
	return factFromRecord(rec), nil
}

func (s *Store) DeleteFact(ctx context.Context, subjectID, key string) error {
	drv, err := s.driver()
	if err != nil {
		return err
	}

	key = NormalizeKey(key)
	sid, err := drv.Subjects().GetByExternalID(ctx, subjectID)
	if err != nil {
		return err
	}

	if err := drv.Facts().Delete(ctx, sid, key); err != nil {
		return err
	}
	s.audit(ctx, drv, sid, key, "delete", nil)
	return nil
}

func (s *Store) GetFact(ctx context.Context, subjectID, key string) (Fact, error) {
	drv, err := s.driver()
	if err != nil {
		return Fact{}, err
	}

	sid, err := drv.Subjects().GetByExternalID(ctx, subjectID)
	if err != nil {
		return Fact{}, err
	}

	rec, err := drv.Facts().Get(ctx, sid, NormalizeKey(key))
	if err != nil {
		return Fact{}, err
	}
	return factFromRecord(rec), nil
}

// ListFacts returns one page of facts in insertion order. The returned
// token restarts listing after the last fact of this page; it is empty when
// the listing is complete.
func (s *Store) ListFacts(ctx context.Context, subjectID string, limit int, token string) ([]Fact, string, error) {
	drv, err := s.driver()
	if err != nil {
		return nil, "", err
	}
	if limit <= 0 {
		limit = s.p.Config.listPageSize()
	}

	sid, err := drv.Subjects().GetByExternalID(ctx, subjectID)
	if errors.Is(err, ErrNotFound) {
		// Subjects exist only once they have facts.
		return nil, "", nil
	}
	if err != nil {
		return nil, "", err
	}

	afterID := int64(0)
	if token != "" {
		afterID, err = strconv.ParseInt(token, 10, 64)
		if err != nil {
			return nil, "", fmt.Errorf("bad pagination token %q: %w", token, ErrValidationFailed)
		}
	}

	recs, err := drv.Facts().List(ctx, sid, limit, afterID)
	if err != nil {
		return nil, "", err
	}

	next := ""
	if len(recs) == limit {
		next = strconv.FormatInt(recs[len(recs)-1].ID, 10)
	}
	return factsFromRecords(recs), next, nil
}

func (s *Store) SearchFacts(ctx context.Context, subjectID, query string) ([]Fact, error) {
	drv, err := s.driver()
	if err != nil {
		return nil, err
	}

	sid, err := drv.Subjects().GetByExternalID(ctx, subjectID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	recs, err := drv.Facts().Search(ctx, sid, query, s.p.Config.searchLimit())
	if err != nil {
		return nil, err
	}
	return factsFromRecords(recs), nil
}

// Keys lists the subject's stored keys, for extraction context and
// collision resolution.
func (s *Store) Keys(ctx context.Context, subjectID string) ([]string, error) {
	drv, err := s.driver()
	if err != nil {
		return nil, err
	}

	sid, err := drv.Subjects().GetByExternalID(ctx, subjectID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return drv.Facts().Keys(ctx, sid)
}

// audit appends to the provenance trail best-effort; a failed audit write
// never fails the mutation it records.
func (s *Store) audit(ctx context.Context, drv storage.Driver, sid int64, key, op string, rec *storage.FactRecord) {
	var value, source string
	var confidence float64
	var revision int64
	if rec != nil {
		value, source = rec.Value, rec.SourceStatement
		confidence, revision = rec.Confidence, rec.Revision
	}
	if err := drv.Audit().Append(ctx, sid, key, op, value, confidence, source, revision); err != nil {
		s.p.log.Warn("audit append failed",
			zap.String("op", op),
			zap.String("key", key),
			zap.Error(err))
	}
}
