package persona_test

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"personigo/extract"
	"personigo/persona"
)

var dbSeq atomic.Int64

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	name := fmt.Sprintf("persona_test_%d", dbSeq.Add(1))
	db, err := sql.Open("sqlite", "file:"+name+"?mode=memory&cache=shared")
	require.NoError(t, err)
	// one connection keeps sqlite from returning busy errors under the
	// concurrency tests; the logical races still happen above the pool
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestPersona(t *testing.T, opts ...persona.Option) *persona.Persona {
	t.Helper()
	db := openTestDB(t)
	opts = append([]persona.Option{persona.WithStorageConn(db)}, opts...)
	p := persona.New(opts...)
	require.NoError(t, p.Storage.Build())
	return p
}

// stubExtractor returns canned candidates, optionally after a delay so
// deadline handling can be exercised.
type stubExtractor struct {
	cands []extract.Candidate
	err   error
	delay time.Duration
}

func (s *stubExtractor) Extract(ctx context.Context, _ string, _ []string) ([]extract.Candidate, error) {
	if s.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.delay):
		}
	}
	return s.cands, s.err
}

func (s *stubExtractor) Provider() string { return "stub" }
