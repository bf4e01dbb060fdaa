package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// sqlTime serializes timestamps as RFC3339Nano text so both sqlite and
// postgres round-trip them losslessly through decodeAnyTime.
func sqlTime(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

type sqlSubjectRepo struct {
	db      *sql.DB
	dialect string
}

func (r *sqlSubjectRepo) Ensure(ctx context.Context, externalID string) (int64, error) {
	if id, err := r.GetByExternalID(ctx, externalID); err == nil {
		return id, nil
	}

	var query string
	if r.dialect == "postgres" {
		query = "INSERT INTO persona_subject (uuid, external_id, date_created) VALUES ($1, $2, $3) RETURNING id"
	} else {
		query = "INSERT INTO persona_subject (uuid, external_id, date_created) VALUES (?, ?, ?) RETURNING id"
	}

	var id int64
	err := r.db.QueryRowContext(ctx, query, uuid.New().String(), externalID, sqlTime(time.Now().UTC())).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			// Another writer created the subject first.
			return r.GetByExternalID(ctx, externalID)
		}
		return 0, err
	}
	return id, nil
}

func (r *sqlSubjectRepo) GetByExternalID(ctx context.Context, externalID string) (int64, error) {
	query := "SELECT id FROM persona_subject WHERE external_id = ?"
	if r.dialect == "postgres" {
		query = "SELECT id FROM persona_subject WHERE external_id = $1"
	}
	var id int64
	err := r.db.QueryRowContext(ctx, query, externalID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("subject %q: %w", externalID, ErrNotFound)
	}
	return id, err
}

type sqlFactRepo struct {
	db      *sql.DB
	dialect string
}

const sqlFactColumns = "id, uuid, subject_id, key, value, confidence, source_statement, revision, date_created, date_updated"

func (r *sqlFactRepo) Insert(ctx context.Context, subjectID int64, key, value string, confidence float64, source string) (*FactRecord, error) {
	var query string
	if r.dialect == "postgres" {
		query = "INSERT INTO persona_fact (uuid, subject_id, key, value, confidence, source_statement, revision, date_created, date_updated) VALUES ($1, $2, $3, $4, $5, $6, 1, $7, $8) RETURNING id"
	} else {
		query = "INSERT INTO persona_fact (uuid, subject_id, key, value, confidence, source_statement, revision, date_created, date_updated) VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?) RETURNING id"
	}

	u := uuid.New().String()
	now := time.Now().UTC()

	var id int64
	err := r.db.QueryRowContext(ctx, query, u, subjectID, key, value, confidence, source, sqlTime(now), sqlTime(now)).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("fact %q: %w", key, ErrKeyExists)
		}
		return nil, err
	}

	return &FactRecord{
		ID:              id,
		UUID:            u,
		SubjectID:       subjectID,
		Key:             key,
		Value:           value,
		Confidence:      confidence,
		SourceStatement: source,
		Revision:        1,
		DateCreated:     now,
		DateUpdated:     now,
	}, nil
}

func (r *sqlFactRepo) Update(ctx context.Context, subjectID int64, key, value string, confidence float64, source string, expectedRevision int64) (*FactRecord, error) {
	var query string
	if r.dialect == "postgres" {
		query = "UPDATE persona_fact SET value = $1, confidence = $2, source_statement = $3, revision = revision + 1, date_updated = $4 WHERE subject_id = $5 AND key = $6 AND revision = $7"
	} else {
		query = "UPDATE persona_fact SET value = ?, confidence = ?, source_statement = ?, revision = revision + 1, date_updated = ? WHERE subject_id = ? AND key = ? AND revision = ?"
	}

	res, err := r.db.ExecContext(ctx, query, value, confidence, source, sqlTime(time.Now().UTC()), subjectID, key, expectedRevision)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		// Distinguish a missing key from a lost-update race.
		if _, err := r.Get(ctx, subjectID, key); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("fact %q: expected revision %d: %w", key, expectedRevision, ErrRevisionConflict)
	}
	return r.Get(ctx, subjectID, key)
}

func (r *sqlFactRepo) Delete(ctx context.Context, subjectID int64, key string) error {
	query := "DELETE FROM persona_fact WHERE subject_id = ? AND key = ?"
	if r.dialect == "postgres" {
		query = "DELETE FROM persona_fact WHERE subject_id = $1 AND key = $2"
	}
	res, err := r.db.ExecContext(ctx, query, subjectID, key)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("fact %q: %w", key, ErrNotFound)
	}
	return nil
}

func (r *sqlFactRepo) Get(ctx context.Context, subjectID int64, key string) (*FactRecord, error) {
	query := "SELECT " + sqlFactColumns + " FROM persona_fact WHERE subject_id = ? AND key = ?"
	if r.dialect == "postgres" {
		query = "SELECT " + sqlFactColumns + " FROM persona_fact WHERE subject_id = $1 AND key = $2"
	}
	rec, err := scanFact(r.db.QueryRowContext(ctx, query, subjectID, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("fact %q: %w", key, ErrNotFound)
	}
	return rec, err
}

func (r *sqlFactRepo) List(ctx context.Context, subjectID int64, limit int, afterID int64) ([]FactRecord, error) {
	if limit <= 0 {
		limit = 1000
	}
	query := "SELECT " + sqlFactColumns + " FROM persona_fact WHERE subject_id = ? AND id > ? ORDER BY id ASC LIMIT ?"
	if r.dialect == "postgres" {
		query = "SELECT " + sqlFactColumns + " FROM persona_fact WHERE subject_id = $1 AND id > $2 ORDER BY id ASC LIMIT $3"
	}
	rows, err := r.db.QueryContext(ctx, query, subjectID, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FactRecord
	for rows.Next() {
		rec, err := scanFact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (r *sqlFactRepo) Keys(ctx context.Context, subjectID int64) ([]string, error) {
	query := "SELECT key FROM persona_fact WHERE subject_id = ? ORDER BY id ASC"
	if r.dialect == "postgres" {
		query = "SELECT key FROM persona_fact WHERE subject_id = $1 ORDER BY id ASC"
	}
	rows, err := r.db.QueryContext(ctx, query, subjectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (r *sqlFactRepo) Search(ctx context.Context, subjectID int64, query string, limit int) ([]FactRecord, error) {
	recs, err := r.List(ctx, subjectID, 0, 0)
	if err != nil {
		return nil, err
	}
	return rankFacts(query, recs, limit), nil
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanFact(row rowScanner) (*FactRecord, error) {
	var rec FactRecord
	var created, updated any
	err := row.Scan(
		&rec.ID, &rec.UUID, &rec.SubjectID, &rec.Key, &rec.Value,
		&rec.Confidence, &rec.SourceStatement, &rec.Revision,
		&created, &updated,
	)
	if err != nil {
		return nil, err
	}
	rec.DateCreated, _ = decodeAnyTime(created)
	rec.DateUpdated, _ = decodeAnyTime(updated)
	return &rec, nil
}

type sqlAuditRepo struct {
	db      *sql.DB
	dialect string
}

func (r *sqlAuditRepo) Append(ctx context.Context, subjectID int64, key, op, value string, confidence float64, source string, revision int64) error {
	var query string
	if r.dialect == "postgres" {
		query = "INSERT INTO persona_fact_audit (uuid, subject_id, key, op, value, confidence, source_statement, revision, date_created) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)"
	} else {
		query = "INSERT INTO persona_fact_audit (uuid, subject_id, key, op, value, confidence, source_statement, revision, date_created) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)"
	}
	_, err := r.db.ExecContext(ctx, query, uuid.New().String(), subjectID, key, op, value, confidence, source, revision, sqlTime(time.Now().UTC()))
	return err
}
