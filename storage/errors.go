package storage

import (
	"errors"
	"strings"
)

var (
	ErrNoAdapter = errors.New("no adapter registered for connection type")

	// ErrKeyExists is returned by FactRepo.Insert when a fact with the same
	// (subject, key) pair is already stored. The backing store's unique
	// constraint decides the winner of concurrent inserts.
	ErrKeyExists = errors.New("fact key already exists")

	// ErrRevisionConflict is returned by FactRepo.Update when the stored
	// revision no longer matches the caller's expected revision.
	ErrRevisionConflict = errors.New("fact revision conflict")

	ErrNotFound = errors.New("not found")
)

// isUniqueViolation detects unique-constraint failures across SQL backends
// by message, since database/sql exposes no portable error code.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || // sqlite
		strings.Contains(msg, "SQLSTATE 23505") || // pgx
		strings.Contains(msg, "duplicate key value") // postgres
}
