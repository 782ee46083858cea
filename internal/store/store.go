// Package store is the persistence gateway for session documents. Two
// implementations exist: Postgres for production and a file store for
// development and tests. Both offer the same optimistic-concurrency
// contract: Save checks the version the caller read and reports a
// conflict as a value, never a panic, so the coordinator can run its
// retry-once policy.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no session exists for a code.
	ErrNotFound = errors.New("session not found")
	// ErrConflict is returned when a Save loses a version race.
	ErrConflict = errors.New("session version conflict")
	// ErrExists is returned when inserting a code already in use.
	ErrExists = errors.New("session code already exists")
)

// Filter narrows a List call. Zero values mean "don't filter on this".
type Filter struct {
	Statuses      []Status
	UpdatedBefore time.Time
}

func (f Filter) matches(doc *SessionDoc) bool {
	if len(f.Statuses) > 0 {
		ok := false
		for _, s := range f.Statuses {
			if doc.Status == s {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if !f.UpdatedBefore.IsZero() && !doc.UpdatedAt.Before(f.UpdatedBefore) {
		return false
	}
	return true
}

// SessionStore is the durable-storage contract the coordinator and the
// cleanup utility depend on.
type SessionStore interface {
	// Load fetches a session document by code. Returns ErrNotFound
	// when absent.
	Load(ctx context.Context, code string) (*SessionDoc, error)
	// Save writes the document. A zero Version inserts; a non-zero
	// Version updates only if the stored version still matches, and
	// returns ErrConflict otherwise. On success the document's
	// Version is advanced in place.
	Save(ctx context.Context, doc *SessionDoc) error
	// Delete removes a session by code. Deleting a missing session is
	// not an error.
	Delete(ctx context.Context, code string) error
	// List returns documents matching the filter. Used only by the
	// cleanup and lobby-browse paths.
	List(ctx context.Context, f Filter) ([]*SessionDoc, error)
}
