package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Skufu/triage/internal/engine"
	"github.com/Skufu/triage/internal/symptom"
)

// ErrNotFound is returned by caches for sessions they do not hold.
var ErrNotFound = errors.New("session not found")

// Session is one evaluation: its full input, ranked results and summary.
// It is never mutated after New returns.
type Session struct {
	ID      uuid.UUID       `json:"sessionId"`
	Request engine.Request  `json:"request"`
	Results []engine.Result `json:"results"`
	engine.Summary
	CreatedAt time.Time `json:"createdAt"`
}

// New copies req and results so later changes by the caller cannot reach
// the session.
func New(req engine.Request, results []engine.Result, now time.Time) *Session {
	out := make([]engine.Result, len(results))
	for i, r := range results {
		out[i] = r.Clone()
	}
	return &Session{
		ID:        uuid.New(),
		Request:   req.Clone(),
		Results:   out,
		Summary:   engine.Summarize(out),
		CreatedAt: now.UTC(),
	}
}

// Linked returns the symptom names recorded as linkage rows: the matching
// symptoms of the top-ranked disease. The fallback result links nothing.
func (s *Session) Linked() []symptom.Name {
	if len(s.Results) == 0 || s.Results[0].Disease == engine.FallbackDisease {
		return nil
	}
	out := make([]symptom.Name, len(s.Results[0].MatchingSymptoms))
	copy(out, s.Results[0].MatchingSymptoms)
	return out
}

// Store is the append-only record store.
type Store interface {
	Save(ctx context.Context, s *Session) error
}

// PatientDirectory resolves a patient's age from the record store.
type PatientDirectory interface {
	PatientAge(ctx context.Context, id uuid.UUID) (age int, ok bool, err error)
}

// Cache keeps recent sessions for report download.
type Cache interface {
	Put(ctx context.Context, s *Session) error
	Get(ctx context.Context, id uuid.UUID) (*Session, error)
}

// PersistenceError reports a session whose durable write failed.
type PersistenceError struct {
	SessionID uuid.UUID
	Err       error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist session %s: %v", e.SessionID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
