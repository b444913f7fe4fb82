package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Skufu/triage/internal/engine"
	"github.com/Skufu/triage/internal/platform/logger"
	"github.com/Skufu/triage/internal/profile"
)

const (
	DefaultPersistTimeout = 3 * time.Second
	maxUnrecorded         = 4096
)

var errNoStore = errors.New("record store disabled")

type Options struct {
	Store          Store
	Patients       PatientDirectory
	Cache          Cache
	PersistTimeout time.Duration
	Logger         *zerolog.Logger
	Now            func() time.Time
}

// Service evaluates requests and hands the resulting sessions to the record
// store without making callers wait for the write.
type Service struct {
	rules    *profile.Set
	store    Store
	patients PatientDirectory
	cache    Cache
	timeout  time.Duration
	log      zerolog.Logger
	now      func() time.Time

	inflight sync.WaitGroup

	mu         sync.Mutex
	unrecorded []uuid.UUID
}

func NewService(rules *profile.Set, opts Options) *Service {
	s := &Service{
		rules:    rules,
		store:    opts.Store,
		patients: opts.Patients,
		cache:    opts.Cache,
		timeout:  opts.PersistTimeout,
		now:      opts.Now,
	}
	if s.timeout <= 0 {
		s.timeout = DefaultPersistTimeout
	}
	if s.now == nil {
		s.now = time.Now
	}
	if opts.Logger != nil {
		s.log = *opts.Logger
	} else {
		s.log = logger.New("session")
	}
	return s
}

func (s *Service) Rules() *profile.Set { return s.rules }

// Diagnose validates and scores req, caches the session and starts its
// durable write in the background. Only a ValidationError fails the call.
func (s *Service) Diagnose(ctx context.Context, req engine.Request) (*Session, error) {
	if err := engine.Validate(req, s.rules); err != nil {
		return nil, err
	}
	req = s.resolveAge(ctx, req)

	results, err := engine.Diagnose(req, s.rules)
	if err != nil {
		return nil, err
	}
	sess := New(req, results, s.now())

	if s.cache != nil {
		if err := s.cache.Put(ctx, sess); err != nil {
			s.log.Warn().Err(err).Str("session_id", sess.ID.String()).Msg("cache session")
		}
	}

	if s.store != nil {
		s.inflight.Add(1)
		go func() {
			defer s.inflight.Done()
			_, _ = s.Persist(context.WithoutCancel(ctx), sess)
		}()
	}
	return sess, nil
}

// Persist writes sess to the record store within the persist timeout. A
// failure is logged, remembered as unrecorded and returned as a
// *PersistenceError; it never affects the session itself.
func (s *Service) Persist(ctx context.Context, sess *Session) (uuid.UUID, error) {
	err := errNoStore
	if s.store != nil {
		writeCtx, cancel := context.WithTimeout(ctx, s.timeout)
		err = s.store.Save(writeCtx, sess)
		cancel()
	}
	if err == nil {
		s.log.Debug().Str("session_id", sess.ID.String()).Msg("session recorded")
		return sess.ID, nil
	}

	s.markUnrecorded(sess.ID)
	s.log.Warn().
		Err(err).
		Str("session_id", sess.ID.String()).
		Str("top_disease", sess.TopDisease).
		Msg("session not durably recorded")
	return uuid.Nil, &PersistenceError{SessionID: sess.ID, Err: err}
}

// Lookup returns a recently evaluated session from the cache.
func (s *Service) Lookup(ctx context.Context, id uuid.UUID) (*Session, error) {
	if s.cache == nil {
		return nil, ErrNotFound
	}
	return s.cache.Get(ctx, id)
}

// Unrecorded lists the sessions whose durable write failed, oldest first.
func (s *Service) Unrecorded() []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]uuid.UUID, len(s.unrecorded))
	copy(out, s.unrecorded)
	return out
}

// Wait blocks until background writes finish or ctx is done.
func (s *Service) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) markUnrecorded(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.unrecorded) == maxUnrecorded {
		s.unrecorded = s.unrecorded[1:]
	}
	s.unrecorded = append(s.unrecorded, id)
}

// resolveAge fills a missing age from the patient directory. Lookup failures
// leave the age unset.
func (s *Service) resolveAge(ctx context.Context, req engine.Request) engine.Request {
	if req.PatientAge != nil || req.PatientID == nil || s.patients == nil {
		return req
	}
	lookupCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	age, ok, err := s.patients.PatientAge(lookupCtx, *req.PatientID)
	switch {
	case err != nil:
		s.log.Warn().Err(err).Str("patient_id", req.PatientID.String()).Msg("patient age lookup")
	case ok && age >= 0:
		req.PatientAge = &age
	}
	return req
}
