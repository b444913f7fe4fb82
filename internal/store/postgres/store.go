package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Skufu/triage/internal/session"
)

const (
	insertSession = `
INSERT INTO diagnosis_sessions (
    id, patient_id, symptoms, observations, risk_factors, patient_age,
    top_disease, top_confidence, requires_lab_tests, results, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	insertLinkage = `
INSERT INTO diagnosis_session_symptoms (session_id, symptom, position)
VALUES ($1, $2, $3)`

	selectPatientAge = `SELECT age FROM patients WHERE id = $1`
)

// DB is the subset of *pgxpool.Pool the store uses.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// Store writes diagnosis sessions to Postgres. It never reads sessions back.
type Store struct {
	db DB
}

func New(db DB) *Store {
	return &Store{db: db}
}

// Connect opens a pool and checks it answers within five seconds.
func Connect(ctx context.Context, url string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse db url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return pool, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Save inserts the session row and its symptom linkage rows in one
// transaction.
func (s *Store) Save(ctx context.Context, sess *session.Session) error {
	rec, err := newRecord(sess)
	if err != nil {
		return err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, insertSession, rec.args()...); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	if len(rec.linked) > 0 {
		batch := &pgx.Batch{}
		for i, name := range rec.linked {
			batch.Queue(insertLinkage, rec.id, name, i)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert symptom links: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// PatientAge reads a patient's recorded age. A missing patient or a null age
// reports ok=false.
func (s *Store) PatientAge(ctx context.Context, id uuid.UUID) (int, bool, error) {
	var age *int32
	err := s.db.QueryRow(ctx, selectPatientAge, id).Scan(&age)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("select patient age: %w", err)
	}
	if age == nil {
		return 0, false, nil
	}
	return int(*age), true, nil
}

type record struct {
	id               uuid.UUID
	patientID        *uuid.UUID
	symptoms         []string
	observations     []byte
	riskFactors      []byte
	patientAge       *int
	topDisease       string
	topConfidence    int
	requiresLabTests bool
	results          []byte
	createdAt        time.Time
	linked           []string
}

func newRecord(sess *session.Session) (record, error) {
	req := sess.Request
	rec := record{
		id:               sess.ID,
		patientID:        req.PatientID,
		symptoms:         make([]string, 0, len(req.SelectedSymptoms)),
		patientAge:       req.PatientAge,
		topDisease:       sess.TopDisease,
		topConfidence:    sess.TopConfidence,
		requiresLabTests: sess.AnyRequiresLabTests,
		createdAt:        sess.CreatedAt,
	}
	for _, s := range req.SelectedSymptoms {
		rec.symptoms = append(rec.symptoms, string(s))
	}
	for _, s := range sess.Linked() {
		rec.linked = append(rec.linked, string(s))
	}

	var err error
	if rec.observations, err = marshalObject(req.Observations); err != nil {
		return record{}, fmt.Errorf("encode observations: %w", err)
	}
	if rec.riskFactors, err = marshalObject(req.RiskFactors); err != nil {
		return record{}, fmt.Errorf("encode risk factors: %w", err)
	}
	if rec.results, err = json.Marshal(sess.Results); err != nil {
		return record{}, fmt.Errorf("encode results: %w", err)
	}
	return rec, nil
}

func (r record) args() []any {
	return []any{
		r.id, r.patientID, r.symptoms, r.observations, r.riskFactors, r.patientAge,
		r.topDisease, r.topConfidence, r.requiresLabTests, r.results, r.createdAt,
	}
}

// marshalObject encodes a map as a JSON object, writing {} for nil.
func marshalObject[M ~map[K]V, K comparable, V any](m M) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}
