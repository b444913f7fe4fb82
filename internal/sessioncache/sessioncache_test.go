package sessioncache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skufu/triage/internal/engine"
	"github.com/Skufu/triage/internal/session"
	"github.com/Skufu/triage/internal/symptom"
)

func newSession() *session.Session {
	age := 8
	return session.New(engine.Request{
		SelectedSymptoms: []symptom.Name{"Fever", "Rash"},
		Observations:     map[symptom.Name]engine.Observation{"Rash": {Duration: engine.DurationDays}},
		RiskFactors:      map[string]bool{"case_contact": true},
		PatientAge:       &age,
	}, []engine.Result{
		{Disease: "Dengue Fever", ConfidencePercentage: 62, ConfidenceLevel: "medium", MatchingSymptoms: []symptom.Name{"Fever", "Rash"}},
	}, time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC))
}

func TestMemory_PutGet(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(2)
	s := newSession()

	require.NoError(t, m.Put(ctx, s))
	got, err := m.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)

	_, err = m.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestMemory_EvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(2)
	a, b, c := newSession(), newSession(), newSession()

	require.NoError(t, m.Put(ctx, a))
	require.NoError(t, m.Put(ctx, b))
	_, err := m.Get(ctx, a.ID) // a becomes most recent
	require.NoError(t, err)
	require.NoError(t, m.Put(ctx, c))

	assert.Equal(t, 2, m.Len())
	_, err = m.Get(ctx, b.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = m.Get(ctx, a.ID)
	assert.NoError(t, err)
}

func TestMemory_DefaultCapacityAndOverwrite(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(0)
	assert.Equal(t, defaultCapacity, m.capacity)

	s := newSession()
	require.NoError(t, m.Put(ctx, s))
	require.NoError(t, m.Put(ctx, s))
	assert.Equal(t, 1, m.Len())
}

func TestRedis_Put(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer db.Close()

	s := newSession()
	buf, err := json.Marshal(s)
	require.NoError(t, err)
	mock.ExpectSet("diagnosis_session:"+s.ID.String(), buf, time.Hour).SetVal("OK")

	require.NoError(t, NewRedis(db, time.Hour).Put(context.Background(), s))
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestRedis_PutError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer db.Close()

	s := newSession()
	buf, err := json.Marshal(s)
	require.NoError(t, err)
	mock.ExpectSet("diagnosis_session:"+s.ID.String(), buf, DefaultTTL).SetErr(errors.New("OOM"))

	err = NewRedis(db, 0).Put(context.Background(), s)
	assert.EqualError(t, err, "OOM")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedis_Get(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer db.Close()

	s := newSession()
	buf, err := json.Marshal(s)
	require.NoError(t, err)
	mock.ExpectGet("diagnosis_session:" + s.ID.String()).SetVal(string(buf))

	got, err := NewRedis(db, time.Hour).Get(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)
	assert.True(t, s.CreatedAt.Equal(got.CreatedAt))
	assert.Equal(t, s.Summary, got.Summary)
	assert.Equal(t, s.Results, got.Results)
	assert.Equal(t, s.Request.SelectedSymptoms, got.Request.SelectedSymptoms)
	assert.Equal(t, s.Request.Observations, got.Request.Observations)
	require.NotNil(t, got.Request.PatientAge)
	assert.Equal(t, 8, *got.Request.PatientAge)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedis_GetMissing(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer db.Close()

	id := uuid.New()
	mock.ExpectGet("diagnosis_session:" + id.String()).RedisNil()

	_, err := NewRedis(db, time.Hour).Get(context.Background(), id)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedis_GetCorrupt(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer db.Close()

	id := uuid.New()
	mock.ExpectGet("diagnosis_session:" + id.String()).SetVal("{not json")

	_, err := NewRedis(db, time.Hour).Get(context.Background(), id)
	assert.ErrorContains(t, err, "decode session")
	assert.NoError(t, mock.ExpectationsWereMet())
}

var (
	_ session.Cache = (*Memory)(nil)
	_ session.Cache = (*Redis)(nil)
)
