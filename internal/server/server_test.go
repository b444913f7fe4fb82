package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Skufu/triage/internal/platform/logger"
	"github.com/Skufu/triage/internal/profile"
	"github.com/Skufu/triage/internal/session"
	"github.com/Skufu/triage/internal/sessioncache"
)

type fakeDB struct {
	err error
}

func (f fakeDB) Ping(ctx context.Context) error {
	return f.err
}

type failingStore struct{}

func (failingStore) Save(context.Context, *session.Session) error {
	return errors.New("store unreachable")
}

func newTestRouter(t *testing.T, opts session.Options, db HealthChecker) (*gin.Engine, *session.Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	rules, err := profile.Default()
	if err != nil {
		t.Fatalf("load profiles: %v", err)
	}
	log := logger.NewWithWriter(io.Discard, "test", logger.LevelError)
	opts.Logger = &log
	svc := session.NewService(rules, opts)
	return NewRouter(svc, db, log), svc
}

func do(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, _ := http.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	router.ServeHTTP(w, req)
	return w
}

const malariaBody = `{
	"selectedSymptoms": ["Fever", "Chills", "Sweating"],
	"observations": {
		"Fever": {"severity": "severe"},
		"Chills": {"severity": "severe"},
		"Sweating": {"severity": "severe"}
	}
}`

func TestRouterHealthz(t *testing.T) {
	router, _ := newTestRouter(t, session.Options{}, fakeDB{})

	w := do(router, "GET", "/healthz", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func TestRouterReadyz(t *testing.T) {
	router, _ := newTestRouter(t, session.Options{}, nil)
	w := do(router, "GET", "/readyz", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"db":"disabled"`) {
		t.Fatalf("expected disabled db, got %d %s", w.Code, w.Body.String())
	}

	router, _ = newTestRouter(t, session.Options{}, fakeDB{err: errors.New("connection refused")})
	w = do(router, "GET", "/readyz", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "connection refused") {
		t.Fatalf("expected ping error in body, got %s", w.Body.String())
	}
}

// Ensure limitBodySize middleware allows small payloads and blocks large ones.
func TestLimitBodySize(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(limitBodySize(10))
	router.POST("/echo", func(c *gin.Context) {
		_, err := c.GetRawData()
		if err != nil {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "too large"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	t.Run("within limit", func(t *testing.T) {
		w := do(router, "POST", "/echo", "12345")
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
	})

	t.Run("over limit", func(t *testing.T) {
		w := do(router, "POST", "/echo", "01234567890")
		if w.Code != http.StatusRequestEntityTooLarge {
			t.Fatalf("expected 413, got %d", w.Code)
		}
	})
}

func TestDiagnosisTooLarge(t *testing.T) {
	router, _ := newTestRouter(t, session.Options{}, nil)
	body := `{"selectedSymptoms": ["` + strings.Repeat("x", maxBodyBytes) + `"]}`
	w := do(router, "POST", "/api/diagnosis", body)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", w.Code)
	}
}

func TestDiagnosisValidation(t *testing.T) {
	router, _ := newTestRouter(t, session.Options{}, nil)

	w := do(router, "POST", "/api/diagnosis", `{
		"selectedSymptoms": ["Fever"],
		"observations": {"Chills": {"severity": "mild"}}
	}`)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for validation failure, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "validation_failed") || !strings.Contains(body, `"field":"observations.Chills"`) {
		t.Fatalf("expected validation error response, got %s", body)
	}
}

func TestDiagnosisValidationCases(t *testing.T) {
	router, _ := newTestRouter(t, session.Options{}, nil)
	cases := map[string]string{
		"riskFactors.time_travel": `{"selectedSymptoms": ["Fever"], "riskFactors": {"time_travel": true}}`,
		"patientAge":              `{"selectedSymptoms": ["Fever"], "patientAge": -3}`,
		"selectedSymptoms[0]":     `{"selectedSymptoms": ["Hiccups"]}`,
	}
	for field, payload := range cases {
		w := do(router, "POST", "/api/diagnosis", payload)
		if w.Code != http.StatusUnprocessableEntity {
			t.Fatalf("%s: expected 422, got %d", field, w.Code)
		}
		var resp map[string]string
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("%s: decode: %v", field, err)
		}
		if resp["field"] != field || resp["message"] == "" {
			t.Fatalf("expected field %s with message, got %v", field, resp)
		}
	}
}

func TestDiagnosisAcceptsExplicitUnset(t *testing.T) {
	router, _ := newTestRouter(t, session.Options{}, nil)
	w := do(router, "POST", "/api/diagnosis", `{
		"selectedSymptoms": ["Fever"],
		"observations": {"Fever": {"severity": "unset", "duration": "unset"}}
	}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for unset qualifiers, got %d: %s", w.Code, w.Body.String())
	}
}

func TestDiagnosisMalformed(t *testing.T) {
	router, _ := newTestRouter(t, session.Options{}, nil)
	w := do(router, "POST", "/api/diagnosis", `{"selectedSymptoms": "Fever"`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestDiagnosisScenario(t *testing.T) {
	router, _ := newTestRouter(t, session.Options{Cache: sessioncache.NewMemory(8)}, nil)

	w := do(router, "POST", "/api/diagnosis", malariaBody)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp diagnosisResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.TopDisease != "Malaria" || resp.TopConfidence != 79 || !resp.AnyRequiresLabTests {
		t.Fatalf("unexpected summary: %+v", resp)
	}
	if len(resp.Results) != 3 || resp.Results[0].ConfidenceLevel != profile.BandHigh {
		t.Fatalf("unexpected results: %+v", resp.Results)
	}
	if resp.SessionID == uuid.Nil {
		t.Fatal("expected a session id")
	}
}

func TestDiagnosisEmptySelectionFallsBack(t *testing.T) {
	router, _ := newTestRouter(t, session.Options{}, nil)
	w := do(router, "POST", "/api/diagnosis", `{"selectedSymptoms": []}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Medical Evaluation Needed") {
		t.Fatalf("expected fallback result, got %s", w.Body.String())
	}
}

func TestDiagnosisSurvivesStoreFailure(t *testing.T) {
	router, svc := newTestRouter(t, session.Options{Store: failingStore{}}, nil)

	w := do(router, "POST", "/api/diagnosis", malariaBody)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 despite store failure, got %d", w.Code)
	}
	var resp diagnosisResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := svc.Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}

	w = do(router, "GET", "/api/sessions/unrecorded", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), resp.SessionID.String()) {
		t.Fatalf("expected %s listed as unrecorded, got %s", resp.SessionID, w.Body.String())
	}
}

func TestReportDownload(t *testing.T) {
	router, _ := newTestRouter(t, session.Options{Cache: sessioncache.NewMemory(8)}, nil)

	w := do(router, "POST", "/api/diagnosis", malariaBody)
	var resp diagnosisResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	base := "/api/sessions/" + resp.SessionID.String() + "/report"

	w = do(router, "GET", base, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.HasPrefix(w.Header().Get("Content-Type"), "text/plain") {
		t.Fatalf("unexpected content type %q", w.Header().Get("Content-Type"))
	}
	if !strings.Contains(w.Header().Get("Content-Disposition"), ".txt") {
		t.Fatalf("unexpected disposition %q", w.Header().Get("Content-Disposition"))
	}
	if !strings.Contains(w.Body.String(), "Top Disease: Malaria") {
		t.Fatalf("unexpected report: %s", w.Body.String())
	}

	w = do(router, "GET", base+"?format=pdf", "")
	if w.Code != http.StatusOK || !bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF-")) {
		t.Fatalf("expected pdf, got %d", w.Code)
	}

	w = do(router, "GET", base+"?format=docx", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown format, got %d", w.Code)
	}
}

func TestReportNotFound(t *testing.T) {
	router, _ := newTestRouter(t, session.Options{Cache: sessioncache.NewMemory(8)}, nil)

	w := do(router, "GET", "/api/sessions/"+uuid.NewString()+"/report", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	w = do(router, "GET", "/api/sessions/not-a-uuid/report", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestCatalogEndpoints(t *testing.T) {
	router, _ := newTestRouter(t, session.Options{}, nil)

	w := do(router, "GET", "/api/symptoms", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"name":"Bleeding Gums"`) {
		t.Fatalf("unexpected symptoms response: %d %s", w.Code, w.Body.String())
	}

	w = do(router, "GET", "/api/risk-factors", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"key":"recent_travel"`) {
		t.Fatalf("unexpected risk factors response: %d %s", w.Code, w.Body.String())
	}

	w = do(router, "GET", "/api/profiles", "")
	var resp struct {
		Profiles []profileView `json:"profiles"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Profiles) != 4 || resp.Profiles[0].Name != "Malaria" || resp.Profiles[0].Thresholds.High != 15 {
		t.Fatalf("unexpected profiles: %+v", resp.Profiles)
	}
}
