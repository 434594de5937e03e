package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ruralmed/ruralmed/pkg/gateway/config"
	"github.com/ruralmed/ruralmed/pkg/gateway/extraction"
	"github.com/ruralmed/ruralmed/pkg/gateway/store"
)

type nilStore struct{}

func (nilStore) Create(ctx context.Context, rec *store.PatientRecord) (int64, error) { return 1, nil }
func (nilStore) Update(ctx context.Context, id int64, rec *store.PatientRecord) (bool, error) {
	return false, nil
}
func (nilStore) Get(ctx context.Context, id int64) (*store.PatientRecord, error) { return nil, nil }
func (nilStore) List(ctx context.Context) ([]*store.PatientRecord, error)       { return nil, nil }
func (nilStore) Delete(ctx context.Context, id int64) error                     { return nil }
func (nilStore) SetSummary(ctx context.Context, id int64, text string) error    { return nil }

type nilConnector struct{}

func (nilConnector) Connect(ctx context.Context) (extraction.Stream, error) { return nil, nil }

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := New(Dependencies{
		Config:    config.Config{MetricsNamespace: "ruralmed_test"},
		Logger:    slog.New(slog.NewJSONHandler(io.Discard, nil)),
		Store:     nilStore{},
		Connector: nilConnector{},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestServer_CoreRoutesReachable(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	cases := []struct {
		method, path string
		wantStatus   int
	}{
		{http.MethodGet, "/healthz", 200},
		{http.MethodGet, "/metrics", 200},
		{http.MethodGet, "/api/patients", 200},
		{http.MethodPost, "/api/generate-note", 200},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		var body io.Reader
		if tc.method == http.MethodPost {
			body = strings.NewReader("{}")
		}
		h.ServeHTTP(rr, httptest.NewRequest(tc.method, tc.path, body))
		if rr.Code != tc.wantStatus {
			t.Fatalf("%s %s: status=%d, want %d; body=%q", tc.method, tc.path, rr.Code, tc.wantStatus, rr.Body.String())
		}
	}
}

func TestServer_SetsRequestIDHeader(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if got := rr.Header().Get("X-Request-ID"); got == "" {
		t.Fatal("X-Request-ID header not set")
	}
}

func TestServer_DrainingRefusesNewConsultations(t *testing.T) {
	s := newTestServer(t)
	s.SetDraining(true)

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ws/live-consultation", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d, want 503", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "draining") {
		t.Fatalf("body=%q", rr.Body.String())
	}

	// Plain API endpoints still work during drain.
	rr = httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/patients", nil))
	if rr.Code != 200 {
		t.Fatalf("patients during drain: status=%d", rr.Code)
	}
}

func TestServer_MethodPatternsEnforced(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/commit", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET /api/commit: status=%d, want 405", rr.Code)
	}
}
