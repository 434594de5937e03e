package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ruralmed/ruralmed/pkg/gateway/store"
	"github.com/ruralmed/ruralmed/pkg/gateway/summary"
)

type fakeStore struct {
	mu        sync.Mutex
	nextID    int64
	records   map[int64]*store.PatientRecord
	summaries map[int64]string
	failWith  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{nextID: 1, records: map[int64]*store.PatientRecord{}, summaries: map[int64]string{}}
}

func (s *fakeStore) Create(ctx context.Context, rec *store.PatientRecord) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return 0, s.failWith
	}
	id := s.nextID
	s.nextID++
	cp := *rec
	cp.ID = id
	s.records[id] = &cp
	return id, nil
}

func (s *fakeStore) Update(ctx context.Context, id int64, rec *store.PatientRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return false, s.failWith
	}
	if _, ok := s.records[id]; !ok {
		return false, nil
	}
	cp := *rec
	cp.ID = id
	s.records[id] = &cp
	return true, nil
}

func (s *fakeStore) Get(ctx context.Context, id int64) (*store.PatientRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	rec, ok := s.records[id]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (s *fakeStore) List(ctx context.Context) ([]*store.PatientRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	var out []*store.PatientRecord
	for _, rec := range s.records {
		cp := *rec
		out = append(out, &cp)
	}
	return out, nil
}

func (s *fakeStore) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	delete(s.records, id)
	return nil
}

func (s *fakeStore) SetSummary(ctx context.Context, id int64, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries[id] = text
	return nil
}

func (s *fakeStore) summaryFor(id int64) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text, ok := s.summaries[id]
	return text, ok
}

type fixedGenerator struct{ text string }

func (g fixedGenerator) Summarize(ctx context.Context, transcript []string) (string, error) {
	return g.text, nil
}

func testRunner(t *testing.T, gen summary.Generator, w summary.SummaryWriter) *summary.Runner {
	t.Helper()
	r, err := summary.NewRunner(summary.Dependencies{
		Generator:  gen,
		Writer:     w,
		Logger:     slog.New(slog.DiscardHandler),
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	return r
}

func TestCommitCreatesRecordAndSpawnsSummary(t *testing.T) {
	st := newFakeStore()
	runner := testRunner(t, fixedGenerator{text: "- fever\n- rest advised"}, st)
	h := CommitHandler{Store: st, Summaries: runner, Logger: slog.New(slog.DiscardHandler)}

	body := `{
		"name": "Asha Devi",
		"symptoms": ["fever"],
		"transcript_history": ["Doctor: what brings you in?", "Patient: fever since Monday"]
	}`
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("POST", "/api/commit", strings.NewReader(body)))
	if rr.Code != 200 {
		t.Fatalf("status=%d, body=%s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Status    string `json:"status"`
		PatientID int64  `json:"patient_id"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "success" || resp.PatientID != 1 {
		t.Fatalf("resp=%+v", resp)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := runner.Wait(ctx); err != nil {
		t.Fatalf("drain summaries: %v", err)
	}
	if text, ok := st.summaryFor(1); !ok || text == "" {
		t.Fatalf("summary not persisted: %q", text)
	}
}

func TestCommitWithoutTranscriptSkipsSummary(t *testing.T) {
	st := newFakeStore()
	runner := testRunner(t, fixedGenerator{text: "unused"}, st)
	h := CommitHandler{Store: st, Summaries: runner}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("POST", "/api/commit", strings.NewReader(`{"name":"X"}`)))
	if rr.Code != 200 {
		t.Fatalf("status=%d", rr.Code)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = runner.Wait(ctx)
	if _, ok := st.summaryFor(1); ok {
		t.Fatal("summary was written without a transcript")
	}
}

func TestCommitUpdatesExistingRecord(t *testing.T) {
	st := newFakeStore()
	id, err := st.Create(context.Background(), &store.PatientRecord{Name: "old"})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	h := CommitHandler{Store: st}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("POST", "/api/commit",
		strings.NewReader(`{"id":1,"name":"new name"}`)))
	if rr.Code != 200 {
		t.Fatalf("status=%d, body=%s", rr.Code, rr.Body.String())
	}
	rec, _ := st.Get(context.Background(), id)
	if rec == nil || rec.Name != "new name" {
		t.Fatalf("record after update: %+v", rec)
	}
}

func TestCommitUnknownIDIs404(t *testing.T) {
	h := CommitHandler{Store: newFakeStore()}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("POST", "/api/commit", strings.NewReader(`{"id":99,"name":"x"}`)))
	if rr.Code != 404 {
		t.Fatalf("status=%d, want 404", rr.Code)
	}
}

func TestCommitRejectsBadJSON(t *testing.T) {
	h := CommitHandler{Store: newFakeStore()}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("POST", "/api/commit", strings.NewReader("{")))
	if rr.Code != 400 {
		t.Fatalf("status=%d, want 400", rr.Code)
	}
}

func TestCommitStoreFailureIs500(t *testing.T) {
	st := newFakeStore()
	st.failWith = errors.New("db down")
	h := CommitHandler{Store: st, Logger: slog.New(slog.DiscardHandler)}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("POST", "/api/commit", strings.NewReader(`{"name":"x"}`)))
	if rr.Code != 500 {
		t.Fatalf("status=%d, want 500", rr.Code)
	}
}
