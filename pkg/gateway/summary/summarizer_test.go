package summary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"
)

type stubGenerator struct {
	mu       sync.Mutex
	calls    int
	failures int
	failWith error
	text     string
}

func (s *stubGenerator) Summarize(ctx context.Context, transcript []string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.failures {
		return "", s.failWith
	}
	return s.text, nil
}

func (s *stubGenerator) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubWriter struct {
	mu      sync.Mutex
	writes  []int64
	summary string
	err     error
}

func (s *stubWriter) SetSummary(ctx context.Context, id int64, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.writes = append(s.writes, id)
	s.summary = summary
	return nil
}

func (s *stubWriter) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.writes)
}

func newTestRunner(t *testing.T, gen Generator, w SummaryWriter) *Runner {
	t.Helper()
	r, err := NewRunner(Dependencies{
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

func drain(t *testing.T, r *Runner) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

func TestRunnerSucceedsAfterRateLimits(t *testing.T) {
	gen := &stubGenerator{
		failures: 3,
		failWith: fmt.Errorf("%w: 429", ErrRateLimited),
		text:     "- fever for three days\n- prescribed paracetamol",
	}
	w := &stubWriter{}
	r := newTestRunner(t, gen, w)

	r.Submit(Job{PatientID: 7, Transcript: []string{"Doctor: how long?", "Patient: three days"}})
	drain(t, r)

	if got := gen.callCount(); got != 4 {
		t.Fatalf("generator called %d times, want 4", got)
	}
	if got := w.writeCount(); got != 1 {
		t.Fatalf("store updated %d times, want 1", got)
	}
	if w.writes[0] != 7 {
		t.Fatalf("summary written for patient %d, want 7", w.writes[0])
	}
	if w.summary != gen.text {
		t.Fatalf("persisted summary %q, want %q", w.summary, gen.text)
	}
}

func TestRunnerGivesUpAfterAttemptCap(t *testing.T) {
	gen := &stubGenerator{
		failures: 100,
		failWith: fmt.Errorf("%w: 429", ErrRateLimited),
	}
	w := &stubWriter{}
	r := newTestRunner(t, gen, w)

	r.Submit(Job{PatientID: 1, Transcript: []string{"hello"}})
	drain(t, r)

	if got := gen.callCount(); got != 4 {
		t.Fatalf("generator called %d times, want exactly 4", got)
	}
	if got := w.writeCount(); got != 0 {
		t.Fatalf("store updated %d times, want 0 on permanent failure", got)
	}
}

func TestRunnerFailsFastOnNonRetryableError(t *testing.T) {
	gen := &stubGenerator{
		failures: 100,
		failWith: errors.New("invalid request"),
	}
	w := &stubWriter{}
	r := newTestRunner(t, gen, w)

	r.Submit(Job{PatientID: 1, Transcript: []string{"hello"}})
	drain(t, r)

	if got := gen.callCount(); got != 1 {
		t.Fatalf("generator called %d times, want 1 for a non-retryable error", got)
	}
	if got := w.writeCount(); got != 0 {
		t.Fatalf("store updated %d times, want 0", got)
	}
}

func TestRunnerDropsEmptyTranscript(t *testing.T) {
	gen := &stubGenerator{text: "unused"}
	w := &stubWriter{}
	r := newTestRunner(t, gen, w)

	r.Submit(Job{PatientID: 1})
	drain(t, r)

	if got := gen.callCount(); got != 0 {
		t.Fatalf("generator called %d times for empty transcript, want 0", got)
	}
}

func TestRunnerSkipsPersistOnEmptySummary(t *testing.T) {
	gen := &stubGenerator{text: "   "}
	w := &stubWriter{}
	r := newTestRunner(t, gen, w)

	r.Submit(Job{PatientID: 1, Transcript: []string{"hello"}})
	drain(t, r)

	if got := w.writeCount(); got != 0 {
		t.Fatalf("store updated %d times for blank summary, want 0", got)
	}
}
