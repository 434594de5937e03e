// Package summary produces consultation transcript summaries in the
// background, retrying around the generation service's rate limits.
package summary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/ruralmed/ruralmed/pkg/gateway/metrics"
)

// ErrRateLimited marks a generation failure that is worth waiting out.
// Generator implementations wrap their provider's 429-class errors with it.
var ErrRateLimited = errors.New("summary: rate limited")

// Generator turns a consultation transcript into summary text.
type Generator interface {
	Summarize(ctx context.Context, transcript []string) (string, error)
}

// SummaryWriter is the slice of the record store the runner needs.
type SummaryWriter interface {
	SetSummary(ctx context.Context, id int64, summary string) error
}

// Job is one detached summarization unit, created when a consultation with a
// non-empty transcript is committed.
type Job struct {
	PatientID  int64
	Transcript []string
}

// Runner executes summary jobs fire-and-forget. Jobs outlive the sessions
// that spawned them; Wait drains in-flight jobs at shutdown.
type Runner struct {
	gen     Generator
	writer  SummaryWriter
	logger  *slog.Logger
	metrics *metrics.Metrics

	maxRetries uint64
	baseDelay  time.Duration

	jobs sync.WaitGroup
}

// Dependencies configures a Runner. MaxRetries counts retries after the first
// attempt; BaseDelay is the first backoff wait and doubles per retry.
type Dependencies struct {
	Generator  Generator
	Writer     SummaryWriter
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
	MaxRetries int
	BaseDelay  time.Duration
}

func NewRunner(deps Dependencies) (*Runner, error) {
	if deps.Generator == nil {
		return nil, fmt.Errorf("summary: generator is required")
	}
	if deps.Writer == nil {
		return nil, fmt.Errorf("summary: writer is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.MaxRetries < 0 {
		return nil, fmt.Errorf("summary: max retries must be non-negative")
	}
	if deps.BaseDelay <= 0 {
		return nil, fmt.Errorf("summary: base delay must be positive")
	}
	return &Runner{
		gen:        deps.Generator,
		writer:     deps.Writer,
		logger:     deps.Logger,
		metrics:    deps.Metrics,
		maxRetries: uint64(deps.MaxRetries),
		baseDelay:  deps.BaseDelay,
	}, nil
}

// Submit schedules a job and returns immediately. Jobs with an empty
// transcript are dropped. The job runs on a background context so an ending
// session never cancels its own summary.
func (r *Runner) Submit(job Job) {
	if len(job.Transcript) == 0 {
		return
	}
	r.jobs.Add(1)
	go func() {
		defer r.jobs.Done()
		r.run(context.Background(), job)
	}()
}

// Wait blocks until all submitted jobs finish or ctx expires.
func (r *Runner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.jobs.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) run(ctx context.Context, job Job) {
	logger := r.logger.With("patient_id", job.PatientID)

	backoff := retry.WithMaxRetries(r.maxRetries, retry.NewExponential(r.baseDelay))
	var text string
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if r.metrics != nil {
			r.metrics.SummaryAttemptsTotal.Inc()
		}
		out, genErr := r.gen.Summarize(ctx, job.Transcript)
		if genErr != nil {
			if errors.Is(genErr, ErrRateLimited) {
				logger.Warn("summary generation rate limited, backing off", "error", genErr)
				return retry.RetryableError(genErr)
			}
			return genErr
		}
		text = out
		return nil
	})
	if err != nil {
		// A failed summary never disturbs the committed record.
		logger.Error("summary generation failed permanently", "error", err)
		r.outcome("failed")
		return
	}

	if strings.TrimSpace(text) == "" {
		logger.Warn("summary generation produced empty text")
		r.outcome("empty")
		return
	}

	if err := r.writer.SetSummary(ctx, job.PatientID, text); err != nil {
		logger.Error("persist summary failed", "error", err)
		r.outcome("store_error")
		return
	}
	logger.Info("summary persisted", "chars", len(text))
	r.outcome("ok")
}

func (r *Runner) outcome(label string) {
	if r.metrics != nil {
		r.metrics.SummaryJobsTotal.WithLabelValues(label).Inc()
	}
}
