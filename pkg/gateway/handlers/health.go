package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/ruralmed/ruralmed/pkg/gateway/config"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

// Pinger reports whether the record store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type ReadyHandler struct {
	Config config.Config
	Store  Pinger
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK     bool     `json:"ok"`
		Issues []string `json:"issues,omitempty"`
	}

	issues := make([]string, 0, 4)

	if h.Config.GeminiAPIKey == "" {
		issues = append(issues, "gemini api key is not configured")
	}
	if h.Config.LiveModel == "" || h.Config.SummaryModel == "" {
		issues = append(issues, "models must be configured")
	}
	if h.Config.LiveMaxAudioFrameBytes <= 0 {
		issues = append(issues, "max audio frame bytes must be > 0")
	}
	if h.Config.SummaryMaxRetries < 0 || h.Config.SummaryRetryBase <= 0 {
		issues = append(issues, "summarizer retry policy must be positive")
	}
	if h.Config.ReadHeaderTimeout <= 0 {
		issues = append(issues, "timeouts must be > 0")
	}
	if h.Store != nil {
		if err := h.Store.Ping(r.Context()); err != nil {
			issues = append(issues, "record store is unreachable")
		}
	}

	ok := len(issues) == 0
	status := http.StatusOK
	if !ok {
		status = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(readyResp{OK: ok, Issues: issues})
}
