// Package server wires the consultation gateway's HTTP surface: health and
// metrics endpoints, the EHR record API, and the live consultation WebSocket.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ruralmed/ruralmed/pkg/gateway/config"
	"github.com/ruralmed/ruralmed/pkg/gateway/extraction"
	"github.com/ruralmed/ruralmed/pkg/gateway/handlers"
	"github.com/ruralmed/ruralmed/pkg/gateway/lifecycle"
	"github.com/ruralmed/ruralmed/pkg/gateway/live/sessions"
	"github.com/ruralmed/ruralmed/pkg/gateway/metrics"
	"github.com/ruralmed/ruralmed/pkg/gateway/mw"
	"github.com/ruralmed/ruralmed/pkg/gateway/store"
	"github.com/ruralmed/ruralmed/pkg/gateway/summary"
)

// Dependencies carries everything the server needs. Store and Connector are
// required; the rest defaults sensibly.
type Dependencies struct {
	Config    config.Config
	Logger    *slog.Logger
	Store     store.Store
	StorePing handlers.Pinger
	Connector extraction.Connector
	Summaries *summary.Runner
	Metrics   *metrics.Metrics
}

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux

	lifecycle    *lifecycle.Lifecycle
	liveSessions *sessions.Tracker
}

func New(deps Dependencies) (*Server, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("server: store is required")
	}
	if deps.Connector == nil {
		return nil, fmt.Errorf("server: extraction connector is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New(deps.Config.MetricsNamespace)
	}

	s := &Server{
		cfg:          deps.Config,
		logger:       deps.Logger,
		mux:          http.NewServeMux(),
		lifecycle:    &lifecycle.Lifecycle{},
		liveSessions: sessions.NewTracker(),
	}
	s.routes(deps)
	return s, nil
}

func (s *Server) routes(deps Dependencies) {
	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/readyz", handlers.ReadyHandler{Config: s.cfg, Store: deps.StorePing})
	s.mux.Handle("/metrics", deps.Metrics.Handler())

	s.mux.Handle("POST /api/commit", handlers.CommitHandler{
		Store:     deps.Store,
		Summaries: deps.Summaries,
		Logger:    s.logger,
	})

	patients := handlers.PatientsHandler{Store: deps.Store, Logger: s.logger}
	s.mux.HandleFunc("GET /api/patients", patients.List)
	s.mux.HandleFunc("GET /api/patients/{id}", patients.Get)
	s.mux.HandleFunc("DELETE /api/patients/{id}", patients.Delete)

	s.mux.Handle("POST /api/generate-note", handlers.NoteHandler{})

	s.mux.Handle("/ws/live-consultation", handlers.LiveHandler{
		Config:       s.cfg,
		Connector:    deps.Connector,
		Logger:       s.logger,
		Metrics:      deps.Metrics,
		Lifecycle:    s.lifecycle,
		LiveSessions: s.liveSessions,
	})
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.CORS(s.cfg, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

// SetDraining flips the drain flag: new consultation connections are refused
// while existing ones keep running.
func (s *Server) SetDraining(draining bool) {
	s.lifecycle.SetDraining(draining)
}

// NotifyLiveSessions pushes a notice to every open consultation.
func (s *Server) NotifyLiveSessions(message string) int {
	return s.liveSessions.NotifyAll(message)
}

// WaitLiveSessions blocks until open consultations end or ctx expires.
func (s *Server) WaitLiveSessions(ctx context.Context) bool {
	return s.liveSessions.Wait(ctx)
}

// CancelLiveSessions force-ends every open consultation.
func (s *Server) CancelLiveSessions() int {
	return s.liveSessions.CancelAll()
}

// LiveSessionCount reports open consultations, for drain logging.
func (s *Server) LiveSessionCount() int {
	return s.liveSessions.Count()
}
