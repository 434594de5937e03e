// Package session implements the live consultation orchestrator: the
// bidirectional relay between one browser connection and one extraction
// service stream, plus the field-state bookkeeping driven by tool calls.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ruralmed/ruralmed/pkg/gateway/extraction"
	"github.com/ruralmed/ruralmed/pkg/gateway/live/protocol"
	"github.com/ruralmed/ruralmed/pkg/gateway/metrics"
)

// State is the session lifecycle phase.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateStreaming
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ClientConn is the slice of the browser WebSocket connection the session
// needs. The inbound pump is the only reader; the outbound pump is the only
// writer.
type ClientConn interface {
	ReadMessage() ([]byte, error)
	WriteJSON(v any) error
	Close() error
}

// Dependencies wires one session. Conn and Connector are required.
type Dependencies struct {
	ID        string
	Conn      ClientConn
	Connector extraction.Connector
	Logger    *slog.Logger
	Metrics   *metrics.Metrics

	// MaxAudioFrameBytes bounds one decoded audio frame; 0 means unbounded.
	MaxAudioFrameBytes int
	// MaxDuration bounds the whole session; 0 means unbounded.
	MaxDuration time.Duration
	// HandshakeTimeout bounds the extraction connect; 0 means unbounded.
	HandshakeTimeout time.Duration
}

// Session owns one live consultation relay. Both the extraction stream and
// the client connection are exclusively held until Run returns.
type Session struct {
	id        string
	conn      ClientConn
	connector extraction.Connector
	logger    *slog.Logger
	metrics   *metrics.Metrics

	maxFrameBytes    int
	maxDuration      time.Duration
	handshakeTimeout time.Duration

	state  State
	fields *fieldState
	stream extraction.Stream
}

func New(deps Dependencies) (*Session, error) {
	if deps.Conn == nil {
		return nil, fmt.Errorf("session: client connection is required")
	}
	if deps.Connector == nil {
		return nil, fmt.Errorf("session: extraction connector is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.ID == "" {
		deps.ID = "unidentified"
	}
	return &Session{
		id:               deps.ID,
		conn:             deps.Conn,
		connector:        deps.Connector,
		logger:           deps.Logger.With("session_id", deps.ID),
		metrics:          deps.Metrics,
		maxFrameBytes:    deps.MaxAudioFrameBytes,
		maxDuration:      deps.MaxDuration,
		handshakeTimeout: deps.HandshakeTimeout,
		state:            StateIdle,
		fields:           newFieldState(),
	}, nil
}

// State reports the current lifecycle phase. It is only meaningful from the
// goroutine driving Run, or after Run returns.
func (s *Session) State() State { return s.state }

// Run connects to the extraction service and relays in both directions until
// either side disconnects. A handshake failure is returned to the caller;
// relay errors after a successful handshake end the session but are not
// errors of Run itself unless they are abnormal. Every exit path closes the
// extraction stream and the client connection.
func (s *Session) Run(ctx context.Context) error {
	start := time.Now()
	if s.maxDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.maxDuration)
		defer cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.state = StateConnecting
	connectCtx := ctx
	if s.handshakeTimeout > 0 {
		var cancelConnect context.CancelFunc
		connectCtx, cancelConnect = context.WithTimeout(ctx, s.handshakeTimeout)
		defer cancelConnect()
	}
	stream, err := s.connector.Connect(connectCtx)
	if err != nil {
		s.state = StateClosed
		_ = s.conn.Close()
		s.countSession("handshake_failed", start)
		return fmt.Errorf("session: connect extraction service: %w", err)
	}
	s.stream = stream
	s.state = StateStreaming
	s.logger.Info("consultation session streaming")
	if s.metrics != nil {
		s.metrics.SessionsActive.Inc()
		defer s.metrics.SessionsActive.Dec()
	}

	// Neither ReadMessage nor Receive watches the context, so deadline expiry
	// or caller cancellation must close both endpoints to unblock the pumps.
	go func() {
		<-ctx.Done()
		_ = s.stream.Close()
		_ = s.conn.Close()
	}()

	// Either pump finishing ends the session: cancel the context, close both
	// endpoints to unblock the other pump, then wait for it.
	inbound := make(chan error, 1)
	outbound := make(chan error, 1)
	go func() { inbound <- s.inboundPump(ctx) }()
	go func() { outbound <- s.outboundPump(ctx) }()

	var first error
	var remaining chan error
	select {
	case first = <-inbound:
		remaining = outbound
	case first = <-outbound:
		remaining = inbound
	}
	s.state = StateClosing
	cancel()
	_ = s.stream.Close()
	_ = s.conn.Close()
	second := <-remaining
	s.state = StateClosed

	err = errors.Join(first, second)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		s.logger.Warn("consultation session ended with error", "error", err)
	}
	s.logger.Info("consultation session closed",
		"duration", time.Since(start).Round(time.Millisecond),
		"fields_captured", s.fields.Len(),
	)
	s.countSession(outcome, start)
	return err
}

// inboundPump relays browser audio to the extraction service. Malformed
// envelopes are logged and skipped; read errors (client gone, teardown in
// progress) end the pump.
func (s *Session) inboundPump(ctx context.Context) error {
	for {
		data, err := s.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			// Client disconnects are the normal way sessions end.
			s.logger.Debug("client read ended", "error", err)
			return nil
		}
		frames, err := protocol.DecodeAudioFrames(data, s.maxFrameBytes)
		if err != nil {
			s.logger.Warn("dropping malformed client frame", "error", err)
			continue
		}
		for _, frame := range frames {
			if err := s.stream.SendAudio(frame.Data, frame.MIMEType); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("session: forward audio: %w", err)
			}
			if s.metrics != nil {
				s.metrics.AudioBytesTotal.Add(float64(len(frame.Data)))
			}
		}
	}
}

// outboundPump relays extraction events to the browser and dispatches tool
// calls. This is the only goroutine that touches fieldState or writes to the
// client.
func (s *Session) outboundPump(ctx context.Context) error {
	for {
		ev, err := s.stream.Receive()
		if err != nil {
			if err == io.EOF || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("session: receive extraction event: %w", err)
		}

		if ev.Text != "" {
			if err := s.writeClient(protocol.NewContent(ev.Text)); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		}

		for _, call := range ev.ToolCalls {
			if err := s.dispatch(call); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			if err := s.stream.SendToolResult(call.ID, call.Name, nil); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("session: acknowledge tool call: %w", err)
			}
		}
	}
}

func (s *Session) writeClient(v any) error {
	if err := s.conn.WriteJSON(v); err != nil {
		return fmt.Errorf("session: write client: %w", err)
	}
	return nil
}

func (s *Session) countSession(outcome string, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.SessionsTotal.WithLabelValues(outcome).Inc()
	s.metrics.SessionDuration.Observe(time.Since(start).Seconds())
}
