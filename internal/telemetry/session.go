package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// State is the session's connection lifecycle state.
type State string

const (
	// StateIdle means Connect has not been called yet.
	StateIdle State = "idle"
	// StateConnecting means a dial or auth handshake is in flight.
	StateConnecting State = "connecting"
	// StateAuthenticated means the daemon accepted the token and frames
	// are streaming.
	StateAuthenticated State = "authenticated"
	// StateReconnecting means the transport dropped and a timed retry is
	// pending.
	StateReconnecting State = "reconnecting"
	// StateClosed means the session was closed explicitly or ran out of
	// reconnect attempts.
	StateClosed State = "closed"
)

var (
	// ErrSessionClosed is returned when connecting a session after Close.
	ErrSessionClosed = errors.New("telemetry session closed")
	// ErrAlreadyConnected is returned for a Connect while a connection or
	// dial is already in flight.
	ErrAlreadyConnected = errors.New("telemetry session already connected")
)

// Config holds settings for a telemetry session.
type Config struct {
	// Endpoint is the daemon's websocket console URL for one server.
	Endpoint string
	// Token is the short-lived console token, passed as a connection
	// parameter.
	Token string
	// ConsoleLines caps the retained console buffer.
	ConsoleLines int
	// WindowSize is the sample count per rolling stats series.
	WindowSize int
	// DiskLimitBytes sizes the disk percentage series; 0 disables it.
	DiskLimitBytes int64
	// HandshakeTimeout bounds the dial and the wait for auth success.
	HandshakeTimeout time.Duration
	// ReconnectInitialDelay is the first reconnect delay.
	ReconnectInitialDelay time.Duration
	// ReconnectMaxDelay caps the doubling reconnect delay.
	ReconnectMaxDelay time.Duration
	// MaxReconnectAttempts bounds automatic reconnects before the session
	// settles in StateClosed.
	MaxReconnectAttempts int
	// Dialer overrides the websocket dialer.
	Dialer *websocket.Dialer
}

// DefaultConfig returns a session Config with production defaults.
func DefaultConfig() *Config {
	return &Config{
		ConsoleLines:          DefaultConsoleLines,
		WindowSize:            DefaultWindowSize,
		HandshakeTimeout:      10 * time.Second,
		ReconnectInitialDelay: time.Second,
		ReconnectMaxDelay:     30 * time.Second,
		MaxReconnectAttempts:  8,
	}
}

// Session is one live console/stats channel to a daemon for a single
// server view. The view owns the session: Connect and Close are the
// only entry points, and Close synchronously stops the timer, the
// socket and every callback, so nothing outlives the view.
//
// Frame handling is serialized by the session mutex, and handlers carry
// the generation of the connection they were spawned for; a handler
// from a replaced or closed connection can never mutate state.
type Session struct {
	cfg    *Config
	logger *slog.Logger
	feed   *Feed

	mu       sync.Mutex
	state    State
	conn     *websocket.Conn
	console  *Console
	stats    *Recorder
	attempts int
	delay    time.Duration
	timer    *time.Timer
	dialing  bool
	closed   bool
	gen      uint64

	now func() time.Time
}

// NewSession creates an idle session. Connect starts streaming.
func NewSession(cfg *Config, logger *slog.Logger) *Session {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ConsoleLines <= 0 {
		cfg.ConsoleLines = DefaultConsoleLines
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = DefaultWindowSize
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.ReconnectInitialDelay <= 0 {
		cfg.ReconnectInitialDelay = time.Second
	}
	if cfg.ReconnectMaxDelay <= 0 {
		cfg.ReconnectMaxDelay = 30 * time.Second
	}
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = 8
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}

	return &Session{
		cfg:     cfg,
		logger:  logger,
		feed:    NewFeed(logger),
		state:   StateIdle,
		console: NewConsole(cfg.ConsoleLines),
		stats:   NewRecorder(cfg.WindowSize, cfg.DiskLimitBytes),
		delay:   cfg.ReconnectInitialDelay,
		now:     time.Now,
	}
}

// Feed returns the update fan-out for this session.
func (s *Session) Feed() *Feed {
	return s.feed
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ConsoleLines returns a copy of the buffered console, oldest first.
func (s *Session) ConsoleLines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.console.Lines()
}

// StatsSnapshot copies the derived stats series.
func (s *Session) StatsSnapshot() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats.Snapshot()
}

// Connect dials the daemon and performs the auth handshake. It returns
// once the session is authenticated and streaming, or with the dial or
// handshake error; on failure the automatic reconnect cycle is already
// armed.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.dialing || s.conn != nil {
		s.mu.Unlock()
		return ErrAlreadyConnected
	}
	s.dialing = true
	s.setStateLocked(StateConnecting)
	s.mu.Unlock()

	return s.dial(ctx)
}

// Close tears the session down: it cancels any pending reconnect,
// short-circuits the attempt budget, closes the socket and emits the
// final state change. After Close returns no callback can mutate the
// session, and further Connects fail with ErrSessionClosed.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.attempts = s.cfg.MaxReconnectAttempts
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	conn := s.conn
	s.conn = nil
	s.gen++
	s.setStateLocked(StateClosed)
	s.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

// SendCommand forwards one console command line. Commands are silently
// dropped unless the session is authenticated; nothing is queued for
// replay across reconnects.
func (s *Session) SendCommand(cmd string) error {
	return s.send(&Frame{Event: EventSendCommand, Args: []string{cmd}})
}

// SetPowerState asks the daemon to change the container's power state.
// Dropped unless authenticated, like SendCommand.
func (s *Session) SetPowerState(action string) error {
	return s.send(&Frame{Event: EventSetState, Args: []string{action}})
}

// RequestLogs re-requests recent console history.
func (s *Session) RequestLogs() error {
	return s.send(&Frame{Event: EventSendLogs})
}

func (s *Session) send(frame *Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAuthenticated || s.conn == nil {
		return nil
	}
	return s.conn.WriteJSON(frame)
}

// dial performs one connection attempt end to end. The dialing flag is
// held by the caller and cleared here.
//
// The history request goes out before the connection is published;
// after that, send is the only writer and it holds the session mutex.
func (s *Session) dial(ctx context.Context) error {
	conn, err := s.handshake(ctx)
	if err == nil {
		// A freshly opened view must not be blank.
		if werr := conn.WriteJSON(&Frame{Event: EventSendLogs}); werr != nil {
			conn.Close()
			conn = nil
			err = fmt.Errorf("requesting console history: %w", werr)
		}
	}

	s.mu.Lock()
	s.dialing = false
	if s.closed {
		s.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return ErrSessionClosed
	}
	if err != nil {
		s.logger.Warn("console connect failed", "endpoint", s.cfg.Endpoint, "error", err)
		s.scheduleReconnectLocked()
		s.mu.Unlock()
		return err
	}

	s.conn = conn
	s.gen++
	gen := s.gen
	s.attempts = 0
	s.delay = s.cfg.ReconnectInitialDelay
	s.setStateLocked(StateAuthenticated)
	s.mu.Unlock()

	go s.readLoop(gen, conn)
	return nil
}

// handshake dials the endpoint with the console token attached and
// waits for the auth-success frame. Frames arriving before it are
// dropped; nothing counts until the far end accepts the token.
func (s *Session) handshake(ctx context.Context) (*websocket.Conn, error) {
	target, err := s.buildTarget()
	if err != nil {
		return nil, err
	}

	conn, resp, err := s.cfg.Dialer.DialContext(ctx, target, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dialing console channel: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dialing console channel: %w", err)
	}

	if err := conn.SetReadDeadline(time.Now().Add(s.cfg.HandshakeTimeout)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("arming handshake deadline: %w", err)
	}
	for {
		var frame Frame
		if err := conn.ReadJSON(&frame); err != nil {
			conn.Close()
			return nil, fmt.Errorf("waiting for auth success: %w", err)
		}
		if frame.Event == EventAuthSuccess {
			break
		}
	}
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("clearing handshake deadline: %w", err)
	}
	return conn, nil
}

func (s *Session) buildTarget() (string, error) {
	u, err := url.Parse(s.cfg.Endpoint)
	if err != nil {
		return "", fmt.Errorf("parsing endpoint: %w", err)
	}
	q := u.Query()
	q.Set("token", s.cfg.Token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// readLoop pumps frames for one connection generation until the socket
// dies. Malformed frames are dropped; read errors end the connection.
func (s *Session) readLoop(gen uint64, conn *websocket.Conn) {
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			s.handleDisconnect(gen, err)
			return
		}
		var frame Frame
		if err := json.Unmarshal(payload, &frame); err != nil {
			s.logger.Debug("dropping malformed frame", "error", err)
			continue
		}
		s.handleFrame(gen, &frame)
	}
}

func (s *Session) handleFrame(gen uint64, frame *Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || gen != s.gen {
		return
	}

	switch frame.Event {
	case EventAuthSuccess:
		// The handshake consumed the first one; repeats are no-ops.

	case EventConsoleHistory:
		before := s.console.Len()
		s.console.Backfill(frame.Args)
		if s.console.Len() != before {
			s.feed.Publish(Update{Kind: UpdateConsoleReset})
		}

	case EventConsoleOutput, EventInstallOutput:
		for _, raw := range frame.Args {
			if line, ok := s.console.Append(raw); ok {
				s.feed.Publish(Update{Kind: UpdateConsoleLine, Line: line})
			}
		}

	case EventStatus:
		if len(frame.Args) == 0 {
			return
		}
		status := frame.Args[0]
		if status == StateOffline {
			s.console.Clear()
			s.feed.Publish(Update{Kind: UpdateConsoleReset})
		}
		s.feed.Publish(Update{Kind: UpdateStatus, Status: status})

	case EventStats:
		if len(frame.Args) == 0 {
			return
		}
		var p StatsPayload
		if err := json.Unmarshal([]byte(frame.Args[0]), &p); err != nil {
			s.logger.Debug("dropping malformed stats payload", "error", err)
			return
		}
		s.stats.Observe(&p, s.now())
		s.feed.Publish(Update{Kind: UpdateStats, Stats: &p})

	case EventInstallCompleted:
		s.feed.Publish(Update{Kind: UpdateInstallCompleted})

	default:
		s.logger.Debug("ignoring unknown event", "event", frame.Event)
	}
}

func (s *Session) handleDisconnect(gen uint64, cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || gen != s.gen {
		return
	}
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.logger.Warn("console channel lost", "endpoint", s.cfg.Endpoint, "error", cause)
	s.scheduleReconnectLocked()
}

// scheduleReconnectLocked arms the next automatic reconnect, doubling
// the delay up to the cap. Exhausting the attempt budget parks the
// session in StateClosed until the caller reconnects explicitly.
func (s *Session) scheduleReconnectLocked() {
	if s.attempts >= s.cfg.MaxReconnectAttempts {
		s.logger.Warn("reconnect attempts exhausted",
			"endpoint", s.cfg.Endpoint, "attempts", s.attempts)
		s.setStateLocked(StateClosed)
		return
	}
	s.attempts++
	delay := s.delay
	s.delay *= 2
	if s.delay > s.cfg.ReconnectMaxDelay {
		s.delay = s.cfg.ReconnectMaxDelay
	}
	s.setStateLocked(StateReconnecting)
	s.timer = time.AfterFunc(delay, s.redial)
}

// redial is the reconnect timer callback. An explicit close or an
// attempt already in flight wins; no second socket is opened toward the
// same target.
func (s *Session) redial() {
	s.mu.Lock()
	if s.closed || s.dialing || s.conn != nil {
		s.mu.Unlock()
		return
	}
	s.dialing = true
	s.setStateLocked(StateConnecting)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.HandshakeTimeout)
	defer cancel()
	if err := s.dial(ctx); err != nil {
		s.logger.Debug("reconnect attempt failed", "endpoint", s.cfg.Endpoint, "error", err)
	}
}

func (s *Session) setStateLocked(state State) {
	if s.state == state {
		return
	}
	s.state = state
	s.feed.Publish(Update{Kind: UpdateState, State: state})
}
