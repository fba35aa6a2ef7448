// Package chat implements the real-time case-chat core: the websocket
// transport, case room membership, and the reconciliation of fetched
// history with live pushed messages.
package chat

import (
	"encoding/json"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Soarezin/NexuCommunication-app/internal/metrics"
	"github.com/Soarezin/NexuCommunication-app/internal/models"
)

// State is the connectivity state of the live channel.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateErroring
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateErroring:
		return "erroring"
	default:
		return "unknown"
	}
}

// Handlers receive inbound events from the transport. All callbacks are
// invoked from the transport's reader goroutine, in delivery order; they
// must not block.
type Handlers struct {
	OnState         func(State)
	OnNewMessage    func(models.Message)
	OnMessageViewed func(messageID string)
	OnError         func(error)
}

const (
	writeTimeout = 5 * time.Second
	writeBuffer  = 64

	// Transient dial failures are retried with exponential backoff;
	// handshake rejections are terminal.
	maxRetries = 5
	baseDelay  = 500 * time.Millisecond
)

// Manager owns the single live connection for the current session. At most
// one connection exists at a time; Connect replaces any prior one. Other
// components never touch the underlying conn, only the Manager's operations.
type Manager struct {
	url    string
	dialer *websocket.Dialer
	log    zerolog.Logger

	mu       sync.Mutex
	gen      int // bumped on every Connect/Disconnect to invalidate old loops
	state    State
	conn     *websocket.Conn
	writeCh  chan envelope
	handlers Handlers
	lastCase string
}

// NewManager creates a connection manager for the given websocket URL.
func NewManager(wsURL string, handshakeTimeout time.Duration, logger zerolog.Logger) *Manager {
	if handshakeTimeout <= 0 {
		handshakeTimeout = 10 * time.Second
	}
	return &Manager{
		url:    wsURL,
		dialer: &websocket.Dialer{HandshakeTimeout: handshakeTimeout},
		log:    logger.With().Str("component", "chat.transport").Logger(),
	}
}

// Connect establishes a connection authenticated with token. Any existing
// connection is closed first. The call returns immediately; the handshake
// proceeds in the background and its outcome is reported through h. A
// rejected handshake is surfaced as *AuthError via OnError and is not
// retried; transient network failures are retried with backoff.
func (m *Manager) Connect(token string, h Handlers) error {
	if token == "" {
		return ErrEmptyToken
	}

	m.mu.Lock()
	m.gen++
	gen := m.gen
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.writeCh = nil
	m.handlers = h
	m.state = StateConnecting
	m.mu.Unlock()

	if h.OnState != nil {
		h.OnState(StateConnecting)
	}

	go m.run(gen, token, h)
	return nil
}

// Disconnect tears down the active connection if any. Idempotent. Any room
// membership is implicitly lost.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.gen++
	conn := m.conn
	m.conn = nil
	m.writeCh = nil
	m.lastCase = ""
	changed := m.state != StateDisconnected
	m.state = StateDisconnected
	h := m.handlers
	m.mu.Unlock()

	if conn != nil {
		deadline := time.Now().Add(time.Second)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		conn.Close()
		m.log.Info().Msg("disconnected")
	}
	if changed && h.OnState != nil {
		h.OnState(StateDisconnected)
	}
}

// State returns the current connectivity state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// JoinCase scopes this connection to a case's event stream. Membership is
// optimistic: no acknowledgement is expected, and if the connection is not
// up yet the join is deferred until it is. The receiving side must still
// filter events by case ID.
func (m *Manager) JoinCase(caseID string) {
	if caseID == "" {
		return
	}

	m.mu.Lock()
	m.lastCase = caseID
	connected := m.state == StateConnected
	ch := m.writeCh
	m.mu.Unlock()

	if !connected || ch == nil {
		m.log.Debug().Str("case_id", caseID).Msg("join deferred: not connected")
		return
	}
	if err := enqueue(ch, newEnvelope(eventJoinCase, caseID)); err != nil {
		m.log.Warn().Err(err).Str("case_id", caseID).Msg("join not sent")
	}
}

// Send emits a sendMessage event. The content must be non-empty after
// trimming and a connection must be established; there is no outbox, so a
// message refused with ErrNotConnected is simply not sent.
func (m *Manager) Send(content, caseID, receiverClientID string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return ErrEmptyMessage
	}

	m.mu.Lock()
	connected := m.state == StateConnected
	ch := m.writeCh
	m.mu.Unlock()

	if !connected || ch == nil {
		return ErrNotConnected
	}

	env := newEnvelope(eventSendMessage, sendMessagePayload{
		Content:          content,
		CaseID:           caseID,
		ReceiverClientID: receiverClientID,
	})
	if err := enqueue(ch, env); err != nil {
		return err
	}
	metrics.MessagesSent.Inc()
	return nil
}

// MarkViewedLive emits a markMessageViewed event over the live channel.
// The request/response mutation is the primary path; this is the fallback.
func (m *Manager) MarkViewedLive(messageID string) error {
	m.mu.Lock()
	connected := m.state == StateConnected
	ch := m.writeCh
	m.mu.Unlock()

	if !connected || ch == nil {
		return ErrNotConnected
	}
	return enqueue(ch, newEnvelope(eventMarkMessageViewed, messageID))
}

// run owns one connection attempt cycle: dial, pump, reconnect on transient
// loss. It exits when the generation is superseded, on auth rejection, or
// when retries are exhausted.
func (m *Manager) run(gen int, token string, h Handlers) {
	attempt := 0
	for {
		if m.stale(gen) {
			return
		}

		conn, resp, err := m.dial(token)
		if err != nil {
			if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
				m.setState(gen, StateDisconnected)
				m.emitError(gen, h, &AuthError{Status: resp.StatusCode, Reason: http.StatusText(resp.StatusCode)})
				return
			}

			attempt++
			if attempt > maxRetries {
				m.setState(gen, StateErroring)
				m.emitError(gen, h, &TransportError{Attempts: attempt - 1, Err: err})
				return
			}
			metrics.Reconnects.Inc()
			delay := baseDelay * time.Duration(math.Pow(2, float64(attempt-1)))
			m.log.Warn().Err(err).Int("attempt", attempt).Dur("backoff", delay).Msg("dial failed, retrying")
			time.Sleep(delay)
			continue
		}
		attempt = 0

		writeCh := make(chan envelope, writeBuffer)
		m.mu.Lock()
		if gen != m.gen {
			m.mu.Unlock()
			conn.Close()
			return
		}
		m.conn = conn
		m.writeCh = writeCh
		m.state = StateConnected
		last := m.lastCase
		m.mu.Unlock()

		m.log.Info().Str("url", m.url).Msg("connected")
		if h.OnState != nil {
			h.OnState(StateConnected)
		}

		done := make(chan struct{})
		go m.writeLoop(conn, writeCh, done)

		// Re-announce room membership after a reconnect.
		if last != "" {
			m.JoinCase(last)
		}

		readErr := m.readLoop(conn, h)
		close(done)

		if m.stale(gen) {
			return // intentional teardown, state already reported
		}

		m.mu.Lock()
		if gen != m.gen {
			m.mu.Unlock()
			return
		}
		m.conn = nil
		m.writeCh = nil
		m.state = StateConnecting
		m.mu.Unlock()

		m.log.Warn().Err(readErr).Msg("connection lost, reconnecting")
		if h.OnState != nil {
			h.OnState(StateConnecting)
		}
	}
}

func (m *Manager) dial(token string) (*websocket.Conn, *http.Response, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	return m.dialer.Dial(m.url, header)
}

// readLoop delivers inbound events to the handlers in arrival order.
func (m *Manager) readLoop(conn *websocket.Conn, h Handlers) error {
	for {
		var env envelope
		if err := conn.ReadJSON(&env); err != nil {
			return err
		}
		m.dispatch(env, h)
	}
}

func (m *Manager) dispatch(env envelope, h Handlers) {
	switch env.Event {
	case eventNewMessage:
		var msg models.Message
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			m.log.Warn().Err(err).Msg("malformed newMessage payload")
			return
		}
		metrics.MessagesReceived.Inc()
		if h.OnNewMessage != nil {
			h.OnNewMessage(msg)
		}

	case eventMessageViewed:
		var messageID string
		if err := json.Unmarshal(env.Data, &messageID); err != nil {
			m.log.Warn().Err(err).Msg("malformed messageViewed payload")
			return
		}
		if h.OnMessageViewed != nil {
			h.OnMessageViewed(messageID)
		}

	case eventMessageError:
		var reason string
		if err := json.Unmarshal(env.Data, &reason); err != nil {
			m.log.Warn().Err(err).Msg("malformed messageError payload")
			return
		}
		if h.OnError != nil {
			h.OnError(&ServerError{Reason: reason})
		}

	default:
		m.log.Debug().Str("event", env.Event).Msg("ignoring unknown event")
	}
}

// writeLoop is the single writer for one connection; websocket writes must
// not be issued concurrently.
func (m *Manager) writeLoop(conn *websocket.Conn, ch chan envelope, done chan struct{}) {
	for {
		select {
		case env := <-ch:
			if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				return
			}
			if err := conn.WriteJSON(env); err != nil {
				m.log.Warn().Err(err).Str("event", env.Event).Msg("write failed")
				return
			}
		case <-done:
			return
		}
	}
}

func enqueue(ch chan envelope, env envelope) error {
	select {
	case ch <- env:
		return nil
	default:
		return ErrWriteBufferFull
	}
}

func (m *Manager) stale(gen int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return gen != m.gen
}

func (m *Manager) setState(gen int, s State) {
	m.mu.Lock()
	if gen != m.gen || m.state == s {
		m.mu.Unlock()
		return
	}
	m.state = s
	h := m.handlers
	m.mu.Unlock()

	if h.OnState != nil {
		h.OnState(s)
	}
}

func (m *Manager) emitError(gen int, h Handlers, err error) {
	if m.stale(gen) {
		return
	}
	m.log.Error().Err(err).Msg("connection error")
	if h.OnError != nil {
		h.OnError(err)
	}
}
