package chat

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Soarezin/NexuCommunication-app/internal/metrics"
	"github.com/Soarezin/NexuCommunication-app/internal/models"
)

// Transport is the live-channel surface the session drives. *Manager
// implements it.
type Transport interface {
	Connect(token string, h Handlers) error
	Disconnect()
	JoinCase(caseID string)
	Send(content, caseID, receiverClientID string) error
	State() State
}

// Backend is the request/response surface the session consumes. *api.Client
// implements it.
type Backend interface {
	CaseMessages(ctx context.Context, caseID string) ([]models.Message, error)
	MarkMessageViewed(ctx context.Context, messageID string) (*models.Message, error)
}

// HistoryCache is an optional local store of fetched history, letting a
// reopened case render before the fetch resolves. Stale cached entries are
// harmless: they pass through the same merge rules as a history snapshot.
type HistoryCache interface {
	CaseMessages(ctx context.Context, caseID string) ([]models.Message, error)
	SaveMessages(ctx context.Context, caseID string, msgs []models.Message) error
}

// SessionHandlers notify the chat surface. OnUpdate fires whenever the
// visible sequence or a message's viewed state changes.
type SessionHandlers struct {
	OnUpdate func()
	OnState  func(State)
	OnError  func(error)
}

// SessionConfig wires a Session's collaborators.
type SessionConfig struct {
	Transport Transport
	Backend   Backend
	Cache     HistoryCache // optional
	UserID    string       // the viewer; own messages cannot be marked viewed
	Handlers  SessionHandlers

	HistoryTimeout time.Duration
	Logger         zerolog.Logger
}

// Session orchestrates the chat core for one viewer: it owns the active
// Conversation, feeds it from both the history fetch and the live stream,
// and propagates viewed-state transitions. Opening a new case discards the
// previous conversation; events and late fetch results for abandoned cases
// are filtered out.
type Session struct {
	transport      Transport
	backend        Backend
	cache          HistoryCache
	userID         string
	handlers       SessionHandlers
	historyTimeout time.Duration
	log            zerolog.Logger

	mu       sync.Mutex
	conv     *Conversation
	receiver string // receiverClientId of the active case
}

// NewSession creates a session for one authenticated viewer.
func NewSession(cfg SessionConfig) *Session {
	if cfg.HistoryTimeout <= 0 {
		cfg.HistoryTimeout = 15 * time.Second
	}
	return &Session{
		transport:      cfg.Transport,
		backend:        cfg.Backend,
		cache:          cfg.Cache,
		userID:         cfg.UserID,
		handlers:       cfg.Handlers,
		historyTimeout: cfg.HistoryTimeout,
		log:            cfg.Logger.With().Str("component", "chat.session").Logger(),
	}
}

// Connect establishes the live channel with the given bearer token and
// registers the session as its event sink.
func (s *Session) Connect(token string) error {
	return s.transport.Connect(token, Handlers{
		OnState:         s.handleState,
		OnNewMessage:    s.handleLiveMessage,
		OnMessageViewed: s.handleViewedEvent,
		OnError:         s.handleError,
	})
}

// Disconnect tears down the live channel and discards the active
// conversation.
func (s *Session) Disconnect() {
	s.transport.Disconnect()
	s.mu.Lock()
	s.conv = nil
	s.receiver = ""
	s.mu.Unlock()
}

// Open switches the session to caseID, discarding any previous
// conversation. The cached history (if any) is applied synchronously so the
// surface has something to render; the authoritative fetch runs in the
// background and is merged when it resolves. A fetch that resolves after
// the viewer has moved to another case is dropped.
func (s *Session) Open(caseID, receiverClientID string) *Conversation {
	conv := NewConversation(caseID)

	s.mu.Lock()
	s.conv = conv
	s.receiver = receiverClientID
	s.mu.Unlock()

	if s.cache != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		cached, err := s.cache.CaseMessages(ctx, caseID)
		cancel()
		if err != nil {
			s.log.Debug().Err(err).Str("case_id", caseID).Msg("no cached history")
		} else if conv.ApplyHistory(cached) > 0 {
			s.notifyUpdate()
		}
	}

	s.transport.JoinCase(caseID)
	go s.fetchHistory(conv)

	return conv
}

// Close abandons the active conversation without touching the connection.
func (s *Session) Close() {
	s.mu.Lock()
	s.conv = nil
	s.receiver = ""
	s.mu.Unlock()
}

// Conversation returns the active conversation, nil when no case is open.
func (s *Session) Conversation() *Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conv
}

// Messages returns a snapshot of the active case's visible sequence.
func (s *Session) Messages() []models.Message {
	conv := s.Conversation()
	if conv == nil {
		return nil
	}
	return conv.Messages()
}

// State returns the transport's connectivity state.
func (s *Session) State() State {
	return s.transport.State()
}

// Send sends a message to the active case's client party. It fails with
// ErrNotConnected while the channel is down; the message is not added to
// the visible sequence (no outbox).
func (s *Session) Send(content string) error {
	s.mu.Lock()
	conv := s.conv
	receiver := s.receiver
	s.mu.Unlock()

	if conv == nil {
		return ErrNoActiveCase
	}
	return s.transport.Send(content, conv.CaseID(), receiver)
}

// MarkViewed persists a message's viewed state server-side and, on success,
// advances local state. Marking one's own message is rejected; a failed
// mutation leaves the message in its prior state and is not retried.
func (s *Session) MarkViewed(ctx context.Context, messageID string) error {
	conv := s.Conversation()
	if conv == nil {
		return ErrNoActiveCase
	}

	msg, ok := conv.Get(messageID)
	if !ok {
		return ErrUnknownMessage
	}
	if msg.SenderID == s.userID {
		return ErrOwnMessage
	}
	if msg.Viewed {
		return nil
	}

	if _, err := s.backend.MarkMessageViewed(ctx, messageID); err != nil {
		metrics.ViewedMutations.WithLabelValues("error").Inc()
		return &ViewedMutationError{MessageID: messageID, Err: err}
	}
	metrics.ViewedMutations.WithLabelValues("ok").Inc()

	if conv.ApplyViewedConfirmation(messageID) {
		s.notifyUpdate()
	}
	return nil
}

// fetchHistory loads the durable message log for conv's case and merges it.
// The conversation captured at call time is compared against the active one
// before anything is applied, so a slow fetch for an abandoned case cannot
// clobber the current view.
func (s *Session) fetchHistory(conv *Conversation) {
	ctx, cancel := context.WithTimeout(context.Background(), s.historyTimeout)
	defer cancel()

	msgs, err := s.backend.CaseMessages(ctx, conv.CaseID())

	if s.Conversation() != conv {
		metrics.HistoryFetches.WithLabelValues("stale").Inc()
		s.log.Debug().Str("case_id", conv.CaseID()).Msg("dropping history for abandoned case")
		return
	}

	if err != nil {
		metrics.HistoryFetches.WithLabelValues("error").Inc()
		s.handleError(&HistoryFetchError{CaseID: conv.CaseID(), Err: err})
		return
	}
	metrics.HistoryFetches.WithLabelValues("ok").Inc()

	if conv.ApplyHistory(msgs) > 0 {
		s.notifyUpdate()
	}
	s.persist(conv.CaseID(), msgs)
}

// handleLiveMessage ingests a live push. The conversation filters by case
// ID, so tenant-wide broadcasts for other cases never surface here.
func (s *Session) handleLiveMessage(msg models.Message) {
	conv := s.Conversation()
	if conv == nil {
		return
	}
	if !conv.ApplyLiveMessage(msg) {
		return
	}
	s.notifyUpdate()
	s.persist(msg.CaseID, []models.Message{msg})
}

func (s *Session) handleViewedEvent(messageID string) {
	conv := s.Conversation()
	if conv == nil {
		return
	}
	if conv.ApplyViewedConfirmation(messageID) {
		s.notifyUpdate()
	}
}

func (s *Session) handleState(state State) {
	if s.handlers.OnState != nil {
		s.handlers.OnState(state)
	}
}

func (s *Session) handleError(err error) {
	s.log.Warn().Err(err).Msg("chat error")
	if s.handlers.OnError != nil {
		s.handlers.OnError(err)
	}
}

func (s *Session) notifyUpdate() {
	if s.handlers.OnUpdate != nil {
		s.handlers.OnUpdate()
	}
}

func (s *Session) persist(caseID string, msgs []models.Message) {
	if s.cache == nil || len(msgs) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.cache.SaveMessages(ctx, caseID, msgs); err != nil {
		s.log.Debug().Err(err).Str("case_id", caseID).Msg("history cache write failed")
	}
}
