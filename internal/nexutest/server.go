// Package nexutest provides an in-process fake of the Nexu backend (REST +
// live channel) for package tests.
package nexutest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Soarezin/NexuCommunication-app/internal/models"
)

// Fixed credentials accepted by the fake /auth/login.
const (
	TestEmail    = "ana.ribeiro@nexu.test"
	TestPassword = "correct-horse"
	TestToken    = "test-bearer-token"
)

// Server is a fake Nexu backend. It broadcasts every live event to every
// connected socket regardless of joinCase, which matches the advisory
// room-scoping model the client is written against.
type Server struct {
	HTTP *httptest.Server
	User models.User

	upgrader websocket.Upgrader

	mu          sync.Mutex
	messages    map[string][]*models.Message // case id -> ordered log
	cases       map[string]*models.Case
	clients     map[string]*models.Client
	conns       map[*wsConn]struct{}
	historyGate chan struct{}
}

type wsConn struct {
	ws     *websocket.Conn
	mu     sync.Mutex // serialize writes
	caseID string
}

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewServer starts a fake backend and registers its shutdown with t.
func NewServer(t *testing.T) *Server {
	t.Helper()

	s := &Server{
		User: models.User{
			ID:        "user-lawyer-1",
			Email:     TestEmail,
			FirstName: "Ana",
			LastName:  "Ribeiro",
			Role:      models.RoleLawyer,
			TenantID:  "tenant-1",
		},
		messages: make(map[string][]*models.Message),
		cases:    make(map[string]*models.Case),
		clients:  make(map[string]*models.Client),
		conns:    make(map[*wsConn]struct{}),
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
	}

	s.HTTP = httptest.NewServer(s.router())
	t.Cleanup(s.Close)
	return s
}

// URL returns the REST base URL.
func (s *Server) URL() string { return s.HTTP.URL }

// WSURL returns the websocket endpoint URL.
func (s *Server) WSURL() string {
	return "ws" + strings.TrimPrefix(s.HTTP.URL, "http") + "/ws"
}

// Close shuts the server down and drops all live connections.
func (s *Server) Close() {
	s.mu.Lock()
	for c := range s.conns {
		c.ws.Close()
	}
	s.conns = make(map[*wsConn]struct{})
	s.mu.Unlock()
	s.HTTP.Close()
}

// HoldHistory blocks history responses until the returned release func is
// called, letting tests interleave live pushes with an in-flight fetch.
func (s *Server) HoldHistory() func() {
	gate := make(chan struct{})
	s.mu.Lock()
	s.historyGate = gate
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(gate)
			s.mu.Lock()
			s.historyGate = nil
			s.mu.Unlock()
		})
	}
}

// SeedMessage stores a message in the durable log without broadcasting it.
func (s *Server) SeedMessage(m models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := m
	s.messages[m.CaseID] = append(s.messages[m.CaseID], &msg)
}

// SeedCase stores a case record.
func (s *Server) SeedCase(c models.Case) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs := c
	s.cases[c.ID] = &cs
}

// SeedClient stores a client record.
func (s *Server) SeedClient(c models.Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cl := c
	s.clients[c.ID] = &cl
}

// EmitNewMessage stores a message and pushes it to all live connections.
func (s *Server) EmitNewMessage(m models.Message) {
	s.SeedMessage(m)
	s.broadcast("newMessage", m)
}

// EmitViewed pushes a messageViewed event without touching stored state.
func (s *Server) EmitViewed(messageID string) {
	s.broadcast("messageViewed", messageID)
}

// DropConnections closes every live connection without stopping the
// server, simulating a transient network failure.
func (s *Server) DropConnections() {
	s.mu.Lock()
	conns := make([]*wsConn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	for _, c := range conns {
		c.ws.Close()
	}
}

// JoinedCases lists the case each live connection last joined.
func (s *Server) JoinedCases() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for c := range s.conns {
		if c.caseID != "" {
			out = append(out, c.caseID)
		}
	}
	return out
}

// ConnCount returns the number of live connections.
func (s *Server) ConnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()

	r.Post("/auth/login", s.handleLogin)
	r.Get("/ws", s.handleWS)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)

		r.Get("/messages/cases/{caseID}", s.handleCaseMessages)
		r.Put("/messages/{messageID}/viewed", s.handleMarkViewed)

		r.Get("/cases", s.handleListCases)
		r.Get("/cases/me", s.handleListCases)
		r.Post("/cases", s.handleCreateCase)
		r.Get("/cases/{caseID}", s.handleGetCase)
		r.Put("/cases/{caseID}", s.handleUpdateCase)
		r.Delete("/cases/{caseID}", s.handleDeleteCase)

		r.Get("/clients", s.handleListClients)
		r.Post("/clients", s.handleCreateClient)
		r.Get("/clients/{clientID}", s.handleGetClient)
		r.Put("/clients/{clientID}", s.handleUpdateClient)
		r.Delete("/clients/{clientID}", s.handleDeleteClient)
	})

	return r
}

// requireAuth checks the bearer token on REST calls.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+TestToken {
			s.error(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Email != TestEmail || req.Password != TestPassword {
		s.error(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	s.json(w, http.StatusOK, map[string]interface{}{
		"token": TestToken,
		"user":  s.User,
	})
}

func (s *Server) handleCaseMessages(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	gate := s.historyGate
	s.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}

	caseID := chi.URLParam(r, "caseID")

	s.mu.Lock()
	log := s.messages[caseID]
	msgs := make([]models.Message, len(log))
	for i, m := range log {
		msgs[i] = *m
	}
	s.mu.Unlock()

	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
	s.json(w, http.StatusOK, map[string]interface{}{"messages": msgs})
}

func (s *Server) handleMarkViewed(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "messageID")

	s.mu.Lock()
	var updated *models.Message
	for _, log := range s.messages {
		for _, m := range log {
			if m.ID == messageID {
				if !m.Viewed {
					now := time.Now()
					m.Viewed = true
					m.ViewedAt = &now
				}
				cp := *m
				updated = &cp
			}
		}
	}
	s.mu.Unlock()

	if updated == nil {
		s.error(w, http.StatusNotFound, "message not found")
		return
	}

	s.broadcast("messageViewed", messageID)
	s.json(w, http.StatusOK, updated)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer "+TestToken {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := &wsConn{ws: ws}
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()

	go s.readLoop(c)
}

func (s *Server) readLoop(c *wsConn) {
	defer func() {
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
		c.ws.Close()
	}()

	for {
		var env envelope
		if err := c.ws.ReadJSON(&env); err != nil {
			return
		}

		switch env.Event {
		case "joinCase":
			var caseID string
			if json.Unmarshal(env.Data, &caseID) == nil {
				s.mu.Lock()
				c.caseID = caseID
				s.mu.Unlock()
			}

		case "sendMessage":
			var req struct {
				Content          string `json:"content"`
				CaseID           string `json:"caseId"`
				ReceiverClientID string `json:"receiverClientId"`
			}
			if json.Unmarshal(env.Data, &req) != nil {
				continue
			}
			if strings.TrimSpace(req.Content) == "" {
				s.send(c, "messageError", "empty message content")
				continue
			}
			msg := models.Message{
				ID:               uuid.NewString(),
				Content:          req.Content,
				CaseID:           req.CaseID,
				SenderID:         s.User.ID,
				ReceiverClientID: req.ReceiverClientID,
				CreatedAt:        time.Now(),
			}
			s.EmitNewMessage(msg)

		case "markMessageViewed":
			var messageID string
			if json.Unmarshal(env.Data, &messageID) != nil {
				continue
			}
			s.markViewedByID(messageID)
			s.broadcast("messageViewed", messageID)
		}
	}
}

func (s *Server) markViewedByID(messageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, log := range s.messages {
		for _, m := range log {
			if m.ID == messageID && !m.Viewed {
				now := time.Now()
				m.Viewed = true
				m.ViewedAt = &now
			}
		}
	}
}

// broadcast fans an event out to every live connection.
func (s *Server) broadcast(event string, data interface{}) {
	raw, _ := json.Marshal(data)
	env := envelope{Event: event, Data: raw}

	s.mu.Lock()
	conns := make([]*wsConn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.mu.Lock()
		_ = c.ws.WriteJSON(env)
		c.mu.Unlock()
	}
}

func (s *Server) send(c *wsConn, event string, data interface{}) {
	raw, _ := json.Marshal(data)
	c.mu.Lock()
	_ = c.ws.WriteJSON(envelope{Event: event, Data: raw})
	c.mu.Unlock()
}

func (s *Server) json(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) error(w http.ResponseWriter, status int, message string) {
	s.json(w, status, map[string]string{"error": message})
}
