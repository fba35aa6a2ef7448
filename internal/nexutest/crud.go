package nexutest

import (
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Soarezin/NexuCommunication-app/internal/models"
)

// In-memory case and client CRUD backing the api package tests.

func (s *Server) handleListCases(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("clientId")

	s.mu.Lock()
	out := make([]models.Case, 0, len(s.cases))
	for _, c := range s.cases {
		if clientID != "" && c.ClientID != clientID {
			continue
		}
		out = append(out, *c)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	s.json(w, http.StatusOK, out)
}

func (s *Server) handleCreateCase(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		ClientID    string `json:"clientId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Title == "" {
		s.error(w, http.StatusBadRequest, "title is required")
		return
	}

	cs := models.Case{
		ID:          uuid.NewString(),
		Title:       req.Title,
		Description: req.Description,
		Status:      models.CaseStatusOpen,
		ClientID:    req.ClientID,
		LawyerID:    s.User.ID,
		TenantID:    s.User.TenantID,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}

	s.mu.Lock()
	s.cases[cs.ID] = &cs
	s.mu.Unlock()

	s.json(w, http.StatusCreated, cs)
}

func (s *Server) handleGetCase(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	cs, ok := s.cases[chi.URLParam(r, "caseID")]
	var cp models.Case
	if ok {
		cp = *cs
	}
	s.mu.Unlock()

	if !ok {
		s.error(w, http.StatusNotFound, "case not found")
		return
	}
	s.json(w, http.StatusOK, cp)
}

func (s *Server) handleUpdateCase(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Status      string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	s.mu.Lock()
	cs, ok := s.cases[chi.URLParam(r, "caseID")]
	var cp models.Case
	if ok {
		if req.Title != "" {
			cs.Title = req.Title
		}
		if req.Description != "" {
			cs.Description = req.Description
		}
		if req.Status != "" {
			cs.Status = req.Status
		}
		cs.UpdatedAt = time.Now()
		cp = *cs
	}
	s.mu.Unlock()

	if !ok {
		s.error(w, http.StatusNotFound, "case not found")
		return
	}
	s.json(w, http.StatusOK, cp)
}

func (s *Server) handleDeleteCase(w http.ResponseWriter, r *http.Request) {
	caseID := chi.URLParam(r, "caseID")

	s.mu.Lock()
	_, ok := s.cases[caseID]
	delete(s.cases, caseID)
	s.mu.Unlock()

	if !ok {
		s.error(w, http.StatusNotFound, "case not found")
		return
	}
	s.json(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleListClients(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := make([]models.Client, 0, len(s.clients))
	for _, c := range s.clients {
		out = append(out, *c)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	s.json(w, http.StatusOK, out)
}

func (s *Server) handleCreateClient(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
		Email     string `json:"email"`
		Phone     string `json:"phone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Email == "" {
		s.error(w, http.StatusBadRequest, "email is required")
		return
	}

	cl := models.Client{
		ID:        uuid.NewString(),
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Phone:     req.Phone,
		TenantID:  s.User.TenantID,
		CreatedAt: time.Now(),
	}

	s.mu.Lock()
	s.clients[cl.ID] = &cl
	s.mu.Unlock()

	s.json(w, http.StatusCreated, cl)
}

func (s *Server) handleGetClient(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	cl, ok := s.clients[chi.URLParam(r, "clientID")]
	var cp models.Client
	if ok {
		cp = *cl
	}
	s.mu.Unlock()

	if !ok {
		s.error(w, http.StatusNotFound, "client not found")
		return
	}
	s.json(w, http.StatusOK, cp)
}

func (s *Server) handleUpdateClient(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
		Email     string `json:"email"`
		Phone     string `json:"phone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	s.mu.Lock()
	cl, ok := s.clients[chi.URLParam(r, "clientID")]
	var cp models.Client
	if ok {
		if req.FirstName != "" {
			cl.FirstName = req.FirstName
		}
		if req.LastName != "" {
			cl.LastName = req.LastName
		}
		if req.Email != "" {
			cl.Email = req.Email
		}
		if req.Phone != "" {
			cl.Phone = req.Phone
		}
		cp = *cl
	}
	s.mu.Unlock()

	if !ok {
		s.error(w, http.StatusNotFound, "client not found")
		return
	}
	s.json(w, http.StatusOK, cp)
}

func (s *Server) handleDeleteClient(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientID")

	s.mu.Lock()
	_, ok := s.clients[clientID]
	delete(s.clients, clientID)
	s.mu.Unlock()

	if !ok {
		s.error(w, http.StatusNotFound, "client not found")
		return
	}
	s.json(w, http.StatusOK, map[string]string{"status": "deleted"})
}
