// Package api provides the request/response client for the Nexu backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Soarezin/NexuCommunication-app/internal/models"
)

// Client is a Nexu API client. The bearer token set by Login (or SetToken)
// is attached to every subsequent request.
type Client struct {
	BaseURL    string
	ConfigDir  string
	HTTPClient *http.Client

	mu    sync.RWMutex
	token string
	user  *models.User
}

// Credentials holds the persisted login state.
type Credentials struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

// NewClient creates a new Nexu client.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:5000"
	}

	configDir := os.Getenv("NEXU_CONFIG")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".nexu")
	}

	c := &Client{
		BaseURL:    baseURL,
		ConfigDir:  configDir,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}

	_ = c.LoadCredentials()
	return c
}

// SetToken replaces the bearer token used for authenticated requests.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Token returns the current bearer token, empty when not logged in.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// User returns the authenticated identity, nil when not logged in.
func (c *Client) User() *models.User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.user
}

// LoadCredentials loads a persisted token and user from disk.
func (c *Client) LoadCredentials() error {
	data, err := os.ReadFile(filepath.Join(c.ConfigDir, "credentials.json"))
	if err != nil {
		return err
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return err
	}

	c.mu.Lock()
	c.token = creds.Token
	c.user = &creds.User
	c.mu.Unlock()
	return nil
}

// SaveCredentials persists the current token and user to disk.
func (c *Client) SaveCredentials() error {
	if err := os.MkdirAll(c.ConfigDir, 0700); err != nil {
		return err
	}

	c.mu.RLock()
	creds := Credentials{Token: c.token}
	if c.user != nil {
		creds.User = *c.user
	}
	c.mu.RUnlock()

	data, _ := json.MarshalIndent(creds, "", "  ")
	return os.WriteFile(filepath.Join(c.ConfigDir, "credentials.json"), data, 0600)
}

// ClearCredentials forgets the token in memory and on disk.
func (c *Client) ClearCredentials() error {
	c.mu.Lock()
	c.token = ""
	c.user = nil
	c.mu.Unlock()
	err := os.Remove(filepath.Join(c.ConfigDir, "credentials.json"))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// APIError is a non-2xx response from the backend.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("nexu error %d: %s", e.Status, e.Message)
}

// doRequest performs an HTTP request against the backend.
func (c *Client) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		json.Unmarshal(respBody, &errResp)
		return nil, &APIError{Status: resp.StatusCode, Message: errResp.Error}
	}

	return respBody, nil
}

// LoginRequest is the request body for /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is the response from /auth/login.
type LoginResponse struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

// Login authenticates against the backend and stores the returned token.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	body, _ := json.Marshal(LoginRequest{Email: email, Password: password})

	respBody, err := c.doRequest(ctx, "POST", "/auth/login", body)
	if err != nil {
		return nil, err
	}

	var resp LoginResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.token = resp.Token
	user := resp.User
	c.user = &user
	c.mu.Unlock()

	return &resp, nil
}

// MessagesResponse is the response from the case history endpoint.
type MessagesResponse struct {
	Messages []models.Message `json:"messages"`
}

// CaseMessages fetches the durable message log for a case, ordered by
// creation time ascending.
func (c *Client) CaseMessages(ctx context.Context, caseID string) ([]models.Message, error) {
	respBody, err := c.doRequest(ctx, "GET", "/messages/cases/"+url.PathEscape(caseID), nil)
	if err != nil {
		return nil, err
	}

	var resp MessagesResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// MarkMessageViewed flips a message's viewed flag server-side and returns
// the updated message.
func (c *Client) MarkMessageViewed(ctx context.Context, messageID string) (*models.Message, error) {
	respBody, err := c.doRequest(ctx, "PUT", "/messages/"+url.PathEscape(messageID)+"/viewed", nil)
	if err != nil {
		return nil, err
	}

	var msg models.Message
	if err := json.Unmarshal(respBody, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
