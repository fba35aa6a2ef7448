package api

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/Soarezin/NexuCommunication-app/internal/models"
)

// ClientRequest is the request body for creating or updating a client.
type ClientRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
}

// Clients lists the tenant's clients.
func (c *Client) Clients(ctx context.Context) ([]models.Client, error) {
	respBody, err := c.doRequest(ctx, "GET", "/clients", nil)
	if err != nil {
		return nil, err
	}

	var clients []models.Client
	if err := json.Unmarshal(respBody, &clients); err != nil {
		return nil, err
	}
	return clients, nil
}

// GetClient fetches one client by ID.
func (c *Client) GetClient(ctx context.Context, clientID string) (*models.Client, error) {
	respBody, err := c.doRequest(ctx, "GET", "/clients/"+url.PathEscape(clientID), nil)
	if err != nil {
		return nil, err
	}

	var cl models.Client
	if err := json.Unmarshal(respBody, &cl); err != nil {
		return nil, err
	}
	return &cl, nil
}

// CreateClient registers a new client on the tenant.
func (c *Client) CreateClient(ctx context.Context, req ClientRequest) (*models.Client, error) {
	body, _ := json.Marshal(req)

	respBody, err := c.doRequest(ctx, "POST", "/clients", body)
	if err != nil {
		return nil, err
	}

	var cl models.Client
	if err := json.Unmarshal(respBody, &cl); err != nil {
		return nil, err
	}
	return &cl, nil
}

// UpdateClient updates a client record.
func (c *Client) UpdateClient(ctx context.Context, clientID string, req ClientRequest) (*models.Client, error) {
	body, _ := json.Marshal(req)

	respBody, err := c.doRequest(ctx, "PUT", "/clients/"+url.PathEscape(clientID), body)
	if err != nil {
		return nil, err
	}

	var cl models.Client
	if err := json.Unmarshal(respBody, &cl); err != nil {
		return nil, err
	}
	return &cl, nil
}

// DeleteClient removes a client record.
func (c *Client) DeleteClient(ctx context.Context, clientID string) error {
	_, err := c.doRequest(ctx, "DELETE", "/clients/"+url.PathEscape(clientID), nil)
	return err
}
