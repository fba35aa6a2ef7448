package api

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/Soarezin/NexuCommunication-app/internal/models"
)

// CreateCaseRequest is the request body for creating a case.
type CreateCaseRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	ClientID    string `json:"clientId"`
}

// UpdateCaseRequest is the request body for updating a case.
type UpdateCaseRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
}

// Cases lists all cases visible to the authenticated user. An optional
// clientID narrows the result to one client's cases.
func (c *Client) Cases(ctx context.Context, clientID string) ([]models.Case, error) {
	path := "/cases"
	if clientID != "" {
		path += "?clientId=" + url.QueryEscape(clientID)
	}

	respBody, err := c.doRequest(ctx, "GET", path, nil)
	if err != nil {
		return nil, err
	}

	var cases []models.Case
	if err := json.Unmarshal(respBody, &cases); err != nil {
		return nil, err
	}
	return cases, nil
}

// MyCases lists the cases of the authenticated client-role user.
func (c *Client) MyCases(ctx context.Context) ([]models.Case, error) {
	respBody, err := c.doRequest(ctx, "GET", "/cases/me", nil)
	if err != nil {
		return nil, err
	}

	var cases []models.Case
	if err := json.Unmarshal(respBody, &cases); err != nil {
		return nil, err
	}
	return cases, nil
}

// GetCase fetches one case by ID.
func (c *Client) GetCase(ctx context.Context, caseID string) (*models.Case, error) {
	respBody, err := c.doRequest(ctx, "GET", "/cases/"+url.PathEscape(caseID), nil)
	if err != nil {
		return nil, err
	}

	var cs models.Case
	if err := json.Unmarshal(respBody, &cs); err != nil {
		return nil, err
	}
	return &cs, nil
}

// CreateCase creates a new case.
func (c *Client) CreateCase(ctx context.Context, req CreateCaseRequest) (*models.Case, error) {
	body, _ := json.Marshal(req)

	respBody, err := c.doRequest(ctx, "POST", "/cases", body)
	if err != nil {
		return nil, err
	}

	var cs models.Case
	if err := json.Unmarshal(respBody, &cs); err != nil {
		return nil, err
	}
	return &cs, nil
}

// UpdateCase updates a case's title, description or status.
func (c *Client) UpdateCase(ctx context.Context, caseID string, req UpdateCaseRequest) (*models.Case, error) {
	body, _ := json.Marshal(req)

	respBody, err := c.doRequest(ctx, "PUT", "/cases/"+url.PathEscape(caseID), body)
	if err != nil {
		return nil, err
	}

	var cs models.Case
	if err := json.Unmarshal(respBody, &cs); err != nil {
		return nil, err
	}
	return &cs, nil
}

// DeleteCase deletes a case.
func (c *Client) DeleteCase(ctx context.Context, caseID string) error {
	_, err := c.doRequest(ctx, "DELETE", "/cases/"+url.PathEscape(caseID), nil)
	return err
}
