package models

import "time"

// Case statuses as stored by the backend.
const (
	CaseStatusOpen     = "open"
	CaseStatusPending  = "pending"
	CaseStatusClosed   = "closed"
	CaseStatusArchived = "archived"
)

// Case is a legal matter record. It scopes a chat conversation: every
// message carries the ID of exactly one case.
type Case struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	ClientID    string    `json:"clientId"`
	LawyerID    string    `json:"lawyerId"`
	TenantID    string    `json:"tenantId"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Client is a law-firm client record (the counterpart of a case chat).
type Client struct {
	ID        string    `json:"id"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	TenantID  string    `json:"tenantId"`
	CreatedAt time.Time `json:"createdAt"`
}
