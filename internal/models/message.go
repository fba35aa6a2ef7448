package models

import "time"

// Message represents a chat message exchanged inside a case conversation.
// The same shape is used by the REST history endpoint and by the live
// newMessage event, so the ID is a stable de-duplication key across both.
type Message struct {
	ID               string     `json:"id"`
	Content          string     `json:"content"`
	CaseID           string     `json:"caseId"`
	SenderID         string     `json:"senderId"`
	ReceiverClientID string     `json:"receiverClientId"`
	CreatedAt        time.Time  `json:"createdAt"`
	Viewed           bool       `json:"viewed"`
	ViewedAt         *time.Time `json:"viewedAt,omitempty"`

	// Denormalized participant profiles, present on API responses.
	Sender         *Profile `json:"sender,omitempty"`
	ReceiverClient *Profile `json:"receiverClient,omitempty"`
}

// Profile is the minimal participant identity embedded in a message.
type Profile struct {
	UserID    string `json:"userId"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email,omitempty"`
}
