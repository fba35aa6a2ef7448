package chat

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned when an operation requires a live
	// connection and none is established.
	ErrNotConnected = errors.New("chat: not connected")

	// ErrEmptyMessage is returned by Send when the trimmed content is empty.
	ErrEmptyMessage = errors.New("chat: message content is empty")

	// ErrEmptyToken is returned by Connect when no bearer token is supplied.
	ErrEmptyToken = errors.New("chat: auth token is empty")

	// ErrOwnMessage is returned when marking one's own outgoing message
	// as viewed.
	ErrOwnMessage = errors.New("chat: cannot mark own message as viewed")

	// ErrUnknownMessage is returned when a message ID is not present in the
	// current conversation.
	ErrUnknownMessage = errors.New("chat: unknown message id")

	// ErrWriteBufferFull is returned when the outbound queue is saturated.
	ErrWriteBufferFull = errors.New("chat: write buffer full")

	// ErrNoActiveCase is returned by session operations before a case chat
	// has been opened.
	ErrNoActiveCase = errors.New("chat: no active case")
)

// AuthError reports a rejected websocket handshake. It is terminal for that
// connection attempt; the transport does not retry it.
type AuthError struct {
	Status int
	Reason string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("chat: handshake rejected (%d): %s", e.Status, e.Reason)
}

// TransportError reports a transient network failure that survived the
// transport's own reconnection attempts.
type TransportError struct {
	Attempts int
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("chat: transport down after %d attempts: %v", e.Attempts, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ServerError is a messageError event: the backend rejected a send or a
// related operation.
type ServerError struct {
	Reason string
}

func (e *ServerError) Error() string {
	return "chat: server rejected operation: " + e.Reason
}

// HistoryFetchError reports a failed message-history fetch. Live messages
// keep accumulating regardless.
type HistoryFetchError struct {
	CaseID string
	Err    error
}

func (e *HistoryFetchError) Error() string {
	return fmt.Sprintf("chat: history fetch for case %s failed: %v", e.CaseID, e.Err)
}

func (e *HistoryFetchError) Unwrap() error { return e.Err }

// ViewedMutationError reports a failed mark-viewed mutation; the message
// stays in its prior viewed state.
type ViewedMutationError struct {
	MessageID string
	Err       error
}

func (e *ViewedMutationError) Error() string {
	return fmt.Sprintf("chat: mark viewed for message %s failed: %v", e.MessageID, e.Err)
}

func (e *ViewedMutationError) Unwrap() error { return e.Err }
