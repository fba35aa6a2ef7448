package chat

import (
	"sort"
	"sync"
	"time"

	"github.com/Soarezin/NexuCommunication-app/internal/metrics"
	"github.com/Soarezin/NexuCommunication-app/internal/models"
)

// Conversation is the single source of truth for the messages of one case:
// an ordered, de-duplicated sequence merged from the history fetch and the
// live stream. The sequence is always non-decreasing by creation time, ties
// broken by arrival order. External components read snapshots via Messages
// and mutate only through the Apply* operations.
type Conversation struct {
	caseID string

	mu       sync.RWMutex
	messages []*models.Message
	known    map[string]*models.Message
}

// NewConversation creates an empty conversation scoped to caseID.
func NewConversation(caseID string) *Conversation {
	return &Conversation{
		caseID: caseID,
		known:  make(map[string]*models.Message),
	}
}

// CaseID returns the case this conversation is scoped to.
func (c *Conversation) CaseID() string { return c.caseID }

// ApplyHistory merges a bulk ordered snapshot into the current state.
// Unknown messages are inserted by timestamp; for messages already present
// (for instance accumulated live while the fetch was in flight) the local
// viewed state wins, except that a snapshot may still advance viewed from
// false to true. Applying the same snapshot twice is a no-op. Returns the
// number of messages added.
func (c *Conversation) ApplyHistory(msgs []models.Message) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	added := 0
	for i := range msgs {
		msg := msgs[i]
		if msg.CaseID != c.caseID {
			continue
		}

		if existing, ok := c.known[msg.ID]; ok {
			// Viewed is monotonic: the snapshot may advance it, never revert it.
			if msg.Viewed && !existing.Viewed {
				existing.Viewed = true
				existing.ViewedAt = msg.ViewedAt
			}
			continue
		}

		c.insert(&msg)
		added++
	}
	return added
}

// ApplyLiveMessage ingests a live push. Messages for other cases and
// duplicates are ignored entirely, making ingestion idempotent. Returns
// true if the message was added.
func (c *Conversation) ApplyLiveMessage(msg models.Message) bool {
	if msg.CaseID != c.caseID {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.known[msg.ID]; ok {
		metrics.DuplicatesDropped.Inc()
		return false
	}
	c.insert(&msg)
	return true
}

// ApplyViewedConfirmation flips viewed to true for the matching message,
// stamping the local receipt time. Unknown IDs are dropped: the history
// fetch will carry the terminal state. Returns true if state changed.
func (c *Conversation) ApplyViewedConfirmation(messageID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	msg, ok := c.known[messageID]
	if !ok || msg.Viewed {
		return false
	}
	now := time.Now()
	msg.Viewed = true
	msg.ViewedAt = &now
	return true
}

// insert places msg in timestamp order. History is itself ordered and live
// messages are usually newest, so this is almost always an append, but a
// pushed message may carry an earlier timestamp than the tail due to clock
// skew; sort.Search keeps the sequence correct either way. Equal timestamps
// land after existing entries, preserving arrival order.
func (c *Conversation) insert(msg *models.Message) {
	i := sort.Search(len(c.messages), func(i int) bool {
		return c.messages[i].CreatedAt.After(msg.CreatedAt)
	})
	c.messages = append(c.messages, nil)
	copy(c.messages[i+1:], c.messages[i:])
	c.messages[i] = msg
	c.known[msg.ID] = msg
}

// Messages returns a snapshot copy of the visible sequence.
func (c *Conversation) Messages() []models.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]models.Message, len(c.messages))
	for i, m := range c.messages {
		out[i] = *m
	}
	return out
}

// Len returns the number of known messages.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

// Get returns the message with the given ID, if known.
func (c *Conversation) Get(messageID string) (models.Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	msg, ok := c.known[messageID]
	if !ok {
		return models.Message{}, false
	}
	return *msg, true
}

// UnviewedFrom counts messages from senderID not yet viewed, for the
// unread badge.
func (c *Conversation) UnviewedFrom(senderID string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := 0
	for _, m := range c.messages {
		if m.SenderID == senderID && !m.Viewed {
			n++
		}
	}
	return n
}
