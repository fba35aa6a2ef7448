package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Soarezin/NexuCommunication-app/internal/models"
)

type fakeTransport struct {
	mu       sync.Mutex
	state    State
	handlers Handlers
	joined   []string
	sent     []sendMessagePayload
}

func (f *fakeTransport) Connect(token string, h Handlers) error {
	if token == "" {
		return ErrEmptyToken
	}
	f.mu.Lock()
	f.state = StateConnected
	f.handlers = h
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) Disconnect() {
	f.mu.Lock()
	f.state = StateDisconnected
	f.mu.Unlock()
}

func (f *fakeTransport) JoinCase(caseID string) {
	f.mu.Lock()
	f.joined = append(f.joined, caseID)
	f.mu.Unlock()
}

func (f *fakeTransport) Send(content, caseID, receiverClientID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != StateConnected {
		return ErrNotConnected
	}
	f.sent = append(f.sent, sendMessagePayload{Content: content, CaseID: caseID, ReceiverClientID: receiverClientID})
	return nil
}

func (f *fakeTransport) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// push simulates an inbound newMessage event.
func (f *fakeTransport) push(msg models.Message) {
	f.mu.Lock()
	h := f.handlers
	f.mu.Unlock()
	if h.OnNewMessage != nil {
		h.OnNewMessage(msg)
	}
}

// pushViewed simulates an inbound messageViewed event.
func (f *fakeTransport) pushViewed(messageID string) {
	f.mu.Lock()
	h := f.handlers
	f.mu.Unlock()
	if h.OnMessageViewed != nil {
		h.OnMessageViewed(messageID)
	}
}

type fakeBackend struct {
	mu         sync.Mutex
	history    map[string][]models.Message
	historyErr error
	gates      map[string]chan struct{} // block CaseMessages per case until closed
	viewedErr  error
	viewed     []string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		history: make(map[string][]models.Message),
		gates:   make(map[string]chan struct{}),
	}
}

func (f *fakeBackend) holdHistory(caseID string) func() {
	gate := make(chan struct{})
	f.mu.Lock()
	f.gates[caseID] = gate
	f.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

func (f *fakeBackend) CaseMessages(ctx context.Context, caseID string) ([]models.Message, error) {
	f.mu.Lock()
	gate := f.gates[caseID]
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	return append([]models.Message(nil), f.history[caseID]...), nil
}

func (f *fakeBackend) MarkMessageViewed(ctx context.Context, messageID string) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.viewedErr != nil {
		return nil, f.viewedErr
	}
	f.viewed = append(f.viewed, messageID)
	now := time.Now()
	return &models.Message{ID: messageID, Viewed: true, ViewedAt: &now}, nil
}

type sessionFixture struct {
	transport *fakeTransport
	backend   *fakeBackend
	session   *Session
	updates   chan struct{}
	errs      chan error
}

func newSessionFixture(t *testing.T, userID string) *sessionFixture {
	t.Helper()

	f := &sessionFixture{
		transport: &fakeTransport{},
		backend:   newFakeBackend(),
		updates:   make(chan struct{}, 64),
		errs:      make(chan error, 16),
	}
	f.session = NewSession(SessionConfig{
		Transport: f.transport,
		Backend:   f.backend,
		UserID:    userID,
		Logger:    zerolog.Nop(),
		Handlers: SessionHandlers{
			OnUpdate: func() { f.updates <- struct{}{} },
			OnError:  func(err error) { f.errs <- err },
		},
	})
	if err := f.session.Connect("token"); err != nil {
		t.Fatalf("connect: %v", err)
	}
	return f
}

func (f *sessionFixture) waitUpdate(t *testing.T) {
	t.Helper()
	select {
	case <-f.updates:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for update")
	}
}

func (f *sessionFixture) waitError(t *testing.T) error {
	t.Helper()
	select {
	case err := <-f.errs:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for error")
		return nil
	}
}

func TestSessionFreshOpen(t *testing.T) {
	f := newSessionFixture(t, "lawyer-1")
	f.backend.history["c1"] = []models.Message{
		mkMsg("m1", "c1", 0, true),
		mkMsg("m2", "c1", time.Minute, false),
	}

	f.session.Open("c1", "client-1")
	f.waitUpdate(t)

	msgs := f.session.Messages()
	if len(msgs) != 2 || msgs[0].ID != "m1" || msgs[1].ID != "m2" {
		t.Fatalf("unexpected sequence: %+v", msgs)
	}
	if !msgs[0].Viewed || msgs[1].Viewed {
		t.Fatal("fetched viewed flags should be preserved")
	}

	f.transport.mu.Lock()
	joined := append([]string(nil), f.transport.joined...)
	f.transport.mu.Unlock()
	if len(joined) != 1 || joined[0] != "c1" {
		t.Fatalf("expected joinCase c1, got %v", joined)
	}
}

func TestSessionLiveMessageBeforeHistoryResolves(t *testing.T) {
	f := newSessionFixture(t, "lawyer-1")
	f.backend.history["c1"] = []models.Message{
		mkMsg("m1", "c1", 0, false),
		mkMsg("m2", "c1", time.Minute, false),
	}
	release := f.backend.holdHistory("c1")

	f.session.Open("c1", "client-1")
	f.transport.push(mkMsg("m3", "c1", 2*time.Minute, false))
	f.waitUpdate(t) // live message applied while fetch in flight

	release()
	f.waitUpdate(t) // history merged

	msgs := f.session.Messages()
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	for i, want := range []string{"m1", "m2", "m3"} {
		if msgs[i].ID != want {
			t.Fatalf("position %d: expected %s, got %s", i, want, msgs[i].ID)
		}
	}
}

func TestSessionStaleHistoryFetchDropped(t *testing.T) {
	f := newSessionFixture(t, "lawyer-1")
	f.backend.history["case-a"] = []models.Message{mkMsg("a1", "case-a", 0, false)}
	f.backend.history["case-b"] = []models.Message{mkMsg("b1", "case-b", 0, false)}
	releaseA := f.backend.holdHistory("case-a")

	f.session.Open("case-a", "client-1")
	f.session.Open("case-b", "client-1") // navigate away before A's fetch resolves
	f.waitUpdate(t)                      // B's history

	releaseA()
	time.Sleep(100 * time.Millisecond) // give the stale fetch a chance to misbehave

	conv := f.session.Conversation()
	if conv.CaseID() != "case-b" {
		t.Fatalf("active case should be case-b, got %s", conv.CaseID())
	}
	msgs := f.session.Messages()
	if len(msgs) != 1 || msgs[0].ID != "b1" {
		t.Fatalf("stale history leaked into the view: %+v", msgs)
	}
}

func TestSessionSendWhileDisconnected(t *testing.T) {
	f := newSessionFixture(t, "lawyer-1")
	f.session.Open("c1", "client-1")

	f.transport.Disconnect()

	err := f.session.Send("hello?")
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if len(f.session.Messages()) != 0 {
		t.Fatal("no message may be optimistically added on failed send")
	}
}

func TestSessionSendWithoutOpenCase(t *testing.T) {
	f := newSessionFixture(t, "lawyer-1")
	if err := f.session.Send("hello"); !errors.Is(err, ErrNoActiveCase) {
		t.Fatalf("expected ErrNoActiveCase, got %v", err)
	}
}

func TestSessionMarkViewedRoundTrip(t *testing.T) {
	viewer := newSessionFixture(t, "lawyer-1")
	observer := newSessionFixture(t, "client-1")

	msg := mkMsg("m2", "c1", 0, false)
	msg.SenderID = "client-1"
	viewer.backend.history["c1"] = []models.Message{msg}
	observer.backend.history["c1"] = []models.Message{msg}

	viewer.session.Open("c1", "client-1")
	viewer.waitUpdate(t)
	observer.session.Open("c1", "client-1")
	observer.waitUpdate(t)

	if err := viewer.session.MarkViewed(context.Background(), "m2"); err != nil {
		t.Fatalf("mark viewed: %v", err)
	}
	if got, _ := viewer.session.Conversation().Get("m2"); !got.Viewed {
		t.Fatal("viewer's local state should show m2 viewed")
	}
	if len(viewer.backend.viewed) != 1 || viewer.backend.viewed[0] != "m2" {
		t.Fatalf("mutation not persisted: %v", viewer.backend.viewed)
	}

	// The backend fans the transition out to other observers of the case.
	observer.transport.pushViewed("m2")
	observer.waitUpdate(t)
	if got, _ := observer.session.Conversation().Get("m2"); !got.Viewed {
		t.Fatal("observer's local state should show m2 viewed")
	}
}

func TestSessionMarkViewedOwnMessageRejected(t *testing.T) {
	f := newSessionFixture(t, "lawyer-1")
	own := mkMsg("m1", "c1", 0, false)
	own.SenderID = "lawyer-1"
	f.backend.history["c1"] = []models.Message{own}

	f.session.Open("c1", "client-1")
	f.waitUpdate(t)

	if err := f.session.MarkViewed(context.Background(), "m1"); !errors.Is(err, ErrOwnMessage) {
		t.Fatalf("expected ErrOwnMessage, got %v", err)
	}
	if len(f.backend.viewed) != 0 {
		t.Fatal("no mutation may be issued for own messages")
	}
}

func TestSessionMarkViewedFailureLeavesStateUnchanged(t *testing.T) {
	f := newSessionFixture(t, "lawyer-1")
	f.backend.history["c1"] = []models.Message{mkMsg("m1", "c1", 0, false)}
	f.backend.viewedErr = errors.New("backend down")

	f.session.Open("c1", "client-1")
	f.waitUpdate(t)

	err := f.session.MarkViewed(context.Background(), "m1")
	var verr *ViewedMutationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ViewedMutationError, got %v", err)
	}
	if got, _ := f.session.Conversation().Get("m1"); got.Viewed {
		t.Fatal("failed mutation must not advance local state")
	}
}

func TestSessionHistoryErrorStillAccumulatesLive(t *testing.T) {
	f := newSessionFixture(t, "lawyer-1")
	f.backend.historyErr = errors.New("boom")

	f.session.Open("c1", "client-1")

	err := f.waitError(t)
	var herr *HistoryFetchError
	if !errors.As(err, &herr) {
		t.Fatalf("expected HistoryFetchError, got %v", err)
	}

	f.transport.push(mkMsg("m1", "c1", 0, false))
	f.waitUpdate(t)
	if len(f.session.Messages()) != 1 {
		t.Fatal("live messages should accumulate despite the failed fetch")
	}
}

func TestSessionFiltersEventsForOtherCases(t *testing.T) {
	f := newSessionFixture(t, "lawyer-1")
	f.session.Open("case-a", "client-1")

	// The fake transport delivers synchronously, so the drop is observable
	// immediately.
	f.transport.push(mkMsg("b1", "case-b", 0, false))

	if len(f.session.Messages()) != 0 {
		t.Fatal("message for case-b must not surface while case-a is open")
	}
}
