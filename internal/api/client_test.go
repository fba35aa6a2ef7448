package api

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Soarezin/NexuCommunication-app/internal/models"
	"github.com/Soarezin/NexuCommunication-app/internal/nexutest"
)

func newTestClient(t *testing.T) (*Client, *nexutest.Server) {
	t.Helper()
	srv := nexutest.NewServer(t)
	c := NewClient(srv.URL())
	c.ConfigDir = t.TempDir()
	return c, srv
}

func TestLogin(t *testing.T) {
	c, _ := newTestClient(t)

	resp, err := c.Login(context.Background(), nexutest.TestEmail, nexutest.TestPassword)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if resp.Token != nexutest.TestToken {
		t.Fatalf("unexpected token %q", resp.Token)
	}
	if c.Token() != nexutest.TestToken {
		t.Fatal("token should be retained on the client")
	}
	if u := c.User(); u == nil || u.Email != nexutest.TestEmail {
		t.Fatalf("unexpected user: %+v", u)
	}
}

func TestLoginRejected(t *testing.T) {
	c, _ := newTestClient(t)

	_, err := c.Login(context.Background(), nexutest.TestEmail, "wrong")
	var aerr *APIError
	if !errors.As(err, &aerr) || aerr.Status != 401 {
		t.Fatalf("expected 401 APIError, got %v", err)
	}
	if c.Token() != "" {
		t.Fatal("no token may be retained after a rejected login")
	}
}

func TestCredentialsRoundTrip(t *testing.T) {
	c, _ := newTestClient(t)
	if _, err := c.Login(context.Background(), nexutest.TestEmail, nexutest.TestPassword); err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := c.SaveCredentials(); err != nil {
		t.Fatalf("save: %v", err)
	}

	fresh := NewClient(c.BaseURL)
	fresh.ConfigDir = c.ConfigDir
	if err := fresh.LoadCredentials(); err != nil {
		t.Fatalf("load: %v", err)
	}
	if fresh.Token() != nexutest.TestToken {
		t.Fatal("token not restored from disk")
	}

	if err := fresh.ClearCredentials(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if fresh.Token() != "" {
		t.Fatal("token should be forgotten")
	}
}

func TestCaseMessagesOrdered(t *testing.T) {
	c, srv := newTestClient(t)
	c.SetToken(nexutest.TestToken)

	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	srv.SeedMessage(models.Message{ID: "m2", CaseID: "c1", CreatedAt: base.Add(time.Minute)})
	srv.SeedMessage(models.Message{ID: "m1", CaseID: "c1", CreatedAt: base})
	srv.SeedMessage(models.Message{ID: "x1", CaseID: "other", CreatedAt: base})

	msgs, err := c.CaseMessages(context.Background(), "c1")
	if err != nil {
		t.Fatalf("case messages: %v", err)
	}
	if len(msgs) != 2 || msgs[0].ID != "m1" || msgs[1].ID != "m2" {
		t.Fatalf("expected ordered [m1 m2], got %+v", msgs)
	}
}

func TestCaseMessagesUnauthorized(t *testing.T) {
	c, _ := newTestClient(t)

	_, err := c.CaseMessages(context.Background(), "c1")
	var aerr *APIError
	if !errors.As(err, &aerr) || aerr.Status != 401 {
		t.Fatalf("expected 401 APIError, got %v", err)
	}
}

func TestMarkMessageViewed(t *testing.T) {
	c, srv := newTestClient(t)
	c.SetToken(nexutest.TestToken)
	srv.SeedMessage(models.Message{ID: "m1", CaseID: "c1", CreatedAt: time.Now()})

	msg, err := c.MarkMessageViewed(context.Background(), "m1")
	if err != nil {
		t.Fatalf("mark viewed: %v", err)
	}
	if !msg.Viewed || msg.ViewedAt == nil {
		t.Fatalf("expected viewed message back, got %+v", msg)
	}
}

func TestMarkMessageViewedNotFound(t *testing.T) {
	c, _ := newTestClient(t)
	c.SetToken(nexutest.TestToken)

	_, err := c.MarkMessageViewed(context.Background(), "nope")
	var aerr *APIError
	if !errors.As(err, &aerr) || aerr.Status != 404 {
		t.Fatalf("expected 404 APIError, got %v", err)
	}
}

func TestCaseCRUD(t *testing.T) {
	c, _ := newTestClient(t)
	c.SetToken(nexutest.TestToken)
	ctx := context.Background()

	created, err := c.CreateCase(ctx, CreateCaseRequest{Title: "Silva v. Norte SA", ClientID: "client-1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Status != models.CaseStatusOpen {
		t.Fatalf("new cases should open as %q, got %q", models.CaseStatusOpen, created.Status)
	}

	got, err := c.GetCase(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "Silva v. Norte SA" {
		t.Fatalf("unexpected title %q", got.Title)
	}

	updated, err := c.UpdateCase(ctx, created.ID, UpdateCaseRequest{Status: models.CaseStatusClosed})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Status != models.CaseStatusClosed {
		t.Fatalf("status not updated: %+v", updated)
	}

	byClient, err := c.Cases(ctx, "client-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(byClient) != 1 {
		t.Fatalf("expected 1 case for client-1, got %d", len(byClient))
	}
	if other, _ := c.Cases(ctx, "someone-else"); len(other) != 0 {
		t.Fatalf("clientId filter leaked: %+v", other)
	}

	if err := c.DeleteCase(ctx, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := c.GetCase(ctx, created.ID); err == nil {
		t.Fatal("deleted case should be gone")
	}
}

func TestClientCRUD(t *testing.T) {
	c, _ := newTestClient(t)
	c.SetToken(nexutest.TestToken)
	ctx := context.Background()

	created, err := c.CreateClient(ctx, ClientRequest{FirstName: "João", LastName: "Silva", Email: "joao@example.com"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := c.UpdateClient(ctx, created.ID, ClientRequest{Phone: "+55 11 99999-0000"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Phone != "+55 11 99999-0000" || updated.Email != "joao@example.com" {
		t.Fatalf("partial update broken: %+v", updated)
	}

	list, err := c.Clients(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 client, got %d", len(list))
	}

	if err := c.DeleteClient(ctx, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if list, _ := c.Clients(ctx); len(list) != 0 {
		t.Fatal("client not deleted")
	}
}
