// Nexu CLI - terminal client for the Nexu legal practice platform.
package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/Soarezin/NexuCommunication-app/internal/api"
	"github.com/Soarezin/NexuCommunication-app/internal/cache"
	"github.com/Soarezin/NexuCommunication-app/internal/chat"
	"github.com/Soarezin/NexuCommunication-app/internal/config"
	"github.com/Soarezin/NexuCommunication-app/internal/models"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfg := config.Load()

	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stderr).
			With().
			Timestamp().
			Logger()
	}

	if cfg.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				logger.Warn().Err(err).Msg("metrics listener failed")
			}
		}()
	}

	client := api.NewClient(cfg.APIURL)
	client.ConfigDir = cfg.ConfigDir
	_ = client.LoadCredentials()

	ctx := context.Background()
	cmd := os.Args[1]

	switch cmd {
	case "login":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: nexu login <email>")
			os.Exit(1)
		}
		fmt.Fprint(os.Stderr, "Password: ")
		password, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		exitOnError(err)

		resp, err := client.Login(ctx, os.Args[2], string(password))
		exitOnError(err)
		exitOnError(client.SaveCredentials())
		fmt.Printf("Logged in as %s %s (%s)\n", resp.User.FirstName, resp.User.LastName, resp.User.Role)

	case "logout":
		exitOnError(client.ClearCredentials())
		fmt.Println("Logged out.")

	case "whoami":
		user := client.User()
		if user == nil {
			fmt.Fprintln(os.Stderr, "Not logged in.")
			os.Exit(1)
		}
		fmt.Printf("%s %s <%s> role=%s tenant=%s\n", user.FirstName, user.LastName, user.Email, user.Role, user.TenantID)

	case "cases":
		requireLogin(client)
		var cases []models.Case
		var err error
		if client.User().IsClient() {
			cases, err = client.MyCases(ctx)
		} else {
			cases, err = client.Cases(ctx, "")
		}
		exitOnError(err)
		for _, c := range cases {
			fmt.Printf("  %s  [%s] %s\n", c.ID, c.Status, c.Title)
		}

	case "clients":
		requireLogin(client)
		clients, err := client.Clients(ctx)
		exitOnError(err)
		for _, c := range clients {
			fmt.Printf("  %s  %s %s <%s>\n", c.ID, c.FirstName, c.LastName, c.Email)
		}

	case "chat":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: nexu chat <case_id>")
			os.Exit(1)
		}
		requireLogin(client)
		runChat(ctx, cfg, client, logger, os.Args[2])

	default:
		usage()
		os.Exit(1)
	}
}

// runChat opens the interactive chat surface for one case: live tail plus a
// line-based prompt. "/viewed <message_id>" marks a message viewed, "/quit"
// leaves.
func runChat(ctx context.Context, cfg *config.Config, client *api.Client, logger zerolog.Logger, caseID string) {
	cs, err := client.GetCase(ctx, caseID)
	exitOnError(err)

	store, err := cache.NewStore(ctx, filepath.Join(cfg.ConfigDir, "cache.db"))
	if err != nil {
		logger.Warn().Err(err).Msg("history cache unavailable")
		store = nil
	} else {
		defer store.Close()
	}

	render := &renderer{}
	manager := chat.NewManager(cfg.WSURL, cfg.HandshakeTimeout, logger)
	sessionCfg := chat.SessionConfig{
		Transport:      manager,
		Backend:        client,
		UserID:         client.User().ID,
		HistoryTimeout: cfg.HistoryTimeout,
		Logger:         logger,
		Handlers: chat.SessionHandlers{
			OnUpdate: render.flush,
			OnState: func(s chat.State) {
				fmt.Printf("-- %s\n", s)
			},
			OnError: func(err error) {
				fmt.Fprintf(os.Stderr, "!! %v\n", err)
			},
		},
	}
	if store != nil {
		sessionCfg.Cache = store
	}

	session := chat.NewSession(sessionCfg)
	render.session = session

	exitOnError(session.Connect(client.Token()))
	defer session.Disconnect()

	session.Open(caseID, cs.ClientID)
	fmt.Printf("Chat for case %q. /viewed <id> marks viewed, /quit leaves.\n", cs.Title)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			return
		case strings.HasPrefix(line, "/viewed "):
			id := strings.TrimSpace(strings.TrimPrefix(line, "/viewed "))
			if err := session.MarkViewed(ctx, id); err != nil {
				fmt.Fprintf(os.Stderr, "!! %v\n", err)
			}
		default:
			if err := session.Send(line); err != nil {
				fmt.Fprintf(os.Stderr, "!! message not sent: %v\n", err)
			}
		}
	}
}

// renderer prints messages appended to the visible sequence since the last
// flush.
type renderer struct {
	mu      sync.Mutex
	printed int
	session *chat.Session
}

func (r *renderer) flush() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session == nil {
		return
	}
	msgs := r.session.Messages()
	for ; r.printed < len(msgs); r.printed++ {
		m := msgs[r.printed]
		mark := " "
		if m.Viewed {
			mark = "✓"
		}
		fmt.Printf("[%s] %s %s: %s\n", m.CreatedAt.Format("15:04:05"), mark, m.SenderID, m.Content)
	}
}

func requireLogin(client *api.Client) {
	if client.Token() == "" || client.User() == nil {
		fmt.Fprintln(os.Stderr, "Not logged in. Run: nexu login <email>")
		os.Exit(1)
	}
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `Nexu - legal practice client

Usage: nexu <command> [args]

Commands:
  login <email>     Authenticate and store credentials
  logout            Forget stored credentials
  whoami            Show the logged-in identity
  cases             List cases visible to you
  clients           List the tenant's clients
  chat <case_id>    Open the real-time chat for a case

Environment:
  NEXU_API_URL, NEXU_WS_URL, NEXU_ENV, NEXU_CONFIG, NEXU_METRICS_ADDR`)
}
