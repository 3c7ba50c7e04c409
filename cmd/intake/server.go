package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/intake/internal/api"
	"github.com/kalambet/intake/internal/config"
	"github.com/kalambet/intake/internal/matching"
	"github.com/kalambet/intake/internal/questionnaire"
	"github.com/kalambet/intake/internal/session"
	"github.com/kalambet/intake/internal/storage"
)

const (
	configCacheTTL       = 5 * time.Minute
	shutdownTimeout      = 5 * time.Second
	sessionIdleTimeout   = 2 * time.Hour
	sessionSweepInterval = 10 * time.Minute
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the questionnaire over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the questionnaire as MCP tools over stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCP()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show intake server status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(contextOf(cmd))
	},
}

// setupLogging installs the default text logger on stderr.
func setupLogging(cfg config.Config) {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})))
}

func newLoader(source string) *questionnaire.Loader {
	return questionnaire.NewLoader(questionnaire.SourceFor(source, nil))
}

func logEvent(ev session.Event) {
	attrs := []any{"session_id", ev.SessionID, "section", ev.Section}
	if ev.QuestionID != "" {
		attrs = append(attrs, "question_id", ev.QuestionID)
	}
	if ev.ProfileID != "" {
		attrs = append(attrs, "profile_id", ev.ProfileID)
	}
	if ev.Err != nil {
		attrs = append(attrs, "error", ev.Err)
	}
	slog.Debug("session "+string(ev.Kind), attrs...)
}

// newRegistry wires sessions to the matching client and the history store.
func newRegistry(cfg config.Config, store *storage.Store) *session.Registry {
	return session.NewRegistry(session.Options{
		Submitter: matching.NewClient(cfg.Matching.BaseURL, cfg.Matching.APIKey, cfg.MatchingTimeout()),
		Recorder:  store,
		OnEvent:   logEvent,
	})
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "intake version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg)

	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		printWarning("intake is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}

	apiToken, err := config.GetAPIToken(config.NewFileSecrets())
	if err != nil {
		return fmt.Errorf("getting API token: %w", err)
	}
	slog.Info("API bearer token available")

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			printWarning("closing storage: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	configs := api.NewConfigCache(newLoader(cfg.Questionnaire.Source), configCacheTTL)
	if _, err := configs.Get(ctx); err != nil {
		printWarning("questionnaire not available yet: %v", err)
	}

	sessions := newRegistry(cfg, store)
	handler := api.NewHandler(api.Deps{
		Sessions: sessions,
		Configs:  configs,
		Store:    store,
		Token:    apiToken,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		printSuccess("intake listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return sessions.EvictLoop(gctx, sessionSweepInterval, sessionIdleTimeout)
	})
	g.Go(func() error {
		<-gctx.Done()
		printStep("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func runMCP() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	// stdout carries the protocol.
	setupLogging(cfg)

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer store.Close()

	sessions := newRegistry(cfg, store)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sessions.EvictLoop(ctx, sessionSweepInterval, sessionIdleTimeout)

	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Sessions: sessions,
		Configs:  api.NewConfigCache(newLoader(cfg.Questionnaire.Source), configCacheTTL),
	})
	slog.Info("MCP server started (stdio transport)")
	return server.ServeStdio(mcpSrv)
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	client, err := newAPIClient()
	if err != nil {
		return err
	}
	reportServer(ctx, client, cfg.Server.Port)

	printStatus("Questionnaire", "%s", cfg.Questionnaire.Source)
	printStatus("Matching", "%s", cfg.Matching.BaseURL)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func reportServer(ctx context.Context, client *apiClient, port int) {
	resp, err := client.get(ctx, "/health")
	if err != nil {
		printStatus("Server", "stopped")
		return
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		return
	}
	printStatus("Server", "running on port %d", port)

	resp, err = client.get(ctx, "/submissions?limit=1")
	if err != nil {
		return
	}
	var list struct {
		Total int `json:"total"`
	}
	if err := decodeJSON(resp, &list); err != nil {
		printWarning("listing submissions: %v", err)
		return
	}
	printStatus("Submissions", "%d", list.Total)
}
