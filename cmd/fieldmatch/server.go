package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/fieldmatch/internal/api"
	"github.com/kalambet/fieldmatch/internal/config"
	"github.com/kalambet/fieldmatch/internal/export"
	"github.com/kalambet/fieldmatch/internal/ingest"
	"github.com/kalambet/fieldmatch/internal/llm"
	"github.com/kalambet/fieldmatch/internal/matching"
	"github.com/kalambet/fieldmatch/internal/questionnaire"
	"github.com/kalambet/fieldmatch/internal/storage"
)

const (
	shutdownGrace  = 5 * time.Second
	pollInterval   = 500 * time.Millisecond
	statusPageSize = 100
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, MCP stdio server and matching worker in the foreground",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Signal a running `fieldmatch serve` to exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report server, LLM and storage status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

// checkHealth returns the /health status code, or an error if nothing answers.
func checkHealth(ctx context.Context, port int) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("http://127.0.0.1:%d/health", port), nil)
	if err != nil {
		return 0, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

func ensureNotRunning(cfg config.Config, pid pidFile) error {
	if _, err := checkHealth(context.Background(), cfg.Server.Port); err != nil {
		return nil
	}
	if n, err := pid.read(); err == nil {
		printWarning("fieldmatch is already running (PID %d)", n)
		return fmt.Errorf("server already running (PID %d)", n)
	}
	printWarning("something is already listening on port %d", cfg.Server.Port)
	return fmt.Errorf("port %d in use", cfg.Server.Port)
}

func buildMatcher(ctx context.Context, cfg config.Config, kc config.Keychain, cat *questionnaire.Catalog) (*matching.Matcher, error) {
	chatter, sel, err := llm.New(ctx, cfg.LLMSelection(), config.NewCredentials(kc))
	if err != nil {
		return nil, err
	}
	slog.Info("llm ready", "provider", sel.Provider, "model", sel.Model, "rpm", cfg.LLM.RequestsPerMinute)
	return matching.NewMatcher(llm.NewLimited(chatter, cfg.LLM.RequestsPerMinute), sel.Model, cat), nil
}

func runServer() error {
	fmt.Fprintln(stderr, versionLine())

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.Log.Level)

	kc := config.NewKeychain()
	token, err := config.GetAPIToken(kc)
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}

	pid := pidFileIn(cfg.Storage.DataDir)
	if err := ensureNotRunning(cfg, pid); err != nil {
		return err
	}

	cat, err := loadCatalog(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	matcher, err := buildMatcher(ctx, cfg, kc, cat)
	if err != nil {
		return err
	}

	if err := pid.write(); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer pid.remove()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Warn("closing storage", "error", err)
		}
	}()

	exports := export.NewStore(cfg.Export.Dir)
	deps := api.Deps{
		Store:      store,
		Exports:    exports,
		Catalog:    cat,
		Classifier: newClassifier(cfg),
		Token:      token,
		Workers:    cfg.Aggregate.Workers,
	}

	// MCP over stdio is best effort: a closed stdin must not take the HTTP API down.
	go func() {
		err := server.NewStdioServer(api.NewMCPServer(deps)).Listen(ctx, os.Stdin, os.Stdout)
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("mcp stdio server stopped", "error", err)
		}
	}()

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: api.NewHandler(deps), ReadHeaderTimeout: 10 * time.Second}
	worker := ingest.NewWorker(store, matcher, exports, pollInterval)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		worker.Run(gctx)
		return nil
	})
	g.Go(func() error {
		fmt.Fprintf(stderr, "fieldmatch listening on %s\n", addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(stderr, "shutting down...")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pid := pidFileIn(cfg.Storage.DataDir)
	n, err := pid.read()
	if err != nil {
		printError("fieldmatch is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	proc, err := os.FindProcess(n)
	if err != nil {
		return fmt.Errorf("finding process %d: %w", n, err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		// Stale PID file from a crashed server.
		pid.remove()
		printError("could not signal PID %d: %v", n, err)
		return err
	}

	printSuccess("Sent stop signal to fieldmatch (PID %d)", n)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	running := false
	switch code, err := checkHealth(ctx, cfg.Server.Port); {
	case err != nil:
		printStatus("Server", "stopped")
	case code == http.StatusOK:
		running = true
		printStatus("Server", "running on port %d", cfg.Server.Port)
	default:
		printStatus("Server", "error (HTTP %d)", code)
	}

	if sel, err := cfg.LLMSelection().Resolved(); err != nil {
		printStatus("LLM", "%v", err)
	} else {
		printStatus("LLM", "%s (%s)", sel.Provider, sel.Model)
		if sel.Provider == llm.ProviderOllama {
			state := "not running"
			if llm.NewOllama(sel.BaseURL).IsRunning(ctx) {
				state = "running"
			}
			printStatus("Ollama", "%s at %s", state, sel.BaseURL)
		}
	}

	if running {
		if n, err := countSessions(ctx, cfg); err == nil {
			printStatus("Sessions", "%s", countLabel(n, statusPageSize))
		} else {
			slog.Debug("counting sessions", "error", err)
		}
	}

	printStatus("Questionnaire", "%s", cfg.Questionnaire.Path)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	printStatus("Export dir", "%s", cfg.Export.Dir)
	return nil
}

func countSessions(ctx context.Context, cfg config.Config) (int, error) {
	token, err := config.GetAPIToken(config.NewKeychain())
	if err != nil {
		return 0, err
	}
	resp, err := clientFor(cfg, token).get(ctx, "/sessions", url.Values{"limit": {fmt.Sprint(statusPageSize)}})
	if err != nil {
		return 0, err
	}
	var sessions []json.RawMessage
	if err := decodeJSON(resp, &sessions); err != nil {
		return 0, err
	}
	return len(sessions), nil
}

// countLabel renders n, marking a full page as a lower bound.
func countLabel(n, limit int) string {
	if n >= limit {
		return fmt.Sprintf("%d+", n)
	}
	return fmt.Sprint(n)
}
