package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mdp/qrterminal/v3"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Harsha-Reddy21/AI-Onboarding/agent"
	"github.com/Harsha-Reddy21/AI-Onboarding/api"
	"github.com/Harsha-Reddy21/AI-Onboarding/logger"
	"github.com/Harsha-Reddy21/AI-Onboarding/middleware"
	"github.com/Harsha-Reddy21/AI-Onboarding/process"
	"github.com/Harsha-Reddy21/AI-Onboarding/session"
	"github.com/Harsha-Reddy21/AI-Onboarding/settings"
	"github.com/Harsha-Reddy21/AI-Onboarding/watch"
	"github.com/Harsha-Reddy21/AI-Onboarding/ws"
)

const (
	retainFinished  = 10 * time.Minute
	shutdownTimeout = 10 * time.Second
)

func newServeCmd() *cobra.Command {
	var (
		command string
		noQR    bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve live timelines over WebSocket and HTTP",
		Long: `Serve opens streams on the agent service ($AGENT_URL) on request,
records their frames and serves live timelines.

Environment:
  PORT          listen port (default 8080)
  AUTH_TOKEN    bearer token for clients (required)
  AGENT_URL     agent service base URL (default http://localhost:8000)
  AGENT_TOKEN   bearer token sent to the agent service
  DATABASE_URL  record sessions in Postgres instead of DATA_DIR
  DEV_MODE      log to the console and accept any WebSocket origin`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), command, noQR)
		},
	}
	cmd.Flags().StringVar(&command, "command", "", "Read streams from a local command's stdout instead of the agent service")
	cmd.Flags().BoolVar(&noQR, "no-qr", false, "Do not print the connect QR code")
	return cmd
}

type serverDeps struct {
	token        string
	devMode      bool
	manager      *process.Manager
	store        session.Store
	settings     *settings.Store
	timelines    *watch.TimelineWatcher
	sessionLists *watch.SessionListWatcher
}

func newHandler(deps serverDeps) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	api.NewSessionHandler(deps.store, deps.manager, deps.settings.ConfigFor).Register(mux)

	// WebSocket endpoint (authenticates with its first RPC call)
	mux.Handle("GET /ws", ws.NewRPCHandler(ws.Options{
		Token:              deps.token,
		Version:            version,
		Title:              "agentstream",
		DevMode:            deps.devMode,
		Manager:            deps.manager,
		SessionStore:       deps.store,
		TimelineWatcher:    deps.timelines,
		SessionListWatcher: deps.sessionLists,
		ConfigFor:          deps.settings.ConfigFor,
	}))

	return middleware.Auth(deps.token)(mux)
}

func newSource(command string) agent.Source {
	if command != "" {
		wd, _ := os.Getwd()
		return agent.NewCommandSource(wd, "sh", "-c", command)
	}
	return agent.NewHTTPSource(getEnv("AGENT_URL", "http://localhost:8000"), os.Getenv("AGENT_TOKEN"))
}

func runServe(parent context.Context, command string, noQR bool) error {
	token := os.Getenv("AUTH_TOKEN")
	if token == "" {
		return errors.New("AUTH_TOKEN environment variable is required")
	}
	port := getEnv("PORT", "8080")
	devMode := os.Getenv("DEV_MODE") == "true"

	dir, err := resolveDataDir()
	if err != nil {
		return err
	}
	logger.Init(logger.Config{DataDir: dir, DevMode: devMode})

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, dir)
	if err != nil {
		return err
	}
	defer closeStore()

	settingsStore, err := settings.NewStore(dir)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	go func() {
		if err := settingsStore.Watch(ctx); err != nil {
			slog.Warn("settings hot reload disabled", "error", err)
		}
	}()

	manager := process.NewManager(newSource(command), store, retainFinished)
	manager.SetConfigFunc(settingsStore.ConfigFor)

	timelines := watch.NewTimelineWatcher(manager)
	sessionLists := watch.NewSessionListWatcher(store, manager)
	timelines.Start()
	sessionLists.Start()
	manager.SetTimelineListener(timelines)

	srv := &http.Server{
		Addr: ":" + port,
		Handler: newHandler(serverDeps{
			token:        token,
			devMode:      devMode,
			manager:      manager,
			store:        store,
			settings:     settingsStore,
			timelines:    timelines,
			sessionLists: sessionLists,
		}),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "port", port, "dataDir", dir, "devMode", devMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	if !noQR {
		printConnectInfo(fmt.Sprintf("ws://localhost:%s/ws", port))
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	}

	slog.Info("shutting down", "runs", manager.RunCount())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown failed", "error", err)
	}
	manager.Shutdown()
	timelines.Stop()
	sessionLists.Stop()
	return nil
}

// printConnectInfo shows the endpoint, as a QR code when stdout is a terminal.
func printConnectInfo(url string) {
	fmt.Println("Connect:", url)
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return
	}
	qrterminal.GenerateHalfBlock(url, qrterminal.L, os.Stdout)
}
